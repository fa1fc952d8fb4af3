package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/iudanet/docsync/internal/collection"
	"github.com/iudanet/docsync/internal/models"
)

func (c *Cli) runPut(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("put", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	id := fs.String("id", "", "document id (generated when empty)")
	raw := fs.String("json", "", "document fields as JSON object")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("put: %w", err)
	}

	fields, err := parseFields(*raw, fs.Args())
	if err != nil {
		return err
	}

	doc, err := c.node.Store().Upsert(ctx, &models.Document{
		ID:     models.EntityID(*id),
		Fields: fields,
	}, models.OriginLocal)
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}

	c.io.Printf("Saved %s (timestamp %d)\n", doc.ID, doc.LastModified)
	return nil
}

// parseFields собирает поля документа из JSON или пар key=value.
// Значение key=value разбирается как JSON, иначе остается строкой.
func parseFields(raw string, pairs []string) (map[string]any, error) {
	fields := make(map[string]any)

	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			return nil, fmt.Errorf("invalid -json: %w", err)
		}
	}

	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q, expected key=value", pair)
		}

		var parsed any
		if err := json.Unmarshal([]byte(value), &parsed); err != nil {
			parsed = value
		}
		fields[key] = parsed
	}

	return fields, nil
}

func (c *Cli) runGet(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: get <id>")
	}

	doc, err := c.node.Store().Get(ctx, models.EntityID(args[0]))
	if err != nil {
		if errors.Is(err, collection.ErrDocumentNotFound) {
			return fmt.Errorf("document %s not found", args[0])
		}
		return fmt.Errorf("failed to get document: %w", err)
	}

	body, err := json.MarshalIndent(doc.Fields, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format document: %w", err)
	}

	c.io.Printf("ID:            %s\n", doc.ID)
	c.io.Printf("Last modified: %d (node %s, %s)\n", doc.LastModified, doc.NodeID, doc.Source)
	c.io.Println(string(body))
	return nil
}

func (c *Cli) runList(ctx context.Context) error {
	docs, err := c.node.Store().List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if len(docs) == 0 {
		c.io.Println("No documents found.")
		return nil
	}

	c.io.Printf("Found %d document(s):\n", len(docs))
	for _, doc := range docs {
		c.io.Printf("  %s  ts=%d  %s\n", doc.ID, doc.LastModified, summary(doc.Fields))
	}
	return nil
}

// summary короткое представление полей для списка
func summary(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}

	s := strings.Join(parts, " ")
	if len(s) > 60 {
		s = s[:57] + "..."
	}
	return s
}

func (c *Cli) runDelete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: delete <id>")
	}

	err := c.node.Store().Delete(ctx, models.EntityID(args[0]), models.OriginLocal)
	if err != nil {
		if errors.Is(err, collection.ErrDocumentNotFound) {
			return fmt.Errorf("document %s not found", args[0])
		}
		return fmt.Errorf("failed to delete document: %w", err)
	}

	c.io.Printf("Deleted %s\n", args[0])
	return nil
}
