package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/internal/server/storage"
)

var _ storage.FeedStorage = (*Storage)(nil)

// documentRow текущее состояние сущности на DataGate
type documentRow struct {
	version models.Version
	deleted bool
}

// resolve решает, принимает ли DataGate входящий элемент и меняет ли он состояние.
// Удаление выигрывает при равных timestamp, повтор той же версии принимается без изменений.
func resolve(existing *documentRow, item *models.FeedItem) (models.DeliveryStatus, bool) {
	if existing == nil {
		return models.DeliveryAccepted, true
	}

	incoming := item.Version()

	if item.IsDelete {
		switch {
		case existing.version.Timestamp > incoming.Timestamp:
			return models.DeliveryConflict, false
		case existing.deleted && existing.version.Timestamp == incoming.Timestamp:
			return models.DeliveryAccepted, false
		default:
			return models.DeliveryAccepted, true
		}
	}

	if existing.deleted {
		if existing.version.Timestamp >= incoming.Timestamp {
			return models.DeliveryConflict, false
		}
		return models.DeliveryAccepted, true
	}

	switch {
	case incoming == existing.version:
		return models.DeliveryAccepted, false
	case incoming.IsNewerThan(existing.version):
		return models.DeliveryAccepted, true
	default:
		return models.DeliveryConflict, false
	}
}

// ApplyEntry applies a feed item in a single transaction
func (s *Storage) ApplyEntry(ctx context.Context, collection string, receiptID models.ReceiptID, item *models.FeedItem) (models.DeliveryStatus, *storage.Change, error) {
	if collection == "" || receiptID == "" || item.EntityID == "" {
		return "", nil, storage.ErrInvalidItem
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Квитанция уже есть: повторная доставка того же элемента
	var stored string
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM receipts WHERE collection = ? AND receipt_id = ?`,
		collection, receiptID,
	).Scan(&stored)
	if err == nil {
		return models.DeliveryStatus(stored), nil, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", nil, fmt.Errorf("failed to check receipt: %w", err)
	}

	existing, err := getDocumentRow(ctx, tx, collection, item.EntityID)
	if err != nil {
		return "", nil, err
	}

	status, changed := resolve(existing, item)

	var change *storage.Change
	if changed {
		change, err = writeDocument(ctx, tx, collection, item)
		if err != nil {
			return "", nil, err
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO receipts (collection, receipt_id, entity_id, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		collection, receiptID, item.EntityID, string(status), time.Now().Unix(),
	)
	if err != nil {
		return "", nil, fmt.Errorf("failed to save receipt: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return status, change, nil
}

func getDocumentRow(ctx context.Context, tx *sql.Tx, collection string, id models.EntityID) (*documentRow, error) {
	row := &documentRow{}
	var deleted int

	err := tx.QueryRowContext(ctx,
		`SELECT timestamp, node_id, deleted FROM documents WHERE collection = ? AND entity_id = ?`,
		collection, id,
	).Scan(&row.version.Timestamp, &row.version.NodeID, &deleted)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	row.deleted = intToBool(deleted)
	return row, nil
}

func writeDocument(ctx context.Context, tx *sql.Tx, collection string, item *models.FeedItem) (*storage.Change, error) {
	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM documents`).Scan(&seq); err != nil {
		return nil, fmt.Errorf("failed to allocate sequence: %w", err)
	}

	var payload sql.NullString
	if !item.IsDelete {
		data, err := json.Marshal(item.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		payload = sql.NullString{String: string(data), Valid: true}
	}

	query := `
		INSERT INTO documents (collection, entity_id, payload, timestamp, node_id, deleted, seq, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (collection, entity_id) DO UPDATE SET
			payload = excluded.payload,
			timestamp = excluded.timestamp,
			node_id = excluded.node_id,
			deleted = excluded.deleted,
			seq = excluded.seq,
			updated_at = excluded.updated_at
	`

	_, err := tx.ExecContext(ctx, query,
		collection,
		item.EntityID,
		payload,
		item.OriginTimestamp,
		item.OriginNode,
		boolToInt(item.IsDelete),
		seq,
		time.Now().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save document: %w", err)
	}

	return &storage.Change{
		Collection: collection,
		Seq:        seq,
		Item:       *item.Clone(),
	}, nil
}

// ChangesSince returns changes of the collection after since, oldest first
func (s *Storage) ChangesSince(ctx context.Context, collection string, since int64, limit int) (changes []storage.Change, err error) {
	query := `
		SELECT entity_id, payload, timestamp, node_id, deleted, seq
		FROM documents
		WHERE collection = ? AND seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, collection, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query changes: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	changes = make([]storage.Change, 0)
	for rows.Next() {
		change, err := scanChange(rows, collection)
		if err != nil {
			return nil, err
		}
		changes = append(changes, *change)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating changes: %w", err)
	}

	return changes, nil
}

// GetDocument returns the current state of an entity
func (s *Storage) GetDocument(ctx context.Context, collection string, id models.EntityID) (*storage.Change, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT entity_id, payload, timestamp, node_id, deleted, seq
		FROM documents
		WHERE collection = ? AND entity_id = ?
	`, collection, id)

	change, err := scanChange(row, collection)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrDocumentNotFound
		}
		return nil, err
	}
	return change, nil
}

// PruneReceipts removes receipts older than before
func (s *Storage) PruneReceipts(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM receipts WHERE created_at < ?`, before.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune receipts: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChange(row rowScanner, collection string) (*storage.Change, error) {
	change := &storage.Change{Collection: collection}
	var payload sql.NullString
	var deleted int

	err := row.Scan(
		&change.Item.EntityID,
		&payload,
		&change.Item.OriginTimestamp,
		&change.Item.OriginNode,
		&deleted,
		&change.Seq,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}

	change.Item.IsDelete = intToBool(deleted)
	if payload.Valid {
		if err := json.Unmarshal([]byte(payload.String), &change.Item.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
	}

	return change, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func intToBool(i int) bool {
	return i != 0
}
