// Package cli команды локальной реплики
package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/docsync/internal/collection"
	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/internal/replica"
)

// ErrUnknownCommand команда не распознана
var ErrUnknownCommand = errors.New("unknown command")

// Node реплика, над которой работают команды
type Node interface {
	Store() collection.Store
	Status(ctx context.Context) (replica.Status, error)
	Sync(ctx context.Context, settle time.Duration) (replica.SyncResult, error)
	Run(ctx context.Context) error
	CollectGarbage(horizon models.Timestamp) int
}

var _ Node = (*replica.Node)(nil)

type Cli struct {
	io   IO
	node Node
}

func New(io IO, node Node) *Cli {
	return &Cli{io: io, node: node}
}

// Run выполняет команду
func (c *Cli) Run(ctx context.Context, command string, args []string) error {
	switch command {
	case "put":
		return c.runPut(ctx, args)
	case "get":
		return c.runGet(ctx, args)
	case "list":
		return c.runList(ctx)
	case "delete":
		return c.runDelete(ctx, args)
	case "sync":
		return c.runSync(ctx, args)
	case "run":
		return c.runDaemon(ctx)
	case "status":
		return c.runStatus(ctx)
	case "gc":
		return c.runGC(args)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}
}

func PrintUsage(io IO) {
	io.Println("docsync replica")
	io.Println()
	io.Println("Usage:")
	io.Println("  replica [OPTIONS] COMMAND [ARGS]")
	io.Println()
	io.Println("Options:")
	io.Println("  -version                 Show version information")
	io.Println("  -config PATH             Config file (yaml, toml or json)")
	io.Println("  -server URL              DataGate URL")
	io.Println("  -db PATH                 Path to local database")
	io.Println("  -collection NAME         Collection name")
	io.Println("  -token TOKEN             DataGate token (or DOCSYNC_REPLICA_TOKEN)")
	io.Println()
	io.Println("Commands:")
	io.Println("  put [-id ID] key=value...   Create or replace a document")
	io.Println("  put [-id ID] -json '{...}'  Create or replace a document from JSON")
	io.Println("  get <id>                    Show document")
	io.Println("  list                        List documents")
	io.Println("  delete <id>                 Delete document")
	io.Println("  sync [-settle 2s]           Push local changes and pull remote ones")
	io.Println("  run                         Stay connected and replicate until interrupted")
	io.Println("  status                      Show replication state")
	io.Println("  gc -horizon N [-y]          Drop tombstones older than timestamp N")
	io.Println()
	io.Println("Examples:")
	io.Println("  replica put title=hello done=false")
	io.Println("  replica -server https://gate.example.com sync")
}
