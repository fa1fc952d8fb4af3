// Package replica собирает локальную реплику: bbolt-коллекцию, CRDT-движок
// с журналом маркеров, журнал доставки и подключение к DataGate.
package replica

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/iudanet/docsync/internal/collection"
	"github.com/iudanet/docsync/internal/collection/boltdb"
	"github.com/iudanet/docsync/internal/config"
	"github.com/iudanet/docsync/internal/crdt"
	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/internal/replication"
	"github.com/iudanet/docsync/internal/transport/websocket"
)

// Node локальная реплика одной коллекции
type Node struct {
	logger     *slog.Logger
	store      *boltdb.Storage
	clock      *crdt.LamportClock
	engine     *crdt.Engine
	ledger     *replication.FeedLedger
	collection *replication.ReplicatedCollection
	cfg        config.ReplicaConfig
}

// Status снимок состояния реплики
type Status struct {
	NodeID             string
	Collection         string
	Documents          int
	Tombstones         int
	PendingDeliveries  int
	OutboundCheckpoint int64
	RemoteSequence     int64
	Clock              models.Timestamp
}

// SyncResult итог одного сеанса синхронизации
type SyncResult struct {
	Stats   replication.Stats
	Pending int
}

// Open открывает базу реплики и восстанавливает маркеры удаления и журнал доставки
func Open(ctx context.Context, cfg config.ReplicaConfig, logger *slog.Logger) (*Node, error) {
	if cfg.NodeID == "" {
		cfg.NodeID = config.DefaultNodeID(cfg.DBPath)
	}

	clock := crdt.NewLamportClock(cfg.NodeID)

	store, err := boltdb.New(ctx, cfg.DBPath, clock)
	if err != nil {
		return nil, fmt.Errorf("failed to open replica storage: %w", err)
	}

	engine := crdt.NewEngine(crdt.WithJournal(store), crdt.WithLogger(logger))

	tombstones, err := store.LoadTombstones(ctx)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to load tombstones: %w", err)
	}
	engine.Restore(tombstones)

	ledger := replication.NewFeedLedger(logger, replication.WithLedgerStorage(store))
	if err := ledger.Load(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to load delivery ledger: %w", err)
	}

	rc := replication.NewReplicatedCollection(replication.Config{
		Name:             cfg.Collection,
		BatchSize:        cfg.BatchSize,
		RetryTimeout:     cfg.RetryTimeout,
		MaxRetryInterval: cfg.MaxRetryInterval,
	}, replication.Dependencies{
		Store:       store,
		Engine:      engine,
		Ledger:      ledger,
		Clock:       clock,
		Checkpoints: store,
		Logger:      logger,
	})

	logger.Debug("Replica opened",
		"node_id", cfg.NodeID,
		"collection", cfg.Collection,
		"tombstones", len(tombstones),
		"pending", ledger.Len(),
	)

	return &Node{
		logger:     logger,
		store:      store,
		clock:      clock,
		engine:     engine,
		ledger:     ledger,
		collection: rc,
		cfg:        cfg,
	}, nil
}

// Close отписывает репликатор и закрывает базу
func (n *Node) Close() error {
	n.collection.Close()
	return n.store.Close()
}

// Store локальная коллекция, в которую пишет приложение
func (n *Node) Store() collection.Store {
	return n.store
}

// Engine CRDT-состояние реплики
func (n *Node) Engine() *crdt.Engine {
	return n.engine
}

// Collection репликатор коллекции
func (n *Node) Collection() *replication.ReplicatedCollection {
	return n.collection
}

// NodeID идентификатор узла
func (n *Node) NodeID() string {
	return n.cfg.NodeID
}

// Connect открывает websocket-сессию с DataGate начиная с сохраненной позиции
func (n *Node) Connect(ctx context.Context) (*websocket.Client, error) {
	since, err := n.store.GetRemoteSequence(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read remote sequence: %w", err)
	}

	return websocket.Dial(ctx, websocket.Config{
		ServerURL:   n.cfg.ServerURL,
		Collection:  n.cfg.Collection,
		Token:       n.cfg.Token,
		Since:       since,
		DialTimeout: n.cfg.DialTimeout,
	}, n.logger)
}

func (n *Node) newSession(t replication.Transport) *replication.Session {
	return replication.NewSession(replication.SessionConfig{
		PushInterval:  n.cfg.PushInterval,
		SweepInterval: n.cfg.SweepInterval,
	}, n.collection, t, n.logger)
}

// Sync подключается к DataGate, отправляет локальные изменения и принимает
// входящие в течение settle, затем закрывает сессию.
// Неподтвержденные элементы остаются в журнале до следующего сеанса.
func (n *Node) Sync(ctx context.Context, settle time.Duration) (SyncResult, error) {
	before := n.collection.Stats()

	client, err := n.Connect(ctx)
	if err != nil {
		return SyncResult{}, err
	}
	defer func() {
		if err := client.Close(); err != nil {
			n.logger.Debug("Failed to close transport", "error", err)
		}
	}()

	sessionCtx, cancel := context.WithTimeout(ctx, settle)
	defer cancel()

	if err := n.newSession(client).Run(sessionCtx); err != nil {
		return SyncResult{}, err
	}

	return SyncResult{
		Stats:   diffStats(before, n.collection.Stats()),
		Pending: n.ledger.Len(),
	}, nil
}

// Run держит сессию с DataGate до отмены ctx, переподключаясь после обрывов.
// ErrUnauthorized прекращает попытки: повтор с тем же токеном бесполезен.
func (n *Node) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	if n.cfg.MaxRetryInterval > 0 {
		b.MaxInterval = n.cfg.MaxRetryInterval
	}
	b.MaxElapsedTime = 0

	for {
		connected, err := n.runSession(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, websocket.ErrUnauthorized) {
			return err
		}
		// После успешного подключения задержка снова начинается с минимальной
		if connected {
			b.Reset()
		}

		delay := b.NextBackOff()
		n.logger.Warn("Session ended, reconnecting", "error", err, "delay", delay)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

func (n *Node) runSession(ctx context.Context) (bool, error) {
	client, err := n.Connect(ctx)
	if err != nil {
		return false, err
	}
	defer func() {
		_ = client.Close()
	}()

	return true, n.newSession(client).Run(ctx)
}

// Status собирает снимок состояния
func (n *Node) Status(ctx context.Context) (Status, error) {
	docs, err := n.store.List(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("failed to list documents: %w", err)
	}
	checkpoint, err := n.store.GetOutboundCheckpoint(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("failed to read outbound checkpoint: %w", err)
	}
	sequence, err := n.store.GetRemoteSequence(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("failed to read remote sequence: %w", err)
	}

	return Status{
		NodeID:             n.cfg.NodeID,
		Collection:         n.cfg.Collection,
		Documents:          len(docs),
		Tombstones:         len(n.engine.Snapshot().Tombstones),
		PendingDeliveries:  n.ledger.Len(),
		OutboundCheckpoint: checkpoint,
		RemoteSequence:     sequence,
		Clock:              n.clock.Now(),
	}, nil
}

// CollectGarbage удаляет маркеры удаления старше horizon.
// Горизонт выбирает оператор: маркер нужен, пока пиры могут прислать более старую версию.
func (n *Node) CollectGarbage(horizon models.Timestamp) int {
	removed := n.engine.CollectGarbage(horizon)
	n.logger.Info("Tombstones collected", "horizon", horizon, "removed", removed)
	return removed
}

func diffStats(before, after replication.Stats) replication.Stats {
	return replication.Stats{
		Pushed:    after.Pushed - before.Pushed,
		Resent:    after.Resent - before.Resent,
		Applied:   after.Applied - before.Applied,
		Conflicts: after.Conflicts - before.Conflicts,
		Rejected:  after.Rejected - before.Rejected,
		Acked:     after.Acked - before.Acked,
	}
}
