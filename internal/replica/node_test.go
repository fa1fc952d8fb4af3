package replica

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/iudanet/docsync/internal/collection"
	"github.com/iudanet/docsync/internal/config"
	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/internal/server"
	"github.com/iudanet/docsync/internal/server/handlers"
	"github.com/iudanet/docsync/internal/server/storage/sqlite"
	"github.com/iudanet/docsync/internal/transport/websocket"
)

const settle = 500 * time.Millisecond

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

var testJWT = handlers.JWTConfig{Secret: []byte("test-secret"), TokenTTL: time.Hour}

// startDataGate поднимает DataGate на sqlite в памяти
func startDataGate(t *testing.T) string {
	t.Helper()

	s, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)

	gate := server.New(server.Config{
		Version:       "test",
		JWT:           testJWT,
		ConnectRate:   100,
		ConnectWindow: time.Minute,
	}, s, testLogger())
	srv := httptest.NewServer(gate.Handler())

	t.Cleanup(func() {
		gate.Close()
		srv.Close()
		_ = s.Close()
	})

	return srv.URL
}

func replicaConfig(t *testing.T, serverURL, nodeID, dbPath string) config.ReplicaConfig {
	t.Helper()

	token, _, err := handlers.GenerateReplicaToken(testJWT, nodeID)
	require.NoError(t, err)

	return config.ReplicaConfig{
		DBPath:           dbPath,
		ServerURL:        serverURL,
		Collection:       "notes",
		NodeID:           nodeID,
		Token:            token,
		PushInterval:     50 * time.Millisecond,
		SweepInterval:    100 * time.Millisecond,
		RetryTimeout:     time.Second,
		MaxRetryInterval: time.Second,
		DialTimeout:      2 * time.Second,
		BatchSize:        10,
	}
}

func openNode(t *testing.T, cfg config.ReplicaConfig) *Node {
	t.Helper()

	n, err := Open(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })
	return n
}

func put(t *testing.T, n *Node, id models.EntityID, fields map[string]any) *models.Document {
	t.Helper()

	doc, err := n.Store().Upsert(context.Background(), &models.Document{ID: id, Fields: fields}, models.OriginLocal)
	require.NoError(t, err)
	return doc
}

func TestNode_SyncPropagatesDocuments(t *testing.T) {
	url := startDataGate(t)
	ctx := context.Background()

	alice := openNode(t, replicaConfig(t, url, "node-a", filepath.Join(t.TempDir(), "a.db")))
	bob := openNode(t, replicaConfig(t, url, "node-b", filepath.Join(t.TempDir(), "b.db")))

	put(t, alice, "doc-1", map[string]any{"title": "hello"})
	put(t, alice, "doc-2", map[string]any{"title": "world"})

	res, err := alice.Sync(ctx, settle)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Stats.Pushed)
	assert.Equal(t, int64(2), res.Stats.Acked)
	assert.Zero(t, res.Pending)

	res, err = bob.Sync(ctx, settle)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Stats.Applied)
	assert.Zero(t, res.Stats.Pushed, "applied changes must not be echoed back")

	doc, err := bob.Store().Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "hello", doc.Fields["title"])
	assert.Equal(t, models.OriginReplicator, doc.Source)

	status, err := bob.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), status.RemoteSequence)
	assert.Equal(t, 2, status.Documents)
	assert.GreaterOrEqual(t, status.Clock, doc.LastModified)
}

func TestNode_ConcurrentDeleteWins(t *testing.T) {
	url := startDataGate(t)
	ctx := context.Background()

	alice := openNode(t, replicaConfig(t, url, "node-a", filepath.Join(t.TempDir(), "a.db")))
	bob := openNode(t, replicaConfig(t, url, "node-b", filepath.Join(t.TempDir(), "b.db")))

	put(t, alice, "doc-1", map[string]any{"v": 1})
	_, err := alice.Sync(ctx, settle)
	require.NoError(t, err)
	_, err = bob.Sync(ctx, settle)
	require.NoError(t, err)

	// Обе реплики меняют документ, не видя друг друга.
	// Часы bob ушли вперед на применении фида, alice догоняет локальной записью.
	put(t, alice, "doc-2", nil)
	require.NoError(t, alice.Store().Delete(ctx, "doc-1", models.OriginLocal))
	updated := put(t, bob, "doc-1", map[string]any{"v": 2})

	ts, ok := alice.Engine().TombstoneTimestamp("doc-1")
	require.True(t, ok)
	require.LessOrEqual(t, updated.LastModified, ts, "delete must be at least as new as the update")

	_, err = alice.Sync(ctx, settle)
	require.NoError(t, err)
	res, err := bob.Sync(ctx, settle)
	require.NoError(t, err)
	assert.Zero(t, res.Pending, "conflict receipt closes the ledger entry")

	_, err = bob.Store().Get(ctx, "doc-1")
	assert.ErrorIs(t, err, collection.ErrDocumentNotFound)
	assert.True(t, bob.Engine().HasTombstone("doc-1"))

	_, err = alice.Sync(ctx, settle)
	require.NoError(t, err)
	_, err = alice.Store().Get(ctx, "doc-1")
	assert.ErrorIs(t, err, collection.ErrDocumentNotFound)
}

func TestNode_StateSurvivesRestart(t *testing.T) {
	url := startDataGate(t)
	ctx := context.Background()
	cfg := replicaConfig(t, url, "node-a", filepath.Join(t.TempDir(), "a.db"))

	n, err := Open(ctx, cfg, testLogger())
	require.NoError(t, err)

	put(t, n, "doc-1", map[string]any{"v": 1})
	put(t, n, "doc-2", map[string]any{"v": 1})
	require.NoError(t, n.Store().Delete(ctx, "doc-2", models.OriginLocal))

	_, err = n.Sync(ctx, settle)
	require.NoError(t, err)

	before, err := n.Status(ctx)
	require.NoError(t, err)
	require.NoError(t, n.Close())

	reopened := openNode(t, cfg)
	after, err := reopened.Status(ctx)
	require.NoError(t, err)

	assert.Equal(t, before.OutboundCheckpoint, after.OutboundCheckpoint)
	assert.Equal(t, before.RemoteSequence, after.RemoteSequence)
	assert.Equal(t, 1, after.Tombstones)
	assert.Equal(t, 1, after.Documents)
	assert.Equal(t, before.Clock, after.Clock)

	// Новая запись упорядочена после восстановленных
	doc := put(t, reopened, "doc-3", nil)
	assert.Greater(t, doc.LastModified, before.Clock)
}

func TestNode_SyncFailsWhenPeerUnreachable(t *testing.T) {
	ctx := context.Background()

	cfg := replicaConfig(t, "http://127.0.0.1:1", "node-a", filepath.Join(t.TempDir(), "a.db"))
	cfg.DialTimeout = 200 * time.Millisecond
	n := openNode(t, cfg)

	put(t, n, "doc-1", nil)

	_, err := n.Sync(ctx, settle)
	require.Error(t, err)

	status, err := n.Status(ctx)
	require.NoError(t, err)
	assert.Zero(t, status.PendingDeliveries, "nothing is recorded before a session exists")
	assert.Zero(t, status.OutboundCheckpoint)
}

func TestNode_RunStopsOnUnauthorized(t *testing.T) {
	url := startDataGate(t)

	cfg := replicaConfig(t, url, "node-a", filepath.Join(t.TempDir(), "a.db"))
	cfg.Token = "forged"
	n := openNode(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := n.Run(ctx)
	assert.ErrorIs(t, err, websocket.ErrUnauthorized)
}

func TestNode_RunReturnsOnCancel(t *testing.T) {
	url := startDataGate(t)
	n := openNode(t, replicaConfig(t, url, "node-a", filepath.Join(t.TempDir(), "a.db")))

	put(t, n, "doc-1", nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	require.Eventually(t, func() bool {
		return n.Collection().Stats().Acked == 1
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestNode_CollectGarbage(t *testing.T) {
	ctx := context.Background()
	n := openNode(t, replicaConfig(t, "http://127.0.0.1:1", "node-a", filepath.Join(t.TempDir(), "a.db")))

	put(t, n, "doc-1", nil)
	require.NoError(t, n.Store().Delete(ctx, "doc-1", models.OriginLocal))
	ts, ok := n.Engine().TombstoneTimestamp("doc-1")
	require.True(t, ok)

	assert.Zero(t, n.CollectGarbage(ts))
	assert.Equal(t, 1, n.CollectGarbage(ts+1))
	assert.False(t, n.Engine().HasTombstone("doc-1"))
}

func TestNode_WritesAfterGarbageCollectionAndRestartAreShipped(t *testing.T) {
	ctx := context.Background()
	cfg := replicaConfig(t, "http://127.0.0.1:1", "node-a", filepath.Join(t.TempDir(), "a.db"))

	n, err := Open(ctx, cfg, testLogger())
	require.NoError(t, err)

	put(t, n, "doc-1", nil)
	_, err = n.Collection().BuildOutboundBatch(ctx, 10)
	require.NoError(t, err)
	require.NoError(t, n.Store().Delete(ctx, "doc-1", models.OriginLocal))
	entries, err := n.Collection().BuildOutboundBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	before, err := n.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n.CollectGarbage(before.Clock+1))
	require.NoError(t, n.Close())

	// Каждая команда CLI открывает узел заново
	reopened := openNode(t, cfg)
	doc := put(t, reopened, "doc-2", map[string]any{"v": 1})
	assert.Greater(t, doc.LastModified, before.OutboundCheckpoint)

	entries, err = reopened.Collection().BuildOutboundBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, doc.ID, entries[0].Item.EntityID)
}
