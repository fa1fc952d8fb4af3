package replication

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/docsync/internal/collection"
	"github.com/iudanet/docsync/internal/collection/boltdb"
	"github.com/iudanet/docsync/internal/crdt"
	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/pkg/api"
)

type testEnv struct {
	rc     *ReplicatedCollection
	store  *boltdb.Storage
	engine *crdt.Engine
	clock  *crdt.LamportClock
	now    *fakeClock
}

func testConfig() Config {
	return Config{
		Name:             "notes",
		BatchSize:        100,
		RetryTimeout:     10 * time.Second,
		MaxRetryInterval: 10 * time.Second,
	}
}

// newTestEnv создает коллекцию; listeners подписываются раньше ChangeListener
func newTestEnv(t *testing.T, cfg Config, listeners ...collection.Listener) *testEnv {
	t.Helper()

	clock := crdt.NewLamportClock("node-a")
	store, err := boltdb.New(context.Background(), filepath.Join(t.TempDir(), "replica.db"), clock)
	require.NoError(t, err)

	for _, l := range listeners {
		store.Subscribe(l)
	}

	now := newFakeClock()
	engine := crdt.NewEngine(crdt.WithJournal(store), crdt.WithLogger(testLogger()))
	ledger := NewFeedLedger(testLogger(), WithLedgerStorage(store), WithNow(now.Now))

	rc := NewReplicatedCollection(cfg, Dependencies{
		Store:       store,
		Engine:      engine,
		Ledger:      ledger,
		Clock:       clock,
		Checkpoints: store,
		Logger:      testLogger(),
		Now:         now.Now,
	})

	t.Cleanup(func() {
		rc.Close()
		require.NoError(t, store.Close())
	})

	return &testEnv{rc: rc, store: store, engine: engine, clock: clock, now: now}
}

func (e *testEnv) putLocal(t *testing.T, id models.EntityID, fields map[string]any) *models.Document {
	t.Helper()

	doc, err := e.store.Upsert(context.Background(), &models.Document{ID: id, Fields: fields}, models.OriginLocal)
	require.NoError(t, err)
	return doc
}

// sentFeeds собирает отправленные транспортом фиды
type sentFeeds struct {
	feeds []*api.FeedMessage
	mu    sync.Mutex
}

func (s *sentFeeds) transport(t *testing.T, sendErr error) *TransportMock {
	return &TransportMock{
		SendFunc: func(ctx context.Context, env *api.Envelope) error {
			if sendErr != nil {
				return sendErr
			}
			feed, err := env.DecodeFeed()
			require.NoError(t, err)
			assert.Equal(t, "notes", env.Collection)

			s.mu.Lock()
			defer s.mu.Unlock()
			s.feeds = append(s.feeds, feed)
			return nil
		},
	}
}

func TestReplicatedCollection_LocalDeleteCreatesTombstone(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	doc := env.putLocal(t, "doc-1", map[string]any{"title": "draft"})
	require.NoError(t, env.store.Delete(ctx, doc.ID, models.OriginLocal))

	tombstone, ok := env.engine.Tombstone(doc.ID)
	require.True(t, ok)
	assert.Greater(t, tombstone.DeleteTimestamp, doc.LastModified)
	assert.Equal(t, models.OriginLocal, tombstone.Source)
}

func TestReplicatedCollection_ReplicatorDeleteIsNotCaptured(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	_, err := env.store.Upsert(ctx, &models.Document{ID: "remote-1", LastModified: 5, NodeID: "peer"}, models.OriginReplicator)
	require.NoError(t, err)
	require.NoError(t, env.store.Delete(ctx, "remote-1", models.OriginReplicator))

	assert.False(t, env.engine.HasTombstone("remote-1"))
}

func TestReplicatedCollection_CloseUnsubscribes(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	doc := env.putLocal(t, "doc-1", nil)
	env.rc.Close()
	require.NoError(t, env.store.Delete(ctx, doc.ID, models.OriginLocal))

	assert.False(t, env.engine.HasTombstone(doc.ID))
}

func TestReplicatedCollection_BuildOutboundBatch(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	a := env.putLocal(t, "a", map[string]any{"n": "a"})
	b := env.putLocal(t, "b", map[string]any{"n": "b"})
	c := env.putLocal(t, "c", map[string]any{"n": "c"})
	require.NoError(t, env.store.Delete(ctx, b.ID, models.OriginLocal))
	deleteTime, _ := env.engine.TombstoneTimestamp(b.ID)

	entries, err := env.rc.BuildOutboundBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// Старые изменения первыми
	assert.Equal(t, a.ID, entries[0].Item.EntityID)
	assert.False(t, entries[0].Item.IsDelete)
	assert.Equal(t, a.LastModified, entries[0].Item.OriginTimestamp)
	assert.Equal(t, "a", entries[0].Item.Payload["n"])

	assert.Equal(t, c.ID, entries[1].Item.EntityID)
	assert.False(t, entries[1].Item.IsDelete)

	assert.Equal(t, b.ID, entries[2].Item.EntityID)
	assert.True(t, entries[2].Item.IsDelete)
	assert.Nil(t, entries[2].Item.Payload)
	assert.Equal(t, deleteTime, entries[2].Item.OriginTimestamp)

	// Каждый элемент записан в журнал до отправки
	assert.Equal(t, 3, env.rc.Ledger().Len())
	for _, entry := range entries {
		_, ok := env.rc.Ledger().Get(entry.ReceiptID)
		assert.True(t, ok)
	}

	checkpoint, err := env.store.GetOutboundCheckpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, deleteTime, checkpoint)

	// Повторная сборка не отправляет то же самое
	entries, err = env.rc.BuildOutboundBatch(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)

	updated := env.putLocal(t, a.ID, map[string]any{"n": "a2"})
	entries, err = env.rc.BuildOutboundBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, updated.LastModified, entries[0].Item.OriginTimestamp)
	assert.Equal(t, "a2", entries[0].Item.Payload["n"])
}

func TestReplicatedCollection_BuildOutboundBatch_WriteDuringDelete(t *testing.T) {
	ctx := context.Background()

	var (
		env         *testEnv
		interleaved []models.LedgerEntry
		other       *models.Document
	)
	// Другой поток приложения пишет и собирает пакет, пока удаление
	// еще не дошло до ChangeListener
	concurrent := collection.ListenerFunc(func(e *models.ChangeEvent) {
		if e.Type != models.EventRemove || e.Originator != models.OriginLocal {
			return
		}
		other = env.putLocal(t, "doc-2", map[string]any{"n": 2})

		entries, err := env.rc.BuildOutboundBatch(ctx, 10)
		require.NoError(t, err)
		interleaved = entries
	})
	env = newTestEnv(t, testConfig(), concurrent)

	doc := env.putLocal(t, "doc-1", map[string]any{"n": 1})
	entries, err := env.rc.BuildOutboundBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, env.store.Delete(ctx, doc.ID, models.OriginLocal))
	deleteTime, ok := env.engine.TombstoneTimestamp(doc.ID)
	require.True(t, ok)
	require.Greater(t, other.LastModified, deleteTime)

	assert.Empty(t, interleaved, "changes after an unfinished delete must wait")
	checkpoint, err := env.store.GetOutboundCheckpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, doc.LastModified, checkpoint)

	entries, err = env.rc.BuildOutboundBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, doc.ID, entries[0].Item.EntityID)
	assert.True(t, entries[0].Item.IsDelete)
	assert.Equal(t, deleteTime, entries[0].Item.OriginTimestamp)
	assert.Equal(t, other.ID, entries[1].Item.EntityID)
	assert.False(t, entries[1].Item.IsDelete)
}

func TestReplicatedCollection_BuildOutboundBatch_ConcurrentWriters(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	const writers, perWriter = 4, 25

	var (
		wg          sync.WaitGroup
		writersDone atomic.Bool
		shipped     = make(map[models.EntityID]models.Timestamp)
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			finished := writersDone.Load()
			entries, err := env.rc.BuildOutboundBatch(ctx, 7)
			if !assert.NoError(t, err) {
				return
			}
			for _, e := range entries {
				shipped[e.Item.EntityID] = max(shipped[e.Item.EntityID], e.Item.OriginTimestamp)
			}
			if finished && len(entries) == 0 {
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWriter {
				id := models.EntityID(fmt.Sprintf("w%d-%d", w, i))
				_, err := env.store.Upsert(ctx, &models.Document{ID: id}, models.OriginLocal)
				if !assert.NoError(t, err) {
					return
				}
				if i%2 == 1 {
					assert.NoError(t, env.store.Delete(ctx, id, models.OriginLocal))
				}
			}
		}()
	}
	wg.Wait()
	writersDone.Store(true)

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("outbound batches did not drain")
	}

	for w := range writers {
		for i := range perWriter {
			id := models.EntityID(fmt.Sprintf("w%d-%d", w, i))
			_, ok := shipped[id]
			assert.True(t, ok, "entity %s was never shipped", id)
			if i%2 == 1 {
				deleteTime, _ := env.engine.TombstoneTimestamp(id)
				assert.Equal(t, deleteTime, shipped[id], "latest state of %s is the delete", id)
			}
		}
	}
}

func TestReplicatedCollection_BuildOutboundBatch_MaxItems(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	for _, id := range []models.EntityID{"d1", "d2", "d3", "d4", "d5"} {
		env.putLocal(t, id, nil)
	}

	var sizes []int
	for {
		entries, err := env.rc.BuildOutboundBatch(ctx, 2)
		require.NoError(t, err)
		if len(entries) == 0 {
			break
		}
		sizes = append(sizes, len(entries))
	}

	assert.Equal(t, []int{2, 2, 1}, sizes)
	assert.Equal(t, 5, env.rc.Ledger().Len())
}

func TestReplicatedCollection_BuildOutboundBatch_SkipsReplicatedChanges(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	status := env.rc.ApplyInbound(ctx, &models.FeedItem{EntityID: "remote-1", OriginTimestamp: 40, OriginNode: "peer", Payload: map[string]any{"x": 1}})
	require.Equal(t, models.DeliveryAccepted, status)
	status = env.rc.ApplyInbound(ctx, &models.FeedItem{EntityID: "remote-2", OriginTimestamp: 41, OriginNode: "peer", IsDelete: true})
	require.Equal(t, models.DeliveryAccepted, status)

	entries, err := env.rc.BuildOutboundBatch(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCutOnTimestampBoundary(t *testing.T) {
	mk := func(ts ...models.Timestamp) []outboundCandidate {
		result := make([]outboundCandidate, 0, len(ts))
		for _, v := range ts {
			result = append(result, outboundCandidate{ts: v})
		}
		return result
	}

	tests := []struct {
		name     string
		in       []outboundCandidate
		maxItems int
		wantLen  int
	}{
		{name: "under limit", in: mk(1, 2, 3), maxItems: 5, wantLen: 3},
		{name: "cut between distinct timestamps", in: mk(1, 2, 3, 4), maxItems: 2, wantLen: 2},
		{name: "cut moves back before tied group", in: mk(1, 2, 2, 3), maxItems: 2, wantLen: 1},
		{name: "single oversized group is sent whole", in: mk(5, 5, 5, 6), maxItems: 2, wantLen: 3},
		{name: "no limit", in: mk(1, 1, 1), maxItems: 0, wantLen: 3},
		{name: "empty", in: nil, maxItems: 2, wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, cutOnTimestampBoundary(tt.in, tt.maxItems), tt.wantLen)
		})
	}
}

func TestReplicatedCollection_ApplyInbound_DeleteWins(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	doc := env.putLocal(t, "doc-1", map[string]any{"v": 1})
	require.NoError(t, env.store.Delete(ctx, doc.ID, models.OriginLocal))
	deleteTime, ok := env.engine.TombstoneTimestamp(doc.ID)
	require.True(t, ok)

	// Обновление не новее удаления подавляется
	for _, ts := range []models.Timestamp{deleteTime - 1, deleteTime} {
		status := env.rc.ApplyInbound(ctx, &models.FeedItem{EntityID: doc.ID, OriginTimestamp: ts, OriginNode: "peer", Payload: map[string]any{"v": 2}})
		assert.Equal(t, models.DeliveryConflict, status)

		_, err := env.store.Get(ctx, doc.ID)
		assert.ErrorIs(t, err, collection.ErrDocumentNotFound)
	}

	// Более позднее обновление применяется
	status := env.rc.ApplyInbound(ctx, &models.FeedItem{EntityID: doc.ID, OriginTimestamp: deleteTime + 50, OriginNode: "peer", Payload: map[string]any{"v": 3}})
	assert.Equal(t, models.DeliveryAccepted, status)

	stored, err := env.store.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, deleteTime+50, stored.LastModified)
	assert.Equal(t, "peer", stored.NodeID)
	assert.Equal(t, models.OriginReplicator, stored.Source)
	assert.EqualValues(t, 3, stored.Fields["v"])

	stats := env.rc.Stats()
	assert.Equal(t, int64(1), stats.Applied)
	assert.Equal(t, int64(2), stats.Conflicts)
}

func TestReplicatedCollection_ApplyInbound_Delete(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	doc := env.putLocal(t, "doc-1", map[string]any{"v": 1})

	status := env.rc.ApplyInbound(ctx, &models.FeedItem{EntityID: doc.ID, IsDelete: true, OriginTimestamp: doc.LastModified + 10, OriginNode: "peer"})
	assert.Equal(t, models.DeliveryAccepted, status)

	_, err := env.store.Get(ctx, doc.ID)
	assert.ErrorIs(t, err, collection.ErrDocumentNotFound)

	tombstone, ok := env.engine.Tombstone(doc.ID)
	require.True(t, ok)
	assert.Equal(t, models.OriginReplicator, tombstone.Source)

	// Удаление неизвестной сущности тоже принимается
	status = env.rc.ApplyInbound(ctx, &models.FeedItem{EntityID: "never-seen", IsDelete: true, OriginTimestamp: 3, OriginNode: "peer"})
	assert.Equal(t, models.DeliveryAccepted, status)
	assert.True(t, env.engine.HasTombstone("never-seen"))
}

func TestReplicatedCollection_ApplyInbound_StaleDeleteKeepsNewerDocument(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	env.rc.ApplyInbound(ctx, &models.FeedItem{EntityID: "doc-1", OriginTimestamp: 50, OriginNode: "peer", Payload: map[string]any{"v": 1}})
	local := env.putLocal(t, "doc-1", map[string]any{"v": "local"})
	require.Greater(t, local.LastModified, models.Timestamp(50))

	status := env.rc.ApplyInbound(ctx, &models.FeedItem{EntityID: "doc-1", IsDelete: true, OriginTimestamp: 45, OriginNode: "peer"})
	assert.Equal(t, models.DeliveryConflict, status)

	// Подавленное обновление не трогает более новый локальный документ
	status = env.rc.ApplyInbound(ctx, &models.FeedItem{EntityID: "doc-1", OriginTimestamp: 44, OriginNode: "peer", Payload: map[string]any{"v": 2}})
	assert.Equal(t, models.DeliveryConflict, status)

	stored, err := env.store.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "local", stored.Fields["v"])
}

func TestReplicatedCollection_ApplyInbound_StaleUpdate(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	env.rc.ApplyInbound(ctx, &models.FeedItem{EntityID: "doc-1", OriginTimestamp: 50, OriginNode: "peer", Payload: map[string]any{"v": 1}})
	env.putLocal(t, "doc-1", map[string]any{"v": "local"})

	status := env.rc.ApplyInbound(ctx, &models.FeedItem{EntityID: "doc-1", OriginTimestamp: 40, OriginNode: "peer", Payload: map[string]any{"v": "old"}})
	assert.Equal(t, models.DeliveryConflict, status)

	stored, err := env.store.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "local", stored.Fields["v"])
}

func TestReplicatedCollection_ApplyInbound_Redelivery(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	item := &models.FeedItem{EntityID: "doc-1", OriginTimestamp: 7, OriginNode: "peer", Payload: map[string]any{"v": 1}}
	assert.Equal(t, models.DeliveryAccepted, env.rc.ApplyInbound(ctx, item))
	assert.Equal(t, models.DeliveryAccepted, env.rc.ApplyInbound(ctx, item))

	docs, err := env.store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestReplicatedCollection_ApplyInbound_AdvancesClock(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	env.rc.ApplyInbound(ctx, &models.FeedItem{EntityID: "remote", OriginTimestamp: 500, OriginNode: "peer"})

	doc := env.putLocal(t, "local", nil)
	assert.Greater(t, doc.LastModified, models.Timestamp(500))
}

func TestReplicatedCollection_ApplyInbound_StorageFailure(t *testing.T) {
	ctx := context.Background()
	failUpsert := true

	store := &collection.StoreMock{
		GetFunc: func(ctx context.Context, id models.EntityID) (*models.Document, error) {
			return nil, collection.ErrDocumentNotFound
		},
		UpsertFunc: func(ctx context.Context, doc *models.Document, originator models.Originator) (*models.Document, error) {
			if failUpsert {
				return nil, errors.New("disk full")
			}
			return doc, nil
		},
		SubscribeFunc: func(listener collection.Listener) func() {
			return func() {}
		},
	}

	engine := crdt.NewEngine()
	rc := NewReplicatedCollection(testConfig(), Dependencies{
		Store:       store,
		Engine:      engine,
		Ledger:      NewFeedLedger(testLogger()),
		Clock:       crdt.NewLamportClock("node-a"),
		Checkpoints: &CheckpointStorageMock{},
		Logger:      testLogger(),
	})
	defer rc.Close()

	item := &models.FeedItem{EntityID: "doc-1", OriginTimestamp: 10, OriginNode: "peer", Payload: map[string]any{"v": 1}}
	assert.Equal(t, models.DeliveryRejected, rc.ApplyInbound(ctx, item))
	assert.Equal(t, int64(1), rc.Stats().Rejected)

	// Решение CRDT уже принято, повтор того же элемента безопасен
	failUpsert = false
	assert.Equal(t, models.DeliveryAccepted, rc.ApplyInbound(ctx, item))

	calls := store.UpsertCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, models.OriginReplicator, calls[1].Originator)
	assert.Equal(t, models.Timestamp(10), calls[1].Doc.LastModified)
}

func TestReplicatedCollection_ApplyInbound_ReadFailure(t *testing.T) {
	store := &collection.StoreMock{
		GetFunc: func(ctx context.Context, id models.EntityID) (*models.Document, error) {
			return nil, errors.New("io error")
		},
		SubscribeFunc: func(listener collection.Listener) func() {
			return func() {}
		},
	}

	engine := crdt.NewEngine()
	rc := NewReplicatedCollection(testConfig(), Dependencies{
		Store:       store,
		Engine:      engine,
		Ledger:      NewFeedLedger(testLogger()),
		Clock:       crdt.NewLamportClock("node-a"),
		Checkpoints: &CheckpointStorageMock{},
		Logger:      testLogger(),
	})
	defer rc.Close()

	status := rc.ApplyInbound(context.Background(), &models.FeedItem{EntityID: "doc-1", OriginTimestamp: 10, IsDelete: true})
	assert.Equal(t, models.DeliveryRejected, status)
	assert.False(t, engine.HasTombstone("doc-1"))
}

func TestReplicatedCollection_ApplyFeed_RemoteSequence(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	feed := &api.FeedMessage{
		Sequence: 7,
		Entries: []api.FeedEntry{
			{EntityID: "r1", ReceiptID: "s1", OriginTimestamp: 3, OriginNode: "peer", Document: map[string]any{"a": 1}},
			{EntityID: "r2", ReceiptID: "s2", OriginTimestamp: 4, OriginNode: "peer", IsDelete: true},
		},
	}

	receipts := env.rc.ApplyFeed(ctx, feed)
	require.Len(t, receipts, 2)
	assert.Equal(t, models.Receipt{ReceiptID: "s1", EntityID: "r1", Status: models.DeliveryAccepted}, receipts[0])
	assert.Equal(t, models.Receipt{ReceiptID: "s2", EntityID: "r2", Status: models.DeliveryAccepted}, receipts[1])

	seq, err := env.store.GetRemoteSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), seq)

	// Позиция не откатывается назад
	env.rc.ApplyFeed(ctx, &api.FeedMessage{Sequence: 5})
	seq, err = env.store.GetRemoteSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), seq)
}

func TestReplicatedCollection_ApplyFeed_RejectedKeepsSequence(t *testing.T) {
	store := &collection.StoreMock{
		GetFunc: func(ctx context.Context, id models.EntityID) (*models.Document, error) {
			return nil, collection.ErrDocumentNotFound
		},
		UpsertFunc: func(ctx context.Context, doc *models.Document, originator models.Originator) (*models.Document, error) {
			return nil, errors.New("disk full")
		},
		SubscribeFunc: func(listener collection.Listener) func() {
			return func() {}
		},
	}
	checkpoints := &CheckpointStorageMock{}

	rc := NewReplicatedCollection(testConfig(), Dependencies{
		Store:       store,
		Engine:      crdt.NewEngine(),
		Ledger:      NewFeedLedger(testLogger()),
		Clock:       crdt.NewLamportClock("node-a"),
		Checkpoints: checkpoints,
		Logger:      testLogger(),
	})
	defer rc.Close()

	receipts := rc.ApplyFeed(context.Background(), &api.FeedMessage{
		Sequence: 9,
		Entries:  []api.FeedEntry{{EntityID: "r1", ReceiptID: "s1", OriginTimestamp: 3, OriginNode: "peer"}},
	})

	require.Len(t, receipts, 1)
	assert.Equal(t, models.DeliveryRejected, receipts[0].Status)
	assert.Empty(t, checkpoints.SaveRemoteSequenceCalls())
}

func TestReplicatedCollection_Push(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	env.putLocal(t, "doc-1", map[string]any{"v": 1})
	env.putLocal(t, "doc-2", map[string]any{"v": 2})

	sent := &sentFeeds{}
	n, err := env.rc.Push(ctx, sent.transport(t, nil))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, sent.feeds, 1)
	require.Len(t, sent.feeds[0].Entries, 2)
	for _, entry := range sent.feeds[0].Entries {
		_, ok := env.rc.Ledger().Get(entry.ReceiptID)
		assert.True(t, ok, "sent receipt %s must be pending", entry.ReceiptID)
	}

	n, err = env.rc.Push(ctx, sent.transport(t, nil))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, sent.feeds, 1)
	assert.Equal(t, int64(2), env.rc.Stats().Pushed)
}

func TestReplicatedCollection_PushFailureKeepsEntries(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	env.putLocal(t, "doc-1", nil)

	sent := &sentFeeds{}
	_, err := env.rc.Push(ctx, sent.transport(t, errors.New("connection reset")))
	require.Error(t, err)
	assert.Equal(t, 1, env.rc.Ledger().Len())

	// Элемент уходит со следующим sweep
	env.now.Advance(11 * time.Second)
	resent, err := env.rc.Sweep(ctx, sent.transport(t, nil))
	require.NoError(t, err)
	assert.Equal(t, 1, resent)
	require.Len(t, sent.feeds, 1)
	assert.Equal(t, models.EntityID("doc-1"), sent.feeds[0].Entries[0].EntityID)
}

func TestReplicatedCollection_Sweep(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	env.putLocal(t, "doc-1", nil)
	env.putLocal(t, "doc-2", nil)

	sent := &sentFeeds{}
	transport := sent.transport(t, nil)
	_, err := env.rc.Push(ctx, transport)
	require.NoError(t, err)
	first := sent.feeds[0].Entries

	resent, err := env.rc.Sweep(ctx, transport)
	require.NoError(t, err)
	assert.Zero(t, resent)

	env.now.Advance(11 * time.Second)
	resent, err = env.rc.Sweep(ctx, transport)
	require.NoError(t, err)
	assert.Equal(t, 2, resent)
	require.Len(t, sent.feeds, 2)
	assert.Equal(t, first[0].ReceiptID, sent.feeds[1].Entries[0].ReceiptID)

	entry, ok := env.rc.Ledger().Get(first[0].ReceiptID)
	require.True(t, ok)
	assert.Equal(t, 2, entry.Attempts)

	resent, err = env.rc.Sweep(ctx, transport)
	require.NoError(t, err)
	assert.Zero(t, resent)

	// Подтвержденная запись больше не отправляется
	env.rc.WriteOff(models.Receipt{ReceiptID: first[0].ReceiptID, Status: models.DeliveryAccepted})
	env.now.Advance(11 * time.Second)
	resent, err = env.rc.Sweep(ctx, transport)
	require.NoError(t, err)
	assert.Equal(t, 1, resent)
	assert.Equal(t, first[1].ReceiptID, sent.feeds[2].Entries[0].ReceiptID)
	assert.Equal(t, int64(3), env.rc.Stats().Resent)
	assert.Equal(t, int64(1), env.rc.Stats().Acked)
}

func TestReplicatedCollection_SweepFailure(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	env.putLocal(t, "doc-1", nil)
	sent := &sentFeeds{}
	entries, err := env.rc.BuildOutboundBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	env.now.Advance(11 * time.Second)
	resent, err := env.rc.Sweep(ctx, sent.transport(t, errors.New("timeout")))
	require.Error(t, err)
	assert.Zero(t, resent)

	entry, ok := env.rc.Ledger().Get(entries[0].ReceiptID)
	require.True(t, ok)
	assert.Equal(t, 1, entry.Attempts)
}

func TestReplicatedCollection_SweepBackoff(t *testing.T) {
	cfg := testConfig()
	cfg.RetryTimeout = time.Second
	cfg.MaxRetryInterval = 8 * time.Second

	env := newTestEnv(t, cfg)
	ctx := context.Background()
	env.putLocal(t, "doc-1", nil)

	sent := &sentFeeds{}
	transport := sent.transport(t, nil)
	_, err := env.rc.Push(ctx, transport)
	require.NoError(t, err)

	env.now.Advance(1500 * time.Millisecond)
	resent, err := env.rc.Sweep(ctx, transport)
	require.NoError(t, err)
	assert.Equal(t, 1, resent)

	// Вторая попытка ждет 2s
	env.now.Advance(1500 * time.Millisecond)
	resent, err = env.rc.Sweep(ctx, transport)
	require.NoError(t, err)
	assert.Zero(t, resent)

	env.now.Advance(time.Second)
	resent, err = env.rc.Sweep(ctx, transport)
	require.NoError(t, err)
	assert.Equal(t, 1, resent)
}

func TestReplicatedCollection_RetryDelay(t *testing.T) {
	rc := &ReplicatedCollection{cfg: Config{RetryTimeout: time.Second, MaxRetryInterval: 10 * time.Second}}

	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{attempts: 0, want: time.Second},
		{attempts: 1, want: time.Second},
		{attempts: 2, want: 2 * time.Second},
		{attempts: 3, want: 4 * time.Second},
		{attempts: 4, want: 8 * time.Second},
		{attempts: 5, want: 10 * time.Second},
		{attempts: 9, want: 10 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, rc.retryDelay(tt.attempts), "attempts=%d", tt.attempts)
	}

	fixed := &ReplicatedCollection{cfg: Config{RetryTimeout: 3 * time.Second}}
	assert.Equal(t, 3*time.Second, fixed.retryDelay(5))
}

func TestReplicatedCollection_ConcurrentLocalAndInbound(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	const n = 50
	for i := 0; i < n; i++ {
		env.putLocal(t, models.EntityID(fmt.Sprintf("local-%02d", i)), nil)
	}

	docs, err := env.store.List(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for _, doc := range docs {
			assert.NoError(t, env.store.Delete(ctx, doc.ID, models.OriginLocal))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			env.rc.ApplyInbound(ctx, &models.FeedItem{
				EntityID:        models.EntityID(fmt.Sprintf("remote-%02d", i%10)),
				OriginTimestamp: int64(i + 1),
				OriginNode:      "peer",
			})
		}
	}()
	wg.Wait()

	for _, doc := range docs {
		assert.True(t, env.engine.HasTombstone(doc.ID))
	}
}
