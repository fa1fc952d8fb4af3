package handlers

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/internal/server/storage/sqlite"
	"github.com/iudanet/docsync/pkg/api"
)

type gateEnv struct {
	server  *httptest.Server
	storage *sqlite.Storage
	hub     *Hub
}

// startGate поднимает GateHandler; replica id берется из заголовка X-Replica-ID
// вместо JWT, проверка токена покрыта тестами middleware
func startGate(t *testing.T, cfg GateConfig) *gateEnv {
	t.Helper()

	s, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)

	hub := NewHub()
	gate := NewGateHandler(setupTestLogger(), s, hub, cfg)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get("X-Replica-ID"); id != "" {
			r = r.WithContext(WithReplicaID(r.Context(), id))
		}
		gate.ServeHTTP(w, r)
	}))

	t.Cleanup(func() {
		server.Close()
		_ = s.Close()
	})

	return &gateEnv{server: server, storage: s, hub: hub}
}

func (e *gateEnv) dial(t *testing.T, replicaID, query string) *ws.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/api/v1/gate?" + query
	header := http.Header{}
	header.Set("X-Replica-ID", replicaID)

	conn, resp, err := ws.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	_ = resp.Body.Close()

	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendFeed(t *testing.T, conn *ws.Conn, collection string, entries ...api.FeedEntry) {
	t.Helper()

	env, err := api.NewEnvelope(api.MessageFeed, collection, api.FeedMessage{Entries: entries})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(env))
}

func sendAck(t *testing.T, conn *ws.Conn, collection string, receipts ...models.Receipt) {
	t.Helper()

	ack, err := api.NewEnvelope(api.MessageFeedAck, collection, api.FeedAckMessage{Receipts: receipts})
	require.NoError(t, err)
	data, err := json.Marshal(ack)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(ws.TextMessage, data))
}

func readEnvelope(t *testing.T, conn *ws.Conn) *api.Envelope {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	env, err := api.DecodeEnvelope(data)
	require.NoError(t, err)
	return env
}

func expectSilence(t *testing.T, conn *ws.Conn) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
}

func entry(receipt models.ReceiptID, id models.EntityID, ts int64, node string, fields map[string]any) api.FeedEntry {
	return api.NewFeedEntry(receipt, &models.FeedItem{
		EntityID:        id,
		Payload:         fields,
		OriginTimestamp: ts,
		OriginNode:      node,
	})
}

func TestGateHandler_RejectsBadRequests(t *testing.T) {
	gate := NewGateHandler(setupTestLogger(), nil, NewHub(), GateConfig{})

	tests := []struct {
		name      string
		target    string
		replicaID string
		wantCode  int
	}{
		{name: "no replica", target: "/api/v1/gate?collection=notes", wantCode: http.StatusUnauthorized},
		{name: "no collection", target: "/api/v1/gate", replicaID: "r1", wantCode: http.StatusBadRequest},
		{name: "bad since", target: "/api/v1/gate?collection=notes&since=abc", replicaID: "r1", wantCode: http.StatusBadRequest},
		{name: "negative since", target: "/api/v1/gate?collection=notes&since=-1", replicaID: "r1", wantCode: http.StatusBadRequest},
		{name: "not a websocket", target: "/api/v1/gate?collection=notes", replicaID: "r1", wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.replicaID != "" {
				req = req.WithContext(WithReplicaID(req.Context(), tt.replicaID))
			}
			w := httptest.NewRecorder()

			gate.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
		})
	}
}

func TestGateHandler_FeedIsAcknowledgedAndBroadcast(t *testing.T) {
	env := startGate(t, GateConfig{})

	alice := env.dial(t, "alice", "collection=notes")
	bob := env.dial(t, "bob", "collection=notes")
	other := env.dial(t, "carol", "collection=todos")

	require.Eventually(t, func() bool { return env.hub.Len() == 3 }, 2*time.Second, 10*time.Millisecond)

	sendFeed(t, alice, "notes", entry("rcpt-1", "doc-1", 5, "node-a", map[string]any{"title": "hello"}))

	ackEnv := readEnvelope(t, alice)
	require.Equal(t, api.MessageFeedAck, ackEnv.Type)
	ack, err := ackEnv.DecodeFeedAck()
	require.NoError(t, err)
	require.Len(t, ack.Receipts, 1)
	assert.Equal(t, models.ReceiptID("rcpt-1"), ack.Receipts[0].ReceiptID)
	assert.Equal(t, models.DeliveryAccepted, ack.Receipts[0].Status)

	feedEnv := readEnvelope(t, bob)
	require.Equal(t, api.MessageFeed, feedEnv.Type)
	feed, err := feedEnv.DecodeFeed()
	require.NoError(t, err)
	require.Len(t, feed.Entries, 1)
	assert.Zero(t, feed.Sequence, "broadcast must not move the replica position")
	assert.Equal(t, models.EntityID("doc-1"), feed.Entries[0].EntityID)
	assert.NotEqual(t, models.ReceiptID("rcpt-1"), feed.Entries[0].ReceiptID)
	assert.Equal(t, "hello", feed.Entries[0].Document["title"])

	// Автор изменения и чужая коллекция рассылку не получают
	expectSilence(t, alice)
	expectSilence(t, other)
}

func TestGateHandler_ConflictAndDuplicateAreNotBroadcast(t *testing.T) {
	env := startGate(t, GateConfig{})

	alice := env.dial(t, "alice", "collection=notes")
	bob := env.dial(t, "bob", "collection=notes")
	require.Eventually(t, func() bool { return env.hub.Len() == 2 }, 2*time.Second, 10*time.Millisecond)

	sendFeed(t, alice, "notes", entry("rcpt-1", "doc-1", 10, "node-a", map[string]any{"v": 2}))
	readEnvelope(t, alice)
	readEnvelope(t, bob)

	sendFeed(t, alice, "notes",
		entry("rcpt-1", "doc-1", 10, "node-a", map[string]any{"v": 2}), // повтор квитанции
		entry("rcpt-2", "doc-1", 3, "node-b", map[string]any{"v": 1}),  // устаревшее изменение
	)

	ack, err := readEnvelope(t, alice).DecodeFeedAck()
	require.NoError(t, err)
	require.Len(t, ack.Receipts, 2)
	assert.Equal(t, models.DeliveryAccepted, ack.Receipts[0].Status)
	assert.Equal(t, models.DeliveryConflict, ack.Receipts[1].Status)

	expectSilence(t, bob)
}

func TestGateHandler_CatchUp(t *testing.T) {
	env := startGate(t, GateConfig{CatchUpBatch: 2})
	ctx := context.Background()

	for i, id := range []models.EntityID{"doc-1", "doc-2", "doc-3"} {
		status, _, err := env.storage.ApplyEntry(ctx, "notes", models.ReceiptID("seed-"+string(id)),
			&models.FeedItem{EntityID: id, OriginTimestamp: int64(i + 1), OriginNode: "node-a", Payload: map[string]any{"n": i}})
		require.NoError(t, err)
		require.Equal(t, models.DeliveryAccepted, status)
	}

	tests := []struct {
		name      string
		query     string
		wantFeeds [][]models.EntityID
		wantSeqs  []int64
	}{
		{
			name:      "from scratch in batches",
			query:     "collection=notes",
			wantFeeds: [][]models.EntityID{{"doc-1", "doc-2"}, {"doc-3"}},
			wantSeqs:  []int64{2, 3},
		},
		{
			name:      "from checkpoint",
			query:     "collection=notes&since=2",
			wantFeeds: [][]models.EntityID{{"doc-3"}},
			wantSeqs:  []int64{3},
		},
		{
			name:  "up to date",
			query: "collection=notes&since=3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := env.dial(t, "bob", tt.query)

			for i, want := range tt.wantFeeds {
				feed, err := readEnvelope(t, conn).DecodeFeed()
				require.NoError(t, err)

				got := make([]models.EntityID, 0, len(feed.Entries))
				for _, e := range feed.Entries {
					got = append(got, e.EntityID)
				}
				assert.Equal(t, want, got)
				assert.Equal(t, tt.wantSeqs[i], feed.Sequence)
			}
			expectSilence(t, conn)
		})
	}
}

func TestGateHandler_IgnoresForeignAndMalformedFrames(t *testing.T) {
	env := startGate(t, GateConfig{})
	alice := env.dial(t, "alice", "collection=notes")

	require.NoError(t, alice.WriteMessage(ws.TextMessage, []byte("{broken")))
	sendFeed(t, alice, "todos", entry("rcpt-1", "doc-1", 1, "node-a", nil))

	sendAck(t, alice, "notes", models.Receipt{ReceiptID: "srv-1", EntityID: "doc-1", Status: models.DeliveryAccepted})

	// Первый ответ сессии относится к корректному фиду: мусор ответов не порождает
	sendFeed(t, alice, "notes", entry("rcpt-2", "doc-2", 1, "node-a", nil))
	reply, err := readEnvelope(t, alice).DecodeFeedAck()
	require.NoError(t, err)
	require.Len(t, reply.Receipts, 1)
	assert.Equal(t, models.ReceiptID("rcpt-2"), reply.Receipts[0].ReceiptID)

	_, err = env.storage.GetDocument(context.Background(), "todos", "doc-1")
	assert.Error(t, err)
}

func TestGateHandler_LeavesHubOnDisconnect(t *testing.T) {
	env := startGate(t, GateConfig{})

	conn := env.dial(t, "alice", "collection=notes")
	require.Eventually(t, func() bool { return env.hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, "")))
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool { return env.hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestGateHandler_RejectedAckClosesSessionForReplay(t *testing.T) {
	env := startGate(t, GateConfig{})

	alice := env.dial(t, "alice", "collection=notes")
	bob := env.dial(t, "bob", "collection=notes")
	require.Eventually(t, func() bool { return env.hub.Len() == 2 }, 2*time.Second, 10*time.Millisecond)

	receiptOf := func(feed *api.FeedMessage, status models.DeliveryStatus) models.Receipt {
		return models.Receipt{ReceiptID: feed.Entries[0].ReceiptID, EntityID: feed.Entries[0].EntityID, Status: status}
	}

	sendFeed(t, alice, "notes", entry("rcpt-1", "doc-1", 1, "node-a", map[string]any{"n": 1}))
	readEnvelope(t, alice)
	first, err := readEnvelope(t, bob).DecodeFeed()
	require.NoError(t, err)

	// Принятая рассылка сессию не трогает
	sendAck(t, bob, "notes", receiptOf(first, models.DeliveryAccepted))

	sendFeed(t, alice, "notes", entry("rcpt-2", "doc-2", 2, "node-a", map[string]any{"n": 2}))
	readEnvelope(t, alice)
	second, err := readEnvelope(t, bob).DecodeFeed()
	require.NoError(t, err)
	require.Equal(t, models.EntityID("doc-2"), second.Entries[0].EntityID)

	sendAck(t, bob, "notes", receiptOf(second, models.DeliveryRejected))

	require.NoError(t, bob.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = bob.ReadMessage()
	var closeErr *ws.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, ws.CloseTryAgainLater, closeErr.Code)

	require.Eventually(t, func() bool { return env.hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	// Рассылка позицию не сдвигала: переподключение с since=0 повторяет оба изменения
	again := env.dial(t, "bob", "collection=notes&since=0")
	replay, err := readEnvelope(t, again).DecodeFeed()
	require.NoError(t, err)
	require.Len(t, replay.Entries, 2)
	assert.Equal(t, models.EntityID("doc-1"), replay.Entries[0].EntityID)
	assert.Equal(t, models.EntityID("doc-2"), replay.Entries[1].EntityID)
	assert.Equal(t, int64(2), replay.Sequence)
}
