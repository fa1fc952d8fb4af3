package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/internal/server/storage"
	"github.com/iudanet/docsync/pkg/api"
)

// GateConfig параметры websocket-сессий DataGate
type GateConfig struct {
	CatchUpBatch   int           // изменений в одном сообщении догоняющего фида
	SendBuffer     int           // кадров в очереди отправки одной сессии
	WriteWait      time.Duration // дедлайн записи кадра
	MaxMessageSize int64         // максимальный размер входящего кадра
}

// DefaultGateConfig значения по умолчанию
func DefaultGateConfig() GateConfig {
	return GateConfig{
		CatchUpBatch:   100,
		SendBuffer:     256,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 4 << 20,
	}
}

// GateHandler обслуживает GET /api/v1/gate: websocket-сессию реплики.
// Входящий фид применяется к хранилищу с ответом feed_ack, принятые изменения
// рассылаются другим сессиям коллекции. При подключении реплика получает
// изменения с seq > since.
type GateHandler struct {
	logger   *slog.Logger
	storage  storage.FeedStorage
	hub      *Hub
	upgrader ws.Upgrader
	cfg      GateConfig
}

// NewGateHandler создает handler websocket-сессий
func NewGateHandler(logger *slog.Logger, feedStorage storage.FeedStorage, hub *Hub, cfg GateConfig) *GateHandler {
	defaults := DefaultGateConfig()
	if cfg.CatchUpBatch <= 0 {
		cfg.CatchUpBatch = defaults.CatchUpBatch
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaults.SendBuffer
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = defaults.WriteWait
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaults.MaxMessageSize
	}

	return &GateHandler{
		logger:  logger,
		storage: feedStorage,
		hub:     hub,
		cfg:     cfg,
	}
}

// ServeHTTP обрабатывает GET /api/v1/gate?collection=name&since=seq
func (h *GateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// replica_id устанавливает AuthMiddleware
	replicaID, ok := GetReplicaID(r.Context())
	if !ok {
		h.logger.Error("Replica ID not found in context")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	collection := r.URL.Query().Get("collection")
	if collection == "" {
		http.Error(w, "collection parameter is required", http.StatusBadRequest)
		return
	}

	var since int64
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		var err error
		since, err = strconv.ParseInt(sinceStr, 10, 64)
		if err != nil || since < 0 {
			h.logger.Warn("Invalid since parameter", "since", sinceStr)
			http.Error(w, "Invalid since parameter", http.StatusBadRequest)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrader уже ответил клиенту
		h.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(h.cfg.MaxMessageSize)

	logger := h.logger.With("replica_id", replicaID, "collection", collection)
	p := newPeer(conn, replicaID, collection, h.cfg.SendBuffer, h.cfg.WriteWait, logger)

	// Подписка до догоняющего фида, иначе изменения между ними потерялись бы
	h.hub.join(p)
	defer func() {
		h.hub.leave(p)
		p.close()
		p.wait()
		logger.Info("Gate session closed")
	}()

	logger.Info("Gate session opened", "since", since)

	if err := h.catchUp(r, p, since); err != nil {
		logger.Error("Catch-up failed", "error", err)
		return
	}

	h.readLoop(r, p)
}

// catchUp отправляет изменения коллекции после since пакетами
func (h *GateHandler) catchUp(r *http.Request, p *peer, since int64) error {
	for {
		changes, err := h.storage.ChangesSince(r.Context(), p.collection, since, h.cfg.CatchUpBatch)
		if err != nil {
			return err
		}
		if len(changes) == 0 {
			return nil
		}

		last := changes[len(changes)-1].Seq
		data, err := encodeFeed(p.collection, changes, last)
		if err != nil {
			return err
		}
		if !p.enqueue(data) {
			return nil
		}

		p.logger.Debug("Catch-up feed queued", "entries", len(changes), "sequence", last)
		since = last
	}
}

func (h *GateHandler) readLoop(r *http.Request, p *peer) {
	for {
		messageType, data, err := p.conn.ReadMessage()
		if err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
				p.logger.Warn("Gate session read failed", "error", err)
			}
			return
		}
		if messageType != ws.TextMessage {
			continue
		}

		env, err := api.DecodeEnvelope(data)
		if err != nil {
			p.logger.Warn("Malformed frame dropped", "error", err)
			continue
		}
		if env.Collection != p.collection {
			p.logger.Warn("Message for another collection ignored", "got_collection", env.Collection)
			continue
		}

		switch env.Type {
		case api.MessageFeed:
			h.handleFeed(r, p, env)
		case api.MessageFeedAck:
			h.handleAck(p, env)
		}
	}
}

// handleFeed применяет элементы фида, отвечает квитанциями и рассылает изменения
func (h *GateHandler) handleFeed(r *http.Request, p *peer, env *api.Envelope) {
	feed, err := env.DecodeFeed()
	if err != nil {
		p.logger.Warn("Malformed feed dropped", "error", err)
		return
	}

	receipts := make([]models.Receipt, 0, len(feed.Entries))
	changes := make([]storage.Change, 0, len(feed.Entries))

	for i := range feed.Entries {
		entry := &feed.Entries[i]

		status, change, err := h.storage.ApplyEntry(r.Context(), p.collection, entry.ReceiptID, entry.Item())
		if err != nil {
			p.logger.Error("Failed to apply feed entry", "entity_id", entry.EntityID, "error", err)
			status = models.DeliveryRejected
		}
		if change != nil {
			changes = append(changes, *change)
		}

		receipts = append(receipts, models.Receipt{
			ReceiptID: entry.ReceiptID,
			EntityID:  entry.EntityID,
			Status:    status,
		})
	}

	ack, err := api.NewEnvelope(api.MessageFeedAck, p.collection, api.FeedAckMessage{Receipts: receipts})
	if err != nil {
		p.logger.Error("Failed to encode feed ack", "error", err)
		return
	}
	data, err := json.Marshal(ack)
	if err != nil {
		p.logger.Error("Failed to encode feed ack", "error", err)
		return
	}
	p.enqueue(data)

	p.logger.Debug("Feed applied", "entries", len(feed.Entries), "changes", len(changes))

	if len(changes) == 0 {
		return
	}

	// Рассылка без sequence: позицию реплика сдвигает только по догоняющему фиду
	out, err := encodeFeed(p.collection, changes, 0)
	if err != nil {
		p.logger.Error("Failed to encode broadcast feed", "error", err)
		return
	}
	delivered := h.hub.broadcast(p, p.collection, out)
	p.logger.Debug("Changes broadcast", "changes", len(changes), "sessions", delivered)
}

// handleAck разбирает квитанции реплики на рассылку и догоняющий фид.
// Rejected означает сбой хранилища реплики: сессия закрывается, и при
// переподключении реплика получит отклоненные изменения заново с позиции since,
// которую рассылка без sequence не сдвигала.
func (h *GateHandler) handleAck(p *peer, env *api.Envelope) {
	ack, err := env.DecodeFeedAck()
	if err != nil {
		p.logger.Warn("Malformed feed ack dropped", "error", err)
		return
	}

	rejected := 0
	for _, receipt := range ack.Receipts {
		if receipt.Status == models.DeliveryRejected {
			rejected++
		}
	}
	if rejected == 0 {
		return
	}

	p.logger.Warn("Replica rejected feed entries, closing session for replay",
		"rejected", rejected,
		"receipts", len(ack.Receipts))
	p.closeWith(ws.CloseTryAgainLater, "entries rejected, reconnect to replay")
}

// encodeFeed строит кадр фида с новыми receipt id DataGate
func encodeFeed(collection string, changes []storage.Change, sequence int64) ([]byte, error) {
	feed := api.FeedMessage{
		Entries:  make([]api.FeedEntry, 0, len(changes)),
		Sequence: sequence,
	}
	for i := range changes {
		id := models.ReceiptID(ulid.Make().String())
		feed.Entries = append(feed.Entries, api.NewFeedEntry(id, &changes[i].Item))
	}

	env, err := api.NewEnvelope(api.MessageFeed, collection, feed)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}
