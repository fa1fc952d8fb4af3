package replication

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/iudanet/docsync/pkg/api"
)

// ErrUnknownMessage тип сообщения не зарегистрирован в диспетчере
var ErrUnknownMessage = errors.New("unknown message type")

// Handler обрабатывает одно входящее сообщение протокола.
// Возвращенный конверт (если не nil) сессия отправляет пиру как ответ.
type Handler interface {
	Handle(ctx context.Context, env *api.Envelope) (*api.Envelope, error)
}

// HandlerFunc адаптер функции к Handler
type HandlerFunc func(ctx context.Context, env *api.Envelope) (*api.Envelope, error)

// Handle вызывает f(ctx, env)
func (f HandlerFunc) Handle(ctx context.Context, env *api.Envelope) (*api.Envelope, error) {
	return f(ctx, env)
}

// FeedAckHandler закрывает записи журнала по подтверждениям DataGate
type FeedAckHandler struct {
	collection *ReplicatedCollection
	logger     *slog.Logger
}

// NewFeedAckHandler создает обработчик подтверждений
func NewFeedAckHandler(rc *ReplicatedCollection, logger *slog.Logger) *FeedAckHandler {
	return &FeedAckHandler{
		collection: rc,
		logger:     logger,
	}
}

// Handle передает каждое подтверждение в WriteOff.
// Неизвестные ReceiptID не считаются ошибкой.
func (h *FeedAckHandler) Handle(ctx context.Context, env *api.Envelope) (*api.Envelope, error) {
	ack, err := env.DecodeFeedAck()
	if err != nil {
		return nil, err
	}

	var writtenOff, retained int
	for _, receipt := range ack.Receipts {
		switch h.collection.WriteOff(receipt) {
		case WrittenOff:
			writtenOff++
		case WriteOffRetained:
			retained++
		}
	}

	h.logger.Debug("Feed ack processed",
		"collection", env.Collection,
		"receipts", len(ack.Receipts),
		"written_off", writtenOff,
		"retained", retained)

	return nil, nil
}

// FeedHandler применяет входящий фид и отвечает подтверждением на каждый элемент
type FeedHandler struct {
	collection *ReplicatedCollection
	logger     *slog.Logger
}

// NewFeedHandler создает обработчик входящего фида
func NewFeedHandler(rc *ReplicatedCollection, logger *slog.Logger) *FeedHandler {
	return &FeedHandler{
		collection: rc,
		logger:     logger,
	}
}

// Handle применяет элементы фида и возвращает feed_ack
func (h *FeedHandler) Handle(ctx context.Context, env *api.Envelope) (*api.Envelope, error) {
	feed, err := env.DecodeFeed()
	if err != nil {
		return nil, err
	}

	receipts := h.collection.ApplyFeed(ctx, feed)

	h.logger.Debug("Inbound feed applied",
		"collection", env.Collection,
		"entries", len(feed.Entries),
		"sequence", feed.Sequence)

	return api.NewEnvelope(api.MessageFeedAck, env.Collection, api.FeedAckMessage{Receipts: receipts})
}

// Dispatcher направляет сообщения обработчикам по типу.
// Создается на сессию, глобального реестра нет.
type Dispatcher struct {
	handlers map[api.MessageType]Handler
}

// NewDispatcher создает пустой диспетчер
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[api.MessageType]Handler)}
}

// NewCollectionDispatcher диспетчер со стандартными обработчиками коллекции
func NewCollectionDispatcher(rc *ReplicatedCollection, logger *slog.Logger) *Dispatcher {
	d := NewDispatcher()
	d.Register(api.MessageFeed, NewFeedHandler(rc, logger))
	d.Register(api.MessageFeedAck, NewFeedAckHandler(rc, logger))
	return d
}

// Register регистрирует обработчик, заменяя прежний для этого типа
func (d *Dispatcher) Register(msgType api.MessageType, h Handler) {
	d.handlers[msgType] = h
}

// Dispatch вызывает обработчик сообщения
func (d *Dispatcher) Dispatch(ctx context.Context, env *api.Envelope) (*api.Envelope, error) {
	h, ok := d.handlers[env.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessage, env.Type)
	}
	return h.Handle(ctx, env)
}
