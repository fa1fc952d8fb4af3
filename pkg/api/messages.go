package api

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iudanet/docsync/internal/models"
)

// MessageType тип сообщения протокола DataGate
type MessageType string

const (
	// MessageFeed пакет изменений
	MessageFeed MessageType = "feed"
	// MessageFeedAck подтверждения по элементам фида
	MessageFeedAck MessageType = "feed_ack"
)

// ErrMalformedMessage сообщение не прошло декодирование или проверку
var ErrMalformedMessage = errors.New("malformed message")

// Envelope конверт любого сообщения, передаваемого по транспорту
type Envelope struct {
	Type       MessageType     `json:"type"`
	Collection string          `json:"collection"`
	Payload    json.RawMessage `json:"payload"`
}

// FeedEntry один элемент фида на проводе
type FeedEntry struct {
	Document        map[string]any   `json:"document,omitempty"`
	EntityID        models.EntityID  `json:"entity_id"`
	OriginNode      string           `json:"origin_node"`
	ReceiptID       models.ReceiptID `json:"receipt_id"`
	OriginTimestamp int64            `json:"origin_timestamp"`
	IsDelete        bool             `json:"is_delete"`
}

// FeedMessage пакет изменений.
// Sequence заполняет DataGate: максимальный номер изменения в пакете.
type FeedMessage struct {
	Entries  []FeedEntry `json:"entries"`
	Sequence int64       `json:"sequence,omitempty"`
}

// FeedAckMessage подтверждения по элементам фида
type FeedAckMessage struct {
	Receipts []models.Receipt `json:"receipts"`
}

// NewFeedEntry конвертирует элемент фида в формат протокола
func NewFeedEntry(id models.ReceiptID, item *models.FeedItem) FeedEntry {
	return FeedEntry{
		EntityID:        item.EntityID,
		IsDelete:        item.IsDelete,
		Document:        item.Payload,
		OriginTimestamp: item.OriginTimestamp,
		OriginNode:      item.OriginNode,
		ReceiptID:       id,
	}
}

// Item конвертирует элемент протокола в FeedItem
func (e *FeedEntry) Item() *models.FeedItem {
	return &models.FeedItem{
		EntityID:        e.EntityID,
		IsDelete:        e.IsDelete,
		Payload:         e.Document,
		OriginTimestamp: e.OriginTimestamp,
		OriginNode:      e.OriginNode,
	}
}

// NewEnvelope упаковывает payload в конверт
func NewEnvelope(msgType MessageType, collection string, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", msgType, err)
	}

	return &Envelope{
		Type:       msgType,
		Collection: collection,
		Payload:    data,
	}, nil
}

// DecodeEnvelope разбирает кадр транспорта.
// Неизвестные типы и битые кадры отсекаются здесь и до обработчиков не доходят.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch env.Type {
	case MessageFeed, MessageFeedAck:
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, env.Type)
	}

	if env.Collection == "" {
		return nil, fmt.Errorf("%w: empty collection", ErrMalformedMessage)
	}

	return &env, nil
}

// DecodeFeed извлекает FeedMessage из конверта
func (e *Envelope) DecodeFeed() (*FeedMessage, error) {
	if e.Type != MessageFeed {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrMalformedMessage, MessageFeed, e.Type)
	}

	var msg FeedMessage
	if err := json.Unmarshal(e.Payload, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	for i, entry := range msg.Entries {
		if entry.EntityID == "" || entry.ReceiptID == "" {
			return nil, fmt.Errorf("%w: entry %d has no entity or receipt id", ErrMalformedMessage, i)
		}
	}

	return &msg, nil
}

// DecodeFeedAck извлекает FeedAckMessage из конверта
func (e *Envelope) DecodeFeedAck() (*FeedAckMessage, error) {
	if e.Type != MessageFeedAck {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrMalformedMessage, MessageFeedAck, e.Type)
	}

	var msg FeedAckMessage
	if err := json.Unmarshal(e.Payload, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	for i, r := range msg.Receipts {
		if r.ReceiptID == "" || !r.Status.Valid() {
			return nil, fmt.Errorf("%w: receipt %d is invalid", ErrMalformedMessage, i)
		}
	}

	return &msg, nil
}
