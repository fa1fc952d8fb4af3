package models

import "time"

// ReceiptID идентификатор доставки элемента фида (ULID)
type ReceiptID string

// DeliveryStatus статус обработки элемента фида на стороне пира
type DeliveryStatus string

const (
	// DeliveryAccepted элемент применен
	DeliveryAccepted DeliveryStatus = "accepted"
	// DeliveryRejected элемент не применен (ошибка хранилища), нужен повтор
	DeliveryRejected DeliveryStatus = "rejected"
	// DeliveryConflict пир уже разрешил конфликт, повтор не нужен
	DeliveryConflict DeliveryStatus = "conflict"
)

// IsTerminal возвращает true, если после такого статуса запись в журнале закрывается
func (s DeliveryStatus) IsTerminal() bool {
	return s == DeliveryAccepted || s == DeliveryConflict
}

// Valid проверяет, что статус входит в словарь протокола
func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryAccepted, DeliveryRejected, DeliveryConflict:
		return true
	}
	return false
}

// FeedItem единица изменения, отправляемая пиру.
// Строится из живого документа или из Tombstone (IsDelete = true).
type FeedItem struct {
	Payload         map[string]any `json:"payload,omitempty"` // Payload снимок документа, пусто для удаления
	EntityID        EntityID       `json:"entity_id"`
	OriginNode      string         `json:"origin_node"` // OriginNode узел-автор изменения
	OriginTimestamp Timestamp      `json:"origin_timestamp"`
	IsDelete        bool           `json:"is_delete"`
}

// Version возвращает версию сущности, которую несет элемент
func (f *FeedItem) Version() Version {
	return Version{Timestamp: f.OriginTimestamp, NodeID: f.OriginNode}
}

// Clone создает глубокую копию элемента фида
func (f *FeedItem) Clone() *FeedItem {
	return &FeedItem{
		EntityID:        f.EntityID,
		Payload:         cloneFields(f.Payload),
		OriginTimestamp: f.OriginTimestamp,
		OriginNode:      f.OriginNode,
		IsDelete:        f.IsDelete,
	}
}

// Receipt подтверждение пира по одному элементу фида
type Receipt struct {
	ReceiptID ReceiptID      `json:"receipt_id"`
	EntityID  EntityID       `json:"entity_id"`
	Status    DeliveryStatus `json:"status"`
}

// LedgerEntry запись журнала доставки, ожидающая подтверждения.
type LedgerEntry struct {
	SentAt    time.Time `json:"sent_at"`    // SentAt время последней отправки
	Item      FeedItem  `json:"item"`       // Item отправленный элемент
	ReceiptID ReceiptID `json:"receipt_id"` // ReceiptID ключ записи
	Attempts  int       `json:"attempts"`   // Attempts количество отправок и отказов
	Rejected  bool      `json:"rejected"`   // Rejected пир отклонил последнюю отправку
}
