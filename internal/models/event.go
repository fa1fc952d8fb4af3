package models

// EventType тип события изменения коллекции
type EventType int

const (
	EventInsert EventType = iota + 1
	EventUpdate
	EventRemove
	EventIndexStart
	EventIndexEnd
)

// String возвращает имя события для логов
func (t EventType) String() string {
	switch t {
	case EventInsert:
		return "insert"
	case EventUpdate:
		return "update"
	case EventRemove:
		return "remove"
	case EventIndexStart:
		return "index_start"
	case EventIndexEnd:
		return "index_end"
	default:
		return "unknown"
	}
}

// ChangeEvent событие изменения локальной коллекции.
// Originator обязателен: по нему слушатель отсекает собственные записи репликатора.
type ChangeEvent struct {
	Item         *Document
	Originator   Originator
	Type         EventType
	LastModified Timestamp
}
