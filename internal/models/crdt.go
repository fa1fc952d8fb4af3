package models

// Tombstone маркер удаления сущности.
// Хранится, чтобы устаревшие вставки не воскрешали удаленный документ.
type Tombstone struct {
	ID              EntityID   `json:"id"`               // ID удаленной сущности
	Source          Originator `json:"source"`           // Source local - удаление сделано здесь, replicator - пришло от пира
	DeleteTimestamp Timestamp  `json:"delete_timestamp"` // DeleteTimestamp время удаления
}

// Version последнее известное состояние сущности
type Version struct {
	NodeID    string    `json:"node_id"`
	Timestamp Timestamp `json:"timestamp"`
}

// IsNewerThan сравнивает версии по (Timestamp, NodeID)
func (v Version) IsNewerThan(other Version) bool {
	return versionNewer(v.Timestamp, v.NodeID, other.Timestamp, other.NodeID)
}

// MergeOutcome результат слияния входящего элемента фида с состоянием CRDT.
type MergeOutcome int

const (
	// MergeApplied документ нужно записать в коллекцию
	MergeApplied MergeOutcome = iota + 1
	// MergeSuppressed локальное удаление выиграло, документа быть не должно
	MergeSuppressed
	// MergeRemoved входящее удаление принято, документ нужно удалить
	MergeRemoved
	// MergeStale известное состояние новее входящего, ничего не делаем
	MergeStale
)

// String возвращает имя исхода для логов
func (o MergeOutcome) String() string {
	switch o {
	case MergeApplied:
		return "applied"
	case MergeSuppressed:
		return "suppressed"
	case MergeRemoved:
		return "removed"
	case MergeStale:
		return "stale"
	default:
		return "unknown"
	}
}
