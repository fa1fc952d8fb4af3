package models

// EntityID уникальный непрозрачный идентификатор реплицируемого документа.
// Назначается хранилищем при вставке и не меняется.
type EntityID string

// Timestamp Lamport timestamp последнего изменения документа.
// Используется для разрешения конфликтов по правилу LWW.
type Timestamp = int64

// Originator определяет источник изменения коллекции.
type Originator string

const (
	// OriginLocal изменение сделано приложением
	OriginLocal Originator = "local"
	// OriginReplicator изменение применено репликатором из удаленного фида
	OriginReplicator Originator = "replicator"
)

// Document представляет документ локальной коллекции.
// CRDT не хранит тела документов, они живут во внешнем хранилище.
type Document struct {
	Fields       map[string]any `json:"fields"`        // Fields содержимое документа
	ID           EntityID       `json:"id"`            // ID идентификатор документа
	NodeID       string         `json:"node_id"`       // NodeID узел, сделавший последнее изменение
	Source       Originator     `json:"source"`        // Source кто записал последнюю версию
	LastModified Timestamp      `json:"last_modified"` // LastModified Lamport timestamp последнего изменения
}

// IsNewerThan сравнивает версии документа по правилу LWW:
// сначала LastModified, при равенстве NodeID (лексикографически).
func (d *Document) IsNewerThan(other *Document) bool {
	return versionNewer(d.LastModified, d.NodeID, other.LastModified, other.NodeID)
}

// Clone создает глубокую копию документа
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}

	return &Document{
		ID:           d.ID,
		Fields:       cloneFields(d.Fields),
		LastModified: d.LastModified,
		NodeID:       d.NodeID,
		Source:       d.Source,
	}
}

// cloneFields копирует вложенные map и slice, скалярные значения копируются как есть
func cloneFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}

	result := make(map[string]any, len(fields))
	for k, v := range fields {
		result[k] = cloneValue(v)
	}

	return result
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneFields(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return val
	}
}

// versionNewer сравнивает пары (timestamp, nodeID).
// При равных timestamp выигрывает больший nodeID для детерминизма.
func versionNewer(ts Timestamp, node string, otherTS Timestamp, otherNode string) bool {
	if ts > otherTS {
		return true
	}
	if ts < otherTS {
		return false
	}
	return node > otherNode
}
