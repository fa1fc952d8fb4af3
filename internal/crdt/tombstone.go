package crdt

import (
	"sort"

	"github.com/iudanet/docsync/internal/models"
)

// tombstoneSet хранилище маркеров удаления.
// Не потокобезопасно: синхронизацию обеспечивает шард Engine.
type tombstoneSet struct {
	items map[models.EntityID]models.Tombstone
}

func newTombstoneSet() *tombstoneSet {
	return &tombstoneSet{items: make(map[models.EntityID]models.Tombstone)}
}

// put добавляет маркер или продвигает существующий.
// Возвращает false, если существующий маркер не старше нового (LWW по времени удаления).
func (s *tombstoneSet) put(t models.Tombstone) bool {
	existing, exists := s.items[t.ID]
	if exists && existing.DeleteTimestamp >= t.DeleteTimestamp {
		return false
	}

	s.items[t.ID] = t
	return true
}

func (s *tombstoneSet) get(id models.EntityID) (models.Tombstone, bool) {
	t, ok := s.items[id]
	return t, ok
}

// purgeBefore удаляет маркеры старше horizon и возвращает их идентификаторы
func (s *tombstoneSet) purgeBefore(horizon models.Timestamp) []models.EntityID {
	var removed []models.EntityID
	for id, t := range s.items {
		if t.DeleteTimestamp < horizon {
			delete(s.items, id)
			removed = append(removed, id)
		}
	}
	return removed
}

func (s *tombstoneSet) appendTo(dst []models.Tombstone, keep func(models.Tombstone) bool) []models.Tombstone {
	for _, t := range s.items {
		if keep == nil || keep(t) {
			dst = append(dst, t)
		}
	}
	return dst
}

// sortTombstones упорядочивает маркеры по времени удаления, затем по ID
func sortTombstones(items []models.Tombstone) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].DeleteTimestamp != items[j].DeleteTimestamp {
			return items[i].DeleteTimestamp < items[j].DeleteTimestamp
		}
		return items[i].ID < items[j].ID
	})
}
