package replication

import (
	"log/slog"

	"github.com/iudanet/docsync/internal/collection"
	"github.com/iudanet/docsync/internal/models"
)

//go:generate moq -out tombstone_creator_mock.go . TombstoneCreator

// TombstoneCreator часть CRDT, нужная слушателю изменений
type TombstoneCreator interface {
	CreateTombstone(id models.EntityID, deleteTimestamp models.Timestamp) bool
}

// ChangeListener превращает локальные удаления в маркеры CRDT.
// События, записанные самим репликатором, отбрасываются безусловно,
// иначе применение удаленного изменения снова уходило бы в фид.
type ChangeListener struct {
	crdt   TombstoneCreator
	logger *slog.Logger
}

var _ collection.Listener = (*ChangeListener)(nil)

// NewChangeListener создает слушателя изменений коллекции
func NewChangeListener(crdt TombstoneCreator, logger *slog.Logger) *ChangeListener {
	return &ChangeListener{
		crdt:   crdt,
		logger: logger,
	}
}

// OnEvent обрабатывает событие коллекции
func (l *ChangeListener) OnEvent(event *models.ChangeEvent) {
	if event == nil {
		return
	}

	// Отбрасываем изменения, сделанные репликатором
	if event.Originator == models.OriginReplicator {
		return
	}

	switch event.Type {
	case models.EventRemove:
		l.handleRemove(event)
	case models.EventInsert, models.EventUpdate, models.EventIndexStart, models.EventIndexEnd:
		// Вставки и обновления попадают в фид при чтении текущего состояния коллекции
	}
}

func (l *ChangeListener) handleRemove(event *models.ChangeEvent) {
	if event.Item == nil || event.Item.ID == "" {
		l.logger.Warn("Remove event without document ignored")
		return
	}

	deleteTime := event.LastModified
	if deleteTime == 0 {
		deleteTime = event.Item.LastModified
	}

	if l.crdt.CreateTombstone(event.Item.ID, deleteTime) {
		l.logger.Debug("Tombstone created",
			"entity_id", event.Item.ID,
			"delete_timestamp", deleteTime)
	}
}
