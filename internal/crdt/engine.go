package crdt

import (
	"hash/fnv"
	"log/slog"
	"sort"
	"sync"

	"github.com/iudanet/docsync/internal/models"
)

const shardCount = 32

//go:generate moq -out journal_mock.go . Journal

// Journal сохраняет изменения маркеров удаления.
// Вызывается под блокировкой шарда, поэтому порядок записей по одному ключу сохраняется.
type Journal interface {
	PutTombstone(t models.Tombstone) error
	DeleteTombstones(ids []models.EntityID) error
}

// shard защищает маркеры и известные версии части ключей.
// Маркер и версия одного ключа всегда лежат в одном шарде,
// поэтому Merge и CreateTombstone по ключу линеаризуемы.
type shard struct {
	tombstones *tombstoneSet
	versions   map[models.EntityID]models.Version
	mu         sync.RWMutex
}

// Engine реплицируемое состояние коллекции (CRDT).
// Хранит delete-set и последние известные версии сущностей, тела документов не дублирует.
type Engine struct {
	journal Journal
	logger  *slog.Logger
	shards  [shardCount]*shard
}

// Option настраивает Engine
type Option func(*Engine)

// WithJournal подключает постоянное хранилище маркеров
func WithJournal(j Journal) Option {
	return func(e *Engine) {
		e.journal = j
	}
}

// WithLogger задает логгер для ошибок журнала
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// State снимок состояния CRDT, отсортированный по ID
type State struct {
	Versions   map[models.EntityID]models.Version
	Tombstones []models.Tombstone
}

// NewEngine создает пустое состояние
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		logger: slog.New(slog.DiscardHandler),
	}
	for i := range e.shards {
		e.shards[i] = &shard{
			tombstones: newTombstoneSet(),
			versions:   make(map[models.EntityID]models.Version),
		}
	}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

func (e *Engine) shardFor(id models.EntityID) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return e.shards[h.Sum32()%shardCount]
}

// CreateTombstone фиксирует локальное удаление сущности.
// Если существующий маркер не старше, вызов ничего не меняет.
// Возвращает true, если маркер создан или продвинут.
func (e *Engine) CreateTombstone(id models.EntityID, deleteTimestamp models.Timestamp) bool {
	return e.putTombstone(models.Tombstone{
		ID:              id,
		DeleteTimestamp: deleteTimestamp,
		Source:          models.OriginLocal,
	})
}

func (e *Engine) putTombstone(t models.Tombstone) bool {
	sh := e.shardFor(t.ID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	return e.putLocked(sh, t)
}

func (e *Engine) putLocked(sh *shard, t models.Tombstone) bool {
	if !sh.tombstones.put(t) {
		return false
	}

	if e.journal != nil {
		if err := e.journal.PutTombstone(t); err != nil {
			e.logger.Error("Failed to persist tombstone",
				"entity_id", t.ID,
				"delete_timestamp", t.DeleteTimestamp,
				"error", err)
		}
	}

	return true
}

// Merge сливает входящий элемент фида с состоянием.
//   - удаление: маркер создается или продвигается; Removed, если известная версия
//     не новее удаления (удаление выигрывает при равенстве), иначе Stale
//   - вставка: маркер с DeleteTimestamp >= OriginTimestamp дает Suppressed;
//     известная версия новее входящей дает Stale; иначе Applied
func (e *Engine) Merge(item *models.FeedItem) models.MergeOutcome {
	sh := e.shardFor(item.EntityID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	known, hasVersion := sh.versions[item.EntityID]

	if item.IsDelete {
		e.putLocked(sh, models.Tombstone{
			ID:              item.EntityID,
			DeleteTimestamp: item.OriginTimestamp,
			Source:          models.OriginReplicator,
		})

		if hasVersion && known.Timestamp > item.OriginTimestamp {
			return models.MergeStale
		}
		return models.MergeRemoved
	}

	if t, ok := sh.tombstones.get(item.EntityID); ok && t.DeleteTimestamp >= item.OriginTimestamp {
		return models.MergeSuppressed
	}

	incoming := item.Version()
	if hasVersion && incoming != known && !incoming.IsNewerThan(known) {
		return models.MergeStale
	}

	// Повторная доставка той же версии дает тот же Applied
	sh.versions[item.EntityID] = incoming
	return models.MergeApplied
}

// Observe сообщает движку версию документа, которая уже лежит в коллекции.
// Версия продвигается только вперед.
func (e *Engine) Observe(id models.EntityID, v models.Version) {
	sh := e.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if known, ok := sh.versions[id]; ok && !v.IsNewerThan(known) {
		return
	}
	sh.versions[id] = v
}

// HasTombstone проверяет наличие маркера удаления
func (e *Engine) HasTombstone(id models.EntityID) bool {
	_, ok := e.Tombstone(id)
	return ok
}

// TombstoneTimestamp возвращает время удаления, если маркер есть
func (e *Engine) TombstoneTimestamp(id models.EntityID) (models.Timestamp, bool) {
	t, ok := e.Tombstone(id)
	return t.DeleteTimestamp, ok
}

// Tombstone возвращает маркер удаления сущности
func (e *Engine) Tombstone(id models.EntityID) (models.Tombstone, bool) {
	sh := e.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	return sh.tombstones.get(id)
}

// LocalTombstonesAfter возвращает локальные маркеры новее since,
// отсортированные по времени удаления. Используется при сборке исходящего фида.
func (e *Engine) LocalTombstonesAfter(since models.Timestamp) []models.Tombstone {
	var result []models.Tombstone
	for _, sh := range e.shards {
		sh.mu.RLock()
		result = sh.tombstones.appendTo(result, func(t models.Tombstone) bool {
			return t.Source == models.OriginLocal && t.DeleteTimestamp > since
		})
		sh.mu.RUnlock()
	}

	sortTombstones(result)
	return result
}

// Restore загружает ранее сохраненные маркеры без записи в журнал
func (e *Engine) Restore(tombstones []models.Tombstone) {
	for _, t := range tombstones {
		sh := e.shardFor(t.ID)
		sh.mu.Lock()
		sh.tombstones.put(t)
		sh.mu.Unlock()
	}
}

// CollectGarbage удаляет маркеры с DeleteTimestamp < horizon.
// Выбор horizon (например, момент, который видели все пиры) остается за вызывающим.
func (e *Engine) CollectGarbage(horizon models.Timestamp) int {
	total := 0
	for _, sh := range e.shards {
		sh.mu.Lock()
		removed := sh.tombstones.purgeBefore(horizon)
		if len(removed) > 0 && e.journal != nil {
			if err := e.journal.DeleteTombstones(removed); err != nil {
				e.logger.Error("Failed to purge tombstones from journal",
					"count", len(removed),
					"error", err)
			}
		}
		sh.mu.Unlock()
		total += len(removed)
	}

	return total
}

// Snapshot возвращает копию состояния.
// Атомарность между шардами не гарантируется.
func (e *Engine) Snapshot() State {
	state := State{Versions: make(map[models.EntityID]models.Version)}
	for _, sh := range e.shards {
		sh.mu.RLock()
		state.Tombstones = sh.tombstones.appendTo(state.Tombstones, nil)
		for id, v := range sh.versions {
			state.Versions[id] = v
		}
		sh.mu.RUnlock()
	}

	sort.Slice(state.Tombstones, func(i, j int) bool {
		return state.Tombstones[i].ID < state.Tombstones[j].ID
	})
	return state
}
