// Package replication связывает локальную коллекцию с DataGate: захват
// локальных удалений, сборку исходящего фида, журнал доставки, применение
// входящих изменений и обработчики сообщений протокола.
package replication

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/iudanet/docsync/internal/collection"
	"github.com/iudanet/docsync/internal/crdt"
	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/pkg/api"
)

//go:generate moq -out checkpoint_storage_mock.go . CheckpointStorage

// CheckpointStorage хранит позиции синхронизации коллекции
type CheckpointStorage interface {
	// GetOutboundCheckpoint returns the highest local timestamp already recorded in the ledger
	GetOutboundCheckpoint(ctx context.Context) (int64, error)
	SaveOutboundCheckpoint(ctx context.Context, ts int64) error

	// GetRemoteSequence returns the highest DataGate sequence applied locally
	GetRemoteSequence(ctx context.Context) (int64, error)
	SaveRemoteSequence(ctx context.Context, seq int64) error
}

// Clock часы, которые продвигаются входящими изменениями
type Clock interface {
	Update(remote models.Timestamp) models.Timestamp
	NodeID() string
}

// Config параметры репликации одной коллекции
type Config struct {
	Name             string        // имя коллекции на стороне DataGate
	BatchSize        int           // максимум элементов в одном сообщении фида
	RetryTimeout     time.Duration // через сколько неподтвержденный элемент отправляется снова
	MaxRetryInterval time.Duration // верхняя граница экспоненциальной паузы между повторами
}

// Dependencies внешние компоненты ReplicatedCollection
type Dependencies struct {
	Store       collection.Store
	Engine      *crdt.Engine
	Ledger      *FeedLedger
	Clock       Clock
	Checkpoints CheckpointStorage
	Logger      *slog.Logger
	Now         func() time.Time
}

// Stats счетчики работы репликатора
type Stats struct {
	Pushed    int64 // элементов отправлено впервые
	Resent    int64 // повторных отправок
	Applied   int64 // входящих элементов применено
	Conflicts int64 // входящих элементов отброшено как конфликт
	Rejected  int64 // входящих элементов не применено из-за ошибки хранилища
	Acked     int64 // подтверждений закрыли запись журнала
}

// ReplicatedCollection сессионный оркестратор одной коллекции:
// собирает исходящий фид, ведет журнал доставки и применяет входящие изменения.
type ReplicatedCollection struct {
	store       collection.Store
	engine      *crdt.Engine
	ledger      *FeedLedger
	clock       Clock
	checkpoints CheckpointStorage
	logger      *slog.Logger
	now         func() time.Time
	unsubscribe func()
	cfg         Config

	pushed, resent, applied, conflicts, rejected, acked atomic.Int64

	outbound sync.Mutex // сериализует чтение-изменение outbound checkpoint
}

// NewReplicatedCollection создает оркестратор и подписывает ChangeListener на коллекцию
func NewReplicatedCollection(cfg Config, deps Dependencies) *ReplicatedCollection {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	rc := &ReplicatedCollection{
		store:       deps.Store,
		engine:      deps.Engine,
		ledger:      deps.Ledger,
		clock:       deps.Clock,
		checkpoints: deps.Checkpoints,
		logger:      deps.Logger.With("collection", cfg.Name),
		now:         deps.Now,
		cfg:         cfg,
	}

	listener := NewChangeListener(deps.Engine, rc.logger)
	rc.unsubscribe = deps.Store.Subscribe(listener)

	return rc
}

// Close отписывает слушателя. Журнал и маркеры остаются нетронутыми.
func (rc *ReplicatedCollection) Close() {
	rc.unsubscribe()
}

// Name возвращает имя коллекции
func (rc *ReplicatedCollection) Name() string {
	return rc.cfg.Name
}

// Ledger возвращает журнал доставки коллекции
func (rc *ReplicatedCollection) Ledger() *FeedLedger {
	return rc.ledger
}

// Stats возвращает снимок счетчиков
func (rc *ReplicatedCollection) Stats() Stats {
	return Stats{
		Pushed:    rc.pushed.Load(),
		Resent:    rc.resent.Load(),
		Applied:   rc.applied.Load(),
		Conflicts: rc.conflicts.Load(),
		Rejected:  rc.rejected.Load(),
		Acked:     rc.acked.Load(),
	}
}

// outboundCandidate локальное изменение, которое может попасть в фид
type outboundCandidate struct {
	item models.FeedItem
	ts   models.Timestamp
}

// BuildOutboundBatch собирает до maxItems локальных изменений после checkpoint,
// старые первыми. Для каждой сущности CRDT решает, отправлять маркер удаления
// или снимок документа. Каждый элемент записывается в журнал до возврата,
// поэтому сбой отправки не теряет его: повтор выполнит Sweep.
//
// Изменения новее watermark хранилища не берутся: их запись еще не завершена,
// и checkpoint не должен обогнать их.
func (rc *ReplicatedCollection) BuildOutboundBatch(ctx context.Context, maxItems int) ([]models.LedgerEntry, error) {
	rc.outbound.Lock()
	defer rc.outbound.Unlock()

	watermark := rc.store.Watermark()

	checkpoint, err := rc.checkpoints.GetOutboundCheckpoint(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get outbound checkpoint: %w", err)
	}

	docs, err := rc.store.ChangedSince(ctx, checkpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to get local changes: %w", err)
	}

	// По одной (самой свежей) записи на сущность
	latest := make(map[models.EntityID]outboundCandidate)
	offer := func(c outboundCandidate) {
		if c.ts > watermark {
			return
		}
		if prev, ok := latest[c.item.EntityID]; ok && prev.ts > c.ts {
			return
		}
		latest[c.item.EntityID] = c
	}

	for _, doc := range docs {
		if ts, ok := rc.engine.TombstoneTimestamp(doc.ID); ok && ts >= doc.LastModified {
			offer(rc.tombstoneCandidate(doc.ID, ts))
			continue
		}
		offer(outboundCandidate{
			ts: doc.LastModified,
			item: models.FeedItem{
				EntityID:        doc.ID,
				Payload:         doc.Fields,
				OriginTimestamp: doc.LastModified,
				OriginNode:      doc.NodeID,
			},
		})
	}

	for _, t := range rc.engine.LocalTombstonesAfter(checkpoint) {
		offer(rc.tombstoneCandidate(t.ID, t.DeleteTimestamp))
	}

	candidates := make([]outboundCandidate, 0, len(latest))
	for _, c := range latest {
		candidates = append(candidates, c)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].ts != candidates[j].ts {
			return candidates[i].ts < candidates[j].ts
		}
		return candidates[i].item.EntityID < candidates[j].item.EntityID
	})

	candidates = cutOnTimestampBoundary(candidates, maxItems)
	if len(candidates) == 0 {
		return nil, nil
	}

	entries := make([]models.LedgerEntry, 0, len(candidates))
	for i := range candidates {
		id := rc.ledger.Record(&candidates[i].item)
		entry, _ := rc.ledger.Get(id)
		entries = append(entries, entry)
	}

	newCheckpoint := candidates[len(candidates)-1].ts
	if err := rc.checkpoints.SaveOutboundCheckpoint(ctx, newCheckpoint); err != nil {
		// Элементы уже в журнале; при следующей сборке они попадут в фид повторно,
		// что допустимо для доставки at-least-once
		rc.logger.Warn("Failed to save outbound checkpoint", "checkpoint", newCheckpoint, "error", err)
	}

	rc.pushed.Add(int64(len(entries)))
	return entries, nil
}

func (rc *ReplicatedCollection) tombstoneCandidate(id models.EntityID, ts models.Timestamp) outboundCandidate {
	return outboundCandidate{
		ts: ts,
		item: models.FeedItem{
			EntityID:        id,
			IsDelete:        true,
			OriginTimestamp: ts,
			OriginNode:      rc.clock.NodeID(),
		},
	}
}

// cutOnTimestampBoundary ограничивает пакет maxItems элементами, не разрывая
// группу с одинаковым timestamp: иначе checkpoint пропустил бы остаток группы.
// Если группа одна и больше лимита, она отправляется целиком.
func cutOnTimestampBoundary(candidates []outboundCandidate, maxItems int) []outboundCandidate {
	if maxItems <= 0 || len(candidates) <= maxItems {
		return candidates
	}

	cut := maxItems
	for cut > 0 && candidates[cut].ts == candidates[cut-1].ts {
		cut--
	}
	if cut == 0 {
		cut = maxItems
		for cut < len(candidates) && candidates[cut].ts == candidates[cut-1].ts {
			cut++
		}
	}

	return candidates[:cut]
}

// ApplyInbound применяет входящий элемент фида к локальной коллекции.
// Решение CRDT фиксируется до записи в хранилище, поэтому повтор того же
// элемента после ошибки безопасен. Записи помечаются источником replicator,
// и ChangeListener их игнорирует.
func (rc *ReplicatedCollection) ApplyInbound(ctx context.Context, item *models.FeedItem) models.DeliveryStatus {
	local, err := rc.store.Get(ctx, item.EntityID)
	switch {
	case err == nil:
		rc.engine.Observe(local.ID, models.Version{Timestamp: local.LastModified, NodeID: local.NodeID})
	case errors.Is(err, collection.ErrDocumentNotFound):
		local = nil
	default:
		rc.logger.Error("Failed to read local document", "entity_id", item.EntityID, "error", err)
		return rc.reject()
	}

	rc.clock.Update(item.OriginTimestamp)

	outcome := rc.engine.Merge(item)
	rc.logger.Debug("Inbound item merged",
		"entity_id", item.EntityID,
		"origin_timestamp", item.OriginTimestamp,
		"outcome", outcome)

	switch outcome {
	case models.MergeApplied:
		doc := &models.Document{
			ID:           item.EntityID,
			Fields:       item.Payload,
			LastModified: item.OriginTimestamp,
			NodeID:       item.OriginNode,
		}
		if _, err := rc.store.Upsert(ctx, doc, models.OriginReplicator); err != nil {
			rc.logger.Error("Failed to apply inbound document", "entity_id", item.EntityID, "error", err)
			return rc.reject()
		}
		rc.applied.Add(1)
		return models.DeliveryAccepted

	case models.MergeRemoved:
		if err := rc.removeCovered(ctx, local, item.OriginTimestamp); err != nil {
			return rc.reject()
		}
		rc.applied.Add(1)
		return models.DeliveryAccepted

	case models.MergeSuppressed:
		deleteTime, _ := rc.engine.TombstoneTimestamp(item.EntityID)
		if err := rc.removeCovered(ctx, local, deleteTime); err != nil {
			return rc.reject()
		}
		rc.conflicts.Add(1)
		return models.DeliveryConflict

	default:
		rc.conflicts.Add(1)
		return models.DeliveryConflict
	}
}

func (rc *ReplicatedCollection) reject() models.DeliveryStatus {
	rc.rejected.Add(1)
	return models.DeliveryRejected
}

// removeCovered удаляет локальный документ, если удаление не старше его версии
func (rc *ReplicatedCollection) removeCovered(ctx context.Context, local *models.Document, deleteTime models.Timestamp) error {
	if local == nil || local.LastModified > deleteTime {
		return nil
	}

	err := rc.store.Delete(ctx, local.ID, models.OriginReplicator)
	if err != nil && !errors.Is(err, collection.ErrDocumentNotFound) {
		rc.logger.Error("Failed to remove suppressed document", "entity_id", local.ID, "error", err)
		return err
	}
	return nil
}

// ApplyFeed применяет входящий пакет и возвращает подтверждение на каждый элемент.
// Позиция DataGate сохраняется, только если ни один элемент не отклонен,
// иначе при переподключении пакет будет получен снова.
func (rc *ReplicatedCollection) ApplyFeed(ctx context.Context, feed *api.FeedMessage) []models.Receipt {
	receipts := make([]models.Receipt, 0, len(feed.Entries))
	rejected := false

	for i := range feed.Entries {
		entry := &feed.Entries[i]
		status := rc.ApplyInbound(ctx, entry.Item())
		if status == models.DeliveryRejected {
			rejected = true
		}
		receipts = append(receipts, models.Receipt{
			ReceiptID: entry.ReceiptID,
			EntityID:  entry.EntityID,
			Status:    status,
		})
	}

	if feed.Sequence > 0 && !rejected {
		current, err := rc.checkpoints.GetRemoteSequence(ctx)
		if err == nil && feed.Sequence > current {
			err = rc.checkpoints.SaveRemoteSequence(ctx, feed.Sequence)
		}
		if err != nil {
			rc.logger.Warn("Failed to save remote sequence", "sequence", feed.Sequence, "error", err)
		}
	}

	return receipts
}

// WriteOff закрывает запись журнала по подтверждению пира
func (rc *ReplicatedCollection) WriteOff(receipt models.Receipt) WriteOffResult {
	result := rc.ledger.WriteOff(receipt)
	if result == WrittenOff {
		rc.acked.Add(1)
	}
	return result
}

// Push собирает один пакет исходящего фида и отправляет его.
// При ошибке отправки элементы остаются в журнале до следующего Sweep.
func (rc *ReplicatedCollection) Push(ctx context.Context, t Transport) (int, error) {
	entries, err := rc.BuildOutboundBatch(ctx, rc.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	if err := rc.send(ctx, t, entries); err != nil {
		return 0, fmt.Errorf("failed to send feed: %w", err)
	}

	rc.logger.Info("Feed pushed", "entries", len(entries))
	return len(entries), nil
}

// Sweep повторно отправляет записи, не подтвержденные за RetryTimeout.
// Пауза для записи растет экспоненциально с числом попыток.
func (rc *ReplicatedCollection) Sweep(ctx context.Context, t Transport) (int, error) {
	now := rc.now()
	batch := make([]models.LedgerEntry, 0, rc.cfg.BatchSize)
	resent := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := rc.send(ctx, t, batch); err != nil {
			return fmt.Errorf("failed to resend feed: %w", err)
		}
		for _, entry := range batch {
			if rc.ledger.MarkResent(entry.ReceiptID) {
				resent++
			}
		}
		batch = batch[:0]
		return nil
	}

	for entry := range rc.ledger.PendingOlderThan(rc.cfg.RetryTimeout) {
		if now.Sub(entry.SentAt) < rc.retryDelay(entry.Attempts) {
			continue
		}
		batch = append(batch, entry)
		if len(batch) >= rc.cfg.BatchSize {
			if err := flush(); err != nil {
				return resent, err
			}
		}
	}

	if err := flush(); err != nil {
		return resent, err
	}

	if resent > 0 {
		rc.resent.Add(int64(resent))
		rc.logger.Info("Pending feed entries resent", "entries", resent, "pending", rc.ledger.Len())
	}
	return resent, nil
}

// retryDelay пауза перед повтором записи с заданным числом попыток
func (rc *ReplicatedCollection) retryDelay(attempts int) time.Duration {
	if rc.cfg.MaxRetryInterval <= rc.cfg.RetryTimeout {
		return rc.cfg.RetryTimeout
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = rc.cfg.RetryTimeout
	b.MaxInterval = rc.cfg.MaxRetryInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	delay := b.NextBackOff()
	for i := 1; i < attempts; i++ {
		delay = b.NextBackOff()
	}
	return delay
}

func (rc *ReplicatedCollection) send(ctx context.Context, t Transport, entries []models.LedgerEntry) error {
	feed := api.FeedMessage{Entries: make([]api.FeedEntry, 0, len(entries))}
	for i := range entries {
		feed.Entries = append(feed.Entries, api.NewFeedEntry(entries[i].ReceiptID, &entries[i].Item))
	}

	env, err := api.NewEnvelope(api.MessageFeed, rc.cfg.Name, feed)
	if err != nil {
		return err
	}

	return t.Send(ctx, env)
}
