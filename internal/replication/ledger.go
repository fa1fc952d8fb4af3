package replication

import (
	"crypto/rand"
	"io"
	"iter"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/iudanet/docsync/internal/models"
)

//go:generate moq -out ledger_storage_mock.go . LedgerStorage

// LedgerStorage сохраняет записи журнала доставки между сессиями
type LedgerStorage interface {
	PutLedgerEntry(entry models.LedgerEntry) error
	DeleteLedgerEntry(id models.ReceiptID) error
	LoadLedger() ([]models.LedgerEntry, error)
}

// WriteOffResult результат обработки подтверждения
type WriteOffResult int

const (
	// WriteOffUnknown подтверждение для неизвестной (уже закрытой) записи
	WriteOffUnknown WriteOffResult = iota
	// WrittenOff запись закрыта
	WrittenOff
	// WriteOffRetained пир отклонил элемент, запись ждет повторной отправки
	WriteOffRetained
)

// FeedLedger журнал исходящих элементов фида, ожидающих подтверждения.
// Каждый ReceiptID соответствует ровно одной записи; запись видна в
// PendingOlderThan, пока ее не закрыл WriteOff.
//
// Изменения попадают в хранилище после освобождения l.mu, в том порядке,
// в котором были сделаны в памяти.
type FeedLedger struct {
	storage LedgerStorage
	logger  *slog.Logger
	now     func() time.Time
	entropy io.Reader
	entries map[models.ReceiptID]*models.LedgerEntry
	order   []models.ReceiptID // порядок записи, закрытые ключи вычищаются при компактизации
	writes  []ledgerWrite      // еще не сохраненные изменения
	mu      sync.RWMutex

	flushMu sync.Mutex // один писатель в хранилище
}

// ledgerWrite снимок записи для хранилища; deleted закрывает запись
type ledgerWrite struct {
	entry   models.LedgerEntry
	deleted bool
}

// LedgerOption настраивает FeedLedger
type LedgerOption func(*FeedLedger)

// WithLedgerStorage подключает постоянное хранилище записей
func WithLedgerStorage(s LedgerStorage) LedgerOption {
	return func(l *FeedLedger) {
		l.storage = s
	}
}

// WithNow подменяет источник времени (для тестов)
func WithNow(now func() time.Time) LedgerOption {
	return func(l *FeedLedger) {
		l.now = now
	}
}

// NewFeedLedger создает пустой журнал
func NewFeedLedger(logger *slog.Logger, opts ...LedgerOption) *FeedLedger {
	l := &FeedLedger{
		logger:  logger,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
		entries: make(map[models.ReceiptID]*models.LedgerEntry),
	}
	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Load восстанавливает незакрытые записи из хранилища
func (l *FeedLedger) Load() error {
	if l.storage == nil {
		return nil
	}

	entries, err := l.storage.LoadLedger()
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range entries {
		entry := entries[i]
		if _, exists := l.entries[entry.ReceiptID]; !exists {
			l.order = append(l.order, entry.ReceiptID)
		}
		l.entries[entry.ReceiptID] = &entry
	}

	l.logger.Info("Feed ledger restored", "pending", len(l.entries))
	return nil
}

// Record регистрирует отправляемый элемент и возвращает его ReceiptID
func (l *FeedLedger) Record(item *models.FeedItem) models.ReceiptID {
	defer l.flush()

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	id := models.ReceiptID(ulid.MustNew(ulid.Timestamp(now), l.entropy).String())

	entry := &models.LedgerEntry{
		ReceiptID: id,
		Item:      *item.Clone(),
		SentAt:    now,
		Attempts:  1,
	}
	l.entries[id] = entry
	l.order = append(l.order, id)
	l.persist(entry)

	return id
}

// WriteOff обрабатывает подтверждение пира.
// Неизвестный ReceiptID (дубликат или устаревшее подтверждение) не является ошибкой.
// Accepted и Conflict закрывают запись; Rejected оставляет ее для повтора,
// повторный Rejected для той же отправки ничего не меняет.
// Attempts считает только отправки, отказ его не увеличивает.
func (l *FeedLedger) WriteOff(receipt models.Receipt) WriteOffResult {
	defer l.flush()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[receipt.ReceiptID]
	if !ok {
		l.logger.Debug("Receipt for unknown ledger entry ignored",
			"receipt_id", receipt.ReceiptID,
			"status", receipt.Status)
		return WriteOffUnknown
	}

	if receipt.EntityID != "" && receipt.EntityID != entry.Item.EntityID {
		l.logger.Warn("Receipt entity mismatch",
			"receipt_id", receipt.ReceiptID,
			"expected", entry.Item.EntityID,
			"got", receipt.EntityID)
	}

	if receipt.Status.IsTerminal() {
		delete(l.entries, receipt.ReceiptID)
		l.compact()
		if l.storage != nil {
			l.writes = append(l.writes, ledgerWrite{entry: models.LedgerEntry{ReceiptID: receipt.ReceiptID}, deleted: true})
		}
		return WrittenOff
	}

	if !entry.Rejected {
		entry.Rejected = true
		l.persist(entry)
	}
	return WriteOffRetained
}

// MarkResent отмечает повторную отправку записи.
// Возвращает false, если запись уже закрыта.
func (l *FeedLedger) MarkResent(id models.ReceiptID) bool {
	defer l.flush()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[id]
	if !ok {
		return false
	}

	entry.SentAt = l.now()
	entry.Attempts++
	entry.Rejected = false
	l.persist(entry)

	return true
}

// PendingOlderThan возвращает ленивую конечную последовательность записей,
// отправленных раньше now-d. Каждый проход берет свежий снимок ключей,
// записи читаются по одной. Записи не удаляются.
func (l *FeedLedger) PendingOlderThan(d time.Duration) iter.Seq[models.LedgerEntry] {
	return func(yield func(models.LedgerEntry) bool) {
		cutoff := l.now().Add(-d)

		l.mu.RLock()
		ids := slices.Clone(l.order)
		l.mu.RUnlock()

		for _, id := range ids {
			entry, ok := l.Get(id)
			if !ok || !entry.SentAt.Before(cutoff) {
				continue
			}
			if !yield(entry) {
				return
			}
		}
	}
}

// Get возвращает копию записи
func (l *FeedLedger) Get(id models.ReceiptID) (models.LedgerEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entry, ok := l.entries[id]
	if !ok {
		return models.LedgerEntry{}, false
	}

	copied := *entry
	copied.Item = *entry.Item.Clone()
	return copied, true
}

// Len возвращает количество незакрытых записей
func (l *FeedLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.entries)
}

// persist ставит снимок записи в очередь хранилища; вызывается под l.mu
func (l *FeedLedger) persist(entry *models.LedgerEntry) {
	if l.storage == nil {
		return
	}

	snapshot := *entry
	snapshot.Item = *entry.Item.Clone()
	l.writes = append(l.writes, ledgerWrite{entry: snapshot})
}

// flush пишет накопленные изменения в хранилище без удержания l.mu.
// Если очередь забрал другой вызов, он же ее и запишет.
func (l *FeedLedger) flush() {
	if l.storage == nil {
		return
	}

	l.flushMu.Lock()
	defer l.flushMu.Unlock()

	l.mu.Lock()
	writes := l.writes
	l.writes = nil
	l.mu.Unlock()

	for _, w := range writes {
		if w.deleted {
			if err := l.storage.DeleteLedgerEntry(w.entry.ReceiptID); err != nil {
				l.logger.Error("Failed to delete ledger entry", "receipt_id", w.entry.ReceiptID, "error", err)
			}
			continue
		}
		if err := l.storage.PutLedgerEntry(w.entry); err != nil {
			l.logger.Error("Failed to persist ledger entry", "receipt_id", w.entry.ReceiptID, "error", err)
		}
	}
}

// compact вычищает закрытые ключи из order, когда их становится много
func (l *FeedLedger) compact() {
	if len(l.order) < 2*len(l.entries)+64 {
		return
	}

	l.order = slices.DeleteFunc(l.order, func(id models.ReceiptID) bool {
		_, ok := l.entries[id]
		return !ok
	})
}
