package boltdb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"go.etcd.io/bbolt"

	"github.com/iudanet/docsync/internal/collection"
	"github.com/iudanet/docsync/internal/models"
)

var (
	// BoltDB bucket names
	bucketDocuments  = []byte("documents")
	bucketTombstones = []byte("tombstones")
	bucketLedger     = []byte("ledger")
	bucketMetadata   = []byte("metadata")
)

// Storage represents BoltDB implementation of the local collection.
// The same file also keeps tombstones, the delivery ledger and sync checkpoints
// so that a restarted replica resumes where the previous session stopped.
type Storage struct {
	db      *bbolt.DB
	clock   collection.Clock
	events  *collection.Broadcaster
	pending map[models.Timestamp]int // локальные записи, чьи события еще не доставлены
	mu      sync.RWMutex

	pendingMu sync.Mutex
}

var _ collection.Store = (*Storage)(nil)

// New creates a new BoltDB storage instance
// dbPath is the path to the BoltDB database file
func New(ctx context.Context, dbPath string, clock collection.Clock) (*Storage, error) {
	// Открываем BoltDB
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	storage := &Storage{
		db:      db,
		clock:   clock,
		events:  collection.NewBroadcaster(),
		pending: make(map[models.Timestamp]int),
	}

	// Инициализируем buckets
	if err := storage.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	// Часы не должны выдавать timestamp меньше уже записанных
	maxTimestamp, err := storage.maxTimestamp()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to restore clock: %w", err)
	}
	clock.Restore(maxTimestamp)

	return storage, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// view выполняет read-only транзакцию, если хранилище открыто
func (s *Storage) view(fn func(tx *bbolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return collection.ErrStorageClosed
	}
	return s.db.View(fn)
}

// update выполняет read-write транзакцию, если хранилище открыто
func (s *Storage) update(fn func(tx *bbolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return collection.ErrStorageClosed
	}
	return s.db.Update(fn)
}

// initBuckets создает необходимые buckets если они не существуют
func (s *Storage) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketDocuments, bucketTombstones, bucketLedger, bucketMetadata} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

// beginLocalWrite выдает timestamp локальной записи и держит watermark ниже него,
// пока событие записи не доставлено подписчикам
func (s *Storage) beginLocalWrite() models.Timestamp {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	ts := s.clock.Tick()
	s.pending[ts]++
	return ts
}

func (s *Storage) endLocalWrite(ts models.Timestamp) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	if s.pending[ts]--; s.pending[ts] <= 0 {
		delete(s.pending, ts)
	}
}

// Watermark returns the highest timestamp T such that every local write with
// LastModified <= T is committed and its change event has been delivered
func (s *Storage) Watermark() models.Timestamp {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	watermark := s.clock.Now()
	for ts := range s.pending {
		watermark = min(watermark, ts-1)
	}
	return watermark
}

// saveClock сохраняет счетчик часов в той же транзакции, что и запись.
// Значение в базе только растет.
func (s *Storage) saveClock(tx *bbolt.Tx) error {
	bucket := tx.Bucket(bucketMetadata)
	now := s.clock.Now()
	if stored, ok := decodeInt64(bucket.Get([]byte(keyClock))); ok && models.Timestamp(stored) >= now {
		return nil
	}

	if err := bucket.Put([]byte(keyClock), encodeInt64(int64(now))); err != nil {
		return fmt.Errorf("failed to save clock: %w", err)
	}
	return nil
}

// maxTimestamp возвращает максимум из сохраненного счетчика часов, outbound checkpoint,
// документов и маркеров удаления. Маркеры могут быть собраны gc, поэтому
// одних документов и маркеров недостаточно.
func (s *Storage) maxTimestamp() (models.Timestamp, error) {
	var maxTimestamp models.Timestamp

	err := s.db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMetadata)
		for _, key := range []string{keyClock, keyOutboundCheckpoint} {
			if v, ok := decodeInt64(meta.Get([]byte(key))); ok {
				maxTimestamp = max(maxTimestamp, models.Timestamp(v))
			}
		}

		err := tx.Bucket(bucketDocuments).ForEach(func(k, v []byte) error {
			var doc models.Document
			if err := json.Unmarshal(v, &doc); err != nil {
				return fmt.Errorf("failed to unmarshal document: %w", err)
			}
			maxTimestamp = max(maxTimestamp, doc.LastModified)
			return nil
		})
		if err != nil {
			return err
		}

		return tx.Bucket(bucketTombstones).ForEach(func(k, v []byte) error {
			var t models.Tombstone
			if err := json.Unmarshal(v, &t); err != nil {
				return fmt.Errorf("failed to unmarshal tombstone: %w", err)
			}
			maxTimestamp = max(maxTimestamp, t.DeleteTimestamp)
			return nil
		})
	})

	if err != nil {
		return 0, err
	}
	return maxTimestamp, nil
}

func encodeInt64(v int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(v))
	return buf
}

func decodeInt64(buf []byte) (int64, bool) {
	if len(buf) != 8 {
		return 0, false
	}
	return int64(binary.BigEndian.Uint64(buf)), true
}
