package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/docsync/internal/models"
)

// PutTombstone stores or replaces a tombstone.
// The clock counter is saved alongside: a remote delete may be the only
// trace of a timestamp the clock has seen, and gc can remove it later.
func (s *Storage) PutTombstone(t models.Tombstone) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal tombstone: %w", err)
	}

	return s.update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketTombstones).Put([]byte(t.ID), data); err != nil {
			return fmt.Errorf("failed to save tombstone: %w", err)
		}
		return s.saveClock(tx)
	})
}

// DeleteTombstones removes collected tombstones
func (s *Storage) DeleteTombstones(ids []models.EntityID) error {
	return s.update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketTombstones)
		for _, id := range ids {
			if err := bucket.Delete([]byte(id)); err != nil {
				return fmt.Errorf("failed to delete tombstone %s: %w", id, err)
			}
		}
		return nil
	})
}

// LoadTombstones returns all persisted tombstones
func (s *Storage) LoadTombstones(ctx context.Context) ([]models.Tombstone, error) {
	var tombstones []models.Tombstone

	err := s.view(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTombstones).ForEach(func(k, v []byte) error {
			var t models.Tombstone
			if err := json.Unmarshal(v, &t); err != nil {
				return fmt.Errorf("failed to unmarshal tombstone: %w", err)
			}
			tombstones = append(tombstones, t)
			return nil
		})
	})

	if err != nil {
		return nil, fmt.Errorf("failed to load tombstones: %w", err)
	}
	return tombstones, nil
}
