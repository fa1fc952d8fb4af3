package boltdb

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"
)

const (
	keyOutboundCheckpoint = "outbound_checkpoint"
	keyRemoteSequence     = "remote_sequence"
	keyClock              = "clock"
)

// SaveOutboundCheckpoint saves the highest local timestamp already recorded in the ledger
func (s *Storage) SaveOutboundCheckpoint(ctx context.Context, ts int64) error {
	return s.putInt64(keyOutboundCheckpoint, ts)
}

// GetOutboundCheckpoint returns outbound checkpoint, 0 before the first push
func (s *Storage) GetOutboundCheckpoint(ctx context.Context) (int64, error) {
	return s.getInt64(keyOutboundCheckpoint)
}

// SaveRemoteSequence saves the highest DataGate sequence applied locally
func (s *Storage) SaveRemoteSequence(ctx context.Context, seq int64) error {
	return s.putInt64(keyRemoteSequence, seq)
}

// GetRemoteSequence returns last applied DataGate sequence, 0 if none
func (s *Storage) GetRemoteSequence(ctx context.Context) (int64, error) {
	return s.getInt64(keyRemoteSequence)
}

func (s *Storage) putInt64(key string, value int64) error {
	return s.update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketMetadata).Put([]byte(key), encodeInt64(value)); err != nil {
			return fmt.Errorf("failed to save %s: %w", key, err)
		}
		return nil
	})
}

func (s *Storage) getInt64(key string) (int64, error) {
	var value int64

	err := s.view(func(tx *bbolt.Tx) error {
		buf := tx.Bucket(bucketMetadata).Get([]byte(key))
		if buf == nil {
			// Значение еще не сохранялось
			return nil
		}
		v, ok := decodeInt64(buf)
		if !ok {
			return fmt.Errorf("corrupted %s value", key)
		}

		value = v
		return nil
	})

	if err != nil {
		return 0, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, nil
}
