package boltdb

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/docsync/internal/models"
)

// PutLedgerEntry stores a pending delivery entry.
// ReceiptID is a ULID, so bucket key order is the order of recording.
func (s *Storage) PutLedgerEntry(entry models.LedgerEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger entry: %w", err)
	}

	return s.update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketLedger).Put([]byte(entry.ReceiptID), data); err != nil {
			return fmt.Errorf("failed to save ledger entry: %w", err)
		}
		return nil
	})
}

// DeleteLedgerEntry removes a written off entry
func (s *Storage) DeleteLedgerEntry(id models.ReceiptID) error {
	return s.update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketLedger).Delete([]byte(id)); err != nil {
			return fmt.Errorf("failed to delete ledger entry: %w", err)
		}
		return nil
	})
}

// LoadLedger returns all pending entries in recording order
func (s *Storage) LoadLedger() ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry

	err := s.view(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketLedger).ForEach(func(k, v []byte) error {
			var entry models.LedgerEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("failed to unmarshal ledger entry: %w", err)
			}
			entries = append(entries, entry)
			return nil
		})
	})

	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	return entries, nil
}
