package boltdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/iudanet/docsync/internal/collection"
	"github.com/iudanet/docsync/internal/models"
)

// Get retrieves a document by ID
func (s *Storage) Get(ctx context.Context, id models.EntityID) (*models.Document, error) {
	var doc *models.Document

	err := s.view(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketDocuments).Get([]byte(id))
		if data == nil {
			return collection.ErrDocumentNotFound
		}

		doc = &models.Document{}
		if err := json.Unmarshal(data, doc); err != nil {
			return fmt.Errorf("failed to unmarshal document: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return doc, nil
}

// Upsert inserts or replaces a document and publishes the change event
func (s *Storage) Upsert(ctx context.Context, doc *models.Document, originator models.Originator) (*models.Document, error) {
	stored := doc.Clone()
	stored.Source = originator

	// Локальная запись получает новую версию от часов,
	// запись репликатора сохраняет версию из фида
	if originator != models.OriginReplicator {
		if stored.ID == "" {
			stored.ID = models.EntityID(uuid.New().String())
		}
		stored.LastModified = s.beginLocalWrite()
		stored.NodeID = s.clock.NodeID()
		defer s.endLocalWrite(stored.LastModified)
	}

	if stored.ID == "" {
		return nil, fmt.Errorf("replicated document has no id")
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}

	eventType := models.EventInsert
	err = s.update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketDocuments)
		if bucket.Get([]byte(stored.ID)) != nil {
			eventType = models.EventUpdate
		}

		if err := bucket.Put([]byte(stored.ID), data); err != nil {
			return fmt.Errorf("failed to save document: %w", err)
		}
		return s.saveClock(tx)
	})

	if err != nil {
		return nil, fmt.Errorf("upsert transaction failed: %w", err)
	}

	s.events.Publish(&models.ChangeEvent{
		Type:         eventType,
		Item:         stored.Clone(),
		Originator:   originator,
		LastModified: stored.LastModified,
	})

	return stored, nil
}

// Delete removes a document and publishes the remove event.
// The event carries the delete time as LastModified.
func (s *Storage) Delete(ctx context.Context, id models.EntityID, originator models.Originator) error {
	deleteTime := s.clock.Now()
	if originator != models.OriginReplicator {
		// Пока событие не обработано, маркер удаления еще не создан
		deleteTime = s.beginLocalWrite()
		defer s.endLocalWrite(deleteTime)
	}

	var removed models.Document
	err := s.update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketDocuments)

		data := bucket.Get([]byte(id))
		if data == nil {
			return collection.ErrDocumentNotFound
		}

		if err := json.Unmarshal(data, &removed); err != nil {
			return fmt.Errorf("failed to unmarshal document: %w", err)
		}

		if err := bucket.Delete([]byte(id)); err != nil {
			return fmt.Errorf("failed to delete document: %w", err)
		}
		return s.saveClock(tx)
	})

	if err != nil {
		if errors.Is(err, collection.ErrDocumentNotFound) {
			return err
		}
		return fmt.Errorf("delete transaction failed: %w", err)
	}

	removed.LastModified = deleteTime

	s.events.Publish(&models.ChangeEvent{
		Type:         models.EventRemove,
		Item:         &removed,
		Originator:   originator,
		LastModified: deleteTime,
	})

	return nil
}

// List returns all documents ordered by ID
func (s *Storage) List(ctx context.Context) ([]*models.Document, error) {
	docs, err := s.scanDocuments(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// ChangedSince returns locally written documents with LastModified > since
func (s *Storage) ChangedSince(ctx context.Context, since models.Timestamp) ([]*models.Document, error) {
	docs, err := s.scanDocuments(func(doc *models.Document) bool {
		// Документы, записанные репликатором, обратно не отправляются
		return doc.Source != models.OriginReplicator && doc.LastModified > since
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get changed documents: %w", err)
	}

	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].LastModified != docs[j].LastModified {
			return docs[i].LastModified < docs[j].LastModified
		}
		return docs[i].ID < docs[j].ID
	})

	return docs, nil
}

// Subscribe registers listener for change events
func (s *Storage) Subscribe(listener collection.Listener) func() {
	return s.events.Subscribe(listener)
}

// scanDocuments обходит bucket документов (ключи упорядочены по ID)
func (s *Storage) scanDocuments(keep func(doc *models.Document) bool) ([]*models.Document, error) {
	var docs []*models.Document

	err := s.view(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocuments).ForEach(func(k, v []byte) error {
			var doc models.Document
			if err := json.Unmarshal(v, &doc); err != nil {
				return fmt.Errorf("failed to unmarshal document: %w", err)
			}

			if keep == nil || keep(&doc) {
				docs = append(docs, &doc)
			}
			return nil
		})
	})

	if err != nil {
		return nil, err
	}
	return docs, nil
}
