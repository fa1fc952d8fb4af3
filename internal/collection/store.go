// Package collection описывает локальную коллекцию документов, которую
// синхронизирует репликатор: чтение, запись с указанием источника и
// подписку на события изменений.
package collection

import (
	"context"
	"errors"

	"github.com/iudanet/docsync/internal/models"
)

// Common collection errors
var (
	// ErrDocumentNotFound indicates that document does not exist
	ErrDocumentNotFound = errors.New("document not found")

	// ErrStorageClosed indicates that storage is closed
	ErrStorageClosed = errors.New("storage is closed")
)

//go:generate moq -out store_mock.go . Store

// Store defines the local collection contract consumed by the replicator
type Store interface {
	// Get returns document by ID
	// Returns ErrDocumentNotFound if document doesn't exist
	Get(ctx context.Context, id models.EntityID) (*models.Document, error)

	// Upsert inserts or replaces a document on behalf of originator.
	// Local writes get a fresh ID (when empty), LastModified and NodeID from the clock;
	// replicator writes keep the version carried by the document.
	Upsert(ctx context.Context, doc *models.Document, originator models.Originator) (*models.Document, error)

	// Delete removes a document on behalf of originator
	// Returns ErrDocumentNotFound if document doesn't exist
	Delete(ctx context.Context, id models.EntityID, originator models.Originator) error

	// List returns all documents ordered by ID
	List(ctx context.Context) ([]*models.Document, error)

	// ChangedSince returns locally written documents with LastModified > since,
	// ordered by LastModified. Used to build outbound feed.
	ChangedSince(ctx context.Context, since models.Timestamp) ([]*models.Document, error)

	// Subscribe registers listener for change events; returned func unsubscribes
	Subscribe(listener Listener) func()

	// Watermark returns the highest local timestamp below which no local write
	// is still in flight: every write with LastModified <= watermark is committed
	// and its change event has been delivered to listeners.
	Watermark() models.Timestamp
}

// Clock выдает timestamp для локальных изменений
type Clock interface {
	Tick() models.Timestamp
	Now() models.Timestamp
	Restore(ts models.Timestamp)
	NodeID() string
}
