package storage

import (
	"context"
	"time"

	"github.com/iudanet/docsync/internal/models"
)

// Change изменение, принятое DataGate, с его порядковым номером
type Change struct {
	Item       models.FeedItem
	Collection string
	Seq        int64
}

// FeedStorage defines DataGate persistence of replicated documents
type FeedStorage interface {
	// ApplyEntry applies a feed item with last-writer-wins rules (delete wins ties).
	// Receipt ids are idempotent: an already seen receipt returns its stored status
	// without applying the item again. Change is nil when state did not change.
	ApplyEntry(ctx context.Context, collection string, receiptID models.ReceiptID, item *models.FeedItem) (models.DeliveryStatus, *Change, error)

	// ChangesSince returns up to limit changes of the collection with Seq > since, ordered by Seq
	ChangesSince(ctx context.Context, collection string, since int64, limit int) ([]Change, error)

	// GetDocument returns the current state of an entity, deleted ones included
	// Returns ErrDocumentNotFound if entity was never written
	GetDocument(ctx context.Context, collection string, id models.EntityID) (*Change, error)

	// PruneReceipts removes receipts recorded before the given time
	PruneReceipts(ctx context.Context, before time.Time) (int64, error)

	// Ping checks database availability
	Ping(ctx context.Context) error
}
