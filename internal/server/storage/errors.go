package storage

import "errors"

// Common storage errors
var (
	// ErrDocumentNotFound indicates that document was never written to the gate
	ErrDocumentNotFound = errors.New("document not found")

	// ErrInvalidItem indicates that feed item cannot be stored
	ErrInvalidItem = errors.New("invalid feed item")
)
