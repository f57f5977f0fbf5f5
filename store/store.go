// Package store defines the relational metadata store contract.
package store

import (
	"context"
	"errors"

	"github.com/poiesic/kbsync/core"
)

var (
	// ErrNotFound indicates that the requested record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrStorageClosed indicates that the storage backend is closed.
	ErrStorageClosed = errors.New("storage is closed")
)

// DocumentStore provides transactional CRUD over document and chunk rows.
// Implementations must guarantee that chunk rows cascade on document delete.
type DocumentStore interface {
	// GetDocumentByTitle fetches a document row by its title.
	// Returns ErrNotFound if no document with that title exists.
	GetDocumentByTitle(ctx context.Context, title string) (*core.Document, error)

	// GetChunksByDocument returns a document's chunk rows ordered by Index.
	GetChunksByDocument(ctx context.Context, documentID string) ([]core.Chunk, error)

	// ListDocuments returns every document row ordered by title.
	ListDocuments(ctx context.Context) ([]core.Document, error)

	// ApplySync persists a reconciliation outcome in a single transaction:
	// the document row is upserted, each chunk in upserts replaces any row
	// at its (document, index) position, and each chunk in deletes is
	// removed. Either every write commits or none do.
	ApplySync(ctx context.Context, doc *core.Document, upserts, deletes []core.Chunk) error

	// DeleteDocument removes a document row; chunk rows cascade.
	// Returns ErrNotFound if the document does not exist.
	DeleteDocument(ctx context.Context, documentID string) error

	// SetIndexDirty flags or clears a document whose vector writes did not
	// complete. Dirty documents bypass the unchanged-content short circuit
	// on their next sync. Returns ErrNotFound for unknown documents.
	SetIndexDirty(ctx context.Context, documentID string, dirty bool) error

	// Close releases the underlying database handle.
	Close() error
}
