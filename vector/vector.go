// Package vector defines the vector index contract for chunk embeddings.
package vector

import (
	"context"

	"github.com/poiesic/kbsync/core"
)

// Metadata is stored alongside each vector for back-reference into the
// relational store.
type Metadata struct {
	DocumentID string
	ChunkIndex int
	TokenCount int
}

// Record is one embedded chunk keyed by its stable vector ID.
type Record struct {
	ID       core.ID
	Values   []float32
	Metadata Metadata
}

// Index persists chunk embeddings. Implementations must make Upsert
// overwrite existing records in place and treat deletes of missing IDs as
// no-ops, so reconciliation retries stay idempotent.
type Index interface {
	// Upsert writes the records, replacing any with matching IDs.
	Upsert(ctx context.Context, records []Record) error

	// Delete removes records by ID. Missing IDs are ignored.
	Delete(ctx context.Context, ids []core.ID) error

	// DeleteByDocument removes every record whose metadata references the
	// document.
	DeleteByDocument(ctx context.Context, documentID string) error

	// Close releases resources held by the index.
	Close() error
}
