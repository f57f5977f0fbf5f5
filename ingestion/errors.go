package ingestion

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectorRequired is returned when a source connector is not provided.
	ErrConnectorRequired = errors.New("source connector required")

	// ErrExtractorRequired is returned when a text extractor is not provided.
	ErrExtractorRequired = errors.New("text extractor required")

	// ErrStoreRequired is returned when a document store is not provided.
	ErrStoreRequired = errors.New("document store required")

	// ErrIndexRequired is returned when a vector index is not provided.
	ErrIndexRequired = errors.New("vector index required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrInvalidMaxAttempts is returned when a retry is configured with a
	// non-positive attempt count.
	ErrInvalidMaxAttempts = errors.New("max attempts must be greater than zero")
)

// PartialSyncError reports that a document's relational writes committed but
// its vector index writes did not. The relational store is the source of
// truth; a following sync run converges the index because vector IDs are
// stable.
type PartialSyncError struct {
	Title string
	Err   error
}

func (e *PartialSyncError) Error() string {
	return fmt.Sprintf("document %q: relational writes committed but vector index update failed: %v", e.Title, e.Err)
}

func (e *PartialSyncError) Unwrap() error {
	return e.Err
}
