// Package source defines the contract for document source connectors.
package source

import (
	"context"
	"errors"
	"time"
)

// ErrTitleNotFound marks a requested title the source does not contain.
var ErrTitleNotFound = errors.New("title not found in source")

// RawFile is a document fetched from the source store.
type RawFile struct {
	Title      string    // source filename without extension
	Bytes      []byte    // raw document content
	ModifiedAt time.Time // source-side modification time, zero if unknown
}

// Failure records a document the connector could not deliver: a file that
// failed to download or read, or a requested title absent from the source.
type Failure struct {
	Title string
	Err   error
}

// Request selects which documents to fetch.
// When All is set, Titles is ignored and every visible document is returned.
type Request struct {
	All    bool
	Titles []string
}

// Connector lists and downloads raw documents from a source store.
// Implementations wrap auth and network failures with
// core.ErrSourceUnavailable.
type Connector interface {
	// Fetch returns the selected documents plus per-document failures so
	// no requested title silently vanishes from the sync report. A non-nil
	// error means the source itself was unreachable and nothing was
	// fetched.
	Fetch(ctx context.Context, req Request) ([]RawFile, []Failure, error)
}

// MissingTitles reports the requested titles satisfied by neither files nor
// failures, each wrapped as a Failure with ErrTitleNotFound. Returns nil
// when the request selects all documents.
func MissingTitles(req Request, files []RawFile, failures []Failure) []Failure {
	if req.All {
		return nil
	}
	seen := make(map[string]bool, len(files)+len(failures))
	for _, f := range files {
		seen[f.Title] = true
	}
	for _, f := range failures {
		seen[f.Title] = true
	}
	var missing []Failure
	for _, title := range req.Titles {
		if !seen[title] {
			seen[title] = true
			missing = append(missing, Failure{Title: title, Err: ErrTitleNotFound})
		}
	}
	return missing
}
