package reconcile

import (
	"time"

	"github.com/poiesic/kbsync/core"
)

// Action is the document-level outcome of reconciliation.
type Action int

const (
	// ActionCreate inserts a new document and all of its chunks.
	ActionCreate Action = iota + 1
	// ActionUpdate rewrites the document row and the changed chunk positions.
	ActionUpdate
	// ActionNoop leaves both stores untouched; content hash is unchanged.
	ActionNoop
)

// String returns the action name for logs and reports.
func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionNoop:
		return "noop"
	default:
		return "unknown"
	}
}

// Plan describes the writes needed to bring both stores in line with a
// document's current content.
type Plan struct {
	Action   Action
	Document core.Document

	// Upserts are new or content-changed chunks, ordered by Index.
	// Unchanged positions are omitted.
	Upserts []core.Chunk

	// Deletes are stored chunks whose positions fall beyond the fresh
	// chunk sequence. Their rows and vectors must be removed.
	Deletes []core.Chunk

	// RebuildIndex is set when the stored document is flagged index-dirty
	// from an earlier vector write failure. Every fresh chunk is then an
	// upsert, and the executor must clear the document's vectors before
	// writing so no stale or orphaned record survives.
	RebuildIndex bool
}

// Stored is the prior persisted state of a document.
// Chunks must be ordered by Index, which is how stores return them.
type Stored struct {
	Document core.Document
	Chunks   []core.Chunk
}

// Incoming is freshly extracted document content awaiting reconciliation.
type Incoming struct {
	Title            string
	Content          string
	SourceModifiedAt time.Time // zero when the source has no timestamp
}
