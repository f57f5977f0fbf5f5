// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package reconcile decides which documents and chunks are inserted,
// updated, or deleted when a document is re-synced.
package reconcile

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/poiesic/kbsync/chunk"
	"github.com/poiesic/kbsync/core"
)

// Reconciler computes sync plans by comparing freshly extracted content
// against a document's stored record and chunk set.
type Reconciler struct {
	chunker *chunk.Chunker
	logger  *slog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewReconciler creates a Reconciler around the given chunker.
func NewReconciler(chunker *chunk.Chunker, opts ...Option) *Reconciler {
	r := &Reconciler{
		chunker: chunker,
		logger:  slog.Default().With("component", "reconciler"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Plan reconciles incoming content against the stored state, which is nil
// for documents never synced before.
//
// The content hash is compared before any chunking takes place, so repeated
// syncs of unchanged documents cost no chunking and no embedding calls.
// Changed documents are diffed positionally: a position survives only if its
// index and content hash both match the stored chunk; content changes at a
// surviving position are upserts under the same stable vector ID, and stored
// positions beyond the fresh sequence are deletes. A chunk that merely
// shifted position is treated as delete+create, not a move.
//
// A document flagged index-dirty never short-circuits: its vectors may be
// missing or stale, so the plan upserts every fresh chunk and sets
// RebuildIndex even when the content hash is unchanged.
func (r *Reconciler) Plan(incoming Incoming, stored *Stored) (*Plan, error) {
	hash := core.HashContent(incoming.Content)

	if stored == nil {
		doc := core.Document{
			ID:               uuid.NewString(),
			Title:            incoming.Title,
			Content:          incoming.Content,
			ContentHash:      hash,
			SourceModifiedAt: incoming.SourceModifiedAt,
		}
		chunks := r.chunkFor(doc)
		r.logger.Debug("planned create", "title", doc.Title, "chunks", len(chunks))
		return &Plan{Action: ActionCreate, Document: doc, Upserts: chunks}, nil
	}

	rebuild := stored.Document.IndexDirty

	if stored.Document.ContentHash == hash && !rebuild {
		r.logger.Debug("content unchanged", "title", incoming.Title)
		return &Plan{Action: ActionNoop, Document: stored.Document}, nil
	}

	if err := core.ValidateChunkSequence(stored.Chunks); err != nil {
		return nil, err
	}

	doc := stored.Document
	doc.Content = incoming.Content
	doc.ContentHash = hash
	doc.IndexDirty = false
	doc.SourceModifiedAt = incoming.SourceModifiedAt

	fresh := r.chunkFor(doc)

	var upserts []core.Chunk
	for i, c := range fresh {
		if !rebuild && i < len(stored.Chunks) && stored.Chunks[i].ContentHash == c.ContentHash {
			continue // position and content both match
		}
		upserts = append(upserts, c)
	}

	var deletes []core.Chunk
	if len(stored.Chunks) > len(fresh) {
		deletes = append(deletes, stored.Chunks[len(fresh):]...)
	}

	r.logger.Debug("planned update",
		"title", doc.Title,
		"stored_chunks", len(stored.Chunks),
		"fresh_chunks", len(fresh),
		"upserts", len(upserts),
		"deletes", len(deletes),
		"rebuild_index", rebuild)

	return &Plan{Action: ActionUpdate, Document: doc, Upserts: upserts, Deletes: deletes, RebuildIndex: rebuild}, nil
}

// chunkFor runs the chunker and stamps ownership onto each chunk.
func (r *Reconciler) chunkFor(doc core.Document) []core.Chunk {
	chunks := r.chunker.Chunk(doc.Content)
	for i := range chunks {
		chunks[i].DocumentID = doc.ID
	}
	return chunks
}
