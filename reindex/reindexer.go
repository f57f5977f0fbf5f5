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


package reindex

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/poiesic/kbsync/ai"
	"github.com/poiesic/kbsync/core"
	"github.com/poiesic/kbsync/ingestion"
	"github.com/poiesic/kbsync/store"
	"github.com/poiesic/kbsync/vector"
)

// Config holds configuration for a rebuild run.
type Config struct {
	// BatchSize is the number of chunks sent to the embedder per request
	BatchSize int

	// MaxRetries is the maximum number of retry attempts for embedding calls
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:  32,
		MaxRetries: 3,
		RetryDelay: 1 * time.Second,
	}
}

// Reindexer rebuilds the vector index from the relational store. The chunk
// rows are the source of truth; every one is re-embedded and upserted under
// its stable vector ID. Use after an index wipe, a partial sync, or an
// embedding model change.
type Reindexer struct {
	documents store.DocumentStore
	index     vector.Index
	embedder  ai.Embedder
	config    *Config
	progress  io.Writer
}

// NewReindexer creates a reindexer.
// progress: where to write progress output (typically os.Stderr)
func NewReindexer(documents store.DocumentStore, index vector.Index, embedder ai.Embedder, config *Config, progress io.Writer) *Reindexer {
	if config == nil {
		config = DefaultConfig()
	}
	return &Reindexer{
		documents: documents,
		index:     index,
		embedder:  embedder,
		config:    config,
		progress:  progress,
	}
}

// Run re-embeds every stored chunk and writes it to the index. Each
// document's vectors are dropped before its chunks are upserted, so records
// orphaned by a failed sync delete disappear too. Documents are processed in
// title order; the run stops at the first failure so a broken embedder
// doesn't burn through the whole corpus.
func (r *Reindexer) Run(ctx context.Context) error {
	docs, err := r.documents.ListDocuments(ctx)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}
	if len(docs) == 0 {
		fmt.Fprintf(r.progress, "No documents found (0 documents)\n")
		return nil
	}

	fmt.Fprintf(r.progress, "Rebuilding index for %d documents (batch size: %d)\n",
		len(docs), r.config.BatchSize)

	tracker := NewProgressTracker(r.progress, len(docs))
	tracker.Start()

	totalChunks := 0
	for _, doc := range docs {
		chunks, err := r.documents.GetChunksByDocument(ctx, doc.ID)
		if err != nil {
			return fmt.Errorf("failed to load chunks for %q: %w", doc.Title, err)
		}
		if err := core.ValidateChunkSequence(chunks); err != nil {
			return fmt.Errorf("document %q: %w", doc.Title, err)
		}

		if err := r.index.DeleteByDocument(ctx, doc.ID); err != nil {
			return fmt.Errorf("document %q: clearing stale vectors: %w", doc.Title, err)
		}
		if err := r.reindexChunks(ctx, chunks); err != nil {
			return fmt.Errorf("document %q: %w", doc.Title, err)
		}
		if doc.IndexDirty {
			if err := r.documents.SetIndexDirty(ctx, doc.ID, false); err != nil {
				return fmt.Errorf("document %q: clearing rebuild flag: %w", doc.Title, err)
			}
		}

		totalChunks += len(chunks)
		tracker.Increment(1)
	}
	tracker.Finish()

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Rebuild complete. %d documents, %d chunks in %v\n",
		len(docs), totalChunks, elapsed.Round(time.Second))
	return nil
}

// reindexChunks embeds and upserts one document's chunks in batches.
func (r *Reindexer) reindexChunks(ctx context.Context, chunks []core.Chunk) error {
	for start := 0; start < len(chunks); start += r.config.BatchSize {
		end := min(start+r.config.BatchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		var embedded [][]float32
		err := ingestion.RetryWithBackoff(ctx, func() error {
			var err error
			embedded, err = r.embedder.EmbedTexts(ctx, texts)
			return err
		}, r.config.MaxRetries, r.config.RetryDelay)
		if err != nil {
			return fmt.Errorf("failed to embed batch after %d attempts: %w", r.config.MaxRetries, err)
		}
		if len(embedded) != len(batch) {
			return fmt.Errorf("%w: embedding count mismatch: expected %d, got %d",
				core.ErrEmbeddingService, len(batch), len(embedded))
		}

		records := make([]vector.Record, len(batch))
		for i, c := range batch {
			records[i] = vector.Record{
				ID:     c.VectorID(),
				Values: embedded[i],
				Metadata: vector.Metadata{
					DocumentID: c.DocumentID,
					ChunkIndex: c.Index,
					TokenCount: c.TokenCount,
				},
			}
		}
		if err := r.index.Upsert(ctx, records); err != nil {
			return err
		}
	}
	return nil
}
