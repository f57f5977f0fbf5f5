package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/kbsync/ai"
	"github.com/poiesic/kbsync/core"
	"github.com/poiesic/kbsync/vector"
)

// defaultEmbedBatchSize bounds how many chunk texts go to the embedding
// service in one request.
const defaultEmbedBatchSize = 16

// embeddingWorker turns chunk rows into embedding records. Batches within a
// document are embedded concurrently on the shared worker pool; each batch
// call is retried with exponential backoff.
type embeddingWorker struct {
	embedder       ai.Embedder
	pool           *ants.Pool
	batchSize      int
	maxRetries     int
	retryBaseDelay time.Duration
	logger         *slog.Logger
}

func newEmbeddingWorker(embedder ai.Embedder, pool *ants.Pool, maxRetries int, retryBaseDelay time.Duration, logger *slog.Logger) *embeddingWorker {
	return &embeddingWorker{
		embedder:       embedder,
		pool:           pool,
		batchSize:      defaultEmbedBatchSize,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
		logger:         logger.With("component", "embedding-worker"),
	}
}

// embedChunks generates one embedding record per chunk, in chunk order.
// If any batch fails after retries, the whole call fails; partial vectors
// are never returned.
func (w *embeddingWorker) embedChunks(ctx context.Context, chunks []core.Chunk) ([]vector.Record, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}

	vectors := make([][]float32, len(chunks))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for start := 0; start < len(texts); start += w.batchSize {
		end := min(start+w.batchSize, len(texts))
		offset, batch := start, texts[start:end]

		wg.Add(1)
		task := func() {
			defer wg.Done()

			var embedded [][]float32
			err := RetryWithBackoff(ctx, func() error {
				var err error
				embedded, err = w.embedder.EmbedTexts(ctx, batch)
				return err
			}, w.maxRetries, w.retryBaseDelay)

			if err == nil && len(embedded) != len(batch) {
				err = fmt.Errorf("%w: embedding count mismatch: expected %d, got %d",
					core.ErrEmbeddingService, len(batch), len(embedded))
			}
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			copy(vectors[offset:], embedded)
		}

		if err := w.pool.Submit(task); err != nil {
			// Pool released or overloaded; run on the caller.
			w.logger.Warn("worker pool rejected batch, embedding inline", "err", err)
			task()
		}
	}
	wg.Wait()

	if firstErr != nil {
		w.logger.Error("embedding failed", "chunks", len(chunks), "err", firstErr)
		return nil, fmt.Errorf("embedding %d chunks after %d attempts: %w", len(chunks), w.maxRetries, firstErr)
	}

	records := make([]vector.Record, len(chunks))
	for i, chunk := range chunks {
		records[i] = vector.Record{
			ID:     chunk.VectorID(),
			Values: vectors[i],
			Metadata: vector.Metadata{
				DocumentID: chunk.DocumentID,
				ChunkIndex: chunk.Index,
				TokenCount: chunk.TokenCount,
			},
		}
	}
	return records, nil
}
