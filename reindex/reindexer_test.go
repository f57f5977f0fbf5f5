package reindex

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/kbsync/ai/mock"
	"github.com/poiesic/kbsync/core"
	"github.com/poiesic/kbsync/store/sqlite"
	"github.com/poiesic/kbsync/vector"
	"github.com/poiesic/kbsync/vector/badgerindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedDocument(t *testing.T, s *sqlite.Store, title string, chunkCount int) []core.Chunk {
	t.Helper()
	content := fmt.Sprintf("%s body", title)
	doc := &core.Document{
		ID:          uuid.NewString(),
		Title:       title,
		Content:     content,
		ContentHash: core.HashContent(content),
	}
	chunks := make([]core.Chunk, chunkCount)
	for i := range chunks {
		text := fmt.Sprintf("%s chunk %d", title, i)
		chunks[i] = core.Chunk{
			DocumentID:  doc.ID,
			Index:       i,
			Content:     text,
			TokenCount:  3,
			ContentHash: core.HashContent(text),
		}
	}
	require.NoError(t, s.ApplySync(context.Background(), doc, chunks, nil))
	return chunks
}

func newTestReindexer(t *testing.T) (*sqlite.Store, *badgerindex.Index, *mock.MockEmbedder, *bytes.Buffer, *Reindexer) {
	t.Helper()

	s, err := sqlite.NewStore(filepath.Join(t.TempDir(), "kbsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	idx, err := badgerindex.Open("", true)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	embedder := mock.NewMockEmbedder()
	embedder.Dimension = 8

	var out bytes.Buffer
	r := NewReindexer(s, idx, embedder, &Config{BatchSize: 2, MaxRetries: 2, RetryDelay: time.Millisecond}, &out)
	return s, idx, embedder, &out, r
}

func TestRun_RebuildsIndex(t *testing.T) {
	s, idx, _, out, r := newTestReindexer(t)
	ctx := context.Background()

	alpha := seedDocument(t, s, "alpha", 3)
	beta := seedDocument(t, s, "beta", 5)

	require.NoError(t, r.Run(ctx))

	for _, c := range append(alpha, beta...) {
		record, err := idx.Get(ctx, c.VectorID())
		require.NoError(t, err)
		require.NotNil(t, record, "chunk %d of %s missing", c.Index, c.DocumentID)
		assert.Equal(t, c.DocumentID, record.Metadata.DocumentID)
		assert.Equal(t, c.Index, record.Metadata.ChunkIndex)
	}
	assert.Contains(t, out.String(), "Rebuild complete. 2 documents, 8 chunks")
}

func TestRun_EmptyStore(t *testing.T) {
	_, _, embedder, out, r := newTestReindexer(t)

	require.NoError(t, r.Run(context.Background()))
	assert.Contains(t, out.String(), "No documents found")
	assert.Zero(t, embedder.CallCount())
}

func TestRun_EmbedderFailureStopsRun(t *testing.T) {
	s, _, embedder, _, r := newTestReindexer(t)
	seedDocument(t, s, "alpha", 2)

	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, fmt.Errorf("%w: down", core.ErrEmbeddingService)
	}

	err := r.Run(context.Background())
	assert.ErrorIs(t, err, core.ErrEmbeddingService)
}

func TestRun_RemovesOrphanedVectors(t *testing.T) {
	s, idx, _, _, r := newTestReindexer(t)
	ctx := context.Background()

	chunks := seedDocument(t, s, "alpha", 2)

	// A record with no backing chunk row, left behind by a failed delete.
	orphan := vector.Record{
		ID:     core.ChunkVectorID(chunks[0].DocumentID, 7),
		Values: []float32{1, 0, 0, 0, 0, 0, 0, 0},
		Metadata: vector.Metadata{
			DocumentID: chunks[0].DocumentID,
			ChunkIndex: 7,
		},
	}
	require.NoError(t, idx.Upsert(ctx, []vector.Record{orphan}))

	require.NoError(t, r.Run(ctx))

	record, err := idx.Get(ctx, orphan.ID)
	require.NoError(t, err)
	assert.Nil(t, record, "orphaned vector should be removed")
	for _, c := range chunks {
		record, err := idx.Get(ctx, c.VectorID())
		require.NoError(t, err)
		assert.NotNil(t, record)
	}
}

func TestRun_ClearsRebuildFlag(t *testing.T) {
	s, _, _, _, r := newTestReindexer(t)
	ctx := context.Background()

	chunks := seedDocument(t, s, "alpha", 2)
	require.NoError(t, s.SetIndexDirty(ctx, chunks[0].DocumentID, true))

	require.NoError(t, r.Run(ctx))

	doc, err := s.GetDocumentByTitle(ctx, "alpha")
	require.NoError(t, err)
	assert.False(t, doc.IndexDirty)
}

func TestRun_Idempotent(t *testing.T) {
	s, idx, _, _, r := newTestReindexer(t)
	ctx := context.Background()

	chunks := seedDocument(t, s, "alpha", 3)

	require.NoError(t, r.Run(ctx))
	require.NoError(t, r.Run(ctx))

	for _, c := range chunks {
		record, err := idx.Get(ctx, c.VectorID())
		require.NoError(t, err)
		assert.NotNil(t, record)
	}
}
