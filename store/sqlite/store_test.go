package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/kbsync/core"
	"github.com/poiesic/kbsync/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testDocument(title string) *core.Document {
	content := "Some document body. Another sentence."
	return &core.Document{
		ID:               uuid.NewString(),
		Title:            title,
		Content:          content,
		ContentHash:      core.HashContent(content),
		SourceModifiedAt: time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC),
	}
}

func testChunks(docID string, n int) []core.Chunk {
	chunks := make([]core.Chunk, n)
	for i := range chunks {
		content := "chunk body " + string(rune('a'+i))
		chunks[i] = core.Chunk{
			DocumentID:  docID,
			Index:       i,
			Content:     content,
			TokenCount:  3,
			ContentHash: core.HashContent(content),
		}
	}
	return chunks
}

func TestApplySync_CreateAndFetch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := testDocument("Policy-A")
	chunks := testChunks(doc.ID, 3)
	require.NoError(t, s.ApplySync(ctx, doc, chunks, nil))

	got, err := s.GetDocumentByTitle(ctx, "Policy-A")
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)
	assert.Equal(t, doc.Content, got.Content)
	assert.Equal(t, doc.ContentHash, got.ContentHash)
	assert.Equal(t, doc.SourceModifiedAt, got.SourceModifiedAt)
	assert.False(t, got.CreatedAt.IsZero())
	assert.False(t, got.UpdatedAt.IsZero())

	stored, err := s.GetChunksByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	for i, c := range stored {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, chunks[i].Content, c.Content)
		assert.Equal(t, chunks[i].ContentHash, c.ContentHash)
	}
}

func TestGetDocumentByTitle_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetDocumentByTitle(context.Background(), "missing")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestApplySync_UpdateReplacesAndDeletes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := testDocument("Policy-A")
	require.NoError(t, s.ApplySync(ctx, doc, testChunks(doc.ID, 3), nil))

	// Shrink to two chunks: position 1 changes, position 2 is deleted.
	changed := core.Chunk{
		DocumentID:  doc.ID,
		Index:       1,
		Content:     "rewritten chunk",
		TokenCount:  2,
		ContentHash: core.HashContent("rewritten chunk"),
	}
	stale := core.Chunk{DocumentID: doc.ID, Index: 2}
	require.NoError(t, s.ApplySync(ctx, doc, []core.Chunk{changed}, []core.Chunk{stale}))

	stored, err := s.GetChunksByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, 0, stored[0].Index)
	assert.Equal(t, "rewritten chunk", stored[1].Content)
	require.NoError(t, core.ValidateChunkSequence(stored))
}

func TestApplySync_AtomicOnFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := testDocument("Policy-A")
	chunks := testChunks(doc.ID, 2)

	// The second chunk references a nonexistent document, violating the
	// foreign key. The whole transaction must roll back: no document row
	// and no partial chunk rows survive.
	chunks[1].DocumentID = "no-such-document"

	err := s.ApplySync(ctx, doc, chunks, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrStoreWrite))

	_, err = s.GetDocumentByTitle(ctx, "Policy-A")
	assert.True(t, errors.Is(err, store.ErrNotFound), "document row must not survive a failed sync")

	stored, err := s.GetChunksByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, stored, "no partial chunk rows may survive a failed sync")
}

func TestDeleteDocument_CascadesToChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := testDocument("Policy-A")
	require.NoError(t, s.ApplySync(ctx, doc, testChunks(doc.ID, 2), nil))

	require.NoError(t, s.DeleteDocument(ctx, doc.ID))

	_, err := s.GetDocumentByTitle(ctx, "Policy-A")
	assert.True(t, errors.Is(err, store.ErrNotFound))

	chunks, err := s.GetChunksByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestDeleteDocument_NotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.DeleteDocument(context.Background(), uuid.NewString())
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestListDocuments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	listed, err := s.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Empty(t, listed)

	beta := testDocument("Policy-B")
	alpha := testDocument("Policy-A")
	require.NoError(t, s.ApplySync(ctx, beta, testChunks(beta.ID, 1), nil))
	require.NoError(t, s.ApplySync(ctx, alpha, testChunks(alpha.ID, 1), nil))

	listed, err = s.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "Policy-A", listed[0].Title)
	assert.Equal(t, "Policy-B", listed[1].Title)
	assert.Equal(t, alpha.ContentHash, listed[0].ContentHash)
}

func TestApplySync_UpsertIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := testDocument("Policy-A")
	chunks := testChunks(doc.ID, 2)
	require.NoError(t, s.ApplySync(ctx, doc, chunks, nil))
	require.NoError(t, s.ApplySync(ctx, doc, chunks, nil))

	stored, err := s.GetChunksByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestSetIndexDirty_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := testDocument("Policy-A")
	require.NoError(t, s.ApplySync(ctx, doc, testChunks(doc.ID, 1), nil))

	got, err := s.GetDocumentByTitle(ctx, "Policy-A")
	require.NoError(t, err)
	assert.False(t, got.IndexDirty)

	require.NoError(t, s.SetIndexDirty(ctx, doc.ID, true))
	got, err = s.GetDocumentByTitle(ctx, "Policy-A")
	require.NoError(t, err)
	assert.True(t, got.IndexDirty)

	require.NoError(t, s.SetIndexDirty(ctx, doc.ID, false))
	got, err = s.GetDocumentByTitle(ctx, "Policy-A")
	require.NoError(t, err)
	assert.False(t, got.IndexDirty)
}

func TestSetIndexDirty_NotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.SetIndexDirty(context.Background(), uuid.NewString(), true)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestClosedStoreIsRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := testDocument("Policy-A")
	require.NoError(t, s.ApplySync(ctx, doc, testChunks(doc.ID, 1), nil))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "closing twice is safe")

	_, err := s.GetDocumentByTitle(ctx, "Policy-A")
	assert.ErrorIs(t, err, store.ErrStorageClosed)
	_, err = s.ListDocuments(ctx)
	assert.ErrorIs(t, err, store.ErrStorageClosed)
	_, err = s.GetChunksByDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, store.ErrStorageClosed)
	assert.ErrorIs(t, s.ApplySync(ctx, doc, nil, nil), store.ErrStorageClosed)
	assert.ErrorIs(t, s.DeleteDocument(ctx, doc.ID), store.ErrStorageClosed)
	assert.ErrorIs(t, s.SetIndexDirty(ctx, doc.ID, false), store.ErrStorageClosed)
}
