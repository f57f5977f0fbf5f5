package reconcile

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/kbsync/chunk"
	"github.com/poiesic/kbsync/core"
	"github.com/poiesic/kbsync/token"
)

// Small token window so tests stay readable: sentences of five words, four
// sentences per chunk, one sentence of overlap.
func newTestReconciler() *Reconciler {
	chunker := chunk.NewChunker(token.Words{}, chunk.WithWindow(10, 20), chunk.WithOverlap(5))
	return NewReconciler(chunker)
}

func sentenceOf(n int, tag string) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("%s%d", tag, i)
	}
	return strings.Join(words, " ") + "."
}

func textOf(sentences int, tag string) string {
	parts := make([]string, sentences)
	for i := range parts {
		parts[i] = sentenceOf(5, fmt.Sprintf("%s%dx", tag, i))
	}
	return strings.Join(parts, " ")
}

func storedFromPlan(p *Plan) *Stored {
	return &Stored{Document: p.Document, Chunks: p.Upserts}
}

func TestPlan_CreateForUnknownDocument(t *testing.T) {
	r := newTestReconciler()

	plan, err := r.Plan(Incoming{Title: "Policy-A", Content: textOf(10, "a")}, nil)
	require.NoError(t, err)

	assert.Equal(t, ActionCreate, plan.Action)
	assert.NotEmpty(t, plan.Document.ID)
	assert.Equal(t, "Policy-A", plan.Document.Title)
	assert.Equal(t, core.HashContent(plan.Document.Content), plan.Document.ContentHash)
	assert.NotEmpty(t, plan.Upserts)
	assert.Empty(t, plan.Deletes)

	for i, c := range plan.Upserts {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, plan.Document.ID, c.DocumentID)
	}
}

func TestPlan_NoopShortCircuitsOnEqualHash(t *testing.T) {
	r := newTestReconciler()
	content := textOf(10, "a")

	first, err := r.Plan(Incoming{Title: "Policy-A", Content: content}, nil)
	require.NoError(t, err)

	// Stored chunk set is deliberately broken; a NOOP must not look at it.
	stored := &Stored{
		Document: first.Document,
		Chunks:   []core.Chunk{{Index: 7}},
	}

	plan, err := r.Plan(Incoming{Title: "Policy-A", Content: content}, stored)
	require.NoError(t, err)
	assert.Equal(t, ActionNoop, plan.Action)
	assert.Empty(t, plan.Upserts)
	assert.Empty(t, plan.Deletes)
}

func TestPlan_IndexDirtyForcesRebuild(t *testing.T) {
	r := newTestReconciler()
	content := textOf(10, "a")

	first, err := r.Plan(Incoming{Title: "Policy-A", Content: content}, nil)
	require.NoError(t, err)

	// Unchanged content would normally short-circuit, but a document whose
	// vector writes failed must have every chunk re-upserted.
	stored := storedFromPlan(first)
	stored.Document.IndexDirty = true

	plan, err := r.Plan(Incoming{Title: "Policy-A", Content: content}, stored)
	require.NoError(t, err)

	assert.Equal(t, ActionUpdate, plan.Action)
	assert.True(t, plan.RebuildIndex)
	assert.Len(t, plan.Upserts, len(stored.Chunks), "every position is re-upserted")
	assert.Empty(t, plan.Deletes)
	assert.False(t, plan.Document.IndexDirty, "a completed rebuild clears the flag")
}

func TestPlan_UpdateWithShrink(t *testing.T) {
	r := newTestReconciler()

	first, err := r.Plan(Incoming{Title: "Policy-A", Content: textOf(16, "a")}, nil)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(first.Upserts), 3, "test fixture must produce at least three chunks")

	// Shorten the document so it produces fewer chunks. The leading text is
	// identical, so chunk 0 is unchanged.
	shorter := textOf(8, "a")
	plan, err := r.Plan(Incoming{Title: "Policy-A", Content: shorter}, storedFromPlan(first))
	require.NoError(t, err)

	assert.Equal(t, ActionUpdate, plan.Action)
	assert.Equal(t, first.Document.ID, plan.Document.ID, "document ID survives updates")

	for _, c := range plan.Upserts {
		assert.NotEqual(t, 0, c.Index, "unchanged chunk 0 must not be upserted")
	}

	freshLen := len(r.chunkFor(plan.Document))
	require.NotEmpty(t, plan.Deletes)
	for _, c := range plan.Deletes {
		assert.GreaterOrEqual(t, c.Index, freshLen, "deletes are stored positions beyond the fresh sequence")
	}
}

func TestPlan_ShiftedChunkIsDeleteAndRecreate(t *testing.T) {
	// The diff is positional, not content-addressed: editing the front of a
	// document shifts every later chunk to a new position, and each shifted
	// position is rewritten even though its text exists elsewhere in the
	// stored set. This trades re-embedding cost for stable (doc, index)
	// vector keys.
	r := newTestReconciler()

	original := textOf(12, "a")
	first, err := r.Plan(Incoming{Title: "Policy-A", Content: original}, nil)
	require.NoError(t, err)
	require.Greater(t, len(first.Upserts), 1)

	edited := sentenceOf(5, "z") + " " + original
	plan, err := r.Plan(Incoming{Title: "Policy-A", Content: edited}, storedFromPlan(first))
	require.NoError(t, err)

	assert.Equal(t, ActionUpdate, plan.Action)
	// Every position changed, so every fresh chunk is an upsert.
	assert.Len(t, plan.Upserts, len(r.chunkFor(plan.Document)))
}

func TestPlan_InconsistentStoredChunksIsFatal(t *testing.T) {
	r := newTestReconciler()

	first, err := r.Plan(Incoming{Title: "Policy-A", Content: textOf(12, "a")}, nil)
	require.NoError(t, err)

	stored := storedFromPlan(first)
	require.Greater(t, len(stored.Chunks), 1)
	stored.Chunks[1].Index = 5 // break contiguity

	_, err = r.Plan(Incoming{Title: "Policy-A", Content: textOf(13, "a")}, stored)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrReconciliationInconsistency))
}

func TestPlan_PreservesSourceModifiedAt(t *testing.T) {
	r := newTestReconciler()
	modified := time.Date(2025, 11, 2, 9, 30, 0, 0, time.UTC)

	plan, err := r.Plan(Incoming{Title: "Policy-A", Content: textOf(6, "a"), SourceModifiedAt: modified}, nil)
	require.NoError(t, err)
	assert.Equal(t, modified, plan.Document.SourceModifiedAt)
}
