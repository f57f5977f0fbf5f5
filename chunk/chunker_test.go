package chunk

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/kbsync/token"
)

// sentenceOf builds a sentence with exactly n words.
func sentenceOf(n int, tag string) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("%s%d", tag, i)
	}
	return strings.Join(words, " ") + "."
}

func newTestChunker(minTok, maxTok, overlap int) *Chunker {
	return NewChunker(token.Words{}, WithWindow(minTok, maxTok), WithOverlap(overlap))
}

func TestChunker_ShortDocumentSingleChunk(t *testing.T) {
	c := newTestChunker(500, 800, 80)

	text := "A short document. It has two sentences."
	chunks := c.Chunk(text)

	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "A short document. It has two sentences.", chunks[0].Content)
	assert.Equal(t, 7, chunks[0].TokenCount)
}

func TestChunker_EmptyText(t *testing.T) {
	c := newTestChunker(500, 800, 80)
	assert.Nil(t, c.Chunk(""))
	assert.Nil(t, c.Chunk("   \n "))
}

func TestChunker_Deterministic(t *testing.T) {
	c := newTestChunker(10, 20, 5)

	var b strings.Builder
	for i := 0; i < 30; i++ {
		b.WriteString(sentenceOf(4, fmt.Sprintf("w%d", i)))
		b.WriteString(" ")
	}
	text := b.String()

	first := c.Chunk(text)
	second := c.Chunk(text)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Content, second[i].Content)
		assert.Equal(t, first[i].ContentHash, second[i].ContentHash)
	}
}

func TestChunker_TokenBounds(t *testing.T) {
	c := newTestChunker(10, 20, 5)

	var parts []string
	for i := 0; i < 40; i++ {
		parts = append(parts, sentenceOf(5, fmt.Sprintf("s%d", i)))
	}
	chunks := c.Chunk(strings.Join(parts, " "))
	require.Greater(t, len(chunks), 1)

	counter := token.Words{}
	for i, ch := range chunks[:len(chunks)-1] {
		got := counter.Count(ch.Content)
		assert.LessOrEqual(t, got, 20, "chunk %d exceeds max tokens", i)
		assert.GreaterOrEqual(t, got, 10, "chunk %d below min tokens", i)
	}
	// The tail carries whatever remains and may undershoot the minimum.
	assert.LessOrEqual(t, counter.Count(chunks[len(chunks)-1].Content), 20)
}

func TestChunker_OverlapIsSentenceAligned(t *testing.T) {
	c := newTestChunker(10, 20, 5)

	var parts []string
	for i := 0; i < 12; i++ {
		parts = append(parts, sentenceOf(5, fmt.Sprintf("s%d", i)))
	}
	chunks := c.Chunk(strings.Join(parts, " "))
	require.Greater(t, len(chunks), 1)

	for i := 0; i < len(chunks)-1; i++ {
		// The trailing sentence of chunk i must open chunk i+1 verbatim.
		prev := chunks[i].Content
		lastSentence := prev[strings.LastIndex(prev[:len(prev)-1], ".")+1:]
		lastSentence = strings.TrimSpace(lastSentence)
		assert.True(t, strings.HasPrefix(chunks[i+1].Content, lastSentence),
			"chunk %d does not start with the trailing sentence of chunk %d", i+1, i)
	}
}

func TestChunker_OversizedSentenceKeptWhole(t *testing.T) {
	c := newTestChunker(10, 20, 5)

	huge := sentenceOf(50, "huge")
	text := sentenceOf(5, "a") + " " + huge + " " + sentenceOf(5, "b")
	chunks := c.Chunk(text)

	var found bool
	for _, ch := range chunks {
		if strings.Contains(ch.Content, huge) {
			found = true
		}
	}
	assert.True(t, found, "oversized sentence must appear unsplit in some chunk")

	// All input sentences survive chunking.
	joined := strings.Join([]string{sentenceOf(5, "a"), huge, sentenceOf(5, "b")}, " ")
	for _, s := range NewRegexpSegmenter().Split(joined) {
		var present bool
		for _, ch := range chunks {
			if strings.Contains(ch.Content, s) {
				present = true
				break
			}
		}
		assert.True(t, present, "sentence %q was dropped", s)
	}
}

func TestChunker_MinBoundDefersClose(t *testing.T) {
	c := newTestChunker(10, 20, 5)

	// The second sentence would overflow the max bound, but the open chunk
	// only holds 4 tokens; it must absorb the sentence instead of closing
	// below the min bound.
	small := sentenceOf(4, "a")
	big := sentenceOf(18, "b")
	tail := sentenceOf(4, "c")
	chunks := c.Chunk(small + " " + big + " " + tail)

	require.Len(t, chunks, 2)
	assert.Equal(t, small+" "+big, chunks[0].Content)
	assert.GreaterOrEqual(t, chunks[0].TokenCount, 10)
	assert.Equal(t, big+" "+tail, chunks[1].Content)
}

func TestChunker_IndicesAreContiguous(t *testing.T) {
	c := newTestChunker(10, 20, 5)

	var parts []string
	for i := 0; i < 25; i++ {
		parts = append(parts, sentenceOf(5, fmt.Sprintf("s%d", i)))
	}
	chunks := c.Chunk(strings.Join(parts, " "))

	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
	}
}

func TestChunker_DefaultWindowScenario(t *testing.T) {
	// A ~1900-token document under the default 500/800/80 window splits into
	// three overlapping chunks.
	c := NewChunker(token.Words{})

	var parts []string
	for i := 0; i < 19; i++ {
		parts = append(parts, sentenceOf(100, fmt.Sprintf("p%d", i)))
	}
	chunks := c.Chunk(strings.Join(parts, " "))

	require.Len(t, chunks, 3)
	counter := token.Words{}
	assert.LessOrEqual(t, counter.Count(chunks[0].Content), 800)
	assert.LessOrEqual(t, counter.Count(chunks[1].Content), 800)
	assert.GreaterOrEqual(t, counter.Count(chunks[0].Content), 500)
	assert.GreaterOrEqual(t, counter.Count(chunks[1].Content), 500)
}
