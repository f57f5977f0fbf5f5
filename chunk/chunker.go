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


// Package chunk splits document text into bounded, overlapping segments.
//
// Chunking is deterministic: identical input text always yields an identical
// chunk sequence. Reconciliation's content-hash comparison depends on this.
package chunk

import (
	"strings"

	"github.com/poiesic/kbsync/core"
	"github.com/poiesic/kbsync/token"
)

// Default chunk window, in model tokens.
const (
	DefaultMinTokens     = 500
	DefaultMaxTokens     = 800
	DefaultOverlapTokens = 80
)

// Chunker accumulates sentence units into token-bounded chunks with
// sentence-aligned overlap between adjacent chunks.
type Chunker struct {
	counter   token.Counter
	segmenter Segmenter
	minTokens int
	maxTokens int
	overlap   int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithWindow sets the chunk token window. A chunk is never closed below
// minTokens unless an oversized sentence forces the cut.
// Non-positive values keep the defaults.
func WithWindow(minTokens, maxTokens int) Option {
	return func(c *Chunker) {
		if minTokens > 0 {
			c.minTokens = minTokens
		}
		if maxTokens > 0 {
			c.maxTokens = maxTokens
		}
	}
}

// WithOverlap sets the number of trailing tokens reproduced at the start of
// the next chunk. Negative values keep the default.
func WithOverlap(overlapTokens int) Option {
	return func(c *Chunker) {
		if overlapTokens >= 0 {
			c.overlap = overlapTokens
		}
	}
}

// WithSegmenter replaces the sentence boundary detector.
func WithSegmenter(s Segmenter) Option {
	return func(c *Chunker) {
		if s != nil {
			c.segmenter = s
		}
	}
}

// NewChunker creates a Chunker using the given token counter.
func NewChunker(counter token.Counter, opts ...Option) *Chunker {
	c := &Chunker{
		counter:   counter,
		segmenter: NewRegexpSegmenter(),
		minTokens: DefaultMinTokens,
		maxTokens: DefaultMaxTokens,
		overlap:   DefaultOverlapTokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.maxTokens {
		c.overlap = c.maxTokens / 4
	}
	if c.minTokens >= c.maxTokens {
		c.minTokens = c.maxTokens / 2
	}
	return c
}

// Chunk splits text into an ordered sequence of chunks. Index, TokenCount
// and ContentHash are populated; DocumentID is assigned by the caller.
//
// Sentences accumulate greedily until adding the next one would exceed the
// max token bound; a chunk below the min bound keeps accumulating past the
// max rather than closing undersized. The next chunk is seeded by walking
// backward from the end of the closed chunk, re-including whole sentences
// until at least the overlap budget of trailing content recurs. A single
// sentence longer than the max bound becomes its own chunk rather than
// being split or dropped; a document shorter than the window yields exactly
// one chunk.
func (c *Chunker) Chunk(text string) []core.Chunk {
	sentences := c.segmenter.Split(text)
	if len(sentences) == 0 {
		return nil
	}

	tokenCounts := make([]int, len(sentences))
	for i, s := range sentences {
		tokenCounts[i] = c.counter.Count(s)
	}

	var (
		texts   []string
		current []int // indices into sentences
		tokens  int
	)

	flush := func() {
		if len(current) == 0 {
			return
		}
		parts := make([]string, len(current))
		for i, idx := range current {
			parts[i] = sentences[idx]
		}
		texts = append(texts, strings.Join(parts, " "))
	}

	for i := range sentences {
		// An undersized chunk stays open unless the next sentence is itself
		// oversized, in which case it must stand alone.
		closeHere := len(current) > 0 && tokens+tokenCounts[i] > c.maxTokens &&
			(tokens >= c.minTokens || tokenCounts[i] > c.maxTokens)
		if closeHere {
			flush()

			// Seed the next chunk with whole trailing sentences until the
			// overlap budget is covered. Never re-include the whole chunk.
			overlapTokens := 0
			start := len(current)
			for start > 1 && overlapTokens < c.overlap {
				start--
				overlapTokens += tokenCounts[current[start]]
			}
			current = append([]int(nil), current[start:]...)
			tokens = overlapTokens
		}
		current = append(current, i)
		tokens += tokenCounts[i]
	}
	flush()

	chunks := make([]core.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = core.Chunk{
			Index:       i,
			Content:     t,
			TokenCount:  c.counter.Count(t),
			ContentHash: core.HashContent(t),
		}
	}
	return chunks
}
