package core

import (
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for vector records.
// It is derived deterministically from a document ID and chunk index.
type ID uint64

// IDFromContent generates a deterministic ID from text using BLAKE2b hashing.
// Identical input always produces the same ID.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// ChunkVectorID derives the stable vector-store key for a chunk position.
// The ID survives re-chunking as long as the chunk keeps its position, which
// is what allows vector upserts to overwrite stale entries in place.
func ChunkVectorID(documentID string, index int) ID {
	return IDFromContent(documentID + ":" + strconv.Itoa(index))
}

// HashContent returns the BLAKE2b-256 hex digest of text.
// Used as the content_hash for documents and chunks.
func HashContent(text string) string {
	h, _ := blake2b.New(32, nil)
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Document is a single source document tracked by the sync process.
// At most one Document exists per title.
type Document struct {
	ID               string // UUID, assigned on first successful sync
	Title            string // stable content-derived key
	Content          string // normalized full text
	ContentHash      string // BLAKE2b-256 hex of Content, detects no-op syncs
	IndexDirty       bool   // vector writes did not complete; next sync must rebuild
	SourceModifiedAt time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Chunk is a bounded, overlapping segment of a document's text.
// Chunks are identified by (DocumentID, Index); indices are contiguous from 0.
type Chunk struct {
	DocumentID  string
	Index       int // 0-based position within the document
	Content     string
	TokenCount  int
	ContentHash string // BLAKE2b-256 hex of Content
	CreatedAt   time.Time
}

// VectorID returns the stable vector-store key for this chunk.
func (c *Chunk) VectorID() ID {
	return ChunkVectorID(c.DocumentID, c.Index)
}
