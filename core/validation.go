package core

import "fmt"

// ValidateChunkSequence checks that a stored chunk set is structurally sound:
// indices form 0..N-1 with no gaps or duplicates. Chunks must already be
// ordered by Index, which is how stores return them.
// Returns ErrReconciliationInconsistency (wrapped) on the first violation.
func ValidateChunkSequence(chunks []Chunk) error {
	for i, c := range chunks {
		if c.Index != i {
			return fmt.Errorf("%w: expected index %d, found %d", ErrReconciliationInconsistency, i, c.Index)
		}
		if c.ContentHash == "" {
			return fmt.Errorf("%w: chunk %d has no content hash", ErrReconciliationInconsistency, i)
		}
	}
	return nil
}
