package core

import (
	"errors"
	"testing"
)

func TestValidateChunkSequence(t *testing.T) {
	tests := []struct {
		name    string
		indices []int
		wantErr bool
	}{
		{
			name:    "empty set is valid",
			indices: nil,
			wantErr: false,
		},
		{
			name:    "contiguous from zero",
			indices: []int{0, 1, 2, 3},
			wantErr: false,
		},
		{
			name:    "single chunk",
			indices: []int{0},
			wantErr: false,
		},
		{
			name:    "gap in sequence",
			indices: []int{0, 2, 3},
			wantErr: true,
		},
		{
			name:    "does not start at zero",
			indices: []int{1, 2},
			wantErr: true,
		},
		{
			name:    "duplicate index",
			indices: []int{0, 1, 1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := make([]Chunk, len(tt.indices))
			for i, idx := range tt.indices {
				chunks[i] = Chunk{Index: idx, ContentHash: HashContent("chunk")}
			}

			err := ValidateChunkSequence(chunks)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateChunkSequence() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrReconciliationInconsistency) {
				t.Errorf("ValidateChunkSequence() error not wrapped with ErrReconciliationInconsistency: %v", err)
			}
		})
	}
}

func TestValidateChunkSequence_MissingHash(t *testing.T) {
	chunks := []Chunk{{Index: 0}}
	if err := ValidateChunkSequence(chunks); !errors.Is(err, ErrReconciliationInconsistency) {
		t.Errorf("ValidateChunkSequence() = %v, want ErrReconciliationInconsistency", err)
	}
}
