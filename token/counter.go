// Package token provides deterministic token counting for chunk sizing.
//
// The chunker bounds chunks in model tokens, so the counter must use the
// same tokenization scheme as the embedding model or chunk sizes silently
// drift from the intended window.
package token

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the BPE encoding used by current OpenAI embedding models.
const DefaultEncoding = "cl100k_base"

// Counter returns the number of model-relevant units in a text span.
// Implementations must be pure: identical input yields an identical count.
type Counter interface {
	Count(text string) int
}

// Tiktoken counts tokens with an OpenAI BPE encoding.
type Tiktoken struct {
	encoding *tiktoken.Tiktoken
}

var _ Counter = (*Tiktoken)(nil)

// NewTiktoken creates a counter for the named encoding.
// An empty name selects DefaultEncoding.
func NewTiktoken(encoding string) (*Tiktoken, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return &Tiktoken{encoding: enc}, nil
}

// NewTiktokenForModel creates a counter matching a model's tokenizer.
func NewTiktokenForModel(model string) (*Tiktoken, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, err
	}
	return &Tiktoken{encoding: enc}, nil
}

// Count returns the number of BPE tokens in text.
func (t *Tiktoken) Count(text string) int {
	return len(t.encoding.Encode(text, nil, nil))
}

// Words is a whitespace word counter. It is a coarse stand-in for BPE
// counting when no encoding data is available (offline runs, tests).
type Words struct{}

var _ Counter = (*Words)(nil)

// Count returns the number of whitespace-separated fields in text.
func (Words) Count(text string) int {
	return len(strings.Fields(text))
}
