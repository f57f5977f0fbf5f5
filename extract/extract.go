// Package extract turns raw document bytes into normalized plain text.
package extract

import "context"

// Extractor parses raw document bytes into normalized text with paragraphs
// separated by newlines. Implementations return an error wrapping
// core.ErrUnsupportedFormat when the bytes cannot be parsed.
type Extractor interface {
	Extract(ctx context.Context, raw []byte) (string, error)
}

// PlainText treats raw bytes as UTF-8 text. Useful for plain-text sources
// and tests.
type PlainText struct{}

var _ Extractor = (*PlainText)(nil)

// Extract returns the bytes unchanged as a string.
func (PlainText) Extract(_ context.Context, raw []byte) (string, error) {
	return string(raw), nil
}
