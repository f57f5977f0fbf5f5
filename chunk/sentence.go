package chunk

import (
	"regexp"
	"strings"
)

// Segmenter splits normalized text into sentence-like units.
// Units are returned in reading order with surrounding whitespace trimmed.
type Segmenter interface {
	Split(text string) []string
}

// RegexpSegmenter detects sentence boundaries on terminal punctuation.
// Text after the last terminator (headings, list fragments) is kept as a
// trailing unit so no content is ever dropped.
type RegexpSegmenter struct {
	boundary *regexp.Regexp
}

var _ Segmenter = (*RegexpSegmenter)(nil)

// NewRegexpSegmenter creates the default sentence segmenter.
func NewRegexpSegmenter() *RegexpSegmenter {
	return &RegexpSegmenter{
		boundary: regexp.MustCompile(`[^.!?]+[.!?]+`),
	}
}

// Split returns the sentence units of text.
func (s *RegexpSegmenter) Split(text string) []string {
	matches := s.boundary.FindAllStringIndex(text, -1)

	var units []string
	last := 0
	for _, m := range matches {
		unit := strings.TrimSpace(text[m[0]:m[1]])
		if unit != "" {
			units = append(units, unit)
		}
		last = m[1]
	}

	// Trailing text with no terminal punctuation is still a unit.
	if rest := strings.TrimSpace(text[last:]); rest != "" {
		units = append(units, rest)
	}

	return units
}
