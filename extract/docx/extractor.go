// Package docx extracts plain text from Office Open XML word documents.
package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/poiesic/kbsync/core"
	"github.com/poiesic/kbsync/extract"
)

// MIMEType is the .docx content type.
const MIMEType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// Extractor parses .docx archives and returns paragraph text joined by
// newlines, matching the structure the chunker expects.
type Extractor struct{}

var _ extract.Extractor = (*Extractor)(nil)

// New creates a docx extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract reads word/document.xml out of the archive and flattens its
// paragraph runs. Empty paragraphs are skipped.
func (e *Extractor) Extract(_ context.Context, raw []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("%w: not a docx archive: %v", core.ErrUnsupportedFormat, err)
	}

	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("%w: opening document.xml: %v", core.ErrUnsupportedFormat, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("%w: reading document.xml: %v", core.ErrUnsupportedFormat, err)
		}

		return parseDocumentXML(content)
	}

	return "", fmt.Errorf("%w: archive has no word/document.xml", core.ErrUnsupportedFormat)
}

// documentXML mirrors the parts of word/document.xml we need.
type documentXML struct {
	Body struct {
		Paragraphs []paragraph `xml:"p"`
	} `xml:"body"`
}

type paragraph struct {
	Runs []run `xml:"r"`
}

type run struct {
	Text []textElement `xml:"t"`
}

type textElement struct {
	Content string `xml:",chardata"`
}

func parseDocumentXML(content []byte) (string, error) {
	var doc documentXML
	if err := xml.Unmarshal(content, &doc); err != nil {
		return "", fmt.Errorf("%w: malformed document.xml: %v", core.ErrUnsupportedFormat, err)
	}

	var b strings.Builder
	for _, para := range doc.Body.Paragraphs {
		var line strings.Builder
		for _, r := range para.Runs {
			for _, t := range r.Text {
				line.WriteString(t.Content)
			}
		}
		if text := strings.TrimSpace(line.String()); text != "" {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(text)
		}
	}

	return b.String(), nil
}
