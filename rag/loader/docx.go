package loader

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

// DOCXExtractor extracts paragraph and table text from Word documents.
type DOCXExtractor struct{}

// NewDOCXExtractor creates a DOCXExtractor.
func NewDOCXExtractor() *DOCXExtractor { return &DOCXExtractor{} }

// Extensions implements Extractor.
func (DOCXExtractor) Extensions() []string { return []string{".docx"} }

// Extract implements Extractor.
func (DOCXExtractor) Extract(ctx context.Context, r io.Reader) (*Extracted, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}

	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read DOCX: %w", ErrExtractionFailed, err)
	}
	defer doc.Close()

	text, paragraphs, err := documentText(doc.Editable().GetContent())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}
	return &Extracted{
		Text:     text,
		Metadata: map[string]any{"type": "docx", "paragraphs": paragraphs},
	}, nil
}

// documentText walks word/document.xml. Runs (<w:t>) are concatenated,
// paragraphs (<w:p>) end with a blank line and each table row becomes one
// line of cells separated by "| ".
func documentText(content string) (string, int, error) {
	dec := xml.NewDecoder(strings.NewReader(content))

	var (
		sb         strings.Builder
		inText     bool
		inCell     int
		paragraphs int
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", 0, fmt.Errorf("parse document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tc":
				inCell++
			case "tab":
				sb.WriteByte('\t')
			case "br", "cr":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				paragraphs++
				if inCell > 0 {
					sb.WriteByte(' ')
				} else {
					sb.WriteString("\n\n")
				}
			case "tc":
				inCell--
				sb.WriteString("| ")
			case "tr":
				sb.WriteString("\n\n")
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return normalize(sb.String()), paragraphs, nil
}
