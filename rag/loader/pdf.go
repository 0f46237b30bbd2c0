package loader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor extracts the plain text of every page.
type PDFExtractor struct{}

// NewPDFExtractor creates a PDFExtractor.
func NewPDFExtractor() *PDFExtractor { return &PDFExtractor{} }

// Extensions implements Extractor.
func (PDFExtractor) Extensions() []string { return []string{".pdf"} }

// Extract implements Extractor. Pages whose text cannot be decoded are
// skipped; an unreadable file is an error.
func (PDFExtractor) Extract(ctx context.Context, r io.Reader) (*Extracted, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse PDF: %w", ErrExtractionFailed, err)
	}

	total := reader.NumPage()
	pages := make([]string, 0, total)
	skipped := 0
	for n := 1; n <= total; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(n)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			skipped++
			continue
		}
		if strings.TrimSpace(text) != "" {
			pages = append(pages, text)
		}
	}

	return &Extracted{
		Text: normalize(strings.Join(pages, "\n\n")),
		Metadata: map[string]any{
			"type":          "pdf",
			"pages":         total,
			"skipped_pages": skipped,
		},
	}, nil
}
