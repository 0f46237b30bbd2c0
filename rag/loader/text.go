package loader

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/tmc/langchaingo/documentloaders"
)

// TextExtractor reads plain text files through langchaingo's text loader.
type TextExtractor struct{}

// NewTextExtractor creates a TextExtractor.
func NewTextExtractor() *TextExtractor { return &TextExtractor{} }

// Extensions implements Extractor.
func (TextExtractor) Extensions() []string { return []string{".txt", ".text"} }

// Extract implements Extractor.
func (TextExtractor) Extract(ctx context.Context, r io.Reader) (*Extracted, error) {
	docs, err := documentloaders.NewText(r).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}

	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		parts = append(parts, d.PageContent)
	}
	return &Extracted{
		Text:     normalize(strings.Join(parts, "\n\n")),
		Metadata: map[string]any{"type": "text"},
	}, nil
}
