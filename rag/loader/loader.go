package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

var (
	// ErrUnsupportedFormat is returned for file types that have no extractor.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrExtractionFailed wraps parser failures.
	ErrExtractionFailed = errors.New("text extraction failed")
)

// Extracted is the plain text of a document plus what the extractor could
// learn about it.
type Extracted struct {
	Text     string
	Title    string
	FileType string
	Metadata map[string]any
}

// Extractor turns the bytes of one document format into plain text.
type Extractor interface {
	Extract(ctx context.Context, r io.Reader) (*Extracted, error)
	// Extensions lists the lower-case file extensions handled, with the dot.
	Extensions() []string
}

// Image formats need a vision model; callers that have one register an
// ImageExtractor.
var unsupported = map[string]string{
	".png":  "image extraction needs a vision model",
	".jpg":  "image extraction needs a vision model",
	".jpeg": "image extraction needs a vision model",
}

// Registry picks an Extractor by file extension.
type Registry struct {
	extractors map[string]Extractor
}

// NewRegistry returns a registry with the built-in extractors for text,
// markdown, HTML, PDF, DOCX and PPTX.
func NewRegistry() *Registry {
	r := &Registry{extractors: make(map[string]Extractor)}
	r.Register(NewTextExtractor())
	r.Register(NewMarkdownExtractor())
	r.Register(NewHTMLExtractor())
	r.Register(NewPDFExtractor())
	r.Register(NewDOCXExtractor())
	r.Register(NewPPTXExtractor())
	return r
}

// Register adds or replaces the extractor for each of its extensions.
func (r *Registry) Register(e Extractor) {
	for _, ext := range e.Extensions() {
		r.extractors[strings.ToLower(ext)] = e
	}
}

// Extensions returns the supported extensions, sorted.
func (r *Registry) Extensions() []string {
	return slices.Sorted(maps.Keys(r.extractors))
}

// Detect returns the extractor for path and its file type (the extension
// without the dot).
func (r *Registry) Detect(path string) (Extractor, string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	fileType := strings.TrimPrefix(ext, ".")
	if e, ok := r.extractors[ext]; ok {
		return e, fileType, nil
	}
	if reason, ok := unsupported[ext]; ok {
		return nil, fileType, fmt.Errorf("%w: %s: %s", ErrUnsupportedFormat, ext, reason)
	}
	if ext == "" {
		return nil, fileType, fmt.Errorf("%w: %s has no extension", ErrUnsupportedFormat, filepath.Base(path))
	}
	return nil, fileType, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
}

// ExtractFile detects the format of path and extracts its text. The title
// defaults to the file name without extension when the format carries none.
func (r *Registry) ExtractFile(ctx context.Context, path string) (*Extracted, error) {
	e, fileType, err := r.Detect(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer f.Close()

	out, err := e.Extract(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	out.FileType = fileType
	if out.Title == "" {
		base := filepath.Base(path)
		out.Title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if out.Metadata == nil {
		out.Metadata = make(map[string]any)
	}
	out.Metadata["file_name"] = filepath.Base(path)
	out.Metadata["word_count"] = len(strings.Fields(out.Text))
	return out, nil
}

// normalize converts line endings, trims trailing space on every line and
// collapses runs of blank lines into one, so paragraph breaks survive as a
// single "\n\n".
func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t\u00a0")
		if strings.TrimSpace(line) == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
