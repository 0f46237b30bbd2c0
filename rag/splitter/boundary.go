package splitter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/smallnest/educhat/rag"
)

const (
	// DefaultChunkSize is the window length, in characters, used when none is configured.
	DefaultChunkSize = 1000
	// DefaultChunkOverlap is the overlap used when none is configured.
	DefaultChunkOverlap = 200
)

var (
	paragraphSeparator = []rune("\n\n")
	sentenceSeparator  = []rune(". ")
)

var (
	// ErrInvalidChunkSize is returned for a non-positive chunk size.
	ErrInvalidChunkSize = errors.New("chunk size must be positive")
	// ErrInvalidOverlap is returned when the overlap is negative or not smaller than the chunk size.
	ErrInvalidOverlap = errors.New("chunk overlap must be non-negative and smaller than chunk size")
)

// BoundarySplitter splits text into overlapping windows of ChunkSize
// characters, preferring to end a window on a paragraph or sentence boundary.
type BoundarySplitter struct {
	ChunkSize    int
	ChunkOverlap int
}

var _ textsplitter.TextSplitter = (*BoundarySplitter)(nil)

// New creates a BoundarySplitter, rejecting configurations that could not
// make progress.
func New(chunkSize, chunkOverlap int) (*BoundarySplitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChunkSize, chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("%w: overlap %d, size %d", ErrInvalidOverlap, chunkOverlap, chunkSize)
	}
	return &BoundarySplitter{ChunkSize: chunkSize, ChunkOverlap: chunkOverlap}, nil
}

// NewDefault returns a splitter with the default 1000/200 configuration.
func NewDefault() *BoundarySplitter {
	return &BoundarySplitter{ChunkSize: DefaultChunkSize, ChunkOverlap: DefaultChunkOverlap}
}

// SplitText implements textsplitter.TextSplitter.
func (s *BoundarySplitter) SplitText(text string) ([]string, error) {
	return Chunk(text, s.ChunkSize, s.ChunkOverlap), nil
}

// Segment returns the rune spans of each chunk of text.
func (s *BoundarySplitter) Segment(text string) []rag.Span {
	return Segment(text, s.ChunkSize, s.ChunkOverlap)
}

// SplitDocument chunks a document's text into numbered rag.Chunks.
func (s *BoundarySplitter) SplitDocument(documentID, text string) []rag.Chunk {
	runes := []rune(text)
	spans := Segment(text, s.ChunkSize, s.ChunkOverlap)

	chunks := make([]rag.Chunk, len(spans))
	for i, sp := range spans {
		chunks[i] = rag.Chunk{
			DocumentID: documentID,
			Index:      i,
			Text:       string(runes[sp.Start:sp.End]),
			Span:       sp,
		}
	}
	return chunks
}

// Chunk splits text into overlapping, boundary-aware chunks. It is a pure
// function of its inputs.
func Chunk(text string, chunkSize, overlap int) []string {
	runes := []rune(text)
	spans := Segment(text, chunkSize, overlap)

	chunks := make([]string, len(spans))
	for i, sp := range spans {
		chunks[i] = string(runes[sp.Start:sp.End])
	}
	return chunks
}

// Segment computes chunk boundaries as rune offsets. Consecutive spans
// overlap by at most overlap runes and together cover the whole text.
// Empty or whitespace-only text has no chunks.
//
// A non-positive chunkSize falls back to DefaultChunkSize. A negative overlap
// is treated as zero and an overlap not smaller than chunkSize is clamped to
// half of it, so every window advances.
func Segment(text string, chunkSize, overlap int) []rag.Span {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	overlap = max(overlap, 0)
	if overlap >= chunkSize {
		overlap = chunkSize / 2
	}

	runes := []rune(text)
	n := len(runes)

	var spans []rag.Span
	for start := 0; start < n; {
		end := min(start+chunkSize, n)
		if end < n {
			end = breakPoint(runes, start, end)
		}
		spans = append(spans, rag.Span{Start: start, End: end})
		if end == n {
			break
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return spans
}

// breakPoint picks where the window [start, end) should end: just after the
// last paragraph separator past the midpoint, else just after the last
// sentence separator past the midpoint, else end itself.
func breakPoint(runes []rune, start, end int) int {
	mid := start + (end-start)/2
	for _, sep := range [][]rune{paragraphSeparator, sentenceSeparator} {
		if p := lastBreak(runes[start:end], sep); p >= 0 && start+p > mid {
			return start + p
		}
	}
	return end
}

// lastBreak returns the offset just past the last occurrence of sep in
// window, or -1.
func lastBreak(window, sep []rune) int {
	for i := len(window) - len(sep); i >= 0; i-- {
		if hasPrefix(window[i:], sep) {
			return i + len(sep)
		}
	}
	return -1
}

func hasPrefix(s, prefix []rune) bool {
	if len(s) < len(prefix) {
		return false
	}
	for i := range prefix {
		if s[i] != prefix[i] {
			return false
		}
	}
	return true
}
