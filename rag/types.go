package rag

import (
	"context"
	"fmt"
	"time"
)

// Metadata keys recorded for every indexed document.
const (
	MetadataDocumentID = "document_id"
	MetadataSource     = "source"
	MetadataCreatedAt  = "created_at"
)

// UnknownSource is the source label used when a document has no title.
const UnknownSource = "Unknown"

// Span is a half-open [Start, End) range of rune offsets into a document's text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of runes covered by the span.
func (s Span) Len() int { return s.End - s.Start }

// Chunk is a contiguous slice of a document's extracted text, the unit of
// embedding and retrieval.
type Chunk struct {
	DocumentID string `json:"document_id"`
	Index      int    `json:"index"`
	Text       string `json:"text"`
	Span       Span   `json:"char_span"`
}

// DocumentIndex is the per-document vector index: chunks and a parallel
// slice of embedding vectors. It is immutable once built.
type DocumentIndex struct {
	DocumentID     string         `json:"document_id"`
	ContentHash    string         `json:"content_hash"`
	EmbeddingModel string         `json:"embedding_model"`
	Dimension      int            `json:"dimension"`
	Chunks         []Chunk        `json:"chunks"`
	Vectors        [][]float32    `json:"vectors"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	BuiltAt        time.Time      `json:"built_at"`

	// PersistedPath is where the persister stored the index (file path or
	// redis key). It is filled in on save and load.
	PersistedPath string `json:"-"`
}

// SourceLabel returns the human readable source of the document, taken from
// the "source" metadata entry.
func (idx *DocumentIndex) SourceLabel() string {
	return SourceLabelFrom(idx.Metadata)
}

// SourceLabelFrom extracts a source label from document metadata.
func SourceLabelFrom(meta map[string]any) string {
	if meta != nil {
		if s, ok := meta[MetadataSource].(string); ok && s != "" {
			return s
		}
	}
	return UnknownSource
}

// Validate checks the structural invariants of an index: one vector per chunk,
// every vector of the recorded dimension, chunks numbered in order.
func (idx *DocumentIndex) Validate() error {
	if len(idx.Chunks) != len(idx.Vectors) {
		return fmt.Errorf("index %s: %d chunks but %d vectors", idx.DocumentID, len(idx.Chunks), len(idx.Vectors))
	}
	for i, v := range idx.Vectors {
		if len(v) != idx.Dimension {
			return fmt.Errorf("index %s: vector %d has dimension %d, want %d", idx.DocumentID, i, len(v), idx.Dimension)
		}
		if idx.Chunks[i].Index != i {
			return fmt.Errorf("index %s: chunk at position %d has index %d", idx.DocumentID, i, idx.Chunks[i].Index)
		}
	}
	return nil
}

// Search returns the topK chunks closest to query, ordered by descending
// score with ties broken by ascending chunk index.
func (idx *DocumentIndex) Search(query []float32, topK int, metric Metric) []ScoredChunk {
	label := idx.SourceLabel()
	return rank(len(idx.Chunks), topK, func(i int) ([]float32, Chunk, string) {
		return idx.Vectors[i], idx.Chunks[i], label
	}, query, metric)
}

// ScoredChunk is a retrieval hit.
type ScoredChunk struct {
	Chunk       Chunk   `json:"chunk"`
	SourceLabel string  `json:"source"`
	Score       float64 `json:"score"`
}

// CombinedEntry is one chunk of a CombinedIndex, tagged with its origin.
type CombinedEntry struct {
	Chunk       Chunk
	SourceLabel string
	Vector      []float32
}

// CombinedIndex is an ephemeral union of several DocumentIndexes.
type CombinedIndex struct {
	// DocumentIDs lists the documents that contributed chunks, sorted.
	DocumentIDs []string
	// Skipped maps documents that could not be included to the reason.
	Skipped        map[string]error
	EmbeddingModel string
	Dimension      int
	Entries        []CombinedEntry
}

// Len returns the number of chunks in the combined index.
func (c *CombinedIndex) Len() int { return len(c.Entries) }

// Search ranks every entry against query. Ties keep fusion order, i.e.
// document order then chunk index.
func (c *CombinedIndex) Search(query []float32, topK int, metric Metric) []ScoredChunk {
	return rank(len(c.Entries), topK, func(i int) ([]float32, Chunk, string) {
		e := c.Entries[i]
		return e.Vector, e.Chunk, e.SourceLabel
	}, query, metric)
}

// SourceRef attributes part of an answer to a document.
type SourceRef struct {
	DocumentID  string `json:"document_id"`
	SourceLabel string `json:"source"`
	Excerpt     string `json:"text_excerpt"`
}

// ExcerptLength is the maximum number of runes kept in a SourceRef excerpt.
const ExcerptLength = 200

// NewSourceRef builds the attribution record for a retrieved chunk.
func NewSourceRef(sc ScoredChunk) SourceRef {
	return SourceRef{
		DocumentID:  sc.Chunk.DocumentID,
		SourceLabel: sc.SourceLabel,
		Excerpt:     Excerpt(sc.Chunk.Text, ExcerptLength),
	}
}

// Excerpt truncates text to n runes, appending "..." when it was cut.
func Excerpt(text string, n int) string {
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "..."
}

// Embedder is the embedding capability consumed by the index store.
type Embedder interface {
	// EmbedDocument embeds a single text (used for queries).
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
	// EmbedDocuments embeds a batch of texts, returning one vector per text.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// GetDimension returns the vector dimension, or 0 if not known up front.
	GetDimension() int
}

// ModelIdentifier is implemented by embedders that can name their model.
// The name is persisted with each index so that a model change triggers a
// rebuild instead of mixing vector spaces.
type ModelIdentifier interface {
	ModelID() string
}

// EmbeddingModelID returns the model identity recorded for vectors produced by e.
func EmbeddingModelID(e Embedder) string {
	if m, ok := e.(ModelIdentifier); ok && m.ModelID() != "" {
		return m.ModelID()
	}
	return fmt.Sprintf("%T", e)
}
