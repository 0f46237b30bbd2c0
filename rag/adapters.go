package rag

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
)

// LangChainEmbedder adapts langchaingo's embeddings.Embedder to our Embedder interface
type LangChainEmbedder struct {
	embedder embeddings.Embedder
	model    string

	dimOnce sync.Once
	dim     int
}

var _ Embedder = (*LangChainEmbedder)(nil)

// NewLangChainEmbedder creates a new adapter for langchaingo embedders.
// model is recorded as the identity of the produced vectors.
func NewLangChainEmbedder(embedder embeddings.Embedder, model string) *LangChainEmbedder {
	return &LangChainEmbedder{
		embedder: embedder,
		model:    model,
	}
}

// EmbedDocument embeds a single text using the underlying langchaingo embedder
func (l *LangChainEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	embedding, err := l.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	return toFloat32(embedding), nil
}

// EmbedDocuments embeds multiple texts using the underlying langchaingo embedder
func (l *LangChainEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := l.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}

	result := make([][]float32, len(vectors))
	for i, v := range vectors {
		result[i] = toFloat32(v)
	}
	return result, nil
}

// GetDimension probes the embedder once and remembers the answer.
// It returns 0 if the probe fails.
func (l *LangChainEmbedder) GetDimension() int {
	l.dimOnce.Do(func() {
		v, err := l.embedder.EmbedQuery(context.Background(), "dimension probe")
		if err == nil {
			l.dim = len(v)
		}
	})
	return l.dim
}

// ModelID returns the configured model name.
func (l *LangChainEmbedder) ModelID() string {
	return l.model
}

func toFloat32[T float32 | float64](in []T) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}

// ToSchemaDocuments converts retrieval hits into langchaingo documents. The
// document ID, source label, chunk index and score travel in Metadata.
func ToSchemaDocuments(hits []ScoredChunk) []schema.Document {
	docs := make([]schema.Document, len(hits))
	for i, h := range hits {
		docs[i] = schema.Document{
			PageContent: h.Chunk.Text,
			Score:       float32(h.Score),
			Metadata: map[string]any{
				MetadataDocumentID: h.Chunk.DocumentID,
				MetadataSource:     h.SourceLabel,
				"chunk_index":      h.Chunk.Index,
			},
		}
	}
	return docs
}

// ChunkMetadata returns the metadata stored with a document's index: the
// caller's metadata plus document_id and a source label.
func ChunkMetadata(documentID string, meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta)+2)
	maps.Copy(out, meta)
	out[MetadataDocumentID] = documentID
	out[MetadataSource] = SourceLabelFrom(meta)
	return out
}
