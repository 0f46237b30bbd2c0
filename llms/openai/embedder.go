package openai

import (
	"context"

	"github.com/smallnest/educhat/rag"
)

// Embedder adapts an LLM's embedding endpoint to rag.Embedder.
type Embedder struct {
	llm *LLM
}

var (
	_ rag.Embedder        = (*Embedder)(nil)
	_ rag.ModelIdentifier = (*Embedder)(nil)
)

// Embedder returns the embedding capability of the client.
func (o *LLM) Embedder() *Embedder {
	return &Embedder{llm: o}
}

// EmbedDocument embeds a single text.
func (e *Embedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.llm.CreateEmbedding(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedDocuments embeds a batch of texts.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return e.llm.CreateEmbedding(ctx, texts)
}

// GetDimension returns the vector size seen so far, or 0 before the first call.
func (e *Embedder) GetDimension() int {
	return int(e.llm.dimension.Load())
}

// ModelID returns the embedding model name.
func (e *Embedder) ModelID() string {
	return e.llm.embeddingModel
}
