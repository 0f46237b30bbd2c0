package store

import (
	"context"
	"math"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/smallnest/educhat/rag"
)

// HashingEmbedder is a deterministic, offline embedder: each lower-cased word
// is hashed into one of Dimension buckets and the resulting vector is
// L2-normalised. Texts sharing words score higher under cosine similarity.
// It backs the "mock" embedding provider and the tests.
type HashingEmbedder struct {
	Dimension int
	Model     string

	documentCalls atomic.Int64
	queryCalls    atomic.Int64
}

var (
	_ rag.Embedder        = (*HashingEmbedder)(nil)
	_ rag.ModelIdentifier = (*HashingEmbedder)(nil)
)

// NewHashingEmbedder creates a HashingEmbedder with the given dimension.
func NewHashingEmbedder(dimension int) *HashingEmbedder {
	if dimension <= 0 {
		dimension = 64
	}
	return &HashingEmbedder{Dimension: dimension, Model: "hashing"}
}

// EmbedDocument embeds a single text.
func (e *HashingEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	e.queryCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.embed(text), nil
}

// EmbedDocuments embeds a batch of texts.
func (e *HashingEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	e.documentCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = e.embed(text)
	}
	return vectors, nil
}

// GetDimension returns the embedding dimension
func (e *HashingEmbedder) GetDimension() int {
	return e.Dimension
}

// ModelID identifies the vectors produced by this embedder.
func (e *HashingEmbedder) ModelID() string {
	return e.Model
}

// DocumentCalls returns how many times EmbedDocuments was called.
func (e *HashingEmbedder) DocumentCalls() int64 { return e.documentCalls.Load() }

// QueryCalls returns how many times EmbedDocument was called.
func (e *HashingEmbedder) QueryCalls() int64 { return e.queryCalls.Load() }

func (e *HashingEmbedder) embed(text string) []float32 {
	vec := make([]float32, e.Dimension)

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h := xxhash.Sum64String(w)
		bucket := h % uint64(e.Dimension)
		// The top bit picks the sign so unrelated words tend to cancel out.
		if h>>63 == 1 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		n := float32(math.Sqrt(norm))
		for i := range vec {
			vec[i] /= n
		}
	}
	return vec
}
