package retriever

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/schema"

	"github.com/smallnest/educhat/rag"
)

// Search strategies.
const (
	SearchSimilarity = "similarity"
	SearchMMR        = "mmr"
)

// DefaultK is the number of chunks retrieved per question.
const DefaultK = 5

// Config controls retrieval.
type Config struct {
	K              int
	ScoreThreshold float64
	Metric         rag.Metric
	SearchType     string
	// MMRLambda balances relevance against diversity for SearchMMR.
	MMRLambda float64
}

// VectorRetriever retrieves chunks from a CombinedIndex by vector similarity
type VectorRetriever struct {
	index    *rag.CombinedIndex
	embedder rag.Embedder
	config   Config
	vectors  map[chunkKey][]float32
}

var _ schema.Retriever = (*VectorRetriever)(nil)

type chunkKey struct {
	documentID string
	index      int
}

// NewVectorRetriever creates a new vector retriever
func NewVectorRetriever(index *rag.CombinedIndex, embedder rag.Embedder, config Config) *VectorRetriever {
	if config.K <= 0 {
		config.K = DefaultK
	}
	if config.Metric == "" {
		config.Metric = rag.MetricCosine
	}
	if config.SearchType == "" {
		config.SearchType = SearchSimilarity
	}
	if config.MMRLambda <= 0 || config.MMRLambda > 1 {
		config.MMRLambda = 0.5
	}

	r := &VectorRetriever{
		index:    index,
		embedder: embedder,
		config:   config,
	}
	if config.SearchType == SearchMMR {
		r.vectors = make(map[chunkKey][]float32, index.Len())
		for _, e := range index.Entries {
			r.vectors[chunkKey{e.Chunk.DocumentID, e.Chunk.Index}] = e.Vector
		}
	}
	return r
}

// Index returns the combined index being searched.
func (r *VectorRetriever) Index() *rag.CombinedIndex { return r.index }

// Retrieve returns the configured number of chunks for query
func (r *VectorRetriever) Retrieve(ctx context.Context, query string) ([]rag.ScoredChunk, error) {
	return r.RetrieveWithK(ctx, query, r.config.K)
}

// RetrieveWithK returns at most k chunks, best first. Query embedding
// failures wrap rag.ErrEmbeddingUnavailable.
func (r *VectorRetriever) RetrieveWithK(ctx context.Context, query string, k int) ([]rag.ScoredChunk, error) {
	qv, err := r.embedder.EmbedDocument(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to embed query: %w", rag.ErrEmbeddingUnavailable, err)
	}

	fetch := k
	if r.config.SearchType == SearchMMR {
		// Over-fetch so there is something to diversify over.
		fetch = k * 4
	}
	results := r.index.Search(qv, fetch, r.config.Metric)

	// Filter by score threshold
	if r.config.ScoreThreshold > 0 {
		filtered := make([]rag.ScoredChunk, 0, len(results))
		for _, res := range results {
			if res.Score >= r.config.ScoreThreshold {
				filtered = append(filtered, res)
			}
		}
		results = filtered
	}

	if r.config.SearchType == SearchMMR {
		results = r.applyMMR(results, k)
	}
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// GetRelevantDocuments implements langchaingo's schema.Retriever.
func (r *VectorRetriever) GetRelevantDocuments(ctx context.Context, query string) ([]schema.Document, error) {
	hits, err := r.Retrieve(ctx, query)
	if err != nil {
		return nil, err
	}
	return rag.ToSchemaDocuments(hits), nil
}

// applyMMR applies Maximal Marginal Relevance to ensure diversity
func (r *VectorRetriever) applyMMR(results []rag.ScoredChunk, k int) []rag.ScoredChunk {
	if len(results) <= k {
		return results
	}

	selected := make([]rag.ScoredChunk, 0, k)
	selected = append(selected, results[0]) // Always select the highest scoring result

	candidates := append([]rag.ScoredChunk(nil), results[1:]...)
	lambda := r.config.MMRLambda

	for len(selected) < k && len(candidates) > 0 {
		bestIdx := 0
		bestScore := 0.0

		for i, candidate := range candidates {
			// Maximal similarity to already selected chunks
			maxSimilarity := 0.0
			for _, s := range selected {
				if sim := r.similarity(candidate, s); sim > maxSimilarity {
					maxSimilarity = sim
				}
			}

			mmrScore := lambda*candidate.Score - (1-lambda)*maxSimilarity
			if i == 0 || mmrScore > bestScore {
				bestScore = mmrScore
				bestIdx = i
			}
		}

		selected = append(selected, candidates[bestIdx])
		candidates = append(candidates[:bestIdx], candidates[bestIdx+1:]...)
	}

	return selected
}

func (r *VectorRetriever) similarity(a, b rag.ScoredChunk) float64 {
	va := r.vectors[chunkKey{a.Chunk.DocumentID, a.Chunk.Index}]
	vb := r.vectors[chunkKey{b.Chunk.DocumentID, b.Chunk.Index}]
	return rag.MetricCosine.Similarity(va, vb)
}
