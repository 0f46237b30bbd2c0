package rag

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Metric selects how vector distance is turned into a similarity score.
// Both metrics are monotonic in the underlying distance, so higher is closer.
type Metric string

const (
	// MetricCosine scores by cosine similarity.
	MetricCosine Metric = "cosine"
	// MetricL2 scores by 1/(1+d) where d is the euclidean distance.
	MetricL2 Metric = "l2"
)

// ParseMetric validates a configured metric name. Empty means cosine.
func ParseMetric(s string) (Metric, error) {
	switch Metric(strings.ToLower(strings.TrimSpace(s))) {
	case "", MetricCosine:
		return MetricCosine, nil
	case MetricL2:
		return MetricL2, nil
	default:
		return "", fmt.Errorf("unknown similarity metric %q", s)
	}
}

// Similarity scores a against b. Vectors of different length score 0.
func (m Metric) Similarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	if m == MetricL2 {
		return 1 / (1 + euclideanDistance(a, b))
	}
	return cosineSimilarity(a, b)
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func euclideanDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// rank scores n candidates and returns the best topK. Candidates are visited
// in position order and the sort is stable, so equal scores keep that order.
func rank(n, topK int, at func(i int) ([]float32, Chunk, string), query []float32, metric Metric) []ScoredChunk {
	if n == 0 || topK <= 0 || len(query) == 0 {
		return []ScoredChunk{}
	}

	results := make([]ScoredChunk, 0, n)
	for i := range n {
		vec, chunk, label := at(i)
		results = append(results, ScoredChunk{
			Chunk:       chunk,
			SourceLabel: label,
			Score:       metric.Similarity(query, vec),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if topK < len(results) {
		results = results[:topK]
	}
	return results
}
