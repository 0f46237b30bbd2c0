package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIndex() *DocumentIndex {
	return &DocumentIndex{
		DocumentID: "doc",
		Dimension:  2,
		Metadata:   map[string]any{MetadataSource: "Doc"},
		Chunks: []Chunk{
			{DocumentID: "doc", Index: 0, Text: "zero"},
			{DocumentID: "doc", Index: 1, Text: "one"},
			{DocumentID: "doc", Index: 2, Text: "two"},
			{DocumentID: "doc", Index: 3, Text: "three"},
		},
		Vectors: [][]float32{
			{0, 1},
			{1, 0},
			{1, 0},
			{0.7, 0.7},
		},
	}
}

func TestDocumentIndexSearchOrdering(t *testing.T) {
	idx := testIndex()
	require.NoError(t, idx.Validate())

	hits := idx.Search([]float32{1, 0}, 3, MetricCosine)
	require.Len(t, hits, 3)

	// Chunks 1 and 2 tie; the lower index wins.
	assert.Equal(t, 1, hits[0].Chunk.Index)
	assert.Equal(t, 2, hits[1].Chunk.Index)
	assert.Equal(t, 3, hits[2].Chunk.Index)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
	assert.Equal(t, "Doc", hits[0].SourceLabel)

	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}
}

func TestDocumentIndexSearchL2(t *testing.T) {
	idx := testIndex()

	hits := idx.Search([]float32{0, 1}, 1, MetricL2)
	require.Len(t, hits, 1)
	assert.Equal(t, 0, hits[0].Chunk.Index)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)

	// Distance sqrt(2) maps to 1/(1+sqrt(2)).
	all := idx.Search([]float32{0, 1}, 4, MetricL2)
	require.Len(t, all, 4)
	assert.Equal(t, 3, all[1].Chunk.Index)
	assert.InDelta(t, 1/(1+1.4142135), all[2].Score, 1e-6)
}

func TestSearchEdgeCases(t *testing.T) {
	idx := testIndex()
	assert.Empty(t, idx.Search(nil, 3, MetricCosine))
	assert.Empty(t, idx.Search([]float32{1, 0}, 0, MetricCosine))
	assert.Len(t, idx.Search([]float32{1, 0}, 100, MetricCosine), 4)
	assert.Empty(t, (&DocumentIndex{}).Search([]float32{1}, 3, MetricCosine))
}

func TestValidate(t *testing.T) {
	idx := testIndex()
	idx.Vectors = idx.Vectors[:3]
	assert.Error(t, idx.Validate())

	idx = testIndex()
	idx.Vectors[2] = []float32{1, 0, 0}
	assert.Error(t, idx.Validate())

	idx = testIndex()
	idx.Chunks[1].Index = 5
	assert.Error(t, idx.Validate())
}

func TestCombinedIndexSearchKeepsOrigin(t *testing.T) {
	c := &CombinedIndex{
		DocumentIDs: []string{"a", "b"},
		Dimension:   2,
		Entries: []CombinedEntry{
			{Chunk: Chunk{DocumentID: "a", Index: 0, Text: "a0"}, SourceLabel: "A", Vector: []float32{1, 0}},
			{Chunk: Chunk{DocumentID: "b", Index: 0, Text: "b0"}, SourceLabel: "B", Vector: []float32{1, 0}},
			{Chunk: Chunk{DocumentID: "b", Index: 1, Text: "b1"}, SourceLabel: "B", Vector: []float32{0, 1}},
		},
	}
	assert.Equal(t, 3, c.Len())

	hits := c.Search([]float32{1, 0}, 2, MetricCosine)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].Chunk.DocumentID)
	assert.Equal(t, "A", hits[0].SourceLabel)
	assert.Equal(t, "b", hits[1].Chunk.DocumentID)
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short", Excerpt("short", 200))

	exact := strings.Repeat("x", 200)
	assert.Equal(t, exact, Excerpt(exact, 200))

	long := strings.Repeat("é", 250)
	got := Excerpt(long, 200)
	assert.Equal(t, strings.Repeat("é", 200)+"...", got)
}

func TestNewSourceRef(t *testing.T) {
	ref := NewSourceRef(ScoredChunk{
		Chunk:       Chunk{DocumentID: "physics101", Text: strings.Repeat("a", 201)},
		SourceLabel: "Physics",
	})
	assert.Equal(t, "physics101", ref.DocumentID)
	assert.Equal(t, "Physics", ref.SourceLabel)
	assert.Len(t, ref.Excerpt, 203)
	assert.True(t, strings.HasSuffix(ref.Excerpt, "..."))
}

func TestParseMetric(t *testing.T) {
	m, err := ParseMetric("")
	require.NoError(t, err)
	assert.Equal(t, MetricCosine, m)

	m, err = ParseMetric("L2")
	require.NoError(t, err)
	assert.Equal(t, MetricL2, m)

	_, err = ParseMetric("dot")
	assert.Error(t, err)
}

func TestSimilarityMismatchedDimensions(t *testing.T) {
	assert.Zero(t, MetricCosine.Similarity([]float32{1, 0}, []float32{1, 0, 0}))
	assert.Zero(t, MetricCosine.Similarity([]float32{0, 0}, []float32{1, 0}))
}
