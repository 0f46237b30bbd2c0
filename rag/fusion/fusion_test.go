package fusion

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/educhat/metrics"
	"github.com/smallnest/educhat/rag"
	"github.com/smallnest/educhat/rag/splitter"
	index "github.com/smallnest/educhat/rag/store"
	"github.com/smallnest/educhat/store"
	"github.com/smallnest/educhat/store/memory"
)

type failingEmbedder struct {
	*index.HashingEmbedder
	failOn string
}

func (e *failingEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	for _, t := range texts {
		if strings.Contains(t, e.failOn) {
			return nil, errors.New("rate limited")
		}
	}
	return e.HashingEmbedder.EmbedDocuments(ctx, texts)
}

type fixture struct {
	indexes  *index.IndexStore
	registry *memory.Store
	embedder *failingEmbedder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	emb := &failingEmbedder{HashingEmbedder: index.NewHashingEmbedder(32), failOn: "\x00never"}
	sp, err := splitter.New(100, 10)
	require.NoError(t, err)
	return &fixture{
		indexes:  index.NewIndexStore(emb, &index.Options{Splitter: sp}),
		registry: memory.New(),
		embedder: emb,
	}
}

func (f *fixture) add(t *testing.T, id, title, text string) {
	t.Helper()
	require.NoError(t, f.registry.PutDocument(context.Background(), &store.Document{
		ID:        id,
		Title:     title,
		Status:    store.StatusUploaded,
		CreatedAt: time.Now(),
		Text:      text,
	}))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, Normalize([]string{"c", "a", "", "b", "a"}))
	assert.Empty(t, Normalize(nil))
}

func TestCombine(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.add(t, "physics", "Physics 101", strings.Repeat("Force equals mass times acceleration. ", 10))
	f.add(t, "bio", "Biology", strings.Repeat("Cells contain mitochondria. ", 8))

	fuser := New(f.indexes, f.registry)
	combined, err := fuser.Combine(ctx, []string{"physics", "bio", "physics"})
	require.NoError(t, err)

	physics, err := f.indexes.Load(ctx, "physics")
	require.NoError(t, err)
	bio, err := f.indexes.Load(ctx, "bio")
	require.NoError(t, err)

	assert.Equal(t, []string{"bio", "physics"}, combined.DocumentIDs)
	assert.Empty(t, combined.Skipped)
	assert.Equal(t, len(physics.Chunks)+len(bio.Chunks), combined.Len())
	assert.Equal(t, "hashing", combined.EmbeddingModel)
	assert.Equal(t, 32, combined.Dimension)

	// Origin tags and order: bio chunks first, each document in chunk order.
	for i, e := range combined.Entries {
		if i < len(bio.Chunks) {
			assert.Equal(t, "bio", e.Chunk.DocumentID)
			assert.Equal(t, "Biology", e.SourceLabel)
			assert.Equal(t, i, e.Chunk.Index)
		} else {
			assert.Equal(t, "physics", e.Chunk.DocumentID)
			assert.Equal(t, "Physics 101", e.SourceLabel)
			assert.Equal(t, i-len(bio.Chunks), e.Chunk.Index)
		}
	}
}

func TestCombineIsDeterministic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.add(t, "a", "A", strings.Repeat("alpha beta gamma. ", 20))
	f.add(t, "b", "B", strings.Repeat("delta epsilon. ", 20))
	f.add(t, "c", "C", strings.Repeat("zeta eta theta. ", 20))

	fuser := New(f.indexes, f.registry)
	first, err := fuser.Combine(ctx, []string{"c", "a", "b"})
	require.NoError(t, err)
	second, err := fuser.Combine(ctx, []string{"b", "c", "a"})
	require.NoError(t, err)

	assert.Equal(t, first.DocumentIDs, second.DocumentIDs)
	assert.Equal(t, first.Entries, second.Entries)

	q, err := f.embedder.EmbedDocument(ctx, "delta epsilon")
	require.NoError(t, err)
	assert.Equal(t, first.Search(q, 5, rag.MetricCosine), second.Search(q, 5, rag.MetricCosine))
}

func TestCombineSkipsUnusableDocuments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.embedder.failOn = "poison"
	f.add(t, "good", "Good", "Plants make food with light.")
	f.add(t, "broken", "Broken", "This text is poison to the embedder.")
	f.add(t, "empty", "Empty", "   ")

	m := metrics.New(prometheus.NewRegistry())
	fuser := New(f.indexes, f.registry, WithMetrics(m))

	combined, err := fuser.Combine(ctx, []string{"good", "broken", "empty", "ghost"})
	require.NoError(t, err)

	assert.Equal(t, []string{"good"}, combined.DocumentIDs)
	require.Len(t, combined.Skipped, 3)
	assert.ErrorIs(t, combined.Skipped["broken"], rag.ErrEmbeddingUnavailable)
	assert.ErrorIs(t, combined.Skipped["empty"], rag.ErrEmptyContent)
	assert.ErrorIs(t, combined.Skipped["ghost"], rag.ErrDocumentNotFound)
	assert.Equal(t, 1, combined.Len())

	assert.Equal(t, float64(3), testutil.ToFloat64(m.FusionSkippedTotal))
}

func TestCombineAllFail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.add(t, "empty", "Empty", "")

	fuser := New(f.indexes, f.registry)
	combined, err := fuser.Combine(ctx, []string{"empty", "ghost"})
	assert.ErrorIs(t, err, rag.ErrNoValidDocuments)
	require.NotNil(t, combined)
	assert.Len(t, combined.Skipped, 2)

	_, err = fuser.Combine(ctx, nil)
	assert.ErrorIs(t, err, rag.ErrNoDocuments)
}

func TestCombineUsesIndexWithoutRegistryRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.indexes.Ensure(ctx, "orphan", "Stored before the registry was reset.", map[string]any{rag.MetadataSource: "Orphan"})
	require.NoError(t, err)

	for _, fuser := range []*Fuser{New(f.indexes, f.registry), New(f.indexes, nil)} {
		combined, err := fuser.Combine(ctx, []string{"orphan"})
		require.NoError(t, err)
		assert.Equal(t, "Orphan", combined.Entries[0].SourceLabel)
	}
}

func TestCombineSkipsModelMismatch(t *testing.T) {
	ctx := context.Background()
	p := index.NewMemoryPersister()

	old := index.NewHashingEmbedder(16)
	old.Model = "old-model"
	_, err := index.NewIndexStore(old, &index.Options{Persister: p}).Ensure(ctx, "a-old", "legacy notes", nil)
	require.NoError(t, err)

	current := index.NewHashingEmbedder(32)
	s := index.NewIndexStore(current, &index.Options{Persister: p})
	_, err = s.Ensure(ctx, "b-new", "fresh notes", nil)
	require.NoError(t, err)

	// Without registry text the stale index cannot be rebuilt, so it is
	// loaded as-is and rejected against the first accepted model.
	combined, err := New(s, nil).Combine(ctx, []string{"a-old", "b-new"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a-old"}, combined.DocumentIDs)
	assert.ErrorIs(t, combined.Skipped["b-new"], rag.ErrModelMismatch)
}
