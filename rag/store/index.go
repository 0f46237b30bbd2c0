package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/smallnest/educhat/log"
	"github.com/smallnest/educhat/metrics"
	"github.com/smallnest/educhat/rag"
	"github.com/smallnest/educhat/rag/splitter"
)

// DefaultBatchSize is the number of chunks sent to the embedder per call.
const DefaultBatchSize = 64

// Options configures an IndexStore. Zero values select defaults.
type Options struct {
	Splitter  *splitter.BoundarySplitter
	Persister Persister
	Metric    rag.Metric
	BatchSize int
	Logger    log.Logger
	Metrics   *metrics.Metrics
}

// IndexStore builds, persists and loads per-document vector indexes.
//
// Builds are single-flighted per document and content: concurrent Ensure
// calls for the same document and text share one build and its result. Loaded indexes are kept in
// memory; they are immutable until rebuilt or invalidated.
type IndexStore struct {
	embedder  rag.Embedder
	model     string
	splitter  *splitter.BoundarySplitter
	persister Persister
	metric    rag.Metric
	batchSize int
	logger    log.Logger
	metrics   *metrics.Metrics

	mu     sync.RWMutex
	cache  map[string]*rag.DocumentIndex
	builds singleflight.Group

	now func() time.Time
}

// NewIndexStore creates an IndexStore over embedder.
func NewIndexStore(embedder rag.Embedder, opts *Options) *IndexStore {
	if opts == nil {
		opts = &Options{}
	}
	s := &IndexStore{
		embedder:  embedder,
		splitter:  opts.Splitter,
		persister: opts.Persister,
		metric:    opts.Metric,
		batchSize: opts.BatchSize,
		logger:    log.WithComponent(opts.Logger, "index"),
		metrics:   opts.Metrics,
		cache:     make(map[string]*rag.DocumentIndex),
		now:       time.Now,
	}
	if embedder != nil {
		s.model = rag.EmbeddingModelID(embedder)
	}
	if s.splitter == nil {
		s.splitter = splitter.NewDefault()
	}
	if s.persister == nil {
		s.persister = NewMemoryPersister()
	}
	if s.metric == "" {
		s.metric = rag.MetricCosine
	}
	if s.batchSize <= 0 {
		s.batchSize = DefaultBatchSize
	}
	return s
}

// Model returns the embedding model identity recorded in built indexes.
func (s *IndexStore) Model() string { return s.model }

// Metric returns the similarity metric used for search.
func (s *IndexStore) Metric() rag.Metric { return s.metric }

// Embedder returns the embedding capability, used to embed queries.
func (s *IndexStore) Embedder() rag.Embedder { return s.embedder }

// HasIndex reports whether an index for documentID exists and is loadable.
func (s *IndexStore) HasIndex(ctx context.Context, documentID string) bool {
	idx, err := s.Load(ctx, documentID)
	return err == nil && idx != nil
}

// Load returns the existing index for documentID without building one.
// It returns rag.ErrIndexNotFound when none is stored.
func (s *IndexStore) Load(ctx context.Context, documentID string) (*rag.DocumentIndex, error) {
	s.mu.RLock()
	idx, ok := s.cache[documentID]
	s.mu.RUnlock()
	if ok {
		return idx, nil
	}

	idx, err := s.persister.Load(ctx, documentID)
	if err != nil {
		if !errors.Is(err, rag.ErrIndexNotFound) {
			s.logger.Warn("stored index for %s is not loadable: %v", documentID, err)
		}
		return nil, err
	}

	s.mu.Lock()
	s.cache[documentID] = idx
	s.mu.Unlock()
	return idx, nil
}

// Ensure returns an up-to-date index for documentID, building it from text
// when none exists or when the stored one was built from different content
// or a different embedding model. An empty text accepts any stored index.
//
// Errors wrap rag.ErrEmptyContent or rag.ErrEmbeddingUnavailable.
func (s *IndexStore) Ensure(ctx context.Context, documentID, text string, metadata map[string]any) (*rag.DocumentIndex, error) {
	hash := ""
	if text != "" {
		hash = ContentHash(text)
	}

	if idx, ok := s.current(ctx, documentID, hash); ok {
		s.metrics.IndexBuild("loaded", 0)
		return idx, nil
	}

	// Callers share a flight only when they ask for the same content.
	v, err, shared := s.builds.Do(documentID+"\x00"+hash, func() (any, error) {
		// Another caller may have finished a build between the check above
		// and entering the flight.
		if idx, ok := s.current(ctx, documentID, hash); ok {
			return idx, nil
		}
		return s.build(ctx, documentID, text, hash, metadata)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.Debug("joined in-flight build for %s", documentID)
	}
	return v.(*rag.DocumentIndex), nil
}

// current returns the stored index if it matches hash (when non-empty) and
// the configured embedding model.
func (s *IndexStore) current(ctx context.Context, documentID, hash string) (*rag.DocumentIndex, bool) {
	idx, err := s.Load(ctx, documentID)
	if err != nil {
		return nil, false
	}
	if idx.EmbeddingModel != s.model {
		s.logger.Info("index for %s was built with model %q, current model is %q; rebuilding", documentID, idx.EmbeddingModel, s.model)
		return nil, false
	}
	if hash != "" && idx.ContentHash != hash {
		s.logger.Info("content of %s changed; rebuilding index", documentID)
		return nil, false
	}
	return idx, true
}

func (s *IndexStore) build(ctx context.Context, documentID, text, hash string, metadata map[string]any) (*rag.DocumentIndex, error) {
	start := s.now()

	if strings.TrimSpace(text) == "" {
		s.metrics.IndexBuild("error", 0)
		return nil, fmt.Errorf("%w: document %s", rag.ErrEmptyContent, documentID)
	}
	if s.embedder == nil {
		s.metrics.IndexBuild("error", 0)
		return nil, fmt.Errorf("%w: no embedder configured", rag.ErrEmbeddingUnavailable)
	}

	chunks := s.splitter.SplitDocument(documentID, text)
	s.logger.Info("building index for %s: %d chunks", documentID, len(chunks))

	vectors, err := s.embedChunks(ctx, chunks)
	if err != nil {
		s.metrics.IndexBuild("error", 0)
		s.logger.Error("embedding %s failed: %v", documentID, err)
		return nil, fmt.Errorf("%w: document %s: %w", rag.ErrEmbeddingUnavailable, documentID, err)
	}

	meta := rag.ChunkMetadata(documentID, metadata)
	if _, ok := meta[rag.MetadataCreatedAt]; !ok {
		meta[rag.MetadataCreatedAt] = start.UTC().Format(time.RFC3339)
	}

	idx := &rag.DocumentIndex{
		DocumentID:     documentID,
		ContentHash:    hash,
		EmbeddingModel: s.model,
		Dimension:      len(vectors[0]),
		Chunks:         chunks,
		Vectors:        vectors,
		Metadata:       meta,
		BuiltAt:        start.UTC(),
	}

	if err := s.persister.Save(ctx, idx); err != nil {
		// The index is still usable for this process.
		s.logger.Error("persisting index for %s failed: %v", documentID, err)
	}

	s.mu.Lock()
	s.cache[documentID] = idx
	s.mu.Unlock()

	s.metrics.IndexBuild("built", s.now().Sub(start))
	s.logger.Info("index for %s ready: %d vectors of dimension %d", documentID, len(vectors), idx.Dimension)
	return idx, nil
}

// embedChunks embeds chunk texts in batches and checks that the capability
// returned one vector per chunk, all of one dimension.
func (s *IndexStore) embedChunks(ctx context.Context, chunks []rag.Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += s.batchSize {
		end := min(start+s.batchSize, len(chunks))

		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}

		batch, err := s.embedder.EmbedDocuments(ctx, texts)
		s.metrics.Embedding("documents", err, len(texts))
		if err != nil {
			return nil, err
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(batch), len(texts))
		}
		vectors = append(vectors, batch...)
	}

	dim := len(vectors[0])
	if dim == 0 {
		return nil, errors.New("embedder returned empty vectors")
	}
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), dim)
		}
	}
	return vectors, nil
}

// Search embeds query and returns the topK closest chunks of the document.
// It returns an empty slice when there is no index or embedding fails.
func (s *IndexStore) Search(ctx context.Context, documentID, query string, topK int) []rag.ScoredChunk {
	idx, err := s.Load(ctx, documentID)
	if err != nil {
		s.logger.Debug("search on %s: no index", documentID)
		return []rag.ScoredChunk{}
	}

	qv, err := s.EmbedQuery(ctx, query)
	if err != nil {
		s.logger.Warn("search on %s: %v", documentID, err)
		return []rag.ScoredChunk{}
	}
	return idx.Search(qv, topK, s.metric)
}

// EmbedQuery embeds a query string, wrapping failures in rag.ErrEmbeddingUnavailable.
func (s *IndexStore) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if s.embedder == nil {
		return nil, fmt.Errorf("%w: no embedder configured", rag.ErrEmbeddingUnavailable)
	}
	qv, err := s.embedder.EmbedDocument(ctx, query)
	s.metrics.Embedding("query", err, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", rag.ErrEmbeddingUnavailable, err)
	}
	return qv, nil
}

// Invalidate drops the cached and persisted index so the next Ensure rebuilds it.
func (s *IndexStore) Invalidate(ctx context.Context, documentID string) error {
	s.mu.Lock()
	delete(s.cache, documentID)
	s.mu.Unlock()

	if err := s.persister.Delete(ctx, documentID); err != nil {
		return err
	}
	s.logger.Info("invalidated index for %s", documentID)
	return nil
}

// Stats describes the indexes currently held in memory.
type Stats struct {
	Documents int
	Chunks    int
}

// Stats returns counts over the in-memory cache.
func (s *IndexStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Documents: len(s.cache)}
	for _, idx := range s.cache {
		st.Chunks += len(idx.Chunks)
	}
	return st
}
