// Package fusion merges per-document indexes into one searchable index for
// a multi-document question.
package fusion

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/smallnest/educhat/log"
	"github.com/smallnest/educhat/metrics"
	"github.com/smallnest/educhat/rag"
	index "github.com/smallnest/educhat/rag/store"
	"github.com/smallnest/educhat/store"
)

// DefaultConcurrency bounds how many document indexes are ensured at once.
const DefaultConcurrency = 4

// DocumentLookup resolves a document ID to its registry record.
type DocumentLookup interface {
	GetDocument(ctx context.Context, id string) (*store.Document, error)
}

// Fuser builds CombinedIndexes.
type Fuser struct {
	indexes     *index.IndexStore
	documents   DocumentLookup
	concurrency int
	logger      log.Logger
	metrics     *metrics.Metrics
}

// Option configures a Fuser.
type Option func(*Fuser)

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(f *Fuser) { f.logger = log.WithComponent(l, "fusion") }
}

// WithMetrics records skipped documents.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Fuser) { f.metrics = m }
}

// WithConcurrency bounds parallel index builds.
func WithConcurrency(n int) Option {
	return func(f *Fuser) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

// New creates a Fuser. documents may be nil, in which case only indexes
// that already exist can be combined.
func New(indexes *index.IndexStore, documents DocumentLookup, opts ...Option) *Fuser {
	f := &Fuser{
		indexes:     indexes,
		documents:   documents,
		concurrency: DefaultConcurrency,
		logger:      log.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Normalize returns the sorted, de-duplicated document IDs with empty IDs removed.
func Normalize(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Combine returns the union of the indexes of ids. Documents that cannot be
// indexed are recorded in Skipped; an error is returned only when no document
// is usable (rag.ErrNoValidDocuments) or ids is empty (rag.ErrNoDocuments).
//
// Entries are ordered by document ID, then chunk index.
func (f *Fuser) Combine(ctx context.Context, ids []string) (*rag.CombinedIndex, error) {
	ids = Normalize(ids)
	if len(ids) == 0 {
		return nil, rag.ErrNoDocuments
	}

	indexes := make([]*rag.DocumentIndex, len(ids))
	errs := make([]error, len(ids))

	var g errgroup.Group
	g.SetLimit(f.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			indexes[i], errs[i] = f.resolve(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	combined := &rag.CombinedIndex{Skipped: make(map[string]error)}
	for i, id := range ids {
		idx, err := indexes[i], errs[i]
		if err == nil && combined.EmbeddingModel != "" &&
			(idx.EmbeddingModel != combined.EmbeddingModel || idx.Dimension != combined.Dimension) {
			err = fmt.Errorf("%w: %s uses %s/%d, scope uses %s/%d", rag.ErrModelMismatch,
				id, idx.EmbeddingModel, idx.Dimension, combined.EmbeddingModel, combined.Dimension)
		}
		if err != nil {
			f.logger.Warn("skipping document %s: %v", id, err)
			combined.Skipped[id] = err
			continue
		}

		if combined.EmbeddingModel == "" {
			combined.EmbeddingModel = idx.EmbeddingModel
			combined.Dimension = idx.Dimension
		}
		combined.DocumentIDs = append(combined.DocumentIDs, id)

		label := idx.SourceLabel()
		for j, c := range idx.Chunks {
			combined.Entries = append(combined.Entries, rag.CombinedEntry{
				Chunk:       c,
				SourceLabel: label,
				Vector:      idx.Vectors[j],
			})
		}
	}

	f.metrics.FusionSkipped(len(combined.Skipped))

	if len(combined.DocumentIDs) == 0 {
		return combined, fmt.Errorf("%w: %d documents requested, none usable", rag.ErrNoValidDocuments, len(ids))
	}
	f.logger.Debug("combined %d documents into %d chunks (%d skipped)", len(combined.DocumentIDs), combined.Len(), len(combined.Skipped))
	return combined, nil
}

// resolve returns an index for id, building it from the registry text if needed.
func (f *Fuser) resolve(ctx context.Context, id string) (*rag.DocumentIndex, error) {
	if f.documents == nil {
		return f.load(ctx, id)
	}

	doc, err := f.documents.GetDocument(ctx, id)
	if errors.Is(err, store.ErrDocumentNotFound) {
		// An index may outlive its registry record.
		return f.load(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", id, err)
	}

	return f.indexes.Ensure(ctx, id, doc.Text, map[string]any{rag.MetadataSource: doc.Title})
}

func (f *Fuser) load(ctx context.Context, id string) (*rag.DocumentIndex, error) {
	idx, err := f.indexes.Load(ctx, id)
	if errors.Is(err, rag.ErrIndexNotFound) {
		return nil, fmt.Errorf("%w: %s", rag.ErrDocumentNotFound, id)
	}
	return idx, err
}
