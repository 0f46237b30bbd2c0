package chat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/smallnest/educhat/metrics"
	"github.com/smallnest/educhat/rag/chain"
	"github.com/smallnest/educhat/rag/fusion"
	"github.com/smallnest/educhat/rag/splitter"
	index "github.com/smallnest/educhat/rag/store"
	"github.com/smallnest/educhat/store"
	"github.com/smallnest/educhat/store/memory"
)

// fakeLLM answers with a fixed reply or error and tracks concurrent calls.
type fakeLLM struct {
	mu    sync.Mutex
	calls int
	err   error
	delay time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (m *fakeLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		cur := m.maxInFlight.Load()
		if n <= cur || m.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	time.Sleep(m.delay)

	m.mu.Lock()
	m.calls++
	err := m.err
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "Inertia keeps objects moving."}}}, nil
}

func (m *fakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func (m *fakeLLM) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// flakyEmbedder fails document embedding while fail is set.
type flakyEmbedder struct {
	*index.HashingEmbedder
	fail atomic.Bool
}

func (e *flakyEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if e.fail.Load() {
		return nil, errors.New("dial tcp: connection refused")
	}
	return e.HashingEmbedder.EmbedDocuments(ctx, texts)
}

type fixture struct {
	store    *memory.Store
	embedder *flakyEmbedder
	indexes  *index.IndexStore
	chains   *chain.Cache
	llm      *fakeLLM
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    memory.New(),
		embedder: &flakyEmbedder{HashingEmbedder: index.NewHashingEmbedder(64)},
		llm:      &fakeLLM{},
		registry: prometheus.NewRegistry(),
	}
	f.metrics = metrics.New(f.registry)

	sp, err := splitter.New(1000, 100)
	require.NoError(t, err)
	f.indexes = index.NewIndexStore(f.embedder, &index.Options{Splitter: sp})
	f.chains = chain.NewCache(fusion.New(f.indexes, f.store), f.embedder, f.llm, chain.Options{})

	f.svc, err = New(Config{
		Sessions:  f.store,
		Documents: f.store,
		Indexes:   f.indexes,
		Chains:    f.chains,
		UploadDir: t.TempDir(),
		Metrics:   f.metrics,
	})
	require.NoError(t, err)

	f.addDocument(t, "physics101", "Physics 101",
		"Inertia is the tendency of an object to resist changes in its motion. "+
			"Newton's first law describes inertia.")
	f.addDocument(t, "bio", "Biology Basics",
		"Photosynthesis converts light energy into chemical energy in plants.")
	return f
}

func (f *fixture) addDocument(t *testing.T, id, title, text string) {
	t.Helper()
	require.NoError(t, f.store.PutDocument(context.Background(), &store.Document{
		ID:        id,
		Title:     title,
		FileType:  "txt",
		Status:    store.StatusUploaded,
		CreatedAt: time.Now(),
		Text:      text,
	}))
}

func (f *fixture) newSession(t *testing.T, ids ...string) *store.Session {
	t.Helper()
	sess, err := f.svc.CreateSession(context.Background(), "", ids)
	require.NoError(t, err)
	return sess
}

func (f *fixture) messages(t *testing.T, sessionID string) []store.Message {
	t.Helper()
	sess, err := f.svc.Session(context.Background(), sessionID)
	require.NoError(t, err)
	return sess.Messages
}

var errProvider = errors.New("502 bad gateway")
