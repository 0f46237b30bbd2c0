package chain

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/smallnest/educhat/rag/fusion"
	"github.com/smallnest/educhat/rag/splitter"
	index "github.com/smallnest/educhat/rag/store"
	"github.com/smallnest/educhat/store"
	"github.com/smallnest/educhat/store/memory"
)

// mockLLM answers every prompt through reply and records what it was sent.
type mockLLM struct {
	mu      sync.Mutex
	prompts []string
	reply   func(prompt string) (string, error)
	delay   time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newMockLLM() *mockLLM {
	return &mockLLM{reply: func(string) (string, error) { return "  It is the tendency to keep moving.  ", nil }}
}

func (m *mockLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		cur := m.maxInFlight.Load()
		if n <= cur || m.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	time.Sleep(m.delay)

	var prompt string
	for _, msg := range messages {
		for _, p := range msg.Parts {
			if tc, ok := p.(llms.TextContent); ok {
				prompt += tc.Text
			}
		}
	}
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	text, err := m.reply(prompt)
	if err != nil {
		return nil, err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: text}}}, nil
}

func (m *mockLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func (m *mockLLM) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// slowEmbedder delays document embedding so builds overlap.
type slowEmbedder struct {
	*index.HashingEmbedder
	delay time.Duration
}

func (e *slowEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	time.Sleep(e.delay)
	return e.HashingEmbedder.EmbedDocuments(ctx, texts)
}

// countingRegistry counts registry lookups, one per document per chain build.
type countingRegistry struct {
	*memory.Store
	lookups atomic.Int64
}

func (r *countingRegistry) GetDocument(ctx context.Context, id string) (*store.Document, error) {
	r.lookups.Add(1)
	return r.Store.GetDocument(ctx, id)
}

type fixture struct {
	registry *countingRegistry
	embedder *slowEmbedder
	llm      *mockLLM
	cache    *Cache
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	emb := &slowEmbedder{HashingEmbedder: index.NewHashingEmbedder(64)}
	sp, err := splitter.New(1000, 100)
	require.NoError(t, err)
	indexes := index.NewIndexStore(emb, &index.Options{Splitter: sp})

	f := &fixture{
		registry: &countingRegistry{Store: memory.New()},
		embedder: emb,
		llm:      newMockLLM(),
	}
	f.cache = NewCache(fusion.New(indexes, f.registry), emb, f.llm, opts)

	f.add(t, "physics101", "Physics 101",
		"Inertia is the tendency of an object to resist changes in its motion. "+
			"Newton's first law describes inertia.\n\n"+
			"Acceleration is proportional to net force and inversely proportional to mass.")
	f.add(t, "bio", "Biology Basics",
		"Photosynthesis converts light energy into chemical energy in plants. "+
			"Chloroplasts contain chlorophyll.")
	return f
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

var errProvider = errors.New("502 bad gateway")

func failingReply(string) (string, error) { return "", errProvider }

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}
