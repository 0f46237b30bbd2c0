package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/llms"

	"github.com/smallnest/educhat/log"
	"github.com/smallnest/educhat/metrics"
	"github.com/smallnest/educhat/rag"
	"github.com/smallnest/educhat/rag/fusion"
	"github.com/smallnest/educhat/rag/retriever"
)

// Options configures a Cache and the chains it builds.
type Options struct {
	// TopK is the number of chunks retrieved per question. Default 5.
	TopK           int
	ScoreThreshold float64
	SearchType     string
	Metric         rag.Metric

	// MaxEntries bounds the number of cached chains; the least recently
	// used ready chain is evicted first. 0 means unbounded.
	MaxEntries int

	// MemoryWindow limits how many past turns are rendered into prompts.
	MemoryWindow int

	// CondenseQuestion rephrases follow-up questions before retrieval.
	CondenseQuestion bool

	CallOptions []llms.CallOption

	Logger  log.Logger
	Metrics *metrics.Metrics
}

type entry struct {
	done  chan struct{}
	chain *Chain
	err   error
}

// Cache maps (session, documents, mode) keys to conversational chains.
// Chain construction is single-flighted per key and failures are not cached.
type Cache struct {
	fuser    *fusion.Fuser
	embedder rag.Embedder
	llm      llms.Model
	opts     Options
	logger   log.Logger
	metrics  *metrics.Metrics

	mu      sync.Mutex
	entries map[Key]*entry
}

// NewCache creates an empty cache.
func NewCache(fuser *fusion.Fuser, embedder rag.Embedder, llm llms.Model, opts Options) *Cache {
	if opts.TopK <= 0 {
		opts.TopK = retriever.DefaultK
	}
	return &Cache{
		fuser:    fuser,
		embedder: embedder,
		llm:      llm,
		opts:     opts,
		logger:   log.WithComponent(opts.Logger, "chain"),
		metrics:  opts.Metrics,
		entries:  make(map[Key]*entry),
	}
}

// GetOrCreate returns the chain for the key, building it on first use.
//
// Concurrent callers for the same key share a single build. The build is
// not bound to any one caller's context, so a caller giving up does not fail
// the others; each caller still stops waiting when its own ctx is done.
func (c *Cache) GetOrCreate(ctx context.Context, sessionID string, documentIDs []string, mode Mode) (*Chain, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w (got %q)", ErrInvalidMode, mode)
	}
	key := NewKey(sessionID, documentIDs, mode)
	if key.Documents == "" {
		return nil, rag.ErrNoDocuments
	}

	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &entry{done: make(chan struct{})}
		c.entries[key] = e
		n := len(c.entries)
		c.mu.Unlock()

		c.metrics.ChainCache("miss", n)
		c.logger.Info("building chain %s", key)
		go c.build(context.WithoutCancel(ctx), key, e)
	} else {
		c.mu.Unlock()
		c.metrics.ChainCache("hit", c.Len())
	}

	select {
	case <-e.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if e.err != nil {
		return nil, e.err
	}
	e.chain.touch()
	return e.chain, nil
}

func (c *Cache) build(ctx context.Context, key Key, e *entry) {
	defer close(e.done)

	chain, err := c.newChain(ctx, key)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		e.err = err
		if c.entries[key] == e {
			delete(c.entries, key)
		}
		c.logger.Warn("building chain %s failed: %v", key, err)
		c.metrics.ChainCache("error", len(c.entries))
		return
	}
	e.chain = chain
	c.evictLocked(key)
}

func (c *Cache) newChain(ctx context.Context, key Key) (*Chain, error) {
	combined, err := c.fuser.Combine(ctx, key.DocumentIDs())
	if err != nil {
		return nil, err
	}
	r := retriever.NewVectorRetriever(combined, c.embedder, retriever.Config{
		K:              c.opts.TopK,
		ScoreThreshold: c.opts.ScoreThreshold,
		Metric:         c.opts.Metric,
		SearchType:     c.opts.SearchType,
	})
	return newChain(key, r, c.llm, c.opts, c.logger), nil
}

// evictLocked drops least recently used ready chains until the cache fits
// MaxEntries. keep and in-flight builds are never evicted.
func (c *Cache) evictLocked(keep Key) {
	if c.opts.MaxEntries <= 0 {
		return
	}
	for len(c.entries) > c.opts.MaxEntries {
		var (
			oldest Key
			found  bool
			at     int64
		)
		for k, e := range c.entries {
			if k == keep || e.chain == nil {
				continue
			}
			if used := e.chain.lastUsed.Load(); !found || used < at {
				oldest, at, found = k, used, true
			}
		}
		if !found {
			return
		}
		delete(c.entries, oldest)
		c.logger.Debug("evicted chain %s", oldest)
		c.metrics.ChainCache("evict", len(c.entries))
	}
}

// Get returns a ready chain without building one.
func (c *Cache) Get(key Key) (*Chain, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || e.chain == nil {
		return nil, false
	}
	return e.chain, true
}

// Evict removes the chain for key. Callers holding the chain may keep using it.
func (c *Cache) Evict(key Key) bool {
	return c.evictWhere(func(k Key) bool { return k == key }) > 0
}

// EvictSession removes every chain of a session.
func (c *Cache) EvictSession(sessionID string) int {
	return c.evictWhere(func(k Key) bool { return k.SessionID == sessionID })
}

// EvictDocument removes every chain whose document set includes documentID,
// so the next question rebuilds it from a fresh index.
func (c *Cache) EvictDocument(documentID string) int {
	return c.evictWhere(func(k Key) bool { return k.HasDocument(documentID) })
}

func (c *Cache) evictWhere(match func(Key) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k := range c.entries {
		if match(k) {
			delete(c.entries, k)
			n++
		}
	}
	if n > 0 {
		c.metrics.ChainCache("evict", len(c.entries))
	}
	return n
}

// Len returns the number of cached and in-flight chains.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
