package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tmc/langchaingo/llms"

	"github.com/smallnest/educhat/chat"
	"github.com/smallnest/educhat/config"
	"github.com/smallnest/educhat/llms/openai"
	"github.com/smallnest/educhat/log"
	"github.com/smallnest/educhat/metrics"
	"github.com/smallnest/educhat/quiz"
	"github.com/smallnest/educhat/rag"
	"github.com/smallnest/educhat/rag/chain"
	"github.com/smallnest/educhat/rag/fusion"
	"github.com/smallnest/educhat/rag/loader"
	"github.com/smallnest/educhat/rag/splitter"
	index "github.com/smallnest/educhat/rag/store"
	"github.com/smallnest/educhat/store"
	"github.com/smallnest/educhat/store/file"
	"github.com/smallnest/educhat/store/memory"
	"github.com/smallnest/educhat/store/postgres"
	"github.com/smallnest/educhat/store/redis"
	"github.com/smallnest/educhat/store/sqlite"
)

// app holds the services built from one configuration.
type app struct {
	cfg     *config.Config
	logger  log.Logger
	service *chat.Service
	quiz    *quiz.Generator
	closers []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// newApp wires the retrieval core for cfg. Log output goes to logOut.
func newApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (_ *app, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	level, _ := log.ParseLevel(cfg.Log.Level)
	a := &app{cfg: cfg, logger: log.New(level, logOut)}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		m = metrics.New(reg)
		shutdown := metrics.StartServer(cfg.Metrics.Addr, reg, a.logger)
		a.closers = append(a.closers, func() error {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return shutdown(sctx)
		})
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	llm, err := newLLM(cfg)
	if err != nil {
		return nil, err
	}

	sp, err := splitter.New(cfg.Chunker.ChunkSize, cfg.Chunker.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	persister, err := a.newPersister(cfg)
	if err != nil {
		return nil, err
	}
	metric, _ := rag.ParseMetric(cfg.Index.Metric)
	indexes := index.NewIndexStore(embedder, &index.Options{
		Splitter:  sp,
		Persister: persister,
		Metric:    metric,
		BatchSize: cfg.Embedder.BatchSize,
		Logger:    a.logger,
		Metrics:   m,
	})

	sessions, err := a.newSessionStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	documents, err := a.newDocumentRegistry(cfg, sessions)
	if err != nil {
		return nil, err
	}

	var callOpts []llms.CallOption
	callOpts = append(callOpts, llms.WithTemperature(cfg.LLM.Temperature))
	if cfg.LLM.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(cfg.LLM.MaxTokens))
	}

	fuser := fusion.New(indexes, documents, fusion.WithLogger(a.logger), fusion.WithMetrics(m))
	chains := chain.NewCache(fuser, embedder, llm, chain.Options{
		TopK:             cfg.Chain.TopK,
		ScoreThreshold:   cfg.Chain.ScoreThreshold,
		SearchType:       cfg.Chain.SearchType,
		Metric:           metric,
		MaxEntries:       cfg.Chain.MaxEntries,
		MemoryWindow:     cfg.Chain.MemoryWindow,
		CondenseQuestion: cfg.Chain.CondenseQuestion,
		CallOptions:      callOpts,
		Logger:           a.logger,
		Metrics:          m,
	})

	extractors := loader.NewRegistry()
	extractors.Register(loader.NewImageExtractor(llm, llms.WithModel(cfg.LLM.VisionModel)))

	a.service, err = chat.New(chat.Config{
		Sessions:   sessions,
		Documents:  documents,
		Indexes:    indexes,
		Chains:     chains,
		Extractors: extractors,
		UploadDir:  cfg.Documents.UploadDir,
		Logger:     a.logger,
		Metrics:    m,
	})
	if err != nil {
		return nil, err
	}

	quizOpts := slices.Clone(callOpts)
	if cfg.Quiz.Model != "" {
		quizOpts = append(quizOpts, llms.WithModel(cfg.Quiz.Model))
	}
	a.quiz = quiz.New(llm, documents,
		quiz.WithLogger(a.logger),
		quiz.WithMetrics(m),
		quiz.WithCallOptions(quizOpts...),
		quiz.WithMaxDocumentChars(cfg.Quiz.MaxDocumentChars),
	)
	return a, nil
}

func newEmbedder(cfg *config.Config) (rag.Embedder, error) {
	if cfg.Embedder.Provider == config.ProviderHashing {
		return index.NewHashingEmbedder(cfg.Embedder.Dimension), nil
	}
	client, err := openai.New(
		openai.WithAPIKey(cfg.LLM.APIKey),
		openai.WithBaseURL(cfg.Embedder.BaseURL),
		openai.WithEmbeddingModel(cfg.Embedder.Model),
		openai.WithRetries(cfg.LLM.MaxRetries, 500*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("embedding client: %w", err)
	}
	return client.Embedder(), nil
}

func newLLM(cfg *config.Config) (llms.Model, error) {
	client, err := openai.New(
		openai.WithAPIKey(cfg.LLM.APIKey),
		openai.WithBaseURL(cfg.LLM.BaseURL),
		openai.WithModel(cfg.LLM.Model),
		openai.WithRetries(cfg.LLM.MaxRetries, 500*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("chat client: %w", err)
	}
	return client, nil
}

func (a *app) newPersister(cfg *config.Config) (index.Persister, error) {
	switch cfg.Index.Backend {
	case config.BackendMemory:
		return index.NewMemoryPersister(), nil
	case config.BackendRedis:
		r := cfg.Index.Redis
		p := index.NewRedisPersister(index.RedisOptions{Addr: r.Addr, Password: r.Password, DB: r.DB, Prefix: r.Prefix, TTL: r.TTL})
		a.closers = append(a.closers, p.Close)
		return p, nil
	default:
		return index.NewFilePersister(cfg.Index.Dir)
	}
}

func (a *app) newSessionStore(ctx context.Context, cfg *config.Config) (store.SessionStore, error) {
	switch cfg.Sessions.Backend {
	case config.BackendMemory:
		return memory.New(), nil
	case config.BackendSQLite:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, err
		}
		s, err := sqlite.New(sqlite.Options{Path: cfg.Sessions.SQLitePath})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	case config.BackendRedis:
		r := cfg.Sessions.Redis
		s := redis.NewSessionStore(redis.RedisOptions{Addr: r.Addr, Password: r.Password, DB: r.DB, Prefix: r.Prefix, TTL: r.TTL})
		a.closers = append(a.closers, s.Close)
		return s, nil
	case config.BackendPostgres:
		s, err := postgres.NewSessionStore(ctx, postgres.PostgresOptions{ConnString: cfg.Sessions.PostgresDSN})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { s.Close(); return nil })
		return s, nil
	default:
		return file.NewSessionStore(cfg.Sessions.Dir)
	}
}

// newDocumentRegistry reuses the session store when it already implements
// the registry on the same database.
func (a *app) newDocumentRegistry(cfg *config.Config, sessions store.SessionStore) (store.DocumentRegistry, error) {
	switch cfg.Documents.Backend {
	case config.BackendMemory:
		if m, ok := sessions.(*memory.Store); ok {
			return m, nil
		}
		return memory.New(), nil
	case config.BackendSQLite:
		if s, ok := sessions.(*sqlite.Store); ok && cfg.Documents.SQLitePath == cfg.Sessions.SQLitePath {
			return s, nil
		}
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, err
		}
		s, err := sqlite.New(sqlite.Options{Path: cfg.Documents.SQLitePath})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	default:
		return file.NewDocumentRegistry(cfg.Documents.Path)
	}
}
