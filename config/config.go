// Package config loads educhat configuration from YAML with environment
// overrides. A .env file in the working directory is read first, so keys
// such as OPENAI_API_KEY can live there during development.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/smallnest/educhat/log"
	"github.com/smallnest/educhat/rag"
	"github.com/smallnest/educhat/rag/retriever"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// Backends and providers accepted by Validate.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"

	ProviderOpenAI  = "openai"
	ProviderHashing = "hashing"
)

// Config is the top-level application configuration.
type Config struct {
	DataDir   string          `yaml:"data_dir"`
	Log       LogConfig       `yaml:"log"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	LLM       LLMConfig       `yaml:"llm"`
	Index     IndexConfig     `yaml:"index"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Documents DocumentsConfig `yaml:"documents"`
	Chain     ChainConfig     `yaml:"chain"`
	Quiz      QuizConfig      `yaml:"quiz"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// LogConfig controls the log level (debug, info, warn, error, none).
type LogConfig struct {
	Level string `yaml:"level"`
}

// ChunkerConfig controls document chunking, in characters.
type ChunkerConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// EmbedderConfig selects the embedding capability. The hashing provider
// needs no network and is meant for tests and offline demos.
type EmbedderConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	BatchSize int    `yaml:"batch_size"`
	Dimension int    `yaml:"dimension"`
}

// LLMConfig selects the generation capability.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	VisionModel string  `yaml:"vision_model"`
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	MaxRetries  int     `yaml:"max_retries"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// IndexConfig controls where per-document vector indexes are kept.
type IndexConfig struct {
	Backend string      `yaml:"backend"`
	Dir     string      `yaml:"dir"`
	Metric  string      `yaml:"metric"`
	Redis   RedisConfig `yaml:"redis"`
}

// SessionsConfig selects the chat session store.
type SessionsConfig struct {
	Backend     string      `yaml:"backend"`
	Dir         string      `yaml:"dir"`
	SQLitePath  string      `yaml:"sqlite_path"`
	PostgresDSN string      `yaml:"postgres_dsn"`
	Redis       RedisConfig `yaml:"redis"`
}

// DocumentsConfig selects the document registry.
type DocumentsConfig struct {
	Backend    string `yaml:"backend"`
	Path       string `yaml:"path"`
	SQLitePath string `yaml:"sqlite_path"`
	UploadDir  string `yaml:"upload_dir"`
}

// ChainConfig controls the conversational chains.
type ChainConfig struct {
	TopK             int     `yaml:"top_k"`
	SearchType       string  `yaml:"search_type"`
	ScoreThreshold   float64 `yaml:"score_threshold"`
	MaxEntries       int     `yaml:"max_entries"`
	CondenseQuestion bool    `yaml:"condense_question"`
	MemoryWindow     int     `yaml:"memory_window"`
}

// QuizConfig controls quiz generation. An empty Model uses llm.model.
type QuizConfig struct {
	Model            string `yaml:"model"`
	MaxDocumentChars int    `yaml:"max_document_chars"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		DataDir: "data",
		Log:     LogConfig{Level: "info"},
		Chunker: ChunkerConfig{ChunkSize: 1000, ChunkOverlap: 200},
		Embedder: EmbedderConfig{
			Provider:  ProviderOpenAI,
			Model:     "text-embedding-ada-002",
			BatchSize: 64,
			Dimension: 256,
		},
		LLM: LLMConfig{
			Provider:    ProviderOpenAI,
			Model:       "gpt-3.5-turbo",
			VisionModel: "gpt-4o",
			Temperature: 0.7,
			MaxRetries:  3,
		},
		Index: IndexConfig{
			Backend: BackendFile,
			Metric:  string(rag.MetricCosine),
			Redis:   RedisConfig{Addr: "localhost:6379", Prefix: "educhat:"},
		},
		Sessions: SessionsConfig{
			Backend: BackendFile,
			Redis:   RedisConfig{Addr: "localhost:6379", Prefix: "educhat:"},
		},
		Documents: DocumentsConfig{Backend: BackendFile},
		Chain: ChainConfig{
			TopK:       retriever.DefaultK,
			SearchType: retriever.SearchSimilarity,
		},
		Quiz:    QuizConfig{MaxDocumentChars: 15000},
		Metrics: MetricsConfig{Addr: ":9090"},
	}
}

// Load reads .env (if present), then the YAML file at path (if path is not
// empty) over the defaults, then environment overrides. Relative data paths
// left empty are derived from DataDir.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	cfg.resolvePaths()
	return cfg, nil
}

// applyEnvOverrides reads OPENAI_* and EDUCHAT_* environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
		cfg.Embedder.BaseURL = v
	}
	if v := os.Getenv("EDUCHAT_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("EDUCHAT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("EDUCHAT_SESSION_BACKEND"); v != "" {
		cfg.Sessions.Backend = v
	}
	if v := os.Getenv("EDUCHAT_REDIS_ADDR"); v != "" {
		cfg.Sessions.Redis.Addr = v
		cfg.Index.Redis.Addr = v
	}
	if v := os.Getenv("EDUCHAT_POSTGRES_DSN"); v != "" {
		cfg.Sessions.PostgresDSN = v
	}
	if v := os.Getenv("EDUCHAT_TOP_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil {
			cfg.Chain.TopK = k
		}
	}
}

func (c *Config) resolvePaths() {
	if c.Index.Dir == "" {
		c.Index.Dir = filepath.Join(c.DataDir, "embeddings")
	}
	if c.Sessions.Dir == "" {
		c.Sessions.Dir = filepath.Join(c.DataDir, "chat_sessions")
	}
	if c.Sessions.SQLitePath == "" {
		c.Sessions.SQLitePath = filepath.Join(c.DataDir, "educhat.db")
	}
	if c.Documents.Path == "" {
		c.Documents.Path = filepath.Join(c.DataDir, "documents.json")
	}
	if c.Documents.SQLitePath == "" {
		c.Documents.SQLitePath = filepath.Join(c.DataDir, "educhat.db")
	}
	if c.Documents.UploadDir == "" {
		c.Documents.UploadDir = filepath.Join(c.DataDir, "uploads")
	}
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		add("log.level: %v", err)
	}
	if c.Chunker.ChunkSize <= 0 {
		add("chunker.chunk_size must be positive, got %d", c.Chunker.ChunkSize)
	}
	if c.Chunker.ChunkOverlap < 0 || c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
		add("chunker.chunk_overlap must be in [0, chunk_size), got %d", c.Chunker.ChunkOverlap)
	}

	switch c.Embedder.Provider {
	case ProviderOpenAI:
	case ProviderHashing:
		if c.Embedder.Dimension <= 0 {
			add("embedder.dimension must be positive for the hashing provider")
		}
	default:
		add("unknown embedder.provider %q", c.Embedder.Provider)
	}
	if c.LLM.Provider != ProviderOpenAI {
		add("unknown llm.provider %q", c.LLM.Provider)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		add("llm.temperature must be in [0, 2], got %g", c.LLM.Temperature)
	}

	if !oneOf(c.Index.Backend, BackendFile, BackendRedis, BackendMemory) {
		add("unknown index.backend %q", c.Index.Backend)
	}
	if _, err := rag.ParseMetric(c.Index.Metric); err != nil {
		add("index.metric: %v", err)
	}
	if !oneOf(c.Sessions.Backend, BackendFile, BackendMemory, BackendSQLite, BackendRedis, BackendPostgres) {
		add("unknown sessions.backend %q", c.Sessions.Backend)
	}
	if c.Sessions.Backend == BackendPostgres && c.Sessions.PostgresDSN == "" {
		add("sessions.postgres_dsn is required for the postgres backend")
	}
	if !oneOf(c.Documents.Backend, BackendFile, BackendMemory, BackendSQLite) {
		add("unknown documents.backend %q", c.Documents.Backend)
	}

	if c.Chain.TopK <= 0 {
		add("chain.top_k must be positive, got %d", c.Chain.TopK)
	}
	if !oneOf(c.Chain.SearchType, retriever.SearchSimilarity, retriever.SearchMMR) {
		add("unknown chain.search_type %q", c.Chain.SearchType)
	}
	if c.Chain.MaxEntries < 0 || c.Chain.MemoryWindow < 0 {
		add("chain.max_entries and chain.memory_window must not be negative")
	}
	if c.Quiz.MaxDocumentChars <= 0 {
		add("quiz.max_document_chars must be positive, got %d", c.Quiz.MaxDocumentChars)
	}

	return errors.Join(errs...)
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}
