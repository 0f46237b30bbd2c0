package openai

import (
	"net/http"
	"os"
	"time"

	"github.com/tmc/langchaingo/callbacks"
)

// Defaults used when no option or environment variable overrides them.
const (
	DefaultModel          = "gpt-3.5-turbo"
	DefaultEmbeddingModel = "text-embedding-ada-002"
	DefaultMaxRetries     = 3
	defaultRetryDelay     = 500 * time.Millisecond
)

type options struct {
	apiKey           string
	baseURL          string
	model            string
	embeddingModel   string
	httpClient       *http.Client
	callbacksHandler callbacks.Handler
	maxRetries       int
	retryDelay       time.Duration
}

// Option is a function that configures an LLM.
type Option func(*options)

// WithAPIKey sets the API key. Defaults to $OPENAI_API_KEY.
func WithAPIKey(apiKey string) Option {
	return func(opts *options) {
		opts.apiKey = apiKey
	}
}

// WithBaseURL points the client at an OpenAI compatible endpoint.
// Defaults to $OPENAI_BASE_URL, then the public API.
func WithBaseURL(baseURL string) Option {
	return func(opts *options) {
		opts.baseURL = baseURL
	}
}

// WithModel sets the chat model.
func WithModel(model string) Option {
	return func(opts *options) {
		opts.model = model
	}
}

// WithEmbeddingModel sets the embedding model.
func WithEmbeddingModel(model string) Option {
	return func(opts *options) {
		opts.embeddingModel = model
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(opts *options) {
		opts.httpClient = client
	}
}

// WithCallbacks sets the callbacks handler for the LLM.
func WithCallbacks(handler callbacks.Handler) Option {
	return func(opts *options) {
		opts.callbacksHandler = handler
	}
}

// WithRetries sets how often a rate limited or failed request is retried
// and the base delay of the exponential backoff.
func WithRetries(maxRetries int, delay time.Duration) Option {
	return func(opts *options) {
		opts.maxRetries = maxRetries
		opts.retryDelay = delay
	}
}

// getEnvOrDefault retrieves an environment variable or returns the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
