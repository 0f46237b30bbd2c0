package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/callbacks"
	"github.com/tmc/langchaingo/llms"
)

var (
	ErrMissingAPIKey = errors.New("missing OpenAI API key")
	ErrEmptyResponse = errors.New("no response")
)

// LLM is a chat and embedding client for OpenAI compatible APIs.
type LLM struct {
	client           *openai.Client
	model            string
	embeddingModel   string
	maxRetries       int
	retryDelay       time.Duration
	dimension        atomic.Int64
	CallbacksHandler callbacks.Handler
}

var _ llms.Model = (*LLM)(nil)

// New returns a client configured from options and the environment.
//
//	llm, err := openai.New(
//		openai.WithModel("gpt-4o-mini"),
//		openai.WithEmbeddingModel("text-embedding-3-small"),
//	)
func New(opts ...Option) (*LLM, error) {
	options := &options{
		apiKey:         getEnvOrDefault("OPENAI_API_KEY", ""),
		baseURL:        getEnvOrDefault("OPENAI_BASE_URL", ""),
		model:          DefaultModel,
		embeddingModel: DefaultEmbeddingModel,
		maxRetries:     DefaultMaxRetries,
		retryDelay:     defaultRetryDelay,
	}

	for _, opt := range opts {
		opt(options)
	}

	if options.apiKey == "" {
		return nil, fmt.Errorf(`%w
You can pass it by using openai.New(openai.WithAPIKey("{API Key}"))
or
export OPENAI_API_KEY={API Key}`, ErrMissingAPIKey)
	}

	cfg := openai.DefaultConfig(options.apiKey)
	if options.baseURL != "" {
		cfg.BaseURL = strings.TrimRight(options.baseURL, "/")
	}
	if options.httpClient != nil {
		cfg.HTTPClient = options.httpClient
	}

	return &LLM{
		client:           openai.NewClientWithConfig(cfg),
		model:            options.model,
		embeddingModel:   options.embeddingModel,
		maxRetries:       max(options.maxRetries, 0),
		retryDelay:       options.retryDelay,
		CallbacksHandler: options.callbacksHandler,
	}, nil
}

// Call generates a response from the LLM for the given prompt.
func (o *LLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, o, prompt, options...)
}

// GenerateContent implements the Model interface.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if o.CallbacksHandler != nil {
		o.CallbacksHandler.HandleLLMGenerateContentStart(ctx, messages)
	}

	opts := &llms.CallOptions{}
	for _, opt := range options {
		opt(opts)
	}

	chatMessages := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		chatMessages = append(chatMessages, chatMessage(msg))
	}

	model := o.model
	if opts.Model != "" {
		model = opts.Model
	}

	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    chatMessages,
		Temperature: float32(opts.Temperature),
		TopP:        float32(opts.TopP),
		MaxTokens:   opts.MaxTokens,
		Stop:        opts.StopWords,
	}

	var result openai.ChatCompletionResponse
	err := o.retry(ctx, func() error {
		var err error
		result, err = o.client.CreateChatCompletion(ctx, req)
		return err
	})
	if err == nil && len(result.Choices) == 0 {
		err = ErrEmptyResponse
	}
	if err != nil {
		if o.CallbacksHandler != nil {
			o.CallbacksHandler.HandleLLMError(ctx, err)
		}
		return nil, err
	}

	resp := &llms.ContentResponse{Choices: make([]*llms.ContentChoice, 0, len(result.Choices))}
	for _, c := range result.Choices {
		resp.Choices = append(resp.Choices, &llms.ContentChoice{
			Content:    c.Message.Content,
			StopReason: string(c.FinishReason),
			GenerationInfo: map[string]any{
				"prompt_tokens":     result.Usage.PromptTokens,
				"completion_tokens": result.Usage.CompletionTokens,
				"total_tokens":      result.Usage.TotalTokens,
			},
		})
	}

	if o.CallbacksHandler != nil {
		o.CallbacksHandler.HandleLLMGenerateContentEnd(ctx, resp)
	}

	return resp, nil
}

// CreateEmbedding embeds texts with the embedding model. Vectors are
// returned in input order.
func (o *LLM) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	var resp openai.EmbeddingResponse
	err := o.retry(ctx, func() error {
		var err error
		resp, err = o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: texts,
			Model: openai.EmbeddingModel(o.embeddingModel),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: %d embeddings for %d texts", ErrEmptyResponse, len(resp.Data), len(texts))
	}

	emb := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		emb[d.Index] = d.Embedding
	}
	if len(emb[0]) > 0 {
		o.dimension.CompareAndSwap(0, int64(len(emb[0])))
	}
	return emb, nil
}

// retry runs fn until it succeeds, fails permanently or the retry budget is
// spent. Rate limits and server errors are retried with exponential backoff.
func (o *LLM) retry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(); err == nil || !retryable(err) || attempt >= o.maxRetries {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.retryDelay << attempt):
		}
	}
}

func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	return false
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// chatMessage maps a langchaingo message. Text-only messages use Content;
// messages carrying images are sent as multi-part content, with binary
// images inlined as base64 data URLs.
func chatMessage(msg llms.MessageContent) openai.ChatCompletionMessage {
	out := openai.ChatCompletionMessage{Role: roleOf(msg.Role)}

	var (
		text  strings.Builder
		parts []openai.ChatMessagePart
		image bool
	)
	for _, part := range msg.Parts {
		switch p := part.(type) {
		case llms.TextContent:
			text.WriteString(p.Text)
			parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: p.Text})
		case llms.ImageURLContent:
			image = true
			parts = append(parts, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: p.URL, Detail: openai.ImageURLDetailAuto},
			})
		case llms.BinaryContent:
			image = true
			url := "data:" + p.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(p.Data)
			parts = append(parts, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: url, Detail: openai.ImageURLDetailAuto},
			})
		}
	}

	if image {
		out.MultiContent = parts
	} else {
		out.Content = text.String()
	}
	return out
}

func roleOf(t llms.ChatMessageType) string {
	switch t {
	case llms.ChatMessageTypeSystem:
		return openai.ChatMessageRoleSystem
	case llms.ChatMessageTypeAI:
		return openai.ChatMessageRoleAssistant
	case llms.ChatMessageTypeTool:
		return openai.ChatMessageRoleTool
	default:
		return openai.ChatMessageRoleUser
	}
}
