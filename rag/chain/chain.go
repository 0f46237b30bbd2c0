package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"

	"github.com/smallnest/educhat/log"
	"github.com/smallnest/educhat/memory"
	"github.com/smallnest/educhat/rag"
	"github.com/smallnest/educhat/rag/retriever"
)

// Answer is the result of one question asked on a chain.
type Answer struct {
	Text string
	// Question is the question used for retrieval, after condensing.
	Question string
	Sources  []rag.SourceRef
}

// Chain is a conversational retrieval chain bound to one Key. It owns its
// retriever and conversation memory. Ask calls are serialized.
type Chain struct {
	key       Key
	retriever *retriever.VectorRetriever
	llm       llms.Model
	prompt    prompts.PromptTemplate
	condense  *prompts.PromptTemplate
	memory    *memory.Buffer
	callOpts  []llms.CallOption
	logger    log.Logger

	mu       sync.Mutex
	lastUsed atomic.Int64
}

func newChain(key Key, r *retriever.VectorRetriever, llm llms.Model, opts Options, logger log.Logger) *Chain {
	c := &Chain{
		key:       key,
		retriever: r,
		llm:       llm,
		prompt:    PromptFor(key.Mode),
		memory:    memory.NewBuffer(opts.MemoryWindow),
		callOpts:  opts.CallOptions,
		logger:    logger,
	}
	if opts.CondenseQuestion {
		p := CondensePrompt()
		c.condense = &p
	}
	c.touch()
	return c
}

// Key returns the cache key of the chain.
func (c *Chain) Key() Key { return c.key }

// Memory returns the conversation memory of the chain.
func (c *Chain) Memory() *memory.Buffer { return c.memory }

// Skipped returns the documents of the key that are not part of the chain's
// index, with the reason each was left out.
func (c *Chain) Skipped() map[string]error { return c.retriever.Index().Skipped }

// LastUsed returns when the chain was last created or asked.
func (c *Chain) LastUsed() time.Time { return time.Unix(0, c.lastUsed.Load()) }

func (c *Chain) touch() { c.lastUsed.Store(time.Now().UnixNano()) }

// Ask answers question from the chain's documents and conversation so far.
// Memory is only updated when generation succeeds.
func (c *Chain) Ask(ctx context.Context, question string) (*Answer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()

	history := c.memory.History()

	query := question
	if c.condense != nil && c.memory.Len() > 0 {
		standalone, err := c.condenseQuestion(ctx, history, question)
		if err != nil {
			return nil, err
		}
		query = standalone
	}

	hits, err := c.retriever.Retrieve(ctx, query)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("%s: retrieved %d chunks", c.key, len(hits))

	prompt, err := c.prompt.Format(map[string]any{
		"context":      buildContext(hits),
		"chat_history": history,
		"question":     question,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: render prompt: %w", rag.ErrGenerationFailed, err)
	}

	text, err := c.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	c.memory.AddTurn(question, text)

	sources := make([]rag.SourceRef, 0, len(hits))
	for _, h := range hits {
		sources = append(sources, rag.NewSourceRef(h))
	}
	return &Answer{Text: text, Question: query, Sources: sources}, nil
}

func (c *Chain) condenseQuestion(ctx context.Context, history, question string) (string, error) {
	prompt, err := c.condense.Format(map[string]any{
		"chat_history": history,
		"question":     question,
	})
	if err != nil {
		return "", fmt.Errorf("%w: render condense prompt: %w", rag.ErrGenerationFailed, err)
	}
	standalone, err := c.generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	c.logger.Debug("%s: condensed %q to %q", c.key, question, standalone)
	return standalone, nil
}

func (c *Chain) generate(ctx context.Context, prompt string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
	resp, err := c.llm.GenerateContent(ctx, messages, c.callOpts...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", rag.ErrGenerationFailed, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: %w", rag.ErrGenerationFailed, errEmptyResponse)
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

var errEmptyResponse = errors.New("model returned no choices")

// buildContext renders retrieved chunks for the prompt:
//
//	[1] Source: Physics 101
//	Content: ...
func buildContext(hits []rag.ScoredChunk) string {
	parts := make([]string, 0, len(hits))
	for i, h := range hits {
		parts = append(parts, fmt.Sprintf("[%d] Source: %s\nContent: %s", i+1, h.SourceLabel, h.Chunk.Text))
	}
	return strings.Join(parts, "\n\n")
}
