package chain

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/educhat/rag"
)

func TestParseMode(t *testing.T) {
	for _, s := range []string{"standard", "eli5"} {
		m, err := ParseMode(s)
		require.NoError(t, err)
		assert.Equal(t, Mode(s), m)
	}

	for _, s := range []string{"", "ELI5", "expert"} {
		_, err := ParseMode(s)
		assert.ErrorIs(t, err, ErrInvalidMode, s)
	}
}

func TestNewKey(t *testing.T) {
	a := NewKey("s1", []string{"bio", "physics101", "bio"}, ModeStandard)
	b := NewKey("s1", []string{"physics101", "bio"}, ModeStandard)
	assert.Equal(t, a, b)
	assert.Equal(t, []string{"bio", "physics101"}, a.DocumentIDs())
	assert.True(t, a.HasDocument("bio"))
	assert.False(t, a.HasDocument("chem"))
	assert.Equal(t, "s1/bio,physics101/standard", a.String())

	assert.NotEqual(t, a, NewKey("s1", []string{"bio", "physics101"}, ModeELI5))
	assert.NotEqual(t, a, NewKey("s2", []string{"bio", "physics101"}, ModeStandard))

	joined := NewKey("s1", []string{"bio\x1fphysics101"}, ModeStandard)
	assert.NotEqual(t, a, joined)
	assert.Equal(t, []string{"bio\x1fphysics101"}, joined.DocumentIDs())
	assert.False(t, joined.HasDocument("bio"))

	odd := NewKey("s1", []string{`a","b`, "c"}, ModeStandard)
	assert.Equal(t, []string{`a","b`, "c"}, odd.DocumentIDs())
	assert.NotEqual(t, odd, NewKey("s1", []string{"a", "b", "c"}, ModeStandard))

	empty := NewKey("s1", []string{""}, ModeStandard)
	assert.Empty(t, empty.Documents)
	assert.Nil(t, empty.DocumentIDs())
}

func TestPromptFor(t *testing.T) {
	vars := map[string]any{
		"context":      "[1] Source: Physics 101\nContent: Inertia...",
		"chat_history": "Human: hi\nAI: hello",
		"question":     "What is inertia?",
	}

	standard, err := PromptFor(ModeStandard).Format(vars)
	require.NoError(t, err)
	assert.True(t, containsAll(standard,
		"helping with document-based questions",
		"Retrieved context:\n[1] Source: Physics 101",
		"Chat History:\nHuman: hi\nAI: hello",
		"User: What is inertia?\nAI Assistant:"))
	assert.NotContains(t, standard, "5-year-old")

	eli5, err := PromptFor(ModeELI5).Format(vars)
	require.NoError(t, err)
	assert.Contains(t, eli5, "Explain like you would to a 5-year-old")
	assert.Contains(t, eli5, "User: What is inertia?")

	condense, err := CondensePrompt().Format(map[string]any{"chat_history": "Human: hi", "question": "and then?"})
	require.NoError(t, err)
	assert.Contains(t, condense, "Follow Up Input: and then?")
}

func TestAsk(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	c, err := f.cache.GetOrCreate(ctx, "s1", []string{"physics101"}, ModeStandard)
	require.NoError(t, err)
	assert.Empty(t, c.Skipped())
	assert.Equal(t, 0, c.Memory().Len())

	answer, err := c.Ask(ctx, "What is inertia?")
	require.NoError(t, err)
	assert.Equal(t, "It is the tendency to keep moving.", answer.Text)
	assert.Equal(t, "What is inertia?", answer.Question)
	require.NotEmpty(t, answer.Sources)
	assert.Equal(t, "physics101", answer.Sources[0].DocumentID)
	assert.Equal(t, "Physics 101", answer.Sources[0].SourceLabel)
	assert.Equal(t, 2, c.Memory().Len())

	prompts := f.llm.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "[1] Source: Physics 101\nContent: Inertia is the tendency")
	assert.Contains(t, prompts[0], "Chat History:\n\n")

	_, err = c.Ask(ctx, "Who described it?")
	require.NoError(t, err)
	assert.Equal(t, 4, c.Memory().Len())

	prompts = f.llm.Prompts()
	require.Len(t, prompts, 2)
	assert.Contains(t, prompts[1], "Human: What is inertia?\nAI: It is the tendency to keep moving.")
}

func TestAskRetrievesAtMostTopK(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{TopK: 1})

	c, err := f.cache.GetOrCreate(ctx, "s1", []string{"physics101", "bio"}, ModeStandard)
	require.NoError(t, err)

	answer, err := c.Ask(ctx, "photosynthesis chloroplasts chlorophyll plants")
	require.NoError(t, err)
	require.Len(t, answer.Sources, 1)
	assert.Equal(t, "bio", answer.Sources[0].DocumentID)
}

func TestAskGenerationFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.llm.reply = failingReply

	c, err := f.cache.GetOrCreate(ctx, "s1", []string{"physics101"}, ModeELI5)
	require.NoError(t, err)

	_, err = c.Ask(ctx, "What is inertia?")
	require.Error(t, err)
	assert.ErrorIs(t, err, rag.ErrGenerationFailed)
	assert.ErrorIs(t, err, errProvider)
	assert.Equal(t, 0, c.Memory().Len())

	prompts := f.llm.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "5-year-old")
}

func TestAskTruncatesExcerpts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.add(t, "long", "Long Notes", strings.Repeat("momentum ", 60))

	c, err := f.cache.GetOrCreate(ctx, "s1", []string{"long"}, ModeStandard)
	require.NoError(t, err)

	answer, err := c.Ask(ctx, "momentum")
	require.NoError(t, err)
	require.Len(t, answer.Sources, 1)

	excerpt := answer.Sources[0].Excerpt
	assert.Len(t, []rune(excerpt), rag.ExcerptLength+3)
	assert.True(t, strings.HasSuffix(excerpt, "..."))
	assert.True(t, strings.HasPrefix(excerpt, "momentum momentum"))
}

func TestAskIsSerialized(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.llm.delay = 5 * time.Millisecond

	c, err := f.cache.GetOrCreate(ctx, "s1", []string{"physics101"}, ModeStandard)
	require.NoError(t, err)

	const n = 8
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Ask(ctx, "What is inertia?")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), f.llm.maxInFlight.Load())
	assert.Equal(t, 2*n, c.Memory().Len())
}

func TestAskCondensesFollowUp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{CondenseQuestion: true})
	f.llm.reply = func(prompt string) (string, error) {
		if strings.Contains(prompt, "Standalone question:") {
			return "What did Newton say about inertia?", nil
		}
		return "Objects keep doing what they are doing.", nil
	}

	c, err := f.cache.GetOrCreate(ctx, "s1", []string{"physics101"}, ModeStandard)
	require.NoError(t, err)

	// Nothing to condense on the first turn.
	first, err := c.Ask(ctx, "What is inertia?")
	require.NoError(t, err)
	assert.Equal(t, "What is inertia?", first.Question)
	assert.Len(t, f.llm.Prompts(), 1)

	second, err := c.Ask(ctx, "What did he say about it?")
	require.NoError(t, err)
	assert.Equal(t, "What did Newton say about inertia?", second.Question)

	prompts := f.llm.Prompts()
	require.Len(t, prompts, 3)
	assert.Contains(t, prompts[1], "Follow Up Input: What did he say about it?")
	// The answer prompt keeps the user's own wording.
	assert.Contains(t, prompts[2], "User: What did he say about it?")
	assert.Equal(t, 4, c.Memory().Len())
}
