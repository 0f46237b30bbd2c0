package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/smallnest/educhat/log"
	"github.com/smallnest/educhat/metrics"
	"github.com/smallnest/educhat/rag"
	"github.com/smallnest/educhat/rag/fusion"
	"github.com/smallnest/educhat/store"
)

// DefaultMaxDocumentChars caps how much of each document goes into the prompt.
const DefaultMaxDocumentChars = 15000

var (
	// ErrInvalidRequest is returned for unknown difficulties or question
	// types and non-positive question counts.
	ErrInvalidRequest = errors.New("invalid quiz request")
	// ErrNoTopic is returned by GenerateTopic for an empty topic.
	ErrNoTopic = errors.New("no topic provided")
	// ErrNoContent is returned when none of the documents has text.
	ErrNoContent = errors.New("no valid document content found")
	// ErrInvalidOutput is returned when the model reply holds no usable quiz.
	ErrInvalidOutput = errors.New("failed to parse quiz output")
)

// Difficulty of the generated questions.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// QuestionType is the answer format of a question.
type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
	ShortAnswer    QuestionType = "short_answer"
)

func (q QuestionType) valid() bool {
	return q == MultipleChoice || q == TrueFalse || q == ShortAnswer
}

// Request describes the quiz to generate. Zero values select five
// multiple choice and true/false questions of medium difficulty.
type Request struct {
	DocumentIDs   []string
	NumQuestions  int
	QuestionTypes []QuestionType
	Difficulty    Difficulty
	Topic         string
}

// Question is one generated question.
type Question struct {
	Question    string       `json:"question"`
	Type        QuestionType `json:"type"`
	Options     []string     `json:"options,omitempty"`
	Answer      string       `json:"answer"`
	Explanation string       `json:"explanation"`
}

// Quiz is the generated quiz plus the titles of the documents it covers.
type Quiz struct {
	Topic      string     `json:"topic,omitempty"`
	Questions  []Question `json:"questions"`
	Documents  []string   `json:"documents"`
	Difficulty Difficulty `json:"difficulty"`
}

// DocumentLookup resolves registry records.
type DocumentLookup interface {
	GetDocument(ctx context.Context, id string) (*store.Document, error)
}

// Generator writes quizzes from registered document text.
type Generator struct {
	model     llms.Model
	documents DocumentLookup
	maxChars  int
	options   []llms.CallOption
	logger    log.Logger
	metrics   *metrics.Metrics
}

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(g *Generator) { g.logger = log.WithComponent(l, "quiz") }
}

// WithMetrics records generated quizzes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

// WithCallOptions sets options passed to every model call.
func WithCallOptions(opts ...llms.CallOption) Option {
	return func(g *Generator) { g.options = opts }
}

// WithMaxDocumentChars caps the characters taken from each document.
func WithMaxDocumentChars(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxChars = n
		}
	}
}

// New creates a Generator.
func New(model llms.Model, documents DocumentLookup, opts ...Option) *Generator {
	g := &Generator{
		model:     model,
		documents: documents,
		maxChars:  DefaultMaxDocumentChars,
		logger:    log.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GenerateTopic generates a quiz focused on topic.
func (g *Generator) GenerateTopic(ctx context.Context, topic string, req Request) (*Quiz, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, ErrNoTopic
	}
	req.Topic = topic
	return g.Generate(ctx, req)
}

// Generate asks the model for a quiz over the text of req.DocumentIDs.
// Unknown documents are skipped; if no document has text the result is
// ErrNoContent.
func (g *Generator) Generate(ctx context.Context, req Request) (*Quiz, error) {
	start := time.Now()
	q, err := g.generate(ctx, req)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	g.metrics.Quiz(outcome, time.Since(start))
	return q, err
}

func (g *Generator) generate(ctx context.Context, req Request) (*Quiz, error) {
	req, err := withDefaults(req)
	if err != nil {
		return nil, err
	}

	ids := fusion.Normalize(req.DocumentIDs)
	if len(ids) == 0 {
		return nil, rag.ErrNoDocuments
	}

	content, titles, err := g.content(ctx, ids)
	if err != nil {
		return nil, err
	}

	types := make([]string, len(req.QuestionTypes))
	for i, t := range req.QuestionTypes {
		types[i] = string(t)
	}
	vars := map[string]any{
		"num_questions":          req.NumQuestions,
		"difficulty":             string(req.Difficulty),
		"difficulty_instruction": difficultyInstructions[req.Difficulty],
		"question_types":         strings.Join(types, ", "),
		"content":                content,
		"topic_clause":           "",
		"topic_request":          "",
	}
	if req.Topic != "" {
		vars["topic_clause"] = " about " + req.Topic
		vars["topic_request"] = " The topic should be: " + req.Topic
	}

	msgs, err := Prompt().FormatMessages(vars)
	if err != nil {
		return nil, fmt.Errorf("formatting quiz prompt: %w", err)
	}
	messages := make([]llms.MessageContent, len(msgs))
	for i, m := range msgs {
		messages[i] = llms.TextParts(m.GetType(), m.GetContent())
	}

	g.logger.Info("generating %d %s questions over %d documents", req.NumQuestions, req.Difficulty, len(titles))
	resp, err := g.model.GenerateContent(ctx, messages, g.options...)
	if err != nil {
		g.logger.Error("quiz generation failed: %v", err)
		return nil, fmt.Errorf("generating quiz: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrInvalidOutput)
	}

	quiz, err := Parse(resp.Choices[0].Content)
	if err != nil {
		g.logger.Warn("unusable quiz output: %v", err)
		return nil, err
	}
	if quiz.Topic == "" {
		quiz.Topic = req.Topic
	}
	quiz.Documents = titles
	quiz.Difficulty = req.Difficulty
	return quiz, nil
}

// content concatenates the text of each known document under a title
// header, truncated to maxChars runes per document.
func (g *Generator) content(ctx context.Context, ids []string) (string, []string, error) {
	var (
		sb     strings.Builder
		titles []string
	)
	for _, id := range ids {
		doc, err := g.documents.GetDocument(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrDocumentNotFound) {
				g.logger.Warn("quiz: document %s not found", id)
				continue
			}
			return "", nil, fmt.Errorf("loading document %s: %w", id, err)
		}

		title := doc.Title
		if title == "" {
			title = "Document"
		}
		titles = append(titles, title)

		text := strings.TrimSpace(doc.Text)
		if text == "" {
			continue
		}
		if r := []rune(text); len(r) > g.maxChars {
			text = string(r[:g.maxChars])
		}
		fmt.Fprintf(&sb, "\n\n--- %s ---\n\n%s", title, text)
	}
	if sb.Len() == 0 {
		return "", nil, ErrNoContent
	}
	return sb.String(), titles, nil
}

func withDefaults(req Request) (Request, error) {
	if req.NumQuestions == 0 {
		req.NumQuestions = 5
	}
	if req.NumQuestions < 0 {
		return req, fmt.Errorf("%w: %d questions", ErrInvalidRequest, req.NumQuestions)
	}
	if req.Difficulty == "" {
		req.Difficulty = DifficultyMedium
	}
	if _, ok := difficultyInstructions[req.Difficulty]; !ok {
		return req, fmt.Errorf("%w: difficulty %q (want easy, medium or hard)", ErrInvalidRequest, req.Difficulty)
	}
	if len(req.QuestionTypes) == 0 {
		req.QuestionTypes = []QuestionType{MultipleChoice, TrueFalse}
	}
	for _, t := range req.QuestionTypes {
		if !t.valid() {
			return req, fmt.Errorf("%w: question type %q", ErrInvalidRequest, t)
		}
	}
	req.Topic = strings.TrimSpace(req.Topic)
	return req, nil
}

// Parse extracts the quiz JSON object from a model reply. Text around the
// outermost braces, such as a markdown fence, is ignored. Questions without
// text or answer are dropped.
func Parse(reply string) (*Quiz, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON object in reply", ErrInvalidOutput)
	}

	var raw Quiz
	if err := json.Unmarshal([]byte(reply[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOutput, err)
	}

	q := &Quiz{Topic: strings.TrimSpace(raw.Topic)}
	for _, question := range raw.Questions {
		if strings.TrimSpace(question.Question) == "" || strings.TrimSpace(question.Answer) == "" {
			continue
		}
		question.Type = QuestionType(strings.ToLower(strings.TrimSpace(string(question.Type))))
		q.Questions = append(q.Questions, question)
	}
	if len(q.Questions) == 0 {
		return nil, fmt.Errorf("%w: no questions", ErrInvalidOutput)
	}
	return q, nil
}
