package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Roles used in the buffer. They match the roles stored in session logs.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one utterance held in memory.
type Message struct {
	ID        string
	Role      string
	Content   string
	Timestamp time.Time
}

// NewMessage creates a message with a fresh ID.
func NewMessage(role, content string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// Stats describes the buffer contents.
type Stats struct {
	TotalMessages  int
	ActiveMessages int
	TotalChars     int
}

// Buffer is a conversation buffer. It keeps every message; Window limits how
// many trailing turns (question and answer pairs) GetContext and History
// return. A window of 0 returns everything.
type Buffer struct {
	mu       sync.RWMutex
	messages []*Message
	window   int
}

// NewBuffer creates an empty buffer.
func NewBuffer(window int) *Buffer {
	return &Buffer{window: max(window, 0)}
}

// AddMessage appends one message.
func (b *Buffer) AddMessage(_ context.Context, msg *Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, msg)
	return nil
}

// AddTurn appends a question and its answer together.
func (b *Buffer) AddTurn(question, answer string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, NewMessage(RoleUser, question), NewMessage(RoleAssistant, answer))
}

// GetContext returns the messages inside the window, oldest first.
func (b *Buffer) GetContext(_ context.Context, _ string) ([]*Message, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.windowed()), nil
}

func (b *Buffer) windowed() []*Message {
	if b.window == 0 || len(b.messages) <= 2*b.window {
		return b.messages
	}
	return b.messages[len(b.messages)-2*b.window:]
}

// Len returns the number of stored messages.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.messages)
}

// History renders the windowed messages as a transcript:
//
//	Human: ...
//	AI: ...
func (b *Buffer) History() string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var sb strings.Builder
	for i, m := range b.windowed() {
		if i > 0 {
			sb.WriteByte('\n')
		}
		if m.Role == RoleAssistant {
			sb.WriteString("AI: ")
		} else {
			sb.WriteString("Human: ")
		}
		sb.WriteString(m.Content)
	}
	return sb.String()
}

// Clear removes all messages.
func (b *Buffer) Clear(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = nil
	return nil
}

// GetStats returns buffer statistics.
func (b *Buffer) GetStats(_ context.Context) (*Stats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := &Stats{
		TotalMessages:  len(b.messages),
		ActiveMessages: len(b.windowed()),
	}
	for _, m := range b.messages {
		stats.TotalChars += len(m.Content)
	}
	return stats, nil
}
