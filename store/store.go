package store

import (
	"context"
	"errors"
	"slices"
	"time"
)

var (
	// ErrSessionNotFound is returned when a session ID is unknown.
	ErrSessionNotFound = errors.New("session not found")
	// ErrDocumentNotFound is returned when a document ID is not registered.
	ErrDocumentNotFound = errors.New("document not found")
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a session's chat log.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is a chat conversation bound to a set of documents.
type Session struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	DocumentIDs []string  `json:"document_ids"`
	Messages    []Message `json:"messages"`
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (s *Session) Clone() *Session {
	c := *s
	c.DocumentIDs = slices.Clone(s.DocumentIDs)
	c.Messages = slices.Clone(s.Messages)
	return &c
}

// SessionStore persists sessions and their message logs.
type SessionStore interface {
	// CreateSession stores a new session.
	CreateSession(ctx context.Context, session *Session) error

	// GetSession returns the session or ErrSessionNotFound.
	GetSession(ctx context.Context, id string) (*Session, error)

	// AppendMessages appends messages to the session log in order.
	AppendMessages(ctx context.Context, id string, messages ...Message) error

	// DeleteSession removes a session. Deleting an unknown session returns ErrSessionNotFound.
	DeleteSession(ctx context.Context, id string) error

	// ListSessions returns all sessions ordered by creation time.
	ListSessions(ctx context.Context) ([]*Session, error)
}

// DocumentStatus is the processing state of a registered document.
type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusProcessed  DocumentStatus = "processed"
	StatusError      DocumentStatus = "error"
)

// Document is a registry record for an uploaded study document. Text holds
// the extracted content the index is built from.
type Document struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	FileType  string         `json:"file_type"`
	FilePath  string         `json:"file_path"`
	Status    DocumentStatus `json:"status"`
	Processed bool           `json:"processed"`
	CreatedAt time.Time      `json:"created_at"`
	Text      string         `json:"text,omitempty"`
}

// DocumentRegistry stores document records.
type DocumentRegistry interface {
	// PutDocument inserts or replaces a record.
	PutDocument(ctx context.Context, doc *Document) error

	// GetDocument returns the record or ErrDocumentNotFound.
	GetDocument(ctx context.Context, id string) (*Document, error)

	// SetStatus updates the processing status. Processed follows the status.
	SetStatus(ctx context.Context, id string, status DocumentStatus) error

	// ListDocuments returns all records ordered by creation time.
	ListDocuments(ctx context.Context) ([]*Document, error)
}
