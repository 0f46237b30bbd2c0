package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/smallnest/educhat/store"
)

// Store keeps sessions and document records in process memory.
// It implements both store.SessionStore and store.DocumentRegistry.
type Store struct {
	mu        sync.RWMutex
	sessions  map[string]*store.Session
	documents map[string]*store.Document
}

var (
	_ store.SessionStore     = (*Store)(nil)
	_ store.DocumentRegistry = (*Store)(nil)
)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		sessions:  make(map[string]*store.Session),
		documents: make(map[string]*store.Document),
	}
}

// CreateSession stores a copy of session.
func (s *Store) CreateSession(_ context.Context, session *store.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	s.sessions[session.ID] = session.Clone()
	return nil
}

// GetSession returns a copy of the stored session.
func (s *Store) GetSession(_ context.Context, id string) (*store.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrSessionNotFound, id)
	}
	return session.Clone(), nil
}

// AppendMessages appends to the session log.
func (s *Store) AppendMessages(_ context.Context, id string, messages ...store.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", store.ErrSessionNotFound, id)
	}
	session.Messages = append(session.Messages, messages...)
	session.UpdatedAt = time.Now()
	return nil
}

// DeleteSession removes the session.
func (s *Store) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", store.ErrSessionNotFound, id)
	}
	delete(s.sessions, id)
	return nil
}

// ListSessions returns copies of all sessions, oldest first.
func (s *Store) ListSessions(_ context.Context) ([]*store.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*store.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session.Clone())
	}
	slices.SortFunc(out, func(a, b *store.Session) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

// PutDocument inserts or replaces a document record.
func (s *Store) PutDocument(_ context.Context, doc *store.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *doc
	s.documents[doc.ID] = &c
	return nil
}

// GetDocument returns a copy of the record.
func (s *Store) GetDocument(_ context.Context, id string) (*store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrDocumentNotFound, id)
	}
	c := *doc
	return &c, nil
}

// SetStatus updates the processing status of a document.
func (s *Store) SetStatus(_ context.Context, id string, status store.DocumentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[id]
	if !ok {
		return fmt.Errorf("%w: %s", store.ErrDocumentNotFound, id)
	}
	doc.Status = status
	doc.Processed = status == store.StatusProcessed
	return nil
}

// ListDocuments returns copies of all records, oldest first.
func (s *Store) ListDocuments(_ context.Context) ([]*store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*store.Document, 0, len(s.documents))
	for _, doc := range s.documents {
		c := *doc
		out = append(out, &c)
	}
	slices.SortFunc(out, func(a, b *store.Document) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}
