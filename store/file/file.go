package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/smallnest/educhat/store"
)

// SessionStore keeps one JSON file per session under a directory.
type SessionStore struct {
	dir string
	mu  sync.Mutex
}

var _ store.SessionStore = (*SessionStore)(nil)

// NewSessionStore creates the session directory if it doesn't exist.
func NewSessionStore(dir string) (*SessionStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	return &SessionStore{dir: dir}, nil
}

func (s *SessionStore) path(id string) string {
	return filepath.Join(s.dir, url.PathEscape(id)+".json")
}

// CreateSession writes a new session file.
func (s *SessionStore) CreateSession(_ context.Context, session *store.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(session.ID)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	return writeJSON(path, session)
}

// GetSession reads a session file.
func (s *SessionStore) GetSession(_ context.Context, id string) (*store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.read(id)
}

func (s *SessionStore) read(id string) (*store.Session, error) {
	var session store.Session
	if err := readJSON(s.path(id), &session); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", store.ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("failed to read session %s: %w", id, err)
	}
	return &session, nil
}

// AppendMessages rewrites the session file with the new messages appended.
func (s *SessionStore) AppendMessages(_ context.Context, id string, messages ...store.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.read(id)
	if err != nil {
		return err
	}
	session.Messages = append(session.Messages, messages...)
	session.UpdatedAt = time.Now()
	return writeJSON(s.path(id), session)
}

// DeleteSession removes the session file.
func (s *SessionStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(id)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", store.ErrSessionNotFound, id)
		}
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

// ListSessions loads every session file in the directory. Unreadable files
// are skipped.
func (s *SessionStore) ListSessions(_ context.Context) ([]*store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sessions := make([]*store.Session, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		var session store.Session
		if err := readJSON(filepath.Join(s.dir, entry.Name()), &session); err != nil {
			continue
		}
		sessions = append(sessions, &session)
	}

	slices.SortFunc(sessions, func(a, b *store.Session) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return sessions, nil
}

// DocumentRegistry keeps all document records in a single JSON file.
type DocumentRegistry struct {
	path string
	mu   sync.Mutex
}

var _ store.DocumentRegistry = (*DocumentRegistry)(nil)

// NewDocumentRegistry uses the registry file at path, creating its directory.
func NewDocumentRegistry(path string) (*DocumentRegistry, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create registry directory: %w", err)
	}
	return &DocumentRegistry{path: path}, nil
}

func (r *DocumentRegistry) load() (map[string]*store.Document, error) {
	docs := make(map[string]*store.Document)
	if err := readJSON(r.path, &docs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return docs, nil
		}
		return nil, fmt.Errorf("failed to read document registry: %w", err)
	}
	return docs, nil
}

// PutDocument inserts or replaces a record.
func (r *DocumentRegistry) PutDocument(_ context.Context, doc *store.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	docs, err := r.load()
	if err != nil {
		return err
	}
	docs[doc.ID] = doc
	return writeJSON(r.path, docs)
}

// GetDocument returns one record.
func (r *DocumentRegistry) GetDocument(_ context.Context, id string) (*store.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	docs, err := r.load()
	if err != nil {
		return nil, err
	}
	doc, ok := docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrDocumentNotFound, id)
	}
	return doc, nil
}

// SetStatus updates the processing status of a record.
func (r *DocumentRegistry) SetStatus(_ context.Context, id string, status store.DocumentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	docs, err := r.load()
	if err != nil {
		return err
	}
	doc, ok := docs[id]
	if !ok {
		return fmt.Errorf("%w: %s", store.ErrDocumentNotFound, id)
	}
	doc.Status = status
	doc.Processed = status == store.StatusProcessed
	return writeJSON(r.path, docs)
}

// ListDocuments returns all records, oldest first.
func (r *DocumentRegistry) ListDocuments(_ context.Context) ([]*store.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	docs, err := r.load()
	if err != nil {
		return nil, err
	}
	out := make([]*store.Document, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc)
	}
	slices.SortFunc(out, func(a, b *store.Document) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// writeJSON replaces path atomically via a temp file in the same directory.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return os.Rename(tmp.Name(), path)
}
