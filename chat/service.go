package chat

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smallnest/educhat/log"
	"github.com/smallnest/educhat/metrics"
	"github.com/smallnest/educhat/rag"
	"github.com/smallnest/educhat/rag/chain"
	"github.com/smallnest/educhat/rag/fusion"
	"github.com/smallnest/educhat/rag/loader"
	index "github.com/smallnest/educhat/rag/store"
	"github.com/smallnest/educhat/store"
)

// DefaultSessionTitle is used when a session is created without a title.
const DefaultSessionTitle = "New Chat"

// Config wires a Service to its collaborators. Sessions, Documents, Indexes
// and Chains are required.
type Config struct {
	Sessions  store.SessionStore
	Documents store.DocumentRegistry
	Indexes   *index.IndexStore
	Chains    *chain.Cache

	// Extractors is used by Ingest. Defaults to loader.NewRegistry().
	Extractors *loader.Registry
	// UploadDir, when set, receives a copy of every ingested file.
	UploadDir string

	Logger  log.Logger
	Metrics *metrics.Metrics
}

// Service drives conversation turns over the retrieval core. It is safe for
// concurrent use; turns of one session run one at a time.
type Service struct {
	sessions   store.SessionStore
	documents  store.DocumentRegistry
	indexes    *index.IndexStore
	chains     *chain.Cache
	extractors *loader.Registry
	uploadDir  string
	logger     log.Logger
	metrics    *metrics.Metrics

	locks sessionLocks
	now   func() time.Time
}

// New creates a Service.
func New(cfg Config) (*Service, error) {
	switch {
	case cfg.Sessions == nil:
		return nil, errors.New("chat: session store is required")
	case cfg.Documents == nil:
		return nil, errors.New("chat: document registry is required")
	case cfg.Indexes == nil:
		return nil, errors.New("chat: index store is required")
	case cfg.Chains == nil:
		return nil, errors.New("chat: chain cache is required")
	}

	s := &Service{
		sessions:   cfg.Sessions,
		documents:  cfg.Documents,
		indexes:    cfg.Indexes,
		chains:     cfg.Chains,
		extractors: cfg.Extractors,
		uploadDir:  cfg.UploadDir,
		logger:     log.WithComponent(cfg.Logger, "chat"),
		metrics:    cfg.Metrics,
		now:        time.Now,
	}
	if s.extractors == nil {
		s.extractors = loader.NewRegistry()
	}
	return s, nil
}

// EnsureDocumentIndexed builds the index for a document unless an
// up-to-date one exists.
func (s *Service) EnsureDocumentIndexed(ctx context.Context, documentID, text string, metadata map[string]any) error {
	_, err := s.indexes.Ensure(ctx, documentID, text, metadata)
	return err
}

// HasIndex reports whether a loadable index exists for documentID.
func (s *Service) HasIndex(ctx context.Context, documentID string) bool {
	return s.indexes.HasIndex(ctx, documentID)
}

// CreateSession starts a conversation over documentIDs.
func (s *Service) CreateSession(ctx context.Context, title string, documentIDs []string) (*store.Session, error) {
	if title == "" {
		title = DefaultSessionTitle
	}
	now := s.now()
	sess := &store.Session{
		ID:          uuid.NewString(),
		Title:       title,
		CreatedAt:   now,
		UpdatedAt:   now,
		DocumentIDs: fusion.Normalize(documentIDs),
		Messages:    []store.Message{},
	}
	if err := s.sessions.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	s.logger.Info("created session %s over %d documents", sess.ID, len(sess.DocumentIDs))
	return sess, nil
}

// Session returns a session with its message log.
func (s *Service) Session(ctx context.Context, id string) (*store.Session, error) {
	return s.sessions.GetSession(ctx, id)
}

// ListSessions returns all sessions ordered by creation time.
func (s *Service) ListSessions(ctx context.Context) ([]*store.Session, error) {
	return s.sessions.ListSessions(ctx)
}

// DeleteSession removes a session and drops its cached chains.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	unlock := s.locks.lock(id)
	defer unlock()

	if err := s.sessions.DeleteSession(ctx, id); err != nil {
		return err
	}
	n := s.chains.EvictSession(id)
	s.logger.Info("deleted session %s (%d chains evicted)", id, n)
	return nil
}

// AskSession asks question against the session's own document set.
func (s *Service) AskSession(ctx context.Context, sessionID string, mode chain.Mode, question string) (*Reply, error) {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.Ask(ctx, sessionID, sess.DocumentIDs, mode, question)
}

// Ask runs one conversation turn.
//
// An invalid mode, an empty document set and an unknown session are caller
// errors: they are returned and the message log is left untouched. Every
// other outcome, including failures of the embedding or generation
// capability, yields a Reply and appends exactly one user and one
// assistant message to the session.
func (s *Service) Ask(ctx context.Context, sessionID string, documentIDs []string, mode chain.Mode, question string) (*Reply, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w (got %q)", chain.ErrInvalidMode, mode)
	}
	ids := fusion.Normalize(documentIDs)
	if len(ids) == 0 {
		return nil, rag.ErrNoDocuments
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	if _, err := s.sessions.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	start := s.now()
	reply := newReply(sessionID, question, mode)
	s.turn(ctx, reply, ids)

	// The log is written even when the caller has gone away, so a turn
	// that ran is never dropped.
	err := s.sessions.AppendMessages(context.WithoutCancel(ctx), sessionID,
		store.Message{ID: uuid.NewString(), Role: store.RoleUser, Content: question, Timestamp: start},
		store.Message{ID: uuid.NewString(), Role: store.RoleAssistant, Content: reply.Answer, Timestamp: s.now()},
	)
	if err != nil {
		s.logger.Error("session %s: appending turn failed: %v", sessionID, err)
		return nil, fmt.Errorf("appending messages to session %s: %w", sessionID, err)
	}

	s.metrics.Turn(string(mode), outcome(reply), s.now().Sub(start))
	if reply.Fallback {
		s.logger.Warn("session %s: fallback reply: %v", sessionID, reply.Err)
	}
	return reply, nil
}

func (s *Service) turn(ctx context.Context, reply *Reply, ids []string) {
	reply.enter(StateResolvingDocuments)
	reply.Used, reply.Unusable = s.resolve(ctx, ids)
	if len(reply.Used) == 0 {
		reply.fail(fmt.Errorf("%w: %d documents requested, none usable", rag.ErrNoValidDocuments, len(ids)))
		return
	}

	reply.enter(StateRetrieving)
	ch, err := s.chains.GetOrCreate(ctx, reply.SessionID, reply.Used, reply.Mode)
	if err != nil {
		reply.fail(err)
		return
	}
	for _, id := range slices.Sorted(maps.Keys(ch.Skipped())) {
		reply.Unusable = append(reply.Unusable, fmt.Sprintf("Document with ID %s could not be used", id))
	}

	reply.enter(StateGenerating)
	answer, err := ch.Ask(ctx, reply.Question)
	if err != nil {
		reply.fail(err)
		return
	}
	reply.Answer = answer.Text
	reply.Sources = answer.Sources
	reply.enter(StateCompleted)
}

// resolve splits ids into usable documents and descriptions of the unusable
// ones. Known documents that are unprocessed or have no index are indexed
// now.
func (s *Service) resolve(ctx context.Context, ids []string) (usable, unusable []string) {
	for _, id := range ids {
		doc, err := s.documents.GetDocument(ctx, id)
		switch {
		case errors.Is(err, store.ErrDocumentNotFound):
			// An index may outlive its registry record.
			if s.indexes.HasIndex(ctx, id) {
				usable = append(usable, id)
				continue
			}
			unusable = append(unusable, fmt.Sprintf("Document with ID %s not found", id))
			continue
		case err != nil:
			s.logger.Error("looking up document %s: %v", id, err)
			unusable = append(unusable, fmt.Sprintf("Document with ID %s could not be loaded", id))
			continue
		}

		if doc.Processed && s.indexes.HasIndex(ctx, id) {
			usable = append(usable, id)
			continue
		}

		s.logger.Info("document %s (%s) is not indexed, indexing it now", id, doc.Title)
		if err := s.index(ctx, doc); err != nil {
			unusable = append(unusable, fmt.Sprintf("Document '%s' could not be indexed", titleOf(doc)))
			continue
		}
		usable = append(usable, id)
	}
	return usable, unusable
}

// index builds the index of a registered document and records the outcome
// in the registry.
func (s *Service) index(ctx context.Context, doc *store.Document) error {
	_, err := s.indexes.Ensure(ctx, doc.ID, doc.Text, map[string]any{rag.MetadataSource: doc.Title})
	status := store.StatusProcessed
	if err != nil {
		status = store.StatusError
		s.logger.Error("indexing document %s failed: %v", doc.ID, err)
	}
	if serr := s.documents.SetStatus(ctx, doc.ID, status); serr != nil {
		s.logger.Warn("updating status of %s to %s: %v", doc.ID, status, serr)
	}
	doc.Status = status
	doc.Processed = status == store.StatusProcessed
	return err
}

func titleOf(doc *store.Document) string {
	if doc.Title == "" {
		return "Untitled"
	}
	return doc.Title
}

// sessionLocks serializes turns per session. Entries are dropped once no
// caller holds or waits for them.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func (l *sessionLocks) lock(id string) (unlock func()) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sessionLock)
	}
	sl, ok := l.locks[id]
	if !ok {
		sl = &sessionLock{}
		l.locks[id] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.mu.Lock()
	return func() {
		sl.mu.Unlock()
		l.mu.Lock()
		sl.refs--
		if sl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *sessionLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
