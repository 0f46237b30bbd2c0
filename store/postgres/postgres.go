package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smallnest/educhat/store"
)

// DBPool defines the interface for database connection pool
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// SessionStore implements store.SessionStore using PostgreSQL
type SessionStore struct {
	pool        DBPool
	tablePrefix string
}

var _ store.SessionStore = (*SessionStore)(nil)

// PostgresOptions configuration for Postgres connection
type PostgresOptions struct {
	ConnString  string
	TablePrefix string // Default "educhat_"
}

// NewSessionStore connects to PostgreSQL and creates the schema.
func NewSessionStore(ctx context.Context, opts PostgresOptions) (*SessionStore, error) {
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	s := NewSessionStoreWithPool(pool, opts.TablePrefix)
	if err := s.InitSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewSessionStoreWithPool creates a store over an existing pool.
// Useful for testing with mocks
func NewSessionStoreWithPool(pool DBPool, tablePrefix string) *SessionStore {
	if tablePrefix == "" {
		tablePrefix = "educhat_"
	}
	return &SessionStore{
		pool:        pool,
		tablePrefix: tablePrefix,
	}
}

func (s *SessionStore) sessions() string { return s.tablePrefix + "sessions" }
func (s *SessionStore) messages() string { return s.tablePrefix + "messages" }

// InitSchema creates the necessary tables if they don't exist
func (s *SessionStore) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			document_ids JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS %[2]s (
			session_id TEXT NOT NULL REFERENCES %[1]s (id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (session_id, seq)
		);
	`, s.sessions(), s.messages())

	_, err := s.pool.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (s *SessionStore) Close() {
	s.pool.Close()
}

// CreateSession inserts the session row.
func (s *SessionStore) CreateSession(ctx context.Context, session *store.Session) error {
	docs, err := json.Marshal(session.DocumentIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal document ids: %w", err)
	}

	query := fmt.Sprintf("INSERT INTO %s (id, title, document_ids, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)", s.sessions())
	_, err = s.pool.Exec(ctx, query,
		session.ID,
		session.Title,
		docs,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession loads the session row and its messages.
func (s *SessionStore) GetSession(ctx context.Context, id string) (*store.Session, error) {
	query := fmt.Sprintf("SELECT id, title, document_ids, created_at, updated_at FROM %s WHERE id = $1", s.sessions())

	var session store.Session
	var docs []byte
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&session.ID,
		&session.Title,
		&docs,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if err := json.Unmarshal(docs, &session.DocumentIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document ids: %w", err)
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf("SELECT id, role, content, timestamp FROM %s WHERE session_id = $1 ORDER BY seq ASC", s.messages()), id)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	session.Messages = []store.Message{}
	for rows.Next() {
		var m store.Message
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		session.Messages = append(session.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	return &session, nil
}

// AppendMessages inserts messages in one transaction.
func (s *SessionStore) AppendMessages(ctx context.Context, id string, messages ...store.Message) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := s.appendTx(ctx, tx, id, messages); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit messages: %w", err)
	}
	return nil
}

func (s *SessionStore) appendTx(ctx context.Context, tx pgx.Tx, id string, messages []store.Message) error {
	tag, err := tx.Exec(ctx, fmt.Sprintf("UPDATE %s SET updated_at = $1 WHERE id = $2", s.sessions()), time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", store.ErrSessionNotFound, id)
	}

	var next int
	err = tx.QueryRow(ctx, fmt.Sprintf("SELECT COALESCE(MAX(seq) + 1, 0) FROM %s WHERE session_id = $1", s.messages()), id).Scan(&next)
	if err != nil {
		return fmt.Errorf("failed to read message sequence: %w", err)
	}

	insert := fmt.Sprintf("INSERT INTO %s (session_id, seq, id, role, content, timestamp) VALUES ($1, $2, $3, $4, $5, $6)", s.messages())
	for i, m := range messages {
		if _, err := tx.Exec(ctx, insert, id, next+i, m.ID, m.Role, m.Content, m.Timestamp); err != nil {
			return fmt.Errorf("failed to append message: %w", err)
		}
	}
	return nil
}

// DeleteSession removes a session; messages go with it through the foreign key.
func (s *SessionStore) DeleteSession(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.sessions()), id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", store.ErrSessionNotFound, id)
	}
	return nil
}

// ListSessions returns all sessions, oldest first.
func (s *SessionStore) ListSessions(ctx context.Context) ([]*store.Session, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf("SELECT id FROM %s ORDER BY created_at ASC, id ASC", s.sessions()))
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan session rows: %w", err)
	}

	sessions := make([]*store.Session, 0, len(ids))
	for _, id := range ids {
		session, err := s.GetSession(ctx, id)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}
