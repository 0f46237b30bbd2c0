package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/smallnest/educhat/store"
)

// Store implements store.SessionStore and store.DocumentRegistry on SQLite.
type Store struct {
	db          *sql.DB
	tablePrefix string
}

var (
	_ store.SessionStore     = (*Store)(nil)
	_ store.DocumentRegistry = (*Store)(nil)
)

// Options configuration for SQLite connection
type Options struct {
	Path        string
	TablePrefix string // Default "educhat_"
}

// New opens the database and creates the schema.
func New(opts Options) (*Store, error) {
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}
	// A single connection keeps writes serialized and makes ":memory:" work.
	db.SetMaxOpenConns(1)

	prefix := opts.TablePrefix
	if prefix == "" {
		prefix = "educhat_"
	}

	s := &Store{db: db, tablePrefix: prefix}
	if err := s.InitSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) table(name string) string { return s.tablePrefix + name }

// InitSchema creates the necessary tables if they don't exist
func (s *Store) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			document_ids TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);
		CREATE TABLE IF NOT EXISTS %[2]s (
			id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			PRIMARY KEY (session_id, seq)
		);
		CREATE TABLE IF NOT EXISTS %[3]s (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			file_type TEXT NOT NULL,
			file_path TEXT NOT NULL,
			status TEXT NOT NULL,
			processed INTEGER NOT NULL,
			created_at DATETIME NOT NULL,
			text TEXT NOT NULL
		);
	`, s.table("sessions"), s.table("messages"), s.table("documents"))

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession inserts a session row. Messages on the argument are ignored.
func (s *Store) CreateSession(ctx context.Context, session *store.Session) error {
	docs, err := json.Marshal(session.DocumentIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal document ids: %w", err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, title, document_ids, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`, s.table("sessions"))
	if _, err := s.db.ExecContext(ctx, query, session.ID, session.Title, string(docs), session.CreatedAt, session.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession loads a session and its messages in order.
func (s *Store) GetSession(ctx context.Context, id string) (*store.Session, error) {
	query := fmt.Sprintf(`SELECT id, title, document_ids, created_at, updated_at FROM %s WHERE id = ?`, s.table("sessions"))

	var session store.Session
	var docs string
	err := s.db.QueryRowContext(ctx, query, id).Scan(&session.ID, &session.Title, &docs, &session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if err := json.Unmarshal([]byte(docs), &session.DocumentIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document ids: %w", err)
	}

	session.Messages, err = s.messages(ctx, id)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *Store) messages(ctx context.Context, sessionID string) ([]store.Message, error) {
	query := fmt.Sprintf(`SELECT id, role, content, timestamp FROM %s WHERE session_id = ? ORDER BY seq ASC`, s.table("messages"))
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	messages := []store.Message{}
	for rows.Next() {
		var m store.Message
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	return messages, nil
}

// AppendMessages inserts messages in one transaction.
func (s *Store) AppendMessages(ctx context.Context, id string, messages ...store.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET updated_at = ? WHERE id = ?`, s.table("sessions")), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", store.ErrSessionNotFound, id)
	}

	var next int
	err = tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT COALESCE(MAX(seq) + 1, 0) FROM %s WHERE session_id = ?`, s.table("messages")), id).Scan(&next)
	if err != nil {
		return fmt.Errorf("failed to read message sequence: %w", err)
	}

	insert := fmt.Sprintf(`INSERT INTO %s (id, session_id, seq, role, content, timestamp) VALUES (?, ?, ?, ?, ?, ?)`, s.table("messages"))
	for i, m := range messages {
		if _, err := tx.ExecContext(ctx, insert, m.ID, id, next+i, m.Role, m.Content, m.Timestamp); err != nil {
			return fmt.Errorf("failed to append message: %w", err)
		}
	}
	return tx.Commit()
}

// DeleteSession removes a session and its messages.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, s.table("sessions")), id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", store.ErrSessionNotFound, id)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE session_id = ?`, s.table("messages")), id); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	return tx.Commit()
}

// ListSessions returns all sessions with their messages, oldest first.
func (s *Store) ListSessions(ctx context.Context) ([]*store.Session, error) {
	query := fmt.Sprintf(`SELECT id FROM %s ORDER BY created_at ASC, id ASC`, s.table("sessions"))
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
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

// PutDocument inserts or replaces a document record.
func (s *Store) PutDocument(ctx context.Context, doc *store.Document) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, title, file_type, file_path, status, processed, created_at, text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			file_type = excluded.file_type,
			file_path = excluded.file_path,
			status = excluded.status,
			processed = excluded.processed,
			created_at = excluded.created_at,
			text = excluded.text
	`, s.table("documents"))

	_, err := s.db.ExecContext(ctx, query,
		doc.ID,
		doc.Title,
		doc.FileType,
		doc.FilePath,
		string(doc.Status),
		doc.Processed,
		doc.CreatedAt,
		doc.Text,
	)
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

const documentColumns = `id, title, file_type, file_path, status, processed, created_at, text`

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*store.Document, error) {
	var doc store.Document
	var status string
	if err := row.Scan(&doc.ID, &doc.Title, &doc.FileType, &doc.FilePath, &status, &doc.Processed, &doc.CreatedAt, &doc.Text); err != nil {
		return nil, err
	}
	doc.Status = store.DocumentStatus(status)
	return &doc, nil
}

// GetDocument loads one record.
func (s *Store) GetDocument(ctx context.Context, id string) (*store.Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, documentColumns, s.table("documents"))
	doc, err := scanDocument(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrDocumentNotFound, id)
		}
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	return doc, nil
}

// SetStatus updates the processing status of a record.
func (s *Store) SetStatus(ctx context.Context, id string, status store.DocumentStatus) error {
	query := fmt.Sprintf(`UPDATE %s SET status = ?, processed = ? WHERE id = ?`, s.table("documents"))
	res, err := s.db.ExecContext(ctx, query, string(status), status == store.StatusProcessed, id)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", store.ErrDocumentNotFound, id)
	}
	return nil
}

// ListDocuments returns all records, oldest first.
func (s *Store) ListDocuments(ctx context.Context) ([]*store.Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY created_at ASC, id ASC`, documentColumns, s.table("documents"))
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*store.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating document rows: %w", err)
	}
	return docs, nil
}
