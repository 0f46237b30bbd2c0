package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/educhat/store"
)

func TestSessionStore_InitSchema(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewSessionStoreWithPool(mock, "")

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS educhat_sessions")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	assert.NoError(t, s.InitSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStore_CreateSession(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewSessionStoreWithPool(mock, "educhat_")

	now := time.Now()
	sess := &store.Session{
		ID:          "s-1",
		Title:       "Physics",
		CreatedAt:   now,
		UpdatedAt:   now,
		DocumentIDs: []string{"physics101", "bio"},
	}
	docs, _ := json.Marshal(sess.DocumentIDs)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO educhat_sessions (id, title, document_ids, created_at, updated_at)")).
		WithArgs("s-1", "Physics", docs, now, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, s.CreateSession(context.Background(), sess))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStore_GetSession(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewSessionStoreWithPool(mock, "educhat_")
	now := time.Now()
	docs, _ := json.Marshal([]string{"physics101"})

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title, document_ids, created_at, updated_at FROM educhat_sessions WHERE id = $1")).
		WithArgs("s-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "title", "document_ids", "created_at", "updated_at"}).
			AddRow("s-1", "Physics", docs, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, role, content, timestamp FROM educhat_messages WHERE session_id = $1 ORDER BY seq ASC")).
		WithArgs("s-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "role", "content", "timestamp"}).
			AddRow("m-1", store.RoleUser, "What is inertia?", now).
			AddRow("m-2", store.RoleAssistant, "Resistance to change in motion.", now))

	loaded, err := s.GetSession(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, "Physics", loaded.Title)
	assert.Equal(t, []string{"physics101"}, loaded.DocumentIDs)
	require.Len(t, loaded.Messages, 2)
	assert.Equal(t, store.RoleAssistant, loaded.Messages[1].Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStore_GetSession_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewSessionStoreWithPool(mock, "educhat_")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title, document_ids, created_at, updated_at FROM educhat_sessions WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"id", "title", "document_ids", "created_at", "updated_at"}))

	_, err = s.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStore_AppendMessages(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewSessionStoreWithPool(mock, "educhat_")
	now := time.Now()
	q := store.Message{ID: "m-3", Role: store.RoleUser, Content: "And mass?", Timestamp: now}
	a := store.Message{ID: "m-4", Role: store.RoleAssistant, Content: "A measure of inertia.", Timestamp: now}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE educhat_sessions SET updated_at = $1 WHERE id = $2")).
		WithArgs(pgxmock.AnyArg(), "s-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(seq) + 1, 0) FROM educhat_messages WHERE session_id = $1")).
		WithArgs("s-1").
		WillReturnRows(pgxmock.NewRows([]string{"next"}).AddRow(2))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO educhat_messages")).
		WithArgs("s-1", 2, "m-3", store.RoleUser, "And mass?", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO educhat_messages")).
		WithArgs("s-1", 3, "m-4", store.RoleAssistant, "A measure of inertia.", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	assert.NoError(t, s.AppendMessages(context.Background(), "s-1", q, a))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStore_AppendMessages_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewSessionStoreWithPool(mock, "educhat_")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE educhat_sessions SET updated_at = $1 WHERE id = $2")).
		WithArgs(pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err = s.AppendMessages(context.Background(), "missing", store.Message{ID: "m"})
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStore_AppendMessages_InsertFails(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewSessionStoreWithPool(mock, "educhat_")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE educhat_sessions")).
		WithArgs(pgxmock.AnyArg(), "s-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(seq) + 1, 0)")).
		WithArgs("s-1").
		WillReturnRows(pgxmock.NewRows([]string{"next"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO educhat_messages")).
		WithArgs("s-1", 0, "m", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = s.AppendMessages(context.Background(), "s-1", store.Message{ID: "m", Timestamp: time.Now()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStore_DeleteSession(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewSessionStoreWithPool(mock, "educhat_")

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM educhat_sessions WHERE id = $1")).
		WithArgs("s-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM educhat_sessions WHERE id = $1")).
		WithArgs("s-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	assert.NoError(t, s.DeleteSession(context.Background(), "s-1"))
	assert.ErrorIs(t, s.DeleteSession(context.Background(), "s-1"), store.ErrSessionNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStore_ListSessions(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewSessionStoreWithPool(mock, "educhat_")
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM educhat_sessions ORDER BY created_at ASC, id ASC")).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("s-1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title, document_ids, created_at, updated_at FROM educhat_sessions WHERE id = $1")).
		WithArgs("s-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "title", "document_ids", "created_at", "updated_at"}).
			AddRow("s-1", "Physics", []byte(`["physics101"]`), now, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, role, content, timestamp FROM educhat_messages")).
		WithArgs("s-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "role", "content", "timestamp"}))

	list, err := s.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "s-1", list[0].ID)
	assert.Empty(t, list[0].Messages)
	assert.NoError(t, mock.ExpectationsWereMet())
}
