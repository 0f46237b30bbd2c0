// Package storetest holds conformance tests shared by the store backends.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/educhat/store"
)

// NewSession returns a session fixture. Times are truncated to the
// microsecond so they survive every backend's timestamp precision.
func NewSession(id string, docs ...string) *store.Session {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &store.Session{
		ID:          id,
		Title:       "Session " + id,
		CreatedAt:   now,
		UpdatedAt:   now,
		DocumentIDs: docs,
		Messages:    []store.Message{},
	}
}

// NewMessage returns a message fixture.
func NewMessage(id, role, content string) store.Message {
	return store.Message{
		ID:        id,
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC().Truncate(time.Microsecond),
	}
}

// TestSessionStore runs the session contract against s.
func TestSessionStore(t *testing.T, s store.SessionStore) {
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		_, err := s.GetSession(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrSessionNotFound)

		err = s.AppendMessages(ctx, "missing", NewMessage("m", store.RoleUser, "hi"))
		assert.ErrorIs(t, err, store.ErrSessionNotFound)

		err = s.DeleteSession(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrSessionNotFound)
	})

	t.Run("create and append", func(t *testing.T) {
		sess := NewSession("s-1", "physics101", "bio")
		require.NoError(t, s.CreateSession(ctx, sess))

		loaded, err := s.GetSession(ctx, "s-1")
		require.NoError(t, err)
		assert.Equal(t, "Session s-1", loaded.Title)
		assert.Equal(t, []string{"physics101", "bio"}, loaded.DocumentIDs)
		assert.Empty(t, loaded.Messages)
		assert.True(t, sess.CreatedAt.Equal(loaded.CreatedAt))

		q := NewMessage("m-1", store.RoleUser, "What is inertia?")
		a := NewMessage("m-2", store.RoleAssistant, "Resistance to changes in motion.")
		require.NoError(t, s.AppendMessages(ctx, "s-1", q, a))
		require.NoError(t, s.AppendMessages(ctx, "s-1", NewMessage("m-3", store.RoleUser, "And mass?")))

		loaded, err = s.GetSession(ctx, "s-1")
		require.NoError(t, err)
		require.Len(t, loaded.Messages, 3)
		assert.Equal(t, "m-1", loaded.Messages[0].ID)
		assert.Equal(t, store.RoleUser, loaded.Messages[0].Role)
		assert.Equal(t, "What is inertia?", loaded.Messages[0].Content)
		assert.Equal(t, store.RoleAssistant, loaded.Messages[1].Role)
		assert.Equal(t, "And mass?", loaded.Messages[2].Content)
		assert.True(t, q.Timestamp.Equal(loaded.Messages[0].Timestamp))
	})

	t.Run("returned sessions are copies", func(t *testing.T) {
		require.NoError(t, s.CreateSession(ctx, NewSession("s-copy", "doc")))

		loaded, err := s.GetSession(ctx, "s-copy")
		require.NoError(t, err)
		loaded.DocumentIDs[0] = "mutated"
		loaded.Messages = append(loaded.Messages, NewMessage("x", store.RoleUser, "x"))

		again, err := s.GetSession(ctx, "s-copy")
		require.NoError(t, err)
		assert.Equal(t, []string{"doc"}, again.DocumentIDs)
		assert.Empty(t, again.Messages)
	})

	t.Run("list and delete", func(t *testing.T) {
		list, err := s.ListSessions(ctx)
		require.NoError(t, err)
		ids := make([]string, 0, len(list))
		for _, sess := range list {
			ids = append(ids, sess.ID)
		}
		assert.Contains(t, ids, "s-1")
		assert.Contains(t, ids, "s-copy")

		require.NoError(t, s.DeleteSession(ctx, "s-copy"))
		_, err = s.GetSession(ctx, "s-copy")
		assert.ErrorIs(t, err, store.ErrSessionNotFound)
	})
}

// TestDocumentRegistry runs the registry contract against r.
func TestDocumentRegistry(t *testing.T, r store.DocumentRegistry) {
	ctx := context.Background()
	created := time.Now().UTC().Truncate(time.Microsecond)

	_, err := r.GetDocument(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrDocumentNotFound)
	assert.ErrorIs(t, r.SetStatus(ctx, "missing", store.StatusProcessed), store.ErrDocumentNotFound)

	doc := &store.Document{
		ID:        "physics101",
		Title:     "Physics 101",
		FileType:  "pdf",
		FilePath:  "uploads/physics101.pdf",
		Status:    store.StatusUploaded,
		CreatedAt: created,
		Text:      "Newton's first law.",
	}
	require.NoError(t, r.PutDocument(ctx, doc))

	loaded, err := r.GetDocument(ctx, "physics101")
	require.NoError(t, err)
	assert.Equal(t, "Physics 101", loaded.Title)
	assert.Equal(t, "pdf", loaded.FileType)
	assert.Equal(t, "uploads/physics101.pdf", loaded.FilePath)
	assert.Equal(t, store.StatusUploaded, loaded.Status)
	assert.False(t, loaded.Processed)
	assert.Equal(t, "Newton's first law.", loaded.Text)
	assert.True(t, created.Equal(loaded.CreatedAt))

	require.NoError(t, r.SetStatus(ctx, "physics101", store.StatusProcessed))
	loaded, err = r.GetDocument(ctx, "physics101")
	require.NoError(t, err)
	assert.Equal(t, store.StatusProcessed, loaded.Status)
	assert.True(t, loaded.Processed)

	require.NoError(t, r.SetStatus(ctx, "physics101", store.StatusError))
	loaded, err = r.GetDocument(ctx, "physics101")
	require.NoError(t, err)
	assert.False(t, loaded.Processed)

	// Put replaces.
	doc.Title = "Physics 101 (2nd ed.)"
	require.NoError(t, r.PutDocument(ctx, doc))
	require.NoError(t, r.PutDocument(ctx, &store.Document{
		ID:        "bio",
		Title:     "Biology",
		Status:    store.StatusUploaded,
		CreatedAt: created.Add(time.Second),
	}))

	list, err := r.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "physics101", list[0].ID)
	assert.Equal(t, "Physics 101 (2nd ed.)", list[0].Title)
	assert.Equal(t, "bio", list[1].ID)
}
