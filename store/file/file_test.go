package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/educhat/store"
	"github.com/smallnest/educhat/store/storetest"
)

func TestSessionStore(t *testing.T) {
	s, err := NewSessionStore(filepath.Join(t.TempDir(), "chat_sessions"))
	require.NoError(t, err)

	storetest.TestSessionStore(t, s)
}

func TestDocumentRegistry(t *testing.T) {
	r, err := NewDocumentRegistry(filepath.Join(t.TempDir(), "documents.json"))
	require.NoError(t, err)

	storetest.TestDocumentRegistry(t, r)
}

func TestSessionStore_New(t *testing.T) {
	t.Parallel()

	t.Run("creates directory if missing", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), "nested", "chat_sessions")

		_, err := NewSessionStore(dir)
		require.NoError(t, err)

		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("fails when path is a file", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "occupied")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

		_, err := NewSessionStore(path)
		assert.Error(t, err)
	})
}

func TestSessionStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewSessionStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.CreateSession(ctx, storetest.NewSession("s-1", "doc")))
	require.NoError(t, s.AppendMessages(ctx, "s-1",
		storetest.NewMessage("m-1", store.RoleUser, "hello"),
		storetest.NewMessage("m-2", store.RoleAssistant, "hi")))

	_, err = os.Stat(filepath.Join(dir, "s-1.json"))
	require.NoError(t, err)

	reopened, err := NewSessionStore(dir)
	require.NoError(t, err)
	loaded, err := reopened.GetSession(ctx, "s-1")
	require.NoError(t, err)
	assert.Len(t, loaded.Messages, 2)
}

func TestSessionStore_ListSkipsCorruptFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewSessionStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.CreateSession(ctx, storetest.NewSession("good")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	list, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "good", list[0].ID)

	_, err = s.GetSession(ctx, "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrSessionNotFound)
}
