package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/educhat/rag"
)

func sampleIndex(id string) *rag.DocumentIndex {
	return &rag.DocumentIndex{
		DocumentID:     id,
		ContentHash:    ContentHash("hello world"),
		EmbeddingModel: "hashing",
		Dimension:      2,
		Chunks: []rag.Chunk{
			{DocumentID: id, Index: 0, Text: "hello", Span: rag.Span{Start: 0, End: 5}},
			{DocumentID: id, Index: 1, Text: " world", Span: rag.Span{Start: 5, End: 11}},
		},
		Vectors:  [][]float32{{1, 0}, {0, 1}},
		Metadata: map[string]any{rag.MetadataSource: "Greeting"},
		BuiltAt:  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func testPersister(t *testing.T, p Persister) {
	ctx := context.Background()

	_, err := p.Load(ctx, "greeting")
	assert.ErrorIs(t, err, rag.ErrIndexNotFound)

	idx := sampleIndex("greeting")
	require.NoError(t, p.Save(ctx, idx))
	assert.NotEmpty(t, idx.PersistedPath)

	loaded, err := p.Load(ctx, "greeting")
	require.NoError(t, err)
	assert.Equal(t, idx.DocumentID, loaded.DocumentID)
	assert.Equal(t, idx.ContentHash, loaded.ContentHash)
	assert.Equal(t, idx.Chunks, loaded.Chunks)
	assert.Equal(t, idx.Vectors, loaded.Vectors)
	assert.Equal(t, "Greeting", loaded.SourceLabel())
	assert.True(t, idx.BuiltAt.Equal(loaded.BuiltAt))
	assert.Equal(t, idx.PersistedPath, loaded.PersistedPath)

	// Save replaces.
	replacement := sampleIndex("greeting")
	replacement.ContentHash = "other"
	require.NoError(t, p.Save(ctx, replacement))
	loaded, err = p.Load(ctx, "greeting")
	require.NoError(t, err)
	assert.Equal(t, "other", loaded.ContentHash)

	require.NoError(t, p.Delete(ctx, "greeting"))
	_, err = p.Load(ctx, "greeting")
	assert.ErrorIs(t, err, rag.ErrIndexNotFound)

	// Deleting twice is fine.
	assert.NoError(t, p.Delete(ctx, "greeting"))
}

func TestMemoryPersister(t *testing.T) {
	testPersister(t, NewMemoryPersister())
}

func TestFilePersister(t *testing.T) {
	dir := t.TempDir()
	p, err := NewFilePersister(dir)
	require.NoError(t, err)

	testPersister(t, p)
}

func TestFilePersisterEscapesIDs(t *testing.T) {
	dir := t.TempDir()
	p, err := NewFilePersister(dir)
	require.NoError(t, err)

	path := p.Path("../../etc/passwd")
	assert.Equal(t, dir, filepath.Dir(filepath.Dir(path)))

	require.NoError(t, p.Save(context.Background(), sampleIndex("a/b")))
	loaded, err := p.Load(context.Background(), "a/b")
	require.NoError(t, err)
	assert.Equal(t, "a/b", loaded.DocumentID)
}

func TestFilePersisterRejectsDotSegments(t *testing.T) {
	ctx := context.Background()
	data := t.TempDir()
	sessions := filepath.Join(data, "chat_sessions")
	require.NoError(t, os.MkdirAll(sessions, 0o755))

	p, err := NewFilePersister(filepath.Join(data, "embeddings"))
	require.NoError(t, err)

	for _, id := range []string{"", ".", ".."} {
		assert.Empty(t, p.Path(id), "id %q", id)

		err := p.Save(ctx, sampleIndex(id))
		assert.ErrorIs(t, err, ErrInvalidDocumentID, "save %q", id)

		_, err = p.Load(ctx, id)
		assert.ErrorIs(t, err, ErrInvalidDocumentID, "load %q", id)

		err = p.Delete(ctx, id)
		assert.ErrorIs(t, err, ErrInvalidDocumentID, "delete %q", id)
	}

	_, err = os.Stat(sessions)
	assert.NoError(t, err, "sibling directories must survive")
	_, err = os.Stat(filepath.Join(data, indexFileName))
	assert.ErrorIs(t, err, os.ErrNotExist)

	// Dots inside a longer ID are fine.
	require.NoError(t, p.Save(ctx, sampleIndex("..notes")))
	assert.Equal(t, filepath.Join(data, "embeddings", "..notes", indexFileName), p.Path("..notes"))
}

func TestIndexStoreInvalidateRejectsDotSegments(t *testing.T) {
	data := t.TempDir()
	p, err := NewFilePersister(filepath.Join(data, "embeddings"))
	require.NoError(t, err)
	s := NewIndexStore(NewHashingEmbedder(8), &Options{Persister: p})

	err = s.Invalidate(context.Background(), "..")
	assert.ErrorIs(t, err, ErrInvalidDocumentID)

	_, err = os.Stat(data)
	assert.NoError(t, err)
}

func TestRedisPersister(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	p := NewRedisPersister(RedisOptions{Addr: mr.Addr(), Prefix: "test:"})
	defer p.Close()

	testPersister(t, p)
}

func TestRedisPersisterTTL(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	p := NewRedisPersister(RedisOptions{Addr: mr.Addr(), TTL: time.Minute})
	defer p.Close()

	ctx := context.Background()
	require.NoError(t, p.Save(ctx, sampleIndex("doc")))
	assert.True(t, mr.Exists("educhat:index:doc"))

	mr.FastForward(2 * time.Minute)
	_, err = p.Load(ctx, "doc")
	assert.ErrorIs(t, err, rag.ErrIndexNotFound)
}

func TestRedisPersisterRejectsInvalidIndex(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	require.NoError(t, mr.Set("educhat:index:doc", `{"document_id":"doc","dimension":2,"chunks":[{"index":0}],"vectors":[]}`))

	p := NewRedisPersister(RedisOptions{Addr: mr.Addr()})
	defer p.Close()

	_, err = p.Load(context.Background(), "doc")
	require.Error(t, err)
	assert.NotErrorIs(t, err, rag.ErrIndexNotFound)
}

func TestHashingEmbedder(t *testing.T) {
	ctx := context.Background()
	e := NewHashingEmbedder(128)

	a, err := e.EmbedDocument(ctx, "Newton's laws of motion")
	require.NoError(t, err)
	b, err := e.EmbedDocument(ctx, "newton LAWS motion")
	require.NoError(t, err)
	c, err := e.EmbedDocument(ctx, "photosynthesis in plants")
	require.NoError(t, err)

	assert.Len(t, a, 128)
	assert.Greater(t, rag.MetricCosine.Similarity(a, b), rag.MetricCosine.Similarity(a, c))

	again, err := e.EmbedDocument(ctx, "Newton's laws of motion")
	require.NoError(t, err)
	assert.Equal(t, a, again)

	vecs, err := e.EmbedDocuments(ctx, []string{"x", "y"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
	assert.Equal(t, int64(1), e.DocumentCalls())
	assert.Equal(t, int64(4), e.QueryCalls())
	assert.Equal(t, "hashing", e.ModelID())
}

func TestContentHash(t *testing.T) {
	assert.Equal(t, ContentHash("abc"), ContentHash("abc"))
	assert.NotEqual(t, ContentHash("abc"), ContentHash("abd"))
	assert.Len(t, ContentHash(""), 16)
}
