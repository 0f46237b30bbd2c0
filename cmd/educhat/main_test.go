package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAnswer     = "Inertia is resistance to changes in motion."
	testWhiteboard = "Photosynthesis: light + water + CO2 -> glucose + oxygen"
	testQuiz       = `{"topic": "Motion", "questions": [{"question": "What resists changes in motion?", "type": "multiple_choice", "options": ["Inertia", "Friction", "Heat", "Light"], "answer": "Inertia", "explanation": "Inertia is the tendency to keep moving."}]}`
)

// setupEnv writes a config that embeds offline and sends chat completions
// to a local fake, and returns its path.
func setupEnv(t *testing.T) (string, *atomic.Int32) {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	for _, k := range []string{"OPENAI_API_KEY", "OPENAI_BASE_URL", "EDUCHAT_DATA_DIR", "EDUCHAT_SESSION_BACKEND", "EDUCHAT_TOP_K"} {
		t.Setenv(k, "")
	}

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		content := testAnswer
		switch {
		case bytes.Contains(body, []byte("quiz generator")):
			content = testQuiz
		case bytes.Contains(body, []byte(`"image_url"`)):
			content = testWhiteboard
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-3.5-turbo",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
		})
	}))
	t.Cleanup(srv.Close)

	path := filepath.Join(dir, "educhat.yaml")
	cfg := fmt.Sprintf(`data_dir: %s
log:
  level: none
embedder:
  provider: hashing
  dimension: 64
llm:
  api_key: test-key
  base_url: %s/v1
  max_retries: 0
`, filepath.Join(dir, "data"), srv.URL)
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path, &calls
}

func run(t *testing.T, configPath, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

var ingestedID = regexp.MustCompile(`→ (\S+)`)

func TestVersion(t *testing.T) {
	original := version
	version = "1.2.3"
	defer func() { version = original }()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "educhat version 1.2.3\n", out.String())
}

func TestEndToEnd(t *testing.T) {
	cfg, calls := setupEnv(t)
	notes := filepath.Join(t.TempDir(), "motion.md")
	require.NoError(t, os.WriteFile(notes, []byte("# Motion\n\nInertia is the tendency of an object to resist changes in its motion.\n"), 0o644))

	out, err := run(t, cfg, "", "ingest", notes)
	require.NoError(t, err)
	m := ingestedID.FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	docID := m[1]

	out, err = run(t, cfg, "", "docs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, docID)
	assert.Contains(t, out, "Motion")
	assert.Contains(t, out, "processed")

	out, err = run(t, cfg, "", "docs", "show", docID)
	require.NoError(t, err)
	assert.Contains(t, out, "chunks")

	out, err = run(t, cfg, "", "session", "new", "--title", "Exam prep", "--docs", docID)
	require.NoError(t, err)
	sessionID := strings.TrimSpace(out)
	require.NotEmpty(t, sessionID)

	out, err = run(t, cfg, "", "ask", sessionID, "What", "is", "inertia?", "--json")
	require.NoError(t, err)
	var reply struct {
		Answer  string `json:"answer"`
		Sources []struct {
			DocumentID string `json:"document_id"`
			Source     string `json:"source"`
		} `json:"sources"`
		Fallback bool   `json:"fallback"`
		State    string `json:"state"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &reply))
	assert.Equal(t, testAnswer, reply.Answer)
	assert.False(t, reply.Fallback)
	assert.Equal(t, "completed", reply.State)
	require.NotEmpty(t, reply.Sources)
	assert.Equal(t, docID, reply.Sources[0].DocumentID)
	assert.Equal(t, "Motion", reply.Sources[0].Source)
	assert.Equal(t, int32(1), calls.Load())

	out, err = run(t, cfg, "What is inertia?\n\nexit\n", "chat", sessionID, "--mode", "eli5")
	require.NoError(t, err)
	assert.Contains(t, out, "Exam prep")
	assert.Contains(t, out, "AI: "+testAnswer)
	assert.Contains(t, out, "Sources")

	out, err = run(t, cfg, "", "session", "show", sessionID)
	require.NoError(t, err)
	assert.Equal(t, 4, strings.Count(out, "You:")+strings.Count(out, "AI:"))

	out, err = run(t, cfg, "", "session", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "4 messages")

	out, err = run(t, cfg, "", "docs", "reprocess", docID)
	require.NoError(t, err)
	assert.Contains(t, out, "processed")

	_, err = run(t, cfg, "", "session", "delete", sessionID)
	require.NoError(t, err)
	_, err = run(t, cfg, "", "session", "show", sessionID)
	assert.Error(t, err)
}

func TestAskFallback(t *testing.T) {
	cfg, calls := setupEnv(t)

	out, err := run(t, cfg, "", "session", "new")
	require.NoError(t, err)
	sessionID := strings.TrimSpace(out)

	out, err = run(t, cfg, "", "ask", sessionID, "hi", "--docs", "bad_id")
	require.NoError(t, err)
	assert.Contains(t, out, "Document with ID bad_id not found")
	assert.Zero(t, calls.Load())

	_, err = run(t, cfg, "", "ask", sessionID, "hi")
	assert.Error(t, err, "a session without documents has nothing to ask about")

	_, err = run(t, cfg, "", "ask", sessionID, "hi", "--docs", "bad_id", "--mode", "socratic")
	assert.Error(t, err)
}

func TestIngestErrors(t *testing.T) {
	cfg, _ := setupEnv(t)
	archive := filepath.Join(t.TempDir(), "notes.zip")
	require.NoError(t, os.WriteFile(archive, []byte("pk"), 0o644))

	out, err := run(t, cfg, "", "ingest", archive)
	require.Error(t, err)
	assert.Contains(t, out, "unsupported document format")

	slides := filepath.Join(t.TempDir(), "deck.pptx")
	require.NoError(t, os.WriteFile(slides, []byte("pk"), 0o644))

	out, err = run(t, cfg, "", "ingest", slides)
	require.Error(t, err)
	assert.Contains(t, out, "text extraction failed")

	_, err = run(t, cfg, "", "ingest", "--title", "One", "a.txt", "b.txt")
	assert.Error(t, err)
}

func TestQuiz(t *testing.T) {
	cfg, calls := setupEnv(t)
	notes := filepath.Join(t.TempDir(), "motion.md")
	require.NoError(t, os.WriteFile(notes, []byte("# Motion\n\nInertia resists changes in motion.\n"), 0o644))

	out, err := run(t, cfg, "", "ingest", notes)
	require.NoError(t, err)
	m := ingestedID.FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	docID := m[1]

	out, err = run(t, cfg, "", "quiz", "--docs", docID, "-n", "1", "--json")
	require.NoError(t, err)
	var q struct {
		Topic      string   `json:"topic"`
		Difficulty string   `json:"difficulty"`
		Documents  []string `json:"documents"`
		Questions  []struct {
			Question string   `json:"question"`
			Type     string   `json:"type"`
			Options  []string `json:"options"`
			Answer   string   `json:"answer"`
		} `json:"questions"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &q))
	assert.Equal(t, "Motion", q.Topic)
	assert.Equal(t, "medium", q.Difficulty)
	assert.Equal(t, []string{"Motion"}, q.Documents)
	require.Len(t, q.Questions, 1)
	assert.Equal(t, "Inertia", q.Questions[0].Answer)
	assert.Len(t, q.Questions[0].Options, 4)
	assert.Equal(t, int32(1), calls.Load())

	out, err = run(t, cfg, "", "quiz", "--docs", docID, "--topic", "inertia", "--difficulty", "easy")
	require.NoError(t, err)
	assert.Contains(t, out, "Quiz: Motion")
	assert.Contains(t, out, "1. What resists changes in motion?")
	assert.Contains(t, out, "A) Inertia")
	assert.Contains(t, out, "Answer: Inertia")

	_, err = run(t, cfg, "", "quiz", "--docs", docID, "--difficulty", "extreme")
	assert.Error(t, err)
	_, err = run(t, cfg, "", "quiz")
	assert.Error(t, err)
	assert.Equal(t, int32(2), calls.Load(), "invalid requests never reach the model")
}

func TestIngestImage(t *testing.T) {
	cfg, calls := setupEnv(t)

	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	board := filepath.Join(t.TempDir(), "whiteboard.png")
	require.NoError(t, os.WriteFile(board, buf.Bytes(), 0o644))

	out, err := run(t, cfg, "", "ingest", board)
	require.NoError(t, err)
	m := ingestedID.FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	assert.Equal(t, int32(1), calls.Load())

	out, err = run(t, cfg, "", "docs", "show", m[1])
	require.NoError(t, err)
	assert.Contains(t, out, "png")
	assert.Contains(t, out, "processed")

	out, err = run(t, cfg, "", "session", "new", "--docs", m[1])
	require.NoError(t, err)
	out, err = run(t, cfg, "", "ask", strings.TrimSpace(out), "What", "makes", "glucose?")
	require.NoError(t, err)
	assert.Contains(t, out, "Photosynthesis")
}

func TestInvalidConfig(t *testing.T) {
	cfg, _ := setupEnv(t)
	require.NoError(t, os.WriteFile(cfg, []byte("chunker:\n  chunk_size: 100\n  chunk_overlap: 100\n"), 0o644))

	_, err := run(t, cfg, "", "docs", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk_overlap")
}
