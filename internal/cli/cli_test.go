package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/nevindra/lumen"
	"github.com/nevindra/lumen/rag"
	"github.com/nevindra/lumen/store/sqlite"
)

// fakeAPI is an OpenAI-compatible server with scripted chat replies and
// keyword embeddings.
type fakeAPI struct {
	mu      sync.Mutex
	replies []string
	chats   int
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/chat/completions":
		f.mu.Lock()
		reply := "Final Answer: out of script"
		if f.chats < len(f.replies) {
			reply = f.replies[f.chats]
		}
		f.chats++
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"index": 0, "message": map[string]string{"role": "assistant", "content": reply}}},
			"usage":   map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	case "/embeddings":
		var req struct {
			Input []string `json:"input"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		data := make([]map[string]any, len(req.Input))
		for i, text := range req.Input {
			data[i] = map[string]any{"index": i, "embedding": keywordVector(text)}
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeAPI) chatCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chats
}

func keywordVector(text string) []float32 {
	text = strings.ToLower(text)
	v := []float32{0.01, 0.01, 0.01}
	for i, kw := range []string{"paris", "berlin", "rome"} {
		if strings.Contains(text, kw) {
			v[i] = 1
		}
	}
	return v
}

func newFakeAPI(t *testing.T, replies ...string) (*fakeAPI, string) {
	t.Helper()
	api := &fakeAPI{replies: replies}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return api, srv.URL
}

// writeTestConfig points both providers at baseURL and clears LUMEN_* env
// overrides so the host environment cannot leak in.
func writeTestConfig(t *testing.T, baseURL, extra string) string {
	t.Helper()
	for _, k := range []string{"LUMEN_LLM_PROVIDER", "LUMEN_LLM_MODEL", "LUMEN_LLM_BASE_URL", "LUMEN_LLM_API_KEY",
		"LUMEN_EMBEDDING_PROVIDER", "LUMEN_EMBEDDING_MODEL", "LUMEN_EMBEDDING_BASE_URL", "LUMEN_EMBEDDING_API_KEY", "LUMEN_TRANSCRIPT_PATH", "LUMEN_POSTGRES_DSN",
		"LUMEN_LLM_TEMPERATURE", "LUMEN_AGENT_MAX_ITERATIONS", "LUMEN_OBSERVER_ENABLED"} {
		t.Setenv(k, "")
	}
	body := fmt.Sprintf(`
[llm]
base_url = %q
api_key = "test-key"
max_retries = 0

[embedding]
base_url = %q
dimensions = 3
max_retries = 0
cache_size = 0
%s`, baseURL, baseURL, extra)
	path := filepath.Join(t.TempDir(), "lumen.toml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAgentCommandToolThenAnswer(t *testing.T) {
	api, url := newFakeAPI(t,
		"Thought: I need to calculate.\nAction: calculator\nAction Input: (12 + 5) * 3",
		"Thought: I now know the final answer\nFinal Answer: 51",
	)
	cfg := writeTestConfig(t, url, "")

	out, err := execute(t, "", "agent", "--config", cfg, "what is (12 + 5) * 3?")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Action: calculator[(12 + 5) * 3]", "Observation: result: 51", "Final Answer: 51"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if n := api.chatCount(); n != 2 {
		t.Errorf("chat calls = %d, want 2", n)
	}
}

func TestAgentCommandFailureIsRendered(t *testing.T) {
	_, url := newFakeAPI(t, "I refuse to follow the format.", "Still no format.")
	cfg := writeTestConfig(t, url, "")

	out, err := execute(t, "", "agent", "--config", cfg, "hello")
	if err != nil {
		t.Fatalf("failed runs should not fail the command: %v", err)
	}
	if !strings.Contains(out, "Failed (parse_error)") {
		t.Errorf("expected parse failure in output:\n%s", out)
	}
}

func TestAgentCommandTranscriptPersists(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "transcript.db")
	_, url := newFakeAPI(t, "Final Answer: first", "Final Answer: second")
	cfg := writeTestConfig(t, url, fmt.Sprintf("\n[memory]\ntranscript_path = %q\n", dbPath))

	// Two questions through the interactive loop, then exit.
	out, err := execute(t, "one\n\ntwo\nexit\nthree\n", "agent", "--config", cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Final Answer: first") || !strings.Contains(out, "Final Answer: second") {
		t.Errorf("unexpected output:\n%s", out)
	}

	store := sqlite.New(dbPath)
	defer store.Close()
	msgs, err := store.Messages(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	var contents []string
	for _, m := range msgs {
		contents = append(contents, m.Content)
	}
	want := []string{"one", "first", "two", "second"}
	if strings.Join(contents, ",") != strings.Join(want, ",") {
		t.Errorf("transcript = %v, want %v", contents, want)
	}
}

func TestAgentCommandInvalidConfig(t *testing.T) {
	_, url := newFakeAPI(t)
	cfg := writeTestConfig(t, url, "\n[agent]\nmax_iterations = -1\n")
	if _, err := execute(t, "", "agent", "--config", cfg, "hi"); err == nil {
		t.Fatal("expected config error")
	}
}

func TestRAGCommand(t *testing.T) {
	api, url := newFakeAPI(t, "Paris is the capital of France.")
	cfg := writeTestConfig(t, url, "")

	doc := filepath.Join(t.TempDir(), "cities.txt")
	content := "Paris is the capital of France.\n\nBerlin is the capital of Germany.\n\nRome is the capital of Italy."
	if err := os.WriteFile(doc, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "", "rag", "--config", cfg, "--file", doc, "--chunk-size", "40", "--overlap", "0", "-k", "1",
		"What is the capital of France? Paris?")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"indexed", "3 chunks", "Retrieved 1 chunks", "cities.txt", "Paris is the capital of France.", "Answer:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if n := api.chatCount(); n != 1 {
		t.Errorf("chat calls = %d, want 1", n)
	}
}

func TestRAGCommandRequiresFile(t *testing.T) {
	_, url := newFakeAPI(t)
	cfg := writeTestConfig(t, url, "")
	if _, err := execute(t, "", "rag", "--config", cfg, "question"); err == nil {
		t.Fatal("expected missing --file error")
	}
}

func TestRAGCommandUnsupportedFile(t *testing.T) {
	_, url := newFakeAPI(t)
	cfg := writeTestConfig(t, url, "")
	_, err := execute(t, "", "rag", "--config", cfg, "--file", "slides.pptx", "question")
	if err == nil || !strings.Contains(err.Error(), "slides.pptx") {
		t.Fatalf("expected unsupported format error, got %v", err)
	}
}

func TestRenderRunFailureShowsPartialSteps(t *testing.T) {
	var buf bytes.Buffer
	err := &lumen.RunError{
		Kind:      lumen.FailureIterationLimit,
		Iteration: 5,
		Steps:     []lumen.AgentStep{{Thought: "try", Action: "weather_query", ActionInput: "北京", Observation: "sunny"}},
	}
	renderRun(&buf, lumen.RunResult{State: lumen.StateFailed}, err)
	out := buf.String()
	if !strings.Contains(out, "Action: weather_query[北京]") || !strings.Contains(out, "iteration_limit_exceeded") {
		t.Errorf("unexpected render:\n%s", out)
	}
}

func TestRenderRunPlainError(t *testing.T) {
	var buf bytes.Buffer
	renderRun(&buf, lumen.RunResult{}, errors.New("boom"))
	if !strings.Contains(buf.String(), "Error: boom") {
		t.Errorf("unexpected render: %q", buf.String())
	}
}

func TestRenderRetrieved(t *testing.T) {
	var buf bytes.Buffer
	renderRetrieved(&buf, []rag.Retrieved{
		{Text: strings.Repeat("word ", 100), Metadata: map[string]string{"source": "manual.pdf", "page": "4"}, Score: 0.5},
		{Text: "short", Metadata: nil},
	})
	out := buf.String()
	if !strings.Contains(out, "manual.pdf p.4") || !strings.Contains(out, "unknown source") {
		t.Errorf("unexpected render:\n%s", out)
	}
	if !strings.Contains(out, "...") {
		t.Error("long chunk should be truncated")
	}
}

func TestPreview(t *testing.T) {
	if got := preview("a\n\n  b\tc", 10); got != "a b c" {
		t.Errorf("preview = %q", got)
	}
	if got := preview("你好世界", 2); got != "你好..." {
		t.Errorf("preview = %q", got)
	}
}
