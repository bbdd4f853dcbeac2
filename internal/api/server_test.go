// File path: internal/api/server_test.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/codeproof/codeproof/internal/config"
	"github.com/codeproof/codeproof/internal/data/orchestrator"
	"github.com/codeproof/codeproof/internal/llm"
	"github.com/codeproof/codeproof/internal/scheduler"
	"github.com/codeproof/codeproof/internal/source"
)

type scriptedLLM struct {
	response string
}

func (p *scriptedLLM) Generate(ctx context.Context, prompt string, maxTokens int) (*llm.Generation, error) {
	return &llm.Generation{Text: p.response, Usage: llm.Usage{InputTokens: 200, OutputTokens: 80}}, nil
}

func (p *scriptedLLM) Embed(ctx context.Context, input []string) ([][]float32, error) {
	vectors := make([][]float32, len(input))
	for i := range input {
		vectors[i] = []float32{0.1, 0.2, 0.3}
	}
	return vectors, nil
}

func (p *scriptedLLM) Name() string { return "scripted" }

func fixtureRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"routes/api.php": `<?php
Route::middleware(['auth'])->prefix('api')->group(function () {
    Route::get('/users', [UserController::class, 'index']);
});
`,
		"routes/admin.php": `<?php
Route::get('/users/{user}/profile', [UserController::class, 'profile'])->withoutMiddleware('auth');
`,
		"app/Http/Middleware/Authenticate.php": `<?php
namespace App\Http\Middleware;

/**
 * Rejects unauthenticated requests before they reach a controller.
 */
class Authenticate
{
    public function handle($request, $next)
    {
        if (!$request->user()) {
            abort(401);
        }
        return $next($request);
    }
}
`,
	}
	for path, content := range files {
		full := filepath.Join(root, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return root
}

func newTestServer(t *testing.T, response string) (*Server, *scheduler.Inline) {
	t.Helper()
	t.Setenv("VECTOR_ENABLED", "false")
	provider, err := source.NewLocalProvider(fixtureRoot(t))
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	cfg := config.Config{}
	cfg.ApplyDefaults()
	orch, err := orchestrator.New(context.Background(), cfg,
		filepath.Join(t.TempDir(), "index.db"),
		orchestrator.WithProvider(provider),
		orchestrator.WithLLM(&scriptedLLM{response: response}),
		orchestrator.WithVectorStore(nil),
	)
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}
	t.Cleanup(func() { orch.Close() })
	sched := scheduler.NewInline(1, 8)
	t.Cleanup(sched.Close)
	server, err := NewServer(orch, sched)
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	return server, sched
}

const testCommit = "c0ffee0000000000000000000000000000000000"

func doJSON(t *testing.T, server *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func indexFixture(t *testing.T, server *Server) {
	t.Helper()
	rec := doJSON(t, server, http.MethodPost, "/v1/repos/acme/shop/index", map[string]any{"commit": testCommit})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("index status = %d: %s", rec.Code, rec.Body.String())
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec := doJSON(t, server, http.MethodGet, "/v1/repos/acme/shop/", nil)
		var repo struct {
			Status string `json:"status"`
			Error  string `json:"error_message"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &repo); err == nil {
			if repo.Status == "ready" {
				return
			}
			if repo.Status == "failed" {
				t.Fatalf("indexing failed: %s", repo.Error)
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("indexing did not complete")
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t, "{}")
	rec := doJSON(t, server, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestIndexThenListRoutes(t *testing.T) {
	server, _ := newTestServer(t, "{}")
	indexFixture(t, server)

	rec := doJSON(t, server, http.MethodGet, "/v1/repos/acme/shop/routes", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Routes []struct {
			FullURI    string   `json:"full_uri"`
			Middleware []string `json:"middleware"`
		} `json:"routes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Routes) != 2 {
		t.Fatalf("routes = %+v", payload.Routes)
	}
	found := false
	for _, route := range payload.Routes {
		if route.FullURI == "/api/users" {
			found = true
			if len(route.Middleware) != 1 || route.Middleware[0] != "auth" {
				t.Errorf("middleware = %v", route.Middleware)
			}
		}
	}
	if !found {
		t.Errorf("grouped route missing: %+v", payload.Routes)
	}
}

func TestQAAgainstIndexedRepo(t *testing.T) {
	server, _ := newTestServer(t, `{
		"sections": [{"text": "Authentication is enforced by the Authenticate middleware.", "source_ids": [1]}],
		"unknowns": []
	}`)
	indexFixture(t, server)

	rec := doJSON(t, server, http.MethodPost, "/v1/repos/acme/shop/qa",
		map[string]any{"question": "How does authentication work?"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var answer struct {
		ConfidenceTier string `json:"confidence_tier"`
		Text           string `json:"text"`
		Citations      []struct {
			FilePath string `json:"file_path"`
		} `json:"citations"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &answer); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if answer.ConfidenceTier == "none" {
		t.Fatalf("answer degraded: %s", rec.Body.String())
	}
	if !strings.Contains(answer.Text, "[1]") {
		t.Errorf("rendered text missing citation: %q", answer.Text)
	}
	if len(answer.Citations) == 0 {
		t.Errorf("citations missing")
	}
}

func TestQARequiresIndexedRepo(t *testing.T) {
	server, _ := newTestServer(t, "{}")
	// create the repo row without indexing
	rec := doJSON(t, server, http.MethodPost, "/v1/repos/acme/shop/index", map[string]any{"commit": "zz"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad commit should 400, got %d", rec.Code)
	}
	rec = doJSON(t, server, http.MethodPost, "/v1/repos/acme/shop/qa", map[string]any{"question": "anything"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unindexed repo qa = %d", rec.Code)
	}
}

func TestInlineDiffReview(t *testing.T) {
	server, _ := newTestServer(t, "Short explanation. Remove the key.")
	indexFixture(t, server)

	rec := doJSON(t, server, http.MethodPost, "/v1/repos/acme/shop/reviews", map[string]any{
		"pr_number": 12,
		"diff": map[string]any{
			"base_commit": "base0000",
			"head_commit": testCommit,
			"files": []map[string]any{{
				"path":   "routes/admin.php",
				"status": "added",
				"patch":  "@@ -0,0 +1,2 @@\n+<?php\n+Route::get('/users/{user}/profile', [UserController::class, 'profile'])->withoutMiddleware('auth');",
			}},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Report struct {
			Verdict       string `json:"verdict"`
			CriticalCount int    `json:"critical_count"`
		} `json:"report"`
		Markdown string `json:"markdown"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Report.Verdict != "request_changes" || payload.Report.CriticalCount == 0 {
		t.Errorf("report = %+v", payload.Report)
	}
	if !strings.Contains(payload.Markdown, "CodeProof Review") {
		t.Errorf("markdown = %q", payload.Markdown)
	}
}

func TestReviewRequiresDiffOrPR(t *testing.T) {
	server, _ := newTestServer(t, "{}")
	indexFixture(t, server)
	rec := doJSON(t, server, http.MethodPost, "/v1/repos/acme/shop/reviews", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}
