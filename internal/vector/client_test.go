// File path: internal/vector/client_test.go
package vector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/codeproof/codeproof/internal/model"
)

type fakeQdrant struct {
	t *testing.T

	mu             sync.Mutex
	collections    map[string]int
	upsertCalls    int
	deleteCalls    int
	searchCalls    int
	lastUpsert     map[string]any
	lastSearchBody map[string]any
	searchResult   []map[string]any
}

func newFakeQdrant(t *testing.T) *fakeQdrant {
	t.Helper()
	return &fakeQdrant{t: t, collections: map[string]int{}}
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case r.URL.Path == "/collections" && r.Method == http.MethodGet:
		writeResult(w, map[string]any{"collections": []any{}})
	case strings.HasSuffix(r.URL.Path, "/points/search"):
		f.searchCalls++
		f.lastSearchBody = decodeBody(f.t, r)
		writeResult(w, f.searchResult)
	case strings.HasSuffix(r.URL.Path, "/points/delete"):
		f.deleteCalls++
		writeResult(w, map[string]any{"status": "acknowledged"})
	case strings.HasSuffix(r.URL.Path, "/points"):
		f.upsertCalls++
		f.lastUpsert = decodeBody(f.t, r)
		writeResult(w, map[string]any{"status": "acknowledged"})
	case strings.HasPrefix(r.URL.Path, "/collections/") && r.Method == http.MethodGet:
		name := strings.TrimPrefix(r.URL.Path, "/collections/")
		if _, ok := f.collections[name]; !ok {
			http.NotFound(w, r)
			return
		}
		writeResult(w, map[string]any{"status": "green"})
	case strings.HasPrefix(r.URL.Path, "/collections/") && r.Method == http.MethodPut:
		name := strings.TrimPrefix(r.URL.Path, "/collections/")
		f.collections[name] = 1
		writeResult(w, true)
	default:
		http.NotFound(w, r)
	}
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func writeResult(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"result": result, "status": "ok"})
}

func newTestClient(t *testing.T, fake *fakeQdrant, dim int) *Client {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	parsed, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	cfg := Config{
		Host:       parsed.Hostname(),
		Port:       parsed.Port(),
		Scheme:     "http",
		Collection: "code_embeddings",
		Dim:        dim,
		Timeout:    2 * time.Second,
	}
	cfg.applyDefaults()
	cfg.Dim = dim
	client, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if !client.Available() {
		t.Fatalf("client should be available against the fake")
	}
	return client
}

func TestUpsertChunksDeterministicIDs(t *testing.T) {
	fake := newFakeQdrant(t)
	client := newTestClient(t, fake, 3)

	chunks := []model.Chunk{{RepoID: 1, FilePath: "a.php", StartLine: 1, EndLine: 20, Text: "x"}}
	vectors := [][]float32{{0.1, 0.2, 0.3}}
	if err := client.UpsertChunks(context.Background(), chunks, vectors); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	first := pointIDs(t, fake.lastUpsert)
	if err := client.UpsertChunks(context.Background(), chunks, vectors); err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	second := pointIDs(t, fake.lastUpsert)
	if first[0] != second[0] {
		t.Errorf("point ids must be deterministic: %q vs %q", first[0], second[0])
	}
}

func pointIDs(t *testing.T, body map[string]any) []string {
	t.Helper()
	points, ok := body["points"].([]any)
	if !ok {
		t.Fatalf("no points in body: %+v", body)
	}
	var ids []string
	for _, p := range points {
		ids = append(ids, p.(map[string]any)["id"].(string))
	}
	return ids
}

func TestUpsertRejectsMixedDimensions(t *testing.T) {
	fake := newFakeQdrant(t)
	client := newTestClient(t, fake, 3)
	chunks := []model.Chunk{{RepoID: 1, FilePath: "a.php", StartLine: 1, EndLine: 20, Text: "x"}}
	err := client.UpsertChunks(context.Background(), chunks, [][]float32{{0.1, 0.2}})
	if err == nil {
		t.Fatalf("expected dimension mismatch error")
	}
}

func TestSearchFiltersByRepoAndSorts(t *testing.T) {
	fake := newFakeQdrant(t)
	fake.searchResult = []map[string]any{
		{"score": 0.9, "payload": map[string]any{"file_path": "b.php", "start_line": 10.0, "end_line": 20.0}},
		{"score": 0.9, "payload": map[string]any{"file_path": "a.php", "start_line": 5.0, "end_line": 9.0}},
		{"score": 0.7, "payload": map[string]any{"file_path": "c.php", "start_line": 1.0, "end_line": 4.0}},
	}
	client := newTestClient(t, fake, 3)

	results, err := client.Search(context.Background(), 42, []float32{0.1, 0.2, 0.3}, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d", len(results))
	}
	// equal scores tie-break on file path
	if results[0].FilePath != "a.php" || results[1].FilePath != "b.php" {
		t.Errorf("tie-break order: %q, %q", results[0].FilePath, results[1].FilePath)
	}
	filter, ok := fake.lastSearchBody["filter"].(map[string]any)
	if !ok {
		t.Fatalf("search body missing repo filter: %+v", fake.lastSearchBody)
	}
	must := filter["must"].([]any)[0].(map[string]any)
	if must["key"] != "repo_id" {
		t.Errorf("filter key = %v", must["key"])
	}
}

func TestSearchRejectsWrongQueryDimension(t *testing.T) {
	fake := newFakeQdrant(t)
	client := newTestClient(t, fake, 3)
	if _, err := client.Search(context.Background(), 1, []float32{0.5}, 5); err == nil {
		t.Fatalf("expected query dimension error")
	}
}
