// File path: internal/vector/client.go
package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/codeproof/codeproof/internal/common"
	"github.com/codeproof/codeproof/internal/common/telemetry"
	"github.com/codeproof/codeproof/internal/model"
)

// Store is the embedding-store contract the retriever and indexer consume.
type Store interface {
	Available() bool
	EnsureCollection(ctx context.Context, dim int) error
	UpsertChunks(ctx context.Context, chunks []model.Chunk, vectors [][]float32) error
	DeleteRepo(ctx context.Context, repoID int64) error
	Search(ctx context.Context, repoID int64, vector []float32, limit int) ([]SearchResult, error)
}

// SearchResult is one nearest-neighbor hit with its chunk key payload.
type SearchResult struct {
	FilePath      string
	StartLine     int
	EndLine       int
	SymbolKind    string
	QualifiedName string
	Score         float64
}

// Client talks to a Qdrant instance over its REST API.
type Client struct {
	httpClient *http.Client

	baseURL    string
	collection string
	apiKey     string
	dim        int
	available  bool

	mu sync.RWMutex
}

// NewFromEnv constructs a client from QDRANT_* environment configuration.
func NewFromEnv(ctx context.Context) (*Client, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg)
}

// New constructs a client. A failed readiness probe leaves the client in an
// unavailable state rather than failing startup; retrieval degrades to
// trigram-only until the store comes back.
func New(ctx context.Context, cfg Config) (*Client, error) {
	logger := common.Logger()
	baseURL := fmt.Sprintf("%s://%s", cfg.Scheme, net.JoinHostPort(cfg.Host, cfg.Port))
	logger.Info(
		"vector: initializing qdrant client",
		"host", cfg.Host,
		"port", cfg.Port,
		"collection", cfg.Collection,
		"dim", cfg.Dim,
	)
	transport := &http.Transport{
		MaxIdleConns:        cfg.HTTPMaxIdleConns,
		MaxIdleConnsPerHost: cfg.HTTPMaxIdlePerHost,
		IdleConnTimeout:     cfg.HTTPIdleConnTimeout,
	}
	client := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout, Transport: transport},
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: cfg.Collection,
		apiKey:     cfg.APIKey,
		dim:        cfg.Dim,
	}
	if err := client.probe(ctx); err != nil {
		logger.Warn("vector: qdrant unavailable at startup", "error", err)
		return client, nil
	}
	if err := client.EnsureCollection(ctx, cfg.Dim); err != nil {
		logger.Warn("vector: ensure collection failed", "collection", cfg.Collection, "error", err)
		return client, nil
	}
	client.setAvailable(true)
	logger.Info("vector: qdrant connection established")
	return client, nil
}

// Available reports whether the store answered its readiness probe.
func (c *Client) Available() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.available
}

func (c *Client) setAvailable(v bool) {
	c.mu.Lock()
	c.available = v
	c.mu.Unlock()
}

func (c *Client) probe(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	return c.do(ctx, http.MethodGet, "/collections", nil, &out)
}

// EnsureCollection creates the collection with the deployment dimension if
// it does not exist. A different dimension than the configured one is
// rejected outright; mixing dimensions corrupts similarity scores silently.
func (c *Client) EnsureCollection(ctx context.Context, dim int) error {
	if dim <= 0 {
		dim = c.dim
	}
	if dim != c.dim {
		return fmt.Errorf("vector: dimension %d does not match deployment dimension %d", dim, c.dim)
	}
	err := c.do(ctx, http.MethodGet, "/collections/"+c.collection, nil, nil)
	if err == nil {
		return nil
	}
	body := map[string]any{
		"vectors": map[string]any{"size": dim, "distance": "Cosine"},
	}
	if err := c.do(ctx, http.MethodPut, "/collections/"+c.collection, body, nil); err != nil {
		return fmt.Errorf("create collection %s: %w", c.collection, err)
	}
	return nil
}

// chunkPointID derives a deterministic UUID from the chunk's natural key so
// re-indexing the same commit overwrites rather than duplicates.
func chunkPointID(chunk model.Chunk) string {
	key := fmt.Sprintf("%d:%s:%d:%d", chunk.RepoID, chunk.FilePath, chunk.StartLine, chunk.EndLine)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}

// UpsertChunks writes one point per chunk, keyed by (repo, file, start, end).
func (c *Client) UpsertChunks(ctx context.Context, chunks []model.Chunk, vectors [][]float32) error {
	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("vector: %d chunks but %d vectors", len(chunks), len(vectors))
	}
	points := make([]map[string]any, 0, len(chunks))
	for i, chunk := range chunks {
		if len(vectors[i]) != c.dim {
			return fmt.Errorf("vector: chunk %s:%d has dimension %d, deployment uses %d",
				chunk.FilePath, chunk.StartLine, len(vectors[i]), c.dim)
		}
		points = append(points, map[string]any{
			"id":     chunkPointID(chunk),
			"vector": vectors[i],
			"payload": map[string]any{
				"repo_id":        chunk.RepoID,
				"file_path":      chunk.FilePath,
				"start_line":     chunk.StartLine,
				"end_line":       chunk.EndLine,
				"symbol_kind":    chunk.SymbolKind,
				"qualified_name": chunk.QualifiedName,
			},
		})
	}
	body := map[string]any{"points": points}
	if err := c.do(ctx, http.MethodPut, "/collections/"+c.collection+"/points?wait=true", body, nil); err != nil {
		return fmt.Errorf("upsert %d points: %w", len(points), err)
	}
	return nil
}

// DeleteRepo removes every vector belonging to a repository.
func (c *Client) DeleteRepo(ctx context.Context, repoID int64) error {
	body := map[string]any{
		"filter": repoFilter(repoID),
	}
	if err := c.do(ctx, http.MethodPost, "/collections/"+c.collection+"/points/delete?wait=true", body, nil); err != nil {
		return fmt.Errorf("delete repo %d vectors: %w", repoID, err)
	}
	return nil
}

// Search returns the top-k nearest chunks for a repository, scores
// descending with a deterministic key tie-break.
func (c *Client) Search(ctx context.Context, repoID int64, vector []float32, limit int) ([]SearchResult, error) {
	if len(vector) != c.dim {
		return nil, fmt.Errorf("vector: query dimension %d, deployment uses %d", len(vector), c.dim)
	}
	if limit <= 0 {
		limit = 15
	}
	telemetry.RecordVectorSearch()
	body := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
		"filter":       repoFilter(repoID),
	}
	var out struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := c.do(ctx, http.MethodPost, "/collections/"+c.collection+"/points/search", body, &out); err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	results := make([]SearchResult, 0, len(out.Result))
	for _, hit := range out.Result {
		results = append(results, SearchResult{
			FilePath:      payloadString(hit.Payload, "file_path"),
			StartLine:     payloadInt(hit.Payload, "start_line"),
			EndLine:       payloadInt(hit.Payload, "end_line"),
			SymbolKind:    payloadString(hit.Payload, "symbol_kind"),
			QualifiedName: payloadString(hit.Payload, "qualified_name"),
			Score:         hit.Score,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].FilePath != results[j].FilePath {
			return results[i].FilePath < results[j].FilePath
		}
		return results[i].StartLine < results[j].StartLine
	})
	return results, nil
}

func repoFilter(repoID int64) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{"key": "repo_id", "match": map[string]any{"value": repoID}},
		},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("qdrant %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func payloadString(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	if value, ok := payload[key].(string); ok {
		return value
	}
	return ""
}

func payloadInt(payload map[string]any, key string) int {
	if payload == nil {
		return 0
	}
	if value, ok := payload[key].(float64); ok {
		return int(value)
	}
	return 0
}
