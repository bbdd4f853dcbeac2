// File path: internal/indexer/pipeline.go
package indexer

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/codeproof/codeproof/internal/common"
	"github.com/codeproof/codeproof/internal/common/telemetry"
	"github.com/codeproof/codeproof/internal/index"
	"github.com/codeproof/codeproof/internal/metering"
	"github.com/codeproof/codeproof/internal/model"
	"github.com/codeproof/codeproof/internal/parser"
	"github.com/codeproof/codeproof/internal/source"
	"github.com/codeproof/codeproof/internal/vector"
)

// skipFragments excludes vendored and generated trees from enumeration.
var skipFragments = []string{
	"/vendor/", "/node_modules/", "/dist/", "/build/", "__pycache__", ".git/",
}

var languageByExt = map[string]string{
	".php":  "php",
	".js":   "javascript",
	".ts":   "typescript",
	".json": "json",
	".yml":  "yaml",
	".yaml": "yaml",
	".md":   "markdown",
	".lock": "lockfile",
}

// Embedder is the minimal embedding contract the pipeline needs.
type Embedder interface {
	Embed(ctx context.Context, input []string) ([][]float32, error)
}

// Pipeline indexes one repository at one commit: enumerate, extract, embed,
// and atomically finalize. Runs are idempotent per (repo, commit).
type Pipeline struct {
	provider source.Provider
	store    *index.Store
	vectors  vector.Store
	embedder Embedder
	metering metering.Sink

	workers    int
	batchSize  int
	leaseTTL   time.Duration
	minChunkLn int
}

// Option mutates pipeline construction.
type Option func(*Pipeline)

// WithWorkers bounds the parser worker pool.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithBatchSize bounds the embedding batch size.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithLeaseTTL overrides the indexing lease duration.
func WithLeaseTTL(ttl time.Duration) Option {
	return func(p *Pipeline) {
		if ttl > 0 {
			p.leaseTTL = ttl
		}
	}
}

// New wires an indexing pipeline.
func New(provider source.Provider, store *index.Store, vectors vector.Store, embedder Embedder, sink metering.Sink, opts ...Option) *Pipeline {
	p := &Pipeline{
		provider:   provider,
		store:      store,
		vectors:    vectors,
		embedder:   embedder,
		metering:   sink,
		workers:    4,
		batchSize:  64,
		leaseTTL:   15 * time.Minute,
		minChunkLn: 10,
	}
	if p.metering == nil {
		p.metering = metering.LogSink{}
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Run indexes (owner/name, commit). The previous generation stays readable
// until the new one is durable; any failure marks the repository failed with
// the error preserved and leaves the old generation untouched.
func (p *Pipeline) Run(ctx context.Context, owner, name, commit string) (*model.Repository, error) {
	logger := common.Logger()
	repo, err := p.store.EnsureRepository(ctx, owner, name, "")
	if err != nil {
		return nil, err
	}
	if repo.Status == model.RepoReady && repo.LastIndexedCommit == commit {
		logger.Info("indexer: commit already indexed", "repo", repo.FullName(), "commit", commit)
		return repo, nil
	}
	if err := p.store.AcquireLease(ctx, repo.ID, commit, p.leaseTTL); err != nil {
		return nil, err
	}
	defer p.store.ReleaseLease(context.Background(), repo.ID, commit)

	if err := p.store.SetRepositoryStatus(ctx, repo.ID, model.RepoIndexing, ""); err != nil {
		return nil, err
	}
	generation, chunkCount, embeddingTokens, err := p.buildGeneration(ctx, repo, commit)
	if err == nil {
		err = p.store.ReplaceGeneration(ctx, repo.ID, generation)
	}
	if err != nil {
		if statusErr := p.store.SetRepositoryStatus(context.Background(), repo.ID, model.RepoFailed, err.Error()); statusErr != nil {
			logger.Error("indexer: could not record failure", "repo", repo.FullName(), "error", statusErr)
		}
		return nil, err
	}

	telemetry.RecordIndexRun(len(generation.Files))
	p.metering.Record(ctx, metering.Event{
		Event:           metering.EventIndexed,
		Repo:            repo.FullName(),
		EmbeddingTokens: embeddingTokens,
		Metadata: map[string]any{
			"commit":       commit,
			"file_count":   len(generation.Files),
			"chunk_count":  chunkCount,
			"parse_errors": len(generation.Errors),
		},
	})
	logger.Info("indexer: run complete",
		"repo", repo.FullName(),
		"commit", commit,
		"files", len(generation.Files),
		"symbols", len(generation.Symbols),
		"routes", len(generation.Routes),
		"chunks", chunkCount,
	)
	return p.store.RepositoryByID(ctx, repo.ID)
}

func (p *Pipeline) buildGeneration(ctx context.Context, repo *model.Repository, commit string) (*model.Generation, int, int64, error) {
	listing, err := p.provider.ListFiles(ctx, repo.Owner, repo.Name, commit)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("list files: %w", err)
	}

	generation := &model.Generation{Commit: commit}
	var phpFiles []source.FileInfo
	for _, info := range listing {
		if skipPath(info.Path) {
			continue
		}
		language := languageByExt[strings.ToLower(path.Ext(info.Path))]
		generation.Files = append(generation.Files, model.File{
			RepoID:    repo.ID,
			Path:      info.Path,
			BlobSHA:   info.BlobSHA,
			Language:  language,
			SizeBytes: info.Size,
		})
		if language == "php" {
			phpFiles = append(phpFiles, info)
		}
	}

	results, err := p.extractAll(ctx, repo, commit, phpFiles)
	if err != nil {
		return nil, 0, 0, err
	}
	for _, result := range results {
		generation.Symbols = append(generation.Symbols, result.Symbols...)
		generation.Routes = append(generation.Routes, result.Routes...)
		if result.Migration != nil {
			generation.Migrations = append(generation.Migrations, *result.Migration)
		}
		generation.Errors = append(generation.Errors, result.Errors...)
	}
	sortGeneration(generation)

	chunks := vector.BuildChunks(repo.ID, generation.Symbols, p.minChunkLn)
	embeddingTokens, err := p.embedChunks(ctx, repo, chunks)
	if err != nil {
		return nil, 0, 0, err
	}
	return generation, len(chunks), embeddingTokens, nil
}

// extractAll parses PHP files on a bounded worker pool; parsing is CPU-bound
// and must not stall the cooperative request path.
func (p *Pipeline) extractAll(ctx context.Context, repo *model.Repository, commit string, files []source.FileInfo) (map[string]*parser.FileResult, error) {
	logger := common.Logger()
	jobs := make(chan source.FileInfo)
	results := make(map[string]*parser.FileResult, len(files))
	var resultsMu sync.Mutex
	var firstErr error
	var errOnce sync.Once

	var wg sync.WaitGroup
	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			extractor := parser.NewExtractor()
			for info := range jobs {
				data, err := p.provider.GetFile(ctx, repo.Owner, repo.Name, commit, info.Path)
				if err != nil {
					if ctx.Err() != nil {
						errOnce.Do(func() { firstErr = ctx.Err() })
						return
					}
					// a skipped file is recoverable; the generation just
					// omits it
					logger.Warn("indexer: file skipped", "path", info.Path, "error", err)
					continue
				}
				result, err := extractor.ExtractFile(ctx, info.Path, data)
				if err != nil {
					errOnce.Do(func() { firstErr = fmt.Errorf("extract %s: %w", info.Path, err) })
					return
				}
				resultsMu.Lock()
				results[info.Path] = result
				resultsMu.Unlock()
			}
		}()
	}

feed:
	for _, info := range files {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- info:
		}
	}
	close(jobs)
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// embedChunks replaces the repository's vectors. The vector store is written
// before the relational swap so a failure here never orphans a readable
// generation.
func (p *Pipeline) embedChunks(ctx context.Context, repo *model.Repository, chunks []model.Chunk) (int64, error) {
	if p.vectors == nil || !p.vectors.Available() || p.embedder == nil {
		return 0, nil
	}
	if err := p.vectors.DeleteRepo(ctx, repo.ID); err != nil {
		return 0, fmt.Errorf("clear vectors: %w", err)
	}
	var embeddingTokens int64
	for start := 0; start < len(chunks); start += p.batchSize {
		end := start + p.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = chunk.Text
			embeddingTokens += int64(len(chunk.Text) / 4)
		}
		vectors, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("embed batch: %w", err)
		}
		if err := p.vectors.UpsertChunks(ctx, batch, vectors); err != nil {
			return 0, err
		}
	}
	return embeddingTokens, nil
}

// sortGeneration pins a deterministic order so re-indexing the same commit
// produces byte-equal payloads.
func sortGeneration(gen *model.Generation) {
	sort.Slice(gen.Files, func(i, j int) bool { return gen.Files[i].Path < gen.Files[j].Path })
	sort.Slice(gen.Symbols, func(i, j int) bool {
		if gen.Symbols[i].FilePath != gen.Symbols[j].FilePath {
			return gen.Symbols[i].FilePath < gen.Symbols[j].FilePath
		}
		if gen.Symbols[i].StartLine != gen.Symbols[j].StartLine {
			return gen.Symbols[i].StartLine < gen.Symbols[j].StartLine
		}
		return gen.Symbols[i].QualifiedName < gen.Symbols[j].QualifiedName
	})
	sort.Slice(gen.Routes, func(i, j int) bool {
		if gen.Routes[i].SourceFile != gen.Routes[j].SourceFile {
			return gen.Routes[i].SourceFile < gen.Routes[j].SourceFile
		}
		if gen.Routes[i].StartLine != gen.Routes[j].StartLine {
			return gen.Routes[i].StartLine < gen.Routes[j].StartLine
		}
		if gen.Routes[i].FullURI != gen.Routes[j].FullURI {
			return gen.Routes[i].FullURI < gen.Routes[j].FullURI
		}
		return gen.Routes[i].Method < gen.Routes[j].Method
	})
	sort.Slice(gen.Migrations, func(i, j int) bool { return gen.Migrations[i].FilePath < gen.Migrations[j].FilePath })
	sort.Slice(gen.Errors, func(i, j int) bool { return gen.Errors[i].FilePath < gen.Errors[j].FilePath })
}

func skipPath(filePath string) bool {
	lower := strings.ToLower(filePath)
	for _, fragment := range skipFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}
