// File path: internal/retriever/retriever.go
package retriever

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/codeproof/codeproof/internal/common"
	"github.com/codeproof/codeproof/internal/common/telemetry"
	"github.com/codeproof/codeproof/internal/config"
	"github.com/codeproof/codeproof/internal/index"
	"github.com/codeproof/codeproof/internal/model"
	"github.com/codeproof/codeproof/internal/vector"
)

// SourceType marks which search leg produced a source.
const (
	SourceTrigram = "trigram"
	SourceVector  = "vector"
	SourceBoth    = "both"
)

// Source is one retrieved, hydrated passage. SourceIndex is the 1-based
// number cited by the constrained answerer.
type Source struct {
	SourceIndex int     `json:"source_index"`
	FilePath    string  `json:"file_path"`
	StartLine   int     `json:"start_line"`
	EndLine     int     `json:"end_line"`
	Content     string  `json:"content"`
	SymbolName  string  `json:"symbol_name,omitempty"`
	Score       float64 `json:"score"`
	SourceType  string  `json:"source_type"`
}

// SymbolSearcher is the index-store leg.
type SymbolSearcher interface {
	TrigramSearch(ctx context.Context, repoID int64, query string, limit int) ([]index.SymbolMatch, error)
}

// VectorSearcher is the embedding-store leg.
type VectorSearcher interface {
	Available() bool
	Search(ctx context.Context, repoID int64, vector []float32, limit int) ([]vector.SearchResult, error)
}

// Embedder turns query text into a vector.
type Embedder interface {
	Embed(ctx context.Context, input []string) ([][]float32, error)
}

// SnippetFetcher hydrates a source with literal text.
type SnippetFetcher interface {
	Fetch(ctx context.Context, owner, name, commit, path string, startLine, endLine int) (string, error)
}

// Retriever fans a query out to the trigram and vector legs, merges and
// ranks the results, and hydrates them with source text.
type Retriever struct {
	symbols  SymbolSearcher
	vectors  VectorSearcher
	embedder Embedder
	snippets SnippetFetcher
	cfg      config.RetrieverConfig
}

// New wires the retriever's collaborators.
func New(symbols SymbolSearcher, vectors VectorSearcher, embedder Embedder, snippets SnippetFetcher, cfg config.RetrieverConfig) *Retriever {
	if cfg.TrigramK <= 0 {
		cfg.TrigramK = 10
	}
	if cfg.VectorK <= 0 {
		cfg.VectorK = 15
	}
	if cfg.FinalK <= 0 {
		cfg.FinalK = 15
	}
	if cfg.LegTimeout <= 0 {
		cfg.LegTimeout = 3 * time.Second
	}
	return &Retriever{symbols: symbols, vectors: vectors, embedder: embedder, snippets: snippets, cfg: cfg}
}

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "was": {}, "were": {}, "been": {},
	"how": {}, "what": {}, "where": {}, "when": {}, "why": {}, "which": {}, "who": {},
	"does": {}, "did": {}, "has": {}, "have": {}, "had": {},
	"are": {}, "for": {}, "with": {}, "into": {}, "this": {}, "that": {},
}

var wordRe = regexp.MustCompile(`\b\w+\b`)

// ExtractKeywords lowercases and tokenizes the query, drops stopwords and
// short tokens, and keeps at most five content words.
func ExtractKeywords(query string) []string {
	var keywords []string
	for _, word := range wordRe.FindAllString(strings.ToLower(query), -1) {
		if len(word) < 3 {
			continue
		}
		if _, stop := stopwords[word]; stop {
			continue
		}
		keywords = append(keywords, word)
		if len(keywords) == 5 {
			break
		}
	}
	return keywords
}

type mergeKey struct {
	file  string
	start int
}

// Retrieve runs both legs for a query against an indexed repository and
// returns the ordered, numbered, hydrated source list. Ordering is
// deterministic for a fixed (repo, commit, query).
func (r *Retriever) Retrieve(ctx context.Context, repo *model.Repository, query string) ([]Source, error) {
	started := time.Now()
	defer func() { telemetry.RecordRetrieval(time.Since(started)) }()
	logger := common.Logger()

	keywords := ExtractKeywords(query)

	type trigramOut struct {
		matches []index.SymbolMatch
		err     error
	}
	type vectorOut struct {
		results []vector.SearchResult
		err     error
	}
	trigramCh := make(chan trigramOut, 1)
	vectorCh := make(chan vectorOut, 1)

	legCtx, cancelLegs := context.WithCancel(ctx)
	defer cancelLegs()

	go func() {
		if len(keywords) == 0 {
			trigramCh <- trigramOut{}
			return
		}
		legCtx, cancel := context.WithTimeout(legCtx, r.cfg.LegTimeout)
		defer cancel()
		matches, err := r.symbols.TrigramSearch(legCtx, repo.ID, strings.Join(keywords, " "), r.cfg.TrigramK)
		trigramCh <- trigramOut{matches: matches, err: err}
	}()
	go func() {
		if r.vectors == nil || !r.vectors.Available() || r.embedder == nil {
			vectorCh <- vectorOut{}
			return
		}
		legCtx, cancel := context.WithTimeout(legCtx, r.cfg.LegTimeout)
		defer cancel()
		embedded, err := r.embedder.Embed(legCtx, []string{query})
		if err != nil || len(embedded) == 0 {
			vectorCh <- vectorOut{err: err}
			return
		}
		results, err := r.vectors.Search(legCtx, repo.ID, embedded[0], r.cfg.VectorK)
		vectorCh <- vectorOut{results: results, err: err}
	}()

	trigram := <-trigramCh
	vectorLeg := <-vectorCh
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if trigram.err != nil && vectorLeg.err != nil {
		return nil, fmt.Errorf("both retrieval legs failed: trigram: %v; vector: %w", trigram.err, vectorLeg.err)
	}
	if trigram.err != nil {
		logger.Warn("retriever: trigram leg failed", "error", trigram.err)
	}
	if vectorLeg.err != nil {
		logger.Warn("retriever: vector leg failed", "error", vectorLeg.err)
	}

	merged := make(map[mergeKey]*Source)
	for _, match := range trigram.matches {
		key := mergeKey{file: match.Symbol.FilePath, start: match.Symbol.StartLine}
		merged[key] = &Source{
			FilePath:   match.Symbol.FilePath,
			StartLine:  match.Symbol.StartLine,
			EndLine:    match.Symbol.EndLine,
			SymbolName: match.Symbol.QualifiedName,
			Score:      match.Score,
			SourceType: SourceTrigram,
		}
	}
	for _, hit := range vectorLeg.results {
		key := mergeKey{file: hit.FilePath, start: hit.StartLine}
		if existing, ok := merged[key]; ok {
			if hit.Score > existing.Score {
				existing.Score = hit.Score
			}
			existing.SourceType = SourceBoth
			continue
		}
		merged[key] = &Source{
			FilePath:   hit.FilePath,
			StartLine:  hit.StartLine,
			EndLine:    hit.EndLine,
			SymbolName: hit.QualifiedName,
			Score:      hit.Score,
			SourceType: SourceVector,
		}
	}

	sources := make([]Source, 0, len(merged))
	for _, s := range merged {
		sources = append(sources, *s)
	}
	sort.SliceStable(sources, func(i, j int) bool {
		if sources[i].Score != sources[j].Score {
			return sources[i].Score > sources[j].Score
		}
		if sources[i].FilePath != sources[j].FilePath {
			return sources[i].FilePath < sources[j].FilePath
		}
		return sources[i].StartLine < sources[j].StartLine
	})
	if len(sources) > r.cfg.FinalK {
		sources = sources[:r.cfg.FinalK]
	}
	for i := range sources {
		sources[i].SourceIndex = i + 1
	}

	r.hydrate(ctx, repo, sources)
	return sources, nil
}

// hydrate fills each source with its literal snippet. A failed fetch leaves
// a placeholder in the slot; the source keeps its position so indices remain
// stable.
func (r *Retriever) hydrate(ctx context.Context, repo *model.Repository, sources []Source) {
	if r.snippets == nil {
		return
	}
	for i := range sources {
		content, err := r.snippets.Fetch(ctx, repo.Owner, repo.Name, repo.LastIndexedCommit,
			sources[i].FilePath, sources[i].StartLine, sources[i].EndLine)
		if err != nil {
			sources[i].Content = fmt.Sprintf("[Could not fetch: %v]", err)
			continue
		}
		sources[i].Content = content
	}
}
