// File path: internal/retriever/retriever_test.go
package retriever

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/codeproof/codeproof/internal/config"
	"github.com/codeproof/codeproof/internal/index"
	"github.com/codeproof/codeproof/internal/model"
	"github.com/codeproof/codeproof/internal/vector"
)

type fakeSymbols struct {
	matches []index.SymbolMatch
	err     error
}

func (f *fakeSymbols) TrigramSearch(ctx context.Context, repoID int64, query string, limit int) ([]index.SymbolMatch, error) {
	return f.matches, f.err
}

type fakeVectors struct {
	results   []vector.SearchResult
	err       error
	available bool
}

func (f *fakeVectors) Available() bool { return f.available }

func (f *fakeVectors) Search(ctx context.Context, repoID int64, v []float32, limit int) ([]vector.SearchResult, error) {
	return f.results, f.err
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, input []string) ([][]float32, error) {
	return [][]float32{{0.1, 0.2}}, nil
}

type fakeSnippets struct {
	err   error
	calls int
}

func (f *fakeSnippets) Fetch(ctx context.Context, owner, name, commit, path string, startLine, endLine int) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "content of " + path, nil
}

func testRepo() *model.Repository {
	return &model.Repository{ID: 1, Owner: "acme", Name: "shop", LastIndexedCommit: "abc123", Status: model.RepoReady}
}

func symbolMatch(file string, start int, name string, score float64) index.SymbolMatch {
	return index.SymbolMatch{
		Symbol: model.Symbol{FilePath: file, StartLine: start, EndLine: start + 10, QualifiedName: name},
		Score:  score,
	}
}

func TestExtractKeywords(t *testing.T) {
	got := ExtractKeywords("How does the authentication middleware work?")
	want := []string{"authentication", "middleware", "work"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("keywords = %v, want %v", got, want)
	}
	if len(ExtractKeywords("a an of to")) != 0 {
		t.Errorf("stopwords must all be dropped")
	}
	many := ExtractKeywords("alpha bravo charlie delta echo foxtrot golf")
	if len(many) != 5 {
		t.Errorf("keyword cap = %d, want 5", len(many))
	}
}

func TestMergeDeduplicatesByFileAndStart(t *testing.T) {
	symbols := &fakeSymbols{matches: []index.SymbolMatch{
		symbolMatch("a.php", 10, "A", 0.5),
	}}
	vectors := &fakeVectors{available: true, results: []vector.SearchResult{
		{FilePath: "a.php", StartLine: 10, EndLine: 25, Score: 0.8},
		{FilePath: "b.php", StartLine: 1, EndLine: 12, Score: 0.6},
	}}
	snippets := &fakeSnippets{}
	r := New(symbols, vectors, fakeEmbedder{}, snippets, config.RetrieverConfig{})

	sources, err := r.Retrieve(context.Background(), testRepo(), "auth flow")
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("sources = %d, want 2", len(sources))
	}
	if sources[0].FilePath != "a.php" || sources[0].SourceType != SourceBoth {
		t.Errorf("merged source = %+v", sources[0])
	}
	if sources[0].Score != 0.8 {
		t.Errorf("merged score = %f, want max", sources[0].Score)
	}
	if sources[0].SourceIndex != 1 || sources[1].SourceIndex != 2 {
		t.Errorf("indices = %d, %d", sources[0].SourceIndex, sources[1].SourceIndex)
	}
}

func TestTieBreakIsDeterministic(t *testing.T) {
	symbols := &fakeSymbols{matches: []index.SymbolMatch{
		symbolMatch("z.php", 5, "Z", 0.5),
		symbolMatch("a.php", 9, "A2", 0.5),
		symbolMatch("a.php", 3, "A1", 0.5),
	}}
	r := New(symbols, &fakeVectors{}, nil, &fakeSnippets{}, config.RetrieverConfig{})

	sources, err := r.Retrieve(context.Background(), testRepo(), "anything useful")
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	var order []string
	for _, s := range sources {
		order = append(order, s.FilePath)
	}
	want := []string{"a.php", "a.php", "z.php"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
	if sources[0].StartLine != 3 {
		t.Errorf("same-file tie-break start = %d, want 3", sources[0].StartLine)
	}
}

func TestFinalKLimit(t *testing.T) {
	var matches []index.SymbolMatch
	for i := 0; i < 30; i++ {
		matches = append(matches, symbolMatch("f.php", i*10+1, "S", 0.9-float64(i)*0.01))
	}
	r := New(&fakeSymbols{matches: matches}, &fakeVectors{}, nil, &fakeSnippets{}, config.RetrieverConfig{FinalK: 15})
	sources, err := r.Retrieve(context.Background(), testRepo(), "service layer")
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(sources) != 15 {
		t.Errorf("sources = %d, want 15", len(sources))
	}
	if sources[14].SourceIndex != 15 {
		t.Errorf("last index = %d", sources[14].SourceIndex)
	}
}

func TestHydrationFailureLeavesPlaceholder(t *testing.T) {
	symbols := &fakeSymbols{matches: []index.SymbolMatch{symbolMatch("a.php", 1, "A", 0.9)}}
	snippets := &fakeSnippets{err: errors.New("rate limited")}
	r := New(symbols, &fakeVectors{}, nil, snippets, config.RetrieverConfig{})

	sources, err := r.Retrieve(context.Background(), testRepo(), "anything else")
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(sources) != 1 {
		t.Fatalf("sources = %d", len(sources))
	}
	if !strings.HasPrefix(sources[0].Content, "[Could not fetch:") {
		t.Errorf("content = %q", sources[0].Content)
	}
}

func TestBothLegsFailingIsAnError(t *testing.T) {
	r := New(
		&fakeSymbols{err: errors.New("db down")},
		&fakeVectors{available: true, err: errors.New("vector down")},
		fakeEmbedder{},
		&fakeSnippets{},
		config.RetrieverConfig{},
	)
	if _, err := r.Retrieve(context.Background(), testRepo(), "broken backends"); err == nil {
		t.Fatalf("expected an error when both legs fail")
	}
}

func TestVectorUnavailableFallsBackToTrigram(t *testing.T) {
	symbols := &fakeSymbols{matches: []index.SymbolMatch{symbolMatch("a.php", 1, "A", 0.4)}}
	r := New(symbols, &fakeVectors{available: false}, fakeEmbedder{}, &fakeSnippets{}, config.RetrieverConfig{})
	sources, err := r.Retrieve(context.Background(), testRepo(), "token service")
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(sources) != 1 || sources[0].SourceType != SourceTrigram {
		t.Errorf("sources = %+v", sources)
	}
}
