// File path: internal/data/orchestrator/orchestrator.go
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/codeproof/codeproof/internal/analyzer"
	"github.com/codeproof/codeproof/internal/answerer"
	"github.com/codeproof/codeproof/internal/config"
	"github.com/codeproof/codeproof/internal/index"
	"github.com/codeproof/codeproof/internal/indexer"
	"github.com/codeproof/codeproof/internal/llm"
	"github.com/codeproof/codeproof/internal/metering"
	"github.com/codeproof/codeproof/internal/retriever"
	"github.com/codeproof/codeproof/internal/review"
	"github.com/codeproof/codeproof/internal/snippet"
	"github.com/codeproof/codeproof/internal/source"
	"github.com/codeproof/codeproof/internal/vector"
)

type closer interface {
	Close() error
}

// Orchestrator wires the persistent stores and pipeline components together
// and exposes accessors for the API layer.
type Orchestrator struct {
	cfg config.Config

	store    *index.Store
	vectors  vector.Store
	provider source.Provider
	llm      llm.Provider
	snippets *snippet.Fetcher
	sink     metering.Sink

	retriever *retriever.Retriever
	answerer  *answerer.Answerer
	reviewer  *review.Orchestrator
	pipeline  *indexer.Pipeline

	closers []closer
}

// Option overrides a collaborator during construction; used by tests and by
// deployments with custom providers.
type Option func(*options)

type options struct {
	provider source.Provider
	vectors  vector.Store
	llm      llm.Provider
	sink     metering.Sink
}

// WithProvider injects a source provider.
func WithProvider(p source.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithVectorStore injects a vector store.
func WithVectorStore(v vector.Store) Option {
	return func(o *options) { o.vectors = v }
}

// WithLLM injects a language-model provider.
func WithLLM(p llm.Provider) Option {
	return func(o *options) { o.llm = p }
}

// WithMeteringSink injects a metering sink.
func WithMeteringSink(s metering.Sink) Option {
	return func(o *options) { o.sink = s }
}

// New constructs the orchestrator from configuration plus overrides.
func New(ctx context.Context, cfg config.Config, indexPath string, opts ...Option) (*Orchestrator, error) {
	settings := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&settings)
		}
	}

	store, err := index.Open(indexPath)
	if err != nil {
		return nil, fmt.Errorf("init index store: %w", err)
	}

	vectors := settings.vectors
	if vectors == nil && vectorEnabled() {
		client, err := vector.NewFromEnv(ctx)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("init vector client: %w", err)
		}
		vectors = client
	}

	provider := settings.provider
	if provider == nil {
		root := strings.TrimSpace(os.Getenv("SOURCE_ROOT"))
		if root == "" {
			root = "."
		}
		local, err := source.NewLocalProvider(root)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("init source provider: %w", err)
		}
		provider = local
	}

	model := settings.llm
	if model == nil {
		model = llm.NewProvider()
	}

	sink := settings.sink
	if sink == nil {
		if root := strings.TrimSpace(os.Getenv("METERING_DIR")); root != "" {
			fileSink, err := metering.NewFileSink(root)
			if err != nil {
				store.Close()
				return nil, fmt.Errorf("init metering sink: %w", err)
			}
			sink = fileSink
		} else {
			sink = metering.LogSink{}
		}
	}

	snippets := snippet.NewFetcher(provider,
		snippet.WithMaxChars(cfg.Snippet.MaxChars),
		snippet.WithTTL(cfg.Snippet.TTL),
		snippet.WithFetchTimeout(cfg.Snippet.FetchTimeout),
	)

	orch := &Orchestrator{
		cfg:      cfg,
		store:    store,
		vectors:  vectors,
		provider: provider,
		llm:      model,
		snippets: snippets,
		sink:     sink,
	}
	orch.retriever = retriever.New(store, vectors, model, snippets, cfg.Retriever)
	orch.answerer = answerer.New(model, cfg.Answerer)
	orch.reviewer = review.New(provider, analyzer.New(analyzer.WithSkipPaths(cfg.Analyzer.SkipPaths)), model, cfg.Review)
	orch.pipeline = indexer.New(provider, store, vectors, model, sink)
	orch.closers = append(orch.closers, store)
	return orch, nil
}

// Close releases every owned resource.
func (o *Orchestrator) Close() error {
	var firstErr error
	for _, c := range o.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Store returns the index store.
func (o *Orchestrator) Store() *index.Store { return o.store }

// Vectors returns the vector store, possibly nil.
func (o *Orchestrator) Vectors() vector.Store { return o.vectors }

// Provider returns the source provider.
func (o *Orchestrator) Provider() source.Provider { return o.provider }

// LLM returns the language-model provider.
func (o *Orchestrator) LLM() llm.Provider { return o.llm }

// Snippets returns the snippet fetcher.
func (o *Orchestrator) Snippets() *snippet.Fetcher { return o.snippets }

// Retriever returns the hybrid retriever.
func (o *Orchestrator) Retriever() *retriever.Retriever { return o.retriever }

// Answerer returns the constrained answerer.
func (o *Orchestrator) Answerer() *answerer.Answerer { return o.answerer }

// Reviewer returns the PR review orchestrator.
func (o *Orchestrator) Reviewer() *review.Orchestrator { return o.reviewer }

// Pipeline returns the indexing pipeline.
func (o *Orchestrator) Pipeline() *indexer.Pipeline { return o.pipeline }

// Metering returns the usage sink.
func (o *Orchestrator) Metering() metering.Sink { return o.sink }

// Config returns the effective configuration.
func (o *Orchestrator) Config() config.Config { return o.cfg }

func vectorEnabled() bool {
	raw := strings.TrimSpace(os.Getenv("VECTOR_ENABLED"))
	if raw == "" {
		return true
	}
	enabled, err := strconv.ParseBool(raw)
	if err != nil {
		return true
	}
	return enabled
}
