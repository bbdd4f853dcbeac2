// File path: internal/common/telemetry/telemetry.go
package telemetry

import (
	"expvar"
	"sync"
	"time"
)

var (
	initOnce sync.Once

	retrievalTotal     *expvar.Int
	retrievalLatencyMS *expvar.Int

	trigramSearchTotal *expvar.Int
	vectorSearchTotal  *expvar.Int

	snippetFetchTotal *expvar.Int
	snippetCacheHits  *expvar.Int

	llmCallTotal    *expvar.Int
	llmInputTokens  *expvar.Int
	llmOutputTokens *expvar.Int
	embeddingTokens *expvar.Int

	indexRunsTotal  *expvar.Int
	indexFilesTotal *expvar.Int

	findingsTotal *expvar.Map
)

func ensureInit() {
	initOnce.Do(func() {
		retrievalTotal = expvar.NewInt("codeproof_retrieval_total")
		retrievalLatencyMS = expvar.NewInt("codeproof_retrieval_latency_ms")

		trigramSearchTotal = expvar.NewInt("codeproof_trigram_search_total")
		vectorSearchTotal = expvar.NewInt("codeproof_vector_search_total")

		snippetFetchTotal = expvar.NewInt("codeproof_snippet_fetch_total")
		snippetCacheHits = expvar.NewInt("codeproof_snippet_cache_hits")

		llmCallTotal = expvar.NewInt("codeproof_llm_calls_total")
		llmInputTokens = expvar.NewInt("codeproof_llm_input_tokens")
		llmOutputTokens = expvar.NewInt("codeproof_llm_output_tokens")
		embeddingTokens = expvar.NewInt("codeproof_embedding_tokens")

		indexRunsTotal = expvar.NewInt("codeproof_index_runs_total")
		indexFilesTotal = expvar.NewInt("codeproof_index_files_total")

		findingsTotal = expvar.NewMap("codeproof_findings_total")
	})
}

// RecordRetrieval notes a completed hybrid retrieval and its wall time.
func RecordRetrieval(elapsed time.Duration) {
	ensureInit()
	retrievalTotal.Add(1)
	retrievalLatencyMS.Add(elapsed.Milliseconds())
}

// RecordTrigramSearch notes one index-store search leg.
func RecordTrigramSearch() {
	ensureInit()
	trigramSearchTotal.Add(1)
}

// RecordVectorSearch notes one vector-store search leg.
func RecordVectorSearch() {
	ensureInit()
	vectorSearchTotal.Add(1)
}

// RecordSnippetFetch notes a snippet lookup; cached marks a cache hit.
func RecordSnippetFetch(cached bool) {
	ensureInit()
	snippetFetchTotal.Add(1)
	if cached {
		snippetCacheHits.Add(1)
	}
}

// RecordLLMUsage accumulates token counts from a completed model call.
func RecordLLMUsage(inputTokens, outputTokens int64) {
	ensureInit()
	llmCallTotal.Add(1)
	llmInputTokens.Add(inputTokens)
	llmOutputTokens.Add(outputTokens)
}

// RecordEmbeddingTokens accumulates embedding token consumption.
func RecordEmbeddingTokens(tokens int64) {
	ensureInit()
	embeddingTokens.Add(tokens)
}

// RecordIndexRun notes a completed indexing run and the files it covered.
func RecordIndexRun(files int) {
	ensureInit()
	indexRunsTotal.Add(1)
	indexFilesTotal.Add(int64(files))
}

// RecordFinding bumps the per-category finding counter.
func RecordFinding(category string) {
	ensureInit()
	findingsTotal.Add(category, 1)
}
