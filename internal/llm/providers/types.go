// File path: internal/llm/providers/types.go
package providers

import "context"

// Usage carries the token counts of one model call; metering derives cost
// from these outside the core.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Generation is the raw result of one completion call.
type Generation struct {
	Text  string `json:"text"`
	Usage Usage  `json:"usage"`
}

// Provider is the language-model contract: phrase-only generation plus
// embeddings. Implementations are interchangeable.
type Provider interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (*Generation, error)
	Embed(ctx context.Context, input []string) ([][]float32, error)
	Name() string
}
