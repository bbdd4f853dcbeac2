// File path: internal/llm/providers/local.go
package providers

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
)

// LocalProvider is a deterministic offline stand-in used when no API key is
// configured. Embeddings are stable hash projections so retrieval stays
// exercisable in development; generation is an honest stub the answerer's
// validation layer treats as unusable evidence.
type LocalProvider struct {
	dim int
}

// NewLocalProvider builds a stub provider emitting vectors of the given
// dimension.
func NewLocalProvider(dim int) *LocalProvider {
	if dim <= 0 {
		dim = 1536
	}
	return &LocalProvider{dim: dim}
}

func (l *LocalProvider) Generate(ctx context.Context, prompt string, maxTokens int) (*Generation, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("no prompt provided")
	}
	text := "[local-stub] model output unavailable without an API key"
	return &Generation{
		Text:  text,
		Usage: Usage{InputTokens: int64(len(prompt) / 4), OutputTokens: int64(len(text) / 4)},
	}, nil
}

func (l *LocalProvider) Embed(ctx context.Context, input []string) ([][]float32, error) {
	vectors := make([][]float32, len(input))
	for i, text := range input {
		vectors[i] = l.project(text)
	}
	return vectors, nil
}

// project folds token hashes into a fixed-size unit vector. Identical text
// always produces the identical vector.
func (l *LocalProvider) project(text string) []float32 {
	vector := make([]float32, l.dim)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(token))
		sum := h.Sum32()
		vector[int(sum)%l.dim] += 1
	}
	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vector {
			vector[i] *= scale
		}
	}
	return vector
}

func (l *LocalProvider) Name() string {
	return "local"
}
