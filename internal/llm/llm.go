// File path: internal/llm/llm.go
package llm

import (
	"os"
	"strconv"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/codeproof/codeproof/internal/common"
	"github.com/codeproof/codeproof/internal/llm/providers"
)

// Provider re-exports the provider contract for consumers.
type Provider = providers.Provider

// Usage re-exports the token accounting type.
type Usage = providers.Usage

// Generation re-exports the completion result type.
type Generation = providers.Generation

// NewProvider selects the OpenAI provider when OPENAI_API_KEY is set and
// falls back to the deterministic local stub otherwise.
func NewProvider() Provider {
	logger := common.Logger()
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey != "" {
		opts := []option.RequestOption{option.WithAPIKey(apiKey)}
		if timeoutStr := strings.TrimSpace(os.Getenv("OPENAI_HTTP_TIMEOUT")); timeoutStr != "" {
			timeout, err := time.ParseDuration(timeoutStr)
			if err != nil {
				logger.Warn("llm: invalid OPENAI_HTTP_TIMEOUT, using default", "value", timeoutStr, "error", err)
			} else {
				opts = append(opts, option.WithRequestTimeout(timeout))
			}
		}
		if endpoint := strings.TrimSpace(os.Getenv("OPENAI_ENDPOINT")); endpoint != "" {
			logger.Info("llm: using custom endpoint", "endpoint", endpoint)
			opts = append(opts, option.WithBaseURL(endpoint))
		}
		client := openai.NewClient(opts...)
		logger.Info("llm: OpenAI provider selected")
		return providers.NewOpenAIProvider(client)
	}
	logger.Warn("llm: OPENAI_API_KEY not set; falling back to local provider")
	dim := 1536
	if raw := strings.TrimSpace(os.Getenv("VECTOR_DIM")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			dim = parsed
		}
	}
	return providers.NewLocalProvider(dim)
}
