// File path: internal/llm/providers/openai_client.go
package providers

import (
	"context"
	"fmt"
	"os"

	openai "github.com/openai/openai-go/v2"

	"github.com/codeproof/codeproof/internal/common"
	"github.com/codeproof/codeproof/internal/common/telemetry"
)

// OpenAIProvider backs generation and embeddings with the OpenAI API.
type OpenAIProvider struct {
	client     openai.Client
	chatModel  string
	embedModel string
}

// NewOpenAIProvider wraps a configured client. Model names come from
// OPENAI_CHAT_MODEL / OPENAI_EMBED_MODEL with sensible defaults.
func NewOpenAIProvider(client openai.Client) *OpenAIProvider {
	chatModel := os.Getenv("OPENAI_CHAT_MODEL")
	if chatModel == "" {
		chatModel = string(openai.ChatModelGPT4o)
	}
	embedModel := os.Getenv("OPENAI_EMBED_MODEL")
	if embedModel == "" {
		embedModel = string(openai.EmbeddingModelTextEmbedding3Small)
	}
	common.Logger().Info("llm: OpenAI provider configured", "chat_model", chatModel, "embed_model", embedModel)
	return &OpenAIProvider{client: client, chatModel: chatModel, embedModel: embedModel}
}

func (o *OpenAIProvider) Generate(ctx context.Context, prompt string, maxTokens int) (*Generation, error) {
	logger := common.Logger()
	logger.Debug("llm: sending completion request", "model", o.chatModel, "max_tokens", maxTokens)
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.chatModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		logger.Error("llm: completion failed", "error", err)
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("llm: no choices returned")
	}
	usage := Usage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	telemetry.RecordLLMUsage(usage.InputTokens, usage.OutputTokens)
	return &Generation{Text: resp.Choices[0].Message.Content, Usage: usage}, nil
}

func (o *OpenAIProvider) Embed(ctx context.Context, input []string) ([][]float32, error) {
	if len(input) == 0 {
		return nil, nil
	}
	logger := common.Logger()
	logger.Debug("llm: creating embeddings", "model", o.embedModel, "items", len(input))
	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(o.embedModel),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: input},
	})
	if err != nil {
		logger.Error("llm: embedding request failed", "error", err)
		return nil, err
	}
	telemetry.RecordEmbeddingTokens(resp.Usage.PromptTokens)
	vectors := make([][]float32, 0, len(resp.Data))
	for _, data := range resp.Data {
		vector := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			vector[i] = float32(v)
		}
		vectors = append(vectors, vector)
	}
	return vectors, nil
}

func (o *OpenAIProvider) Name() string {
	return "openai"
}
