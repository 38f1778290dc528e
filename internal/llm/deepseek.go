package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"marketbrief/internal/core"
)

// DefaultDeepSeekURL is the OpenAI-compatible DeepSeek endpoint.
const DefaultDeepSeekURL = "https://api.deepseek.com"

// DeepSeekBackend calls DeepSeek over its OpenAI-compatible chat API.
type DeepSeekBackend struct {
	client *openai.Client
}

// NewDeepSeekBackend creates a DeepSeek backend. An empty baseURL selects
// DefaultDeepSeekURL.
func NewDeepSeekBackend(apiKey, baseURL string) (*DeepSeekBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("deepseek API key is required. Set DEEPSEEK_API_KEY environment variable or ai.deepseek.api_key in config file")
	}
	if baseURL == "" {
		baseURL = DefaultDeepSeekURL
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &DeepSeekBackend{client: openai.NewClientWithConfig(cfg)}, nil
}

// Name implements Backend.
func (b *DeepSeekBackend) Name() string { return "deepseek" }

// NormalizeModel implements Backend; DeepSeek model names are used as given.
func (b *DeepSeekBackend) NormalizeModel(model string) string { return model }

// Call implements Backend.
func (b *DeepSeekBackend) Call(ctx context.Context, model, prompt, content string) (string, core.Usage, error) {
	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
			{Role: openai.ChatMessageRoleUser, Content: content},
		},
	})
	if err != nil {
		return "", core.Usage{}, fmt.Errorf("deepseek chat completion failed: %w", err)
	}

	usage := core.Usage{
		Model:            model,
		Provider:         b.Name(),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	if resp.Model != "" {
		usage.Model = resp.Model
	}

	if len(resp.Choices) == 0 {
		return "", usage, nil
	}
	return resp.Choices[0].Message.Content, usage, nil
}
