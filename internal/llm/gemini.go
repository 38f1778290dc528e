package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"marketbrief/internal/core"
)

// GeminiConfig holds the generation settings of the Gemini backend.
type GeminiConfig struct {
	APIKey      string
	MaxTokens   int32
	Temperature float32
}

// GeminiBackend calls Google Gemini through the genai SDK.
type GeminiBackend struct {
	client *genai.Client
	cfg    GeminiConfig
}

// NewGeminiBackend creates a Gemini backend.
func NewGeminiBackend(ctx context.Context, cfg GeminiConfig) (*GeminiBackend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required. Set GEMINI_API_KEY environment variable or ai.gemini.api_key in config file")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiBackend{client: client, cfg: cfg}, nil
}

// Name implements Backend.
func (b *GeminiBackend) Name() string { return "gemini" }

// NormalizeModel adds the models/ resource prefix.
func (b *GeminiBackend) NormalizeModel(model string) string {
	if strings.HasPrefix(model, "models/") {
		return model
	}
	return "models/" + model
}

// Call implements Backend.
func (b *GeminiBackend) Call(ctx context.Context, model, prompt, content string) (string, core.Usage, error) {
	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: content}},
		Role:  "user",
	}}

	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: prompt}}},
	}
	if b.cfg.MaxTokens > 0 {
		config.MaxOutputTokens = b.cfg.MaxTokens
	}
	if b.cfg.Temperature > 0 {
		temp := b.cfg.Temperature
		config.Temperature = &temp
	}

	resp, err := b.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return "", core.Usage{}, fmt.Errorf("failed to generate content: %w", err)
	}

	usage := core.Usage{Model: model, Provider: b.Name()}
	if md := resp.UsageMetadata; md != nil {
		usage.PromptTokens = int(md.PromptTokenCount)
		usage.CompletionTokens = int(md.CandidatesTokenCount)
		usage.TotalTokens = int(md.TotalTokenCount)
	}

	return resp.Text(), usage, nil
}
