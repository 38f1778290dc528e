package llm

import (
	"context"
	"fmt"

	"marketbrief/internal/config"
	"marketbrief/internal/observability"
)

// NewFromConfig builds a traced gateway for the named provider. An empty
// provider selects the configured default.
func NewFromConfig(ctx context.Context, cfg *config.Config, provider string, posthog *observability.PostHogClient) (*Gateway, error) {
	if provider == "" {
		provider = cfg.AI.Provider
	}

	var (
		backend Backend
		models  []string
		err     error
	)
	switch provider {
	case "gemini":
		backend, err = NewGeminiBackend(ctx, GeminiConfig{
			APIKey:      cfg.APIKey(provider),
			MaxTokens:   cfg.AI.Gemini.MaxTokens,
			Temperature: cfg.AI.Gemini.Temperature,
		})
		models = cfg.AI.Gemini.Models
	case "deepseek":
		backend, err = NewDeepSeekBackend(cfg.APIKey(provider), cfg.AI.DeepSeek.BaseURL)
		models = cfg.AI.DeepSeek.Models
	default:
		return nil, fmt.Errorf("unknown AI provider: %s", provider)
	}
	if err != nil {
		return nil, err
	}

	return NewGateway(NewTracedBackend(backend, posthog, cfg.Timeout(provider)), models), nil
}
