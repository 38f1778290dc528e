package llm

import (
	"context"
	"log/slog"
	"time"

	"marketbrief/internal/core"
	"marketbrief/internal/cost"
	"marketbrief/internal/logger"
	"marketbrief/internal/observability"
)

// TracedBackend wraps a Backend with a per-call timeout, call logging and
// PostHog analytics.
type TracedBackend struct {
	backend Backend
	posthog *observability.PostHogClient
	timeout time.Duration
	log     *slog.Logger
}

// NewTracedBackend wraps backend. posthog may be nil and timeout zero.
func NewTracedBackend(backend Backend, posthog *observability.PostHogClient, timeout time.Duration) *TracedBackend {
	return &TracedBackend{
		backend: backend,
		posthog: posthog,
		timeout: timeout,
		log:     logger.Get(),
	}
}

// Name implements Backend.
func (tb *TracedBackend) Name() string { return tb.backend.Name() }

// NormalizeModel implements Backend.
func (tb *TracedBackend) NormalizeModel(model string) string {
	return tb.backend.NormalizeModel(model)
}

// Call implements Backend.
func (tb *TracedBackend) Call(ctx context.Context, model, prompt, content string) (string, core.Usage, error) {
	if tb.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, tb.timeout)
		defer cancel()
	}

	startTime := time.Now()
	text, usage, err := tb.backend.Call(ctx, model, prompt, content)
	latencyMs := time.Since(startTime).Milliseconds()

	if err == nil && usage.TotalTokens == 0 {
		usage = withEstimatedTokens(usage, prompt+content, text)
	}
	tokens := usage.TotalTokens

	if err != nil {
		tb.log.Warn("LLM call failed", "provider", tb.Name(), "model", model, "latency_ms", latencyMs, "error", err)
	} else {
		tb.log.Info("LLM call completed", "provider", tb.Name(), "model", model, "latency_ms", latencyMs, "tokens", tokens)
	}

	if tb.posthog.IsEnabled() {
		_ = tb.posthog.TrackLLMCall(ctx, tb.Name(), model, tokens, latencyMs, err == nil)
	}

	return text, usage, err
}

// withEstimatedTokens fills token counts for backends that report none.
func withEstimatedTokens(u core.Usage, input, output string) core.Usage {
	u.PromptTokens = cost.EstimateTokenCount(input)
	u.CompletionTokens = cost.EstimateTokenCount(output)
	u.TotalTokens = u.PromptTokens + u.CompletionTokens
	return u
}
