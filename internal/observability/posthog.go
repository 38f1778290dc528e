package observability

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/posthog/posthog-go"

	"marketbrief/internal/config"
	"marketbrief/internal/logger"
)

// distinctID is the actor recorded on pipeline events.
const distinctID = "marketbrief"

// PostHogClient wraps the PostHog SDK for run analytics
type PostHogClient struct {
	client  posthog.Client
	enabled bool
	log     *slog.Logger
}

// EventProperties contains properties for an event
type EventProperties map[string]interface{}

// NewPostHogClient creates a client from the posthog config section. A
// disabled section yields a client whose methods are no-ops.
func NewPostHogClient(cfg config.PostHog) (*PostHogClient, error) {
	if !cfg.Enabled {
		return Disabled(), nil
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("PostHog enabled but missing API key")
	}

	client, err := posthog.NewWithConfig(cfg.APIKey, posthog.Config{
		Endpoint: cfg.Host,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create PostHog client: %w", err)
	}

	return &PostHogClient{
		client:  client,
		enabled: true,
		log:     logger.Get(),
	}, nil
}

// Disabled returns a client that drops every event.
func Disabled() *PostHogClient {
	return &PostHogClient{log: logger.Get()}
}

// IsEnabled returns whether PostHog tracking is enabled
func (p *PostHogClient) IsEnabled() bool {
	return p != nil && p.enabled
}

// Capture sends an event to PostHog
func (p *PostHogClient) Capture(_ context.Context, event string, properties EventProperties) error {
	if !p.IsEnabled() {
		return nil
	}

	props := posthog.NewProperties()
	for k, v := range properties {
		props.Set(k, v)
	}

	if err := p.client.Enqueue(posthog.Capture{
		DistinctId: distinctID,
		Event:      event,
		Properties: props,
	}); err != nil {
		p.log.Warn("Failed to enqueue analytics event", "event", event, "error", err)
		return err
	}
	return nil
}

// TrackLLMCall tracks one model call for cost and latency monitoring
func (p *PostHogClient) TrackLLMCall(ctx context.Context, provider, model string, tokens int, latencyMs int64, success bool) error {
	return p.Capture(ctx, "llm_call", EventProperties{
		"provider":   provider,
		"model":      model,
		"tokens":     tokens,
		"latency_ms": latencyMs,
		"success":    success,
	})
}

// TrackReportGenerated tracks a finished generation run
func (p *PostHogClient) TrackReportGenerated(ctx context.Context, runID string, articleCount, attempts int, score float64, passed bool, durationMs int64) error {
	return p.Capture(ctx, "report_generated", EventProperties{
		"run_id":        runID,
		"article_count": articleCount,
		"attempts":      attempts,
		"quality_score": score,
		"passed":        passed,
		"duration_ms":   durationMs,
	})
}

// TrackError tracks when an error occurs
func (p *PostHogClient) TrackError(ctx context.Context, component string, err error) error {
	if err == nil {
		return nil
	}
	return p.Capture(ctx, "error_occurred", EventProperties{
		"error_message": err.Error(),
		"component":     component,
	})
}

// Shutdown flushes pending events and closes the client
func (p *PostHogClient) Shutdown(_ context.Context) error {
	if !p.IsEnabled() {
		return nil
	}

	return p.client.Close()
}
