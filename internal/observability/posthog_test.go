package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketbrief/internal/config"
)

func TestNewPostHogClient_Disabled(t *testing.T) {
	client, err := NewPostHogClient(config.PostHog{Enabled: false})
	require.NoError(t, err)
	assert.False(t, client.IsEnabled())

	ctx := context.Background()
	assert.NoError(t, client.TrackLLMCall(ctx, "gemini", "models/gemini-1.5-pro", 100, 42, true))
	assert.NoError(t, client.TrackReportGenerated(ctx, "run", 10, 1, 85, true, 1000))
	assert.NoError(t, client.TrackError(ctx, "pipeline", errors.New("boom")))
	assert.NoError(t, client.Shutdown(ctx))
}

func TestNewPostHogClient_MissingKey(t *testing.T) {
	_, err := NewPostHogClient(config.PostHog{Enabled: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing API key")
}

func TestNilClientIsDisabled(t *testing.T) {
	var client *PostHogClient
	assert.False(t, client.IsEnabled())
	assert.NoError(t, client.Capture(context.Background(), "event", nil))
}

func TestTrackError_NilError(t *testing.T) {
	assert.NoError(t, Disabled().TrackError(context.Background(), "x", nil))
}
