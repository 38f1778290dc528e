package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketbrief/internal/core"
)

type call struct {
	model, prompt, content string
}

type fakeBackend struct {
	name    string
	replies map[string]string
	errs    map[string]error
	calls   []call
	delay   time.Duration
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) NormalizeModel(model string) string {
	if strings.HasPrefix(model, "models/") {
		return model
	}
	return "models/" + model
}

func (f *fakeBackend) Call(ctx context.Context, model, prompt, content string) (string, core.Usage, error) {
	f.calls = append(f.calls, call{model, prompt, content})
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", core.Usage{}, ctx.Err()
		}
	}
	if err := f.errs[model]; err != nil {
		return "", core.Usage{}, err
	}
	return f.replies[model], core.Usage{TotalTokens: 12}, nil
}

func TestGenerate_FallsBackInOrder(t *testing.T) {
	backend := &fakeBackend{
		name:    "gemini",
		errs:    map[string]error{"models/a": errors.New("quota exceeded")},
		replies: map[string]string{"models/b": "report"},
	}
	gw := NewGateway(backend, []string{"models/a", "models/b", "models/c"})

	text, usage, err := gw.Generate(context.Background(), "模型: "+ModelPlaceholder, "news", Options{})
	require.NoError(t, err)
	assert.Equal(t, "report", text)
	assert.Equal(t, "models/b", usage.Model)
	assert.Equal(t, "gemini", usage.Provider)
	assert.Equal(t, 12, usage.TotalTokens)

	require.Len(t, backend.calls, 2)
	assert.Equal(t, "模型: a", backend.calls[0].prompt)
	assert.Equal(t, "模型: b", backend.calls[1].prompt)
	assert.Equal(t, "news", backend.calls[1].content)
}

func TestGenerate_PreferredModelOnly(t *testing.T) {
	backend := &fakeBackend{
		name:    "gemini",
		replies: map[string]string{"models/gemini-1.5-pro": "ok", "models/a": "other"},
	}
	gw := NewGateway(backend, []string{"models/a"})

	text, usage, err := gw.Generate(context.Background(), "p", "c", Options{PreferredModel: "gemini-1.5-pro"})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, "models/gemini-1.5-pro", usage.Model)
	require.Len(t, backend.calls, 1)
}

func TestGenerate_EmptyTextIsFailure(t *testing.T) {
	backend := &fakeBackend{
		name:    "deepseek",
		replies: map[string]string{"models/a": "   ", "models/b": "real"},
	}
	gw := NewGateway(backend, []string{"models/a", "models/b"})

	text, _, err := gw.Generate(context.Background(), "p", "c", Options{})
	require.NoError(t, err)
	assert.Equal(t, "real", text)
}

func TestGenerate_AllFail(t *testing.T) {
	lastErr := errors.New("model not found")
	backend := &fakeBackend{
		name: "gemini",
		errs: map[string]error{
			"models/a": errors.New("timeout"),
			"models/b": lastErr,
		},
	}
	gw := NewGateway(backend, []string{"models/a", "models/b"})

	_, _, err := gw.Generate(context.Background(), "p", "c", Options{})
	require.Error(t, err)

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "gemini", perr.Provider)
	assert.Equal(t, []string{"models/a", "models/b"}, perr.Attempts)
	assert.ErrorIs(t, err, lastErr)
	assert.Same(t, lastErr, errors.Unwrap(err))
}

func TestGenerate_NoModels(t *testing.T) {
	gw := NewGateway(&fakeBackend{name: "gemini"}, nil)
	_, _, err := gw.Generate(context.Background(), "p", "c", Options{})
	assert.ErrorIs(t, err, ErrNoModels)
}

func TestGenerate_CancelledContext(t *testing.T) {
	backend := &fakeBackend{name: "gemini", replies: map[string]string{"models/a": "x"}}
	gw := NewGateway(backend, []string{"models/a"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := gw.Generate(ctx, "p", "c", Options{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, backend.calls)
}

func TestTracedBackend_AppliesTimeout(t *testing.T) {
	backend := &fakeBackend{name: "gemini", delay: time.Second, replies: map[string]string{"models/a": "x"}}
	traced := NewTracedBackend(backend, nil, 10*time.Millisecond)

	_, _, err := traced.Call(context.Background(), "models/a", "p", "c")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "gemini", traced.Name())
	assert.Equal(t, "models/x", traced.NormalizeModel("x"))
}

func TestTracedBackend_PassesThrough(t *testing.T) {
	backend := &fakeBackend{name: "deepseek", replies: map[string]string{"deepseek-chat": "hello"}}
	traced := NewTracedBackend(backend, nil, 0)

	text, usage, err := traced.Call(context.Background(), "deepseek-chat", "p", "c")
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.Equal(t, 12, usage.TotalTokens)
}

type silentBackend struct{ reply string }

func (silentBackend) Name() string                        { return "silent" }
func (silentBackend) NormalizeModel(model string) string { return model }

func (b silentBackend) Call(context.Context, string, string, string) (string, core.Usage, error) {
	return b.reply, core.Usage{}, nil
}

func TestTracedBackend_EstimatesMissingUsage(t *testing.T) {
	traced := NewTracedBackend(silentBackend{reply: "Hello world"}, nil, 0)

	_, usage, err := traced.Call(context.Background(), "m", "Hello", " world")
	require.NoError(t, err)
	assert.Equal(t, 4, usage.PromptTokens)
	assert.Equal(t, 4, usage.CompletionTokens)
	assert.Equal(t, 8, usage.TotalTokens)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "gemini-1.5-pro", DisplayName("models/gemini-1.5-pro"))
	assert.Equal(t, "deepseek-chat", DisplayName("deepseek-chat"))
}

func TestBackendNormalizeModel(t *testing.T) {
	assert.Equal(t, "models/gemini-1.5-pro", (&GeminiBackend{}).NormalizeModel("gemini-1.5-pro"))
	assert.Equal(t, "models/gemini-1.5-pro", (&GeminiBackend{}).NormalizeModel("models/gemini-1.5-pro"))
	assert.Equal(t, "deepseek-chat", (&DeepSeekBackend{}).NormalizeModel("deepseek-chat"))
}

func TestNewBackends_RequireKeys(t *testing.T) {
	_, err := NewGeminiBackend(context.Background(), GeminiConfig{})
	assert.Error(t, err)
	_, err = NewDeepSeekBackend("", "")
	assert.Error(t, err)

	b, err := NewDeepSeekBackend("key", "")
	require.NoError(t, err)
	assert.Equal(t, "deepseek", b.Name())
}
