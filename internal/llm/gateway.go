package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"marketbrief/internal/core"
	"marketbrief/internal/logger"
)

// ModelPlaceholder is replaced in prompts with the name of the model serving
// the call.
const ModelPlaceholder = "[使用的具体模型名称]"

// ErrNoModels is returned when a gateway has no candidate model to try.
var ErrNoModels = errors.New("no models configured")

// Backend performs one generation call against a provider. The prompt is the
// system instruction and content the user input.
type Backend interface {
	Name() string
	// NormalizeModel maps a user-supplied model name to the provider's form.
	NormalizeModel(model string) string
	Call(ctx context.Context, model, prompt, content string) (string, core.Usage, error)
}

// ProviderError reports that every candidate model of a provider failed.
type ProviderError struct {
	Provider string
	Attempts []string
	Last     error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("all %s models failed (%s): %v", e.Provider, strings.Join(e.Attempts, ", "), e.Last)
}

func (e *ProviderError) Unwrap() error { return e.Last }

// Options tunes a single Generate call.
type Options struct {
	// PreferredModel restricts the call to one model instead of the
	// configured priority list.
	PreferredModel string
}

// Gateway tries the models of one backend in priority order.
type Gateway struct {
	backend Backend
	models  []string
	log     *slog.Logger
}

// NewGateway creates a gateway over backend with the given model priority.
func NewGateway(backend Backend, models []string) *Gateway {
	return &Gateway{
		backend: backend,
		models:  append([]string(nil), models...),
		log:     logger.Get(),
	}
}

// Provider returns the backend name.
func (g *Gateway) Provider() string { return g.backend.Name() }

// Models returns the configured priority list.
func (g *Gateway) Models() []string { return append([]string(nil), g.models...) }

// Generate returns the text of the first model that answers with a non-empty
// result.
func (g *Gateway) Generate(ctx context.Context, prompt, content string, opts Options) (string, core.Usage, error) {
	candidates := g.models
	if opts.PreferredModel != "" {
		candidates = []string{g.backend.NormalizeModel(opts.PreferredModel)}
	}
	if len(candidates) == 0 {
		return "", core.Usage{}, fmt.Errorf("%s: %w", g.backend.Name(), ErrNoModels)
	}

	var (
		attempts []string
		last     error
	)
	for _, model := range candidates {
		if err := ctx.Err(); err != nil {
			last = err
			break
		}
		attempts = append(attempts, model)

		finalPrompt := strings.ReplaceAll(prompt, ModelPlaceholder, DisplayName(model))
		g.log.Info("Calling model", "provider", g.backend.Name(), "model", model)

		text, usage, err := g.backend.Call(ctx, model, finalPrompt, content)
		if err == nil && strings.TrimSpace(text) == "" {
			err = errors.New("empty response from model")
		}
		if err != nil {
			g.log.Warn("Model call failed", "provider", g.backend.Name(), "model", model, "error", err)
			last = err
			continue
		}

		if usage.Model == "" {
			usage.Model = model
		}
		if usage.Provider == "" {
			usage.Provider = g.backend.Name()
		}
		return text, usage, nil
	}

	return "", core.Usage{}, &ProviderError{Provider: g.backend.Name(), Attempts: attempts, Last: last}
}

// DisplayName strips the resource prefix from a model name.
func DisplayName(model string) string {
	return strings.TrimPrefix(model, "models/")
}
