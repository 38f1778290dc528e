package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "marketbrief.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	cfg, err := Load(writeConfig(t, "app:\n  debug: false\n"))
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.AI.Provider)
	assert.Equal(t, "models/gemini-3-flash-preview", cfg.AI.Gemini.Models[0])
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, 500000, cfg.Quality.MaxChars)
	assert.Equal(t, "summary", cfg.Quality.ContentField)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Timeout("gemini"))
	assert.Equal(t, "Asia/Shanghai", cfg.Location().String())
}

func TestLoadOverridesFromFile(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	path := writeConfig(t, `
ai:
  provider: deepseek
  deepseek:
    api_key: sk-test
    timeout: 45s
quality:
  check: true
  max_retries: 2
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "deepseek", cfg.AI.Provider)
	assert.Equal(t, "sk-test", cfg.APIKey("deepseek"))
	assert.Equal(t, 45*time.Second, cfg.Timeout("deepseek"))
	assert.True(t, cfg.Quality.Check)
	assert.Equal(t, 2, cfg.Quality.MaxRetries)
	assert.Equal(t, path, cfg.App.ConfigFile)
}

func TestLoadEnvironmentBinding(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	t.Setenv("GOOGLE_AI_API_KEY", "g-key")

	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)
	assert.Equal(t, "g-key", cfg.APIKey("gemini"))
}

func TestValidateConfigAggregatesErrors(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	_, err := Load(writeConfig(t, `
ai:
  provider: claude
database:
  driver: mysql
quality:
  content_field: body
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration errors:")
	assert.Contains(t, err.Error(), "Unknown AI provider: claude")
	assert.Contains(t, err.Error(), "Unknown database driver: mysql")
	assert.Contains(t, err.Error(), "Unknown content field: body")
}

func TestInvalidDurationRejected(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	_, err := Load(writeConfig(t, "ai:\n  gemini:\n    timeout: soon\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ai.gemini.timeout")
}

func TestInvalidCronRejected(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	_, err := Load(writeConfig(t, "schedule:\n  cron: \"every morning\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schedule.cron")
}

func TestLoadReturnsCachedConfig(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	first, err := Load(writeConfig(t, "posthog:\n  enabled: true\n  api_key: phc_test\n"))
	require.NoError(t, err)

	again, err := Load("")
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, "phc_test", again.PostHog.APIKey)
}
