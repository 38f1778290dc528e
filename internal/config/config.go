package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App      App      `mapstructure:"app"`
	AI       AI       `mapstructure:"ai"`
	Database Database `mapstructure:"database"`
	Output   Output   `mapstructure:"output"`
	Quality  Quality  `mapstructure:"quality"`
	Server   Server   `mapstructure:"server"`
	PostHog  PostHog  `mapstructure:"posthog"`
	Logging  Logging  `mapstructure:"logging"`
	Schedule Schedule `mapstructure:"schedule"`
}

// App holds general application configuration
type App struct {
	Debug      bool   `mapstructure:"debug"`
	Timezone   string `mapstructure:"timezone"`
	ConfigFile string `mapstructure:"config_file"`
}

// AI holds LLM provider configuration
type AI struct {
	Provider string         `mapstructure:"provider"`
	Gemini   GeminiConfig   `mapstructure:"gemini"`
	DeepSeek DeepSeekConfig `mapstructure:"deepseek"`
}

// GeminiConfig holds Google Gemini configuration
type GeminiConfig struct {
	APIKey      string   `mapstructure:"api_key"`
	Models      []string `mapstructure:"models"`
	Timeout     string   `mapstructure:"timeout"`
	MaxTokens   int32    `mapstructure:"max_tokens"`
	Temperature float32  `mapstructure:"temperature"`
}

// DeepSeekConfig holds DeepSeek (OpenAI-compatible) configuration
type DeepSeekConfig struct {
	APIKey  string   `mapstructure:"api_key"`
	Models  []string `mapstructure:"models"`
	BaseURL string   `mapstructure:"base_url"`
	Timeout string   `mapstructure:"timeout"`
}

// Database holds article store configuration
type Database struct {
	Driver string `mapstructure:"driver"` // sqlite3 or postgres
	DSN    string `mapstructure:"dsn"`
}

// Output holds report output configuration
type Output struct {
	Directory string `mapstructure:"directory"`
	HTML      bool   `mapstructure:"html"`
	PromptDir string `mapstructure:"prompt_dir"`
}

// Quality holds scoring and report gate configuration
type Quality struct {
	FilterConfig string `mapstructure:"filter_config"` // path to the scoring YAML
	Check        bool   `mapstructure:"check"`
	MaxRetries   int    `mapstructure:"max_retries"`
	Verify       bool   `mapstructure:"verify"`
	SnapshotFile string `mapstructure:"snapshot_file"`
	MaxChars     int    `mapstructure:"max_chars"`
	ContentField string `mapstructure:"content_field"`
}

// Server holds HTTP API configuration
type Server struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	CORS         CORS          `mapstructure:"cors"`
	RateLimit    RateLimit     `mapstructure:"rate_limit"`
}

// CORS holds cross-origin configuration
type CORS struct {
	Enabled        bool     `mapstructure:"enabled"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// RateLimit holds per-client request limits
type RateLimit struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

// PostHog holds product analytics configuration
type PostHog struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
	Host    string `mapstructure:"host"`
}

// Logging holds logging configuration
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Schedule holds the cron configuration for unattended runs
type Schedule struct {
	Cron string `mapstructure:"cron"`
}

var globalConfig *Config

// Load loads the configuration from various sources
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".marketbrief")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	config.App.ConfigFile = viper.ConfigFileUsed()

	if err := postProcessConfig(config); err != nil {
		return nil, fmt.Errorf("error post-processing config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.timezone", "Asia/Shanghai")

	viper.SetDefault("ai.provider", "gemini")
	viper.SetDefault("ai.gemini.models", []string{
		"models/gemini-3-flash-preview",
		"models/gemini-3-pro-preview",
		"models/gemini-2.0-flash-exp",
		"models/gemini-1.5-pro",
		"models/gemini-1.5-flash",
	})
	viper.SetDefault("ai.gemini.timeout", "300s")
	viper.SetDefault("ai.gemini.max_tokens", 16384)
	viper.SetDefault("ai.gemini.temperature", 0.7)
	viper.SetDefault("ai.deepseek.models", []string{"deepseek-chat"})
	viper.SetDefault("ai.deepseek.base_url", "https://api.deepseek.com")
	viper.SetDefault("ai.deepseek.timeout", "300s")

	viper.SetDefault("database.driver", "sqlite3")
	viper.SetDefault("database.dsn", "data/news_data.db")

	viper.SetDefault("output.directory", "docs/archive")
	viper.SetDefault("output.html", false)
	viper.SetDefault("output.prompt_dir", "task")

	viper.SetDefault("quality.filter_config", "config/quality_filter_config.yml")
	viper.SetDefault("quality.check", false)
	viper.SetDefault("quality.max_retries", 0)
	viper.SetDefault("quality.verify", false)
	viper.SetDefault("quality.max_chars", 500000)
	viper.SetDefault("quality.content_field", "summary")

	viper.SetDefault("server.host", "127.0.0.1")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "60s")
	viper.SetDefault("server.cors.enabled", false)
	viper.SetDefault("server.rate_limit.enabled", true)
	viper.SetDefault("server.rate_limit.rps", 5.0)
	viper.SetDefault("server.rate_limit.burst", 10)

	viper.SetDefault("posthog.enabled", false)
	viper.SetDefault("posthog.host", "https://app.posthog.com")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("schedule.cron", "30 7 * * *")
}

// bindEnvironmentVariables sets up flexible environment variable binding
func bindEnvironmentVariables() {
	bindEnvKeys("ai.gemini.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY",
	})

	bindEnvKeys("ai.deepseek.api_key", []string{
		"DEEPSEEK_API_KEY",
	})

	bindEnvKeys("ai.provider", []string{
		"MARKETBRIEF_PROVIDER",
		"AI_PROVIDER",
	})

	bindEnvKeys("database.dsn", []string{
		"MARKETBRIEF_DB",
		"DATABASE_URL",
	})

	bindEnvKeys("posthog.api_key", []string{
		"POSTHOG_API_KEY",
	})

	bindEnvKeys("logging.level", []string{
		"LOG_LEVEL",
	})

	bindEnvKeys("app.debug", []string{
		"DEBUG",
		"MARKETBRIEF_DEBUG",
	})
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

// postProcessConfig applies post-processing to configuration values
func postProcessConfig(config *Config) error {
	if config.Output.Directory != "" {
		config.Output.Directory = expandPath(config.Output.Directory)
	}
	if config.Quality.FilterConfig != "" {
		config.Quality.FilterConfig = expandPath(config.Quality.FilterConfig)
	}
	if config.Database.Driver == "sqlite3" && config.Database.DSN != "" {
		config.Database.DSN = expandPath(config.Database.DSN)
	}

	durations := map[string]string{
		"ai.gemini.timeout":   config.AI.Gemini.Timeout,
		"ai.deepseek.timeout": config.AI.DeepSeek.Timeout,
	}

	for key, duration := range durations {
		if duration != "" {
			if _, err := time.ParseDuration(duration); err != nil {
				return fmt.Errorf("invalid duration for %s: %s", key, duration)
			}
		}
	}

	if _, err := time.LoadLocation(config.App.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", config.App.Timezone, err)
	}

	if spec := config.Schedule.Cron; spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("invalid schedule.cron %q: %w", spec, err)
		}
	}

	return nil
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

// validateConfig checks structural settings. API keys are checked lazily by
// the command that needs a provider.
func validateConfig(config *Config) error {
	var errors []string

	switch config.AI.Provider {
	case "gemini", "deepseek":
	default:
		errors = append(errors, fmt.Sprintf("Unknown AI provider: %s. Supported: gemini, deepseek", config.AI.Provider))
	}

	switch config.Database.Driver {
	case "sqlite3", "postgres":
	default:
		errors = append(errors, fmt.Sprintf("Unknown database driver: %s. Supported: sqlite3, postgres", config.Database.Driver))
	}

	switch config.Quality.ContentField {
	case "summary", "content", "auto":
	default:
		errors = append(errors, fmt.Sprintf("Unknown content field: %s. Supported: summary, content, auto", config.Quality.ContentField))
	}

	if config.Quality.MaxRetries < 0 {
		errors = append(errors, "quality.max_retries must not be negative")
	}

	if config.PostHog.Enabled && config.PostHog.APIKey == "" {
		errors = append(errors, "PostHog enabled but missing API key. Set POSTHOG_API_KEY")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// APIKey returns the key for the named provider.
func (c *Config) APIKey(provider string) string {
	switch provider {
	case "deepseek":
		return c.AI.DeepSeek.APIKey
	default:
		return c.AI.Gemini.APIKey
	}
}

// Timeout returns the per-call timeout for the named provider.
func (c *Config) Timeout(provider string) time.Duration {
	raw := c.AI.Gemini.Timeout
	if provider == "deepseek" {
		raw = c.AI.DeepSeek.Timeout
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// Location returns the configured report timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Reset clears the global configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viper.Reset()
}
