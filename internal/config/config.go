// Package config defines the librarian configuration surface and its loader.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration for the librarian service.
type Config struct {
	AI      AIConfig      `yaml:"ai"`
	History HistoryConfig `yaml:"history"`
	Stream  StreamConfig  `yaml:"stream"`
	Logging LoggingConfig `yaml:"logging"`
}

// AIConfig configures the chat model backend.
//
// The backend speaks the OpenAI-compatible chat completion API, so any
// compatible endpoint works; the defaults target DeepSeek.
type AIConfig struct {
	// Enabled gates construction of the model backend. When false the
	// service starts without chat capability and no credential is required.
	Enabled bool `yaml:"enabled"`

	// APIKey authenticates against the model endpoint. Resolved from the
	// DEEPSEEK_API_KEY environment variable when unset. Required when
	// Enabled is true; startup fails fast without it.
	APIKey string `yaml:"api_key"`

	// BaseURL is the OpenAI-compatible API base URL.
	BaseURL string `yaml:"base_url"`

	// Model is the model name sent with each request.
	Model string `yaml:"model"`

	// Temperature controls sampling creativity, typically 0.0 - 1.0.
	Temperature float32 `yaml:"temperature"`

	// MaxTokens bounds the generated reply length. Raising it reduces
	// mid-answer truncation at the cost of latency.
	MaxTokens int `yaml:"max_tokens"`

	// Timeout bounds each backend call.
	Timeout time.Duration `yaml:"timeout"`

	// WindowSize is the per-session model memory window, in messages.
	WindowSize int `yaml:"window_size"`
}

// HistoryConfig configures the conversation context store.
type HistoryConfig struct {
	// Path is the SQLite database file backing the context store.
	Path string `yaml:"path"`

	// MaxChars caps the serialized context size per user; oldest entries
	// are trimmed first once exceeded.
	MaxChars int `yaml:"max_chars"`

	// TTL is how long cached context stays valid in the in-process cache.
	TTL time.Duration `yaml:"ttl"`
}

// StreamConfig configures simulated streaming delivery.
type StreamConfig struct {
	// UnitDelay is the pause between emitted units.
	UnitDelay time.Duration `yaml:"unit_delay"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults mirrored from the service's reference deployment.
const (
	DefaultBaseURL     = "https://api.deepseek.com/v1"
	DefaultModel       = "deepseek-chat"
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 4096
	DefaultTimeout     = 60 * time.Second
	DefaultWindowSize  = 20

	DefaultHistoryPath     = "librarian.db"
	DefaultHistoryMaxChars = 16000
	DefaultHistoryTTL      = 30 * time.Minute

	DefaultUnitDelay = 25 * time.Millisecond
)

// Default returns a configuration populated with defaults.
func Default() *Config {
	return &Config{
		AI: AIConfig{
			BaseURL:     DefaultBaseURL,
			Model:       DefaultModel,
			Temperature: DefaultTemperature,
			MaxTokens:   DefaultMaxTokens,
			Timeout:     DefaultTimeout,
			WindowSize:  DefaultWindowSize,
		},
		History: HistoryConfig{
			Path:     DefaultHistoryPath,
			MaxChars: DefaultHistoryMaxChars,
			TTL:      DefaultHistoryTTL,
		},
		Stream: StreamConfig{
			UnitDelay: DefaultUnitDelay,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks the configuration for fatal problems.
func (c *Config) Validate() error {
	if c.AI.Enabled && strings.TrimSpace(c.AI.APIKey) == "" {
		return fmt.Errorf("ai.enabled requires an API key (set ai.api_key or DEEPSEEK_API_KEY)")
	}
	if c.AI.MaxTokens < 0 {
		return fmt.Errorf("ai.max_tokens must not be negative")
	}
	if c.History.MaxChars <= 0 {
		return fmt.Errorf("history.max_chars must be positive")
	}
	if c.Stream.UnitDelay < 0 {
		return fmt.Errorf("stream.unit_delay must not be negative")
	}
	return nil
}
