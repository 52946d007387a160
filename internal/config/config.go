package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// envPrefix namespaces the variables. Each one is looked up as
// VETCHAT_<NAME> first and falls back to the bare name.
const envPrefix = "VETCHAT"

// Config holds the chat service configuration. Values come from the
// environment, optionally seeded from a .env file.
type Config struct {
	Port     string `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Practice backend. The dashboard and this service share the same
	// variable name for the base URL.
	BackendURL     string        `envconfig:"NEXT_PUBLIC_API_URL" required:"true"`
	BackendTimeout time.Duration `envconfig:"BACKEND_TIMEOUT" default:"30s"`
	AuthCookie     string        `envconfig:"AUTH_COOKIE" default:"token"`

	// LLM provider
	OpenAIAPIKey       string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL      string `envconfig:"OPENAI_BASE_URL"`
	OpenAIChatModel    string `envconfig:"OPENAI_MODEL_CHAT" default:"gpt-4o-mini"`
	OpenAISummaryModel string `envconfig:"OPENAI_MODEL_SUMMARY"`

	// Summarization lock. Empty RedisAddr disables locking.
	RedisAddr      string        `envconfig:"REDIS_ADDR"`
	RedisPassword  string        `envconfig:"REDIS_PASSWORD"`
	SummaryLockTTL time.Duration `envconfig:"SUMMARY_LOCK_TTL" default:"2m"`

	// Summarization journal. Empty DatabaseURL disables it.
	DatabaseURL          string `envconfig:"DATABASE_URL"`
	SummaryNotifyChannel string `envconfig:"SUMMARY_NOTIFY_CHANNEL" default:"conversation_summaries"`

	MaxBodyBytes int64 `envconfig:"MAX_BODY_BYTES" default:"26214400"`
	RecentWindow int   `envconfig:"RECENT_WINDOW" default:"15"`
	PageSize     int   `envconfig:"PAGE_SIZE" default:"100"`
	MaxPages     int   `envconfig:"MAX_PAGES" default:"100"`
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first when present; existing variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot express.
func (c *Config) Validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("config: NEXT_PUBLIC_API_URL must be set")
	}
	if c.RecentWindow <= 0 {
		return fmt.Errorf("config: RECENT_WINDOW must be positive, got %d", c.RecentWindow)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("config: PAGE_SIZE must be positive, got %d", c.PageSize)
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("config: MAX_PAGES must be positive, got %d", c.MaxPages)
	}
	if c.OpenAISummaryModel == "" {
		c.OpenAISummaryModel = c.OpenAIChatModel
	}
	return nil
}
