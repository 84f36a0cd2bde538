package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the inbox gateway.
type Config struct {
	// Service settings
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"event-inbox"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:"127.0.0.1:3000"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"console"`
	StaticDir       string        `env:"STATIC_DIR" envDefault:"./public"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Event-planning backend
	BackendBaseURL string        `env:"BACKEND_BASE_URL"`
	BackendTimeout time.Duration `env:"BACKEND_TIMEOUT" envDefault:"20s"`
	BackendRPS     float64       `env:"BACKEND_RPS" envDefault:"10"`
	BackendBurst   int           `env:"BACKEND_BURST" envDefault:"20"`

	// Inbox behaviour
	PollInterval          time.Duration `env:"POLL_INTERVAL" envDefault:"30s"`
	DirectoryRefreshDelay time.Duration `env:"DIRECTORY_REFRESH_DELAY" envDefault:"1s"`
	DedupePartnerEvents   bool          `env:"DEDUPE_PARTNER_EVENTS" envDefault:"false"`
	MaxSessions           int           `env:"MAX_SESSIONS" envDefault:"1024"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that env defaults cannot guarantee.
func (c *Config) Validate() error {
	base := strings.TrimSpace(c.BackendBaseURL)
	if base == "" {
		return fmt.Errorf("BACKEND_BASE_URL is required")
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("BACKEND_BASE_URL must be an absolute URL, got %q", base)
	}
	c.BackendBaseURL = strings.TrimRight(base, "/")

	if c.BackendTimeout <= 0 {
		return fmt.Errorf("BACKEND_TIMEOUT must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}
	if c.DirectoryRefreshDelay < 0 {
		return fmt.Errorf("DIRECTORY_REFRESH_DELAY must not be negative")
	}
	if c.BackendRPS <= 0 {
		return fmt.Errorf("BACKEND_RPS must be positive")
	}
	if c.BackendBurst <= 0 {
		c.BackendBurst = 1
	}
	if c.MaxSessions <= 0 {
		return fmt.Errorf("MAX_SESSIONS must be positive")
	}
	return nil
}

// LoadEnvFiles overlays .env files found next to the binary or one level up.
func LoadEnvFiles() {
	paths := []string{".env", "../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
