package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BACKEND_BASE_URL", "https://api.example.com/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "event-inbox", cfg.ServiceName)
	assert.Equal(t, "127.0.0.1:3000", cfg.HTTPAddr)
	assert.Equal(t, "https://api.example.com", cfg.BackendBaseURL)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.Equal(t, time.Second, cfg.DirectoryRefreshDelay)
	assert.Equal(t, 20*time.Second, cfg.BackendTimeout)
	assert.False(t, cfg.DedupePartnerEvents)
	assert.Equal(t, 1024, cfg.MaxSessions)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("BACKEND_BASE_URL", "http://localhost:8000")
	t.Setenv("POLL_INTERVAL", "5s")
	t.Setenv("DEDUPE_PARTNER_EVENTS", "true")
	t.Setenv("MAX_SESSIONS", "8")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.True(t, cfg.DedupePartnerEvents)
	assert.Equal(t, 8, cfg.MaxSessions)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"missing base url", func(c *Config) { c.BackendBaseURL = "" }, "BACKEND_BASE_URL is required"},
		{"relative base url", func(c *Config) { c.BackendBaseURL = "/api" }, "absolute URL"},
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }, "POLL_INTERVAL"},
		{"zero timeout", func(c *Config) { c.BackendTimeout = 0 }, "BACKEND_TIMEOUT"},
		{"negative refresh delay", func(c *Config) { c.DirectoryRefreshDelay = -time.Second }, "DIRECTORY_REFRESH_DELAY"},
		{"zero rps", func(c *Config) { c.BackendRPS = 0 }, "BACKEND_RPS"},
		{"zero sessions", func(c *Config) { c.MaxSessions = 0 }, "MAX_SESSIONS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				BackendBaseURL: "https://api.example.com",
				BackendTimeout: time.Second,
				BackendRPS:     1,
				BackendBurst:   1,
				PollInterval:   time.Second,
				MaxSessions:    1,
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
