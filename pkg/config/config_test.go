package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestValidate_RateLimitingDisabled_AllowsZeroValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = false
	// Zero out rate limiting values to ensure they are ignored when disabled.
	cfg.RateLimiting.RequestsPerSecond = 0
	cfg.RateLimiting.Burst = 0

	assert.NoError(t, cfg.Validate())
}

func TestValidate_InvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name: "empty server address",
			mutate: func(c *Config) {
				c.Server.Address = ""
			},
		},
		{
			name: "zero read timeout",
			mutate: func(c *Config) {
				c.Server.ReadTimeout = 0
			},
		},
		{
			name: "negative warmup delay",
			mutate: func(c *Config) {
				c.Capture.WarmupDelay = -time.Second
			},
		},
		{
			name: "zero thumbnail width",
			mutate: func(c *Config) {
				c.Capture.ThumbnailWidth = 0
			},
		},
		{
			name: "thumbnail quality above 100",
			mutate: func(c *Config) {
				c.Capture.ThumbnailQuality = 150
			},
		},
		{
			name: "pong timeout not greater than ping interval",
			mutate: func(c *Config) {
				c.LiveFeed.PingInterval = 30 * time.Second
				c.LiveFeed.PongTimeout = 30 * time.Second
			},
		},
		{
			name: "redis enabled without address",
			mutate: func(c *Config) {
				c.Redis.Enabled = true
				c.Redis.Address = ""
			},
		},
		{
			name: "empty jwt secret",
			mutate: func(c *Config) {
				c.Auth.JWTSecret = ""
			},
		},
		{
			name: "zero token ttl",
			mutate: func(c *Config) {
				c.Auth.TokenTTL = 0
			},
		},
		{
			name: "tracing enabled with bad sample rate",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.SampleRate = 1.5
			},
		},
		{
			name: "rate limiting enabled with zero rps",
			mutate: func(c *Config) {
				c.RateLimiting.Enabled = true
				c.RateLimiting.RequestsPerSecond = 0
			},
		},
		{
			name: "rate limiting enabled with zero burst",
			mutate: func(c *Config) {
				c.RateLimiting.Enabled = true
				c.RateLimiting.Burst = 0
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)

			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Address)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("server:\n  address: \":9090\"\ncapture:\n  thumbnail_quality: 85\n")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, 85, cfg.Capture.ThumbnailQuality)
	// Untouched defaults survive a partial file.
	assert.Equal(t, 320, cfg.Capture.ThumbnailWidth)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CAMCAST_SERVER_ADDRESS", ":7070")
	t.Setenv("CAMCAST_LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Address)
	assert.Equal(t, "debug", cfg.Logging.Level)
}
