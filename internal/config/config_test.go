// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lexgate-dev/lexgate/internal/config"
	"github.com/lexgate-dev/lexgate/internal/provider"
	lexerr "github.com/lexgate-dev/lexgate/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8187", cfg.Server.Listen)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.True(t, cfg.Server.RateLimit.Enabled)

	assert.Equal(t, 0, cfg.Retry.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.Retry.InitialBackoff)
	assert.Equal(t, 2.0, cfg.Retry.BackoffMultiplier)
	assert.Equal(t, 5*time.Second, cfg.Retry.MaxBackoff)

	assert.Equal(t, 15*time.Second, cfg.Cooldowns.QueueExceeded)
	assert.Equal(t, 30*time.Second, cfg.Cooldowns.RateLimited)
	assert.Equal(t, 60*time.Second, cfg.Cooldowns.QuotaExhausted)
	assert.Equal(t, 30*time.Second, cfg.Cooldowns.ServerError)
	assert.Equal(t, 30*time.Second, cfg.Cooldowns.Unclassified)
	assert.Zero(t, cfg.Cooldowns.AuthError)

	assert.True(t, cfg.Audit.Enabled)
	assert.Equal(t, 256, cfg.Audit.RecentBuffer)
	assert.NotEmpty(t, cfg.DataDir)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "lexgate.yaml")

	content := `
server:
  listen: "0.0.0.0:9999"
providers:
  anthropic:
    enabled: true
    keys:
      - sk-ant-test
limits:
  websearch:
    limit: 30
    window: 60s
cooldowns:
  rate_limited: 45s
`
	err := os.WriteFile(cfgPath, []byte(content), 0o600)
	require.NoError(t, err)

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9999", cfg.Server.Listen)
	assert.True(t, cfg.Providers["anthropic"].Enabled)
	assert.Equal(t, []string{"sk-ant-test"}, cfg.Providers["anthropic"].Keys)
	assert.Equal(t, 30, cfg.Limits["websearch"].Limit)
	assert.Equal(t, time.Minute, cfg.Limits["websearch"].Window)
	assert.Equal(t, 45*time.Second, cfg.Cooldowns.RateLimited)
	// Untouched sections keep their defaults.
	assert.Equal(t, 15*time.Second, cfg.Cooldowns.QueueExceeded)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("LEXGATE_SERVER_LISTEN", "10.0.0.1:8080")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:8080", cfg.Server.Listen)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, lexerr.HasCode(err, lexerr.CodeConfigLoadReadFailure))
}

func TestLoad_ValidationCalledAtLoadTime(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "lexgate.yaml")

	content := `
logging:
  level: "loud"
`
	err := os.WriteFile(cfgPath, []byte(content), 0o600)
	require.NoError(t, err)

	_, err = config.Load(cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
}

// validConfig returns a minimal config that passes all validation.
func validConfig() *config.Config {
	return &config.Config{
		DataDir: "/tmp/lexgate-test",
		Logging: config.LoggingConfig{Level: "info", Format: "text"},
		Server: config.ServerConfig{
			Listen:       "127.0.0.1:8187",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			RateLimit:    config.IPRateLimitConfig{Enabled: true, RPS: 10, Burst: 20},
		},
		Providers: map[string]config.ProviderConfig{
			"anthropic": {Enabled: true, Keys: []string{"sk-ant-test"}},
		},
		Retry: config.RetryConfig{
			InitialBackoff:    200 * time.Millisecond,
			BackoffMultiplier: 2.0,
			MaxBackoff:        5 * time.Second,
		},
		Cooldowns: config.CooldownsConfig{
			QueueExceeded:  15 * time.Second,
			RateLimited:    30 * time.Second,
			QuotaExhausted: time.Minute,
			ServerError:    30 * time.Second,
			Unclassified:   30 * time.Second,
		},
		Limits: map[string]config.LimitConfig{
			"websearch": {Limit: 30, Window: time.Minute},
		},
		Audit: config.AuditConfig{Enabled: true, RecentBuffer: 256},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.Empty(t, validConfig().Validate())
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "loud"
	cfg.Server.Listen = "no-port"
	cfg.Retry.BackoffMultiplier = 0.5

	errs := cfg.Validate()
	assert.GreaterOrEqual(t, len(errs), 3)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		keyword string
	}{
		{"bad logging level", func(c *config.Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad logging format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"empty listen", func(c *config.Config) { c.Server.Listen = "" }, "server.listen"},
		{"listen without port", func(c *config.Config) { c.Server.Listen = "localhost" }, "server.listen"},
		{"listen port not a number", func(c *config.Config) { c.Server.Listen = "127.0.0.1:http" }, "port must be a number"},
		{"listen port out of range", func(c *config.Config) { c.Server.Listen = "127.0.0.1:99999" }, "between 1 and 65535"},
		{"negative read timeout", func(c *config.Config) { c.Server.ReadTimeout = -time.Second }, "server.read_timeout"},
		{"zero rps while enabled", func(c *config.Config) { c.Server.RateLimit.RPS = 0 }, "rate_limit.rps"},
		{"zero burst while enabled", func(c *config.Config) { c.Server.RateLimit.Burst = 0 }, "rate_limit.burst"},
		{"unknown provider", func(c *config.Config) {
			c.Providers["acme"] = config.ProviderConfig{Enabled: true}
		}, "not a known provider"},
		{"bad base url", func(c *config.Config) {
			pc := c.Providers["anthropic"]
			pc.BaseURL = "not a url"
			c.Providers["anthropic"] = pc
		}, "base_url"},
		{"ftp base url", func(c *config.Config) {
			pc := c.Providers["anthropic"]
			pc.BaseURL = "ftp://api.anthropic.com"
			c.Providers["anthropic"] = pc
		}, "base_url"},
		{"negative max attempts", func(c *config.Config) { c.Retry.MaxAttempts = -1 }, "retry.max_attempts"},
		{"negative attempt timeout", func(c *config.Config) { c.Retry.AttemptTimeout = -time.Second }, "retry.attempt_timeout"},
		{"multiplier below one", func(c *config.Config) { c.Retry.BackoffMultiplier = 0.5 }, "retry.backoff_multiplier"},
		{"max backoff below initial", func(c *config.Config) {
			c.Retry.InitialBackoff = time.Second
			c.Retry.MaxBackoff = 100 * time.Millisecond
		}, "retry.max_backoff"},
		{"negative cooldown", func(c *config.Config) { c.Cooldowns.RateLimited = -time.Second }, "cooldowns.rate_limited"},
		{"zero limit", func(c *config.Config) {
			c.Limits["websearch"] = config.LimitConfig{Limit: 0, Window: time.Minute}
		}, "limits.websearch.limit"},
		{"zero window", func(c *config.Config) {
			c.Limits["websearch"] = config.LimitConfig{Limit: 30, Window: 0}
		}, "limits.websearch.window"},
		{"negative recent buffer", func(c *config.Config) { c.Audit.RecentBuffer = -1 }, "audit.recent_buffer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			errs := cfg.Validate()
			require.NotEmpty(t, errs)

			found := false
			for _, err := range errs {
				if strings.Contains(err.Error(), tt.keyword) {
					found = true
					break
				}
			}
			assert.True(t, found, "no validation error mentioned %q: %v", tt.keyword, errs)
		})
	}
}

func TestValidate_RateLimitSkippedWhenDisabled(t *testing.T) {
	cfg := validConfig()
	cfg.Server.RateLimit = config.IPRateLimitConfig{Enabled: false, RPS: 0, Burst: 0}

	assert.Empty(t, cfg.Validate())
}

func TestEnabledProviders_StableOrder(t *testing.T) {
	cfg := validConfig()
	cfg.Providers = map[string]config.ProviderConfig{
		"websearch": {Enabled: true, Keys: []string{"k"}},
		"anthropic": {Enabled: true, Keys: []string{"k"}},
		"openai":    {Enabled: false},
	}

	got := cfg.EnabledProviders()
	assert.Equal(t, []provider.Name{provider.Anthropic, provider.WebSearch}, got)
}

func TestAuditConfig_JournalFile(t *testing.T) {
	a := config.AuditConfig{JournalPath: "/var/lib/lexgate/audit.db"}
	assert.Equal(t, "/var/lib/lexgate/audit.db", a.JournalFile("/data"))

	a = config.AuditConfig{}
	assert.Equal(t, filepath.Join("/data", "audit.db"), a.JournalFile("/data"))
}
