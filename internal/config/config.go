// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

package config

import (
	"errors"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lexgate-dev/lexgate/internal/provider"
	lexerr "github.com/lexgate-dev/lexgate/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the top-level LexGate configuration.
type Config struct {
	DataDir   string                    `mapstructure:"data_dir"`
	Logging   LoggingConfig             `mapstructure:"logging"`
	Server    ServerConfig              `mapstructure:"server"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Retry     RetryConfig               `mapstructure:"retry"`
	Cooldowns CooldownsConfig           `mapstructure:"cooldowns"`
	Limits    map[string]LimitConfig    `mapstructure:"limits"`
	Audit     AuditConfig               `mapstructure:"audit"`
}

// LoggingConfig selects the slog handler installed by the CLI.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig controls the ops API listener.
type ServerConfig struct {
	Listen       string            `mapstructure:"listen"`
	CORSOrigins  []string          `mapstructure:"cors_origins"`
	ReadTimeout  time.Duration     `mapstructure:"read_timeout"`
	WriteTimeout time.Duration     `mapstructure:"write_timeout"`
	RateLimit    IPRateLimitConfig `mapstructure:"rate_limit"`
}

// IPRateLimitConfig tunes the per-client token bucket in front of the ops
// API. This is plumbing for the HTTP surface, unrelated to the domain
// fixed-window limits configured under "limits".
type IPRateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

// ProviderConfig declares one vendor's credential pool.
//
// Keys entries may be literal secrets, whole-value ${ENV} references, or
// keyring://service/key references. KeysFile optionally names a YAML manifest
// with more of the same. Numbered LEXGATE_<PROVIDER>_KEY_<N> environment
// variables are always appended last.
type ProviderConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Keys     []string `mapstructure:"keys"`
	KeysFile string   `mapstructure:"keys_file"`
	BaseURL  string   `mapstructure:"base_url"`
}

// RetryConfig tunes the run loop. MaxAttempts 0 means pool size + 1, and
// AttemptTimeout 0 disables the per-attempt deadline.
type RetryConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts"`
	AttemptTimeout    time.Duration `mapstructure:"attempt_timeout"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
}

// CooldownsConfig sets how long a credential rests after each failure
// category. AuthError 0 revokes the credential for the process lifetime
// instead of cooling it down.
type CooldownsConfig struct {
	QueueExceeded  time.Duration `mapstructure:"queue_exceeded"`
	RateLimited    time.Duration `mapstructure:"rate_limited"`
	QuotaExhausted time.Duration `mapstructure:"quota_exhausted"`
	ServerError    time.Duration `mapstructure:"server_error"`
	Unclassified   time.Duration `mapstructure:"unclassified"`
	AuthError      time.Duration `mapstructure:"auth_error"`
}

// LimitConfig declares one fixed-window rule, keyed by resource name in
// Config.Limits. Resources without a rule are unmetered.
type LimitConfig struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// AuditConfig controls the event trail. An empty JournalPath places
// audit.db under DataDir.
type AuditConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	JournalPath  string `mapstructure:"journal_path"`
	RecentBuffer int    `mapstructure:"recent_buffer"`
}

// JournalFile returns the sqlite journal path, defaulting into dataDir.
func (a AuditConfig) JournalFile(dataDir string) string {
	if a.JournalPath != "" {
		return a.JournalPath
	}
	return filepath.Join(dataDir, "audit.db")
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix LEXGATE_).
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("server.listen", "127.0.0.1:8187")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.rate_limit.enabled", true)
	v.SetDefault("server.rate_limit.rps", 10.0)
	v.SetDefault("server.rate_limit.burst", 20)
	v.SetDefault("retry.max_attempts", 0)
	v.SetDefault("retry.attempt_timeout", time.Duration(0))
	v.SetDefault("retry.initial_backoff", 200*time.Millisecond)
	v.SetDefault("retry.backoff_multiplier", 2.0)
	v.SetDefault("retry.max_backoff", 5*time.Second)
	v.SetDefault("cooldowns.queue_exceeded", 15*time.Second)
	v.SetDefault("cooldowns.rate_limited", 30*time.Second)
	v.SetDefault("cooldowns.quota_exhausted", 60*time.Second)
	v.SetDefault("cooldowns.server_error", 30*time.Second)
	v.SetDefault("cooldowns.unclassified", 30*time.Second)
	v.SetDefault("cooldowns.auth_error", time.Duration(0))
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.recent_buffer", 256)

	// Environment
	v.SetEnvPrefix("LEXGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// File
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, lexerr.Errorf(lexerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, lexerr.Errorf(lexerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, lexerr.Errorf(lexerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors.
// It returns a slice of all validation errors found, collecting all issues
// rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateLogging()...)
	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateProviders()...)
	errs = append(errs, c.validateRetry()...)
	errs = append(errs, c.validateCooldowns()...)
	errs = append(errs, c.validateLimits()...)
	errs = append(errs, c.validateAudit()...)

	return errs
}

// EnabledProviders returns the enabled vendors in stable display order.
func (c *Config) EnabledProviders() []provider.Name {
	var out []provider.Name
	for _, p := range provider.All() {
		if pc, ok := c.Providers[string(p)]; ok && pc.Enabled {
			out = append(out, p)
		}
	}
	return out
}

// SecretFilePaths lists every on-disk file that may hold raw credentials:
// the loaded config itself plus each provider's keys_file manifest. cfgPath
// may be empty when running on defaults.
func (c *Config) SecretFilePaths(cfgPath string) []string {
	paths := []string{cfgPath}
	for _, p := range provider.All() {
		if pc, ok := c.Providers[string(p)]; ok && pc.KeysFile != "" {
			paths = append(paths, pc.KeysFile)
		}
	}
	return paths
}

func (c *Config) validateLogging() []error {
	var errs []error

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		errs = append(errs, lexerr.Errorf(lexerr.CodeConfigValidateInvalidValue,
			"config: logging.level must be one of [debug, info, warn, error], got %q",
			c.Logging.Level,
		))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Logging.Format] {
		errs = append(errs, lexerr.Errorf(lexerr.CodeConfigValidateInvalidValue,
			"config: logging.format must be one of [text, json], got %q",
			c.Logging.Format,
		))
	}

	return errs
}

func (c *Config) validateServer() []error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, lexerr.Errorf(lexerr.CodeConfigValidateInvalidValue, "config: server.listen must not be empty"))
	} else {
		host, portStr, err := net.SplitHostPort(c.Server.Listen)
		if err != nil {
			errs = append(errs, lexerr.Errorf(lexerr.CodeConfigValidateInvalidValue,
				"config: server.listen must be a valid host:port address, got %q: %w",
				c.Server.Listen, err,
			))
		} else {
			_ = host // host can be empty (e.g., ":8187"), which is valid
			port, err := strconv.Atoi(portStr)
			if err != nil {
				errs = append(errs, lexerr.Errorf(lexerr.CodeConfigValidateInvalidValue,
					"config: server.listen port must be a number, got %q",
					portStr,
				))
			} else if port < 1 || port > 65535 {
				errs = append(errs, lexerr.Errorf(lexerr.CodeConfigValidateInvalidValue,
					"config: server.listen port must be between 1 and 65535, got %d",
					port,
				))
			}
		}
	}

	if c.Server.ReadTimeout < 0 {
		errs = append(errs, lexerr.Errorf(lexerr.CodeConfigValidateInvalidValue,
			"config: server.read_timeout must not be negative, got %s", c.Server.ReadTimeout))
	}
	if c.Server.WriteTimeout < 0 {
		errs = append(errs, lexerr.Errorf(lexerr.CodeConfigValidateInvalidValue,
			"config: server.write_timeout must not be negative, got %s", c.Server.WriteTimeout))
	}

	if c.Server.RateLimit.Enabled {
		if c.Server.RateLimit.RPS <= 0 {
			errs = append(errs, lexerr.Errorf(lexerr.CodeConfigValidateInvalidValue,
				"config: server.rate_limit.rps must be greater than 0, got %g",
				c.Server.RateLimit.RPS,
			))
		}
		if c.Server.RateLimit.Burst < 1 {
			errs = append(errs, lexerr.Errorf(lexerr.CodeConfigValidateInvalidValue,
				"config: server.rate_limit.burst must be at least 1, got %d",
				c.Server.RateLimit.Burst,
			))
		}
	}

	return errs
}

func (c *Config) validateProviders() []error {
	var errs []error

	for name, pc := range c.Providers {
		if !provider.Name(name).Valid() {
			errs = append(errs, lexerr.Errorf(lexerr.CodeConfigValidateInvalidValue,
				"config: providers.%s is not a known provider (valid: %v)",
				name, provider.All(),
			))
			continue
		}

		if pc.BaseURL != "" {
			u, err := url.Parse(pc.BaseURL)
			if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
				errs = append(errs, lexerr.Errorf(lexerr.CodeConfigValidateInvalidValue,
					"config: providers.%s.base_url must be an http(s) URL, got %q",
					name, pc.BaseURL,
				))
			}
		}
	}

	return errs
}

func (c *Config) validateRetry() []error {
	var errs []error

	if c.Retry.MaxAttempts < 0 {
		errs = append(errs, lexerr.Errorf(lexerr.CodeConfigValidateInvalidValue,
			"config: retry.max_attempts must not be negative, got %d", c.Retry.MaxAttempts))
	}
	if c.Retry.AttemptTimeout < 0 {
		errs = append(errs, lexerr.Errorf(lexerr.CodeConfigValidateInvalidValue,
			"config: retry.attempt_timeout must not be negative, got %s", c.Retry.AttemptTimeout))
	}
	if c.Retry.InitialBackoff < 0 {
		errs = append(errs, lexerr.Errorf(lexerr.CodeConfigValidateInvalidValue,
			"config: retry.initial_backoff must not be negative, got %s", c.Retry.InitialBackoff))
	}
	if c.Retry.BackoffMultiplier < 1 {
		errs = append(errs, lexerr.Errorf(lexerr.CodeConfigValidateInvalidValue,
			"config: retry.backoff_multiplier must be at least 1, got %g", c.Retry.BackoffMultiplier))
	}
	if c.Retry.MaxBackoff > 0 && c.Retry.MaxBackoff < c.Retry.InitialBackoff {
		errs = append(errs, lexerr.Errorf(lexerr.CodeConfigValidateInvalidValue,
			"config: retry.max_backoff (%s) must not be less than retry.initial_backoff (%s)",
			c.Retry.MaxBackoff, c.Retry.InitialBackoff,
		))
	}

	return errs
}

func (c *Config) validateCooldowns() []error {
	var errs []error

	for _, cd := range []struct {
		key string
		val time.Duration
	}{
		{"queue_exceeded", c.Cooldowns.QueueExceeded},
		{"rate_limited", c.Cooldowns.RateLimited},
		{"quota_exhausted", c.Cooldowns.QuotaExhausted},
		{"server_error", c.Cooldowns.ServerError},
		{"unclassified", c.Cooldowns.Unclassified},
		{"auth_error", c.Cooldowns.AuthError},
	} {
		if cd.val < 0 {
			errs = append(errs, lexerr.Errorf(lexerr.CodeConfigValidateInvalidValue,
				"config: cooldowns.%s must not be negative, got %s", cd.key, cd.val))
		}
	}

	return errs
}

func (c *Config) validateLimits() []error {
	var errs []error

	for resource, rule := range c.Limits {
		if rule.Limit <= 0 {
			errs = append(errs, lexerr.Errorf(lexerr.CodeConfigValidateInvalidValue,
				"config: limits.%s.limit must be greater than 0, got %d",
				resource, rule.Limit,
			))
		}
		if rule.Window <= 0 {
			errs = append(errs, lexerr.Errorf(lexerr.CodeConfigValidateInvalidValue,
				"config: limits.%s.window must be greater than 0, got %s",
				resource, rule.Window,
			))
		}
	}

	return errs
}

func (c *Config) validateAudit() []error {
	var errs []error

	if c.Audit.RecentBuffer < 0 {
		errs = append(errs, lexerr.Errorf(lexerr.CodeConfigValidateInvalidValue,
			"config: audit.recent_buffer must not be negative, got %d", c.Audit.RecentBuffer))
	}

	return errs
}

// defaultDataDir returns ~/.local/share/lexgate, falling back to the working
// directory when the home directory cannot be resolved.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "lexgate")
}
