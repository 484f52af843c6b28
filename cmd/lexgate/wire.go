// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/lexgate-dev/lexgate/internal/audit"
	"github.com/lexgate-dev/lexgate/internal/classify"
	"github.com/lexgate-dev/lexgate/internal/config"
	"github.com/lexgate-dev/lexgate/internal/coordinator"
	"github.com/lexgate-dev/lexgate/internal/keypool"
	"github.com/lexgate-dev/lexgate/internal/provider"
	anthropicprov "github.com/lexgate-dev/lexgate/internal/provider/anthropic"
	googleprov "github.com/lexgate-dev/lexgate/internal/provider/google"
	openaiprov "github.com/lexgate-dev/lexgate/internal/provider/openai"
	websearchprov "github.com/lexgate-dev/lexgate/internal/provider/websearch"
	"github.com/lexgate-dev/lexgate/internal/ratelimit"
	"github.com/lexgate-dev/lexgate/internal/secrets"
	"github.com/lexgate-dev/lexgate/internal/server"
	lexerr "github.com/lexgate-dev/lexgate/pkg/errors"
)

// Gateway holds the wired components of a running LexGate instance.
type Gateway struct {
	Server      *server.Server
	Coordinator *coordinator.Coordinator
	Registry    *keypool.Registry
	Limiter     *ratelimit.Limiter
	Trail       *audit.Trail
}

// bindFactories maps each vendor to its client bind constructor. Declared as
// a variable so tests can inject failing binds.
var bindFactories = map[provider.Name]func(config.ProviderConfig) keypool.BindFunc{
	provider.Anthropic: func(pc config.ProviderConfig) keypool.BindFunc {
		return anthropicprov.Bind(anthropicprov.Config{BaseURL: pc.BaseURL})
	},
	provider.OpenAI: func(pc config.ProviderConfig) keypool.BindFunc {
		return openaiprov.Bind(openaiprov.Config{BaseURL: pc.BaseURL})
	},
	provider.Google: func(pc config.ProviderConfig) keypool.BindFunc {
		return googleprov.Bind(googleprov.Config{BaseURL: pc.BaseURL})
	},
	provider.WebSearch: func(pc config.ProviderConfig) keypool.BindFunc {
		return websearchprov.Bind(websearchprov.Config{BaseURL: pc.BaseURL})
	},
}

// WireGateway assembles pools, classifier, limiter, audit trail, coordinator,
// and the ops server from config. It fails fast on anything that would leave
// the gateway half-working: an enabled provider with no resolvable
// credentials is a configuration error, not a condition to limp through.
func WireGateway(cfg *config.Config) (*Gateway, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, lexerr.Wrapf(err, lexerr.CodeCLISetupFailure, "creating data directory %s", cfg.DataDir)
	}

	store := secrets.NewKeyringStore()

	registry := keypool.NewRegistry()
	for _, name := range cfg.EnabledProviders() {
		pc := cfg.Providers[string(name)]

		creds, err := cfg.CredentialsFor(name, store)
		if err != nil {
			return nil, err
		}

		pool, err := keypool.New(name, creds, bindFactories[name](pc))
		if err != nil {
			return nil, lexerr.Wrapf(err, lexerr.CodeCLISetupFailure, "building %s pool", name)
		}
		if err := registry.Register(pool); err != nil {
			return nil, err
		}
		slog.Info("registered credential pool", "provider", name, "keys", pool.Len())
	}

	classifier := classify.New(policyFromConfig(cfg.Cooldowns),
		anthropicprov.Normalize,
		openaiprov.Normalize,
		googleprov.Normalize,
	)

	var limiter *ratelimit.Limiter
	if len(cfg.Limits) > 0 {
		rules := make(map[string]ratelimit.Rule, len(cfg.Limits))
		for resource, lc := range cfg.Limits {
			rules[resource] = ratelimit.Rule{Limit: lc.Limit, Window: lc.Window}
		}
		var err error
		limiter, err = ratelimit.New(rules)
		if err != nil {
			return nil, err
		}
	}

	var trail *audit.Trail
	if cfg.Audit.Enabled {
		journalPath := cfg.Audit.JournalFile(cfg.DataDir)
		journal, err := audit.OpenJournal(journalPath)
		if err != nil {
			slog.Warn("audit journal unavailable, events will not be persisted",
				"path", journalPath, "error", err)
			journal = nil
		}
		trail = audit.NewTrail(slog.Default(), cfg.Audit.RecentBuffer, journal)
	}

	coord := coordinator.New(registry, classifier, trail, coordinator.RunConfig{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		AttemptTimeout: cfg.Retry.AttemptTimeout,
		Backoff: coordinator.Backoff{
			Initial:    cfg.Retry.InitialBackoff,
			Multiplier: cfg.Retry.BackoffMultiplier,
			Max:        cfg.Retry.MaxBackoff,
		},
	})

	services, err := server.NewServices(registry, limiter, trail)
	if err != nil {
		return nil, err
	}

	srv, err := server.New(server.Config{
		ListenAddr:   cfg.Server.Listen,
		Version:      version,
		CORSOrigins:  cfg.Server.CORSOrigins,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		RateLimit: server.RateLimitConfig{
			Enabled: cfg.Server.RateLimit.Enabled,
			RPS:     cfg.Server.RateLimit.RPS,
			Burst:   cfg.Server.RateLimit.Burst,
		},
	}, services)
	if err != nil {
		return nil, lexerr.Wrapf(err, lexerr.CodeCLISetupFailure, "creating ops server")
	}

	return &Gateway{
		Server:      srv,
		Coordinator: coord,
		Registry:    registry,
		Limiter:     limiter,
		Trail:       trail,
	}, nil
}

// Start runs the gateway until ctx is canceled. The limiter sweep shares the
// server's lifetime.
func (gw *Gateway) Start(ctx context.Context) error {
	if gw.Limiter != nil {
		go gw.Limiter.Run(ctx, time.Minute)
	}
	return gw.Server.Start(ctx)
}

// Close flushes and releases anything the gateway holds open.
func (gw *Gateway) Close() error {
	return gw.Trail.Close()
}

func policyFromConfig(c config.CooldownsConfig) classify.Policy {
	return classify.Policy{
		QueueExceededCooldown:  c.QueueExceeded,
		RateLimitedCooldown:    c.RateLimited,
		QuotaExhaustedCooldown: c.QuotaExhausted,
		ServerErrorCooldown:    c.ServerError,
		UnclassifiedCooldown:   c.Unclassified,
		AuthErrorCooldown:      c.AuthError,
	}
}
