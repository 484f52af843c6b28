// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

package server

import (
	"time"

	"github.com/lexgate-dev/lexgate/internal/audit"
	"github.com/lexgate-dev/lexgate/internal/keypool"
	"github.com/lexgate-dev/lexgate/internal/ratelimit"
	lexerr "github.com/lexgate-dev/lexgate/pkg/errors"
)

// Services holds the coordinator state the ops API reads from. The registry
// is required; limiter and trail are optional and their endpoints answer
// empty when absent.
type Services struct {
	registry *keypool.Registry
	limiter  *ratelimit.Limiter
	trail    *audit.Trail
	started  time.Time
}

// NewServices creates a Services instance with validation.
func NewServices(registry *keypool.Registry, limiter *ratelimit.Limiter, trail *audit.Trail) (*Services, error) {
	if registry == nil {
		return nil, lexerr.New(lexerr.CodeServerStartFailure, "pool registry is required")
	}
	return &Services{
		registry: registry,
		limiter:  limiter,
		trail:    trail,
		started:  time.Now(),
	}, nil
}

// Registry returns the pool registry.
func (s *Services) Registry() *keypool.Registry {
	return s.registry
}

// Limiter returns the sibling rate limiter, or nil when not configured.
func (s *Services) Limiter() *ratelimit.Limiter {
	return s.limiter
}

// Trail returns the audit trail, or nil when not configured.
func (s *Services) Trail() *audit.Trail {
	return s.trail
}
