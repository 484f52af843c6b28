// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

// Package ratelimit implements the self-imposed request gate: a fixed-window
// counter per (resource, identifier) pair, checked before any credential is
// acquired. It bounds what this process sends upstream; provider-side
// failures after the fact are the credential pool's problem, not this
// package's.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lexgate-dev/lexgate/internal/metrics"
	lexerr "github.com/lexgate-dev/lexgate/pkg/errors"
)

// Rule bounds one named resource to Limit units per fixed Window.
type Rule struct {
	Limit  int           `json:"limit"`
	Window time.Duration `json:"window"`
}

// Validate reports whether the rule is enforceable.
func (r Rule) Validate() error {
	if r.Limit <= 0 {
		return lexerr.Errorf(lexerr.CodeConfigValidateInvalidValue,
			"rate limit must be positive (got %d)", r.Limit)
	}
	if r.Window <= 0 {
		return lexerr.Errorf(lexerr.CodeConfigValidateInvalidValue,
			"rate limit window must be positive (got %s)", r.Window)
	}
	return nil
}

// RateLimitError is returned by Check when a window is over budget. It wraps
// a coded error so transport layers can map it, and carries the retry hint as
// typed fields for callers that errors.As for it.
type RateLimitError struct {
	Resource   string
	Identifier string
	Limit      int
	RetryAfter time.Duration
	Reset      time.Time

	err error
}

func (e *RateLimitError) Error() string { return e.err.Error() }

func (e *RateLimitError) Unwrap() error { return e.err }

// AsRateLimitError extracts a RateLimitError from anywhere in err's chain.
func AsRateLimitError(err error) (*RateLimitError, bool) {
	var rle *RateLimitError
	ok := errors.As(err, &rle)
	return rle, ok
}

type windowKey struct {
	resource   string
	identifier string
}

type window struct {
	start time.Time
	count int
}

// Limiter tracks fixed windows for a static rule set. The rule set is fixed
// at construction; windows are created lazily per identifier and swept once
// expired. Safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	rules   map[string]Rule
	windows map[windowKey]*window
	nowFunc func() time.Time
}

// New builds a limiter for the given rules. Resources without a rule pass
// Check unmetered. A nil or empty rule set is valid and meters nothing.
func New(rules map[string]Rule) (*Limiter, error) {
	for resource, rule := range rules {
		if err := rule.Validate(); err != nil {
			return nil, lexerr.Wrapf(err, lexerr.CodeConfigValidateInvalidValue,
				"rate limit rule %q", resource)
		}
	}

	l := &Limiter{
		rules:   make(map[string]Rule, len(rules)),
		windows: make(map[windowKey]*window),
		nowFunc: time.Now,
	}
	for resource, rule := range rules {
		l.rules[resource] = rule
	}
	return l, nil
}

// SetNowFunc overrides the clock. Tests only.
func (l *Limiter) SetNowFunc(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nowFunc = now
}

// Rules returns a copy of the configured rule set.
func (l *Limiter) Rules() map[string]Rule {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]Rule, len(l.rules))
	for resource, rule := range l.rules {
		out[resource] = rule
	}
	return out
}

// Check spends cost units of the identifier's current window for resource.
// A cost below one counts as one. If the window has expired it restarts at
// now before the spend is evaluated. Over-budget checks return a
// *RateLimitError carrying the time left in the window and consume nothing,
// so the next window's budget stays intact.
func (l *Limiter) Check(resource, identifier string, cost int) error {
	if cost < 1 {
		cost = 1
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rule, metered := l.rules[resource]
	if !metered {
		metrics.RatelimitChecks.WithLabelValues(resource, "true").Inc()
		return nil
	}

	now := l.nowFunc()
	key := windowKey{resource: resource, identifier: identifier}
	w, ok := l.windows[key]
	switch {
	case !ok:
		w = &window{start: now}
		l.windows[key] = w
	case !now.Before(w.start.Add(rule.Window)):
		w.start = now
		w.count = 0
	}

	if w.count+cost > rule.Limit {
		reset := w.start.Add(rule.Window)
		metrics.RatelimitChecks.WithLabelValues(resource, "false").Inc()
		return &RateLimitError{
			Resource:   resource,
			Identifier: identifier,
			Limit:      rule.Limit,
			RetryAfter: reset.Sub(now),
			Reset:      reset,
			err: lexerr.New(lexerr.CodeRateLimitExceeded,
				fmt.Sprintf("rate limit exceeded for %s (limit %d per %s)", resource, rule.Limit, rule.Window),
				lexerr.FieldResource(resource),
				lexerr.Field("retry_after", reset.Sub(now).String()),
				lexerr.Field("limit", rule.Limit)),
		}
	}

	w.count += cost
	metrics.RatelimitChecks.WithLabelValues(resource, "true").Inc()
	return nil
}

// Sweep drops every expired window and returns how many were removed. It
// only reclaims memory; Check resets expired windows on its own.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	removed := 0
	for key, w := range l.windows {
		rule, ok := l.rules[key.resource]
		if !ok || !now.Before(w.start.Add(rule.Window)) {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

// Run sweeps expired windows every interval until ctx is canceled. Callers
// run it on its own goroutine.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// WindowCount returns the number of tracked windows, live or expired.
func (l *Limiter) WindowCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// WindowStatus is one live window for the ops API.
type WindowStatus struct {
	Resource   string    `json:"resource"`
	Identifier string    `json:"identifier"`
	Count      int       `json:"count"`
	Limit      int       `json:"limit"`
	Reset      time.Time `json:"reset"`
}

// Snapshot lists the windows still inside their interval, sorted by resource
// then identifier.
func (l *Limiter) Snapshot() []WindowStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	out := make([]WindowStatus, 0, len(l.windows))
	for key, w := range l.windows {
		rule, ok := l.rules[key.resource]
		if !ok || !now.Before(w.start.Add(rule.Window)) {
			continue
		}
		out = append(out, WindowStatus{
			Resource:   key.resource,
			Identifier: key.identifier,
			Count:      w.count,
			Limit:      rule.Limit,
			Reset:      w.start.Add(rule.Window),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Resource != out[j].Resource {
			return out[i].Resource < out[j].Resource
		}
		return out[i].Identifier < out[j].Identifier
	})
	return out
}
