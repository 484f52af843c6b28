// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

package server

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	lexerr "github.com/lexgate-dev/lexgate/pkg/errors"
)

const ipRateLimitRetryAfter = "1"

// RateLimitConfig guards the ops API with a per-IP token bucket. This is
// request admission for the HTTP surface only; the coordinator's sibling
// limiter is a separate subsystem.
type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
	MaxKeys int
}

func (c *RateLimitConfig) applyDefaults() {
	if c.MaxKeys == 0 {
		c.MaxKeys = 10000
	}
}

func (c *RateLimitConfig) validate() error {
	if c.RPS <= 0 {
		return lexerr.Errorf(lexerr.CodeServerStartFailure,
			"ops rate limit rps must be positive when enabled (got %g)", c.RPS)
	}
	if c.Burst < 1 {
		return lexerr.Errorf(lexerr.CodeServerStartFailure,
			"ops rate limit burst must be at least 1 (got %d)", c.Burst)
	}
	if c.MaxKeys < 0 {
		return lexerr.Errorf(lexerr.CodeServerStartFailure,
			"ops rate limit max keys must not be negative (got %d)", c.MaxKeys)
	}
	return nil
}

type visitorEntry struct {
	tokens     float64
	lastSeen   time.Time
	lastRefill time.Time
}

type ipLimiter struct {
	cfg      RateLimitConfig
	mu       sync.Mutex
	visitors map[string]*visitorEntry
}

// newIPLimiter returns nil when limiting is disabled; a nil limiter admits
// everything and its eviction loop is a no-op.
func newIPLimiter(cfg RateLimitConfig) (*ipLimiter, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &ipLimiter{
		cfg:      cfg,
		visitors: make(map[string]*visitorEntry),
	}, nil
}

// middleware rejects over-rate requests with 429 and a Retry-After header.
// Liveness and metrics stay unguarded so probes and scrapers never flap.
func (l *ipLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l == nil || r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		key := clientIP(r)
		if l.allow(key) {
			next.ServeHTTP(w, r)
			return
		}

		slog.Warn("ops api rate limit exceeded",
			"path", r.URL.Path, "key_hash", hashKey(key))

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", ipRateLimitRetryAfter)
		w.WriteHeader(http.StatusTooManyRequests)
		if _, err := w.Write([]byte(`{"error":"rate limit exceeded"}`)); err != nil {
			slog.Warn("failed to write rate limit response", "error", err)
		}
	})
}

func (l *ipLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	v := l.getOrCreateVisitorLocked(key)
	now := time.Now()
	v.lastSeen = now

	// Token bucket refill
	elapsed := now.Sub(v.lastRefill).Seconds()
	v.tokens += elapsed * l.cfg.RPS
	if v.tokens > float64(l.cfg.Burst) {
		v.tokens = float64(l.cfg.Burst)
	}
	v.lastRefill = now

	if v.tokens < 1 {
		return false
	}
	v.tokens--
	return true
}

func (l *ipLimiter) getOrCreateVisitorLocked(key string) *visitorEntry {
	if key == "" {
		key = "unknown"
	}
	if v, ok := l.visitors[key]; ok {
		return v
	}
	now := time.Now()
	v := &visitorEntry{
		tokens:     float64(l.cfg.Burst),
		lastSeen:   now,
		lastRefill: now,
	}
	l.visitors[key] = v
	return v
}

// evictLoop drops visitors idle past the stale threshold and enforces the
// key cap, oldest first. Runs until done closes.
func (l *ipLimiter) evictLoop(done <-chan struct{}) {
	if l == nil {
		return
	}

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.evictStale()
		case <-done:
			return
		}
	}
}

func (l *ipLimiter) evictStale() {
	const staleThreshold = 10 * time.Minute

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()

	type entry struct {
		key      string
		lastSeen time.Time
	}
	entries := make([]entry, 0, len(l.visitors))
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > staleThreshold {
			delete(l.visitors, key)
		} else {
			entries = append(entries, entry{key: key, lastSeen: v.lastSeen})
		}
	}

	if l.cfg.MaxKeys > 0 && len(entries) > l.cfg.MaxKeys {
		slices.SortFunc(entries, func(a, b entry) int {
			return a.lastSeen.Compare(b.lastSeen)
		})

		toEvict := len(entries) - l.cfg.MaxKeys
		for i := 0; i < toEvict; i++ {
			delete(l.visitors, entries[i].key)
		}
		slog.Warn("ops api limiter key cap enforced",
			"evicted", toEvict, "max_keys", l.cfg.MaxKeys, "remaining", len(l.visitors))
	}
}

// clientIP extracts the visitor key from RemoteAddr, which RealIP has
// already rewritten when forwarding headers are present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// hashKey returns the first 8 hex chars of SHA-256(key) for log privacy.
func hashKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", h[:4]) // 4 bytes = 8 hex chars
}
