// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

// Package keypool maintains one pool of API credentials per upstream vendor.
// A pool hands out credentials round-robin, skipping keys that are cooling
// down after a failure, and falls back to reusing the least-recently-used
// key when every key is cooling. Pools are pure state machines: they never
// log, sleep, or perform I/O, which keeps them trivially testable.
package keypool

import (
	"sync"
	"time"

	"github.com/lexgate-dev/lexgate/internal/provider"
	lexerr "github.com/lexgate-dev/lexgate/pkg/errors"
)

// BindFunc builds the vendor SDK client for one secret. It is called once
// per credential at pool construction so that selection never pays client
// setup costs.
type BindFunc func(secret string) (any, error)

// Pool owns the credentials for a single vendor. All methods are safe for
// concurrent use; a single mutex guards every read-modify-write so that each
// operation is atomic. No multi-call transaction semantics are provided or
// needed.
type Pool struct {
	mu       sync.Mutex
	provider provider.Name
	creds    []*Credential
	cursor   int
	nowFunc  func() time.Time
}

// New builds a pool from the configured secrets, preserving their order as
// the rotation order. Duplicate secrets are collapsed to one credential.
// Secrets are bound to SDK clients up front via bind (which may be nil when
// no client is wanted, e.g. in tests).
func New(p provider.Name, secrets []string, bind BindFunc) (*Pool, error) {
	pool := &Pool{
		provider: p,
		cursor:   -1,
		nowFunc:  time.Now,
	}

	seen := make(map[string]struct{}, len(secrets))
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		if _, dup := seen[secret]; dup {
			continue
		}
		seen[secret] = struct{}{}

		var client any
		if bind != nil {
			var err error
			client, err = bind(secret)
			if err != nil {
				return nil, lexerr.Wrap(err, lexerr.CodeKeypoolBindFailure, "binding credential",
					lexerr.FieldProvider(string(p)),
					lexerr.FieldCredential(hashID(secret)),
				)
			}
		}
		pool.creds = append(pool.creds, newCredential(p, secret, client))
	}

	if len(pool.creds) == 0 {
		return nil, lexerr.New(lexerr.CodeKeypoolNoCredentials, "pool requires at least one credential",
			lexerr.FieldProvider(string(p)),
		)
	}

	return pool, nil
}

// SetNowFunc overrides the time source. Tests use this to advance a fake
// clock instead of sleeping.
func (p *Pool) SetNowFunc(f func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nowFunc = f
}

// Provider returns the vendor this pool serves.
func (p *Pool) Provider() provider.Name {
	return p.provider
}

// Len returns the number of credentials in the pool (fixed after New).
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.creds)
}

// SelectNext advances the rotation cursor and returns the first usable
// credential at or after it, marking it used. The sweep covers the whole
// pool, so a single usable key is found regardless of cursor position.
// When every credential is cooling down or revoked it reports
// CodeKeypoolExhausted without moving the cursor.
func (p *Pool) SelectNext() (*Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.nowFunc()
	n := len(p.creds)
	for i := 1; i <= n; i++ {
		idx := (p.cursor + i) % n
		c := p.creds[idx]
		if !c.usableAt(now) {
			continue
		}
		p.cursor = idx
		c.markUsed(now)
		return c, nil
	}

	fields := []lexerr.Attr{
		lexerr.FieldProvider(string(p.provider)),
		lexerr.Field("pool_size", n),
	}
	if soonest := p.soonestRecoveryLocked(); !soonest.IsZero() {
		fields = append(fields, lexerr.Field("retry_in", soonest.Sub(now).String()))
	}
	return nil, lexerr.New(lexerr.CodeKeypoolExhausted, "every credential is disabled", fields...)
}

// ForceOldestUsed returns the least-recently-used credential even when every
// credential is cooling down, clearing its cooldown so it rejoins rotation.
// A failure on the forced credential re-disables it through the usual path.
// Revoked credentials are never handed out; when nothing else remains it
// reports CodeKeypoolAllRevoked.
func (p *Pool) ForceOldestUsed() (*Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var oldest *Credential
	for _, c := range p.creds {
		if c.revoked {
			continue
		}
		if oldest == nil || c.lastUsedAt.Before(oldest.lastUsedAt) {
			oldest = c
		}
	}
	if oldest == nil {
		return nil, lexerr.New(lexerr.CodeKeypoolAllRevoked, "every credential is revoked",
			lexerr.FieldProvider(string(p.provider)),
		)
	}

	oldest.disabledUntil = time.Time{}
	oldest.markUsed(p.nowFunc())
	return oldest, nil
}

// Next is the selection entry point used by the retry coordinator: rotation
// first, forced reuse of the least-recently-used key as the fallback. The
// returned flag reports whether the fallback fired. An error means the pool
// has nothing left to hand out at all.
func (p *Pool) Next() (*Credential, bool, error) {
	c, err := p.SelectNext()
	if err == nil {
		return c, false, nil
	}
	if !lexerr.HasCode(err, lexerr.CodeKeypoolExhausted) {
		return nil, false, err
	}

	c, err = p.ForceOldestUsed()
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

// RecordSuccess counts a completed request, clears the credential's
// consecutive-failure streak and updates last-used. An already-elapsed
// cooldown is cleared so snapshots do not show stale timestamps; an active
// cooldown is left untouched. Request and error counts partition outcomes:
// requestCount counts successes, errorCount counts failures.
func (p *Pool) RecordSuccess(c *Credential) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.nowFunc()
	c.requestCount++
	c.failStreak = 0
	c.lastUsedAt = now
	if !c.disabledUntil.IsZero() && !now.Before(c.disabledUntil) {
		c.disabledUntil = time.Time{}
	}
}

// Disable takes the credential out of rotation for the given cooldown. A
// new cooldown never shortens one already in effect.
func (p *Pool) Disable(c *Credential, cooldown time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c.errorCount++
	c.failStreak++
	until := p.nowFunc().Add(cooldown)
	if c.disabledUntil.Before(until) {
		c.disabledUntil = until
	}
}

// DisableHard revokes the credential permanently. Revoked credentials are
// skipped by rotation and by forced reuse; only a process restart with
// fixed configuration brings them back.
func (p *Pool) DisableHard(c *Credential) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c.errorCount++
	c.failStreak++
	c.revoked = true
}

// AllDisabled reports whether no credential is currently usable.
func (p *Pool) AllDisabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.nowFunc()
	for _, c := range p.creds {
		if c.usableAt(now) {
			return false
		}
	}
	return true
}

// Stats summarizes pool occupancy for gauges and status endpoints.
type Stats struct {
	Provider provider.Name `json:"provider"`
	Total    int           `json:"total"`
	Usable   int           `json:"usable"`
	Cooling  int           `json:"cooling"`
	Revoked  int           `json:"revoked"`
}

// Stats counts credentials by state at this instant.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.nowFunc()
	s := Stats{Provider: p.provider, Total: len(p.creds)}
	for _, c := range p.creds {
		switch {
		case c.revoked:
			s.Revoked++
		case c.usableAt(now):
			s.Usable++
		default:
			s.Cooling++
		}
	}
	return s
}

// Snapshot is a point-in-time view of one credential, safe to serialize.
// The secret itself never appears; ID is the masked handle.
type Snapshot struct {
	ID                  string        `json:"id"`
	Provider            provider.Name `json:"provider"`
	RequestCount        uint64        `json:"request_count"`
	ErrorCount          uint64        `json:"error_count"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	Disabled            bool          `json:"disabled"`
	Revoked             bool          `json:"revoked"`
	DisabledUntil       *time.Time    `json:"disabled_until,omitempty"`
	LastUsedAt          *time.Time    `json:"last_used_at,omitempty"`
}

// Snapshot returns per-credential views in rotation order.
func (p *Pool) Snapshot() []Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.nowFunc()
	out := make([]Snapshot, len(p.creds))
	for i, c := range p.creds {
		snap := Snapshot{
			ID:                  c.id,
			Provider:            c.provider,
			RequestCount:        c.requestCount,
			ErrorCount:          c.errorCount,
			ConsecutiveFailures: c.failStreak,
			Disabled:            !c.usableAt(now),
			Revoked:             c.revoked,
		}
		if !c.disabledUntil.IsZero() && now.Before(c.disabledUntil) {
			until := c.disabledUntil
			snap.DisabledUntil = &until
		}
		if !c.lastUsedAt.IsZero() {
			used := c.lastUsedAt
			snap.LastUsedAt = &used
		}
		out[i] = snap
	}
	return out
}

// soonestRecoveryLocked returns the earliest time a cooling credential
// becomes usable again, or the zero time when none is cooling.
func (p *Pool) soonestRecoveryLocked() time.Time {
	var soonest time.Time
	for _, c := range p.creds {
		if c.revoked || c.disabledUntil.IsZero() {
			continue
		}
		if soonest.IsZero() || c.disabledUntil.Before(soonest) {
			soonest = c.disabledUntil
		}
	}
	return soonest
}
