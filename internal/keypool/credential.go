// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

package keypool

import (
	"encoding/hex"
	"hash/fnv"
	"time"

	"github.com/lexgate-dev/lexgate/internal/provider"
)

// Credential is one interchangeable API key for an upstream vendor, together
// with its health state. Identity fields (id, secret, provider, client) are
// immutable after construction; all mutable state is guarded by the owning
// Pool's mutex and must only be touched through Pool methods.
type Credential struct {
	id       string
	secret   string
	provider provider.Name
	client   any

	requestCount  uint64
	errorCount    uint64
	failStreak    int
	lastUsedAt    time.Time
	disabledUntil time.Time
	revoked       bool
}

func newCredential(p provider.Name, secret string, client any) *Credential {
	return &Credential{
		id:       hashID(secret),
		secret:   secret,
		provider: p,
		client:   client,
	}
}

// ID returns a short non-reversible handle derived from the secret.
// It is the only identifier that may appear in logs, errors, and snapshots.
func (c *Credential) ID() string {
	return c.id
}

// Provider returns the vendor this credential authenticates against.
func (c *Credential) Provider() provider.Name {
	return c.provider
}

// Secret returns the raw API key. Callers must never log it.
func (c *Credential) Secret() string {
	return c.secret
}

// Client returns the vendor SDK client bound to this credential at pool
// construction, or nil when the pool was built without a bind function.
func (c *Credential) Client() any {
	return c.client
}

// markUsed and usableAt are called with the owning pool's mutex held.

func (c *Credential) markUsed(now time.Time) {
	c.lastUsedAt = now
}

func (c *Credential) usableAt(now time.Time) bool {
	if c.revoked {
		return false
	}
	return c.disabledUntil.IsZero() || !now.Before(c.disabledUntil)
}

// hashID derives the masked credential handle: an FNV-1a hash of the secret,
// truncated to eight hex characters.
func hashID(secret string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(secret))
	return hex.EncodeToString(h.Sum(nil))[:8]
}
