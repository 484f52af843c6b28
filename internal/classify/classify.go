// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

// Package classify sorts upstream failures into a closed set of categories
// that drive credential cooldowns and retry decisions. Classification is a
// two-step pipeline: normalize the vendor error into an Upstream value,
// then run the normalized value through a fixed decision table. Unknown
// failures land in CategoryUnclassified with a conservative cooldown rather
// than being guessed at.
package classify

import (
	"net/http"
	"strings"
	"time"
)

// Category is the failure class of one upstream error.
type Category string

const (
	// CategoryQueueExceeded: the vendor's ingest queue rejected the request.
	// Clears quickly, so it carries the shortest cooldown.
	CategoryQueueExceeded Category = "queue_exceeded"
	// CategoryRateLimited: per-key request rate exceeded (HTTP 429 family).
	CategoryRateLimited Category = "rate_limited"
	// CategoryQuotaExhausted: the key's spending or usage budget is gone.
	// Needs the longest pause of the retryable categories.
	CategoryQuotaExhausted Category = "quota_exhausted"
	// CategoryServerError: vendor-side 5xx or attempt timeout.
	CategoryServerError Category = "server_error"
	// CategoryAuthError: the key itself is invalid or revoked. Waiting does
	// not help; the credential leaves the pool.
	CategoryAuthError Category = "auth_error"
	// CategoryUnclassified: nothing matched. Treated as transient.
	CategoryUnclassified Category = "unclassified"
)

// Classification is the verdict for one failure: the category, whether the
// run may continue on another credential, how long the failing credential
// cools down, and whether it is gone for good.
type Classification struct {
	Category  Category
	Retryable bool
	Cooldown  time.Duration
	Permanent bool
}

// Policy sets the per-category cooldowns. The zero AuthErrorCooldown means
// an auth-failed credential is revoked permanently; a positive value turns
// revocation into a long cooldown instead.
type Policy struct {
	QueueExceededCooldown  time.Duration
	RateLimitedCooldown    time.Duration
	QuotaExhaustedCooldown time.Duration
	ServerErrorCooldown    time.Duration
	UnclassifiedCooldown   time.Duration
	AuthErrorCooldown      time.Duration
}

// DefaultPolicy returns the stock cooldowns.
func DefaultPolicy() Policy {
	return Policy{
		QueueExceededCooldown:  15 * time.Second,
		RateLimitedCooldown:    30 * time.Second,
		QuotaExhaustedCooldown: 60 * time.Second,
		ServerErrorCooldown:    30 * time.Second,
		UnclassifiedCooldown:   30 * time.Second,
	}
}

// Classifier applies a Policy to normalized upstream errors.
type Classifier struct {
	policy      Policy
	normalizers []Normalizer
}

// New builds a classifier. Vendor normalizers are consulted in order before
// the built-in fallbacks.
func New(policy Policy, normalizers ...Normalizer) *Classifier {
	return &Classifier{policy: policy, normalizers: normalizers}
}

// Classify maps err to its category and cooldown.
func (c *Classifier) Classify(err error) Classification {
	if err == nil {
		return Classification{}
	}
	return c.verdict(categorize(c.normalize(err)))
}

func (c *Classifier) verdict(cat Category) Classification {
	switch cat {
	case CategoryQueueExceeded:
		return Classification{Category: cat, Retryable: true, Cooldown: c.policy.QueueExceededCooldown}
	case CategoryRateLimited:
		return Classification{Category: cat, Retryable: true, Cooldown: c.policy.RateLimitedCooldown}
	case CategoryQuotaExhausted:
		return Classification{Category: cat, Retryable: true, Cooldown: c.policy.QuotaExhaustedCooldown}
	case CategoryServerError:
		return Classification{Category: cat, Retryable: true, Cooldown: c.policy.ServerErrorCooldown}
	case CategoryAuthError:
		return Classification{
			Category:  cat,
			Retryable: false,
			Cooldown:  c.policy.AuthErrorCooldown,
			Permanent: c.policy.AuthErrorCooldown <= 0,
		}
	default:
		return Classification{Category: CategoryUnclassified, Retryable: true, Cooldown: c.policy.UnclassifiedCooldown}
	}
}

// categorize is the decision table. Vendor error codes carry the most
// precise signal and are checked before the HTTP status: OpenAI reports an
// exhausted quota with the same 429 it uses for rate limiting, and
// Anthropic reports a saturated queue as 529.
func categorize(u Upstream) Category {
	code := strings.ToLower(u.Code)
	msg := strings.ToLower(u.Message)

	switch code {
	case "overloaded_error":
		return CategoryQueueExceeded
	case "insufficient_quota", "billing_hard_limit_reached", "billing_error":
		return CategoryQuotaExhausted
	case "rate_limit_error", "rate_limit_exceeded":
		return CategoryRateLimited
	case "authentication_error", "permission_error", "invalid_api_key", "account_deactivated":
		return CategoryAuthError
	case "timeout":
		return CategoryServerError
	}

	switch {
	case u.Status == http.StatusTooManyRequests:
		if containsAny(msg, quotaPatterns) {
			return CategoryQuotaExhausted
		}
		return CategoryRateLimited
	case u.Status == statusOverloaded:
		return CategoryQueueExceeded
	case u.Status == http.StatusUnauthorized, u.Status == http.StatusForbidden:
		return CategoryAuthError
	case u.Status == http.StatusPaymentRequired:
		return CategoryQuotaExhausted
	case u.Status >= 500 && u.Status <= 599:
		return CategoryServerError
	}

	// Message heuristics for vendors that surface failures as plain text.
	switch {
	case containsAny(msg, []string{"queue exceeded", "queue is full", "overloaded"}):
		return CategoryQueueExceeded
	case containsAny(msg, quotaPatterns):
		return CategoryQuotaExhausted
	case containsAny(msg, []string{"rate limit", "too many requests", "throttl"}):
		return CategoryRateLimited
	case containsAny(msg, []string{"invalid api key", "invalid x-api-key", "api key not valid", "unauthorized", "authentication"}):
		return CategoryAuthError
	}

	return CategoryUnclassified
}

// statusOverloaded is Anthropic's non-standard "engine queue full" status.
const statusOverloaded = 529

var quotaPatterns = []string{"quota", "credit balance", "billing"}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
