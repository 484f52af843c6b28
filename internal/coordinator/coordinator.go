// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

// Package coordinator runs units of work against a provider's credential
// pool: select a credential, call, classify the failure, cool or revoke the
// credential, back off, repeat. Individual attempt failures never escape a
// run; callers see either the first success or a FinalFailure.
package coordinator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lexgate-dev/lexgate/internal/audit"
	"github.com/lexgate-dev/lexgate/internal/classify"
	"github.com/lexgate-dev/lexgate/internal/keypool"
	"github.com/lexgate-dev/lexgate/internal/metrics"
	"github.com/lexgate-dev/lexgate/internal/provider"
	lexerr "github.com/lexgate-dev/lexgate/pkg/errors"
)

// UnitOfWork makes exactly one call attempt with the bound client of the
// credential it is handed. It must return an error the classifier can
// inspect (an SDK error or classify.Upstream) rather than swallowing it.
type UnitOfWork[R any] func(ctx context.Context, cred *keypool.Credential) (R, error)

// RunConfig bounds one coordinator run.
type RunConfig struct {
	// MaxAttempts caps the attempt budget. Zero means pool size + 1: one
	// sweep of every credential plus one forced retry.
	MaxAttempts int

	// AttemptTimeout, when positive, wraps each unit-of-work invocation.
	AttemptTimeout time.Duration

	Backoff Backoff
}

// RunOption overrides one RunConfig field for a single run.
type RunOption func(*RunConfig)

func WithMaxAttempts(n int) RunOption {
	return func(cfg *RunConfig) { cfg.MaxAttempts = n }
}

func WithAttemptTimeout(d time.Duration) RunOption {
	return func(cfg *RunConfig) { cfg.AttemptTimeout = d }
}

func WithBackoff(b Backoff) RunOption {
	return func(cfg *RunConfig) { cfg.Backoff = b }
}

// Coordinator owns the retry loop shared by every provider call site.
type Coordinator struct {
	registry   *keypool.Registry
	classifier *classify.Classifier
	trail      *audit.Trail
	defaults   RunConfig
}

// New builds a coordinator. trail may be nil. Zero-valued defaults fall back
// to DefaultBackoff and pool-sized attempt budgets at run time.
func New(registry *keypool.Registry, classifier *classify.Classifier, trail *audit.Trail, defaults RunConfig) *Coordinator {
	if defaults.Backoff == (Backoff{}) {
		defaults.Backoff = DefaultBackoff()
	}
	return &Coordinator{
		registry:   registry,
		classifier: classifier,
		trail:      trail,
		defaults:   defaults,
	}
}

// Execute runs fn against prov's pool until it succeeds or the run's attempt
// budget is spent. On exhaustion the returned error carries a *FinalFailure;
// a canceled parent context aborts the run without penalizing the credential
// in flight.
func Execute[R any](ctx context.Context, c *Coordinator, prov provider.Name, fn UnitOfWork[R], opts ...RunOption) (R, error) {
	var zero R

	pool, err := c.registry.Pool(prov)
	if err != nil {
		return zero, err
	}

	cfg := c.defaults
	for _, opt := range opts {
		opt(&cfg)
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = pool.Len() + 1
	}

	runID := uuid.NewString()

	var (
		lastErr      error
		lastCategory classify.Category
		attemptsMade int
	)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return zero, c.abort(ctx, runID, prov, attemptsMade)
		}

		cred, forced, selErr := pool.Next()
		if selErr != nil {
			// Every credential is revoked; the run cannot proceed.
			if lastErr == nil {
				lastErr = selErr
			}
			if lastCategory == "" {
				lastCategory = classify.CategoryAuthError
			}
			return zero, c.exhausted(ctx, runID, prov, pool, attemptsMade, lastCategory, lastErr)
		}

		eventType := audit.EventCredentialSelected
		if forced {
			eventType = audit.EventCredentialForcedReuse
		}
		c.trail.Record(ctx, audit.Event{
			RunID:      runID,
			Type:       eventType,
			Provider:   prov,
			Credential: cred.ID(),
			Attempt:    attempt,
		})
		metrics.KeySelections.WithLabelValues(string(prov), boolLabel(forced)).Inc()

		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if cfg.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, cfg.AttemptTimeout)
		}

		start := time.Now()
		result, err := fn(attemptCtx, cred)
		elapsed := time.Since(start)
		cancel()

		attemptsMade = attempt

		if err == nil {
			pool.RecordSuccess(cred)
			c.publishPoolStats(pool)
			metrics.AttemptDuration.WithLabelValues(string(prov), "ok").Observe(elapsed.Seconds())
			metrics.Runs.WithLabelValues(string(prov), "success").Inc()
			c.trail.Record(ctx, audit.Event{
				RunID:      runID,
				Type:       audit.EventRunSucceeded,
				Provider:   prov,
				Credential: cred.ID(),
				Attempt:    attempt,
			})
			return result, nil
		}

		// A dead parent context means the caller moved on: abort without
		// blaming the credential for the wreckage.
		if ctx.Err() != nil {
			return zero, c.abort(ctx, runID, prov, attemptsMade)
		}

		cls := c.classifier.Classify(err)
		lastErr = err
		lastCategory = cls.Category
		metrics.AttemptDuration.WithLabelValues(string(prov), string(cls.Category)).Observe(elapsed.Seconds())
		metrics.KeyDisables.WithLabelValues(string(prov), string(cls.Category)).Inc()

		if cls.Permanent {
			pool.DisableHard(cred)
			c.trail.Record(ctx, audit.Event{
				RunID:      runID,
				Type:       audit.EventCredentialRevoked,
				Provider:   prov,
				Credential: cred.ID(),
				Category:   string(cls.Category),
				Attempt:    attempt,
				Detail:     err.Error(),
			})
		} else {
			pool.Disable(cred, cls.Cooldown)
			c.trail.Record(ctx, audit.Event{
				RunID:      runID,
				Type:       audit.EventCredentialDisabled,
				Provider:   prov,
				Credential: cred.ID(),
				Category:   string(cls.Category),
				Cooldown:   cls.Cooldown,
				Attempt:    attempt,
				Detail:     err.Error(),
			})
		}
		c.publishPoolStats(pool)

		if attempt == maxAttempts {
			break
		}

		if cls.Retryable {
			if err := sleep(ctx, cfg.Backoff.Delay(attempt)); err != nil {
				return zero, c.abort(ctx, runID, prov, attemptsMade)
			}
		}
	}

	return zero, c.exhausted(ctx, runID, prov, pool, attemptsMade, lastCategory, lastErr)
}

func (c *Coordinator) abort(ctx context.Context, runID string, prov provider.Name, attempts int) error {
	metrics.Runs.WithLabelValues(string(prov), "aborted").Inc()
	c.trail.Record(context.WithoutCancel(ctx), audit.Event{
		RunID:    runID,
		Type:     audit.EventRunAborted,
		Provider: prov,
		Attempt:  attempts,
	})
	return lexerr.Wrap(ctx.Err(), lexerr.CodeRetryAborted, "run aborted",
		lexerr.FieldProvider(string(prov)),
		lexerr.FieldRun(runID),
		lexerr.FieldAttempt(attempts))
}

func (c *Coordinator) exhausted(ctx context.Context, runID string, prov provider.Name, pool *keypool.Pool, attempts int, category classify.Category, lastErr error) error {
	c.publishPoolStats(pool)
	metrics.Runs.WithLabelValues(string(prov), "exhausted").Inc()

	ff := newFinalFailure(prov, attempts, category, lastErr)
	c.trail.Record(ctx, audit.Event{
		RunID:    runID,
		Type:     audit.EventRunExhausted,
		Provider: prov,
		Category: string(category),
		Attempt:  attempts,
		Detail:   ff.Error(),
	})
	return ff
}

func (c *Coordinator) publishPoolStats(pool *keypool.Pool) {
	s := pool.Stats()
	metrics.SetPoolCredentials(string(s.Provider), s.Usable, s.Cooling, s.Revoked)
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
