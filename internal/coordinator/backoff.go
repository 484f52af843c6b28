// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

package coordinator

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Backoff shapes the pause between retryable attempts: exponential growth
// capped at Max, with full jitter so concurrent runs don't stampede the same
// provider in lockstep.
type Backoff struct {
	Initial    time.Duration
	Multiplier float64
	Max        time.Duration
}

// DefaultBackoff returns the standard curve: 200ms doubling up to 5s.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:    200 * time.Millisecond,
		Multiplier: 2.0,
		Max:        5 * time.Second,
	}
}

// Delay returns the jittered pause after the given failed attempt (1-based).
// A non-positive Initial disables backoff entirely.
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Initial <= 0 || attempt < 1 {
		return 0
	}

	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}

	base := float64(b.Initial) * math.Pow(mult, float64(attempt-1))
	if b.Max > 0 && base > float64(b.Max) {
		base = float64(b.Max)
	}

	d := time.Duration(base)
	if d <= 0 {
		return 0
	}
	return rand.N(d)
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
