// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	lexerr "github.com/lexgate-dev/lexgate/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, rules map[string]Rule) (*Limiter, *time.Time) {
	t.Helper()

	l, err := New(rules)
	require.NoError(t, err)

	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	l.SetNowFunc(func() time.Time { return now })
	return l, &now
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

func TestNewRejectsBadRules(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
	}{
		{"zero limit", Rule{Limit: 0, Window: time.Minute}},
		{"negative limit", Rule{Limit: -5, Window: time.Minute}},
		{"zero window", Rule{Limit: 10, Window: 0}},
		{"negative window", Rule{Limit: 10, Window: -time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(map[string]Rule{"search": tt.rule})
			require.Error(t, err)
			assert.True(t, lexerr.HasCode(err, lexerr.CodeConfigValidateInvalidValue))
		})
	}
}

func TestNewAcceptsEmptyRuleSet(t *testing.T) {
	l, err := New(nil)
	require.NoError(t, err)
	assert.NoError(t, l.Check("anything", "anyone", 1))
}

func TestRulesReturnsCopy(t *testing.T) {
	l, _ := newTestLimiter(t, map[string]Rule{"search": {Limit: 3, Window: time.Minute}})

	rules := l.Rules()
	rules["search"] = Rule{Limit: 1000, Window: time.Hour}

	assert.Equal(t, Rule{Limit: 3, Window: time.Minute}, l.Rules()["search"])
}

// ---------------------------------------------------------------------------
// Fixed-window accounting
// ---------------------------------------------------------------------------

func TestCheckAllowsUpToLimitThenRejects(t *testing.T) {
	l, _ := newTestLimiter(t, map[string]Rule{"search": {Limit: 3, Window: time.Minute}})

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Check("search", "conv-1", 1), "check %d", i+1)
	}

	err := l.Check("search", "conv-1", 1)
	require.Error(t, err)

	rle, ok := AsRateLimitError(err)
	require.True(t, ok)
	assert.Equal(t, "search", rle.Resource)
	assert.Equal(t, "conv-1", rle.Identifier)
	assert.Equal(t, 3, rle.Limit)
	assert.Equal(t, time.Minute, rle.RetryAfter)
}

func TestCheckRetryAfterShrinksAsWindowAges(t *testing.T) {
	l, now := newTestLimiter(t, map[string]Rule{"search": {Limit: 1, Window: time.Minute}})

	require.NoError(t, l.Check("search", "conv-1", 1))

	*now = now.Add(45 * time.Second)
	rle, ok := AsRateLimitError(l.Check("search", "conv-1", 1))
	require.True(t, ok)
	assert.Equal(t, 15*time.Second, rle.RetryAfter)
	assert.Equal(t, now.Add(15*time.Second), rle.Reset)
}

func TestCheckNewWindowReadmits(t *testing.T) {
	l, now := newTestLimiter(t, map[string]Rule{"search": {Limit: 30, Window: time.Minute}})

	for i := 0; i < 30; i++ {
		require.NoError(t, l.Check("search", "conv-1", 1))
	}
	require.Error(t, l.Check("search", "conv-1", 1))

	// The window restarts exactly at start+window, not a tick later.
	*now = now.Add(time.Minute)
	assert.NoError(t, l.Check("search", "conv-1", 1))
}

func TestCheckRejectionDoesNotConsumeNextWindow(t *testing.T) {
	l, now := newTestLimiter(t, map[string]Rule{"search": {Limit: 2, Window: time.Minute}})

	require.NoError(t, l.Check("search", "conv-1", 1))
	require.NoError(t, l.Check("search", "conv-1", 1))

	// Hammer the closed window; none of these may leak into the next one.
	for i := 0; i < 10; i++ {
		require.Error(t, l.Check("search", "conv-1", 1))
	}

	*now = now.Add(time.Minute)
	assert.NoError(t, l.Check("search", "conv-1", 1))
	assert.NoError(t, l.Check("search", "conv-1", 1))
	assert.Error(t, l.Check("search", "conv-1", 1))
}

func TestCheckUnknownResourceIsUnmetered(t *testing.T) {
	l, _ := newTestLimiter(t, map[string]Rule{"search": {Limit: 1, Window: time.Minute}})

	for i := 0; i < 50; i++ {
		require.NoError(t, l.Check("chat", "conv-1", 1))
	}
	assert.Equal(t, 0, l.WindowCount())
}

func TestCheckIsolatesIdentifiersAndResources(t *testing.T) {
	l, _ := newTestLimiter(t, map[string]Rule{
		"search": {Limit: 1, Window: time.Minute},
		"export": {Limit: 1, Window: time.Minute},
	})

	require.NoError(t, l.Check("search", "conv-1", 1))
	require.Error(t, l.Check("search", "conv-1", 1))

	// Same resource, different identifier.
	assert.NoError(t, l.Check("search", "conv-2", 1))

	// Same identifier, different resource.
	assert.NoError(t, l.Check("export", "conv-1", 1))
}

// ---------------------------------------------------------------------------
// Cost handling
// ---------------------------------------------------------------------------

func TestCheckCostSpendsMultipleUnits(t *testing.T) {
	l, _ := newTestLimiter(t, map[string]Rule{"tokens": {Limit: 10, Window: time.Minute}})

	require.NoError(t, l.Check("tokens", "conv-1", 7))
	require.NoError(t, l.Check("tokens", "conv-1", 3))
	assert.Error(t, l.Check("tokens", "conv-1", 1))
}

func TestCheckCostAboveLimitNeverPasses(t *testing.T) {
	l, _ := newTestLimiter(t, map[string]Rule{"tokens": {Limit: 5, Window: time.Minute}})

	rle, ok := AsRateLimitError(l.Check("tokens", "conv-1", 6))
	require.True(t, ok)
	assert.Equal(t, time.Minute, rle.RetryAfter)

	// The failed oversize spend left the budget untouched.
	assert.NoError(t, l.Check("tokens", "conv-1", 5))
}

func TestCheckClampsNonPositiveCost(t *testing.T) {
	l, _ := newTestLimiter(t, map[string]Rule{"search": {Limit: 2, Window: time.Minute}})

	require.NoError(t, l.Check("search", "conv-1", 0))
	require.NoError(t, l.Check("search", "conv-1", -3))
	assert.Error(t, l.Check("search", "conv-1", 1))
}

// ---------------------------------------------------------------------------
// Error surface
// ---------------------------------------------------------------------------

func TestRateLimitErrorCarriesCode(t *testing.T) {
	l, _ := newTestLimiter(t, map[string]Rule{"search": {Limit: 1, Window: time.Minute}})

	require.NoError(t, l.Check("search", "conv-1", 1))
	err := l.Check("search", "conv-1", 1)
	require.Error(t, err)

	assert.True(t, lexerr.HasCode(err, lexerr.CodeRateLimitExceeded))
	assert.True(t, lexerr.IsRateLimited(err))
	assert.Equal(t, 429, lexerr.HTTPStatus(err))
	assert.Contains(t, err.Error(), "search")
}

func TestAsRateLimitErrorUnwrapsChain(t *testing.T) {
	l, _ := newTestLimiter(t, map[string]Rule{"search": {Limit: 1, Window: time.Minute}})

	require.NoError(t, l.Check("search", "conv-1", 1))
	wrapped := fmt.Errorf("pre-flight: %w", l.Check("search", "conv-1", 1))

	rle, ok := AsRateLimitError(wrapped)
	require.True(t, ok)
	assert.Equal(t, "search", rle.Resource)

	_, ok = AsRateLimitError(fmt.Errorf("unrelated"))
	assert.False(t, ok)
}

// ---------------------------------------------------------------------------
// Sweeping
// ---------------------------------------------------------------------------

func TestSweepDropsExpiredWindowsOnly(t *testing.T) {
	l, now := newTestLimiter(t, map[string]Rule{
		"search": {Limit: 5, Window: time.Minute},
		"export": {Limit: 5, Window: time.Hour},
	})

	require.NoError(t, l.Check("search", "conv-1", 1))
	require.NoError(t, l.Check("export", "conv-1", 1))
	require.Equal(t, 2, l.WindowCount())

	*now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 1, l.WindowCount())

	statuses := l.Snapshot()
	require.Len(t, statuses, 1)
	assert.Equal(t, "export", statuses[0].Resource)
}

func TestSnapshotSortedAndLiveOnly(t *testing.T) {
	l, now := newTestLimiter(t, map[string]Rule{
		"export": {Limit: 5, Window: time.Minute},
		"search": {Limit: 5, Window: time.Minute},
	})

	require.NoError(t, l.Check("search", "conv-b", 1))
	require.NoError(t, l.Check("search", "conv-a", 2))
	require.NoError(t, l.Check("export", "conv-a", 1))

	statuses := l.Snapshot()
	require.Len(t, statuses, 3)
	assert.Equal(t, "export", statuses[0].Resource)
	assert.Equal(t, "conv-a", statuses[1].Identifier)
	assert.Equal(t, "conv-b", statuses[2].Identifier)
	assert.Equal(t, 2, statuses[1].Count)
	assert.Equal(t, now.Add(time.Minute), statuses[1].Reset)

	// Expired windows disappear from the snapshot even before a sweep.
	*now = now.Add(2 * time.Minute)
	assert.Empty(t, l.Snapshot())
}

func TestRunStopsOnCancel(t *testing.T) {
	l, err := New(map[string]Rule{"search": {Limit: 1, Window: time.Millisecond}})
	require.NoError(t, err)
	require.NoError(t, l.Check("search", "conv-1", 1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return l.WindowCount() == 0 },
		time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

// ---------------------------------------------------------------------------
// Concurrency
// ---------------------------------------------------------------------------

func TestCheckConcurrentSpendNeverExceedsLimit(t *testing.T) {
	const limit = 64
	l, _ := newTestLimiter(t, map[string]Rule{"search": {Limit: limit, Window: time.Hour}})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				if l.Check("search", "shared", 1) == nil {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	// 160 concurrent checks against a budget of 64: exactly the budget passes.
	assert.Equal(t, limit, allowed)
}
