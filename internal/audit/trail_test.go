// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

package audit_test

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/lexgate-dev/lexgate/internal/audit"
	"github.com/lexgate-dev/lexgate/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTrail(capacity int) (*audit.Trail, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return audit.NewTrail(logger, capacity, nil), &buf
}

func TestTrailRecentNewestFirst(t *testing.T) {
	trail, _ := newTestTrail(8)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		trail.Record(ctx, audit.Event{
			Type:  audit.EventCredentialSelected,
			RunID: fmt.Sprintf("run-%d", i),
		})
	}

	got := trail.Recent(0)
	require.Len(t, got, 3)
	assert.Equal(t, "run-3", got[0].RunID)
	assert.Equal(t, "run-2", got[1].RunID)
	assert.Equal(t, "run-1", got[2].RunID)

	got = trail.Recent(2)
	require.Len(t, got, 2)
	assert.Equal(t, "run-3", got[0].RunID)
}

func TestTrailRingOverwritesOldest(t *testing.T) {
	trail, _ := newTestTrail(4)
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		trail.Record(ctx, audit.Event{Type: audit.EventRunSucceeded, Attempt: i})
	}

	got := trail.Recent(0)
	require.Len(t, got, 4)
	assert.Equal(t, 10, got[0].Attempt)
	assert.Equal(t, 7, got[3].Attempt)
}

func TestTrailStampsTime(t *testing.T) {
	trail, _ := newTestTrail(4)
	fixed := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	trail.SetNowFunc(func() time.Time { return fixed })

	trail.Record(context.Background(), audit.Event{Type: audit.EventCredentialSelected})
	require.Len(t, trail.Recent(1), 1)
	assert.Equal(t, fixed, trail.Recent(1)[0].Time)

	// An explicit timestamp is preserved.
	explicit := fixed.Add(-time.Hour)
	trail.Record(context.Background(), audit.Event{Type: audit.EventRunAborted, Time: explicit})
	assert.Equal(t, explicit, trail.Recent(1)[0].Time)
}

func TestTrailLogsStructuredAttrs(t *testing.T) {
	trail, buf := newTestTrail(4)

	trail.Record(context.Background(), audit.Event{
		Type:       audit.EventCredentialDisabled,
		RunID:      "run-9",
		Provider:   provider.Anthropic,
		Credential: "ab12cd34",
		Category:   "rate_limited",
		Cooldown:   30 * time.Second,
		Attempt:    2,
	})

	out := buf.String()
	assert.Contains(t, out, "audit event")
	assert.Contains(t, out, "type=credential.disabled")
	assert.Contains(t, out, "run_id=run-9")
	assert.Contains(t, out, "provider=anthropic")
	assert.Contains(t, out, "credential=ab12cd34")
	assert.Contains(t, out, "category=rate_limited")
	assert.Contains(t, out, "cooldown=30s")
	assert.Contains(t, out, "level=WARN")
}

func TestTrailLogLevels(t *testing.T) {
	tests := []struct {
		typ   audit.EventType
		level string
	}{
		{audit.EventCredentialSelected, "DEBUG"},
		{audit.EventRunSucceeded, "DEBUG"},
		{audit.EventRunAborted, "INFO"},
		{audit.EventCredentialForcedReuse, "WARN"},
		{audit.EventCredentialDisabled, "WARN"},
		{audit.EventCredentialRevoked, "WARN"},
		{audit.EventLimiterRejected, "WARN"},
		{audit.EventRunExhausted, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			trail, buf := newTestTrail(4)
			trail.Record(context.Background(), audit.Event{Type: tt.typ})
			assert.Contains(t, buf.String(), "level="+tt.level)
		})
	}
}

func TestTrailForwardsToJournal(t *testing.T) {
	j := openTestJournal(t)
	var buf bytes.Buffer
	trail := audit.NewTrail(slog.New(slog.NewTextHandler(&buf, nil)), 4, j)
	ctx := context.Background()

	trail.Record(ctx, audit.Event{Type: audit.EventRunExhausted, RunID: "run-1", Provider: provider.OpenAI})

	got, err := j.Query(ctx, audit.Filter{RunID: "run-1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, audit.EventRunExhausted, got[0].Type)
	assert.False(t, got[0].Time.IsZero())
}

func TestNilTrailIsSafe(t *testing.T) {
	var trail *audit.Trail

	trail.Record(context.Background(), audit.Event{Type: audit.EventRunSucceeded})
	assert.Nil(t, trail.Recent(10))
	assert.NoError(t, trail.Close())
}
