// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultRecentCapacity = 256

// Trail fans each event out to the structured log, an in-memory ring of
// recent events, and (when configured) the sqlite journal. Journal failures
// are logged and swallowed: the trail must never fail a request. A nil Trail
// discards everything.
type Trail struct {
	logger  *slog.Logger
	journal *Journal
	nowFunc func() time.Time

	mu   sync.Mutex
	ring []Event
	next int
	size int
}

// NewTrail builds a trail keeping the most recent `capacity` events in
// memory (default 256 when <= 0). journal may be nil for log-only trails.
func NewTrail(logger *slog.Logger, capacity int, journal *Journal) *Trail {
	if logger == nil {
		logger = slog.Default()
	}
	if capacity <= 0 {
		capacity = defaultRecentCapacity
	}
	return &Trail{
		logger:  logger,
		journal: journal,
		nowFunc: time.Now,
		ring:    make([]Event, capacity),
	}
}

// SetNowFunc overrides the clock. Tests only.
func (t *Trail) SetNowFunc(now func() time.Time) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nowFunc = now
}

// Record stores one event. It stamps the event time when unset, emits a
// structured log line, appends to the ring, and forwards to the journal.
func (t *Trail) Record(ctx context.Context, ev Event) {
	if t == nil {
		return
	}

	t.mu.Lock()
	if ev.Time.IsZero() {
		ev.Time = t.nowFunc()
	}
	t.ring[t.next] = ev
	t.next = (t.next + 1) % len(t.ring)
	if t.size < len(t.ring) {
		t.size++
	}
	t.mu.Unlock()

	t.log(ctx, ev)

	if t.journal != nil {
		if err := t.journal.Append(ctx, ev); err != nil {
			t.logger.ErrorContext(ctx, "audit journal append failed",
				"type", string(ev.Type), "run_id", ev.RunID, "error", err)
		}
	}
}

func (t *Trail) log(ctx context.Context, ev Event) {
	attrs := make([]any, 0, 14)
	attrs = append(attrs, "type", string(ev.Type))
	if ev.RunID != "" {
		attrs = append(attrs, "run_id", ev.RunID)
	}
	if ev.Provider != "" {
		attrs = append(attrs, "provider", ev.Provider.String())
	}
	if ev.Credential != "" {
		attrs = append(attrs, "credential", ev.Credential)
	}
	if ev.Category != "" {
		attrs = append(attrs, "category", ev.Category)
	}
	if ev.Cooldown > 0 {
		attrs = append(attrs, "cooldown", ev.Cooldown.String())
	}
	if ev.Attempt > 0 {
		attrs = append(attrs, "attempt", ev.Attempt)
	}
	if ev.Detail != "" {
		attrs = append(attrs, "detail", ev.Detail)
	}

	t.logger.Log(ctx, levelFor(ev.Type), "audit event", attrs...)
}

// levelFor keeps the hot path quiet: hand-outs and successes log at debug,
// anything that removes capacity or ends a run badly logs at warn or error.
func levelFor(typ EventType) slog.Level {
	switch typ {
	case EventCredentialSelected, EventRunSucceeded:
		return slog.LevelDebug
	case EventRunExhausted:
		return slog.LevelError
	case EventRunAborted:
		return slog.LevelInfo
	default:
		return slog.LevelWarn
	}
}

// Recent returns up to n events, newest first. n <= 0 returns everything
// retained.
func (t *Trail) Recent(n int) []Event {
	if t == nil {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if n <= 0 || n > t.size {
		n = t.size
	}
	out := make([]Event, 0, n)
	for i := 1; i <= n; i++ {
		idx := (t.next - i + len(t.ring)) % len(t.ring)
		out = append(out, t.ring[idx])
	}
	return out
}

// Close releases the journal, if any.
func (t *Trail) Close() error {
	if t == nil || t.journal == nil {
		return nil
	}
	return t.journal.Close()
}
