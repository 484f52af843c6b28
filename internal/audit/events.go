// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

// Package audit records the lineage of every coordinator run: which
// credential served which attempt, why credentials were cooled or revoked,
// and how each run ended. Events carry masked credential ids only — secrets
// never enter the trail.
package audit

import (
	"time"

	"github.com/lexgate-dev/lexgate/internal/provider"
)

// EventType names one kind of trail event.
type EventType string

const (
	EventCredentialSelected    EventType = "credential.selected"
	EventCredentialForcedReuse EventType = "credential.forced_reuse"
	EventCredentialDisabled    EventType = "credential.disabled"
	EventCredentialRevoked     EventType = "credential.revoked"
	EventRunSucceeded          EventType = "run.succeeded"
	EventRunExhausted          EventType = "run.exhausted"
	EventRunAborted            EventType = "run.aborted"
	EventLimiterRejected       EventType = "limiter.rejected"
)

// Event is one trail entry. Zero-valued fields are omitted from logs and
// stored as empty columns; Time is filled at record time when zero.
type Event struct {
	Time       time.Time     `json:"time"`
	RunID      string        `json:"run_id,omitempty"`
	Type       EventType     `json:"type"`
	Provider   provider.Name `json:"provider,omitempty"`
	Credential string        `json:"credential,omitempty"`
	Category   string        `json:"category,omitempty"`
	Cooldown   time.Duration `json:"cooldown,omitempty"`
	Attempt    int           `json:"attempt,omitempty"`
	Detail     string        `json:"detail,omitempty"`
}
