// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

// Package metrics exposes the process-wide prometheus collectors. Collectors
// register on the default registry at init; the ops server serves them on
// /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// KeySelections counts credential hand-outs per provider. The forced
	// label distinguishes round-robin selections from forced reuse of a
	// cooling credential.
	KeySelections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexgate_key_selections_total",
			Help: "Total number of credential selections",
		},
		[]string{"provider", "forced"},
	)

	// KeyDisables counts credential cooldowns and revocations per provider
	// and failure category.
	KeyDisables = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexgate_key_disables_total",
			Help: "Total number of credential disables",
		},
		[]string{"provider", "category"},
	)

	// Runs counts coordinator runs by final outcome (success, exhausted,
	// aborted).
	Runs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexgate_runs_total",
			Help: "Total number of coordinator runs",
		},
		[]string{"provider", "outcome"},
	)

	// AttemptDuration tracks per-attempt wall time. The category label is
	// "ok" for successful attempts and the failure category otherwise.
	AttemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lexgate_attempt_duration_seconds",
			Help:    "Duration of individual provider call attempts in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "category"},
	)

	// RatelimitChecks counts limiter decisions per resource.
	RatelimitChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lexgate_ratelimit_checks_total",
			Help: "Total number of rate limit checks",
		},
		[]string{"resource", "allowed"},
	)

	// PoolCredentials reports the current credential count per provider and
	// health state (usable, cooling, revoked).
	PoolCredentials = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lexgate_pool_credentials",
			Help: "Current number of pool credentials by state",
		},
		[]string{"provider", "state"},
	)
)

// SetPoolCredentials updates the per-state credential gauges for one provider.
func SetPoolCredentials(provider string, usable, cooling, revoked int) {
	PoolCredentials.WithLabelValues(provider, "usable").Set(float64(usable))
	PoolCredentials.WithLabelValues(provider, "cooling").Set(float64(cooling))
	PoolCredentials.WithLabelValues(provider, "revoked").Set(float64(revoked))
}
