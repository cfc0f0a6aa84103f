// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sign-in metrics.

var (
	// LoginAttempts counts sign-in steps.
	// Labels:
	//   - step: "password", "two_factor"
	//   - outcome: "success", "challenged", "rejected", "locked", "error"
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_login_attempts_total",
			Help: "Total number of sign-in steps by outcome",
		},
		[]string{"step", "outcome"},
	)

	// LoginDuration measures the time from credential receipt to response.
	LoginDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "gateway_login_duration_seconds",
			Help: "Duration of sign-in steps in seconds",
			// Optimized for auth latency: 10ms to 10s
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"step"},
	)

	// LockoutsTotal counts subjects locked out after repeated failures.
	LockoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_login_lockouts_total",
			Help: "Total number of sign-in lockouts",
		},
		[]string{"subject_kind"},
	)

	// LogoutsTotal counts explicit logouts.
	LogoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_logouts_total",
			Help: "Total number of logouts",
		},
	)
)

// Login steps.
const (
	StepPassword  = "password"
	StepTwoFactor = "two_factor"
)

// RecordLoginAttempt records one sign-in step.
func RecordLoginAttempt(step, outcome string, duration time.Duration) {
	LoginAttempts.WithLabelValues(step, outcome).Inc()
	LoginDuration.WithLabelValues(step).Observe(duration.Seconds())
}
