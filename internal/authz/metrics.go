// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

package authz

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DecisionsTotal counts guard decisions by status and route.
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_authz_decisions_total",
			Help: "Total number of route authorization decisions",
		},
		[]string{"status", "route"},
	)

	// DecisionDuration tracks the time to gather inputs and evaluate a route.
	DecisionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "gateway_authz_decision_duration_seconds",
			Help: "Duration of route authorization decisions in seconds",
			// Mostly cache hits; the tail is bounded by the permission wait budget.
			Buckets: []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25},
		},
	)

	// PermissionResolutionsTotal counts PermissionSource answers by outcome.
	PermissionResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_permission_resolutions_total",
			Help: "Total number of permission set resolutions by result",
		},
		[]string{"result"},
	)

	// PermissionLookupDuration tracks Resolver latency.
	PermissionLookupDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_permission_lookup_duration_seconds",
			Help:    "Duration of permission lookups against the resolver",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"success"},
	)

	// PolicyChangesTotal counts policy mutations and reloads.
	PolicyChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_authz_policy_changes_total",
			Help: "Total number of authorization policy changes",
		},
		[]string{"kind"},
	)

	// AuditEventsDropped counts audit events lost to a full buffer.
	AuditEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_authz_audit_dropped_total",
			Help: "Total number of authorization audit events dropped",
		},
	)
)

// RecordDecision records one guard decision.
func RecordDecision(route string, status Status, duration time.Duration) {
	DecisionsTotal.WithLabelValues(status.String(), route).Inc()
	DecisionDuration.Observe(duration.Seconds())
}

// RecordPermissionResolution records a PermissionSource outcome:
// deferred, pending, resolved or failed.
func RecordPermissionResolution(result string) {
	PermissionResolutionsTotal.WithLabelValues(result).Inc()
}

// RecordPermissionLookup records one Resolver call.
func RecordPermissionLookup(duration time.Duration, err error) {
	success := "true"
	if err != nil {
		success = "false"
	}
	PermissionLookupDuration.WithLabelValues(success).Observe(duration.Seconds())
}

// RecordPolicyChange records a policy mutation.
func RecordPolicyChange(kind string) {
	PolicyChangesTotal.WithLabelValues(kind).Inc()
}
