// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

package lazyroute

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LoadsTotal counts route imports by outcome.
	LoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_lazyroute_loads_total",
			Help: "Total number of lazy route imports by result",
		},
		[]string{"route", "result"},
	)

	// LoadDuration tracks how long route imports take.
	LoadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_lazyroute_load_duration_seconds",
			Help:    "Duration of lazy route imports in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// BoundaryErrors counts failures contained by the error boundary.
	BoundaryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_lazyroute_boundary_errors_total",
			Help: "Total number of route failures contained by the error boundary",
		},
		[]string{"route", "phase"},
	)
)

// RecordLoad records one import.
func RecordLoad(route string, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	LoadsTotal.WithLabelValues(route, result).Inc()
	LoadDuration.WithLabelValues(route).Observe(duration.Seconds())
}
