// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

package middleware

import (
	"net/http"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/skillswap-gateway/internal/logging"
)

// RequestMetrics is one observed request.
type RequestMetrics struct {
	Route      string
	Method     string
	Duration   time.Duration
	StatusCode int
	Timestamp  time.Time
}

// EndpointStats contains aggregated statistics for a route
type EndpointStats struct {
	Route        string
	RequestCount int
	Errors       int
	Avg          time.Duration
	P50          time.Duration
	P95          time.Duration
	P99          time.Duration
	Max          time.Duration
}

// PerformanceMonitor keeps a sliding window of recent requests for the
// admin metrics page and warns about slow ones.
//
// Thread Safety: safe for concurrent use.
type PerformanceMonitor struct {
	slowThreshold time.Duration

	mu      sync.RWMutex
	metrics []RequestMetrics
	next    int
	full    bool
}

// NewPerformanceMonitor creates a monitor keeping the last window requests.
// Requests slower than slowThreshold are logged; zero disables the warning.
func NewPerformanceMonitor(window int, slowThreshold time.Duration) *PerformanceMonitor {
	if window <= 0 {
		window = 1000
	}
	return &PerformanceMonitor{
		slowThreshold: slowThreshold,
		metrics:       make([]RequestMetrics, window),
	}
}

// RecordRequest adds a request to the window, evicting the oldest.
func (pm *PerformanceMonitor) RecordRequest(m RequestMetrics) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.metrics[pm.next] = m
	pm.next = (pm.next + 1) % len(pm.metrics)
	if pm.next == 0 {
		pm.full = true
	}
}

func (pm *PerformanceMonitor) window() []RequestMetrics {
	if pm.full {
		return pm.metrics
	}
	return pm.metrics[:pm.next]
}

// Stats returns per-route statistics over the window, busiest first.
func (pm *PerformanceMonitor) Stats() []EndpointStats {
	pm.mu.RLock()
	byRoute := make(map[string][]RequestMetrics)
	for _, m := range pm.window() {
		key := m.Method + " " + m.Route
		byRoute[key] = append(byRoute[key], m)
	}
	pm.mu.RUnlock()

	stats := make([]EndpointStats, 0, len(byRoute))
	for route, ms := range byRoute {
		durations := make([]time.Duration, len(ms))
		var sum time.Duration
		errs := 0
		for i, m := range ms {
			durations[i] = m.Duration
			sum += m.Duration
			if m.StatusCode >= 500 {
				errs++
			}
		}
		slices.Sort(durations)

		stats = append(stats, EndpointStats{
			Route:        route,
			RequestCount: len(ms),
			Errors:       errs,
			Avg:          sum / time.Duration(len(ms)),
			P50:          percentile(durations, 0.50),
			P95:          percentile(durations, 0.95),
			P99:          percentile(durations, 0.99),
			Max:          durations[len(durations)-1],
		})
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].RequestCount != stats[j].RequestCount {
			return stats[i].RequestCount > stats[j].RequestCount
		}
		return stats[i].Route < stats[j].Route
	})
	return stats
}

// Middleware creates an HTTP middleware for performance monitoring
func (pm *PerformanceMonitor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)
		route := RoutePattern(r)
		pm.RecordRequest(RequestMetrics{
			Route:      route,
			Method:     r.Method,
			Duration:   duration,
			StatusCode: wrapper.statusCode,
			Timestamp:  start,
		})

		if pm.slowThreshold > 0 && duration > pm.slowThreshold {
			logging.Ctx(r.Context()).Warn().
				Str("method", r.Method).
				Str("route", route).
				Dur("duration", duration).
				Msg("Slow request detected")
		}
	})
}

// percentile calculates the percentile value from a sorted slice
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	index := int(float64(len(sorted)-1) * p)
	return sorted[index]
}
