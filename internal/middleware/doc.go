// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

/*
Package middleware provides HTTP middleware components for the gateway.

Key Components:

  - RequestID: UUID request IDs, kept from upstream proxies, propagated to logs
  - PrometheusMetrics: request count, latency and in-flight instrumentation
    labeled by chi route pattern
  - Compression: gzip for clients that accept it
  - PerformanceMonitor: sliding window of recent requests with per-route
    percentiles, shown on the admin metrics page

All middleware has the chi signature func(http.Handler) http.Handler:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
	r.Use(monitor.Middleware)
	r.Use(middleware.Compression)

PrometheusMetrics and PerformanceMonitor read the route pattern after the
handler returns, so they must run on the top-level router.
*/
package middleware
