// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

/*
Package api assembles the gateway's HTTP surface on a Chi router.

Routes:

	GET  /healthz            liveness
	GET  /readyz             readiness (session store usable)
	GET  /metrics            Prometheus registry, when enabled
	GET  /static/*           embedded stylesheet and preload script
	     /auth/*             sign-in, two-factor, logout, refresh, session
	POST /_preload/{name}    warm up a lazy route (204, or 404 if unknown)
	     everything else     the guarded page table from package pages

Middleware Stack (outermost first):

  - RequestID and RealIP
  - PrometheusMetrics and the optional PerformanceMonitor
  - Recoverer, so a panicking page is answered with 500 and still counted
  - SecurityHeaders and CORS
  - GetHead and Compression

Rate limits use go-chi/httprate keyed by client IP. Credential submissions
(POST /auth/login and POST /auth/2fa) have the strictest budget; every
rejection increments gateway_rate_limit_hits_total{limiter}.

Preloading a protected page requires a signed-in session. The guard still
decides on access when the page is requested, so preloading never grants
anything; it only avoids loading pages for visitors who cannot open them.
*/
package api
