// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker/v2"

	"github.com/tomtom215/skillswap-gateway/internal/authz"
	"github.com/tomtom215/skillswap-gateway/internal/guard"
	"github.com/tomtom215/skillswap-gateway/internal/lazyroute"
	"github.com/tomtom215/skillswap-gateway/internal/logging"
	"github.com/tomtom215/skillswap-gateway/internal/middleware"
	"github.com/tomtom215/skillswap-gateway/internal/pages"
)

// SessionSource resolves sessions and reports whether it finished starting.
type SessionSource interface {
	guard.SessionSource
	Ready() bool
}

// AuthRoutes registers the sign-in endpoints.
type AuthRoutes interface {
	Routes(r chi.Router, credentialLimits ...func(http.Handler) http.Handler)
}

// Upstream reports the SkillSwap API circuit breaker.
type Upstream interface {
	BreakerState() gobreaker.State
}

// Deps are the components the router serves.
type Deps struct {
	Sessions SessionSource
	Auth     AuthRoutes
	Registry *lazyroute.Registry
	Site     *pages.Site
	Guard    *guard.Guard
	Upstream Upstream
	// Policy enables the policy administration API under /api/policy. Nil
	// when grants come from the SkillSwap API.
	Policy *authz.PolicyResolver
	// Monitor is optional.
	Monitor *middleware.PerformanceMonitor
	// ExposeMetrics serves the Prometheus registry at /metrics.
	ExposeMetrics bool
}

// Router wires the gateway's HTTP surface.
type Router struct {
	deps          Deps
	chiMiddleware *ChiMiddleware
	security      *logging.SecurityLogger
	startTime     time.Time
}

// NewRouter creates a router. A nil mw uses DefaultChiMiddlewareConfig.
func NewRouter(deps Deps, mw *ChiMiddleware) (*Router, error) {
	switch {
	case deps.Sessions == nil:
		return nil, errors.New("api: session source is required")
	case deps.Auth == nil:
		return nil, errors.New("api: auth routes are required")
	case deps.Registry == nil || deps.Site == nil:
		return nil, errors.New("api: route registry and site are required")
	case deps.Guard == nil:
		return nil, errors.New("api: guard is required")
	}
	if mw == nil {
		mw = NewChiMiddleware(nil)
	}
	return &Router{
		deps:          deps,
		chiMiddleware: mw,
		security:      logging.NewSecurityLogger(),
		startTime:     time.Now(),
	}, nil
}

// SetupChi builds the handler serving every gateway route.
func (router *Router) SetupChi() (http.Handler, error) {
	r := chi.NewRouter()

	// ========================
	// Global Middleware Stack
	// ========================
	// Instrumentation reads the route pattern after routing, so it wraps
	// everything else. Recoverer sits inside it so panics count as 500s.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.PrometheusMetrics)
	if router.deps.Monitor != nil {
		r.Use(router.deps.Monitor.Middleware)
	}
	r.Use(chimiddleware.Recoverer)
	r.Use(SecurityHeaders)
	r.Use(router.chiMiddleware.CORS())
	r.Use(chimiddleware.GetHead)
	r.Use(middleware.Compression)

	// ========================
	// Operational Endpoints
	// ========================
	r.Group(func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitHealth())
		r.Get("/healthz", router.Live)
		r.Get("/readyz", router.Ready)
		if router.deps.ExposeMetrics {
			r.Handle("/metrics", promhttp.Handler())
		}
	})

	r.Handle("/static/*", http.StripPrefix("/static/", staticHandler()))

	// ========================
	// Authentication Endpoints
	// ========================
	// Credential submissions get the strictest limit on top of the auth one.
	r.Group(func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitAuth())
		router.deps.Auth.Routes(r, router.chiMiddleware.RateLimitLogin())
	})

	r.With(router.chiMiddleware.RateLimitPreload()).Post("/_preload/{name}", router.Preload)

	// ========================
	// Policy Administration
	// ========================
	if router.deps.Policy != nil {
		protect, err := router.deps.Guard.Protect(PolicyRouteName, PolicyAdminRequirement)
		if err != nil {
			return nil, err
		}
		r.Route("/api/policy", func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimitAuth())
			r.Use(protect)
			router.policyRoutes(r)
		})
	}

	// ========================
	// Pages
	// ========================
	var mountErr error
	r.Group(func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		mountErr = router.deps.Site.Mount(r, router.deps.Registry, router.deps.Guard)
	})
	if mountErr != nil {
		return nil, mountErr
	}

	r.NotFound(router.NotFound)
	r.MethodNotAllowed(router.MethodNotAllowed)

	return r, nil
}

// canPreload reports whether the caller may warm up entry. Protected pages
// are only loaded for signed-in users; the guard still decides on access.
func canPreload(entry lazyroute.Entry, session authz.Session) bool {
	return entry.Requirement.IsPublic() || session.IsAuthenticated
}
