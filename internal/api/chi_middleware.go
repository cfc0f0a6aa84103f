// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/tomtom215/skillswap-gateway/internal/logging"
	"github.com/tomtom215/skillswap-gateway/internal/metrics"
	"github.com/tomtom215/skillswap-gateway/internal/views"
)

// ChiMiddlewareConfig holds configuration for Chi middleware factories.
type ChiMiddlewareConfig struct {
	// CORS configuration
	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSExposedHeaders   []string
	CORSAllowCredentials bool
	CORSMaxAge           int // seconds

	// Rate limiting configuration
	RateLimitRequests int
	RateLimitWindow   time.Duration
	RateLimitDisabled bool

	// Credential submissions (password and one-time code) get their own,
	// stricter budget.
	LoginRateLimit RateLimitConfig
}

// RateLimitConfig defines rate limit parameters for specific endpoints.
type RateLimitConfig struct {
	// Requests is the number of requests allowed in the window
	Requests int
	// Window is the time window for rate limiting
	Window time.Duration
}

// Endpoint-specific rate limits.
var (
	// RateLimitLogin is very strict for credential submissions
	RateLimitLogin = RateLimitConfig{Requests: 10, Window: 5 * time.Minute}

	// RateLimitAuth covers the rest of /auth, which the client polls
	RateLimitAuth = RateLimitConfig{Requests: 60, Window: time.Minute}

	// RateLimitPreload is permissive; hovering a menu fires several preloads
	RateLimitPreload = RateLimitConfig{Requests: 300, Window: time.Minute}

	// RateLimitHealth is permissive rate limiting for health endpoints
	RateLimitHealth = RateLimitConfig{Requests: 1000, Window: time.Minute}
)

// Limiter names used as the metrics label.
const (
	limiterGlobal  = "global"
	limiterLogin   = "login"
	limiterAuth    = "auth"
	limiterPreload = "preload"
	limiterHealth  = "health"
)

// DefaultChiMiddlewareConfig returns a secure default configuration.
// CORS origins default to empty, requiring explicit configuration.
func DefaultChiMiddlewareConfig() *ChiMiddlewareConfig {
	return &ChiMiddlewareConfig{
		CORSAllowedOrigins:   []string{},
		CORSAllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		CORSAllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		CORSExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		CORSAllowCredentials: true,
		CORSMaxAge:           86400,

		RateLimitRequests: 600,
		RateLimitWindow:   time.Minute,
		RateLimitDisabled: false,
		LoginRateLimit:    RateLimitLogin,
	}
}

// ChiMiddleware provides Chi-compatible middleware factories.
type ChiMiddleware struct {
	config *ChiMiddlewareConfig
	cors   func(http.Handler) http.Handler
}

// NewChiMiddleware creates a new Chi middleware factory with the given configuration.
func NewChiMiddleware(config *ChiMiddlewareConfig) *ChiMiddleware {
	if config == nil {
		config = DefaultChiMiddlewareConfig()
	}
	if config.LoginRateLimit.Requests <= 0 || config.LoginRateLimit.Window <= 0 {
		config.LoginRateLimit = RateLimitLogin
	}

	// Credentials may not be combined with a wildcard origin.
	allowCredentials := config.CORSAllowCredentials
	for _, origin := range config.CORSAllowedOrigins {
		if origin == "*" {
			allowCredentials = false
		}
	}

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   config.CORSAllowedOrigins,
		AllowedMethods:   config.CORSAllowedMethods,
		AllowedHeaders:   config.CORSAllowedHeaders,
		ExposedHeaders:   config.CORSExposedHeaders,
		AllowCredentials: allowCredentials,
		MaxAge:           config.CORSMaxAge,
	})

	return &ChiMiddleware{
		config: config,
		cors:   corsHandler,
	}
}

// CORS returns a Chi-compatible CORS middleware using go-chi/cors.
func (m *ChiMiddleware) CORS() func(http.Handler) http.Handler {
	return m.cors
}

// RateLimit returns the gateway-wide per-IP limiter.
func (m *ChiMiddleware) RateLimit() func(http.Handler) http.Handler {
	return m.limit(limiterGlobal, RateLimitConfig{
		Requests: m.config.RateLimitRequests,
		Window:   m.config.RateLimitWindow,
	})
}

// RateLimitLogin returns the limiter for credential submissions.
func (m *ChiMiddleware) RateLimitLogin() func(http.Handler) http.Handler {
	return m.limit(limiterLogin, m.config.LoginRateLimit)
}

// RateLimitAuth returns the limiter for the other auth endpoints.
func (m *ChiMiddleware) RateLimitAuth() func(http.Handler) http.Handler {
	return m.limit(limiterAuth, RateLimitAuth)
}

// RateLimitPreload returns the limiter for hover preloads.
func (m *ChiMiddleware) RateLimitPreload() func(http.Handler) http.Handler {
	return m.limit(limiterPreload, RateLimitPreload)
}

// RateLimitHealth returns a rate limiter for health endpoints.
func (m *ChiMiddleware) RateLimitHealth() func(http.Handler) http.Handler {
	return m.limit(limiterHealth, RateLimitHealth)
}

func (m *ChiMiddleware) limit(name string, cfg RateLimitConfig) func(http.Handler) http.Handler {
	if m.config.RateLimitDisabled || cfg.Requests <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return httprate.Limit(
		cfg.Requests,
		cfg.Window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(limitExceeded(name, cfg.Window)),
	)
}

// limitExceeded answers a throttled request and counts it.
func limitExceeded(name string, window time.Duration) http.HandlerFunc {
	retryAfter := strconv.Itoa(int(window.Seconds()))
	return func(w http.ResponseWriter, r *http.Request) {
		metrics.RecordRateLimitHit(name)
		logging.Ctx(r.Context()).Warn().
			Str("limiter", name).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("Rate limit exceeded")

		if w.Header().Get("Retry-After") == "" {
			w.Header().Set("Retry-After", retryAfter)
		}
		if views.WantsJSON(r) {
			views.WriteError(w, r, http.StatusTooManyRequests, views.ErrCodeTooManyRequests, "Too many requests")
			return
		}
		http.Error(w, "Too many requests, please slow down.", http.StatusTooManyRequests)
	}
}

// SecurityHeaders adds security headers to every response.
//
// Headers added:
//   - X-Content-Type-Options: nosniff (prevents MIME type sniffing)
//   - X-Frame-Options: DENY (prevents clickjacking)
//   - Referrer-Policy: strict-origin-when-cross-origin (limits referrer information)
//   - Strict-Transport-Security when served over HTTPS or behind a TLS proxy
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			// 1 year max-age with includeSubDomains
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}
