// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

package api

import (
	"context"
	"embed"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sony/gobreaker/v2"

	"github.com/tomtom215/skillswap-gateway/internal/logging"
	"github.com/tomtom215/skillswap-gateway/internal/views"
)

//go:embed static
var staticFS embed.FS

// HealthStatus is the body of the health endpoints.
type HealthStatus struct {
	Status   string  `json:"status"`
	Uptime   float64 `json:"uptime_seconds"`
	Sessions bool    `json:"sessions_ready"`
	Upstream string  `json:"upstream_circuit,omitempty"`
}

// Live handles liveness probes. It only proves the process serves HTTP.
func (router *Router) Live(w http.ResponseWriter, r *http.Request) {
	views.WriteSuccess(w, r, HealthStatus{
		Status:   "alive",
		Uptime:   time.Since(router.startTime).Seconds(),
		Sessions: router.deps.Sessions.Ready(),
	})
}

// Ready handles readiness probes. The gateway is ready once the session
// store is usable. An open upstream circuit is reported but does not fail
// the probe: the gateway still serves public pages and the sign-in form.
func (router *Router) Ready(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:   "ready",
		Uptime:   time.Since(router.startTime).Seconds(),
		Sessions: router.deps.Sessions.Ready(),
	}
	if router.deps.Upstream != nil {
		state := router.deps.Upstream.BreakerState()
		status.Upstream = state.String()
		if state == gobreaker.StateOpen {
			status.Status = "degraded"
		}
	}

	code := http.StatusOK
	if !status.Sessions {
		status.Status = "not_ready"
		code = http.StatusServiceUnavailable
	}
	views.WriteData(w, r, code, status)
}

// Preload starts loading a route ahead of navigation. It answers before
// the load finishes; unknown routes get 404.
func (router *Router) Preload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	entry, ok := router.deps.Registry.Lookup(name)
	if !ok {
		views.WriteNotFound(w, r, "Unknown route")
		return
	}

	if canPreload(entry, router.deps.Sessions.Session(r)) {
		// The load outlives this request.
		if err := router.deps.Registry.Preload(context.WithoutCancel(r.Context()), name); err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Str("route", name).Msg("Preload failed to start")
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// NotFound answers unknown paths in the caller's format.
func (router *Router) NotFound(w http.ResponseWriter, r *http.Request) {
	if views.WantsJSON(r) {
		views.WriteNotFound(w, r, "Not found")
		return
	}
	views.NotFound(w, views.NotFoundView{Path: r.URL.Path})
}

// MethodNotAllowed answers a known path requested with the wrong method.
func (router *Router) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	views.WriteError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
}

// staticHandler serves the embedded stylesheet and script.
func staticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err) // embedded directory always exists
	}
	files := http.FileServerFS(sub)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		files.ServeHTTP(w, r)
	})
}
