// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker/v2"

	"github.com/tomtom215/skillswap-gateway/internal/authz"
	"github.com/tomtom215/skillswap-gateway/internal/cache"
	"github.com/tomtom215/skillswap-gateway/internal/guard"
	"github.com/tomtom215/skillswap-gateway/internal/lazyroute"
	"github.com/tomtom215/skillswap-gateway/internal/metrics"
	"github.com/tomtom215/skillswap-gateway/internal/middleware"
	"github.com/tomtom215/skillswap-gateway/internal/pages"
	"github.com/tomtom215/skillswap-gateway/internal/views"
)

type fakeSessions struct {
	session authz.Session
	ready   atomic.Bool
}

func (f *fakeSessions) Session(*http.Request) authz.Session { return f.session }
func (f *fakeSessions) Ready() bool                         { return f.ready.Load() }

// fakeAuth stands in for the sign-in handlers.
type fakeAuth struct{}

func (fakeAuth) Routes(r chi.Router, limits ...func(http.Handler) http.Handler) {
	r.Get("/auth/login", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("login form"))
	})
	r.With(limits...).Post("/auth/login", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

type fakeUpstream gobreaker.State

func (f fakeUpstream) BreakerState() gobreaker.State { return gobreaker.State(f) }

type routerFixture struct {
	handler  http.Handler
	sessions *fakeSessions
	registry *lazyroute.Registry
}

func newRouterFixture(t *testing.T, deps Deps, cfg *ChiMiddlewareConfig) *routerFixture {
	t.Helper()

	reg := lazyroute.New(lazyroute.Config{SuspenseTimeout: 2 * time.Second, RetryAfter: 1})
	site := pages.New(pages.Deps{Registry: reg})
	if err := site.Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	t.Cleanup(reg.Drain)

	sessions := &fakeSessions{}
	sessions.ready.Store(true)
	if deps.Sessions != nil {
		sessions = deps.Sessions.(*fakeSessions)
	}

	deps.Sessions = sessions
	deps.Auth = fakeAuth{}
	deps.Registry = reg
	deps.Site = site
	deps.Guard = guard.New(guard.DefaultConfig(), sessions, authz.StaticSource{})

	router, err := NewRouter(deps, NewChiMiddleware(cfg))
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	h, err := router.SetupChi()
	if err != nil {
		t.Fatalf("SetupChi: %v", err)
	}
	return &routerFixture{handler: h, sessions: sessions, registry: reg}
}

func (fx *routerFixture) do(t *testing.T, method, path string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "192.0.2.10:4000"
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	fx.handler.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, data any) views.APIResponse {
	t.Helper()
	resp := views.APIResponse{Data: data}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestNewRouter_RequiresDeps(t *testing.T) {
	if _, err := NewRouter(Deps{}, nil); err == nil {
		t.Error("NewRouter with no deps succeeded")
	}
}

func TestHealthEndpoints(t *testing.T) {
	tests := []struct {
		name       string
		ready      bool
		upstream   gobreaker.State
		wantCode   int
		wantStatus string
	}{
		{"ready", true, gobreaker.StateClosed, http.StatusOK, "ready"},
		{"upstream open", true, gobreaker.StateOpen, http.StatusOK, "degraded"},
		{"sessions not started", false, gobreaker.StateClosed, http.StatusServiceUnavailable, "not_ready"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := &fakeSessions{}
			sessions.ready.Store(tt.ready)
			fx := newRouterFixture(t, Deps{Sessions: sessions, Upstream: fakeUpstream(tt.upstream)}, nil)

			if w := fx.do(t, http.MethodGet, "/healthz", nil); w.Code != http.StatusOK {
				t.Errorf("healthz = %d, want 200", w.Code)
			}

			w := fx.do(t, http.MethodGet, "/readyz", nil)
			if w.Code != tt.wantCode {
				t.Fatalf("readyz = %d, want %d", w.Code, tt.wantCode)
			}
			var status HealthStatus
			decodeEnvelope(t, w, &status)
			if status.Status != tt.wantStatus || status.Upstream != tt.upstream.String() {
				t.Errorf("status = %+v", status)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	fx := newRouterFixture(t, Deps{ExposeMetrics: true}, nil)
	fx.do(t, http.MethodGet, "/healthz", nil)
	w := fx.do(t, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "gateway_http_requests_total") {
		t.Errorf("metrics = %d", w.Code)
	}

	hidden := newRouterFixture(t, Deps{}, nil)
	if w := hidden.do(t, http.MethodGet, "/metrics", map[string]string{"Accept": "application/json"}); w.Code != http.StatusNotFound {
		t.Errorf("metrics without ExposeMetrics = %d, want 404", w.Code)
	}
}

func TestStaticAssets(t *testing.T) {
	fx := newRouterFixture(t, Deps{}, nil)

	for _, path := range []string{"/static/app.css", "/static/app.js"} {
		w := fx.do(t, http.MethodGet, path, nil)
		if w.Code != http.StatusOK {
			t.Errorf("%s = %d", path, w.Code)
		}
		if w.Header().Get("Cache-Control") != "public, max-age=3600" {
			t.Errorf("%s Cache-Control = %q", path, w.Header().Get("Cache-Control"))
		}
	}
}

func TestPreload(t *testing.T) {
	t.Run("unknown route", func(t *testing.T) {
		fx := newRouterFixture(t, Deps{}, nil)
		if w := fx.do(t, http.MethodPost, "/_preload/nope", nil); w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})

	t.Run("public route loads", func(t *testing.T) {
		fx := newRouterFixture(t, Deps{}, nil)
		if w := fx.do(t, http.MethodPost, "/_preload/"+pages.Skills, nil); w.Code != http.StatusNoContent {
			t.Fatalf("status = %d, want 204", w.Code)
		}
		fx.registry.Drain()
		if got := fx.registry.State(pages.Skills); got != cache.Resolved {
			t.Errorf("state = %v, want resolved", got)
		}
	})

	t.Run("protected route needs a session", func(t *testing.T) {
		fx := newRouterFixture(t, Deps{}, nil)
		fx.do(t, http.MethodPost, "/_preload/"+pages.Dashboard, nil)
		fx.registry.Drain()
		if got := fx.registry.State(pages.Dashboard); got != cache.NotRequested {
			t.Errorf("anonymous preload state = %v", got)
		}

		fx.sessions.session = authz.Session{IsAuthenticated: true, TokenPresent: true, User: &authz.User{ID: "u1"}}
		fx.do(t, http.MethodPost, "/_preload/"+pages.Dashboard, nil)
		fx.registry.Drain()
		if got := fx.registry.State(pages.Dashboard); got != cache.Resolved {
			t.Errorf("signed-in preload state = %v", got)
		}
	})

	t.Run("get is not allowed", func(t *testing.T) {
		fx := newRouterFixture(t, Deps{}, nil)
		if w := fx.do(t, http.MethodGet, "/_preload/"+pages.Skills, nil); w.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want 405", w.Code)
		}
	})
}

func TestPagesThroughRouter(t *testing.T) {
	fx := newRouterFixture(t, Deps{}, nil)

	w := fx.do(t, http.MethodGet, "/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("home = %d", w.Code)
	}
	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
	} {
		if got := w.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
	if w.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("request id header missing")
	}

	if w := fx.do(t, http.MethodHead, "/", nil); w.Code != http.StatusOK {
		t.Errorf("HEAD / = %d", w.Code)
	}

	w = fx.do(t, http.MethodGet, "/dashboard", nil)
	if w.Code != http.StatusFound || !strings.HasPrefix(w.Header().Get("Location"), "/auth/login") {
		t.Errorf("anonymous dashboard = %d %q", w.Code, w.Header().Get("Location"))
	}

	if w := fx.do(t, http.MethodGet, "/auth/login", nil); w.Code != http.StatusOK {
		t.Errorf("login page = %d", w.Code)
	}
}

func TestNotFound(t *testing.T) {
	fx := newRouterFixture(t, Deps{}, nil)

	w := fx.do(t, http.MethodGet, "/no/such/page", nil)
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), "Page not found") {
		t.Errorf("html = %d %s", w.Code, w.Body.String())
	}

	w = fx.do(t, http.MethodGet, "/no/such/page", map[string]string{"Accept": "application/json"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("json = %d", w.Code)
	}
	resp := decodeEnvelope(t, w, nil)
	if resp.Success || resp.Error == nil || resp.Error.Code != views.ErrCodeNotFound {
		t.Errorf("envelope = %+v", resp)
	}
}

func TestLoginRateLimit(t *testing.T) {
	cfg := DefaultChiMiddlewareConfig()
	cfg.LoginRateLimit = RateLimitConfig{Requests: 2, Window: time.Minute}
	fx := newRouterFixture(t, Deps{}, cfg)

	hits := metrics.APIRateLimitHits.WithLabelValues(limiterLogin)
	before := testutil.ToFloat64(hits)

	for i := 0; i < 2; i++ {
		if w := fx.do(t, http.MethodPost, "/auth/login", nil); w.Code != http.StatusNoContent {
			t.Fatalf("attempt %d = %d", i+1, w.Code)
		}
	}
	w := fx.do(t, http.MethodPost, "/auth/login", map[string]string{"Accept": "application/json"})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("third attempt = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After missing")
	}
	if got := testutil.ToFloat64(hits) - before; got != 1 {
		t.Errorf("rate limit hits = %v, want 1", got)
	}

	// The login page itself is not a credential submission.
	if w := fx.do(t, http.MethodGet, "/auth/login", nil); w.Code != http.StatusOK {
		t.Errorf("login page = %d", w.Code)
	}

	// Another client has its own budget.
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = "198.51.100.7:4000"
	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("other client = %d", rec.Code)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	cfg := DefaultChiMiddlewareConfig()
	cfg.RateLimitDisabled = true
	cfg.LoginRateLimit = RateLimitConfig{Requests: 1, Window: time.Minute}
	fx := newRouterFixture(t, Deps{}, cfg)

	for i := 0; i < 3; i++ {
		if w := fx.do(t, http.MethodPost, "/auth/login", nil); w.Code != http.StatusNoContent {
			t.Fatalf("attempt %d = %d", i+1, w.Code)
		}
	}
}

func TestCORS(t *testing.T) {
	preflight := func(t *testing.T, h http.Handler, origin string) *httptest.ResponseRecorder {
		t.Helper()
		req := httptest.NewRequest(http.MethodOptions, "/auth/login", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	cfg := DefaultChiMiddlewareConfig()
	cfg.CORSAllowedOrigins = []string{"https://app.skillswap.test"}
	fx := newRouterFixture(t, Deps{}, cfg)

	w := preflight(t, fx.handler, "https://app.skillswap.test")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.skillswap.test" {
		t.Errorf("allowed origin = %q", got)
	}
	if w.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("credentials not allowed for a listed origin")
	}

	w = preflight(t, fx.handler, "https://evil.test")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("disallowed origin got %q", got)
	}

	wild := DefaultChiMiddlewareConfig()
	wild.CORSAllowedOrigins = []string{"*"}
	fx = newRouterFixture(t, Deps{}, wild)
	w = preflight(t, fx.handler, "https://anywhere.test")
	if w.Header().Get("Access-Control-Allow-Credentials") == "true" {
		t.Error("credentials allowed with a wildcard origin")
	}
}

func TestSecurityHeaders_HSTSBehindTLSProxy(t *testing.T) {
	h := SecurityHeaders(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS set over plain HTTP")
	}

	req.Header.Set("X-Forwarded-Proto", "https")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Header().Get("Strict-Transport-Security") == "" {
		t.Error("HSTS missing behind TLS proxy")
	}
}

func TestCanPreload(t *testing.T) {
	anon := authz.Session{}
	signedIn := authz.Session{IsAuthenticated: true}
	public := lazyroute.Entry{Requirement: authz.Public}
	private := lazyroute.Entry{Requirement: authz.RequireAuth}

	if !canPreload(public, anon) || canPreload(private, anon) || !canPreload(private, signedIn) {
		t.Error("canPreload table mismatch")
	}
}
