// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

package pages

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/skillswap-gateway/internal/authz"
	"github.com/tomtom215/skillswap-gateway/internal/guard"
	"github.com/tomtom215/skillswap-gateway/internal/lazyroute"
	"github.com/tomtom215/skillswap-gateway/internal/middleware"
)

var (
	ada   = &authz.User{ID: "user-1", Email: "ada@skillswap.test", DisplayName: "Ada", EmailVerified: true}
	grace = &authz.User{ID: "user-2", Email: "grace@skillswap.test", DisplayName: "Grace"}
)

// setupSite mounts the route table for a fixed session and permission set.
func setupSite(t *testing.T, user *authz.User, perms authz.PermissionSet) (http.Handler, *lazyroute.Registry) {
	t.Helper()
	reg := lazyroute.New(lazyroute.Config{SuspenseTimeout: 2 * time.Second, RetryAfter: 1})
	site := New(Deps{
		Registry:     reg,
		BreakerState: func() string { return "closed" },
		Performance: func() []middleware.EndpointStats {
			return []middleware.EndpointStats{{Route: "GET /skills", RequestCount: 7, P50: 3 * time.Millisecond}}
		},
	})
	if err := site.Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	t.Cleanup(reg.Drain)

	session := authz.Session{}
	if user != nil {
		session = authz.Session{IsAuthenticated: true, TokenPresent: true, User: user}
	}
	g := guard.New(guard.DefaultConfig(),
		guard.SessionSourceFunc(func(*http.Request) authz.Session { return session }),
		authz.StaticSource{Set: perms})

	r := chi.NewRouter()
	if err := site.Mount(r, reg, g); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	return r, reg
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestEntries_Table(t *testing.T) {
	entries := New(Deps{}).Entries()
	if len(entries) != 13 {
		t.Fatalf("entries = %d, want 13", len(entries))
	}
	seen := make(map[string]bool)
	for _, e := range entries {
		if seen[e.Name] {
			t.Errorf("duplicate route %q", e.Name)
		}
		seen[e.Name] = true
		if err := e.Requirement.Validate(); err != nil {
			t.Errorf("%s: %v", e.Name, err)
		}
	}
}

func TestImporters_ParseEveryTemplate(t *testing.T) {
	for _, e := range New(Deps{}).Entries() {
		t.Run(e.Name, func(t *testing.T) {
			h, err := e.Importer(context.Background())
			if err != nil || h == nil {
				t.Fatalf("importer = %v, %v", h, err)
			}
		})
	}
}

func TestSite_PublicPages(t *testing.T) {
	h, _ := setupSite(t, nil, authz.PermissionSet{})

	w := get(t, h, "/skills?q=guitar")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `value="guitar"`) {
		t.Error("search query not rendered")
	}
	if cc := w.Header().Get("Cache-Control"); strings.Contains(cc, "private") {
		t.Errorf("public page marked private: %q", cc)
	}

	if w := get(t, h, "/"); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Sign in") {
		t.Errorf("home status = %d", w.Code)
	}
}

func TestSite_AnonymousRedirectedFromPrivatePages(t *testing.T) {
	h, _ := setupSite(t, nil, authz.PermissionSet{})

	for _, target := range []string{"/dashboard", "/matchmaking/42", "/admin", "/admin/users"} {
		w := get(t, h, target)
		if w.Code != http.StatusFound {
			t.Errorf("%s: status = %d, want 302", target, w.Code)
			continue
		}
		if loc := w.Header().Get("Location"); !strings.HasPrefix(loc, guard.DefaultLoginPath+"?") {
			t.Errorf("%s: Location = %q", target, loc)
		}
	}
}

func TestSite_AuthenticatedPages(t *testing.T) {
	h, _ := setupSite(t, ada, authz.PermissionSet{Roles: authz.NewSet("User")})

	w := get(t, h, "/dashboard")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Welcome back, Ada") {
		t.Fatalf("dashboard status = %d", w.Code)
	}
	if cc := w.Header().Get("Cache-Control"); !strings.Contains(cc, "no-store") {
		t.Errorf("Cache-Control = %q", cc)
	}

	w = get(t, h, "/matchmaking/42")
	if !strings.Contains(w.Body.String(), `/api/matchmaking/42`) {
		t.Error("route parameter not rendered")
	}

	// Rescheduling needs appointments:write.
	if w := get(t, h, "/appointments/7/reschedule"); w.Code != http.StatusForbidden {
		t.Errorf("reschedule status = %d, want 403", w.Code)
	}
}

func TestSite_VideoCallNeedsVerifiedEmail(t *testing.T) {
	h, _ := setupSite(t, grace, authz.PermissionSet{Roles: authz.NewSet("User")})
	if w := get(t, h, "/videocall/room-1"); w.Code != http.StatusForbidden {
		t.Errorf("unverified status = %d, want 403", w.Code)
	}

	h, _ = setupSite(t, ada, authz.PermissionSet{Roles: authz.NewSet("User")})
	if w := get(t, h, "/videocall/room-1"); w.Code != http.StatusOK {
		t.Errorf("verified status = %d, want 200", w.Code)
	}
}

func TestSite_AdminOutlet(t *testing.T) {
	tests := []struct {
		name   string
		perms  authz.PermissionSet
		target string
		want   int
	}{
		{"user cannot open admin", authz.PermissionSet{Roles: authz.NewSet("User")}, "/admin", http.StatusForbidden},
		{"parent guards children", authz.PermissionSet{Roles: authz.NewSet("User"), Permissions: authz.NewSet("users:read")}, "/admin/users", http.StatusForbidden},
		{"admin index", authz.PermissionSet{Roles: authz.NewSet("Admin")}, "/admin", http.StatusOK},
		{"admin without user permission", authz.PermissionSet{Roles: authz.NewSet("Admin")}, "/admin/users", http.StatusForbidden},
		{"admin with any user permission", authz.PermissionSet{Roles: authz.NewSet("Admin"), Permissions: authz.NewSet("users:write")}, "/admin/users", http.StatusOK},
		{"metrics needs every requirement", authz.PermissionSet{Roles: authz.NewSet("SuperAdmin")}, "/admin/metrics", http.StatusForbidden},
		{"metrics", authz.PermissionSet{Roles: authz.NewSet("SuperAdmin"), Permissions: authz.NewSet("system:metrics")}, "/admin/metrics", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := setupSite(t, ada, tt.perms)
			if w := get(t, h, tt.target); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestSite_MetricsPageShowsRouteStates(t *testing.T) {
	h, _ := setupSite(t, ada, authz.PermissionSet{Roles: authz.NewSet("SuperAdmin"), Permissions: authz.NewSet("system:metrics")})

	body := get(t, h, "/admin/metrics").Body.String()
	if !strings.Contains(body, "<strong>closed</strong>") {
		t.Error("breaker state missing")
	}
	if !strings.Contains(body, "<td>admin-metrics</td>") || !strings.Contains(body, "<td>resolved</td>") {
		t.Error("route states missing")
	}
	if !strings.Contains(body, "<code>GET /skills</code></td><td>7</td>") {
		t.Error("latency table missing")
	}
}

func TestStrategyLanding(t *testing.T) {
	_, reg := setupSite(t, nil, authz.PermissionSet{})

	n, err := reg.PreloadStrategy(context.Background(), StrategyLanding)
	if err != nil || n != 2 {
		t.Fatalf("PreloadStrategy = %d, %v; want 2", n, err)
	}
	reg.Drain()
	if reg.State(Home).String() != "resolved" || reg.State(Skills).String() != "resolved" {
		t.Errorf("states = %v, %v", reg.State(Home), reg.State(Skills))
	}
}
