// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

package pages

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/skillswap-gateway/internal/authz"
	"github.com/tomtom215/skillswap-gateway/internal/guard"
	"github.com/tomtom215/skillswap-gateway/internal/lazyroute"
	"github.com/tomtom215/skillswap-gateway/internal/middleware"
	"github.com/tomtom215/skillswap-gateway/internal/views"
)

//go:embed templates/*.html
var templateFS embed.FS

// Route names.
const (
	Home          = "home"
	Skills        = "skills"
	Dashboard     = "dashboard"
	Profile       = "profile"
	Matchmaking   = "matchmaking"
	MatchDetail   = "match-detail"
	Appointments  = "appointments"
	Reschedule    = "reschedule"
	Notifications = "notifications"
	VideoCall     = "videocall"
	Admin         = "admin"
	AdminUsers    = "admin-users"
	AdminMetrics  = "admin-metrics"
)

// StrategyLanding preloads the public pages a first visit usually opens.
const StrategyLanding = "landing"

// adminPrefix is where the admin outlet is mounted.
const adminPrefix = "/admin"

// Data is what every page template receives.
type Data struct {
	views.Chrome
	User   *authz.User
	Params map[string]string
	Query  url.Values
	Extra  any
}

// Deps are the live values some pages display.
type Deps struct {
	// Registry reports route load states on the metrics page.
	Registry *lazyroute.Registry
	// BreakerState reports the SkillSwap API circuit breaker state.
	BreakerState func() string
	// Performance reports recent per-route latencies.
	Performance func() []middleware.EndpointStats
}

// page is one row of the route table.
type page struct {
	name    string
	title   string
	file    string
	pattern string
	// parent names the outlet a child page renders inside.
	parent  string
	req     authz.Requirement
	loading lazyroute.Presentation
	preload []string
	extra   func(r *http.Request) any
}

// Site is the SkillSwap route table.
type Site struct {
	deps  Deps
	table []page
}

// New builds the route table.
func New(deps Deps) *Site {
	s := &Site{deps: deps}
	s.table = []page{
		{name: Home, title: "SkillSwap", file: "home.html", pattern: "/",
			req: authz.Public, loading: lazyroute.Spinner("Loading SkillSwap"), preload: []string{StrategyLanding}},
		{name: Skills, title: "Skills", file: "skills.html", pattern: "/skills",
			req: authz.Public, loading: lazyroute.Skeleton("list"), preload: []string{StrategyLanding}},
		{name: Dashboard, title: "Dashboard", file: "dashboard.html", pattern: "/dashboard",
			req: authz.RequireAuth, loading: lazyroute.Skeleton("dashboard")},
		{name: Profile, title: "Profile", file: "profile.html", pattern: "/profile",
			req: authz.RequireAuth, loading: lazyroute.Skeleton("form")},
		{name: Matchmaking, title: "Matches", file: "matchmaking.html", pattern: "/matchmaking",
			req: authz.RequireAuth, loading: lazyroute.Skeleton("list")},
		{name: MatchDetail, title: "Match", file: "match_detail.html", pattern: "/matchmaking/{id}",
			req: authz.RequireAuth, loading: lazyroute.Skeleton("detail")},
		{name: Appointments, title: "Appointments", file: "appointments.html", pattern: "/appointments",
			req: authz.RequireAuth, loading: lazyroute.Skeleton("list")},
		{name: Reschedule, title: "Reschedule", file: "reschedule.html", pattern: "/appointments/{id}/reschedule",
			req: authz.Permissions("appointments:write"), loading: lazyroute.Skeleton("form")},
		{name: Notifications, title: "Notifications", file: "notifications.html", pattern: "/notifications",
			req: authz.RequireAuth, loading: lazyroute.Skeleton("list")},
		{name: VideoCall, title: "Video call", file: "videocall.html", pattern: "/videocall/{room}",
			req:     authz.Requirement{RequireAuth: true, CustomCheck: authz.RequireVerifiedEmail},
			loading: lazyroute.Spinner("Connecting to your call")},
		{name: Admin, title: "Administration", file: "admin.html", pattern: adminPrefix,
			req: authz.Roles("Admin", "SuperAdmin"), loading: lazyroute.Skeleton("dashboard")},
		{name: AdminUsers, title: "Users", file: "admin_users.html", pattern: adminPrefix + "/users", parent: Admin,
			req: authz.Permissions("users:read", "users:write"), loading: lazyroute.Skeleton("table")},
		{name: AdminMetrics, title: "Gateway metrics", file: "admin_metrics.html", pattern: adminPrefix + "/metrics", parent: Admin,
			req: authz.Requirement{
				Roles:       authz.NewSet("SuperAdmin"),
				Permissions: authz.NewSet("system:metrics"),
				RequireAll:  true,
			},
			loading: lazyroute.Skeleton("dashboard"), extra: s.gatewayStatus},
	}
	return s
}

// Entries returns the lazy route entries of the table.
func (s *Site) Entries() []lazyroute.Entry {
	entries := make([]lazyroute.Entry, 0, len(s.table))
	for _, p := range s.table {
		entries = append(entries, lazyroute.Entry{
			Name:        p.name,
			Pattern:     p.pattern,
			Importer:    importer(p),
			Requirement: p.req,
			Loading:     p.loading,
			Preload:     p.preload,
		})
	}
	return entries
}

// Register adds every page to reg.
func (s *Site) Register(reg *lazyroute.Registry) error {
	for _, e := range s.Entries() {
		if err := reg.Register(e); err != nil {
			return err
		}
	}
	return nil
}

// Mount serves the registered pages on r behind g. Child pages render
// inside their parent's outlet, so the parent requirement is checked first.
func (s *Site) Mount(r chi.Router, reg *lazyroute.Registry, g *guard.Guard) error {
	children := make(map[string][]page)
	for _, p := range s.table {
		if p.parent != "" {
			children[p.parent] = append(children[p.parent], p)
		}
	}

	for _, p := range s.table {
		if p.parent != "" {
			continue
		}
		h, err := reg.Resolve(p.name)
		if err != nil {
			return err
		}

		kids := children[p.name]
		if len(kids) == 0 {
			mw, err := g.Protect(p.name, p.req, loadingOption(p))
			if err != nil {
				return err
			}
			r.With(mw).Get(p.pattern, h.ServeHTTP)
			continue
		}

		outlet, err := s.outlet(p, h, kids, reg, g)
		if err != nil {
			return err
		}
		r.Mount(p.pattern, outlet)
	}
	return nil
}

func (s *Site) outlet(parent page, index http.Handler, kids []page, reg *lazyroute.Registry, g *guard.Guard) (http.Handler, error) {
	type child struct {
		path string
		mw   func(http.Handler) http.Handler
		h    http.Handler
	}
	routes := make([]child, 0, len(kids))
	for _, k := range kids {
		h, err := reg.Resolve(k.name)
		if err != nil {
			return nil, err
		}
		mw, err := g.Protect(k.name, k.req, loadingOption(k))
		if err != nil {
			return nil, err
		}
		routes = append(routes, child{path: strings.TrimPrefix(k.pattern, parent.pattern), mw: mw, h: h})
	}

	return g.Outlet(parent.name, parent.req, func(r chi.Router) {
		r.Get("/", index.ServeHTTP)
		for _, c := range routes {
			r.With(c.mw).Get(c.path, c.h.ServeHTTP)
		}
	}, loadingOption(parent))
}

func loadingOption(p page) guard.RouteOption {
	return guard.WithLoading(p.loading.Kind, p.loading.Variant)
}

// importer parses the page template on first use.
func importer(p page) lazyroute.Importer {
	return func(context.Context) (http.Handler, error) {
		t, err := views.Layout()
		if err != nil {
			return nil, err
		}
		if _, err := t.ParseFS(templateFS, "templates/"+p.file); err != nil {
			return nil, fmt.Errorf("parse %s: %w", p.file, err)
		}
		return &handler{page: p, tmpl: t}, nil
	}
}

type handler struct {
	page page
	tmpl *template.Template
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data := Data{
		Chrome: views.Chrome{Title: h.page.title},
		User:   guard.UserFromContext(r.Context()),
		Params: urlParams(r),
		Query:  r.URL.Query(),
	}
	if h.page.extra != nil {
		data.Extra = h.page.extra(r)
	}
	if !h.page.req.IsPublic() {
		w.Header().Set("Cache-Control", "private, no-store")
	}
	views.Render(w, http.StatusOK, h.tmpl, data)
}

func urlParams(r *http.Request) map[string]string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return nil
	}
	params := make(map[string]string, len(rctx.URLParams.Keys))
	for i, k := range rctx.URLParams.Keys {
		if k == "*" {
			continue
		}
		params[k] = rctx.URLParams.Values[i]
	}
	return params
}

type routeStatus struct {
	Name    string
	Pattern string
	State   string
}

type gatewayStatus struct {
	Breaker     string
	Routes      []routeStatus
	Performance []middleware.EndpointStats
}

func (s *Site) gatewayStatus(*http.Request) any {
	st := gatewayStatus{Breaker: "unknown"}
	if s.deps.BreakerState != nil {
		st.Breaker = s.deps.BreakerState()
	}
	if s.deps.Performance != nil {
		st.Performance = s.deps.Performance()
	}
	if s.deps.Registry != nil {
		for _, e := range s.deps.Registry.Entries() {
			st.Routes = append(st.Routes, routeStatus{
				Name:    e.Name,
				Pattern: e.Pattern,
				State:   s.deps.Registry.State(e.Name).String(),
			})
		}
	}
	return st
}
