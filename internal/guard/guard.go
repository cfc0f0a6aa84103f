// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

package guard

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/skillswap-gateway/internal/authz"
	"github.com/tomtom215/skillswap-gateway/internal/logging"
	"github.com/tomtom215/skillswap-gateway/internal/views"
)

// DefaultLoginPath is where unauthenticated visitors are sent.
const DefaultLoginPath = "/auth/login"

// SessionSource reports the authentication state of a request.
type SessionSource interface {
	Session(r *http.Request) authz.Session
}

// SessionSourceFunc adapts a function to SessionSource.
type SessionSourceFunc func(r *http.Request) authz.Session

// Session implements SessionSource.
func (f SessionSourceFunc) Session(r *http.Request) authz.Session { return f(r) }

// Config configures a Guard.
type Config struct {
	LoginPath string `koanf:"login_path" validate:"required,startswith=/"`
	// RetryAfter is the refresh delay, in seconds, of loading responses.
	RetryAfter int `koanf:"retry_after" validate:"min=1,max=60"`
	// Development exposes required-vs-held detail on denials.
	Development bool `koanf:"development"`
	// FailClosed treats routes declaring no requirement as RequireAuth.
	FailClosed bool `koanf:"fail_closed"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		LoginPath:  DefaultLoginPath,
		RetryAfter: 1,
	}
}

// Guard gates routes on the outcome of authz.Evaluate.
type Guard struct {
	config    Config
	policy    authz.Policy
	sessions  SessionSource
	perms     authz.PermissionSource
	navigator Navigator
	audit     *authz.AuditLogger
	now       func() time.Time
}

// Option customizes a Guard.
type Option func(*Guard)

// WithNavigator replaces the HTTP redirect navigator.
func WithNavigator(n Navigator) Option {
	return func(g *Guard) { g.navigator = n }
}

// WithAuditLogger records every decision through al.
func WithAuditLogger(al *authz.AuditLogger) Option {
	return func(g *Guard) { g.audit = al }
}

// WithClock overrides the clock used for decision timing.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// New creates a guard.
func New(config Config, sessions SessionSource, perms authz.PermissionSource, opts ...Option) *Guard {
	if config.LoginPath == "" {
		config.LoginPath = DefaultLoginPath
	}
	if config.RetryAfter <= 0 {
		config.RetryAfter = 1
	}
	g := &Guard{
		config:    config,
		policy:    authz.Policy{FailClosed: config.FailClosed},
		sessions:  sessions,
		perms:     perms,
		navigator: HTTPNavigator{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// LoginPath returns the configured login path.
func (g *Guard) LoginPath() string { return g.config.LoginPath }

type routeConfig struct {
	fallback http.Handler
	redirect string
	kind     string
	variant  string
}

// RouteOption customizes one protected route.
type RouteOption func(*routeConfig)

// WithFallback serves h instead of the denial view when access is refused.
// A fallback takes precedence over WithRedirect.
func WithFallback(h http.Handler) RouteOption {
	return func(rc *routeConfig) { rc.fallback = h }
}

// WithRedirect sends refused users to path, carrying the refusal reason.
func WithRedirect(path string) RouteOption {
	return func(rc *routeConfig) { rc.redirect = path }
}

// WithLoading selects the loading presentation of the route.
func WithLoading(kind, variant string) RouteOption {
	return func(rc *routeConfig) {
		rc.kind = kind
		rc.variant = variant
	}
}

// Protect returns middleware that serves next only when the request
// satisfies req. It fails on a malformed requirement.
func (g *Guard) Protect(route string, req authz.Requirement, opts ...RouteOption) (func(http.Handler) http.Handler, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("route %q: %w", route, err)
	}
	rc := routeConfig{kind: views.KindSpinner}
	for _, opt := range opts {
		opt(&rc)
	}
	return func(next http.Handler) http.Handler {
		return &protected{guard: g, route: route, req: req, rc: rc, next: next}
	}, nil
}

// MustProtect is Protect for route tables built at startup.
func (g *Guard) MustProtect(route string, req authz.Requirement, opts ...RouteOption) func(http.Handler) http.Handler {
	mw, err := g.Protect(route, req, opts...)
	if err != nil {
		panic(err)
	}
	return mw
}

// Outlet protects a nested router. Children mounted by build render only
// once the parent requirement is met.
func (g *Guard) Outlet(route string, req authz.Requirement, build func(r chi.Router), opts ...RouteOption) (http.Handler, error) {
	mw, err := g.Protect(route, req, opts...)
	if err != nil {
		return nil, err
	}
	r := chi.NewRouter()
	r.Use(mw)
	build(r)
	return r, nil
}

type protected struct {
	guard *Guard
	route string
	req   authz.Requirement
	rc    routeConfig
	next  http.Handler
}

func (p *protected) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g := p.guard
	ctx := logging.ContextWithRoute(r.Context(), p.route)

	if p.req.IsPublic() && !g.policy.FailClosed {
		p.next.ServeHTTP(w, r.WithContext(ctx))
		return
	}

	start := g.now()
	session := g.sessions.Session(r)
	// Auth-only routes never read grants, so they do not wait on a lookup.
	perms := authz.PermissionSet{User: session.User}
	if p.req.NeedsPermissionCheck() {
		perms = g.perms.Permissions(ctx, session)
	}
	result := g.policy.Evaluate(session, perms, p.req)
	elapsed := g.now().Sub(start)

	authz.RecordDecision(p.route, result.Status, elapsed)
	if session.User != nil {
		ctx = logging.ContextWithUserID(ctx, session.User.ID)
	}
	ctx = context.WithValue(ctx, decisionKey{}, &decision{result: result, session: session, perms: perms})
	r = r.WithContext(ctx)
	g.auditDecision(r, p.route, session, result, elapsed)

	switch result.Status {
	case authz.StatusAuthenticated:
		p.next.ServeHTTP(w, r)
	case authz.StatusLoading:
		g.renderLoading(w, r, result, p.rc)
	case authz.StatusUnauthenticated:
		g.handleUnauthenticated(w, r, result)
	default:
		g.handleUnauthorized(w, r, result, p.req, perms, p.rc)
	}
}

func (g *Guard) auditDecision(r *http.Request, route string, session authz.Session, result authz.Result, elapsed time.Duration) {
	if g.audit == nil {
		return
	}
	ev := &authz.AuditEvent{
		RequestID: logging.RequestIDFromContext(r.Context()),
		Route:     route,
		Method:    r.Method,
		Path:      r.URL.Path,
		IPAddress: clientIP(r),
		Result:    result,
		Duration:  elapsed,
	}
	if session.User != nil {
		ev.UserID = session.User.ID
	}
	g.audit.LogDecision(ev)
}

func (g *Guard) renderLoading(w http.ResponseWriter, r *http.Request, result authz.Result, rc routeConfig) {
	if views.WantsJSON(r) {
		views.NoStore(w)
		w.Header().Set("Retry-After", strconv.Itoa(g.config.RetryAfter))
		views.WriteData(w, r, http.StatusAccepted, map[string]string{
			"status": result.Status.String(),
			"reason": result.Reason,
		})
		return
	}
	views.Loading(w, views.NewLoadingView(rc.kind, rc.variant, result.Reason, g.config.RetryAfter), g.config.RetryAfter)
}

func (g *Guard) handleUnauthenticated(w http.ResponseWriter, r *http.Request, result authz.Result) {
	loc := LocationFromRequest(r)
	state := NavigationState{From: &loc}

	if views.WantsJSON(r) {
		views.NoStore(w)
		views.WriteErrorWithDetails(w, r, http.StatusUnauthorized, views.ErrCodeUnauthorized, result.Reason, map[string]string{
			"status": result.Status.String(),
			"login":  WithState(g.config.LoginPath, state),
		})
		return
	}
	if samePath(g.config.LoginPath, r) {
		g.renderDenied(w, r, result, authz.Requirement{}, authz.PermissionSet{})
		return
	}
	g.navigator.Redirect(w, r, g.config.LoginPath, RedirectOptions{State: state})
}

func (g *Guard) handleUnauthorized(w http.ResponseWriter, r *http.Request, result authz.Result, req authz.Requirement, perms authz.PermissionSet, rc routeConfig) {
	if rc.fallback != nil {
		rc.fallback.ServeHTTP(w, r)
		return
	}
	if rc.redirect != "" && !samePath(rc.redirect, r) && !views.WantsJSON(r) {
		loc := LocationFromRequest(r)
		g.navigator.Redirect(w, r, rc.redirect, RedirectOptions{
			State: NavigationState{From: &loc, Reason: result.Reason},
		})
		return
	}
	g.renderDenied(w, r, result, req, perms)
}

// deniedBody is the JSON detail of a refusal.
type deniedBody struct {
	Status             string   `json:"status"`
	Reason             string   `json:"reason"`
	MissingRoles       []string `json:"missing_roles,omitempty"`
	MissingPermissions []string `json:"missing_permissions,omitempty"`
	Details            *struct {
		Required []string `json:"required"`
		Held     []string `json:"held"`
	} `json:"details,omitempty"`
}

func (g *Guard) renderDenied(w http.ResponseWriter, r *http.Request, result authz.Result, req authz.Requirement, perms authz.PermissionSet) {
	missingRoles, missingPerms := Missing(result, req)

	if views.WantsJSON(r) {
		body := deniedBody{
			Status:             result.Status.String(),
			Reason:             result.Reason,
			MissingRoles:       missingRoles,
			MissingPermissions: missingPerms,
		}
		if g.config.Development && result.Details != nil {
			body.Details = &struct {
				Required []string `json:"required"`
				Held     []string `json:"held"`
			}{Required: result.Details.Required, Held: result.Details.User}
		}
		views.NoStore(w)
		views.WriteErrorWithDetails(w, r, http.StatusForbidden, views.ErrCodeForbidden, result.Reason, body)
		return
	}

	v := views.DeniedView{MissingRoles: missingRoles, MissingPermissions: missingPerms}
	if g.config.Development {
		v.Debug = &views.DebugDetail{Reason: result.Reason}
		if result.Details != nil {
			v.Debug.Required = result.Details.Required
			v.Debug.Held = result.Details.User
		} else {
			v.Debug.Held = append(perms.Roles.Values(), perms.Permissions.Values()...)
		}
	}
	views.Denied(w, v)
}

// Missing splits the required names of result that the user does not hold
// into roles and permissions of req.
func Missing(result authz.Result, req authz.Requirement) (roles, perms []string) {
	if result.Details == nil {
		return nil, nil
	}
	held := authz.NewSet(result.Details.User...)
	for _, name := range result.Details.Required {
		if held.Has(name) {
			continue
		}
		switch {
		case req.Roles.Has(name):
			roles = append(roles, name)
		case req.Permissions.Has(name):
			perms = append(perms, name)
		}
	}
	return roles, perms
}

func samePath(target string, r *http.Request) bool {
	if i := strings.IndexAny(target, "?#"); i >= 0 {
		target = target[:i]
	}
	return target == r.URL.Path
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
