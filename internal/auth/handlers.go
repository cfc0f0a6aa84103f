// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

package auth

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/skillswap-gateway/internal/backend"
	"github.com/tomtom215/skillswap-gateway/internal/guard"
	"github.com/tomtom215/skillswap-gateway/internal/lazyroute"
	"github.com/tomtom215/skillswap-gateway/internal/logging"
	"github.com/tomtom215/skillswap-gateway/internal/validation"
	"github.com/tomtom215/skillswap-gateway/internal/views"
)

// Auth endpoint paths. The login and two-factor forms post to these.
const (
	LoginPath     = "/auth/login"
	TwoFactorPath = "/auth/2fa"
	LogoutPath    = "/auth/logout"
	RefreshPath   = "/auth/refresh"
	SessionPath   = "/auth/session"
)

// maxAuthBody bounds login and verification request bodies.
const maxAuthBody = 16 << 10

// Preloader warms lazy routes once a user logs in. *lazyroute.Registry
// implements it.
type Preloader interface {
	PreloadStrategy(ctx context.Context, strategy string) (int, error)
}

// loginRequest is a password login from the login form or a JSON client.
type loginRequest struct {
	Email    string `json:"email" form:"email" validate:"required,email,max=254"`
	Password string `json:"password" form:"password" validate:"required,max=256"`
	From     string `json:"from,omitempty" form:"from"`
}

// twoFactorRequest completes a challenged login.
type twoFactorRequest struct {
	Challenge string `json:"challenge" form:"challenge" validate:"required,max=2048"`
	Code      string `json:"code" form:"code" validate:"required,otp"`
	From      string `json:"from,omitempty" form:"from"`
}

// sessionResponse is the JSON answer of a successful login or refresh.
type sessionResponse struct {
	SessionID string    `json:"session_id,omitempty"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Redirect  string    `json:"redirect,omitempty"`
}

// Handlers serves the login, two-factor, logout and refresh endpoints.
type Handlers struct {
	source    *SessionSource
	api       Backend
	lockout   *Lockout
	preloader Preloader
	events    *logging.SecurityLogger
	home      string
}

// NewHandlers creates the auth handlers. lockout and preloader may be nil.
func NewHandlers(source *SessionSource, api Backend, lockout *Lockout, preloader Preloader) *Handlers {
	return &Handlers{
		source:    source,
		api:       api,
		lockout:   lockout,
		preloader: preloader,
		events:    logging.NewSecurityLogger(),
		home:      "/",
	}
}

// Routes registers the auth endpoints on r. Credential submissions are
// additionally wrapped in credentialLimits.
func (h *Handlers) Routes(r chi.Router, credentialLimits ...func(http.Handler) http.Handler) {
	r.Get(LoginPath, h.LoginPage)
	r.With(credentialLimits...).Post(LoginPath, h.Login)
	r.Get(TwoFactorPath, h.TwoFactorPage)
	r.With(credentialLimits...).Post(TwoFactorPath, h.VerifyTwoFactor)
	r.Post(LogoutPath, h.Logout)
	r.Post(RefreshPath, h.Refresh)
	r.Get(SessionPath, h.CurrentSession)
}

// LoginPage renders the login form. A user who is already signed in is sent
// on to the page they came from.
func (h *Handlers) LoginPage(w http.ResponseWriter, r *http.Request) {
	state := guard.ParseNavigationState(r.URL.Query())
	from := ""
	if state.From != nil {
		from = state.From.String()
	}
	if h.source.Session(r).IsAuthenticated {
		http.Redirect(w, r, guard.SafeReturnPath(from, h.home), http.StatusFound)
		return
	}
	views.NoStore(w)
	views.Login(w, http.StatusOK, views.LoginView{
		Chrome: views.Chrome{Title: "Sign in"},
		From:   from,
		Error:  state.Reason,
	})
}

// Login exchanges credentials for a session.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		views.WriteBadRequest(w, r, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	view := views.LoginView{Chrome: views.Chrome{Title: "Sign in"}, From: req.From, Email: req.Email}

	if verr := validation.ValidateStruct(&req); verr != nil {
		if views.WantsJSON(r) {
			views.WriteErrorWithDetails(w, r, http.StatusBadRequest, views.ErrCodeValidationFailed, verr.Error(), verr.Fields())
			return
		}
		view.Error = verr.Error()
		views.Login(w, http.StatusBadRequest, view)
		return
	}

	ip := clientIP(r)
	if h.lockout != nil {
		if locked, remaining := h.lockout.Check(req.Email, ip); locked {
			LoginAttempts.WithLabelValues(StepPassword, "locked").Inc()
			h.tooManyAttempts(w, r, view, remaining)
			return
		}
	}

	start := time.Now()
	res, err := h.api.Login(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, backend.ErrTwoFactorRequired):
		RecordLoginAttempt(StepPassword, "challenged", time.Since(start))
		h.challenge(w, r, res.Challenge, req.From)
	case errors.Is(err, backend.ErrUnauthorized):
		RecordLoginAttempt(StepPassword, "rejected", time.Since(start))
		h.events.LogEvent(&logging.SecurityEvent{
			Event: "login", Email: req.Email, IPAddress: ip, UserAgent: r.UserAgent(), Error: "invalid credentials",
		})
		if h.lockout != nil {
			if locked, remaining := h.lockout.Fail(req.Email, ip); locked {
				h.tooManyAttempts(w, r, view, remaining)
				return
			}
		}
		h.loginFailed(w, r, view, http.StatusUnauthorized, views.ErrCodeUnauthorized, "Invalid email or password")
	case err != nil:
		RecordLoginAttempt(StepPassword, "error", time.Since(start))
		h.upstreamFailed(w, r, err, func(status int, msg string) {
			view.Error = msg
			views.Login(w, status, view)
		})
	default:
		RecordLoginAttempt(StepPassword, "success", time.Since(start))
		h.establish(w, r, &res.Tokens, req.Email, req.From)
	}
}

// challenge hands the browser over to the two-factor form.
func (h *Handlers) challenge(w http.ResponseWriter, r *http.Request, challenge, from string) {
	if views.WantsJSON(r) {
		views.NoStore(w)
		views.WriteData(w, r, http.StatusAccepted, map[string]any{
			"two_factor_required": true,
			"challenge":           challenge,
		})
		return
	}
	q := url.Values{"challenge": {challenge}}
	if guard.IsSafeReturnPath(from) {
		q.Set(guard.ParamFrom, from)
	}
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, TwoFactorPath+"?"+q.Encode(), http.StatusSeeOther)
}

// TwoFactorPage renders the verification form for a pending challenge.
func (h *Handlers) TwoFactorPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	challenge := q.Get("challenge")
	if challenge == "" {
		http.Redirect(w, r, LoginPath, http.StatusFound)
		return
	}
	views.NoStore(w)
	views.TwoFactor(w, http.StatusOK, views.TwoFactorView{
		Chrome:    views.Chrome{Title: "Two-factor verification"},
		From:      guard.SafeReturnPath(q.Get(guard.ParamFrom), ""),
		Challenge: challenge,
	})
}

// VerifyTwoFactor completes a challenged login.
func (h *Handlers) VerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req twoFactorRequest
	if err := decode(r, &req); err != nil {
		views.WriteBadRequest(w, r, "invalid request body")
		return
	}
	view := views.TwoFactorView{
		Chrome:    views.Chrome{Title: "Two-factor verification"},
		From:      req.From,
		Challenge: req.Challenge,
	}
	render := func(status int, msg string) {
		view.Error = msg
		views.TwoFactor(w, status, view)
	}

	if verr := validation.ValidateStruct(&req); verr != nil {
		if views.WantsJSON(r) {
			views.WriteErrorWithDetails(w, r, http.StatusBadRequest, views.ErrCodeValidationFailed, verr.Error(), verr.Fields())
			return
		}
		render(http.StatusBadRequest, verr.Error())
		return
	}

	start := time.Now()
	tokens, err := h.api.VerifyTwoFactor(r.Context(), req.Challenge, req.Code)
	switch {
	case errors.Is(err, backend.ErrUnauthorized):
		RecordLoginAttempt(StepTwoFactor, "rejected", time.Since(start))
		h.events.LogEvent(&logging.SecurityEvent{
			Event: "two_factor", IPAddress: clientIP(r), UserAgent: r.UserAgent(), Error: "invalid code",
		})
		if views.WantsJSON(r) {
			views.WriteError(w, r, http.StatusUnauthorized, views.ErrCodeUnauthorized, "Invalid verification code")
			return
		}
		render(http.StatusUnauthorized, "Invalid verification code")
	case err != nil:
		RecordLoginAttempt(StepTwoFactor, "error", time.Since(start))
		h.upstreamFailed(w, r, err, render)
	default:
		RecordLoginAttempt(StepTwoFactor, "success", time.Since(start))
		h.establish(w, r, tokens, "", req.From)
	}
}

// establish creates the session for freshly issued tokens, sets the cookie,
// warms the routes the user is likely to open and sends them on.
func (h *Handlers) establish(w http.ResponseWriter, r *http.Request, tokens *backend.Tokens, email, from string) {
	ctx := r.Context()
	oldID := extractSessionID(r, h.source.config.Cookie.Name)

	session, err := h.source.Create(ctx, tokens, oldID)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to create session")
		views.WriteError(w, r, http.StatusBadGateway, views.ErrCodeServiceUnavailable, "Sign-in could not be completed")
		return
	}
	if email == "" {
		email = session.Email
	}
	if h.lockout != nil {
		h.lockout.Succeed(email)
	}

	setSessionCookie(w, h.source.config.Cookie, session.ID)
	h.events.LogEvent(&logging.SecurityEvent{
		Event: "login", UserID: session.UserID, Email: email, SessionID: session.ID,
		IPAddress: clientIP(r), UserAgent: r.UserAgent(), Success: true,
	})
	h.preload(ctx, session)

	redirect := guard.SafeReturnPath(from, h.home)
	if views.WantsJSON(r) {
		views.NoStore(w)
		views.WriteSuccess(w, r, sessionResponse{
			SessionID: session.ID,
			UserID:    session.UserID,
			ExpiresAt: session.ExpiresAt,
			Redirect:  redirect,
		})
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, redirect, http.StatusSeeOther)
}

// preload warms authenticated routes, and admin routes for administrators.
// The imports outlive the login request.
func (h *Handlers) preload(ctx context.Context, session *Session) {
	if h.preloader == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	strategies := []string{lazyroute.StrategyAuthenticated}
	for _, role := range session.Roles {
		if role == "Admin" || role == "SuperAdmin" {
			strategies = append(strategies, lazyroute.StrategyAdmin)
			break
		}
	}
	for _, s := range strategies {
		if _, err := h.preloader.PreloadStrategy(ctx, s); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("strategy", s).Msg("Preload after login failed")
		}
	}
}

// Logout revokes the tokens and destroys the session.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if id := extractSessionID(r, h.source.config.Cookie.Name); id != "" {
		if session, err := h.source.Get(ctx, id); err == nil {
			if err := h.api.Logout(ctx, session.AccessToken, session.RefreshToken); err != nil {
				logging.Ctx(ctx).Warn().Err(err).Msg("Token revocation failed")
			}
			h.events.LogEvent(&logging.SecurityEvent{
				Event: "logout", UserID: session.UserID, SessionID: session.ID, IPAddress: clientIP(r), Success: true,
			})
		}
		h.source.Destroy(ctx, id)
		LogoutsTotal.Inc()
	}
	clearSessionCookie(w, h.source.config.Cookie)

	if views.WantsJSON(r) {
		views.WriteSuccess(w, r, map[string]bool{"logged_out": true})
		return
	}
	http.Redirect(w, r, LoginPath, http.StatusSeeOther)
}

// Refresh rotates the session's tokens on demand.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	id := extractSessionID(r, h.source.config.Cookie.Name)
	if id == "" {
		views.WriteError(w, r, http.StatusUnauthorized, views.ErrCodeUnauthorized, "No session")
		return
	}
	session, err := h.source.Refresh(r.Context(), id)
	switch {
	case errors.Is(err, backend.ErrUnavailable):
		views.WriteError(w, r, http.StatusServiceUnavailable, views.ErrCodeServiceUnavailable, "SkillSwap is unavailable")
	case err != nil:
		clearSessionCookie(w, h.source.config.Cookie)
		views.WriteError(w, r, http.StatusUnauthorized, views.ErrCodeUnauthorized, "Session expired")
	default:
		views.NoStore(w)
		views.WriteSuccess(w, r, sessionResponse{UserID: session.UserID, ExpiresAt: session.ExpiresAt})
	}
}

// CurrentSession reports the caller's session snapshot.
func (h *Handlers) CurrentSession(w http.ResponseWriter, r *http.Request) {
	s := h.source.Session(r)
	views.NoStore(w)
	views.WriteSuccess(w, r, map[string]any{
		"authenticated": s.IsAuthenticated,
		"loading":       s.IsLoading || (s.TokenPresent && s.User == nil),
		"user":          s.User,
	})
}

func (h *Handlers) loginFailed(w http.ResponseWriter, r *http.Request, view views.LoginView, status int, code, msg string) {
	if views.WantsJSON(r) {
		views.WriteError(w, r, status, code, msg)
		return
	}
	view.Error = msg
	views.Login(w, status, view)
}

func (h *Handlers) tooManyAttempts(w http.ResponseWriter, r *http.Request, view views.LoginView, remaining time.Duration) {
	secs := int(remaining.Round(time.Second).Seconds())
	w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
	h.loginFailed(w, r, view, http.StatusTooManyRequests, views.ErrCodeTooManyRequests,
		"Too many failed attempts. Try again in "+remaining.Round(time.Second).String())
}

// upstreamFailed answers a login step that failed for reasons other than
// bad credentials.
func (h *Handlers) upstreamFailed(w http.ResponseWriter, r *http.Request, err error, render func(status int, msg string)) {
	status, code, msg := http.StatusBadGateway, views.ErrCodeServiceUnavailable, "Sign-in failed. Please try again."
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, backend.ErrUnavailable):
		status, msg = http.StatusServiceUnavailable, "SkillSwap is temporarily unavailable. Please try again shortly."
	case errors.As(err, &apiErr):
		status, code, msg = http.StatusBadRequest, views.ErrCodeBadRequest, apiErr.Message
	}
	logging.Ctx(r.Context()).Warn().Err(err).Int("status", status).Msg("Sign-in step failed")
	if views.WantsJSON(r) {
		views.WriteError(w, r, status, code, msg)
		return
	}
	render(status, msg)
}

// decode fills v from a JSON body or a form post.
func decode(r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxAuthBody)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return json.NewDecoder(r.Body).Decode(v)
	}
	if err := r.ParseForm(); err != nil {
		return err
	}
	switch req := v.(type) {
	case *loginRequest:
		req.Email = r.PostForm.Get("email")
		req.Password = r.PostForm.Get("password")
		req.From = r.PostForm.Get(guard.ParamFrom)
	case *twoFactorRequest:
		req.Challenge = r.PostForm.Get("challenge")
		req.Code = strings.TrimSpace(r.PostForm.Get("code"))
		req.From = r.PostForm.Get(guard.ParamFrom)
	}
	return nil
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
