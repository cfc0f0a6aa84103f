// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/skillswap-gateway/internal/authz"
	"github.com/tomtom215/skillswap-gateway/internal/backend"
	"github.com/tomtom215/skillswap-gateway/internal/cache"
	"github.com/tomtom215/skillswap-gateway/internal/logging"
	"github.com/tomtom215/skillswap-gateway/internal/metrics"
)

// Backend is the part of the SkillSwap API the session layer talks to.
// *backend.Client implements it.
type Backend interface {
	Login(ctx context.Context, email, password string) (*backend.LoginResult, error)
	VerifyTwoFactor(ctx context.Context, challenge, code string) (*backend.Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (*backend.Tokens, error)
	Logout(ctx context.Context, accessToken, refreshToken string) error
	Profile(ctx context.Context, accessToken string) (*authz.User, error)
}

// SourceConfig configures a SessionSource.
type SourceConfig struct {
	Cookie CookieConfig `koanf:"cookie"`

	// RefreshWait is how long a request waits for a silent token refresh
	// before reporting the session as loading.
	RefreshWait time.Duration `koanf:"refresh_wait" validate:"min=0"`

	// ProfileWait is how long a request waits for profile hydration.
	ProfileWait time.Duration `koanf:"profile_wait" validate:"min=0"`

	// ProfileTTL is how long a hydrated profile is reused.
	ProfileTTL time.Duration `koanf:"profile_ttl" validate:"min=0"`

	// FailureTTL is how long a failed refresh or profile fetch is
	// remembered before it is retried.
	FailureTTL time.Duration `koanf:"failure_ttl" validate:"min=0"`
}

// DefaultSourceConfig returns production defaults.
func DefaultSourceConfig() SourceConfig {
	return SourceConfig{
		Cookie:      DefaultCookieConfig(),
		RefreshWait: 150 * time.Millisecond,
		ProfileWait: 100 * time.Millisecond,
		ProfileTTL:  5 * time.Minute,
		FailureTTL:  5 * time.Second,
	}
}

// SessionSource turns a request's session cookie or bearer credential into
// an authz.Session snapshot. Expired access tokens are refreshed and
// profiles hydrated in the background, once per session, while requests
// observe the loading state.
//
// Thread Safety: safe for concurrent use.
type SessionSource struct {
	store   SessionStore
	tokens  *TokenManager
	backend Backend
	config  SourceConfig
	logger  zerolog.Logger
	events  *logging.SecurityLogger

	ready atomic.Bool

	refresher *cache.Loader[string, *Session]
	profiles  *cache.Loader[string, *authz.User]

	mu       sync.RWMutex
	onChange []func(userID string)
}

// NewSessionSource creates a session source. It reports every session as
// loading until Start has run.
func NewSessionSource(store SessionStore, tokens *TokenManager, api Backend, config SourceConfig) *SessionSource {
	s := &SessionSource{
		store:   store,
		tokens:  tokens,
		backend: api,
		config:  config,
		logger:  logging.WithComponent("session"),
		events:  logging.NewSecurityLogger(),
	}
	failureTTL := config.FailureTTL
	if failureTTL <= 0 {
		failureTTL = 5 * time.Second
	}
	// A resolved refresh is only needed until the rotated token reaches the store.
	s.refresher = cache.NewLoader(s.refresh,
		cache.WithTTL(failureTTL),
		cache.WithFailureTTL(failureTTL),
	)
	s.profiles = cache.NewLoader(s.hydrate,
		cache.WithTTL(config.ProfileTTL),
		cache.WithFailureTTL(failureTTL),
	)
	return s
}

// OnChange registers fn to run with the user ID of every created or
// destroyed session.
func (s *SessionSource) OnChange(fn func(userID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// Start sweeps expired sessions and marks the source ready.
func (s *SessionSource) Start(ctx context.Context) error {
	n, err := s.store.CleanupExpired(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		metrics.SessionsCleaned.Add(float64(n))
	}
	s.ready.Store(true)
	s.logger.Info().Int("expired", n).Msg("Session source ready")
	return nil
}

// Ready reports whether Start has completed.
func (s *SessionSource) Ready() bool {
	return s.ready.Load()
}

// CookieConfig returns the session cookie settings.
func (s *SessionSource) CookieConfig() CookieConfig {
	return s.config.Cookie
}

// Session implements guard.SessionSource.
func (s *SessionSource) Session(r *http.Request) authz.Session {
	if !s.ready.Load() {
		return authz.Session{IsLoading: true}
	}
	id := extractSessionID(r, s.config.Cookie.Name)
	if id == "" {
		return authz.Session{}
	}
	return s.Lookup(r.Context(), id)
}

// Lookup resolves the session snapshot for a session ID.
func (s *SessionSource) Lookup(ctx context.Context, id string) authz.Session {
	stored, err := s.store.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) && !errors.Is(err, ErrSessionExpired) {
			s.logger.Error().Err(err).Msg("Session lookup error")
		}
		return authz.Session{}
	}

	claims, err := s.tokens.Validate(stored.AccessToken)
	if errors.Is(err, ErrTokenExpired) && stored.RefreshToken != "" {
		var ok bool
		if stored, claims, ok = s.awaitRefresh(ctx, stored.ID); !ok {
			if stored == nil {
				return authz.Session{}
			}
			// Silent re-authentication in progress.
			return authz.Session{TokenPresent: true}
		}
	} else if err != nil {
		reason := "invalid_token"
		if errors.Is(err, ErrTokenExpired) {
			reason = "expired"
		}
		s.destroy(ctx, stored, reason)
		return authz.Session{}
	}

	s.touch(ctx, stored)

	user, pending := s.awaitProfile(ctx, stored.ID)
	if user == nil && !pending {
		// The profile fetch destroyed the session.
		return authz.Session{}
	}
	if user != nil {
		u := *user
		u.Roles = slices.Clone(claims.Roles)
		user = &u
	}
	return authz.Session{IsAuthenticated: true, TokenPresent: true, User: user}
}

// awaitRefresh waits up to RefreshWait for the session's refresh. It returns
// the refreshed session and claims when done; a nil session means the
// session is gone.
func (s *SessionSource) awaitRefresh(ctx context.Context, id string) (*Session, *Claims, bool) {
	done := s.refresher.Start(ctx, id)
	if !wait(ctx, done, s.config.RefreshWait) {
		return &Session{ID: id}, nil, false
	}
	state, refreshed, err := s.refresher.Peek(id)
	switch {
	case state == cache.Resolved:
		claims, err := s.tokens.Validate(refreshed.AccessToken)
		if err != nil {
			return nil, nil, false
		}
		return refreshed, claims, true
	case state == cache.Failed && errors.Is(err, backend.ErrUnauthorized):
		return nil, nil, false
	case state == cache.Failed && errors.Is(err, ErrSessionNotFound):
		return nil, nil, false
	case state == cache.NotRequested:
		// Forgotten by destroy while the refresh ran.
		return nil, nil, false
	default:
		// Transient failure; retried after FailureTTL.
		return &Session{ID: id}, nil, false
	}
}

// awaitProfile waits up to ProfileWait for the session's profile. It reports
// pending while the fetch is in flight or failed transiently.
func (s *SessionSource) awaitProfile(ctx context.Context, id string) (*authz.User, bool) {
	state, user, err := s.profiles.Peek(id)
	if state == cache.NotRequested {
		done := s.profiles.Start(ctx, id)
		if !wait(ctx, done, s.config.ProfileWait) {
			return nil, true
		}
		state, user, err = s.profiles.Peek(id)
	}
	switch state {
	case cache.Resolved:
		return user, false
	case cache.Failed:
		if errors.Is(err, backend.ErrUnauthorized) || errors.Is(err, ErrSessionNotFound) {
			return nil, false
		}
		return nil, true
	case cache.NotRequested:
		// Forgotten by destroy while the fetch ran.
		return nil, false
	default:
		return nil, true
	}
}

func wait(ctx context.Context, done <-chan struct{}, budget time.Duration) bool {
	select {
	case <-done:
		return true
	default:
	}
	if budget <= 0 {
		return false
	}
	timer := time.NewTimer(budget)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// refresh rotates the session's tokens. A rejected refresh token destroys
// the session.
func (s *SessionSource) refresh(ctx context.Context, id string) (*Session, error) {
	stored, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, ErrSessionNotFound
	}

	tokens, err := s.backend.Refresh(ctx, stored.RefreshToken)
	if err != nil {
		s.events.LogEvent(&logging.SecurityEvent{
			Event: "token_refresh", UserID: stored.UserID, SessionID: stored.ID, Error: err.Error(),
		})
		if errors.Is(err, backend.ErrUnauthorized) {
			s.destroy(ctx, stored, "refresh_rejected")
		}
		return nil, err
	}

	claims, err := s.tokens.Validate(tokens.AccessToken)
	if err != nil {
		s.destroy(ctx, stored, "invalid_token")
		return nil, backend.ErrUnauthorized
	}

	stored.AccessToken = tokens.AccessToken
	stored.RefreshToken = tokens.RefreshToken
	stored.Roles = claims.Roles
	if err := s.store.Update(ctx, stored); err != nil {
		return nil, err
	}
	// Roles may have changed with the new token.
	s.profiles.Forget(id)

	metrics.RecordSessionEvent("refreshed")
	s.events.LogEvent(&logging.SecurityEvent{
		Event: "token_refresh", UserID: stored.UserID, SessionID: stored.ID, Success: true,
	})
	return stored, nil
}

// Refresh rotates the session's tokens now, joining a refresh already in
// flight.
func (s *SessionSource) Refresh(ctx context.Context, id string) (*Session, error) {
	if state, _, _ := s.refresher.Peek(id); state == cache.Resolved || state == cache.Failed {
		s.refresher.Forget(id)
	}
	return s.refresher.Wait(ctx, id)
}

// hydrate fetches the profile behind the session's access token. A rejected
// token destroys the session.
func (s *SessionSource) hydrate(ctx context.Context, id string) (*authz.User, error) {
	stored, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, ErrSessionNotFound
	}
	user, err := s.backend.Profile(ctx, stored.AccessToken)
	if err != nil {
		if errors.Is(err, backend.ErrUnauthorized) {
			s.destroy(ctx, stored, "profile_rejected")
		} else {
			s.logger.Warn().Err(err).Str("user_id", logging.SanitizeUserID(stored.UserID)).Msg("Profile fetch failed")
		}
		return nil, err
	}
	return user, nil
}

// touch slides the session expiry when configured.
func (s *SessionSource) touch(ctx context.Context, stored *Session) {
	if !s.config.Cookie.Sliding {
		return
	}
	// Only write when a noticeable share of the lifetime has passed.
	if time.Since(stored.LastAccessedAt) < time.Minute {
		return
	}
	if err := s.store.Touch(ctx, stored.ID, time.Now().Add(s.config.Cookie.SessionTTL)); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to touch session")
	}
}

// Create stores a new session for tokens and returns it. oldID, when set,
// is deleted first so a login never reuses a pre-login session ID.
func (s *SessionSource) Create(ctx context.Context, tokens *backend.Tokens, oldID string) (*Session, error) {
	claims, err := s.tokens.Validate(tokens.AccessToken)
	if err != nil {
		return nil, err
	}
	if oldID != "" {
		s.Destroy(ctx, oldID)
	}

	session := NewSession(claims.Subject, claims.Email, claims.Roles, tokens.AccessToken, tokens.RefreshToken, s.config.Cookie.SessionTTL)
	if err := s.store.Create(ctx, session); err != nil {
		return nil, err
	}
	s.notify(session.UserID) // cached grants predate this login
	metrics.SessionsActive.Inc()
	metrics.RecordSessionEvent("created")
	return session, nil
}

// Get returns the stored session.
func (s *SessionSource) Get(ctx context.Context, id string) (*Session, error) {
	return s.store.Get(ctx, id)
}

// Destroy removes the session and its cached state.
func (s *SessionSource) Destroy(ctx context.Context, id string) {
	stored, err := s.store.Get(ctx, id)
	if err != nil {
		_ = s.store.Delete(ctx, id)
		s.forget(id)
		return
	}
	s.destroy(ctx, stored, "logout")
}

func (s *SessionSource) destroy(ctx context.Context, stored *Session, reason string) {
	if err := s.store.Delete(ctx, stored.ID); err != nil {
		s.logger.Error().Err(err).Msg("Failed to delete session")
	}
	s.forget(stored.ID)
	s.notify(stored.UserID)
	metrics.SessionsActive.Dec()
	metrics.RecordSessionEvent(reason)
	s.logger.Debug().Str("reason", reason).Str("user_id", logging.SanitizeUserID(stored.UserID)).Msg("Session destroyed")
}

func (s *SessionSource) forget(id string) {
	s.refresher.Forget(id)
	s.profiles.Forget(id)
}

func (s *SessionSource) notify(userID string) {
	s.mu.RLock()
	hooks := slices.Clone(s.onChange)
	s.mu.RUnlock()
	for _, fn := range hooks {
		fn(userID)
	}
}

// Sweep removes expired sessions and cache entries. It returns the number
// of sessions removed.
func (s *SessionSource) Sweep(ctx context.Context) (int, error) {
	s.refresher.CleanupExpired()
	s.profiles.CleanupExpired()
	n, err := s.store.CleanupExpired(ctx)
	if n > 0 {
		metrics.SessionsCleaned.Add(float64(n))
		metrics.SessionsActive.Sub(float64(n))
	}
	return n, err
}

// Drain waits for in-flight refreshes and profile fetches.
func (s *SessionSource) Drain() {
	s.refresher.Drain()
	s.profiles.Drain()
}
