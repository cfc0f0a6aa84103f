// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/skillswap-gateway/internal/authz"
	"github.com/tomtom215/skillswap-gateway/internal/backend"
)

// fakeBackend scripts the SkillSwap API.
type fakeBackend struct {
	tokens *TokenManager

	mu           sync.Mutex
	loginErr     error
	challenge    string
	twoFactorErr error
	refreshErr   error
	profileErr   error
	profileGate  chan struct{} // when set, Profile blocks until closed
	roles        []string
	loggedOut    []string

	logins    atomic.Int32
	refreshes atomic.Int32
	profiles  atomic.Int32
}

func newFakeBackend(t *testing.T, tokens *TokenManager) *fakeBackend {
	t.Helper()
	return &fakeBackend{tokens: tokens, roles: []string{"User"}}
}

func (f *fakeBackend) issue(ttl time.Duration) *backend.Tokens {
	f.mu.Lock()
	roles := f.roles
	f.mu.Unlock()
	access, err := f.tokens.GenerateToken("user-1", "ada@skillswap.test", roles, ttl)
	if err != nil {
		panic(err)
	}
	return &backend.Tokens{AccessToken: access, RefreshToken: "refresh-" + access[len(access)-8:], ExpiresIn: int(ttl.Seconds())}
}

func (f *fakeBackend) Login(_ context.Context, email, password string) (*backend.LoginResult, error) {
	f.logins.Add(1)
	f.mu.Lock()
	loginErr, challenge := f.loginErr, f.challenge
	f.mu.Unlock()
	if loginErr != nil {
		return nil, loginErr
	}
	if challenge != "" {
		return &backend.LoginResult{TwoFactorRequired: true, Challenge: challenge}, backend.ErrTwoFactorRequired
	}
	return &backend.LoginResult{Tokens: *f.issue(time.Hour)}, nil
}

func (f *fakeBackend) VerifyTwoFactor(_ context.Context, challenge, code string) (*backend.Tokens, error) {
	f.mu.Lock()
	err := f.twoFactorErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if code != "123456" {
		return nil, backend.ErrUnauthorized
	}
	return f.issue(time.Hour), nil
}

func (f *fakeBackend) Refresh(_ context.Context, refreshToken string) (*backend.Tokens, error) {
	f.refreshes.Add(1)
	f.mu.Lock()
	err := f.refreshErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.issue(time.Hour), nil
}

func (f *fakeBackend) Logout(_ context.Context, accessToken, refreshToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loggedOut = append(f.loggedOut, refreshToken)
	return nil
}

func (f *fakeBackend) Profile(_ context.Context, accessToken string) (*authz.User, error) {
	f.profiles.Add(1)
	f.mu.Lock()
	gate, err := f.profileGate, f.profileErr
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return &authz.User{ID: "user-1", Email: "ada@skillswap.test", DisplayName: "Ada", Roles: []string{"ignored"}}, nil
}

func (f *fakeBackend) set(fn func(f *fakeBackend)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

type sourceFixture struct {
	source  *SessionSource
	store   *MemorySessionStore
	tokens  *TokenManager
	backend *fakeBackend
	changed chan string
}

func newSourceFixture(t *testing.T, mutate func(*SourceConfig)) *sourceFixture {
	t.Helper()
	tokens := newTestTokens(t)
	fb := newFakeBackend(t, tokens)
	store := NewMemorySessionStore()

	cfg := DefaultSourceConfig()
	cfg.RefreshWait = time.Second
	cfg.ProfileWait = time.Second
	if mutate != nil {
		mutate(&cfg)
	}

	fx := &sourceFixture{
		source:  NewSessionSource(store, tokens, fb, cfg),
		store:   store,
		tokens:  tokens,
		backend: fb,
		changed: make(chan string, 16),
	}
	fx.source.OnChange(func(userID string) { fx.changed <- userID })
	if err := fx.source.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(fx.source.Drain)
	return fx
}

// seed stores a session whose access token expires after ttl.
func (fx *sourceFixture) seed(t *testing.T, ttl time.Duration) *Session {
	t.Helper()
	access, err := fx.tokens.GenerateToken("user-1", "ada@skillswap.test", []string{"User", "Admin"}, ttl)
	if err != nil {
		t.Fatal(err)
	}
	s := NewSession("user-1", "ada@skillswap.test", []string{"User", "Admin"}, access, "refresh-1", time.Hour)
	if err := fx.store.Create(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	return s
}

func (fx *sourceFixture) request(id string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	if id != "" {
		r.AddCookie(&http.Cookie{Name: fx.source.CookieConfig().Name, Value: id})
	}
	return r
}

func TestSessionSource_NotStartedIsLoading(t *testing.T) {
	tokens := newTestTokens(t)
	src := NewSessionSource(NewMemorySessionStore(), tokens, newFakeBackend(t, tokens), DefaultSourceConfig())

	s := src.Session(httptest.NewRequest(http.MethodGet, "/", nil))
	if !s.IsLoading || s.IsAuthenticated {
		t.Errorf("session = %+v, want loading", s)
	}
	if src.Ready() {
		t.Error("Ready before Start")
	}
}

func TestSessionSource_Anonymous(t *testing.T) {
	fx := newSourceFixture(t, nil)

	if s := fx.source.Session(fx.request("")); s.IsAuthenticated || s.IsLoading || s.TokenPresent {
		t.Errorf("no cookie: %+v", s)
	}
	if s := fx.source.Session(fx.request("unknown")); s.IsAuthenticated || s.TokenPresent {
		t.Errorf("unknown session: %+v", s)
	}
}

func TestSessionSource_Authenticated(t *testing.T) {
	fx := newSourceFixture(t, nil)
	stored := fx.seed(t, time.Hour)

	s := fx.source.Session(fx.request(stored.ID))
	if !s.IsAuthenticated || !s.TokenPresent || s.IsLoading {
		t.Fatalf("session = %+v", s)
	}
	if s.User == nil || s.User.DisplayName != "Ada" {
		t.Fatalf("user = %+v", s.User)
	}
	// Roles come from the access token, not the profile.
	if len(s.User.Roles) != 2 || s.User.Roles[1] != "Admin" {
		t.Errorf("roles = %v", s.User.Roles)
	}

	// The profile is fetched once and reused.
	fx.source.Session(fx.request(stored.ID))
	if n := fx.backend.profiles.Load(); n != 1 {
		t.Errorf("profile fetches = %d, want 1", n)
	}
}

func TestSessionSource_BearerHeader(t *testing.T) {
	fx := newSourceFixture(t, nil)
	stored := fx.seed(t, time.Hour)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+stored.ID)
	if s := fx.source.Session(r); !s.IsAuthenticated {
		t.Errorf("bearer session = %+v", s)
	}
}

func TestSessionSource_ProfilePending(t *testing.T) {
	fx := newSourceFixture(t, func(c *SourceConfig) { c.ProfileWait = 0 })
	gate := make(chan struct{})
	fx.backend.set(func(f *fakeBackend) { f.profileGate = gate })
	stored := fx.seed(t, time.Hour)

	s := fx.source.Session(fx.request(stored.ID))
	if !s.IsAuthenticated || s.User != nil {
		t.Fatalf("pending profile: %+v", s)
	}

	close(gate)
	fx.source.Drain()
	if s := fx.source.Session(fx.request(stored.ID)); s.User == nil {
		t.Error("profile should be hydrated on the next request")
	}
}

func TestSessionSource_ProfileRejectedDestroysSession(t *testing.T) {
	fx := newSourceFixture(t, nil)
	fx.backend.set(func(f *fakeBackend) { f.profileErr = backend.ErrUnauthorized })
	stored := fx.seed(t, time.Hour)

	if s := fx.source.Session(fx.request(stored.ID)); s.IsAuthenticated {
		t.Fatalf("session = %+v, want unauthenticated", s)
	}
	if _, err := fx.store.Get(context.Background(), stored.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("session still stored: %v", err)
	}
	if got := <-fx.changed; got != "user-1" {
		t.Errorf("OnChange user = %q", got)
	}
}

func TestSessionSource_ProfileUnavailableStaysPending(t *testing.T) {
	fx := newSourceFixture(t, nil)
	fx.backend.set(func(f *fakeBackend) { f.profileErr = backend.ErrUnavailable })
	stored := fx.seed(t, time.Hour)

	s := fx.source.Session(fx.request(stored.ID))
	if !s.IsAuthenticated || s.User != nil {
		t.Errorf("session = %+v, want authenticated without user", s)
	}
}

func TestSessionSource_SilentRefresh(t *testing.T) {
	fx := newSourceFixture(t, nil)
	stored := fx.seed(t, -time.Minute)

	s := fx.source.Session(fx.request(stored.ID))
	if !s.IsAuthenticated || s.User == nil {
		t.Fatalf("session = %+v, want authenticated after refresh", s)
	}
	// The refreshed token carries the backend's roles.
	if len(s.User.Roles) != 1 || s.User.Roles[0] != "User" {
		t.Errorf("roles = %v", s.User.Roles)
	}

	got, err := fx.store.Get(context.Background(), stored.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.AccessToken == stored.AccessToken {
		t.Error("access token was not rotated")
	}
}

func TestSessionSource_RefreshDeduplicated(t *testing.T) {
	fx := newSourceFixture(t, nil)
	stored := fx.seed(t, -time.Minute)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fx.source.Session(fx.request(stored.ID))
		}()
	}
	wg.Wait()
	if n := fx.backend.refreshes.Load(); n != 1 {
		t.Errorf("refreshes = %d, want 1", n)
	}
}

func TestSessionSource_RefreshRejected(t *testing.T) {
	fx := newSourceFixture(t, nil)
	fx.backend.set(func(f *fakeBackend) { f.refreshErr = backend.ErrUnauthorized })
	stored := fx.seed(t, -time.Minute)

	if s := fx.source.Session(fx.request(stored.ID)); s.IsAuthenticated || s.TokenPresent {
		t.Errorf("session = %+v, want unauthenticated", s)
	}
	if _, err := fx.store.Get(context.Background(), stored.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("session still stored: %v", err)
	}
}

func TestSessionSource_RefreshUnavailableIsLoading(t *testing.T) {
	fx := newSourceFixture(t, nil)
	fx.backend.set(func(f *fakeBackend) { f.refreshErr = backend.ErrUnavailable })
	stored := fx.seed(t, -time.Minute)

	s := fx.source.Session(fx.request(stored.ID))
	if s.IsAuthenticated || !s.TokenPresent {
		t.Errorf("session = %+v, want token present and not authenticated", s)
	}
	if _, err := fx.store.Get(context.Background(), stored.ID); err != nil {
		t.Errorf("session removed on a transient failure: %v", err)
	}
}

func TestSessionSource_ForgedTokenDestroysSession(t *testing.T) {
	fx := newSourceFixture(t, nil)
	other, err := NewTokenManager("another-secret-that-is-32-characters!!")
	if err != nil {
		t.Fatal(err)
	}
	forged, _ := other.GenerateToken("user-1", "", []string{"SuperAdmin"}, time.Hour)
	s := NewSession("user-1", "", nil, forged, "refresh", time.Hour)
	if err := fx.store.Create(context.Background(), s); err != nil {
		t.Fatal(err)
	}

	if got := fx.source.Session(fx.request(s.ID)); got.IsAuthenticated {
		t.Errorf("forged token accepted: %+v", got)
	}
	if _, err := fx.store.Get(context.Background(), s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("session still stored: %v", err)
	}
}

func TestSessionSource_CreateReplacesOldSession(t *testing.T) {
	fx := newSourceFixture(t, nil)
	old := fx.seed(t, time.Hour)

	session, err := fx.source.Create(context.Background(), fx.backend.issue(time.Hour), old.ID)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if session.ID == old.ID || session.UserID != "user-1" || session.Email != "ada@skillswap.test" {
		t.Errorf("session = %+v", session)
	}
	if _, err := fx.store.Get(context.Background(), old.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("old session kept: %v", err)
	}
	if _, err := fx.source.Create(context.Background(), &backend.Tokens{AccessToken: "junk"}, ""); err == nil {
		t.Error("Create accepted an invalid token")
	}
}

func TestSessionSource_Refresh(t *testing.T) {
	fx := newSourceFixture(t, nil)
	stored := fx.seed(t, time.Hour)

	first, err := fx.source.Refresh(context.Background(), stored.ID)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if _, err := fx.source.Refresh(context.Background(), stored.ID); err != nil {
		t.Fatalf("second Refresh: %v", err)
	}
	if n := fx.backend.refreshes.Load(); n != 2 {
		t.Errorf("refreshes = %d, want a new refresh per call", n)
	}
	if first.AccessToken == stored.AccessToken {
		t.Error("token not rotated")
	}
}

func TestSessionSource_Sweep(t *testing.T) {
	fx := newSourceFixture(t, nil)
	s := NewSession("user-1", "", nil, "a", "r", time.Hour)
	s.ExpiresAt = time.Now().Add(-time.Minute)
	if err := fx.store.Create(context.Background(), s); err != nil {
		t.Fatal(err)
	}

	n, err := fx.source.Sweep(context.Background())
	if err != nil || n != 1 {
		t.Errorf("Sweep = %d, %v; want 1", n, err)
	}
}
