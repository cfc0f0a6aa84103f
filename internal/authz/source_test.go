// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

package authz

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"testing"
	"time"
)

// countingResolver wraps a StaticResolver and counts calls; block, when set,
// holds every call until closed.
type countingResolver struct {
	calls atomic.Int32
	block chan struct{}
	err   error
	inner StaticResolver
}

func (c *countingResolver) Resolve(ctx context.Context, userID string, roles []string) (Grants, error) {
	c.calls.Add(1)
	if c.block != nil {
		<-c.block
	}
	if c.err != nil {
		return Grants{}, c.err
	}
	return c.inner.Resolve(ctx, userID, roles)
}

func setupResolver(t *testing.T, r Resolver, wait time.Duration) *PermissionResolver {
	t.Helper()
	cfg := DefaultPermissionResolverConfig()
	cfg.WaitBudget = wait
	pr := NewPermissionResolver(r, cfg)
	t.Cleanup(pr.Drain)
	return pr
}

func readySession(roles ...string) Session {
	return Session{
		IsAuthenticated: true,
		TokenPresent:    true,
		User:            &User{ID: "user-1", Roles: roles},
	}
}

func TestPermissionResolver_NoLookupBeforeAuthentication(t *testing.T) {
	t.Parallel()

	r := &countingResolver{}
	pr := setupResolver(t, r, time.Second)

	for _, s := range []Session{{}, {IsLoading: true}, {IsAuthenticated: true, TokenPresent: true}} {
		if got := pr.Permissions(context.Background(), s); !got.Loading {
			t.Errorf("Permissions(%+v).Loading = false, want true", s)
		}
	}
	if got := r.calls.Load(); got != 0 {
		t.Errorf("resolver calls = %d, want 0", got)
	}
}

func TestPermissionResolver_ResolvesAndMergesTokenRoles(t *testing.T) {
	t.Parallel()

	r := &countingResolver{inner: StaticResolver{"Admin": {"users:read", "users:write"}}}
	pr := setupResolver(t, r, time.Second)

	got := pr.Permissions(context.Background(), readySession("Admin"))
	if got.Loading {
		t.Fatal("Loading = true after wait budget allowed completion")
	}
	if !got.Roles.Has("Admin") {
		t.Errorf("Roles = %v, want Admin", got.Roles)
	}
	if !slices.Equal(got.Permissions.Values(), []string{"users:read", "users:write"}) {
		t.Errorf("Permissions = %v", got.Permissions)
	}
	if got.User == nil || got.User.ID != "user-1" {
		t.Errorf("User = %+v, want user-1", got.User)
	}

	// Cached.
	_ = pr.Permissions(context.Background(), readySession("Admin"))
	if calls := r.calls.Load(); calls != 1 {
		t.Errorf("resolver calls = %d, want 1", calls)
	}

	pr.Invalidate("user-1")
	_ = pr.Permissions(context.Background(), readySession("Admin"))
	if calls := r.calls.Load(); calls != 2 {
		t.Errorf("resolver calls after Invalidate = %d, want 2", calls)
	}
}

func TestPermissionResolver_LoadingWhileSlow(t *testing.T) {
	t.Parallel()

	r := &countingResolver{block: make(chan struct{}), inner: StaticResolver{"User": {"skills:read"}}}
	pr := setupResolver(t, r, 10*time.Millisecond)

	got := pr.Permissions(context.Background(), readySession("User"))
	if !got.Loading {
		t.Fatal("Loading = false while resolver blocked")
	}
	got = pr.Permissions(context.Background(), readySession("User"))
	if !got.Loading {
		t.Fatal("second call Loading = false while resolver blocked")
	}

	close(r.block)
	pr.Drain()

	got = pr.Permissions(context.Background(), readySession("User"))
	if got.Loading || !got.Permissions.Has("skills:read") {
		t.Errorf("after resolve: %+v", got)
	}
	if calls := r.calls.Load(); calls != 1 {
		t.Errorf("resolver calls = %d, want 1", calls)
	}
}

func TestPermissionResolver_FailureFallsBackToTokenRoles(t *testing.T) {
	t.Parallel()

	r := &countingResolver{err: errors.New("backend unavailable")}
	pr := setupResolver(t, r, time.Second)

	got := pr.Permissions(context.Background(), readySession("User"))
	if got.Loading {
		t.Fatal("Loading = true after failed lookup")
	}
	if !got.Roles.Has("User") || !got.Permissions.IsEmpty() {
		t.Errorf("got %+v, want token roles only", got)
	}
}

func TestPermissionResolver_PolicyChanged(t *testing.T) {
	t.Parallel()

	r := &countingResolver{inner: StaticResolver{}}
	pr := setupResolver(t, r, time.Second)

	_ = pr.Permissions(context.Background(), readySession())
	pr.PolicyChanged("")
	_ = pr.Permissions(context.Background(), readySession())
	pr.PolicyChanged("someone-else")
	_ = pr.Permissions(context.Background(), readySession())

	if calls := r.calls.Load(); calls != 2 {
		t.Errorf("resolver calls = %d, want 2", calls)
	}
}

var _ PermissionSource = StaticSource{}

func TestStaticSource(t *testing.T) {
	t.Parallel()

	src := StaticSource{Set: PermissionSet{Roles: NewSet("Admin")}}
	got := src.Permissions(context.Background(), readySession())
	if !got.Roles.Has("Admin") || got.User == nil {
		t.Errorf("StaticSource.Permissions() = %+v", got)
	}
}
