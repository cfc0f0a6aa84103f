// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

package authz

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/skillswap-gateway/internal/cache"
	"github.com/tomtom215/skillswap-gateway/internal/logging"
)

// PermissionSource supplies the PermissionSet for a session.
type PermissionSource interface {
	// Permissions never blocks past its wait budget; it reports Loading
	// while resolution is in flight.
	Permissions(ctx context.Context, session Session) PermissionSet
}

// Grants are the roles and permissions a Resolver found for a user.
type Grants struct {
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// Resolver looks up grants for a user. tokenRoles are the roles asserted in
// the user's access token.
type Resolver interface {
	Resolve(ctx context.Context, userID string, tokenRoles []string) (Grants, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, userID string, tokenRoles []string) (Grants, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(ctx context.Context, userID string, tokenRoles []string) (Grants, error) {
	return f(ctx, userID, tokenRoles)
}

// PermissionResolverConfig configures a PermissionResolver.
type PermissionResolverConfig struct {
	// TTL is how long resolved grants are reused.
	TTL time.Duration
	// FailureTTL is how long a failed lookup is remembered before retrying.
	FailureTTL time.Duration
	// WaitBudget is how long Permissions waits for a fresh lookup before
	// reporting Loading.
	WaitBudget time.Duration
}

// DefaultPermissionResolverConfig returns production defaults.
func DefaultPermissionResolverConfig() PermissionResolverConfig {
	return PermissionResolverConfig{
		TTL:        5 * time.Minute,
		FailureTTL: 15 * time.Second,
		WaitBudget: 100 * time.Millisecond,
	}
}

// PermissionResolver is a PermissionSource that resolves each user's grants
// once through a Resolver and caches them per user.
type PermissionResolver struct {
	resolver Resolver
	config   PermissionResolverConfig
	loader   *cache.Loader[string, Grants]

	// tokenRoles holds the roles the next lookup for a user should merge.
	tokenRoles sync.Map
}

// NewPermissionResolver creates a PermissionResolver over resolver.
func NewPermissionResolver(resolver Resolver, config PermissionResolverConfig) *PermissionResolver {
	r := &PermissionResolver{resolver: resolver, config: config}
	r.loader = cache.NewLoader(r.load,
		cache.WithTTL(config.TTL),
		cache.WithFailureTTL(config.FailureTTL),
	)
	return r
}

func (r *PermissionResolver) load(ctx context.Context, userID string) (Grants, error) {
	var roles []string
	if v, ok := r.tokenRoles.Load(userID); ok {
		roles, _ = v.([]string)
	}

	start := time.Now()
	g, err := r.resolver.Resolve(ctx, userID, roles)
	RecordPermissionLookup(time.Since(start), err)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).
			Str("user_id", logging.SanitizeUserID(userID)).
			Msg("Permission lookup failed")
		return Grants{}, err
	}
	return g, nil
}

// Permissions implements PermissionSource. No lookup is issued until the
// session is authenticated and its profile is present.
func (r *PermissionResolver) Permissions(ctx context.Context, session Session) PermissionSet {
	if !session.IsAuthenticated || session.User == nil {
		RecordPermissionResolution("deferred")
		return PermissionSet{Loading: true}
	}
	user := session.User

	state, grants, err := r.loader.Peek(user.ID)
	if state == cache.NotRequested {
		r.tokenRoles.Store(user.ID, append([]string(nil), user.Roles...))
		done := r.loader.Start(ctx, user.ID)
		if !r.waitFor(ctx, done) {
			RecordPermissionResolution("pending")
			return PermissionSet{Loading: true, User: user}
		}
		state, grants, err = r.loader.Peek(user.ID)
	} else if state == cache.Pending {
		RecordPermissionResolution("pending")
		return PermissionSet{Loading: true, User: user}
	}

	switch state {
	case cache.Resolved:
		RecordPermissionResolution("resolved")
		return PermissionSet{
			Roles:       NewSet(user.Roles...).With(grants.Roles...),
			Permissions: NewSet(grants.Permissions...),
			User:        user,
		}
	case cache.Failed:
		RecordPermissionResolution("failed")
		logging.Ctx(ctx).Debug().Err(err).Msg("Using token roles only")
		return PermissionSet{Roles: NewSet(user.Roles...), User: user}
	default:
		// Forgotten between Start and Peek.
		return PermissionSet{Loading: true, User: user}
	}
}

func (r *PermissionResolver) waitFor(ctx context.Context, done <-chan struct{}) bool {
	if r.config.WaitBudget <= 0 {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}
	timer := time.NewTimer(r.config.WaitBudget)
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

// Invalidate drops cached grants for userID, e.g. after login, logout or a
// role change.
func (r *PermissionResolver) Invalidate(userID string) {
	r.loader.Forget(userID)
	r.tokenRoles.Delete(userID)
}

// InvalidateAll drops every cached grant.
func (r *PermissionResolver) InvalidateAll() {
	r.loader.Clear()
}

// PolicyChanged invalidates userID, or everyone when userID is empty.
// It matches PolicyResolver.OnChange.
func (r *PermissionResolver) PolicyChanged(userID string) {
	if userID == "" {
		r.InvalidateAll()
		return
	}
	r.Invalidate(userID)
}

// Sweep removes expired entries and returns how many were removed.
func (r *PermissionResolver) Sweep() int {
	return r.loader.CleanupExpired()
}

// Drain waits for in-flight lookups.
func (r *PermissionResolver) Drain() {
	r.loader.Drain()
}

// StaticResolver grants fixed permissions per role. Useful for development
// and tests.
type StaticResolver map[string][]string

// Resolve implements Resolver.
func (s StaticResolver) Resolve(_ context.Context, _ string, tokenRoles []string) (Grants, error) {
	perms := NewSet()
	for _, role := range tokenRoles {
		perms = perms.With(s[role]...)
	}
	return Grants{Roles: tokenRoles, Permissions: perms.Values()}, nil
}

// StaticSource is a fixed PermissionSource.
type StaticSource struct {
	Set PermissionSet
}

// Permissions implements PermissionSource.
func (s StaticSource) Permissions(_ context.Context, session Session) PermissionSet {
	p := s.Set
	if p.User == nil {
		p.User = session.User
	}
	return p
}
