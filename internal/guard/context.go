// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

package guard

import (
	"context"

	"github.com/tomtom215/skillswap-gateway/internal/authz"
)

type decisionKey struct{}

type decision struct {
	result  authz.Result
	session authz.Session
	perms   authz.PermissionSet
}

func decisionFrom(ctx context.Context) (*decision, bool) {
	d, ok := ctx.Value(decisionKey{}).(*decision)
	return d, ok
}

// ResultFromContext returns the decision the guard made for this request.
func ResultFromContext(ctx context.Context) (authz.Result, bool) {
	if d, ok := decisionFrom(ctx); ok {
		return d.result, true
	}
	return authz.Result{}, false
}

// SessionFromContext returns the session the guard evaluated.
func SessionFromContext(ctx context.Context) (authz.Session, bool) {
	if d, ok := decisionFrom(ctx); ok {
		return d.session, true
	}
	return authz.Session{}, false
}

// PermissionsFromContext returns the permission set the guard evaluated.
func PermissionsFromContext(ctx context.Context) (authz.PermissionSet, bool) {
	if d, ok := decisionFrom(ctx); ok {
		return d.perms, true
	}
	return authz.PermissionSet{}, false
}

// UserFromContext returns the authenticated user, if any.
func UserFromContext(ctx context.Context) *authz.User {
	if d, ok := decisionFrom(ctx); ok {
		return d.session.User
	}
	return nil
}
