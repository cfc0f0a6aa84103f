// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

package authz

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Status is the outcome class of an authorization evaluation.
type Status int

const (
	// StatusLoading means an input is still resolving; never an authoritative answer.
	StatusLoading Status = iota
	// StatusAuthenticated means the request may proceed.
	StatusAuthenticated
	// StatusUnauthenticated means there is no usable session.
	StatusUnauthenticated
	// StatusUnauthorized means the session lacks a required role, permission or check.
	StatusUnauthorized
)

// String returns the lower-case status name.
func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusAuthenticated:
		return "authenticated"
	case StatusUnauthenticated:
		return "unauthenticated"
	case StatusUnauthorized:
		return "unauthorized"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// User is the profile of the logged-in user, available once hydrated.
type User struct {
	ID               string   `json:"id"`
	Email            string   `json:"email"`
	DisplayName      string   `json:"display_name"`
	EmailVerified    bool     `json:"email_verified"`
	TwoFactorEnabled bool     `json:"two_factor_enabled"`
	Roles            []string `json:"roles,omitempty"` // asserted by the access token
}

// Session is a read-only snapshot of the caller's authentication state.
type Session struct {
	IsAuthenticated bool
	IsLoading       bool
	User            *User
	// TokenPresent reports whether a stored credential still exists.
	TokenPresent bool
}

// PermissionSet is the resolved roles and permissions of the current user.
// While Loading is true its contents are not authoritative.
type PermissionSet struct {
	Roles       Set
	Permissions Set
	Loading     bool
	// User is the profile the set was resolved for, for custom checks.
	User *User
}

// HasAnyRole reports whether the user holds at least one of roles.
func (p PermissionSet) HasAnyRole(roles ...string) bool {
	return p.Roles.HasAny(NewSet(roles...))
}

// HasAllRoles reports whether the user holds every one of roles.
func (p PermissionSet) HasAllRoles(roles ...string) bool {
	return p.Roles.HasAll(NewSet(roles...))
}

// HasAnyPermission reports whether the user holds at least one of perms.
func (p PermissionSet) HasAnyPermission(perms ...string) bool {
	return p.Permissions.HasAny(NewSet(perms...))
}

// HasAllPermissions reports whether the user holds every one of perms.
func (p PermissionSet) HasAllPermissions(perms ...string) bool {
	return p.Permissions.HasAll(NewSet(perms...))
}

// CustomCheck is an extra predicate a route can require. It acts as a veto
// evaluated before the role and permission checks.
type CustomCheck func(PermissionSet) bool

// Requirement is a route's declared authorization policy.
// The zero value is a public route.
type Requirement struct {
	Roles       Set
	Permissions Set
	// RequireAll switches role and permission checks from ANY to ALL.
	RequireAll  bool
	RequireAuth bool
	CustomCheck CustomCheck
}

// Public is the requirement of a route anyone may open.
var Public = Requirement{}

// RequireAuth is the requirement of a route any logged-in user may open.
var RequireAuth = Requirement{RequireAuth: true}

// Roles returns a requirement for any of roles.
func Roles(roles ...string) Requirement {
	return Requirement{Roles: NewSet(roles...)}
}

// Permissions returns a requirement for any of perms.
func Permissions(perms ...string) Requirement {
	return Requirement{Permissions: NewSet(perms...)}
}

// HasRequirements reports whether roles or permissions are declared.
func (r Requirement) HasRequirements() bool {
	return !r.Roles.IsEmpty() || !r.Permissions.IsEmpty()
}

// NeedsPermissionCheck reports whether evaluating r consults the PermissionSet.
func (r Requirement) NeedsPermissionCheck() bool {
	return r.HasRequirements() || r.CustomCheck != nil
}

// IsPublic reports whether r declares nothing at all.
func (r Requirement) IsPublic() bool {
	return !r.NeedsPermissionCheck() && !r.RequireAuth
}

// ErrInvalidRequirement is returned for requirements that would otherwise
// be silently treated as public.
var ErrInvalidRequirement = errors.New("authz: invalid requirement")

// Validate rejects malformed requirements: blank or whitespace-bearing
// names, and RequireAll with nothing to require.
func (r Requirement) Validate() error {
	var problems []string
	for _, v := range r.Roles.values {
		if !validName(v) {
			problems = append(problems, fmt.Sprintf("role %q", v))
		}
	}
	for _, v := range r.Permissions.values {
		if !validName(v) {
			problems = append(problems, fmt.Sprintf("permission %q", v))
		}
	}
	if r.RequireAll && !r.HasRequirements() {
		problems = append(problems, "requireAll without roles or permissions")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRequirement, strings.Join(problems, ", "))
	}
	return nil
}

func validName(v string) bool {
	return v != "" && !strings.ContainsAny(v, " \t\r\n,")
}

// Details lists what a denied route required next to what the user holds.
type Details struct {
	Required []string `json:"required"`
	User     []string `json:"user"`
}

// Result is the output of Evaluate. Results are produced fresh per call and
// never persisted.
type Result struct {
	Status  Status   `json:"status"`
	Reason  string   `json:"reason,omitempty"`
	Details *Details `json:"details,omitempty"`
}

// Allowed reports whether the status is StatusAuthenticated.
func (r Result) Allowed() bool { return r.Status == StatusAuthenticated }

// Equal reports whether two results are identical, including details.
func (r Result) Equal(o Result) bool {
	if r.Status != o.Status || r.Reason != o.Reason {
		return false
	}
	if (r.Details == nil) != (o.Details == nil) {
		return false
	}
	if r.Details == nil {
		return true
	}
	return slices.Equal(r.Details.Required, o.Details.Required) &&
		slices.Equal(r.Details.User, o.Details.User)
}

// RequireVerifiedEmail passes only for users whose email address is verified.
func RequireVerifiedEmail(p PermissionSet) bool {
	return p.User != nil && p.User.EmailVerified
}

// RequireTwoFactor passes only for users with two-factor authentication enabled.
func RequireTwoFactor(p PermissionSet) bool {
	return p.User != nil && p.User.TwoFactorEnabled
}
