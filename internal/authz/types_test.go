// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

package authz

import (
	"errors"
	"slices"
	"testing"
)

func TestSet(t *testing.T) {
	t.Parallel()

	s := NewSet("Admin", "User", "Admin", "Moderator")
	if got := s.Values(); !slices.Equal(got, []string{"Admin", "User", "Moderator"}) {
		t.Errorf("Values() = %v, want insertion order without duplicates", got)
	}
	if s.Len() != 3 || s.IsEmpty() {
		t.Errorf("Len() = %d, IsEmpty() = %v", s.Len(), s.IsEmpty())
	}
	if !s.Has("User") || s.Has("user") {
		t.Error("Has is not exact-match")
	}

	var zero Set
	if !zero.IsEmpty() || zero.Has("") || zero.Values() != nil {
		t.Error("zero Set is not empty")
	}

	if !s.HasAny(NewSet("x", "User")) {
		t.Error("HasAny = false, want true")
	}
	if s.HasAny(NewSet()) {
		t.Error("HasAny(empty) = true, want false")
	}
	if !s.HasAll(NewSet()) {
		t.Error("HasAll(empty) = false, want true")
	}
	if s.HasAll(NewSet("Admin", "SuperAdmin")) {
		t.Error("HasAll = true, want false")
	}

	u := s.Union(NewSet("SuperAdmin", "User"))
	if got := u.Values(); !slices.Equal(got, []string{"Admin", "User", "Moderator", "SuperAdmin"}) {
		t.Errorf("Union() = %v", got)
	}
	if s.Has("SuperAdmin") {
		t.Error("Union mutated the receiver")
	}

	vals := s.Values()
	vals[0] = "changed"
	if !s.Has("Admin") {
		t.Error("Values() exposed internal storage")
	}

	if got := NewSet("a", "b").String(); got != "[a, b]" {
		t.Errorf("String() = %q", got)
	}
}

func TestPermissionSet_Predicates(t *testing.T) {
	t.Parallel()

	p := PermissionSet{Roles: NewSet("User", "Admin"), Permissions: NewSet("users:read")}

	if !p.HasAnyRole("SuperAdmin", "Admin") || p.HasAnyRole("SuperAdmin") {
		t.Error("HasAnyRole mismatch")
	}
	if !p.HasAllRoles("User", "Admin") || p.HasAllRoles("User", "SuperAdmin") {
		t.Error("HasAllRoles mismatch")
	}
	if !p.HasAnyPermission("users:read", "users:write") || p.HasAnyPermission() {
		t.Error("HasAnyPermission mismatch")
	}
	if !p.HasAllPermissions() || p.HasAllPermissions("users:read", "users:write") {
		t.Error("HasAllPermissions mismatch")
	}
}

func TestRequirement_Shape(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		req        Requirement
		public     bool
		needsCheck bool
	}{
		{"zero", Requirement{}, true, false},
		{"auth", RequireAuth, false, false},
		{"roles", Roles("Admin"), false, true},
		{"perms", Permissions("x"), false, true},
		{"custom", Requirement{CustomCheck: RequireVerifiedEmail}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.req.IsPublic(); got != tt.public {
				t.Errorf("IsPublic() = %v, want %v", got, tt.public)
			}
			if got := tt.req.NeedsPermissionCheck(); got != tt.needsCheck {
				t.Errorf("NeedsPermissionCheck() = %v, want %v", got, tt.needsCheck)
			}
		})
	}
}

func TestRequirement_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		req     Requirement
		wantErr bool
	}{
		{"public", Public, false},
		{"auth", RequireAuth, false},
		{"roles", Roles("Admin", "SuperAdmin"), false},
		{"blank role", Roles(""), true},
		{"whitespace role", Roles("Super Admin"), true},
		{"blank permission", Permissions("users:read", " "), true},
		{"comma permission", Permissions("users:read,users:write"), true},
		{"requireAll alone", Requirement{RequireAll: true}, true},
		{"requireAll with custom only", Requirement{RequireAll: true, CustomCheck: RequireTwoFactor}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidRequirement) {
				t.Errorf("Validate() error = %v, want ErrInvalidRequirement", err)
			}
		})
	}
}

func TestResult_Equal(t *testing.T) {
	t.Parallel()

	a := Result{Status: StatusUnauthorized, Reason: ReasonMissingRole, Details: &Details{Required: []string{"Admin"}, User: nil}}
	b := Result{Status: StatusUnauthorized, Reason: ReasonMissingRole, Details: &Details{Required: []string{"Admin"}, User: []string{}}}
	if !a.Equal(b) {
		t.Error("nil and empty User slices should compare equal")
	}
	if a.Equal(Result{Status: StatusUnauthorized, Reason: ReasonMissingRole}) {
		t.Error("nil Details compared equal to non-nil")
	}
	if !(Result{Status: StatusAuthenticated}).Allowed() || a.Allowed() {
		t.Error("Allowed mismatch")
	}
}

func TestStatus_String(t *testing.T) {
	t.Parallel()

	want := map[Status]string{
		StatusLoading:         "loading",
		StatusAuthenticated:   "authenticated",
		StatusUnauthenticated: "unauthenticated",
		StatusUnauthorized:    "unauthorized",
	}
	for s, w := range want {
		if s.String() != w {
			t.Errorf("%d.String() = %q, want %q", int(s), s.String(), w)
		}
		text, _ := s.MarshalText()
		if string(text) != w {
			t.Errorf("MarshalText() = %q, want %q", text, w)
		}
	}
}
