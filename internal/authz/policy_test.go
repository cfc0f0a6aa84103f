// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

package authz

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setupPolicy(t *testing.T, cfg *PolicyConfig) *PolicyResolver {
	t.Helper()
	p, err := NewPolicyResolver(cfg)
	if err != nil {
		t.Fatalf("NewPolicyResolver() error = %v", err)
	}
	t.Cleanup(p.Close)
	return p
}

func TestPolicyResolver_EmbeddedHierarchy(t *testing.T) {
	t.Parallel()

	p := setupPolicy(t, nil)

	tests := []struct {
		name      string
		roles     []string
		wantRoles []string
		hasPerm   []string
		lacksPerm []string
	}{
		{
			name:      "member",
			roles:     []string{"User"},
			wantRoles: []string{"User"},
			hasPerm:   []string{"appointments:write", "videocall:join"},
			lacksPerm: []string{"users:read", "system:metrics"},
		},
		{
			name:      "admin inherits moderator and user",
			roles:     []string{"Admin"},
			wantRoles: []string{"Admin", "Moderator", "User"},
			hasPerm:   []string{"users:read", "users:write", "skills:moderate", "appointments:read"},
			lacksPerm: []string{"system:metrics"},
		},
		{
			name:      "super admin",
			roles:     []string{"SuperAdmin"},
			wantRoles: []string{"SuperAdmin", "Admin", "User"},
			hasPerm:   []string{"system:metrics", "users:write"},
		},
		{
			name:      "no roles gets default",
			roles:     nil,
			wantRoles: []string{"User"},
			hasPerm:   []string{"skills:read"},
			lacksPerm: []string{"users:read"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := p.Resolve(context.Background(), "user-42", tt.roles)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			roles, perms := NewSet(g.Roles...), NewSet(g.Permissions...)
			for _, r := range tt.wantRoles {
				if !roles.Has(r) {
					t.Errorf("roles %v missing %s", g.Roles, r)
				}
			}
			for _, perm := range tt.hasPerm {
				if !perms.Has(perm) {
					t.Errorf("permissions %v missing %s", g.Permissions, perm)
				}
			}
			for _, perm := range tt.lacksPerm {
				if perms.Has(perm) {
					t.Errorf("permissions %v unexpectedly hold %s", g.Permissions, perm)
				}
			}
		})
	}
}

func TestPolicyResolver_Mutations(t *testing.T) {
	t.Parallel()

	p := setupPolicy(t, nil)

	var changed []string
	p.OnChange(func(userID string) { changed = append(changed, userID) })

	if _, err := p.AddRoleForUser("user-7", "Moderator"); err != nil {
		t.Fatalf("AddRoleForUser() error = %v", err)
	}
	g, err := p.Resolve(context.Background(), "user-7", nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !NewSet(g.Roles...).Has("Moderator") || !NewSet(g.Permissions...).Has("reports:read") {
		t.Errorf("grants after AddRoleForUser = %+v", g)
	}

	if _, err := p.GrantPermission("Moderator", "matches:moderate"); err != nil {
		t.Fatalf("GrantPermission() error = %v", err)
	}
	if ok, _ := p.Allowed("user-7", "matches:moderate"); !ok {
		t.Error("Allowed(user-7, matches:moderate) = false after grant")
	}
	if _, err := p.RevokePermission("Moderator", "matches:moderate"); err != nil {
		t.Fatalf("RevokePermission() error = %v", err)
	}
	if ok, _ := p.Allowed("user-7", "matches:moderate"); ok {
		t.Error("Allowed(user-7, matches:moderate) = true after revoke")
	}

	if _, err := p.DeleteRoleForUser("user-7", "Moderator"); err != nil {
		t.Fatalf("DeleteRoleForUser() error = %v", err)
	}
	if ok, _ := p.Allowed("user-7", "reports:read"); ok {
		t.Error("Allowed(user-7, reports:read) = true after role removal")
	}

	want := []string{"user-7", "", "", "user-7"}
	if len(changed) != len(want) {
		t.Fatalf("OnChange calls = %v, want %v", changed, want)
	}
	for i := range want {
		if changed[i] != want[i] {
			t.Errorf("OnChange[%d] = %q, want %q", i, changed[i], want[i])
		}
	}
}

func TestPolicyResolver_LoadPolicy(t *testing.T) {
	t.Parallel()

	p := setupPolicy(t, nil)
	if err := p.LoadPolicy(); !errors.Is(err, ErrNoPolicyFile) {
		t.Errorf("LoadPolicy() on embedded policy error = %v, want ErrNoPolicyFile", err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "policy.csv")
	if err := os.WriteFile(path, []byte("p, Mentor, sessions:host\ng, user-9, Mentor\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	fp := setupPolicy(t, &PolicyConfig{PolicyPath: path})
	g, err := fp.Resolve(context.Background(), "user-9", nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !NewSet(g.Permissions...).Has("sessions:host") {
		t.Errorf("grants from file = %+v", g)
	}

	if err := os.WriteFile(path, []byte("p, Mentor, sessions:host\np, Mentor, sessions:cancel\ng, user-9, Mentor\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := fp.LoadPolicy(); err != nil {
		t.Fatalf("LoadPolicy() error = %v", err)
	}
	if ok, _ := fp.Allowed("user-9", "sessions:cancel"); !ok {
		t.Error("reloaded policy not applied")
	}
}

func TestPolicyResolver_AutoReloadNotifiesOnChange(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "policy.csv")
	if err := os.WriteFile(path, []byte("p, Mentor, sessions:host\ng, user-9, Mentor\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	p := setupPolicy(t, &PolicyConfig{PolicyPath: path, AutoReload: true, ReloadInterval: 10 * time.Millisecond})
	changed := make(chan string, 8)
	p.OnChange(func(userID string) { changed <- userID })

	// Unchanged file: ticks pass without notifications.
	select {
	case id := <-changed:
		t.Fatalf("OnChange(%q) fired without a policy change", id)
	case <-time.After(50 * time.Millisecond):
	}

	// Rename so a tick never reads a half-written file.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte("p, Mentor, sessions:host\np, Mentor, sessions:cancel\ng, user-9, Mentor\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
	select {
	case id := <-changed:
		if id != "" {
			t.Errorf("OnChange(%q), want everyone", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("auto reload did not fire OnChange")
	}
	if ok, _ := p.Allowed("user-9", "sessions:cancel"); !ok {
		t.Error("reloaded policy not applied")
	}
}

func TestLoadPolicyText_Malformed(t *testing.T) {
	t.Parallel()

	p := setupPolicy(t, nil)
	if err := loadPolicyText(p.enforcer, "p, onlytwo"); err == nil {
		t.Error("loadPolicyText() accepted a two-field line")
	}
	if err := loadPolicyText(p.enforcer, "x, a, b"); err == nil {
		t.Error("loadPolicyText() accepted an unknown type")
	}
}
