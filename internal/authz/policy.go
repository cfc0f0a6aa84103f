// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

package authz

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"

	"github.com/tomtom215/skillswap-gateway/internal/logging"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// PolicyConfig configures the Casbin-backed PolicyResolver.
type PolicyConfig struct {
	// ModelPath overrides the embedded model when the file exists.
	ModelPath string
	// PolicyPath overrides the embedded policy when the file exists.
	PolicyPath string
	// AutoReload re-reads PolicyPath every ReloadInterval.
	AutoReload     bool
	ReloadInterval time.Duration
	// DefaultRole is granted to every user without any role.
	DefaultRole string
}

// DefaultPolicyConfig returns the embedded policy with a User default role.
func DefaultPolicyConfig() *PolicyConfig {
	return &PolicyConfig{
		ReloadInterval: 30 * time.Second,
		DefaultRole:    "User",
	}
}

// ErrNoPolicyFile is returned by LoadPolicy when only the embedded policy is in use.
var ErrNoPolicyFile = errors.New("authz: no policy file configured")

// PolicyResolver resolves grants from a role hierarchy and role-permission
// policy held in a Casbin enforcer.
//
// Policy lines:
//
//	g, alice, Admin           user alice has role Admin
//	g, SuperAdmin, Admin      SuperAdmin inherits Admin
//	p, Admin, users:read      Admin holds users:read
type PolicyResolver struct {
	config   *PolicyConfig
	enforcer *casbin.SyncedEnforcer
	fromFile bool

	// onChange is called with the affected user ("" for everyone) after a policy mutation.
	mu       sync.Mutex
	onChange func(userID string)

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewPolicyResolver builds the enforcer from files or the embedded defaults.
func NewPolicyResolver(config *PolicyConfig) (*PolicyResolver, error) {
	if config == nil {
		config = DefaultPolicyConfig()
	}

	var m model.Model
	var err error
	if config.ModelPath != "" && fileExists(config.ModelPath) {
		m, err = model.NewModelFromFile(config.ModelPath)
	} else {
		m, err = model.NewModelFromString(embeddedModel)
	}
	if err != nil {
		return nil, fmt.Errorf("load casbin model: %w", err)
	}

	var enforcer *casbin.SyncedEnforcer
	fromFile := config.PolicyPath != "" && fileExists(config.PolicyPath)
	if fromFile {
		enforcer, err = casbin.NewSyncedEnforcer(m, fileadapter.NewAdapter(config.PolicyPath))
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
		if err == nil {
			err = loadPolicyText(enforcer, embeddedPolicy)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}

	p := &PolicyResolver{config: config, enforcer: enforcer, fromFile: fromFile}
	if config.AutoReload && fromFile {
		interval := config.ReloadInterval
		if interval <= 0 {
			interval = 30 * time.Second
		}
		p.stop = make(chan struct{})
		p.done = make(chan struct{})
		go p.reloadLoop(interval)
	}
	return p, nil
}

// reloadLoop re-reads the policy file every interval and fires OnChange
// when its contents differ from what the enforcer held.
func (p *PolicyResolver) reloadLoop(interval time.Duration) {
	defer close(p.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			before := p.snapshot()
			if err := p.enforcer.LoadPolicy(); err != nil {
				logging.Warn().Err(err).Str("path", p.config.PolicyPath).Msg("Authorization policy reload failed")
				continue
			}
			if slices.EqualFunc(before, p.snapshot(), func(a, b []string) bool { return slices.Equal(a, b) }) {
				continue
			}
			RecordPolicyChange("reload")
			logging.Info().Str("path", p.config.PolicyPath).Msg("Authorization policy changed on disk")
			p.changed("")
		}
	}
}

// snapshot returns every policy and grouping line, sorted.
func (p *PolicyResolver) snapshot() [][]string {
	policies, _ := p.enforcer.GetPolicy()
	groupings, _ := p.enforcer.GetGroupingPolicy()
	lines := make([][]string, 0, len(policies)+len(groupings)+1)
	lines = append(lines, policies...)
	lines = append(lines, []string{"g"})
	lines = append(lines, groupings...)
	byLine := func(a, b []string) int { return slices.Compare(a, b) }
	slices.SortStableFunc(lines[:len(policies)], byLine)
	slices.SortStableFunc(lines[len(policies)+1:], byLine)
	return lines
}

// loadPolicyText adds "p" and "g" lines from CSV text. Comments and blank lines are skipped.
func loadPolicyText(enforcer *casbin.SyncedEnforcer, text string) error {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) != 3 {
			return fmt.Errorf("malformed policy line %q", line)
		}

		var err error
		switch parts[0] {
		case "p":
			_, err = enforcer.AddPolicy(parts[1], parts[2])
		case "g":
			_, err = enforcer.AddGroupingPolicy(parts[1], parts[2])
		default:
			err = fmt.Errorf("unknown policy type %q", parts[0])
		}
		if err != nil {
			return fmt.Errorf("policy line %q: %w", line, err)
		}
	}
	return nil
}

// OnChange registers fn to be called after AddRoleForUser, DeleteRoleForUser,
// GrantPermission, RevokePermission, LoadPolicy and after an automatic
// reload that changed the policy. The PermissionResolver's PolicyChanged is
// the usual target.
func (p *PolicyResolver) OnChange(fn func(userID string)) {
	p.mu.Lock()
	p.onChange = fn
	p.mu.Unlock()
}

func (p *PolicyResolver) changed(userID string) {
	p.mu.Lock()
	fn := p.onChange
	p.mu.Unlock()
	if fn != nil {
		fn(userID)
	}
}

// Resolve implements Resolver. The user's direct roles and tokenRoles are
// expanded through the role hierarchy; permissions are collected from every
// resulting role.
func (p *PolicyResolver) Resolve(_ context.Context, userID string, tokenRoles []string) (Grants, error) {
	direct, err := p.enforcer.GetImplicitRolesForUser(userID)
	if err != nil {
		return Grants{}, fmt.Errorf("roles for %s: %w", userID, err)
	}

	roles := NewSet(tokenRoles...).With(direct...)
	if roles.IsEmpty() && p.config.DefaultRole != "" {
		roles = NewSet(p.config.DefaultRole)
	}
	for _, role := range roles.Values() {
		inherited, err := p.enforcer.GetImplicitRolesForUser(role)
		if err != nil {
			return Grants{}, fmt.Errorf("roles inherited by %s: %w", role, err)
		}
		roles = roles.With(inherited...)
	}

	perms := NewSet()
	for _, subject := range append([]string{userID}, roles.Values()...) {
		rules, err := p.enforcer.GetImplicitPermissionsForUser(subject)
		if err != nil {
			return Grants{}, fmt.Errorf("permissions for %s: %w", subject, err)
		}
		for _, rule := range rules {
			if len(rule) >= 2 {
				perms = perms.With(rule[len(rule)-1])
			}
		}
	}

	return Grants{Roles: roles.Values(), Permissions: perms.Values()}, nil
}

// Allowed reports whether subject (user or role) holds perm.
func (p *PolicyResolver) Allowed(subject, perm string) (bool, error) {
	ok, err := p.enforcer.Enforce(subject, perm)
	if err != nil {
		return false, fmt.Errorf("enforce: %w", err)
	}
	return ok, nil
}

// AddRoleForUser assigns role to userID.
func (p *PolicyResolver) AddRoleForUser(userID, role string) (bool, error) {
	added, err := p.enforcer.AddGroupingPolicy(userID, role)
	if err != nil {
		return false, fmt.Errorf("add role: %w", err)
	}
	RecordPolicyChange("add_role")
	p.changed(userID)
	return added, nil
}

// DeleteRoleForUser removes role from userID.
func (p *PolicyResolver) DeleteRoleForUser(userID, role string) (bool, error) {
	removed, err := p.enforcer.RemoveGroupingPolicy(userID, role)
	if err != nil {
		return false, fmt.Errorf("remove role: %w", err)
	}
	RecordPolicyChange("delete_role")
	p.changed(userID)
	return removed, nil
}

// GrantPermission gives perm to role.
func (p *PolicyResolver) GrantPermission(role, perm string) (bool, error) {
	added, err := p.enforcer.AddPolicy(role, perm)
	if err != nil {
		return false, fmt.Errorf("grant permission: %w", err)
	}
	RecordPolicyChange("grant")
	p.changed("")
	return added, nil
}

// RevokePermission takes perm from role.
func (p *PolicyResolver) RevokePermission(role, perm string) (bool, error) {
	removed, err := p.enforcer.RemovePolicy(role, perm)
	if err != nil {
		return false, fmt.Errorf("revoke permission: %w", err)
	}
	RecordPolicyChange("revoke")
	p.changed("")
	return removed, nil
}

// LoadPolicy reloads the policy file. Returns ErrNoPolicyFile when running
// on the embedded policy.
func (p *PolicyResolver) LoadPolicy() error {
	if !p.fromFile {
		return ErrNoPolicyFile
	}
	if err := p.enforcer.LoadPolicy(); err != nil {
		return fmt.Errorf("reload policy: %w", err)
	}
	RecordPolicyChange("reload")
	logging.Info().Str("path", p.config.PolicyPath).Msg("Authorization policy reloaded")
	p.changed("")
	return nil
}

// Close stops policy auto reload.
func (p *PolicyResolver) Close() {
	if p.stop == nil {
		return
	}
	p.stopOnce.Do(func() { close(p.stop) })
	<-p.done
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
