// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

package config

import (
	"fmt"
	"time"

	"github.com/tomtom215/skillswap-gateway/internal/auth"
	"github.com/tomtom215/skillswap-gateway/internal/authz"
	"github.com/tomtom215/skillswap-gateway/internal/backend"
	"github.com/tomtom215/skillswap-gateway/internal/guard"
	"github.com/tomtom215/skillswap-gateway/internal/lazyroute"
	"github.com/tomtom215/skillswap-gateway/internal/logging"
	"github.com/tomtom215/skillswap-gateway/internal/validation"
)

// Config is the complete gateway configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Security    SecurityConfig    `koanf:"security"`
	Backend     backend.Config    `koanf:"backend"`
	Permissions PermissionsConfig `koanf:"permissions"`
	Routes      RoutesConfig      `koanf:"routes"`
	Logging     logging.Config    `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"min=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"min=0"`
	IdleTimeout     time.Duration `koanf:"idle_timeout" validate:"min=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"min=0"`

	// Development relaxes cookie security and shows diagnostic detail on
	// denied and failed pages.
	Development bool `koanf:"development"`

	// MetricsEnabled serves the Prometheus registry at /metrics.
	MetricsEnabled bool `koanf:"metrics_enabled"`

	// PerformanceWindow is how many recent requests the admin metrics page
	// summarizes.
	PerformanceWindow    int           `koanf:"performance_window" validate:"min=0"`
	SlowRequestThreshold time.Duration `koanf:"slow_request_threshold" validate:"min=0"`

	// MaintenanceInterval is how often expired sessions, cached grants and
	// lockouts are swept.
	MaintenanceInterval time.Duration `koanf:"maintenance_interval" validate:"min=1s"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SecurityConfig holds authentication settings.
type SecurityConfig struct {
	// JWTSecret verifies SkillSwap access tokens. Shared with the SkillSwap API.
	JWTSecret string        `koanf:"jwt_secret" validate:"required,min=32"`
	JWTIssuer string        `koanf:"jwt_issuer"`
	JWTLeeway time.Duration `koanf:"jwt_leeway" validate:"min=0"`

	Session auth.SourceConfig  `koanf:"session"`
	Store   auth.StoreConfig   `koanf:"store"`
	Lockout auth.LockoutConfig `koanf:"lockout"`
	Audit   AuditConfig        `koanf:"audit"`
	CORS    CORSConfig         `koanf:"cors"`
	Limits  RateLimitConfig    `koanf:"rate_limit"`
}

// AuditConfig controls the authorization decision log.
type AuditConfig struct {
	Enabled    bool `koanf:"enabled"`
	LogAllowed bool `koanf:"log_allowed"`
	BufferSize int  `koanf:"buffer_size" validate:"min=0"`
}

// CORSConfig lists the origins allowed to call the gateway from a browser.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// RateLimitConfig holds per-IP request budgets.
type RateLimitConfig struct {
	Disabled      bool          `koanf:"disabled"`
	Requests      int           `koanf:"requests" validate:"min=0"`
	Window        time.Duration `koanf:"window" validate:"min=0"`
	LoginRequests int           `koanf:"login_requests" validate:"min=0"`
	LoginWindow   time.Duration `koanf:"login_window" validate:"min=0"`
}

// Permission sources.
const (
	// PermissionSourcePolicy resolves grants from the Casbin role policy.
	PermissionSourcePolicy = "policy"
	// PermissionSourceBackend asks the SkillSwap API for each user's grants.
	PermissionSourceBackend = "backend"
)

// PermissionsConfig selects where user grants come from.
type PermissionsConfig struct {
	Source string `koanf:"source" validate:"oneof=policy backend"`

	// Casbin model and policy files; empty uses the embedded defaults.
	ModelPath      string        `koanf:"model_path"`
	PolicyPath     string        `koanf:"policy_path"`
	AutoReload     bool          `koanf:"auto_reload"`
	ReloadInterval time.Duration `koanf:"reload_interval" validate:"min=0"`
	DefaultRole    string        `koanf:"default_role"`

	// Grant cache.
	CacheTTL   time.Duration `koanf:"cache_ttl" validate:"min=0"`
	FailureTTL time.Duration `koanf:"failure_ttl" validate:"min=0"`
	WaitBudget time.Duration `koanf:"wait_budget" validate:"min=0"`
}

// PolicyConfig returns the Casbin resolver settings.
func (p PermissionsConfig) PolicyConfig() *authz.PolicyConfig {
	return &authz.PolicyConfig{
		ModelPath:      p.ModelPath,
		PolicyPath:     p.PolicyPath,
		AutoReload:     p.AutoReload,
		ReloadInterval: p.ReloadInterval,
		DefaultRole:    p.DefaultRole,
	}
}

// ResolverConfig returns the grant cache settings.
func (p PermissionsConfig) ResolverConfig() authz.PermissionResolverConfig {
	return authz.PermissionResolverConfig{
		TTL:        p.CacheTTL,
		FailureTTL: p.FailureTTL,
		WaitBudget: p.WaitBudget,
	}
}

// RoutesConfig configures the guard and the lazy route registry.
type RoutesConfig struct {
	Guard guard.Config     `koanf:"guard"`
	Lazy  lazyroute.Config `koanf:"lazy"`
}

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	policy := authz.DefaultPolicyConfig()
	resolver := authz.DefaultPermissionResolverConfig()
	audit := authz.DefaultAuditLoggerConfig()

	return &Config{
		Server: ServerConfig{
			Host:                 "0.0.0.0",
			Port:                 8080,
			ReadTimeout:          15 * time.Second,
			WriteTimeout:         30 * time.Second,
			IdleTimeout:          120 * time.Second,
			ShutdownTimeout:      15 * time.Second,
			MetricsEnabled:       true,
			PerformanceWindow:    1000,
			SlowRequestThreshold: time.Second,
			MaintenanceInterval:  time.Minute,
		},
		Security: SecurityConfig{
			JWTLeeway: 30 * time.Second,
			Session:   auth.DefaultSourceConfig(),
			Store:     auth.StoreConfig{Type: auth.SessionStoreMemory},
			Lockout:   auth.DefaultLockoutConfig(),
			Audit: AuditConfig{
				Enabled:    audit.Enabled,
				LogAllowed: audit.LogAllowed,
				BufferSize: audit.BufferSize,
			},
			Limits: RateLimitConfig{
				Requests:      600,
				Window:        time.Minute,
				LoginRequests: 10,
				LoginWindow:   5 * time.Minute,
			},
		},
		Backend: backend.DefaultConfig(),
		Permissions: PermissionsConfig{
			Source:         PermissionSourcePolicy,
			ReloadInterval: policy.ReloadInterval,
			DefaultRole:    policy.DefaultRole,
			CacheTTL:       resolver.TTL,
			FailureTTL:     resolver.FailureTTL,
			WaitBudget:     resolver.WaitBudget,
		},
		Routes: RoutesConfig{
			Guard: guard.DefaultConfig(),
			Lazy:  lazyroute.DefaultConfig(),
		},
		Logging: logging.DefaultConfig(),
	}
}

// Validate checks the configuration after loading.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return verr
	}
	if c.Permissions.Source == PermissionSourceBackend && c.Backend.ServiceToken == "" {
		return fmt.Errorf("backend.service_token is required when permissions.source=%s", PermissionSourceBackend)
	}
	if c.Security.Store.Type == auth.SessionStoreBadger && c.Security.Store.Path == "" && !c.Server.Development {
		return fmt.Errorf("security.store.path is required for the badger session store outside development")
	}
	if _, err := auth.NewTokenEncryptor(c.Security.Store.EncryptionKey); err != nil {
		return fmt.Errorf("security.store.encryption_key: %w", err)
	}
	return nil
}

// applyDevelopment relaxes settings that cannot work on plain-HTTP localhost.
func (c *Config) applyDevelopment() {
	if !c.Server.Development {
		return
	}
	c.Security.Session.Cookie.Secure = false
	c.Routes.Guard.Development = true
	c.Routes.Lazy.Development = true
}
