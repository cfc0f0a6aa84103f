// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

package main

import (
	"fmt"
	"net/http"

	"github.com/tomtom215/skillswap-gateway/internal/api"
	"github.com/tomtom215/skillswap-gateway/internal/auth"
	"github.com/tomtom215/skillswap-gateway/internal/authz"
	"github.com/tomtom215/skillswap-gateway/internal/backend"
	"github.com/tomtom215/skillswap-gateway/internal/config"
	"github.com/tomtom215/skillswap-gateway/internal/logging"
	"github.com/tomtom215/skillswap-gateway/internal/supervisor/services"
)

// chiMiddlewareConfig maps the security section onto the router middleware.
func chiMiddlewareConfig(cfg *config.Config) *api.ChiMiddlewareConfig {
	mw := api.DefaultChiMiddlewareConfig()
	mw.CORSAllowedOrigins = cfg.Security.CORS.AllowedOrigins
	mw.RateLimitDisabled = cfg.Security.Limits.Disabled
	mw.RateLimitRequests = cfg.Security.Limits.Requests
	mw.RateLimitWindow = cfg.Security.Limits.Window
	mw.LoginRateLimit = api.RateLimitConfig{
		Requests: cfg.Security.Limits.LoginRequests,
		Window:   cfg.Security.Limits.LoginWindow,
	}
	return mw
}

// auditLoggerConfig enables required-vs-held details only in development.
func auditLoggerConfig(cfg *config.Config) *authz.AuditLoggerConfig {
	return &authz.AuditLoggerConfig{
		Enabled:        cfg.Security.Audit.Enabled,
		LogAllowed:     cfg.Security.Audit.LogAllowed,
		IncludeDetails: cfg.Server.Development,
		BufferSize:     cfg.Security.Audit.BufferSize,
	}
}

// permissionResolver picks where grants come from. The returned close
// function releases the Casbin enforcer's reload loop and is never nil.
func permissionResolver(cfg *config.Config, client *backend.Client) (authz.Resolver, *authz.PolicyResolver, func(), error) {
	switch cfg.Permissions.Source {
	case config.PermissionSourceBackend:
		logging.Info().Str("base_url", cfg.Backend.BaseURL).Msg("Resolving permissions from the SkillSwap API")
		return client, nil, func() {}, nil
	case config.PermissionSourcePolicy, "":
		policy, err := authz.NewPolicyResolver(cfg.Permissions.PolicyConfig())
		if err != nil {
			return nil, nil, nil, fmt.Errorf("load authorization policy: %w", err)
		}
		logging.Info().
			Str("policy_path", cfg.Permissions.PolicyPath).
			Bool("auto_reload", cfg.Permissions.AutoReload).
			Msg("Resolving permissions from the role policy")
		return policy, policy, policy.Close, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown permissions source %q", cfg.Permissions.Source)
	}
}

// newTokenManager verifies SkillSwap access tokens.
func newTokenManager(cfg *config.Config) (*auth.TokenManager, error) {
	opts := []auth.TokenOption{auth.WithLeeway(cfg.Security.JWTLeeway)}
	if cfg.Security.JWTIssuer != "" {
		opts = append(opts, auth.WithIssuer(cfg.Security.JWTIssuer))
	}
	return auth.NewTokenManager(cfg.Security.JWTSecret, opts...)
}

// maintenanceTasks lists the periodic sweeps. lockout may be nil.
func maintenanceTasks(source *auth.SessionSource, perms *authz.PermissionResolver, lockout *auth.Lockout) []services.Task {
	tasks := []services.Task{
		{Name: "sessions", Run: source.Sweep},
		services.CountTask("permissions", perms.Sweep),
	}
	if lockout != nil {
		tasks = append(tasks, services.CountTask("lockout", lockout.CleanupExpired))
	}
	return tasks
}

// newHTTPServer applies the configured timeouts.
func newHTTPServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}
