// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/tomtom215/skillswap-gateway/internal/api"
	"github.com/tomtom215/skillswap-gateway/internal/auth"
	"github.com/tomtom215/skillswap-gateway/internal/authz"
	"github.com/tomtom215/skillswap-gateway/internal/backend"
	"github.com/tomtom215/skillswap-gateway/internal/config"
	"github.com/tomtom215/skillswap-gateway/internal/guard"
	"github.com/tomtom215/skillswap-gateway/internal/lazyroute"
	"github.com/tomtom215/skillswap-gateway/internal/logging"
	"github.com/tomtom215/skillswap-gateway/internal/middleware"
	"github.com/tomtom215/skillswap-gateway/internal/pages"
	"github.com/tomtom215/skillswap-gateway/internal/supervisor"
	"github.com/tomtom215/skillswap-gateway/internal/supervisor/services"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(cfg.Logging)

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("Gateway failed")
	}
	logging.Info().Msg("Gateway stopped")
}

// run wires the gateway and blocks until SIGINT or SIGTERM. Deferred
// cleanup runs on every return path.
//
//nolint:gocyclo // Sequential setup steps
func run(cfg *config.Config) error {
	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Str("session_store", string(cfg.Security.Store.Type)).
		Str("permissions", cfg.Permissions.Source).
		Bool("development", cfg.Server.Development).
		Msg("Starting SkillSwap gateway")
	if cfg.Server.Development {
		logging.Warn().Msg("Development mode: session cookies are sent over plain HTTP and error pages show diagnostic detail")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// === UPSTREAM ===
	client := backend.NewClient(cfg.Backend, nil)

	// === SESSIONS ===
	tokens, err := newTokenManager(cfg)
	if err != nil {
		return fmt.Errorf("initialize token manager: %w", err)
	}

	if cfg.Security.Store.Type == auth.SessionStoreBadger && cfg.Security.Store.Path != "" && cfg.Security.Store.EncryptionKey == "" {
		logging.Warn().Msg("SESSION_STORE_KEY is not set: SkillSwap API tokens are stored unencrypted on disk")
	}
	store, err := auth.NewSessionStore(cfg.Security.Store)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing session store")
		}
	}()

	source := auth.NewSessionSource(store, tokens, client, cfg.Security.Session)

	var lockout *auth.Lockout
	if cfg.Security.Lockout.Enabled {
		lockout = auth.NewLockout(cfg.Security.Lockout)
	}

	// === PERMISSIONS ===
	resolver, policy, closePolicy, err := permissionResolver(cfg, client)
	if err != nil {
		return fmt.Errorf("initialize permissions: %w", err)
	}
	defer closePolicy()

	perms := authz.NewPermissionResolver(resolver, cfg.Permissions.ResolverConfig())
	source.OnChange(perms.Invalidate)
	if policy != nil {
		policy.OnChange(perms.PolicyChanged)
	}

	auditLogger := authz.NewAuditLogger(auditLoggerConfig(cfg))
	defer auditLogger.Close()

	// === ROUTES ===
	g := guard.New(cfg.Routes.Guard, source, perms, guard.WithAuditLogger(auditLogger))

	registry := lazyroute.New(cfg.Routes.Lazy, lazyroute.WithOnError(func(name string, err error) {
		logging.Error().Err(err).Str("route", name).Msg("Route failed to load")
	}))

	var monitor *middleware.PerformanceMonitor
	if cfg.Server.PerformanceWindow > 0 {
		monitor = middleware.NewPerformanceMonitor(cfg.Server.PerformanceWindow, cfg.Server.SlowRequestThreshold)
	}
	deps := pages.Deps{
		Registry:     registry,
		BreakerState: func() string { return client.BreakerState().String() },
	}
	if monitor != nil {
		deps.Performance = monitor.Stats
	}
	site := pages.New(deps)
	if err := site.Register(registry); err != nil {
		return fmt.Errorf("register routes: %w", err)
	}

	handlers := auth.NewHandlers(source, client, lockout, registry)

	router, err := api.NewRouter(api.Deps{
		Sessions:      source,
		Auth:          handlers,
		Registry:      registry,
		Site:          site,
		Guard:         g,
		Upstream:      client,
		Policy:        policy,
		Monitor:       monitor,
		ExposeMetrics: cfg.Server.MetricsEnabled,
	}, api.NewChiMiddleware(chiMiddlewareConfig(cfg)))
	if err != nil {
		return fmt.Errorf("create router: %w", err)
	}
	handler, err := router.SetupChi()
	if err != nil {
		return fmt.Errorf("mount routes: %w", err)
	}

	// Sessions are reported as loading until the expired ones are swept.
	if err := source.Start(ctx); err != nil {
		return fmt.Errorf("start session source: %w", err)
	}

	if n, err := registry.PreloadStrategy(ctx, pages.StrategyLanding); err != nil {
		logging.Warn().Err(err).Msg("Landing page preload failed")
	} else {
		logging.Info().Int("routes", n).Msg("Landing pages preloading")
	}

	// === SUPERVISOR TREE ===
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger("supervisor"), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	httpService := services.NewHTTPServerService(newHTTPServer(cfg.Server, handler), cfg.Server.ShutdownTimeout)
	httpService.OnShutdown(registry.Drain)
	httpService.OnShutdown(source.Drain)
	httpService.OnShutdown(perms.Drain)
	tree.AddAPIService(httpService)
	tree.AddMaintenanceService(services.NewMaintenanceService(
		cfg.Server.MaintenanceInterval,
		maintenanceTasks(source, perms, lockout)...,
	))

	logging.Info().Msg("Starting supervisor tree")
	serveErr := tree.Serve(ctx)

	// Report any services that failed to stop within timeout
	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
	}

	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		return fmt.Errorf("supervisor tree: %w", serveErr)
	}
	return nil
}
