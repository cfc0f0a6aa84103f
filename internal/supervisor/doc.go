// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

/*
Package supervisor runs the gateway's long-lived services under suture v4.

# Tree

	RootSupervisor ("skillswap-gateway")
	├── MaintenanceSupervisor ("maintenance-layer")
	│   └── MaintenanceService (session, grant and lockout sweeps)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

Crashed services are restarted with backoff once FailureThreshold is
exceeded. Each layer counts its own failures, so a sweep that keeps failing
never restarts the HTTP server.

Supervisor events (start, stop, panic, backoff) are logged through
sutureslog into the gateway's zerolog output; see logging.NewSlogLogger.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddAPIService(services.NewHTTPServerService(srv, cfg.Server.ShutdownTimeout))
	tree.AddMaintenanceService(services.NewMaintenanceService(time.Minute, tasks...))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err = tree.Serve(ctx)

When Serve returns after cancellation, UnstoppedServiceReport names any
service that ignored the shutdown timeout.
*/
package supervisor
