// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

/*
Package services adapts gateway components to suture's Serve(ctx) error
model.

HTTPServerService wraps *http.Server: ListenAndServe runs in a goroutine,
and context cancellation triggers Shutdown with a timeout followed by the
OnShutdown drain hooks (lazy route loads, session refreshes, grant lookups).

MaintenanceService runs cleanup Tasks on a ticker. Each run is recorded in
gateway_maintenance_runs_total and gateway_maintenance_removed_total; a
failing task is logged and retried on the next tick.

Both implement fmt.Stringer so suture can name them in its events.
*/
package services
