// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

/*
Package lazyroute maps route names to handlers that are built on first use.

Each Entry carries an Importer, the route's authorization requirement and a
loading presentation. An entry moves through the states of cache.Loader:

	not_requested -> pending -> resolved
	not_requested -> pending -> failed

The importer of an entry runs at most once, no matter how many requests,
Preload calls or PreloadStrategy calls race for it. A failed entry stays
failed until the process restarts.

# Serving

The handler returned by Resolve starts the import on the first request and
waits up to Config.SuspenseTimeout for it. If the import is still pending
the route's loading presentation is served with 202 Accepted and a
Retry-After header, and the browser refreshes into the finished page.

Unless DisableErrorBoundary is set, import failures and panics raised while
serving are contained: the request gets a 500 failure page, other routes
keep working, and the failure is reported through WithOnError.
http.ErrAbortHandler is always re-raised.

# Preloading

	reg.Preload(ctx, "dashboard", "matchmaking")          // hover
	reg.PreloadStrategy(ctx, lazyroute.StrategyAuthenticated) // after login

Preloading never blocks and never cancels with the caller's context.
*/
package lazyroute
