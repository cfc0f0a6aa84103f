// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

/*
Package cache provides Loader, a keyed single-flight cache whose entries
move through NotRequested, Pending, Resolved and Failed.

Callers that must not block (the route guard, the permission resolver) call
Start and then Peek: a Pending entry is reported as loading while the load
runs in the background. Callers that can wait use Wait.

# Semantics

  - One load per key at a time; concurrent Start calls share it
  - A load that panics is recorded as Failed with ErrLoadPanic
  - Resolved entries expire after the TTL, Failed entries after the
    failure TTL, after which the next Start loads again
  - Loads run on a context detached from the caller's cancellation, so an
    aborted request does not poison the shared result
  - Drain waits for every in-flight load

# Usage

	perms := cache.NewLoader(fetchPermissions,
	    cache.WithTTL(5*time.Minute),
	    cache.WithFailureTTL(5*time.Second),
	)

	perms.Start(ctx, userID)
	switch state, grants, err := perms.Peek(userID); state {
	case cache.Pending:
	    // render a loading placeholder
	case cache.Resolved:
	    // use grants
	case cache.Failed:
	    // fall back, err says why
	}

Users: lazyroute (template bundles), auth (token refresh and profile
lookups) and authz (permission grants).
*/
package cache
