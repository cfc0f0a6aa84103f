// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

/*
Package auth owns the gateway's side of SkillSwap authentication: server
sessions, token validation, sign-in endpoints and login lockout.

The SkillSwap API issues the access and refresh tokens. The gateway keeps
them in a server-side session and hands the browser an opaque HttpOnly
session cookie, so tokens never reach client script.

Key Components:

  - SessionStore: session persistence (MemorySessionStore, BadgerSessionStore)
  - TokenManager: HS256 access token validation shared with the SkillSwap API
  - SessionSource: resolves a request into an authz.Session snapshot,
    refreshing expired tokens and hydrating the profile in the background
  - Handlers: login, two-factor, logout, refresh and session endpoints
  - Lockout: per-email and per-IP failed login tracking with backoff

Session Resolution:

A request's session goes through these states:

	no cookie or unknown session      -> unauthenticated
	source not started                -> loading
	access token expired, refreshing  -> loading (token present)
	refresh rejected                  -> session destroyed, unauthenticated
	valid token, profile in flight    -> authenticated, user pending
	valid token, profile hydrated     -> authenticated

A request waits at most RefreshWait or ProfileWait for the background work,
then renders with whatever state is current. The next request picks up the
result. Each session has at most one refresh and one profile fetch in flight.

Usage:

	store, err := auth.NewSessionStore(auth.StoreConfig{Type: auth.SessionStoreBadger, Path: dir, EncryptionKey: key})
	tokens, err := auth.NewTokenManager(secret, auth.WithIssuer("skillswap-api"))
	source := auth.NewSessionSource(store, tokens, apiClient, auth.DefaultSourceConfig())
	source.OnChange(permissions.Invalidate)

	handlers := auth.NewHandlers(source, apiClient, auth.NewLockout(auth.DefaultLockoutConfig()), registry)
	handlers.Routes(router)

	g := guard.New(guardConfig, source, permissions)
*/
package auth
