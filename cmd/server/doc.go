// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

/*
Package main is the entry point for the SkillSwap gateway.

The gateway serves the SkillSwap web client's pages. Every page is a lazily
loaded route behind a route guard: the guard decides from the visitor's
session and permissions whether to render the page, a login redirect, a
denial, or a loading placeholder, and the route registry loads each page's
template bundle on first use or when a preload strategy warms it up.

# Application Architecture

	RootSupervisor ("skillswap-gateway")
	├── MaintenanceSupervisor ("maintenance-layer")
	│   └── MaintenanceService (expired sessions, cached grants, lockouts)
	└── APISupervisor ("api-layer")
	    └── HTTP Server (chi router)

Component initialization order:

 1. Configuration: Koanf v2 with defaults, config file and environment
 2. Logging: zerolog with JSON/console output modes
 3. SkillSwap API client: rate limited, behind a circuit breaker
 4. Sessions: JWT verification, memory or BadgerDB store, login lockout
 5. Permissions: Casbin role policy or SkillSwap API grants, cached
 6. Guard, route registry and page table
 7. Router: chi with request IDs, metrics, CORS and per-IP rate limits
 8. Session sweep, landing page preload
 9. Supervisor Tree: Suture v4 process supervision

# Routes

	GET  /healthz, /readyz, /metrics   operational endpoints
	GET  /static/*                     client script and stylesheet
	GET  /auth/login, /auth/2fa        sign-in forms (POST submits credentials)
	POST /auth/logout, /auth/refresh
	GET  /auth/session                 current session as JSON
	POST /_preload/{name}              warm up a route before navigation
	GET  /, /skills                    public pages
	GET  /dashboard, /profile, ...     signed-in pages
	GET  /admin, /admin/users, ...     administrator pages

# Configuration

Priority: Environment variables > Config file > Defaults. See package
config for the full list.

	JWT_SECRET=<32+ chars>              # shared with the SkillSwap API
	SKILLSWAP_API_URL=https://api.skillswap.example
	HTTP_PORT=8080
	SESSION_STORE=badger SESSION_STORE_PATH=/var/lib/skillswap-gateway/sessions
	SESSION_STORE_KEY=<base64, 16+ bytes>   # encrypts stored API tokens
	PERMISSIONS_SOURCE=policy           # or backend
	LOG_LEVEL=info LOG_FORMAT=json

# Signal Handling

The server handles graceful shutdown on SIGINT and SIGTERM:

 1. Stops accepting new HTTP connections
 2. Waits for in-flight requests (SHUTDOWN_TIMEOUT)
 3. Waits for route loads, token refreshes and grant lookups already started
 4. Stops the maintenance sweeps and closes the session store
 5. Reports any services that failed to stop

# Usage Examples

Development:

	export DEVELOPMENT=true
	export JWT_SECRET=development-secret-with-32-characters
	export SKILLSWAP_API_URL=http://localhost:3000
	go run ./cmd/server
*/
package main
