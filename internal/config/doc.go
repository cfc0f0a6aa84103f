// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

/*
Package config loads the gateway configuration. Secrets such as JWT_SECRET
are best passed through the environment rather than the YAML file.

# Configuration Sources

Load layers three sources with Koanf v2, later ones winning:

 1. Built-in defaults (defaultConfig)
 2. An optional YAML file: $CONFIG_PATH, else config.yaml / config.yml in the
    working directory, else /etc/skillswap-gateway/config.yaml
 3. Environment variables listed in envMappings

The merged result is validated with the struct tags of each section
(go-playground/validator) plus a few cross-field rules.

# Configuration Structure

  - server: listen address, timeouts, development mode, /metrics, the
    performance window and the maintenance sweep interval
  - security: JWT verification, session cookie and store, login lockout,
    authorization audit log, CORS and rate limits
  - backend: SkillSwap API base URL, service token, timeouts, outbound rate
    limit and circuit breaker
  - permissions: "policy" (Casbin role policy) or "backend" (SkillSwap API)
    grants, plus the grant cache
  - routes: guard (login path, fail-closed) and lazy route (suspense timeout)
  - logging: level, format, caller

# Environment Variables

Commonly set:

  - JWT_SECRET: access token secret shared with the SkillSwap API (required, 32+ chars)
  - SKILLSWAP_API_URL: SkillSwap API base URL
  - HTTP_PORT: listen port (default: 8080)
  - SESSION_STORE / SESSION_STORE_PATH: memory or badger, and the Badger directory
  - SESSION_STORE_KEY: base64 key for encrypting API tokens in the Badger store
  - CORS_ORIGINS: comma-separated allowed origins
  - PERMISSIONS_SOURCE: policy or backend
  - DEVELOPMENT: true for local HTTP development
  - LOG_LEVEL / LOG_FORMAT: zerolog level and json or console output

# Example

	server:
	  port: 8080
	security:
	  store:
	    type: badger
	    path: /var/lib/skillswap-gateway/sessions
	backend:
	  base_url: https://api.skillswap.example
	permissions:
	  source: policy
	  policy_path: /etc/skillswap-gateway/policy.csv
	  auto_reload: true
*/
package config
