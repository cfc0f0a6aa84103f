// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

/*
Package metrics holds the process-wide Prometheus collectors that do not
belong to a single domain package.

Authorization and lazy route metrics live next to their code in
internal/authz and internal/lazyroute. Everything registers with the default
registry through promauto and is exposed at /metrics.

# Available Metrics

HTTP:
  - gateway_http_requests_total{method,route,status_code}
  - gateway_http_request_duration_seconds{method,route}
  - gateway_http_active_requests
  - gateway_rate_limit_hits_total{limiter}

Sessions:
  - gateway_sessions_active
  - gateway_session_events_total{event}
  - gateway_sessions_cleaned_total

SkillSwap API:
  - gateway_backend_request_duration_seconds{operation,outcome}
  - circuit_breaker_state{name}
  - circuit_breaker_requests_total{name,result}
  - circuit_breaker_consecutive_failures{name}
  - circuit_breaker_state_transitions_total{name,from_state,to_state}
*/
package metrics
