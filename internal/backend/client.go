// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/skillswap-gateway/internal/logging"
	"github.com/tomtom215/skillswap-gateway/internal/metrics"
)

// maxBodySize bounds how much of a SkillSwap API response is read.
const maxBodySize = 1 << 20

// breakerName labels circuit breaker metrics.
const breakerName = "skillswap-api"

// Client errors.
var (
	// ErrUnauthorized means the API rejected the credentials (401 or 403).
	ErrUnauthorized = errors.New("backend: unauthorized")
	// ErrTwoFactorRequired means login succeeded but needs a second factor.
	ErrTwoFactorRequired = errors.New("backend: two-factor verification required")
	// ErrUnavailable means the API failed (5xx, transport error) or the
	// circuit breaker is open.
	ErrUnavailable = errors.New("backend: unavailable")
	// ErrInvalidResponse means the API answered with an undecodable body.
	ErrInvalidResponse = errors.New("backend: invalid response")
)

// APIError is a 4xx answer other than 401/403.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend: status %d: %s", e.Status, e.Message)
}

// BreakerConfig configures the circuit breaker around the API.
type BreakerConfig struct {
	// MaxRequests is the number of trial requests in half-open state.
	MaxRequests uint32 `koanf:"max_requests" validate:"min=1"`
	// Interval resets failure counts while closed.
	Interval time.Duration `koanf:"interval"`
	// Timeout is how long the breaker stays open.
	Timeout time.Duration `koanf:"timeout" validate:"min=0"`
	// ConsecutiveFailures opens the breaker.
	ConsecutiveFailures uint32 `koanf:"consecutive_failures" validate:"min=1"`
}

// Config configures a Client.
type Config struct {
	BaseURL string `koanf:"base_url" validate:"required,url"`
	// ServiceToken authenticates permission lookups made on behalf of users.
	ServiceToken string        `koanf:"service_token"`
	Timeout      time.Duration `koanf:"timeout" validate:"min=0"`
	// RateLimit caps outbound requests per second. Zero disables the limit.
	RateLimit float64       `koanf:"rate_limit" validate:"min=0"`
	Burst     int           `koanf:"burst" validate:"min=0"`
	Breaker   BreakerConfig `koanf:"breaker"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:   "http://localhost:5000",
		Timeout:   10 * time.Second,
		RateLimit: 50,
		Burst:     20,
		Breaker: BreakerConfig{
			MaxRequests:         3,
			Interval:            time.Minute,
			Timeout:             30 * time.Second,
			ConsecutiveFailures: 5,
		},
	}
}

// response is one settled HTTP exchange.
type response struct {
	status int
	body   []byte
}

// Client talks to the SkillSwap REST API.
//
// Thread Safety: safe for concurrent use.
type Client struct {
	baseURL      string
	serviceToken string
	http         *http.Client
	limiter      *rate.Limiter
	cb           *gobreaker.CircuitBreaker[*response]
}

// NewClient creates a client. httpClient may be nil.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	threshold := cfg.Breaker.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(breakerName).Set(0)

	cb := gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: cfg.Breaker.MaxRequests,
		Interval:    cfg.Breaker.Interval,
		Timeout:     cfg.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			trip := counts.ConsecutiveFailures >= threshold
			if trip {
				logging.Warn().Uint32("consecutive_failures", counts.ConsecutiveFailures).Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return trip
		},
		// Client errors say nothing about API health.
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("from", from.String()).Str("to", to.String()).Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
			if to == gobreaker.StateClosed {
				metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
			}
		},
	})

	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		serviceToken: cfg.ServiceToken,
		http:         httpClient,
		limiter:      rate.NewLimiter(limit, burst),
		cb:           cb,
	}
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// BreakerState reports the circuit breaker state, for readiness checks.
func (c *Client) BreakerState() gobreaker.State {
	return c.cb.State()
}

// do performs one API call. in, when non-nil, is sent as JSON; out, when
// non-nil, receives the decoded 2xx body.
func (c *Client) do(ctx context.Context, op, method, path, bearer string, in, out any) (err error) {
	start := time.Now()
	defer func() { metrics.RecordBackendRequest(op, time.Since(start), err) }()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limit wait: %w", op, err)
	}

	var payload []byte
	if in != nil {
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
	}

	resp, err := c.cb.Execute(func() (*response, error) {
		return c.send(ctx, method, path, bearer, payload)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "rejected").Inc()
			return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
		}
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "failure").Inc()
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(breakerName).Set(float64(c.cb.Counts().ConsecutiveFailures))
		return fmt.Errorf("%s: %w", op, err)
	}
	metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "success").Inc()

	switch {
	case resp.status == http.StatusUnauthorized || resp.status == http.StatusForbidden:
		return fmt.Errorf("%s: %w", op, ErrUnauthorized)
	case resp.status >= 400:
		return fmt.Errorf("%s: %w", op, &APIError{Status: resp.status, Message: errorMessage(resp.body)})
	}

	if out != nil && len(resp.body) > 0 {
		if err := json.Unmarshal(resp.body, out); err != nil {
			return fmt.Errorf("%s: %w: %w", op, ErrInvalidResponse, err)
		}
	}
	return nil
}

// send runs inside the breaker. Only transport errors and 5xx are failures.
func (c *Client) send(ctx context.Context, method, path, bearer string, payload []byte) (*response, error) {
	var body io.Reader = http.NoBody
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if id := logging.RequestIDFromContext(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			// The caller gave up; that is not an API failure.
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrUnavailable, err)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	return &response{status: resp.StatusCode, body: data}, nil
}

// errorMessage extracts a message from a SkillSwap error body.
func errorMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Title   string `json:"title"`
	}
	if json.Unmarshal(body, &e) == nil {
		for _, m := range []string{e.Message, e.Error, e.Title} {
			if m != "" {
				return m
			}
		}
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return strings.TrimSpace(string(body))
}
