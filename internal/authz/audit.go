// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

package authz

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/skillswap-gateway/internal/logging"
)

// AuditEvent is one route authorization decision.
type AuditEvent struct {
	ID        string
	Timestamp time.Time
	RequestID string
	UserID    string
	Route     string
	Method    string
	Path      string
	IPAddress string
	Result    Result
	Duration  time.Duration
}

// AuditLoggerConfig configures the audit logger.
type AuditLoggerConfig struct {
	Enabled bool
	// LogAllowed also records AUTHENTICATED decisions. Denials and
	// unauthenticated decisions are always recorded.
	LogAllowed bool
	// IncludeDetails writes required-vs-held details. Development only.
	IncludeDetails bool
	// BufferSize bounds queued events; events are dropped when full.
	BufferSize int
	// Logger defaults to the global logger with component=authz.
	Logger *zerolog.Logger
}

// DefaultAuditLoggerConfig returns production defaults.
func DefaultAuditLoggerConfig() *AuditLoggerConfig {
	return &AuditLoggerConfig{
		Enabled:    true,
		LogAllowed: false,
		BufferSize: 1000,
	}
}

// AuditLogger writes decisions asynchronously. LogDecision never blocks.
type AuditLogger struct {
	config   AuditLoggerConfig
	logger   zerolog.Logger
	events   chan *AuditEvent
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewAuditLogger creates and starts an audit logger.
func NewAuditLogger(config *AuditLoggerConfig) *AuditLogger {
	if config == nil {
		config = DefaultAuditLoggerConfig()
	}
	cfg := *config
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}

	al := &AuditLogger{
		config:   cfg,
		events:   make(chan *AuditEvent, cfg.BufferSize),
		stopChan: make(chan struct{}),
	}
	if cfg.Logger != nil {
		al.logger = cfg.Logger.With().Str("component", "authz").Logger()
	} else {
		al.logger = logging.WithComponent("authz")
	}

	if cfg.Enabled {
		al.wg.Add(1)
		go al.processEvents()
	}
	return al
}

// LogDecision queues event. Nil loggers and disabled loggers ignore it.
func (al *AuditLogger) LogDecision(event *AuditEvent) {
	if al == nil || !al.config.Enabled {
		return
	}
	switch event.Result.Status {
	case StatusLoading:
		return
	case StatusAuthenticated:
		if !al.config.LogAllowed {
			return
		}
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case al.events <- event:
	default:
		AuditEventsDropped.Inc()
	}
}

func (al *AuditLogger) processEvents() {
	defer al.wg.Done()
	for {
		select {
		case <-al.stopChan:
			al.drainEvents()
			return
		case event := <-al.events:
			al.writeEvent(event)
		}
	}
}

func (al *AuditLogger) drainEvents() {
	for {
		select {
		case event := <-al.events:
			al.writeEvent(event)
		default:
			return
		}
	}
}

func (al *AuditLogger) writeEvent(event *AuditEvent) {
	e := al.logger.Info()
	msg := "Route authorized"
	switch event.Result.Status {
	case StatusUnauthorized:
		e = al.logger.Warn()
		msg = "Route access denied"
	case StatusUnauthenticated:
		msg = "Route requires login"
	}

	e = e.Str("event_type", "authz_decision").
		Str("audit_id", event.ID).
		Time("audit_timestamp", event.Timestamp).
		Str("route", event.Route).
		Str("status", event.Result.Status.String()).
		Dur("duration", event.Duration)

	if event.RequestID != "" {
		e = e.Str("request_id", event.RequestID)
	}
	if event.UserID != "" {
		e = e.Str("user_id", logging.SanitizeUserID(event.UserID))
	}
	if event.Method != "" {
		e = e.Str("method", event.Method)
	}
	if event.Path != "" {
		e = e.Str("path", event.Path)
	}
	if event.IPAddress != "" {
		e = e.Str("ip_address", event.IPAddress)
	}
	if event.Result.Reason != "" {
		e = e.Str("reason", event.Result.Reason)
	}
	if al.config.IncludeDetails && event.Result.Details != nil {
		e = e.Strs("required", event.Result.Details.Required).
			Strs("held", event.Result.Details.User)
	}
	e.Msg(msg)
}

// Close stops the logger after writing queued events. Safe to call twice.
func (al *AuditLogger) Close() {
	if al == nil {
		return
	}
	al.stopOnce.Do(func() { close(al.stopChan) })
	al.wg.Wait()
}

// Pending returns the number of queued events.
func (al *AuditLogger) Pending() int {
	if al == nil {
		return 0
	}
	return len(al.events)
}
