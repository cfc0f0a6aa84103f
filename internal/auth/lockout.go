// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

package auth

import (
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/skillswap-gateway/internal/logging"
)

// LockoutConfig holds configuration for the login lockout.
type LockoutConfig struct {
	// Enabled controls whether lockout is active.
	Enabled bool `koanf:"enabled"`

	// MaxAttempts is the number of failed attempts before lockout.
	MaxAttempts int `koanf:"max_attempts" validate:"min=1"`

	// LockoutDuration is the base lockout period.
	LockoutDuration time.Duration `koanf:"lockout_duration" validate:"min=0"`

	// MaxLockoutDuration caps the doubled lockout period of repeat offenders.
	MaxLockoutDuration time.Duration `koanf:"max_lockout_duration" validate:"min=0"`

	// TrackByIP also tracks failed attempts by client address.
	TrackByIP bool `koanf:"track_by_ip"`
}

// DefaultLockoutConfig returns sensible defaults.
func DefaultLockoutConfig() LockoutConfig {
	return LockoutConfig{
		Enabled:            true,
		MaxAttempts:        5,
		LockoutDuration:    15 * time.Minute,
		MaxLockoutDuration: 24 * time.Hour,
		TrackByIP:          true,
	}
}

// lockoutEntry tracks failed login attempts for a subject (email or IP).
type lockoutEntry struct {
	failedAttempts int
	lastAttempt    time.Time
	lockoutCount   int // times locked out, for exponential backoff
	lockedUntil    time.Time
}

// Lockout blocks login for subjects with too many consecutive failures.
//
// Thread Safety: safe for concurrent use.
type Lockout struct {
	config LockoutConfig
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*lockoutEntry
}

// NewLockout creates a lockout tracker.
func NewLockout(config LockoutConfig) *Lockout {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	return &Lockout{
		config:  config,
		now:     time.Now,
		entries: make(map[string]*lockoutEntry),
	}
}

func (l *Lockout) subjects(email, ip string) []string {
	subjects := []string{"email:" + strings.ToLower(strings.TrimSpace(email))}
	if l.config.TrackByIP && ip != "" {
		subjects = append(subjects, "ip:"+ip)
	}
	return subjects
}

// Check returns whether login is blocked for email or ip, and for how long.
func (l *Lockout) Check(email, ip string) (bool, time.Duration) {
	if !l.config.Enabled {
		return false, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	var remaining time.Duration
	for _, s := range l.subjects(email, ip) {
		if e, ok := l.entries[s]; ok && now.Before(e.lockedUntil) {
			remaining = max(remaining, e.lockedUntil.Sub(now))
		}
	}
	return remaining > 0, remaining
}

// Fail records a failed attempt and reports whether it triggered a lockout.
func (l *Lockout) Fail(email, ip string) (bool, time.Duration) {
	if !l.config.Enabled {
		return false, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	var locked time.Duration
	for _, s := range l.subjects(email, ip) {
		e, ok := l.entries[s]
		if !ok {
			e = &lockoutEntry{}
			l.entries[s] = e
		}
		if now.Before(e.lockedUntil) {
			locked = max(locked, e.lockedUntil.Sub(now))
			continue
		}
		e.failedAttempts++
		e.lastAttempt = now
		if e.failedAttempts < l.config.MaxAttempts {
			continue
		}

		d := l.lockoutDuration(e.lockoutCount)
		e.lockedUntil = now.Add(d)
		e.lockoutCount++
		e.failedAttempts = 0
		locked = max(locked, d)

		kind, _, _ := strings.Cut(s, ":")
		LockoutsTotal.WithLabelValues(kind).Inc()
		logging.Warn().
			Str("subject_kind", kind).
			Dur("duration", d).
			Int("lockout_count", e.lockoutCount).
			Msg("Login locked")
	}
	return locked > 0, locked
}

// lockoutDuration doubles the base period for each previous lockout.
func (l *Lockout) lockoutDuration(previous int) time.Duration {
	d := l.config.LockoutDuration
	for i := 0; i < previous && d < l.config.MaxLockoutDuration; i++ {
		d *= 2
	}
	if l.config.MaxLockoutDuration > 0 && d > l.config.MaxLockoutDuration {
		d = l.config.MaxLockoutDuration
	}
	return d
}

// Succeed clears the failure history of email. The IP history is kept so a
// valid login cannot reset a spray across accounts.
func (l *Lockout) Succeed(email string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, l.subjects(email, "")[0])
}

// CleanupExpired drops entries that are unlocked and idle for a day.
func (l *Lockout) CleanupExpired() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	threshold := l.now().Add(-24 * time.Hour)
	count := 0
	for s, e := range l.entries {
		if l.now().After(e.lockedUntil) && e.lastAttempt.Before(threshold) {
			delete(l.entries, s)
			count++
		}
	}
	return count
}
