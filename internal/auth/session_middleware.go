// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

package auth

import (
	"net/http"
	"strings"
	"time"
)

// CookieConfig holds the session cookie settings.
type CookieConfig struct {
	// Name is the name of the session cookie.
	Name string `koanf:"name" validate:"required"`

	// SessionTTL is the session time-to-live.
	SessionTTL time.Duration `koanf:"session_ttl" validate:"min=1m"`

	// Sliding extends the session expiry on each authenticated request.
	Sliding bool `koanf:"sliding"`

	Path   string `koanf:"path"`
	Domain string `koanf:"domain"`

	// Secure sets the Secure flag on the cookie.
	Secure bool `koanf:"secure"`
}

// DefaultCookieConfig returns sensible defaults.
func DefaultCookieConfig() CookieConfig {
	return CookieConfig{
		Name:       "skillswap_session",
		SessionTTL: 7 * 24 * time.Hour,
		Sliding:    true,
		Path:       "/",
		Secure:     true,
	}
}

// extractSessionID extracts the session ID from the request.
// Priority: Authorization bearer > Cookie
func extractSessionID(r *http.Request, cookieName string) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if id, ok := strings.CutPrefix(h, "Bearer "); ok && id != "" {
			return strings.TrimSpace(id)
		}
	}
	cookie, err := r.Cookie(cookieName)
	if err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}

// setSessionCookie sets the session cookie on the response.
func setSessionCookie(w http.ResponseWriter, cfg CookieConfig, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.Name,
		Value:    sessionID,
		Path:     cfg.Path,
		Domain:   cfg.Domain,
		MaxAge:   int(cfg.SessionTTL.Seconds()),
		Secure:   cfg.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie clears the session cookie.
func clearSessionCookie(w http.ResponseWriter, cfg CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.Name,
		Value:    "",
		Path:     cfg.Path,
		Domain:   cfg.Domain,
		MaxAge:   -1,
		Secure:   cfg.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
