// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSanitizers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		fn   func(string) string
		in   string
		want string
	}{
		{"token empty", SanitizeToken, "", ""},
		{"token short", SanitizeToken, "abc", "***"},
		{"token long", SanitizeToken, "eyJhbGciOiJIUzI1NiJ9.payload", "eyJh...load"},
		{"user short", SanitizeUserID, "u1", "***"},
		{"user long", SanitizeUserID, "user-12345678", "user...5678"},
		{"email", SanitizeEmail, "maria@skillswap.dev", "ma***@skillswap.dev"},
		{"email short local", SanitizeEmail, "jo@x.io", "***@x.io"},
		{"email invalid", SanitizeEmail, "nobody", "***"},
		{"error secret", SanitizeError, "invalid refresh token abc", "authentication error"},
		{"error plain", SanitizeError, "backend unavailable", "backend unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSecurityLogger_LogEvent(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := NewSecurityLoggerWithLogger(zerolog.New(&buf))

	l.LogEvent(&SecurityEvent{
		Event:     "login",
		Email:     "maria@skillswap.dev",
		SessionID: "0123456789abcdef",
		IPAddress: "10.0.0.1",
		Success:   false,
		Error:     "wrong password",
	})

	out := buf.String()
	for _, want := range []string{
		`"level":"warn"`,
		`"component":"auth"`,
		`"event":"login"`,
		`"status":"failed"`,
		`"email":"ma***@skillswap.dev"`,
		`"session_id":"0123...cdef"`,
		`"error":"authentication error"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s: %s", want, out)
		}
	}
}
