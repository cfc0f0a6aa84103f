// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

package guard

import (
	"net/http"
	"net/url"
	"strings"
)

// Query parameters carrying navigation state on a redirect target.
const (
	ParamFrom   = "from"
	ParamReason = "reason"
)

// Location is a same-origin client location.
type Location struct {
	Pathname string `json:"pathname"`
	Search   string `json:"search,omitempty"`
	Hash     string `json:"hash,omitempty"`
}

// String joins the location back into a relative URL.
func (l Location) String() string {
	return l.Pathname + l.Search + l.Hash
}

// LocationFromRequest returns the location the client asked for.
func LocationFromRequest(r *http.Request) Location {
	loc := Location{Pathname: r.URL.Path}
	if loc.Pathname == "" {
		loc.Pathname = "/"
	}
	if r.URL.RawQuery != "" {
		loc.Search = "?" + r.URL.RawQuery
	}
	if r.URL.Fragment != "" {
		loc.Hash = "#" + r.URL.Fragment
	}
	return loc
}

// NavigationState travels with a redirect so the target can send the user
// back where they came from.
type NavigationState struct {
	From   *Location `json:"from,omitempty"`
	Reason string    `json:"reason,omitempty"`
}

// Values encodes the state as query parameters.
func (s NavigationState) Values() url.Values {
	v := url.Values{}
	if s.From != nil {
		v.Set(ParamFrom, s.From.String())
	}
	if s.Reason != "" {
		v.Set(ParamReason, s.Reason)
	}
	return v
}

// ParseNavigationState reads state written by Values. A from value that is
// not a same-origin path is dropped.
func ParseNavigationState(v url.Values) NavigationState {
	var s NavigationState
	if from := v.Get(ParamFrom); IsSafeReturnPath(from) {
		if u, err := url.Parse(from); err == nil {
			loc := Location{Pathname: u.Path}
			if u.RawQuery != "" {
				loc.Search = "?" + u.RawQuery
			}
			if u.Fragment != "" {
				loc.Hash = "#" + u.Fragment
			}
			s.From = &loc
		}
	}
	s.Reason = v.Get(ParamReason)
	return s
}

// IsSafeReturnPath reports whether p is a local absolute path that cannot be
// turned into an open redirect.
func IsSafeReturnPath(p string) bool {
	if p == "" || p[0] != '/' {
		return false
	}
	if strings.HasPrefix(p, "//") || strings.HasPrefix(p, "/\\") {
		return false
	}
	if strings.ContainsAny(p, "\r\n\t") {
		return false
	}
	u, err := url.Parse(p)
	return err == nil && u.Scheme == "" && u.Host == ""
}

// SafeReturnPath returns p when it is a safe return path and fallback otherwise.
func SafeReturnPath(p, fallback string) string {
	if IsSafeReturnPath(p) {
		return p
	}
	return fallback
}

// WithState appends the navigation state to target's query.
func WithState(target string, state NavigationState) string {
	extra := state.Values()
	if len(extra) == 0 {
		return target
	}
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	for k, vs := range extra {
		q[k] = vs
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// RedirectOptions configures a redirect.
type RedirectOptions struct {
	State NavigationState
}

// Navigator performs guard redirects. Every redirect replaces the current
// location; none adds a history entry the user could go back to.
type Navigator interface {
	Redirect(w http.ResponseWriter, r *http.Request, to string, opts RedirectOptions)
}

// HTTPNavigator redirects with 302 for GET and HEAD and 303 otherwise, so the
// browser always follows with a GET.
type HTTPNavigator struct{}

// Redirect implements Navigator.
func (HTTPNavigator) Redirect(w http.ResponseWriter, r *http.Request, to string, opts RedirectOptions) {
	code := http.StatusSeeOther
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		code = http.StatusFound
	}
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, WithState(to, opts.State), code)
}
