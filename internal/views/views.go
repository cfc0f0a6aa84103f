// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

package views

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"sync"

	"github.com/tomtom215/skillswap-gateway/internal/logging"
)

//go:embed templates/*.html
var templateFS embed.FS

const layoutFile = "templates/layout.html"

// Loading presentation kinds.
const (
	KindSpinner  = "spinner"
	KindSkeleton = "skeleton"
)

// skeletonRows is the placeholder shape drawn for each skeleton variant.
var skeletonRows = map[string][]string{
	"dashboard": {"title", "stat", "stat", "stat", "chart"},
	"list":      {"title", "item", "item", "item", "item"},
	"card":      {"media", "title", "text"},
	"table":     {"title", "header", "row", "row", "row", "row"},
	"detail":    {"title", "text", "text", "media"},
	"form":      {"title", "field", "field", "field", "button"},
}

// SkeletonVariants lists the known skeleton variants.
func SkeletonVariants() []string {
	return []string{"dashboard", "list", "card", "table", "detail", "form"}
}

// Chrome is the layout data shared by all pages.
type Chrome struct {
	Title   string
	Refresh int
}

// LoadingView renders a loading indicator.
type LoadingView struct {
	Chrome
	Kind    string
	Variant string
	Caption string
	Rows    []string
}

// DebugDetail is the raw required-vs-held detail shown in development.
type DebugDetail struct {
	Reason   string
	Required []string
	Held     []string
}

// DeniedView renders the default access-denied page.
type DeniedView struct {
	Chrome
	MissingRoles       []string
	MissingPermissions []string
	Debug              *DebugDetail
}

// FailureView renders a contained route failure.
type FailureView struct {
	Chrome
	Route string
	Error string
	Retry string
}

// NotFoundView renders the page shown for unknown paths.
type NotFoundView struct {
	Chrome
	Path string
}

// LoginView renders the sign-in form.
type LoginView struct {
	Chrome
	From  string
	Email string
	Error string
}

// TwoFactorView renders the second-factor form.
type TwoFactorView struct {
	Chrome
	From      string
	Challenge string
	Error     string
}

var (
	pagesOnce sync.Once
	pages     map[string]*template.Template
	pagesErr  error
)

func loadPages() (map[string]*template.Template, error) {
	pagesOnce.Do(func() {
		pages = make(map[string]*template.Template)
		for _, name := range []string{"loading", "denied", "failure", "login", "twofactor", "notfound"} {
			t, err := Layout()
			if err != nil {
				pagesErr = err
				return
			}
			if _, err := t.ParseFS(templateFS, "templates/"+name+".html"); err != nil {
				pagesErr = fmt.Errorf("parse %s template: %w", name, err)
				return
			}
			pages[name] = t
		}
	})
	return pages, pagesErr
}

// Layout returns a fresh copy of the page layout. Callers add a "content"
// template to it and execute "layout".
func Layout() (*template.Template, error) {
	t, err := template.New("layout").ParseFS(templateFS, layoutFile)
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}
	return t, nil
}

// Render executes a page template into a buffer first so a template error
// never produces a half-written response.
func Render(w http.ResponseWriter, status int, t *template.Template, data any) {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		logging.Error().Err(err).Str("template", t.Name()).Msg("Failed to render page")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w) //nolint:errcheck // client went away
}

func renderPage(w http.ResponseWriter, status int, name string, data any) {
	p, err := loadPages()
	if err != nil {
		logging.Error().Err(err).Msg("Failed to load view templates")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	Render(w, status, p[name], data)
}

// NewLoadingView builds a loading view. Unknown skeleton variants fall back
// to the spinner.
func NewLoadingView(kind, variant, caption string, refresh int) LoadingView {
	v := LoadingView{
		Chrome:  Chrome{Title: "Loading", Refresh: refresh},
		Kind:    KindSpinner,
		Caption: caption,
	}
	if kind == KindSkeleton {
		if rows, ok := skeletonRows[variant]; ok {
			v.Kind = KindSkeleton
			v.Variant = variant
			v.Rows = rows
		}
	}
	if v.Caption == "" {
		v.Caption = "Loading"
	}
	return v
}

// Loading writes a 202 loading page that refreshes itself after retryAfter
// seconds.
func Loading(w http.ResponseWriter, v LoadingView, retryAfter int) {
	NoStore(w)
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	renderPage(w, http.StatusAccepted, "loading", v)
}

// Denied writes the 403 access-denied page.
func Denied(w http.ResponseWriter, v DeniedView) {
	if v.Title == "" {
		v.Title = "Access denied"
	}
	NoStore(w)
	renderPage(w, http.StatusForbidden, "denied", v)
}

// Failure writes the 500 route failure page.
func Failure(w http.ResponseWriter, v FailureView) {
	if v.Title == "" {
		v.Title = "Something went wrong"
	}
	NoStore(w)
	renderPage(w, http.StatusInternalServerError, "failure", v)
}

// NotFound writes the 404 page.
func NotFound(w http.ResponseWriter, v NotFoundView) {
	if v.Title == "" {
		v.Title = "Page not found"
	}
	renderPage(w, http.StatusNotFound, "notfound", v)
}

// Login writes the sign-in page with the given status.
func Login(w http.ResponseWriter, status int, v LoginView) {
	if v.Title == "" {
		v.Title = "Sign in"
	}
	NoStore(w)
	renderPage(w, status, "login", v)
}

// TwoFactor writes the second-factor page with the given status.
func TwoFactor(w http.ResponseWriter, status int, v TwoFactorView) {
	if v.Title == "" {
		v.Title = "Two-factor verification"
	}
	NoStore(w)
	renderPage(w, status, "twofactor", v)
}
