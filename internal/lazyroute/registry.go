// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

package lazyroute

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/skillswap-gateway/internal/authz"
	"github.com/tomtom215/skillswap-gateway/internal/cache"
	"github.com/tomtom215/skillswap-gateway/internal/logging"
	"github.com/tomtom215/skillswap-gateway/internal/views"
)

// Registry errors.
var (
	ErrDuplicateRoute = errors.New("lazyroute: duplicate route name")
	ErrUnknownRoute   = errors.New("lazyroute: unknown route")
	ErrInvalidEntry   = errors.New("lazyroute: invalid entry")
	ErrImporterPanic  = errors.New("lazyroute: importer panicked")
	ErrNilHandler     = errors.New("lazyroute: importer returned no handler")
)

// Preload strategies understood by PreloadStrategy. Any other value matches
// entries that list it in Entry.Preload.
const (
	StrategyAll           = "all"
	StrategyAuthenticated = "authenticated"
	StrategyAdmin         = "admin"
)

// adminRoles are the roles whose routes StrategyAdmin warms up.
var adminRoles = authz.NewSet("Admin", "SuperAdmin")

// Importer builds a route's handler. It runs at most once per entry.
type Importer func(ctx context.Context) (http.Handler, error)

// Presentation describes what to show while a route is loading.
type Presentation struct {
	Kind    string `json:"kind"`
	Variant string `json:"variant,omitempty"`
	Message string `json:"message,omitempty"`
}

// Spinner returns a spinner presentation.
func Spinner(message string) Presentation {
	return Presentation{Kind: views.KindSpinner, Message: message}
}

// Skeleton returns a skeleton presentation of the named variant.
func Skeleton(variant string) Presentation {
	return Presentation{Kind: views.KindSkeleton, Variant: variant}
}

// Entry is one lazily built route.
type Entry struct {
	Name        string
	Pattern     string
	Importer    Importer
	Requirement authz.Requirement
	Loading     Presentation
	// DisableErrorBoundary lets load failures and panics reach the
	// router's recoverer instead of a contained failure page.
	DisableErrorBoundary bool
	// Preload lists custom strategy tags this entry answers to.
	Preload []string
}

func (e Entry) validate() error {
	if e.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidEntry)
	}
	if e.Importer == nil {
		return fmt.Errorf("%w: route %q has no importer", ErrInvalidEntry, e.Name)
	}
	if err := e.Requirement.Validate(); err != nil {
		return fmt.Errorf("route %q: %w", e.Name, err)
	}
	return nil
}

// Config configures a Registry.
type Config struct {
	// SuspenseTimeout is how long a first request waits for the import
	// before the loading presentation is served instead.
	SuspenseTimeout time.Duration `koanf:"suspense_timeout" validate:"min=0"`
	// RetryAfter is the refresh delay, in seconds, of loading responses.
	RetryAfter int `koanf:"retry_after" validate:"min=1,max=60"`
	// Development shows load errors on the failure page.
	Development bool `koanf:"development"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		SuspenseTimeout: 150 * time.Millisecond,
		RetryAfter:      1,
	}
}

// ErrorFunc receives contained route failures.
type ErrorFunc func(name string, err error)

// Option customizes a Registry.
type Option func(*Registry)

// WithOnError reports every contained failure to fn.
func WithOnError(fn ErrorFunc) Option {
	return func(r *Registry) { r.onError = fn }
}

// Registry maps route names to lazily imported handlers.
type Registry struct {
	config  Config
	onError ErrorFunc
	logger  zerolog.Logger

	mu      sync.RWMutex
	entries map[string]*Entry
	order   []string

	loader *cache.Loader[string, http.Handler]
}

// New creates an empty registry.
func New(config Config, opts ...Option) *Registry {
	if config.RetryAfter <= 0 {
		config.RetryAfter = 1
	}
	r := &Registry{
		config:  config,
		logger:  logging.WithComponent("lazyroute"),
		entries: make(map[string]*Entry),
	}
	r.loader = cache.NewLoader(r.load)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds an entry. Names are unique and requirements must validate.
func (r *Registry) Register(e Entry) error {
	if err := e.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[e.Name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateRoute, e.Name)
	}
	e.Preload = slices.Clone(e.Preload)
	r.entries[e.Name] = &e
	r.order = append(r.order, e.Name)
	return nil
}

// MustRegister is Register for route tables built at startup.
func (r *Registry) MustRegister(entries ...Entry) {
	for _, e := range entries {
		if err := r.Register(e); err != nil {
			panic(err)
		}
	}
}

// Lookup returns the entry registered under name.
func (r *Registry) Lookup(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Entries returns all entries in registration order.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, *r.entries[name])
	}
	return out
}

// State reports where the named entry is in its load lifecycle.
// Unknown names report NotRequested.
func (r *Registry) State(name string) cache.State {
	state, _, _ := r.loader.Peek(name)
	return state
}

func (r *Registry) load(ctx context.Context, name string) (http.Handler, error) {
	e, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRoute, name)
	}

	start := time.Now()
	h, err := runImporter(ctx, e.Importer)
	if err == nil && h == nil {
		err = ErrNilHandler
	}
	RecordLoad(name, time.Since(start), err)

	if err != nil {
		r.logger.Error().Err(err).Str("route", name).Msg("Route import failed")
		r.report(name, err)
		return nil, err
	}
	r.logger.Debug().Str("route", name).Dur("duration", time.Since(start)).Msg("Route imported")
	return h, nil
}

func runImporter(ctx context.Context, imp Importer) (h http.Handler, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrImporterPanic, rec)
		}
	}()
	return imp(ctx)
}

func (r *Registry) report(name string, err error) {
	if r.onError != nil {
		r.onError(name, err)
	}
}

// Preload starts loading each named entry without waiting. It returns an
// error naming unknown entries; known entries are started regardless.
func (r *Registry) Preload(ctx context.Context, names ...string) error {
	var errs []error
	for _, name := range names {
		if _, ok := r.Lookup(name); !ok {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownRoute, name))
			continue
		}
		r.loader.Start(ctx, name)
	}
	return errors.Join(errs...)
}

// PreloadStrategy preloads every entry matching strategy and returns how
// many entries matched.
func (r *Registry) PreloadStrategy(ctx context.Context, strategy string) (int, error) {
	var names []string
	for _, e := range r.Entries() {
		if matchesStrategy(e, strategy) {
			names = append(names, e.Name)
		}
	}
	if len(names) > 0 {
		r.logger.Debug().Str("strategy", strategy).Strs("routes", names).Msg("Preloading routes")
	}
	return len(names), r.Preload(ctx, names...)
}

func matchesStrategy(e Entry, strategy string) bool {
	switch strategy {
	case StrategyAll:
		return true
	case StrategyAuthenticated:
		return !e.Requirement.IsPublic()
	case StrategyAdmin:
		return e.Requirement.Roles.HasAny(adminRoles)
	default:
		return slices.Contains(e.Preload, strategy)
	}
}

// Wait loads the named entry if needed and blocks until it settles or ctx
// ends. Cancelling ctx does not cancel the load.
func (r *Registry) Wait(ctx context.Context, name string) (http.Handler, error) {
	if _, ok := r.Lookup(name); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRoute, name)
	}
	return r.loader.Wait(ctx, name)
}

// Drain blocks until in-flight imports finish.
func (r *Registry) Drain() {
	r.loader.Drain()
}

// Resolve returns the handler serving the named entry. The handler triggers
// the import on first use.
func (r *Registry) Resolve(name string) (http.Handler, error) {
	e, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRoute, name)
	}
	return &lazyHandler{registry: r, entry: e}, nil
}

// Handler is Resolve for route tables built at startup.
func (r *Registry) Handler(name string) http.Handler {
	h, err := r.Resolve(name)
	if err != nil {
		panic(err)
	}
	return h
}
