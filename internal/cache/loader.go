// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is the lifecycle position of a single loader key.
type State int

const (
	// NotRequested means no load has been started (or the last result expired).
	NotRequested State = iota
	// Pending means a load is in flight.
	Pending
	// Resolved means the load returned a value.
	Resolved
	// Failed means the load returned an error or panicked.
	Failed
)

// String returns the lower-case state name used in logs and metrics.
func (s State) String() string {
	switch s {
	case NotRequested:
		return "not_requested"
	case Pending:
		return "pending"
	case Resolved:
		return "resolved"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrLoadPanic wraps a panic recovered from a LoadFunc.
var ErrLoadPanic = errors.New("cache: load panicked")

// LoadFunc produces the value for key. It runs on its own goroutine with a
// context that is never canceled by the caller that triggered it.
type LoadFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)

// Stats is a snapshot of loader activity.
type Stats struct {
	Hits     int64
	Misses   int64
	Loads    int64
	Failures int64
	Keys     int
}

// Option configures a Loader.
type Option func(*options)

type options struct {
	ttl        time.Duration
	failureTTL time.Duration
	now        func() time.Time
}

// WithTTL expires resolved values after d. Zero keeps them forever.
func WithTTL(d time.Duration) Option {
	return func(o *options) { o.ttl = d }
}

// WithFailureTTL expires failures after d, allowing a later load to retry.
// Zero keeps failures forever. Defaults to the value TTL.
func WithFailureTTL(d time.Duration) Option {
	return func(o *options) { o.failureTTL = d }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

type entry[V any] struct {
	state   State
	value   V
	err     error
	done    chan struct{}
	settled time.Time
}

// Loader is a keyed, at-most-once asynchronous cache.
//
// Each key moves NotRequested -> Pending -> Resolved | Failed. Concurrent
// callers for the same key share a single LoadFunc invocation; no caller can
// cancel a load another caller is waiting on. Settled results stay until they
// expire (see WithTTL / WithFailureTTL) or are dropped with Forget.
//
// Example:
//
//	perms := cache.NewLoader(fetchPermissions, cache.WithTTL(5*time.Minute))
//	if state, v, _ := perms.Peek(userID); state == cache.Resolved {
//	    return v
//	}
//	perms.Start(ctx, userID)
type Loader[K comparable, V any] struct {
	load LoadFunc[K, V]
	opts options

	mu      sync.Mutex
	entries map[K]*entry[V]
	stats   Stats
	wg      sync.WaitGroup
}

// NewLoader creates a Loader backed by load.
func NewLoader[K comparable, V any](load LoadFunc[K, V], opts ...Option) *Loader[K, V] {
	o := options{failureTTL: -1, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.failureTTL < 0 {
		o.failureTTL = o.ttl
	}
	return &Loader[K, V]{
		load:    load,
		opts:    o,
		entries: make(map[K]*entry[V]),
	}
}

// expired reports whether a settled entry has outlived its TTL. Must hold l.mu.
func (l *Loader[K, V]) expired(e *entry[V]) bool {
	var ttl time.Duration
	switch e.state {
	case Resolved:
		ttl = l.opts.ttl
	case Failed:
		ttl = l.opts.failureTTL
	default:
		return false
	}
	return ttl > 0 && l.opts.now().Sub(e.settled) >= ttl
}

// lookup returns the live entry for key, dropping it if expired. Must hold l.mu.
func (l *Loader[K, V]) lookup(key K) *entry[V] {
	e, ok := l.entries[key]
	if !ok {
		return nil
	}
	if l.expired(e) {
		delete(l.entries, key)
		return nil
	}
	return e
}

// Start triggers the load for key unless one is pending or settled, and
// returns a channel closed once the key settles. ctx only contributes its
// values; its cancellation is ignored.
func (l *Loader[K, V]) Start(ctx context.Context, key K) <-chan struct{} {
	return l.start(ctx, key).done
}

func (l *Loader[K, V]) start(ctx context.Context, key K) *entry[V] {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e := l.lookup(key); e != nil {
		l.stats.Hits++
		return e
	}

	l.stats.Misses++
	l.stats.Loads++
	e := &entry[V]{state: Pending, done: make(chan struct{})}
	l.entries[key] = e

	l.wg.Add(1)
	go l.run(context.WithoutCancel(ctx), key, e)
	return e
}

func (l *Loader[K, V]) run(ctx context.Context, key K, e *entry[V]) {
	defer l.wg.Done()

	value, err := l.call(ctx, key)

	l.mu.Lock()
	if err != nil {
		e.state = Failed
		e.err = err
		l.stats.Failures++
	} else {
		e.state = Resolved
		e.value = value
	}
	e.settled = l.opts.now()
	l.mu.Unlock()

	close(e.done)
}

func (l *Loader[K, V]) call(ctx context.Context, key K) (value V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrLoadPanic, r)
		}
	}()
	return l.load(ctx, key)
}

// Peek returns the current state of key without triggering a load.
func (l *Loader[K, V]) Peek(key K) (State, V, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var zero V
	e := l.lookup(key)
	if e == nil {
		return NotRequested, zero, nil
	}
	return e.state, e.value, e.err
}

// Wait starts the load for key if needed and blocks until it settles or ctx
// is done. Abandoning the wait leaves the load running.
func (l *Loader[K, V]) Wait(ctx context.Context, key K) (V, error) {
	e := l.start(ctx, key)

	select {
	case <-e.done:
		// value and err are written before done is closed.
		return e.value, e.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Forget drops key. A pending load keeps running but its result is discarded.
func (l *Loader[K, V]) Forget(key K) {
	l.mu.Lock()
	delete(l.entries, key)
	l.mu.Unlock()
}

// Clear drops every key. Pending loads keep running but their results are discarded.
func (l *Loader[K, V]) Clear() {
	l.mu.Lock()
	l.entries = make(map[K]*entry[V])
	l.mu.Unlock()
}

// Len returns the number of tracked keys, including expired ones not yet swept.
func (l *Loader[K, V]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// CleanupExpired removes expired settled entries and returns how many were removed.
func (l *Loader[K, V]) CleanupExpired() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, e := range l.entries {
		if l.expired(e) {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// Stats returns a snapshot of loader counters.
func (l *Loader[K, V]) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.stats
	s.Keys = len(l.entries)
	return s
}

// Drain blocks until every in-flight load has returned. Used on shutdown and in tests.
func (l *Loader[K, V]) Drain() {
	l.wg.Wait()
}
