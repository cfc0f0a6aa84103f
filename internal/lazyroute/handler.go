// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

package lazyroute

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/tomtom215/skillswap-gateway/internal/cache"
	"github.com/tomtom215/skillswap-gateway/internal/views"
)

// LoadError is the panic value raised for a failed import when the entry
// has its error boundary disabled.
type LoadError struct {
	Route string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("route %q failed to load: %v", e.Route, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

type lazyHandler struct {
	registry *Registry
	entry    Entry
}

func (h *lazyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reg := h.registry
	name := h.entry.Name

	state, next, err := reg.loader.Peek(name)
	if state == cache.NotRequested || state == cache.Pending {
		done := reg.loader.Start(r.Context(), name)
		if !suspend(r, done, reg.config.SuspenseTimeout) {
			h.renderLoading(w, r)
			return
		}
		state, next, err = reg.loader.Peek(name)
	}

	switch state {
	case cache.Resolved:
		h.serve(w, r, next)
	case cache.Failed:
		h.fail(w, r, err)
	default:
		// Expired between Start and Peek; the next request starts over.
		h.renderLoading(w, r)
	}
}

// suspend waits for done up to timeout. It reports whether the load settled.
func suspend(r *http.Request, done <-chan struct{}, timeout time.Duration) bool {
	select {
	case <-done:
		return true
	default:
	}
	if timeout <= 0 {
		return false
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	case <-r.Context().Done():
		return false
	}
}

func (h *lazyHandler) renderLoading(w http.ResponseWriter, r *http.Request) {
	retry := h.registry.config.RetryAfter
	p := h.entry.Loading
	if views.WantsJSON(r) {
		views.NoStore(w)
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		views.WriteData(w, r, http.StatusAccepted, map[string]string{
			"status": "loading",
			"route":  h.entry.Name,
			"state":  cache.Pending.String(),
		})
		return
	}
	caption := p.Message
	if caption == "" {
		caption = "Loading"
	}
	views.Loading(w, views.NewLoadingView(p.Kind, p.Variant, caption, retry), retry)
}

func (h *lazyHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if h.entry.DisableErrorBoundary {
		panic(&LoadError{Route: h.entry.Name, Err: err})
	}
	BoundaryErrors.WithLabelValues(h.entry.Name, "load").Inc()
	h.renderFailure(w, r, err)
}

func (h *lazyHandler) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	if h.entry.DisableErrorBoundary {
		next.ServeHTTP(w, r)
		return
	}

	tw := &trackingWriter{ResponseWriter: w}
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		if rec == http.ErrAbortHandler {
			panic(rec)
		}
		err, ok := rec.(error)
		if !ok {
			err = fmt.Errorf("panic: %v", rec)
		}
		BoundaryErrors.WithLabelValues(h.entry.Name, "serve").Inc()
		h.registry.logger.Error().Err(err).Str("route", h.entry.Name).Msg("Route handler panicked")
		h.registry.report(h.entry.Name, err)
		if !tw.wroteHeader {
			h.renderFailure(w, r, err)
		}
	}()
	next.ServeHTTP(tw, r)
}

func (h *lazyHandler) renderFailure(w http.ResponseWriter, r *http.Request, err error) {
	dev := h.registry.config.Development
	if views.WantsJSON(r) {
		details := map[string]string{"route": h.entry.Name}
		if dev {
			details["error"] = err.Error()
		}
		views.NoStore(w)
		views.WriteErrorWithDetails(w, r, http.StatusInternalServerError, views.ErrCodeRouteFailed,
			"route failed to load", details)
		return
	}
	v := views.FailureView{Route: h.entry.Name, Retry: r.URL.RequestURI()}
	if dev {
		v.Error = err.Error()
	}
	views.Failure(w, v)
}

// trackingWriter records whether the wrapped handler started a response.
type trackingWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

func (tw *trackingWriter) WriteHeader(code int) {
	tw.wroteHeader = true
	tw.ResponseWriter.WriteHeader(code)
}

func (tw *trackingWriter) Write(b []byte) (int, error) {
	tw.wroteHeader = true
	return tw.ResponseWriter.Write(b)
}

func (tw *trackingWriter) Unwrap() http.ResponseWriter {
	return tw.ResponseWriter
}
