// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/skillswap-gateway/internal/metrics"
)

func TestMaintenanceService_Interface(t *testing.T) {
	var _ suture.Service = (*MaintenanceService)(nil)
}

func TestNewMaintenanceService_DefaultInterval(t *testing.T) {
	for _, interval := range []time.Duration{0, -time.Second} {
		if svc := NewMaintenanceService(interval); svc.interval != time.Minute {
			t.Errorf("interval %v defaulted to %v, want 1m", interval, svc.interval)
		}
	}
}

func TestMaintenanceService_RunOnce(t *testing.T) {
	var calls []string
	failing := Task{
		Name: "test_failing",
		Run: func(context.Context) (int, error) {
			calls = append(calls, "failing")
			return 0, errors.New("store closed")
		},
	}
	sweep := CountTask("test_sweep", func() int {
		calls = append(calls, "sweep")
		return 4
	})

	before := testutil.ToFloat64(metrics.MaintenanceRemoved.WithLabelValues("test_sweep"))
	NewMaintenanceService(time.Minute, failing, sweep).RunOnce(context.Background())

	if len(calls) != 2 || calls[0] != "failing" || calls[1] != "sweep" {
		t.Errorf("calls = %v, a failing task must not stop the rest", calls)
	}
	if got := testutil.ToFloat64(metrics.MaintenanceRemoved.WithLabelValues("test_sweep")); got != before+4 {
		t.Errorf("removed = %v, want %v", got, before+4)
	}
	if got := testutil.ToFloat64(metrics.MaintenanceRuns.WithLabelValues("test_failing", "error")); got < 1 {
		t.Errorf("error runs = %v", got)
	}
}

func TestMaintenanceService_RunOnceStopsWhenCanceled(t *testing.T) {
	ran := false
	svc := NewMaintenanceService(time.Minute, CountTask("test_canceled", func() int {
		ran = true
		return 0
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.RunOnce(ctx)
	if ran {
		t.Error("task ran after cancellation")
	}
}

func TestMaintenanceService_Serve(t *testing.T) {
	var runs atomic.Int32
	svc := NewMaintenanceService(10*time.Millisecond, CountTask("test_ticker", func() int {
		runs.Add(1)
		return 0
	}))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if runs.Load() < 2 {
		t.Fatalf("task ran %d times, want at least 2", runs.Load())
	}

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}

func TestMaintenanceService_String(t *testing.T) {
	if got := NewMaintenanceService(time.Minute).String(); got != "maintenance" {
		t.Errorf("String() = %q", got)
	}
}
