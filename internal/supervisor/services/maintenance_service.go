// SkillSwap Gateway - Guarded Route Delivery for the SkillSwap Web Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skillswap-gateway

package services

import (
	"context"
	"time"

	"github.com/tomtom215/skillswap-gateway/internal/logging"
	"github.com/tomtom215/skillswap-gateway/internal/metrics"
)

// Task is one periodic cleanup job. Run returns how many expired entries
// it removed.
type Task struct {
	Name string
	Run  func(ctx context.Context) (int, error)
}

// CountTask adapts a sweep that cannot fail.
func CountTask(name string, sweep func() int) Task {
	return Task{
		Name: name,
		Run: func(context.Context) (int, error) {
			return sweep(), nil
		},
	}
}

// MaintenanceService runs its tasks every interval until canceled.
//
// A failing task is logged and retried on the next tick; it does not stop
// the other tasks or the service.
type MaintenanceService struct {
	interval time.Duration
	tasks    []Task
	name     string
}

// NewMaintenanceService creates the sweeper. A non-positive interval
// defaults to one minute.
func NewMaintenanceService(interval time.Duration, tasks ...Task) *MaintenanceService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &MaintenanceService{
		interval: interval,
		tasks:    tasks,
		name:     "maintenance",
	}
}

// Serve implements suture.Service.
func (m *MaintenanceService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.RunOnce(ctx)
		}
	}
}

// RunOnce runs every task once, in order.
func (m *MaintenanceService) RunOnce(ctx context.Context) {
	for _, task := range m.tasks {
		if ctx.Err() != nil {
			return
		}

		start := time.Now()
		removed, err := task.Run(ctx)
		metrics.RecordMaintenanceRun(task.Name, removed, err)

		if err != nil {
			logging.Warn().Err(err).Str("task", task.Name).Msg("Maintenance task failed")
			continue
		}
		if removed > 0 {
			logging.Debug().
				Str("task", task.Name).
				Int("removed", removed).
				Dur("took", time.Since(start)).
				Msg("Maintenance task removed expired entries")
		}
	}
}

// String implements fmt.Stringer.
func (m *MaintenanceService) String() string {
	return m.name
}
