// Package maintenance runs the periodic housekeeping sweep: no-show
// eviction, near-front notifications, lab scheduling retries, overdue
// alerts, analytics recomputation and cross-queue load balancing. The
// sweep is triggered externally (CLI command or HTTP endpoint), it does
// not run its own timer.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/smartqueue/smartqueue/internal/domain/directory"
)

// QueueOps is the queueing surface the sweeper drives.
type QueueOps interface {
	SweepNoShows(ctx context.Context) (int, error)
	NotifyNearFront(ctx context.Context) (int, error)
	LoadBalance(ctx context.Context, departmentID uuid.UUID) (int, error)
}

// LabOps is the lab surface the sweeper drives.
type LabOps interface {
	RetryUnscheduled(ctx context.Context) (int, error)
	AlertOverdue(ctx context.Context) (int, error)
}

// AnalyticsOps recomputes daily snapshots.
type AnalyticsOps interface {
	RecomputeAll(ctx context.Context, day time.Time) (int, error)
}

// DepartmentSource lists the departments to load-balance.
type DepartmentSource interface {
	ListActiveDepartments(ctx context.Context, kind string) ([]*directory.Department, error)
}

// StepResult is one sub-step's outcome. Count is step-specific: entries
// evicted, notices sent, tests scheduled, alerts raised, snapshots
// written or patients moved.
type StepResult struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
	Error string `json:"error,omitempty"`
}

// Report is the outcome of one full sweep.
type Report struct {
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Steps      []StepResult `json:"steps"`
}

// Failed reports whether any sub-step recorded an error.
func (r *Report) Failed() bool {
	for _, s := range r.Steps {
		if s.Error != "" {
			return true
		}
	}
	return false
}

// Sweeper orchestrates the housekeeping sub-steps. A failing step is
// recorded in the report and never blocks the steps after it.
type Sweeper struct {
	queues    QueueOps
	labs      LabOps
	analytics AnalyticsOps
	depts     DepartmentSource
	log       zerolog.Logger
	now       func() time.Time
}

func NewSweeper(queues QueueOps, labs LabOps, analytics AnalyticsOps, depts DepartmentSource, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		queues:    queues,
		labs:      labs,
		analytics: analytics,
		depts:     depts,
		log:       log.With().Str("component", "maintenance").Logger(),
		now:       time.Now,
	}
}

// Run executes every sub-step in order and returns the full report.
func (s *Sweeper) Run(ctx context.Context) *Report {
	report := &Report{StartedAt: s.now()}

	s.step(ctx, report, "no_show_sweep", s.queues.SweepNoShows)
	s.step(ctx, report, "near_front_notify", s.queues.NotifyNearFront)
	s.step(ctx, report, "lab_schedule_retry", s.labs.RetryUnscheduled)
	s.step(ctx, report, "overdue_alerts", s.labs.AlertOverdue)
	s.step(ctx, report, "analytics_recompute", func(ctx context.Context) (int, error) {
		return s.analytics.RecomputeAll(ctx, s.now())
	})
	s.step(ctx, report, "load_balance", s.loadBalanceAll)

	report.FinishedAt = s.now()
	return report
}

func (s *Sweeper) step(ctx context.Context, report *Report, name string, fn func(context.Context) (int, error)) {
	res := StepResult{Name: name}
	count, err := fn(ctx)
	res.Count = count
	if err != nil {
		res.Error = err.Error()
		s.log.Error().Err(err).Str("step", name).Int("count", count).Msg("sweep step failed")
	} else {
		s.log.Info().Str("step", name).Int("count", count).Msg("sweep step done")
	}
	report.Steps = append(report.Steps, res)
}

// loadBalanceAll rebalances every active department. Per-department
// failures are collected so one department cannot block the rest.
func (s *Sweeper) loadBalanceAll(ctx context.Context) (int, error) {
	depts, err := s.depts.ListActiveDepartments(ctx, "")
	if err != nil {
		return 0, err
	}

	moved := 0
	var errs []error
	for _, d := range depts {
		n, err := s.queues.LoadBalance(ctx, d.ID)
		moved += n
		if err != nil {
			errs = append(errs, fmt.Errorf("department %s: %w", d.ID, err))
		}
	}
	return moved, errors.Join(errs...)
}
