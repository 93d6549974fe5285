package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/smartqueue/smartqueue/internal/domain/directory"
	"github.com/smartqueue/smartqueue/internal/domain/labs"
	"github.com/smartqueue/smartqueue/internal/domain/queueing"
)

// QueueSource is the queue data the aggregator reads.
type QueueSource interface {
	ListActiveQueues(ctx context.Context) ([]*queueing.Queue, error)
	ListEntriesJoinedOn(ctx context.Context, queueID uuid.UUID, day time.Time) ([]*queueing.QueueEntry, error)
}

// LabSource is the lab data the aggregator reads.
type LabSource interface {
	ListTestsOrderedOn(ctx context.Context, departmentID uuid.UUID, day time.Time) ([]*labs.LabTest, error)
}

// DepartmentSource lists the lab departments to roll up.
type DepartmentSource interface {
	ListActiveDepartments(ctx context.Context, kind string) ([]*directory.Department, error)
}

// Service recomputes and serves daily snapshots.
type Service struct {
	repo    Repository
	queues  QueueSource
	tests   LabSource
	depts   DepartmentSource
	log     zerolog.Logger
	now     func() time.Time
}

func NewService(repo Repository, queues QueueSource, tests LabSource, depts DepartmentSource, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		queues: queues,
		tests:  tests,
		depts:  depts,
		log:    log.With().Str("component", "analytics").Logger(),
		now:    time.Now,
	}
}

// RecomputeQueueDay rebuilds one queue's snapshot for a day. Returns
// nil without writing when the day had no entries.
func (s *Service) RecomputeQueueDay(ctx context.Context, queueID uuid.UUID, day time.Time) (*QueueSnapshot, error) {
	entries, err := s.queues.ListEntriesJoinedOn(ctx, queueID, day)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	snap := &QueueSnapshot{
		QueueID:       queueID,
		Date:          truncateDay(day),
		TotalPatients: len(entries),
		PeakHourStart: -1,
		PeakHourEnd:   -1,
	}

	var waitSum, waitN float64
	var procSum, procN float64
	var hourly [24]int
	for _, e := range entries {
		hourly[e.JoinedAt.Hour()]++
		switch e.Status {
		case queueing.StatusCompleted:
			snap.Completed++
		case queueing.StatusNoShow:
			snap.NoShows++
		}
		if e.ActualWaitMinutes != nil {
			waitSum += float64(*e.ActualWaitMinutes)
			waitN++
		}
		if e.Status == queueing.StatusCompleted && e.ConsultationStart != nil && e.CompletedAt != nil {
			procSum += e.CompletedAt.Sub(*e.ConsultationStart).Minutes()
			procN++
		}
	}
	if waitN > 0 {
		snap.AvgWaitMinutes = waitSum / waitN
	}
	if procN > 0 {
		snap.AvgProcessingMinutes = procSum / procN
	}

	// earliest hour wins ties
	peak, peakCount := -1, 0
	for h, c := range hourly {
		if c > peakCount {
			peak, peakCount = h, c
		}
	}
	if peak >= 0 {
		snap.PeakHourStart = peak
		snap.PeakHourEnd = peak + 1
	}

	if err := s.repo.UpsertQueueSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// RecomputeLabDay rebuilds one lab department's snapshot for a day.
// Returns nil without writing when no tests were ordered.
func (s *Service) RecomputeLabDay(ctx context.Context, departmentID uuid.UUID, day time.Time) (*LabSnapshot, error) {
	tests, err := s.tests.ListTestsOrderedOn(ctx, departmentID, day)
	if err != nil {
		return nil, err
	}
	if len(tests) == 0 {
		return nil, nil
	}

	snap := &LabSnapshot{
		DepartmentID: departmentID,
		Date:         truncateDay(day),
		TestsOrdered: len(tests),
	}

	now := s.now()
	var turnSum, turnN float64
	var procSum, procN float64
	for _, t := range tests {
		switch t.Status {
		case labs.StatusCompleted, labs.StatusReviewed, labs.StatusReported:
			snap.TestsCompleted++
		case labs.StatusOrdered, labs.StatusScheduled, labs.StatusInProgress:
			snap.TestsPending++
		}
		if t.IsOverdue(now) {
			snap.TestsOverdue++
		}
		switch t.Priority {
		case labs.PriorityStat:
			snap.StatTests++
		case labs.PriorityUrgent:
			snap.UrgentTests++
		default:
			snap.RoutineTests++
		}
		if t.CompletedAt != nil {
			turnSum += t.CompletedAt.Sub(t.OrderedAt).Hours()
			turnN++
			if t.StartedAt != nil {
				procSum += t.CompletedAt.Sub(*t.StartedAt).Minutes()
				procN++
			}
		}
	}
	if turnN > 0 {
		snap.AvgTurnaroundHours = turnSum / turnN
	}
	if procN > 0 {
		snap.AvgProcessingMinutes = procSum / procN
	}

	if err := s.repo.UpsertLabSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// RecomputeAll rolls up every active queue, then every active lab
// department, for the given day. Per-entity failures are collected so
// one bad entity cannot block the rest.
func (s *Service) RecomputeAll(ctx context.Context, day time.Time) (int, error) {
	written := 0
	var errs []error

	queues, err := s.queues.ListActiveQueues(ctx)
	if err != nil {
		errs = append(errs, err)
	} else {
		for _, q := range queues {
			snap, err := s.RecomputeQueueDay(ctx, q.ID, day)
			if err != nil {
				errs = append(errs, fmt.Errorf("queue %s: %w", q.ID, err))
				continue
			}
			if snap != nil {
				written++
			}
		}
	}

	depts, err := s.depts.ListActiveDepartments(ctx, directory.KindLab)
	if err != nil {
		errs = append(errs, err)
	} else {
		for _, d := range depts {
			snap, err := s.RecomputeLabDay(ctx, d.ID, day)
			if err != nil {
				errs = append(errs, fmt.Errorf("department %s: %w", d.ID, err))
				continue
			}
			if snap != nil {
				written++
			}
		}
	}
	return written, errors.Join(errs...)
}

// RecentQueueSnapshots returns up to the last `days` days of a queue's
// rollups.
func (s *Service) RecentQueueSnapshots(ctx context.Context, queueID uuid.UUID, days int) ([]*QueueSnapshot, error) {
	if days <= 0 {
		days = 7
	}
	since := truncateDay(s.now().AddDate(0, 0, -days))
	return s.repo.RecentQueueSnapshots(ctx, queueID, since)
}

// RecentLabSnapshots returns up to the last `days` days of a lab
// department's rollups.
func (s *Service) RecentLabSnapshots(ctx context.Context, departmentID uuid.UUID, days int) ([]*LabSnapshot, error) {
	if days <= 0 {
		days = 7
	}
	since := truncateDay(s.now().AddDate(0, 0, -days))
	return s.repo.RecentLabSnapshots(ctx, departmentID, since)
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
