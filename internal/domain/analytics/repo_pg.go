package analytics

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smartqueue/smartqueue/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

// NewRepositoryPG returns a Postgres-backed snapshot repository.
func NewRepositoryPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	if tx, ok := db.TxFromContext(ctx); ok {
		return tx
	}
	return r.pool
}

func (r *repoPG) UpsertQueueSnapshot(ctx context.Context, s *QueueSnapshot) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO queue_analytics (id, queue_id, date, total_patients, completed, no_shows,
			avg_wait_minutes, avg_processing_minutes, peak_hour_start, peak_hour_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (queue_id, date) DO UPDATE SET
			total_patients = EXCLUDED.total_patients,
			completed = EXCLUDED.completed,
			no_shows = EXCLUDED.no_shows,
			avg_wait_minutes = EXCLUDED.avg_wait_minutes,
			avg_processing_minutes = EXCLUDED.avg_processing_minutes,
			peak_hour_start = EXCLUDED.peak_hour_start,
			peak_hour_end = EXCLUDED.peak_hour_end`,
		s.ID, s.QueueID, s.Date, s.TotalPatients, s.Completed, s.NoShows,
		s.AvgWaitMinutes, s.AvgProcessingMinutes, s.PeakHourStart, s.PeakHourEnd)
	return err
}

func (r *repoPG) UpsertLabSnapshot(ctx context.Context, s *LabSnapshot) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO lab_analytics (id, department_id, date, tests_ordered, tests_completed,
			tests_pending, tests_overdue, avg_turnaround_hours, avg_processing_minutes,
			stat_tests, urgent_tests, routine_tests)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (department_id, date) DO UPDATE SET
			tests_ordered = EXCLUDED.tests_ordered,
			tests_completed = EXCLUDED.tests_completed,
			tests_pending = EXCLUDED.tests_pending,
			tests_overdue = EXCLUDED.tests_overdue,
			avg_turnaround_hours = EXCLUDED.avg_turnaround_hours,
			avg_processing_minutes = EXCLUDED.avg_processing_minutes,
			stat_tests = EXCLUDED.stat_tests,
			urgent_tests = EXCLUDED.urgent_tests,
			routine_tests = EXCLUDED.routine_tests`,
		s.ID, s.DepartmentID, s.Date, s.TestsOrdered, s.TestsCompleted, s.TestsPending,
		s.TestsOverdue, s.AvgTurnaroundHours, s.AvgProcessingMinutes,
		s.StatTests, s.UrgentTests, s.RoutineTests)
	return err
}

func (r *repoPG) RecentQueueSnapshots(ctx context.Context, queueID uuid.UUID, since time.Time) ([]*QueueSnapshot, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, queue_id, date, total_patients, completed, no_shows,
			avg_wait_minutes, avg_processing_minutes, peak_hour_start, peak_hour_end
		FROM queue_analytics
		WHERE queue_id = $1 AND date >= $2
		ORDER BY date DESC`, queueID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*QueueSnapshot
	for rows.Next() {
		var s QueueSnapshot
		if err := rows.Scan(&s.ID, &s.QueueID, &s.Date, &s.TotalPatients, &s.Completed,
			&s.NoShows, &s.AvgWaitMinutes, &s.AvgProcessingMinutes,
			&s.PeakHourStart, &s.PeakHourEnd); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

func (r *repoPG) RecentLabSnapshots(ctx context.Context, departmentID uuid.UUID, since time.Time) ([]*LabSnapshot, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, department_id, date, tests_ordered, tests_completed, tests_pending,
			tests_overdue, avg_turnaround_hours, avg_processing_minutes,
			stat_tests, urgent_tests, routine_tests
		FROM lab_analytics
		WHERE department_id = $1 AND date >= $2
		ORDER BY date DESC`, departmentID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*LabSnapshot
	for rows.Next() {
		var s LabSnapshot
		if err := rows.Scan(&s.ID, &s.DepartmentID, &s.Date, &s.TestsOrdered, &s.TestsCompleted,
			&s.TestsPending, &s.TestsOverdue, &s.AvgTurnaroundHours, &s.AvgProcessingMinutes,
			&s.StatTests, &s.UrgentTests, &s.RoutineTests); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}
