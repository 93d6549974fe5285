package labs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smartqueue/smartqueue/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

// NewRepositoryPG returns a Postgres-backed lab repository.
func NewRepositoryPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	if tx, ok := db.TxFromContext(ctx); ok {
		return tx
	}
	return r.pool
}

const testColumns = `id, patient_id, patient_user_id, category, priority, ordered_by_user_id,
	department_id, technician_id, equipment_id, status, ordered_at, scheduled_at, started_at,
	completed_at, reviewed_at, reported_at, reviewed_by_user_id, duration_minutes,
	clinical_notes, results, normal_ranges, abnormal_flags, queue_entry_id, queue_reentry,
	failure_notified`

func (r *repoPG) CreateTest(ctx context.Context, t *LabTest) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO lab_test (`+testColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22, $23, $24, $25)`,
		t.ID, t.PatientID, t.PatientUserID, t.Category, t.Priority, t.OrderedByUserID,
		t.DepartmentID, t.TechnicianID, t.EquipmentID, t.Status, t.OrderedAt, t.ScheduledAt,
		t.StartedAt, t.CompletedAt, t.ReviewedAt, t.ReportedAt, t.ReviewedByUser,
		t.DurationMinutes, t.ClinicalNotes, t.Results, t.NormalRanges, t.AbnormalFlags,
		t.QueueEntryID, t.QueueReentry, t.FailureNotified)
	return err
}

func (r *repoPG) GetTest(ctx context.Context, id uuid.UUID) (*LabTest, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+testColumns+` FROM lab_test WHERE id = $1`, id)
	t, err := scanTest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (r *repoPG) UpdateTest(ctx context.Context, t *LabTest) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE lab_test SET
			technician_id = $2, equipment_id = $3, status = $4, scheduled_at = $5,
			started_at = $6, completed_at = $7, reviewed_at = $8, reported_at = $9,
			reviewed_by_user_id = $10, results = $11, normal_ranges = $12,
			abnormal_flags = $13, failure_notified = $14
		WHERE id = $1`,
		t.ID, t.TechnicianID, t.EquipmentID, t.Status, t.ScheduledAt, t.StartedAt,
		t.CompletedAt, t.ReviewedAt, t.ReportedAt, t.ReviewedByUser, t.Results,
		t.NormalRanges, t.AbnormalFlags, t.FailureNotified)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) ListPendingTests(ctx context.Context) ([]*LabTest, error) {
	return r.listTests(ctx, `
		SELECT `+testColumns+` FROM lab_test
		WHERE status IN ('ordered', 'scheduled', 'in_progress')
		ORDER BY ordered_at`)
}

func (r *repoPG) ListTestsByStatus(ctx context.Context, status TestStatus) ([]*LabTest, error) {
	return r.listTests(ctx, `
		SELECT `+testColumns+` FROM lab_test
		WHERE status = $1
		ORDER BY ordered_at`, status)
}

func (r *repoPG) ListTestsOrderedOn(ctx context.Context, departmentID uuid.UUID, day time.Time) ([]*LabTest, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return r.listTests(ctx, `
		SELECT `+testColumns+` FROM lab_test
		WHERE department_id = $1 AND ordered_at >= $2 AND ordered_at < $3
		ORDER BY ordered_at`, departmentID, start, start.AddDate(0, 0, 1))
}

func (r *repoPG) listTests(ctx context.Context, sql string, args ...any) ([]*LabTest, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*LabTest
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTest(row pgx.Row) (*LabTest, error) {
	var t LabTest
	err := row.Scan(&t.ID, &t.PatientID, &t.PatientUserID, &t.Category, &t.Priority,
		&t.OrderedByUserID, &t.DepartmentID, &t.TechnicianID, &t.EquipmentID, &t.Status,
		&t.OrderedAt, &t.ScheduledAt, &t.StartedAt, &t.CompletedAt, &t.ReviewedAt,
		&t.ReportedAt, &t.ReviewedByUser, &t.DurationMinutes, &t.ClinicalNotes, &t.Results,
		&t.NormalRanges, &t.AbnormalFlags, &t.QueueEntryID, &t.QueueReentry, &t.FailureNotified)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *repoPG) CreateSchedule(ctx context.Context, s *LabSchedule) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.CreatedAt = time.Now().UTC()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO lab_schedule (id, test_id, technician_id, equipment_id, slot_start, duration_minutes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.TestID, s.TechnicianID, s.EquipmentID, s.SlotStart, s.DurationMinutes, s.CreatedAt)
	if db.UniqueViolation(err) {
		return ErrScheduleConflict
	}
	return err
}

func (r *repoPG) TechnicianBusy(ctx context.Context, technicianID uuid.UUID, from, to time.Time) (bool, error) {
	var busy bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM lab_schedule
			WHERE technician_id = $1 AND slot_start BETWEEN $2 AND $3
		)`, technicianID, from, to).Scan(&busy)
	return busy, err
}

func (r *repoPG) EquipmentBusy(ctx context.Context, equipmentID uuid.UUID, from, to time.Time) (bool, error) {
	var busy bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM lab_schedule
			WHERE equipment_id = $1 AND slot_start BETWEEN $2 AND $3
		)`, equipmentID, from, to).Scan(&busy)
	return busy, err
}
