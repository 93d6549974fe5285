package queueing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smartqueue/smartqueue/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

// NewRepositoryPG returns a Postgres-backed queue repository.
func NewRepositoryPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	if tx, ok := db.TxFromContext(ctx); ok {
		return tx
	}
	return r.pool
}

const queueColumns = `id, department_id, name, is_active, capacity, avg_processing_minutes, created_at`

func (r *repoPG) CreateQueue(ctx context.Context, q *Queue) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	q.CreatedAt = time.Now().UTC()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO queue (`+queueColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		q.ID, q.DepartmentID, q.Name, q.IsActive, q.Capacity, q.AvgProcessingMinutes, q.CreatedAt)
	if db.UniqueViolation(err) {
		return fmt.Errorf("queue %q already exists in department: %w", q.Name, err)
	}
	return err
}

func (r *repoPG) GetQueue(ctx context.Context, id uuid.UUID) (*Queue, error) {
	var q Queue
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT `+queueColumns+` FROM queue WHERE id = $1`, id).
		Scan(&q.ID, &q.DepartmentID, &q.Name, &q.IsActive, &q.Capacity, &q.AvgProcessingMinutes, &q.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *repoPG) ListActiveQueues(ctx context.Context) ([]*Queue, error) {
	return r.listQueues(ctx, `SELECT `+queueColumns+` FROM queue WHERE is_active ORDER BY name`)
}

func (r *repoPG) ListActiveQueuesByDepartment(ctx context.Context, departmentID uuid.UUID) ([]*Queue, error) {
	return r.listQueues(ctx,
		`SELECT `+queueColumns+` FROM queue WHERE is_active AND department_id = $1 ORDER BY name`,
		departmentID)
}

func (r *repoPG) listQueues(ctx context.Context, sql string, args ...any) ([]*Queue, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Queue
	for rows.Next() {
		var q Queue
		if err := rows.Scan(&q.ID, &q.DepartmentID, &q.Name, &q.IsActive, &q.Capacity,
			&q.AvgProcessingMinutes, &q.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &q)
	}
	return out, rows.Err()
}

const entryColumns = `id, queue_id, patient_id, patient_user_id, tier, status, position,
	joined_at, called_at, consultation_start, completed_at, eta, actual_wait_minutes, notes`

func (r *repoPG) CreateEntry(ctx context.Context, e *QueueEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO queue_entry (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		e.ID, e.QueueID, e.PatientID, e.PatientUserID, e.Tier, e.Status, e.Position,
		e.JoinedAt, e.CalledAt, e.ConsultationStart, e.CompletedAt, e.ETA, e.ActualWaitMinutes, e.Notes)
	if db.UniqueViolation(err) {
		return ErrAlreadyQueued
	}
	return err
}

func (r *repoPG) GetEntry(ctx context.Context, id uuid.UUID) (*QueueEntry, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+entryColumns+` FROM queue_entry WHERE id = $1`, id)
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

func (r *repoPG) UpdateEntry(ctx context.Context, e *QueueEntry) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE queue_entry SET
			status = $2, position = $3, called_at = $4, consultation_start = $5,
			completed_at = $6, eta = $7, actual_wait_minutes = $8, notes = $9
		WHERE id = $1`,
		e.ID, e.Status, e.Position, e.CalledAt, e.ConsultationStart,
		e.CompletedAt, e.ETA, e.ActualWaitMinutes, e.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) HasActiveEntry(ctx context.Context, queueID, patientID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM queue_entry
			WHERE queue_id = $1 AND patient_id = $2
			  AND status IN ('waiting', 'in_progress', 'in_test')
		)`, queueID, patientID).Scan(&exists)
	return exists, err
}

func (r *repoPG) ListActiveEntries(ctx context.Context, queueID uuid.UUID) ([]*QueueEntry, error) {
	return r.listEntries(ctx, `
		SELECT `+entryColumns+` FROM queue_entry
		WHERE queue_id = $1 AND status IN ('waiting', 'in_progress')
		ORDER BY position`, queueID)
}

func (r *repoPG) ListWaitingEntries(ctx context.Context, queueID uuid.UUID) ([]*QueueEntry, error) {
	return r.listEntries(ctx, `
		SELECT `+entryColumns+` FROM queue_entry
		WHERE queue_id = $1 AND status = 'waiting'
		ORDER BY position`, queueID)
}

func (r *repoPG) ShiftPositions(ctx context.Context, queueID uuid.UUID, fromPosition, delta int) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE queue_entry
		SET position = position + $3
		WHERE queue_id = $1 AND status IN ('waiting', 'in_progress') AND position >= $2`,
		queueID, fromPosition, delta)
	return err
}

func (r *repoPG) AssignPositions(ctx context.Context, queueID uuid.UUID, positions map[uuid.UUID]int) error {
	ids := make([]uuid.UUID, 0, len(positions))
	vals := make([]int, 0, len(positions))
	for id, pos := range positions {
		ids = append(ids, id)
		vals = append(vals, pos)
	}
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE queue_entry AS e
		SET position = m.position
		FROM (SELECT unnest($2::uuid[]) AS id, unnest($3::int[]) AS position) AS m
		WHERE e.id = m.id AND e.queue_id = $1`,
		queueID, ids, vals)
	return err
}

func (r *repoPG) UpdateETAs(ctx context.Context, queueID uuid.UUID, etas map[uuid.UUID]time.Time) error {
	ids := make([]uuid.UUID, 0, len(etas))
	vals := make([]time.Time, 0, len(etas))
	for id, eta := range etas {
		ids = append(ids, id)
		vals = append(vals, eta)
	}
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE queue_entry AS e
		SET eta = m.eta
		FROM (SELECT unnest($2::uuid[]) AS id, unnest($3::timestamptz[]) AS eta) AS m
		WHERE e.id = m.id AND e.queue_id = $1`,
		queueID, ids, vals)
	return err
}

func (r *repoPG) ListStaleCalled(ctx context.Context, queueID uuid.UUID, cutoff time.Time) ([]*QueueEntry, error) {
	return r.listEntries(ctx, `
		SELECT `+entryColumns+` FROM queue_entry
		WHERE queue_id = $1 AND status = 'in_progress'
		  AND consultation_start IS NULL AND called_at <= $2
		ORDER BY position`, queueID, cutoff)
}

func (r *repoPG) MoveEntry(ctx context.Context, entryID, toQueueID uuid.UUID, position int) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE queue_entry SET queue_id = $2, position = $3 WHERE id = $1`,
		entryID, toQueueID, position)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) ListEntriesJoinedOn(ctx context.Context, queueID uuid.UUID, day time.Time) ([]*QueueEntry, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return r.listEntries(ctx, `
		SELECT `+entryColumns+` FROM queue_entry
		WHERE queue_id = $1 AND joined_at >= $2 AND joined_at < $3
		ORDER BY joined_at`, queueID, start, start.AddDate(0, 0, 1))
}

func (r *repoPG) listEntries(ctx context.Context, sql string, args ...any) ([]*QueueEntry, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*QueueEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntry(row pgx.Row) (*QueueEntry, error) {
	var e QueueEntry
	err := row.Scan(&e.ID, &e.QueueID, &e.PatientID, &e.PatientUserID, &e.Tier, &e.Status,
		&e.Position, &e.JoinedAt, &e.CalledAt, &e.ConsultationStart, &e.CompletedAt,
		&e.ETA, &e.ActualWaitMinutes, &e.Notes)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
