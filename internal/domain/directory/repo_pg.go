package directory

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

// NewRepositoryPG returns a Postgres-backed directory repository.
func NewRepositoryPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	if tx, ok := db.TxFromContext(ctx); ok {
		return tx
	}
	return r.pool
}

func (r *repoPG) CreateDepartment(ctx context.Context, d *Department) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.CreatedAt = time.Now().UTC()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO department (id, name, kind, specialty, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, d.Name, d.Kind, d.Specialty, d.IsActive, d.CreatedAt)
	return err
}

func (r *repoPG) GetDepartment(ctx context.Context, id uuid.UUID) (*Department, error) {
	var d Department
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, name, kind, specialty, is_active, created_at
		FROM department WHERE id = $1`, id).
		Scan(&d.ID, &d.Name, &d.Kind, &d.Specialty, &d.IsActive, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDepartmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *repoPG) ListActiveDepartments(ctx context.Context, kind string) ([]*Department, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, name, kind, specialty, is_active, created_at
		FROM department
		WHERE is_active AND ($1 = '' OR kind = $1)
		ORDER BY name`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDepartments(rows)
}

func (r *repoPG) FindLabDepartmentBySpecialty(ctx context.Context, specialty string) (*Department, error) {
	var d Department
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, name, kind, specialty, is_active, created_at
		FROM department
		WHERE is_active AND kind = $1 AND specialty = $2
		ORDER BY created_at
		LIMIT 1`, KindLab, specialty).
		Scan(&d.ID, &d.Name, &d.Kind, &d.Specialty, &d.IsActive, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDepartmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func scanDepartments(rows pgx.Rows) ([]*Department, error) {
	var out []*Department
	for rows.Next() {
		var d Department
		if err := rows.Scan(&d.ID, &d.Name, &d.Kind, &d.Specialty, &d.IsActive, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

func (r *repoPG) CreatePatient(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now().UTC()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient (id, user_id, full_name, priority_level, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.UserID, p.FullName, p.Tier, p.CreatedAt)
	return err
}

func (r *repoPG) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, user_id, full_name, priority_level, created_at
		FROM patient WHERE id = $1`, id).
		Scan(&p.ID, &p.UserID, &p.FullName, &p.Tier, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repoPG) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT count(*) FROM patient`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, user_id, full_name, priority_level, created_at
		FROM patient
		ORDER BY full_name
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Patient
	for rows.Next() {
		var p Patient
		if err := rows.Scan(&p.ID, &p.UserID, &p.FullName, &p.Tier, &p.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &p)
	}
	return items, total, rows.Err()
}

func (r *repoPG) CreateStaff(ctx context.Context, s *Staff) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO staff (id, user_id, department_id, role, specialty,
			shift_start_min, shift_end_min, on_break, avg_consultation_minutes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID, s.UserID, s.DepartmentID, s.Role, s.Specialty,
		s.ShiftStartMin, s.ShiftEndMin, s.OnBreak, s.AvgConsultationMinutes)
	return err
}

func (r *repoPG) ListStaffByDepartment(ctx context.Context, departmentID uuid.UUID) ([]*Staff, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, user_id, department_id, role, specialty,
			shift_start_min, shift_end_min, on_break, avg_consultation_minutes
		FROM staff WHERE department_id = $1`, departmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Staff
	for rows.Next() {
		var s Staff
		if err := rows.Scan(&s.ID, &s.UserID, &s.DepartmentID, &s.Role, &s.Specialty,
			&s.ShiftStartMin, &s.ShiftEndMin, &s.OnBreak, &s.AvgConsultationMinutes); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

func (r *repoPG) CreateTechnician(ctx context.Context, t *Technician) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO technician (id, staff_id, department_id, specialization, license_number, is_available)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.StaffID, t.DepartmentID, t.Specialization, t.LicenseNumber, t.Available)
	return err
}

func (r *repoPG) ListTechniciansByDepartment(ctx context.Context, departmentID uuid.UUID) ([]*Technician, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, staff_id, department_id, specialization, license_number, is_available
		FROM technician WHERE department_id = $1`, departmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Technician
	for rows.Next() {
		var t Technician
		if err := rows.Scan(&t.ID, &t.StaffID, &t.DepartmentID, &t.Specialization,
			&t.LicenseNumber, &t.Available); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (r *repoPG) CreateEquipment(ctx context.Context, e *Equipment) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO equipment (id, department_id, name, equipment_type, serial_number, status)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.DepartmentID, e.Name, e.EquipmentType, e.SerialNumber, e.Status)
	return err
}

func (r *repoPG) GetEquipment(ctx context.Context, id uuid.UUID) (*Equipment, error) {
	var e Equipment
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, department_id, name, equipment_type, serial_number, status
		FROM equipment WHERE id = $1`, id).
		Scan(&e.ID, &e.DepartmentID, &e.Name, &e.EquipmentType, &e.SerialNumber, &e.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEquipmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *repoPG) ListEquipmentByDepartment(ctx context.Context, departmentID uuid.UUID) ([]*Equipment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, department_id, name, equipment_type, serial_number, status
		FROM equipment WHERE department_id = $1
		ORDER BY name`, departmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Equipment
	for rows.Next() {
		var e Equipment
		if err := rows.Scan(&e.ID, &e.DepartmentID, &e.Name, &e.EquipmentType,
			&e.SerialNumber, &e.Status); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (r *repoPG) UpdateEquipmentStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE equipment SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEquipmentNotFound
	}
	return nil
}
