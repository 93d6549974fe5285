package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrDepartmentNotFound = errors.New("department not found")
	ErrPatientNotFound    = errors.New("patient not found")
	ErrEquipmentNotFound  = errors.New("equipment not found")
)

// Repository is the persistence contract for the resource directory.
type Repository interface {
	CreateDepartment(ctx context.Context, d *Department) error
	GetDepartment(ctx context.Context, id uuid.UUID) (*Department, error)
	ListActiveDepartments(ctx context.Context, kind string) ([]*Department, error)
	FindLabDepartmentBySpecialty(ctx context.Context, specialty string) (*Department, error)

	CreatePatient(ctx context.Context, p *Patient) error
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
	ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error)

	CreateStaff(ctx context.Context, s *Staff) error
	ListStaffByDepartment(ctx context.Context, departmentID uuid.UUID) ([]*Staff, error)

	CreateTechnician(ctx context.Context, t *Technician) error
	ListTechniciansByDepartment(ctx context.Context, departmentID uuid.UUID) ([]*Technician, error)

	CreateEquipment(ctx context.Context, e *Equipment) error
	GetEquipment(ctx context.Context, id uuid.UUID) (*Equipment, error)
	ListEquipmentByDepartment(ctx context.Context, departmentID uuid.UUID) ([]*Equipment, error)
	UpdateEquipmentStatus(ctx context.Context, id uuid.UUID, status string) error
}
