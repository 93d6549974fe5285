package labs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound            = errors.New("lab entity not found")
	ErrInvalidTransition   = errors.New("invalid test status transition")
	ErrResourceUnavailable = errors.New("no technician or equipment available")
	ErrScheduleConflict    = errors.New("slot already reserved")
)

// Repository is the persistence contract for tests and schedules.
type Repository interface {
	CreateTest(ctx context.Context, t *LabTest) error
	GetTest(ctx context.Context, id uuid.UUID) (*LabTest, error)
	UpdateTest(ctx context.Context, t *LabTest) error
	// ListPendingTests returns tests in ordered/scheduled/in_progress.
	ListPendingTests(ctx context.Context) ([]*LabTest, error)
	// ListTestsByStatus returns tests with the given status.
	ListTestsByStatus(ctx context.Context, status TestStatus) ([]*LabTest, error)
	// ListTestsOrderedOn returns a department's tests ordered on the
	// given calendar day, for analytics rollups.
	ListTestsOrderedOn(ctx context.Context, departmentID uuid.UUID, day time.Time) ([]*LabTest, error)

	// CreateSchedule inserts a reservation; a storage uniqueness
	// violation surfaces as ErrScheduleConflict.
	CreateSchedule(ctx context.Context, s *LabSchedule) error
	// TechnicianBusy reports an existing reservation for the technician
	// with a slot start inside [from, to].
	TechnicianBusy(ctx context.Context, technicianID uuid.UUID, from, to time.Time) (bool, error)
	// EquipmentBusy reports an existing reservation for the machine
	// with a slot start inside [from, to].
	EquipmentBusy(ctx context.Context, equipmentID uuid.UUID, from, to time.Time) (bool, error)
}
