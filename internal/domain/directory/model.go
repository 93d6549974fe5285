package directory

import (
	"time"

	"github.com/google/uuid"
)

// Department maps to the department table. Kind "lab" departments are
// the targets of lab-test routing; the Specialty tag is what the test
// category mapping resolves against.
type Department struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Kind      string    `db:"kind" json:"kind"`
	Specialty string    `db:"specialty" json:"specialty"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Department kinds.
const (
	KindOPD       = "opd"
	KindLab       = "lab"
	KindEmergency = "er"
	KindPharmacy  = "pharmacy"
)

// Tier is a patient's priority class. It is a property of the patient,
// not of an individual queue entry.
type Tier string

const (
	TierEmergency   Tier = "emergency"
	TierAppointment Tier = "appointment"
	TierWalkIn      Tier = "walk_in"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierEmergency, TierAppointment, TierWalkIn:
		return true
	}
	return false
}

// Patient maps to the patient table.
type Patient struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	FullName  string    `db:"full_name" json:"full_name"`
	Tier      Tier      `db:"priority_level" json:"priority_level"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Staff maps to the staff table. Shift bounds are minutes since
// midnight so availability is a time-of-day comparison.
type Staff struct {
	ID                     uuid.UUID `db:"id" json:"id"`
	UserID                 uuid.UUID `db:"user_id" json:"user_id"`
	DepartmentID           uuid.UUID `db:"department_id" json:"department_id"`
	Role                   string    `db:"role" json:"role"`
	Specialty              string    `db:"specialty" json:"specialty"`
	ShiftStartMin          int       `db:"shift_start_min" json:"shift_start_min"`
	ShiftEndMin            int       `db:"shift_end_min" json:"shift_end_min"`
	OnBreak                bool      `db:"on_break" json:"on_break"`
	AvgConsultationMinutes int       `db:"avg_consultation_minutes" json:"avg_consultation_minutes"`
}

// AvailableAt reports whether the staff member is on shift and not on
// break at the given instant.
func (s *Staff) AvailableAt(at time.Time) bool {
	m := at.Hour()*60 + at.Minute()
	return m >= s.ShiftStartMin && m <= s.ShiftEndMin && !s.OnBreak
}

// Technician specializations.
const (
	SpecHematology   = "hematology"
	SpecChemistry    = "chemistry"
	SpecMicrobiology = "microbiology"
	SpecPathology    = "pathology"
	SpecRadiology    = "radiology"
	SpecCardiology   = "cardiology"
	SpecGeneral      = "general"
)

// Technician maps to the technician table.
type Technician struct {
	ID             uuid.UUID `db:"id" json:"id"`
	StaffID        uuid.UUID `db:"staff_id" json:"staff_id"`
	DepartmentID   uuid.UUID `db:"department_id" json:"department_id"`
	Specialization string    `db:"specialization" json:"specialization"`
	LicenseNumber  string    `db:"license_number" json:"license_number"`
	Available      bool      `db:"is_available" json:"is_available"`
}

// Equipment statuses.
const (
	EquipmentAvailable   = "available"
	EquipmentInUse       = "in_use"
	EquipmentMaintenance = "maintenance"
	EquipmentOutOfOrder  = "out_of_order"
)

// Equipment maps to the equipment table.
type Equipment struct {
	ID            uuid.UUID `db:"id" json:"id"`
	DepartmentID  uuid.UUID `db:"department_id" json:"department_id"`
	Name          string    `db:"name" json:"name"`
	EquipmentType string    `db:"equipment_type" json:"equipment_type"`
	SerialNumber  string    `db:"serial_number" json:"serial_number"`
	Status        string    `db:"status" json:"status"`
}
