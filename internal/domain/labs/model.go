// Package labs owns lab test ordering, technician/equipment matching,
// and the test result lifecycle.
package labs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Priority is a lab test's urgency class.
type Priority string

const (
	PriorityRoutine Priority = "routine"
	PriorityUrgent  Priority = "urgent"
	PriorityStat    Priority = "stat"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityRoutine, PriorityUrgent, PriorityStat:
		return true
	}
	return false
}

// SLA returns the completion deadline window for the priority.
func (p Priority) SLA() time.Duration {
	switch p {
	case PriorityStat:
		return time.Hour
	case PriorityUrgent:
		return 4 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// TestStatus is the lifecycle state of a lab test. Forward-only except
// for cancellation.
type TestStatus string

const (
	StatusOrdered    TestStatus = "ordered"
	StatusScheduled  TestStatus = "scheduled"
	StatusInProgress TestStatus = "in_progress"
	StatusCompleted  TestStatus = "completed"
	StatusReviewed   TestStatus = "reviewed"
	StatusReported   TestStatus = "reported"
	StatusCancelled  TestStatus = "cancelled"
)

// Terminal reports whether the status ends the test's lifecycle.
func (s TestStatus) Terminal() bool {
	return s == StatusReported || s == StatusCancelled
}

// LabTest is one ordered diagnostic or imaging procedure.
type LabTest struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	PatientID       uuid.UUID  `db:"patient_id" json:"patient_id"`
	PatientUserID   uuid.UUID  `db:"patient_user_id" json:"patient_user_id"`
	Category        string     `db:"category" json:"category"`
	Priority        Priority   `db:"priority" json:"priority"`
	OrderedByUserID uuid.UUID  `db:"ordered_by_user_id" json:"ordered_by_user_id"`
	DepartmentID    uuid.UUID  `db:"department_id" json:"department_id"`
	TechnicianID    *uuid.UUID `db:"technician_id" json:"technician_id,omitempty"`
	EquipmentID     *uuid.UUID `db:"equipment_id" json:"equipment_id,omitempty"`
	Status          TestStatus `db:"status" json:"status"`

	OrderedAt       time.Time  `db:"ordered_at" json:"ordered_at"`
	ScheduledAt     *time.Time `db:"scheduled_at" json:"scheduled_at,omitempty"`
	StartedAt       *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt     *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	ReviewedAt      *time.Time `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReportedAt      *time.Time `db:"reported_at" json:"reported_at,omitempty"`
	ReviewedByUser  *uuid.UUID `db:"reviewed_by_user_id" json:"reviewed_by_user_id,omitempty"`
	DurationMinutes int        `db:"duration_minutes" json:"duration_minutes"`

	ClinicalNotes string          `db:"clinical_notes" json:"clinical_notes,omitempty"`
	Results       string          `db:"results" json:"results,omitempty"`
	NormalRanges  json.RawMessage `db:"normal_ranges" json:"normal_ranges,omitempty"`
	AbnormalFlags []string        `db:"abnormal_flags" json:"abnormal_flags,omitempty"`

	// Queue integration: the entry that spawned this order and whether
	// the patient rejoins that queue once the test completes.
	QueueEntryID *uuid.UUID `db:"queue_entry_id" json:"queue_entry_id,omitempty"`
	QueueReentry bool       `db:"queue_reentry" json:"queue_reentry"`

	// FailureNotified gates the one-time resource-unavailable alert so
	// maintenance retries stay silent.
	FailureNotified bool `db:"failure_notified" json:"-"`
}

// IsOverdue reports whether the test has blown its priority SLA. Never
// true once results are in.
func (t *LabTest) IsOverdue(now time.Time) bool {
	switch t.Status {
	case StatusOrdered, StatusScheduled, StatusInProgress:
		return now.Sub(t.OrderedAt) > t.Priority.SLA()
	}
	return false
}

// Pending reports whether the test still awaits completion.
func (t *LabTest) Pending() bool {
	switch t.Status {
	case StatusOrdered, StatusScheduled, StatusInProgress:
		return true
	}
	return false
}

// LabSchedule reserves a technician (and possibly a machine) for a
// test at a slot. Storage-level uniqueness on (technician, slot) and
// (equipment, slot) is the final arbiter against double-booking.
type LabSchedule struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	TestID          uuid.UUID  `db:"test_id" json:"test_id"`
	TechnicianID    uuid.UUID  `db:"technician_id" json:"technician_id"`
	EquipmentID     *uuid.UUID `db:"equipment_id" json:"equipment_id,omitempty"`
	SlotStart       time.Time  `db:"slot_start" json:"slot_start"`
	DurationMinutes int        `db:"duration_minutes" json:"duration_minutes"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}
