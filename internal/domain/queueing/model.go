// Package queueing owns patient queues and the position lifecycle of
// their entries. Positions among active entries (waiting and
// in_progress) are a dense 1..N sequence per queue; every mutation
// here preserves that invariant under a queue-scoped lock.
package queueing

import (
	"time"

	"github.com/google/uuid"

	"github.com/smartqueue/smartqueue/internal/domain/directory"
)

// Queue is a department-scoped waiting line.
type Queue struct {
	ID                   uuid.UUID `db:"id" json:"id"`
	DepartmentID         uuid.UUID `db:"department_id" json:"department_id"`
	Name                 string    `db:"name" json:"name"`
	IsActive             bool      `db:"is_active" json:"is_active"`
	Capacity             int       `db:"capacity" json:"capacity"`
	AvgProcessingMinutes int       `db:"avg_processing_minutes" json:"avg_processing_minutes"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
}

// EntryStatus is the lifecycle state of a queue entry.
type EntryStatus string

const (
	StatusWaiting    EntryStatus = "waiting"
	StatusInProgress EntryStatus = "in_progress"
	StatusInTest     EntryStatus = "in_test"
	StatusCompleted  EntryStatus = "completed"
	StatusNoShow     EntryStatus = "no_show"
	StatusCancelled  EntryStatus = "cancelled"
)

// Active reports whether the status participates in position
// accounting. Entries diverted to the lab keep their identity but
// give up their position until they return.
func (s EntryStatus) Active() bool {
	return s == StatusWaiting || s == StatusInProgress
}

// Terminal reports whether the status ends the entry's lifecycle.
func (s EntryStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusNoShow || s == StatusCancelled
}

var validTransitions = map[EntryStatus][]EntryStatus{
	StatusWaiting:    {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusInTest, StatusNoShow},
	StatusInTest:     {StatusWaiting},
}

func canTransition(from, to EntryStatus) bool {
	for _, t := range validTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// QueueEntry is one patient's claim on a queue.
type QueueEntry struct {
	ID                uuid.UUID      `db:"id" json:"id"`
	QueueID           uuid.UUID      `db:"queue_id" json:"queue_id"`
	PatientID         uuid.UUID      `db:"patient_id" json:"patient_id"`
	PatientUserID     uuid.UUID      `db:"patient_user_id" json:"patient_user_id"`
	Tier              directory.Tier `db:"tier" json:"tier"`
	Status            EntryStatus    `db:"status" json:"status"`
	Position          int            `db:"position" json:"position"`
	JoinedAt          time.Time      `db:"joined_at" json:"joined_at"`
	CalledAt          *time.Time     `db:"called_at" json:"called_at,omitempty"`
	ConsultationStart *time.Time     `db:"consultation_start" json:"consultation_start,omitempty"`
	CompletedAt       *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
	ETA               *time.Time     `db:"eta" json:"eta,omitempty"`
	ActualWaitMinutes *int           `db:"actual_wait_minutes" json:"actual_wait_minutes,omitempty"`
	Notes             string         `db:"notes" json:"notes,omitempty"`
}

// tierRank orders tiers for reordering: lower rank is served first.
var tierRank = map[directory.Tier]int{
	directory.TierEmergency:   0,
	directory.TierAppointment: 1,
	directory.TierWalkIn:      2,
}

// UnknownWaitMinutes is the wait estimate reported when the owning
// department has no staff on shift.
const UnknownWaitMinutes = 999
