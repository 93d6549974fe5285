// Package analytics computes per-day rollups for queues and lab
// departments. Snapshots are derived data: recomputation is
// deterministic and replaces prior values for the same (entity, date).
package analytics

import (
	"time"

	"github.com/google/uuid"
)

// QueueSnapshot is one queue's rollup for one calendar day.
type QueueSnapshot struct {
	ID                   uuid.UUID `db:"id" json:"id"`
	QueueID              uuid.UUID `db:"queue_id" json:"queue_id"`
	Date                 time.Time `db:"date" json:"date"`
	TotalPatients        int       `db:"total_patients" json:"total_patients"`
	Completed            int       `db:"completed" json:"completed"`
	NoShows              int       `db:"no_shows" json:"no_shows"`
	AvgWaitMinutes       float64   `db:"avg_wait_minutes" json:"avg_wait_minutes"`
	AvgProcessingMinutes float64   `db:"avg_processing_minutes" json:"avg_processing_minutes"`
	// Peak hour bucket by join time; -1 when the day had no entries.
	PeakHourStart int `db:"peak_hour_start" json:"peak_hour_start"`
	PeakHourEnd   int `db:"peak_hour_end" json:"peak_hour_end"`
}

// LabSnapshot is one lab department's rollup for one calendar day.
type LabSnapshot struct {
	ID                   uuid.UUID `db:"id" json:"id"`
	DepartmentID         uuid.UUID `db:"department_id" json:"department_id"`
	Date                 time.Time `db:"date" json:"date"`
	TestsOrdered         int       `db:"tests_ordered" json:"tests_ordered"`
	TestsCompleted       int       `db:"tests_completed" json:"tests_completed"`
	TestsPending         int       `db:"tests_pending" json:"tests_pending"`
	TestsOverdue         int       `db:"tests_overdue" json:"tests_overdue"`
	AvgTurnaroundHours   float64   `db:"avg_turnaround_hours" json:"avg_turnaround_hours"`
	AvgProcessingMinutes float64   `db:"avg_processing_minutes" json:"avg_processing_minutes"`
	StatTests            int       `db:"stat_tests" json:"stat_tests"`
	UrgentTests          int       `db:"urgent_tests" json:"urgent_tests"`
	RoutineTests         int       `db:"routine_tests" json:"routine_tests"`
}
