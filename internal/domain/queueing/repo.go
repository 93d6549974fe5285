package queueing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("queue entity not found")
	ErrAlreadyQueued     = errors.New("patient already holds an active entry in this queue")
	ErrQueueFull         = errors.New("queue is at capacity")
	ErrQueueInactive     = errors.New("queue is not active")
	ErrEmptyQueue        = errors.New("no waiting entries")
	ErrInvalidTransition = errors.New("invalid entry status transition")
)

// Repository is the persistence contract for queues and entries.
// Batch position updates are single statements so a surrounding
// transaction keeps each shift atomic.
type Repository interface {
	CreateQueue(ctx context.Context, q *Queue) error
	GetQueue(ctx context.Context, id uuid.UUID) (*Queue, error)
	ListActiveQueues(ctx context.Context) ([]*Queue, error)
	ListActiveQueuesByDepartment(ctx context.Context, departmentID uuid.UUID) ([]*Queue, error)

	CreateEntry(ctx context.Context, e *QueueEntry) error
	GetEntry(ctx context.Context, id uuid.UUID) (*QueueEntry, error)
	UpdateEntry(ctx context.Context, e *QueueEntry) error

	// HasActiveEntry covers every non-terminal status, in_test included.
	HasActiveEntry(ctx context.Context, queueID, patientID uuid.UUID) (bool, error)
	// ListActiveEntries returns waiting and in_progress entries ordered
	// by position.
	ListActiveEntries(ctx context.Context, queueID uuid.UUID) ([]*QueueEntry, error)
	// ListWaitingEntries returns waiting entries ordered by position.
	ListWaitingEntries(ctx context.Context, queueID uuid.UUID) ([]*QueueEntry, error)

	// ShiftPositions adds delta to the position of every active entry
	// with position >= fromPosition.
	ShiftPositions(ctx context.Context, queueID uuid.UUID, fromPosition, delta int) error
	// AssignPositions applies an explicit entry->position mapping.
	AssignPositions(ctx context.Context, queueID uuid.UUID, positions map[uuid.UUID]int) error
	// UpdateETAs applies an explicit entry->eta mapping.
	UpdateETAs(ctx context.Context, queueID uuid.UUID, etas map[uuid.UUID]time.Time) error

	// ListStaleCalled returns in_progress entries called before cutoff
	// that never started consultation.
	ListStaleCalled(ctx context.Context, queueID uuid.UUID, cutoff time.Time) ([]*QueueEntry, error)
	// MoveEntry reassigns an entry to another queue at the given position.
	MoveEntry(ctx context.Context, entryID, toQueueID uuid.UUID, position int) error

	// ListEntriesJoinedOn returns all entries (any status) joined on the
	// given calendar day, for analytics rollups.
	ListEntriesJoinedOn(ctx context.Context, queueID uuid.UUID, day time.Time) ([]*QueueEntry, error)
}
