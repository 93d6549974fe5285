package analytics

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists snapshots. Upserts key on (entity, date).
type Repository interface {
	UpsertQueueSnapshot(ctx context.Context, s *QueueSnapshot) error
	UpsertLabSnapshot(ctx context.Context, s *LabSnapshot) error
	RecentQueueSnapshots(ctx context.Context, queueID uuid.UUID, since time.Time) ([]*QueueSnapshot, error)
	RecentLabSnapshots(ctx context.Context, departmentID uuid.UUID, since time.Time) ([]*LabSnapshot, error)
}
