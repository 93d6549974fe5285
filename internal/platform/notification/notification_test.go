package notification

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

type memRepo struct {
	created []*Request
}

func (m *memRepo) Create(_ context.Context, r *Request) error {
	r.ID = uuid.New()
	r.Status = "pending"
	m.created = append(m.created, r)
	return nil
}

func (m *memRepo) ListByUser(_ context.Context, userID uuid.UUID, limit int) ([]*Request, error) {
	var out []*Request
	for _, r := range m.created {
		if r.UserID == userID && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func TestServiceRecordsPendingRequest(t *testing.T) {
	repo := &memRepo{}
	svc := NewService(repo)
	user := uuid.New()

	err := svc.Request(context.Background(), user, TypeQueueUpdate, "You're Next!", "Please be ready.", ChannelSMS)
	if err != nil {
		t.Fatalf("Request() error: %v", err)
	}
	if len(repo.created) != 1 {
		t.Fatalf("created %d requests, want 1", len(repo.created))
	}
	got := repo.created[0]
	if got.Status != "pending" {
		t.Errorf("status = %q, want pending", got.Status)
	}
	if got.Channel != ChannelSMS || got.Type != TypeQueueUpdate {
		t.Errorf("unexpected request: %+v", got)
	}
}

func TestMockRecordsAndFilters(t *testing.T) {
	m := &Mock{}
	user := uuid.New()
	_ = m.Request(context.Background(), user, TypeDelayAlert, "t", "m", ChannelSMS)
	_ = m.Request(context.Background(), user, TypeTestReady, "t", "m", ChannelEmail)

	if len(m.Requests()) != 2 {
		t.Fatalf("recorded %d, want 2", len(m.Requests()))
	}
	if len(m.ByType(TypeDelayAlert)) != 1 {
		t.Errorf("ByType(delay_alert) = %d, want 1", len(m.ByType(TypeDelayAlert)))
	}

	m.ShouldFail = true
	if err := m.Request(context.Background(), user, TypeDelayAlert, "t", "m", ChannelSMS); err == nil {
		t.Error("expected error when ShouldFail is set")
	}
}
