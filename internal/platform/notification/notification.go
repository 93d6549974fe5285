// Package notification records outbound notification requests. Delivery
// (SMS/email/push transport, retries) belongs to a separate system; the
// scheduling engines only ask for a message to be sent and never wait
// on the outcome.
package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var errFailSubmit = errors.New("notification submission failed")

// Type classifies what a notification is about.
type Type string

const (
	TypeQueueUpdate         Type = "queue_update"
	TypeDelayAlert          Type = "delay_alert"
	TypeTestReady           Type = "test_ready"
	TypeScheduleError       Type = "schedule_error"
	TypeAppointmentReminder Type = "appointment_reminder"
	TypeTestCancelled       Type = "test_cancelled"
)

// Channel is the requested delivery channel.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

// Request is one pending notification request (outbox row).
type Request struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Type      Type      `db:"type" json:"type"`
	Title     string    `db:"title" json:"title"`
	Message   string    `db:"message" json:"message"`
	Channel   Channel   `db:"channel" json:"channel"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Notifier is what the scheduling engines depend on.
type Notifier interface {
	Request(ctx context.Context, userID uuid.UUID, t Type, title, message string, ch Channel) error
}

// Repository persists notification requests.
type Repository interface {
	Create(ctx context.Context, r *Request) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*Request, error)
}

// Service is the production Notifier: it writes a pending outbox row
// per request and leaves dispatch to the delivery system.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Request(ctx context.Context, userID uuid.UUID, t Type, title, message string, ch Channel) error {
	return s.repo.Create(ctx, &Request{
		UserID:  userID,
		Type:    t,
		Title:   title,
		Message: message,
		Channel: ch,
	})
}

// Mock records requested notifications for tests.
type Mock struct {
	mu         sync.Mutex
	requests   []Request
	ShouldFail bool
}

func (m *Mock) Request(_ context.Context, userID uuid.UUID, t Type, title, message string, ch Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errFailSubmit
	}
	m.requests = append(m.requests, Request{
		UserID:  userID,
		Type:    t,
		Title:   title,
		Message: message,
		Channel: ch,
	})
	return nil
}

// Requests returns a copy of all recorded requests.
func (m *Mock) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// ByType returns recorded requests of the given type.
func (m *Mock) ByType(t Type) []Request {
	var out []Request
	for _, r := range m.Requests() {
		if r.Type == t {
			out = append(out, r)
		}
	}
	return out
}

// Reset clears recorded requests.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}
