package queueing

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/smartqueue/smartqueue/internal/domain/directory"
	"github.com/smartqueue/smartqueue/internal/platform/notification"
)

type memRepo struct {
	queues  map[uuid.UUID]*Queue
	entries map[uuid.UUID]*QueueEntry
}

func newMemRepo() *memRepo {
	return &memRepo{
		queues:  make(map[uuid.UUID]*Queue),
		entries: make(map[uuid.UUID]*QueueEntry),
	}
}

func (m *memRepo) CreateQueue(_ context.Context, q *Queue) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	m.queues[q.ID] = q
	return nil
}

func (m *memRepo) GetQueue(_ context.Context, id uuid.UUID) (*Queue, error) {
	q, ok := m.queues[id]
	if !ok {
		return nil, ErrNotFound
	}
	return q, nil
}

func (m *memRepo) ListActiveQueues(_ context.Context) ([]*Queue, error) {
	var out []*Queue
	for _, q := range m.queues {
		if q.IsActive {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memRepo) ListActiveQueuesByDepartment(_ context.Context, departmentID uuid.UUID) ([]*Queue, error) {
	var out []*Queue
	for _, q := range m.queues {
		if q.IsActive && q.DepartmentID == departmentID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memRepo) CreateEntry(_ context.Context, e *QueueEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	cp := *e
	m.entries[e.ID] = &cp
	return nil
}

func (m *memRepo) GetEntry(_ context.Context, id uuid.UUID) (*QueueEntry, error) {
	e, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memRepo) UpdateEntry(_ context.Context, e *QueueEntry) error {
	if _, ok := m.entries[e.ID]; !ok {
		return ErrNotFound
	}
	cp := *e
	m.entries[e.ID] = &cp
	return nil
}

func (m *memRepo) HasActiveEntry(_ context.Context, queueID, patientID uuid.UUID) (bool, error) {
	for _, e := range m.entries {
		if e.QueueID == queueID && e.PatientID == patientID && !e.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) listByStatus(queueID uuid.UUID, match func(EntryStatus) bool) []*QueueEntry {
	var out []*QueueEntry
	for _, e := range m.entries {
		if e.QueueID == queueID && match(e.Status) {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func (m *memRepo) ListActiveEntries(_ context.Context, queueID uuid.UUID) ([]*QueueEntry, error) {
	return m.listByStatus(queueID, EntryStatus.Active), nil
}

func (m *memRepo) ListWaitingEntries(_ context.Context, queueID uuid.UUID) ([]*QueueEntry, error) {
	return m.listByStatus(queueID, func(s EntryStatus) bool { return s == StatusWaiting }), nil
}

func (m *memRepo) ShiftPositions(_ context.Context, queueID uuid.UUID, fromPosition, delta int) error {
	for _, e := range m.entries {
		if e.QueueID == queueID && e.Status.Active() && e.Position >= fromPosition {
			e.Position += delta
		}
	}
	return nil
}

func (m *memRepo) AssignPositions(_ context.Context, queueID uuid.UUID, positions map[uuid.UUID]int) error {
	for id, pos := range positions {
		if e, ok := m.entries[id]; ok && e.QueueID == queueID {
			e.Position = pos
		}
	}
	return nil
}

func (m *memRepo) UpdateETAs(_ context.Context, queueID uuid.UUID, etas map[uuid.UUID]time.Time) error {
	for id, eta := range etas {
		if e, ok := m.entries[id]; ok && e.QueueID == queueID {
			t := eta
			e.ETA = &t
		}
	}
	return nil
}

func (m *memRepo) ListStaleCalled(_ context.Context, queueID uuid.UUID, cutoff time.Time) ([]*QueueEntry, error) {
	var out []*QueueEntry
	for _, e := range m.entries {
		if e.QueueID == queueID && e.Status == StatusInProgress &&
			e.ConsultationStart == nil && e.CalledAt != nil && !e.CalledAt.After(cutoff) {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (m *memRepo) MoveEntry(_ context.Context, entryID, toQueueID uuid.UUID, position int) error {
	e, ok := m.entries[entryID]
	if !ok {
		return ErrNotFound
	}
	e.QueueID = toQueueID
	e.Position = position
	return nil
}

func (m *memRepo) ListEntriesJoinedOn(_ context.Context, queueID uuid.UUID, day time.Time) ([]*QueueEntry, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)
	var out []*QueueEntry
	for _, e := range m.entries {
		if e.QueueID == queueID && !e.JoinedAt.Before(start) && e.JoinedAt.Before(end) {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

type stubDirectory struct {
	patients map[uuid.UUID]*directory.Patient
	staff    []*directory.Staff
}

func (d *stubDirectory) AvailableStaff(_ context.Context, _ uuid.UUID, _ time.Time) ([]*directory.Staff, error) {
	return d.staff, nil
}

func (d *stubDirectory) Patient(_ context.Context, id uuid.UUID) (*directory.Patient, error) {
	p, ok := d.patients[id]
	if !ok {
		return nil, directory.ErrPatientNotFound
	}
	return p, nil
}

type fixture struct {
	repo     *memRepo
	dir      *stubDirectory
	notifier *notification.Mock
	svc      *Service
	queue    *Queue
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo: newMemRepo(),
		dir: &stubDirectory{
			patients: make(map[uuid.UUID]*directory.Patient),
			staff:    []*directory.Staff{{ID: uuid.New(), AvgConsultationMinutes: 10}},
		},
		notifier: &notification.Mock{},
		now:      time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(f.repo, f.dir, f.notifier, nil, DefaultPolicy(), zerolog.Nop())
	f.svc.now = func() time.Time { return f.now }

	f.queue = &Queue{DepartmentID: uuid.New(), Name: "General OPD", IsActive: true, Capacity: 10, AvgProcessingMinutes: 15}
	if err := f.svc.CreateQueue(context.Background(), f.queue); err != nil {
		t.Fatalf("CreateQueue: %v", err)
	}
	return f
}

func (f *fixture) addPatient(tier directory.Tier) uuid.UUID {
	p := &directory.Patient{ID: uuid.New(), UserID: uuid.New(), Tier: tier}
	f.dir.patients[p.ID] = p
	return p.ID
}

func (f *fixture) admit(t *testing.T, tier directory.Tier) *QueueEntry {
	t.Helper()
	entry, err := f.svc.Admit(context.Background(), f.queue.ID, f.addPatient(tier))
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	return entry
}

// checkDense asserts active positions form exactly 1..N.
func checkDense(t *testing.T, repo *memRepo, queueID uuid.UUID) {
	t.Helper()
	active, _ := repo.ListActiveEntries(context.Background(), queueID)
	for i, e := range active {
		if e.Position != i+1 {
			t.Fatalf("positions not dense: index %d has position %d (of %d active)", i, e.Position, len(active))
		}
	}
}

func TestAdmit_AppendsAtTail(t *testing.T) {
	f := newFixture(t)

	first := f.admit(t, directory.TierWalkIn)
	second := f.admit(t, directory.TierAppointment)

	if first.Position != 1 || second.Position != 2 {
		t.Fatalf("expected positions 1,2; got %d,%d", first.Position, second.Position)
	}
	checkDense(t, f.repo, f.queue.ID)
}

func TestAdmit_EmergencyTakesFront(t *testing.T) {
	f := newFixture(t)

	w1 := f.admit(t, directory.TierWalkIn)
	w2 := f.admit(t, directory.TierWalkIn)
	em := f.admit(t, directory.TierEmergency)

	if em.Position != 1 {
		t.Fatalf("emergency entry at position %d, want 1", em.Position)
	}
	got1, _ := f.repo.GetEntry(context.Background(), w1.ID)
	got2, _ := f.repo.GetEntry(context.Background(), w2.ID)
	if got1.Position != 2 || got2.Position != 3 {
		t.Fatalf("walk-ins at %d,%d, want 2,3", got1.Position, got2.Position)
	}
	checkDense(t, f.repo, f.queue.ID)

	alerts := f.notifier.ByType(notification.TypeDelayAlert)
	if len(alerts) != 2 {
		t.Fatalf("expected one delay alert per displaced patient, got %d", len(alerts))
	}

	est, err := f.svc.EstimateWaitTime(context.Background(), f.queue.ID)
	if err != nil {
		t.Fatalf("EstimateWaitTime: %v", err)
	}
	// one staff member at 10 min average: 10*(0.7 + 1.2 + 1.2) = 31
	if est != 31 {
		t.Fatalf("estimate %d, want 31", est)
	}
}

func TestAdmit_Preconditions(t *testing.T) {
	f := newFixture(t)

	patientID := f.addPatient(directory.TierWalkIn)
	if _, err := f.svc.Admit(context.Background(), f.queue.ID, patientID); err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if _, err := f.svc.Admit(context.Background(), f.queue.ID, patientID); !errors.Is(err, ErrAlreadyQueued) {
		t.Fatalf("expected ErrAlreadyQueued, got %v", err)
	}

	f.queue.Capacity = 1
	if _, err := f.svc.Admit(context.Background(), f.queue.ID, f.addPatient(directory.TierWalkIn)); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	f.queue.IsActive = false
	if _, err := f.svc.Admit(context.Background(), f.queue.ID, f.addPatient(directory.TierWalkIn)); !errors.Is(err, ErrQueueInactive) {
		t.Fatalf("expected ErrQueueInactive, got %v", err)
	}
}

func TestCallNext(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.CallNext(context.Background(), f.queue.ID); !errors.Is(err, ErrEmptyQueue) {
		t.Fatalf("expected ErrEmptyQueue, got %v", err)
	}

	first := f.admit(t, directory.TierWalkIn)
	f.admit(t, directory.TierWalkIn)
	f.now = f.now.Add(12 * time.Minute)

	called, err := f.svc.CallNext(context.Background(), f.queue.ID)
	if err != nil {
		t.Fatalf("CallNext: %v", err)
	}
	if called.ID != first.ID {
		t.Fatal("expected lowest-position entry to be called")
	}
	if called.Status != StatusInProgress || called.CalledAt == nil {
		t.Fatalf("bad state after call: %s", called.Status)
	}
	if called.Position != 1 {
		t.Fatalf("called entry should keep its position, got %d", called.Position)
	}
	if called.ActualWaitMinutes == nil || *called.ActualWaitMinutes != 12 {
		t.Fatalf("actual wait = %v, want 12", called.ActualWaitMinutes)
	}
	checkDense(t, f.repo, f.queue.ID)
}

func TestStartConsultation(t *testing.T) {
	f := newFixture(t)
	entry := f.admit(t, directory.TierWalkIn)

	if _, err := f.svc.StartConsultation(context.Background(), entry.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for waiting entry, got %v", err)
	}

	called, _ := f.svc.CallNext(context.Background(), f.queue.ID)
	started, err := f.svc.StartConsultation(context.Background(), called.ID)
	if err != nil {
		t.Fatalf("StartConsultation: %v", err)
	}
	if started.ConsultationStart == nil {
		t.Fatal("consultation start not stamped")
	}
	if _, err := f.svc.StartConsultation(context.Background(), called.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on second start, got %v", err)
	}
}

func TestCompleteConsultation_CompactsPositions(t *testing.T) {
	f := newFixture(t)

	f.admit(t, directory.TierWalkIn)
	behind := f.admit(t, directory.TierWalkIn)

	called, _ := f.svc.CallNext(context.Background(), f.queue.ID)
	done, err := f.svc.CompleteConsultation(context.Background(), called.ID)
	if err != nil {
		t.Fatalf("CompleteConsultation: %v", err)
	}
	if done.Status != StatusCompleted || done.CompletedAt == nil {
		t.Fatalf("bad state after complete: %s", done.Status)
	}

	got, _ := f.repo.GetEntry(context.Background(), behind.ID)
	if got.Position != 1 {
		t.Fatalf("trailing entry at %d, want 1", got.Position)
	}
	checkDense(t, f.repo, f.queue.ID)

	if _, err := f.svc.CompleteConsultation(context.Background(), done.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestCancel(t *testing.T) {
	f := newFixture(t)

	first := f.admit(t, directory.TierWalkIn)
	second := f.admit(t, directory.TierWalkIn)

	cancelled, err := f.svc.Cancel(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Fatalf("status %s, want cancelled", cancelled.Status)
	}
	got, _ := f.repo.GetEntry(context.Background(), second.ID)
	if got.Position != 1 {
		t.Fatalf("remaining entry at %d, want 1", got.Position)
	}

	called, _ := f.svc.CallNext(context.Background(), f.queue.ID)
	if _, err := f.svc.Cancel(context.Background(), called.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for in_progress cancel, got %v", err)
	}
}

func TestDivertAndReturn(t *testing.T) {
	f := newFixture(t)

	diverted := f.admit(t, directory.TierAppointment)
	waiting := f.admit(t, directory.TierWalkIn)

	called, _ := f.svc.CallNext(context.Background(), f.queue.ID)
	inTest, err := f.svc.DivertToLab(context.Background(), called.ID)
	if err != nil {
		t.Fatalf("DivertToLab: %v", err)
	}
	if inTest.Status != StatusInTest || inTest.CompletedAt != nil {
		t.Fatalf("bad state after divert: %s", inTest.Status)
	}
	got, _ := f.repo.GetEntry(context.Background(), waiting.ID)
	if got.Position != 1 {
		t.Fatalf("waiting entry at %d after divert, want 1", got.Position)
	}

	back, err := f.svc.ReturnFromLab(context.Background(), diverted.ID)
	if err != nil {
		t.Fatalf("ReturnFromLab: %v", err)
	}
	if back.Status != StatusWaiting || back.Position != 1 {
		t.Fatalf("returned entry status=%s position=%d, want waiting/1", back.Status, back.Position)
	}
	got, _ = f.repo.GetEntry(context.Background(), waiting.ID)
	if got.Position != 2 {
		t.Fatalf("displaced entry at %d, want 2", got.Position)
	}
	checkDense(t, f.repo, f.queue.ID)

	if _, err := f.svc.ReturnFromLab(context.Background(), diverted.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second return must fail with ErrInvalidTransition, got %v", err)
	}
}

func TestMarkNoShow(t *testing.T) {
	f := newFixture(t)

	f.admit(t, directory.TierWalkIn)
	behind := f.admit(t, directory.TierWalkIn)

	called, _ := f.svc.CallNext(context.Background(), f.queue.ID)

	// inside the grace window
	f.now = f.now.Add(5 * time.Minute)
	if _, err := f.svc.MarkNoShow(context.Background(), called.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition inside grace window, got %v", err)
	}

	f.now = f.now.Add(6 * time.Minute)
	evicted, err := f.svc.MarkNoShow(context.Background(), called.ID)
	if err != nil {
		t.Fatalf("MarkNoShow: %v", err)
	}
	if evicted.Status != StatusNoShow || evicted.CompletedAt == nil {
		t.Fatalf("bad state after no-show: %s", evicted.Status)
	}
	got, _ := f.repo.GetEntry(context.Background(), behind.ID)
	if got.Position != 1 {
		t.Fatalf("trailing entry at %d after no-show, want 1", got.Position)
	}
	checkDense(t, f.repo, f.queue.ID)

	if n := countMissedAppointment(f.notifier, evicted.PatientUserID); n != 1 {
		t.Fatalf("evicted patient got %d missed-appointment notices, want 1", n)
	}
}

// countMissedAppointment counts eviction notices sent to one patient.
func countMissedAppointment(m *notification.Mock, userID uuid.UUID) int {
	n := 0
	for _, r := range m.Requests() {
		if r.Title == "Missed Appointment" && r.UserID == userID {
			n++
		}
	}
	return n
}

func TestMarkNoShow_ConsultationStartedClearsWindow(t *testing.T) {
	f := newFixture(t)
	f.admit(t, directory.TierWalkIn)

	called, _ := f.svc.CallNext(context.Background(), f.queue.ID)
	if _, err := f.svc.StartConsultation(context.Background(), called.ID); err != nil {
		t.Fatalf("StartConsultation: %v", err)
	}

	f.now = f.now.Add(time.Hour)
	if _, err := f.svc.MarkNoShow(context.Background(), called.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("started consultation must not be evictable, got %v", err)
	}
}

func TestSweepNoShows(t *testing.T) {
	f := newFixture(t)

	f.admit(t, directory.TierWalkIn)
	f.admit(t, directory.TierWalkIn)

	if _, err := f.svc.CallNext(context.Background(), f.queue.ID); err != nil {
		t.Fatalf("CallNext: %v", err)
	}
	f.now = f.now.Add(15 * time.Minute)

	evicted, err := f.svc.SweepNoShows(context.Background())
	if err != nil {
		t.Fatalf("SweepNoShows: %v", err)
	}
	if evicted != 1 {
		t.Fatalf("evicted %d, want 1", evicted)
	}
	checkDense(t, f.repo, f.queue.ID)

	missed := 0
	for _, r := range f.notifier.Requests() {
		if r.Title == "Missed Appointment" {
			missed++
		}
	}
	if missed != 1 {
		t.Fatalf("sweep sent %d missed-appointment notices, want 1", missed)
	}

	// idempotent: nothing left to evict
	evicted, err = f.svc.SweepNoShows(context.Background())
	if err != nil || evicted != 0 {
		t.Fatalf("second sweep evicted %d (err %v), want 0", evicted, err)
	}
}

func TestReorderByPriority_Idempotent(t *testing.T) {
	f := newFixture(t)

	w := f.admit(t, directory.TierWalkIn)
	a := f.admit(t, directory.TierAppointment)
	e := f.admit(t, directory.TierEmergency)
	a2 := f.admit(t, directory.TierAppointment)

	// emergency admit already put e at 1; scramble by reordering
	if err := f.svc.ReorderByPriority(context.Background(), f.queue.ID); err != nil {
		t.Fatalf("ReorderByPriority: %v", err)
	}

	want := map[uuid.UUID]int{e.ID: 1, a.ID: 2, a2.ID: 3, w.ID: 4}
	snapshot := func() map[uuid.UUID]int {
		got := make(map[uuid.UUID]int)
		waiting, _ := f.repo.ListWaitingEntries(context.Background(), f.queue.ID)
		for _, en := range waiting {
			got[en.ID] = en.Position
		}
		return got
	}

	first := snapshot()
	for id, pos := range want {
		if first[id] != pos {
			t.Fatalf("entry %s at %d, want %d", id, first[id], pos)
		}
	}

	if err := f.svc.ReorderByPriority(context.Background(), f.queue.ID); err != nil {
		t.Fatalf("ReorderByPriority (second): %v", err)
	}
	second := snapshot()
	for id, pos := range first {
		if second[id] != pos {
			t.Fatalf("reorder not idempotent: entry %s moved %d -> %d", id, pos, second[id])
		}
	}
}

func TestReorderByPriority_KeepsArrivalOrderWithinTier(t *testing.T) {
	f := newFixture(t)

	// frozen clock: every entry shares the same join time, so the
	// within-tier order must come from the admission sequence alone
	w1 := f.admit(t, directory.TierWalkIn)
	a1 := f.admit(t, directory.TierAppointment)
	w2 := f.admit(t, directory.TierWalkIn)
	a2 := f.admit(t, directory.TierAppointment)
	w3 := f.admit(t, directory.TierWalkIn)

	want := map[uuid.UUID]int{a1.ID: 1, a2.ID: 2, w1.ID: 3, w2.ID: 4, w3.ID: 5}
	for run := 0; run < 3; run++ {
		if err := f.svc.ReorderByPriority(context.Background(), f.queue.ID); err != nil {
			t.Fatalf("ReorderByPriority run %d: %v", run, err)
		}
		waiting, _ := f.repo.ListWaitingEntries(context.Background(), f.queue.ID)
		for _, en := range waiting {
			if en.Position != want[en.ID] {
				t.Fatalf("run %d: entry %s at %d, want %d", run, en.ID, en.Position, want[en.ID])
			}
		}
	}
}

func TestETARefresh_ScalesWithPosition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e1 := f.admit(t, directory.TierWalkIn)
	e2 := f.admit(t, directory.TierWalkIn)
	e3 := f.admit(t, directory.TierWalkIn)

	eta := func(id uuid.UUID) time.Time {
		t.Helper()
		e, err := f.repo.GetEntry(ctx, id)
		if err != nil || e.ETA == nil {
			t.Fatalf("entry %s has no eta (err %v)", id, err)
		}
		return *e.ETA
	}

	// one staff member at 10 min average, walk-in weight 1.2:
	// estimate 36 min over 3 active, so position p waits 12p minutes
	for i, id := range []uuid.UUID{e1.ID, e2.ID, e3.ID} {
		want := f.now.Add(time.Duration(12*(i+1)) * time.Minute)
		if got := eta(id); !got.Equal(want) {
			t.Fatalf("position %d eta %v, want %v", i+1, got, want)
		}
	}

	if _, err := f.svc.CallNext(ctx, f.queue.ID); err != nil {
		t.Fatalf("CallNext: %v", err)
	}
	e4 := f.admit(t, directory.TierWalkIn)

	// three waiting out of four active: estimate still 36, scaled p/4
	checks := map[uuid.UUID]time.Time{
		e2.ID: f.now.Add(18 * time.Minute),
		e3.ID: f.now.Add(27 * time.Minute),
		e4.ID: f.now.Add(36 * time.Minute),
	}
	for id, want := range checks {
		if got := eta(id); !got.Equal(want) {
			t.Fatalf("entry %s eta %v, want %v", id, got, want)
		}
	}

	// the called entry keeps its last eta; refresh writes waiting only
	if got := eta(e1.ID); !got.Equal(f.now.Add(12 * time.Minute)) {
		t.Fatalf("in_progress eta %v, want untouched %v", got, f.now.Add(12*time.Minute))
	}
}

func TestEstimateWaitTime_NoStaff(t *testing.T) {
	f := newFixture(t)
	f.dir.staff = nil
	f.admit(t, directory.TierWalkIn)

	est, err := f.svc.EstimateWaitTime(context.Background(), f.queue.ID)
	if err != nil {
		t.Fatalf("EstimateWaitTime: %v", err)
	}
	if est != UnknownWaitMinutes {
		t.Fatalf("estimate %d, want sentinel %d", est, UnknownWaitMinutes)
	}
}

func TestNotifyNearFront(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 4; i++ {
		f.admit(t, directory.TierWalkIn)
	}

	notified, err := f.svc.NotifyNearFront(context.Background())
	if err != nil {
		t.Fatalf("NotifyNearFront: %v", err)
	}
	if notified != 2 {
		t.Fatalf("notified %d, want 2", notified)
	}
}

func TestLoadBalance(t *testing.T) {
	f := newFixture(t)

	busy := f.queue
	quiet := &Queue{DepartmentID: busy.DepartmentID, Name: "OPD Room 2", IsActive: true, Capacity: 10, AvgProcessingMinutes: 15}
	if err := f.svc.CreateQueue(context.Background(), quiet); err != nil {
		t.Fatalf("CreateQueue: %v", err)
	}

	for i := 0; i < 8; i++ {
		f.admit(t, directory.TierWalkIn)
	}

	moved, err := f.svc.LoadBalance(context.Background(), busy.DepartmentID)
	if err != nil {
		t.Fatalf("LoadBalance: %v", err)
	}
	if moved != 2 {
		t.Fatalf("moved %d, want 2", moved)
	}

	busyActive, _ := f.repo.ListActiveEntries(context.Background(), busy.ID)
	quietActive, _ := f.repo.ListActiveEntries(context.Background(), quiet.ID)
	if len(busyActive) != 6 || len(quietActive) != 2 {
		t.Fatalf("after balance: busy=%d quiet=%d, want 6/2", len(busyActive), len(quietActive))
	}
	checkDense(t, f.repo, busy.ID)
	checkDense(t, f.repo, quiet.ID)

	if got := len(f.notifier.ByType(notification.TypeQueueUpdate)); got != 2 {
		t.Fatalf("expected 2 move notifications, got %d", got)
	}
}

func TestLoadBalance_BelowThresholdNoMove(t *testing.T) {
	f := newFixture(t)

	quiet := &Queue{DepartmentID: f.queue.DepartmentID, Name: "OPD Room 2", IsActive: true, Capacity: 10, AvgProcessingMinutes: 15}
	if err := f.svc.CreateQueue(context.Background(), quiet); err != nil {
		t.Fatalf("CreateQueue: %v", err)
	}
	for i := 0; i < 4; i++ {
		f.admit(t, directory.TierWalkIn)
	}

	moved, err := f.svc.LoadBalance(context.Background(), f.queue.DepartmentID)
	if err != nil {
		t.Fatalf("LoadBalance: %v", err)
	}
	if moved != 0 {
		t.Fatalf("moved %d, want 0 below threshold", moved)
	}
}
