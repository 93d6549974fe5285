package queueing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/smartqueue/smartqueue/internal/domain/directory"
	"github.com/smartqueue/smartqueue/internal/platform/notification"
)

// Directory is the slice of the resource directory the queue engine
// consumes.
type Directory interface {
	AvailableStaff(ctx context.Context, departmentID uuid.UUID, at time.Time) ([]*directory.Staff, error)
	Patient(ctx context.Context, id uuid.UUID) (*directory.Patient, error)
}

// TxRunner wraps a function in a storage transaction. The Postgres
// wiring passes db.WithTx; tests pass nil for straight-through calls.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// Policy carries the tunable scheduling constants.
type Policy struct {
	NoShowGrace          time.Duration
	LoadBalanceThreshold int
	LoadBalanceBatch     int
	TierWeights          map[directory.Tier]float64
}

// DefaultPolicy returns the reference constants.
func DefaultPolicy() Policy {
	return Policy{
		NoShowGrace:          10 * time.Minute,
		LoadBalanceThreshold: 5,
		LoadBalanceBatch:     2,
		TierWeights: map[directory.Tier]float64{
			directory.TierEmergency:   0.7,
			directory.TierAppointment: 1.0,
			directory.TierWalkIn:      1.2,
		},
	}
}

func (p Policy) weightFor(tier directory.Tier) float64 {
	if w, ok := p.TierWeights[tier]; ok {
		return w
	}
	return 1.0
}

// Service implements queue admission, ordering, and lifecycle
// transitions. All position mutations run under the owning queue's
// lock and, when a TxRunner is wired, inside one transaction.
type Service struct {
	repo     Repository
	dir      Directory
	notifier notification.Notifier
	runTx    TxRunner
	policy   Policy
	locks    *lockRegistry
	log      zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, dir Directory, notifier notification.Notifier, runTx TxRunner, policy Policy, log zerolog.Logger) *Service {
	if runTx == nil {
		runTx = func(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }
	}
	return &Service{
		repo:     repo,
		dir:      dir,
		notifier: notifier,
		runTx:    runTx,
		policy:   policy,
		locks:    newLockRegistry(),
		log:      log.With().Str("component", "queueing").Logger(),
		now:      time.Now,
	}
}

// CreateQueue validates and stores a new queue.
func (s *Service) CreateQueue(ctx context.Context, q *Queue) error {
	if q.Name == "" {
		return fmt.Errorf("queue name is required")
	}
	if q.Capacity <= 0 {
		return fmt.Errorf("queue capacity must be positive")
	}
	if q.AvgProcessingMinutes <= 0 {
		q.AvgProcessingMinutes = 15
	}
	return s.repo.CreateQueue(ctx, q)
}

// Queue returns a queue by ID.
func (s *Service) Queue(ctx context.Context, id uuid.UUID) (*Queue, error) {
	return s.repo.GetQueue(ctx, id)
}

// Entry returns an entry by ID.
func (s *Service) Entry(ctx context.Context, id uuid.UUID) (*QueueEntry, error) {
	return s.repo.GetEntry(ctx, id)
}

// Admit creates a waiting entry for the patient. Emergency patients
// take position 1 and shift everyone else back one slot; all others
// append at the tail. Displaced patients each get one delay alert.
func (s *Service) Admit(ctx context.Context, queueID, patientID uuid.UUID) (*QueueEntry, error) {
	unlock := s.locks.lock(queueID)
	defer unlock()

	patient, err := s.dir.Patient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("resolve patient: %w", err)
	}

	var entry *QueueEntry
	var displaced []*QueueEntry
	err = s.runTx(ctx, func(ctx context.Context) error {
		q, err := s.repo.GetQueue(ctx, queueID)
		if err != nil {
			return err
		}
		if !q.IsActive {
			return ErrQueueInactive
		}
		queued, err := s.repo.HasActiveEntry(ctx, queueID, patientID)
		if err != nil {
			return err
		}
		if queued {
			return ErrAlreadyQueued
		}
		active, err := s.repo.ListActiveEntries(ctx, queueID)
		if err != nil {
			return err
		}
		if len(active) >= q.Capacity {
			return ErrQueueFull
		}

		position := len(active) + 1
		if patient.Tier == directory.TierEmergency {
			for _, e := range active {
				if e.Status == StatusWaiting {
					displaced = append(displaced, e)
				}
			}
			if err := s.repo.ShiftPositions(ctx, queueID, 1, 1); err != nil {
				return err
			}
			position = 1
		}

		entry = &QueueEntry{
			QueueID:       queueID,
			PatientID:     patient.ID,
			PatientUserID: patient.UserID,
			Tier:          patient.Tier,
			Status:        StatusWaiting,
			Position:      position,
			JoinedAt:      s.now().UTC(),
		}
		return s.repo.CreateEntry(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.notifyDisplaced(ctx, displaced)
	s.refreshETAs(ctx, queueID)
	return entry, nil
}

// ReorderByPriority re-linearizes the queue's waiting entries:
// emergency first, then appointment, then walk-in, arrival order
// preserved within each tier. Running it twice yields the same
// assignment.
func (s *Service) ReorderByPriority(ctx context.Context, queueID uuid.UUID) error {
	unlock := s.locks.lock(queueID)
	defer unlock()

	return s.runTx(ctx, func(ctx context.Context) error {
		waiting, err := s.repo.ListWaitingEntries(ctx, queueID)
		if err != nil {
			return err
		}
		if len(waiting) < 2 {
			return nil
		}

		slots := make([]int, len(waiting))
		for i, e := range waiting {
			slots[i] = e.Position
		}
		sort.Ints(slots)

		ordered := make([]*QueueEntry, len(waiting))
		copy(ordered, waiting)
		// waiting arrives in position order; the stable sort keeps
		// that order for entries with equal tier and join time.
		sort.SliceStable(ordered, func(i, j int) bool {
			ri, rj := tierRank[ordered[i].Tier], tierRank[ordered[j].Tier]
			if ri != rj {
				return ri < rj
			}
			return ordered[i].JoinedAt.Before(ordered[j].JoinedAt)
		})

		positions := make(map[uuid.UUID]int, len(ordered))
		for i, e := range ordered {
			positions[e.ID] = slots[i]
		}
		return s.repo.AssignPositions(ctx, queueID, positions)
	})
}

// EstimateWaitTime returns the queue's current wait estimate in
// minutes. With no staff on shift it returns UnknownWaitMinutes.
func (s *Service) EstimateWaitTime(ctx context.Context, queueID uuid.UUID) (int, error) {
	q, err := s.repo.GetQueue(ctx, queueID)
	if err != nil {
		return 0, err
	}
	staff, err := s.dir.AvailableStaff(ctx, q.DepartmentID, s.now())
	if err != nil {
		return 0, err
	}
	if len(staff) == 0 {
		return UnknownWaitMinutes, nil
	}
	waiting, err := s.repo.ListWaitingEntries(ctx, queueID)
	if err != nil {
		return 0, err
	}
	if len(waiting) == 0 {
		return 0, nil
	}

	var avgConsult float64
	for _, st := range staff {
		avgConsult += float64(st.AvgConsultationMinutes)
	}
	avgConsult /= float64(len(staff))
	if avgConsult <= 0 {
		avgConsult = float64(q.AvgProcessingMinutes)
	}

	var cumulative float64
	for _, e := range waiting {
		cumulative += avgConsult * s.policy.weightFor(e.Tier)
	}
	return int(math.Round(cumulative / float64(len(staff)))), nil
}

// CallNext promotes the lowest-position waiting entry to in_progress,
// stamping called_at and the realized wait. The entry keeps its
// position until it leaves active accounting.
func (s *Service) CallNext(ctx context.Context, queueID uuid.UUID) (*QueueEntry, error) {
	unlock := s.locks.lock(queueID)
	defer unlock()

	var entry *QueueEntry
	err := s.runTx(ctx, func(ctx context.Context) error {
		waiting, err := s.repo.ListWaitingEntries(ctx, queueID)
		if err != nil {
			return err
		}
		if len(waiting) == 0 {
			return ErrEmptyQueue
		}
		entry = waiting[0]
		now := s.now().UTC()
		wait := int(now.Sub(entry.JoinedAt).Minutes())
		entry.Status = StatusInProgress
		entry.CalledAt = &now
		entry.ActualWaitMinutes = &wait
		return s.repo.UpdateEntry(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.request(ctx, entry.PatientUserID, notification.TypeQueueUpdate,
		"You're up", "Please proceed to the consultation room.", notification.ChannelPush)
	return entry, nil
}

// StartConsultation stamps the consultation start on an in_progress
// entry, which closes its no-show window.
func (s *Service) StartConsultation(ctx context.Context, entryID uuid.UUID) (*QueueEntry, error) {
	entry, err := s.repo.GetEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Status != StatusInProgress || entry.ConsultationStart != nil {
		return nil, ErrInvalidTransition
	}
	now := s.now().UTC()
	entry.ConsultationStart = &now
	if err := s.repo.UpdateEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// CompleteConsultation finishes an in_progress entry and compacts the
// positions behind it.
func (s *Service) CompleteConsultation(ctx context.Context, entryID uuid.UUID) (*QueueEntry, error) {
	return s.closeOut(ctx, entryID, StatusCompleted, StatusInProgress)
}

// DivertToLab moves an in_progress entry out of position accounting
// while it undergoes testing. The entry keeps its identity for the
// later return.
func (s *Service) DivertToLab(ctx context.Context, entryID uuid.UUID) (*QueueEntry, error) {
	return s.closeOut(ctx, entryID, StatusInTest, StatusInProgress)
}

// Cancel withdraws a waiting entry and compacts the positions behind it.
func (s *Service) Cancel(ctx context.Context, entryID uuid.UUID) (*QueueEntry, error) {
	return s.closeOut(ctx, entryID, StatusCancelled, StatusWaiting)
}

// closeOut transitions an entry out of active accounting and shifts
// trailing active entries down one slot.
func (s *Service) closeOut(ctx context.Context, entryID uuid.UUID, to, require EntryStatus) (*QueueEntry, error) {
	entry, err := s.repo.GetEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(entry.QueueID)
	defer unlock()

	err = s.runTx(ctx, func(ctx context.Context) error {
		entry, err = s.repo.GetEntry(ctx, entryID)
		if err != nil {
			return err
		}
		if entry.Status != require || !canTransition(entry.Status, to) {
			return ErrInvalidTransition
		}
		vacated := entry.Position
		now := s.now().UTC()
		entry.Status = to
		entry.Position = 0
		if to.Terminal() {
			entry.CompletedAt = &now
		}
		if err := s.repo.UpdateEntry(ctx, entry); err != nil {
			return err
		}
		return s.repo.ShiftPositions(ctx, entry.QueueID, vacated+1, -1)
	})
	if err != nil {
		return nil, err
	}

	s.refreshETAs(ctx, entry.QueueID)
	return entry, nil
}

// ReturnFromLab reinserts an in_test entry at the front of its queue,
// shifting every active entry back one slot. The patient is told they
// are next; displaced patients each get one delay alert.
func (s *Service) ReturnFromLab(ctx context.Context, entryID uuid.UUID) (*QueueEntry, error) {
	entry, err := s.repo.GetEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(entry.QueueID)
	defer unlock()

	var displaced []*QueueEntry
	err = s.runTx(ctx, func(ctx context.Context) error {
		entry, err = s.repo.GetEntry(ctx, entryID)
		if err != nil {
			return err
		}
		if entry.Status != StatusInTest {
			return ErrInvalidTransition
		}
		active, err := s.repo.ListActiveEntries(ctx, entry.QueueID)
		if err != nil {
			return err
		}
		for _, e := range active {
			if e.Status == StatusWaiting {
				displaced = append(displaced, e)
			}
		}
		if err := s.repo.ShiftPositions(ctx, entry.QueueID, 1, 1); err != nil {
			return err
		}
		entry.Status = StatusWaiting
		entry.Position = 1
		return s.repo.UpdateEntry(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.request(ctx, entry.PatientUserID, notification.TypeQueueUpdate,
		"Back in the queue", "Your tests are done. You are next in line.", notification.ChannelPush)
	s.notifyDisplaced(ctx, displaced)
	s.refreshETAs(ctx, entry.QueueID)
	return entry, nil
}

// MarkNoShow evicts an in_progress entry whose patient never showed up
// within the grace window after being called.
func (s *Service) MarkNoShow(ctx context.Context, entryID uuid.UUID) (*QueueEntry, error) {
	entry, err := s.repo.GetEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(entry.QueueID)
	defer unlock()

	err = s.runTx(ctx, func(ctx context.Context) error {
		entry, err = s.repo.GetEntry(ctx, entryID)
		if err != nil {
			return err
		}
		if entry.Status != StatusInProgress || entry.ConsultationStart != nil || entry.CalledAt == nil {
			return ErrInvalidTransition
		}
		if s.now().Sub(*entry.CalledAt) < s.policy.NoShowGrace {
			return ErrInvalidTransition
		}
		vacated := entry.Position
		now := s.now().UTC()
		entry.Status = StatusNoShow
		entry.Position = 0
		entry.CompletedAt = &now
		if err := s.repo.UpdateEntry(ctx, entry); err != nil {
			return err
		}
		return s.repo.ShiftPositions(ctx, entry.QueueID, vacated+1, -1)
	})
	if err != nil {
		return nil, err
	}

	s.request(ctx, entry.PatientUserID, notification.TypeQueueUpdate,
		"Missed Appointment",
		"You were removed from the queue after not responding when called. Please check in again if you still need to be seen.",
		notification.ChannelSMS)
	s.refreshETAs(ctx, entry.QueueID)
	return entry, nil
}

// SweepNoShows evicts stale called entries across every active queue.
// Per-queue failures are collected so one queue cannot block the rest.
func (s *Service) SweepNoShows(ctx context.Context) (int, error) {
	queues, err := s.repo.ListActiveQueues(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-s.policy.NoShowGrace)
	evicted := 0
	var errs []error
	for _, q := range queues {
		stale, err := s.repo.ListStaleCalled(ctx, q.ID, cutoff)
		if err != nil {
			errs = append(errs, fmt.Errorf("queue %s: %w", q.ID, err))
			continue
		}
		for _, e := range stale {
			if _, err := s.MarkNoShow(ctx, e.ID); err != nil {
				if errors.Is(err, ErrInvalidTransition) {
					continue
				}
				errs = append(errs, fmt.Errorf("entry %s: %w", e.ID, err))
				continue
			}
			evicted++
		}
	}
	return evicted, errors.Join(errs...)
}

// NotifyNearFront reminds patients at positions 1 and 2 of every
// active queue that their turn is close.
func (s *Service) NotifyNearFront(ctx context.Context) (int, error) {
	queues, err := s.repo.ListActiveQueues(ctx)
	if err != nil {
		return 0, err
	}
	notified := 0
	var errs []error
	for _, q := range queues {
		waiting, err := s.repo.ListWaitingEntries(ctx, q.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("queue %s: %w", q.ID, err))
			continue
		}
		for _, e := range waiting {
			if e.Position > 2 {
				break
			}
			s.request(ctx, e.PatientUserID, notification.TypeQueueUpdate,
				"Almost your turn", fmt.Sprintf("You are number %d in line.", e.Position),
				notification.ChannelSMS)
			notified++
		}
	}
	return notified, errors.Join(errs...)
}

// LoadBalance moves trailing walk-in patients from overloaded queues
// in the department to the queue with the shortest estimated wait.
// Returns the number of patients moved.
func (s *Service) LoadBalance(ctx context.Context, departmentID uuid.UUID) (int, error) {
	queues, err := s.repo.ListActiveQueuesByDepartment(ctx, departmentID)
	if err != nil {
		return 0, err
	}
	if len(queues) < 2 {
		return 0, nil
	}

	estimates := make(map[uuid.UUID]int, len(queues))
	for _, q := range queues {
		est, err := s.EstimateWaitTime(ctx, q.ID)
		if err != nil {
			return 0, err
		}
		estimates[q.ID] = est
	}

	optimal := queues[0]
	for _, q := range queues[1:] {
		if estimates[q.ID] < estimates[optimal.ID] ||
			(estimates[q.ID] == estimates[optimal.ID] && q.ID.String() < optimal.ID.String()) {
			optimal = q
		}
	}

	sorted := make([]*Queue, len(queues))
	copy(sorted, queues)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID.String() < sorted[j].ID.String() })

	moved := 0
	for _, src := range sorted {
		if src.ID == optimal.ID {
			continue
		}
		n, err := s.rebalancePair(ctx, src, optimal)
		if err != nil {
			return moved, err
		}
		moved += n
	}
	return moved, nil
}

func (s *Service) rebalancePair(ctx context.Context, src, dst *Queue) (int, error) {
	unlock := s.locks.lockPair(src.ID, dst.ID)
	defer unlock()

	var movedPatients []uuid.UUID
	err := s.runTx(ctx, func(ctx context.Context) error {
		srcActive, err := s.repo.ListActiveEntries(ctx, src.ID)
		if err != nil {
			return err
		}
		dstActive, err := s.repo.ListActiveEntries(ctx, dst.ID)
		if err != nil {
			return err
		}
		if len(srcActive)-len(dstActive) <= s.policy.LoadBalanceThreshold {
			return nil
		}

		// Trailing walk-ins first: highest positions move, so waiting
		// entries ahead of them are untouched.
		var candidates []*QueueEntry
		for i := len(srcActive) - 1; i >= 0; i-- {
			e := srcActive[i]
			if e.Status == StatusWaiting && e.Tier == directory.TierWalkIn {
				candidates = append(candidates, e)
			}
			if len(candidates) == s.policy.LoadBalanceBatch {
				break
			}
		}

		dstLen := len(dstActive)
		for _, e := range candidates {
			if dstLen >= dst.Capacity {
				break
			}
			if err := s.repo.ShiftPositions(ctx, src.ID, e.Position+1, -1); err != nil {
				return err
			}
			dstLen++
			if err := s.repo.MoveEntry(ctx, e.ID, dst.ID, dstLen); err != nil {
				return err
			}
			movedPatients = append(movedPatients, e.PatientUserID)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, userID := range movedPatients {
		s.request(ctx, userID, notification.TypeQueueUpdate,
			"Queue change", fmt.Sprintf("You have been moved to %s to be seen sooner.", dst.Name),
			notification.ChannelSMS)
	}
	if len(movedPatients) > 0 {
		s.refreshETAs(ctx, src.ID)
		s.refreshETAs(ctx, dst.ID)
	}
	return len(movedPatients), nil
}

// refreshETAs recomputes stored ETAs for a queue's waiting entries
// with the position-adjusted linear model. Best effort: failures are
// logged, never propagated.
func (s *Service) refreshETAs(ctx context.Context, queueID uuid.UUID) {
	estimate, err := s.EstimateWaitTime(ctx, queueID)
	if err != nil {
		s.log.Warn().Err(err).Str("queue_id", queueID.String()).Msg("eta refresh: estimate failed")
		return
	}
	active, err := s.repo.ListActiveEntries(ctx, queueID)
	if err != nil {
		s.log.Warn().Err(err).Str("queue_id", queueID.String()).Msg("eta refresh: list failed")
		return
	}
	if len(active) == 0 {
		return
	}

	now := s.now().UTC()
	etas := make(map[uuid.UUID]time.Time)
	for _, e := range active {
		if e.Status != StatusWaiting {
			continue
		}
		minutes := float64(estimate) * float64(e.Position) / float64(len(active))
		if minutes < 0 {
			minutes = 0
		}
		etas[e.ID] = now.Add(time.Duration(minutes * float64(time.Minute)))
	}
	if len(etas) == 0 {
		return
	}
	if err := s.repo.UpdateETAs(ctx, queueID, etas); err != nil {
		s.log.Warn().Err(err).Str("queue_id", queueID.String()).Msg("eta refresh: update failed")
	}
}

func (s *Service) notifyDisplaced(ctx context.Context, displaced []*QueueEntry) {
	seen := make(map[uuid.UUID]bool, len(displaced))
	for _, e := range displaced {
		if seen[e.PatientUserID] {
			continue
		}
		seen[e.PatientUserID] = true
		s.request(ctx, e.PatientUserID, notification.TypeDelayAlert,
			"Short delay", "A higher-priority patient was admitted ahead of you. Your wait may be slightly longer.",
			notification.ChannelSMS)
	}
}

// request submits a notification and swallows failures, per the
// fire-and-forget contract.
func (s *Service) request(ctx context.Context, userID uuid.UUID, t notification.Type, title, message string, ch notification.Channel) {
	if err := s.notifier.Request(ctx, userID, t, title, message, ch); err != nil {
		s.log.Warn().Err(err).Str("type", string(t)).Msg("notification request failed")
	}
}
