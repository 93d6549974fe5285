package labs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/smartqueue/smartqueue/internal/domain/directory"
	"github.com/smartqueue/smartqueue/internal/domain/queueing"
	"github.com/smartqueue/smartqueue/internal/platform/notification"
)

// Directory is the slice of the resource directory the matcher consumes.
type Directory interface {
	LabDepartmentFor(ctx context.Context, specialty string) (*directory.Department, error)
	AvailableTechnicians(ctx context.Context, departmentID uuid.UUID, specialization string) ([]*directory.Technician, error)
	AvailableEquipment(ctx context.Context, departmentID uuid.UUID, equipmentType string) ([]*directory.Equipment, error)
	ClaimEquipment(ctx context.Context, id uuid.UUID) error
	ReleaseEquipment(ctx context.Context, id uuid.UUID) error
	Patient(ctx context.Context, id uuid.UUID) (*directory.Patient, error)
}

// QueueFlow is the queue engine surface used for lab diversion and
// reentry.
type QueueFlow interface {
	DivertToLab(ctx context.Context, entryID uuid.UUID) (*queueing.QueueEntry, error)
	ReturnFromLab(ctx context.Context, entryID uuid.UUID) (*queueing.QueueEntry, error)
}

// Policy carries the tunable scheduling constants.
type Policy struct {
	UrgentLead      time.Duration
	RoutineLead     time.Duration
	ConflictWindow  time.Duration
	DefaultDuration int
}

// DefaultPolicy returns the reference constants.
func DefaultPolicy() Policy {
	return Policy{
		UrgentLead:      2 * time.Hour,
		RoutineLead:     4 * time.Hour,
		ConflictWindow:  time.Hour,
		DefaultDuration: 30,
	}
}

// Service implements test ordering, auto-scheduling, and the result
// lifecycle.
type Service struct {
	repo     Repository
	dir      Directory
	queues   QueueFlow
	notifier notification.Notifier
	policy   Policy
	log      zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, dir Directory, queues QueueFlow, notifier notification.Notifier, policy Policy, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		dir:      dir,
		queues:   queues,
		notifier: notifier,
		policy:   policy,
		log:      log.With().Str("component", "labs").Logger(),
		now:      time.Now,
	}
}

// OrderRequest carries the fields of a new test order.
type OrderRequest struct {
	PatientID       uuid.UUID  `json:"patient_id"`
	Category        string     `json:"category"`
	Priority        Priority   `json:"priority"`
	OrderedByUserID uuid.UUID  `json:"ordered_by_user_id"`
	ClinicalNotes   string     `json:"clinical_notes"`
	QueueEntryID    *uuid.UUID `json:"queue_entry_id,omitempty"`
	QueueReentry    bool       `json:"queue_reentry"`
}

// Test returns a test by ID.
func (s *Service) Test(ctx context.Context, id uuid.UUID) (*LabTest, error) {
	return s.repo.GetTest(ctx, id)
}

// OrderTest creates a test in ordered status, diverts the originating
// queue entry if one is given, and attempts auto-scheduling. A failed
// scheduling attempt is not an ordering error; the test stays ordered
// for the maintenance retry.
func (s *Service) OrderTest(ctx context.Context, req OrderRequest) (*LabTest, error) {
	if !ValidCategory(req.Category) {
		return nil, fmt.Errorf("unknown test category %q", req.Category)
	}
	if req.Priority == "" {
		req.Priority = PriorityRoutine
	}
	if !req.Priority.Valid() {
		return nil, fmt.Errorf("unknown priority %q", req.Priority)
	}

	patient, err := s.dir.Patient(ctx, req.PatientID)
	if err != nil {
		return nil, fmt.Errorf("resolve patient: %w", err)
	}
	dept, err := s.dir.LabDepartmentFor(ctx, SpecializationFor(req.Category))
	if err != nil {
		return nil, fmt.Errorf("resolve lab department: %w", err)
	}

	if req.QueueEntryID != nil {
		if _, err := s.queues.DivertToLab(ctx, *req.QueueEntryID); err != nil {
			return nil, fmt.Errorf("divert queue entry: %w", err)
		}
	}

	test := &LabTest{
		PatientID:       patient.ID,
		PatientUserID:   patient.UserID,
		Category:        req.Category,
		Priority:        req.Priority,
		OrderedByUserID: req.OrderedByUserID,
		DepartmentID:    dept.ID,
		Status:          StatusOrdered,
		OrderedAt:       s.now().UTC(),
		DurationMinutes: s.policy.DefaultDuration,
		ClinicalNotes:   req.ClinicalNotes,
		QueueEntryID:    req.QueueEntryID,
		QueueReentry:    req.QueueReentry,
	}
	if err := s.repo.CreateTest(ctx, test); err != nil {
		return nil, err
	}

	if req.QueueEntryID != nil {
		s.request(ctx, test.PatientUserID, notification.TypeTestReady,
			"Lab Test Ordered",
			fmt.Sprintf("You have been sent for %s. Please proceed to %s.", test.Category, dept.Name),
			notification.ChannelSMS)
	}

	if _, err := s.AutoSchedule(ctx, test); err != nil {
		s.log.Warn().Err(err).Str("test_id", test.ID.String()).Msg("auto-schedule failed")
	}
	return test, nil
}

// AutoSchedule places a test according to its priority: stat tests
// grab the first free technician right now, urgent and routine tests
// target a lead-time slot. Returns whether the test was scheduled;
// failure leaves it ordered.
func (s *Service) AutoSchedule(ctx context.Context, test *LabTest) (bool, error) {
	if test.Status != StatusOrdered {
		return false, ErrInvalidTransition
	}

	switch test.Priority {
	case PriorityStat:
		techs, err := s.dir.AvailableTechnicians(ctx, test.DepartmentID, SpecializationFor(test.Category))
		if err != nil {
			return false, err
		}
		if len(techs) == 0 {
			return false, nil
		}
		now := s.now().UTC()
		test.TechnicianID = &techs[0].ID
		test.ScheduledAt = &now
		test.Status = StatusScheduled
		if err := s.repo.UpdateTest(ctx, test); err != nil {
			return false, err
		}
		return true, nil

	case PriorityUrgent:
		err := s.ScheduleAt(ctx, test, s.now().Add(s.policy.UrgentLead))
		return err == nil, ignoreUnavailable(err)

	default:
		err := s.ScheduleAt(ctx, test, s.now().Add(s.policy.RoutineLead))
		return err == nil, ignoreUnavailable(err)
	}
}

// ignoreUnavailable keeps resource shortages non-fatal for the
// auto-schedule path.
func ignoreUnavailable(err error) error {
	if errors.Is(err, ErrResourceUnavailable) {
		return nil
	}
	return err
}

// ScheduleAt reserves a technician and, when the category needs one, a
// machine for the target slot. A storage-level double booking surfaces
// as ErrScheduleConflict and is not retried here.
func (s *Service) ScheduleAt(ctx context.Context, test *LabTest, target time.Time) error {
	if test.Status != StatusOrdered {
		return ErrInvalidTransition
	}
	target = target.UTC()
	from := target.Add(-s.policy.ConflictWindow)
	to := target.Add(s.policy.ConflictWindow)

	techs, err := s.dir.AvailableTechnicians(ctx, test.DepartmentID, SpecializationFor(test.Category))
	if err != nil {
		return err
	}
	var technician *directory.Technician
	for _, t := range techs {
		busy, err := s.repo.TechnicianBusy(ctx, t.ID, from, to)
		if err != nil {
			return err
		}
		if !busy {
			technician = t
			break
		}
	}
	if technician == nil {
		s.notifyScheduleFailure(ctx, test, "No Technician Available",
			fmt.Sprintf("No technician available for %s at %s.", test.Category, target.Format(time.RFC3339)))
		return ErrResourceUnavailable
	}

	var equipmentID *uuid.UUID
	if et := EquipmentTypeFor(test.Category); et != "" {
		machines, err := s.dir.AvailableEquipment(ctx, test.DepartmentID, et)
		if err != nil {
			return err
		}
		for _, m := range machines {
			busy, err := s.repo.EquipmentBusy(ctx, m.ID, from, to)
			if err != nil {
				return err
			}
			if !busy {
				id := m.ID
				equipmentID = &id
				break
			}
		}
		if equipmentID == nil {
			s.notifyScheduleFailure(ctx, test, "No Equipment Available",
				fmt.Sprintf("No equipment available for %s at %s.", test.Category, target.Format(time.RFC3339)))
			return ErrResourceUnavailable
		}
	}

	sched := &LabSchedule{
		TestID:          test.ID,
		TechnicianID:    technician.ID,
		EquipmentID:     equipmentID,
		SlotStart:       target,
		DurationMinutes: test.DurationMinutes,
	}
	if err := s.repo.CreateSchedule(ctx, sched); err != nil {
		return err
	}

	test.TechnicianID = &technician.ID
	test.EquipmentID = equipmentID
	test.ScheduledAt = &target
	test.Status = StatusScheduled
	if err := s.repo.UpdateTest(ctx, test); err != nil {
		return err
	}

	s.request(ctx, test.PatientUserID, notification.TypeAppointmentReminder,
		"Lab Test Scheduled",
		fmt.Sprintf("Your %s is scheduled for %s.", test.Category, target.Format("2006-01-02 15:04")),
		notification.ChannelSMS)
	return nil
}

// notifyScheduleFailure alerts the ordering staff once per test, so a
// later maintenance retry of the same shortage stays silent.
func (s *Service) notifyScheduleFailure(ctx context.Context, test *LabTest, title, message string) {
	if test.FailureNotified {
		return
	}
	s.request(ctx, test.OrderedByUserID, notification.TypeScheduleError, title, message, notification.ChannelEmail)
	test.FailureNotified = true
	if err := s.repo.UpdateTest(ctx, test); err != nil {
		s.log.Warn().Err(err).Str("test_id", test.ID.String()).Msg("persist failure flag")
	}
}

// StartTest moves an ordered or scheduled test to in_progress,
// optionally (re)binding technician and equipment. A bound machine is
// claimed for the duration of the test.
func (s *Service) StartTest(ctx context.Context, id uuid.UUID, technicianID, equipmentID *uuid.UUID) (*LabTest, error) {
	test, err := s.repo.GetTest(ctx, id)
	if err != nil {
		return nil, err
	}
	if test.Status != StatusOrdered && test.Status != StatusScheduled {
		return nil, ErrInvalidTransition
	}
	now := s.now().UTC()
	test.Status = StatusInProgress
	test.StartedAt = &now
	if technicianID != nil {
		test.TechnicianID = technicianID
	}
	if equipmentID != nil {
		test.EquipmentID = equipmentID
	}
	if test.EquipmentID != nil {
		if err := s.dir.ClaimEquipment(ctx, *test.EquipmentID); err != nil {
			return nil, fmt.Errorf("claim equipment: %w", err)
		}
	}
	if err := s.repo.UpdateTest(ctx, test); err != nil {
		return nil, err
	}
	return test, nil
}

// Results carries the outcome of a completed test.
type Results struct {
	Text          string          `json:"results"`
	NormalRanges  json.RawMessage `json:"normal_ranges,omitempty"`
	AbnormalFlags []string        `json:"abnormal_flags,omitempty"`
}

// CompleteTest records results, frees the machine, sends the patient
// back to their queue when reentry was requested, and applies the
// auto-review policy: routine tests with no abnormal flags are
// approved on the spot, everything else waits for an explicit review.
func (s *Service) CompleteTest(ctx context.Context, id uuid.UUID, res Results) (*LabTest, error) {
	test, err := s.repo.GetTest(ctx, id)
	if err != nil {
		return nil, err
	}
	if test.Status != StatusInProgress {
		return nil, ErrInvalidTransition
	}
	now := s.now().UTC()
	test.Status = StatusCompleted
	test.CompletedAt = &now
	test.Results = res.Text
	if res.NormalRanges != nil {
		test.NormalRanges = res.NormalRanges
	}
	if res.AbnormalFlags != nil {
		test.AbnormalFlags = res.AbnormalFlags
	}
	if err := s.repo.UpdateTest(ctx, test); err != nil {
		return nil, err
	}

	if test.EquipmentID != nil {
		if err := s.dir.ReleaseEquipment(ctx, *test.EquipmentID); err != nil {
			s.log.Warn().Err(err).Str("test_id", test.ID.String()).Msg("release equipment")
		}
	}

	if test.QueueReentry && test.QueueEntryID != nil {
		// ReturnFromLab notifies the patient itself.
		if _, err := s.queues.ReturnFromLab(ctx, *test.QueueEntryID); err != nil {
			s.log.Warn().Err(err).Str("test_id", test.ID.String()).Msg("queue reentry failed")
		}
	}

	if test.Priority == PriorityRoutine && len(test.AbnormalFlags) == 0 {
		return s.ReviewTest(ctx, test.ID, test.OrderedByUserID, true)
	}
	s.request(ctx, test.OrderedByUserID, notification.TypeTestReady,
		"Lab Test Ready for Review",
		fmt.Sprintf("%s results require review.", test.Category),
		notification.ChannelEmail)
	return test, nil
}

// ReviewTest records the reviewer's verdict on a completed test.
// Approval triggers reporting.
func (s *Service) ReviewTest(ctx context.Context, id, reviewerUserID uuid.UUID, approved bool) (*LabTest, error) {
	test, err := s.repo.GetTest(ctx, id)
	if err != nil {
		return nil, err
	}
	if test.Status != StatusCompleted {
		return nil, ErrInvalidTransition
	}
	now := s.now().UTC()
	test.Status = StatusReviewed
	test.ReviewedAt = &now
	test.ReviewedByUser = &reviewerUserID
	if err := s.repo.UpdateTest(ctx, test); err != nil {
		return nil, err
	}
	if approved {
		return s.ReportResults(ctx, test.ID)
	}
	return test, nil
}

// ReportResults publishes reviewed results to the patient and the
// ordering physician.
func (s *Service) ReportResults(ctx context.Context, id uuid.UUID) (*LabTest, error) {
	test, err := s.repo.GetTest(ctx, id)
	if err != nil {
		return nil, err
	}
	if test.Status != StatusReviewed {
		return nil, ErrInvalidTransition
	}
	now := s.now().UTC()
	test.Status = StatusReported
	test.ReportedAt = &now
	if err := s.repo.UpdateTest(ctx, test); err != nil {
		return nil, err
	}

	s.request(ctx, test.PatientUserID, notification.TypeTestReady,
		"Lab Results Ready",
		fmt.Sprintf("Your %s results are ready.", test.Category),
		notification.ChannelSMS)
	s.request(ctx, test.OrderedByUserID, notification.TypeTestReady,
		"Lab Results Ready",
		fmt.Sprintf("%s results are ready.", test.Category),
		notification.ChannelEmail)
	return test, nil
}

// CancelTest withdraws a test from any non-terminal status, freeing a
// claimed machine and alerting both patient and ordering staff.
func (s *Service) CancelTest(ctx context.Context, id uuid.UUID, reason string) (*LabTest, error) {
	test, err := s.repo.GetTest(ctx, id)
	if err != nil {
		return nil, err
	}
	if test.Status.Terminal() {
		return nil, ErrInvalidTransition
	}
	wasRunning := test.Status == StatusInProgress
	test.Status = StatusCancelled
	if err := s.repo.UpdateTest(ctx, test); err != nil {
		return nil, err
	}

	if wasRunning && test.EquipmentID != nil {
		if err := s.dir.ReleaseEquipment(ctx, *test.EquipmentID); err != nil {
			s.log.Warn().Err(err).Str("test_id", test.ID.String()).Msg("release equipment")
		}
	}

	msg := fmt.Sprintf("Your %s has been cancelled.", test.Category)
	if reason != "" {
		msg = fmt.Sprintf("Your %s has been cancelled: %s", test.Category, reason)
	}
	s.request(ctx, test.PatientUserID, notification.TypeTestCancelled, "Lab Test Cancelled", msg, notification.ChannelSMS)
	s.request(ctx, test.OrderedByUserID, notification.TypeTestCancelled, "Lab Test Cancelled",
		fmt.Sprintf("%s order was cancelled.", test.Category), notification.ChannelEmail)
	return test, nil
}

// RetryUnscheduled re-attempts auto-scheduling for every test still in
// ordered status. Returns how many were placed.
func (s *Service) RetryUnscheduled(ctx context.Context) (int, error) {
	tests, err := s.repo.ListTestsByStatus(ctx, StatusOrdered)
	if err != nil {
		return 0, err
	}
	placed := 0
	var errs []error
	for _, test := range tests {
		ok, err := s.AutoSchedule(ctx, test)
		if err != nil {
			errs = append(errs, fmt.Errorf("test %s: %w", test.ID, err))
			continue
		}
		if ok {
			placed++
		}
	}
	return placed, errors.Join(errs...)
}

// AlertOverdue raises delay alerts for every pending test past its
// SLA: one to the ordering staff, one to the patient.
func (s *Service) AlertOverdue(ctx context.Context) (int, error) {
	tests, err := s.repo.ListPendingTests(ctx)
	if err != nil {
		return 0, err
	}
	now := s.now()
	alerted := 0
	for _, test := range tests {
		if !test.IsOverdue(now) {
			continue
		}
		s.request(ctx, test.OrderedByUserID, notification.TypeDelayAlert,
			"Overdue Lab Test",
			fmt.Sprintf("Lab test %s is overdue.", test.Category),
			notification.ChannelEmail)
		s.request(ctx, test.PatientUserID, notification.TypeDelayAlert,
			"Lab Test Delay",
			fmt.Sprintf("Your %s is taking longer than expected. We will update you soon.", test.Category),
			notification.ChannelSMS)
		alerted++
	}
	return alerted, nil
}

// request submits a notification and swallows failures, per the
// fire-and-forget contract.
func (s *Service) request(ctx context.Context, userID uuid.UUID, t notification.Type, title, message string, ch notification.Channel) {
	if err := s.notifier.Request(ctx, userID, t, title, message, ch); err != nil {
		s.log.Warn().Err(err).Str("type", string(t)).Msg("notification request failed")
	}
}
