package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service answers resource availability questions for the schedulers.
// It never mutates queue or lab state; the one write it exposes is the
// equipment status flip used when a test claims or releases a machine.
type Service struct {
	repo Repository
	log  zerolog.Logger
}

func NewService(repo Repository, log zerolog.Logger) *Service {
	return &Service{repo: repo, log: log.With().Str("component", "directory").Logger()}
}

// RegisterDepartment validates and stores a new department.
func (s *Service) RegisterDepartment(ctx context.Context, d *Department) error {
	switch d.Kind {
	case KindOPD, KindLab, KindEmergency, KindPharmacy:
	default:
		return fmt.Errorf("unknown department kind %q", d.Kind)
	}
	if d.Name == "" {
		return fmt.Errorf("department name is required")
	}
	return s.repo.CreateDepartment(ctx, d)
}

// RegisterPatient validates and stores a new patient record.
func (s *Service) RegisterPatient(ctx context.Context, p *Patient) error {
	if p.Tier == "" {
		p.Tier = TierWalkIn
	}
	if !p.Tier.Valid() {
		return fmt.Errorf("unknown priority level %q", p.Tier)
	}
	return s.repo.CreatePatient(ctx, p)
}

// RegisterStaff validates and stores a new staff member.
func (s *Service) RegisterStaff(ctx context.Context, st *Staff) error {
	if st.DepartmentID == uuid.Nil {
		return fmt.Errorf("staff department is required")
	}
	if st.ShiftStartMin < 0 || st.ShiftEndMin > 24*60 || st.ShiftStartMin >= st.ShiftEndMin {
		return fmt.Errorf("invalid shift window %d-%d", st.ShiftStartMin, st.ShiftEndMin)
	}
	if st.AvgConsultationMinutes <= 0 {
		st.AvgConsultationMinutes = 15
	}
	return s.repo.CreateStaff(ctx, st)
}

// RegisterTechnician validates and stores a new lab technician.
func (s *Service) RegisterTechnician(ctx context.Context, t *Technician) error {
	if t.DepartmentID == uuid.Nil {
		return fmt.Errorf("technician department is required")
	}
	if t.Specialization == "" {
		t.Specialization = SpecGeneral
	}
	return s.repo.CreateTechnician(ctx, t)
}

// RegisterEquipment validates and stores a new machine.
func (s *Service) RegisterEquipment(ctx context.Context, e *Equipment) error {
	if e.DepartmentID == uuid.Nil {
		return fmt.Errorf("equipment department is required")
	}
	if e.Name == "" || e.EquipmentType == "" {
		return fmt.Errorf("equipment name and type are required")
	}
	if e.Status == "" {
		e.Status = EquipmentAvailable
	}
	return s.repo.CreateEquipment(ctx, e)
}

// Department returns a department by ID.
func (s *Service) Department(ctx context.Context, id uuid.UUID) (*Department, error) {
	return s.repo.GetDepartment(ctx, id)
}

// Departments lists active departments, optionally filtered by kind.
func (s *Service) Departments(ctx context.Context, kind string) ([]*Department, error) {
	return s.repo.ListActiveDepartments(ctx, kind)
}

// Patient returns a patient by ID.
func (s *Service) Patient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetPatient(ctx, id)
}

// Patients returns one page of registered patients plus the total
// count.
func (s *Service) Patients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.repo.ListPatients(ctx, limit, offset)
}

// PatientTier returns the priority class of a patient.
func (s *Service) PatientTier(ctx context.Context, patientID uuid.UUID) (Tier, error) {
	p, err := s.repo.GetPatient(ctx, patientID)
	if err != nil {
		return "", err
	}
	return p.Tier, nil
}

// AvailableStaff returns the department's staff who are on shift and
// not on break at the given instant. Wait estimation divides queue
// depth across this set.
func (s *Service) AvailableStaff(ctx context.Context, departmentID uuid.UUID, at time.Time) ([]*Staff, error) {
	all, err := s.repo.ListStaffByDepartment(ctx, departmentID)
	if err != nil {
		return nil, err
	}
	var out []*Staff
	for _, st := range all {
		if st.AvailableAt(at) {
			out = append(out, st)
		}
	}
	return out, nil
}

// AvailableTechnicians returns the department's available technicians
// whose specialization matches the requested one. Generalists count as
// a match for every specialization.
func (s *Service) AvailableTechnicians(ctx context.Context, departmentID uuid.UUID, specialization string) ([]*Technician, error) {
	all, err := s.repo.ListTechniciansByDepartment(ctx, departmentID)
	if err != nil {
		return nil, err
	}
	var out []*Technician
	for _, t := range all {
		if !t.Available {
			continue
		}
		if t.Specialization == specialization || t.Specialization == SpecGeneral {
			out = append(out, t)
		}
	}
	return out, nil
}

// AvailableEquipment returns the department's equipment of the given
// type that is currently free. An empty equipmentType matches any.
func (s *Service) AvailableEquipment(ctx context.Context, departmentID uuid.UUID, equipmentType string) ([]*Equipment, error) {
	all, err := s.repo.ListEquipmentByDepartment(ctx, departmentID)
	if err != nil {
		return nil, err
	}
	var out []*Equipment
	for _, e := range all {
		if e.Status != EquipmentAvailable {
			continue
		}
		if equipmentType == "" || e.EquipmentType == equipmentType {
			out = append(out, e)
		}
	}
	return out, nil
}

// ClaimEquipment marks a machine in use for the duration of a test.
func (s *Service) ClaimEquipment(ctx context.Context, id uuid.UUID) error {
	return s.repo.UpdateEquipmentStatus(ctx, id, EquipmentInUse)
}

// ReleaseEquipment marks a machine available again.
func (s *Service) ReleaseEquipment(ctx context.Context, id uuid.UUID) error {
	return s.repo.UpdateEquipmentStatus(ctx, id, EquipmentAvailable)
}

// LabDepartmentFor resolves the lab department handling a specialty.
// When no department carries the exact specialty the first active lab
// department takes the work, so ordering never fails outright on a
// missing specialty tag.
func (s *Service) LabDepartmentFor(ctx context.Context, specialty string) (*Department, error) {
	d, err := s.repo.FindLabDepartmentBySpecialty(ctx, specialty)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, ErrDepartmentNotFound) {
		return nil, err
	}
	labs, lerr := s.repo.ListActiveDepartments(ctx, KindLab)
	if lerr != nil {
		return nil, lerr
	}
	if len(labs) == 0 {
		return nil, ErrDepartmentNotFound
	}
	s.log.Debug().Str("specialty", specialty).Str("fallback", labs[0].Name).
		Msg("no lab department for specialty, using fallback")
	return labs[0], nil
}
