package directory

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type memRepo struct {
	departments []*Department
	findLabErr  error
	patients    map[uuid.UUID]*Patient
	staff       map[uuid.UUID][]*Staff
	technicians map[uuid.UUID][]*Technician
	equipment   map[uuid.UUID][]*Equipment
}

func newMemRepo() *memRepo {
	return &memRepo{
		patients:    make(map[uuid.UUID]*Patient),
		staff:       make(map[uuid.UUID][]*Staff),
		technicians: make(map[uuid.UUID][]*Technician),
		equipment:   make(map[uuid.UUID][]*Equipment),
	}
}

func (m *memRepo) CreateDepartment(_ context.Context, d *Department) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	m.departments = append(m.departments, d)
	return nil
}

func (m *memRepo) GetDepartment(_ context.Context, id uuid.UUID) (*Department, error) {
	for _, d := range m.departments {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, ErrDepartmentNotFound
}

func (m *memRepo) ListActiveDepartments(_ context.Context, kind string) ([]*Department, error) {
	var out []*Department
	for _, d := range m.departments {
		if d.IsActive && (kind == "" || d.Kind == kind) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memRepo) FindLabDepartmentBySpecialty(_ context.Context, specialty string) (*Department, error) {
	if m.findLabErr != nil {
		return nil, m.findLabErr
	}
	for _, d := range m.departments {
		if d.IsActive && d.Kind == KindLab && d.Specialty == specialty {
			return d, nil
		}
	}
	return nil, ErrDepartmentNotFound
}

func (m *memRepo) CreatePatient(_ context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	m.patients[p.ID] = p
	return nil
}

func (m *memRepo) GetPatient(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return p, nil
}

func (m *memRepo) ListPatients(_ context.Context, limit, offset int) ([]*Patient, int, error) {
	var all []*Patient
	for _, p := range m.patients {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].FullName < all[j].FullName })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *memRepo) CreateStaff(_ context.Context, s *Staff) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	m.staff[s.DepartmentID] = append(m.staff[s.DepartmentID], s)
	return nil
}

func (m *memRepo) ListStaffByDepartment(_ context.Context, departmentID uuid.UUID) ([]*Staff, error) {
	return m.staff[departmentID], nil
}

func (m *memRepo) CreateTechnician(_ context.Context, t *Technician) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	m.technicians[t.DepartmentID] = append(m.technicians[t.DepartmentID], t)
	return nil
}

func (m *memRepo) ListTechniciansByDepartment(_ context.Context, departmentID uuid.UUID) ([]*Technician, error) {
	return m.technicians[departmentID], nil
}

func (m *memRepo) CreateEquipment(_ context.Context, e *Equipment) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	m.equipment[e.DepartmentID] = append(m.equipment[e.DepartmentID], e)
	return nil
}

func (m *memRepo) GetEquipment(_ context.Context, id uuid.UUID) (*Equipment, error) {
	for _, list := range m.equipment {
		for _, e := range list {
			if e.ID == id {
				return e, nil
			}
		}
	}
	return nil, ErrEquipmentNotFound
}

func (m *memRepo) ListEquipmentByDepartment(_ context.Context, departmentID uuid.UUID) ([]*Equipment, error) {
	return m.equipment[departmentID], nil
}

func (m *memRepo) UpdateEquipmentStatus(ctx context.Context, id uuid.UUID, status string) error {
	e, err := m.GetEquipment(ctx, id)
	if err != nil {
		return err
	}
	e.Status = status
	return nil
}

func newTestService(repo Repository) *Service {
	return NewService(repo, zerolog.Nop())
}

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 10, hour, minute, 0, 0, time.UTC)
}

func TestAvailableStaff_ShiftAndBreak(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	deptID := uuid.New()

	onShift := &Staff{DepartmentID: deptID, ShiftStartMin: 8 * 60, ShiftEndMin: 16 * 60}
	offShift := &Staff{DepartmentID: deptID, ShiftStartMin: 16 * 60, ShiftEndMin: 23 * 60}
	onBreak := &Staff{DepartmentID: deptID, ShiftStartMin: 8 * 60, ShiftEndMin: 16 * 60, OnBreak: true}
	for _, s := range []*Staff{onShift, offShift, onBreak} {
		if err := repo.CreateStaff(ctx, s); err != nil {
			t.Fatalf("CreateStaff: %v", err)
		}
	}

	got, err := svc.AvailableStaff(ctx, deptID, at(10, 30))
	if err != nil {
		t.Fatalf("AvailableStaff: %v", err)
	}
	if len(got) != 1 || got[0].ID != onShift.ID {
		t.Fatalf("expected only the on-shift staff member, got %d", len(got))
	}
}

func TestAvailableStaff_ShiftBoundsInclusive(t *testing.T) {
	s := &Staff{ShiftStartMin: 8 * 60, ShiftEndMin: 16 * 60}
	if !s.AvailableAt(at(8, 0)) {
		t.Error("expected available at shift start")
	}
	if !s.AvailableAt(at(16, 0)) {
		t.Error("expected available at shift end")
	}
	if s.AvailableAt(at(16, 1)) {
		t.Error("expected unavailable after shift end")
	}
}

func TestAvailableTechnicians_SpecializationMatch(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	deptID := uuid.New()

	hema := &Technician{DepartmentID: deptID, Specialization: SpecHematology, Available: true}
	chem := &Technician{DepartmentID: deptID, Specialization: SpecChemistry, Available: true}
	gen := &Technician{DepartmentID: deptID, Specialization: SpecGeneral, Available: true}
	busy := &Technician{DepartmentID: deptID, Specialization: SpecHematology, Available: false}
	for _, tech := range []*Technician{hema, chem, gen, busy} {
		if err := repo.CreateTechnician(ctx, tech); err != nil {
			t.Fatalf("CreateTechnician: %v", err)
		}
	}

	got, err := svc.AvailableTechnicians(ctx, deptID, SpecHematology)
	if err != nil {
		t.Fatalf("AvailableTechnicians: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected hematology + general, got %d", len(got))
	}
	for _, tech := range got {
		if tech.ID == chem.ID || tech.ID == busy.ID {
			t.Errorf("unexpected technician %s in result", tech.Specialization)
		}
	}
}

func TestAvailableEquipment_TypeAndStatus(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	deptID := uuid.New()

	free := &Equipment{DepartmentID: deptID, EquipmentType: "hematology_analyzer", Status: EquipmentAvailable}
	inUse := &Equipment{DepartmentID: deptID, EquipmentType: "hematology_analyzer", Status: EquipmentInUse}
	other := &Equipment{DepartmentID: deptID, EquipmentType: "x_ray_machine", Status: EquipmentAvailable}
	for _, e := range []*Equipment{free, inUse, other} {
		if err := repo.CreateEquipment(ctx, e); err != nil {
			t.Fatalf("CreateEquipment: %v", err)
		}
	}

	got, err := svc.AvailableEquipment(ctx, deptID, "hematology_analyzer")
	if err != nil {
		t.Fatalf("AvailableEquipment: %v", err)
	}
	if len(got) != 1 || got[0].ID != free.ID {
		t.Fatalf("expected only the free analyzer, got %d", len(got))
	}

	all, err := svc.AvailableEquipment(ctx, deptID, "")
	if err != nil {
		t.Fatalf("AvailableEquipment: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 free machines for any type, got %d", len(all))
	}
}

func TestClaimAndReleaseEquipment(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	deptID := uuid.New()

	e := &Equipment{DepartmentID: deptID, EquipmentType: "centrifuge", Status: EquipmentAvailable}
	if err := repo.CreateEquipment(ctx, e); err != nil {
		t.Fatalf("CreateEquipment: %v", err)
	}

	if err := svc.ClaimEquipment(ctx, e.ID); err != nil {
		t.Fatalf("ClaimEquipment: %v", err)
	}
	if e.Status != EquipmentInUse {
		t.Fatalf("expected in_use, got %s", e.Status)
	}
	if err := svc.ReleaseEquipment(ctx, e.ID); err != nil {
		t.Fatalf("ReleaseEquipment: %v", err)
	}
	if e.Status != EquipmentAvailable {
		t.Fatalf("expected available, got %s", e.Status)
	}
}

func TestLabDepartmentFor_Fallback(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	hema := &Department{Name: "Hematology Lab", Kind: KindLab, Specialty: SpecHematology, IsActive: true}
	general := &Department{Name: "Central Lab", Kind: KindLab, Specialty: SpecGeneral, IsActive: true}
	opd := &Department{Name: "General OPD", Kind: KindOPD, IsActive: true}
	for _, d := range []*Department{general, hema, opd} {
		if err := repo.CreateDepartment(ctx, d); err != nil {
			t.Fatalf("CreateDepartment: %v", err)
		}
	}

	got, err := svc.LabDepartmentFor(ctx, SpecHematology)
	if err != nil {
		t.Fatalf("LabDepartmentFor: %v", err)
	}
	if got.ID != hema.ID {
		t.Fatalf("expected exact specialty match, got %s", got.Name)
	}

	fallback, err := svc.LabDepartmentFor(ctx, SpecRadiology)
	if err != nil {
		t.Fatalf("LabDepartmentFor fallback: %v", err)
	}
	if fallback.Kind != KindLab {
		t.Fatalf("fallback must be a lab department, got %s", fallback.Kind)
	}
}

func TestLabDepartmentFor_RepoErrorPropagates(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	// an active lab exists, so a wrongful fallback would succeed
	lab := &Department{Name: "Central Lab", Kind: KindLab, Specialty: SpecGeneral, IsActive: true}
	if err := repo.CreateDepartment(ctx, lab); err != nil {
		t.Fatalf("CreateDepartment: %v", err)
	}

	repoErr := errors.New("connection reset")
	repo.findLabErr = repoErr

	if _, err := svc.LabDepartmentFor(ctx, SpecChemistry); !errors.Is(err, repoErr) {
		t.Fatalf("expected repo error to propagate, got %v", err)
	}
}

func TestLabDepartmentFor_NoLabs(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)

	if _, err := svc.LabDepartmentFor(context.Background(), SpecChemistry); err == nil {
		t.Fatal("expected error when no lab departments exist")
	}
}

func TestRegisterPatient_DefaultsToWalkIn(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	p := &Patient{UserID: uuid.New(), FullName: "Test Patient"}
	if err := svc.RegisterPatient(ctx, p); err != nil {
		t.Fatalf("RegisterPatient: %v", err)
	}
	if p.Tier != TierWalkIn {
		t.Fatalf("expected walk_in default, got %s", p.Tier)
	}

	tier, err := svc.PatientTier(ctx, p.ID)
	if err != nil {
		t.Fatalf("PatientTier: %v", err)
	}
	if tier != TierWalkIn {
		t.Fatalf("expected walk_in, got %s", tier)
	}
}

func TestRegisterDepartment_Validation(t *testing.T) {
	svc := newTestService(newMemRepo())
	ctx := context.Background()

	if err := svc.RegisterDepartment(ctx, &Department{Name: "X", Kind: "warehouse"}); err == nil {
		t.Error("expected error for unknown kind")
	}
	if err := svc.RegisterDepartment(ctx, &Department{Kind: KindOPD}); err == nil {
		t.Error("expected error for missing name")
	}
	if err := svc.RegisterDepartment(ctx, &Department{Name: "ER", Kind: KindEmergency, IsActive: true}); err != nil {
		t.Errorf("valid department rejected: %v", err)
	}
}

func TestRegisterStaff_Validation(t *testing.T) {
	svc := newTestService(newMemRepo())
	ctx := context.Background()
	dept := uuid.New()

	if err := svc.RegisterStaff(ctx, &Staff{ShiftStartMin: 480, ShiftEndMin: 960}); err == nil {
		t.Error("expected error for missing department")
	}
	if err := svc.RegisterStaff(ctx, &Staff{DepartmentID: dept, ShiftStartMin: 960, ShiftEndMin: 480}); err == nil {
		t.Error("expected error for inverted shift window")
	}
	if err := svc.RegisterStaff(ctx, &Staff{DepartmentID: dept, ShiftStartMin: 480, ShiftEndMin: 25 * 60}); err == nil {
		t.Error("expected error for shift past midnight")
	}

	st := &Staff{DepartmentID: dept, Role: "physician", ShiftStartMin: 480, ShiftEndMin: 960}
	if err := svc.RegisterStaff(ctx, st); err != nil {
		t.Fatalf("valid staff rejected: %v", err)
	}
	if st.AvgConsultationMinutes != 15 {
		t.Fatalf("expected default consultation minutes 15, got %d", st.AvgConsultationMinutes)
	}
}

func TestRegisterTechnician_DefaultsToGeneral(t *testing.T) {
	svc := newTestService(newMemRepo())
	ctx := context.Background()

	if err := svc.RegisterTechnician(ctx, &Technician{}); err == nil {
		t.Error("expected error for missing department")
	}

	tech := &Technician{DepartmentID: uuid.New()}
	if err := svc.RegisterTechnician(ctx, tech); err != nil {
		t.Fatalf("RegisterTechnician: %v", err)
	}
	if tech.Specialization != SpecGeneral {
		t.Fatalf("expected general specialization, got %s", tech.Specialization)
	}
}

func TestRegisterEquipment_Validation(t *testing.T) {
	svc := newTestService(newMemRepo())
	ctx := context.Background()
	dept := uuid.New()

	if err := svc.RegisterEquipment(ctx, &Equipment{Name: "Analyzer", EquipmentType: "analyzer"}); err == nil {
		t.Error("expected error for missing department")
	}
	if err := svc.RegisterEquipment(ctx, &Equipment{DepartmentID: dept, Name: "Analyzer"}); err == nil {
		t.Error("expected error for missing type")
	}

	eq := &Equipment{DepartmentID: dept, Name: "Analyzer", EquipmentType: "analyzer"}
	if err := svc.RegisterEquipment(ctx, eq); err != nil {
		t.Fatalf("RegisterEquipment: %v", err)
	}
	if eq.Status != EquipmentAvailable {
		t.Fatalf("expected available status default, got %s", eq.Status)
	}
}

func TestPatients_Paging(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	names := []string{"Adams", "Baker", "Chen", "Diaz", "Evans"}
	for _, n := range names {
		if err := svc.RegisterPatient(ctx, &Patient{UserID: uuid.New(), FullName: n}); err != nil {
			t.Fatalf("RegisterPatient(%s): %v", n, err)
		}
	}

	page, total, err := svc.Patients(ctx, 2, 2)
	if err != nil {
		t.Fatalf("Patients: %v", err)
	}
	if total != 5 {
		t.Fatalf("total %d, want 5", total)
	}
	if len(page) != 2 || page[0].FullName != "Chen" || page[1].FullName != "Diaz" {
		t.Fatalf("unexpected page: %+v", page)
	}

	page, total, err = svc.Patients(ctx, 10, 10)
	if err != nil {
		t.Fatalf("Patients past end: %v", err)
	}
	if total != 5 || len(page) != 0 {
		t.Fatalf("past-end page: total=%d len=%d", total, len(page))
	}
}
