package hospital

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/arogyalink/hms/internal/platform/apperr"
)

// -- Mock Repositories --

type mockHospitalRepo struct {
	hospitals map[uuid.UUID]Hospital
}

func newMockHospitalRepo() *mockHospitalRepo {
	return &mockHospitalRepo{hospitals: make(map[uuid.UUID]Hospital)}
}

func (m *mockHospitalRepo) Create(_ context.Context, h *Hospital) error {
	h.ID = uuid.New()
	h.CreatedAt = time.Now()
	h.UpdatedAt = time.Now()
	m.hospitals[h.ID] = *h
	return nil
}

func (m *mockHospitalRepo) GetByID(_ context.Context, id uuid.UUID) (*Hospital, error) {
	h, ok := m.hospitals[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &h, nil
}

func (m *mockHospitalRepo) Update(_ context.Context, h *Hospital) error {
	if _, ok := m.hospitals[h.ID]; !ok {
		return pgx.ErrNoRows
	}
	h.UpdatedAt = time.Now()
	m.hospitals[h.ID] = *h
	return nil
}

type mockDoctorRepo struct {
	doctors   map[uuid.UUID]Doctor
	hospitals *mockHospitalRepo
}

func newMockDoctorRepo(hospitals *mockHospitalRepo) *mockDoctorRepo {
	return &mockDoctorRepo{doctors: make(map[uuid.UUID]Doctor), hospitals: hospitals}
}

func (m *mockDoctorRepo) Create(_ context.Context, d *Doctor) error {
	for _, existing := range m.doctors {
		if existing.Email == d.Email {
			return errUnique
		}
	}
	d.ID = uuid.New()
	d.CreatedAt = time.Now()
	d.UpdatedAt = time.Now()
	m.doctors[d.ID] = *d
	return nil
}

func (m *mockDoctorRepo) GetByID(_ context.Context, hospitalID, id uuid.UUID) (*Doctor, error) {
	d, ok := m.doctors[id]
	if !ok || d.HospitalID != hospitalID {
		return nil, pgx.ErrNoRows
	}
	return &d, nil
}

func (m *mockDoctorRepo) UpdateStatus(_ context.Context, d *Doctor) error {
	m.doctors[d.ID] = *d
	return nil
}

func (m *mockDoctorRepo) ListByHospital(_ context.Context, hospitalID uuid.UUID, status string, limit, offset int) ([]*Doctor, int, error) {
	var result []*Doctor
	for _, d := range m.doctors {
		if d.HospitalID == hospitalID && (status == "" || d.Status == status) {
			d := d
			result = append(result, &d)
		}
	}
	return result, len(result), nil
}

func (m *mockDoctorRepo) ListActiveSchedules(_ context.Context) ([]Schedule, error) {
	var out []Schedule
	for _, d := range m.doctors {
		if d.Status != DoctorActive {
			continue
		}
		h := m.hospitals.hospitals[d.HospitalID]
		out = append(out, Schedule{DoctorID: d.ID, HospitalID: d.HospitalID, OPDStartTime: h.OPDStartTime, OPDEndTime: h.OPDEndTime})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DoctorID.String() < out[j].DoctorID.String() })
	return out, nil
}

var errUnique = &pgconn.PgError{Code: "23505", ConstraintName: "doctor_email_key"}

type fakePartitions map[uuid.UUID]int

func (f fakePartitions) CountPartitions(_ context.Context, hospitalID uuid.UUID) (int, error) {
	return f[hospitalID], nil
}

func newTestService() (*Service, fakePartitions) {
	hr := newMockHospitalRepo()
	parts := fakePartitions{}
	return NewService(hr, newMockDoctorRepo(hr), parts), parts
}

func createHospital(t *testing.T, svc *Service) *Hospital {
	t.Helper()
	h := &Hospital{Name: "City Care", Email: "admin@citycare.example", OPDStartTime: "9 AM", OPDEndTime: "1 PM"}
	if err := svc.CreateHospital(context.Background(), h); err != nil {
		t.Fatalf("create hospital: %v", err)
	}
	return h
}

// -- Hospital Tests --

func TestCreateHospital_NormalisesOPDHours(t *testing.T) {
	svc, _ := newTestService()
	h := createHospital(t, svc)
	if h.OPDStartTime != "09:00" || h.OPDEndTime != "13:00" {
		t.Errorf("expected 09:00-13:00, got %s-%s", h.OPDStartTime, h.OPDEndTime)
	}
}

func TestCreateHospital_Validation(t *testing.T) {
	svc, _ := newTestService()
	tests := []struct {
		name string
		h    Hospital
	}{
		{"missing name", Hospital{Email: "a@b.c", OPDStartTime: "09:00", OPDEndTime: "10:00"}},
		{"missing email", Hospital{Name: "X", OPDStartTime: "09:00", OPDEndTime: "10:00"}},
		{"bad clock", Hospital{Name: "X", Email: "a@b.c", OPDStartTime: "morning", OPDEndTime: "10:00"}},
		{"end before start", Hospital{Name: "X", Email: "a@b.c", OPDStartTime: "11:00", OPDEndTime: "10:00"}},
		{"negative fee", Hospital{Name: "X", Email: "a@b.c", OPDStartTime: "09:00", OPDEndTime: "10:00", AdmissionFee: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := tt.h
			err := svc.CreateHospital(context.Background(), &h)
			if !errors.Is(err, apperr.ErrInvalidInput) {
				t.Errorf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestUpdateSettings(t *testing.T) {
	svc, _ := newTestService()
	h := createHospital(t, svc)
	end := "17:30"
	upi := " citycare@upi "
	fee := 500.0

	got, err := svc.UpdateSettings(context.Background(), h.ID, SettingsUpdate{OPDEndTime: &end, UPIID: &upi, AdmissionFee: &fee})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.OPDStartTime != "09:00" || got.OPDEndTime != "17:30" {
		t.Errorf("unexpected hours %s-%s", got.OPDStartTime, got.OPDEndTime)
	}
	if got.UPIID == nil || *got.UPIID != "citycare@upi" {
		t.Errorf("expected trimmed upi id, got %v", got.UPIID)
	}
	if got.AdmissionFee != 500 {
		t.Errorf("expected fee 500, got %v", got.AdmissionFee)
	}

	blank := ""
	got, err = svc.UpdateSettings(context.Background(), h.ID, SettingsUpdate{UPIID: &blank})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.UPIID != nil {
		t.Errorf("expected upi id cleared, got %v", *got.UPIID)
	}
}

func TestUpdateSettings_RejectsInvertedHours(t *testing.T) {
	svc, _ := newTestService()
	h := createHospital(t, svc)
	start := "14:00"
	_, err := svc.UpdateSettings(context.Background(), h.ID, SettingsUpdate{OPDStartTime: &start})
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}
}

func TestUpdateSettings_UnknownHospital(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.UpdateSettings(context.Background(), uuid.New(), SettingsUpdate{})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

// -- Doctor Tests --

func TestRegisterDoctor_StartsPending(t *testing.T) {
	svc, _ := newTestService()
	h := createHospital(t, svc)
	d := &Doctor{Name: "Dr. Rao", Email: "Rao@Example.com", Specialization: "Cardiology"}
	if err := svc.RegisterDoctor(context.Background(), h.ID, d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Status != DoctorPending {
		t.Errorf("expected pending, got %s", d.Status)
	}
	if d.Email != "rao@example.com" {
		t.Errorf("expected lower-cased email, got %s", d.Email)
	}
	if d.HospitalID != h.ID {
		t.Error("expected doctor scoped to hospital")
	}
}

func TestRegisterDoctor_Duplicate(t *testing.T) {
	svc, _ := newTestService()
	h := createHospital(t, svc)
	_ = svc.RegisterDoctor(context.Background(), h.ID, &Doctor{Name: "A", Email: "a@x.com", Specialization: "ENT"})
	err := svc.RegisterDoctor(context.Background(), h.ID, &Doctor{Name: "B", Email: "a@x.com", Specialization: "ENT"})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
}

func TestActiveDoctor(t *testing.T) {
	svc, _ := newTestService()
	h := createHospital(t, svc)
	d := &Doctor{Name: "A", Email: "a@x.com", Specialization: "ENT"}
	_ = svc.RegisterDoctor(context.Background(), h.ID, d)

	if _, err := svc.ActiveDoctor(context.Background(), h.ID, d.ID); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("expected pending doctor to be rejected, got %v", err)
	}
	if _, err := svc.SetDoctorStatus(context.Background(), h.ID, d.ID, DoctorActive); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := svc.ActiveDoctor(context.Background(), h.ID, d.ID); err != nil {
		t.Errorf("expected active doctor, got %v", err)
	}
	if _, err := svc.ActiveDoctor(context.Background(), uuid.New(), d.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected other hospital to see not found, got %v", err)
	}
}

func TestSetDoctorStatus_Invalid(t *testing.T) {
	svc, _ := newTestService()
	h := createHospital(t, svc)
	d := &Doctor{Name: "A", Email: "a@x.com", Specialization: "ENT"}
	_ = svc.RegisterDoctor(context.Background(), h.ID, d)
	if _, err := svc.SetDoctorStatus(context.Background(), h.ID, d.ID, "retired"); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}
}

func TestActiveSchedules(t *testing.T) {
	svc, _ := newTestService()
	h := createHospital(t, svc)
	active := &Doctor{Name: "A", Email: "a@x.com", Specialization: "ENT"}
	pending := &Doctor{Name: "B", Email: "b@x.com", Specialization: "ENT"}
	_ = svc.RegisterDoctor(context.Background(), h.ID, active)
	_ = svc.RegisterDoctor(context.Background(), h.ID, pending)
	_, _ = svc.SetDoctorStatus(context.Background(), h.ID, active.ID, DoctorActive)

	scheds, err := svc.ActiveSchedules(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(scheds) != 1 {
		t.Fatalf("expected 1 schedule, got %d", len(scheds))
	}
	if scheds[0].DoctorID != active.ID || scheds[0].OPDStartTime != "09:00" || scheds[0].OPDEndTime != "13:00" {
		t.Errorf("unexpected schedule %+v", scheds[0])
	}
}

func TestSetupStatus(t *testing.T) {
	svc, parts := newTestService()
	h := createHospital(t, svc)

	st, err := svc.SetupStatus(context.Background(), h.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Complete || st.HasDoctors || st.HasPartitions {
		t.Errorf("expected empty setup, got %+v", st)
	}

	_ = svc.RegisterDoctor(context.Background(), h.ID, &Doctor{Name: "A", Email: "a@x.com", Specialization: "ENT"})
	parts[h.ID] = 2
	st, _ = svc.SetupStatus(context.Background(), h.ID)
	if !st.Complete {
		t.Errorf("expected complete setup, got %+v", st)
	}
}
