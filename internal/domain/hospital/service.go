package hospital

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/arogyalink/hms/internal/platform/apperr"
	"github.com/arogyalink/hms/internal/platform/validation"
)

// PartitionCounter reports how many bed partitions a hospital has defined.
type PartitionCounter interface {
	CountPartitions(ctx context.Context, hospitalID uuid.UUID) (int, error)
}

type Service struct {
	hospitals  HospitalRepository
	doctors    DoctorRepository
	partitions PartitionCounter
}

func NewService(h HospitalRepository, d DoctorRepository, partitions PartitionCounter) *Service {
	return &Service{hospitals: h, doctors: d, partitions: partitions}
}

// -- Hospital --

func (s *Service) CreateHospital(ctx context.Context, h *Hospital) error {
	h.Name = strings.TrimSpace(h.Name)
	h.Email = strings.ToLower(strings.TrimSpace(h.Email))
	if h.Name == "" {
		return apperr.Invalid("name is required")
	}
	if h.Email == "" {
		return apperr.Invalid("email is required")
	}
	if h.AdmissionFee < 0 {
		return apperr.Invalid("admission_fee must not be negative")
	}
	start, end, err := opdHours(h.OPDStartTime, h.OPDEndTime)
	if err != nil {
		return err
	}
	h.OPDStartTime, h.OPDEndTime = start, end
	return apperr.FromStorage(s.hospitals.Create(ctx, h), "hospital")
}

func (s *Service) GetHospital(ctx context.Context, id uuid.UUID) (*Hospital, error) {
	h, err := s.hospitals.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.FromStorage(err, "hospital")
	}
	return h, nil
}

// UpdateSettings changes OPD hours, UPI id and admission fee.
func (s *Service) UpdateSettings(ctx context.Context, hospitalID uuid.UUID, upd SettingsUpdate) (*Hospital, error) {
	h, err := s.GetHospital(ctx, hospitalID)
	if err != nil {
		return nil, err
	}

	start, end := h.OPDStartTime, h.OPDEndTime
	if upd.OPDStartTime != nil {
		start = *upd.OPDStartTime
	}
	if upd.OPDEndTime != nil {
		end = *upd.OPDEndTime
	}
	if h.OPDStartTime, h.OPDEndTime, err = opdHours(start, end); err != nil {
		return nil, err
	}

	if upd.UPIID != nil {
		if v := strings.TrimSpace(*upd.UPIID); v == "" {
			h.UPIID = nil
		} else {
			h.UPIID = &v
		}
	}
	if upd.AdmissionFee != nil {
		if *upd.AdmissionFee < 0 {
			return nil, apperr.Invalid("admission_fee must not be negative")
		}
		h.AdmissionFee = *upd.AdmissionFee
	}

	if err := s.hospitals.Update(ctx, h); err != nil {
		return nil, apperr.FromStorage(err, "hospital")
	}
	return h, nil
}

func opdHours(start, end string) (string, string, error) {
	st, err := validation.ParseClock(start)
	if err != nil {
		return "", "", apperr.Invalid("opd_start_time: %v", err)
	}
	en, err := validation.ParseClock(end)
	if err != nil {
		return "", "", apperr.Invalid("opd_end_time: %v", err)
	}
	if st >= en {
		return "", "", apperr.Invalid("opd_start_time must be before opd_end_time")
	}
	return st, en, nil
}

// SetupStatus reports whether the hospital has the doctors and wards it
// needs before it can take patients.
func (s *Service) SetupStatus(ctx context.Context, hospitalID uuid.UUID) (*SetupStatus, error) {
	_, doctors, err := s.doctors.ListByHospital(ctx, hospitalID, "", 1, 0)
	if err != nil {
		return nil, apperr.FromStorage(err, "doctor")
	}
	partitions, err := s.partitions.CountPartitions(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	st := &SetupStatus{HasDoctors: doctors > 0, HasPartitions: partitions > 0}
	st.Complete = st.HasDoctors && st.HasPartitions
	return st, nil
}

// -- Doctor --

func (s *Service) RegisterDoctor(ctx context.Context, hospitalID uuid.UUID, d *Doctor) error {
	d.HospitalID = hospitalID
	d.Name = strings.TrimSpace(d.Name)
	d.Email = strings.ToLower(strings.TrimSpace(d.Email))
	d.Specialization = strings.TrimSpace(d.Specialization)
	if d.Name == "" {
		return apperr.Invalid("name is required")
	}
	if d.Email == "" {
		return apperr.Invalid("email is required")
	}
	if d.Specialization == "" {
		return apperr.Invalid("specialization is required")
	}
	d.Status = DoctorPending
	return apperr.FromStorage(s.doctors.Create(ctx, d), "doctor")
}

func (s *Service) GetDoctor(ctx context.Context, hospitalID, id uuid.UUID) (*Doctor, error) {
	d, err := s.doctors.GetByID(ctx, hospitalID, id)
	if err != nil {
		return nil, apperr.FromStorage(err, "doctor")
	}
	return d, nil
}

// ActiveDoctor returns the doctor only if they belong to the hospital and
// have been activated.
func (s *Service) ActiveDoctor(ctx context.Context, hospitalID, id uuid.UUID) (*Doctor, error) {
	d, err := s.GetDoctor(ctx, hospitalID, id)
	if err != nil {
		return nil, err
	}
	if d.Status != DoctorActive {
		return nil, apperr.Invalid("doctor %s is not active", id)
	}
	return d, nil
}

func (s *Service) SetDoctorStatus(ctx context.Context, hospitalID, id uuid.UUID, status string) (*Doctor, error) {
	if status != DoctorPending && status != DoctorActive {
		return nil, apperr.Invalid("status must be %q or %q", DoctorPending, DoctorActive)
	}
	d, err := s.GetDoctor(ctx, hospitalID, id)
	if err != nil {
		return nil, err
	}
	d.Status = status
	if err := s.doctors.UpdateStatus(ctx, d); err != nil {
		return nil, apperr.FromStorage(err, "doctor")
	}
	return d, nil
}

func (s *Service) ListDoctors(ctx context.Context, hospitalID uuid.UUID, status string, limit, offset int) ([]*Doctor, int, error) {
	items, total, err := s.doctors.ListByHospital(ctx, hospitalID, status, limit, offset)
	if err != nil {
		return nil, 0, apperr.FromStorage(err, "doctor")
	}
	return items, total, nil
}

// ActiveSchedules lists every active doctor across hospitals with the OPD
// hours slots are generated from.
func (s *Service) ActiveSchedules(ctx context.Context) ([]Schedule, error) {
	out, err := s.doctors.ListActiveSchedules(ctx)
	if err != nil {
		return nil, apperr.FromStorage(err, "doctor")
	}
	return out, nil
}
