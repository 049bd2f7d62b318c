package admission

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/arogyalink/hms/internal/domain/hospital"
	"github.com/arogyalink/hms/internal/domain/ward"
	"github.com/arogyalink/hms/internal/platform/apperr"
	"github.com/arogyalink/hms/internal/platform/db"
	"github.com/arogyalink/hms/internal/platform/notification"
)

// BedLedger is the part of the ward ledger the lifecycle drives. Calls made
// inside WithTx join the caller's transaction.
type BedLedger interface {
	ClaimFirstAvailable(ctx context.Context, hospitalID uuid.UUID) (*ward.BedPartition, error)
	Claim(ctx context.Context, hospitalID, id uuid.UUID) (*ward.BedPartition, error)
	Release(ctx context.Context, hospitalID, id uuid.UUID) (*ward.BedPartition, error)
	Transfer(ctx context.Context, hospitalID, fromID, toID uuid.UUID) (*ward.BedPartition, error)
}

// Directory resolves hospitals and doctors.
type Directory interface {
	GetHospital(ctx context.Context, id uuid.UUID) (*hospital.Hospital, error)
	GetDoctor(ctx context.Context, hospitalID, id uuid.UUID) (*hospital.Doctor, error)
	ActiveDoctor(ctx context.Context, hospitalID, id uuid.UUID) (*hospital.Doctor, error)
}

type Notifier interface {
	Notify(msg notification.Message)
}

type Service struct {
	admissions AdmissionRepository
	treatments TreatmentRepository
	beds       BedLedger
	dir        Directory
	tx         db.Transactor
	notifier   Notifier
	logger     zerolog.Logger
	now        func() time.Time
}

func NewService(admissions AdmissionRepository, treatments TreatmentRepository, beds BedLedger,
	dir Directory, tx db.Transactor, notifier Notifier, logger zerolog.Logger) *Service {
	return &Service{
		admissions: admissions,
		treatments: treatments,
		beds:       beds,
		dir:        dir,
		tx:         tx,
		notifier:   notifier,
		logger:     logger.With().Str("component", "admission").Logger(),
		now:        time.Now,
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Intake records a patient's hospitalization request as Pending with no bed
// and no doctor.
func (s *Service) Intake(ctx context.Context, hospitalID, patientID uuid.UUID, a *Admission) error {
	if _, err := s.dir.GetHospital(ctx, hospitalID); err != nil {
		return err
	}
	a.PatientName = strings.TrimSpace(a.PatientName)
	a.ReasonSymptoms = strings.TrimSpace(a.ReasonSymptoms)
	if a.PatientName == "" {
		return apperr.Invalid("patient_name is required")
	}
	if a.ReasonSymptoms == "" {
		return apperr.Invalid("reason_symptoms is required")
	}
	if a.PatientAge < 0 {
		return apperr.Invalid("patient_age must not be negative")
	}
	if a.AdmissionDate == "" {
		a.AdmissionDate = s.now().UTC().Format(DateLayout)
	} else if _, err := time.Parse(DateLayout, a.AdmissionDate); err != nil {
		return apperr.Invalid("admission_date must be YYYY-MM-DD")
	}
	if a.ReferringDoctorID != nil {
		if _, err := s.dir.GetDoctor(ctx, hospitalID, *a.ReferringDoctorID); err != nil {
			return err
		}
	}

	a.HospitalID = hospitalID
	a.PatientID = patientID
	a.Status = StatusPending
	a.DoctorID = nil
	a.BedPartitionID = nil
	a.RejectionReason = nil
	a.DischargeDate = nil
	a.SeenByDoctor = false
	return apperr.FromStorage(s.admissions.Create(ctx, a), "admission")
}

// Approve assigns the doctor and claims a bed in the oldest partition with
// capacity, in one transaction.
func (s *Service) Approve(ctx context.Context, hospitalID, id, doctorID uuid.UUID) (*Admission, error) {
	if doctorID == uuid.Nil {
		return nil, apperr.Invalid("doctor_id is required")
	}
	var (
		out *Admission
		bed *ward.BedPartition
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.lock(ctx, hospitalID, id)
		if err != nil {
			return err
		}
		if a.Status != StatusPending {
			return apperr.Conflict("admission is %s, only Pending admissions can be approved", a.Status)
		}
		if _, err := s.dir.ActiveDoctor(ctx, hospitalID, doctorID); err != nil {
			return err
		}
		bed, err = s.beds.ClaimFirstAvailable(ctx, hospitalID)
		if err != nil {
			return err
		}
		a.BedPartitionID = &bed.ID
		a.DoctorID = &doctorID
		a.Status = StatusApproved
		a.RejectionReason = nil
		a.SeenByDoctor = false
		if err := s.save(ctx, a); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("admission_id", out.ID.String()).Str("partition_id", bed.ID.String()).Msg("admission approved")
	s.notify(out, notification.TplAdmissionApproved, map[string]string{"ward": bed.Name})
	return out, nil
}

// Reject refuses a request. Approved stays cannot be rejected; they are
// discharged instead.
func (s *Service) Reject(ctx context.Context, hospitalID, id uuid.UUID, reason string) (*Admission, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Invalid("rejection reason is required")
	}
	var out *Admission
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.lock(ctx, hospitalID, id)
		if err != nil {
			return err
		}
		if a.Status == StatusApproved {
			return apperr.Conflict("cannot reject an approved admission")
		}
		if a.Terminal() {
			return apperr.Conflict("admission is already %s", a.Status)
		}
		a.Status = StatusRejected
		a.RejectionReason = &reason
		a.DoctorID = nil
		if err := s.save(ctx, a); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(out, notification.TplAdmissionRejected, map[string]string{"reason": reason})
	return out, nil
}

// Discharge ends an approved stay and returns its bed to the ledger.
func (s *Service) Discharge(ctx context.Context, hospitalID, id uuid.UUID) (*Admission, error) {
	var out *Admission
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.lock(ctx, hospitalID, id)
		if err != nil {
			return err
		}
		if a.Status != StatusApproved {
			return apperr.Conflict("admission is %s, only Approved admissions can be discharged", a.Status)
		}
		if a.BedPartitionID != nil {
			if _, err := s.beds.Release(ctx, hospitalID, *a.BedPartitionID); err != nil {
				return err
			}
		}
		now := s.now()
		a.BedPartitionID = nil
		a.Status = StatusDischarged
		a.DischargeDate = &now
		if err := s.save(ctx, a); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(out, notification.TplAdmissionDischarge, map[string]string{
		"discharge_date": out.DischargeDate.Format(DateLayout),
	})
	return out, nil
}

// TransferWard moves an approved stay to another partition. The release of
// the old bed and the claim of the new one commit together or not at all.
func (s *Service) TransferWard(ctx context.Context, hospitalID, id, partitionID uuid.UUID) (*Admission, error) {
	var out *Admission
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.lock(ctx, hospitalID, id)
		if err != nil {
			return err
		}
		if a.Status != StatusApproved {
			return apperr.Conflict("admission is %s, only Approved admissions can be transferred", a.Status)
		}
		if a.BedPartitionID != nil && *a.BedPartitionID == partitionID {
			return apperr.Conflict("patient is already in this partition")
		}
		if a.BedPartitionID == nil {
			_, err = s.beds.Claim(ctx, hospitalID, partitionID)
		} else {
			_, err = s.beds.Transfer(ctx, hospitalID, *a.BedPartitionID, partitionID)
		}
		if err != nil {
			return err
		}
		a.BedPartitionID = &partitionID
		if err := s.save(ctx, a); err != nil {
			return err
		}
		out = a
		return nil
	})
	return out, err
}

// RecordTreatment appends to the treatment history. The status update is
// informational and leaves the admission status alone.
func (s *Service) RecordTreatment(ctx context.Context, hospitalID, admissionID, doctorID uuid.UUID, t Treatment) (*TreatmentEntry, error) {
	switch t.StatusUpdate {
	case TreatmentInProgress, TreatmentReferred, TreatmentDischarged:
	default:
		return nil, apperr.Invalid("status_update must be one of %q, %q, %q",
			TreatmentInProgress, TreatmentReferred, TreatmentDischarged)
	}
	entry := &TreatmentEntry{
		AdmissionID:  admissionID,
		DoctorID:     doctorID,
		StatusUpdate: t.StatusUpdate,
	}
	if reason := strings.TrimSpace(t.ReferralReason); t.StatusUpdate == TreatmentReferred {
		if reason == "" {
			return nil, apperr.Invalid("referral_reason is required when referring")
		}
		entry.ReferralReason = &reason
	}
	if notes := strings.TrimSpace(t.Notes); notes != "" {
		entry.TreatmentNotes = &notes
	}

	a, err := s.Get(ctx, hospitalID, admissionID)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusApproved {
		return nil, apperr.Conflict("admission is %s, treatment can only be recorded during a stay", a.Status)
	}
	if a.DoctorID == nil || *a.DoctorID != doctorID {
		return nil, apperr.Conflict("admission is assigned to another doctor")
	}
	if err := s.treatments.Create(ctx, entry); err != nil {
		return nil, apperr.FromStorage(err, "treatment entry")
	}
	return entry, nil
}

// -- Reads --

func (s *Service) Get(ctx context.Context, hospitalID, id uuid.UUID) (*Admission, error) {
	a, err := s.admissions.GetByID(ctx, hospitalID, id)
	if err != nil {
		return nil, apperr.FromStorage(err, "admission")
	}
	return a, nil
}

// GetForPatient returns the admission only if it belongs to the patient.
func (s *Service) GetForPatient(ctx context.Context, patientID, id uuid.UUID) (*Admission, error) {
	a, err := s.admissions.GetForPatient(ctx, patientID, id)
	if err != nil {
		return nil, apperr.FromStorage(err, "admission")
	}
	return a, nil
}

func (s *Service) ListByHospital(ctx context.Context, hospitalID uuid.UUID, status string, limit, offset int) ([]*Admission, int, error) {
	items, total, err := s.admissions.ListByHospital(ctx, hospitalID, status, limit, offset)
	if err != nil {
		return nil, 0, apperr.FromStorage(err, "admission")
	}
	return items, total, nil
}

func (s *Service) ListByDoctor(ctx context.Context, hospitalID, doctorID uuid.UUID, limit, offset int) ([]*Admission, int, error) {
	items, total, err := s.admissions.ListByDoctor(ctx, hospitalID, doctorID, limit, offset)
	if err != nil {
		return nil, 0, apperr.FromStorage(err, "admission")
	}
	return items, total, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Admission, int, error) {
	items, total, err := s.admissions.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, 0, apperr.FromStorage(err, "admission")
	}
	return items, total, nil
}

func (s *Service) Treatments(ctx context.Context, hospitalID, admissionID uuid.UUID) ([]*TreatmentEntry, error) {
	if _, err := s.Get(ctx, hospitalID, admissionID); err != nil {
		return nil, err
	}
	items, err := s.treatments.ListByAdmission(ctx, admissionID)
	if err != nil {
		return nil, apperr.FromStorage(err, "treatment entry")
	}
	return items, nil
}

// -- Seen flags --

func (s *Service) UnseenForDoctor(ctx context.Context, hospitalID, doctorID uuid.UUID) (int, error) {
	n, err := s.admissions.CountUnseenByDoctor(ctx, hospitalID, doctorID)
	if err != nil {
		return 0, apperr.FromStorage(err, "admission")
	}
	return n, nil
}

func (s *Service) MarkSeenByDoctor(ctx context.Context, hospitalID, doctorID uuid.UUID) (int64, error) {
	n, err := s.admissions.MarkSeenByDoctor(ctx, hospitalID, doctorID)
	if err != nil {
		return 0, apperr.FromStorage(err, "admission")
	}
	return n, nil
}

func (s *Service) UnseenTreatments(ctx context.Context, hospitalID uuid.UUID) (int, error) {
	n, err := s.treatments.CountUnseenByAdmin(ctx, hospitalID)
	if err != nil {
		return 0, apperr.FromStorage(err, "treatment entry")
	}
	return n, nil
}

func (s *Service) MarkTreatmentsSeen(ctx context.Context, hospitalID uuid.UUID) (int64, error) {
	n, err := s.treatments.MarkSeenByAdmin(ctx, hospitalID)
	if err != nil {
		return 0, apperr.FromStorage(err, "treatment entry")
	}
	return n, nil
}

func (s *Service) lock(ctx context.Context, hospitalID, id uuid.UUID) (*Admission, error) {
	a, err := s.admissions.GetForUpdate(ctx, hospitalID, id)
	if err != nil {
		return nil, apperr.FromStorage(err, "admission")
	}
	return a, nil
}

func (s *Service) save(ctx context.Context, a *Admission) error {
	return apperr.FromStorage(s.admissions.Update(ctx, a), "admission")
}

// notify runs after commit; delivery problems never reach the caller.
func (s *Service) notify(a *Admission, template string, data map[string]string) {
	if s.notifier == nil || a.Email == nil || *a.Email == "" {
		return
	}
	data["patient_name"] = a.PatientName
	s.notifier.Notify(notification.Message{To: *a.Email, TemplateID: template, Data: data})
}
