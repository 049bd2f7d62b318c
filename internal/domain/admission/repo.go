package admission

import (
	"context"

	"github.com/google/uuid"
)

type AdmissionRepository interface {
	Create(ctx context.Context, a *Admission) error
	GetByID(ctx context.Context, hospitalID, id uuid.UUID) (*Admission, error)
	// GetForUpdate locks the row for the rest of the caller's transaction.
	GetForUpdate(ctx context.Context, hospitalID, id uuid.UUID) (*Admission, error)
	GetForPatient(ctx context.Context, patientID, id uuid.UUID) (*Admission, error)
	Update(ctx context.Context, a *Admission) error
	ListByHospital(ctx context.Context, hospitalID uuid.UUID, status string, limit, offset int) ([]*Admission, int, error)
	ListByDoctor(ctx context.Context, hospitalID, doctorID uuid.UUID, limit, offset int) ([]*Admission, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Admission, int, error)
	CountUnseenByDoctor(ctx context.Context, hospitalID, doctorID uuid.UUID) (int, error)
	MarkSeenByDoctor(ctx context.Context, hospitalID, doctorID uuid.UUID) (int64, error)
}

type TreatmentRepository interface {
	Create(ctx context.Context, e *TreatmentEntry) error
	ListByAdmission(ctx context.Context, admissionID uuid.UUID) ([]*TreatmentEntry, error)
	CountUnseenByAdmin(ctx context.Context, hospitalID uuid.UUID) (int, error)
	MarkSeenByAdmin(ctx context.Context, hospitalID uuid.UUID) (int64, error)
}
