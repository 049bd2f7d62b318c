package billing

import (
	"context"

	"github.com/google/uuid"
)

type BillRepository interface {
	Create(ctx context.Context, b *HospitalizationBill) error
	GetByID(ctx context.Context, id uuid.UUID) (*HospitalizationBill, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*HospitalizationBill, error)
	GetByAdmission(ctx context.Context, admissionID uuid.UUID) (*HospitalizationBill, error)
	Update(ctx context.Context, b *HospitalizationBill) error
	ListByHospital(ctx context.Context, hospitalID uuid.UUID, status string, limit, offset int) ([]*HospitalizationBill, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*HospitalizationBill, int, error)
	CountUnseenByPatient(ctx context.Context, patientID uuid.UUID) (int, error)
	MarkSeenByPatient(ctx context.Context, patientID uuid.UUID) (int64, error)
}
