package hospital

import (
	"context"

	"github.com/google/uuid"
)

type HospitalRepository interface {
	Create(ctx context.Context, h *Hospital) error
	GetByID(ctx context.Context, id uuid.UUID) (*Hospital, error)
	Update(ctx context.Context, h *Hospital) error
}

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, hospitalID, id uuid.UUID) (*Doctor, error)
	UpdateStatus(ctx context.Context, d *Doctor) error
	ListByHospital(ctx context.Context, hospitalID uuid.UUID, status string, limit, offset int) ([]*Doctor, int, error)
	ListActiveSchedules(ctx context.Context) ([]Schedule, error)
}
