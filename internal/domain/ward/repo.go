package ward

import (
	"context"

	"github.com/google/uuid"
)

type PartitionRepository interface {
	Create(ctx context.Context, p *BedPartition) error
	GetByID(ctx context.Context, hospitalID, id uuid.UUID) (*BedPartition, error)
	// GetForUpdate reads the partition and holds a row lock until the
	// surrounding transaction ends.
	GetForUpdate(ctx context.Context, hospitalID, id uuid.UUID) (*BedPartition, error)
	Update(ctx context.Context, p *BedPartition) error
	Delete(ctx context.Context, hospitalID, id uuid.UUID) error
	ListByHospital(ctx context.Context, hospitalID uuid.UUID) ([]*BedPartition, error)
	// FirstAvailable returns the oldest partition with a free bed, locking
	// it when lock is set. It returns pgx.ErrNoRows when none qualifies.
	FirstAvailable(ctx context.Context, hospitalID uuid.UUID, lock bool) (*BedPartition, error)
	CountByHospital(ctx context.Context, hospitalID uuid.UUID) (int, error)
}
