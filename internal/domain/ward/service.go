package ward

import (
	"bytes"
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/arogyalink/hms/internal/platform/apperr"
	"github.com/arogyalink/hms/internal/platform/db"
)

// claimAttempts bounds ClaimFirstAvailable. Under READ COMMITTED a locked
// first-fit read can come back empty when a concurrent claim drained the
// chosen row, even though later partitions still have beds.
const claimAttempts = 3

// Claim outcomes reported to the Observer.
const (
	OutcomeClaimed   = "claimed"
	OutcomeExhausted = "exhausted"
)

// Observer receives ledger events, e.g. for metrics.
type Observer interface {
	ObserveClaim(outcome string)
	ObserveRelease()
}

type nopObserver struct{}

func (nopObserver) ObserveClaim(string) {}
func (nopObserver) ObserveRelease()     {}

// Service is the bed-partition ledger. Every counter change happens inside
// a transaction on a row-locked partition.
type Service struct {
	partitions PartitionRepository
	tx         db.Transactor
	logger     zerolog.Logger
	obs        Observer
}

func NewService(partitions PartitionRepository, tx db.Transactor, logger zerolog.Logger) *Service {
	return &Service{
		partitions: partitions,
		tx:         tx,
		logger:     logger.With().Str("component", "ward").Logger(),
		obs:        nopObserver{},
	}
}

// WithObserver sets the observer notified of claims and releases.
func (s *Service) WithObserver(o Observer) *Service {
	s.obs = o
	return s
}

// -- Partition administration --

func (s *Service) CreatePartition(ctx context.Context, hospitalID uuid.UUID, name string, totalBeds int) (*BedPartition, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Invalid("name is required")
	}
	if totalBeds < 0 {
		return nil, apperr.Invalid("total_beds must not be negative")
	}
	p := &BedPartition{
		HospitalID:    hospitalID,
		Name:          name,
		TotalBeds:     totalBeds,
		AvailableBeds: totalBeds,
	}
	if err := s.partitions.Create(ctx, p); err != nil {
		return nil, apperr.FromStorage(err, "partition")
	}
	return p, nil
}

func (s *Service) GetPartition(ctx context.Context, hospitalID, id uuid.UUID) (*BedPartition, error) {
	p, err := s.partitions.GetByID(ctx, hospitalID, id)
	if err != nil {
		return nil, apperr.FromStorage(err, "partition")
	}
	return p, nil
}

func (s *Service) ListPartitions(ctx context.Context, hospitalID uuid.UUID) ([]*BedPartition, error) {
	items, err := s.partitions.ListByHospital(ctx, hospitalID)
	if err != nil {
		return nil, apperr.FromStorage(err, "partition")
	}
	return items, nil
}

// UpdatePartition renames and/or resizes a partition. Shrinking below the
// number of occupied beds is refused.
func (s *Service) UpdatePartition(ctx context.Context, hospitalID, id uuid.UUID, upd PartitionUpdate) (*BedPartition, error) {
	var out *BedPartition
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		p, err := s.lock(ctx, hospitalID, id)
		if err != nil {
			return err
		}
		if upd.Name != nil {
			name := strings.TrimSpace(*upd.Name)
			if name == "" {
				return apperr.Invalid("name must not be blank")
			}
			p.Name = name
		}
		if upd.TotalBeds != nil {
			total := *upd.TotalBeds
			if total < 0 {
				return apperr.Invalid("total_beds must not be negative")
			}
			if total < p.OccupiedBeds {
				return apperr.Conflict("cannot resize %s to %d beds: %d are occupied", p.Name, total, p.OccupiedBeds)
			}
			p.TotalBeds = total
			p.AvailableBeds = total - p.OccupiedBeds
		}
		if err := s.save(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

func (s *Service) DeletePartition(ctx context.Context, hospitalID, id uuid.UUID) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		p, err := s.lock(ctx, hospitalID, id)
		if err != nil {
			return err
		}
		if p.OccupiedBeds > 0 {
			return apperr.Conflict("cannot delete %s: %d beds are occupied", p.Name, p.OccupiedBeds)
		}
		return apperr.FromStorage(s.partitions.Delete(ctx, hospitalID, id), "partition")
	})
}

func (s *Service) Summary(ctx context.Context, hospitalID uuid.UUID) (*Summary, error) {
	items, err := s.ListPartitions(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	sum := &Summary{Partitions: len(items)}
	for _, p := range items {
		sum.TotalBeds += p.TotalBeds
		sum.AvailableBeds += p.AvailableBeds
		sum.OccupiedBeds += p.OccupiedBeds
	}
	return sum, nil
}

// CountPartitions reports how many partitions the hospital has.
func (s *Service) CountPartitions(ctx context.Context, hospitalID uuid.UUID) (int, error) {
	n, err := s.partitions.CountByHospital(ctx, hospitalID)
	if err != nil {
		return 0, apperr.FromStorage(err, "partition")
	}
	return n, nil
}

// -- Ledger operations --

// Claim takes one bed from the partition.
func (s *Service) Claim(ctx context.Context, hospitalID, id uuid.UUID) (*BedPartition, error) {
	var out *BedPartition
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		p, err := s.lock(ctx, hospitalID, id)
		if err != nil {
			return err
		}
		if err := s.claimLocked(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

// Release returns one bed to the partition. Releasing from a partition with
// no occupied beds means the lifecycle lost track of a bed; it is reported
// as an invariant violation and nothing is changed.
func (s *Service) Release(ctx context.Context, hospitalID, id uuid.UUID) (*BedPartition, error) {
	var out *BedPartition
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		p, err := s.lock(ctx, hospitalID, id)
		if err != nil {
			return err
		}
		if err := s.releaseLocked(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

// FindFirstAvailable returns the oldest partition with a free bed, or nil
// when the hospital has no capacity left.
func (s *Service) FindFirstAvailable(ctx context.Context, hospitalID uuid.UUID) (*BedPartition, error) {
	p, err := s.partitions.FirstAvailable(ctx, hospitalID, false)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.FromStorage(err, "partition")
	}
	return p, nil
}

// ClaimFirstAvailable finds the oldest partition with a free bed and claims
// it in one transaction.
func (s *Service) ClaimFirstAvailable(ctx context.Context, hospitalID uuid.UUID) (*BedPartition, error) {
	var out *BedPartition
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		for attempt := 0; attempt < claimAttempts; attempt++ {
			p, err := s.partitions.FirstAvailable(ctx, hospitalID, true)
			if errors.Is(err, pgx.ErrNoRows) {
				free, err := s.FindFirstAvailable(ctx, hospitalID)
				if err != nil {
					return err
				}
				if free == nil {
					break
				}
				continue
			}
			if err != nil {
				return apperr.FromStorage(err, "partition")
			}
			if err := s.claimLocked(ctx, p); err != nil {
				return err
			}
			out = p
			return nil
		}
		s.obs.ObserveClaim(OutcomeExhausted)
		return apperr.Exhausted("no beds available")
	})
	return out, err
}

// Transfer moves one occupied bed from one partition to another. Both rows
// are locked in id order so that opposite transfers cannot deadlock; the
// target is checked before the source is touched.
func (s *Service) Transfer(ctx context.Context, hospitalID, fromID, toID uuid.UUID) (*BedPartition, error) {
	if fromID == toID {
		return nil, apperr.Conflict("patient is already in this partition")
	}
	var out *BedPartition
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		first, second := fromID, toID
		if bytes.Compare(first[:], second[:]) > 0 {
			first, second = second, first
		}
		a, err := s.lock(ctx, hospitalID, first)
		if err != nil {
			return err
		}
		b, err := s.lock(ctx, hospitalID, second)
		if err != nil {
			return err
		}
		from, to := a, b
		if from.ID != fromID {
			from, to = b, a
		}

		if to.AvailableBeds <= 0 {
			s.obs.ObserveClaim(OutcomeExhausted)
			return apperr.Exhausted("no beds available in %s", to.Name)
		}
		if err := s.releaseLocked(ctx, from); err != nil {
			return err
		}
		if err := s.claimLocked(ctx, to); err != nil {
			return err
		}
		out = to
		return nil
	})
	return out, err
}

func (s *Service) lock(ctx context.Context, hospitalID, id uuid.UUID) (*BedPartition, error) {
	p, err := s.partitions.GetForUpdate(ctx, hospitalID, id)
	if err != nil {
		return nil, apperr.FromStorage(err, "partition")
	}
	return p, nil
}

// claimLocked and releaseLocked expect p to be row-locked by the caller's
// transaction.
func (s *Service) claimLocked(ctx context.Context, p *BedPartition) error {
	if p.AvailableBeds <= 0 {
		s.obs.ObserveClaim(OutcomeExhausted)
		return apperr.Exhausted("no beds available in %s", p.Name)
	}
	p.AvailableBeds--
	p.OccupiedBeds++
	if err := s.save(ctx, p); err != nil {
		return err
	}
	s.obs.ObserveClaim(OutcomeClaimed)
	return nil
}

func (s *Service) releaseLocked(ctx context.Context, p *BedPartition) error {
	if p.OccupiedBeds <= 0 {
		s.logger.WithLevel(zerolog.FatalLevel).
			Str("partition_id", p.ID.String()).
			Str("hospital_id", p.HospitalID.String()).
			Int("total_beds", p.TotalBeds).
			Int("available_beds", p.AvailableBeds).
			Msg("release on partition with no occupied beds")
		return apperr.Invariant("partition %s has no occupied beds to release", p.ID)
	}
	p.AvailableBeds++
	p.OccupiedBeds--
	if err := s.save(ctx, p); err != nil {
		return err
	}
	s.obs.ObserveRelease()
	return nil
}

func (s *Service) save(ctx context.Context, p *BedPartition) error {
	if !p.Consistent() {
		s.logger.WithLevel(zerolog.FatalLevel).
			Str("partition_id", p.ID.String()).
			Int("total_beds", p.TotalBeds).
			Int("available_beds", p.AvailableBeds).
			Int("occupied_beds", p.OccupiedBeds).
			Msg("partition counters out of balance")
		return apperr.Invariant("partition %s counters out of balance", p.ID)
	}
	return apperr.FromStorage(s.partitions.Update(ctx, p), "partition")
}
