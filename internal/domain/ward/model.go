package ward

import (
	"time"

	"github.com/google/uuid"
)

// BedPartition is a named pool of beds. The counters satisfy
// AvailableBeds+OccupiedBeds == TotalBeds, all non-negative.
type BedPartition struct {
	ID            uuid.UUID `db:"id" json:"id"`
	Seq           int64     `db:"seq" json:"-"`
	HospitalID    uuid.UUID `db:"hospital_id" json:"hospital_id"`
	Name          string    `db:"name" json:"name"`
	TotalBeds     int       `db:"total_beds" json:"total_beds"`
	AvailableBeds int       `db:"available_beds" json:"available_beds"`
	OccupiedBeds  int       `db:"occupied_beds" json:"occupied_beds"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Consistent reports whether the counters hold their invariant.
func (p *BedPartition) Consistent() bool {
	return p.AvailableBeds >= 0 && p.OccupiedBeds >= 0 &&
		p.AvailableBeds+p.OccupiedBeds == p.TotalBeds
}

// PartitionUpdate renames and/or resizes a partition. Nil fields are left
// untouched.
type PartitionUpdate struct {
	Name      *string `json:"name" validate:"omitempty,min=1,max=100"`
	TotalBeds *int    `json:"total_beds" validate:"omitempty,gte=0"`
}

// Summary totals the counters of every partition in a hospital.
type Summary struct {
	Partitions    int `json:"partitions"`
	TotalBeds     int `json:"total_beds"`
	AvailableBeds int `json:"available_beds"`
	OccupiedBeds  int `json:"occupied_beds"`
}
