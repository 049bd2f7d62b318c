package hospital

import (
	"time"

	"github.com/google/uuid"
)

// Hospital is the tenant every other record is scoped to.
type Hospital struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Email        string    `db:"email" json:"email"`
	UPIID        *string   `db:"upi_id" json:"upi_id,omitempty"`
	OPDStartTime string    `db:"opd_start_time" json:"opd_start_time"`
	OPDEndTime   string    `db:"opd_end_time" json:"opd_end_time"`
	AdmissionFee float64   `db:"admission_fee" json:"admission_fee"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

const (
	DoctorPending = "pending"
	DoctorActive  = "active"
)

type Doctor struct {
	ID             uuid.UUID `db:"id" json:"id"`
	HospitalID     uuid.UUID `db:"hospital_id" json:"hospital_id"`
	Name           string    `db:"name" json:"name"`
	Email          string    `db:"email" json:"email"`
	Phone          *string   `db:"phone" json:"phone,omitempty"`
	Specialization string    `db:"specialization" json:"specialization"`
	Status         string    `db:"status" json:"status"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Schedule pairs an active doctor with the OPD hours of their hospital.
type Schedule struct {
	DoctorID     uuid.UUID
	HospitalID   uuid.UUID
	OPDStartTime string
	OPDEndTime   string
}

// SettingsUpdate carries the hospital settings an admin may change. Nil
// fields are left untouched.
type SettingsUpdate struct {
	OPDStartTime *string  `json:"opd_start_time" validate:"omitempty,clock"`
	OPDEndTime   *string  `json:"opd_end_time" validate:"omitempty,clock"`
	UPIID        *string  `json:"upi_id" validate:"omitempty,max=100"`
	AdmissionFee *float64 `json:"admission_fee" validate:"omitempty,gte=0"`
}

type SetupStatus struct {
	HasDoctors    bool `json:"has_doctors"`
	HasPartitions bool `json:"has_partitions"`
	Complete      bool `json:"complete"`
}
