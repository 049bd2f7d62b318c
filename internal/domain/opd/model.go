package opd

import (
	"time"

	"github.com/google/uuid"
)

// SlotLength is the fixed length of a generated OPD slot.
const SlotLength = 20 * time.Minute

// WindowDays is the number of days, today included, kept bookable by
// maintenance.
const WindowDays = 7

// DateLayout is the format of slot and appointment dates.
const DateLayout = "2006-01-02"

// Appointment statuses.
const (
	StatusPending   = "Pending"
	StatusCompleted = "Completed"
	StatusCancelled = "Cancelled"
	StatusReferred  = "Referred"
)

// Slot is one bookable time window of a doctor on a date.
type Slot struct {
	ID          uuid.UUID `db:"id" json:"id"`
	HospitalID  uuid.UUID `db:"hospital_id" json:"hospital_id"`
	DoctorID    uuid.UUID `db:"doctor_id" json:"doctor_id"`
	SlotDate    string    `db:"slot_date" json:"slot_date"`
	StartTime   string    `db:"start_time" json:"start_time"`
	EndTime     string    `db:"end_time" json:"end_time"`
	IsBooked    bool      `db:"is_booked" json:"is_booked"`
	IsAvailable bool      `db:"is_available" json:"is_available"`
	Remarks     *string   `db:"remarks" json:"remarks,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Appointment is a booked OPD visit with its queue token and billing state.
type Appointment struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	HospitalID      uuid.UUID  `db:"hospital_id" json:"hospital_id"`
	DoctorID        uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	PatientID       uuid.UUID  `db:"patient_id" json:"patient_id"`
	SlotID          *uuid.UUID `db:"slot_id" json:"slot_id,omitempty"`
	PatientName     string     `db:"patient_name" json:"patient_name"`
	PatientAge      int        `db:"patient_age" json:"patient_age"`
	PatientContact  string     `db:"patient_contact" json:"patient_contact"`
	PatientEmail    string     `db:"patient_email" json:"patient_email"`
	Gender          string     `db:"gender" json:"gender"`
	AppointmentDate string     `db:"appointment_date" json:"appointment_date"`
	StartTime       string     `db:"start_time" json:"start_time"`
	EndTime         string     `db:"end_time" json:"end_time"`
	Symptoms        string     `db:"symptoms" json:"symptoms"`
	IsEmergency     bool       `db:"is_emergency" json:"is_emergency"`
	Status          string     `db:"status" json:"status"`
	ReferralReason  *string    `db:"referral_reason" json:"referral_reason,omitempty"`
	TokenNumber     int        `db:"token_number" json:"token_number"`
	VisitingFee     *float64   `db:"visiting_fee" json:"visiting_fee,omitempty"`
	CheckupFee      *float64   `db:"checkup_fee" json:"checkup_fee,omitempty"`
	TaxPercent      *float64   `db:"tax_percent" json:"tax_percent,omitempty"`
	TotalAmount     *float64   `db:"total_amount" json:"total_amount,omitempty"`
	BillGenerated   bool       `db:"bill_generated" json:"bill_generated"`
	BillPaid        bool       `db:"bill_paid" json:"bill_paid"`
	PaymentMode     *string    `db:"payment_mode" json:"payment_mode,omitempty"`
	BillGeneratedAt *time.Time `db:"bill_generated_at" json:"bill_generated_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// Prescription is a doctor's note on an appointment. An appointment with a
// prescription and no bill is waiting for billing.
type Prescription struct {
	ID            uuid.UUID `db:"id" json:"id"`
	AppointmentID uuid.UUID `db:"appointment_id" json:"appointment_id"`
	Details       string    `db:"details" json:"details"`
	CreatedBy     uuid.UUID `db:"created_by" json:"created_by"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Booking is a patient's request for a slot.
type Booking struct {
	DoctorID       uuid.UUID `json:"doctor_id" validate:"required"`
	Date           string    `json:"appointment_date" validate:"required,datetime=2006-01-02"`
	StartTime      string    `json:"start_time" validate:"required,clock"`
	EndTime        string    `json:"end_time" validate:"required,clock"`
	IsEmergency    bool      `json:"is_emergency"`
	PatientName    string    `json:"patient_name" validate:"required,max=200"`
	PatientAge     int       `json:"patient_age" validate:"gte=0,lte=150"`
	PatientContact string    `json:"patient_contact" validate:"required,phone"`
	PatientEmail   string    `json:"patient_email" validate:"required,email"`
	Gender         string    `json:"gender" validate:"required"`
	Symptoms       string    `json:"symptoms" validate:"required"`
}

// QueueStatus is where an appointment stands in its doctor's queue for the
// day. CurrentToken is nil when nobody is waiting.
type QueueStatus struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	DoctorID      uuid.UUID `json:"doctor_id"`
	Date          string    `json:"appointment_date"`
	StartTime     string    `json:"start_time"`
	Status        string    `json:"status"`
	TokenNumber   int       `json:"token_number"`
	CurrentToken  *int      `json:"current_token"`
	Position      int       `json:"position_in_queue"`
	TotalTokens   int       `json:"total_tokens"`
}

// MaintenanceReport summarises one maintenance sweep.
type MaintenanceReport struct {
	Doctors int   `json:"doctors"`
	Deleted int64 `json:"deleted"`
	Created int   `json:"created"`
}
