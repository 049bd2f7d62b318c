package admission

import (
	"time"

	"github.com/google/uuid"
)

// Admission statuses. Rejected and Discharged are terminal.
const (
	StatusPending    = "Pending"
	StatusApproved   = "Approved"
	StatusRejected   = "Rejected"
	StatusDischarged = "Discharged"
)

// Treatment status updates. They describe the doctor's view of the stay and
// never change Admission.Status.
const (
	TreatmentInProgress = "In Progress"
	TreatmentReferred   = "Referred"
	TreatmentDischarged = "Discharged"
)

// DateLayout is the format of AdmissionDate.
const DateLayout = "2006-01-02"

// Admission is one patient's hospitalization request and stay.
type Admission struct {
	ID                    uuid.UUID  `db:"id" json:"id"`
	PatientID             uuid.UUID  `db:"patient_id" json:"patient_id"`
	HospitalID            uuid.UUID  `db:"hospital_id" json:"hospital_id"`
	DoctorID              *uuid.UUID `db:"doctor_id" json:"doctor_id,omitempty"`
	ReferringDoctorID     *uuid.UUID `db:"referring_doctor_id" json:"referring_doctor_id,omitempty"`
	OPDAppointmentID      *uuid.UUID `db:"opd_appointment_id" json:"opd_appointment_id,omitempty"`
	BedPartitionID        *uuid.UUID `db:"bed_partition_id" json:"bed_partition_id,omitempty"`
	PatientName           string     `db:"patient_name" json:"patient_name"`
	PatientAge            int        `db:"patient_age" json:"patient_age"`
	Gender                string     `db:"gender" json:"gender"`
	ContactNumber         string     `db:"contact_number" json:"contact_number"`
	Email                 *string    `db:"email" json:"email,omitempty"`
	AdmissionDate         string     `db:"admission_date" json:"admission_date"`
	ReasonSymptoms        string     `db:"reason_symptoms" json:"reason_symptoms"`
	InsuranceProvider     *string    `db:"insurance_provider" json:"insurance_provider,omitempty"`
	InsurancePolicyNumber *string    `db:"insurance_policy_number" json:"insurance_policy_number,omitempty"`
	PaymentMode           *string    `db:"payment_mode" json:"payment_mode,omitempty"`
	GuardianName          *string    `db:"guardian_name" json:"guardian_name,omitempty"`
	GuardianRelationship  *string    `db:"guardian_relationship" json:"guardian_relationship,omitempty"`
	GuardianContactNumber *string    `db:"guardian_contact_number" json:"guardian_contact_number,omitempty"`
	SpecialInstructions   *string    `db:"special_instructions" json:"special_instructions,omitempty"`
	Allergies             *string    `db:"allergies" json:"allergies,omitempty"`
	PastSurgeries         *string    `db:"past_surgeries" json:"past_surgeries,omitempty"`
	CurrentMedications    *string    `db:"current_medications" json:"current_medications,omitempty"`
	DischargeDate         *time.Time `db:"discharge_date" json:"discharge_date,omitempty"`
	Status                string     `db:"status" json:"status"`
	RejectionReason       *string    `db:"rejection_reason" json:"rejection_reason,omitempty"`
	SeenByDoctor          bool       `db:"seen_by_doctor" json:"seen_by_doctor"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updated_at"`
}

// Terminal reports whether no further transition is possible.
func (a *Admission) Terminal() bool {
	return a.Status == StatusRejected || a.Status == StatusDischarged
}

// TreatmentEntry is one append-only line of a stay's treatment history.
type TreatmentEntry struct {
	ID             uuid.UUID `db:"id" json:"id"`
	AdmissionID    uuid.UUID `db:"admission_id" json:"admission_id"`
	DoctorID       uuid.UUID `db:"doctor_id" json:"doctor_id"`
	TreatmentNotes *string   `db:"treatment_notes" json:"treatment_notes,omitempty"`
	StatusUpdate   string    `db:"status_update" json:"status_update"`
	ReferralReason *string   `db:"referral_reason" json:"referral_reason,omitempty"`
	SeenByAdmin    bool      `db:"seen_by_admin" json:"seen_by_admin"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Treatment is the input of RecordTreatment.
type Treatment struct {
	Notes          string `json:"treatment_notes"`
	StatusUpdate   string `json:"status_update" validate:"required,oneof='In Progress' Referred Discharged"`
	ReferralReason string `json:"referral_reason"`
}
