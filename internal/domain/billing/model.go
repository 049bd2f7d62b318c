package billing

import (
	"fmt"
	"math"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// Bill statuses. A cash payment waits as Pending until the hospital
// confirms it.
const (
	StatusUnpaid  = "Unpaid"
	StatusPending = "Pending"
	StatusPaid    = "Paid"
)

// Payment modes.
const (
	ModeCash = "cash"
	ModeUPI  = "upi"
)

// Metric kinds passed to the observer.
const (
	KindOPD             = "opd"
	KindHospitalization = "hospitalization"
)

// HospitalizationBill is the single invoice of a discharged admission.
type HospitalizationBill struct {
	ID                uuid.UUID `db:"id" json:"id"`
	AdmissionID       uuid.UUID `db:"admission_id" json:"admission_id"`
	HospitalID        uuid.UUID `db:"hospital_id" json:"hospital_id"`
	PatientID         uuid.UUID `db:"patient_id" json:"patient_id"`
	BillNumber        string    `db:"bill_number" json:"bill_number"`
	AdmissionDate     string    `db:"admission_date" json:"admission_date"`
	DischargeDate     string    `db:"discharge_date" json:"discharge_date"`
	TotalDays         int       `db:"total_days" json:"total_days"`
	RoomCharges       float64   `db:"room_charges" json:"room_charges"`
	TreatmentCharges  float64   `db:"treatment_charges" json:"treatment_charges"`
	DoctorFees        float64   `db:"doctor_fees" json:"doctor_fees"`
	MedicineCharges   float64   `db:"medicine_charges" json:"medicine_charges"`
	DiagnosticCharges float64   `db:"diagnostic_charges" json:"diagnostic_charges"`
	MiscCharges       float64   `db:"misc_charges" json:"misc_charges"`
	GrossTotal        float64   `db:"gross_total" json:"gross_total"`
	InsuranceCovered  float64   `db:"insurance_covered" json:"insurance_covered"`
	NetPayable        float64   `db:"net_payable" json:"net_payable"`
	PaymentMode       *string   `db:"payment_mode" json:"payment_mode,omitempty"`
	TransactionID     *string   `db:"transaction_id" json:"transaction_id,omitempty"`
	Status            string    `db:"status" json:"status"`
	SeenByPatient     bool      `db:"seen_by_patient" json:"seen_by_patient"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// Charges are the line items of a hospitalization bill.
type Charges struct {
	RoomCharges       float64 `json:"room_charges" validate:"gte=0"`
	TreatmentCharges  float64 `json:"treatment_charges" validate:"gte=0"`
	DoctorFees        float64 `json:"doctor_fees" validate:"gte=0"`
	MedicineCharges   float64 `json:"medicine_charges" validate:"gte=0"`
	DiagnosticCharges float64 `json:"diagnostic_charges" validate:"gte=0"`
	MiscCharges       float64 `json:"misc_charges" validate:"gte=0"`
	InsuranceCovered  float64 `json:"insurance_covered" validate:"gte=0"`
}

func (c Charges) items() []float64 {
	return []float64{c.RoomCharges, c.TreatmentCharges, c.DoctorFees, c.MedicineCharges, c.DiagnosticCharges, c.MiscCharges}
}

// Gross is the sum of all line items.
func (c Charges) Gross() float64 {
	var sum float64
	for _, v := range c.items() {
		sum += v
	}
	return money(sum)
}

func (c Charges) validate() error {
	for _, v := range append(c.items(), c.InsuranceCovered) {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("charges must be non-negative amounts")
		}
	}
	return nil
}

// OPDCharges are the fees of one OPD visit. TaxPercent is added to the
// fees as a flat amount.
type OPDCharges struct {
	VisitingFee float64 `json:"visiting_fee" validate:"gte=0"`
	CheckupFee  float64 `json:"checkup_fee" validate:"gte=0"`
	TaxPercent  float64 `json:"tax_percent" validate:"gte=0"`
}

// Total is visiting fee plus checkup fee plus tax.
func (c OPDCharges) Total() float64 {
	return money(c.VisitingFee + c.CheckupFee + c.TaxPercent)
}

// UPIIntent is what a UPI app needs to pay a bill.
type UPIIntent struct {
	UPIID  string  `json:"upi_id"`
	Payee  string  `json:"payee"`
	Amount float64 `json:"amount"`
	Note   string  `json:"note"`
	URI    string  `json:"uri"`
}

func newUPIIntent(upiID, payee string, amount float64, note string) *UPIIntent {
	q := url.Values{}
	q.Set("pa", upiID)
	q.Set("pn", payee)
	q.Set("am", fmt.Sprintf("%.2f", amount))
	q.Set("tn", note)
	q.Set("cu", "INR")
	return &UPIIntent{
		UPIID:  upiID,
		Payee:  payee,
		Amount: amount,
		Note:   note,
		URI:    "upi://pay?" + q.Encode(),
	}
}

// money rounds to two decimal places.
func money(v float64) float64 {
	return math.Round(v*100) / 100
}
