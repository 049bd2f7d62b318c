package billing

import (
	"bytes"
	"text/template"

	"github.com/arogyalink/hms/internal/domain/hospital"
	"github.com/arogyalink/hms/internal/domain/opd"
)

// InvoiceRenderer turns a bill into the document attached to the bill
// email.
type InvoiceRenderer interface {
	OPDInvoice(h *hospital.Hospital, a *opd.Appointment) ([]byte, error)
	HospitalizationInvoice(h *hospital.Hospital, b *HospitalizationBill) ([]byte, error)
}

// TextRenderer renders plain-text invoices.
type TextRenderer struct {
	opd  *template.Template
	hosp *template.Template
}

var funcs = template.FuncMap{
	"amount": func(v *float64) float64 {
		if v == nil {
			return 0
		}
		return *v
	},
}

const opdInvoice = `{{.Hospital.Name}}
OPD INVOICE

Patient:      {{.Appointment.PatientName}}
Date:         {{.Appointment.AppointmentDate}} {{.Appointment.StartTime}}
Token:        {{.Appointment.TokenNumber}}

Visiting fee: {{printf "%.2f" (amount .Appointment.VisitingFee)}}
Checkup fee:  {{printf "%.2f" (amount .Appointment.CheckupFee)}}
Tax:          {{printf "%.2f" (amount .Appointment.TaxPercent)}}
Total:        {{printf "%.2f" (amount .Appointment.TotalAmount)}}
`

const hospitalizationInvoice = `{{.Hospital.Name}}
HOSPITALIZATION INVOICE {{.Bill.BillNumber}}

Admitted:     {{.Bill.AdmissionDate}}
Discharged:   {{.Bill.DischargeDate}}
Days:         {{.Bill.TotalDays}}

Room:         {{printf "%.2f" .Bill.RoomCharges}}
Treatment:    {{printf "%.2f" .Bill.TreatmentCharges}}
Doctor fees:  {{printf "%.2f" .Bill.DoctorFees}}
Medicines:    {{printf "%.2f" .Bill.MedicineCharges}}
Diagnostics:  {{printf "%.2f" .Bill.DiagnosticCharges}}
Misc:         {{printf "%.2f" .Bill.MiscCharges}}
Gross total:  {{printf "%.2f" .Bill.GrossTotal}}
Insurance:    {{printf "%.2f" .Bill.InsuranceCovered}}
Net payable:  {{printf "%.2f" .Bill.NetPayable}}
`

func NewTextRenderer() *TextRenderer {
	return &TextRenderer{
		opd:  template.Must(template.New("opd").Funcs(funcs).Parse(opdInvoice)),
		hosp: template.Must(template.New("hospitalization").Parse(hospitalizationInvoice)),
	}
}

func (r *TextRenderer) OPDInvoice(h *hospital.Hospital, a *opd.Appointment) ([]byte, error) {
	var buf bytes.Buffer
	err := r.opd.Execute(&buf, struct {
		Hospital    *hospital.Hospital
		Appointment *opd.Appointment
	}{h, a})
	return buf.Bytes(), err
}

func (r *TextRenderer) HospitalizationInvoice(h *hospital.Hospital, b *HospitalizationBill) ([]byte, error) {
	var buf bytes.Buffer
	err := r.hosp.Execute(&buf, struct {
		Hospital *hospital.Hospital
		Bill     *HospitalizationBill
	}{h, b})
	return buf.Bytes(), err
}
