package billing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/yeqown/go-qrcode"

	"github.com/arogyalink/hms/internal/domain/admission"
	"github.com/arogyalink/hms/internal/domain/hospital"
	"github.com/arogyalink/hms/internal/domain/opd"
	"github.com/arogyalink/hms/internal/platform/apperr"
	"github.com/arogyalink/hms/internal/platform/db"
	"github.com/arogyalink/hms/internal/platform/notification"
)

// AppointmentStore is the part of the OPD store billing writes to.
type AppointmentStore interface {
	GetForUpdate(ctx context.Context, hospitalID, id uuid.UUID) (*opd.Appointment, error)
	Update(ctx context.Context, a *opd.Appointment) error
}

type AdmissionReader interface {
	Get(ctx context.Context, hospitalID, id uuid.UUID) (*admission.Admission, error)
}

type Directory interface {
	GetHospital(ctx context.Context, id uuid.UUID) (*hospital.Hospital, error)
}

type Notifier interface {
	Notify(msg notification.Message)
}

type Observer interface {
	ObserveBill(kind string)
}

type nopObserver struct{}

func (nopObserver) ObserveBill(string) {}

type Service struct {
	bills        BillRepository
	appointments AppointmentStore
	admissions   AdmissionReader
	dir          Directory
	tx           db.Transactor
	renderer     InvoiceRenderer
	notifier     Notifier
	obs          Observer
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(bills BillRepository, appointments AppointmentStore, admissions AdmissionReader, dir Directory,
	tx db.Transactor, renderer InvoiceRenderer, notifier Notifier, logger zerolog.Logger) *Service {
	return &Service{
		bills:        bills,
		appointments: appointments,
		admissions:   admissions,
		dir:          dir,
		tx:           tx,
		renderer:     renderer,
		notifier:     notifier,
		obs:          nopObserver{},
		logger:       logger.With().Str("component", "billing").Logger(),
		now:          time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) WithObserver(o Observer) *Service {
	s.obs = o
	return s
}

// -- OPD --

// GenerateOPDBill bills one of the doctor's appointments. A bill is
// generated at most once.
func (s *Service) GenerateOPDBill(ctx context.Context, hospitalID, doctorID, appointmentID uuid.UUID, c OPDCharges) (*opd.Appointment, error) {
	if c.VisitingFee < 0 || c.CheckupFee < 0 || c.TaxPercent < 0 {
		return nil, apperr.Invalid("fees must be non-negative")
	}

	var out *opd.Appointment
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.appointments.GetForUpdate(ctx, hospitalID, appointmentID)
		if err != nil {
			return apperr.FromStorage(err, "appointment")
		}
		if a.DoctorID != doctorID {
			return apperr.NotFound("appointment not found")
		}
		if a.BillGenerated {
			return apperr.Conflict("bill already generated for this appointment")
		}
		if strings.EqualFold(a.Status, opd.StatusCancelled) {
			return apperr.Conflict("cannot bill a cancelled appointment")
		}
		total := c.Total()
		now := s.now()
		a.VisitingFee = &c.VisitingFee
		a.CheckupFee = &c.CheckupFee
		a.TaxPercent = &c.TaxPercent
		a.TotalAmount = &total
		a.BillGenerated = true
		a.BillGeneratedAt = &now
		if err := s.appointments.Update(ctx, a); err != nil {
			return apperr.FromStorage(err, "appointment")
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.obs.ObserveBill(KindOPD)
	s.logger.Info().
		Str("appointment_id", out.ID.String()).
		Float64("total", *out.TotalAmount).
		Msg("opd bill generated")
	s.sendOPDBill(ctx, out)
	return out, nil
}

func (s *Service) sendOPDBill(ctx context.Context, a *opd.Appointment) {
	if s.notifier == nil || a.PatientEmail == "" {
		return
	}
	msg := notification.Message{
		To:         a.PatientEmail,
		TemplateID: notification.TplOPDBill,
		Data: map[string]string{
			"patient_name": a.PatientName,
			"date":         a.AppointmentDate,
			"total_amount": fmt.Sprintf("%.2f", *a.TotalAmount),
		},
	}
	if doc, err := s.render(ctx, a.HospitalID, func(h *hospital.Hospital) ([]byte, error) {
		return s.renderer.OPDInvoice(h, a)
	}); err != nil {
		s.logger.Warn().Err(err).Str("appointment_id", a.ID.String()).Msg("invoice rendering failed")
	} else {
		msg.Attachments = []notification.Attachment{{
			Name:        fmt.Sprintf("opd-invoice-%d.txt", a.TokenNumber),
			ContentType: "text/plain",
			Content:     doc,
		}}
	}
	s.notifier.Notify(msg)
}

// PayOPDBill records payment of a generated OPD bill.
func (s *Service) PayOPDBill(ctx context.Context, hospitalID, appointmentID uuid.UUID, mode string) (*opd.Appointment, error) {
	if err := validMode(mode); err != nil {
		return nil, err
	}
	var out *opd.Appointment
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.appointments.GetForUpdate(ctx, hospitalID, appointmentID)
		if err != nil {
			return apperr.FromStorage(err, "appointment")
		}
		if !a.BillGenerated {
			return apperr.Conflict("bill has not been generated")
		}
		if a.BillPaid {
			return apperr.Conflict("bill is already paid")
		}
		a.BillPaid = true
		a.PaymentMode = &mode
		if err := s.appointments.Update(ctx, a); err != nil {
			return apperr.FromStorage(err, "appointment")
		}
		out = a
		return nil
	})
	return out, err
}

// -- Hospitalization --

// GenerateHospitalizationBill creates the single bill of a discharged
// admission. Both the admission and discharge days are charged.
func (s *Service) GenerateHospitalizationBill(ctx context.Context, hospitalID, admissionID uuid.UUID, c Charges) (*HospitalizationBill, error) {
	if err := c.validate(); err != nil {
		return nil, apperr.Invalid("%v", err)
	}
	gross := c.Gross()
	net := money(gross - c.InsuranceCovered)
	if net < 0 {
		return nil, apperr.Invalid("insurance_covered %.2f exceeds gross total %.2f", c.InsuranceCovered, gross)
	}

	a, err := s.admissions.Get(ctx, hospitalID, admissionID)
	if err != nil {
		return nil, err
	}
	if a.DischargeDate == nil {
		return nil, apperr.Conflict("admission has not been discharged")
	}
	days, err := stayDays(a.AdmissionDate, *a.DischargeDate)
	if err != nil {
		return nil, err
	}

	now := s.now()
	b := &HospitalizationBill{
		AdmissionID:       a.ID,
		HospitalID:        hospitalID,
		PatientID:         a.PatientID,
		BillNumber:        billNumber(a.ID, now),
		AdmissionDate:     a.AdmissionDate,
		DischargeDate:     a.DischargeDate.UTC().Format(admission.DateLayout),
		TotalDays:         days,
		RoomCharges:       c.RoomCharges,
		TreatmentCharges:  c.TreatmentCharges,
		DoctorFees:        c.DoctorFees,
		MedicineCharges:   c.MedicineCharges,
		DiagnosticCharges: c.DiagnosticCharges,
		MiscCharges:       c.MiscCharges,
		GrossTotal:        gross,
		InsuranceCovered:  c.InsuranceCovered,
		NetPayable:        net,
		Status:            StatusUnpaid,
	}
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		_, err := s.bills.GetByAdmission(ctx, a.ID)
		if err == nil {
			return apperr.Conflict("a bill already exists for this admission")
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return apperr.FromStorage(err, "bill")
		}
		if err := s.bills.Create(ctx, b); err != nil {
			if apperr.IsUniqueViolation(err) {
				return apperr.Conflict("a bill already exists for this admission")
			}
			return apperr.FromStorage(err, "bill")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.obs.ObserveBill(KindHospitalization)
	s.logger.Info().
		Str("bill_number", b.BillNumber).
		Str("admission_id", a.ID.String()).
		Int("total_days", b.TotalDays).
		Float64("net_payable", b.NetPayable).
		Msg("hospitalization bill generated")
	if a.Email != nil && *a.Email != "" {
		s.sendHospitalizationBill(ctx, *a.Email, a.PatientName, b)
	}
	return b, nil
}

func (s *Service) sendHospitalizationBill(ctx context.Context, to, name string, b *HospitalizationBill) {
	if s.notifier == nil {
		return
	}
	msg := notification.Message{
		To:         to,
		TemplateID: notification.TplHospitalBill,
		Data: map[string]string{
			"patient_name": name,
			"bill_number":  b.BillNumber,
			"total_days":   fmt.Sprintf("%d", b.TotalDays),
			"net_payable":  fmt.Sprintf("%.2f", b.NetPayable),
		},
	}
	if doc, err := s.render(ctx, b.HospitalID, func(h *hospital.Hospital) ([]byte, error) {
		return s.renderer.HospitalizationInvoice(h, b)
	}); err != nil {
		s.logger.Warn().Err(err).Str("bill_number", b.BillNumber).Msg("invoice rendering failed")
	} else {
		msg.Attachments = []notification.Attachment{{
			Name:        b.BillNumber + ".txt",
			ContentType: "text/plain",
			Content:     doc,
		}}
	}
	s.notifier.Notify(msg)
}

func (s *Service) render(ctx context.Context, hospitalID uuid.UUID, fn func(h *hospital.Hospital) ([]byte, error)) ([]byte, error) {
	if s.renderer == nil {
		return nil, fmt.Errorf("no invoice renderer configured")
	}
	h, err := s.dir.GetHospital(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	return fn(h)
}

// Pay records the patient's chosen payment mode. Cash waits for the
// hospital to confirm; UPI is marked paid when the intent is issued.
func (s *Service) Pay(ctx context.Context, patientID, billID uuid.UUID, mode, transactionID string) (*HospitalizationBill, *UPIIntent, error) {
	if err := validMode(mode); err != nil {
		return nil, nil, err
	}
	var (
		out    *HospitalizationBill
		intent *UPIIntent
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		b, err := s.bills.GetForUpdate(ctx, billID)
		if err != nil {
			return apperr.FromStorage(err, "bill")
		}
		if b.PatientID != patientID {
			return apperr.NotFound("bill not found")
		}
		switch {
		case b.Status == StatusPaid:
			return apperr.Conflict("bill is already paid")
		case b.Status == StatusPending && mode == ModeCash:
			return apperr.Conflict("bill is already awaiting cash payment")
		}

		if mode == ModeUPI {
			intent, err = s.intent(ctx, b)
			if err != nil {
				return err
			}
			b.Status = StatusPaid
		} else {
			b.Status = StatusPending
		}
		b.PaymentMode = &mode
		b.TransactionID = nil
		if tid := strings.TrimSpace(transactionID); tid != "" {
			b.TransactionID = &tid
		}
		if err := s.bills.Update(ctx, b); err != nil {
			return apperr.FromStorage(err, "bill")
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info().
		Str("bill_number", out.BillNumber).
		Str("mode", mode).
		Str("status", out.Status).
		Msg("bill payment recorded")
	return out, intent, nil
}

// ConfirmCash marks a bill awaiting cash payment as paid.
func (s *Service) ConfirmCash(ctx context.Context, hospitalID, billID uuid.UUID) (*HospitalizationBill, error) {
	var out *HospitalizationBill
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		b, err := s.bills.GetForUpdate(ctx, billID)
		if err != nil {
			return apperr.FromStorage(err, "bill")
		}
		if b.HospitalID != hospitalID {
			return apperr.NotFound("bill not found")
		}
		if b.Status != StatusPending {
			return apperr.Conflict("bill is %s, not awaiting cash payment", b.Status)
		}
		b.Status = StatusPaid
		if err := s.bills.Update(ctx, b); err != nil {
			return apperr.FromStorage(err, "bill")
		}
		out = b
		return nil
	})
	return out, err
}

// UPIQR writes the bill's UPI intent as a JPEG QR code.
func (s *Service) UPIQR(ctx context.Context, patientID, billID uuid.UUID, w io.Writer) error {
	b, err := s.GetForPatient(ctx, patientID, billID)
	if err != nil {
		return err
	}
	if b.Status == StatusPaid && (b.PaymentMode == nil || *b.PaymentMode != ModeUPI) {
		return apperr.Conflict("bill is already paid")
	}
	intent, err := s.intent(ctx, b)
	if err != nil {
		return err
	}
	qrc, err := qrcode.New(intent.URI)
	if err != nil {
		return fmt.Errorf("encode upi qr: %w", err)
	}
	return qrc.SaveTo(w)
}

func (s *Service) intent(ctx context.Context, b *HospitalizationBill) (*UPIIntent, error) {
	h, err := s.dir.GetHospital(ctx, b.HospitalID)
	if err != nil {
		return nil, err
	}
	if h.UPIID == nil || strings.TrimSpace(*h.UPIID) == "" {
		return nil, apperr.Invalid("hospital has no UPI id configured")
	}
	return newUPIIntent(*h.UPIID, h.Name, b.NetPayable, "Bill "+b.BillNumber), nil
}

// -- Reads --

func (s *Service) Get(ctx context.Context, hospitalID, id uuid.UUID) (*HospitalizationBill, error) {
	b, err := s.bills.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.FromStorage(err, "bill")
	}
	if b.HospitalID != hospitalID {
		return nil, apperr.NotFound("bill not found")
	}
	return b, nil
}

func (s *Service) GetForPatient(ctx context.Context, patientID, id uuid.UUID) (*HospitalizationBill, error) {
	b, err := s.bills.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.FromStorage(err, "bill")
	}
	if b.PatientID != patientID {
		return nil, apperr.NotFound("bill not found")
	}
	return b, nil
}

func (s *Service) ListByHospital(ctx context.Context, hospitalID uuid.UUID, status string, limit, offset int) ([]*HospitalizationBill, int, error) {
	items, total, err := s.bills.ListByHospital(ctx, hospitalID, status, limit, offset)
	if err != nil {
		return nil, 0, apperr.FromStorage(err, "bill")
	}
	return items, total, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*HospitalizationBill, int, error) {
	items, total, err := s.bills.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, 0, apperr.FromStorage(err, "bill")
	}
	return items, total, nil
}

func (s *Service) Unseen(ctx context.Context, patientID uuid.UUID) (int, error) {
	n, err := s.bills.CountUnseenByPatient(ctx, patientID)
	if err != nil {
		return 0, apperr.FromStorage(err, "bill")
	}
	return n, nil
}

func (s *Service) MarkSeen(ctx context.Context, patientID uuid.UUID) (int64, error) {
	n, err := s.bills.MarkSeenByPatient(ctx, patientID)
	if err != nil {
		return 0, apperr.FromStorage(err, "bill")
	}
	return n, nil
}

func validMode(mode string) error {
	if mode != ModeCash && mode != ModeUPI {
		return apperr.Invalid("payment_mode must be %q or %q", ModeCash, ModeUPI)
	}
	return nil
}

// stayDays counts calendar days from admission to discharge, both
// included.
func stayDays(admitted string, discharged time.Time) (int, error) {
	from, err := time.Parse(admission.DateLayout, admitted)
	if err != nil {
		return 0, apperr.Invariant("admission date %q is not a date", admitted)
	}
	d := discharged.UTC()
	to := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	days := int(to.Sub(from).Hours()/24) + 1
	if days < 1 {
		return 0, apperr.Invalid("discharge on %s precedes admission on %s", to.Format(admission.DateLayout), admitted)
	}
	return days, nil
}

func billNumber(admissionID uuid.UUID, now time.Time) string {
	return fmt.Sprintf("BILL-%s-%d", strings.ToUpper(admissionID.String()), now.Unix())
}
