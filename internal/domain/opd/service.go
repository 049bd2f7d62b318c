package opd

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/arogyalink/hms/internal/domain/hospital"
	"github.com/arogyalink/hms/internal/platform/apperr"
	"github.com/arogyalink/hms/internal/platform/db"
	"github.com/arogyalink/hms/internal/platform/notification"
	"github.com/arogyalink/hms/internal/platform/validation"
)

// Directory resolves hospitals and doctors.
type Directory interface {
	GetHospital(ctx context.Context, id uuid.UUID) (*hospital.Hospital, error)
	ActiveDoctor(ctx context.Context, hospitalID, id uuid.UUID) (*hospital.Doctor, error)
	ActiveSchedules(ctx context.Context) ([]hospital.Schedule, error)
}

type Notifier interface {
	Notify(msg notification.Message)
}

// Observer receives booking events, e.g. for metrics.
type Observer interface {
	ObserveBooking(emergency bool)
}

type nopObserver struct{}

func (nopObserver) ObserveBooking(bool) {}

// Service is the OPD slot calendar: slot grid, bookings, queue tokens and
// prescriptions.
type Service struct {
	slots         SlotRepository
	appointments  AppointmentRepository
	prescriptions PrescriptionRepository
	dir           Directory
	tx            db.Transactor
	notifier      Notifier
	obs           Observer
	logger        zerolog.Logger
	now           func() time.Time
}

func NewService(slots SlotRepository, appointments AppointmentRepository, prescriptions PrescriptionRepository,
	dir Directory, tx db.Transactor, notifier Notifier, logger zerolog.Logger) *Service {
	return &Service{
		slots:         slots,
		appointments:  appointments,
		prescriptions: prescriptions,
		dir:           dir,
		tx:            tx,
		notifier:      notifier,
		obs:           nopObserver{},
		logger:        logger.With().Str("component", "opd").Logger(),
		now:           time.Now,
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithObserver sets the observer notified of bookings.
func (s *Service) WithObserver(o Observer) *Service {
	s.obs = o
	return s
}

func (s *Service) today() string {
	return s.now().Format(DateLayout)
}

// -- Slot grid --

// Generate creates the 20-minute grid for a doctor over days consecutive
// dates starting at from. Existing slots are left alone, so regeneration is
// idempotent. Empty start or end fall back to the hospital's OPD hours.
func (s *Service) Generate(ctx context.Context, hospitalID, doctorID uuid.UUID, start, end, from string, days int) (int, error) {
	if days < 1 || days > 31 {
		return 0, apperr.Invalid("days must be between 1 and 31")
	}
	if _, err := time.Parse(DateLayout, from); err != nil {
		return 0, apperr.Invalid("from_date must be YYYY-MM-DD")
	}
	if _, err := s.dir.ActiveDoctor(ctx, hospitalID, doctorID); err != nil {
		return 0, err
	}
	if start == "" || end == "" {
		h, err := s.dir.GetHospital(ctx, hospitalID)
		if err != nil {
			return 0, err
		}
		if start == "" {
			start = h.OPDStartTime
		}
		if end == "" {
			end = h.OPDEndTime
		}
	}
	return s.generate(ctx, hospitalID, doctorID, start, end, from, days)
}

func (s *Service) generate(ctx context.Context, hospitalID, doctorID uuid.UUID, start, end, from string, days int) (int, error) {
	times, err := SlotTimes(start, end)
	if err != nil {
		return 0, apperr.Invalid("%v", err)
	}
	created := 0
	for i := 0; i < days; i++ {
		date, err := addDays(from, i)
		if err != nil {
			return created, apperr.Invalid("invalid date %q", from)
		}
		for _, tr := range times {
			slot := &Slot{
				HospitalID:  hospitalID,
				DoctorID:    doctorID,
				SlotDate:    date,
				StartTime:   tr.Start,
				EndTime:     tr.End,
				IsAvailable: true,
			}
			ok, err := s.slots.CreateIfAbsent(ctx, slot)
			if err != nil {
				return created, apperr.FromStorage(err, "slot")
			}
			if ok {
				created++
			}
		}
	}
	return created, nil
}

// Maintain prunes unbooked past slots and fills every missing date of the
// rolling window for every active doctor. A failure for one doctor does not
// stop the sweep; all failures are returned together.
func (s *Service) Maintain(ctx context.Context, today time.Time) (*MaintenanceReport, error) {
	schedules, err := s.dir.ActiveSchedules(ctx)
	if err != nil {
		return nil, err
	}
	from := today.Format(DateLayout)
	to, _ := addDays(from, WindowDays-1)

	report := &MaintenanceReport{}
	var errs []error
	for _, sch := range schedules {
		deleted, created, err := s.maintainDoctor(ctx, sch, from, to)
		report.Deleted += deleted
		report.Created += created
		if err != nil {
			s.logger.Error().Err(err).Str("doctor_id", sch.DoctorID.String()).Msg("slot maintenance failed")
			errs = append(errs, err)
			continue
		}
		report.Doctors++
	}
	s.logger.Info().
		Int("doctors", report.Doctors).
		Int64("deleted", report.Deleted).
		Int("created", report.Created).
		Msg("slot maintenance finished")
	return report, errors.Join(errs...)
}

func (s *Service) maintainDoctor(ctx context.Context, sch hospital.Schedule, from, to string) (int64, int, error) {
	deleted, err := s.slots.DeleteUnbookedBefore(ctx, sch.DoctorID, from)
	if err != nil {
		return 0, 0, apperr.FromStorage(err, "slot")
	}
	have, err := s.slots.DatesWithSlots(ctx, sch.DoctorID, from, to)
	if err != nil {
		return deleted, 0, apperr.FromStorage(err, "slot")
	}
	created := 0
	for i := 0; i < WindowDays; i++ {
		date, _ := addDays(from, i)
		if have[date] {
			continue
		}
		n, err := s.generate(ctx, sch.HospitalID, sch.DoctorID, sch.OPDStartTime, sch.OPDEndTime, date, 1)
		created += n
		if err != nil {
			return deleted, created, err
		}
	}
	return deleted, created, nil
}

// -- Booking --

// Book reserves the exact slot and issues the queue token. Emergency
// bookings create the slot when the grid has none. The slot flip and the
// appointment commit together.
func (s *Service) Book(ctx context.Context, hospitalID, patientID uuid.UUID, b Booking) (*Appointment, error) {
	start, err := validation.ParseClock(b.StartTime)
	if err != nil {
		return nil, apperr.Invalid("%v", err)
	}
	end, err := validation.ParseClock(b.EndTime)
	if err != nil {
		return nil, apperr.Invalid("%v", err)
	}
	if start >= end {
		return nil, apperr.Invalid("start_time must be before end_time")
	}
	if _, err := time.Parse(DateLayout, b.Date); err != nil {
		return nil, apperr.Invalid("appointment_date must be YYYY-MM-DD")
	}
	if b.Date < s.today() {
		return nil, apperr.Invalid("cannot book a past date")
	}
	if _, err := s.dir.ActiveDoctor(ctx, hospitalID, b.DoctorID); err != nil {
		return nil, err
	}

	var out *Appointment
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.appointments.LockDay(ctx, b.DoctorID, b.Date); err != nil {
			return apperr.FromStorage(err, "appointment")
		}
		slot, err := s.findSlot(ctx, hospitalID, b.DoctorID, b.Date, start, end, b.IsEmergency)
		if err != nil {
			return err
		}
		if slot.IsBooked {
			return apperr.Conflict("this slot is already booked")
		}
		if !slot.IsAvailable {
			return apperr.Conflict("this slot is not available")
		}
		booked, err := s.slots.MarkBooked(ctx, slot.ID)
		if err != nil {
			return apperr.FromStorage(err, "slot")
		}
		if !booked {
			return apperr.Conflict("this slot is already booked")
		}

		token, err := s.token(ctx, hospitalID, b.DoctorID, b.Date, start)
		if err != nil {
			return err
		}
		a := &Appointment{
			HospitalID:      hospitalID,
			DoctorID:        b.DoctorID,
			PatientID:       patientID,
			SlotID:          &slot.ID,
			PatientName:     strings.TrimSpace(b.PatientName),
			PatientAge:      b.PatientAge,
			PatientContact:  b.PatientContact,
			PatientEmail:    b.PatientEmail,
			Gender:          b.Gender,
			AppointmentDate: b.Date,
			StartTime:       start,
			EndTime:         end,
			Symptoms:        b.Symptoms,
			IsEmergency:     b.IsEmergency,
			Status:          StatusPending,
			TokenNumber:     token,
		}
		if err := s.appointments.Create(ctx, a); err != nil {
			if apperr.IsUniqueViolation(err) {
				return apperr.Conflict("token %d is already taken", token)
			}
			return apperr.FromStorage(err, "appointment")
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.obs.ObserveBooking(out.IsEmergency)
	s.logger.Info().
		Str("appointment_id", out.ID.String()).
		Str("doctor_id", out.DoctorID.String()).
		Int("token", out.TokenNumber).
		Bool("emergency", out.IsEmergency).
		Msg("appointment booked")
	if s.notifier != nil && out.PatientEmail != "" {
		s.notifier.Notify(notification.Message{
			To:         out.PatientEmail,
			TemplateID: notification.TplAppointmentBooked,
			Data: map[string]string{
				"patient_name": out.PatientName,
				"token_number": strconv.Itoa(out.TokenNumber),
				"date":         out.AppointmentDate,
				"start_time":   out.StartTime,
			},
		})
	}
	return out, nil
}

func (s *Service) findSlot(ctx context.Context, hospitalID, doctorID uuid.UUID, date, start, end string, emergency bool) (*Slot, error) {
	slot, err := s.slots.Find(ctx, hospitalID, doctorID, date, start, end)
	if err == nil {
		return slot, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.FromStorage(err, "slot")
	}
	if !emergency {
		return nil, apperr.NotFound("selected slot not found")
	}
	slot = &Slot{
		HospitalID:  hospitalID,
		DoctorID:    doctorID,
		SlotDate:    date,
		StartTime:   start,
		EndTime:     end,
		IsAvailable: true,
	}
	if _, err := s.slots.CreateIfAbsent(ctx, slot); err != nil {
		return nil, apperr.FromStorage(err, "slot")
	}
	// A slot starting at the same time with a different end may already
	// exist; only an exact match can be booked.
	slot, err = s.slots.Find(ctx, hospitalID, doctorID, date, start, end)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Conflict("another slot already starts at %s", start)
	}
	if err != nil {
		return nil, apperr.FromStorage(err, "slot")
	}
	return slot, nil
}

// token is the 1-based rank of start among the doctor's slots that day.
// When that number was already issued, e.g. after a slot was removed or an
// emergency slot was squeezed in, the next unused number is taken instead.
func (s *Service) token(ctx context.Context, hospitalID, doctorID uuid.UUID, date, start string) (int, error) {
	slots, err := s.slots.ListByDoctorDate(ctx, hospitalID, doctorID, date)
	if err != nil {
		return 0, apperr.FromStorage(err, "slot")
	}
	sort.SliceStable(slots, func(i, j int) bool { return slots[i].StartTime < slots[j].StartTime })
	token := rank(slots, start)
	if token == 0 {
		return 0, apperr.Invariant("booked slot %s missing from the %s grid", start, date)
	}
	used, err := s.appointments.Tokens(ctx, doctorID, date)
	if err != nil {
		return 0, apperr.FromStorage(err, "appointment")
	}
	highest := 0
	taken := false
	for _, n := range used {
		if n == token {
			taken = true
		}
		if n > highest {
			highest = n
		}
	}
	if taken {
		token = highest + 1
	}
	return token, nil
}

// -- Queue --

// Queue reports the appointment's place in its doctor's queue for the day.
func (s *Service) Queue(ctx context.Context, a *Appointment) (*QueueStatus, error) {
	current, ok, err := s.appointments.CurrentToken(ctx, a.DoctorID, a.AppointmentDate)
	if err != nil {
		return nil, apperr.FromStorage(err, "appointment")
	}
	total, err := s.appointments.CountForDay(ctx, a.DoctorID, a.AppointmentDate)
	if err != nil {
		return nil, apperr.FromStorage(err, "appointment")
	}
	q := &QueueStatus{
		AppointmentID: a.ID,
		DoctorID:      a.DoctorID,
		Date:          a.AppointmentDate,
		StartTime:     a.StartTime,
		Status:        a.Status,
		TokenNumber:   a.TokenNumber,
		Position:      a.TokenNumber,
		TotalTokens:   total,
	}
	if ok {
		q.CurrentToken = &current
		q.Position = a.TokenNumber - current
	}
	return q, nil
}

// QueueForPatient returns the queue status of one of the patient's own
// appointments.
func (s *Service) QueueForPatient(ctx context.Context, patientID, id uuid.UUID) (*QueueStatus, error) {
	a, err := s.appointments.GetForPatient(ctx, patientID, id)
	if err != nil {
		return nil, apperr.FromStorage(err, "appointment")
	}
	return s.Queue(ctx, a)
}

// Upcoming lists the patient's appointments from today on with their queue
// status.
func (s *Service) Upcoming(ctx context.Context, patientID uuid.UUID) ([]*QueueStatus, error) {
	items, err := s.appointments.ListUpcomingForPatient(ctx, patientID, s.today())
	if err != nil {
		return nil, apperr.FromStorage(err, "appointment")
	}
	out := make([]*QueueStatus, 0, len(items))
	for _, a := range items {
		q, err := s.Queue(ctx, a)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

// -- Doctor actions --

// UpdateStatus closes a pending appointment. The slot stays booked whatever
// the outcome, so issued tokens keep matching slot ranks.
func (s *Service) UpdateStatus(ctx context.Context, hospitalID, doctorID, id uuid.UUID, status, reason string) (*Appointment, error) {
	reason = strings.TrimSpace(reason)
	switch status {
	case StatusCompleted, StatusCancelled:
	case StatusReferred:
		if reason == "" {
			return nil, apperr.Invalid("referral_reason is required when referring")
		}
	default:
		return nil, apperr.Invalid("status must be one of %q, %q, %q", StatusCompleted, StatusCancelled, StatusReferred)
	}

	var out *Appointment
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.lockOwned(ctx, hospitalID, doctorID, id)
		if err != nil {
			return err
		}
		if !strings.EqualFold(a.Status, StatusPending) {
			return apperr.Conflict("appointment is already %s", a.Status)
		}
		a.Status = status
		a.ReferralReason = nil
		if status == StatusReferred {
			a.ReferralReason = &reason
		}
		if err := s.appointments.Update(ctx, a); err != nil {
			return apperr.FromStorage(err, "appointment")
		}
		out = a
		return nil
	})
	return out, err
}

func (s *Service) AddPrescription(ctx context.Context, hospitalID, doctorID, appointmentID uuid.UUID, details string) (*Prescription, error) {
	details = strings.TrimSpace(details)
	if details == "" {
		return nil, apperr.Invalid("prescription details are required")
	}
	if _, err := s.owned(ctx, hospitalID, doctorID, appointmentID); err != nil {
		return nil, err
	}
	p := &Prescription{AppointmentID: appointmentID, Details: details, CreatedBy: doctorID}
	if err := s.prescriptions.Create(ctx, p); err != nil {
		return nil, apperr.FromStorage(err, "prescription")
	}
	return p, nil
}

func (s *Service) Prescriptions(ctx context.Context, hospitalID, appointmentID uuid.UUID) ([]*Prescription, error) {
	if _, err := s.GetAppointment(ctx, hospitalID, appointmentID); err != nil {
		return nil, err
	}
	items, err := s.prescriptions.ListByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, apperr.FromStorage(err, "prescription")
	}
	return items, nil
}

// BillPending lists the doctor's appointments that have a prescription but
// no bill yet.
func (s *Service) BillPending(ctx context.Context, hospitalID, doctorID uuid.UUID) ([]*Appointment, error) {
	items, err := s.appointments.ListBillPending(ctx, hospitalID, doctorID)
	if err != nil {
		return nil, apperr.FromStorage(err, "appointment")
	}
	return items, nil
}

// -- Manual slots --

func (s *Service) CreateSlot(ctx context.Context, hospitalID, doctorID uuid.UUID, date, start, end string) (*Slot, error) {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return nil, apperr.Invalid("slot_date must be YYYY-MM-DD")
	}
	start, end, err := normalizeRange(start, end)
	if err != nil {
		return nil, err
	}
	slot := &Slot{
		HospitalID:  hospitalID,
		DoctorID:    doctorID,
		SlotDate:    date,
		StartTime:   start,
		EndTime:     end,
		IsAvailable: true,
	}
	if err := s.slots.Create(ctx, slot); err != nil {
		if apperr.IsUniqueViolation(err) {
			return nil, apperr.Conflict("a slot already starts at %s on %s", start, date)
		}
		return nil, apperr.FromStorage(err, "slot")
	}
	return slot, nil
}

// UpdateSlot changes the times of an unbooked slot.
func (s *Service) UpdateSlot(ctx context.Context, hospitalID, doctorID, id uuid.UUID, start, end string) (*Slot, error) {
	start, end, err := normalizeRange(start, end)
	if err != nil {
		return nil, err
	}
	var out *Slot
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		slot, err := s.lockSlot(ctx, hospitalID, doctorID, id)
		if err != nil {
			return err
		}
		if slot.IsBooked {
			return apperr.Conflict("cannot edit a booked slot")
		}
		slot.StartTime, slot.EndTime = start, end
		if err := s.slots.Update(ctx, slot); err != nil {
			if apperr.IsUniqueViolation(err) {
				return apperr.Conflict("a slot already starts at %s on %s", start, slot.SlotDate)
			}
			return apperr.FromStorage(err, "slot")
		}
		out = slot
		return nil
	})
	return out, err
}

func (s *Service) DeleteSlot(ctx context.Context, hospitalID, doctorID, id uuid.UUID) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		slot, err := s.lockSlot(ctx, hospitalID, doctorID, id)
		if err != nil {
			return err
		}
		if slot.IsBooked {
			return apperr.Conflict("cannot delete a booked slot")
		}
		return apperr.FromStorage(s.slots.Delete(ctx, hospitalID, id), "slot")
	})
}

func (s *Service) ListSlots(ctx context.Context, hospitalID, doctorID uuid.UUID, date string) ([]*Slot, error) {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return nil, apperr.Invalid("date must be YYYY-MM-DD")
	}
	items, err := s.slots.ListByDoctorDate(ctx, hospitalID, doctorID, date)
	if err != nil {
		return nil, apperr.FromStorage(err, "slot")
	}
	return items, nil
}

// -- Reads --

func (s *Service) GetAppointment(ctx context.Context, hospitalID, id uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, hospitalID, id)
	if err != nil {
		return nil, apperr.FromStorage(err, "appointment")
	}
	return a, nil
}

func (s *Service) ListAppointments(ctx context.Context, hospitalID uuid.UUID, date string, limit, offset int) ([]*Appointment, int, error) {
	items, total, err := s.appointments.ListByHospital(ctx, hospitalID, date, limit, offset)
	if err != nil {
		return nil, 0, apperr.FromStorage(err, "appointment")
	}
	return items, total, nil
}

func (s *Service) ListForDoctor(ctx context.Context, hospitalID, doctorID uuid.UUID, date string, limit, offset int) ([]*Appointment, int, error) {
	items, total, err := s.appointments.ListByDoctor(ctx, hospitalID, doctorID, date, limit, offset)
	if err != nil {
		return nil, 0, apperr.FromStorage(err, "appointment")
	}
	return items, total, nil
}

// owned returns the appointment if it is one of the doctor's.
func (s *Service) owned(ctx context.Context, hospitalID, doctorID, id uuid.UUID) (*Appointment, error) {
	a, err := s.GetAppointment(ctx, hospitalID, id)
	if err != nil {
		return nil, err
	}
	if a.DoctorID != doctorID {
		return nil, apperr.NotFound("appointment not found")
	}
	return a, nil
}

func (s *Service) lockOwned(ctx context.Context, hospitalID, doctorID, id uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.GetForUpdate(ctx, hospitalID, id)
	if err != nil {
		return nil, apperr.FromStorage(err, "appointment")
	}
	if a.DoctorID != doctorID {
		return nil, apperr.NotFound("appointment not found")
	}
	return a, nil
}

func (s *Service) lockSlot(ctx context.Context, hospitalID, doctorID, id uuid.UUID) (*Slot, error) {
	slot, err := s.slots.GetForUpdate(ctx, hospitalID, id)
	if err != nil {
		return nil, apperr.FromStorage(err, "slot")
	}
	if slot.DoctorID != doctorID {
		return nil, apperr.NotFound("slot not found")
	}
	return slot, nil
}

func normalizeRange(start, end string) (string, string, error) {
	s, e, err := clockRange(start, end)
	if err != nil {
		return "", "", apperr.Invalid("%v", err)
	}
	return s.Format("15:04"), e.Format("15:04"), nil
}
