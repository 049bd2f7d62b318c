package opd

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arogyalink/hms/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Slot Repository ===========

type slotRepoPG struct{ pool *pgxpool.Pool }

func NewSlotRepoPG(pool *pgxpool.Pool) SlotRepository { return &slotRepoPG{pool: pool} }

func (r *slotRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const slotCols = `id, hospital_id, doctor_id, slot_date::text, start_time, end_time, is_booked, is_available, remarks, created_at`

func (r *slotRepoPG) scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	err := row.Scan(&s.ID, &s.HospitalID, &s.DoctorID, &s.SlotDate, &s.StartTime, &s.EndTime,
		&s.IsBooked, &s.IsAvailable, &s.Remarks, &s.CreatedAt)
	return &s, err
}

func (r *slotRepoPG) scanSlots(rows pgx.Rows) ([]*Slot, error) {
	defer rows.Close()
	var items []*Slot
	for rows.Next() {
		s, err := r.scanSlot(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func (r *slotRepoPG) Create(ctx context.Context, s *Slot) error {
	s.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO opd_slot (id, hospital_id, doctor_id, slot_date, start_time, end_time, is_booked, is_available, remarks)
		VALUES ($1,$2,$3,$4::date,$5,$6,$7,$8,$9)
		RETURNING created_at`,
		s.ID, s.HospitalID, s.DoctorID, s.SlotDate, s.StartTime, s.EndTime, s.IsBooked, s.IsAvailable, s.Remarks,
	).Scan(&s.CreatedAt)
}

func (r *slotRepoPG) CreateIfAbsent(ctx context.Context, s *Slot) (bool, error) {
	s.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO opd_slot (id, hospital_id, doctor_id, slot_date, start_time, end_time, is_booked, is_available, remarks)
		VALUES ($1,$2,$3,$4::date,$5,$6,$7,$8,$9)
		ON CONFLICT (doctor_id, slot_date, start_time) DO NOTHING
		RETURNING created_at`,
		s.ID, s.HospitalID, s.DoctorID, s.SlotDate, s.StartTime, s.EndTime, s.IsBooked, s.IsAvailable, s.Remarks,
	).Scan(&s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (r *slotRepoPG) GetByID(ctx context.Context, hospitalID, id uuid.UUID) (*Slot, error) {
	return r.scanSlot(r.conn(ctx).QueryRow(ctx,
		`SELECT `+slotCols+` FROM opd_slot WHERE id = $1 AND hospital_id = $2`, id, hospitalID))
}

func (r *slotRepoPG) GetForUpdate(ctx context.Context, hospitalID, id uuid.UUID) (*Slot, error) {
	return r.scanSlot(r.conn(ctx).QueryRow(ctx,
		`SELECT `+slotCols+` FROM opd_slot WHERE id = $1 AND hospital_id = $2 FOR UPDATE`, id, hospitalID))
}

func (r *slotRepoPG) Find(ctx context.Context, hospitalID, doctorID uuid.UUID, date, start, end string) (*Slot, error) {
	return r.scanSlot(r.conn(ctx).QueryRow(ctx, `
		SELECT `+slotCols+` FROM opd_slot
		WHERE hospital_id = $1 AND doctor_id = $2 AND slot_date = $3::date AND start_time = $4 AND end_time = $5`,
		hospitalID, doctorID, date, start, end))
}

func (r *slotRepoPG) MarkBooked(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE opd_slot SET is_booked = TRUE
		WHERE id = $1 AND is_booked = FALSE AND is_available = TRUE`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *slotRepoPG) Update(ctx context.Context, s *Slot) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE opd_slot SET start_time=$3, end_time=$4, is_booked=$5, is_available=$6, remarks=$7
		WHERE id = $1 AND hospital_id = $2`,
		s.ID, s.HospitalID, s.StartTime, s.EndTime, s.IsBooked, s.IsAvailable, s.Remarks)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *slotRepoPG) Delete(ctx context.Context, hospitalID, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM opd_slot WHERE id = $1 AND hospital_id = $2`, id, hospitalID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *slotRepoPG) ListByDoctorDate(ctx context.Context, hospitalID, doctorID uuid.UUID, date string) ([]*Slot, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+slotCols+` FROM opd_slot
		WHERE hospital_id = $1 AND doctor_id = $2 AND slot_date = $3::date
		ORDER BY start_time`, hospitalID, doctorID, date)
	if err != nil {
		return nil, err
	}
	return r.scanSlots(rows)
}

func (r *slotRepoPG) DeleteUnbookedBefore(ctx context.Context, doctorID uuid.UUID, date string) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		DELETE FROM opd_slot WHERE doctor_id = $1 AND slot_date < $2::date AND is_booked = FALSE`,
		doctorID, date)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *slotRepoPG) DatesWithSlots(ctx context.Context, doctorID uuid.UUID, from, to string) (map[string]bool, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT DISTINCT slot_date::text FROM opd_slot
		WHERE doctor_id = $1 AND slot_date BETWEEN $2::date AND $3::date`, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]bool)
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out[d] = true
	}
	return out, rows.Err()
}

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const appointmentCols = `id, hospital_id, doctor_id, patient_id, slot_id, patient_name, patient_age,
	patient_contact, patient_email, gender, appointment_date::text, start_time, end_time, symptoms,
	is_emergency, status, referral_reason, token_number, visiting_fee, checkup_fee, tax_percent,
	total_amount, bill_generated, bill_paid, payment_mode, bill_generated_at, created_at, updated_at`

func (r *appointmentRepoPG) scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.HospitalID, &a.DoctorID, &a.PatientID, &a.SlotID, &a.PatientName, &a.PatientAge,
		&a.PatientContact, &a.PatientEmail, &a.Gender, &a.AppointmentDate, &a.StartTime, &a.EndTime, &a.Symptoms,
		&a.IsEmergency, &a.Status, &a.ReferralReason, &a.TokenNumber, &a.VisitingFee, &a.CheckupFee, &a.TaxPercent,
		&a.TotalAmount, &a.BillGenerated, &a.BillPaid, &a.PaymentMode, &a.BillGeneratedAt, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func (r *appointmentRepoPG) scanAppointments(rows pgx.Rows) ([]*Appointment, error) {
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO opd_appointment (id, hospital_id, doctor_id, patient_id, slot_id, patient_name, patient_age,
			patient_contact, patient_email, gender, appointment_date, start_time, end_time, symptoms,
			is_emergency, status, token_number)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11::date,$12,$13,$14,$15,$16,$17)
		RETURNING created_at, updated_at`,
		a.ID, a.HospitalID, a.DoctorID, a.PatientID, a.SlotID, a.PatientName, a.PatientAge,
		a.PatientContact, a.PatientEmail, a.Gender, a.AppointmentDate, a.StartTime, a.EndTime, a.Symptoms,
		a.IsEmergency, a.Status, a.TokenNumber,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, hospitalID, id uuid.UUID) (*Appointment, error) {
	return r.scanAppointment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+appointmentCols+` FROM opd_appointment WHERE id = $1 AND hospital_id = $2`, id, hospitalID))
}

func (r *appointmentRepoPG) GetForUpdate(ctx context.Context, hospitalID, id uuid.UUID) (*Appointment, error) {
	return r.scanAppointment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+appointmentCols+` FROM opd_appointment WHERE id = $1 AND hospital_id = $2 FOR UPDATE`, id, hospitalID))
}

func (r *appointmentRepoPG) GetForPatient(ctx context.Context, patientID, id uuid.UUID) (*Appointment, error) {
	return r.scanAppointment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+appointmentCols+` FROM opd_appointment WHERE id = $1 AND patient_id = $2`, id, patientID))
}

// Update writes status and billing fields; booking data is immutable.
func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE opd_appointment SET status=$3, referral_reason=$4, visiting_fee=$5, checkup_fee=$6,
			tax_percent=$7, total_amount=$8, bill_generated=$9, bill_paid=$10, payment_mode=$11,
			bill_generated_at=$12, updated_at=NOW()
		WHERE id = $1 AND hospital_id = $2
		RETURNING updated_at`,
		a.ID, a.HospitalID, a.Status, a.ReferralReason, a.VisitingFee, a.CheckupFee,
		a.TaxPercent, a.TotalAmount, a.BillGenerated, a.BillPaid, a.PaymentMode, a.BillGeneratedAt,
	).Scan(&a.UpdatedAt)
}

func (r *appointmentRepoPG) LockDay(ctx context.Context, doctorID uuid.UUID, date string) error {
	_, err := r.conn(ctx).Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		"opd:"+doctorID.String()+":"+date)
	return err
}

func (r *appointmentRepoPG) Tokens(ctx context.Context, doctorID uuid.UUID, date string) ([]int, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT token_number FROM opd_appointment
		WHERE doctor_id = $1 AND appointment_date = $2::date
		ORDER BY token_number`, doctorID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *appointmentRepoPG) CurrentToken(ctx context.Context, doctorID uuid.UUID, date string) (int, bool, error) {
	var token *int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT MIN(token_number) FROM opd_appointment
		WHERE doctor_id = $1 AND appointment_date = $2::date AND LOWER(status) = 'pending'`,
		doctorID, date).Scan(&token)
	if err != nil || token == nil {
		return 0, false, err
	}
	return *token, true, nil
}

func (r *appointmentRepoPG) CountForDay(ctx context.Context, doctorID uuid.UUID, date string) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM opd_appointment WHERE doctor_id = $1 AND appointment_date = $2::date`,
		doctorID, date).Scan(&n)
	return n, err
}

func (r *appointmentRepoPG) list(ctx context.Context, where string, args []interface{}, limit, offset int) ([]*Appointment, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM opd_appointment`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := fmt.Sprintf(`SELECT `+appointmentCols+` FROM opd_appointment`+where+
		` ORDER BY appointment_date, token_number LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	items, err := r.scanAppointments(rows)
	return items, total, err
}

func (r *appointmentRepoPG) ListByHospital(ctx context.Context, hospitalID uuid.UUID, date string, limit, offset int) ([]*Appointment, int, error) {
	where := ` WHERE hospital_id = $1`
	args := []interface{}{hospitalID}
	if date != "" {
		where += ` AND appointment_date = $2::date`
		args = append(args, date)
	}
	return r.list(ctx, where, args, limit, offset)
}

func (r *appointmentRepoPG) ListByDoctor(ctx context.Context, hospitalID, doctorID uuid.UUID, date string, limit, offset int) ([]*Appointment, int, error) {
	where := ` WHERE hospital_id = $1 AND doctor_id = $2`
	args := []interface{}{hospitalID, doctorID}
	if date != "" {
		where += ` AND appointment_date = $3::date`
		args = append(args, date)
	}
	return r.list(ctx, where, args, limit, offset)
}

func (r *appointmentRepoPG) ListUpcomingForPatient(ctx context.Context, patientID uuid.UUID, from string) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+appointmentCols+` FROM opd_appointment
		WHERE patient_id = $1 AND appointment_date >= $2::date
		ORDER BY appointment_date, token_number`, patientID, from)
	if err != nil {
		return nil, err
	}
	return r.scanAppointments(rows)
}

func (r *appointmentRepoPG) ListBillPending(ctx context.Context, hospitalID, doctorID uuid.UUID) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+appointmentCols+` FROM opd_appointment a
		WHERE a.hospital_id = $1 AND a.doctor_id = $2 AND a.bill_generated = FALSE
		  AND EXISTS (SELECT 1 FROM opd_prescription p WHERE p.appointment_id = a.id)
		ORDER BY a.appointment_date, a.token_number`, hospitalID, doctorID)
	if err != nil {
		return nil, err
	}
	return r.scanAppointments(rows)
}

// =========== Prescription Repository ===========

type prescriptionRepoPG struct{ pool *pgxpool.Pool }

func NewPrescriptionRepoPG(pool *pgxpool.Pool) PrescriptionRepository {
	return &prescriptionRepoPG{pool: pool}
}

func (r *prescriptionRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *prescriptionRepoPG) Create(ctx context.Context, p *Prescription) error {
	p.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO opd_prescription (id, appointment_id, details, created_by)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at`,
		p.ID, p.AppointmentID, p.Details, p.CreatedBy,
	).Scan(&p.CreatedAt)
}

func (r *prescriptionRepoPG) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*Prescription, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, appointment_id, details, created_by, created_at
		FROM opd_prescription WHERE appointment_id = $1 ORDER BY created_at`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Prescription
	for rows.Next() {
		var p Prescription
		if err := rows.Scan(&p.ID, &p.AppointmentID, &p.Details, &p.CreatedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &p)
	}
	return items, rows.Err()
}
