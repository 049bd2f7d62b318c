package admission

import (
	"context"
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

// =========== Admission Repository ===========

type admissionRepoPG struct{ pool *pgxpool.Pool }

func NewAdmissionRepoPG(pool *pgxpool.Pool) AdmissionRepository {
	return &admissionRepoPG{pool: pool}
}

func (r *admissionRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const admissionCols = `id, patient_id, hospital_id, doctor_id, referring_doctor_id, opd_appointment_id,
	bed_partition_id, patient_name, patient_age, gender, contact_number, email, admission_date::text,
	reason_symptoms, insurance_provider, insurance_policy_number, payment_mode, guardian_name,
	guardian_relationship, guardian_contact_number, special_instructions, allergies, past_surgeries,
	current_medications, discharge_date, status, rejection_reason, seen_by_doctor, created_at, updated_at`

func (r *admissionRepoPG) scanAdmission(row pgx.Row) (*Admission, error) {
	var a Admission
	err := row.Scan(&a.ID, &a.PatientID, &a.HospitalID, &a.DoctorID, &a.ReferringDoctorID, &a.OPDAppointmentID,
		&a.BedPartitionID, &a.PatientName, &a.PatientAge, &a.Gender, &a.ContactNumber, &a.Email, &a.AdmissionDate,
		&a.ReasonSymptoms, &a.InsuranceProvider, &a.InsurancePolicyNumber, &a.PaymentMode, &a.GuardianName,
		&a.GuardianRelationship, &a.GuardianContactNumber, &a.SpecialInstructions, &a.Allergies, &a.PastSurgeries,
		&a.CurrentMedications, &a.DischargeDate, &a.Status, &a.RejectionReason, &a.SeenByDoctor, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func (r *admissionRepoPG) Create(ctx context.Context, a *Admission) error {
	a.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO hospitalization_admission (id, patient_id, hospital_id, doctor_id, referring_doctor_id,
			opd_appointment_id, bed_partition_id, patient_name, patient_age, gender, contact_number, email,
			admission_date, reason_symptoms, insurance_provider, insurance_policy_number, payment_mode,
			guardian_name, guardian_relationship, guardian_contact_number, special_instructions, allergies,
			past_surgeries, current_medications, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13::date,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.HospitalID, a.DoctorID, a.ReferringDoctorID,
		a.OPDAppointmentID, a.BedPartitionID, a.PatientName, a.PatientAge, a.Gender, a.ContactNumber, a.Email,
		a.AdmissionDate, a.ReasonSymptoms, a.InsuranceProvider, a.InsurancePolicyNumber, a.PaymentMode,
		a.GuardianName, a.GuardianRelationship, a.GuardianContactNumber, a.SpecialInstructions, a.Allergies,
		a.PastSurgeries, a.CurrentMedications, a.Status,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *admissionRepoPG) GetByID(ctx context.Context, hospitalID, id uuid.UUID) (*Admission, error) {
	return r.scanAdmission(r.conn(ctx).QueryRow(ctx,
		`SELECT `+admissionCols+` FROM hospitalization_admission WHERE id = $1 AND hospital_id = $2`, id, hospitalID))
}

func (r *admissionRepoPG) GetForUpdate(ctx context.Context, hospitalID, id uuid.UUID) (*Admission, error) {
	return r.scanAdmission(r.conn(ctx).QueryRow(ctx,
		`SELECT `+admissionCols+` FROM hospitalization_admission WHERE id = $1 AND hospital_id = $2 FOR UPDATE`, id, hospitalID))
}

func (r *admissionRepoPG) GetForPatient(ctx context.Context, patientID, id uuid.UUID) (*Admission, error) {
	return r.scanAdmission(r.conn(ctx).QueryRow(ctx,
		`SELECT `+admissionCols+` FROM hospitalization_admission WHERE id = $1 AND patient_id = $2`, id, patientID))
}

// Update writes the fields the lifecycle owns. Intake data is immutable.
func (r *admissionRepoPG) Update(ctx context.Context, a *Admission) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE hospitalization_admission SET doctor_id=$3, bed_partition_id=$4, status=$5,
			rejection_reason=$6, discharge_date=$7, seen_by_doctor=$8, updated_at=NOW()
		WHERE id = $1 AND hospital_id = $2
		RETURNING updated_at`,
		a.ID, a.HospitalID, a.DoctorID, a.BedPartitionID, a.Status,
		a.RejectionReason, a.DischargeDate, a.SeenByDoctor,
	).Scan(&a.UpdatedAt)
}

func (r *admissionRepoPG) list(ctx context.Context, where string, args []interface{}, limit, offset int) ([]*Admission, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM hospitalization_admission`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT `+admissionCols+` FROM hospitalization_admission`+where+
		` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Admission
	for rows.Next() {
		a, err := r.scanAdmission(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *admissionRepoPG) ListByHospital(ctx context.Context, hospitalID uuid.UUID, status string, limit, offset int) ([]*Admission, int, error) {
	where := ` WHERE hospital_id = $1`
	args := []interface{}{hospitalID}
	if status != "" {
		where += ` AND status = $2`
		args = append(args, status)
	}
	return r.list(ctx, where, args, limit, offset)
}

func (r *admissionRepoPG) ListByDoctor(ctx context.Context, hospitalID, doctorID uuid.UUID, limit, offset int) ([]*Admission, int, error) {
	return r.list(ctx, ` WHERE hospital_id = $1 AND doctor_id = $2`, []interface{}{hospitalID, doctorID}, limit, offset)
}

func (r *admissionRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Admission, int, error) {
	return r.list(ctx, ` WHERE patient_id = $1`, []interface{}{patientID}, limit, offset)
}

func (r *admissionRepoPG) CountUnseenByDoctor(ctx context.Context, hospitalID, doctorID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM hospitalization_admission
		WHERE hospital_id = $1 AND doctor_id = $2 AND seen_by_doctor = FALSE`,
		hospitalID, doctorID).Scan(&n)
	return n, err
}

func (r *admissionRepoPG) MarkSeenByDoctor(ctx context.Context, hospitalID, doctorID uuid.UUID) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE hospitalization_admission SET seen_by_doctor = TRUE, updated_at = NOW()
		WHERE hospital_id = $1 AND doctor_id = $2 AND seen_by_doctor = FALSE`,
		hospitalID, doctorID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// =========== Treatment History Repository ===========

type treatmentRepoPG struct{ pool *pgxpool.Pool }

func NewTreatmentRepoPG(pool *pgxpool.Pool) TreatmentRepository {
	return &treatmentRepoPG{pool: pool}
}

func (r *treatmentRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const treatmentCols = `id, admission_id, doctor_id, treatment_notes, status_update, referral_reason, seen_by_admin, created_at`

func (r *treatmentRepoPG) scanEntry(row pgx.Row) (*TreatmentEntry, error) {
	var e TreatmentEntry
	err := row.Scan(&e.ID, &e.AdmissionID, &e.DoctorID, &e.TreatmentNotes, &e.StatusUpdate,
		&e.ReferralReason, &e.SeenByAdmin, &e.CreatedAt)
	return &e, err
}

func (r *treatmentRepoPG) Create(ctx context.Context, e *TreatmentEntry) error {
	e.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor_treatment_history (id, admission_id, doctor_id, treatment_notes, status_update, referral_reason)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`,
		e.ID, e.AdmissionID, e.DoctorID, e.TreatmentNotes, e.StatusUpdate, e.ReferralReason,
	).Scan(&e.CreatedAt)
}

func (r *treatmentRepoPG) ListByAdmission(ctx context.Context, admissionID uuid.UUID) ([]*TreatmentEntry, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+treatmentCols+` FROM doctor_treatment_history WHERE admission_id = $1 ORDER BY created_at`, admissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*TreatmentEntry
	for rows.Next() {
		e, err := r.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

func (r *treatmentRepoPG) CountUnseenByAdmin(ctx context.Context, hospitalID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM doctor_treatment_history t
		JOIN hospitalization_admission a ON a.id = t.admission_id
		WHERE a.hospital_id = $1 AND t.seen_by_admin = FALSE`, hospitalID).Scan(&n)
	return n, err
}

func (r *treatmentRepoPG) MarkSeenByAdmin(ctx context.Context, hospitalID uuid.UUID) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE doctor_treatment_history t SET seen_by_admin = TRUE
		FROM hospitalization_admission a
		WHERE a.id = t.admission_id AND a.hospital_id = $1 AND t.seen_by_admin = FALSE`, hospitalID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
