package billing

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

type billRepoPG struct{ pool *pgxpool.Pool }

func NewBillRepoPG(pool *pgxpool.Pool) BillRepository { return &billRepoPG{pool: pool} }

func (r *billRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const billCols = `id, admission_id, hospital_id, patient_id, bill_number, admission_date::text,
	discharge_date::text, total_days, room_charges, treatment_charges, doctor_fees, medicine_charges,
	diagnostic_charges, misc_charges, gross_total, insurance_covered, net_payable, payment_mode,
	transaction_id, status, seen_by_patient, created_at, updated_at`

func (r *billRepoPG) scanBill(row pgx.Row) (*HospitalizationBill, error) {
	var b HospitalizationBill
	err := row.Scan(&b.ID, &b.AdmissionID, &b.HospitalID, &b.PatientID, &b.BillNumber, &b.AdmissionDate,
		&b.DischargeDate, &b.TotalDays, &b.RoomCharges, &b.TreatmentCharges, &b.DoctorFees, &b.MedicineCharges,
		&b.DiagnosticCharges, &b.MiscCharges, &b.GrossTotal, &b.InsuranceCovered, &b.NetPayable, &b.PaymentMode,
		&b.TransactionID, &b.Status, &b.SeenByPatient, &b.CreatedAt, &b.UpdatedAt)
	return &b, err
}

func (r *billRepoPG) Create(ctx context.Context, b *HospitalizationBill) error {
	b.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO hospitalization_bill (id, admission_id, hospital_id, patient_id, bill_number,
			admission_date, discharge_date, total_days, room_charges, treatment_charges, doctor_fees,
			medicine_charges, diagnostic_charges, misc_charges, gross_total, insurance_covered, net_payable, status)
		VALUES ($1,$2,$3,$4,$5,$6::date,$7::date,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		RETURNING created_at, updated_at`,
		b.ID, b.AdmissionID, b.HospitalID, b.PatientID, b.BillNumber,
		b.AdmissionDate, b.DischargeDate, b.TotalDays, b.RoomCharges, b.TreatmentCharges, b.DoctorFees,
		b.MedicineCharges, b.DiagnosticCharges, b.MiscCharges, b.GrossTotal, b.InsuranceCovered, b.NetPayable, b.Status,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
}

func (r *billRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*HospitalizationBill, error) {
	return r.scanBill(r.conn(ctx).QueryRow(ctx, `SELECT `+billCols+` FROM hospitalization_bill WHERE id = $1`, id))
}

func (r *billRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*HospitalizationBill, error) {
	return r.scanBill(r.conn(ctx).QueryRow(ctx, `SELECT `+billCols+` FROM hospitalization_bill WHERE id = $1 FOR UPDATE`, id))
}

func (r *billRepoPG) GetByAdmission(ctx context.Context, admissionID uuid.UUID) (*HospitalizationBill, error) {
	return r.scanBill(r.conn(ctx).QueryRow(ctx,
		`SELECT `+billCols+` FROM hospitalization_bill WHERE admission_id = $1`, admissionID))
}

// Update writes the payment state. Amounts are fixed once a bill exists.
func (r *billRepoPG) Update(ctx context.Context, b *HospitalizationBill) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE hospitalization_bill SET payment_mode=$2, transaction_id=$3, status=$4,
			seen_by_patient=$5, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		b.ID, b.PaymentMode, b.TransactionID, b.Status, b.SeenByPatient,
	).Scan(&b.UpdatedAt)
}

func (r *billRepoPG) list(ctx context.Context, where string, args []interface{}, limit, offset int) ([]*HospitalizationBill, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM hospitalization_bill`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT `+billCols+` FROM hospitalization_bill`+where+
		` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*HospitalizationBill
	for rows.Next() {
		b, err := r.scanBill(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, b)
	}
	return items, total, rows.Err()
}

func (r *billRepoPG) ListByHospital(ctx context.Context, hospitalID uuid.UUID, status string, limit, offset int) ([]*HospitalizationBill, int, error) {
	where := ` WHERE hospital_id = $1`
	args := []interface{}{hospitalID}
	if status != "" {
		where += ` AND status = $2`
		args = append(args, status)
	}
	return r.list(ctx, where, args, limit, offset)
}

func (r *billRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*HospitalizationBill, int, error) {
	return r.list(ctx, ` WHERE patient_id = $1`, []interface{}{patientID}, limit, offset)
}

func (r *billRepoPG) CountUnseenByPatient(ctx context.Context, patientID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM hospitalization_bill WHERE patient_id = $1 AND NOT seen_by_patient`, patientID).Scan(&n)
	return n, err
}

func (r *billRepoPG) MarkSeenByPatient(ctx context.Context, patientID uuid.UUID) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE hospitalization_bill SET seen_by_patient = TRUE, updated_at = NOW() WHERE patient_id = $1 AND NOT seen_by_patient`, patientID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
