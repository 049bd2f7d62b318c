package hospital

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

// =========== Hospital Repository ===========

type hospitalRepoPG struct{ pool *pgxpool.Pool }

func NewHospitalRepoPG(pool *pgxpool.Pool) HospitalRepository { return &hospitalRepoPG{pool: pool} }

func (r *hospitalRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const hospitalCols = `id, name, email, upi_id, opd_start_time, opd_end_time, admission_fee, created_at, updated_at`

func (r *hospitalRepoPG) scanHospital(row pgx.Row) (*Hospital, error) {
	var h Hospital
	err := row.Scan(&h.ID, &h.Name, &h.Email, &h.UPIID, &h.OPDStartTime, &h.OPDEndTime,
		&h.AdmissionFee, &h.CreatedAt, &h.UpdatedAt)
	return &h, err
}

func (r *hospitalRepoPG) Create(ctx context.Context, h *Hospital) error {
	h.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO hospital (id, name, email, upi_id, opd_start_time, opd_end_time, admission_fee)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		h.ID, h.Name, h.Email, h.UPIID, h.OPDStartTime, h.OPDEndTime, h.AdmissionFee,
	).Scan(&h.CreatedAt, &h.UpdatedAt)
}

func (r *hospitalRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Hospital, error) {
	return r.scanHospital(r.conn(ctx).QueryRow(ctx, `SELECT `+hospitalCols+` FROM hospital WHERE id = $1`, id))
}

func (r *hospitalRepoPG) Update(ctx context.Context, h *Hospital) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE hospital SET name=$2, upi_id=$3, opd_start_time=$4, opd_end_time=$5,
			admission_fee=$6, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		h.ID, h.Name, h.UPIID, h.OPDStartTime, h.OPDEndTime, h.AdmissionFee,
	).Scan(&h.UpdatedAt)
}

// =========== Doctor Repository ===========

type doctorRepoPG struct{ pool *pgxpool.Pool }

func NewDoctorRepoPG(pool *pgxpool.Pool) DoctorRepository { return &doctorRepoPG{pool: pool} }

func (r *doctorRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const doctorCols = `id, hospital_id, name, email, phone, specialization, status, created_at, updated_at`

func (r *doctorRepoPG) scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.HospitalID, &d.Name, &d.Email, &d.Phone, &d.Specialization,
		&d.Status, &d.CreatedAt, &d.UpdatedAt)
	return &d, err
}

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor (id, hospital_id, name, email, phone, specialization, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		d.ID, d.HospitalID, d.Name, d.Email, d.Phone, d.Specialization, d.Status,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
}

func (r *doctorRepoPG) GetByID(ctx context.Context, hospitalID, id uuid.UUID) (*Doctor, error) {
	return r.scanDoctor(r.conn(ctx).QueryRow(ctx,
		`SELECT `+doctorCols+` FROM doctor WHERE id = $1 AND hospital_id = $2`, id, hospitalID))
}

func (r *doctorRepoPG) UpdateStatus(ctx context.Context, d *Doctor) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE doctor SET status=$3, updated_at=NOW()
		WHERE id = $1 AND hospital_id = $2
		RETURNING updated_at`,
		d.ID, d.HospitalID, d.Status,
	).Scan(&d.UpdatedAt)
}

func (r *doctorRepoPG) ListByHospital(ctx context.Context, hospitalID uuid.UUID, status string, limit, offset int) ([]*Doctor, int, error) {
	where := ` WHERE hospital_id = $1`
	args := []interface{}{hospitalID}
	if status != "" {
		where += ` AND status = $2`
		args = append(args, status)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM doctor`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT `+doctorCols+` FROM doctor`+where+` ORDER BY name LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Doctor
	for rows.Next() {
		d, err := r.scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

func (r *doctorRepoPG) ListActiveSchedules(ctx context.Context) ([]Schedule, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT d.id, d.hospital_id, h.opd_start_time, h.opd_end_time
		FROM doctor d JOIN hospital h ON h.id = d.hospital_id
		WHERE d.status = 'active'
		ORDER BY d.hospital_id, d.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Schedule
	for rows.Next() {
		var s Schedule
		if err := rows.Scan(&s.DoctorID, &s.HospitalID, &s.OPDStartTime, &s.OPDEndTime); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
