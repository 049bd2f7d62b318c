package ward

import (
	"context"

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

type partitionRepoPG struct{ pool *pgxpool.Pool }

func NewPartitionRepoPG(pool *pgxpool.Pool) PartitionRepository {
	return &partitionRepoPG{pool: pool}
}

func (r *partitionRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const partitionCols = `id, seq, hospital_id, name, total_beds, available_beds, occupied_beds, created_at, updated_at`

func (r *partitionRepoPG) scanPartition(row pgx.Row) (*BedPartition, error) {
	var p BedPartition
	err := row.Scan(&p.ID, &p.Seq, &p.HospitalID, &p.Name, &p.TotalBeds, &p.AvailableBeds,
		&p.OccupiedBeds, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *partitionRepoPG) Create(ctx context.Context, p *BedPartition) error {
	p.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO bed_partition (id, hospital_id, name, total_beds, available_beds, occupied_beds)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING seq, created_at, updated_at`,
		p.ID, p.HospitalID, p.Name, p.TotalBeds, p.AvailableBeds, p.OccupiedBeds,
	).Scan(&p.Seq, &p.CreatedAt, &p.UpdatedAt)
}

func (r *partitionRepoPG) GetByID(ctx context.Context, hospitalID, id uuid.UUID) (*BedPartition, error) {
	return r.scanPartition(r.conn(ctx).QueryRow(ctx,
		`SELECT `+partitionCols+` FROM bed_partition WHERE id = $1 AND hospital_id = $2`, id, hospitalID))
}

func (r *partitionRepoPG) GetForUpdate(ctx context.Context, hospitalID, id uuid.UUID) (*BedPartition, error) {
	return r.scanPartition(r.conn(ctx).QueryRow(ctx,
		`SELECT `+partitionCols+` FROM bed_partition WHERE id = $1 AND hospital_id = $2 FOR UPDATE`, id, hospitalID))
}

// Update writes the name and all three counters; the table's CHECK
// constraints reject any inconsistent combination.
func (r *partitionRepoPG) Update(ctx context.Context, p *BedPartition) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE bed_partition SET name=$3, total_beds=$4, available_beds=$5, occupied_beds=$6, updated_at=NOW()
		WHERE id = $1 AND hospital_id = $2
		RETURNING updated_at`,
		p.ID, p.HospitalID, p.Name, p.TotalBeds, p.AvailableBeds, p.OccupiedBeds,
	).Scan(&p.UpdatedAt)
}

func (r *partitionRepoPG) Delete(ctx context.Context, hospitalID, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM bed_partition WHERE id = $1 AND hospital_id = $2`, id, hospitalID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *partitionRepoPG) ListByHospital(ctx context.Context, hospitalID uuid.UUID) ([]*BedPartition, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+partitionCols+` FROM bed_partition WHERE hospital_id = $1 ORDER BY seq`, hospitalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*BedPartition
	for rows.Next() {
		p, err := r.scanPartition(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *partitionRepoPG) FirstAvailable(ctx context.Context, hospitalID uuid.UUID, lock bool) (*BedPartition, error) {
	q := `SELECT ` + partitionCols + ` FROM bed_partition
		WHERE hospital_id = $1 AND available_beds > 0
		ORDER BY seq LIMIT 1`
	if lock {
		q += ` FOR UPDATE`
	}
	return r.scanPartition(r.conn(ctx).QueryRow(ctx, q, hospitalID))
}

func (r *partitionRepoPG) CountByHospital(ctx context.Context, hospitalID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM bed_partition WHERE hospital_id = $1`, hospitalID).Scan(&n)
	return n, err
}
