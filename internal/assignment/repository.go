package assignment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dawaly/dawaly/internal/commission"
	"github.com/dawaly/dawaly/internal/platform/db"
	"github.com/dawaly/dawaly/internal/shared"
)

// Repository provides PostgreSQL backed persistence for assignments.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// uniqueViolation is the PostgreSQL error code raised by the partial unique
// index on (pharmacy_id, city_id) WHERE is_primary AND is_active.
const uniqueViolation = "23505"

const assignmentColumns = `a.id, a.pharmacy_id, a.city_id, c.name, c.governorate,
       a.is_primary, a.is_active, a.commission_type, a.commission_rate,
       a.minimum_eligible_amount, a.commission_tiers, a.delivery_fee,
       a.delivery_radius_km, a.minimum_order_amount,
       a.estimated_delivery_minutes, a.created_at, a.updated_at`

func scanAssignment(row pgx.Row) (*Assignment, error) {
	var a Assignment
	var tiers []byte
	err := row.Scan(
		&a.ID, &a.PharmacyID, &a.CityID, &a.CityName, &a.Governorate,
		&a.IsPrimary, &a.IsActive, &a.Commission.RateType, &a.Commission.BaseRate,
		&a.Commission.MinimumEligibleAmount, &tiers, &a.DeliveryFee,
		&a.DeliveryRadiusKm, &a.MinimumOrderAmount,
		&a.EstimatedDeliveryMinutes, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	if len(tiers) > 0 {
		if err := json.Unmarshal(tiers, &a.Commission.Tiers); err != nil {
			return nil, fmt.Errorf("decode commission tiers: %w", err)
		}
	}
	return &a, nil
}

func encodeTiers(tiers []commission.Tier) ([]byte, error) {
	if tiers == nil {
		return nil, nil
	}
	return json.Marshal(tiers)
}

// GetAssignment retrieves an assignment with its city joined in.
func (r *Repository) GetAssignment(ctx context.Context, id int64) (*Assignment, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM pharmacy_city_assignments a
		JOIN cities c ON c.id = a.city_id
		WHERE a.id = $1
	`, assignmentColumns)
	return scanAssignment(r.pool.QueryRow(ctx, query, id))
}

// GetCity retrieves a city by ID.
func (r *Repository) GetCity(ctx context.Context, id int64) (*City, error) {
	var c City
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, governorate FROM cities WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Governorate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// GetActivePrimary returns the pharmacy's active primary assignment in the
// city, if any. Deactivated primaries do not block a new one.
func (r *Repository) GetActivePrimary(ctx context.Context, pharmacyID, cityID int64) (*Assignment, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM pharmacy_city_assignments a
		JOIN cities c ON c.id = a.city_id
		WHERE a.pharmacy_id = $1 AND a.city_id = $2 AND a.is_primary AND a.is_active
	`, assignmentColumns)
	return scanAssignment(r.pool.QueryRow(ctx, query, pharmacyID, cityID))
}

// ListAssignments returns assignments matching the filter with the total
// match count.
func (r *Repository) ListAssignments(ctx context.Context, req ListAssignmentsRequest) ([]Assignment, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if req.PharmacyID != nil {
		args = append(args, *req.PharmacyID)
		where = append(where, fmt.Sprintf("a.pharmacy_id = $%d", len(args)))
	}
	if req.CityID != nil {
		args = append(args, *req.CityID)
		where = append(where, fmt.Sprintf("a.city_id = $%d", len(args)))
	}
	if req.Governorate != nil {
		args = append(args, *req.Governorate)
		where = append(where, fmt.Sprintf("c.governorate = $%d", len(args)))
	}
	if req.IsActive != nil {
		args = append(args, *req.IsActive)
		where = append(where, fmt.Sprintf("a.is_active = $%d", len(args)))
	}
	if req.IsPrimary != nil {
		args = append(args, *req.IsPrimary)
		where = append(where, fmt.Sprintf("a.is_primary = $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int
	countQuery := fmt.Sprintf(`
		SELECT count(*) FROM pharmacy_city_assignments a
		JOIN cities c ON c.id = a.city_id
		WHERE %s
	`, clause)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count assignments: %w", err)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, req.Offset)
	query := fmt.Sprintf(`
		SELECT %s FROM pharmacy_city_assignments a
		JOIN cities c ON c.id = a.city_id
		WHERE %s
		ORDER BY c.governorate, c.name, a.id
		LIMIT $%d OFFSET $%d
	`, assignmentColumns, clause, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	out, err := collectAssignments(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// ListByIDs returns the assignments whose IDs are in the given set.
func (r *Repository) ListByIDs(ctx context.Context, ids []int64) ([]Assignment, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM pharmacy_city_assignments a
		JOIN cities c ON c.id = a.city_id
		WHERE a.id = ANY($1)
		ORDER BY a.id
	`, assignmentColumns)
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("list assignments by ids: %w", err)
	}
	defer rows.Close()
	return collectAssignments(rows)
}

// ListByGovernorate returns every assignment in the governorate, active or
// not.
func (r *Repository) ListByGovernorate(ctx context.Context, governorate string) ([]Assignment, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM pharmacy_city_assignments a
		JOIN cities c ON c.id = a.city_id
		WHERE c.governorate = $1
		ORDER BY a.id
	`, assignmentColumns)
	rows, err := r.pool.Query(ctx, query, governorate)
	if err != nil {
		return nil, fmt.Errorf("list assignments by governorate: %w", err)
	}
	defer rows.Close()
	return collectAssignments(rows)
}

// CreateAssignment inserts an assignment and returns the generated ID. An
// active-primary collision for the pharmacy and city surfaces as
// shared.ErrDuplicatePrimary.
func (r *Repository) CreateAssignment(ctx context.Context, a Assignment) (int64, error) {
	tiers, err := encodeTiers(a.Commission.Tiers)
	if err != nil {
		return 0, fmt.Errorf("encode commission tiers: %w", err)
	}
	query := `
		INSERT INTO pharmacy_city_assignments (pharmacy_id, city_id, is_primary,
		        is_active, commission_type, commission_rate,
		        minimum_eligible_amount, commission_tiers, delivery_fee,
		        delivery_radius_km, minimum_order_amount,
		        estimated_delivery_minutes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`
	var id int64
	err = r.pool.QueryRow(ctx, query,
		a.PharmacyID, a.CityID, a.IsPrimary, a.IsActive,
		a.Commission.RateType, a.Commission.BaseRate,
		a.Commission.MinimumEligibleAmount, tiers, a.DeliveryFee,
		a.DeliveryRadiusKm, a.MinimumOrderAmount,
		a.EstimatedDeliveryMinutes,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, fmt.Errorf("%w: pharmacy %d city %d", shared.ErrDuplicatePrimary, a.PharmacyID, a.CityID)
		}
		return 0, fmt.Errorf("create assignment: %w", err)
	}
	return id, nil
}

// SetActive sets the assignment's active flag.
func (r *Repository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE pharmacy_city_assignments SET is_active = $2, updated_at = now() WHERE id = $1`,
		id, active,
	)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteAssignment removes an assignment permanently.
func (r *Repository) DeleteAssignment(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM pharmacy_city_assignments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CoverageByCity aggregates assignment coverage per city, including cities
// with no assignments at all.
func (r *Repository) CoverageByCity(ctx context.Context) ([]CityCoverage, error) {
	query := `
		SELECT c.id, c.name, c.governorate,
		       count(a.id),
		       count(a.id) FILTER (WHERE a.is_active),
		       bool_or(a.is_primary AND a.is_active) IS TRUE,
		       coalesce(avg(a.delivery_fee) FILTER (WHERE a.is_active), 0),
		       coalesce(avg(a.commission_rate) FILTER (WHERE a.is_active), 0),
		       coalesce(avg(a.estimated_delivery_minutes) FILTER (WHERE a.is_active), 0)
		FROM cities c
		LEFT JOIN pharmacy_city_assignments a ON a.city_id = c.id
		GROUP BY c.id, c.name, c.governorate
		ORDER BY c.governorate, c.name
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("coverage by city: %w", err)
	}
	defer rows.Close()

	out := make([]CityCoverage, 0)
	for rows.Next() {
		var c CityCoverage
		if err := rows.Scan(
			&c.CityID, &c.CityName, &c.Governorate,
			&c.PharmacyCount, &c.ActiveCount, &c.HasPrimary, &c.AverageDeliveryFee,
			&c.AverageCommissionRate, &c.AverageDeliveryMinutes,
		); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// WithTx runs bulk commission updates in one transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

// UpdateCommissionRate rewrites the base rate only. Rate type, minimum and
// tier schedule stay as they are.
func (t *txRepository) UpdateCommissionRate(ctx context.Context, id int64, rate float64) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE pharmacy_city_assignments
		SET commission_rate = $2, updated_at = now()
		WHERE id = $1
	`, id, rate)
	if err != nil {
		return fmt.Errorf("update commission rate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func collectAssignments(rows pgx.Rows) ([]Assignment, error) {
	out := make([]Assignment, 0)
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
