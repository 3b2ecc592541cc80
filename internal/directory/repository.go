package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dawaly/dawaly/internal/shared"
)

// Repository provides PostgreSQL backed persistence for the directory.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const doctorColumns = `id, name, specialty, phone, is_active, referral_enabled,
       referral_rate, minimum_eligible_amount, total_referrals,
       successful_referrals, total_commission_earned, conversion_rate,
       created_at, updated_at`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(
		&d.ID, &d.Name, &d.Specialty, &d.Phone, &d.IsActive, &d.ReferralEnabled,
		&d.ReferralRate, &d.MinimumEligibleAmount, &d.TotalReferrals,
		&d.SuccessfulReferrals, &d.TotalCommissionEarned, &d.ConversionRate,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// GetDoctor retrieves a doctor by ID.
func (r *Repository) GetDoctor(ctx context.Context, id int64) (*Doctor, error) {
	query := fmt.Sprintf(`SELECT %s FROM doctors WHERE id = $1`, doctorColumns)
	return scanDoctor(r.pool.QueryRow(ctx, query, id))
}

// GetPharmacy retrieves a pharmacy by ID.
func (r *Repository) GetPharmacy(ctx context.Context, id int64) (*Pharmacy, error) {
	query := `
		SELECT id, name, phone, is_active, created_at, updated_at
		FROM pharmacies
		WHERE id = $1
	`
	var p Pharmacy
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.Phone, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// CreateDoctor inserts a doctor and returns the generated ID.
func (r *Repository) CreateDoctor(ctx context.Context, d Doctor) (int64, error) {
	query := `
		INSERT INTO doctors (name, specialty, phone, is_active, referral_enabled,
		                     referral_rate, minimum_eligible_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	var id int64
	err := r.pool.QueryRow(ctx, query,
		d.Name, d.Specialty, d.Phone, d.IsActive, d.ReferralEnabled,
		d.ReferralRate, d.MinimumEligibleAmount,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create doctor: %w", err)
	}
	return id, nil
}

// CreatePharmacy inserts a pharmacy and returns the generated ID.
func (r *Repository) CreatePharmacy(ctx context.Context, p Pharmacy) (int64, error) {
	query := `
		INSERT INTO pharmacies (name, phone, is_active)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	var id int64
	err := r.pool.QueryRow(ctx, query, p.Name, p.Phone, p.IsActive).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create pharmacy: %w", err)
	}
	return id, nil
}

// UpdateReferralPolicy applies partial updates to a doctor's live policy.
func (r *Repository) UpdateReferralPolicy(ctx context.Context, id int64, req UpdateReferralPolicyRequest) error {
	sets := []string{"updated_at = now()"}
	args := []interface{}{id}
	if req.ReferralEnabled != nil {
		args = append(args, *req.ReferralEnabled)
		sets = append(sets, fmt.Sprintf("referral_enabled = $%d", len(args)))
	}
	if req.ReferralRate != nil {
		args = append(args, *req.ReferralRate)
		sets = append(sets, fmt.Sprintf("referral_rate = $%d", len(args)))
	}
	if req.MinimumEligibleAmount != nil {
		args = append(args, *req.MinimumEligibleAmount)
		sets = append(sets, fmt.Sprintf("minimum_eligible_amount = $%d", len(args)))
	}

	query := fmt.Sprintf(`UPDATE doctors SET %s WHERE id = $1`, strings.Join(sets, ", "))
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update referral policy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListDoctors returns doctors matching the filter with the total match count.
func (r *Repository) ListDoctors(ctx context.Context, req ListDoctorsRequest) ([]Doctor, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if req.IsActive != nil {
		args = append(args, *req.IsActive)
		where = append(where, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if req.ReferralEnabled != nil {
		args = append(args, *req.ReferralEnabled)
		where = append(where, fmt.Sprintf("referral_enabled = $%d", len(args)))
	}
	if req.Search != nil && *req.Search != "" {
		args = append(args, "%"+*req.Search+"%")
		where = append(where, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int
	countQuery := fmt.Sprintf(`SELECT count(*) FROM doctors WHERE %s`, clause)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count doctors: %w", err)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, req.Offset)
	query := fmt.Sprintf(`
		SELECT %s FROM doctors
		WHERE %s
		ORDER BY name, id
		LIMIT $%d OFFSET $%d
	`, doctorColumns, clause, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list doctors: %w", err)
	}
	defer rows.Close()

	doctors := make([]Doctor, 0)
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		doctors = append(doctors, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return doctors, total, nil
}
