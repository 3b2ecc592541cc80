package referral

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dawaly/dawaly/internal/directory"
	"github.com/dawaly/dawaly/internal/platform/db"
	"github.com/dawaly/dawaly/internal/shared"
)

// Repository provides PostgreSQL backed persistence for the referral ledger.
type Repository struct {
	pool      *pgxpool.Pool
	directory *directory.Repository
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, directory: directory.NewRepository(pool)}
}

const referralColumns = `id, doctor_id, customer_id, customer_contact, order_id,
       prescription_id, source, status, rate_snapshot, minimum_eligible_snapshot,
       order_value, commission_amount, created_at, expires_at, converted_at,
       cancelled_at`

func scanReferral(row pgx.Row) (*Referral, error) {
	var r Referral
	err := row.Scan(
		&r.ID, &r.DoctorID, &r.CustomerID, &r.CustomerContact, &r.OrderID,
		&r.PrescriptionID, &r.Source, &r.Status, &r.RateSnapshot, &r.MinimumEligibleSnapshot,
		&r.OrderValue, &r.CommissionAmount, &r.CreatedAt, &r.ExpiresAt, &r.ConvertedAt,
		&r.CancelledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

// GetReferral retrieves a referral by ID.
func (r *Repository) GetReferral(ctx context.Context, id string) (*Referral, error) {
	query := fmt.Sprintf(`SELECT %s FROM referrals WHERE id = $1`, referralColumns)
	return scanReferral(r.pool.QueryRow(ctx, query, id))
}

// GetDoctor retrieves the referring doctor.
func (r *Repository) GetDoctor(ctx context.Context, id int64) (*directory.Doctor, error) {
	return r.directory.GetDoctor(ctx, id)
}

// ListPendingByCustomer returns the customer's stored-pending referrals
// oldest first.
func (r *Repository) ListPendingByCustomer(ctx context.Context, customerID int64) ([]Referral, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM referrals
		WHERE customer_id = $1 AND status = 'pending'
		ORDER BY created_at, id
	`, referralColumns)
	rows, err := r.pool.Query(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("list pending referrals: %w", err)
	}
	defer rows.Close()
	return collectReferrals(rows)
}

// ListReferrals returns referrals matching the filter with the total match
// count. Status filters are evaluated against the effective status, so a
// stored-pending row past its expiry matches "expired", not "pending".
func (r *Repository) ListReferrals(ctx context.Context, req ListReferralsRequest) ([]Referral, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if req.DoctorID != nil {
		args = append(args, *req.DoctorID)
		where = append(where, fmt.Sprintf("doctor_id = $%d", len(args)))
	}
	if req.CustomerID != nil {
		args = append(args, *req.CustomerID)
		where = append(where, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if req.Status != nil {
		switch *req.Status {
		case StatusPending:
			where = append(where, "status = 'pending' AND expires_at >= now()")
		case StatusExpired:
			where = append(where, "(status = 'expired' OR (status = 'pending' AND expires_at < now()))")
		default:
			args = append(args, *req.Status)
			where = append(where, fmt.Sprintf("status = $%d", len(args)))
		}
	}
	clause := strings.Join(where, " AND ")

	var total int
	countQuery := fmt.Sprintf(`SELECT count(*) FROM referrals WHERE %s`, clause)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count referrals: %w", err)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, req.Offset)
	query := fmt.Sprintf(`
		SELECT %s FROM referrals
		WHERE %s
		ORDER BY created_at DESC, id
		LIMIT $%d OFFSET $%d
	`, referralColumns, clause, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list referrals: %w", err)
	}
	defer rows.Close()

	refs, err := collectReferrals(rows)
	if err != nil {
		return nil, 0, err
	}
	return refs, total, nil
}

func collectReferrals(rows pgx.Rows) ([]Referral, error) {
	refs := make([]Referral, 0)
	for rows.Next() {
		ref, err := scanReferral(rows)
		if err != nil {
			return nil, err
		}
		refs = append(refs, *ref)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return refs, nil
}

// WithTx runs ledger writes and doctor counter updates in one transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) CreateReferral(ctx context.Context, r Referral) error {
	query := `
		INSERT INTO referrals (id, doctor_id, customer_id, customer_contact,
		                       prescription_id, source, status, rate_snapshot,
		                       minimum_eligible_snapshot, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := t.tx.Exec(ctx, query,
		r.ID, r.DoctorID, r.CustomerID, r.CustomerContact,
		r.PrescriptionID, r.Source, r.Status, r.RateSnapshot,
		r.MinimumEligibleSnapshot, r.CreatedAt, r.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert referral: %w", err)
	}
	return nil
}

func (t *txRepository) MarkConverted(ctx context.Context, id string, orderID int64, orderValue, commissionAmount float64, convertedAt time.Time) error {
	query := `
		UPDATE referrals
		SET status = 'converted', order_id = $2, order_value = $3,
		    commission_amount = $4, converted_at = $5
		WHERE id = $1 AND status = 'pending'
	`
	tag, err := t.tx.Exec(ctx, query, id, orderID, orderValue, commissionAmount, convertedAt)
	if err != nil {
		return fmt.Errorf("mark converted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: referral %s is no longer pending", shared.ErrInvalidTransition, id)
	}
	return nil
}

func (t *txRepository) MarkCancelled(ctx context.Context, id string, cancelledAt time.Time) error {
	query := `
		UPDATE referrals
		SET status = 'cancelled', cancelled_at = $2
		WHERE id = $1 AND status = 'pending'
	`
	tag, err := t.tx.Exec(ctx, query, id, cancelledAt)
	if err != nil {
		return fmt.Errorf("mark cancelled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: referral %s is no longer pending", shared.ErrInvalidTransition, id)
	}
	return nil
}

func (t *txRepository) ApplyDoctorPerformance(ctx context.Context, doctorID int64, totalDelta, successfulDelta int, commissionDelta float64) error {
	query := `
		UPDATE doctors
		SET total_referrals = total_referrals + $2,
		    successful_referrals = successful_referrals + $3,
		    total_commission_earned = total_commission_earned + $4,
		    conversion_rate = CASE
		        WHEN total_referrals + $2 > 0
		        THEN (successful_referrals + $3)::float * 100 / (total_referrals + $2)
		        ELSE 0
		    END,
		    updated_at = now()
		WHERE id = $1
	`
	tag, err := t.tx.Exec(ctx, query, doctorID, totalDelta, successfulDelta, commissionDelta)
	if err != nil {
		return fmt.Errorf("apply doctor performance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: doctor %d", shared.ErrNotFound, doctorID)
	}
	return nil
}
