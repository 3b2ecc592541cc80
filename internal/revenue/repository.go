package revenue

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dawaly/dawaly/internal/assignment"
)

// Repository provides PostgreSQL backed aggregate queries over completed
// orders and converted referrals.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WindowTotals aggregates completed orders and converted referrals in the
// half-open window [start, end).
func (r *Repository) WindowTotals(ctx context.Context, start, end time.Time) (*Totals, error) {
	var t Totals
	err := r.pool.QueryRow(ctx, `
		SELECT coalesce(sum(total_amount), 0),
		       count(*),
		       coalesce(sum(commission_amount), 0),
		       coalesce(sum(delivery_fee), 0)
		FROM orders
		WHERE status = 'completed'
		  AND completed_at >= $1 AND completed_at < $2
	`, start, end).Scan(&t.Revenue, &t.OrderCount, &t.GrossCommission, &t.DeliveryFees)
	if err != nil {
		return nil, fmt.Errorf("order totals: %w", err)
	}

	err = r.pool.QueryRow(ctx, `
		SELECT coalesce(sum(commission_amount), 0)
		FROM referrals
		WHERE status = 'converted'
		  AND converted_at >= $1 AND converted_at < $2
	`, start, end).Scan(&t.DoctorPayouts)
	if err != nil {
		return nil, fmt.Errorf("referral payouts: %w", err)
	}
	return &t, nil
}

// TopPharmacies ranks pharmacies by completed-order revenue in the window.
func (r *Repository) TopPharmacies(ctx context.Context, start, end time.Time, limit int) ([]PharmacyPerformance, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.name,
		       coalesce(sum(o.total_amount), 0),
		       count(o.id)
		FROM orders o
		JOIN pharmacies p ON p.id = o.pharmacy_id
		WHERE o.status = 'completed'
		  AND o.completed_at >= $1 AND o.completed_at < $2
		GROUP BY p.id, p.name
		ORDER BY 3 DESC, p.name, p.id
		LIMIT $3
	`, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("top pharmacies: %w", err)
	}
	defer rows.Close()

	out := make([]PharmacyPerformance, 0, limit)
	for rows.Next() {
		var p PharmacyPerformance
		if err := rows.Scan(&p.PharmacyID, &p.Name, &p.Revenue, &p.OrderCount); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// TopDoctors ranks doctors by referral commission earned in the window.
func (r *Repository) TopDoctors(ctx context.Context, start, end time.Time, limit int) ([]DoctorPerformance, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT d.id, d.name,
		       coalesce(sum(rf.commission_amount), 0),
		       count(rf.id)
		FROM referrals rf
		JOIN doctors d ON d.id = rf.doctor_id
		WHERE rf.status = 'converted'
		  AND rf.converted_at >= $1 AND rf.converted_at < $2
		GROUP BY d.id, d.name
		ORDER BY 3 DESC, d.name, d.id
		LIMIT $3
	`, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("top doctors: %w", err)
	}
	defer rows.Close()

	out := make([]DoctorPerformance, 0, limit)
	for rows.Next() {
		var d DoctorPerformance
		if err := rows.Scan(&d.DoctorID, &d.Name, &d.CommissionEarned, &d.ConversionCount); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// RevenueByCategory breaks window revenue down by order category, largest
// first with a stable name tie-break.
func (r *Repository) RevenueByCategory(ctx context.Context, start, end time.Time) ([]CategoryRevenue, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT category,
		       coalesce(sum(total_amount), 0),
		       count(*)
		FROM orders
		WHERE status = 'completed'
		  AND completed_at >= $1 AND completed_at < $2
		GROUP BY category
		ORDER BY 2 DESC, category
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("revenue by category: %w", err)
	}
	defer rows.Close()

	out := make([]CategoryRevenue, 0)
	for rows.Next() {
		var c CategoryRevenue
		if err := rows.Scan(&c.Category, &c.Revenue, &c.OrderCount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// OrderStatsByCity returns completed order counts and revenue per city,
// consumed by the assignment coverage report.
func (r *Repository) OrderStatsByCity(ctx context.Context) (map[int64]assignment.CityOrderStats, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT city_id, count(*), coalesce(sum(total_amount), 0)
		FROM orders
		WHERE status = 'completed'
		GROUP BY city_id
	`)
	if err != nil {
		return nil, fmt.Errorf("order stats by city: %w", err)
	}
	defer rows.Close()

	stats := make(map[int64]assignment.CityOrderStats)
	for rows.Next() {
		var cityID int64
		var st assignment.CityOrderStats
		if err := rows.Scan(&cityID, &st.OrderCount, &st.Revenue); err != nil {
			return nil, err
		}
		stats[cityID] = st
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stats, nil
}
