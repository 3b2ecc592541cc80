package revenue

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Totals carries the raw per-window numbers the breakdown is derived from.
type Totals struct {
	Revenue         float64
	OrderCount      int
	GrossCommission float64
	DeliveryFees    float64
	DoctorPayouts   float64
}

// Store exposes the windowed aggregate queries the service composes. All
// windows are half-open [start, end).
type Store interface {
	WindowTotals(ctx context.Context, start, end time.Time) (*Totals, error)
	RevenueByCategory(ctx context.Context, start, end time.Time) ([]CategoryRevenue, error)
	TopPharmacies(ctx context.Context, start, end time.Time, limit int) ([]PharmacyPerformance, error)
	TopDoctors(ctx context.Context, start, end time.Time, limit int) ([]DoctorPerformance, error)
}

// Service computes revenue aggregates behind a versioned cache. Concurrent
// requests for the same key collapse into one repository round trip.
type Service struct {
	repo     Store
	cache    *Cache
	group    singleflight.Group
	collator *collate.Collator
	topLimit int
	now      func() time.Time
}

// NewService wires a Store with a Cache helper. topLimit bounds the
// top-performer rankings.
func NewService(repo Store, cache *Cache, topLimit int) *Service {
	if topLimit <= 0 {
		topLimit = 5
	}
	return &Service{
		repo:     repo,
		cache:    cache,
		collator: collate.New(language.Und, collate.IgnoreCase),
		topLimit: topLimit,
		now:      time.Now,
	}
}

// Summary builds the revenue snapshot for the timeframe.
func (s *Service) Summary(ctx context.Context, tf Timeframe) (*Summary, error) {
	key, err := s.cache.BuildKey(ctx, keySummary(tf))
	if err != nil {
		return nil, fmt.Errorf("build cache key: %w", err)
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		var out Summary
		err := s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (interface{}, error) {
			return s.buildSummary(ctx, tf)
		})
		if err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Summary), nil
}

// TopPerformers ranks pharmacies and doctors for the timeframe. Equal scores
// order alphabetically by name so rankings are stable across runs.
func (s *Service) TopPerformers(ctx context.Context, tf Timeframe) (*TopPerformers, error) {
	key, err := s.cache.BuildKey(ctx, keyTopPerformers(tf, s.topLimit))
	if err != nil {
		return nil, fmt.Errorf("build cache key: %w", err)
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		var out TopPerformers
		err := s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (interface{}, error) {
			return s.buildTopPerformers(ctx, tf)
		})
		if err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*TopPerformers), nil
}

func (s *Service) buildSummary(ctx context.Context, tf Timeframe) (*Summary, error) {
	now := s.now()
	start, end := tf.Window(now)
	prevStart, prevEnd := tf.PreviousWindow(now)

	current, err := s.repo.WindowTotals(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("window totals: %w", err)
	}
	previous, err := s.repo.WindowTotals(ctx, prevStart, prevEnd)
	if err != nil {
		return nil, fmt.Errorf("previous window totals: %w", err)
	}
	categories, err := s.repo.RevenueByCategory(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("revenue by category: %w", err)
	}

	summary := &Summary{
		Timeframe:       tf,
		WindowStart:     start,
		WindowEnd:       end,
		TotalRevenue:    current.Revenue,
		OrderCount:      current.OrderCount,
		PreviousRevenue: previous.Revenue,
		GrowthPercent:   growthPercent(current.Revenue, previous.Revenue),
		Breakdown:       breakdown(current),
		Categories:      categories,
	}
	if current.OrderCount > 0 {
		summary.AverageOrderValue = current.Revenue / float64(current.OrderCount)
	}
	return summary, nil
}

func (s *Service) buildTopPerformers(ctx context.Context, tf Timeframe) (*TopPerformers, error) {
	start, end := tf.Window(s.now())

	pharmacies, err := s.repo.TopPharmacies(ctx, start, end, s.topLimit)
	if err != nil {
		return nil, fmt.Errorf("top pharmacies: %w", err)
	}
	doctors, err := s.repo.TopDoctors(ctx, start, end, s.topLimit)
	if err != nil {
		return nil, fmt.Errorf("top doctors: %w", err)
	}

	sort.SliceStable(pharmacies, func(i, j int) bool {
		if pharmacies[i].Revenue != pharmacies[j].Revenue {
			return pharmacies[i].Revenue > pharmacies[j].Revenue
		}
		if cmp := s.collator.CompareString(pharmacies[i].Name, pharmacies[j].Name); cmp != 0 {
			return cmp < 0
		}
		return pharmacies[i].PharmacyID < pharmacies[j].PharmacyID
	})
	sort.SliceStable(doctors, func(i, j int) bool {
		if doctors[i].CommissionEarned != doctors[j].CommissionEarned {
			return doctors[i].CommissionEarned > doctors[j].CommissionEarned
		}
		if cmp := s.collator.CompareString(doctors[i].Name, doctors[j].Name); cmp != 0 {
			return cmp < 0
		}
		return doctors[i].DoctorID < doctors[j].DoctorID
	})

	if len(pharmacies) > s.topLimit {
		pharmacies = pharmacies[:s.topLimit]
	}
	if len(doctors) > s.topLimit {
		doctors = doctors[:s.topLimit]
	}
	return &TopPerformers{Timeframe: tf, Pharmacies: pharmacies, Doctors: doctors}, nil
}

// growthPercent compares windows. An empty previous window yields 0, not an
// infinity; a brand-new marketplace has no growth baseline.
func growthPercent(current, previous float64) float64 {
	if previous == 0 {
		return 0
	}
	return (current - previous) / previous * 100
}

// breakdown splits commission volume. The platform keeps the gross order
// commission net of doctor payouts, pharmacies keep delivery fees, doctors
// keep referral payouts. The total is the sum of the shares, so the parts
// reconcile with the whole to within float error.
func breakdown(t *Totals) CommissionBreakdown {
	platform := math.Max(t.GrossCommission-t.DoctorPayouts, 0)
	return CommissionBreakdown{
		PlatformShare:   platform,
		PharmacyShare:   t.DeliveryFees,
		DoctorShare:     t.DoctorPayouts,
		TotalCommission: platform + t.DeliveryFees + t.DoctorPayouts,
	}
}
