package revenue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dawaly/dawaly/internal/shared"
)

type stubStore struct {
	current     *Totals
	previous    *Totals
	categories  []CategoryRevenue
	pharmacies  []PharmacyPerformance
	doctors     []DoctorPerformance
	totalsCalls int
	anchor      time.Time
}

func (s *stubStore) WindowTotals(_ context.Context, _, end time.Time) (*Totals, error) {
	s.totalsCalls++
	if end.Equal(s.anchor) {
		out := *s.current
		return &out, nil
	}
	out := *s.previous
	return &out, nil
}

func (s *stubStore) RevenueByCategory(_ context.Context, _, _ time.Time) ([]CategoryRevenue, error) {
	out := make([]CategoryRevenue, len(s.categories))
	copy(out, s.categories)
	return out, nil
}

func (s *stubStore) TopPharmacies(_ context.Context, _, _ time.Time, _ int) ([]PharmacyPerformance, error) {
	out := make([]PharmacyPerformance, len(s.pharmacies))
	copy(out, s.pharmacies)
	return out, nil
}

func (s *stubStore) TopDoctors(_ context.Context, _, _ time.Time, _ int) ([]DoctorPerformance, error) {
	out := make([]DoctorPerformance, len(s.doctors))
	copy(out, s.doctors)
	return out, nil
}

func newCacheForTest(t *testing.T) (*Cache, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute), client
}

func newServiceForTest(t *testing.T, store *stubStore) *Service {
	t.Helper()
	cache, _ := newCacheForTest(t)
	svc := NewService(store, cache, 5)
	anchor := time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)
	store.anchor = anchor
	svc.now = func() time.Time { return anchor }
	return svc
}

func TestSummaryGrowthZeroWithoutBaseline(t *testing.T) {
	store := &stubStore{
		current:  &Totals{Revenue: 500, OrderCount: 5},
		previous: &Totals{},
	}
	svc := newServiceForTest(t, store)

	summary, err := svc.Summary(context.Background(), Timeframe30Days)
	require.NoError(t, err)

	assert.Equal(t, 500.0, summary.TotalRevenue)
	assert.Zero(t, summary.GrowthPercent, "empty previous window is no-growth, not infinite growth")
	assert.Equal(t, 100.0, summary.AverageOrderValue)
}

func TestSummaryGrowthAgainstPreviousWindow(t *testing.T) {
	store := &stubStore{
		current:  &Totals{Revenue: 150, OrderCount: 3},
		previous: &Totals{Revenue: 100, OrderCount: 2},
	}
	svc := newServiceForTest(t, store)

	summary, err := svc.Summary(context.Background(), Timeframe7Days)
	require.NoError(t, err)

	assert.InDelta(t, 50.0, summary.GrowthPercent, 1e-9)
	assert.Equal(t, 100.0, summary.PreviousRevenue)
}

func TestBreakdownSharesReconcile(t *testing.T) {
	store := &stubStore{
		current: &Totals{
			Revenue:         10000,
			OrderCount:      40,
			GrossCommission: 200.10,
			DeliveryFees:    55.55,
			DoctorPayouts:   33.33,
		},
		previous: &Totals{},
	}
	svc := newServiceForTest(t, store)

	summary, err := svc.Summary(context.Background(), Timeframe3Months)
	require.NoError(t, err)

	b := summary.Breakdown
	assert.InDelta(t, 166.77, b.PlatformShare, 1e-9)
	assert.InDelta(t, 55.55, b.PharmacyShare, 1e-9)
	assert.InDelta(t, 33.33, b.DoctorShare, 1e-9)
	assert.InDelta(t, b.TotalCommission, b.PlatformShare+b.PharmacyShare+b.DoctorShare, 1e-6)
}

func TestSummaryIncludesCategoryBreakdown(t *testing.T) {
	store := &stubStore{
		current:  &Totals{Revenue: 900, OrderCount: 9},
		previous: &Totals{},
		categories: []CategoryRevenue{
			{Category: "medicines", Revenue: 700, OrderCount: 6},
			{Category: "cosmetics", Revenue: 200, OrderCount: 3},
		},
	}
	svc := newServiceForTest(t, store)

	summary, err := svc.Summary(context.Background(), Timeframe30Days)
	require.NoError(t, err)

	require.Len(t, summary.Categories, 2)
	assert.Equal(t, "medicines", summary.Categories[0].Category)
	assert.Equal(t, 700.0, summary.Categories[0].Revenue)
	assert.Equal(t, 3, summary.Categories[1].OrderCount)
}

func TestPlatformShareNeverNegative(t *testing.T) {
	store := &stubStore{
		current:  &Totals{GrossCommission: 10, DoctorPayouts: 25},
		previous: &Totals{},
	}
	svc := newServiceForTest(t, store)

	summary, err := svc.Summary(context.Background(), Timeframe6Months)
	require.NoError(t, err)

	assert.Zero(t, summary.Breakdown.PlatformShare)
	assert.InDelta(t, 25.0, summary.Breakdown.DoctorShare, 1e-9)
}

func TestSummaryCachedUntilBump(t *testing.T) {
	store := &stubStore{
		current:  &Totals{Revenue: 500, OrderCount: 5},
		previous: &Totals{Revenue: 100},
	}
	svc := newServiceForTest(t, store)

	_, err := svc.Summary(context.Background(), Timeframe30Days)
	require.NoError(t, err)
	// Current plus previous window.
	require.Equal(t, 2, store.totalsCalls)

	_, err = svc.Summary(context.Background(), Timeframe30Days)
	require.NoError(t, err)
	assert.Equal(t, 2, store.totalsCalls, "second read must come from cache")

	require.NoError(t, svc.cache.Bump(context.Background()))

	_, err = svc.Summary(context.Background(), Timeframe30Days)
	require.NoError(t, err)
	assert.Equal(t, 4, store.totalsCalls, "bump must invalidate cached aggregates")
}

func TestTopPerformersAlphabeticalTieBreak(t *testing.T) {
	store := &stubStore{
		current:  &Totals{},
		previous: &Totals{},
		pharmacies: []PharmacyPerformance{
			{PharmacyID: 3, Name: "Nile Pharmacy", Revenue: 400},
			{PharmacyID: 1, Name: "alpha pharmacy", Revenue: 400},
			{PharmacyID: 2, Name: "Beta Pharmacy", Revenue: 900},
		},
		doctors: []DoctorPerformance{
			{DoctorID: 2, Name: "Dr. Zain", CommissionEarned: 50},
			{DoctorID: 1, Name: "Dr. Adel", CommissionEarned: 50},
		},
	}
	svc := newServiceForTest(t, store)

	top, err := svc.TopPerformers(context.Background(), Timeframe7Days)
	require.NoError(t, err)

	require.Len(t, top.Pharmacies, 3)
	assert.Equal(t, "Beta Pharmacy", top.Pharmacies[0].Name)
	// Tie at 400 resolves alphabetically, case-insensitive.
	assert.Equal(t, "alpha pharmacy", top.Pharmacies[1].Name)
	assert.Equal(t, "Nile Pharmacy", top.Pharmacies[2].Name)

	require.Len(t, top.Doctors, 2)
	assert.Equal(t, "Dr. Adel", top.Doctors[0].Name)
}

func TestTopPerformersTruncatedToLimit(t *testing.T) {
	store := &stubStore{current: &Totals{}, previous: &Totals{}}
	for i := 0; i < 10; i++ {
		store.pharmacies = append(store.pharmacies, PharmacyPerformance{
			PharmacyID: int64(i + 1),
			Name:       "Pharmacy",
			Revenue:    float64(1000 - i),
		})
	}
	cache, _ := newCacheForTest(t)
	svc := NewService(store, cache, 3)
	anchor := time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)
	store.anchor = anchor
	svc.now = func() time.Time { return anchor }

	top, err := svc.TopPerformers(context.Background(), Timeframe12Months)
	require.NoError(t, err)
	assert.Len(t, top.Pharmacies, 3)
}

func TestParseTimeframe(t *testing.T) {
	for _, tf := range Timeframes {
		parsed, err := ParseTimeframe(string(tf))
		require.NoError(t, err)
		assert.Equal(t, tf, parsed)
	}

	_, err := ParseTimeframe("90d")
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = ParseTimeframe("")
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestTimeframeWindows(t *testing.T) {
	now := time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)

	start, end := Timeframe7Days.Window(now)
	assert.Equal(t, now, end)
	assert.Equal(t, now.AddDate(0, 0, -7), start)

	prevStart, prevEnd := Timeframe7Days.PreviousWindow(now)
	assert.Equal(t, start, prevEnd)
	assert.Equal(t, now.AddDate(0, 0, -14), prevStart)

	start, _ = Timeframe3Months.Window(now)
	assert.Equal(t, now.AddDate(0, -3, 0), start)
}
