// Package revenue aggregates completed-order revenue and commission flows
// into time-windowed summaries, breakdowns and top-performer rankings.
package revenue

import (
	"fmt"
	"time"

	"github.com/dawaly/dawaly/internal/shared"
)

// Timeframe is a supported reporting window, anchored at the query instant.
type Timeframe string

const (
	Timeframe7Days    Timeframe = "7d"
	Timeframe30Days   Timeframe = "30d"
	Timeframe3Months  Timeframe = "3m"
	Timeframe6Months  Timeframe = "6m"
	Timeframe12Months Timeframe = "12m"
)

// Timeframes lists every supported window, in ascending length.
var Timeframes = []Timeframe{
	Timeframe7Days, Timeframe30Days, Timeframe3Months, Timeframe6Months, Timeframe12Months,
}

// ParseTimeframe validates a timeframe token. Unknown values are rejected
// rather than silently defaulted.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	for _, known := range Timeframes {
		if tf == known {
			return tf, nil
		}
	}
	return "", fmt.Errorf("%w: unknown timeframe %q", shared.ErrValidation, s)
}

// Window returns the half-open interval [start, end) ending at now.
func (t Timeframe) Window(now time.Time) (time.Time, time.Time) {
	return t.start(now), now
}

// PreviousWindow returns the window of equal length immediately before the
// current one, used for growth comparison.
func (t Timeframe) PreviousWindow(now time.Time) (time.Time, time.Time) {
	start := t.start(now)
	return t.start(start), start
}

func (t Timeframe) start(end time.Time) time.Time {
	switch t {
	case Timeframe7Days:
		return end.AddDate(0, 0, -7)
	case Timeframe30Days:
		return end.AddDate(0, 0, -30)
	case Timeframe3Months:
		return end.AddDate(0, -3, 0)
	case Timeframe6Months:
		return end.AddDate(0, -6, 0)
	case Timeframe12Months:
		return end.AddDate(0, -12, 0)
	default:
		return end
	}
}

// CommissionBreakdown splits the window's commission volume by destination.
// TotalCommission is defined as the sum of the three shares, so the parts
// always reconcile with the whole.
type CommissionBreakdown struct {
	TotalCommission float64 `json:"total_commission"`
	PlatformShare   float64 `json:"platform_share"`
	PharmacyShare   float64 `json:"pharmacy_share"`
	DoctorShare     float64 `json:"doctor_share"`
}

// CategoryRevenue is one order category's share of the window.
type CategoryRevenue struct {
	Category   string  `json:"category"`
	Revenue    float64 `json:"revenue"`
	OrderCount int     `json:"order_count"`
}

// Summary is the revenue snapshot for one timeframe.
type Summary struct {
	Timeframe         Timeframe           `json:"timeframe"`
	WindowStart       time.Time           `json:"window_start"`
	WindowEnd         time.Time           `json:"window_end"`
	TotalRevenue      float64             `json:"total_revenue"`
	OrderCount        int                 `json:"order_count"`
	AverageOrderValue float64             `json:"average_order_value"`
	PreviousRevenue   float64             `json:"previous_revenue"`
	GrowthPercent     float64             `json:"growth_percent"`
	Breakdown         CommissionBreakdown `json:"breakdown"`
	Categories        []CategoryRevenue   `json:"categories"`
}

// PharmacyPerformance ranks a pharmacy by delivered revenue in the window.
type PharmacyPerformance struct {
	PharmacyID int64   `json:"pharmacy_id"`
	Name       string  `json:"name"`
	Revenue    float64 `json:"revenue"`
	OrderCount int     `json:"order_count"`
}

// DoctorPerformance ranks a doctor by referral commission earned in the
// window.
type DoctorPerformance struct {
	DoctorID         int64   `json:"doctor_id"`
	Name             string  `json:"name"`
	CommissionEarned float64 `json:"commission_earned"`
	ConversionCount  int     `json:"conversion_count"`
}

// TopPerformers bundles the window's pharmacy and doctor rankings.
type TopPerformers struct {
	Timeframe  Timeframe             `json:"timeframe"`
	Pharmacies []PharmacyPerformance `json:"pharmacies"`
	Doctors    []DoctorPerformance   `json:"doctors"`
}

// Dashboard is the combined payload served to reporting clients.
type Dashboard struct {
	Summary       *Summary       `json:"summary"`
	TopPerformers *TopPerformers `json:"top_performers"`
}
