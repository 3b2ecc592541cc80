// Package export serialises revenue aggregates and registry listings to CSV
// with stable column sets.
package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/dawaly/dawaly/internal/assignment"
	"github.com/dawaly/dawaly/internal/referral"
	"github.com/dawaly/dawaly/internal/revenue"
)

// CSV adapts the package functions to the revenue handler's Exporter
// contract.
type CSV struct{}

// WriteSummary implements revenue.Exporter.
func (CSV) WriteSummary(w io.Writer, summary *revenue.Summary) error {
	return WriteSummaryCSV(w, summary)
}

// WriteTopPerformers implements revenue.Exporter.
func (CSV) WriteTopPerformers(w io.Writer, top *revenue.TopPerformers) error {
	return WriteTopPerformersCSV(w, top)
}

// WriteAssignments implements assignment.Exporter.
func (CSV) WriteAssignments(w io.Writer, assignments []assignment.Assignment) error {
	return WriteAssignmentsCSV(w, assignments)
}

// WriteReferrals implements referral.Exporter.
func (CSV) WriteReferrals(w io.Writer, referrals []referral.Referral) error {
	return WriteReferralsCSV(w, referrals)
}

// WriteSummaryCSV serialises a revenue summary to its CSV representation.
// The header and row order are fixed so downstream spreadsheets keep working
// across releases.
func WriteSummaryCSV(w io.Writer, summary *revenue.Summary) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Metric", "Value"}); err != nil {
		return err
	}
	records := [][]string{
		{"Timeframe", string(summary.Timeframe)},
		{"Window Start", summary.WindowStart.Format(time.RFC3339)},
		{"Window End", summary.WindowEnd.Format(time.RFC3339)},
		{"Total Revenue", formatFloat(summary.TotalRevenue)},
		{"Order Count", strconv.Itoa(summary.OrderCount)},
		{"Average Order Value", formatFloat(summary.AverageOrderValue)},
		{"Previous Revenue", formatFloat(summary.PreviousRevenue)},
		{"Growth Percent", formatFloat(summary.GrowthPercent)},
		{"Total Commission", formatFloat(summary.Breakdown.TotalCommission)},
		{"Platform Share", formatFloat(summary.Breakdown.PlatformShare)},
		{"Pharmacy Share", formatFloat(summary.Breakdown.PharmacyShare)},
		{"Doctor Share", formatFloat(summary.Breakdown.DoctorShare)},
	}
	for _, c := range summary.Categories {
		records = append(records, []string{"Category: " + c.Category, formatFloat(c.Revenue)})
	}
	for _, record := range records {
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteTopPerformersCSV emits both rankings in one sheet, pharmacies first.
func WriteTopPerformersCSV(w io.Writer, top *revenue.TopPerformers) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Kind", "ID", "Name", "Amount", "Count"}); err != nil {
		return err
	}
	for _, p := range top.Pharmacies {
		if err := writer.Write([]string{
			"pharmacy",
			strconv.FormatInt(p.PharmacyID, 10),
			p.Name,
			formatFloat(p.Revenue),
			strconv.Itoa(p.OrderCount),
		}); err != nil {
			return err
		}
	}
	for _, d := range top.Doctors {
		if err := writer.Write([]string{
			"doctor",
			strconv.FormatInt(d.DoctorID, 10),
			d.Name,
			formatFloat(d.CommissionEarned),
			strconv.Itoa(d.ConversionCount),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteAssignmentsCSV emits the assignment listing.
func WriteAssignmentsCSV(w io.Writer, assignments []assignment.Assignment) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := []string{
		"ID", "Pharmacy ID", "City", "Governorate", "Primary", "Active",
		"Commission Type", "Commission Rate", "Minimum Eligible Amount",
		"Delivery Fee", "Delivery Radius Km", "Minimum Order Amount",
		"Estimated Delivery Minutes",
	}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, a := range assignments {
		if err := writer.Write([]string{
			strconv.FormatInt(a.ID, 10),
			strconv.FormatInt(a.PharmacyID, 10),
			a.CityName,
			a.Governorate,
			strconv.FormatBool(a.IsPrimary),
			strconv.FormatBool(a.IsActive),
			string(a.Commission.RateType),
			formatFloat(a.Commission.BaseRate),
			formatFloat(a.Commission.MinimumEligibleAmount),
			formatFloat(a.DeliveryFee),
			formatFloat(a.DeliveryRadiusKm),
			formatFloat(a.MinimumOrderAmount),
			strconv.Itoa(a.EstimatedDeliveryMinutes),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteReferralsCSV emits the referral ledger listing.
func WriteReferralsCSV(w io.Writer, referrals []referral.Referral) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := []string{
		"ID", "Doctor ID", "Customer ID", "Source", "Status",
		"Rate Snapshot", "Order Value", "Commission Amount",
		"Created At", "Expires At", "Converted At",
	}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, r := range referrals {
		if err := writer.Write([]string{
			r.ID,
			strconv.FormatInt(r.DoctorID, 10),
			strconv.FormatInt(r.CustomerID, 10),
			string(r.Source),
			string(r.Status),
			formatFloat(r.RateSnapshot),
			optionalFloat(r.OrderValue),
			optionalFloat(r.CommissionAmount),
			r.CreatedAt.Format(time.RFC3339),
			r.ExpiresAt.Format(time.RFC3339),
			optionalTime(r.ConvertedAt),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func optionalFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func optionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
