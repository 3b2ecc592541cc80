package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dawaly/dawaly/internal/assignment"
	"github.com/dawaly/dawaly/internal/commission"
	"github.com/dawaly/dawaly/internal/referral"
	"github.com/dawaly/dawaly/internal/revenue"
)

func readAll(t *testing.T, buf *bytes.Buffer) [][]string {
	t.Helper()
	records, err := csv.NewReader(bytes.NewReader(buf.Bytes())).ReadAll()
	require.NoError(t, err)
	return records
}

func TestWriteSummaryCSV(t *testing.T) {
	summary := &revenue.Summary{
		Timeframe:    revenue.Timeframe30Days,
		TotalRevenue: 1234.5,
		OrderCount:   10,
		Breakdown: revenue.CommissionBreakdown{
			TotalCommission: 200,
			PlatformShare:   120,
			PharmacyShare:   50,
			DoctorShare:     30,
		},
		Categories: []revenue.CategoryRevenue{
			{Category: "medicines", Revenue: 1000.5, OrderCount: 8},
			{Category: "cosmetics", Revenue: 234, OrderCount: 2},
		},
	}

	buf := &bytes.Buffer{}
	require.NoError(t, WriteSummaryCSV(buf, summary))

	records := readAll(t, buf)
	require.Len(t, records, 15)
	assert.Equal(t, []string{"Metric", "Value"}, records[0])
	assert.Equal(t, []string{"Timeframe", "30d"}, records[1])
	assert.Equal(t, []string{"Total Revenue", "1234.50"}, records[4])
	assert.Equal(t, []string{"Platform Share", "120.00"}, records[10])
	assert.Equal(t, []string{"Category: medicines", "1000.50"}, records[13])
	assert.Equal(t, []string{"Category: cosmetics", "234.00"}, records[14])
}

func TestWriteTopPerformersCSV(t *testing.T) {
	top := &revenue.TopPerformers{
		Timeframe: revenue.Timeframe7Days,
		Pharmacies: []revenue.PharmacyPerformance{
			{PharmacyID: 1, Name: "Alpha Pharmacy", Revenue: 900, OrderCount: 12},
		},
		Doctors: []revenue.DoctorPerformance{
			{DoctorID: 2, Name: "Dr. Beta", CommissionEarned: 45.5, ConversionCount: 3},
		},
	}

	buf := &bytes.Buffer{}
	require.NoError(t, WriteTopPerformersCSV(buf, top))

	records := readAll(t, buf)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"Kind", "ID", "Name", "Amount", "Count"}, records[0])
	assert.Equal(t, []string{"pharmacy", "1", "Alpha Pharmacy", "900.00", "12"}, records[1])
	assert.Equal(t, []string{"doctor", "2", "Dr. Beta", "45.50", "3"}, records[2])
}

func TestWriteAssignmentsCSV(t *testing.T) {
	assignments := []assignment.Assignment{
		{
			ID: 1, PharmacyID: 10, CityName: "Zamalek", Governorate: "Cairo",
			IsPrimary: true, IsActive: true,
			Commission:  commission.FixedPolicy(10, 50),
			DeliveryFee: 15,
		},
	}

	buf := &bytes.Buffer{}
	require.NoError(t, WriteAssignmentsCSV(buf, assignments))

	records := readAll(t, buf)
	require.Len(t, records, 2)
	assert.Equal(t, "Commission Type", records[0][6])
	assert.Equal(t, "fixed", records[1][6])
	assert.Equal(t, "10.00", records[1][7])
}

func TestWriteReferralsCSVHandlesUnconverted(t *testing.T) {
	created := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)
	referrals := []referral.Referral{
		{
			ID: "abc", DoctorID: 1, CustomerID: 7,
			Source: referral.SourceQRCode, Status: referral.StatusPending,
			RateSnapshot: 10, CreatedAt: created, ExpiresAt: created.Add(referral.TTL),
		},
	}

	buf := &bytes.Buffer{}
	require.NoError(t, WriteReferralsCSV(buf, referrals))

	records := readAll(t, buf)
	require.Len(t, records, 2)
	assert.Equal(t, "", records[1][6], "order value empty for pending referral")
	assert.Equal(t, "", records[1][7], "commission empty for pending referral")
	assert.Equal(t, "", records[1][10], "converted at empty for pending referral")
}
