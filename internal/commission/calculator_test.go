package commission

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dawaly/dawaly/internal/shared"
)

func tieredPolicy() Policy {
	return Policy{
		RateType: RateTypeTiered,
		BaseRate: 12,
		Tiers: []Tier{
			{Threshold: 500, Rate: 12},
			{Threshold: 2000, Rate: 10},
			{Threshold: 5000, Rate: 8},
		},
	}
}

func TestComputeFixedRate(t *testing.T) {
	policy := FixedPolicy(15, 0)

	assert.InDelta(t, 150, Compute(1000, policy), 1e-9)
	assert.InDelta(t, 0, Compute(0, policy), 1e-9)
}

func TestComputeBelowMinimumIsZero(t *testing.T) {
	policy := FixedPolicy(15, 200)

	assert.Zero(t, Compute(199.99, policy))
	assert.InDelta(t, 30, Compute(200, policy), 1e-9)
}

func TestComputeTieredBracketSelection(t *testing.T) {
	policy := tieredPolicy()

	// 3000 falls into the 2000 tier; the rate applies to the whole amount.
	assert.InDelta(t, 300, Compute(3000, policy), 1e-9)
	// Exactly on a threshold selects that tier.
	assert.InDelta(t, 200, Compute(2000, policy), 1e-9)
	// Just above the threshold must not change the rate (flat per bracket).
	assert.InDelta(t, Compute(2000, policy)/2000, Compute(2000.01, policy)/2000.01, 1e-9)
	// 10000 selects the highest tier.
	assert.InDelta(t, 800, Compute(10000, policy), 1e-9)
}

func TestComputeTieredFallsBackToBaseRate(t *testing.T) {
	policy := tieredPolicy()
	policy.MinimumEligibleAmount = 50

	// No tier threshold is <= 100, so the base rate of 12 applies.
	assert.InDelta(t, 12, Compute(100, policy), 1e-9)
	// Below the minimum nothing accrues.
	assert.Zero(t, Compute(49, policy))
}

func TestComputeTieredNilTiersUsesBaseRate(t *testing.T) {
	policy := Policy{RateType: RateTypeTiered, BaseRate: 7}

	assert.InDelta(t, 70, Compute(1000, policy), 1e-9)
}

func TestComputeTierTieLaterDefinitionWins(t *testing.T) {
	policy := Policy{
		RateType: RateTypeTiered,
		BaseRate: 5,
		Tiers: []Tier{
			{Threshold: 1000, Rate: 9},
			{Threshold: 1000, Rate: 6},
		},
	}

	assert.InDelta(t, 1500*0.06, Compute(1500, policy), 1e-9)
}

func TestComputeIsDeterministic(t *testing.T) {
	policy := tieredPolicy()
	first := Compute(3210.55, policy)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Compute(3210.55, policy))
	}
}

func TestValidateRejectsEmptyTierList(t *testing.T) {
	policy := Policy{RateType: RateTypeTiered, BaseRate: 10, Tiers: []Tier{}}

	err := policy.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))
}

func TestValidateAllowsNilTierList(t *testing.T) {
	policy := Policy{RateType: RateTypeTiered, BaseRate: 10}

	require.NoError(t, policy.Validate())
}

func TestValidateRejectsBadRates(t *testing.T) {
	cases := map[string]Policy{
		"negative base rate":  {RateType: RateTypeFixed, BaseRate: -1},
		"base rate above 100": {RateType: RateTypeFixed, BaseRate: 101},
		"negative minimum":    {RateType: RateTypeFixed, BaseRate: 10, MinimumEligibleAmount: -5},
		"unknown rate type":   {RateType: "flat", BaseRate: 10},
		"negative threshold": {RateType: RateTypeTiered, BaseRate: 10,
			Tiers: []Tier{{Threshold: -1, Rate: 5}}},
		"tier rate above 100": {RateType: RateTypeTiered, BaseRate: 10,
			Tiers: []Tier{{Threshold: 100, Rate: 101}}},
	}

	for name, policy := range cases {
		t.Run(name, func(t *testing.T) {
			err := policy.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, shared.ErrValidation))
		})
	}
}
