package commission

// Compute returns the commission owed on orderValue under the policy.
//
// Orders below the minimum eligible amount accrue no commission. Fixed
// policies apply the base rate to the whole value. Tiered policies select
// the tier with the largest threshold not exceeding the value and apply its
// rate to the whole value (bracket selection, not marginal taxation); when
// two tiers share a threshold the later-defined one wins, and when no tier
// qualifies the base rate applies.
//
// Compute is pure: no side effects, identical inputs yield identical output.
func Compute(orderValue float64, policy Policy) float64 {
	if orderValue <= 0 {
		return 0
	}
	if orderValue < policy.MinimumEligibleAmount {
		return 0
	}

	rate := policy.BaseRate
	if policy.RateType == RateTypeTiered {
		rate = tierRate(orderValue, policy)
	}
	return orderValue * rate / 100
}

func tierRate(orderValue float64, policy Policy) float64 {
	best := -1
	for i, tier := range policy.Tiers {
		if tier.Threshold > orderValue {
			continue
		}
		// >= makes the later-defined tier win on equal thresholds.
		if best == -1 || tier.Threshold >= policy.Tiers[best].Threshold {
			best = i
		}
	}
	if best == -1 {
		return policy.BaseRate
	}
	return policy.Tiers[best].Rate
}
