// Package commission implements the marketplace commission policies and the
// pure calculator applied to order values.
package commission

import (
	"fmt"

	"github.com/dawaly/dawaly/internal/shared"
)

// RateType selects how a policy derives the commission rate.
type RateType string

const (
	RateTypeFixed  RateType = "fixed"
	RateTypeTiered RateType = "tiered"
)

// Tier maps an order-value threshold to the rate applied to the whole order.
type Tier struct {
	Threshold float64 `json:"threshold" validate:"gte=0"`
	Rate      float64 `json:"rate" validate:"gte=0,lte=100"`
}

// Policy is the rule set determining how much of an order's value is paid
// out as commission. Tiers are only consulted when RateType is tiered; a nil
// tier list on a tiered policy falls back to the base rate, while an
// explicitly empty list is rejected by Validate.
type Policy struct {
	RateType              RateType `json:"rate_type"`
	BaseRate              float64  `json:"base_rate"`
	MinimumEligibleAmount float64  `json:"minimum_eligible_amount"`
	Tiers                 []Tier   `json:"tiers,omitempty"`
}

// Validate checks the policy for malformed input. It distinguishes a nil
// tier list (allowed, base-rate fallback) from an explicitly empty one.
func (p Policy) Validate() error {
	switch p.RateType {
	case RateTypeFixed, RateTypeTiered:
	default:
		return fmt.Errorf("%w: unknown rate type %q", shared.ErrValidation, p.RateType)
	}
	if p.BaseRate < 0 || p.BaseRate > 100 {
		return fmt.Errorf("%w: base rate %.2f out of range", shared.ErrValidation, p.BaseRate)
	}
	if p.MinimumEligibleAmount < 0 {
		return fmt.Errorf("%w: minimum eligible amount must not be negative", shared.ErrValidation)
	}
	if p.RateType == RateTypeTiered && p.Tiers != nil && len(p.Tiers) == 0 {
		return fmt.Errorf("%w: tiered policy with empty tier list", shared.ErrValidation)
	}
	for _, tier := range p.Tiers {
		if tier.Threshold < 0 {
			return fmt.Errorf("%w: tier threshold must not be negative", shared.ErrValidation)
		}
		if tier.Rate < 0 || tier.Rate > 100 {
			return fmt.Errorf("%w: tier rate %.2f out of range", shared.ErrValidation, tier.Rate)
		}
	}
	return nil
}

// FixedPolicy builds a fixed-rate policy, used for snapshot-rate conversions.
func FixedPolicy(rate, minimumEligible float64) Policy {
	return Policy{
		RateType:              RateTypeFixed,
		BaseRate:              rate,
		MinimumEligibleAmount: minimumEligible,
	}
}
