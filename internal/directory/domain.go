// Package directory manages the doctor and pharmacy registries consumed by
// referral issuance and assignment creation.
package directory

import (
	"time"

	"github.com/dawaly/dawaly/internal/commission"
)

// Doctor is a referring physician. ReferralRate and MinimumEligibleAmount
// form the live referral policy; referrals snapshot both at creation time so
// later policy changes never touch historical records.
type Doctor struct {
	ID                    int64   `json:"id" db:"id"`
	Name                  string  `json:"name" db:"name"`
	Specialty             *string `json:"specialty,omitempty" db:"specialty"`
	Phone                 *string `json:"phone,omitempty" db:"phone"`
	IsActive              bool    `json:"is_active" db:"is_active"`
	ReferralEnabled       bool    `json:"referral_enabled" db:"referral_enabled"`
	ReferralRate          float64 `json:"referral_rate" db:"referral_rate"`
	MinimumEligibleAmount float64 `json:"minimum_eligible_amount" db:"minimum_eligible_amount"`

	// Aggregate performance counters, maintained by referral conversions.
	TotalReferrals        int     `json:"total_referrals" db:"total_referrals"`
	SuccessfulReferrals   int     `json:"successful_referrals" db:"successful_referrals"`
	TotalCommissionEarned float64 `json:"total_commission_earned" db:"total_commission_earned"`
	ConversionRate        float64 `json:"conversion_rate" db:"conversion_rate"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ReferralPolicy returns the doctor's live commission policy.
func (d *Doctor) ReferralPolicy() commission.Policy {
	return commission.FixedPolicy(d.ReferralRate, d.MinimumEligibleAmount)
}

// CanRefer reports whether the doctor may issue new referrals.
func (d *Doctor) CanRefer() bool {
	return d != nil && d.IsActive && d.ReferralEnabled
}

// Pharmacy is a registered pharmacy able to hold city assignments.
type Pharmacy struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Phone     *string   `json:"phone,omitempty" db:"phone"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CreateDoctorRequest registers a doctor with a live referral policy.
type CreateDoctorRequest struct {
	Name                  string  `json:"name" validate:"required,max=200"`
	Specialty             *string `json:"specialty,omitempty" validate:"omitempty,max=100"`
	Phone                 *string `json:"phone,omitempty" validate:"omitempty,max=50"`
	ReferralEnabled       bool    `json:"referral_enabled"`
	ReferralRate          float64 `json:"referral_rate" validate:"gte=0,lte=100"`
	MinimumEligibleAmount float64 `json:"minimum_eligible_amount" validate:"gte=0"`
}

// CreatePharmacyRequest registers a pharmacy.
type CreatePharmacyRequest struct {
	Name  string  `json:"name" validate:"required,max=200"`
	Phone *string `json:"phone,omitempty" validate:"omitempty,max=50"`
}

// UpdateReferralPolicyRequest changes a doctor's live referral terms.
type UpdateReferralPolicyRequest struct {
	ReferralEnabled       *bool    `json:"referral_enabled,omitempty"`
	ReferralRate          *float64 `json:"referral_rate,omitempty" validate:"omitempty,gte=0,lte=100"`
	MinimumEligibleAmount *float64 `json:"minimum_eligible_amount,omitempty" validate:"omitempty,gte=0"`
}

// ListDoctorsRequest filters the doctor listing.
type ListDoctorsRequest struct {
	IsActive        *bool   `json:"is_active,omitempty"`
	ReferralEnabled *bool   `json:"referral_enabled,omitempty"`
	Search          *string `json:"search,omitempty"`
	Limit           int     `json:"limit" validate:"gte=0,lte=1000"`
	Offset          int     `json:"offset" validate:"gte=0"`
}
