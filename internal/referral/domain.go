// Package referral implements the doctor referral ledger: issuance,
// conversion against completed orders, cancellation and lazy expiry.
package referral

import (
	"time"

	"github.com/dawaly/dawaly/internal/commission"
)

// Source identifies how a referred customer reached the marketplace.
type Source string

const (
	SourceQRCode Source = "qr_code"
	SourceLink   Source = "link"
	SourceDirect Source = "direct"
)

// Status is the stored lifecycle state of a referral.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConverted Status = "converted"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// TTL is the fixed validity window of a referral from its creation.
const TTL = 30 * 24 * time.Hour

// Referral links a doctor's recommendation to a customer who may place an
// order. RateSnapshot and MinimumEligibleSnapshot freeze the doctor's policy
// at creation time; later policy changes never alter historical referrals.
type Referral struct {
	ID              string  `json:"id" db:"id"`
	DoctorID        int64   `json:"doctor_id" db:"doctor_id"`
	CustomerID      int64   `json:"customer_id" db:"customer_id"`
	CustomerContact *string `json:"customer_contact,omitempty" db:"customer_contact"`
	OrderID         *int64  `json:"order_id,omitempty" db:"order_id"`
	PrescriptionID  *int64  `json:"prescription_id,omitempty" db:"prescription_id"`
	Source          Source  `json:"source" db:"source"`
	Status          Status  `json:"status" db:"status"`

	RateSnapshot            float64 `json:"rate_snapshot" db:"rate_snapshot"`
	MinimumEligibleSnapshot float64 `json:"minimum_eligible_snapshot" db:"minimum_eligible_snapshot"`

	OrderValue       *float64 `json:"order_value,omitempty" db:"order_value"`
	CommissionAmount *float64 `json:"commission_amount,omitempty" db:"commission_amount"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at" db:"expires_at"`
	ConvertedAt *time.Time `json:"converted_at,omitempty" db:"converted_at"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`
}

// EffectiveStatus derives the logical status at the given instant. A stored
// pending referral past its expiry is expired even though no writer has
// rewritten the row; callers must never trust the stored field alone.
func (r *Referral) EffectiveStatus(now time.Time) Status {
	if r.Status == StatusPending && now.After(r.ExpiresAt) {
		return StatusExpired
	}
	return r.Status
}

// IsLivePending reports whether the referral can still be converted or
// cancelled at the given instant.
func (r *Referral) IsLivePending(now time.Time) bool {
	return r.EffectiveStatus(now) == StatusPending
}

// SnapshotPolicy rebuilds the commission policy in effect when the referral
// was created.
func (r *Referral) SnapshotPolicy() commission.Policy {
	return commission.FixedPolicy(r.RateSnapshot, r.MinimumEligibleSnapshot)
}

// CreateReferralRequest attributes a referred customer to a doctor.
type CreateReferralRequest struct {
	DoctorID        int64   `json:"doctor_id" validate:"required,gt=0"`
	CustomerID      int64   `json:"customer_id" validate:"required,gt=0"`
	CustomerContact *string `json:"customer_contact,omitempty" validate:"omitempty,max=100"`
	PrescriptionID  *int64  `json:"prescription_id,omitempty" validate:"omitempty,gt=0"`
	Source          Source  `json:"source" validate:"required,oneof=qr_code link direct"`
}

// ConvertReferralRequest finalises a referral against a completed order.
type ConvertReferralRequest struct {
	OrderID    int64   `json:"order_id" validate:"required,gt=0"`
	OrderValue float64 `json:"order_value" validate:"gte=0"`
}

// AttributeOrderRequest converts the customer's oldest live pending referral.
type AttributeOrderRequest struct {
	CustomerID int64   `json:"customer_id" validate:"required,gt=0"`
	OrderID    int64   `json:"order_id" validate:"required,gt=0"`
	OrderValue float64 `json:"order_value" validate:"gte=0"`
}

// ListReferralsRequest filters the referral listing. Status filters match
// the effective status, so "expired" includes stored-pending rows past their
// expiry and "pending" excludes them.
type ListReferralsRequest struct {
	DoctorID   *int64  `json:"doctor_id,omitempty"`
	CustomerID *int64  `json:"customer_id,omitempty"`
	Status     *Status `json:"status,omitempty"`
	Limit      int     `json:"limit" validate:"gte=0,lte=1000"`
	Offset     int     `json:"offset" validate:"gte=0"`
}
