// Package assignment manages pharmacy-to-city delivery assignments: which
// pharmacy serves which city, on what commission and delivery terms.
package assignment

import (
	"time"

	"github.com/dawaly/dawaly/internal/commission"
)

// Assignment binds a pharmacy to a city it delivers in. At most one
// assignment per city may be primary. CityName and Governorate are joined in
// from the cities table on reads.
type Assignment struct {
	ID          int64  `json:"id" db:"id"`
	PharmacyID  int64  `json:"pharmacy_id" db:"pharmacy_id"`
	CityID      int64  `json:"city_id" db:"city_id"`
	CityName    string `json:"city_name" db:"city_name"`
	Governorate string `json:"governorate" db:"governorate"`
	IsPrimary   bool   `json:"is_primary" db:"is_primary"`
	IsActive    bool   `json:"is_active" db:"is_active"`

	Commission commission.Policy `json:"commission"`

	DeliveryFee              float64 `json:"delivery_fee" db:"delivery_fee"`
	DeliveryRadiusKm         float64 `json:"delivery_radius_km" db:"delivery_radius_km"`
	MinimumOrderAmount       float64 `json:"minimum_order_amount" db:"minimum_order_amount"`
	EstimatedDeliveryMinutes int     `json:"estimated_delivery_minutes" db:"estimated_delivery_minutes"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// City is a deliverable city grouped under a governorate.
type City struct {
	ID          int64  `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	Governorate string `json:"governorate" db:"governorate"`
}

// CreateAssignmentRequest registers a pharmacy in a city.
type CreateAssignmentRequest struct {
	PharmacyID               int64             `json:"pharmacy_id" validate:"required,gt=0"`
	CityID                   int64             `json:"city_id" validate:"required,gt=0"`
	IsPrimary                bool              `json:"is_primary"`
	Commission               commission.Policy `json:"commission"`
	DeliveryFee              float64           `json:"delivery_fee" validate:"gte=0"`
	DeliveryRadiusKm         float64           `json:"delivery_radius_km" validate:"gte=0"`
	MinimumOrderAmount       float64           `json:"minimum_order_amount" validate:"gte=0"`
	EstimatedDeliveryMinutes int               `json:"estimated_delivery_minutes" validate:"gte=0"`
}

// BulkUpdateCommissionRequest sets the base commission rate of a set of
// assignments atomically. The rest of each policy (rate type, minimum,
// tiers) is left untouched. ApplyToGovernorate expands the target set to
// every assignment sharing a governorate with any listed target, active or
// not.
type BulkUpdateCommissionRequest struct {
	AssignmentIDs      []int64 `json:"assignment_ids" validate:"omitempty,dive,gt=0"`
	NewRate            float64 `json:"new_rate" validate:"gte=0,lte=100"`
	ApplyToGovernorate bool    `json:"apply_to_governorate"`
}

// ListAssignmentsRequest filters the assignment listing.
type ListAssignmentsRequest struct {
	PharmacyID  *int64  `json:"pharmacy_id,omitempty"`
	CityID      *int64  `json:"city_id,omitempty"`
	Governorate *string `json:"governorate,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
	IsPrimary   *bool   `json:"is_primary,omitempty"`
	Limit       int     `json:"limit" validate:"gte=0,lte=1000"`
	Offset      int     `json:"offset" validate:"gte=0"`
}

// CityCoverage summarises delivery capacity for one city. Averages cover
// active assignments only.
type CityCoverage struct {
	CityID                 int64   `json:"city_id"`
	CityName               string  `json:"city_name"`
	Governorate            string  `json:"governorate"`
	PharmacyCount          int     `json:"pharmacy_count"`
	ActiveCount            int     `json:"active_count"`
	HasPrimary             bool    `json:"has_primary"`
	AverageDeliveryFee     float64 `json:"average_delivery_fee"`
	AverageCommissionRate  float64 `json:"average_commission_rate"`
	AverageDeliveryMinutes float64 `json:"average_delivery_minutes"`
	OrderCount             int     `json:"order_count"`
	Revenue                float64 `json:"revenue"`
}

// GovernorateCoverage rolls city coverage up to the governorate level.
type GovernorateCoverage struct {
	Governorate   string  `json:"governorate"`
	CityCount     int     `json:"city_count"`
	CoveredCities int     `json:"covered_cities"`
	PharmacyCount int     `json:"pharmacy_count"`
	OrderCount    int     `json:"order_count"`
	Revenue       float64 `json:"revenue"`
}

// CoverageReport is the on-demand coverage snapshot. It is computed from
// live data on every request, never cached.
type CoverageReport struct {
	GeneratedAt  time.Time             `json:"generated_at"`
	Cities       []CityCoverage        `json:"cities"`
	Governorates []GovernorateCoverage `json:"governorates"`
}
