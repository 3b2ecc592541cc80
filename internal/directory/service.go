package directory

import (
	"context"
	"fmt"
)

// Store abstracts persistence so tests can run against an in-memory fake.
type Store interface {
	GetDoctor(ctx context.Context, id int64) (*Doctor, error)
	GetPharmacy(ctx context.Context, id int64) (*Pharmacy, error)
	CreateDoctor(ctx context.Context, d Doctor) (int64, error)
	CreatePharmacy(ctx context.Context, p Pharmacy) (int64, error)
	UpdateReferralPolicy(ctx context.Context, id int64, req UpdateReferralPolicyRequest) error
	ListDoctors(ctx context.Context, req ListDoctorsRequest) ([]Doctor, int, error)
}

// Service provides business logic for the doctor/pharmacy directory.
type Service struct {
	store Store
}

// NewService constructs a directory service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// CreateDoctor registers a doctor. New doctors start active.
func (s *Service) CreateDoctor(ctx context.Context, req CreateDoctorRequest) (*Doctor, error) {
	doctor := Doctor{
		Name:                  req.Name,
		Specialty:             req.Specialty,
		Phone:                 req.Phone,
		IsActive:              true,
		ReferralEnabled:       req.ReferralEnabled,
		ReferralRate:          req.ReferralRate,
		MinimumEligibleAmount: req.MinimumEligibleAmount,
	}
	if err := doctor.ReferralPolicy().Validate(); err != nil {
		return nil, err
	}

	id, err := s.store.CreateDoctor(ctx, doctor)
	if err != nil {
		return nil, fmt.Errorf("create doctor: %w", err)
	}
	return s.store.GetDoctor(ctx, id)
}

// CreatePharmacy registers a pharmacy. New pharmacies start active.
func (s *Service) CreatePharmacy(ctx context.Context, req CreatePharmacyRequest) (*Pharmacy, error) {
	id, err := s.store.CreatePharmacy(ctx, Pharmacy{
		Name:     req.Name,
		Phone:    req.Phone,
		IsActive: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create pharmacy: %w", err)
	}
	return s.store.GetPharmacy(ctx, id)
}

// GetDoctor retrieves a doctor with its performance counters.
func (s *Service) GetDoctor(ctx context.Context, id int64) (*Doctor, error) {
	return s.store.GetDoctor(ctx, id)
}

// GetPharmacy retrieves a pharmacy by ID.
func (s *Service) GetPharmacy(ctx context.Context, id int64) (*Pharmacy, error) {
	return s.store.GetPharmacy(ctx, id)
}

// UpdateReferralPolicy changes a doctor's live referral terms. Existing
// referrals are unaffected; they carry the rate snapshot taken at creation.
func (s *Service) UpdateReferralPolicy(ctx context.Context, id int64, req UpdateReferralPolicyRequest) (*Doctor, error) {
	existing, err := s.store.GetDoctor(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get doctor: %w", err)
	}

	candidate := *existing
	if req.ReferralRate != nil {
		candidate.ReferralRate = *req.ReferralRate
	}
	if req.MinimumEligibleAmount != nil {
		candidate.MinimumEligibleAmount = *req.MinimumEligibleAmount
	}
	if err := candidate.ReferralPolicy().Validate(); err != nil {
		return nil, err
	}

	if err := s.store.UpdateReferralPolicy(ctx, id, req); err != nil {
		return nil, fmt.Errorf("update referral policy: %w", err)
	}
	return s.store.GetDoctor(ctx, id)
}

// ListDoctors returns a filtered doctor listing.
func (s *Service) ListDoctors(ctx context.Context, req ListDoctorsRequest) ([]Doctor, int, error) {
	return s.store.ListDoctors(ctx, req)
}
