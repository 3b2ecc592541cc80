package referral

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dawaly/dawaly/internal/commission"
	"github.com/dawaly/dawaly/internal/directory"
	"github.com/dawaly/dawaly/internal/shared"
)

// Store abstracts referral persistence so tests can run against an
// in-memory fake.
type Store interface {
	GetReferral(ctx context.Context, id string) (*Referral, error)
	ListReferrals(ctx context.Context, req ListReferralsRequest) ([]Referral, int, error)
	// ListPendingByCustomer returns the customer's stored-pending referrals
	// ordered oldest first. Callers still check expiry themselves.
	ListPendingByCustomer(ctx context.Context, customerID int64) ([]Referral, error)
	GetDoctor(ctx context.Context, id int64) (*directory.Doctor, error)
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error
}

// TxStore groups the writes that must land atomically: ledger mutations and
// the doctor performance counters they imply.
type TxStore interface {
	CreateReferral(ctx context.Context, r Referral) error
	// MarkConverted transitions a stored-pending referral to converted. It
	// must guard on the stored status and return shared.ErrInvalidTransition
	// when a concurrent writer got there first.
	MarkConverted(ctx context.Context, id string, orderID int64, orderValue, commissionAmount float64, convertedAt time.Time) error
	// MarkCancelled transitions a stored-pending referral to cancelled under
	// the same status guard.
	MarkCancelled(ctx context.Context, id string, cancelledAt time.Time) error
	// ApplyDoctorPerformance adjusts the doctor's aggregate counters and
	// recomputes the conversion rate from the new totals.
	ApplyDoctorPerformance(ctx context.Context, doctorID int64, totalDelta, successfulDelta int, commissionDelta float64) error
}

// Service owns the referral lifecycle.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService constructs a referral service.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Create issues a referral for a doctor-recommended customer, snapshotting
// the doctor's live commission terms for the life of the record.
func (s *Service) Create(ctx context.Context, req CreateReferralRequest) (*Referral, error) {
	doctor, err := s.store.GetDoctor(ctx, req.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("%w: doctor %d: %v", shared.ErrInvalidReferrer, req.DoctorID, err)
	}
	if !doctor.CanRefer() {
		return nil, fmt.Errorf("%w: doctor %d is not accepting referrals", shared.ErrInvalidReferrer, req.DoctorID)
	}

	now := s.now()
	ref := Referral{
		ID:                      uuid.NewString(),
		DoctorID:                req.DoctorID,
		CustomerID:              req.CustomerID,
		CustomerContact:         req.CustomerContact,
		PrescriptionID:          req.PrescriptionID,
		Source:                  req.Source,
		Status:                  StatusPending,
		RateSnapshot:            doctor.ReferralRate,
		MinimumEligibleSnapshot: doctor.MinimumEligibleAmount,
		CreatedAt:               now,
		ExpiresAt:               now.Add(TTL),
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		if err := tx.CreateReferral(ctx, ref); err != nil {
			return fmt.Errorf("create referral: %w", err)
		}
		return tx.ApplyDoctorPerformance(ctx, req.DoctorID, 1, 0, 0)
	})
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

// Convert finalises a referral against a completed order. The commission is
// computed from the snapshot taken at creation, never the doctor's current
// terms, and the doctor's success counters move in the same transaction.
func (s *Service) Convert(ctx context.Context, id string, req ConvertReferralRequest) (*Referral, error) {
	ref, err := s.store.GetReferral(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get referral: %w", err)
	}
	now := s.now()
	if eff := ref.EffectiveStatus(now); eff != StatusPending {
		return nil, fmt.Errorf("%w: cannot convert referral in status %s", shared.ErrInvalidTransition, eff)
	}
	if err := s.checkAttributionOrder(ctx, ref, now); err != nil {
		return nil, err
	}
	if req.OrderValue < 0 {
		return nil, fmt.Errorf("%w: order value must not be negative", shared.ErrValidation)
	}

	amount := commission.Compute(req.OrderValue, ref.SnapshotPolicy())
	err = s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		if err := tx.MarkConverted(ctx, ref.ID, req.OrderID, req.OrderValue, amount, now); err != nil {
			return err
		}
		return tx.ApplyDoctorPerformance(ctx, ref.DoctorID, 0, 1, amount)
	})
	if err != nil {
		return nil, err
	}

	ref.Status = StatusConverted
	ref.OrderID = &req.OrderID
	ref.OrderValue = &req.OrderValue
	ref.CommissionAmount = &amount
	ref.ConvertedAt = &now
	return ref, nil
}

// Attribute converts the customer's oldest live pending referral for a
// completed order. When the customer has no live pending referral the order
// simply carries no referral commission.
func (s *Service) Attribute(ctx context.Context, req AttributeOrderRequest) (*Referral, error) {
	now := s.now()
	pending, err := s.store.ListPendingByCustomer(ctx, req.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("list pending referrals: %w", err)
	}
	for i := range pending {
		if pending[i].IsLivePending(now) {
			return s.Convert(ctx, pending[i].ID, ConvertReferralRequest{
				OrderID:    req.OrderID,
				OrderValue: req.OrderValue,
			})
		}
	}
	return nil, fmt.Errorf("%w: customer %d has no live pending referral", shared.ErrNotFound, req.CustomerID)
}

// Cancel voids a live pending referral, typically when the referral was
// recorded in error. Converted and expired referrals cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, id string) (*Referral, error) {
	ref, err := s.store.GetReferral(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get referral: %w", err)
	}
	now := s.now()
	if eff := ref.EffectiveStatus(now); eff != StatusPending {
		return nil, fmt.Errorf("%w: cannot cancel referral in status %s", shared.ErrInvalidTransition, eff)
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		return tx.MarkCancelled(ctx, ref.ID, now)
	})
	if err != nil {
		return nil, err
	}

	ref.Status = StatusCancelled
	ref.CancelledAt = &now
	return ref, nil
}

// Get retrieves a referral with its effective status resolved.
func (s *Service) Get(ctx context.Context, id string) (*Referral, error) {
	ref, err := s.store.GetReferral(ctx, id)
	if err != nil {
		return nil, err
	}
	ref.Status = ref.EffectiveStatus(s.now())
	return ref, nil
}

// List returns referrals matching the filter with effective statuses.
func (s *Service) List(ctx context.Context, req ListReferralsRequest) ([]Referral, int, error) {
	refs, total, err := s.store.ListReferrals(ctx, req)
	if err != nil {
		return nil, 0, err
	}
	now := s.now()
	for i := range refs {
		refs[i].Status = refs[i].EffectiveStatus(now)
	}
	return refs, total, nil
}

// checkAttributionOrder enforces first-created-wins: a referral may only
// convert if no older live pending referral exists for the same customer.
func (s *Service) checkAttributionOrder(ctx context.Context, ref *Referral, now time.Time) error {
	pending, err := s.store.ListPendingByCustomer(ctx, ref.CustomerID)
	if err != nil {
		return fmt.Errorf("list pending referrals: %w", err)
	}
	for i := range pending {
		if !pending[i].IsLivePending(now) {
			continue
		}
		if pending[i].ID != ref.ID {
			return fmt.Errorf("%w: referral %s predates %s for customer %d",
				shared.ErrInvalidTransition, pending[i].ID, ref.ID, ref.CustomerID)
		}
		return nil
	}
	return nil
}
