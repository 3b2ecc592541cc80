package referral

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dawaly/dawaly/internal/directory"
	"github.com/dawaly/dawaly/internal/shared"
)

type fakeStore struct {
	doctors map[int64]*directory.Doctor
	refs    map[string]*Referral
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		doctors: make(map[int64]*directory.Doctor),
		refs:    make(map[string]*Referral),
	}
}

func (f *fakeStore) GetReferral(_ context.Context, id string) (*Referral, error) {
	ref, ok := f.refs[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *ref
	return &copied, nil
}

func (f *fakeStore) ListReferrals(_ context.Context, req ListReferralsRequest) ([]Referral, int, error) {
	out := make([]Referral, 0)
	for _, ref := range f.refs {
		if req.DoctorID != nil && ref.DoctorID != *req.DoctorID {
			continue
		}
		if req.CustomerID != nil && ref.CustomerID != *req.CustomerID {
			continue
		}
		if req.Status != nil && ref.EffectiveStatus(time.Now()) != *req.Status {
			continue
		}
		out = append(out, *ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, len(out), nil
}

func (f *fakeStore) ListPendingByCustomer(_ context.Context, customerID int64) ([]Referral, error) {
	out := make([]Referral, 0)
	for _, ref := range f.refs {
		if ref.CustomerID == customerID && ref.Status == StatusPending {
			out = append(out, *ref)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) GetDoctor(_ context.Context, id int64) (*directory.Doctor, error) {
	doctor, ok := f.doctors[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *doctor
	return &copied, nil
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error {
	return fn(ctx, f)
}

func (f *fakeStore) CreateReferral(_ context.Context, r Referral) error {
	copied := r
	f.refs[r.ID] = &copied
	return nil
}

func (f *fakeStore) MarkConverted(_ context.Context, id string, orderID int64, orderValue, commissionAmount float64, convertedAt time.Time) error {
	ref, ok := f.refs[id]
	if !ok || ref.Status != StatusPending {
		return shared.ErrInvalidTransition
	}
	ref.Status = StatusConverted
	ref.OrderID = &orderID
	ref.OrderValue = &orderValue
	ref.CommissionAmount = &commissionAmount
	ref.ConvertedAt = &convertedAt
	return nil
}

func (f *fakeStore) MarkCancelled(_ context.Context, id string, cancelledAt time.Time) error {
	ref, ok := f.refs[id]
	if !ok || ref.Status != StatusPending {
		return shared.ErrInvalidTransition
	}
	ref.Status = StatusCancelled
	ref.CancelledAt = &cancelledAt
	return nil
}

func (f *fakeStore) ApplyDoctorPerformance(_ context.Context, doctorID int64, totalDelta, successfulDelta int, commissionDelta float64) error {
	doctor, ok := f.doctors[doctorID]
	if !ok {
		return shared.ErrNotFound
	}
	doctor.TotalReferrals += totalDelta
	doctor.SuccessfulReferrals += successfulDelta
	doctor.TotalCommissionEarned += commissionDelta
	if doctor.TotalReferrals > 0 {
		doctor.ConversionRate = float64(doctor.SuccessfulReferrals) * 100 / float64(doctor.TotalReferrals)
	} else {
		doctor.ConversionRate = 0
	}
	return nil
}

func seedDoctor(store *fakeStore, id int64, rate, minimum float64) {
	store.doctors[id] = &directory.Doctor{
		ID:                    id,
		Name:                  "Dr. Test",
		IsActive:              true,
		ReferralEnabled:       true,
		ReferralRate:          rate,
		MinimumEligibleAmount: minimum,
	}
}

func newTestService(store *fakeStore, at time.Time) *Service {
	svc := NewService(store)
	svc.now = func() time.Time { return at }
	return svc
}

func TestCreateSnapshotsDoctorPolicy(t *testing.T) {
	store := newFakeStore()
	seedDoctor(store, 1, 10, 50)
	start := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)
	svc := newTestService(store, start)

	ref, err := svc.Create(context.Background(), CreateReferralRequest{
		DoctorID: 1, CustomerID: 7, Source: SourceQRCode,
	})
	require.NoError(t, err)

	assert.Equal(t, StatusPending, ref.Status)
	assert.Equal(t, 10.0, ref.RateSnapshot)
	assert.Equal(t, 50.0, ref.MinimumEligibleSnapshot)
	assert.Equal(t, start.Add(TTL), ref.ExpiresAt)
	assert.Equal(t, 1, store.doctors[1].TotalReferrals)
	assert.Equal(t, 0, store.doctors[1].SuccessfulReferrals)
}

func TestCreateRejectsIneligibleReferrer(t *testing.T) {
	store := newFakeStore()
	seedDoctor(store, 1, 10, 0)
	store.doctors[1].ReferralEnabled = false
	seedDoctor(store, 2, 10, 0)
	store.doctors[2].IsActive = false
	svc := newTestService(store, time.Now())

	for _, doctorID := range []int64{1, 2, 99} {
		_, err := svc.Create(context.Background(), CreateReferralRequest{
			DoctorID: doctorID, CustomerID: 7, Source: SourceLink,
		})
		assert.ErrorIs(t, err, shared.ErrInvalidReferrer, "doctor %d", doctorID)
	}
	assert.Empty(t, store.refs)
}

func TestConvertUsesSnapshotNotLiveRate(t *testing.T) {
	store := newFakeStore()
	seedDoctor(store, 1, 10, 0)
	start := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)
	svc := newTestService(store, start)

	ref, err := svc.Create(context.Background(), CreateReferralRequest{
		DoctorID: 1, CustomerID: 7, Source: SourceDirect,
	})
	require.NoError(t, err)

	// Doctor raises the live rate after issuance; the referral must not see it.
	store.doctors[1].ReferralRate = 25

	converted, err := svc.Convert(context.Background(), ref.ID, ConvertReferralRequest{
		OrderID: 500, OrderValue: 1000,
	})
	require.NoError(t, err)

	require.NotNil(t, converted.CommissionAmount)
	assert.InDelta(t, 100.0, *converted.CommissionAmount, 1e-9)
	assert.Equal(t, StatusConverted, converted.Status)
	assert.Equal(t, 1, store.doctors[1].SuccessfulReferrals)
	assert.InDelta(t, 100.0, store.doctors[1].TotalCommissionEarned, 1e-9)
	assert.InDelta(t, 100.0, store.doctors[1].ConversionRate, 1e-9)
}

func TestConvertBelowMinimumYieldsZeroCommission(t *testing.T) {
	store := newFakeStore()
	seedDoctor(store, 1, 10, 200)
	svc := newTestService(store, time.Now())

	ref, err := svc.Create(context.Background(), CreateReferralRequest{
		DoctorID: 1, CustomerID: 7, Source: SourceLink,
	})
	require.NoError(t, err)

	converted, err := svc.Convert(context.Background(), ref.ID, ConvertReferralRequest{
		OrderID: 500, OrderValue: 150,
	})
	require.NoError(t, err)

	// Still a successful conversion, just with no payout.
	require.NotNil(t, converted.CommissionAmount)
	assert.Zero(t, *converted.CommissionAmount)
	assert.Equal(t, StatusConverted, converted.Status)
	assert.Equal(t, 1, store.doctors[1].SuccessfulReferrals)
}

func TestConvertTwiceFails(t *testing.T) {
	store := newFakeStore()
	seedDoctor(store, 1, 10, 0)
	svc := newTestService(store, time.Now())

	ref, err := svc.Create(context.Background(), CreateReferralRequest{
		DoctorID: 1, CustomerID: 7, Source: SourceQRCode,
	})
	require.NoError(t, err)

	_, err = svc.Convert(context.Background(), ref.ID, ConvertReferralRequest{OrderID: 500, OrderValue: 1000})
	require.NoError(t, err)

	_, err = svc.Convert(context.Background(), ref.ID, ConvertReferralRequest{OrderID: 501, OrderValue: 2000})
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)

	require.NotNil(t, store.refs[ref.ID].CommissionAmount)
	assert.InDelta(t, 100.0, *store.refs[ref.ID].CommissionAmount, 1e-9)
	assert.Equal(t, 1, store.doctors[1].SuccessfulReferrals)
}

func TestConvertExpiredFails(t *testing.T) {
	store := newFakeStore()
	seedDoctor(store, 1, 10, 0)
	start := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)
	svc := newTestService(store, start)

	ref, err := svc.Create(context.Background(), CreateReferralRequest{
		DoctorID: 1, CustomerID: 7, Source: SourceQRCode,
	})
	require.NoError(t, err)

	svc.now = func() time.Time { return start.Add(TTL + time.Hour) }

	_, err = svc.Convert(context.Background(), ref.ID, ConvertReferralRequest{OrderID: 500, OrderValue: 1000})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	assert.Contains(t, err.Error(), string(StatusExpired))
}

func TestLazyExpiryVisibleOnRead(t *testing.T) {
	store := newFakeStore()
	seedDoctor(store, 1, 10, 0)
	start := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)
	svc := newTestService(store, start)

	ref, err := svc.Create(context.Background(), CreateReferralRequest{
		DoctorID: 1, CustomerID: 7, Source: SourceQRCode,
	})
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), ref.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)

	svc.now = func() time.Time { return start.Add(TTL + time.Minute) }

	got, err = svc.Get(context.Background(), ref.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, got.Status)
	// The stored row is untouched; expiry is derived at read time.
	assert.Equal(t, StatusPending, store.refs[ref.ID].Status)
}

func TestCancelOnlyFromLivePending(t *testing.T) {
	store := newFakeStore()
	seedDoctor(store, 1, 10, 0)
	svc := newTestService(store, time.Now())

	ref, err := svc.Create(context.Background(), CreateReferralRequest{
		DoctorID: 1, CustomerID: 7, Source: SourceDirect,
	})
	require.NoError(t, err)

	cancelled, err := svc.Cancel(context.Background(), ref.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	_, err = svc.Cancel(context.Background(), ref.ID)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestAttributionFirstCreatedWins(t *testing.T) {
	store := newFakeStore()
	seedDoctor(store, 1, 10, 0)
	seedDoctor(store, 2, 20, 0)
	start := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)
	svc := newTestService(store, start)

	first, err := svc.Create(context.Background(), CreateReferralRequest{
		DoctorID: 1, CustomerID: 7, Source: SourceQRCode,
	})
	require.NoError(t, err)

	svc.now = func() time.Time { return start.Add(time.Hour) }
	second, err := svc.Create(context.Background(), CreateReferralRequest{
		DoctorID: 2, CustomerID: 7, Source: SourceLink,
	})
	require.NoError(t, err)

	// The newer referral cannot jump the queue while the older one is live.
	_, err = svc.Convert(context.Background(), second.ID, ConvertReferralRequest{OrderID: 500, OrderValue: 1000})
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)

	attributed, err := svc.Attribute(context.Background(), AttributeOrderRequest{
		CustomerID: 7, OrderID: 500, OrderValue: 1000,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, attributed.ID)
	assert.Equal(t, StatusConverted, attributed.Status)

	// The second referral stays pending until it expires on its own.
	got, err := svc.Get(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
}

func TestAttributeWithoutPendingReferral(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, time.Now())

	_, err := svc.Attribute(context.Background(), AttributeOrderRequest{
		CustomerID: 7, OrderID: 500, OrderValue: 1000,
	})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAttributeSkipsExpiredPending(t *testing.T) {
	store := newFakeStore()
	seedDoctor(store, 1, 10, 0)
	seedDoctor(store, 2, 20, 0)
	start := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)
	svc := newTestService(store, start)

	_, err := svc.Create(context.Background(), CreateReferralRequest{
		DoctorID: 1, CustomerID: 7, Source: SourceQRCode,
	})
	require.NoError(t, err)

	// The first referral expires before the second is issued.
	svc.now = func() time.Time { return start.Add(TTL + time.Hour) }
	second, err := svc.Create(context.Background(), CreateReferralRequest{
		DoctorID: 2, CustomerID: 7, Source: SourceLink,
	})
	require.NoError(t, err)

	attributed, err := svc.Attribute(context.Background(), AttributeOrderRequest{
		CustomerID: 7, OrderID: 500, OrderValue: 1000,
	})
	require.NoError(t, err)
	assert.Equal(t, second.ID, attributed.ID)
	require.NotNil(t, attributed.CommissionAmount)
	assert.InDelta(t, 200.0, *attributed.CommissionAmount, 1e-9)
}

func TestListResolvesEffectiveStatus(t *testing.T) {
	store := newFakeStore()
	seedDoctor(store, 1, 10, 0)
	start := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)
	svc := newTestService(store, start)

	_, err := svc.Create(context.Background(), CreateReferralRequest{
		DoctorID: 1, CustomerID: 7, Source: SourceQRCode,
	})
	require.NoError(t, err)

	svc.now = func() time.Time { return start.Add(TTL + time.Hour) }

	refs, total, err := svc.List(context.Background(), ListReferralsRequest{Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, StatusExpired, refs[0].Status)
}

func TestConvertMissingReferral(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, time.Now())

	_, err := svc.Convert(context.Background(), "no-such-id", ConvertReferralRequest{OrderID: 1, OrderValue: 10})
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}
