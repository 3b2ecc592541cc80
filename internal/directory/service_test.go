package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dawaly/dawaly/internal/shared"
)

type fakeStore struct {
	doctors    map[int64]*Doctor
	pharmacies map[int64]*Pharmacy
	nextID     int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		doctors:    make(map[int64]*Doctor),
		pharmacies: make(map[int64]*Pharmacy),
		nextID:     1,
	}
}

func (f *fakeStore) GetDoctor(_ context.Context, id int64) (*Doctor, error) {
	d, ok := f.doctors[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *d
	return &copied, nil
}

func (f *fakeStore) GetPharmacy(_ context.Context, id int64) (*Pharmacy, error) {
	p, ok := f.pharmacies[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (f *fakeStore) CreateDoctor(_ context.Context, d Doctor) (int64, error) {
	d.ID = f.nextID
	f.nextID++
	f.doctors[d.ID] = &d
	return d.ID, nil
}

func (f *fakeStore) CreatePharmacy(_ context.Context, p Pharmacy) (int64, error) {
	p.ID = f.nextID
	f.nextID++
	f.pharmacies[p.ID] = &p
	return p.ID, nil
}

func (f *fakeStore) UpdateReferralPolicy(_ context.Context, id int64, req UpdateReferralPolicyRequest) error {
	d, ok := f.doctors[id]
	if !ok {
		return shared.ErrNotFound
	}
	if req.ReferralEnabled != nil {
		d.ReferralEnabled = *req.ReferralEnabled
	}
	if req.ReferralRate != nil {
		d.ReferralRate = *req.ReferralRate
	}
	if req.MinimumEligibleAmount != nil {
		d.MinimumEligibleAmount = *req.MinimumEligibleAmount
	}
	return nil
}

func (f *fakeStore) ListDoctors(_ context.Context, req ListDoctorsRequest) ([]Doctor, int, error) {
	out := make([]Doctor, 0)
	for _, d := range f.doctors {
		if req.ReferralEnabled != nil && d.ReferralEnabled != *req.ReferralEnabled {
			continue
		}
		out = append(out, *d)
	}
	return out, len(out), nil
}

func TestCreateDoctorStartsActive(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store)

	doctor, err := svc.CreateDoctor(context.Background(), CreateDoctorRequest{
		Name:            "Dr. Hana",
		ReferralEnabled: true,
		ReferralRate:    12,
	})
	require.NoError(t, err)
	assert.True(t, doctor.IsActive)
	assert.True(t, doctor.CanRefer())
	assert.Equal(t, 12.0, doctor.ReferralPolicy().BaseRate)
}

func TestCreateDoctorRejectsOutOfRangeRate(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store)

	_, err := svc.CreateDoctor(context.Background(), CreateDoctorRequest{
		Name:         "Dr. Hana",
		ReferralRate: 120,
	})
	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.Empty(t, store.doctors)
}

func TestUpdateReferralPolicyValidatesCombinedState(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store)

	doctor, err := svc.CreateDoctor(context.Background(), CreateDoctorRequest{
		Name:         "Dr. Hana",
		ReferralRate: 10,
	})
	require.NoError(t, err)

	bad := -5.0
	_, err = svc.UpdateReferralPolicy(context.Background(), doctor.ID, UpdateReferralPolicyRequest{
		MinimumEligibleAmount: &bad,
	})
	assert.ErrorIs(t, err, shared.ErrValidation)

	rate := 20.0
	updated, err := svc.UpdateReferralPolicy(context.Background(), doctor.ID, UpdateReferralPolicyRequest{
		ReferralRate: &rate,
	})
	require.NoError(t, err)
	assert.Equal(t, 20.0, updated.ReferralRate)
}

func TestUpdateReferralPolicyUnknownDoctor(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store)

	rate := 20.0
	_, err := svc.UpdateReferralPolicy(context.Background(), 99, UpdateReferralPolicyRequest{
		ReferralRate: &rate,
	})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
