package assignment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dawaly/dawaly/internal/shared"
)

// Store abstracts assignment persistence so tests can run against an
// in-memory fake.
type Store interface {
	GetAssignment(ctx context.Context, id int64) (*Assignment, error)
	GetCity(ctx context.Context, id int64) (*City, error)
	GetActivePrimary(ctx context.Context, pharmacyID, cityID int64) (*Assignment, error)
	ListAssignments(ctx context.Context, req ListAssignmentsRequest) ([]Assignment, int, error)
	ListByIDs(ctx context.Context, ids []int64) ([]Assignment, error)
	ListByGovernorate(ctx context.Context, governorate string) ([]Assignment, error)
	CreateAssignment(ctx context.Context, a Assignment) (int64, error)
	SetActive(ctx context.Context, id int64, active bool) error
	DeleteAssignment(ctx context.Context, id int64) error
	CoverageByCity(ctx context.Context) ([]CityCoverage, error)
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error
}

// TxStore groups the writes of an all-or-nothing bulk update.
type TxStore interface {
	UpdateCommissionRate(ctx context.Context, id int64, rate float64) error
}

// CityOrderStats is the completed-order rollup for one city.
type CityOrderStats struct {
	OrderCount int
	Revenue    float64
}

// OrderStats supplies per-city completed order rollups for coverage
// reports. The orders subsystem owns the data.
type OrderStats interface {
	OrderStatsByCity(ctx context.Context) (map[int64]CityOrderStats, error)
}

// CacheBumper invalidates derived revenue caches after assignment writes.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

// Service owns the assignment registry.
type Service struct {
	logger *slog.Logger
	store  Store
	orders OrderStats
	cache  CacheBumper
	now    func() time.Time
}

// NewService constructs an assignment service. orders and cache may be nil
// when the caller does not need coverage order rollups or cache invalidation.
func NewService(logger *slog.Logger, store Store, orders OrderStats, cache CacheBumper) *Service {
	return &Service{
		logger: logger,
		store:  store,
		orders: orders,
		cache:  cache,
		now:    time.Now,
	}
}

// Create registers a pharmacy in a city. A pharmacy may hold at most one
// active primary assignment per city; secondaries are unrestricted.
func (s *Service) Create(ctx context.Context, req CreateAssignmentRequest) (*Assignment, error) {
	if err := req.Commission.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.store.GetCity(ctx, req.CityID); err != nil {
		return nil, fmt.Errorf("get city %d: %w", req.CityID, err)
	}
	if req.IsPrimary {
		existing, err := s.store.GetActivePrimary(ctx, req.PharmacyID, req.CityID)
		if err != nil && !isNotFound(err) {
			return nil, fmt.Errorf("check primary: %w", err)
		}
		if existing != nil {
			return nil, fmt.Errorf("%w: pharmacy %d already has active primary assignment %d in city %d",
				shared.ErrDuplicatePrimary, req.PharmacyID, existing.ID, req.CityID)
		}
	}

	id, err := s.store.CreateAssignment(ctx, Assignment{
		PharmacyID:               req.PharmacyID,
		CityID:                   req.CityID,
		IsPrimary:                req.IsPrimary,
		IsActive:                 true,
		Commission:               req.Commission,
		DeliveryFee:              req.DeliveryFee,
		DeliveryRadiusKm:         req.DeliveryRadiusKm,
		MinimumOrderAmount:       req.MinimumOrderAmount,
		EstimatedDeliveryMinutes: req.EstimatedDeliveryMinutes,
	})
	if err != nil {
		return nil, fmt.Errorf("create assignment: %w", err)
	}

	s.bump(ctx)
	return s.store.GetAssignment(ctx, id)
}

// Get retrieves an assignment by ID.
func (s *Service) Get(ctx context.Context, id int64) (*Assignment, error) {
	return s.store.GetAssignment(ctx, id)
}

// List returns assignments matching the filter.
func (s *Service) List(ctx context.Context, req ListAssignmentsRequest) ([]Assignment, int, error) {
	return s.store.ListAssignments(ctx, req)
}

// ToggleActive flips the assignment's active flag and returns the new state.
func (s *Service) ToggleActive(ctx context.Context, id int64) (*Assignment, error) {
	existing, err := s.store.GetAssignment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	if err := s.store.SetActive(ctx, id, !existing.IsActive); err != nil {
		return nil, fmt.Errorf("toggle assignment %d: %w", id, err)
	}

	s.bump(ctx)
	return s.store.GetAssignment(ctx, id)
}

// BulkUpdateCommission sets the base commission rate of every targeted
// assignment, or none at all. When ApplyToGovernorate is set the cascade
// reaches every assignment sharing a governorate with any listed target,
// active or not, even though those records were never explicitly selected.
// Any unknown ID rejects the whole batch before a single row is written.
func (s *Service) BulkUpdateCommission(ctx context.Context, req BulkUpdateCommissionRequest) ([]Assignment, error) {
	if req.NewRate < 0 || req.NewRate > 100 {
		return nil, fmt.Errorf("%w: commission rate %.2f out of range", shared.ErrValidation, req.NewRate)
	}
	if len(req.AssignmentIDs) == 0 {
		return nil, fmt.Errorf("%w: no assignments targeted", shared.ErrValidation)
	}

	targets, err := s.store.ListByIDs(ctx, req.AssignmentIDs)
	if err != nil {
		return nil, fmt.Errorf("load assignments: %w", err)
	}
	known := make(map[int64]bool, len(targets))
	for _, a := range targets {
		known[a.ID] = true
	}
	for _, id := range req.AssignmentIDs {
		if !known[id] {
			return nil, fmt.Errorf("%w: assignment %d does not exist", shared.ErrPartialUpdate, id)
		}
	}

	ids, err := s.resolveTargets(ctx, req, targets)
	if err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		for _, id := range ids {
			if err := tx.UpdateCommissionRate(ctx, id, req.NewRate); err != nil {
				return fmt.Errorf("update assignment %d: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.bump(ctx)
	return s.store.ListByIDs(ctx, ids)
}

// Delete removes an assignment permanently. Historical orders keep their own
// snapshot of the terms they were placed under.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if _, err := s.store.GetAssignment(ctx, id); err != nil {
		return fmt.Errorf("get assignment: %w", err)
	}
	if err := s.store.DeleteAssignment(ctx, id); err != nil {
		return fmt.Errorf("delete assignment %d: %w", id, err)
	}

	s.bump(ctx)
	return nil
}

// Coverage builds the on-demand coverage report from live assignment data
// and per-city order counts.
func (s *Service) Coverage(ctx context.Context) (*CoverageReport, error) {
	cities, err := s.store.CoverageByCity(ctx)
	if err != nil {
		return nil, fmt.Errorf("coverage by city: %w", err)
	}

	if s.orders != nil {
		stats, err := s.orders.OrderStatsByCity(ctx)
		if err != nil {
			return nil, fmt.Errorf("order stats by city: %w", err)
		}
		for i := range cities {
			st := stats[cities[i].CityID]
			cities[i].OrderCount = st.OrderCount
			cities[i].Revenue = st.Revenue
		}
	}

	byGov := make(map[string]*GovernorateCoverage)
	for _, c := range cities {
		g, ok := byGov[c.Governorate]
		if !ok {
			g = &GovernorateCoverage{Governorate: c.Governorate}
			byGov[c.Governorate] = g
		}
		g.CityCount++
		if c.ActiveCount > 0 {
			g.CoveredCities++
		}
		g.PharmacyCount += c.PharmacyCount
		g.OrderCount += c.OrderCount
		g.Revenue += c.Revenue
	}

	governorates := make([]GovernorateCoverage, 0, len(byGov))
	for _, g := range byGov {
		governorates = append(governorates, *g)
	}
	sort.Slice(governorates, func(i, j int) bool {
		return governorates[i].Governorate < governorates[j].Governorate
	})

	return &CoverageReport{
		GeneratedAt:  s.now(),
		Cities:       cities,
		Governorates: governorates,
	}, nil
}

// resolveTargets merges the explicit IDs with the governorate expansion
// derived from the targets themselves, deduplicated and in ascending order
// for deterministic writes.
func (s *Service) resolveTargets(ctx context.Context, req BulkUpdateCommissionRequest, targets []Assignment) ([]int64, error) {
	seen := make(map[int64]bool)
	ids := make([]int64, 0, len(targets))
	add := func(id int64) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, a := range targets {
		add(a.ID)
	}
	if req.ApplyToGovernorate {
		governorates := make(map[string]bool)
		for _, a := range targets {
			governorates[a.Governorate] = true
		}
		for governorate := range governorates {
			expanded, err := s.store.ListByGovernorate(ctx, governorate)
			if err != nil {
				return nil, fmt.Errorf("expand governorate %q: %w", governorate, err)
			}
			for _, a := range expanded {
				add(a.ID)
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *Service) bump(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("bump revenue cache", slog.Any("error", err))
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, shared.ErrNotFound)
}
