// README: Worker route plans over nearby or hand-picked OPEN pickups.
package location

import (
	"context"
	"errors"

	"dispatch/internal/geo"
	"dispatch/internal/modules/pickup"
	"dispatch/internal/modules/routing"
	"dispatch/internal/types"
)

// OptimizedPickups finds OPEN pickups around the worker and orders them
// with alg.
func (s *Service) OptimizedPickups(ctx context.Context, workerID types.ID, radiusKm float64, limit int, alg routing.Algorithm) (*RoutePlan, error) {
	start, err := s.workerStart(ctx, workerID)
	if err != nil {
		return nil, err
	}
	nearby, err := s.NearbyOpenPickups(ctx, start, radiusKm, limit)
	if err != nil {
		return nil, err
	}
	return s.plan(workerID, start, nearby, alg)
}

// OptimizeSelection orders the given pickups for the worker. IDs that are
// unknown, not OPEN or unlocated are skipped; pickup.ErrNotFound is
// returned when none remain.
func (s *Service) OptimizeSelection(ctx context.Context, workerID types.ID, ids []types.ID, alg routing.Algorithm) (*RoutePlan, error) {
	if len(ids) == 0 {
		return nil, pickup.ErrBadRequest
	}
	start, err := s.workerStart(ctx, workerID)
	if err != nil {
		return nil, err
	}

	seen := make(map[types.ID]bool, len(ids))
	selected := make([]NearbyPickup, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		p, err := s.store.GetPickup(ctx, id)
		if errors.Is(err, pickup.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if p.Status != pickup.StatusOpen || p.Location == nil {
			continue
		}
		selected = append(selected, nearbyFrom(start, p))
	}
	if len(selected) == 0 {
		return nil, pickup.ErrNotFound
	}
	return s.plan(workerID, start, selected, alg)
}

func (s *Service) workerStart(ctx context.Context, workerID types.ID) (types.Point, error) {
	w, err := s.store.GetWorker(ctx, workerID)
	if err != nil {
		return types.Point{}, err
	}
	if w.Location == nil {
		return types.Point{}, ErrWorkerLocationUnavailable
	}
	return *w.Location, nil
}

func (s *Service) plan(workerID types.ID, start types.Point, candidates []NearbyPickup, alg routing.Algorithm) (*RoutePlan, error) {
	stops := make([]routing.Stop, len(candidates))
	byID := make(map[types.ID]NearbyPickup, len(candidates))
	for i, c := range candidates {
		stops[i] = routing.Stop{PickupID: c.PickupID, Location: c.Location, Fee: c.ExpectedFee, CreatedAt: c.CreatedAt}
		byID[c.PickupID] = c
	}
	route, err := s.optimizer.Optimize(start, stops, alg)
	if err != nil {
		return nil, err
	}

	ordered := make([]NearbyPickup, 0, len(route.Stops))
	for _, st := range route.Stops {
		ordered = append(ordered, byID[st.PickupID])
	}
	return &RoutePlan{WorkerID: workerID, Start: start, Pickups: ordered, Route: route}, nil
}

func nearbyFrom(from types.Point, p *pickup.Pickup) NearbyPickup {
	return NearbyPickup{
		PickupID:          p.ID,
		CustomerID:        p.CustomerID,
		Location:          *p.Location,
		Address:           p.Address,
		ExpectedFee:       p.ExpectedFee,
		WasteType:         p.WasteType,
		EstimatedWeightKg: p.EstimatedWeightKg,
		DistanceKm:        round2(geo.DistanceKm(from, *p.Location)),
		CreatedAt:         p.CreatedAt,
	}
}
