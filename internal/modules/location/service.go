// README: Worker location and availability updates, nearby listings and coverage gaps.
package location

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"dispatch/internal/geo"
	"dispatch/internal/logger"
	"dispatch/internal/modules/broadcast"
	"dispatch/internal/modules/pickup"
	"dispatch/internal/modules/routing"
	"dispatch/internal/modules/worker"
	"dispatch/internal/store"
	"dispatch/internal/types"
)

type Publisher interface {
	Publish(events ...broadcast.Event)
}

type Service struct {
	store     store.Store
	index     WorkerIndex
	events    Publisher
	optimizer *routing.Optimizer
	now       func() time.Time
}

// NewService wires the location service. index may be nil, in which case
// nearby-worker queries scan the store.
func NewService(st store.Store, index WorkerIndex, events Publisher) *Service {
	return &Service{store: st, index: index, events: events, optimizer: routing.NewOptimizer(), now: time.Now}
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
	s.optimizer = s.optimizer.WithClock(now)
}

// RegisterWorker creates or updates a worker profile. The active pickup
// count is owned by assignment and is never overwritten here.
func (s *Service) RegisterWorker(ctx context.Context, w *worker.Worker) (*worker.Worker, error) {
	if w.ID == "" || w.Rating < 0 || w.ServiceRadiusKm < 0 {
		return nil, worker.ErrBadRequest
	}
	if w.Location != nil {
		if err := w.Location.Validate(); err != nil {
			return nil, err
		}
	}
	if err := s.store.UpsertWorker(ctx, w); err != nil {
		return nil, err
	}
	saved, err := s.store.GetWorker(ctx, w.ID)
	if err != nil {
		return nil, err
	}
	s.syncIndex(ctx, saved)
	return saved, nil
}

// UpdateWorkerLocation stores the worker's position and notifies the worker
// topic plus every active pickup of that worker.
func (s *Service) UpdateWorkerLocation(ctx context.Context, id types.ID, p types.Point) (*worker.Worker, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	now := s.now()
	w, err := s.store.UpdateWorkerLocation(ctx, id, p, now)
	if err != nil {
		return nil, err
	}
	s.syncIndex(ctx, w)

	active, err := s.store.ListPickups(ctx, store.PickupFilter{
		WorkerID: &id,
		Statuses: []pickup.Status{pickup.StatusAccepted, pickup.StatusInProgress},
	})
	if err != nil {
		logger.Warn("list active pickups for location broadcast failed",
			logger.String("worker_id", string(id)), logger.Err(err))
		active = nil
	}
	s.publish(broadcast.WorkerLocationChanged(w, active, now))
	logger.Debug("worker location updated",
		logger.String("worker_id", string(id)),
		logger.Int("active_pickups", len(active)),
	)
	return w, nil
}

func (s *Service) SetAvailability(ctx context.Context, id types.ID, available bool) (*worker.Worker, error) {
	w, err := s.store.SetWorkerAvailability(ctx, id, available)
	if err != nil {
		return nil, err
	}
	s.syncIndex(ctx, w)
	s.publish(broadcast.WorkerAvailabilityChanged(w, s.now()))
	logger.Info("worker availability changed",
		logger.String("worker_id", string(id)),
		logger.Bool("available", available),
	)
	return w, nil
}

// syncIndex keeps the GEO index equal to the set of available, located
// workers. Index errors are logged; the store stays authoritative.
func (s *Service) syncIndex(ctx context.Context, w *worker.Worker) {
	if s.index == nil {
		return
	}
	var err error
	if w.Available && w.Location != nil {
		err = s.index.Add(ctx, w.ID, *w.Location)
	} else {
		err = s.index.Remove(ctx, w.ID)
	}
	if err != nil {
		logger.Warn("worker index update failed", logger.String("worker_id", string(w.ID)), logger.Err(err))
	}
}

// NearbyOpenPickups lists OPEN pickups within radiusKm of p, closest first.
func (s *Service) NearbyOpenPickups(ctx context.Context, p types.Point, radiusKm float64, limit int) ([]NearbyPickup, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if radiusKm <= 0 {
		radiusKm = DefaultNearbyRadiusKm
	}
	if limit <= 0 {
		limit = DefaultNearbyLimit
	}
	open, err := s.store.ListPickups(ctx, store.PickupFilter{Statuses: []pickup.Status{pickup.StatusOpen}})
	if err != nil {
		return nil, err
	}

	out := make([]NearbyPickup, 0, len(open))
	for _, op := range open {
		if op.Location == nil {
			continue
		}
		d := geo.DistanceKm(p, *op.Location)
		if d > radiusKm {
			continue
		}
		out = append(out, nearbyFrom(p, &op))
	}
	geo.SortByDistance(out, func(n NearbyPickup) float64 { return n.DistanceKm })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// NearbyWorkers lists available workers within radiusKm of p, closest first.
func (s *Service) NearbyWorkers(ctx context.Context, p types.Point, radiusKm float64) ([]NearbyWorker, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if radiusKm <= 0 {
		radiusKm = DefaultNearbyRadiusKm
	}

	var candidates []worker.Worker
	if s.index != nil {
		ids, err := s.index.Nearby(ctx, p, radiusKm)
		if err != nil {
			return nil, fmt.Errorf("worker index search: %w", err)
		}
		for _, id := range ids {
			w, err := s.store.GetWorker(ctx, id)
			if errors.Is(err, worker.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			candidates = append(candidates, *w)
		}
	} else {
		all, err := s.store.ListWorkers(ctx)
		if err != nil {
			return nil, err
		}
		candidates = all
	}

	out := make([]NearbyWorker, 0, len(candidates))
	for _, w := range candidates {
		if !w.Available || w.Location == nil {
			continue
		}
		d := geo.DistanceKm(p, *w.Location)
		if d > radiusKm {
			continue
		}
		out = append(out, NearbyWorker{
			WorkerID:      w.ID,
			Name:          w.Name,
			Location:      *w.Location,
			Rating:        w.Rating,
			ActivePickups: w.ActivePickups,
			DistanceKm:    round2(d),
		})
	}
	geo.SortByDistance(out, func(n NearbyWorker) float64 { return n.DistanceKm })
	return out, nil
}

// CoverageGaps groups OPEN pickups that lie outside every available
// worker's service radius by geohash cell.
func (s *Service) CoverageGaps(ctx context.Context) (*CoverageReport, error) {
	workers, err := s.store.ListWorkers(ctx)
	if err != nil {
		return nil, err
	}
	open, err := s.store.ListPickups(ctx, store.PickupFilter{Statuses: []pickup.Status{pickup.StatusOpen}})
	if err != nil {
		return nil, err
	}

	available := workers[:0]
	for _, w := range workers {
		if w.Available && w.Location != nil {
			available = append(available, w)
		}
	}

	report := &CoverageReport{
		OpenPickups:      len(open),
		AvailableWorkers: len(available),
		Gaps:             []Gap{},
		GeneratedAt:      s.now(),
	}
	cells := make(map[string]*Gap)
	for _, p := range open {
		if p.Location == nil {
			continue
		}
		covered := false
		nearest := math.Inf(1)
		for i := range available {
			d := geo.DistanceKm(*p.Location, *available[i].Location)
			nearest = math.Min(nearest, d)
			if d <= available[i].Radius() {
				covered = true
				break
			}
		}
		if covered {
			continue
		}

		report.UncoveredPickups++
		cell := geo.Cell(*p.Location, geo.DefaultCellPrecision)
		g, ok := cells[cell]
		if !ok {
			g = &Gap{Cell: cell, Center: geo.CellCenter(cell)}
			cells[cell] = g
		}
		g.PickupCount++
		g.PickupIDs = append(g.PickupIDs, p.ID)
		if !math.IsInf(nearest, 1) && (g.NearestWorkerKm == nil || nearest < *g.NearestWorkerKm) {
			n := round2(nearest)
			g.NearestWorkerKm = &n
		}
	}

	for _, g := range cells {
		report.Gaps = append(report.Gaps, *g)
	}
	sort.Slice(report.Gaps, func(i, j int) bool {
		if report.Gaps[i].PickupCount != report.Gaps[j].PickupCount {
			return report.Gaps[i].PickupCount > report.Gaps[j].PickupCount
		}
		return report.Gaps[i].Cell < report.Gaps[j].Cell
	})
	if report.UncoveredPickups > 0 {
		report.Recommendations = []string{recommendCoverage}
	} else {
		report.Recommendations = []string{coverageOK}
	}
	return report, nil
}

func (s *Service) publish(events []broadcast.Event) {
	if s.events == nil || len(events) == 0 {
		return
	}
	s.events.Publish(events...)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
