// README: Builds a worker's ordered daily schedule and rewrites arrival windows for today's accepted stops.
package schedule

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"dispatch/internal/geo"
	"dispatch/internal/logger"
	"dispatch/internal/modules/broadcast"
	"dispatch/internal/modules/pickup"
	"dispatch/internal/modules/routing"
	"dispatch/internal/store"
	"dispatch/internal/types"
)

type Publisher interface {
	Publish(events ...broadcast.Event)
}

type Service struct {
	store     store.Store
	optimizer *routing.Optimizer
	events    Publisher
	travel    TravelTimer
	now       func() time.Time
}

func NewService(st store.Store, events Publisher) *Service {
	return &Service{
		store:     st,
		optimizer: routing.NewOptimizer(),
		events:    events,
		now:       time.Now,
	}
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
	s.optimizer = s.optimizer.WithClock(now)
}

// SetTravelTimer enables road-network leg estimates for ReoptimizeRoute.
func (s *Service) SetTravelTimer(t TravelTimer) {
	s.travel = t
}

// GetWorkerSchedule lists the pickups the worker accepted on date, in
// nearest-neighbor order from the worker's last known location.
func (s *Service) GetWorkerSchedule(ctx context.Context, workerID types.ID, date time.Time) (*Schedule, error) {
	w, err := s.store.GetWorker(ctx, workerID)
	if err != nil {
		return nil, err
	}
	from, to := dayBounds(date)
	pickups, err := s.store.ListPickups(ctx, store.PickupFilter{
		WorkerID:     &workerID,
		AcceptedFrom: &from,
		AcceptedTo:   &to,
	})
	if err != nil {
		return nil, fmt.Errorf("list scheduled pickups: %w", err)
	}

	located, unlocated := splitByLocation(pickups)
	var start types.Point
	switch {
	case w.Location != nil:
		start = *w.Location
	case len(located) > 0:
		start = *located[0].Location
	}
	route, err := s.optimizer.Optimize(start, toStops(located), routing.AlgorithmNearestNeighbor)
	if err != nil {
		return nil, err
	}

	byID := make(map[types.ID]*pickup.Pickup, len(located))
	for i := range located {
		byID[located[i].ID] = &located[i]
	}
	items := make([]Item, 0, len(pickups))
	for _, rs := range route.Stops {
		items = append(items, newItem(byID[rs.PickupID], len(items)+1, rs.LegKm))
	}
	for i := range unlocated {
		items = append(items, newItem(&unlocated[i], len(items)+1, 0))
	}

	out := &Schedule{
		WorkerID: workerID,
		Date:     from.Format(DateLayout),
		Items:    items,
		Summary:  summarize(items, route.TotalDistanceKm),
	}
	return out, nil
}

func newItem(p *pickup.Pickup, seq int, legKm float64) Item {
	return Item{
		Sequence:               seq,
		PickupID:               p.ID,
		Status:                 p.Status,
		StatusMessage:          broadcast.StatusMessage(p.Status),
		CustomerID:             p.CustomerID,
		ExpectedFee:            p.ExpectedFee,
		WasteType:              p.WasteType,
		EstimatedWeightKg:      p.EstimatedWeightKg,
		Address:                p.Address,
		Location:               p.Location,
		WindowStart:            p.WindowStart,
		WindowEnd:              p.WindowEnd,
		EstimatedCompletion:    p.EstimatedCompletion,
		DistanceFromPreviousKm: round2(legKm),
		Notes:                  p.Notes,
	}
}

// summarize scores efficiency as 10 minus the average inter-stop distance.
func summarize(items []Item, distanceKm float64) Summary {
	sum := Summary{
		TotalPickups:     len(items),
		ExpectedEarnings: types.Money{Currency: types.DefaultCurrency},
		TotalDistanceKm:  round2(distanceKm),
	}
	for _, it := range items {
		switch it.Status {
		case pickup.StatusCompleted:
			sum.Completed++
		case pickup.StatusAccepted, pickup.StatusInProgress:
			sum.Pending++
		}
		// Fees in a foreign currency are left out of the total.
		if total, err := sum.ExpectedEarnings.Add(it.ExpectedFee); err == nil {
			sum.ExpectedEarnings = total
		}
	}
	if len(items) == 0 {
		return sum
	}
	legs := math.Max(float64(len(items)-1), 1)
	sum.EfficiencyScore = round2(math.Max(0, 10-distanceKm/legs))
	sum.EstimatedHours = round2(distanceKm/routing.AverageSpeedKmh + float64(len(items))*StopServiceTime.Hours())
	return sum
}

// ReoptimizeRoute re-sequences today's ACCEPTED pickups from the worker's
// current location and writes new arrival windows. Stops in any other
// state are left untouched.
func (s *Service) ReoptimizeRoute(ctx context.Context, workerID types.ID) (ReoptimizeResult, error) {
	res := ReoptimizeResult{WorkerID: workerID, Stops: []OptimizedStop{}}

	w, err := s.store.GetWorker(ctx, workerID)
	if err != nil {
		return res, err
	}
	if w.Location == nil {
		res.Message = msgNoLocation
		return res, nil
	}

	now := s.now()
	from, to := dayBounds(now)
	pickups, err := s.store.ListPickups(ctx, store.PickupFilter{
		WorkerID:     &workerID,
		Statuses:     []pickup.Status{pickup.StatusAccepted},
		AcceptedFrom: &from,
		AcceptedTo:   &to,
	})
	if err != nil {
		return res, fmt.Errorf("list accepted pickups: %w", err)
	}
	located, _ := splitByLocation(pickups)
	if len(located) == 0 {
		res.Message = msgNoPickups
		return res, nil
	}

	route, err := s.optimizer.Optimize(*w.Location, toStops(located), routing.AlgorithmNearestNeighbor)
	if err != nil {
		return res, err
	}

	prev := *w.Location
	var travel time.Duration
	for i, rs := range route.Stops {
		travel += s.legDuration(ctx, prev, rs.Location, rs.LegKm)
		arrival := now.Add(travel + time.Duration(i)*StopServiceTime)
		res.Stops = append(res.Stops, OptimizedStop{
			Sequence:               rs.Sequence,
			PickupID:               rs.PickupID,
			DistanceFromPreviousKm: round2(rs.LegKm),
			EstimatedArrival:       arrival,
			EstimatedDeparture:     arrival.Add(StopServiceTime),
		})
		prev = rs.Location
	}

	updated := 0
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		updated = 0
		for i := range res.Stops {
			st := &res.Stops[i]
			ok, err := tx.SetPickupWindow(ctx, st.PickupID, st.EstimatedArrival, st.EstimatedDeparture)
			if err != nil {
				return err
			}
			st.Updated = ok
			if ok {
				updated++
			}
		}
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("write pickup windows: %w", err)
	}

	res.Success = true
	res.UpdatedPickups = updated
	res.TotalDistanceKm = round2(route.TotalDistanceKm)
	res.Message = fmt.Sprintf("Route optimized for %d pickups", updated)

	if s.events != nil {
		s.events.Publish(broadcast.RouteOptimized(workerID, route, updated, now)...)
	}
	logger.Info("route reoptimized",
		logger.String("worker_id", string(workerID)),
		logger.Int("stops", len(res.Stops)),
		logger.Int("updated", updated),
		logger.Float64("distance_km", route.TotalDistanceKm),
	)
	return res, nil
}

func (s *Service) legDuration(ctx context.Context, from, to types.Point, km float64) time.Duration {
	if s.travel != nil {
		d, err := s.travel.TravelTime(ctx, from, to)
		if err == nil {
			return d
		}
		logger.Warn("travel time lookup failed, using average speed", logger.Err(err))
	}
	return time.Duration(geo.TravelMinutes(km, routing.AverageSpeedKmh) * float64(time.Minute))
}

func dayBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}

// splitByLocation keeps acceptance order within both halves.
func splitByLocation(ps []pickup.Pickup) (located, unlocated []pickup.Pickup) {
	sort.SliceStable(ps, func(i, j int) bool {
		return acceptedAt(ps[i]).Before(acceptedAt(ps[j]))
	})
	for _, p := range ps {
		if p.Location != nil {
			located = append(located, p)
		} else {
			unlocated = append(unlocated, p)
		}
	}
	return located, unlocated
}

func acceptedAt(p pickup.Pickup) time.Time {
	if p.AcceptedAt != nil {
		return *p.AcceptedAt
	}
	return p.CreatedAt
}

func toStops(ps []pickup.Pickup) []routing.Stop {
	out := make([]routing.Stop, len(ps))
	for i, p := range ps {
		out[i] = routing.Stop{PickupID: p.ID, Location: *p.Location, Fee: p.ExpectedFee, CreatedAt: p.CreatedAt}
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
