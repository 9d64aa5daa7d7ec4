// README: Stop ordering heuristics (nearest neighbour, priority greedy).
package routing

import (
	"math"
	"sort"
	"time"

	"dispatch/internal/geo"
	"dispatch/internal/types"
)

// Optimizer orders stops into a route using polynomial-time heuristics.
// It holds no state besides the clock, so one value can be shared.
type Optimizer struct {
	now func() time.Time
}

func NewOptimizer() *Optimizer {
	return &Optimizer{now: time.Now}
}

// WithClock returns a copy using now for urgency calculations.
func (o *Optimizer) WithClock(now func() time.Time) *Optimizer {
	return &Optimizer{now: now}
}

// Optimize orders stops starting from start. An empty stop set yields an
// empty route.
func (o *Optimizer) Optimize(start types.Point, stops []Stop, alg Algorithm) (Route, error) {
	var ordered []RouteStop
	switch alg {
	case AlgorithmNearestNeighbor:
		ordered = nearestNeighbor(start, stops)
	case AlgorithmPriorityGreedy:
		ordered = priorityGreedy(start, stops, o.now())
	default:
		return Route{}, ErrUnknownAlgorithm
	}
	return finalize(alg, start, ordered), nil
}

// nearestNeighbor repeatedly visits the closest unvisited stop. Distance
// ties go to the lower pickup ID.
func nearestNeighbor(start types.Point, stops []Stop) []RouteStop {
	remaining := make([]Stop, len(stops))
	copy(remaining, stops)
	out := make([]RouteStop, 0, len(stops))

	current := start
	for len(remaining) > 0 {
		best := 0
		bestDist := geo.DistanceKm(current, remaining[0].Location)
		for i := 1; i < len(remaining); i++ {
			d := geo.DistanceKm(current, remaining[i].Location)
			if d < bestDist || (d == bestDist && remaining[i].PickupID < remaining[best].PickupID) {
				best, bestDist = i, d
			}
		}
		next := remaining[best]
		out = append(out, RouteStop{Stop: next})
		current = next.Location
		remaining = append(remaining[:best], remaining[best+1:]...)
	}
	return out
}

// priorityGreedy ranks stops once by fee, age and distance from start and
// visits them in that order without re-evaluating per step.
func priorityGreedy(start types.Point, stops []Stop, now time.Time) []RouteStop {
	out := make([]RouteStop, len(stops))
	for i, s := range stops {
		out[i] = RouteStop{Stop: s, PriorityScore: PriorityScore(start, s, now)}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PriorityScore != out[j].PriorityScore {
			return out[i].PriorityScore > out[j].PriorityScore
		}
		return out[i].PickupID < out[j].PickupID
	})
	return out
}

// PriorityScore is fee/10 + min(ageHours/24, 2) - distanceFromStart/10.
func PriorityScore(start types.Point, s Stop, now time.Time) float64 {
	feeScore := s.Fee.Major() / 10
	urgency := 0.0
	if !s.CreatedAt.IsZero() {
		ageHours := now.Sub(s.CreatedAt).Hours()
		if ageHours > 0 {
			urgency = math.Min(ageHours/24, 2)
		}
	}
	distancePenalty := geo.DistanceKm(start, s.Location) / 10
	return feeScore + urgency - distancePenalty
}

func finalize(alg Algorithm, start types.Point, ordered []RouteStop) Route {
	route := Route{Algorithm: alg, Start: start, Stops: ordered}
	if route.Stops == nil {
		route.Stops = []RouteStop{}
	}

	prev := start
	total := 0.0
	for i := range route.Stops {
		leg := geo.DistanceKm(prev, route.Stops[i].Location)
		total += leg
		route.Stops[i].Sequence = i + 1
		route.Stops[i].LegKm = leg
		route.Stops[i].CumulativeKm = total
		route.Stops[i].ArrivalOffset = minutes(geo.TravelMinutes(total, AverageSpeedKmh)) +
			time.Duration(i)*HandlingTimePerStop
		prev = route.Stops[i].Location
	}

	route.TotalDistanceKm = total
	route.EstimatedDuration = EstimateDuration(total, len(route.Stops))
	return route
}

// EstimateDuration is (km/30)*60 minutes of travel plus 10 minutes per stop.
func EstimateDuration(totalKm float64, stopCount int) time.Duration {
	if stopCount == 0 {
		return 0
	}
	return minutes(geo.TravelMinutes(totalKm, AverageSpeedKmh)) + time.Duration(stopCount)*HandlingTimePerStop
}

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}
