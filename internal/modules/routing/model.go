// README: Route and stop types produced by the route optimizer.
package routing

import (
	"errors"
	"time"

	"dispatch/internal/types"
)

type Algorithm string

const (
	AlgorithmNearestNeighbor Algorithm = "nearest_neighbor"
	AlgorithmPriorityGreedy  Algorithm = "priority_greedy"
)

const (
	// AverageSpeedKmh is the assumed travel speed between stops.
	AverageSpeedKmh = 30.0
	// HandlingTimePerStop is the fixed time spent at each stop.
	HandlingTimePerStop = 10 * time.Minute
)

var ErrUnknownAlgorithm = errors.New("unknown routing algorithm")

// ParseAlgorithm accepts the canonical names plus "greedy" and the empty
// string (nearest-neighbor).
func ParseAlgorithm(s string) (Algorithm, error) {
	switch s {
	case "", string(AlgorithmNearestNeighbor):
		return AlgorithmNearestNeighbor, nil
	case string(AlgorithmPriorityGreedy), "greedy":
		return AlgorithmPriorityGreedy, nil
	}
	return "", ErrUnknownAlgorithm
}

type Stop struct {
	PickupID  types.ID    `json:"pickup_id"`
	Location  types.Point `json:"location"`
	Fee       types.Money `json:"fee"`
	CreatedAt time.Time   `json:"created_at"`
}

type RouteStop struct {
	Stop
	Sequence      int           `json:"sequence"`
	LegKm         float64       `json:"distance_from_previous_km"`
	CumulativeKm  float64       `json:"cumulative_distance_km"`
	ArrivalOffset time.Duration `json:"arrival_offset"`
	// PriorityScore is only set by the priority-greedy algorithm.
	PriorityScore float64 `json:"priority_score,omitempty"`
}

type Route struct {
	Algorithm         Algorithm     `json:"algorithm"`
	Start             types.Point   `json:"start"`
	Stops             []RouteStop   `json:"stops"`
	TotalDistanceKm   float64       `json:"total_distance_km"`
	EstimatedDuration time.Duration `json:"estimated_duration"`
}

// EstimatedMinutes is EstimatedDuration expressed in minutes.
func (r Route) EstimatedMinutes() float64 {
	return r.EstimatedDuration.Minutes()
}

// PickupIDs returns the visiting order.
func (r Route) PickupIDs() []types.ID {
	ids := make([]types.ID, len(r.Stops))
	for i, s := range r.Stops {
		ids[i] = s.PickupID
	}
	return ids
}
