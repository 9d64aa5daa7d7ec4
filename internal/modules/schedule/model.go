// README: Worker daily schedule and route re-optimisation results.
package schedule

import (
	"context"
	"time"

	"dispatch/internal/modules/pickup"
	"dispatch/internal/types"
)

const (
	// StopServiceTime is spent at each stop; it separates consecutive
	// arrivals and is the width of each written window.
	StopServiceTime = 15 * time.Minute

	// DateLayout is the wire format of schedule dates.
	DateLayout = "2006-01-02"

	msgNoLocation = "Worker location not available for route optimization"
	msgNoPickups  = "No accepted pickups found for optimization"
)

// TravelTimer estimates the driving time between two points. Schedule falls
// back to the constant-speed estimate when it is nil or fails.
type TravelTimer interface {
	TravelTime(ctx context.Context, from, to types.Point) (time.Duration, error)
}

type Item struct {
	Sequence               int           `json:"sequence"`
	PickupID               types.ID      `json:"pickup_id"`
	Status                 pickup.Status `json:"status"`
	StatusMessage          string        `json:"status_message"`
	CustomerID             types.ID      `json:"customer_id"`
	ExpectedFee            types.Money   `json:"expected_fee"`
	WasteType              string        `json:"waste_type,omitempty"`
	EstimatedWeightKg      *float64      `json:"estimated_weight_kg,omitempty"`
	Address                string        `json:"address,omitempty"`
	Location               *types.Point  `json:"location,omitempty"`
	WindowStart            *time.Time    `json:"window_start,omitempty"`
	WindowEnd              *time.Time    `json:"window_end,omitempty"`
	EstimatedCompletion    *time.Time    `json:"estimated_completion,omitempty"`
	DistanceFromPreviousKm float64       `json:"distance_from_previous_km"`
	Notes                  string        `json:"notes,omitempty"`
}

type Summary struct {
	TotalPickups     int         `json:"total_pickups"`
	Completed        int         `json:"completed_pickups"`
	Pending          int         `json:"pending_pickups"`
	ExpectedEarnings types.Money `json:"total_expected_earnings"`
	TotalDistanceKm  float64     `json:"total_distance_km"`
	EfficiencyScore  float64     `json:"efficiency_score"`
	EstimatedHours   float64     `json:"estimated_total_time_hours"`
}

type Schedule struct {
	WorkerID types.ID `json:"worker_id"`
	Date     string   `json:"date"`
	Items    []Item   `json:"schedule"`
	Summary  Summary  `json:"summary"`
}

type OptimizedStop struct {
	Sequence               int       `json:"sequence"`
	PickupID               types.ID  `json:"pickup_id"`
	DistanceFromPreviousKm float64   `json:"distance_from_previous_km"`
	EstimatedArrival       time.Time `json:"estimated_arrival"`
	EstimatedDeparture     time.Time `json:"estimated_departure"`
	Updated                bool      `json:"updated"`
}

// ReoptimizeResult is returned even when nothing could be optimised;
// Success is false and Message says why.
type ReoptimizeResult struct {
	Success         bool            `json:"success"`
	WorkerID        types.ID        `json:"worker_id"`
	Message         string          `json:"message"`
	Stops           []OptimizedStop `json:"optimized_route"`
	TotalDistanceKm float64         `json:"total_distance_km"`
	UpdatedPickups  int             `json:"updated_pickups"`
}
