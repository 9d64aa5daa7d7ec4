// README: Assignment results, batch summaries and commands.
package assignment

import (
	"errors"
	"time"

	"dispatch/internal/modules/matching"
	"dispatch/internal/modules/pickup"
	"dispatch/internal/modules/worker"
	"dispatch/internal/types"
)

const (
	// ServiceTime is the fixed on-site time added to every completion estimate.
	ServiceTime = 15 * time.Minute
	// CustomerHistoryLimit caps RecentForCustomer.
	CustomerHistoryLimit = 10
)

var (
	ErrLocationUnavailable = errors.New("pickup location unavailable")
	ErrWorkerAtCapacity    = errors.New("worker has reached the concurrent pickup limit")
	ErrWorkerUnavailable   = worker.ErrUnavailable
)

// Reason explains why an assignment did not happen.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonNotFound        Reason = "not_found"
	ReasonNotOpen         Reason = "not_open"
	ReasonNoCandidate     Reason = "no_candidate"
	ReasonInvalidLocation Reason = "invalid_location"
	ReasonInternal        Reason = "internal"
)

type AssignedWorker struct {
	ID                      types.ID `json:"id"`
	Name                    string   `json:"name"`
	Rating                  float64  `json:"rating"`
	DistanceKm              float64  `json:"distance_km"`
	EstimatedArrivalMinutes float64  `json:"estimated_arrival_minutes"`
}

type Result struct {
	Success             bool            `json:"success"`
	PickupID            types.ID        `json:"pickup_id"`
	Worker              *AssignedWorker `json:"assigned_worker,omitempty"`
	Score               *matching.Score `json:"assignment_score,omitempty"`
	EstimatedCompletion *time.Time      `json:"estimated_completion,omitempty"`
	Reason              Reason          `json:"reason,omitempty"`
	CurrentStatus       pickup.Status   `json:"current_status,omitempty"`
	Factors             []string        `json:"factors_considered,omitempty"`
	Message             string          `json:"error,omitempty"`
}

type BatchAssignment struct {
	PickupID            types.ID  `json:"pickup_id"`
	WorkerID            types.ID  `json:"worker_id"`
	WorkerName          string    `json:"worker_name"`
	EstimatedCompletion time.Time `json:"estimated_completion"`
}

type BatchError struct {
	PickupID types.ID `json:"pickup_id"`
	Reason   Reason   `json:"reason"`
	Error    string   `json:"error"`
}

// BatchResult summarises ScheduleBatch. Each pickup is assigned on its own;
// there is no joint optimisation across the batch.
type BatchResult struct {
	Total       int               `json:"total_pickups"`
	Assigned    int               `json:"assigned_pickups"`
	Unassigned  int               `json:"unassigned_pickups"`
	Assignments []BatchAssignment `json:"assignments"`
	Errors      []BatchError      `json:"errors"`
}

type CreateCommand struct {
	BinID             types.ID
	CustomerID        types.ID
	Location          *types.Point
	Address           string
	ExpectedFee       types.Money
	WasteType         string
	EstimatedWeightKg *float64
	Notes             string
}

type UpdateStatusCommand struct {
	PickupID  types.ID
	Status    pickup.Status
	ActorType string
	ActorID   *types.ID
	Notes     string
}
