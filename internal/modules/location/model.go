// README: Nearby listings and coverage gap report.
package location

import (
	"errors"
	"time"

	"dispatch/internal/modules/routing"
	"dispatch/internal/types"
)

const (
	DefaultNearbyRadiusKm = 10.0
	DefaultNearbyLimit    = 10

	recommendCoverage = "Recruit or reposition workers near the uncovered cells"
	coverageOK        = "All open pickups are within reach of an available worker"
)

type NearbyPickup struct {
	PickupID          types.ID    `json:"pickup_id"`
	CustomerID        types.ID    `json:"customer_id"`
	Location          types.Point `json:"location"`
	Address           string      `json:"address,omitempty"`
	ExpectedFee       types.Money `json:"expected_fee"`
	WasteType         string      `json:"waste_type,omitempty"`
	EstimatedWeightKg *float64    `json:"estimated_weight_kg,omitempty"`
	DistanceKm        float64     `json:"distance_km"`
	CreatedAt         time.Time   `json:"created_at"`
}

var ErrWorkerLocationUnavailable = errors.New("worker location not available")

// RoutePlan is a suggested visiting order over OPEN pickups, starting at
// the worker's last reported location. Pickups follow the route order and
// their DistanceKm is measured from the worker.
type RoutePlan struct {
	WorkerID types.ID       `json:"worker_id"`
	Start    types.Point    `json:"worker_location"`
	Pickups  []NearbyPickup `json:"pickups"`
	Route    routing.Route  `json:"route"`
}

type NearbyWorker struct {
	WorkerID      types.ID    `json:"worker_id"`
	Name          string      `json:"name"`
	Location      types.Point `json:"location"`
	Rating        float64     `json:"rating"`
	ActivePickups int         `json:"active_pickups"`
	DistanceKm    float64     `json:"distance_km"`
}

// Gap is a geohash cell holding open pickups no available worker can reach.
type Gap struct {
	Cell            string      `json:"cell"`
	Center          types.Point `json:"center"`
	PickupCount     int         `json:"pickup_count"`
	PickupIDs       []types.ID  `json:"pickup_ids"`
	NearestWorkerKm *float64    `json:"nearest_worker_km,omitempty"`
}

type CoverageReport struct {
	OpenPickups      int       `json:"open_pickups"`
	UncoveredPickups int       `json:"uncovered_pickups"`
	AvailableWorkers int       `json:"available_workers"`
	Gaps             []Gap     `json:"gaps"`
	Recommendations  []string  `json:"recommendations"`
	GeneratedAt      time.Time `json:"generated_at"`
}
