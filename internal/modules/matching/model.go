// README: Candidate filtering factors, scoring weights and scored candidates.
package matching

import (
	"errors"
	"fmt"
	"strings"

	"dispatch/internal/modules/worker"
)

var ErrNoCandidate = errors.New("no suitable worker found")

// Factor names a criterion that can exclude or rank a worker.
type Factor string

const (
	FactorAvailability Factor = "worker_availability"
	FactorDistance     Factor = "distance_from_pickup"
	FactorRadius       Factor = "service_radius"
	FactorWorkload     Factor = "current_workload"
	FactorRating       Factor = "worker_rating"
	FactorLocation     Factor = "worker_location"
)

// ConsideredFactors is reported to callers when no worker qualifies.
var ConsideredFactors = []Factor{
	FactorAvailability,
	FactorDistance,
	FactorRadius,
	FactorWorkload,
	FactorRating,
}

// Weights parameterise the additive worker score. The defaults are a
// starting point, not calibrated business rules.
type Weights struct {
	DistanceBase          float64 `json:"distance_base"`
	DistancePerKm         float64 `json:"distance_per_km"`
	RatingWeight          float64 `json:"rating_weight"`
	AvailabilityBase      float64 `json:"availability_base"`
	AvailabilityPerActive float64 `json:"availability_per_active"`
}

func DefaultWeights() Weights {
	return Weights{
		DistanceBase:          10,
		DistancePerKm:         1,
		RatingWeight:          1,
		AvailabilityBase:      5,
		AvailabilityPerActive: 2,
	}
}

type Score struct {
	Distance     float64 `json:"distance_score"`
	Rating       float64 `json:"rating_score"`
	Availability float64 `json:"availability_score"`
	Total        float64 `json:"total"`
}

type Candidate struct {
	Worker     worker.Worker `json:"worker"`
	DistanceKm float64       `json:"distance_km"`
	Score      Score         `json:"score"`
}

// NoCandidateError lists what was considered and how many workers each
// filter removed. It matches ErrNoCandidate.
type NoCandidateError struct {
	Considered int
	Excluded   map[Factor]int
}

func (e *NoCandidateError) Error() string {
	parts := make([]string, 0, len(e.Excluded))
	for _, f := range []Factor{FactorAvailability, FactorLocation, FactorRadius, FactorWorkload} {
		if n := e.Excluded[f]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", f, n))
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%s (workers considered: %d)", ErrNoCandidate, e.Considered)
	}
	return fmt.Sprintf("%s (workers considered: %d, excluded: %s)", ErrNoCandidate, e.Considered, strings.Join(parts, ", "))
}

func (e *NoCandidateError) Is(target error) bool {
	return target == ErrNoCandidate
}

// Factors returns the factor names considered during matching.
func (e *NoCandidateError) Factors() []string {
	out := make([]string, len(ConsideredFactors))
	for i, f := range ConsideredFactors {
		out[i] = string(f)
	}
	return out
}
