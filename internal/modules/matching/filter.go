// README: Hard eligibility filters applied before worker scoring.
package matching

import (
	"dispatch/internal/geo"
	"dispatch/internal/modules/worker"
	"dispatch/internal/types"
)

// Filter returns the workers eligible for a pickup at loc together with
// their distance. Unavailable, unlocated, out-of-radius and at-cap workers
// are dropped and counted per factor.
func Filter(loc types.Point, workers []worker.Worker, limit int) ([]Candidate, map[Factor]int) {
	excluded := make(map[Factor]int)
	out := make([]Candidate, 0, len(workers))
	for _, w := range workers {
		if !w.Available {
			excluded[FactorAvailability]++
			continue
		}
		if w.Location == nil {
			excluded[FactorLocation]++
			continue
		}
		if !w.HasCapacity(limit) {
			excluded[FactorWorkload]++
			continue
		}
		d := geo.DistanceKm(*w.Location, loc)
		if d > w.Radius() {
			excluded[FactorRadius]++
			continue
		}
		out = append(out, Candidate{Worker: w, DistanceKm: d})
	}
	return out, excluded
}
