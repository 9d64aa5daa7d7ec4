// README: Weighted multi-factor worker scoring and ranking.
package matching

import (
	"math"
	"sort"

	"dispatch/internal/modules/worker"
	"dispatch/internal/types"
)

// Scorer ranks eligible workers for a pickup.
type Scorer struct {
	weights Weights
	cap     int
}

func NewScorer(weights Weights, workerCap int) *Scorer {
	if workerCap <= 0 {
		workerCap = worker.DefaultCap
	}
	return &Scorer{weights: weights, cap: workerCap}
}

func (s *Scorer) Cap() int {
	return s.cap
}

func (s *Scorer) Weights() Weights {
	return s.weights
}

// Score computes the sub-scores for a worker at distanceKm from the pickup.
func (s *Scorer) Score(w worker.Worker, distanceKm float64) Score {
	sc := Score{
		Distance:     math.Max(0, s.weights.DistanceBase-s.weights.DistancePerKm*distanceKm),
		Rating:       s.weights.RatingWeight * w.Rating,
		Availability: math.Max(0, s.weights.AvailabilityBase-s.weights.AvailabilityPerActive*float64(w.ActivePickups)),
	}
	sc.Total = sc.Distance + sc.Rating + sc.Availability
	return sc
}

// Rank filters and scores workers, best first. Equal totals are ordered by
// worker ID ascending.
func (s *Scorer) Rank(loc types.Point, workers []worker.Worker) ([]Candidate, error) {
	cands, excluded := Filter(loc, workers, s.cap)
	if len(cands) == 0 {
		return nil, &NoCandidateError{Considered: len(workers), Excluded: excluded}
	}
	for i := range cands {
		cands[i].Score = s.Score(cands[i].Worker, cands[i].DistanceKm)
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].Score.Total != cands[j].Score.Total {
			return cands[i].Score.Total > cands[j].Score.Total
		}
		return cands[i].Worker.ID < cands[j].Worker.ID
	})
	return cands, nil
}

// Best returns the top-ranked candidate.
func (s *Scorer) Best(loc types.Point, workers []worker.Worker) (Candidate, error) {
	ranked, err := s.Rank(loc, workers)
	if err != nil {
		return Candidate{}, err
	}
	return ranked[0], nil
}
