// README: Pure aggregation of pickups into dashboard metrics.
package analytics

import (
	"math"
	"time"

	"dispatch/internal/modules/pickup"
	"dispatch/internal/types"
)

// Compute summarises pickups created in [now-window, now]. Rates are
// percentages and are 0 when their denominator is 0.
func Compute(pickups []pickup.Pickup, now time.Time, window time.Duration) Report {
	if window <= 0 {
		window = DefaultWindow
	}
	from := now.Add(-window)
	r := Report{
		PeriodDays:                   int(math.Round(window.Hours() / 24)),
		From:                         from,
		To:                           now,
		TargetAssignmentDelayMinutes: TargetAssignmentDelayMinutes,
		GeneratedAt:                  now,
	}

	workers := make(map[types.ID]struct{})
	var delaySum float64
	delays := 0
	for i := range pickups {
		p := &pickups[i]
		if p.CreatedAt.Before(from) || p.CreatedAt.After(now) {
			continue
		}
		r.TotalPickups++
		if p.WorkerID != nil {
			r.AssignedPickups++
			workers[*p.WorkerID] = struct{}{}
		}
		if p.Status == pickup.StatusCompleted {
			r.CompletedPickups++
		}
		if p.AcceptedAt != nil && !p.CreatedAt.IsZero() {
			delaySum += p.AcceptedAt.Sub(p.CreatedAt).Minutes()
			delays++
		}
	}

	r.ActiveWorkers = len(workers)
	r.AssignmentRate = percent(r.AssignedPickups, r.TotalPickups)
	r.CompletionRate = percent(r.CompletedPickups, r.AssignedPickups)
	if delays > 0 {
		avg := round2(delaySum / float64(delays))
		r.AverageAssignmentDelayMinutes = &avg
	}
	if r.ActiveWorkers > 0 {
		r.AveragePickupsPerWorker = round2(float64(r.AssignedPickups) / float64(r.ActiveWorkers))
	}
	r.Recommendations = Recommendations(r)
	return r
}

// Recommendations applies the threshold rules in a fixed order.
func Recommendations(r Report) []string {
	var out []string
	if r.AssignmentRate < minAssignmentRate {
		out = append(out, recommendRecruit)
	}
	if r.CompletionRate < minCompletionRate {
		out = append(out, recommendTraining)
	}
	if r.ActiveWorkers > 0 && r.AveragePickupsPerWorker > maxPickupsPerWorker {
		out = append(out, recommendOverload)
	}
	if len(out) == 0 {
		out = append(out, recommendOptimal)
	}
	return out
}

func percent(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return round2(float64(n) / float64(d) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
