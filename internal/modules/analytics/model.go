// README: Scheduling performance report and its recommendation thresholds.
package analytics

import "time"

const (
	DefaultWindow = 7 * 24 * time.Hour

	// TargetAssignmentDelayMinutes is the goal for created-to-accepted time.
	TargetAssignmentDelayMinutes = 15.0

	minAssignmentRate   = 80.0
	minCompletionRate   = 90.0
	maxPickupsPerWorker = 10.0
	recommendRecruit    = "Consider recruiting more workers to improve assignment rates"
	recommendTraining   = "Review worker training or incentives to improve completion rates"
	recommendOverload   = "Workers may be overloaded - consider hiring additional staff"
	recommendOptimal    = "Scheduling performance is optimal"
)

type Report struct {
	PeriodDays                    int       `json:"period_days"`
	From                          time.Time `json:"from"`
	To                            time.Time `json:"to"`
	TotalPickups                  int       `json:"total_pickups"`
	AssignedPickups               int       `json:"assigned_pickups"`
	CompletedPickups              int       `json:"completed_pickups"`
	AssignmentRate                float64   `json:"assignment_rate"`
	CompletionRate                float64   `json:"completion_rate"`
	AverageAssignmentDelayMinutes *float64  `json:"average_assignment_time_minutes"`
	TargetAssignmentDelayMinutes  float64   `json:"target_assignment_time_minutes"`
	ActiveWorkers                 int       `json:"active_workers"`
	AveragePickupsPerWorker       float64   `json:"average_pickups_per_worker"`
	Recommendations               []string  `json:"recommendations"`
	GeneratedAt                   time.Time `json:"generated_at"`
}
