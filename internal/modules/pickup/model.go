// README: Pickup request aggregate and status definitions.
package pickup

import (
	"time"

	"dispatch/internal/types"
)

type Status string

const (
	StatusNone       Status = "none"
	StatusOpen       Status = "open"
	StatusAccepted   Status = "accepted"
	StatusInProgress Status = "in_progress"
	StatusDelivered  Status = "delivered"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusDisputed   Status = "disputed"
)

type Pickup struct {
	ID                  types.ID     `json:"id"`
	BinID               types.ID     `json:"bin_id"`
	CustomerID          types.ID     `json:"customer_id"`
	WorkerID            *types.ID    `json:"worker_id,omitempty"`
	Status              Status       `json:"status"`
	Version             int          `json:"version"`
	Location            *types.Point `json:"location,omitempty"`
	Address             string       `json:"address,omitempty"`
	ExpectedFee         types.Money  `json:"expected_fee"`
	WasteType           string       `json:"waste_type,omitempty"`
	EstimatedWeightKg   *float64     `json:"estimated_weight_kg,omitempty"`
	Notes               string       `json:"notes,omitempty"`
	CreatedAt           time.Time    `json:"created_at"`
	AcceptedAt          *time.Time   `json:"accepted_at,omitempty"`
	PickedAt            *time.Time   `json:"picked_at,omitempty"`
	DeliveredAt         *time.Time   `json:"delivered_at,omitempty"`
	CompletedAt         *time.Time   `json:"completed_at,omitempty"`
	CancelledAt         *time.Time   `json:"cancelled_at,omitempty"`
	WindowStart         *time.Time   `json:"window_start,omitempty"`
	WindowEnd           *time.Time   `json:"window_end,omitempty"`
	EstimatedCompletion *time.Time   `json:"estimated_completion,omitempty"`
}

// AssignedTo reports whether the pickup currently references workerID.
func (p *Pickup) AssignedTo(workerID types.ID) bool {
	return p.WorkerID != nil && *p.WorkerID == workerID
}

// Clone returns a deep copy so stores can hand out values safely.
func (p Pickup) Clone() Pickup {
	c := p
	if p.WorkerID != nil {
		w := *p.WorkerID
		c.WorkerID = &w
	}
	if p.Location != nil {
		l := *p.Location
		c.Location = &l
	}
	if p.EstimatedWeightKg != nil {
		v := *p.EstimatedWeightKg
		c.EstimatedWeightKg = &v
	}
	c.AcceptedAt = cloneTime(p.AcceptedAt)
	c.PickedAt = cloneTime(p.PickedAt)
	c.DeliveredAt = cloneTime(p.DeliveredAt)
	c.CompletedAt = cloneTime(p.CompletedAt)
	c.CancelledAt = cloneTime(p.CancelledAt)
	c.WindowStart = cloneTime(p.WindowStart)
	c.WindowEnd = cloneTime(p.WindowEnd)
	c.EstimatedCompletion = cloneTime(p.EstimatedCompletion)
	return c
}

type Event struct {
	ID         int64     `json:"id"`
	PickupID   types.ID  `json:"pickup_id"`
	FromStatus Status    `json:"from_status"`
	ToStatus   Status    `json:"to_status"`
	ActorType  string    `json:"actor_type"`
	ActorID    *types.ID `json:"actor_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

const (
	ActorSystem   = "system"
	ActorWorker   = "worker"
	ActorCustomer = "customer"
	ActorAdmin    = "admin"
)

// AllowedTransitions represents the pickup state flow as code.
var AllowedTransitions = map[Status][]Status{
	StatusOpen:       {StatusAccepted, StatusCancelled},
	StatusAccepted:   {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusDelivered, StatusCompleted, StatusCancelled},
	StatusDelivered:  {StatusCompleted, StatusDisputed},
	StatusDisputed:   {StatusCompleted, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports statuses with no outgoing transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// HoldsWorkerSlot reports statuses that count against a worker's concurrency cap.
func (s Status) HoldsWorkerSlot() bool {
	return s == StatusAccepted || s == StatusInProgress
}

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusAccepted, StatusInProgress, StatusDelivered,
		StatusCompleted, StatusCancelled, StatusDisputed:
		return true
	}
	return false
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
