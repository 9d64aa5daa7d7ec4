// README: Persistence contract for pickups and workers with an explicit transaction boundary.
package store

import (
	"context"
	"time"

	"dispatch/internal/modules/pickup"
	"dispatch/internal/modules/worker"
	"dispatch/internal/types"
)

// PickupFilter narrows ListPickups. Zero fields are ignored; time ranges
// are half-open [From, To). Results are ordered by creation time, oldest
// first unless NewestFirst is set, and Limit applies after ordering.
type PickupFilter struct {
	WorkerID     *types.ID
	CustomerID   *types.ID
	Statuses     []pickup.Status
	CreatedFrom  *time.Time
	AcceptedFrom *time.Time
	AcceptedTo   *time.Time
	Limit        int
	NewestFirst  bool
}

// Tx is the unit of work used by assignment. A pickup read through
// PickupForUpdate stays locked until the transaction ends.
type Tx interface {
	// InsertPickup stores a new pickup; it fails with ErrBadRequest when the
	// ID is empty or already taken.
	InsertPickup(ctx context.Context, p *pickup.Pickup) error
	PickupForUpdate(ctx context.Context, id types.ID) (*pickup.Pickup, error)
	// CandidateWorkers returns available workers that have reported a location.
	CandidateWorkers(ctx context.Context) ([]worker.Worker, error)
	// ReserveWorkerSlot increments the worker's active count only while it
	// is below limit. It reports false at the limit and
	// worker.ErrUnavailable when the worker is off duty.
	ReserveWorkerSlot(ctx context.Context, id types.ID, limit int) (bool, error)
	ReleaseWorkerSlot(ctx context.Context, id types.ID) error
	SavePickup(ctx context.Context, p *pickup.Pickup) error
	AppendEvent(ctx context.Context, e *pickup.Event) error
	// SetPickupWindow updates the time window of an ACCEPTED pickup and
	// reports false for any other status.
	SetPickupWindow(ctx context.Context, id types.ID, start, end time.Time) (bool, error)
}

type Store interface {
	// InTx runs fn in a transaction, committing when fn returns nil.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	CreatePickup(ctx context.Context, p *pickup.Pickup) error
	GetPickup(ctx context.Context, id types.ID) (*pickup.Pickup, error)
	ListPickups(ctx context.Context, f PickupFilter) ([]pickup.Pickup, error)
	ListEvents(ctx context.Context, pickupID types.ID) ([]pickup.Event, error)

	UpsertWorker(ctx context.Context, w *worker.Worker) error
	GetWorker(ctx context.Context, id types.ID) (*worker.Worker, error)
	ListWorkers(ctx context.Context) ([]worker.Worker, error)
	UpdateWorkerLocation(ctx context.Context, id types.ID, p types.Point, at time.Time) (*worker.Worker, error)
	SetWorkerAvailability(ctx context.Context, id types.ID, available bool) (*worker.Worker, error)
}

func (f PickupFilter) matches(p *pickup.Pickup) bool {
	if f.WorkerID != nil && !p.AssignedTo(*f.WorkerID) {
		return false
	}
	if f.CustomerID != nil && p.CustomerID != *f.CustomerID {
		return false
	}
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if p.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.CreatedFrom != nil && p.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.AcceptedFrom != nil || f.AcceptedTo != nil {
		if p.AcceptedAt == nil {
			return false
		}
		if f.AcceptedFrom != nil && p.AcceptedAt.Before(*f.AcceptedFrom) {
			return false
		}
		if f.AcceptedTo != nil && !p.AcceptedAt.Before(*f.AcceptedTo) {
			return false
		}
	}
	return true
}
