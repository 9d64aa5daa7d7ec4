// README: Assignment engine; transactional auto-assignment, batch scheduling and status transitions.
package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dispatch/internal/geo"
	"dispatch/internal/logger"
	"dispatch/internal/modules/broadcast"
	"dispatch/internal/modules/matching"
	"dispatch/internal/modules/pickup"
	"dispatch/internal/modules/routing"
	"dispatch/internal/modules/worker"
	"dispatch/internal/store"
	"dispatch/internal/types"
)

// Publisher receives events after the owning transaction has committed.
type Publisher interface {
	Publish(events ...broadcast.Event)
}

type Service struct {
	store  store.Store
	scorer *matching.Scorer
	events Publisher
	now    func() time.Time
}

func NewService(st store.Store, scorer *matching.Scorer, events Publisher) *Service {
	return &Service{store: st, scorer: scorer, events: events, now: time.Now}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*pickup.Pickup, error) {
	if cmd.BinID == "" || cmd.CustomerID == "" {
		return nil, pickup.ErrBadRequest
	}
	if cmd.Location != nil {
		if err := cmd.Location.Validate(); err != nil {
			return nil, err
		}
	}
	if cmd.ExpectedFee.Amount < 0 {
		return nil, pickup.ErrBadRequest
	}
	if cmd.ExpectedFee.Currency == "" {
		cmd.ExpectedFee.Currency = types.DefaultCurrency
	}

	now := s.now()
	p := &pickup.Pickup{
		ID:                types.NewID(),
		BinID:             cmd.BinID,
		CustomerID:        cmd.CustomerID,
		Status:            pickup.StatusOpen,
		Location:          cmd.Location,
		Address:           cmd.Address,
		ExpectedFee:       cmd.ExpectedFee,
		WasteType:         cmd.WasteType,
		EstimatedWeightKg: cmd.EstimatedWeightKg,
		Notes:             cmd.Notes,
		CreatedAt:         now,
	}
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertPickup(ctx, p); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, &pickup.Event{
			PickupID:   p.ID,
			FromStatus: pickup.StatusNone,
			ToStatus:   pickup.StatusOpen,
			ActorType:  pickup.ActorCustomer,
			ActorID:    &cmd.CustomerID,
			CreatedAt:  now,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create pickup: %w", err)
	}

	s.publish(broadcast.PickupCreated(p, now))
	logger.Info("pickup created", logger.String("pickup_id", string(p.ID)), logger.String("customer_id", string(p.CustomerID)))
	return p, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*pickup.Pickup, error) {
	return s.store.GetPickup(ctx, id)
}

// RecentForCustomer returns the customer's newest pickups, at most
// CustomerHistoryLimit of them.
func (s *Service) RecentForCustomer(ctx context.Context, customerID types.ID) ([]pickup.Pickup, error) {
	if customerID == "" {
		return nil, pickup.ErrBadRequest
	}
	return s.store.ListPickups(ctx, store.PickupFilter{
		CustomerID:  &customerID,
		Limit:       CustomerHistoryLimit,
		NewestFirst: true,
	})
}

// AutoAssign picks the best worker for an OPEN pickup. Locking the pickup,
// checking its status, reserving the worker slot and saving the pickup
// happen in one transaction, so concurrent calls on the same pickup
// produce exactly one success.
func (s *Service) AutoAssign(ctx context.Context, id types.ID) (Result, error) {
	res := Result{PickupID: id}
	now := s.now()

	var (
		assigned *pickup.Pickup
		chosen   matching.Candidate
	)
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		p, err := tx.PickupForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if p.Status != pickup.StatusOpen {
			res.CurrentStatus = p.Status
			return &pickup.TransitionError{From: p.Status, To: pickup.StatusAccepted}
		}
		if p.Location == nil {
			return ErrLocationUnavailable
		}
		if err := p.Location.Validate(); err != nil {
			return err
		}

		workers, err := tx.CandidateWorkers(ctx)
		if err != nil {
			return err
		}
		ranked, err := s.scorer.Rank(*p.Location, workers)
		if err != nil {
			return err
		}

		// A failed reservation means the worker filled up or went off duty
		// since the read; fall through to the next best.
		reserved := false
		excluded := map[matching.Factor]int{}
		for _, c := range ranked {
			ok, err := tx.ReserveWorkerSlot(ctx, c.Worker.ID, s.scorer.Cap())
			if errors.Is(err, worker.ErrUnavailable) {
				excluded[matching.FactorAvailability]++
				continue
			}
			if err != nil {
				return err
			}
			if ok {
				chosen, reserved = c, true
				break
			}
			excluded[matching.FactorWorkload]++
		}
		if !reserved {
			return &matching.NoCandidateError{Considered: len(workers), Excluded: excluded}
		}

		eta := EstimateCompletion(now, chosen.DistanceKm)
		workerID := chosen.Worker.ID
		p.WorkerID = &workerID
		p.Status = pickup.StatusAccepted
		p.AcceptedAt = &now
		p.EstimatedCompletion = &eta
		if err := tx.SavePickup(ctx, p); err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, &pickup.Event{
			PickupID:   p.ID,
			FromStatus: pickup.StatusOpen,
			ToStatus:   pickup.StatusAccepted,
			ActorType:  pickup.ActorSystem,
			ActorID:    &workerID,
			CreatedAt:  now,
		}); err != nil {
			return err
		}
		chosen.Worker.ActivePickups++
		assigned = p
		return nil
	})
	if err != nil {
		s.describeFailure(&res, err)
		logger.Info("auto-assign failed",
			logger.String("pickup_id", string(id)),
			logger.String("reason", string(res.Reason)),
			logger.Err(err),
		)
		return res, err
	}

	score := chosen.Score
	res.Success = true
	res.Score = &score
	res.EstimatedCompletion = assigned.EstimatedCompletion
	res.Worker = &AssignedWorker{
		ID:                      chosen.Worker.ID,
		Name:                    chosen.Worker.Name,
		Rating:                  chosen.Worker.Rating,
		DistanceKm:              chosen.DistanceKm,
		EstimatedArrivalMinutes: geo.TravelMinutes(chosen.DistanceKm, routing.AverageSpeedKmh),
	}

	s.publish(broadcast.PickupAssigned(assigned, &chosen.Worker, chosen.DistanceKm, now))
	logger.Info("pickup assigned",
		logger.String("pickup_id", string(id)),
		logger.String("worker_id", string(chosen.Worker.ID)),
		logger.Float64("distance_km", chosen.DistanceKm),
		logger.Float64("score", score.Total),
	)
	return res, nil
}

func (s *Service) describeFailure(res *Result, err error) {
	res.Message = err.Error()
	var nc *matching.NoCandidateError
	switch {
	case errors.Is(err, pickup.ErrNotFound):
		res.Reason = ReasonNotFound
	case errors.Is(err, pickup.ErrInvalidState):
		res.Reason = ReasonNotOpen
		res.Message = "pickup request is not available for assignment"
	case errors.As(err, &nc):
		res.Reason = ReasonNoCandidate
		res.Factors = nc.Factors()
		res.Message = matching.ErrNoCandidate.Error()
	case errors.Is(err, ErrLocationUnavailable), errors.Is(err, types.ErrInvalidCoordinate):
		res.Reason = ReasonInvalidLocation
	default:
		res.Reason = ReasonInternal
	}
}

// EstimateCompletion is now + travel at the average speed + ServiceTime.
func EstimateCompletion(now time.Time, distanceKm float64) time.Time {
	travel := time.Duration(geo.TravelMinutes(distanceKm, routing.AverageSpeedKmh) * float64(time.Minute))
	return now.Add(travel + ServiceTime)
}

// ScheduleBatch assigns each pickup independently in input order. One
// pickup's failure does not affect the others.
func (s *Service) ScheduleBatch(ctx context.Context, ids []types.ID) BatchResult {
	out := BatchResult{
		Total:       len(ids),
		Assignments: []BatchAssignment{},
		Errors:      []BatchError{},
	}
	for _, id := range ids {
		res, err := s.AutoAssign(ctx, id)
		if err != nil {
			out.Unassigned++
			out.Errors = append(out.Errors, BatchError{PickupID: id, Reason: res.Reason, Error: err.Error()})
			continue
		}
		out.Assigned++
		a := BatchAssignment{PickupID: id, WorkerID: res.Worker.ID, WorkerName: res.Worker.Name}
		if res.EstimatedCompletion != nil {
			a.EstimatedCompletion = *res.EstimatedCompletion
		}
		out.Assignments = append(out.Assignments, a)
	}
	logger.Info("batch scheduled",
		logger.Int("total", out.Total),
		logger.Int("assigned", out.Assigned),
		logger.Int("unassigned", out.Unassigned),
	)
	return out
}

// UpdateStatus applies a state-machine transition. Moving a pickup out of
// ACCEPTED/IN_PROGRESS frees the worker slot in the same transaction; a
// manual accept reserves one.
func (s *Service) UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (*pickup.Pickup, error) {
	if cmd.PickupID == "" || !cmd.Status.Valid() {
		return nil, pickup.ErrBadRequest
	}
	if cmd.ActorType == "" {
		cmd.ActorType = pickup.ActorSystem
	}
	now := s.now()

	var (
		updated *pickup.Pickup
		old     pickup.Status
	)
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		p, err := tx.PickupForUpdate(ctx, cmd.PickupID)
		if err != nil {
			return err
		}
		old = p.Status
		if !pickup.CanTransition(p.Status, cmd.Status) {
			return &pickup.TransitionError{From: p.Status, To: cmd.Status}
		}

		if cmd.Status == pickup.StatusAccepted {
			if cmd.ActorID == nil {
				return pickup.ErrBadRequest
			}
			ok, err := tx.ReserveWorkerSlot(ctx, *cmd.ActorID, s.scorer.Cap())
			if err != nil {
				return err
			}
			if !ok {
				return ErrWorkerAtCapacity
			}
			workerID := *cmd.ActorID
			p.WorkerID = &workerID
			p.AcceptedAt = &now
		}
		if old.HoldsWorkerSlot() && !cmd.Status.HoldsWorkerSlot() && p.WorkerID != nil {
			if err := tx.ReleaseWorkerSlot(ctx, *p.WorkerID); err != nil {
				return err
			}
		}

		p.Status = cmd.Status
		stampStatusTime(p, now)
		if cmd.Notes != "" {
			p.Notes = cmd.Notes
		}
		if err := tx.SavePickup(ctx, p); err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, &pickup.Event{
			PickupID:   p.ID,
			FromStatus: old,
			ToStatus:   p.Status,
			ActorType:  cmd.ActorType,
			ActorID:    cmd.ActorID,
			CreatedAt:  now,
		}); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(broadcast.StatusChanged(updated, old, now))
	logger.Info("pickup status updated",
		logger.String("pickup_id", string(updated.ID)),
		logger.String("from", string(old)),
		logger.String("to", string(updated.Status)),
	)
	return updated, nil
}

func stampStatusTime(p *pickup.Pickup, now time.Time) {
	switch p.Status {
	case pickup.StatusInProgress:
		p.PickedAt = &now
	case pickup.StatusDelivered:
		p.DeliveredAt = &now
	case pickup.StatusCompleted:
		p.CompletedAt = &now
	case pickup.StatusCancelled:
		p.CancelledAt = &now
	}
}

// RunSweeper retries assignment of every OPEN pickup on each tick. A
// non-positive interval disables it.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Service) sweepOnce(ctx context.Context) BatchResult {
	open, err := s.store.ListPickups(ctx, store.PickupFilter{Statuses: []pickup.Status{pickup.StatusOpen}})
	if err != nil {
		logger.Warn("sweeper: list open pickups failed", logger.Err(err))
		return BatchResult{}
	}
	ids := make([]types.ID, 0, len(open))
	for _, p := range open {
		if p.Location != nil {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) == 0 {
		return BatchResult{}
	}
	return s.ScheduleBatch(ctx, ids)
}

func (s *Service) publish(events []broadcast.Event) {
	if s.events == nil || len(events) == 0 {
		return
	}
	s.events.Publish(events...)
}
