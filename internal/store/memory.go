// README: In-memory Store with staged transactional commits.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"dispatch/internal/modules/pickup"
	"dispatch/internal/modules/worker"
	"dispatch/internal/types"
)

// MemoryStore keeps everything in process. Transactions are serialised by
// a single lock and their writes are staged until commit.
type MemoryStore struct {
	mu      sync.Mutex
	pickups map[types.ID]pickup.Pickup
	workers map[types.ID]worker.Worker
	events  []pickup.Event
	nextEvt int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pickups: make(map[types.ID]pickup.Pickup),
		workers: make(map[types.ID]worker.Worker),
	}
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		s:       s,
		pickups: make(map[types.ID]pickup.Pickup),
		workers: make(map[types.ID]worker.Worker),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for id, p := range tx.pickups {
		s.pickups[id] = p
	}
	for id, w := range tx.workers {
		s.workers[id] = w
	}
	for _, e := range tx.events {
		s.appendEventLocked(e)
	}
	return nil
}

func (s *MemoryStore) CreatePickup(_ context.Context, p *pickup.Pickup) error {
	if p.ID == "" {
		return pickup.ErrBadRequest
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pickups[p.ID]; ok {
		return pickup.ErrBadRequest
	}
	s.pickups[p.ID] = p.Clone()
	return nil
}

func (s *MemoryStore) GetPickup(_ context.Context, id types.ID) (*pickup.Pickup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pickups[id]
	if !ok {
		return nil, pickup.ErrNotFound
	}
	c := p.Clone()
	return &c, nil
}

func (s *MemoryStore) ListPickups(_ context.Context, f PickupFilter) ([]pickup.Pickup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]pickup.Pickup, 0)
	for _, p := range s.pickups {
		if f.matches(&p) {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if f.NewestFirst {
			a, b = b, a
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) ListEvents(_ context.Context, pickupID types.ID) ([]pickup.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []pickup.Event
	for _, e := range s.events {
		if e.PickupID == pickupID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) UpsertWorker(_ context.Context, w *worker.Worker) error {
	if w.ID == "" {
		return worker.ErrBadRequest
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := w.Clone()
	if prev, ok := s.workers[w.ID]; ok {
		// The active count is owned by assignment and never overwritten here.
		c.ActivePickups = prev.ActivePickups
	}
	s.workers[w.ID] = c
	return nil
}

func (s *MemoryStore) GetWorker(_ context.Context, id types.ID) (*worker.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[id]
	if !ok {
		return nil, worker.ErrNotFound
	}
	c := w.Clone()
	return &c, nil
}

func (s *MemoryStore) ListWorkers(_ context.Context) ([]worker.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedWorkersLocked(func(worker.Worker) bool { return true }), nil
}

func (s *MemoryStore) UpdateWorkerLocation(_ context.Context, id types.ID, p types.Point, at time.Time) (*worker.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[id]
	if !ok {
		return nil, worker.ErrNotFound
	}
	w.Location = &types.Point{Lat: p.Lat, Lng: p.Lng}
	w.LocationUpdatedAt = &at
	s.workers[id] = w
	c := w.Clone()
	return &c, nil
}

func (s *MemoryStore) SetWorkerAvailability(_ context.Context, id types.ID, available bool) (*worker.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[id]
	if !ok {
		return nil, worker.ErrNotFound
	}
	w.Available = available
	s.workers[id] = w
	c := w.Clone()
	return &c, nil
}

func (s *MemoryStore) sortedWorkersLocked(keep func(worker.Worker) bool) []worker.Worker {
	out := make([]worker.Worker, 0, len(s.workers))
	for _, w := range s.workers {
		if keep(w) {
			out = append(out, w.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryStore) appendEventLocked(e pickup.Event) {
	s.nextEvt++
	e.ID = s.nextEvt
	s.events = append(s.events, e)
}

type memTx struct {
	s       *MemoryStore
	pickups map[types.ID]pickup.Pickup
	workers map[types.ID]worker.Worker
	events  []pickup.Event
}

func (tx *memTx) pickup(id types.ID) (pickup.Pickup, bool) {
	if p, ok := tx.pickups[id]; ok {
		return p, true
	}
	p, ok := tx.s.pickups[id]
	return p, ok
}

func (tx *memTx) worker(id types.ID) (worker.Worker, bool) {
	if w, ok := tx.workers[id]; ok {
		return w, true
	}
	w, ok := tx.s.workers[id]
	return w, ok
}

func (tx *memTx) InsertPickup(_ context.Context, p *pickup.Pickup) error {
	if p.ID == "" {
		return pickup.ErrBadRequest
	}
	if _, ok := tx.pickup(p.ID); ok {
		return pickup.ErrBadRequest
	}
	tx.pickups[p.ID] = p.Clone()
	return nil
}

func (tx *memTx) PickupForUpdate(_ context.Context, id types.ID) (*pickup.Pickup, error) {
	p, ok := tx.pickup(id)
	if !ok {
		return nil, pickup.ErrNotFound
	}
	c := p.Clone()
	return &c, nil
}

func (tx *memTx) CandidateWorkers(_ context.Context) ([]worker.Worker, error) {
	out := make([]worker.Worker, 0, len(tx.s.workers))
	for id := range tx.s.workers {
		w, _ := tx.worker(id)
		if w.Available && w.Location != nil {
			out = append(out, w.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tx *memTx) ReserveWorkerSlot(_ context.Context, id types.ID, limit int) (bool, error) {
	w, ok := tx.worker(id)
	if !ok {
		return false, worker.ErrNotFound
	}
	if !w.Available {
		return false, worker.ErrUnavailable
	}
	if w.ActivePickups >= limit {
		return false, nil
	}
	w.ActivePickups++
	tx.workers[id] = w
	return true, nil
}

func (tx *memTx) ReleaseWorkerSlot(_ context.Context, id types.ID) error {
	w, ok := tx.worker(id)
	if !ok {
		return worker.ErrNotFound
	}
	if w.ActivePickups > 0 {
		w.ActivePickups--
	}
	tx.workers[id] = w
	return nil
}

func (tx *memTx) SavePickup(_ context.Context, p *pickup.Pickup) error {
	if _, ok := tx.pickup(p.ID); !ok {
		return pickup.ErrNotFound
	}
	c := p.Clone()
	c.Version++
	p.Version = c.Version
	tx.pickups[p.ID] = c
	return nil
}

func (tx *memTx) AppendEvent(_ context.Context, e *pickup.Event) error {
	tx.events = append(tx.events, *e)
	return nil
}

func (tx *memTx) SetPickupWindow(_ context.Context, id types.ID, start, end time.Time) (bool, error) {
	p, ok := tx.pickup(id)
	if !ok {
		return false, pickup.ErrNotFound
	}
	if p.Status != pickup.StatusAccepted {
		return false, nil
	}
	p = p.Clone()
	p.WindowStart = &start
	p.WindowEnd = &end
	tx.pickups[id] = p
	return true, nil
}
