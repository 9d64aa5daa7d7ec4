// README: Contract tests shared by the memory and Postgres stores.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatch/internal/modules/pickup"
	"dispatch/internal/modules/worker"
	"dispatch/internal/types"
)

var errAbort = errors.New("abort")

func runContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("pickup round trip", func(t *testing.T) { testPickupRoundTrip(t, newStore(t)) })
	t.Run("list filters", func(t *testing.T) { testListFilters(t, newStore(t)) })
	t.Run("worker upsert keeps active count", func(t *testing.T) { testWorkerUpsert(t, newStore(t)) })
	t.Run("rollback discards writes", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("reserve respects cap", func(t *testing.T) { testReserveRespectsCap(t, newStore(t)) })
	t.Run("reserve reports off-duty worker", func(t *testing.T) { testReserveUnavailable(t, newStore(t)) })
	t.Run("insert pickup in tx", func(t *testing.T) { testInsertPickupInTx(t, newStore(t)) })
	t.Run("window only for accepted", func(t *testing.T) { testSetPickupWindow(t, newStore(t)) })
	t.Run("concurrent reservations", func(t *testing.T) { testConcurrentReservations(t, newStore(t)) })
}

func testPickupRoundTrip(t *testing.T, s Store) {
	ctx := context.Background()
	weight := 12.5
	p := newPickup("p-round", time.Now().UTC().Truncate(time.Microsecond))
	p.EstimatedWeightKg = &weight
	require.NoError(t, s.CreatePickup(ctx, p))

	got, err := s.GetPickup(ctx, "p-round")
	require.NoError(t, err)
	assert.Equal(t, pickup.StatusOpen, got.Status)
	require.NotNil(t, got.Location)
	assert.InDelta(t, 6.53, got.Location.Lat, 1e-9)
	assert.Equal(t, int64(2500), got.ExpectedFee.Amount)
	require.NotNil(t, got.EstimatedWeightKg)
	assert.InDelta(t, 12.5, *got.EstimatedWeightKg, 1e-9)
	assert.Nil(t, got.WorkerID)

	_, err = s.GetPickup(ctx, "missing")
	assert.ErrorIs(t, err, pickup.ErrNotFound)
}

func testListFilters(t *testing.T, s Store) {
	ctx := context.Background()
	seedWorker(t, s, "w1", 0)
	now := time.Now().UTC().Truncate(time.Microsecond)

	open := newPickup("p-open", now.Add(-2*time.Hour))
	require.NoError(t, s.CreatePickup(ctx, open))
	accepted := newPickup("p-acc", now.Add(-time.Hour))
	require.NoError(t, s.CreatePickup(ctx, accepted))

	require.NoError(t, s.InTx(ctx, func(tx Tx) error {
		p, err := tx.PickupForUpdate(ctx, "p-acc")
		if err != nil {
			return err
		}
		w := types.ID("w1")
		p.WorkerID = &w
		p.Status = pickup.StatusAccepted
		p.AcceptedAt = &now
		return tx.SavePickup(ctx, p)
	}))

	got, err := s.ListPickups(ctx, PickupFilter{Statuses: []pickup.Status{pickup.StatusOpen}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, types.ID("p-open"), got[0].ID)

	wid := types.ID("w1")
	from := now.Add(-time.Minute)
	to := now.Add(time.Minute)
	got, err = s.ListPickups(ctx, PickupFilter{WorkerID: &wid, AcceptedFrom: &from, AcceptedTo: &to})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, types.ID("p-acc"), got[0].ID)
	assert.Equal(t, 1, got[0].Version)

	got, err = s.ListPickups(ctx, PickupFilter{AcceptedFrom: &to})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.ListPickups(ctx, PickupFilter{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, types.ID("p-open"), got[0].ID, "ordered by creation time")

	other := newPickup("p-other", now)
	other.CustomerID = "c2"
	require.NoError(t, s.CreatePickup(ctx, other))
	cust := types.ID("c1")
	got, err = s.ListPickups(ctx, PickupFilter{CustomerID: &cust, Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, types.ID("p-open"), got[0].ID)

	got, err = s.ListPickups(ctx, PickupFilter{CustomerID: &cust, Limit: 1, NewestFirst: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, types.ID("p-acc"), got[0].ID)
}

func testWorkerUpsert(t *testing.T, s Store) {
	ctx := context.Background()
	seedWorker(t, s, "w1", 2)

	w, err := s.GetWorker(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, 2, w.ActivePickups)

	w.Rating = 3.9
	w.ActivePickups = 0
	require.NoError(t, s.UpsertWorker(ctx, w))

	w, err = s.GetWorker(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, 3.9, w.Rating)
	assert.Equal(t, 2, w.ActivePickups)

	at := time.Now().UTC().Truncate(time.Microsecond)
	w, err = s.UpdateWorkerLocation(ctx, "w1", types.Point{Lat: 6.6, Lng: 3.4}, at)
	require.NoError(t, err)
	assert.InDelta(t, 6.6, w.Location.Lat, 1e-9)

	w, err = s.SetWorkerAvailability(ctx, "w1", false)
	require.NoError(t, err)
	assert.False(t, w.Available)

	_, err = s.SetWorkerAvailability(ctx, "nobody", true)
	assert.ErrorIs(t, err, worker.ErrNotFound)
}

func testRollback(t *testing.T, s Store) {
	ctx := context.Background()
	seedWorker(t, s, "w1", 0)
	require.NoError(t, s.CreatePickup(ctx, newPickup("p1", time.Now().UTC())))

	err := s.InTx(ctx, func(tx Tx) error {
		ok, err := tx.ReserveWorkerSlot(ctx, "w1", worker.DefaultCap)
		require.NoError(t, err)
		require.True(t, ok)
		p, err := tx.PickupForUpdate(ctx, "p1")
		require.NoError(t, err)
		p.Status = pickup.StatusAccepted
		require.NoError(t, tx.SavePickup(ctx, p))
		return errAbort
	})
	assert.ErrorIs(t, err, errAbort)

	p, err := s.GetPickup(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, pickup.StatusOpen, p.Status)
	w, err := s.GetWorker(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, 0, w.ActivePickups)
}

func testReserveRespectsCap(t *testing.T, s Store) {
	ctx := context.Background()
	seedWorker(t, s, "w1", worker.DefaultCap-1)

	require.NoError(t, s.InTx(ctx, func(tx Tx) error {
		ok, err := tx.ReserveWorkerSlot(ctx, "w1", worker.DefaultCap)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = tx.ReserveWorkerSlot(ctx, "w1", worker.DefaultCap)
		require.NoError(t, err)
		assert.False(t, ok, "cap reached")

		require.NoError(t, tx.ReleaseWorkerSlot(ctx, "w1"))
		return nil
	}))

	w, err := s.GetWorker(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, worker.DefaultCap-1, w.ActivePickups)
}

func testReserveUnavailable(t *testing.T, s Store) {
	ctx := context.Background()
	seedWorker(t, s, "w1", 0)
	_, err := s.SetWorkerAvailability(ctx, "w1", false)
	require.NoError(t, err)

	err = s.InTx(ctx, func(tx Tx) error {
		ok, err := tx.ReserveWorkerSlot(ctx, "w1", worker.DefaultCap)
		assert.False(t, ok)
		return err
	})
	assert.ErrorIs(t, err, worker.ErrUnavailable)

	err = s.InTx(ctx, func(tx Tx) error {
		_, err := tx.ReserveWorkerSlot(ctx, "nobody", worker.DefaultCap)
		return err
	})
	assert.ErrorIs(t, err, worker.ErrNotFound)
}

func testInsertPickupInTx(t *testing.T, s Store) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	created := func(id string) *pickup.Event {
		return &pickup.Event{PickupID: types.ID(id), FromStatus: pickup.StatusNone, ToStatus: pickup.StatusOpen, ActorType: pickup.ActorCustomer, CreatedAt: now}
	}

	err := s.InTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.InsertPickup(ctx, newPickup("p-aborted", now)))
		require.NoError(t, tx.AppendEvent(ctx, created("p-aborted")))
		return errAbort
	})
	assert.ErrorIs(t, err, errAbort)
	_, err = s.GetPickup(ctx, "p-aborted")
	assert.ErrorIs(t, err, pickup.ErrNotFound)
	events, err := s.ListEvents(ctx, "p-aborted")
	require.NoError(t, err)
	assert.Empty(t, events)

	require.NoError(t, s.InTx(ctx, func(tx Tx) error {
		if err := tx.InsertPickup(ctx, newPickup("p-new", now)); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, created("p-new"))
	}))
	got, err := s.GetPickup(ctx, "p-new")
	require.NoError(t, err)
	assert.Equal(t, pickup.StatusOpen, got.Status)
	events, err = s.ListEvents(ctx, "p-new")
	require.NoError(t, err)
	assert.Len(t, events, 1)

	err = s.InTx(ctx, func(tx Tx) error {
		return tx.InsertPickup(ctx, newPickup("p-new", now))
	})
	assert.ErrorIs(t, err, pickup.ErrBadRequest)
}

func testSetPickupWindow(t *testing.T, s Store) {
	ctx := context.Background()
	require.NoError(t, s.CreatePickup(ctx, newPickup("p-open", time.Now().UTC())))

	start := time.Now().UTC().Truncate(time.Microsecond)
	end := start.Add(15 * time.Minute)
	require.NoError(t, s.InTx(ctx, func(tx Tx) error {
		ok, err := tx.SetPickupWindow(ctx, "p-open", start, end)
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))

	p, err := s.GetPickup(ctx, "p-open")
	require.NoError(t, err)
	assert.Nil(t, p.WindowStart)
}

func testConcurrentReservations(t *testing.T, s Store) {
	ctx := context.Background()
	seedWorker(t, s, "w1", 0)

	const attempts = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_ = s.InTx(ctx, func(tx Tx) error {
				ok, err := tx.ReserveWorkerSlot(ctx, "w1", worker.DefaultCap)
				if err != nil || !ok {
					return fmt.Errorf("not reserved")
				}
				mu.Lock()
				success++
				mu.Unlock()
				return nil
			})
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, worker.DefaultCap, success)
	w, err := s.GetWorker(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, worker.DefaultCap, w.ActivePickups)
}

func newPickup(id string, createdAt time.Time) *pickup.Pickup {
	return &pickup.Pickup{
		ID:          types.ID(id),
		BinID:       types.ID("bin-" + id),
		CustomerID:  "c1",
		Status:      pickup.StatusOpen,
		Location:    types.PointPtr(6.53, 3.38),
		ExpectedFee: types.FromMajor(25, ""),
		WasteType:   "general",
		CreatedAt:   createdAt,
	}
}

func seedWorker(t *testing.T, s Store, id string, active int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.UpsertWorker(ctx, &worker.Worker{
		ID:              types.ID(id),
		Name:            id,
		Available:       true,
		Location:        types.PointPtr(6.5244, 3.3792),
		ServiceRadiusKm: 10,
		Rating:          4.5,
	}))
	if active == 0 {
		return
	}
	require.NoError(t, s.InTx(ctx, func(tx Tx) error {
		for i := 0; i < active; i++ {
			if _, err := tx.ReserveWorkerSlot(ctx, types.ID(id), active); err != nil {
				return err
			}
		}
		return nil
	}))
}
