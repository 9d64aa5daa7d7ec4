package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatch/internal/modules/pickup"
	"dispatch/internal/store"
	"dispatch/internal/types"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newPickup(id string, status pickup.Status, workerID string, created time.Time, acceptDelay time.Duration) pickup.Pickup {
	p := pickup.Pickup{ID: types.ID(id), BinID: "bin", CustomerID: "c", Status: status, CreatedAt: created}
	if workerID != "" {
		wid := types.ID(workerID)
		p.WorkerID = &wid
		at := created.Add(acceptDelay)
		p.AcceptedAt = &at
	}
	return p
}

// ---------------------------------------------------------------------------
// Compute
// ---------------------------------------------------------------------------

func TestCompute_EmptyWindowIsZeroGuarded(t *testing.T) {
	r := Compute(nil, testNow, 0)
	assert.Equal(t, 7, r.PeriodDays)
	assert.Equal(t, 0, r.TotalPickups)
	assert.Equal(t, 0.0, r.AssignmentRate)
	assert.Equal(t, 0.0, r.CompletionRate)
	assert.Nil(t, r.AverageAssignmentDelayMinutes)
	assert.Equal(t, 15.0, r.TargetAssignmentDelayMinutes)
	assert.Equal(t, 0.0, r.AveragePickupsPerWorker)
	assert.Equal(t, []string{recommendRecruit, recommendTraining}, r.Recommendations)
}

func TestCompute_RatesAndDelay(t *testing.T) {
	hourAgo := testNow.Add(-time.Hour)
	pickups := []pickup.Pickup{
		newPickup("1", pickup.StatusCompleted, "w1", hourAgo, 10*time.Minute),
		newPickup("2", pickup.StatusCompleted, "w1", hourAgo, 20*time.Minute),
		newPickup("3", pickup.StatusAccepted, "w2", hourAgo, 30*time.Minute),
		newPickup("4", pickup.StatusOpen, "", hourAgo, 0),
		newPickup("old", pickup.StatusCompleted, "w9", testNow.AddDate(0, 0, -8), time.Minute),
	}

	r := Compute(pickups, testNow, DefaultWindow)
	assert.Equal(t, 4, r.TotalPickups)
	assert.Equal(t, 3, r.AssignedPickups)
	assert.Equal(t, 2, r.CompletedPickups)
	assert.Equal(t, 75.0, r.AssignmentRate)
	assert.Equal(t, 66.67, r.CompletionRate)
	require.NotNil(t, r.AverageAssignmentDelayMinutes)
	assert.Equal(t, 20.0, *r.AverageAssignmentDelayMinutes)
	assert.Equal(t, 2, r.ActiveWorkers)
	assert.Equal(t, 1.5, r.AveragePickupsPerWorker)
	assert.Equal(t, []string{recommendRecruit, recommendTraining}, r.Recommendations)
}

func TestRecommendations(t *testing.T) {
	cases := []struct {
		name string
		r    Report
		want []string
	}{
		{"optimal", Report{AssignmentRate: 95, CompletionRate: 95, ActiveWorkers: 3, AveragePickupsPerWorker: 4}, []string{recommendOptimal}},
		{"boundaries pass", Report{AssignmentRate: 80, CompletionRate: 90, ActiveWorkers: 1, AveragePickupsPerWorker: 10}, []string{recommendOptimal}},
		{"overloaded", Report{AssignmentRate: 95, CompletionRate: 95, ActiveWorkers: 2, AveragePickupsPerWorker: 12}, []string{recommendOverload}},
		{"no active workers", Report{AssignmentRate: 95, CompletionRate: 95, AveragePickupsPerWorker: 12}, []string{recommendOptimal}},
		{"everything", Report{AssignmentRate: 10, CompletionRate: 10, ActiveWorkers: 1, AveragePickupsPerWorker: 11}, []string{recommendRecruit, recommendTraining, recommendOverload}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Recommendations(tc.r))
		})
	}
}

// ---------------------------------------------------------------------------
// Service + Redis cache
// ---------------------------------------------------------------------------

func newRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisCache(rdb, time.Minute), mr
}

func TestService_GetCachesReport(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	p := newPickup("1", pickup.StatusOpen, "", testNow.Add(-time.Hour), 0)
	require.NoError(t, st.CreatePickup(ctx, &p))

	cache, mr := newRedisCache(t)
	svc := NewService(st, cache, DefaultWindow)
	svc.SetClock(func() time.Time { return testNow })

	first, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.TotalPickups)
	assert.True(t, mr.Exists(reportKey))
	assert.Equal(t, time.Minute, mr.TTL(reportKey))

	// New data is not visible until the cached snapshot is refreshed.
	p2 := newPickup("2", pickup.StatusOpen, "", testNow.Add(-time.Minute), 0)
	require.NoError(t, st.CreatePickup(ctx, &p2))

	cached, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cached.TotalPickups)
	assert.True(t, cached.GeneratedAt.Equal(first.GeneratedAt))

	fresh, err := svc.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.TotalPickups)

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists(reportKey))
}

func TestService_CacheFailureFallsBackToCompute(t *testing.T) {
	ctx := context.Background()
	cache, mr := newRedisCache(t)
	mr.Close()

	svc := NewService(store.NewMemoryStore(), cache, DefaultWindow)
	r, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, r.TotalPickups)
}

func TestService_WithoutCache(t *testing.T) {
	svc := NewService(store.NewMemoryStore(), nil, 0)
	r, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, r.PeriodDays)
}

func TestRunSnapshotTicker_Refreshes(t *testing.T) {
	cache, mr := newRedisCache(t)
	svc := NewService(store.NewMemoryStore(), cache, DefaultWindow)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.RunSnapshotTicker(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return mr.Exists(reportKey) }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ticker did not stop")
	}
}
