// README: Serves the scheduling report, cached in Redis and refreshed by a ticker.
package analytics

import (
	"context"
	"time"

	"dispatch/internal/logger"
	"dispatch/internal/store"
)

type Service struct {
	store  store.Store
	cache  Cache
	window time.Duration
	now    func() time.Time
}

// NewService builds the analytics service. cache may be nil.
func NewService(st store.Store, cache Cache, window time.Duration) *Service {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Service{store: st, cache: cache, window: window, now: time.Now}
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Get returns the cached report when present, otherwise computes and
// caches a fresh one. Cache failures only cost a recompute.
func (s *Service) Get(ctx context.Context) (*Report, error) {
	if s.cache != nil {
		r, err := s.cache.Load(ctx)
		if err != nil {
			logger.Warn("analytics cache read failed", logger.Err(err))
		}
		if r != nil {
			return r, nil
		}
	}
	return s.Refresh(ctx)
}

// Refresh recomputes the report and overwrites the cache.
func (s *Service) Refresh(ctx context.Context) (*Report, error) {
	now := s.now()
	from := now.Add(-s.window)
	pickups, err := s.store.ListPickups(ctx, store.PickupFilter{CreatedFrom: &from})
	if err != nil {
		return nil, err
	}
	r := Compute(pickups, now, s.window)
	if s.cache != nil {
		if err := s.cache.Save(ctx, &r); err != nil {
			logger.Warn("analytics cache write failed", logger.Err(err))
		}
	}
	return &r, nil
}

// RunSnapshotTicker refreshes the cached report every interval until ctx is
// done. A non-positive interval disables it.
func (s *Service) RunSnapshotTicker(ctx context.Context, interval time.Duration) {
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
			r, err := s.Refresh(ctx)
			if err != nil {
				logger.Warn("analytics snapshot failed", logger.Err(err))
				continue
			}
			logger.Debug("analytics snapshot refreshed",
				logger.Int("total_pickups", r.TotalPickups),
				logger.Float64("assignment_rate", r.AssignmentRate),
			)
		}
	}
}
