// README: Available-worker index backed by Redis GEO.
package location

import (
	"context"

	"github.com/redis/go-redis/v9"

	"dispatch/internal/types"
)

const workerGeoKey = "dispatch:workers:geo"

// WorkerIndex tracks the positions of available workers.
type WorkerIndex interface {
	Add(ctx context.Context, id types.ID, p types.Point) error
	Remove(ctx context.Context, id types.ID) error
	// Nearby returns worker IDs within radiusKm, closest first.
	Nearby(ctx context.Context, p types.Point, radiusKm float64) ([]types.ID, error)
}

type RedisIndex struct {
	redis *redis.Client
}

func NewRedisIndex(rdb *redis.Client) *RedisIndex {
	return &RedisIndex{redis: rdb}
}

func (s *RedisIndex) Add(ctx context.Context, id types.ID, p types.Point) error {
	return s.redis.GeoAdd(ctx, workerGeoKey, &redis.GeoLocation{
		Name:      string(id),
		Longitude: p.Lng,
		Latitude:  p.Lat,
	}).Err()
}

func (s *RedisIndex) Remove(ctx context.Context, id types.ID) error {
	return s.redis.ZRem(ctx, workerGeoKey, string(id)).Err()
}

func (s *RedisIndex) Nearby(ctx context.Context, p types.Point, radiusKm float64) ([]types.ID, error) {
	results, err := s.redis.GeoSearch(ctx, workerGeoKey, &redis.GeoSearchQuery{
		Longitude:  p.Lng,
		Latitude:   p.Lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(results))
	for i, r := range results {
		ids[i] = types.ID(r)
	}
	return ids, nil
}
