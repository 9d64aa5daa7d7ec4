// README: Redis client initialization for the worker GEO index, pub/sub and the analytics cache.
package infra

import "github.com/redis/go-redis/v9"

func NewRedis(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}
