// README: Selects the broadcast bus named in config.
package infra

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"dispatch/internal/config"
	"dispatch/internal/modules/broadcast"
)

// NewBus builds the configured bus. rdb is only used by the redis bus.
func NewBus(cfg config.BroadcastConfig, rdb *redis.Client) (broadcast.Bus, error) {
	switch cfg.Bus {
	case "memory":
		return broadcast.NewMemoryBus(), nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("redis bus requires a redis client")
		}
		return broadcast.NewRedisBus(rdb), nil
	case "nats":
		bus, err := broadcast.NewNATSBus(cfg.NATSURL)
		if err != nil {
			return nil, err
		}
		return bus, nil
	case "amqp":
		bus, err := broadcast.NewAMQPBus(cfg.AMQPURL)
		if err != nil {
			return nil, err
		}
		return bus, nil
	default:
		return nil, fmt.Errorf("unknown broadcast bus %q", cfg.Bus)
	}
}
