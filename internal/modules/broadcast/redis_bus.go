// README: Redis pub/sub event bus.
package broadcast

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"dispatch/internal/logger"
)

const redisChannelPrefix = "dispatch:events:"

// RedisBus uses Redis pub/sub, so every API instance sees every event.
type RedisBus struct {
	client *redis.Client
}

func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	data, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, redisChannelPrefix+ev.Topic.String(), data).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, h Handler) error {
	ps := b.client.PSubscribe(ctx, redisChannelPrefix+"*")
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("redis psubscribe: %w", err)
	}

	ch := ps.Channel()
	go func() {
		defer ps.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				ev, err := decodeEvent([]byte(msg.Payload))
				if err != nil {
					logger.Warn("redis bus: bad event", logger.String("channel", msg.Channel), logger.Err(err))
					continue
				}
				h(ev)
			}
		}
	}()
	return nil
}

// Close is a no-op; the client is owned by the caller.
func (b *RedisBus) Close() error {
	return nil
}
