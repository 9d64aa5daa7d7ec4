// README: RabbitMQ (AMQP) fanout event bus.
package broadcast

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"dispatch/internal/logger"
)

const amqpExchange = "dispatch.events"

// AMQPBus publishes to a topic exchange with routing key <family>.<id>.
// Each subscriber gets its own exclusive auto-delete queue bound to "#".
type AMQPBus struct {
	conn *amqp.Connection

	mu sync.Mutex
	ch *amqp.Channel
}

func NewAMQPBus(url string) (*AMQPBus, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(amqpExchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPBus{conn: conn, ch: ch}, nil
}

func amqpRoutingKey(t Topic) string {
	return string(t.Family) + "." + string(t.ID)
}

func (b *AMQPBus) Publish(ctx context.Context, ev Event) error {
	data, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ch.PublishWithContext(ctx, amqpExchange, amqpRoutingKey(ev.Topic), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		Timestamp:    ev.Timestamp,
		MessageId:    string(ev.ID),
		Body:         data,
	})
}

func (b *AMQPBus) Subscribe(ctx context.Context, h Handler) error {
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("amqp channel: %w", err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "#", amqpExchange, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("bind queue: %w", err)
	}
	msgs, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("consume: %w", err)
	}

	go func() {
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					return
				}
				ev, err := decodeEvent(d.Body)
				if err != nil {
					logger.Warn("amqp bus: bad event", logger.String("routing_key", d.RoutingKey), logger.Err(err))
					continue
				}
				h(ev)
			}
		}
	}()
	return nil
}

func (b *AMQPBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_ = b.ch.Close()
	return b.conn.Close()
}
