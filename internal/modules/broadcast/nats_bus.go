// README: NATS-backed cross-instance event bus.
package broadcast

import (
	"context"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"

	"dispatch/internal/logger"
)

const natsSubjectPrefix = "dispatch.events"

// NATSBus publishes each event on dispatch.events.<family>.<id>.
type NATSBus struct {
	conn *nats.Conn
}

func NewNATSBus(url string) (*NATSBus, error) {
	conn, err := nats.Connect(url,
		nats.Name("dispatch-api"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATSBus{conn: conn}, nil
}

func natsSubject(t Topic) string {
	id := strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(string(t.ID))
	return natsSubjectPrefix + "." + string(t.Family) + "." + id
}

func (b *NATSBus) Publish(_ context.Context, ev Event) error {
	data, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	return b.conn.Publish(natsSubject(ev.Topic), data)
}

func (b *NATSBus) Subscribe(ctx context.Context, h Handler) error {
	sub, err := b.conn.Subscribe(natsSubjectPrefix+".>", func(m *nats.Msg) {
		ev, err := decodeEvent(m.Data)
		if err != nil {
			logger.Warn("nats bus: bad event", logger.String("subject", m.Subject), logger.Err(err))
			return
		}
		h(ev)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
	return nil
}

func (b *NATSBus) Close() error {
	b.conn.Close()
	return nil
}
