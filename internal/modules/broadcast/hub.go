// README: Topic subscription hub fanning bus events out to live subscribers.
package broadcast

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"dispatch/internal/logger"
)

const (
	DefaultQueueSize     = 256
	subscriberBufferSize = 32
	publishTimeout       = 2 * time.Second
)

// Hub fans events out to topic subscribers. Publish never blocks the
// caller: events are queued and handed to the bus by Run, and whatever the
// bus delivers back is copied to the subscribers joined at that moment.
type Hub struct {
	bus   Bus
	queue chan Event
	now   func() time.Time

	mu   sync.RWMutex
	subs map[Topic]map[*Subscription]struct{}

	dropped atomic.Int64
}

func NewHub(bus Bus, queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Hub{
		bus:   bus,
		queue: make(chan Event, queueSize),
		now:   time.Now,
		subs:  make(map[Topic]map[*Subscription]struct{}),
	}
}

// Publish enqueues events for asynchronous delivery. Events that do not fit
// in the queue are logged and dropped.
func (h *Hub) Publish(events ...Event) {
	for _, ev := range events {
		if ev.Timestamp.IsZero() {
			ev.Timestamp = h.now()
		}
		select {
		case h.queue <- ev:
		default:
			h.dropped.Add(1)
			logger.Warn("broadcast queue full; dropping event",
				logger.String("topic", ev.Topic.String()),
				logger.String("kind", string(ev.Kind)),
			)
		}
	}
}

// Run attaches the hub to its bus and forwards queued events until ctx is
// cancelled.
func (h *Hub) Run(ctx context.Context) error {
	if err := h.bus.Subscribe(ctx, h.deliver); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-h.queue:
			h.forward(ctx, ev)
		}
	}
}

func (h *Hub) forward(ctx context.Context, ev Event) {
	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := h.bus.Publish(pctx, ev); err != nil {
		h.dropped.Add(1)
		logger.Warn("broadcast publish failed",
			logger.String("topic", ev.Topic.String()),
			logger.String("kind", string(ev.Kind)),
			logger.Err(err),
		)
	}
}

// Subscribe joins topic. Close the subscription to leave.
func (h *Hub) Subscribe(topic Topic) *Subscription {
	ch := make(chan Event, subscriberBufferSize)
	sub := &Subscription{C: ch, ch: ch, topic: topic, hub: h}

	h.mu.Lock()
	group, ok := h.subs[topic]
	if !ok {
		group = make(map[*Subscription]struct{})
		h.subs[topic] = group
	}
	group[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// SubscriberCount reports how many subscribers are joined to topic.
func (h *Hub) SubscriberCount(topic Topic) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}

// Dropped reports how many events were not delivered somewhere along the way.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

func (h *Hub) deliver(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[ev.Topic] {
		select {
		case sub.ch <- ev:
		default:
			h.dropped.Add(1)
			logger.Debug("subscriber buffer full; dropping event",
				logger.String("topic", ev.Topic.String()),
				logger.String("kind", string(ev.Kind)),
			)
		}
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group := h.subs[sub.topic]
	if _, ok := group[sub]; !ok {
		return
	}
	delete(group, sub)
	if len(group) == 0 {
		delete(h.subs, sub.topic)
	}
	close(sub.ch)
}

// Subscription is one subscriber joined to one topic.
type Subscription struct {
	C <-chan Event

	ch    chan Event
	topic Topic
	hub   *Hub
	once  sync.Once
}

func (s *Subscription) Topic() Topic {
	return s.topic
}

// Close leaves the topic and closes C. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() { s.hub.remove(s) })
}
