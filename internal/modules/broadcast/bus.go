// README: Event bus contract and the in-process implementation.
package broadcast

import (
	"context"
	"encoding/json"
	"sync"
)

// Handler receives events arriving from a bus.
type Handler func(Event)

// Bus moves events between hub instances. Delivery is at most once.
type Bus interface {
	Publish(ctx context.Context, ev Event) error
	// Subscribe delivers every event on the bus to h until ctx is done.
	Subscribe(ctx context.Context, h Handler) error
	Close() error
}

// MemoryBus delivers synchronously inside the process.
type MemoryBus struct {
	mu       sync.RWMutex
	handlers map[int]Handler
	next     int
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{handlers: make(map[int]Handler)}
}

func (b *MemoryBus) Publish(_ context.Context, ev Event) error {
	b.mu.RLock()
	hs := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		hs = append(hs, h)
	}
	b.mu.RUnlock()
	for _, h := range hs {
		h(ev)
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, h Handler) error {
	b.mu.Lock()
	id := b.next
	b.next++
	b.handlers[id] = h
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}()
	return nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	b.handlers = make(map[int]Handler)
	b.mu.Unlock()
	return nil
}

func encodeEvent(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}

func decodeEvent(data []byte) (Event, error) {
	var ev Event
	err := json.Unmarshal(data, &ev)
	return ev, err
}
