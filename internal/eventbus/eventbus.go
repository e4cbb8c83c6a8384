package eventbus

import (
	"sync"

	"github.com/Checker-Finance/marketplace/pkg/model"
)

// Handler is a function that handles an event
type Handler func(ev model.Event)

// Bus provides in-process pub/sub for committed ledger events, keyed by
// event type.
type Bus struct {
	handlers map[string][]Handler
	all      []Handler
	mu       sync.RWMutex
	inflight sync.WaitGroup
}

// New creates a new Bus
func New() *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
	}
}

// Subscribe registers a handler for one event type, e.g. model.EventProductSold.
func (b *Bus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, handler)
}

// Publish delivers ev to every matching handler, each on its own goroutine.
func (b *Bus) Publish(ev model.Event) {
	for _, h := range b.matching(ev.EventType()) {
		b.inflight.Add(1)
		go func(h Handler) {
			defer b.inflight.Done()
			h(ev)
		}(h)
	}
}

// PublishSync publishes an event synchronously to all subscribers
func (b *Bus) PublishSync(ev model.Event) {
	for _, h := range b.matching(ev.EventType()) {
		h(ev)
	}
}

// Wait blocks until every asynchronously delivered event has been handled.
func (b *Bus) Wait() { b.inflight.Wait() }

func (b *Bus) matching(eventType string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Handler, 0, len(b.handlers[eventType])+len(b.all))
	out = append(out, b.handlers[eventType]...)
	return append(out, b.all...)
}

// HasSubscribers returns true if any handler would receive eventType.
func (b *Bus) HasSubscribers(eventType string) bool {
	return b.SubscriberCount(eventType) > 0
}

// SubscriberCount returns the number of handlers that receive eventType.
func (b *Bus) SubscriberCount(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType]) + len(b.all)
}
