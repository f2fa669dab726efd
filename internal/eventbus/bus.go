// Package eventbus provides topic-per-item publish/subscribe for domain events.
package eventbus

import (
	"sync"

	"github.com/hylla/draftwork/internal/domain"
)

// Handler receives one event. Handlers run synchronously on the publisher
// goroutine and must not block.
type Handler func(domain.Event)

// subscriber pairs a handler with its registration order within a topic.
type subscriber struct {
	id      uint64
	handler Handler
}

// topic serializes delivery so events on one item arrive in publication order.
type topic struct {
	deliverMu sync.Mutex
}

// Bus dispatches domain events to handlers subscribed to an item's topic.
// Delivery is at-least-once from the subscriber's point of view (reconnecting
// clients may replay), so handlers are expected to merge idempotently.
type Bus struct {
	mu          sync.RWMutex
	nextID      uint64
	subscribers map[int64][]subscriber
	topics      map[int64]*topic
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		subscribers: make(map[int64][]subscriber),
		topics:      make(map[int64]*topic),
	}
}

// Subscribe registers a handler for one item's topic and returns its
// unsubscribe func. Unsubscribing is synchronous: once it returns, the handler
// receives no further events. Calling it twice is safe.
func (b *Bus) Subscribe(itemID int64, handler Handler) func() {
	if handler == nil {
		return func() {}
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subscribers[itemID] = append(b.subscribers[itemID], subscriber{id: id, handler: handler})
	if _, ok := b.topics[itemID]; !ok {
		b.topics[itemID] = &topic{}
	}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.unsubscribe(itemID, id)
		})
	}
}

// Publish delivers an event to every handler subscribed to its item topic.
// Per-topic delivery order matches publication order; no ordering is
// guaranteed across different items.
func (b *Bus) Publish(event domain.Event) {
	if event == nil {
		return
	}
	itemID := event.EventItemID()

	b.mu.RLock()
	tp := b.topics[itemID]
	b.mu.RUnlock()
	if tp == nil {
		return
	}

	// The per-topic lock covers the subscriber snapshot and the handler loop,
	// so two concurrent publishes on one item cannot interleave deliveries.
	tp.deliverMu.Lock()
	defer tp.deliverMu.Unlock()

	b.mu.RLock()
	snapshot := make([]subscriber, len(b.subscribers[itemID]))
	copy(snapshot, b.subscribers[itemID])
	b.mu.RUnlock()

	for _, sub := range snapshot {
		if !b.isSubscribed(itemID, sub.id) {
			continue
		}
		sub.handler(event)
	}
}

// SubscriberCount reports active handlers on one topic.
func (b *Bus) SubscriberCount(itemID int64) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[itemID])
}

// unsubscribe removes one handler and prunes empty topics.
func (b *Bus) unsubscribe(itemID int64, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[itemID]
	for idx := range subs {
		if subs[idx].id == id {
			b.subscribers[itemID] = append(subs[:idx], subs[idx+1:]...)
			break
		}
	}
	if len(b.subscribers[itemID]) == 0 {
		delete(b.subscribers, itemID)
		delete(b.topics, itemID)
	}
}

// isSubscribed reports whether a handler is still registered; checked per
// delivery so a synchronous unsubscribe stops mid-publish delivery too.
func (b *Bus) isSubscribed(itemID int64, id uint64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers[itemID] {
		if sub.id == id {
			return true
		}
	}
	return false
}
