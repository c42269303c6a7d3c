package events

import (
	"sync"
	"time"
)

// Handler receives published events. Handlers run synchronously on the
// publisher's goroutine and must not block.
type Handler func(event *Event)

// SubscriptionID identifies a subscription for Unsubscribe
type SubscriptionID uint64

type subscription struct {
	id        SubscriptionID
	eventType EventType // empty matches every type
	handler   Handler
}

// Bus is an in-process publish/subscribe hub
type Bus struct {
	mu     sync.RWMutex
	nextID SubscriptionID
	subs   map[SubscriptionID]subscription
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{subs: make(map[SubscriptionID]subscription)}
}

// Subscribe registers handler for one event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.subs[b.nextID] = subscription{id: b.nextID, eventType: eventType, handler: handler}
	return b.nextID
}

// SubscribeAll registers handler for every event type
func (b *Bus) SubscribeAll(handler Handler) SubscriptionID {
	return b.Subscribe("", handler)
}

// Unsubscribe removes a subscription; unknown ids are ignored
func (b *Bus) Unsubscribe(id SubscriptionID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// SubscriberCount returns the number of live subscriptions
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Emit publishes an event built from its parts
func (b *Bus) Emit(eventType EventType, module string, data map[string]interface{}) {
	b.Publish(&Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
		Module:    module,
	})
}

// Publish delivers event to every matching subscriber
func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.eventType == "" || sub.eventType == event.Type {
			handlers = append(handlers, sub.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}
