// Package events provides the publish-subscribe bus carrying typed state
// change events from the state store to the integration coordinator and
// other composition-time subscribers.
package events

import (
	"sync"

	"github.com/snapzone/snapzone/internal/models"
)

const subBufferSize = 256

// Bus is a non-blocking publish-subscribe event bus.
// Subscribers that are slow to consume events will have events dropped rather
// than blocking publishers: the state store publishes from inside its
// per-entity critical section and must never wait on a consumer.
type Bus struct {
	mu      sync.Mutex
	subs    map[string]chan models.ChangeEvent
	dropped uint64
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[string]chan models.ChangeEvent),
	}
}

// Subscribe creates a new subscription with the given ID.
// The returned channel will receive change events.
// Call Unsubscribe when done to clean up.
func (b *Bus) Subscribe(id string) <-chan models.ChangeEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan models.ChangeEvent, subBufferSize)
	b.subs[id] = ch
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish sends an event to all subscribers.
// If a subscriber's channel is full, the event is dropped (non-blocking).
func (b *Bus) Publish(ev models.ChangeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped++
		}
	}
}

// SubscriberCount returns the current number of subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Dropped returns the number of events discarded due to slow subscribers.
func (b *Bus) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
