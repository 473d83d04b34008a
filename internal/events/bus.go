package events

import (
	"sync"
)

// Bus is a channel-based pub-sub event bus.
// Supports per-event-type subscriptions and SubscribeAll for cross-type
// consumption. Subscriptions are returned as handles with an explicit
// Unsubscribe, so collaborators can detach without tearing down the bus.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string][]*Subscription // event type -> subscribers
	allSubs []*Subscription            // subscribed to every event type
	closed  bool
}

// Subscription is a handle to a single bus subscription.
// Events are received on C; Unsubscribe detaches and closes C.
type Subscription struct {
	C chan Event

	bus       *Bus
	eventType string // empty for SubscribeAll
	once      sync.Once
}

// Unsubscribe detaches the subscription from the bus and closes its channel.
// Safe to call multiple times.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.remove(s)
		close(s.C)
	})
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[string][]*Subscription),
	}
}

// Subscribe creates a subscription to a single event type.
// bufSize determines the channel buffer size (defaults to 256 if <= 0).
func (b *Bus) Subscribe(eventType string, bufSize int) *Subscription {
	if bufSize <= 0 {
		bufSize = 256
	}

	sub := &Subscription{
		C:         make(chan Event, bufSize),
		bus:       b,
		eventType: eventType,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(sub.C)
		return sub
	}

	b.subs[eventType] = append(b.subs[eventType], sub)
	return sub
}

// SubscribeAll creates a subscription that receives every published event.
// bufSize determines the channel buffer size (defaults to 256 if <= 0).
func (b *Bus) SubscribeAll(bufSize int) *Subscription {
	if bufSize <= 0 {
		bufSize = 256
	}

	sub := &Subscription{
		C:   make(chan Event, bufSize),
		bus: b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(sub.C)
		return sub
	}

	b.allSubs = append(b.allSubs, sub)
	return sub
}

// Publish sends an event to all subscribers of its event type.
// Non-blocking: if a subscriber's channel is full, the event is dropped for
// that subscriber. Also sends to all SubscribeAll channels.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subs[event.EventType()] {
		select {
		case sub.C <- event:
		default:
			// Channel full, drop event (non-blocking)
		}
	}

	for _, sub := range b.allSubs {
		select {
		case sub.C <- event:
		default:
		}
	}
}

// remove detaches a subscription. Called only from Subscription.Unsubscribe.
func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	if sub.eventType != "" {
		b.subs[sub.eventType] = removeSub(b.subs[sub.eventType], sub)
		return
	}
	b.allSubs = removeSub(b.allSubs, sub)
}

func removeSub(subs []*Subscription, target *Subscription) []*Subscription {
	for i, s := range subs {
		if s == target {
			return append(subs[:i], subs[i+1:]...)
		}
	}
	return subs
}

// Close closes the event bus and all subscriber channels.
// Safe to call multiple times (idempotent).
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true

	for _, subs := range b.subs {
		for _, sub := range subs {
			sub.once.Do(func() { close(sub.C) })
		}
	}
	for _, sub := range b.allSubs {
		sub.once.Do(func() { close(sub.C) })
	}
}
