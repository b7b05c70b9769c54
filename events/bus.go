package events

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// DefaultMaxHandlers is the soft ceiling on concurrently registered
// handlers. Exceeding it logs a warning but never fails a subscription.
const DefaultMaxHandlers = 50

// Handler receives an event. Handlers run on the emitter's goroutine;
// anything slow or fallible should hand the work off itself.
type Handler func(Event)

// Subscription identifies a registered handler so it can be removed.
// Go function values are not comparable, so deregistration goes through
// this handle rather than the handler itself.
type Subscription struct {
	id        uint64
	catchAll  bool
	eventType Type
}

type subscriber struct {
	id      uint64
	handler Handler
}

// Bus is an in-process publish/subscribe mechanism for domain events.
// It is explicitly constructed and injected; delivery is synchronous,
// best-effort, and confined to the current process. A crash between
// Emit and handler completion loses the event.
type Bus struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[Type][]subscriber
	all    []subscriber
	max    int
	log    *logrus.Logger
}

// NewBus creates an empty bus. The logger must not be nil.
func NewBus(log *logrus.Logger) *Bus {
	return &Bus{
		subs: make(map[Type][]subscriber),
		max:  DefaultMaxHandlers,
		log:  log,
	}
}

// Subscribe registers a handler for a specific event type. Handlers for
// the same type fire in registration order.
func (b *Bus) Subscribe(t Type, h Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs[t] = append(b.subs[t], subscriber{id: b.nextID, handler: h})
	b.warnIfCrowdedLocked()
	return Subscription{id: b.nextID, eventType: t}
}

// SubscribeToAll registers a handler on the catch-all channel, which
// receives every event after the type-specific handlers have run.
func (b *Bus) SubscribeToAll(h Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.all = append(b.all, subscriber{id: b.nextID, handler: h})
	b.warnIfCrowdedLocked()
	return Subscription{id: b.nextID, catchAll: true}
}

// Unsubscribe removes a previously registered handler. Unknown
// subscriptions are ignored.
func (b *Bus) Unsubscribe(s Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.catchAll {
		b.all = removeSubscriber(b.all, s.id)
		return
	}
	b.subs[s.eventType] = removeSubscriber(b.subs[s.eventType], s.id)
}

// Emit synchronously delivers the event to every handler subscribed to
// its type, then to every catch-all handler, in registration order. The
// subscriber lists are snapshotted under lock first, so handlers may
// subscribe or unsubscribe concurrently without corrupting the
// iteration. A panicking handler is isolated and logged; it does not
// affect other handlers or the emitter.
func (b *Bus) Emit(e Event) {
	b.mu.Lock()
	typed := make([]subscriber, len(b.subs[e.Type]))
	copy(typed, b.subs[e.Type])
	all := make([]subscriber, len(b.all))
	copy(all, b.all)
	b.mu.Unlock()

	b.log.WithFields(logrus.Fields{
		"event_id":   e.ID,
		"event_type": e.Type,
	}).Debug("emitting event")

	for _, s := range typed {
		b.invoke(s, e)
	}
	for _, s := range all {
		b.invoke(s, e)
	}
}

func (b *Bus) invoke(s subscriber, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.WithFields(logrus.Fields{
				"event_type": e.Type,
				"panic":      r,
			}).Error("event handler panicked")
		}
	}()
	s.handler(e)
}

// Stats returns the current handler count and the event types with at
// least one subscriber.
func (b *Bus) Stats() (handlers int, types []Type) {
	b.mu.Lock()
	defer b.mu.Unlock()
	handlers = len(b.all)
	for t, subs := range b.subs {
		if len(subs) > 0 {
			handlers += len(subs)
			types = append(types, t)
		}
	}
	return handlers, types
}

func (b *Bus) warnIfCrowdedLocked() {
	total := len(b.all)
	for _, subs := range b.subs {
		total += len(subs)
	}
	if total > b.max {
		b.log.WithField("handlers", total).Warn("event bus handler count exceeds configured ceiling")
	}
}

func removeSubscriber(subs []subscriber, id uint64) []subscriber {
	for i, s := range subs {
		if s.id == id {
			return append(subs[:i], subs[i+1:]...)
		}
	}
	return subs
}
