package event

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// subscriberBuffer is the per-subscriber queue depth. Publish never
// blocks: when a subscriber's buffer is full the event is dropped and
// counted.
const subscriberBuffer = 64

// Handler consumes lifecycle events. Handlers run on a dedicated
// goroutine per subscription, off the operation hot path. A panicking
// handler is recovered and logged, never surfaced to the publisher.
type Handler func(Event)

// Subscription is one registered handler. Close it to stop delivery.
type Subscription struct {
	id      string
	ch      chan Event
	dropped atomic.Uint64

	bus  *Bus
	once sync.Once
}

// ID returns the subscription identifier.
func (s *Subscription) ID() string { return s.id }

// Dropped returns how many events were discarded because the handler
// could not keep up.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Close unregisters the subscription and stops its handler goroutine.
// Idempotent.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.remove(s)
		close(s.ch)
	})
}

// Bus fans lifecycle events out to subscribers. At-most-once delivery
// per event per subscriber, enqueued in registration order.
type Bus struct {
	mu     sync.RWMutex
	subs   []*Subscription
	closed bool
	log    *slog.Logger
}

// NewBus creates a bus logging handler failures through log. A nil
// logger falls back to slog.Default.
func NewBus(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{log: log}
}

// Subscribe registers h and starts its delivery goroutine.
func (b *Bus) Subscribe(h Handler) *Subscription {
	s := &Subscription{
		id:  uuid.NewString(),
		ch:  make(chan Event, subscriberBuffer),
		bus: b,
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		s.once.Do(func() { close(s.ch) })
		return s
	}
	b.subs = append(b.subs, s)
	b.mu.Unlock()

	go b.drain(s, h)
	return s
}

// Publish enqueues ev for every current subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.subs {
		select {
		case s.ch <- ev:
		default:
			s.dropped.Add(1)
			b.log.Warn("lifecycle event dropped, subscriber too slow",
				"subscription", s.id,
				"event", ev.Type.String(),
			)
		}
	}
}

// Close shuts the bus down and stops all subscriber goroutines.
// Idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, s := range subs {
		s.once.Do(func() { close(s.ch) })
	}
}

func (b *Bus) drain(s *Subscription, h Handler) {
	for ev := range s.ch {
		b.deliver(s, h, ev)
	}
}

func (b *Bus) deliver(s *Subscription, h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("lifecycle event handler panicked",
				"subscription", s.id,
				"event", ev.Type.String(),
				"panic", r,
			)
		}
	}()
	h(ev)
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, cur := range b.subs {
		if cur == s {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}
