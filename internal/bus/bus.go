// Package bus provides the per-monitor publish/subscribe mechanism that
// replays current state to new subscribers and pushes a fresh snapshot to
// every subscriber on each new observation.
package bus

import (
	"fmt"
	"sync"

	"github.com/Damatnic/astral-core-v7-sub003/internal/logging"
)

// Callback receives a monitor snapshot. Callbacks run synchronously on the
// publishing goroutine and must not block.
type Callback[T any] func(snapshot T)

// Unsubscribe removes a previously registered callback. Calling it more than
// once is a no-op.
type Unsubscribe func()

// subscriber pairs a callback with a stable registration order
type subscriber[T any] struct {
	id int
	fn Callback[T]
}

// Bus delivers snapshots to subscribers in subscription order. It is safe for
// concurrent use; producers on different goroutines may publish while others
// subscribe. Callbacks are invoked outside the internal lock, so a callback
// may publish or unsubscribe without deadlocking.
type Bus[T any] struct {
	mu          sync.Mutex
	logger      logging.Logger
	subscribers []subscriber[T]
	nextID      int

	// last holds the most recent snapshot for replay-on-subscribe
	last    T
	hasLast bool

	// publishing marks a fanout in progress. A publish that arrives while
	// one is running, whether from a subscriber callback or another
	// goroutine, records its snapshot as the latest state but is not
	// fanned out again. This keeps a subscriber that records observations
	// from triggering an endless notification loop.
	publishing bool
}

// New creates a bus. A nil logger falls back to a no-op logger.
func New[T any](logger logging.Logger) *Bus[T] {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Bus[T]{logger: logger.WithComponent("bus")}
}

// Subscribe registers a callback and returns its unsubscribe function.
// If the bus already has state, the callback is invoked immediately with the
// current snapshot, before any future pushes.
func (b *Bus[T]) Subscribe(fn Callback[T]) Unsubscribe {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers = append(b.subscribers, subscriber[T]{id: id, fn: fn})
	replay, hasReplay := b.last, b.hasLast
	b.mu.Unlock()

	if hasReplay {
		b.deliver(subscriber[T]{id: id, fn: fn}, replay)
	}

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, sub := range b.subscribers {
			if sub.id == id {
				b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
				return
			}
		}
	}
}

// Publish stores the snapshot and delivers it to all current subscribers in
// subscription order. When a fanout is already in progress the snapshot is
// recorded for replay but not delivered; see the publishing field.
func (b *Bus[T]) Publish(snapshot T) {
	b.mu.Lock()
	b.last = snapshot
	b.hasLast = true

	if b.publishing {
		b.mu.Unlock()
		return
	}
	b.publishing = true

	// Fan out to a snapshot of the subscriber list so callbacks that
	// unsubscribe (themselves or others) do not disturb this delivery.
	subs := make([]subscriber[T], len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.Unlock()

	for _, sub := range subs {
		b.deliver(sub, snapshot)
	}

	b.mu.Lock()
	b.publishing = false
	b.mu.Unlock()
}

// SubscriberCount returns the number of registered callbacks
func (b *Bus[T]) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// HasState returns true once at least one snapshot has been published
func (b *Bus[T]) HasState() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hasLast
}

// Clear drops the replay snapshot. Subscribers stay registered.
func (b *Bus[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	var zero T
	b.last = zero
	b.hasLast = false
}

// Reset drops the replay snapshot and every registered subscriber.
// Outstanding unsubscribe functions become no-ops.
func (b *Bus[T]) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	var zero T
	b.last = zero
	b.hasLast = false
	b.subscribers = nil
}

// deliver invokes one callback, recovering a panic so one bad consumer cannot
// break delivery to others or abort the producing adapter
func (b *Bus[T]) deliver(sub subscriber[T], snapshot T) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("subscriber callback panicked",
				"subscriber_id", sub.id,
				"panic", fmt.Sprintf("%v", r))
		}
	}()
	sub.fn(snapshot)
}
