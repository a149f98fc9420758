// Package buffer provides the bounded, insertion-ordered store that every
// monitor uses to hold its most recent observations. Eviction is strictly
// FIFO and capacity-driven; there is no TTL and no deletion by key.
package buffer

// DefaultCapacity is used when a store is created with a non-positive capacity
const DefaultCapacity = 100

// Store is a fixed-capacity ring over a backing slice. Pushing beyond
// capacity evicts the oldest entry. A Store is owned by exactly one monitor
// and is only ever mutated from the owning monitor's event turn, so no
// locking is done here.
type Store[T any] struct {
	items []T
	head  int
	size  int
}

// NewStore creates a store holding at most capacity entries
func NewStore[T any](capacity int) *Store[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store[T]{items: make([]T, capacity)}
}

// Push appends an entry, evicting the oldest one when the store is full.
// Amortized O(1).
func (s *Store[T]) Push(item T) {
	tail := (s.head + s.size) % len(s.items)
	s.items[tail] = item
	if s.size < len(s.items) {
		s.size++
		return
	}
	// Full: the slot we just wrote was the oldest entry.
	s.head = (s.head + 1) % len(s.items)
}

// All returns a snapshot copy of the buffered entries in insertion order.
// Callers never observe in-place mutation of a returned slice.
func (s *Store[T]) All() []T {
	out := make([]T, s.size)
	for i := 0; i < s.size; i++ {
		out[i] = s.items[(s.head+i)%len(s.items)]
	}
	return out
}

// Latest returns the most recently pushed entry, or the zero value and false
// when the store is empty
func (s *Store[T]) Latest() (T, bool) {
	if s.size == 0 {
		var zero T
		return zero, false
	}
	return s.items[(s.head+s.size-1)%len(s.items)], true
}

// Len returns the number of buffered entries
func (s *Store[T]) Len() int {
	return s.size
}

// Cap returns the configured capacity
func (s *Store[T]) Cap() int {
	return len(s.items)
}

// Clear empties the store
func (s *Store[T]) Clear() {
	var zero T
	for i := range s.items {
		s.items[i] = zero
	}
	s.head = 0
	s.size = 0
}
