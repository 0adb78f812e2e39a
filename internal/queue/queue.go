package queue

import (
	"sync"
)

// Ring is a thread-safe fixed capacity buffer. Pushing into a full ring
// evicts the oldest item.
type Ring[T any] struct {
	mu    sync.Mutex
	items []T
	head  int // index of the oldest item
	size  int
}

// NewRing creates a ring holding at most capacity items
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Cap returns the capacity of the ring
func (r *Ring[T]) Cap() int {
	return len(r.items)
}

// Len returns the number of items in the ring
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Push appends value, returning the evicted item if the ring was full
func (r *Ring[T]) Push(value T) (evicted T, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size < len(r.items) {
		r.items[(r.head+r.size)%len(r.items)] = value
		r.size++
		return evicted, false
	}

	evicted = r.items[r.head]
	r.items[r.head] = value
	r.head = (r.head + 1) % len(r.items)
	return evicted, true
}

// Find returns the newest item matching fn
func (r *Ring[T]) Find(fn func(T) bool) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := r.size - 1; i >= 0; i-- {
		item := r.items[(r.head+i)%len(r.items)]
		if fn(item) {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// Items returns a copy of the items from oldest to newest
func (r *Ring[T]) Items() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]T, 0, r.size)
	for i := 0; i < r.size; i++ {
		out = append(out, r.items[(r.head+i)%len(r.items)])
	}
	return out
}
