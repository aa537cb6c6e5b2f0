package scoperbuf

import (
	"sync"
)

// Buffer is an unbounded, mutex-guarded collection of items, appended to by
// any number of goroutines and drained in one step by a single reader.
type Buffer[T any] struct {
	mtx   sync.Mutex
	items []T
}

// NewBuffer returns an empty buffer, pre-allocated with the given capacity.
func NewBuffer[T any](cap int) *Buffer[T] {
	return &Buffer[T]{
		items: make([]T, 0, cap),
	}
}

// Push appends the value to the buffer. The lock is held only for the append.
func (b *Buffer[T]) Push(val T) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	b.items = append(b.items, val)
}

// Drain swaps the buffer's storage for empty storage, and returns the previous
// contents in push order. Pushes which acquire the lock after the swap land in
// the next drain.
func (b *Buffer[T]) Drain() []T {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	// Start the next generation with room for as many items as this one held,
	// which is a decent guess for steady workloads.
	drained := b.items
	b.items = make([]T, 0, len(drained))

	return drained
}

// Len returns the number of items currently in the buffer.
func (b *Buffer[T]) Len() int {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	return len(b.items)
}
