// Package ring provides a bounded, thread-safe ring buffer.
package ring

import (
	"sync"
)

const defaultCapacity = 1000

// Buffer keeps at most capacity items. When full, the oldest item is dropped
// to make room for a new one.
type Buffer[T any] struct {
	mu       sync.Mutex
	items    []T
	head     int // next write position
	tail     int // oldest item
	count    int
	capacity int

	dropped int64
}

// New creates a buffer with the given capacity.
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Buffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// TryPush adds item unless the buffer is full.
func (b *Buffer[T]) TryPush(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count >= b.capacity {
		return false
	}
	b.write(item)
	return true
}

// Push adds item, dropping the oldest one if necessary.
func (b *Buffer[T]) Push(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count >= b.capacity {
		var zero T
		b.items[b.tail] = zero
		b.tail = (b.tail + 1) % b.capacity
		b.count--
		b.dropped++
	}
	b.write(item)
}

func (b *Buffer[T]) write(item T) {
	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	b.count++
}

// PopBatch removes up to n items, oldest first.
func (b *Buffer[T]) PopBatch(n int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 || n <= 0 {
		return nil
	}
	n = min(n, b.count)

	var zero T
	out := make([]T, n)
	for i := range n {
		out[i] = b.items[b.tail]
		b.items[b.tail] = zero
		b.tail = (b.tail + 1) % b.capacity
	}
	b.count -= n
	return out
}

// Snapshot copies the buffered items, oldest first, without removing them.
func (b *Buffer[T]) Snapshot() []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]T, b.count)
	for i := range b.count {
		out[i] = b.items[(b.tail+i)%b.capacity]
	}
	return out
}

func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *Buffer[T]) Cap() int {
	return b.capacity
}

// Dropped returns how many items were evicted by Push.
func (b *Buffer[T]) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
