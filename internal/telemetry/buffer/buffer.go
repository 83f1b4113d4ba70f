// Package buffer holds events waiting for delivery.
package buffer

import (
	"sync"

	"blaze/internal/telemetry/models"
)

// DefaultCapacity bounds the buffer when no capacity is given.
const DefaultCapacity = 5000

// RingBuffer is a bounded, thread-safe FIFO of events. When full, the oldest
// events are dropped to make room for new ones. Failed batches are put back at
// the front with Prepend so delivery order is kept across retries.
type RingBuffer struct {
	mu       sync.Mutex
	events   []models.Event
	head     int // next write position
	tail     int // next read position
	count    int
	capacity int

	dropped int64
}

// New creates a ring buffer with the given capacity.
func New(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RingBuffer{
		events:   make([]models.Event, capacity),
		capacity: capacity,
	}
}

// Append adds an event at the back, dropping the oldest if necessary, and
// returns the new length.
func (b *RingBuffer) Append(event models.Event) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count >= b.capacity {
		b.events[b.tail] = models.Event{}
		b.tail = (b.tail + 1) % b.capacity
		b.count--
		b.dropped++
	}

	b.events[b.head] = event
	b.head = (b.head + 1) % b.capacity
	b.count++
	return b.count
}

// Drain removes and returns every buffered event, oldest first.
func (b *RingBuffer) Drain() []models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}

	result := make([]models.Event, b.count)
	for i := range result {
		result[i] = b.events[b.tail]
		b.events[b.tail] = models.Event{}
		b.tail = (b.tail + 1) % b.capacity
	}
	b.count = 0
	b.head = b.tail
	return result
}

// Prepend puts events back at the front, ahead of anything appended since they
// were drained. If the result would exceed capacity the oldest events, which
// are at the front of the given slice, are dropped.
func (b *RingBuffer) Prepend(events []models.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	free := b.capacity - b.count
	if excess := len(events) - free; excess > 0 {
		events = events[excess:]
		b.dropped += int64(excess)
	}

	for i := len(events) - 1; i >= 0; i-- {
		b.tail = (b.tail - 1 + b.capacity) % b.capacity
		b.events[b.tail] = events[i]
		b.count++
	}
}

// Len returns the current number of events in the buffer.
func (b *RingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Dropped returns the total number of dropped events.
func (b *RingBuffer) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Capacity returns the maximum number of buffered events.
func (b *RingBuffer) Capacity() int {
	return b.capacity
}
