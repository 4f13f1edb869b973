package events

import "sync"

// DefaultBufferCapacity is used when a Buffer is created with a
// non-positive capacity.
const DefaultBufferCapacity = 100

// Buffer is a bounded, newest-first log of recently received events. Once
// the buffer is full every push evicts the oldest entry. Events are not
// de-duplicated by id: if the upstream channel redelivers an event after a
// reconnect, both copies are kept.
//
// Buffer is safe for concurrent use.
type Buffer struct {
	mu    sync.RWMutex
	items []Event
	next  int
	size  int
}

// NewBuffer creates a buffer holding at most capacity events.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &Buffer{items: make([]Event, capacity)}
}

// Push appends an event, evicting the oldest entry if the buffer is full.
func (b *Buffer) Push(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.next] = ev
	b.next = (b.next + 1) % len(b.items)
	if b.size < len(b.items) {
		b.size++
	}
}

// Snapshot returns the buffered events, newest first. The returned slice is
// a copy and stays valid after further pushes.
func (b *Buffer) Snapshot() []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Event, b.size)
	for i := range b.size {
		out[i] = b.items[(b.next-1-i+2*len(b.items))%len(b.items)]
	}
	return out
}

// Clear discards all buffered events.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	clear(b.items)
	b.next = 0
	b.size = 0
}

// Len returns the number of buffered events.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Capacity returns the maximum number of events the buffer holds.
func (b *Buffer) Capacity() int {
	return len(b.items)
}
