// Package window holds the most recent records in a fixed-capacity ring.
package window

import (
	"fmt"
	"sync"

	"github.com/02loveslollipop/localizador-sniffer/services/sniffer/internal/telemetry"
)

// DefaultCapacity is the number of records kept when none is configured.
const DefaultCapacity = 100

// Buffer is a ring of the last Capacity records. Append and Snapshot are safe
// for one writer and any number of concurrent readers.
type Buffer struct {
	mu       sync.RWMutex
	items    []telemetry.Value
	capacity int
	head     int // oldest entry
	size     int
}

// New allocates a buffer with the given capacity.
func New(capacity int) (*Buffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("window capacity must be positive, got %d", capacity)
	}
	return &Buffer{
		items:    make([]telemetry.Value, capacity),
		capacity: capacity,
	}, nil
}

// Append adds v at the tail, evicting the oldest entry when full. It reports
// whether an entry was evicted.
func (b *Buffer) Append(v telemetry.Value) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size == b.capacity {
		b.items[b.head] = v
		b.head = (b.head + 1) % b.capacity
		return true
	}
	b.items[(b.head+b.size)%b.capacity] = v
	b.size++
	return false
}

// Snapshot copies the contents oldest first. The result is never nil.
func (b *Buffer) Snapshot() []telemetry.Value {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]telemetry.Value, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.items[(b.head+i)%b.capacity]
	}
	return out
}

// Len returns the number of buffered records.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Capacity returns the configured capacity.
func (b *Buffer) Capacity() int { return b.capacity }
