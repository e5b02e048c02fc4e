// File: iobuf/ring.go
// Author: momentics <momentics@gmail.com>
//
// Lock-free, fixed-capacity ring buffer used as the free-list backing
// the buffer slab pool (spec §4.2). Adapted near-verbatim from the
// teacher's pool.RingBuffer[T] (pool/ring.go); renamed to satisfy
// api.Ring[T] explicitly and to live alongside the slab pool it backs.
package iobuf

import (
	"sync/atomic"

	"github.com/momentics/portals4ni/api"
)

// Ring is a lock-free fixed-capacity ring buffer (power-of-two size).
type Ring[T any] struct {
	data []T
	mask uint64
	head uint64
	tail uint64
	_    [64]byte // padding for hot/cold cacheline separation
}

var _ api.Ring[int] = (*Ring[int])(nil)

// NewRing allocates a ring buffer with size rounded up to a power of two.
func NewRing[T any](size uint64) *Ring[T] {
	if size == 0 {
		size = 1
	}
	p := uint64(1)
	for p < size {
		p <<= 1
	}
	return &Ring[T]{data: make([]T, p), mask: p - 1}
}

// Enqueue adds an item; returns false if full.
func (r *Ring[T]) Enqueue(val T) bool {
	head := atomic.LoadUint64(&r.head)
	tail := atomic.LoadUint64(&r.tail)
	if (tail - head) == uint64(len(r.data)) {
		return false
	}
	r.data[tail&r.mask] = val
	atomic.AddUint64(&r.tail, 1)
	return true
}

// Dequeue removes and returns (item, ok); ok==false if empty.
func (r *Ring[T]) Dequeue() (res T, ok bool) {
	head := atomic.LoadUint64(&r.head)
	tail := atomic.LoadUint64(&r.tail)
	if head == tail {
		return res, false
	}
	res = r.data[head&r.mask]
	atomic.AddUint64(&r.head, 1)
	return res, true
}

// Len returns the number of items currently queued.
func (r *Ring[T]) Len() int {
	return int(atomic.LoadUint64(&r.tail) - atomic.LoadUint64(&r.head))
}

// Cap returns the logical buffer capacity.
func (r *Ring[T]) Cap() int { return len(r.data) }
