// File: iobuf/slab.go
// Author: momentics <momentics@gmail.com>
//
// Fixed-size transfer buffer slabs sized to the transport MTU (spec
// §4.2, component C2). Adapted from the teacher's pool.slabPool
// (pool/slab_pool.go): same free-queue-then-allocate discipline and
// alloc/free accounting, generalized from a single NUMA-node map to a
// plain atomic pair since this engine's buffers aren't NUMA-classed,
// and the buffer carries a BufKind tag (spec §4.2) instead of a byte
// size class.
package iobuf

import (
	"sync/atomic"

	"github.com/momentics/portals4ni/api"
)

// SlabStats mirrors the teacher's api.BufferPoolStats shape.
type SlabStats struct {
	TotalAlloc int64
	TotalFree  int64
	InUse      int64
}

// SlabPool hands out fixed-size api.Buffer slabs, recycling released
// ones through a lock-free ring free-list.
type SlabPool struct {
	slabSize   int
	free       *Ring[api.Buffer]
	totalAlloc atomic.Int64
	totalFree  atomic.Int64
}

// NewSlabPool creates a pool of buffers of slabSize bytes (transport
// MTU), with up to capacity (rounded up to a power of two) buffers
// retained on the free list before
// new allocations are simply dropped to the garbage collector.
func NewSlabPool(slabSize int, capacity int) *SlabPool {
	return &SlabPool{
		slabSize: slabSize,
		free:     NewRing[api.Buffer](uint64(capacity)),
	}
}

// Get returns a buffer of at least the pool's slab size, tagged kind.
func (sp *SlabPool) Get(kind api.BufKind) api.Buffer {
	if buf, ok := sp.free.Dequeue(); ok {
		buf.Kind = kind
		buf.Data = buf.Data[:cap(buf.Data)]
		return buf
	}
	buf := api.Buffer{
		Data: make([]byte, sp.slabSize),
		Kind: kind,
		Pool: sp,
	}
	sp.totalAlloc.Add(1)
	return buf
}

// Put returns a buffer to the pool, marking it free. Satisfies
// api.Releaser.
func (sp *SlabPool) Put(buf api.Buffer) {
	buf.Kind = api.BufFree
	if sp.free.Enqueue(buf) {
		sp.totalFree.Add(1)
	}
	// Free list full: let the buffer be collected, same as the
	// teacher's slabPool falling back to release() when its queue
	// rejects the enqueue.
}

// Stats reports allocation/free accounting.
func (sp *SlabPool) Stats() SlabStats {
	alloc := sp.totalAlloc.Load()
	free := sp.totalFree.Load()
	return SlabStats{TotalAlloc: alloc, TotalFree: free, InUse: alloc - free}
}

var _ api.Releaser = (*SlabPool)(nil)
