// File: api/pool.go
// Author: momentics <momentics@gmail.com>
//
// Defines abstract pooling APIs: zero-copy allocators for buffer and
// object reuse. Kept identical in shape to the teacher's api/pool.go —
// this contract is domain-neutral and the teacher's buffer pool and our
// iobuf slab pool satisfy it equally well.

package api

// BytePool provides reusable []byte buffers for all high-intensity operations.
type BytePool interface {
	// Acquire returns a slice of at least n bytes.
	Acquire(n int) []byte
	// Release returns a buffer to the pool.
	Release(buf []byte)
}

// ObjectPool provides generic pooling of Go objects allocated transiently.
type ObjectPool[T any] interface {
	// Get returns an available instance from the pool.
	Get() T
	// Put returns an instance for reuse.
	Put(obj T)
}

// HandlePool is the generation-indexed object pool contract underlying
// every typed pool in package handle (spec §4.1): allocate and release
// by Handle, with lookup failing closed on a stale generation.
type HandlePool[T any] interface {
	// Alloc reserves a slot, returning its Handle and a pointer to the
	// zero-valued slot for the caller to initialize. Fails with
	// api.ErrPoolExhausted if the pool is at its configured limit.
	Alloc() (Handle, *T, error)
	// Lookup resolves h to its object, failing if h is stale or out of
	// range.
	Lookup(h Handle) (*T, error)
	// Release decrements the slot's reference count; at zero the slot
	// is reclaimed and its generation incremented.
	Release(h Handle) error
	// Acquire increments the slot's reference count so the object
	// outlives a single caller's critical section (e.g. an XI holding
	// an MD).
	Acquire(h Handle) error
	// Len returns the number of live objects.
	Len() int
}
