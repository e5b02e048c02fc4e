// File: api/ring.go
// Author: momentics <momentics@gmail.com>
//
// Fast, lock-free ring buffer contract for cross-thread data transfer.
// Unchanged from the teacher's api/ring.go. iobuf.Ring is the one
// implementation; the shmem NEMESIS queue has its own sequence-tagged
// Enqueue/Dequeue and does not implement this contract.

package api

// Ring contract for high-performance, concurrent FIFO.
type Ring[T any] interface {
	// Enqueue adds item, returns false if buffer full.
	Enqueue(item T) bool

	// Dequeue removes and returns the oldest item, false if buffer empty.
	Dequeue() (T, bool)

	// Len returns number of items currently in buffer.
	Len() int

	// Cap returns fixed buffer capacity.
	Cap() int
}
