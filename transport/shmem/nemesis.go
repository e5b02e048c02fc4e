// File: transport/shmem/nemesis.go
// Author: momentics <momentics@gmail.com>
//
// The NEMESIS lock-free, single-consumer multi-producer queue (spec
// §4.9), grounded on two sources: the teacher's
// internal/concurrency.LockFreeQueue[T] (a Vyukov-style bounded array
// queue) for the "minimal atomics, cacheline-padded head/tail" idiom
// this module reuses throughout, and the original
// ptl_internal_orderednemesis.h / nemesis.c for the actual unbounded
// linked-list NEMESIS algorithm and its 128-bit (ptr,val) tail swap.
//
// Go has no portable 128-bit CAS, so the tail swap - which the original
// performs with a single lock-free instruction precisely so multiple
// producers can race it - is instead serialized behind a short-held
// mutex; head/next remain atomic.Pointer loads/stores, so the single
// consumer takes that mutex only when dequeuing the last queued entry
// and otherwise never blocks behind a producer. This preserves the
// single-consumer, multi-producer FIFO contract (spec §4.9, §8 "Shared-
// memory queue with K producers and 1 consumer preserves per-producer
// FIFO") without the original's inline-assembly CAS16B.
package shmem

import (
	"sync"
	"sync/atomic"
)

// entry is one queued fragment: its 64-bit sequence number (spec §4.9
// "ordered variant additionally carries a 64-bit sequence val") plus
// payload bytes.
type entry struct {
	next atomic.Pointer[entry]
	seq  uint64
	data []byte
}

// Queue is one receiver's NEMESIS queue: many producer goroutines call
// Enqueue, exactly one consumer goroutine calls Dequeue (spec §4.9).
type Queue struct {
	mu      sync.Mutex // guards tail + tailSeq; producers only
	tail    *entry
	tailSeq uint64

	head atomic.Pointer[entry]

	// blocking wakeup, grounded in nemesis.c's PtlInternalNEMESISBlocking*:
	// a condition variable plus a bounded "frustration" spin counter
	// instead of the original's pthread-shared cond/pipe.
	cond        *sync.Cond
	frustration int
	closed      bool
}

// NewQueue constructs an empty NEMESIS queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&sync.Mutex{})
	return q
}

// Enqueue appends data tagged with seq. It returns false if seq is lower
// than the seq of the fragment currently at the tail; an empty queue
// accepts any seq (spec §4.9: "swap is rejected when the incoming val is not
// monotonic, used to preserve send order when multiple senders
// interleave").
func (q *Queue) Enqueue(data []byte, seq uint64) bool {
	e := &entry{data: data, seq: seq}

	q.mu.Lock()
	if q.tail != nil && seq < q.tailSeq {
		q.mu.Unlock()
		return false
	}
	prev := q.tail
	q.tail = e
	q.tailSeq = seq
	q.mu.Unlock()

	if prev == nil {
		q.head.Store(e)
	} else {
		prev.next.Store(e)
	}

	q.wake()
	return true
}

// Dequeue removes and returns the head fragment if its sequence is
// within upperBound, called from the single consumer goroutine only
// (spec §4.9).
func (q *Queue) Dequeue(upperBound uint64) ([]byte, uint64, bool) {
	h := q.head.Load()
	if h == nil {
		return nil, 0, false
	}
	if h.seq > upperBound {
		return nil, 0, false
	}

	if next := h.next.Load(); next != nil {
		q.head.Store(next)
	} else {
		q.mu.Lock()
		if q.tail == h {
			q.tail = nil
			q.tailSeq = 0
			q.head.Store(nil)
			q.mu.Unlock()
		} else {
			q.mu.Unlock()
			// A producer already swapped the tail but has not yet
			// linked h.next; spin briefly until it does (matches the
			// original's busy-wait at the same race window).
			for {
				if next = h.next.Load(); next != nil {
					break
				}
			}
			q.head.Store(next)
		}
	}
	return h.data, h.seq, true
}

// wake resets the "frustration" spin count and signals one DequeueWait
// caller whenever that count is non-zero (DequeueWait itself only blocks
// once the count passes 1000), mirroring nemesis.c's pthread_cond
// path without the pipe fallback (spec §4.9).
func (q *Queue) wake() {
	q.cond.L.Lock()
	if q.frustration > 0 {
		q.frustration = 0
		q.cond.Signal()
	}
	q.cond.L.Unlock()
}

// DequeueWait blocks until a fragment is available, upperBound allows
// it, or the queue is closed.
func (q *Queue) DequeueWait(upperBound uint64) ([]byte, uint64, bool) {
	for {
		if data, seq, ok := q.Dequeue(upperBound); ok {
			return data, seq, true
		}
		q.cond.L.Lock()
		if q.closed {
			q.cond.L.Unlock()
			return nil, 0, false
		}
		q.frustration++
		if q.frustration > 1000 {
			q.cond.Wait()
		}
		q.cond.L.Unlock()
	}
}

// Close wakes every DequeueWait caller so it observes closed and
// returns.
func (q *Queue) Close() {
	q.cond.L.Lock()
	q.closed = true
	q.cond.L.Unlock()
	q.cond.Broadcast()
}
