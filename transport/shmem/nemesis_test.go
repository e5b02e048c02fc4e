package shmem

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestQueue_ConcurrentEnqueuersPreserveSequenceOrder exercises spec
// §8's "Shared-memory queue with K producers and 1 consumer preserves
// per-producer FIFO": many goroutines share one sender's sequence
// counter (as transport.Transport.Send does per-initiator), retrying
// with a freshly drawn sequence number whenever a race loses the
// ordered-enqueue rejection of spec §4.9, and the consumer must observe
// every successful enqueue exactly once, strictly in sequence order.
func TestQueue_ConcurrentEnqueuersPreserveSequenceOrder(t *testing.T) {
	q := NewQueue()
	var seqCounter atomic.Uint64
	var accepted atomic.Int64

	const goroutines = 8
	const perGoroutine = 100

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				for {
					seq := seqCounter.Add(1)
					if q.Enqueue([]byte{byte(seq), byte(seq >> 8)}, seq) {
						accepted.Add(1)
						break
					}
				}
			}
		}()
	}
	wg.Wait()

	var last uint64
	count := 0
	for {
		_, seq, ok := q.Dequeue(^uint64(0))
		if !ok {
			break
		}
		require.Greater(t, seq, last)
		last = seq
		count++
	}
	require.Equal(t, int(accepted.Load()), count)
}

// TestQueue_RejectsNonMonotonicSequence exercises the ordered-enqueue
// rejection rule of spec §4.9.
func TestQueue_RejectsNonMonotonicSequence(t *testing.T) {
	q := NewQueue()
	require.True(t, q.Enqueue([]byte("a"), 5))
	require.False(t, q.Enqueue([]byte("b"), 3))
}
