// File: transport/shmem/transport.go
// Author: momentics <momentics@gmail.com>
//
// api.Transport backed by one NEMESIS queue per receiver (spec §4.9).
// A real Portals4 shared-memory backend maps one comm_pad per NI across
// cooperating OS processes; this module targets a single Go process (no
// cgo, no mmap, per the teacher's dependency discipline — DESIGN.md's
// transport/shmem entry records why no such mapping is wired), so Hub plays the role the
// comm_pad segment plays in the original: a process-wide registry of
// per-destination Queues that any NI sharing this process can address.
package shmem

import (
	"sync"
	"sync/atomic"

	"github.com/momentics/portals4ni/api"
)

// Hub routes Buffers between NIs co-located in this process, each
// identified by its api.ProcessID, via per-destination NEMESIS queues.
type Hub struct {
	mu   sync.Mutex
	recv map[api.ProcessID]*Queue
}

// NewHub constructs an empty routing hub. One Hub is shared by every
// Transport created against it within a process.
func NewHub() *Hub {
	return &Hub{recv: make(map[api.ProcessID]*Queue)}
}

func (h *Hub) queueFor(id api.ProcessID) *Queue {
	h.mu.Lock()
	defer h.mu.Unlock()
	q, ok := h.recv[id]
	if !ok {
		q = NewQueue()
		h.recv[id] = q
	}
	return q
}

// Transport is one NI's view of the Hub: Send publishes to the
// destination's queue; Poll/PostRecv harvest from this NI's own queue
// (spec §4.3).
type Transport struct {
	hub  *Hub
	self api.ProcessID
	seq  atomic.Uint64

	mu     sync.Mutex
	posted []api.Buffer
	closed bool
}

var _ api.Transport = (*Transport)(nil)

// NewTransport binds a Transport to self's inbound queue on hub.
func NewTransport(hub *Hub, self api.ProcessID) *Transport {
	t := &Transport{hub: hub, self: self}
	hub.queueFor(self) // pre-create so peers can enqueue before our first Poll
	return t
}

// PostRecv records buf as the next slot a dequeued fragment is copied
// into.
func (t *Transport) PostRecv(buf api.Buffer) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return api.ErrTransportClosed
	}
	t.posted = append(t.posted, buf)
	return nil
}

// Send enqueues buf.Data onto buf.Dest's queue with the next
// monotonic sequence number from this sender, preserving per-
// destination FIFO (spec §4.3, §4.9).
func (t *Transport) Send(buf api.Buffer, inlineOK bool) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return api.ErrTransportClosed
	}
	seq := t.seq.Add(1)
	dst := t.hub.queueFor(buf.Dest)
	cp := append([]byte(nil), buf.Data...)
	if !dst.Enqueue(cp, seq) {
		return &api.Error{Code: api.NIUndeliverable, Message: "shmem: out-of-order send rejected"}
	}
	return nil
}

// Poll drains this NI's own queue into previously PostRecv'd buffers,
// one fragment per posted buffer, in arrival order.
func (t *Transport) Poll() []api.Completion {
	q := t.hub.queueFor(t.self)
	var out []api.Completion
	for {
		t.mu.Lock()
		if len(t.posted) == 0 {
			t.mu.Unlock()
			break
		}
		buf := t.posted[0]
		t.mu.Unlock()

		data, _, ok := q.Dequeue(^uint64(0))
		if !ok {
			break
		}
		t.mu.Lock()
		t.posted = t.posted[1:]
		t.mu.Unlock()

		n := copy(buf.Data, data)
		buf.Data = buf.Data[:n]
		out = append(out, api.Completion{Buf: buf, Status: api.CompletionOK})
	}
	return out
}

// Close marks the transport closed and wakes any blocked consumer.
func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.hub.queueFor(t.self).Close()
	return nil
}

// Features reports this backend's capabilities (spec §4.3).
func Features() api.TransportFeatures {
	return api.TransportFeatures{LockFree: true, SharedMemory: true, ZeroCopy: false, OS: []string{"linux", "darwin", "windows"}}
}
