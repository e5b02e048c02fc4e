// File: transport/fake/transport.go
// Author: momentics <momentics@gmail.com>
//
// An in-process api.Transport with predictable, controllable behavior,
// for progress-engine and state-machine tests that must not depend on
// a real RDMA or shared-memory backend. Adapted from the teacher's
// fake.Transport (fake/transport.go): same send/recv-buffer-plus-error-
// injection shape, generalized from [][]byte framing to api.Buffer/
// api.Completion (spec §4.3).
package fake

import (
	"sync"

	"github.com/momentics/portals4ni/api"
)

// Transport is a fake api.Transport: Send appends to an internal queue,
// Poll drains it as completions, and every posted recv buffer is left
// untouched until the test calls Deliver.
type Transport struct {
	mu        sync.Mutex
	posted    []api.Buffer
	completed []api.Completion
	closed    bool

	SendErr  error
	CloseErr error

	// Sent records every buffer handed to Send, for assertions.
	Sent []api.Buffer
}

var _ api.Transport = (*Transport)(nil)

// New constructs an empty fake transport.
func New() *Transport {
	return &Transport{}
}

// PostRecv records buf as eligible to receive; Deliver later completes it.
func (t *Transport) PostRecv(buf api.Buffer) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return api.ErrTransportClosed
	}
	t.posted = append(t.posted, buf)
	return nil
}

// Send immediately completes buf as OK (or SendErr if injected), mirroring
// the teacher's fake transport's synchronous completion model.
func (t *Transport) Send(buf api.Buffer, inlineOK bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return api.ErrTransportClosed
	}
	if t.SendErr != nil {
		return t.SendErr
	}
	t.Sent = append(t.Sent, buf)
	t.completed = append(t.completed, api.Completion{Buf: buf, Status: api.CompletionOK})
	return nil
}

// Deliver completes the oldest posted recv buffer with data, simulating
// an inbound packet landing in a previously posted buffer.
func (t *Transport) Deliver(data []byte, from api.ProcessID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.posted) == 0 {
		return false
	}
	buf := t.posted[0]
	t.posted = t.posted[1:]
	n := copy(buf.Data, data)
	buf.Data = buf.Data[:n]
	buf.Dest = from
	t.completed = append(t.completed, api.Completion{Buf: buf, Status: api.CompletionOK})
	return true
}

// Poll drains and returns all outstanding completions.
func (t *Transport) Poll() []api.Completion {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.completed
	t.completed = nil
	return out
}

// Close marks the transport closed; further Send/PostRecv calls fail.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return t.CloseErr
}

// Features reports a deliberately permissive feature set, matching the
// teacher's fake transport's role as a stand-in for any backend.
func Features() api.TransportFeatures {
	return api.TransportFeatures{
		ZeroCopy: true, Batch: true, NUMAAware: true, LockFree: true,
		SharedMemory: false, OS: []string{"fake"},
	}
}
