// File: transport/rdma/transport.go
// Author: momentics <momentics@gmail.com>
//
// api.Transport over TCP, standing in for the verbs/RDMA backend (spec
// §4.3's "RDMA" transport family) without requiring an InfiniBand
// fabric or cgo. Addressing reuses spec §6's own encoding directly:
// api.NID is already "an IPv4 address in host order" and api.PID a
// port, so no separate address-resolution table is needed the way the
// teacher's internal/transport.TransportFactory needed one for its
// WebSocket listeners.
//
// Grounded on the teacher's internal/transport.TransportFactory
// (connection-table-per-peer, lazy dial, safeWrapper-style mutex
// serialization) and transport/tcp.StartTCPListener (accept loop
// shape) — explicitly WITHOUT the teacher's logToFile Windows debug
// hack (internal/transport/transport.go), which has no place in a
// portable library and is dropped per DESIGN.md.
package rdma

import (
	"encoding/binary"
	"net"
	"strconv"
	"sync"

	"github.com/momentics/portals4ni/api"
	"github.com/rs/zerolog"
)

// addrOf renders a ProcessID as a dialable "ip:port" string per spec
// §6's NID/PID-as-IPv4/port convention.
func addrOf(id api.ProcessID) string {
	var ip [4]byte
	binary.BigEndian.PutUint32(ip[:], uint32(id.NID))
	return net.JoinHostPort(net.IP(ip[:]).String(), strconv.Itoa(int(id.PID)))
}

// Transport is one NI's TCP-backed RDMA-family transport: outbound
// frames are dialed lazily per destination; inbound frames arrive on
// an accept loop bound to self's own NID:PID and are fanned into a
// shared completion queue (spec §4.3, §4.8's progress-engine Poll
// contract).
type Transport struct {
	self api.ProcessID
	log  zerolog.Logger
	ln   net.Listener

	connMu sync.Mutex
	conns  map[api.ProcessID]*conn

	mu        sync.Mutex
	posted    []api.Buffer
	completed []api.Completion
	closed    bool
}

var _ api.Transport = (*Transport)(nil)

// Listen binds self's accept socket and starts the inbound read loop.
// Accepted connections are not attributed to a peer ProcessID; each
// frame's wire.Header carries its sender (see serveAccepted).
func Listen(self api.ProcessID, log zerolog.Logger) (*Transport, error) {
	ln, err := net.Listen("tcp", addrOf(self))
	if err != nil {
		return nil, err
	}
	t := &Transport{
		self:  self,
		log:   log.With().Str("component", "rdma.Transport").Logger(),
		ln:    ln,
		conns: make(map[api.ProcessID]*conn),
	}
	go t.acceptLoop()
	return t, nil
}

func (t *Transport) acceptLoop() {
	for {
		nc, err := t.ln.Accept()
		if err != nil {
			return
		}
		go t.serveAccepted(nc)
	}
}

// serveAccepted reads frames off a freshly accepted socket until it
// errors, delivering each into the next posted recv buffer. Peer
// identity isn't needed at this layer: every frame already carries the
// sender's SrcNID/SrcPID in its wire.Header (spec §6), which the
// progress engine's receive sub-FSM (spec §4.8) decodes, so the
// transport itself stays oblivious to who dialed in.
func (t *Transport) serveAccepted(nc net.Conn) {
	err := readFrames(nc, func(frame []byte) {
		t.deliver(frame)
	})
	if err != nil {
		t.log.Debug().Err(err).Msg("rdma: inbound connection closed")
	}
}

func (t *Transport) deliver(frame []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.posted) == 0 {
		t.log.Warn().Msg("rdma: dropping frame, no posted recv buffer")
		return
	}
	buf := t.posted[0]
	t.posted = t.posted[1:]
	n := copy(buf.Data, frame)
	buf.Data = buf.Data[:n]
	t.completed = append(t.completed, api.Completion{Buf: buf, Status: api.CompletionOK})
}

func (t *Transport) connFor(dest api.ProcessID) *conn {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	c, ok := t.conns[dest]
	if !ok {
		c = newConn(dest, addrOf(dest))
		t.conns[dest] = c
	}
	return c
}

// PostRecv makes buf eligible to receive the next inbound frame (spec
// §4.3).
func (t *Transport) PostRecv(buf api.Buffer) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return api.ErrTransportClosed
	}
	t.posted = append(t.posted, buf)
	return nil
}

// Send dials (if needed) and frames buf.Data to buf.Dest. inlineOK is
// accepted for interface compatibility; this backend always copies,
// since TCP has no provider-inline path.
func (t *Transport) Send(buf api.Buffer, inlineOK bool) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return api.ErrTransportClosed
	}
	c := t.connFor(buf.Dest)
	if err := c.writeFrame(buf.Data); err != nil {
		return api.NewError(api.NIUndeliverable, "rdma: send failed").WithContext("cause", err.Error())
	}
	return nil
}

// Poll harvests completions accumulated by the accept loop.
func (t *Transport) Poll() []api.Completion {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.completed
	t.completed = nil
	return out
}

// Close shuts down the listener and every outbound connection.
func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	var firstErr error
	if t.ln != nil {
		if err := t.ln.Close(); err != nil {
			firstErr = err
		}
	}
	t.connMu.Lock()
	for _, c := range t.conns {
		if err := c.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	t.connMu.Unlock()
	return firstErr
}

// Features reports this backend's capabilities (spec §4.3).
func Features() api.TransportFeatures {
	return api.TransportFeatures{ZeroCopy: false, Batch: false, NUMAAware: false, LockFree: false, SharedMemory: false, OS: []string{"linux", "darwin", "windows"}}
}
