// File: transport/rdma/conn.go
// Author: momentics <momentics@gmail.com>
//
// Per-destination TCP connection state, adapted from the teacher's
// internal/transport TransportFactory connection idiom (connect once,
// reuse, reconnect on error) and grounded on the original's bounded
// connect retry (ptl_conn.c: retry_resolve_addr = retry_resolve_route =
// retry_connect = 3) rather than retrying forever or failing on the
// first transient error.
package rdma

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/momentics/portals4ni/api"
)

// maxConnectRetries mirrors ptl_conn.c's retry_connect/retry_resolve_*
// constants: three attempts before the connection is declared dead.
const maxConnectRetries = 3

const connectRetryDelay = 20 * time.Millisecond

// frameHeaderSize is the length prefix put in front of every wire.Header
// + payload frame sent over a conn, since TCP has no message boundaries.
const frameHeaderSize = 4

// conn owns one TCP socket to a single peer ProcessID, serializing
// writes and fanning reads out to the owning Transport's completion
// queue.
type conn struct {
	peer api.ProcessID
	addr string

	mu     sync.Mutex
	nc     net.Conn
	closed bool
}

func dial(addr string) (net.Conn, error) {
	var lastErr error
	for attempt := 0; attempt < maxConnectRetries; attempt++ {
		nc, err := net.DialTimeout("tcp", addr, time.Second)
		if err == nil {
			return nc, nil
		}
		lastErr = err
		time.Sleep(connectRetryDelay)
	}
	return nil, fmt.Errorf("rdma: dial %s failed after %d attempts: %w", addr, maxConnectRetries, lastErr)
}

func newConn(peer api.ProcessID, addr string) *conn {
	return &conn{peer: peer, addr: addr}
}

func newConnFromAccepted(peer api.ProcessID, nc net.Conn) *conn {
	return &conn{peer: peer, nc: nc}
}

// ensure lazily dials the peer if no live socket exists yet.
func (c *conn) ensure() (net.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, api.ErrTransportClosed
	}
	if c.nc != nil {
		return c.nc, nil
	}
	nc, err := dial(c.addr)
	if err != nil {
		return nil, err
	}
	c.nc = nc
	return nc, nil
}

// writeFrame sends one length-prefixed frame, serialized against
// concurrent writers on the same conn.
func (c *conn) writeFrame(data []byte) error {
	nc, err := c.ensure()
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var lenBuf [frameHeaderSize]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := nc.Write(lenBuf[:]); err != nil {
		c.dropLocked()
		return err
	}
	if _, err := nc.Write(data); err != nil {
		c.dropLocked()
		return err
	}
	return nil
}

// dropLocked discards the socket so the next ensure() reconnects. Caller
// holds c.mu.
func (c *conn) dropLocked() {
	if c.nc != nil {
		c.nc.Close()
		c.nc = nil
	}
}

func (c *conn) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.nc != nil {
		err := c.nc.Close()
		c.nc = nil
		return err
	}
	return nil
}

// readFrames blocks reading length-prefixed frames off nc until it
// errors or closes, invoking onFrame for each complete frame.
func readFrames(nc net.Conn, onFrame func([]byte)) error {
	var lenBuf [frameHeaderSize]byte
	for {
		if _, err := readFull(nc, lenBuf[:]); err != nil {
			return err
		}
		n := binary.LittleEndian.Uint32(lenBuf[:])
		buf := make([]byte, n)
		if _, err := readFull(nc, buf); err != nil {
			return err
		}
		onFrame(buf)
	}
}

func readFull(nc net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := nc.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
