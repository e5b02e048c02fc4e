// File: api/transport.go
// Author: momentics <momentics@gmail.com>
//
// Defines the transport abstraction (spec §4.3): a uniform send/receive
// contract over the RDMA and shared-memory backends. Adapted from the
// teacher's api/transport.go NetConn contract, generalized from a single
// full-duplex connection to the NI-wide post_recv/send/poll surface
// spec §4.3 actually asks for.

package api

// CompletionStatus reports the outcome of a previously posted Send or
// post_recv buffer, as harvested by Poll.
type CompletionStatus uint8

const (
	CompletionOK CompletionStatus = iota
	CompletionError
)

// Completion pairs a harvested Buffer with its outcome.
type Completion struct {
	Buf    Buffer
	Status CompletionStatus
	Err    error
}

// Transport is the contract shared by the RDMA and shared-memory
// backends (spec §4.3). Both implementations MUST preserve per-
// destination FIFO order for all packets from a given initiator.
type Transport interface {
	// PostRecv makes buf eligible to receive one inbound packet.
	PostRecv(buf Buffer) error

	// Send asynchronously delivers buf.Data to the connection
	// identified by buf.Dest. May return before network completion;
	// completion is reported by Poll. inlineOK hints that the payload
	// may be copied into a provider-owned inline segment instead of
	// being sent by reference, when the backend supports it.
	Send(buf Buffer, inlineOK bool) error

	// Poll harvests outstanding completions without blocking.
	Poll() []Completion

	// Close releases backend resources.
	Close() error
}

// TransportFeatures advertises the optional capabilities of a Transport
// implementation, mirroring the teacher's api.TransportFeatures.
type TransportFeatures struct {
	ZeroCopy     bool
	Batch        bool
	NUMAAware    bool
	LockFree     bool
	SharedMemory bool
	OS           []string
}
