// File: api/buffer.go
// Author: momentics <momentics@gmail.com>
//
// Buffer is the zero-copy memory slice shared between the transport and
// iobuf layers. Adapted from the teacher's api/buffer.go: the Kind
// field here holds a BufKind tag (spec §4.2's {FREE, SEND, RECV, RDMA,
// TGT, INIT, SHMEM_SEND, SHMEM_RETURN}) instead of a raw size class,
// since size classing is internal to the slab pool.

package api

// BufKind tags a transfer buffer's role in the progress engine's
// receive sub-FSM (spec §4.2, §4.8).
type BufKind uint8

const (
	BufFree BufKind = iota
	BufSend
	BufRecv
	BufRDMA
	BufTgt
	BufInit
	BufShmemSend
	BufShmemReturn
)

// Releaser decouples Buffer from a concrete pool implementation.
type Releaser interface {
	Put(Buffer)
}

// Buffer represents a zero-copy memory slice: a transport MTU-sized
// slab carrying a packet header area and a payload area (spec §4.2).
type Buffer struct {
	Data  []byte
	Kind  BufKind
	Pool  Releaser
	Dest  ProcessID // destination for an outbound Buffer (api/transport.go Send)
	NUMA  int
}

// Bytes returns the full byte slice backing this Buffer.
func (b Buffer) Bytes() []byte { return b.Data }

// Release returns the buffer to its owning pool.
func (b Buffer) Release() {
	if b.Pool != nil {
		b.Pool.Put(b)
	}
}

// Slice returns a new Buffer view sharing the same underlying memory.
func (b Buffer) Slice(from, to int) Buffer {
	if from < 0 || to > len(b.Data) || from > to {
		return Buffer{Kind: b.Kind, Pool: b.Pool, NUMA: b.NUMA}
	}
	return Buffer{Data: b.Data[from:to], Kind: b.Kind, Pool: b.Pool, NUMA: b.NUMA, Dest: b.Dest}
}
