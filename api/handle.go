// File: api/handle.go
// Author: momentics <momentics@gmail.com>
//
// Packed, generation-checked object handle shared by every pool in this
// module (MD, LE/ME, CT, EQ, PT, XI, XT). Adapted from the teacher's
// handle-free `Buffer{Pool, Class}` convention in api/buffer.go: here the
// pool reference is replaced by an opaque, copyable triple so objects can
// be looked up across goroutines without pinning a pointer.

package api

import "fmt"

// Handle is a NULL-able reference to a pooled object: (pool kind, slot
// index, generation). The generation changes every time a slot is
// reused, so a stale Handle fails lookup instead of aliasing a new
// object (spec §4.1).
type Handle struct {
	Kind  PoolKind
	Index uint32
	Gen   uint32
}

// PoolKind tags which typed pool a Handle belongs to, purely for
// diagnostics and to catch cross-pool misuse early.
type PoolKind uint8

const (
	KindNone PoolKind = iota
	KindMD
	KindLE
	KindME
	KindCT
	KindEQ
	KindPT
	KindXI
	KindXT
	KindNI
)

func (k PoolKind) String() string {
	switch k {
	case KindMD:
		return "MD"
	case KindLE:
		return "LE"
	case KindME:
		return "ME"
	case KindCT:
		return "CT"
	case KindEQ:
		return "EQ"
	case KindPT:
		return "PT"
	case KindXI:
		return "XI"
	case KindXT:
		return "XT"
	case KindNI:
		return "NI"
	default:
		return "NONE"
	}
}

// NullHandle is the zero value; it never resolves to a live object.
var NullHandle = Handle{}

// IsNull reports whether h is the NULL handle.
func (h Handle) IsNull() bool { return h == NullHandle }

func (h Handle) String() string {
	if h.IsNull() {
		return "Handle(NULL)"
	}
	return fmt.Sprintf("Handle(%s:%d/%d)", h.Kind, h.Index, h.Gen)
}
