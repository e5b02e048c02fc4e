// File: md/md.go
// Author: momentics <momentics@gmail.com>
//
// Memory Descriptor: the initiator-side source/sink of an operation
// (spec §3 MD). Adapted from the teacher's api.Buffer (a zero-copy
// slice bound to a pool) generalized from one flat slice to the
// iovec-or-flat duality spec §3 requires, and from a buffer-pool
// back-reference to an event.EQ/event.CT back-reference.
package md

import (
	"github.com/momentics/portals4ni/api"
	"github.com/momentics/portals4ni/event"
	"github.com/momentics/portals4ni/iobuf"
)

// MD is a contiguous or scatter/gather source/sink of initiator data
// (spec §3).
type MD struct {
	// Exactly one of Flat/Iovec is meaningful, selected by
	// Options.Has(api.OptIovec).
	Flat  []byte
	Iovec iobuf.Iovec

	EQ      *event.EQ
	CT      *event.CT
	Options api.MDOptions

	// Self is the handle this MD was allocated under; stored so the
	// initiator state machine can validate ack_req/EQ/CT invariants at
	// submission (spec §3 "enforced at submission").
	Self api.Handle
}

// Len returns the MD's total addressable length.
func (m *MD) Len() int {
	if m.Options.Has(api.OptIovec) {
		return m.Iovec.Len()
	}
	return len(m.Flat)
}

// AsIovec returns m's data as an Iovec regardless of which
// representation it was bound with, so callers (iobuf.CopyOut/CopyIn)
// never need to branch on Options.Has(api.OptIovec).
func (m *MD) AsIovec() iobuf.Iovec {
	if m.Options.Has(api.OptIovec) {
		return m.Iovec
	}
	return iobuf.Iovec{{Base: m.Flat}}
}

// ValidateAckReq enforces spec §3's submission-time invariant:
// "ack_req = ACK requires an EQ on the MD; ack_req = CT_ACK requires a
// CT on the MD".
func (m *MD) ValidateAckReq(ack api.AckReq) error {
	switch ack {
	case api.AckFull:
		if m.EQ == nil {
			return &api.Error{Code: api.ArgInvalid, Message: "md: ACK requires an EQ bound to the MD"}
		}
	case api.AckCT:
		if m.CT == nil {
			return &api.Error{Code: api.ArgInvalid, Message: "md: CT_ACK requires a CT bound to the MD"}
		}
	}
	return nil
}
