// File: md/entry.go
// Author: momentics <momentics@gmail.com>
//
// Target-side list entries: LE (non-matching) and ME (matching),
// modeled as a tagged variant over a shared EntryCommon, exactly the
// re-architecture spec §9 asks for ("macro-based polymorphism between
// LE and ME -> a tagged variant Entry = Matching(ME) | NonMatching(LE)
// with a shared EntryCommon for match-irrelevant fields"). Grounded in
// the teacher's Buffer/Releaser split (api/buffer.go): EntryCommon
// plays the same "fields every variant needs" role Buffer does there.
package md

import (
	"github.com/momentics/portals4ni/api"
	"github.com/momentics/portals4ni/event"
	"github.com/momentics/portals4ni/iobuf"
)

// EntryCommon holds the fields shared by LE and ME (spec §3).
type EntryCommon struct {
	Iovec   iobuf.Iovec
	Length  uint64
	CT      *event.CT
	Options api.MDOptions

	Self api.Handle
	// consumed tracks bytes already matched against this entry, so
	// MANAGE_LOCAL offsets and min_free auto-unlink thresholds can be
	// evaluated (spec §4.4 steps 2/5).
	Consumed uint64
}

// MatchFields holds the ME-only matching criteria (spec §3).
type MatchFields struct {
	MatchBits  uint64
	IgnoreBits uint64
	ID         api.ProcessID
	MinFree    uint64
}

// Entry is the tagged Matching(ME) | NonMatching(LE) variant: Match is
// nil for a plain LE and non-nil for an ME.
type Entry struct {
	Common EntryCommon
	Match  *MatchFields
}

// IsME reports whether this Entry carries matching criteria.
func (e *Entry) IsME() bool { return e.Match != nil }

// Remaining returns the number of unconsumed bytes in the entry,
// honoring MANAGE_LOCAL bookkeeping.
func (e *Entry) Remaining() uint64 {
	if e.Common.Length < e.Common.Consumed {
		return 0
	}
	return e.Common.Length - e.Common.Consumed
}

// MatchesBits reports whether incoming match_bits satisfy this ME's
// match_bits/ignore_bits filter (spec §4.4 step 2, first bullet).
func (m *MatchFields) MatchesBits(incoming uint64) bool {
	return (incoming^m.MatchBits)&^m.IgnoreBits == 0
}

// PermitsOp reports whether op is one of this entry's declared
// OP_PUT/OP_GET/OP_ATOMIC options (spec §4.4 step 2, third bullet).
func (e *Entry) PermitsOp(op api.OpKind) bool {
	switch op {
	case api.OpPut:
		return e.Common.Options.Has(api.OptOpPut)
	case api.OpGet:
		return e.Common.Options.Has(api.OptOpGet)
	case api.OpAtomic, api.OpFetchAtomic, api.OpSwap:
		return e.Common.Options.Has(api.OptOpAtomic)
	default:
		return false
	}
}
