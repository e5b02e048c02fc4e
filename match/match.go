// File: match/match.go
// Author: momentics <momentics@gmail.com>
//
// The matching engine (spec §4.4, component C4): per-portal-index
// priority & overflow lists, tag and permission matching, unexpected-
// message handling. Grounded in the teacher's internal/concurrency
// scheduling style (scan a snapshot outside the lock, then act), and
// in the original portals4 ptl_recv.c dispatch this spec's distillation
// summarizes.
package match

import (
	"github.com/momentics/portals4ni/api"
	"github.com/momentics/portals4ni/md"
	"github.com/momentics/portals4ni/pt"
)

// Request describes one inbound request awaiting a match (spec §4.4).
type Request struct {
	PtIndex      uint32
	MatchBits    uint64
	Initiator    api.ProcessID
	RemoteOffset uint64
	Length       uint64
	Operation    api.OpKind
	AuthID       uint32 // 0 == unauthenticated / wildcard caller
}

// Outcome enumerates the terminal disposition of a match attempt.
type Outcome uint8

const (
	OutcomeMatched Outcome = iota
	OutcomePTDisabled
	OutcomeNoMatch
	OutcomePermViolation
)

// Result is what the target state machine needs to proceed into
// GET_LENGTH/DATA_IN/DATA_OUT (spec §4.5).
type Result struct {
	Outcome      Outcome
	Entry        *md.Entry
	Offset       uint64 // effective offset: remote_offset, or the locally managed cursor
	AutoUnlinked bool
	FromOverflow bool
}

// Match resolves req against table's priority then overflow lists,
// implementing spec §4.4 steps 1-7.
func Match(table *pt.Table, req Request) Result {
	if table.Status == api.PTDisabled {
		return Result{Outcome: OutcomePTDisabled}
	}
	if table.Status == api.PTFlowControlStopped {
		return Result{Outcome: OutcomePTDisabled}
	}

	priority, overflow := table.Snapshot()

	if e, offset, ok := scan(priority, req); ok {
		return bind(table, e, offset, req, false)
	}
	if e, offset, ok := scan(overflow, req); ok {
		return bind(table, e, offset, req, true)
	}
	return Result{Outcome: OutcomeNoMatch}
}

// scan implements spec §4.4 step 2/3: earliest-appended entry wins.
func scan(list []*md.Entry, req Request) (*md.Entry, uint64, bool) {
	for _, e := range list {
		if matches(e, req) {
			offset := effectiveOffset(e, req)
			return e, offset, true
		}
	}
	return nil, 0, false
}

func matches(e *md.Entry, req Request) bool {
	if !e.PermitsOp(req.Operation) {
		return false
	}
	if e.IsME() {
		m := e.Match
		if !m.MatchesBits(req.MatchBits) {
			return false
		}
		if !m.ID.Matches(req.Initiator) {
			return false
		}
	}
	offset := effectiveOffset(e, req)
	if e.Common.Options.Has(api.OptNoTruncate) {
		if req.Length > e.Common.Length-offset {
			return false
		}
	}
	return true
}

func effectiveOffset(e *md.Entry, req Request) uint64 {
	if e.Common.Options.Has(api.OptManageLocal) {
		return e.Common.Consumed
	}
	return req.RemoteOffset
}

// bind finalizes a match: applies auto-unlink and permission checks
// (spec §4.4 steps 5/6), and advances the entry's MANAGE_LOCAL cursor.
func bind(table *pt.Table, e *md.Entry, offset uint64, req Request, fromOverflow bool) Result {
	if e.Common.Options.Has(api.OptAuthUseJid) && req.AuthID != 0 {
		if m := e.Match; m != nil && m.ID.NID != api.WildcardNID && uint32(m.ID.NID) != req.AuthID {
			return Result{Outcome: OutcomePermViolation}
		}
	}

	mlength := req.Length
	if avail := e.Common.Length - offset; mlength > avail {
		mlength = avail
	}
	e.Common.Consumed = offset + mlength

	autoUnlinked := false
	crossedMinFree := e.IsME() && e.Match.MinFree > 0 && e.Common.Length-e.Common.Consumed < e.Match.MinFree
	if e.Common.Options.Has(api.OptUseOnce) || crossedMinFree {
		table.Unlink(e)
		autoUnlinked = true
	}

	return Result{
		Outcome:      OutcomeMatched,
		Entry:        e,
		Offset:       offset,
		AutoUnlinked: autoUnlinked,
		FromOverflow: fromOverflow,
	}
}
