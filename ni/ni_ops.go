// File: ni/ni_ops.go
// Author: momentics <momentics@gmail.com>
//
// MD/CT/EQ allocation operations bound to this NI's pools (spec §6
// MDBind/MDRelease, CTAlloc/CTFree, EQAlloc/EQFree). Split from ni.go
// since these are user-facing allocation entry points rather than
// lifecycle/bootstrap concerns.
package ni

import (
	"github.com/momentics/portals4ni/api"
	"github.com/momentics/portals4ni/event"
	"github.com/momentics/portals4ni/initiator"
	"github.com/momentics/portals4ni/iobuf"
	"github.com/momentics/portals4ni/md"
)

// MDBind allocates and initializes an MD over data, honoring
// ni.Limits.MaxMDs (spec §6 MDBind, §3 invariant "length <=
// ni.limits.max_msg_size").
func (ni *NI) MDBind(data []byte, eq *event.EQ, ct *event.CT, opts api.MDOptions) (api.Handle, *md.MD, error) {
	if uint64(len(data)) > ni.Limits.MaxMsgSize {
		return api.NullHandle, nil, api.NewError(api.ArgInvalid, "ni: MD length exceeds max_msg_size")
	}
	h, m, err := ni.mds.Alloc()
	if err != nil {
		return api.NullHandle, nil, err
	}
	m.Flat = data
	m.EQ = eq
	m.CT = ct
	m.Options = opts
	m.Self = h
	return h, m, nil
}

// MDBindIovec is MDBind's scatter/gather variant (spec §3 MD.iovec,
// OptIovec).
func (ni *NI) MDBindIovec(iov iobuf.Iovec, eq *event.EQ, ct *event.CT, opts api.MDOptions) (api.Handle, *md.MD, error) {
	if uint64(iov.Len()) > ni.Limits.MaxMsgSize {
		return api.NullHandle, nil, api.NewError(api.ArgInvalid, "ni: MD length exceeds max_msg_size")
	}
	if len(iov) > ni.Limits.MaxIovecs {
		return api.NullHandle, nil, api.NewError(api.ArgInvalid, "ni: iovec segment count exceeds max_iovecs")
	}
	h, m, err := ni.mds.Alloc()
	if err != nil {
		return api.NullHandle, nil, err
	}
	m.Iovec = iov
	m.EQ = eq
	m.CT = ct
	m.Options = opts | api.OptIovec
	m.Self = h
	return h, m, nil
}

// MDRelease implements MDRelease (spec §3 invariant "An MD may not be
// released while any XI references it" — enforced by the pool's
// refcount, bumped by every in-flight XI via Acquire/Release on h).
func (ni *NI) MDRelease(h api.Handle) error {
	return ni.mds.Release(h)
}

// CTAlloc reserves a counting event (spec §6 CTAlloc).
func (ni *NI) CTAlloc() (api.Handle, *event.CT, error) {
	h, slot, err := ni.cts.Alloc()
	if err != nil {
		return api.NullHandle, nil, err
	}
	*slot = event.NewCT()
	return h, *slot, nil
}

// CTFree releases a counting event (spec §6 CTFree).
func (ni *NI) CTFree(h api.Handle) error {
	return ni.cts.Release(h)
}

// CTCancelTriggered implements PtlCTCancelTriggered (spec §6): drops h's
// pending triggered ops with a failure increment each, without
// cancelling h itself.
func (ni *NI) CTCancelTriggered(h api.Handle) error {
	ct, err := ni.cts.Lookup(h)
	if err != nil {
		return err
	}
	(*ct).CancelTriggered()
	return nil
}

// CTPoll implements PtlCTPoll (spec §6, §4.7 ct_poll): blocks until the
// first of handles reaches its paired threshold.
func (ni *NI) CTPoll(handles []api.Handle, thresholds []uint64) (int, event.CTEvent, error) {
	cts := make([]*event.CT, len(handles))
	for i, h := range handles {
		ct, err := ni.cts.Lookup(h)
		if err != nil {
			return -1, event.CTEvent{}, err
		}
		cts[i] = *ct
	}
	return event.CTPoll(cts, thresholds)
}

// EQPoll implements PtlEQPoll (spec §6, §4.7 eq_poll): blocks until the
// first of handles has an event ready.
func (ni *NI) EQPoll(handles []api.Handle) (int, api.Event, error) {
	eqs := make([]*event.EQ, len(handles))
	for i, h := range handles {
		eq, err := ni.eqs.Lookup(h)
		if err != nil {
			return -1, api.Event{}, err
		}
		eqs[i] = *eq
	}
	return event.EQPoll(eqs)
}

// EQAlloc reserves an event queue of the given capacity (spec §6
// EQAlloc).
func (ni *NI) EQAlloc(capacity int) (api.Handle, *event.EQ, error) {
	h, slot, err := ni.eqs.Alloc()
	if err != nil {
		return api.NullHandle, nil, err
	}
	*slot = event.NewEQ(capacity)
	return h, *slot, nil
}

// EQFree releases an event queue (spec §6 EQFree).
func (ni *NI) EQFree(h api.Handle) error {
	return ni.eqs.Release(h)
}

// NewInitiator is the submission entry point for Put/Get/Atomic/
// FetchAtomic/Swap (spec §3 XI, §6): it is the home for the
// length invariants spec §3/§6 require at submission
// ("length <= ni.limits.max_msg_size" for Put/Get, "length <=
// ni.limits.max_atomic_size" for Atomic/FetchAtomic/Swap), enforced by
// initiator.XI.stepPrepReq against the Limits bound here rather than at
// a separate NI-level check, so the returned XI always carries them
// regardless of whether it is driven directly via Submit or later via
// a triggered Fire.
func (ni *NI) NewInitiator(req initiator.Request, bindMD *md.MD) *initiator.XI {
	limits := initiator.Limits{MaxMsgSize: ni.Limits.MaxMsgSize, MaxAtomicSize: ni.Limits.MaxAtomicSize}
	return initiator.New(req, bindMD, ni.Sender(req.Dest), limits)
}
