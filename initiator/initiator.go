// File: initiator/initiator.go
// Author: momentics <momentics@gmail.com>
//
// Initiator state machine (spec §4.6, component C6): drives one
// outbound Put/Get/Atomic/FetchAtomic/Swap through prepare, send,
// completion wait, events and cleanup. Shares target's style of an
// explicit state field advanced by a single driving call (spec §9's
// redesign away from a coarse C while(1) switch), and implements
// event.Triggered so a CT can hand a TriggeredPut/Get/Atomic directly
// into state START once its threshold is met (spec §4.7).
package initiator

import (
	"fmt"

	"github.com/momentics/portals4ni/api"
	"github.com/momentics/portals4ni/event"
	"github.com/momentics/portals4ni/iobuf"
	"github.com/momentics/portals4ni/md"
	"github.com/momentics/portals4ni/wire"
)

// Limits is the submission-time length caps stepPrepReq enforces (spec
// §3 "length <= ni.limits.max_msg_size/max_atomic_size", §6). A copy of
// the fields ni.Limits carries rather than an import of that type,
// since ni already imports this package.
type Limits struct {
	MaxMsgSize    uint64
	MaxAtomicSize uint64
}

// DefaultLimits mirrors ni.DefaultLimits' values, for callers (tests,
// a Sender built outside an *ni.NI) with no ni.Limits of their own.
func DefaultLimits() Limits {
	return Limits{MaxMsgSize: 1 << 20, MaxAtomicSize: 4096}
}

// State enumerates the initiator descriptor's lifecycle (spec §4.6).
type State uint8

const (
	Start State = iota
	PrepReq
	WaitConn
	SendReq
	WaitComp
	SendError
	EarlySendEvent
	WaitRecv
	DataIn
	LateSendEvent
	AckEvent
	ReplyEvent
	Cleanup
	Error
	Done
)

func (s State) String() string {
	switch s {
	case Start:
		return "START"
	case PrepReq:
		return "PREP_REQ"
	case WaitConn:
		return "WAIT_CONN"
	case SendReq:
		return "SEND_REQ"
	case WaitComp:
		return "WAIT_COMP"
	case SendError:
		return "SEND_ERROR"
	case EarlySendEvent:
		return "EARLY_SEND_EVENT"
	case WaitRecv:
		return "WAIT_RECV"
	case DataIn:
		return "DATA_IN"
	case LateSendEvent:
		return "LATE_SEND_EVENT"
	case AckEvent:
		return "ACK_EVENT"
	case ReplyEvent:
		return "REPLY_EVENT"
	case Cleanup:
		return "CLEANUP"
	case Error:
		return "ERROR"
	case Done:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// Request describes one submitted operation (spec §3 XI, §4.6).
type Request struct {
	Op           api.OpKind
	Dest         api.ProcessID
	PtIndex      uint32
	MatchBits    uint64
	HdrData      uint64
	LocalOffset  uint64
	RemoteOffset uint64
	Length       uint64
	AckReq       api.AckReq
	AtomOp       api.AtomOp
	AtomType     api.AtomType
	Operand      []byte // CSWAP/MSWAP comparison operand
}

// Sender transmits one request packet and synchronously returns the
// peer's response. The progress engine's real implementation threads
// this through WAIT_CONN/SEND_REQ/WAIT_COMP/WAIT_RECV via the transport
// and the receive sub-FSM (spec §4.8); tests and this package's own
// unit tests supply a direct in-process Sender.
type Sender func(hdr wire.Header, payload []byte) (respHdr wire.Header, respPayload []byte, err error)

// XI is one in-flight initiator descriptor (spec §3).
type XI struct {
	State State

	req Request
	md  *md.MD

	resp        wire.Header
	respPayload []byte
	sendErr     error
	niFail      api.ErrorCode

	sender Sender
	limits Limits
}

var _ event.Triggered = (*XI)(nil)

// New constructs an XI bound to bindMD, ready for Submit or as a
// TriggeredPut/Get/Atomic target of event.CT.AddTriggered. limits
// gates the per-operation length invariants stepPrepReq enforces.
func New(req Request, bindMD *md.MD, sender Sender, limits Limits) *XI {
	return &XI{State: Start, req: req, md: bindMD, sender: sender, limits: limits}
}

// Fire implements event.Triggered: a triggered op transitions directly
// into state START (spec §4.7 "removed and handed to C6 in state
// START"), run on its own goroutine so the firing CT update is never
// blocked by network I/O.
func (xi *XI) Fire() {
	go xi.Submit()
}

// Submit drives xi to completion, returning the terminal api.ErrorCode
// (api.OK on success).
func (xi *XI) Submit() api.ErrorCode {
	for xi.State != Done {
		switch xi.State {
		case Start:
			xi.State = PrepReq
		case PrepReq:
			xi.stepPrepReq()
		case SendReq:
			xi.stepSendReq()
		case SendError:
			xi.stepSendError()
		case EarlySendEvent:
			xi.stepEarlySendEvent()
		case WaitRecv:
			xi.stepWaitRecv()
		case DataIn:
			xi.stepDataIn()
		case LateSendEvent:
			xi.State = lateEventState(xi.req.Op)
		case AckEvent:
			xi.stepAckEvent()
		case ReplyEvent:
			xi.stepReplyEvent()
		case Cleanup:
			xi.State = Done
		case Error:
			// A mid-flight failure still must reach ACK_EVENT/REPLY_EVENT:
			// "Failure ... always increments ct.failure" is applied there,
			// not in a separate terminal path (spec §4.6).
			xi.State = lateEventState(xi.req.Op)
		default:
			xi.State = Done
		}
	}
	return xi.niFail
}

// stepPrepReq validates submission-time length invariants and the
// atomic op matrix (spec §4.6 "MUST be enforced at submission", §7
// "submission errors are returned synchronously") and builds the
// outbound header.
func (xi *XI) stepPrepReq() {
	if err := xi.validateSubmitLength(); err != nil {
		xi.niFail = api.ArgInvalid
		xi.sendErr = err
		xi.State = SendError
		return
	}
	if xi.req.Op == api.OpAtomic || xi.req.Op == api.OpFetchAtomic || xi.req.Op == api.OpSwap {
		usesSwap := xi.req.Op == api.OpSwap
		usesOperand := xi.req.Operand != nil
		if err := iobuf.ValidateAtomMatrix(xi.req.AtomOp, xi.req.AtomType, usesSwap, usesOperand); err != nil {
			xi.niFail = api.ArgInvalid
			xi.sendErr = err
			xi.State = SendError
			return
		}
	}
	if err := xi.md.ValidateAckReq(xi.req.AckReq); err != nil {
		xi.niFail = api.ArgInvalid
		xi.sendErr = err
		xi.State = SendError
		return
	}
	xi.State = SendReq
}

// validateSubmitLength enforces spec §3's "length <= ni.limits.
// max_msg_size" (Put/Get) and "length <= ni.limits.max_atomic_size"
// (Atomic/FetchAtomic/Swap), plus §4.6's "Swap operations with an
// operand require length <= sizeof(atom_type)" for the CSWAP family
// and MSWAP.
func (xi *XI) validateSubmitLength() error {
	switch xi.req.Op {
	case api.OpPut, api.OpGet:
		if xi.req.Length > xi.limits.MaxMsgSize {
			return fmt.Errorf("initiator: length %d exceeds max_msg_size %d", xi.req.Length, xi.limits.MaxMsgSize)
		}
	case api.OpAtomic, api.OpFetchAtomic, api.OpSwap:
		if xi.req.Length > xi.limits.MaxAtomicSize {
			return fmt.Errorf("initiator: length %d exceeds max_atomic_size %d", xi.req.Length, xi.limits.MaxAtomicSize)
		}
		if xi.req.Op == api.OpSwap && xi.req.Operand != nil {
			elemSize := xi.req.AtomType.Size()
			if xi.req.Length > uint64(elemSize) {
				return fmt.Errorf("initiator: swap length %d exceeds atom type size %d", xi.req.Length, elemSize)
			}
			if len(xi.req.Operand) > elemSize {
				return fmt.Errorf("initiator: swap operand length %d exceeds atom type size %d", len(xi.req.Operand), elemSize)
			}
		}
	}
	return nil
}

func (xi *XI) stepSendReq() {
	var flags wire.Flags
	if xi.req.AckReq != api.AckNone {
		flags |= wire.FlagAckReq
	}
	hdr := wire.Header{
		Version:      wire.CurrentVersion,
		Operation:    xi.req.Op,
		Flags:        flags,
		PtIndex:      xi.req.PtIndex,
		MatchBits:    xi.req.MatchBits,
		RemoteOffset: xi.req.RemoteOffset,
		Length:       xi.req.Length,
		HdrData:      xi.req.HdrData,
		AtomOp:       xi.req.AtomOp,
		AtomType:     xi.req.AtomType,
		AckReq:       xi.req.AckReq,
	}

	var payload []byte
	if xi.req.Op != api.OpGet {
		payload = make([]byte, xi.req.Length)
		if err := iobuf.CopyOut(payload, xi.md.AsIovec(), int(xi.req.LocalOffset), int(xi.req.Length)); err != nil {
			xi.niFail = api.NISegv
			xi.sendErr = err
			xi.State = SendError
			return
		}
		// Operand-bearing swaps (CSWAP family, MSWAP) carry their
		// comparison operand appended after the source bytes — the wire
		// header has no dedicated operand field, so the target side
		// (target.stepSwapDataIn) splits the payload back in two halves
		// using the same iobuf.OpUsesOperand test (spec §4.6).
		if xi.req.Op == api.OpSwap && iobuf.OpUsesOperand(xi.req.AtomOp) && xi.req.Operand != nil {
			payload = append(payload, xi.req.Operand...)
		}
	}

	resp, respPayload, err := xi.sender(hdr, payload)
	if err != nil {
		xi.niFail = api.NIUndeliverable
		xi.sendErr = err
		xi.State = SendError
		return
	}
	xi.resp = resp
	xi.respPayload = respPayload
	xi.niFail = api.OK
	xi.State = EarlySendEvent
}

// stepSendError implements the SEND_ERROR branch: a submission-time or
// transport failure skips the wire round-trip and goes straight to
// event emission with a failure code (spec §4.6 "Failure ... always
// increments ct.failure").
func (xi *XI) stepSendError() {
	xi.State = EarlySendEvent
}

// stepEarlySendEvent implements "SEND event is suppressed when MD has
// EVENT_SEND_DISABLE" (spec §4.6).
func (xi *XI) stepEarlySendEvent() {
	if xi.md.EQ != nil && !xi.md.Options.Has(api.OptEventSendDisable) && xi.shouldEmitEvent() {
		xi.md.EQ.Enqueue(api.Event{
			Type:      api.EventSend,
			PtIndex:   xi.req.PtIndex,
			MatchBits: xi.req.MatchBits,
			NiFail:    xi.niFail,
		})
	}
	if xi.niFail != api.OK {
		xi.State = lateEventState(xi.req.Op)
		return
	}
	xi.State = WaitRecv
}

func (xi *XI) stepWaitRecv() {
	if xi.req.Op == api.OpGet || xi.req.Op == api.OpFetchAtomic || xi.req.Op == api.OpSwap {
		xi.State = DataIn
		return
	}
	xi.State = LateSendEvent
}

func (xi *XI) stepDataIn() {
	if len(xi.respPayload) > 0 {
		if err := iobuf.CopyIn(xi.md.AsIovec(), int(xi.req.LocalOffset), xi.respPayload, len(xi.respPayload)); err != nil {
			xi.niFail = api.NISegv
			xi.State = Error
			return
		}
	}
	xi.State = LateSendEvent
}

func lateEventState(op api.OpKind) State {
	switch op {
	case api.OpGet, api.OpFetchAtomic, api.OpSwap:
		return ReplyEvent
	default:
		return AckEvent
	}
}

// stepAckEvent implements the PUT/ATOMIC ack-event path: CT increment
// gated on EVENT_CT_ACK, units bytes iff EVENT_CT_BYTES (spec §4.6).
func (xi *XI) stepAckEvent() {
	if xi.md.EQ != nil && xi.shouldEmitEvent() {
		xi.md.EQ.Enqueue(api.Event{
			Type:      api.EventAck,
			PtIndex:   xi.req.PtIndex,
			MatchBits: xi.req.MatchBits,
			MLength:   xi.req.Length,
			RLength:   xi.req.Length,
			NiFail:    xi.niFail,
		})
	}
	xi.creditCT(xi.md.Options.Has(api.OptEventCTAck), xi.req.Length)
	xi.State = Cleanup
}

// stepReplyEvent implements the GET/FETCH/SWAP reply-event path.
func (xi *XI) stepReplyEvent() {
	mlength := uint64(len(xi.respPayload))
	if xi.md.EQ != nil && xi.shouldEmitEvent() {
		xi.md.EQ.Enqueue(api.Event{
			Type:      api.EventReply,
			PtIndex:   xi.req.PtIndex,
			MatchBits: xi.req.MatchBits,
			MLength:   mlength,
			RLength:   xi.req.Length,
			NiFail:    xi.niFail,
		})
	}
	xi.creditCT(xi.md.Options.Has(api.OptEventCTReply), mlength)
	xi.State = Cleanup
}

// creditCT implements "Failure ... always increments ct.failure" and
// the gated success-credit path (spec §4.6); mlength is the number of
// bytes actually moved by this operation, credited when EVENT_CT_BYTES
// is set (spec §8 scenario 2: "CT.success += 32 if EVENT_CT_BYTES", the
// matched/truncated length, not the requested length).
func (xi *XI) creditCT(gated bool, mlength uint64) {
	if xi.md.CT == nil {
		return
	}
	if api.IsNiFail(xi.niFail) {
		xi.md.CT.IncFailure()
		return
	}
	if !gated {
		return
	}
	delta := event.CTEvent{Success: 1}
	if xi.md.Options.Has(api.OptEventCTBytes) {
		delta = event.CTEvent{Success: mlength}
	}
	xi.md.CT.Inc(delta)
}

// shouldEmitEvent implements "SUCCESS-class events are suppressed
// when EVENT_SUCCESS_DISABLE and no failure occurred" (spec §4.6).
func (xi *XI) shouldEmitEvent() bool {
	if xi.niFail != api.OK {
		return true
	}
	return !xi.md.Options.Has(api.OptEventSuccessDisable)
}
