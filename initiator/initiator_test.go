package initiator

import (
	"testing"
	"time"

	"github.com/momentics/portals4ni/api"
	"github.com/momentics/portals4ni/event"
	"github.com/momentics/portals4ni/iobuf"
	"github.com/momentics/portals4ni/md"
	"github.com/momentics/portals4ni/wire"
	"github.com/stretchr/testify/require"
)

func newMD(data []byte, opts api.MDOptions) *md.MD {
	return &md.MD{Flat: data, Options: opts, EQ: event.NewEQ(8), CT: event.NewCT()}
}

// echoSender is a Sender stub that always acks.
func echoSender(hdr wire.Header, payload []byte) (wire.Header, []byte, error) {
	return wire.Header{Operation: api.OpAck}, nil, nil
}

// TestXI_PutWithACK exercises spec §8 scenario 1's initiator side: SEND
// then ACK events, CT credited when EVENT_CT_ACK is set.
func TestXI_PutWithACK(t *testing.T) {
	data := make([]byte, 64)
	for i := range data {
		data[i] = byte(i)
	}
	source := newMD(data, api.OptEventCTAck)

	xi := New(Request{
		Op: api.OpPut, PtIndex: 3, MatchBits: 0x1234,
		LocalOffset: 0, RemoteOffset: 8, Length: 16, AckReq: api.AckFull,
	}, source, echoSender, DefaultLimits())

	code := xi.Submit()
	require.Equal(t, api.OK, code)
	require.Equal(t, Done, xi.State)

	ev1, err := source.EQ.Get()
	require.NoError(t, err)
	require.Equal(t, api.EventSend, ev1.Type)

	ev2, err := source.EQ.Get()
	require.NoError(t, err)
	require.Equal(t, api.EventAck, ev2.Type)

	require.Equal(t, uint64(1), source.CT.Get().Success)
}

// TestXI_GetCopiesReplyIntoLocalMD exercises spec §8 scenario 2's
// successful-match branch on the initiator side.
func TestXI_GetCopiesReplyIntoLocalMD(t *testing.T) {
	local := make([]byte, 40)
	source := newMD(local, api.OptEventCTReply|api.OptEventCTBytes)

	replyPayload := make([]byte, 32)
	for i := range replyPayload {
		replyPayload[i] = byte(i + 1)
	}
	sender := func(hdr wire.Header, payload []byte) (wire.Header, []byte, error) {
		return wire.Header{Operation: api.OpReply}, replyPayload, nil
	}

	xi := New(Request{Op: api.OpGet, Length: 40}, source, sender, DefaultLimits())
	code := xi.Submit()
	require.Equal(t, api.OK, code)
	require.Equal(t, replyPayload, local[:32])
	require.Equal(t, uint64(32), source.CT.Get().Success)
}

// TestXI_BadAtomMatrixFailsAtSubmission exercises spec §4.6's
// submission-time atomic-matrix enforcement.
func TestXI_BadAtomMatrixFailsAtSubmission(t *testing.T) {
	source := newMD(make([]byte, 8), 0)
	xi := New(Request{
		Op: api.OpAtomic, AtomOp: api.AtomLOR, AtomType: api.AtomFloat32, Length: 4,
	}, source, echoSender, DefaultLimits())

	code := xi.Submit()
	require.Equal(t, api.ArgInvalid, code)
}

// TestXI_UndeliverableAlwaysIncrementsFailure exercises spec §4.6
// "Failure ... always increments ct.failure", regardless of
// EVENT_CT_ACK.
func TestXI_UndeliverableAlwaysIncrementsFailure(t *testing.T) {
	source := newMD(make([]byte, 8), 0)
	failSender := func(hdr wire.Header, payload []byte) (wire.Header, []byte, error) {
		return wire.Header{}, nil, assertErr
	}
	xi := New(Request{Op: api.OpPut, Length: 4, AckReq: api.AckCT}, source, failSender, DefaultLimits())
	code := xi.Submit()
	require.Equal(t, api.NIUndeliverable, code)
	require.Equal(t, uint64(1), source.CT.Get().Failure)
}

// TestXI_TriggeredFiresFromCT exercises spec §8 scenario 5's initiator
// side: a triggered Put fires exactly once, driven by its bound CT.
func TestXI_TriggeredFiresFromCT(t *testing.T) {
	ct := event.NewCT()
	source := &md.MD{Flat: make([]byte, 8), EQ: event.NewEQ(4)}

	fired := make(chan struct{}, 1)
	sender := func(hdr wire.Header, payload []byte) (wire.Header, []byte, error) {
		fired <- struct{}{}
		return wire.Header{Operation: api.OpAck}, nil, nil
	}
	xi := New(Request{Op: api.OpPut, Length: 4}, source, sender, DefaultLimits())

	ct.Set(event.CTEvent{Success: 2})
	ct.AddTriggered(5, xi)
	ct.Inc(event.CTEvent{Success: 1})
	ct.Inc(event.CTEvent{Success: 1})
	ct.Inc(event.CTEvent{Success: 1})

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("triggered XI did not fire")
	}
}

// TestXI_OversizeLengthFailsAtSubmission exercises spec §3's "length <=
// ni.limits.max_msg_size/max_atomic_size" submission invariant: the
// request never reaches the sender at all.
func TestXI_OversizeLengthFailsAtSubmission(t *testing.T) {
	source := newMD(make([]byte, 8), 0)
	sent := false
	sender := func(hdr wire.Header, payload []byte) (wire.Header, []byte, error) {
		sent = true
		return wire.Header{Operation: api.OpAck}, nil, nil
	}

	xi := New(Request{Op: api.OpPut, Length: 64}, source, sender, Limits{MaxMsgSize: 32, MaxAtomicSize: 4096})
	code := xi.Submit()
	require.Equal(t, api.ArgInvalid, code)
	require.False(t, sent)
}

// TestXI_OversizeSwapOperandFailsAtSubmission exercises the Swap
// submission check that the operand fits in one atom_type element (an
// 8-byte operand against an int32 swap).
func TestXI_OversizeSwapOperandFailsAtSubmission(t *testing.T) {
	source := newMD(make([]byte, 8), 0)
	xi := New(Request{
		Op: api.OpSwap, AtomOp: api.AtomCSwap, AtomType: api.AtomInt32, Length: 4,
		Operand: make([]byte, 8),
	}, source, echoSender, DefaultLimits())

	code := xi.Submit()
	require.Equal(t, api.ArgInvalid, code)
}

var assertErr = &api.Error{Code: api.NIUndeliverable, Message: "test: simulated send failure"}

var _ = iobuf.CopyOut
