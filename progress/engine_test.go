package progress

import (
	"context"
	"testing"
	"time"

	"github.com/momentics/portals4ni/api"
	"github.com/momentics/portals4ni/event"
	"github.com/momentics/portals4ni/initiator"
	"github.com/momentics/portals4ni/iobuf"
	"github.com/momentics/portals4ni/md"
	"github.com/momentics/portals4ni/pt"
	"github.com/momentics/portals4ni/transport/shmem"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// TestEngine_PutRoundTripsThroughTwoNIs drives a full Put from one
// initiator.XI, across a shmem.Transport, through a target.XT on the
// peer's progress.Engine, and back to an ACK event and CT increment on
// the initiator's MD (spec §8 scenario 1, end to end through C8).
func TestEngine_PutRoundTripsThroughTwoNIs(t *testing.T) {
	hub := shmem.NewHub()
	initID := api.ProcessID{NID: 1, PID: 1}
	tgtID := api.ProcessID{NID: 2, PID: 2}

	initTransport := shmem.NewTransport(hub, initID)
	tgtTransport := shmem.NewTransport(hub, tgtID)

	targetBuf := make([]byte, 64)
	tgtEQ := event.NewEQ(8)
	tgtCT := event.NewCT()
	entry := &md.Entry{
		Common: md.EntryCommon{
			Iovec:   iobuf.Iovec{{Base: targetBuf}},
			Length:  64,
			CT:      tgtCT,
			Options: api.OptOpPut | api.OptOpGet,
		},
		Match: &md.MatchFields{MatchBits: 0x1234, ID: api.ProcessID{NID: api.WildcardNID, PID: api.WildcardPID}},
	}
	table := pt.NewTable(api.Handle{Kind: api.KindPT, Index: 3}, tgtEQ, api.PTOptions(0))
	table.Append(pt.PriorityList, entry)

	ptLookup := func(idx uint32) (*pt.Table, bool) {
		if idx == 3 {
			return table, true
		}
		return nil, false
	}

	log := zerolog.Nop()
	tgtEngine := NewEngine(tgtTransport, tgtID, ptLookup, log)
	require.NoError(t, tgtEngine.PrimeRecvBuffers(4))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tgtEngine.Run(ctx)

	initEngine := NewEngine(initTransport, initID, func(uint32) (*pt.Table, bool) { return nil, false }, log)
	require.NoError(t, initEngine.PrimeRecvBuffers(4))
	go initEngine.Run(ctx)

	payload := []byte("0123456789abcdef")
	localMD := &md.MD{Flat: payload, EQ: event.NewEQ(8), CT: event.NewCT(), Options: api.OptEventCTAck}

	xi := initiator.New(initiator.Request{
		Op:           api.OpPut,
		Dest:         tgtID,
		PtIndex:      3,
		MatchBits:    0x1234,
		RemoteOffset: 8,
		Length:       uint64(len(payload)),
		AckReq:       api.AckCT,
	}, localMD, initEngine.Sender(tgtID), initiator.DefaultLimits())

	code := xi.Submit()
	require.Equal(t, api.OK, code)

	require.Eventually(t, func() bool {
		return tgtCT.Get().Success == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, payload, targetBuf[8:8+len(payload)])
	require.Equal(t, uint64(1), localMD.CT.Get().Success)
}
