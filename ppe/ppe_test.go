package ppe

import (
	"testing"

	"github.com/momentics/portals4ni/api"
	"github.com/stretchr/testify/require"
)

func TestBootstrap_RegistersAllProcesses(t *testing.T) {
	a := api.ProcessID{NID: 1, PID: 1}
	b := api.ProcessID{NID: 2, PID: 2}

	pad := Bootstrap([]api.ProcessID{a, b})
	require.Len(t, pad.Slots, 2)
	require.True(t, pad.Slots[a].Alive)
	require.True(t, pad.Slots[b].Alive)
}

func TestCommPad_TransportRoundTrip(t *testing.T) {
	a := api.ProcessID{NID: 1, PID: 1}
	b := api.ProcessID{NID: 2, PID: 2}
	pad := Bootstrap([]api.ProcessID{a, b})

	ta := pad.Transport(a)
	tb := pad.Transport(b)

	require.NoError(t, tb.PostRecv(api.Buffer{Data: make([]byte, 16)}))
	require.NoError(t, ta.Send(api.Buffer{Data: []byte("hi"), Dest: b}, false))

	completions := tb.Poll()
	require.Len(t, completions, 1)
	require.Equal(t, "hi", string(completions[0].Buf.Data))
}

func TestMarkDead(t *testing.T) {
	a := api.ProcessID{NID: 1, PID: 1}
	pad := Bootstrap([]api.ProcessID{a})
	pad.MarkDead(a)
	require.False(t, pad.Slots[a].Alive)
}

func TestSegmentBytes_RoundsUpToPage(t *testing.T) {
	require.Equal(t, pageSize, SegmentBytes(1))
	require.Equal(t, pageSize, SegmentBytes(pageSize/64))
	require.Equal(t, 2*pageSize, SegmentBytes(pageSize/64+1))
}
