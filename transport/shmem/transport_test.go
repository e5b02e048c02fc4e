package shmem

import (
	"testing"

	"github.com/momentics/portals4ni/api"
	"github.com/stretchr/testify/require"
)

func TestTransport_SendPostRecvRoundTrip(t *testing.T) {
	hub := NewHub()
	a := api.ProcessID{NID: 1, PID: 1}
	b := api.ProcessID{NID: 2, PID: 2}

	ta := NewTransport(hub, a)
	tb := NewTransport(hub, b)

	recvBuf := make([]byte, 64)
	require.NoError(t, tb.PostRecv(api.Buffer{Data: recvBuf}))

	require.NoError(t, ta.Send(api.Buffer{Data: []byte("hello"), Dest: b}, false))

	completions := tb.Poll()
	require.Len(t, completions, 1)
	require.Equal(t, api.CompletionOK, completions[0].Status)
	require.Equal(t, "hello", string(completions[0].Buf.Data))
}

func TestTransport_FIFOPerInitiator(t *testing.T) {
	hub := NewHub()
	a := api.ProcessID{NID: 1, PID: 1}
	b := api.ProcessID{NID: 2, PID: 2}

	ta := NewTransport(hub, a)
	tb := NewTransport(hub, b)

	for i := 0; i < 10; i++ {
		require.NoError(t, tb.PostRecv(api.Buffer{Data: make([]byte, 8)}))
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, ta.Send(api.Buffer{Data: []byte{byte(i)}, Dest: b}, false))
	}

	completions := tb.Poll()
	require.Len(t, completions, 10)
	for i, c := range completions {
		require.Equal(t, byte(i), c.Buf.Data[0])
	}
}
