package rdma

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/momentics/portals4ni/api"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// freePort asks the OS for an unused TCP port on loopback.
func freePort(t *testing.T) api.PID {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return api.PID(ln.Addr().(*net.TCPAddr).Port)
}

func loopbackNID() api.NID {
	return api.NID(binary.BigEndian.Uint32(net.ParseIP("127.0.0.1").To4()))
}

func TestTransport_SendPostRecvRoundTrip(t *testing.T) {
	nid := loopbackNID()
	a := api.ProcessID{NID: nid, PID: freePort(t)}
	b := api.ProcessID{NID: nid, PID: freePort(t)}

	log := zerolog.Nop()
	ta, err := Listen(a, log)
	require.NoError(t, err)
	defer ta.Close()
	tb, err := Listen(b, log)
	require.NoError(t, err)
	defer tb.Close()

	recvBuf := make([]byte, 64)
	require.NoError(t, tb.PostRecv(api.Buffer{Data: recvBuf}))
	require.NoError(t, ta.Send(api.Buffer{Data: []byte("hello"), Dest: b}, false))

	require.Eventually(t, func() bool {
		return len(tb.Poll()) > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTransport_FIFOPerInitiator(t *testing.T) {
	nid := loopbackNID()
	a := api.ProcessID{NID: nid, PID: freePort(t)}
	b := api.ProcessID{NID: nid, PID: freePort(t)}

	log := zerolog.Nop()
	ta, err := Listen(a, log)
	require.NoError(t, err)
	defer ta.Close()
	tb, err := Listen(b, log)
	require.NoError(t, err)
	defer tb.Close()

	const n = 10
	for i := 0; i < n; i++ {
		require.NoError(t, tb.PostRecv(api.Buffer{Data: make([]byte, 8)}))
	}
	for i := 0; i < n; i++ {
		require.NoError(t, ta.Send(api.Buffer{Data: []byte{byte(i)}, Dest: b}, false))
	}

	var completions []api.Completion
	require.Eventually(t, func() bool {
		completions = append(completions, tb.Poll()...)
		return len(completions) == n
	}, 2*time.Second, 10*time.Millisecond)

	for i, c := range completions {
		require.Equal(t, byte(i), c.Buf.Data[0])
	}
}
