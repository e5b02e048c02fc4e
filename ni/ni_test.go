package ni

import (
	"context"
	"testing"
	"time"

	"github.com/momentics/portals4ni/api"
	"github.com/momentics/portals4ni/event"
	"github.com/momentics/portals4ni/transport/fake"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestNI(t *testing.T) *NI {
	t.Helper()
	tr := fake.New()
	self := api.ProcessID{NID: 1, PID: 1}
	return Init(self, api.NIFlavorPhysical, api.MatchModeMatching, DefaultLimits(), tr, zerolog.Nop())
}

func TestNI_PTAllocRejectsDuplicateIndex(t *testing.T) {
	n := newTestNI(t)
	_, err := n.PTAlloc(3, 0)
	require.NoError(t, err)

	_, err = n.PTAlloc(3, 0)
	require.Error(t, err)
	apiErr, ok := err.(*api.Error)
	require.True(t, ok)
	require.Equal(t, api.InUse, apiErr.Code)
}

func TestNI_MDBindRejectsOverLimit(t *testing.T) {
	n := newTestNI(t)
	n.Limits.MaxMsgSize = 8
	_, _, err := n.MDBind(make([]byte, 16), nil, nil, 0)
	require.Error(t, err)
}

func TestNI_CTAllocRoundTrip(t *testing.T) {
	n := newTestNI(t)
	h, ct, err := n.CTAlloc()
	require.NoError(t, err)
	require.False(t, h.IsNull())
	ct.Inc(event.CTEvent{Success: 1})
	require.NoError(t, n.CTFree(h))
}

// TestNI_FiniCancelsBeforeClearingPortalTable pins the ordering fix of
// DESIGN.md's Open Question 1: Fini cancels the progress loop strictly
// before the portal table is cleared, rather than the original's
// clear-then-drain order; afterwards Serve has returned and PT 3 is gone.
func TestNI_FiniCancelsBeforeClearingPortalTable(t *testing.T) {
	n := newTestNI(t)
	_, err := n.PTAlloc(3, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveDone := make(chan error, 1)
	go func() { serveDone <- n.Serve(ctx, 2) }()

	require.Eventually(t, func() bool {
		_, ok := n.lookupPT(3)
		return ok
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, n.Fini())

	select {
	case <-serveDone:
	case <-time.After(2 * time.Second):
		t.Fatal("progress loop did not stop after Fini")
	}

	_, ok := n.lookupPT(3)
	require.False(t, ok, "portal table must be cleared only after the progress loop has stopped")
}

// TestNI_FiniWakesBlockedCTAndEQWaiters pins spec §5 Cancellation: a
// CTWait/EQWait caller blocked at teardown must be woken with
// api.Interrupted, not hang forever, and a triggered op pending on that
// CT must be dropped with a failure increment.
func TestNI_FiniWakesBlockedCTAndEQWaiters(t *testing.T) {
	n := newTestNI(t)
	_, ct, err := n.CTAlloc()
	require.NoError(t, err)
	_, eq, err := n.EQAlloc(4)
	require.NoError(t, err)

	ct.AddTriggered(100, fireRecorder{})

	ctDone := make(chan error, 1)
	go func() {
		_, err := ct.Wait(100)
		ctDone <- err
	}()
	eqDone := make(chan error, 1)
	go func() {
		_, err := eq.Wait()
		eqDone <- err
	}()

	require.Eventually(t, func() bool { return true }, 10*time.Millisecond, time.Millisecond)
	require.NoError(t, n.Fini())

	select {
	case err := <-ctDone:
		require.Error(t, err)
		require.Equal(t, api.Interrupted, err.(*api.Error).Code)
	case <-time.After(2 * time.Second):
		t.Fatal("CTWait did not wake up on Fini")
	}

	select {
	case err := <-eqDone:
		require.Error(t, err)
		require.Equal(t, api.Interrupted, err.(*api.Error).Code)
	case <-time.After(2 * time.Second):
		t.Fatal("EQWait did not wake up on Fini")
	}

	require.Equal(t, uint64(1), ct.Get().Failure, "pending triggered op must be dropped with a failure increment")
}

type fireRecorder struct{}

func (fireRecorder) Fire() {}
