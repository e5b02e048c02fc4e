package event

import (
	"sync/atomic"
	"testing"

	"github.com/momentics/portals4ni/api"
	"github.com/stretchr/testify/require"
)

type fireCounter struct {
	fired atomic.Int32
}

func (f *fireCounter) Fire() { f.fired.Add(1) }

// TestCT_TriggeredFiresExactlyOnce exercises spec §8 scenario 5: a CT
// at count 2 with a triggered op at threshold 5 fires after three +1
// increments.
func TestCT_TriggeredFiresExactlyOnce(t *testing.T) {
	ct := NewCT()
	ct.Set(CTEvent{Success: 2})

	op := &fireCounter{}
	ct.AddTriggered(5, op)

	ct.Inc(CTEvent{Success: 1}) // total 3
	require.Equal(t, int32(0), op.fired.Load())
	ct.Inc(CTEvent{Success: 1}) // total 4
	require.Equal(t, int32(0), op.fired.Load())
	ct.Inc(CTEvent{Success: 1}) // total 5: fires
	require.Equal(t, int32(1), op.fired.Load())

	ct.Inc(CTEvent{Success: 1}) // total 6: must not re-fire
	require.Equal(t, int32(1), op.fired.Load())
}

func TestCT_WaitUnblocksOnThreshold(t *testing.T) {
	ct := NewCT()
	done := make(chan CTEvent, 1)
	go func() {
		ev, err := ct.Wait(3)
		require.NoError(t, err)
		done <- ev
	}()
	ct.Inc(CTEvent{Success: 1})
	ct.Inc(CTEvent{Success: 2})
	ev := <-done
	require.Equal(t, uint64(3), ev.Total())
}

func TestCT_CancelInterruptsWaiters(t *testing.T) {
	ct := NewCT()
	errCh := make(chan error, 1)
	go func() {
		_, err := ct.Wait(100)
		errCh <- err
	}()
	ct.Cancel()
	err := <-errCh
	require.Error(t, err)
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, api.Interrupted, apiErr.Code)
}

// TestEQ_OverflowSentinel exercises spec §8 scenario 6: capacity 4,
// enqueue 6 events, expect 4 delivered then one EQ_DROPPED with lost=2.
func TestEQ_OverflowSentinel(t *testing.T) {
	eq := NewEQ(4)
	for i := 0; i < 6; i++ {
		eq.Enqueue(api.Event{Type: api.EventPut, MatchBits: uint64(i)})
	}

	for i := 0; i < 4; i++ {
		ev, err := eq.Get()
		require.NoError(t, err)
		require.Equal(t, uint64(i), ev.MatchBits)
	}

	ev, err := eq.Get()
	require.NoError(t, err)
	require.Equal(t, api.EventQueueDropped, ev.Type)
	require.Equal(t, uint64(2), ev.Lost)

	_, err = eq.Get()
	require.Error(t, err)
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, api.EQEmpty, apiErr.Code)
}
