// File: event/ct.go
// Author: momentics <momentics@gmail.com>
//
// Counting events (spec §3 CT, §4.7) with broadcast wakeup and a
// triggered-operation scheduler gated on the CT's running total.
// Adapted from the teacher's internal/concurrency.EventLoop in spirit
// (a guarded mutable state plus a condition variable driving waiters),
// but CTs are updated from many producer goroutines and drained by
// both CTWait callers and the triggered-op scan, so a sync.Cond replaces
// the teacher's single-consumer channel.
package event

import (
	"sync"
	"sync/atomic"

	"github.com/momentics/portals4ni/api"
	"github.com/momentics/portals4ni/control"
)

// CTEvent is the pair of counters Portals4 calls a "counting event"
// (spec §3): independent tallies of successful and failed completions.
type CTEvent struct {
	Success uint64
	Failure uint64
}

// Total is success+failure, the quantity triggered-op thresholds and
// CTWait/CTPoll compare against (spec §4.7).
func (e CTEvent) Total() uint64 { return e.Success + e.Failure }

// Triggered is anything a CT can release once its threshold is met —
// satisfied by initiator.XI (a deferred Put/Get/Atomic/...) and by the
// deferred TriggeredCTSet/TriggeredCTInc operations of spec §6.
type Triggered interface {
	// Fire is invoked at most once, from whichever goroutine's CT
	// update happened to cross the threshold.
	Fire()
}

type triggerEntry struct {
	threshold uint64
	op        Triggered
	claimed   atomic.Bool
}

// CT is a counting event: two monotonically non-decreasing counters
// plus a list of triggered operations awaiting a threshold (spec §3,
// §4.7, §8 "sum of success+failure is monotonically non-decreasing").
type CT struct {
	mu        sync.Mutex
	cond      *sync.Cond
	state     CTEvent
	triggered []*triggerEntry
	cancelled bool
}

// NewCT constructs an empty counting event.
func NewCT() *CT {
	ct := &CT{}
	ct.cond = sync.NewCond(&ct.mu)
	return ct
}

// Get returns a snapshot of the current counters.
func (ct *CT) Get() CTEvent {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return ct.state
}

// Set overwrites both counters (PtlCTSet) and re-scans the triggered
// list.
func (ct *CT) Set(v CTEvent) {
	ct.mu.Lock()
	ct.state = v
	ct.mu.Unlock()
	ct.cond.Broadcast()
	ct.fireTriggered()
}

// Inc adds delta to both counters atomically (PtlCTInc) and re-scans
// the triggered list — this is the path spec §8 scenario 5 exercises.
func (ct *CT) Inc(delta CTEvent) {
	ct.mu.Lock()
	ct.state.Success += delta.Success
	ct.state.Failure += delta.Failure
	ct.mu.Unlock()
	ct.cond.Broadcast()
	ct.fireTriggered()
}

// IncFailure is a convenience used by delivery-error paths (spec §4.6
// "Failure ... always increments ct.failure").
func (ct *CT) IncFailure() { ct.Inc(CTEvent{Failure: 1}) }

// AddTriggered appends op to the CT's list under the CT lock (spec
// §4.7). If the threshold is already satisfied, op fires immediately
// without ever being appended, matching "fires at most once even if
// multiple updates satisfy the threshold concurrently."
func (ct *CT) AddTriggered(threshold uint64, op Triggered) {
	ct.mu.Lock()
	if ct.state.Total() >= threshold {
		ct.mu.Unlock()
		control.TriggeredFired.Inc()
		op.Fire()
		return
	}
	ct.triggered = append(ct.triggered, &triggerEntry{threshold: threshold, op: op})
	ct.mu.Unlock()
}

// fireTriggered scans the triggered list and releases every entry whose
// threshold is now satisfied, each claimed exactly once via an atomic
// CAS-style flag (spec §4.7).
func (ct *CT) fireTriggered() {
	ct.mu.Lock()
	total := ct.state.Total()
	var ready []*triggerEntry
	remaining := ct.triggered[:0]
	for _, e := range ct.triggered {
		if total >= e.threshold {
			ready = append(ready, e)
		} else {
			remaining = append(remaining, e)
		}
	}
	ct.triggered = remaining
	ct.mu.Unlock()

	for _, e := range ready {
		if e.claimed.CompareAndSwap(false, true) {
			control.TriggeredFired.Inc()
			e.op.Fire()
		}
	}
}

// Cancel wakes every CTWait/CTPoll waiter with api.Interrupted and
// drains the triggered list — used at NI teardown (spec §5
// Cancellation; SPEC_FULL.md §3's resolution of the original ni_fini
// use-after-clear bug names this drainTriggered, called strictly
// before any NI field is cleared).
func (ct *CT) Cancel() {
	ct.mu.Lock()
	ct.cancelled = true
	ct.mu.Unlock()
	ct.cond.Broadcast()
	ct.drainTriggered()
}

// CancelTriggered implements PtlCTCancelTriggered (spec §6): drops
// every triggered op currently pending on this CT, each with a failure
// increment, without waking CTWait/CTPoll waiters or marking the CT
// itself cancelled — unlike Cancel, the CT stays usable afterward for
// new CTSet/CTInc/AddTriggered calls.
func (ct *CT) CancelTriggered() {
	ct.drainTriggered()
}

// drainTriggered frees every pending triggered op, each claimed exactly
// once, with a failure increment to this same CT (spec §5: "triggered
// operations pending at teardown are dropped with a failure increment
// to their CT").
func (ct *CT) drainTriggered() {
	ct.mu.Lock()
	pending := ct.triggered
	ct.triggered = nil
	ct.mu.Unlock()

	for _, e := range pending {
		if e.claimed.CompareAndSwap(false, true) {
			ct.IncFailure()
		}
	}
}

// Wait blocks until Total() >= threshold or the CT is cancelled,
// returning api.Interrupted in the latter case (spec §4.7 ct_wait).
func (ct *CT) Wait(threshold uint64) (CTEvent, error) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	for ct.state.Total() < threshold && !ct.cancelled {
		ct.cond.Wait()
	}
	if ct.cancelled {
		return ct.state, &api.Error{Code: api.Interrupted, Message: "ct wait interrupted by ni shutdown"}
	}
	return ct.state, nil
}

// CTPoll waits on the first of several CTs to reach its paired
// threshold (spec §4.7 ct_poll), returning the index of the CT that
// satisfied it.
func CTPoll(cts []*CT, thresholds []uint64) (int, CTEvent, error) {
	if len(cts) != len(thresholds) {
		return -1, CTEvent{}, &api.Error{Code: api.ArgInvalid, Message: "ct poll: mismatched cts/thresholds length"}
	}
	done := make(chan struct {
		idx int
		ev  CTEvent
		err error
	}, len(cts))
	for i := range cts {
		go func(i int) {
			ev, err := cts[i].Wait(thresholds[i])
			done <- struct {
				idx int
				ev  CTEvent
				err error
			}{i, ev, err}
		}(i)
	}
	result := <-done
	return result.idx, result.ev, result.err
}
