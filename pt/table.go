// File: pt/table.go
// Author: momentics <momentics@gmail.com>
//
// Portal Table entry: priority list, overflow list, EQ, status, options
// (spec §3, §4.4). Adapted from the teacher's control.ConfigStore
// (control/config.go) mutex-guarded map-with-listeners shape: here the
// "listeners" are WAIT_APPEND parked target descriptors woken via a
// condition variable instead of control.ConfigStore's fire-and-forget
// goroutines, because a parked XT needs to re-attempt its own match
// rather than run an arbitrary callback.
package pt

import (
	"sync"

	"github.com/momentics/portals4ni/api"
	"github.com/momentics/portals4ni/event"
	"github.com/momentics/portals4ni/md"
)

// ListKind selects which of a PT's two lists an append targets (spec §4.4).
type ListKind uint8

const (
	PriorityList ListKind = iota
	OverflowList
)

// ErrPTDisabled is returned when an operation targets a disabled PT.
var ErrPTDisabled = &api.Error{Code: api.NIPTDisabled, Message: "pt: disabled"}

// ErrFlowControlStopped names the flow-control-stopped rejection
// supplementing spec §4.4 step 1, recovered from
// original_source/trunk/src/shmem's flow control handling (SPEC_FULL
// §3). It carries the same NIPTDisabled code as ErrPTDisabled, and no
// code path in this module returns it.
var ErrFlowControlStopped = &api.Error{Code: api.NIPTDisabled, Message: "pt: flow control stopped"}

// Table is one portal-table entry (spec §3).
type Table struct {
	mu       sync.Mutex
	cond     *sync.Cond
	Status   api.PTStatus
	Options  api.PTOptions
	EQ       *event.EQ
	Self     api.Handle
	priority []*md.Entry
	overflow []*md.Entry
}

// NewTable constructs an enabled, empty portal-table entry bound to eq.
func NewTable(self api.Handle, eq *event.EQ, opts api.PTOptions) *Table {
	t := &Table{Status: api.PTEnabled, Options: opts, EQ: eq, Self: self}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Enable/Disable implement PTEnable/PTDisable (spec §6).
func (t *Table) Enable() {
	t.mu.Lock()
	t.Status = api.PTEnabled
	t.mu.Unlock()
}

func (t *Table) Disable() {
	t.mu.Lock()
	t.Status = api.PTDisabled
	t.mu.Unlock()
}

// Append inserts e at the tail of the chosen list, preserving insertion
// order (spec §3 invariant, §4.4 tie-break rule), then wakes any
// WAIT_APPEND-parked target descriptors.
func (t *Table) Append(list ListKind, e *md.Entry) {
	t.mu.Lock()
	switch list {
	case PriorityList:
		t.priority = append(t.priority, e)
	case OverflowList:
		t.overflow = append(t.overflow, e)
	}
	t.mu.Unlock()
	t.cond.Broadcast()
}

// Unlink removes e from whichever list currently holds it, reporting
// whether it was found (MEUnlink/LEUnlink, and the auto-unlink path of
// spec §4.4 step 5).
func (t *Table) Unlink(e *md.Entry) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if idx := indexOf(t.priority, e); idx >= 0 {
		t.priority = removeAt(t.priority, idx)
		return true
	}
	if idx := indexOf(t.overflow, e); idx >= 0 {
		t.overflow = removeAt(t.overflow, idx)
		return true
	}
	return false
}

func indexOf(list []*md.Entry, e *md.Entry) int {
	for i, cur := range list {
		if cur == e {
			return i
		}
	}
	return -1
}

func removeAt(list []*md.Entry, idx int) []*md.Entry {
	out := make([]*md.Entry, 0, len(list)-1)
	out = append(out, list[:idx]...)
	out = append(out, list[idx+1:]...)
	return out
}

// Snapshot returns read-only copies of the priority and overflow lists
// for the matching engine to scan outside the table lock, preserving
// insertion order (spec §4.4 step 2/3).
func (t *Table) Snapshot() (priority, overflow []*md.Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	priority = append([]*md.Entry(nil), t.priority...)
	overflow = append([]*md.Entry(nil), t.overflow...)
	return
}

// Search implements LESearch/MESearch: a non-binding probe of both
// lists using the same predicate the matching engine uses, without
// consuming or unlinking the winning entry.
func (t *Table) Search(pred func(*md.Entry) bool) *md.Entry {
	priority, overflow := t.Snapshot()
	for _, e := range priority {
		if pred(e) {
			return e
		}
	}
	for _, e := range overflow {
		if pred(e) {
			return e
		}
	}
	return nil
}

// AwaitAppend parks the calling goroutine (an XT in WAIT_APPEND, spec
// §4.5) until the next Append call or cancel is closed.
func (t *Table) AwaitAppend(cancel <-chan struct{}) {
	done := make(chan struct{})
	go func() {
		select {
		case <-cancel:
			t.mu.Lock()
			t.cond.Broadcast()
			t.mu.Unlock()
		case <-done:
		}
	}()
	defer close(done)

	t.mu.Lock()
	t.cond.Wait()
	t.mu.Unlock()
}
