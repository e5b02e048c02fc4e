// control/debug.go
// Author: momentics <momentics@gmail.com>
//
// Runtime debug handler and probe reflector for internal inspection
// (spec §6 NIStatus's companion introspection surface — pt/handle-pool
// occupancy, recent drops — exposed by cmd/'s debug HTTP endpoint
// rather than by the wire protocol itself).

package control

import (
	"sync"

	"github.com/eapache/queue"
)

// DebugProbes holds registered probe functions plus a bounded history
// of recent target-side drops (spec §4.5 DROP), the thing an operator
// actually wants when NIStatus alone says ACTIVE but traffic looks
// wrong.
type DebugProbes struct {
	mu     sync.RWMutex
	probes map[string]func() any

	dropsMu   sync.Mutex
	drops     *queue.Queue
	maxDrops  int
}

// NewDebugProbes creates a probe registry retaining up to maxDrops
// recent drop records, and installs itself as the process-wide drop
// sink RecordDrop forwards to.
func NewDebugProbes(maxDrops int) *DebugProbes {
	if maxDrops <= 0 {
		maxDrops = 64
	}
	dp := &DebugProbes{
		probes:   make(map[string]func() any),
		drops:    queue.New(),
		maxDrops: maxDrops,
	}
	dropSink = dp.recordDrop
	return dp
}

// RegisterProbe inserts a named debug hook.
func (dp *DebugProbes) RegisterProbe(name string, fn func() any) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.probes[name] = fn
}

// recordDrop appends a drop record, evicting the oldest once maxDrops
// is exceeded.
func (dp *DebugProbes) recordDrop(reason string) {
	dp.dropsMu.Lock()
	defer dp.dropsMu.Unlock()
	dp.drops.Add(reason)
	for dp.drops.Length() > dp.maxDrops {
		dp.drops.Remove()
	}
}

// dropSink is the process-wide sink RecordDrop forwards to once a
// DebugProbes has been constructed; nil (a no-op) until then, so
// target.XT can call RecordDrop unconditionally without a nil check.
var dropSink func(string)

// RecordDrop forwards reason to the active DebugProbes, or does
// nothing if cmd/ never constructed one (e.g. in unit tests).
func RecordDrop(reason string) {
	if dropSink != nil {
		dropSink(reason)
	}
}

// RecentDrops returns a snapshot of the retained drop reasons, oldest
// first.
func (dp *DebugProbes) RecentDrops() []string {
	dp.dropsMu.Lock()
	defer dp.dropsMu.Unlock()
	out := make([]string, 0, dp.drops.Length())
	for i := 0; i < dp.drops.Length(); i++ {
		out = append(out, dp.drops.Get(i).(string))
	}
	return out
}

// DumpState returns output of all probes plus the recent-drops history.
func (dp *DebugProbes) DumpState() map[string]any {
	dp.mu.RLock()
	out := make(map[string]any, len(dp.probes)+1)
	for k, fn := range dp.probes {
		out[k] = fn()
	}
	dp.mu.RUnlock()
	out["recent_drops"] = dp.RecentDrops()
	return out
}
