// File: ni/ni.go
// Author: momentics <momentics@gmail.com>
//
// Network Interface lifecycle (spec §3 NI, §6 NIInit/NIFini/NIStatus,
// SetMap/GetMap, StartBundle/EndBundle). Adapted from the teacher's
// facade.Server construction (a single owning struct wiring together
// its pools, transport and config at construction time, torn down in
// one Close call) generalized from a WebSocket server's connection
// pools to an NI's handle pools, portal table, and progress engine.
package ni

import (
	"context"
	"sync"

	"github.com/momentics/portals4ni/api"
	"github.com/momentics/portals4ni/event"
	"github.com/momentics/portals4ni/handle"
	"github.com/momentics/portals4ni/initiator"
	"github.com/momentics/portals4ni/md"
	"github.com/momentics/portals4ni/progress"
	"github.com/momentics/portals4ni/pt"
	"github.com/rs/zerolog"
)

// Limits caps an NI's resource usage (spec §3 "a set of limits").
type Limits struct {
	MaxMsgSize    uint64
	MaxAtomicSize uint64
	MaxIovecs     int
	MaxMDs        int
	MaxEntries    int // LEs + MEs combined
	MaxEQs        int
	MaxCTs        int
	MaxPTEntries  int
	MaxListSize   int
}

// DefaultLimits returns conservative limits suitable for tests and the
// reference cmd/ daemon.
func DefaultLimits() Limits {
	return Limits{
		MaxMsgSize:    1 << 20,
		MaxAtomicSize: 4096,
		MaxIovecs:     64,
		MaxMDs:        4096,
		MaxEntries:    16384,
		MaxEQs:        256,
		MaxCTs:        1024,
		MaxPTEntries:  64,
		MaxListSize:   4096,
	}
}

// status enumerates NI lifecycle states (spec §6 NIStatus).
type status uint8

const (
	statusUninitialized status = iota
	statusActive
	statusShuttingDown
)

// NI is one initialized network interface: its limits, handle pools,
// portal table, and the progress engine driving it.
type NI struct {
	mu     sync.RWMutex
	status status

	Self   api.ProcessID
	Flavor api.NIFlavor
	Mode   api.MatchMode
	Limits Limits

	mds *handle.Pool[md.MD]
	// cts/eqs hold pointers, not values, since event.CT/event.EQ embed
	// a sync.Cond bound to their own address; a pool slot holding the
	// value directly would need that address rebound on every reuse.
	cts *handle.Pool[*event.CT]
	eqs *handle.Pool[*event.EQ]

	ptMu sync.RWMutex
	pts  map[uint32]*pt.Table

	// logicalMap implements SetMap/GetMap for NIFlavorLogical NIs:
	// rank -> physical ProcessID (spec §6).
	logicalMap []api.ProcessID

	transport api.Transport
	progress  *progress.Engine
	cancel    context.CancelFunc

	log zerolog.Logger
}

// Init implements NIInit (spec §6): constructs an NI bound to
// transport, with its own handle pools sized by limits.
func Init(self api.ProcessID, flavor api.NIFlavor, mode api.MatchMode, limits Limits, transport api.Transport, log zerolog.Logger) *NI {
	ni := &NI{
		status:    statusActive,
		Self:      self,
		Flavor:    flavor,
		Mode:      mode,
		Limits:    limits,
		pts:       make(map[uint32]*pt.Table),
		transport: transport,
		log:       log.With().Str("component", "ni.NI").Logger(),
	}
	ni.mds = handle.New[md.MD](api.KindMD, limits.MaxMDs)
	ni.cts = handle.New[*event.CT](api.KindCT, limits.MaxCTs)
	ni.eqs = handle.New[*event.EQ](api.KindEQ, limits.MaxEQs)

	ni.progress = progress.NewEngine(transport, self, ni.lookupPT, log)
	return ni
}

// Serve primes recv buffers and runs the progress engine until ctx is
// cancelled or Fini is called, whichever comes first (spec §4.8).
func (ni *NI) Serve(ctx context.Context, recvBuffers int) error {
	if err := ni.progress.PrimeRecvBuffers(recvBuffers); err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(ctx)
	ni.mu.Lock()
	ni.cancel = cancel
	ni.mu.Unlock()
	return ni.progress.Run(runCtx)
}

func (ni *NI) lookupPT(idx uint32) (*pt.Table, bool) {
	ni.ptMu.RLock()
	defer ni.ptMu.RUnlock()
	t, ok := ni.pts[idx]
	return t, ok
}

// SampleEQDepths returns each bound portal table's current EQ depth,
// keyed by portal index, for a periodic control.EQDepth gauge sampler
// (cmd/'s daemon loop; a PT with no EQ bound is omitted).
func (ni *NI) SampleEQDepths() map[uint32]int {
	ni.ptMu.RLock()
	defer ni.ptMu.RUnlock()
	out := make(map[uint32]int, len(ni.pts))
	for idx, t := range ni.pts {
		if t.EQ != nil {
			out[idx] = t.EQ.Depth()
		}
	}
	return out
}

// PTAlloc installs a new, enabled portal-table entry at idx (spec §6
// PTAlloc). Returns api.InUse if idx is already allocated.
func (ni *NI) PTAlloc(idx uint32, opts api.PTOptions) (*pt.Table, error) {
	ni.ptMu.Lock()
	defer ni.ptMu.Unlock()
	if _, exists := ni.pts[idx]; exists {
		return nil, api.NewError(api.InUse, "ni: portal index already allocated")
	}
	t := pt.NewTable(api.Handle{Kind: api.KindPT, Index: idx}, event.NewEQ(ni.Limits.MaxListSize), opts)
	ni.pts[idx] = t
	return t, nil
}

// PTFree removes idx from the portal table (spec §6 PTFree).
func (ni *NI) PTFree(idx uint32) error {
	ni.ptMu.Lock()
	defer ni.ptMu.Unlock()
	if _, exists := ni.pts[idx]; !exists {
		return api.NewError(api.ArgInvalid, "ni: unknown portal index")
	}
	delete(ni.pts, idx)
	return nil
}

// SetMap installs the rank -> ProcessID table for a logical NI (spec
// §6 SetMap).
func (ni *NI) SetMap(m []api.ProcessID) error {
	if ni.Flavor != api.NIFlavorLogical {
		return api.NewError(api.ArgInvalid, "ni: SetMap requires a logical NI")
	}
	ni.mu.Lock()
	defer ni.mu.Unlock()
	ni.logicalMap = append([]api.ProcessID(nil), m...)
	return nil
}

// GetMap returns a copy of the current logical map (spec §6 GetMap).
func (ni *NI) GetMap() ([]api.ProcessID, error) {
	if ni.Flavor != api.NIFlavorLogical {
		return nil, api.NewError(api.ArgInvalid, "ni: GetMap requires a logical NI")
	}
	ni.mu.RLock()
	defer ni.mu.RUnlock()
	return append([]api.ProcessID(nil), ni.logicalMap...), nil
}

// Status implements NIStatus (spec §6).
func (ni *NI) Status() string {
	ni.mu.RLock()
	defer ni.mu.RUnlock()
	switch ni.status {
	case statusActive:
		return "ACTIVE"
	case statusShuttingDown:
		return "SHUTTING_DOWN"
	default:
		return "UNINITIALIZED"
	}
}

// StartBundle implements PtlStartBundle (spec §6): a hint that the
// caller is about to issue a batch of operations it would like
// coalesced. Grounded directly on the original's own implementation
// (original_source's ptl_move.c PtlStartBundle/PtlEndBundle, both
// literally "TODO implement start/end bundle" beyond validating the NI
// handle) — this NI has no batching layer to hook the hint into, so it
// is accepted and validated the same way the original does, with no
// further effect.
func (ni *NI) StartBundle() error {
	ni.mu.RLock()
	defer ni.mu.RUnlock()
	if ni.status != statusActive {
		return api.NewError(api.ArgInvalid, "ni: StartBundle requires an active NI")
	}
	return nil
}

// EndBundle implements PtlEndBundle (spec §6); see StartBundle.
func (ni *NI) EndBundle() error {
	ni.mu.RLock()
	defer ni.mu.RUnlock()
	if ni.status != statusActive {
		return api.NewError(api.ArgInvalid, "ni: EndBundle requires an active NI")
	}
	return nil
}

// Sender returns the round-trip Sender an initiator.XI targeting dest
// should use, backed by this NI's progress engine (spec §4.6, §4.8).
func (ni *NI) Sender(dest api.ProcessID) initiator.Sender {
	return ni.progress.Sender(dest)
}

// Fini implements NIFini (spec §6), applying the ni_fini ordering fix
// recorded in DESIGN.md's Open Question 1. The original's ni_fini
// (SPEC_FULL.md §3) memsets the NI before walking ppe_ct to tear down
// triggered lists — a use-after-clear bug, since zeroing the NI first
// can race a CT firing mid-teardown against fields that no longer
// exist. This NI instead: (1) flips to statusShuttingDown so no new
// triggered op can be armed (CTAlloc/AddTriggered callers must check
// Status first), (2) cancels the progress loop's context — it does not
// wait for Run to return or for already-spawned XTs to finish, (3) walks every live
// CT and EQ and calls Cancel on each — freeing every CT's triggered
// list with a failure increment and waking every CTWait/EQWait blocked
// caller with api.Interrupted (spec §5 Cancellation) — strictly before
// (4) clearing the portal table and closing the transport. MD pools are
// released by their own explicit Free calls, never implicitly here.
func (ni *NI) Fini() error {
	ni.mu.Lock()
	if ni.status == statusShuttingDown {
		ni.mu.Unlock()
		return api.ErrShuttingDown
	}
	ni.status = statusShuttingDown
	cancel := ni.cancel
	ni.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	ni.cts.Each(func(ct *event.CT) { ct.Cancel() })
	ni.eqs.Each(func(eq *event.EQ) { eq.Cancel() })

	ni.ptMu.Lock()
	ni.pts = nil
	ni.ptMu.Unlock()

	return ni.transport.Close()
}
