// File: ppe/ppe.go
// Author: momentics <momentics@gmail.com>
//
// Process-group bootstrap and the portals4_comm_pad shared-memory
// segment layout (spec §6 "Persisted/shared state": "a shared memory
// object named like portals4_comm_pad ... carries per-process queues
// and status registers"). Grounded in
// original_source/branches/udp/src/mc/ppe/ni.c for the PPE's role as
// the process that owns the comm_pad and bootstraps the cooperating
// peer NIs, and in the teacher's facade construction style (one
// function wiring everything a server needs before returning it ready
// to run).
//
// Real portals4 maps one physical comm_pad per NID across cooperating
// OS processes via shm_open/mmap; this module's shared-memory backend
// (transport/shmem) already documents why that cross-process mapping
// isn't wired (no cgo, per DESIGN.md). CommPad here is the logical
// layout description plus the single-process stand-in construction
// that transport/shmem.Hub implements; a future cross-process backend
// would replace Bootstrap's body without touching its signature or
// the Slot layout below.
package ppe

import (
	"github.com/momentics/portals4ni/api"
	"github.com/momentics/portals4ni/transport/shmem"
)

// pageSize mirrors the spec's "size a multiple of page size" sizing
// rule for the comm_pad segment.
const pageSize = 4096

// Slot is one process's registers and status within the comm_pad:
// enough for the progress engine to publish liveness and the peer's
// NEMESIS queue depth without a separate control channel.
type Slot struct {
	Self       api.ProcessID
	QueueDepth int
	Alive      bool
}

// CommPad is the process-group-wide shared state: one Slot per
// participating process plus the Hub backing every process's NEMESIS
// receive queue (spec §4.9).
type CommPad struct {
	Hub   *shmem.Hub
	Slots map[api.ProcessID]*Slot
}

// SegmentBytes returns the comm_pad's size rounded up to a whole number
// of pages, mirroring the original's page-aligned shm_open sizing even
// though this backend doesn't actually mmap a file.
func SegmentBytes(nProcs int) int {
	perSlot := 64 // bytes: enough for Slot's fields plus padding
	raw := nProcs * perSlot
	if raw%pageSize == 0 {
		return raw
	}
	return (raw/pageSize + 1) * pageSize
}

// Bootstrap constructs a CommPad pre-registering every id in procs,
// standing in for the PPE's role of creating the comm_pad before any
// peer NI attaches to it (spec §6, grounded on ppe/ni.c's startup
// sequence).
func Bootstrap(procs []api.ProcessID) *CommPad {
	pad := &CommPad{
		Hub:   shmem.NewHub(),
		Slots: make(map[api.ProcessID]*Slot, len(procs)),
	}
	for _, id := range procs {
		pad.Slots[id] = &Slot{Self: id, Alive: true}
	}
	return pad
}

// Transport returns the api.Transport this process should bind its NI
// to, backed by the shared Hub (spec §4.3/§4.9).
func (pad *CommPad) Transport(self api.ProcessID) *shmem.Transport {
	return shmem.NewTransport(pad.Hub, self)
}

// MarkDead removes a process's slot, e.g. after its NI's Fini, so a
// stale peer doesn't appear live to the rest of the group.
func (pad *CommPad) MarkDead(id api.ProcessID) {
	if s, ok := pad.Slots[id]; ok {
		s.Alive = false
	}
}
