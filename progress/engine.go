// File: progress/engine.go
// Author: momentics <momentics@gmail.com>
//
// The progress engine (spec §4.8, component C8): one per NI, polling a
// transport's completions, decoding each into a wire.Header, and
// dispatching via the receive sub-FSM — operation < api.OpReplyBase
// goes to target.XT (a fresh inbound request), operation >=
// api.OpReplyBase goes to whichever initiator.XI is awaiting that
// reply. Grounded on the teacher's internal/concurrency scheduler's
// notify/stop channel idiom for its run loop, and on
// golang.org/x/sync/semaphore (already pulled in by the pack for
// bounding concurrent work) to cap how many target descriptors run
// concurrently rather than spawning one goroutine per inbound packet
// unbounded.
package progress

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/portals4ni/affinity"
	"github.com/momentics/portals4ni/api"
	"github.com/momentics/portals4ni/control"
	"github.com/momentics/portals4ni/initiator"
	"github.com/momentics/portals4ni/pool"
	"github.com/momentics/portals4ni/pt"
	"github.com/momentics/portals4ni/target"
	"github.com/momentics/portals4ni/wire"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// idlePollBackoff paces the poll loop when a harvest comes back empty,
// grounded on the original's usleep-between-polls progress loop rather
// than a busy spin.
const idlePollBackoff = 200 * time.Microsecond

// PTLookup resolves a portal index to the table bound to it, as owned
// by the NI (spec §3: "an NI owns a fixed-size portal table").
type PTLookup func(ptIndex uint32) (*pt.Table, bool)

// maxConcurrentTargets bounds how many inbound requests this engine
// drives through target.XT.Run at once, so a burst of traffic can't
// spawn unbounded goroutines.
const maxConcurrentTargets = 64

type pendingReply struct {
	hdr     wire.Header
	payload []byte
	err     error
}

// Engine drives one NI's receive and reply-dispatch loop.
type Engine struct {
	transport api.Transport
	self      api.ProcessID
	ptLookup  PTLookup
	log       zerolog.Logger

	sem *semaphore.Weighted

	mu       sync.Mutex
	pending  map[uint32]chan pendingReply
	corrSeed atomic.Uint32

	bufSize  int
	recvPool *pool.SimpleBytePool

	// pinCPU, when >= 0, is the logical CPU the run loop's OS thread is
	// pinned to (spec §4.8's polling loop is the NI's hottest path, the
	// same rationale the teacher's worker pool pins threads for).
	pinCPU int
}

// NewEngine constructs a progress engine bound to transport, identified
// on the wire as self, resolving inbound requests' portal index via
// ptLookup.
func NewEngine(transport api.Transport, self api.ProcessID, ptLookup PTLookup, log zerolog.Logger) *Engine {
	const bufSize = 64 * 1024
	return &Engine{
		transport: transport,
		self:      self,
		ptLookup:  ptLookup,
		log:       log.With().Str("component", "progress.Engine").Logger(),
		sem:       semaphore.NewWeighted(maxConcurrentTargets),
		pending:   make(map[uint32]chan pendingReply),
		bufSize:   bufSize,
		recvPool:  pool.NewSimpleBytePool(maxConcurrentTargets*2, bufSize),
		pinCPU:    -1,
	}
}

// PinTo pins the Run loop's OS thread to cpu (spec §4.8's progress loop
// is latency-sensitive enough that the teacher's worker-pool affinity
// idiom applies directly). Call before Run.
func (e *Engine) PinTo(cpu int) {
	e.pinCPU = cpu
}

// PrimeRecvBuffers posts n receive buffers of bufSize bytes so inbound
// frames have somewhere to land before the first Run iteration.
func (e *Engine) PrimeRecvBuffers(n int) error {
	for i := 0; i < n; i++ {
		if err := e.postOneRecvBuffer(); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) postOneRecvBuffer() error {
	return e.transport.PostRecv(api.Buffer{Data: e.recvPool.Get()})
}

// Run polls the transport until ctx is cancelled, dispatching every
// harvested completion and reposting a fresh recv buffer in its place
// (spec §4.8 "reposting recv buffers below a threshold" — here, one in,
// one out, keeping the posted count constant).
func (e *Engine) Run(ctx context.Context) error {
	if e.pinCPU >= 0 {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		if err := affinity.SetAffinity(e.pinCPU); err != nil {
			e.log.Warn().Err(err).Int("cpu", e.pinCPU).Msg("progress: failed to pin run loop, continuing unpinned")
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		completions := e.transport.Poll()
		if len(completions) == 0 {
			// Grounded in the original's progress loop falling back to a
			// short sleep between empty polls rather than spinning the
			// CPU at 100% (original_source's mc_progress usleep path).
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(idlePollBackoff):
			}
			continue
		}
		for _, c := range completions {
			e.dispatch(ctx, c)
			if err := e.postOneRecvBuffer(); err != nil {
				e.log.Warn().Err(err).Msg("progress: failed to repost recv buffer")
			}
		}
	}
}

func (e *Engine) dispatch(ctx context.Context, c api.Completion) {
	if c.Status != api.CompletionOK {
		e.log.Debug().Msg("progress: dropping non-OK completion")
		e.recvPool.Put(c.Buf.Data)
		return
	}
	raw := c.Buf.Data
	hdr, payload, err := DecodeFrame(raw)
	if err != nil {
		// spec §7: truncated header / version mismatch is a silent drop.
		control.RecvDrops.WithLabelValues("malformed").Inc()
		e.log.Debug().Err(err).Msg("progress: dropping malformed frame")
		e.recvPool.Put(raw)
		return
	}

	if hdr.Operation >= api.OpReplyBase {
		// payload aliases raw and outlives this call via the pending-reply
		// channel, so raw is not returned to the pool here; it is left for
		// the GC, same as before this buffer was pooled.
		e.deliverReply(hdr, payload)
		return
	}
	e.spawnTarget(ctx, raw, hdr, payload)
}

// deliverReply routes an ACK/REPLY/NACK to whichever XI is awaiting it,
// correlated by HdrHandle (spec §6's request/response correlation
// field, echoed unchanged by the target side's SendAck/SendReply).
func (e *Engine) deliverReply(hdr wire.Header, payload []byte) {
	e.mu.Lock()
	ch, ok := e.pending[hdr.HdrHandle]
	if ok {
		delete(e.pending, hdr.HdrHandle)
	}
	e.mu.Unlock()
	if !ok {
		e.log.Warn().Uint32("corr", hdr.HdrHandle).Msg("progress: reply with no pending initiator")
		return
	}
	ch <- pendingReply{hdr: hdr, payload: payload}
}

func (e *Engine) spawnTarget(ctx context.Context, raw []byte, hdr wire.Header, payload []byte) {
	table, ok := e.ptLookup(hdr.PtIndex)
	if !ok {
		control.RecvDrops.WithLabelValues("unknown_pt").Inc()
		e.log.Debug().Uint32("pt_index", hdr.PtIndex).Msg("progress: unknown portal index, dropping")
		e.recvPool.Put(raw)
		return
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return
	}
	go func() {
		defer e.sem.Release(1)

		src := api.ProcessID{NID: hdr.SrcNID, PID: api.PID(hdr.SrcPID)}
		req := target.Request{
			Header:        hdr,
			Initiator:     src,
			Payload:       payload,
			NACKRequested: hdr.Flags&wire.FlagAckReq != 0,
		}
		xt := target.New(table, req)
		reply := xt.Run(ctx.Done())
		// xt.Run has already consumed payload (copied or applied it); the
		// recv buffer it aliases can be recycled regardless of outcome.
		e.recvPool.Put(raw)
		if reply.Op == 0 && reply.NiFail == api.OK {
			// Silent drop with no NACK requested: spec §4.5, nothing to send.
			return
		}
		e.sendReply(hdr, src, reply)
	}()
}

func (e *Engine) sendReply(reqHdr wire.Header, dest api.ProcessID, reply target.Reply) {
	respHdr := wire.Header{
		Version:   wire.CurrentVersion,
		Operation: reply.Op,
		SrcNID:    uint32(e.self.NID),
		SrcPID:    uint32(e.self.PID),
		HdrHandle: reqHdr.HdrHandle,
		PtIndex:   reqHdr.PtIndex,
		MatchBits: reqHdr.MatchBits,
		Length:    uint64(len(reply.Payload)),
	}
	frame := EncodeFrame(respHdr, reply.Payload)
	if err := e.transport.Send(api.Buffer{Data: frame, Dest: dest}, true); err != nil {
		e.log.Warn().Err(err).Msg("progress: failed to send target reply")
	}
}

// Sender returns an initiator.Sender that posts a request frame to
// dest and blocks until this engine's receive loop delivers the
// correlated reply, implementing the async transport+progress-engine
// round trip that initiator.XI's own doc comment describes as the real
// mechanism behind the synchronous Sender abstraction (spec §4.6,
// §4.8).
func (e *Engine) Sender(dest api.ProcessID) initiator.Sender {
	return func(hdr wire.Header, payload []byte) (wire.Header, []byte, error) {
		corr := e.corrSeed.Add(1)
		hdr.HdrHandle = corr
		hdr.SrcNID = uint32(e.self.NID)
		hdr.SrcPID = uint32(e.self.PID)

		ch := make(chan pendingReply, 1)
		e.mu.Lock()
		e.pending[corr] = ch
		e.mu.Unlock()

		frame := EncodeFrame(hdr, payload)
		if err := e.transport.Send(api.Buffer{Data: frame, Dest: dest}, true); err != nil {
			e.mu.Lock()
			delete(e.pending, corr)
			e.mu.Unlock()
			return wire.Header{}, nil, errors.Wrap(err, "progress: send failed")
		}

		resp := <-ch
		return resp.hdr, resp.payload, resp.err
	}
}
