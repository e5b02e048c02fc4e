// File: handle/pool.go
// Author: momentics <momentics@gmail.com>
//
// Generic, generation-indexed object pool (spec §4.1, component C1).
// Adapted from the teacher's pool.SyncPool[T] (pool/objpool.go), which
// wrapped sync.Pool for untyped reuse; here reuse is handle-addressable
// instead of value-addressable, so a live object can be looked up by a
// Handle from any goroutine instead of only by the goroutine holding the
// pointer sync.Pool handed back. The free-slot list is mutex-guarded
// (the teacher's own per-PT/per-CT locks are mutexes too; spec §5 asks
// only for "safe for concurrent allocate/release", not lock-freedom).
package handle

import (
	"sync"
	"sync/atomic"

	"github.com/momentics/portals4ni/api"
)

type slot[T any] struct {
	obj      T
	gen      uint32
	refcount atomic.Int32
	inUse    bool
}

// Pool is a typed, reference-counted, handle-addressable object pool
// with O(1) allocation (spec §4.1).
type Pool[T any] struct {
	mu    sync.Mutex
	kind  api.PoolKind
	slots []*slot[T]
	free  []uint32 // indices of free slots
	limit int
}

var _ api.HandlePool[int] = (*Pool[int])(nil)

// New constructs a Pool of the given kind with a hard cap of limit live
// objects (spec §3 NI.limits.max_*).
func New[T any](kind api.PoolKind, limit int) *Pool[T] {
	return &Pool[T]{kind: kind, limit: limit}
}

// Alloc reserves a slot and returns its Handle plus a pointer to the
// zero-valued object for the caller to initialize.
func (p *Pool[T]) Alloc() (api.Handle, *T, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var idx uint32
	if n := len(p.free); n > 0 {
		idx = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		if p.limit > 0 && len(p.slots) >= p.limit {
			return api.NullHandle, nil, api.ErrPoolExhausted
		}
		idx = uint32(len(p.slots))
		p.slots = append(p.slots, &slot[T]{})
	}

	s := p.slots[idx]
	var zero T
	s.obj = zero
	s.inUse = true
	s.refcount.Store(1)

	h := api.Handle{Kind: p.kind, Index: idx, Gen: s.gen}
	return h, &s.obj, nil
}

// Lookup resolves h to its object's pointer, failing if the handle is
// NULL, out of range, or stale (spec §4.1).
func (p *Pool[T]) Lookup(h api.Handle) (*T, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, err := p.resolve(h)
	if err != nil {
		return nil, err
	}
	return &s.obj, nil
}

func (p *Pool[T]) resolve(h api.Handle) (*slot[T], error) {
	if h.IsNull() || h.Kind != p.kind || int(h.Index) >= len(p.slots) {
		return nil, api.ErrHandleInvalid
	}
	s := p.slots[h.Index]
	if !s.inUse || s.gen != h.Gen {
		return nil, api.ErrHandleInvalid
	}
	return s, nil
}

// Acquire adds a reference, keeping the object alive beyond the
// allocating call's scope (e.g. an XI holding its MD, spec §3 invariant
// "An MD may not be released while any XI references it").
func (p *Pool[T]) Acquire(h api.Handle) error {
	p.mu.Lock()
	s, err := p.resolve(h)
	p.mu.Unlock()
	if err != nil {
		return err
	}
	s.refcount.Add(1)
	return nil
}

// Release removes a reference; at zero the slot is reclaimed and its
// generation bumped so stale handles fail lookup (spec §4.1).
func (p *Pool[T]) Release(h api.Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, err := p.resolve(h)
	if err != nil {
		return err
	}
	if s.refcount.Add(-1) > 0 {
		return nil
	}
	s.inUse = false
	s.gen++
	var zero T
	s.obj = zero
	p.free = append(p.free, h.Index)
	return nil
}

// Len returns the number of live objects.
func (p *Pool[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots) - len(p.free)
}

// Each calls fn once for every currently live object's value, snapshot
// under the pool lock so fn itself can run lock-free (spec §5
// Cancellation: ni.Fini walks cts/eqs this way to wake every waiter
// before tearing down NI state).
func (p *Pool[T]) Each(fn func(T)) {
	p.mu.Lock()
	live := make([]T, 0, len(p.slots)-len(p.free))
	for _, s := range p.slots {
		if s.inUse {
			live = append(live, s.obj)
		}
	}
	p.mu.Unlock()
	for _, obj := range live {
		fn(obj)
	}
}
