package handle

import (
	"sync"
	"testing"

	"github.com/momentics/portals4ni/api"
	"github.com/stretchr/testify/require"
)

func TestPool_AllocLookupRelease(t *testing.T) {
	p := New[int](api.KindMD, 0)

	h, obj, err := p.Alloc()
	require.NoError(t, err)
	*obj = 42

	got, err := p.Lookup(h)
	require.NoError(t, err)
	require.Equal(t, 42, *got)

	require.NoError(t, p.Release(h))
	_, err = p.Lookup(h)
	require.ErrorIs(t, err, api.ErrHandleInvalid)
}

func TestPool_StaleGenerationFailsLookup(t *testing.T) {
	p := New[int](api.KindMD, 0)

	h1, _, err := p.Alloc()
	require.NoError(t, err)
	require.NoError(t, p.Release(h1))

	h2, _, err := p.Alloc()
	require.NoError(t, err)
	require.Equal(t, h1.Index, h2.Index)
	require.NotEqual(t, h1.Gen, h2.Gen)

	_, err = p.Lookup(h1)
	require.ErrorIs(t, err, api.ErrHandleInvalid)

	_, err = p.Lookup(h2)
	require.NoError(t, err)
}

func TestPool_RefcountKeepsObjectAliveUntilLastRelease(t *testing.T) {
	p := New[int](api.KindMD, 0)
	h, _, err := p.Alloc()
	require.NoError(t, err)

	require.NoError(t, p.Acquire(h)) // refcount now 2

	require.NoError(t, p.Release(h)) // refcount now 1
	_, err = p.Lookup(h)
	require.NoError(t, err, "object must survive while still referenced")

	require.NoError(t, p.Release(h)) // refcount now 0
	_, err = p.Lookup(h)
	require.ErrorIs(t, err, api.ErrHandleInvalid)
}

func TestPool_LimitEnforced(t *testing.T) {
	p := New[int](api.KindCT, 2)
	_, _, err := p.Alloc()
	require.NoError(t, err)
	_, _, err = p.Alloc()
	require.NoError(t, err)
	_, _, err = p.Alloc()
	require.ErrorIs(t, err, api.ErrPoolExhausted)
}

func TestPool_ConcurrentAllocRelease(t *testing.T) {
	p := New[int](api.KindMD, 0)
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				h, _, err := p.Alloc()
				require.NoError(t, err)
				require.NoError(t, p.Release(h))
			}
		}()
	}
	wg.Wait()
}
