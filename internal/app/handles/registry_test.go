package handles

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type widget struct {
	name string
}

func TestAllocateStartsAtOneAndIsMonotonic(t *testing.T) {
	r := NewRegistry()
	first := r.Allocate(&widget{name: "a"})
	second := r.Allocate(&widget{name: "b"})
	require.Equal(t, uint32(1), first)
	require.Equal(t, uint32(2), second)
}

func TestHandlesAreNeverReused(t *testing.T) {
	r := NewRegistry()
	first := r.Allocate(&widget{})
	require.True(t, r.Release(first))
	second := r.Allocate(&widget{})
	require.NotEqual(t, first, second)

	_, ok := r.Get(first)
	require.False(t, ok)
}

func TestWithMutable(t *testing.T) {
	r := NewRegistry()
	handle := r.Allocate(&widget{name: "before"})

	ok := r.WithMutable(handle, func(object interface{}) {
		object.(*widget).name = "after"
	})
	require.True(t, ok)

	object, ok := r.Get(handle)
	require.True(t, ok)
	require.Equal(t, "after", object.(*widget).name)
}

func TestWithMutableRefusesUnknownHandle(t *testing.T) {
	r := NewRegistry()
	called := false
	require.False(t, r.WithMutable(99, func(interface{}) { called = true }))
	require.False(t, called)
}

func TestFreezeBlocksMutation(t *testing.T) {
	r := NewRegistry()
	handle := r.Allocate(&widget{name: "frozen"})
	require.True(t, r.Freeze(handle))
	require.True(t, r.Frozen(handle))

	called := false
	require.False(t, r.WithMutable(handle, func(interface{}) { called = true }))
	require.False(t, called)

	// reads still work
	object, ok := r.Get(handle)
	require.True(t, ok)
	require.Equal(t, "frozen", object.(*widget).name)
}

func TestReleaseIsIdempotent(t *testing.T) {
	r := NewRegistry()
	handle := r.Allocate(&widget{})
	require.True(t, r.Release(handle))
	require.False(t, r.Release(handle))
	require.Equal(t, 0, r.Len())
}

func TestConcurrentAllocationYieldsDistinctHandles(t *testing.T) {
	r := NewRegistry()
	const workers = 50

	var wg sync.WaitGroup
	handleCh := make(chan uint32, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handleCh <- r.Allocate(&widget{})
		}()
	}
	wg.Wait()
	close(handleCh)

	seen := map[uint32]bool{}
	for handle := range handleCh {
		require.False(t, seen[handle])
		seen[handle] = true
	}
	require.Len(t, seen, workers)
}
