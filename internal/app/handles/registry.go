// Package handles maps small opaque integers to core-owned objects so
// callers never hold direct references across the API boundary. Handles
// are allocated monotonically and never reused within a process, which
// turns a use-after-release into a clean lookup failure instead of
// aliasing someone else's object.
package handles

import (
	"sync"
)

type entry struct {
	mu     sync.Mutex
	object interface{}
	frozen bool
}

// Registry is safe for concurrent use: lookups share a read lock,
// mutation serializes per handle, and only allocation takes the
// registry-wide write lock.
type Registry struct {
	mu      sync.RWMutex
	next    uint32
	entries map[uint32]*entry
}

func NewRegistry() *Registry {
	return &Registry{entries: map[uint32]*entry{}}
}

// Allocate stores the object and returns its handle. Handles start at
// 1 so the zero value is never valid.
func (r *Registry) Allocate(object interface{}) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.entries[r.next] = &entry{object: object}
	return r.next
}

// Get returns the object for a live handle.
func (r *Registry) Get(handle uint32) (interface{}, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[handle]
	if !ok {
		return nil, false
	}
	return e.object, true
}

// WithMutable runs fn with exclusive access to the object. It returns
// false, without calling fn, when the handle is unknown or the object
// has been frozen.
func (r *Registry) WithMutable(handle uint32, fn func(object interface{})) bool {
	r.mu.RLock()
	e, ok := r.entries[handle]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.frozen {
		return false
	}
	fn(e.object)
	return true
}

// Freeze makes the object read-only; every later WithMutable returns
// false. Called when a mock server starts or verification begins.
func (r *Registry) Freeze(handle uint32) bool {
	r.mu.RLock()
	e, ok := r.entries[handle]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frozen = true
	return true
}

func (r *Registry) Frozen(handle uint32) bool {
	r.mu.RLock()
	e, ok := r.entries[handle]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frozen
}

// Release drops the handle. The handle value is retired, not recycled.
func (r *Registry) Release(handle uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[handle]; !ok {
		return false
	}
	delete(r.entries, handle)
	return true
}

// Len reports the number of live handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
