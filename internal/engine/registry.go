package engine

import "sync"

// Callback handles events of the kind it was registered for.
//
// A returned error or a panic is treated as a handler failure: it is logged
// and does not stop the remaining callbacks of the same publish.
type Callback interface {
	Handle(c *Context, ev Event) error
}

// CallbackFunc adapts a plain function to Callback.
type CallbackFunc func(c *Context, ev Event) error

// Handle implements Callback.
func (f CallbackFunc) Handle(c *Context, ev Event) error {
	return f(c, ev)
}

type registration struct {
	handle   Handle
	callback Callback
}

// registry maps event kinds to their callbacks in registration order.
//
// Each kind's slice is copy-on-write: add and remove build a new slice, so a
// publish iterating a snapshot never observes a partial update.
type registry struct {
	mu     sync.RWMutex
	byKind map[Kind][]registration
}

func newRegistry() *registry {
	return &registry{byKind: make(map[Kind][]registration)}
}

func (r *registry) add(kind Kind, reg registration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.byKind[kind]
	next := make([]registration, len(old), len(old)+1)
	copy(next, old)
	r.byKind[kind] = append(next, reg)
}

// remove drops the registration with handle h. Returns false if absent.
func (r *registry) remove(kind Kind, h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.byKind[kind]
	for i, reg := range old {
		if reg.handle != h {
			continue
		}
		if len(old) == 1 {
			delete(r.byKind, kind)
			return true
		}
		next := make([]registration, 0, len(old)-1)
		next = append(next, old[:i]...)
		next = append(next, old[i+1:]...)
		r.byKind[kind] = next
		return true
	}
	return false
}

// snapshot returns the current registrations for kind. The caller must not
// modify the returned slice.
func (r *registry) snapshot(kind Kind) []registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byKind[kind]
}

func (r *registry) count(kind Kind) int {
	return len(r.snapshot(kind))
}
