package smrproxy

import "sync"

// RWRef is the reader-ref handle for an RWEngine: Lock/Unlock take and
// release the engine's RWMutex for read, so "pinned" and "read-locked"
// are the same state.
type RWRef struct {
	engine *RWEngine
	locked bool
}

// Lock takes the engine's mutex for reading.
func (r *RWRef) Lock() {
	if r.locked {
		panic(errRelock())
	}
	r.engine.mu.RLock()
	r.locked = true
}

// Unlock releases the read lock taken by Lock.
func (r *RWRef) Unlock() {
	if !r.locked {
		return
	}
	r.engine.mu.RUnlock()
	r.locked = false
}

// RWEngine is an RWMutex-backed engine: a writer that holds the write lock
// (see Exclusive) around Retire knows no reader is still mid-traversal.
// Retire itself takes no lock and destroys immediately.
// Grounded on original_source/sharedproxy/sharedproxy.h's sharedproxy,
// which is exactly a shared_mutex wrapped in the same
// acquire_ref/release_ref/retire shape as the epoch and refcount engines.
type RWEngine struct {
	mu sync.RWMutex
}

// NewRWEngine constructs an RWMutex-backed engine.
func NewRWEngine() *RWEngine {
	return &RWEngine{}
}

// AcquireRef returns a new reader-ref handle.
func (e *RWEngine) AcquireRef() Ref {
	return &RWRef{engine: e}
}

// ReleaseRef returns h to the engine. h must be unpinned.
func (e *RWEngine) ReleaseRef(h Ref) {
	ref, ok := h.(*RWRef)
	if !ok || ref.engine != e {
		panic(errBadRelease())
	}
}

// Retire destroys obj immediately. obj == nil is a no-op. Retire does not
// take the write lock itself: original_source/sharedproxy/sharedproxy.h's
// retire() is a bare delete, and the exclusive side of the mutual
// exclusion is the writer's own responsibility to hold (via the same
// RWMutex this engine's refs read-lock) for as long as it needs exclusive
// access, before calling Retire. Taking the write lock here would also
// make Retire block on every outstanding reader; of the other engines only
// ARC ever waits on a reader in Retire, and only in the case described on
// ARC.Retire.
func (e *RWEngine) Retire(obj Retirable) {
	if obj == nil {
		return
	}
	obj.Destroy()
}

// Shutdown is a no-op: Retire already destroys synchronously, so there is
// nothing left deferred to flush.
func (e *RWEngine) Shutdown() {}

// Exclusive returns the engine's underlying RWMutex so a writer can take
// it for exclusive access around one or more Retire calls, mirroring how
// original_source/sharedproxy/sharedproxy.h's writer holds the very same
// shared_mutex this engine's refs take for reading — the proxy itself
// never arbitrates the exclusive side.
func (e *RWEngine) Exclusive() *sync.RWMutex {
	return &e.mu
}
