package smrproxy

import "sync"

// MutexRef is the reader-ref handle for a MutexEngine. "Reader" and
// "writer" are the same privilege level here — any pinned section
// excludes every other pinned section and a writer holding Exclusive(),
// and vice versa. Retire itself takes no lock.
type MutexRef struct {
	engine *MutexEngine
	locked bool
}

// Lock takes the engine's mutex.
func (r *MutexRef) Lock() {
	if r.locked {
		panic(errRelock())
	}
	r.engine.mu.Lock()
	r.locked = true
}

// Unlock releases the lock taken by Lock.
func (r *MutexRef) Unlock() {
	if !r.locked {
		return
	}
	r.engine.mu.Unlock()
	r.locked = false
}

// MutexEngine is a plain-Mutex-backed engine, grounded on
// original_source/sharedproxy/sharedproxy.h's mutexproxy. It trades
// the RWEngine's reader/reader concurrency for a single stdlib Mutex —
// appropriate when readers are rare enough that shared_mutex's extra
// bookkeeping isn't worth it.
type MutexEngine struct {
	mu sync.Mutex
}

// NewMutexEngine constructs a Mutex-backed engine.
func NewMutexEngine() *MutexEngine {
	return &MutexEngine{}
}

// AcquireRef returns a new reader-ref handle.
func (e *MutexEngine) AcquireRef() Ref {
	return &MutexRef{engine: e}
}

// ReleaseRef returns h to the engine. h must be unpinned.
func (e *MutexEngine) ReleaseRef(h Ref) {
	ref, ok := h.(*MutexRef)
	if !ok || ref.engine != e {
		panic(errBadRelease())
	}
}

// Retire destroys obj immediately. obj == nil is a no-op. Retire does not
// take the mutex itself: original_source/sharedproxy/sharedproxy.h's
// mutexproxy.retire() is a bare delete, and exclusion against pinned
// readers is the writer's own responsibility to hold, via Exclusive(),
// for as long as it needs it — taking the mutex here would also make
// Retire block on every outstanding reader; of the other engines only ARC
// ever waits on a reader in Retire, and only in the case described on
// ARC.Retire.
func (e *MutexEngine) Retire(obj Retirable) {
	if obj == nil {
		return
	}
	obj.Destroy()
}

// Shutdown is a no-op: Retire already destroys synchronously.
func (e *MutexEngine) Shutdown() {}

// Exclusive returns the engine's underlying Mutex so a writer can take it
// for exclusive access around one or more Retire calls — the same mutex
// every MutexRef locks, mirroring mutexproxy's acquire_ref returning the
// shared std::mutex* directly.
func (e *MutexEngine) Exclusive() *sync.Mutex {
	return &e.mu
}
