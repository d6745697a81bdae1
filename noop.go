package smrproxy

// NoopRef is the reader-ref handle for a NoopEngine: Lock/Unlock carry no
// synchronization at all beyond the re-entrancy check shared with every
// other engine's Ref. original_source/sharedproxy/sharedproxy.h's
// noopproxy.lock()/unlock() are not pure no-ops there — they emit a bare
// acquire/release std::atomic_thread_fence with no associated atomic
// variable, a standalone ordering point independent of any particular
// memory location. Go's sync/atomic has no equivalent: every fence it
// offers is attached to a specific atomic load/store/RMW on a specific
// variable, so there is no standalone primitive to reach for here without
// pairing it with an unrelated atomic variable purely to get the
// ordering side effect — which would misrepresent what this type
// actually synchronizes (nothing). Lock/Unlock are left as pure
// bookkeeping; this engine's entire contract is "the caller already
// guarantees safety some other way."
type NoopRef struct {
	locked bool
}

// Lock records pinned state; it takes no lock and issues no fence.
func (r *NoopRef) Lock() {
	if r.locked {
		panic(errRelock())
	}
	r.locked = true
}

// Unlock clears pinned state.
func (r *NoopRef) Unlock() {
	r.locked = false
}

// NoopEngine destroys retired objects immediately, inline, with no
// synchronization whatsoever. Grounded on
// original_source/sharedproxy/sharedproxy.h's noopproxy: correct only when
// the caller already guarantees via some other means (external locking,
// single-threaded use, a quiescent shutdown path) that no reader can
// observe a retired object.
type NoopEngine struct{}

// NewNoopEngine constructs a no-op engine.
func NewNoopEngine() *NoopEngine {
	return &NoopEngine{}
}

// AcquireRef returns a new reader-ref handle.
func (e *NoopEngine) AcquireRef() Ref {
	return &NoopRef{}
}

// ReleaseRef only checks that h is a NoopRef, panicking otherwise;
// NoopRef carries no engine-owned state to return.
func (e *NoopEngine) ReleaseRef(h Ref) {
	if _, ok := h.(*NoopRef); !ok {
		panic(errBadRelease())
	}
}

// Retire destroys obj immediately. obj == nil is a no-op.
func (e *NoopEngine) Retire(obj Retirable) {
	if obj == nil {
		return
	}
	obj.Destroy()
}

// Shutdown is a no-op.
func (e *NoopEngine) Shutdown() {}
