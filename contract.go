package smrproxy

// Retirable is the common shape of every object handed to Engine.Retire.
// Ownership transfers to the engine at the call to Retire; the caller
// must not read or write the object afterward.
//
// Destroy is the engine's polymorphic destructor call — analogous to a
// virtual destructor in the reference C++ design this module is modeled
// on. Engines here chain retired objects through a small per-retire
// wrapper node rather than an intrusive field on Retirable itself, which
// costs one allocation per retire for plain Retirables that don't embed
// the engine's own node type.
type Retirable interface {
	Destroy()
}

// DebugRetirable wraps a Retirable with a one-shot "deleted" flag so a
// second call to Destroy panics instead of silently corrupting engine
// state. It is the Go analog of original_source/smrproxy/smrproxy.h's
// smr_obj_base.deleted.
type DebugRetirable struct {
	Retirable
	deleted bool
}

// NewDebugRetirable wraps obj for double-destroy detection.
func NewDebugRetirable(obj Retirable) *DebugRetirable {
	return &DebugRetirable{Retirable: obj}
}

// Destroy implements Retirable, panicking if called more than once.
func (d *DebugRetirable) Destroy() {
	if d.deleted {
		panic("smrproxy: double-destroy of retired object")
	}
	d.deleted = true
	d.Retirable.Destroy()
}

// Ref is a reader-ref handle: a single reader thread's capability to pin
// (Lock) and unpin (Unlock) a short critical section. Re-entrant pinning
// is not supported — calling Lock twice without an intervening Unlock is
// a contract violation.
type Ref interface {
	Lock()
	Unlock()
}

// Engine is the capability set every reclamation strategy in this module
// satisfies. A single application can depend on Engine and swap the
// concrete strategy (EBR, ARC, or one of the simple auxiliary engines)
// without other code changes.
type Engine interface {
	// AcquireRef returns a handle usable by exactly one reader thread.
	// Lifetime is caller-managed.
	AcquireRef() Ref

	// ReleaseRef returns h to the engine. h must be unpinned.
	ReleaseRef(h Ref)

	// Retire takes ownership of obj. It does not block on readers, except
	// in the ARC case described on ARC.Retire. Retire(nil) is a no-op.
	Retire(obj Retirable)

	// Shutdown stops any background reclamation activity and destroys
	// everything still retired, regardless of epoch/refcount state — all
	// readers are assumed gone by contract at this point.
	Shutdown()
}
