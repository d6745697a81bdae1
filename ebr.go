package smrproxy

import (
	"sync"
	"sync/atomic"
	"time"

	timecache "github.com/agilira/go-timecache"
	"go.uber.org/zap"
)

// DefaultWaitMS is the reclaimer's pacing interval when the defer queue is
// non-empty, matching the original C++ smrproxy's default constructor.
const DefaultWaitMS = 50

// EBRNode is embedded by application types that want zero-allocation
// retirement through an EBR engine. It carries the intrusive next-link
// and the expiry bookkeeping assigned to every retired object. Types
// that embed EBRNode by value and are passed to
// EBR.Retire automatically avoid the external-wrapper allocation (see
// nodeFor) and support UpdateEpoch during slow traversals.
type EBRNode struct {
	next      *EBRNode
	preExpiry atomic.Uint64 // set by retire; a loose lower bound, see design notes
	expiry    atomic.Uint64 // set by the reclaimer when moved to the defer queue
	obj       Retirable
}

// Node returns n itself. Embedding EBRNode by value promotes this method
// to a pointer to the embedding type, so such a pointer satisfies
// EBRRetirable once the type also has a Destroy method.
func (n *EBRNode) Node() *EBRNode { return n }

// EBRRetirable is the optional, zero-allocation retire path: a Retirable
// that also exposes its intrusive EBRNode.
type EBRRetirable interface {
	Retirable
	Node() *EBRNode
}

// ebrExternalNode is the fallback wrapper used when Retire is handed a
// plain Retirable that does not embed EBRNode. It costs one allocation
// per retire — the external-node variant of the design, as opposed to
// the zero-allocation intrusive-node path above.
type ebrExternalNode struct {
	EBRNode
	obj Retirable
}

func (n *ebrExternalNode) Destroy() { n.obj.Destroy() }

func nodeFor(obj Retirable) *EBRNode {
	if er, ok := obj.(EBRRetirable); ok {
		n := er.Node()
		n.obj = er
		return n
	}
	ext := &ebrExternalNode{obj: obj}
	ext.EBRNode.obj = ext
	return &ext.EBRNode
}

// EBRRef is one reader's pin/unpin handle, cache-line aligned in intent
// (the pad field discourages the Go allocator from placing a hot
// reclaimer-written field and a hot reader-written field of two different
// refs on the same line; Go gives no alignment guarantee stronger than
// that, unlike the C++ original's alignas(64)).
type EBRRef struct {
	refEpoch       atomic.Uint64 // 0 when not pinned, else the epoch at which the reader pinned
	shadowEpoch    atomic.Uint64 // latest domain epoch broadcast by the reclaimer
	effectiveEpoch Epoch         // reclaimer-only: oldest epoch this reader might still observe
	locked         bool          // reader-local re-entrancy guard
	engine         *EBR
	_pad           [40]byte
}

// Lock pins the reader, beginning a critical section. Re-entrant pinning
// is a contract violation and panics.
func (r *EBRRef) Lock() {
	if r.locked {
		panic(errRelock())
	}
	epoch := r.shadowEpoch.Load()
	r.refEpoch.Store(epoch)
	r.locked = true
}

// Unlock unpins the reader, ending the critical section.
func (r *EBRRef) Unlock() {
	r.refEpoch.Store(0)
	r.locked = false
}

// UpdateEpoch supports long traversals over structures where individual
// nodes may be retired mid-walk: if obj has already been retired and its
// pre_expiry exceeds this reader's current ref_epoch, the reader's
// ref_epoch is raised to pre_expiry, extending its guarantee forward.
// Must not be called while unpinned. obj that does not implement
// EBRRetirable carries no bookkeeping to check and is a silent no-op.
func (r *EBRRef) UpdateEpoch(obj Retirable) {
	if !r.locked {
		panic("smrproxy: UpdateEpoch called on an unpinned ref")
	}
	er, ok := obj.(EBRRetirable)
	if !ok {
		return
	}
	pre := er.Node().preExpiry.Load()
	if pre == 0 {
		return
	}
	cur := r.refEpoch.Load()
	if Epoch(cur).Less(Epoch(pre)) {
		r.refEpoch.Store(pre)
	}
}

// EBR is an epoch-based reclamation engine.
type EBR struct {
	mu          sync.Mutex
	domainEpoch atomic.Uint64
	refs        []*EBRRef

	tail       atomic.Pointer[EBRNode] // LIFO stack of newly retired nodes
	deferQueue []*EBRNode

	wake     chan struct{}
	shutdown chan struct{}
	wg       sync.WaitGroup
	active   atomic.Bool

	waitMS  time.Duration
	barrier Barrier
	logger  *zap.Logger
}

// EBROption configures NewEBR.
type EBROption func(*EBR)

// WithEBRWaitMS overrides the reclaimer's pacing interval.
func WithEBRWaitMS(ms int) EBROption {
	return func(e *EBR) { e.waitMS = time.Duration(ms) * time.Millisecond }
}

// WithEBRLogger installs a logger for lifecycle events.
func WithEBRLogger(logger *zap.Logger) EBROption {
	return func(e *EBR) { e.logger = logger }
}

// WithEBRBarrier overrides the membarrier facility (for tests, or to
// force the sequentially-consistent fallback path).
func WithEBRBarrier(b Barrier) EBROption {
	return func(e *EBR) { e.barrier = b }
}

// NewEBR constructs an EBR engine and starts its background reclaimer.
// A barrier whose Register fails (on Linux builds, a host without a usable
// membarrier syscall) is fatal at construction rather than a silent
// fallback.
func NewEBR(opts ...EBROption) (*EBR, error) {
	e := &EBR{
		wake:     make(chan struct{}, 1),
		shutdown: make(chan struct{}),
		waitMS:   DefaultWaitMS * time.Millisecond,
		barrier:  NewBarrier(),
		logger:   nopLogger(),
	}
	e.domainEpoch.Store(1)
	for _, opt := range opts {
		opt(e)
	}

	if err := e.barrier.Register(); err != nil {
		e.logger.Error("ebr: membarrier register failed", zap.Error(err))
		return nil, wrapBarrierUnavailable(err)
	}

	e.active.Store(true)
	e.wg.Add(1)
	go e.reclaimLoop()
	e.logger.Info("ebr: reclaimer started", zap.Duration("wait", e.waitMS))

	return e, nil
}

// AcquireRef returns a new reader-ref handle.
func (e *EBR) AcquireRef() Ref {
	e.mu.Lock()
	defer e.mu.Unlock()

	ref := &EBRRef{engine: e}
	epoch := e.domainEpoch.Load()
	ref.shadowEpoch.Store(epoch)
	ref.effectiveEpoch = Epoch(epoch)
	e.refs = append(e.refs, ref)
	return ref
}

// ReleaseRef returns h to the engine. h must be unpinned.
func (e *EBR) ReleaseRef(h Ref) {
	ref, ok := h.(*EBRRef)
	if !ok || ref.engine != e {
		panic(errBadRelease())
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for i, r := range e.refs {
		if r == ref {
			e.refs = append(e.refs[:i], e.refs[i+1:]...)
			return
		}
	}
}

// Retire takes ownership of obj for deferred destruction. obj == nil is a
// no-op. Retire never blocks on readers.
func (e *EBR) Retire(obj Retirable) {
	if obj == nil {
		return
	}

	node := nodeFor(obj)
	node.preExpiry.Store(e.domainEpoch.Load())

	for {
		head := e.tail.Load()
		node.next = head
		if e.tail.CompareAndSwap(head, node) {
			if head == nil {
				select {
				case e.wake <- struct{}{}:
				default:
				}
			}
			return
		}
	}
}

// TryReclaim runs one synchronous reclamation pass and reports whether
// objects remain in the defer queue afterward. Exposed independent of the
// background reclaimer for deterministic tests that want to force a pass
// without waiting on wait_ms.
func (e *EBR) TryReclaim() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tryReclaimLocked()
}

func (e *EBR) tryReclaimLocked() bool {
	if head := e.tail.Swap(nil); head != nil {
		newEpoch := Epoch(e.domainEpoch.Load()).Add(2)
		e.domainEpoch.Store(uint64(newEpoch))

		for n := head; n != nil; n = n.next {
			n.expiry.Store(uint64(newEpoch))
		}

		for n := head; n != nil; {
			next := n.next
			e.deferQueue = append(e.deferQueue, n)
			n = next
		}

		// A full fence, the cross-thread barrier, then a full fence: Go's
		// atomic package already gives every load/store here sequential
		// consistency, so the extra fences the C++ original issues around
		// membarrier::sync() have no separate Go primitive to express —
		// the barrier syscall itself is the only part doing real work.
		if e.barrier.Available() {
			_ = e.barrier.Sync()
		}
	}

	current := e.domainEpoch.Load()
	oldest := Epoch(current)
	for _, ref := range e.refs {
		ref.shadowEpoch.Store(current)
		refEpoch := Epoch(ref.refEpoch.Load())
		if refEpoch == 0 {
			ref.effectiveEpoch = Epoch(current)
		} else {
			ref.effectiveEpoch = maxEpoch(ref.effectiveEpoch, refEpoch)
		}
		oldest = minEpoch(oldest, ref.effectiveEpoch)
	}

	kept := e.deferQueue[:0]
	for _, n := range e.deferQueue {
		if Epoch(n.expiry.Load()).LessEqual(oldest) {
			n.obj.Destroy()
		} else {
			kept = append(kept, n)
		}
	}
	e.deferQueue = kept

	return len(e.deferQueue) > 0
}

func (e *EBR) reclaimLoop() {
	defer e.wg.Done()
	for e.active.Load() {
		e.mu.Lock()
		pending := e.tryReclaimLocked()
		e.mu.Unlock()

		if !e.active.Load() {
			return
		}

		if pending {
			select {
			case <-e.wake:
			case <-time.After(e.waitMS):
			case <-e.shutdown:
				return
			}
		} else {
			select {
			case <-e.wake:
			case <-e.shutdown:
				return
			}
		}
	}
}

// Shutdown stops the reclaimer goroutine, joins it, then destroys any
// object still in the defer queue regardless of epoch — every reader is
// assumed gone by contract at this point.
func (e *EBR) Shutdown() {
	if !e.active.CompareAndSwap(true, false) {
		return
	}
	close(e.shutdown)
	e.wg.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()

	if head := e.tail.Swap(nil); head != nil {
		for n := head; n != nil; {
			next := n.next
			e.deferQueue = append(e.deferQueue, n)
			n = next
		}
	}
	for _, n := range e.deferQueue {
		n.obj.Destroy()
	}
	e.deferQueue = nil
	e.logger.Info("ebr: shutdown complete", zap.Time("at", timecache.Now()))
}

// Stats is a cheap, engine-internal snapshot, not an external
// benchmark-harness aggregation facility.
type EBRStats struct {
	DomainEpoch   Epoch
	RefCount      int
	DeferQueueLen int
}

// Stats returns a point-in-time snapshot of engine state.
func (e *EBR) Stats() EBRStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return EBRStats{
		DomainEpoch:   Epoch(e.domainEpoch.Load()),
		RefCount:      len(e.refs),
		DeferQueueLen: len(e.deferQueue),
	}
}
