package smrproxy

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// arcLocalOne and arcLinkOne are the two sub-field increments packed into
// a node's 64-bit count: the high 32 bits are the local/ephemeral
// (reader-pin) count, the low 32 bits are the link count. The same split
// is reused for the engine's tail field, where the high 32 bits are a
// pending local-pin accumulator and the low 32 bits are the current
// generation index. See original_source/arcproxy/arcproxy.h's
// ONE_REF/ONE_LINK — the comment beside that header's own refcount_t
// declares the halves backwards relative to what its word0/word1 helpers
// and call sites actually do; this file follows the code, not that
// comment.
const (
	arcLocalOne = uint64(1) << 32
	arcLinkOne  = uint64(1)
)

const (
	arcLinkDraining  = uint32(0)
	arcLinkTailOwned = uint32(1)
	arcLinkFree      = uint32(2)
)

func packWords(hi, lo uint32) uint64 { return uint64(hi)<<32 | uint64(lo) }
func hiWord(v uint64) uint32         { return uint32(v >> 32) }
func loWord(v uint64) uint32         { return uint32(v) }

// ARCNode is embedded by application types that want zero-allocation
// retirement through an ARC engine's per-node reclaim queue.
type ARCNode struct {
	next *ARCNode
	obj  Retirable
}

// Node returns n itself; embedding ARCNode promotes this method.
func (n *ARCNode) Node() *ARCNode { return n }

// ARCRetirable is the optional zero-allocation retire path.
type ARCRetirable interface {
	Retirable
	Node() *ARCNode
}

type arcExternalNode struct {
	ARCNode
	obj Retirable
}

func (n *arcExternalNode) Destroy() { n.obj.Destroy() }

func arcNodeFor(obj Retirable) *ARCNode {
	if ar, ok := obj.(ARCRetirable); ok {
		n := ar.Node()
		n.obj = ar
		return n
	}
	ext := &arcExternalNode{obj: obj}
	ext.ARCNode.obj = ext
	return &ext.ARCNode
}

// arcSlot is one generation node in the ring: a packed refcount and a
// lock-free LIFO of objects retired while this slot held the tail.
type arcSlot struct {
	count       atomic.Uint64
	reclaimHead atomic.Pointer[ARCNode]
}

// ARCRef is a reader's pin/unpin handle for an ARC engine. The zero value
// is not pinned; index is meaningless until Lock records it.
type ARCRef struct {
	index  uint32
	locked bool
	engine *ARC
}

// Lock is wait-free: it fetch-adds the tail's pending local accumulator
// and records the generation index that fetch-add landed on.
func (r *ARCRef) Lock() {
	if r.locked {
		panic(errRelock())
	}
	r.index = r.engine.pin()
	r.locked = true
}

// Unlock drops the reader's local reference on the pinned generation and,
// if that was the last outstanding reference, drains and frees the
// generation, walking forward through any chain of now-unreferenced
// tails.
func (r *ARCRef) Unlock() {
	if !r.locked {
		return
	}
	r.engine.unpin(r.index)
	r.locked = false
}

// ARC is the array-of-reference-counts reclamation engine.
type ARC struct {
	nodes  []arcSlot
	tail   atomic.Uint64 // packed (pending local accumulator, current tail index)
	logger *zap.Logger
}

// ARCOption configures NewARC.
type ARCOption func(*ARC)

// WithARCLogger installs a logger for lifecycle events.
func WithARCLogger(logger *zap.Logger) ARCOption {
	return func(a *ARC) { a.logger = logger }
}

// NewARC constructs an ARC engine with a ring of size generation nodes.
// Node 0 starts tail-owned (link count 1); every other node starts free
// (link count 2) until the ring advances onto it.
func NewARC(size int, opts ...ARCOption) *ARC {
	if size < 2 {
		size = 2
	}
	a := &ARC{
		nodes:  make([]arcSlot, size),
		logger: nopLogger(),
	}
	a.nodes[0].count.Store(packWords(0, arcLinkTailOwned))
	for i := 1; i < size; i++ {
		a.nodes[i].count.Store(packWords(0, arcLinkFree))
	}
	a.tail.Store(packWords(0, 0))

	for _, opt := range opts {
		opt(a)
	}
	a.logger.Info("arc: engine constructed", zap.Int("ring_size", size))
	return a
}

// AcquireRef returns a new reader-ref handle. For ARC, acquire/release
// are allocator calls only — there is no shared state to register into.
func (a *ARC) AcquireRef() Ref {
	return &ARCRef{engine: a}
}

// ReleaseRef returns h to the engine.
func (a *ARC) ReleaseRef(h Ref) {
	ref, ok := h.(*ARCRef)
	if !ok || ref.engine != a {
		panic(errBadRelease())
	}
}

// pin is the wait-free fast path, mirroring
// original_source/arcproxy/arcproxy.h's _lock(): it folds "bump the
// pending local-pin count for whichever generation is currently tail" and
// "read which generation that bump landed on" into a single atomic
// fetch-add against tail itself. The node's own count is left untouched
// until the ring advances past this generation (see addTail) — every pin
// against a live tail is a debt the node's count does not yet know about.
func (a *ARC) pin() uint32 {
	after := a.tail.Add(arcLocalOne)
	before := after - arcLocalOne
	return loWord(before)
}

// unpin drops one reference from ndx, mirroring _unlock()'s forward-walk
// cascade. The first reference dropped is always a local (reader) pin.
// If that zeroes the node's packed count, the node is drained and freed,
// and the walk advances to the next ring slot to drop the link reference
// that slot was owed by the one just freed — which can itself zero out
// and cascade further. If the node is not yet zero but is still the live
// tail with retires queued, unpin instead takes a fresh pin-and-unpin
// detour through addTail: this is what gives some thread the opportunity
// to transfer the generation's accumulated pending local count (parked in
// tail, per pin's doc comment) into the node's own count, which a plain
// fetch-sub loop could otherwise never observe happening.
func (a *ARC) unpin(ndx0 uint32) {
	ndx := ndx0
	dropcount := arcLocalOne
	for {
		slot := &a.nodes[ndx]
		after := slot.count.Add(-dropcount)
		prev := after + dropcount

		if prev == dropcount {
			a.drainSlot(ndx)
			slot.count.Store(packWords(0, arcLinkFree))
		} else if loWord(a.tail.Load()) == ndx && slot.reclaimHead.Load() != nil {
			local := a.pin()
			a.addTail(ndx)
			ndx = local
			dropcount = arcLocalOne
			continue
		} else {
			break
		}

		dropcount = arcLinkOne
		ndx = (ndx + 1) % uint32(len(a.nodes))
	}
}

// drainSlot destroys every object queued on slot idx's reclaim list.
func (a *ARC) drainSlot(idx uint32) {
	head := a.nodes[idx].reclaimHead.Swap(nil)
	for n := head; n != nil; {
		next := n.next
		n.obj.Destroy()
		n = next
	}
}

// addTail attempts to transfer oldIdx's pending local accumulator out of
// tail and advance the ring past it, mirroring add_tail(). oldIdx must
// still read tail-owned (link count 1, i.e. not yet transferred) and
// carry queued retires, and the next ring slot must read free, or this is
// a no-op. On success, every local pin that accumulated in tail while
// oldIdx was current is folded into oldIdx's own count in a single atomic
// add: packWords(xx, 0) - arcLinkOne simultaneously adds xx to the local
// word and borrows one unit off the link word, via the same cross-field
// carry that a plain unsigned subtraction produces.
func (a *ARC) addTail(oldIdx uint32) {
	slot := &a.nodes[oldIdx]
	if loWord(slot.count.Load()) != arcLinkTailOwned {
		return
	}
	if slot.reclaimHead.Load() == nil {
		return
	}

	newIdx := (oldIdx + 1) % uint32(len(a.nodes))
	if a.nodes[newIdx].count.Load() != packWords(0, arcLinkFree) {
		return
	}

	newTail := packWords(0, newIdx)
	var oldTail uint64
	for {
		oldTail = a.tail.Load()
		if loWord(oldTail) != oldIdx {
			return
		}
		if a.tail.CompareAndSwap(oldTail, newTail) {
			break
		}
	}

	xx := hiWord(oldTail)
	slot.count.Add(packWords(xx, 0) - arcLinkOne)
}

// Retire pins self to obtain a generation index, pushes obj onto that
// generation's reclaim queue, then unpins. obj == nil is a no-op.
//
// If that generation is still the tail while its link from the previous
// generation is held (an earlier generation still has a pinned reader),
// addTail cannot advance the ring and the final unpin keeps re-pinning
// and retrying, so Retire does not return until that earlier reader
// unpins.
func (a *ARC) Retire(obj Retirable) {
	if obj == nil {
		return
	}
	node := arcNodeFor(obj)
	idx := a.pin()
	slot := &a.nodes[idx]
	for {
		head := slot.reclaimHead.Load()
		node.next = head
		if slot.reclaimHead.CompareAndSwap(head, node) {
			break
		}
	}
	a.unpin(idx)
}

// Shutdown destroys every object still queued across the ring by force.
func (a *ARC) Shutdown() {
	for i := range a.nodes {
		a.drainSlot(uint32(i))
	}
	a.logger.Info("arc: shutdown complete")
}

// ARCNodeCount is a point-in-time snapshot of one ring slot. Local may
// read as a large value (viewed as unsigned) for a generation whose
// pending accumulator has not yet been transferred out of tail — that is
// expected, not corruption; see pin's doc comment.
type ARCNodeCount struct {
	Local uint32
	Link  uint32
}

// ARCStats is a cheap, engine-internal snapshot.
type ARCStats struct {
	TailIndex uint32
	Nodes     []ARCNodeCount
}

// Stats returns a point-in-time snapshot of the ring.
func (a *ARC) Stats() ARCStats {
	nodes := make([]ARCNodeCount, len(a.nodes))
	for i := range a.nodes {
		v := a.nodes[i].count.Load()
		nodes[i] = ARCNodeCount{Local: hiWord(v), Link: loWord(v)}
	}
	return ARCStats{
		TailIndex: loWord(a.tail.Load()),
		Nodes:     nodes,
	}
}
