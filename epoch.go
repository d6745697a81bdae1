package smrproxy

// Epoch is an opaque, monotonically advancing 64-bit logical timestamp.
// The zero value is reserved as a sentinel meaning "not pinned" — it is
// never assigned as a real domain epoch (domain epochs start at 1 and
// only ever increase).
//
// Comparison is wrap-safe: Less treats the difference between two epochs
// as a signed 64-bit value, so an epoch may advance indefinitely without
// the usual unsigned-overflow pitfalls, as long as no two epochs being
// compared are ever more than 2^63 apart.
type Epoch uint64

// Less reports whether e happened strictly before other.
func (e Epoch) Less(other Epoch) bool {
	return int64(e-other) < 0
}

// LessEqual reports whether e happened before or at the same time as other.
func (e Epoch) LessEqual(other Epoch) bool {
	return int64(e-other) <= 0
}

// Add returns e advanced by delta.
func (e Epoch) Add(delta uint64) Epoch {
	return e + Epoch(delta)
}

// maxEpoch returns the later of two epochs, per wrap-safe ordering.
func maxEpoch(a, b Epoch) Epoch {
	if a.Less(b) {
		return b
	}
	return a
}

// minEpoch returns the earlier of two epochs, per wrap-safe ordering.
func minEpoch(a, b Epoch) Epoch {
	if b.Less(a) {
		return b
	}
	return a
}
