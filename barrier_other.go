//go:build !linux

package smrproxy

// newHostBarrier falls back to the no-op barrier on hosts without a Linux
// membarrier(2) syscall. The EBR engine compensates with a
// sequentially-consistent store on the reader fast path (see ebr.go).
func newHostBarrier() Barrier {
	return noopBarrier{}
}
