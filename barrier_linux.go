//go:build linux

package smrproxy

import (
	"sync"

	"golang.org/x/sys/unix"
)

// Linux membarrier(2) commands. golang.org/x/sys/unix does not expose a
// typed helper for this syscall, only the raw syscall number, so the
// command constants are reproduced here from linux/membarrier.h — exactly
// as original_source/membarrier/membarrier.h does for the C++ side.
const (
	membarrierCmdRegisterPrivateExpedited = 1 << 4
	membarrierCmdPrivateExpedited         = 1 << 3
)

// linuxBarrier issues the expedited private membarrier syscall.
type linuxBarrier struct {
	registerOnce sync.Once
	registerErr  error
	available    bool
}

func newHostBarrier() Barrier {
	b := &linuxBarrier{}
	_, _, errno := unix.Syscall(unix.SYS_MEMBARRIER, 0 /* MEMBARRIER_CMD_QUERY */, 0, 0)
	b.available = errno == 0
	return b
}

func (b *linuxBarrier) Register() error {
	b.registerOnce.Do(func() {
		_, _, errno := unix.Syscall(unix.SYS_MEMBARRIER, membarrierCmdRegisterPrivateExpedited, 0, 0)
		if errno != 0 {
			b.registerErr = errno
		}
	})
	return b.registerErr
}

func (b *linuxBarrier) Sync() error {
	_, _, errno := unix.Syscall(unix.SYS_MEMBARRIER, membarrierCmdPrivateExpedited, 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func (b *linuxBarrier) Available() bool { return b.available }
