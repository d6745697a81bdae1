package smrproxy

import goerrors "github.com/agilira/go-errors"

// Error codes for the small, enumerable set of fatal conditions assigned
// to engine construction and ref-handle contract checks. The engines
// have almost no runtime error surface by design — these are not meant
// to be retried.
const (
	codeBarrierUnavailable = "SMR_BARRIER_UNAVAILABLE"
	codeBadRelease         = "SMR_BAD_RELEASE"
	codeRelock             = "SMR_RELOCK"
)

// ErrBarrierUnavailable is fatal at construction when an EBR engine is
// built requiring the host membarrier facility and the host does not
// provide it — a construction-time fatal condition rather than a silent
// fallback, since the fallback is a compile-time, not runtime, choice.
var ErrBarrierUnavailable = goerrors.New(codeBarrierUnavailable, "ebr: host membarrier facility unavailable")

// wrapBarrierUnavailable attaches the underlying registration failure to
// ErrBarrierUnavailable so callers can inspect what the host syscall
// actually returned, not just that registration failed.
func wrapBarrierUnavailable(cause error) error {
	return goerrors.Wrap(cause, codeBarrierUnavailable, "ebr: host membarrier facility unavailable")
}

// errBadRelease reports ReleaseRef called with a handle this engine did
// not create. This is caller error; the engines panic with it instead of
// corrupting engine state silently.
func errBadRelease() error {
	return goerrors.New(codeBadRelease, "engine: release of a ref handle not owned by this engine")
}

// errRelock reports Lock called on an already-pinned handle — re-entrant
// pinning is not supported.
func errRelock() error {
	return goerrors.New(codeRelock, "engine: lock called on an already-pinned ref handle")
}
