package fsstore

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidPath       = errors.New("fsstore: invalid path")
	ErrLockTimeout       = errors.New("fsstore: lock timeout")
	ErrLockUnavailable   = errors.New("fsstore: lock unavailable")
	ErrEncodeFailed      = errors.New("fsstore: encode failed")
	ErrDecodeFailed      = errors.New("fsstore: decode failed")
	ErrAtomicWriteFailed = errors.New("fsstore: atomic write failed")
	ErrQuarantineFailed  = errors.New("fsstore: quarantine failed")
)

// LockBusyError reports a lock wait that ended before the lock was free.
// Holder is the owner recorded in the lock file, when it could be read.
// It matches ErrLockTimeout and the context error with errors.Is.
type LockBusyError struct {
	Path   string
	Holder *LockOwner
	Err    error
}

func (e *LockBusyError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "fsstore: lock busy: %s", e.Path)
	if h := e.Holder; h != nil {
		fmt.Fprintf(&b, " (held for %s by pid %d on %s since %s)", h.Purpose, h.PID, h.Hostname, h.AcquiredAt.Format("15:04:05"))
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *LockBusyError) Unwrap() []error {
	return []error{ErrLockTimeout, e.Err}
}
