//go:build !windows

package fsstore

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// The lock file is kept between holders; only the flock matters.
func withLockFile(ctx context.Context, lockPath string, owner func() LockOwner, fn func() error) error {
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, defaultFilePerm)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrLockUnavailable, lockPath, err)
	}
	defer file.Close()

	fd := int(file.Fd())
	for {
		err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			break
		}
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EAGAIN) {
			return fmt.Errorf("%w: flock %s: %v", ErrLockUnavailable, lockPath, err)
		}
		if err := waitForLockRetry(ctx, lockPath); err != nil {
			return err
		}
	}
	defer func() { _ = unix.Flock(fd, unix.LOCK_UN) }()

	writeLockOwner(file, owner())
	return fn()
}
