//go:build windows

package fsstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// A marker older than this was left by a holder that died without
// cleaning up; persists finish in well under a second.
const staleMarkerAge = 10 * time.Minute

// Without flock the lock is an O_EXCL marker file that exists only while
// held.
func withLockFile(ctx context.Context, lockPath string, owner func() LockOwner, fn func() error) error {
	for {
		file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, defaultFilePerm)
		if err == nil {
			writeLockOwner(file, owner())
			defer func() {
				_ = file.Close()
				_ = os.Remove(lockPath)
			}()
			return fn()
		}
		if !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: create %s: %v", ErrLockUnavailable, lockPath, err)
		}
		if removeStaleMarker(lockPath) {
			continue
		}
		if err := waitForLockRetry(ctx, lockPath); err != nil {
			return err
		}
	}
}

func removeStaleMarker(lockPath string) bool {
	holder, ok, err := ReadLockOwner(lockPath)
	if err != nil || !ok || holder.AcquiredAt.IsZero() {
		return false
	}
	if time.Since(holder.AcquiredAt) < staleMarkerAge {
		return false
	}
	return os.Remove(lockPath) == nil
}
