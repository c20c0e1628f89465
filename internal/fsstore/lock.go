package fsstore

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	lockDirName   = ".fslocks"
	lockKeyMaxLen = 120
	lockRetryWait = 25 * time.Millisecond
)

// LockOwner is written into a held lock file so a waiter that gives up, or
// an operator looking at the directory, can tell who holds it.
type LockOwner struct {
	Purpose    string    `json:"purpose"`
	Target     string    `json:"target"`
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Lock is a cross-process exclusive lock guarding one file. The lock file
// lives in a ".fslocks" directory next to the target.
type Lock struct {
	Path    string
	Target  string
	Purpose string
}

func LockFor(target, purpose string) (Lock, error) {
	target, err := normalizePath(target)
	if err != nil {
		return Lock{}, err
	}
	purpose = strings.TrimSpace(purpose)
	if purpose == "" {
		purpose = "write"
	}
	key := lockKeyFromName(filepath.Base(target))
	return Lock{
		Path:    filepath.Join(filepath.Dir(target), lockDirName, key+".lck"),
		Target:  target,
		Purpose: purpose,
	}, nil
}

// Do runs fn while holding the lock, polling until ctx is done. A wait
// that runs out returns a *LockBusyError naming the current holder.
func (l Lock) Do(ctx context.Context, fn func() error) error {
	if fn == nil {
		return nil
	}
	path, err := normalizePath(l.Path)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := EnsureDir(filepath.Dir(path), defaultDirPerm); err != nil {
		return err
	}
	err = withLockFile(ctx, path, l.owner, fn)
	var busy *LockBusyError
	if errors.As(err, &busy) && busy.Holder == nil {
		if holder, ok, _ := ReadLockOwner(path); ok {
			busy.Holder = &holder
		}
	}
	return err
}

func (l Lock) owner() LockOwner {
	host, _ := os.Hostname()
	return LockOwner{
		Purpose:    l.Purpose,
		Target:     l.Target,
		PID:        os.Getpid(),
		Hostname:   host,
		AcquiredAt: time.Now().UTC(),
	}
}

// ReadLockOwner returns the owner last recorded in the lock file at path.
// The record outlives the lock on platforms where the file is kept.
func ReadLockOwner(path string) (LockOwner, bool, error) {
	var owner LockOwner
	ok, err := ReadJSON(path, &owner)
	if err != nil || !ok {
		return LockOwner{}, false, err
	}
	return owner, true, nil
}

func writeLockOwner(file *os.File, owner LockOwner) {
	data, err := json.Marshal(owner)
	if err != nil {
		return
	}
	_ = file.Truncate(0)
	_, _ = file.Seek(0, 0)
	_, _ = file.Write(append(data, '\n'))
}

func lockKeyFromName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	key := strings.Trim(b.String(), ".")
	if len(key) > lockKeyMaxLen {
		key = strings.Trim(key[:lockKeyMaxLen], ".")
	}
	if key == "" {
		key = "state"
	}
	return key
}

func waitForLockRetry(ctx context.Context, lockPath string) error {
	timer := time.NewTimer(lockRetryWait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return &LockBusyError{Path: lockPath, Err: ctx.Err()}
	case <-timer.C:
		return nil
	}
}
