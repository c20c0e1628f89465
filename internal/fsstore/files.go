package fsstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultDirPerm  = 0o700
	defaultFilePerm = 0o600

	quarantineTimeLayout = "20060102T150405Z"
)

type FileOptions struct {
	DirPerm  os.FileMode
	FilePerm os.FileMode
}

func (o FileOptions) normalized() FileOptions {
	if o.DirPerm == 0 {
		o.DirPerm = defaultDirPerm
	}
	if o.FilePerm == 0 {
		o.FilePerm = defaultFilePerm
	}
	return o
}

func normalizePath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	return filepath.Clean(path), nil
}

func EnsureDir(path string, perm os.FileMode) error {
	normalized, err := normalizePath(path)
	if err != nil {
		return err
	}
	if perm == 0 {
		perm = defaultDirPerm
	}
	if err := os.MkdirAll(normalized, perm); err != nil {
		return fmt.Errorf("fsstore ensure dir %s: %w", normalized, err)
	}
	return nil
}

// ReadJSON decodes path into out. A missing or blank file reports
// exists=false with no error; undecodable content wraps ErrDecodeFailed.
func ReadJSON(path string, out any) (bool, error) {
	normalizedPath, err := normalizePath(path)
	if err != nil {
		return false, err
	}
	data, err := os.ReadFile(normalizedPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read json %s: %w", normalizedPath, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("%w: decode %s: %v", ErrDecodeFailed, normalizedPath, err)
	}
	return true, nil
}

func WriteJSONAtomic(path string, v any, opts FileOptions) error {
	normalizedPath, err := normalizePath(path)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrEncodeFailed, normalizedPath, err)
	}
	data = append(data, '\n')
	return writeAtomic(normalizedPath, data, opts)
}

func ReadText(path string) (string, bool, error) {
	normalizedPath, err := normalizePath(path)
	if err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(normalizedPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read text %s: %w", normalizedPath, err)
	}
	return string(data), true, nil
}

// Quarantine moves path aside as "<path>.corrupt-<utc timestamp>" and returns
// the new location. A missing file is not an error and returns "".
func Quarantine(path string, now time.Time) (string, error) {
	normalizedPath, err := normalizePath(path)
	if err != nil {
		return "", err
	}
	if now.IsZero() {
		now = time.Now()
	}
	target := normalizedPath + ".corrupt-" + now.UTC().Format(quarantineTimeLayout)
	for i := 1; ; i++ {
		if _, statErr := os.Stat(target); errors.Is(statErr, os.ErrNotExist) {
			break
		}
		target = fmt.Sprintf("%s.corrupt-%s.%d", normalizedPath, now.UTC().Format(quarantineTimeLayout), i)
	}
	if err := os.Rename(normalizedPath, target); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("%w: rename %s: %v", ErrQuarantineFailed, normalizedPath, err)
	}
	return target, nil
}

func writeAtomic(path string, content []byte, opts FileOptions) error {
	opts = opts.normalized()

	parentDir := filepath.Dir(path)
	if err := EnsureDir(parentDir, opts.DirPerm); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(parentDir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("%w: create temp for %s: %v", ErrAtomicWriteFailed, path, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("%w: write temp for %s: %v", ErrAtomicWriteFailed, path, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("%w: sync temp for %s: %v", ErrAtomicWriteFailed, path, err)
	}
	if err := tmp.Chmod(opts.FilePerm); err != nil {
		return fmt.Errorf("%w: chmod temp for %s: %v", ErrAtomicWriteFailed, path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close temp for %s: %v", ErrAtomicWriteFailed, path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("%w: rename temp for %s: %v", ErrAtomicWriteFailed, path, err)
	}

	// Best effort directory sync; ignore failures.
	if dirFD, err := os.Open(parentDir); err == nil {
		_ = dirFD.Sync()
		_ = dirFD.Close()
	}
	return nil
}
