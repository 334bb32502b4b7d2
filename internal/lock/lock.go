// Package lock provides advisory, cross-process file locks.
//
// Locks are non-blocking: TryLock either acquires the lock immediately or
// returns ErrLocked. Callers that want to wait implement their own retry.
// Two TryLock calls on the same path from one process contend with each
// other because each call opens its own file description.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrLocked is returned when another holder owns the lock.
var ErrLocked = errors.New("file is locked by another holder")

// FileLock is an acquired lock on a file. Release it with Unlock.
type FileLock struct {
	path string
	file *os.File
}

// TryLock opens (creating if needed) the file at path and takes an exclusive
// advisory lock on it without blocking.
func TryLock(path string) (*FileLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file %s: %w", path, err)
	}

	if err := lockFile(f); err != nil {
		f.Close()
		if errors.Is(err, ErrLocked) {
			return nil, err
		}
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}

	return &FileLock{path: path, file: f}, nil
}

// Path returns the path of the locked file.
func (l *FileLock) Path() string {
	return l.path
}

// Unlock releases the lock and closes the underlying file. It is safe to
// call more than once.
func (l *FileLock) Unlock() error {
	if l == nil || l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil

	unlockErr := unlockFile(f)
	closeErr := f.Close()
	if unlockErr != nil {
		return fmt.Errorf("unlocking %s: %w", l.path, unlockErr)
	}
	if closeErr != nil {
		return fmt.Errorf("closing %s: %w", l.path, closeErr)
	}
	return nil
}
