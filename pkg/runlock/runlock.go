// Package runlock serializes pipeline runs with a lock file. The gold label
// store and manifest are single-writer; two concurrent runs must never be
// scheduled, so a whole-run lock replaces fine-grained locking inside the
// stores.
package runlock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrLocked means another run currently holds the lock.
var ErrLocked = errors.New("another pipeline run is in progress")

// Lock is a held run lock.
type Lock struct {
	path string
}

// Acquire takes the lock at path, failing with ErrLocked when a lock file
// already exists. The file records the holder's pid for operators cleaning
// up after a crash.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w (lock file: %s)", ErrLocked, path)
		}
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}

	fmt.Fprintf(f, "%d\n", os.Getpid())
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to write run lock: %w", err)
	}

	return &Lock{path: path}, nil
}

// Release removes the lock file.
func (l *Lock) Release() error {
	return os.Remove(l.path)
}
