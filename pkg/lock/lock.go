// Package lock provides the engine's single-instance exclusive lock. A
// second redpill process contending for the same working directory fails
// fast rather than blocking, matching the engine's fail-fast concurrency
// contract.
package lock

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/tav/redpill/pkg/errs"
)

// Lock is a held exclusive file lock. Release must be called exactly once.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes an exclusive, non-blocking flock on path, creating it (and
// its parent directory) if necessary. If another process already holds the
// lock, Acquire returns an error immediately instead of waiting.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, errs.Wrap(errs.Concurrency, "another redpill process is already running", err)
	}

	return &Lock{file: f, path: path}, nil
}

// Release unlocks and closes the lock file. It does not remove the file, so
// a later Acquire in the same process tree can reuse it.
func (l *Lock) Release() error {
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}
