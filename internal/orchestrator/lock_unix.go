// SPDX-License-Identifier: MPL-2.0

//go:build linux || darwin || freebsd

package orchestrator

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// lockFileName sits in the namespace next to globals.json. An orphaned
// zero-byte lock file is harmless: the kernel drops the flock with the fd.
const lockFileName = ".pstand.lock"

// namespaceLock holds a non-blocking exclusive flock on the namespace so two
// orchestrators never drive the same Global Store.
type namespaceLock struct {
	file *os.File
}

func acquireNamespaceLock(dir string) (*namespaceLock, error) {
	path := filepath.Join(dir, lockFileName)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", ErrNamespaceBusy, dir)
		}
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}

	return &namespaceLock{file: f}, nil
}

// Release unlocks and closes the lock file. Subsequent calls are no-ops.
func (l *namespaceLock) Release() {
	if l == nil || l.file == nil {
		return
	}
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		slog.Debug("flock unlock failed", "error", err)
	}
	if err := l.file.Close(); err != nil {
		slog.Debug("lock file close failed", "error", err)
	}
	l.file = nil
}
