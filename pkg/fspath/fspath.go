// SPDX-License-Identifier: MPL-2.0

// Package fspath holds the small filesystem primitives shared by the
// file-backed stores: atomic replacement of a file's content and recovery of
// temp files left behind by an interrupted write.
package fspath

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// TempSuffix is appended to a target path while its replacement is written.
const TempSuffix = ".tmp"

// TempPath returns the temp file used while replacing path.
func TempPath(path string) string { return path + TempSuffix }

// WriteAtomic replaces the content of path with data. The bytes are written
// to a sibling temp file and synced, then renamed over path, so a concurrent
// reader sees either the old or the new content, never a partial write.
func WriteAtomic(path string, data []byte, perm fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpPath := TempPath(path)
	if err := writeSynced(tmpPath, data, perm); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath) // Best-effort cleanup
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// writeSynced writes data to path and flushes it to stable storage before
// returning, so the rename in WriteAtomic never publishes an empty file.
func writeSynced(path string, data []byte, perm fs.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// RecoverTemp resolves a temp file orphaned by a crashed WriteAtomic. When the
// main file exists the orphan is removed; when it is missing the orphan is
// promoted. It reports whether the orphan was promoted.
func RecoverTemp(path string) (bool, error) {
	tmpPath := TempPath(path)
	if _, err := os.Stat(tmpPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}

	if _, err := os.Stat(path); err == nil {
		return false, os.Remove(tmpPath)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return false, fmt.Errorf("failed to promote %s: %w", tmpPath, err)
	}
	return true, nil
}
