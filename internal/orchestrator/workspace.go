// SPDX-License-Identifier: MPL-2.0

package orchestrator

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dunhampa/poststand-core/internal/logging"
	"github.com/dunhampa/poststand-core/pkg/platform"
)

const (
	// NamespacePrefix starts every ephemeral namespace directory name.
	NamespacePrefix = "pstand-"
	// DefaultRetention is how old a sibling namespace must be before the
	// sweep removes it.
	DefaultRetention = 30 * time.Minute
)

type (
	// Clock is the time source used for durations and namespace names.
	Clock interface {
		Now() time.Time
		Since(t time.Time) time.Duration
	}

	systemClock struct{}

	// WorkspaceOptions configures PrepareWorkspace.
	WorkspaceOptions struct {
		// Host selects the namespace strategy.
		Host platform.HostKind
		// LocalDir is the namespace on a local host. Required there.
		LocalDir string
		// Root is the parent of ephemeral namespaces. Defaults to os.TempDir().
		Root string
		// RequestID names the namespace. Defaults to AWS_REQUEST_ID, then a UUID.
		RequestID string
		// Retention is the sweep threshold. Defaults to DefaultRetention.
		Retention time.Duration
		Clock     Clock
		Logger    *log.Logger
		// Getenv defaults to os.Getenv.
		Getenv func(string) string
	}

	// Workspace is a run namespace: the directory holding the Global Store
	// and the Run Log.
	Workspace struct {
		// Dir is the namespace directory.
		Dir string
		// RequestID identifies the run.
		RequestID string
		// Ephemeral is true when Dir was created for this run and is
		// removed by Teardown.
		Ephemeral bool

		logger *log.Logger
	}
)

func (systemClock) Now() time.Time                  { return time.Now() }
func (systemClock) Since(t time.Time) time.Duration { return time.Since(t) }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// PrepareWorkspace establishes the namespace for one run. On an ephemeral
// host it sweeps stale sibling namespaces, logs scratch usage, and creates
// <root>/pstand-<requestID>-<unixMillis>. On a local host it uses LocalDir.
func PrepareWorkspace(opts WorkspaceOptions) (*Workspace, error) {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}
	requestID := opts.RequestID
	if requestID == "" {
		requestID = opts.Getenv(platform.EnvRequestID)
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}

	if !opts.Host.IsEphemeral() {
		if opts.LocalDir == "" {
			return nil, fmt.Errorf("local workspace: no namespace directory")
		}
		dir, err := filepath.Abs(opts.LocalDir)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("local workspace: %w", err)
		}
		return &Workspace{Dir: dir, RequestID: requestID, logger: opts.Logger}, nil
	}

	root := opts.Root
	if root == "" {
		root = os.TempDir()
	}
	retention := opts.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}

	now := opts.Clock.Now()
	if removed := Sweep(root, retention, now, opts.Logger); removed > 0 {
		opts.Logger.Info("removed stale namespaces", "root", root, "count", removed)
	}
	logScratchUsage(opts.Logger, root)

	dir := filepath.Join(root, NamespaceName(requestID, now))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create namespace: %w", err)
	}
	opts.Logger.Info("created namespace", "dir", dir)

	return &Workspace{Dir: dir, RequestID: requestID, Ephemeral: true, logger: opts.Logger}, nil
}

// logScratchUsage reports the size of root at debug level. The walk is
// skipped entirely when debug output is off.
func logScratchUsage(logger *log.Logger, root string) {
	if logger.GetLevel() > log.DebugLevel {
		return
	}
	if size, err := DirUsage(root); err != nil {
		logger.Debug("scratch usage unavailable", "root", root, "error", err)
	} else {
		logger.Debug("scratch usage", "root", root, "bytes", size)
	}
}

// NamespaceName returns the directory name for an ephemeral namespace.
// Path separators in requestID are replaced so the name stays one element.
func NamespaceName(requestID string, created time.Time) string {
	safe := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, requestID)
	return NamespacePrefix + safe + "-" + strconv.FormatInt(created.UnixMilli(), 10)
}

// ParseNamespaceTime extracts the creation time embedded in a namespace
// directory name.
func ParseNamespaceTime(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, NamespacePrefix) {
		return time.Time{}, false
	}
	i := strings.LastIndexByte(name, '-')
	if i < len(NamespacePrefix) {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(name[i+1:], 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// Sweep removes namespace directories under root older than retention and
// returns how many it removed. Failures are logged and skipped.
func Sweep(root string, retention time.Duration, now time.Time, logger *log.Logger) int {
	entries, err := os.ReadDir(root)
	if err != nil {
		logger.Debug("sweep: cannot read root", "root", root, "error", err)
		return 0
	}
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		created, ok := ParseNamespaceTime(entry.Name())
		if !ok {
			continue
		}
		age := now.Sub(created)
		if age <= retention {
			continue
		}
		path := filepath.Join(root, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			logger.Warn("sweep: remove failed", "path", path, "error", err)
			continue
		}
		logger.Debug("sweep: removed stale namespace", "path", path, "age", age.Round(time.Second))
		removed++
	}
	return removed
}

// DirUsage returns the total size of regular files under root.
func DirUsage(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			if d == nil {
				return err
			}
			// Unreadable subtrees (other users' files in /tmp) are skipped.
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total, err
}

// Teardown removes an ephemeral namespace. It is a no-op for local
// namespaces and safe to call more than once.
func (w *Workspace) Teardown() {
	if w == nil || !w.Ephemeral {
		return
	}
	if err := os.RemoveAll(w.Dir); err != nil {
		w.logger.Warn("teardown failed", "dir", w.Dir, "error", err)
		return
	}
	w.logger.Debug("namespace removed", "dir", w.Dir)
}
