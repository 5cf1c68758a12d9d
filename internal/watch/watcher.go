// SPDX-License-Identifier: MPL-2.0

// Package watch reruns a collection when its step artifacts or its
// collection config change.
//
// Filesystem events under BaseDir are filtered by glob patterns and coalesced
// over a debounce window, so the callback fires once with every path that
// changed during the window.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/dunhampa/poststand-core/internal/logging"
	"github.com/dunhampa/poststand-core/internal/runlog"
	"github.com/dunhampa/poststand-core/pkg/fspath"
	"github.com/dunhampa/poststand-core/pkg/globals"
)

const defaultDebounce = 500 * time.Millisecond

var (
	// ErrInvalidPattern is returned when a watch or ignore glob does not parse.
	ErrInvalidPattern = errors.New("invalid glob pattern")

	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("watch: Run called more than once")

	// defaultIgnores never trigger a rerun: VCS metadata, dependency caches,
	// editor swap files, and the files a run itself writes.
	defaultIgnores = []string{
		"**/.git/**",
		"**/node_modules/**",
		"**/__pycache__/**",
		"**/*.swp",
		"**/*.swo",
		"**/*~",
		"**/.DS_Store",
		"**/*" + fspath.TempSuffix,
		"**/" + globals.FileName,
		"**/.pstand.lock",
		"**/" + runlog.FileName,
	}
)

type (
	// Config holds the parameters for a Watcher.
	Config struct {
		// Patterns are doublestar globs relative to BaseDir. Empty watches
		// every non-ignored file.
		Patterns []string

		// Ignore patterns are merged with the built-in defaults.
		Ignore []string

		// Debounce is the quiet period after the last event before OnChange
		// fires. Zero or negative means 500ms.
		Debounce time.Duration

		// ClearScreen writes an ANSI clear to Stdout before each rerun.
		ClearScreen bool

		// BaseDir defaults to the working directory.
		BaseDir string

		// OnChange receives the changed paths, relative to BaseDir and sorted.
		OnChange func(ctx context.Context, changed []string) error

		Stdout io.Writer
		Logger *log.Logger
	}

	// InvalidPatternError reports a glob that doublestar rejects.
	InvalidPatternError struct {
		Label   string
		Pattern string
		Err     error
	}

	// Watcher monitors BaseDir and fires a debounced callback when matching
	// files change. Run may be called once.
	Watcher struct {
		cfg      Config
		fsw      *fsnotify.Watcher
		ignores  []string
		stdout   io.Writer
		logger   *log.Logger
		debounce time.Duration
		baseDir  string
		started  atomic.Bool
	}
)

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("invalid %s pattern %q: %v", e.Label, e.Pattern, e.Err)
}

// Unwrap returns ErrInvalidPattern so callers can use errors.Is for programmatic detection.
func (e *InvalidPatternError) Unwrap() error { return ErrInvalidPattern }

// IsValid reports every malformed pattern and a whitespace-only BaseDir.
func (c Config) IsValid() (bool, []error) {
	var errs []error
	for _, group := range []struct {
		label    string
		patterns []string
	}{{"watch", c.Patterns}, {"ignore", c.Ignore}} {
		for _, pat := range group.patterns {
			if strings.TrimSpace(pat) == "" {
				errs = append(errs, &InvalidPatternError{Label: group.label, Pattern: pat, Err: errors.New("empty pattern")})
				continue
			}
			if !doublestar.ValidatePattern(pat) {
				errs = append(errs, &InvalidPatternError{Label: group.label, Pattern: pat, Err: doublestar.ErrBadPattern})
			}
		}
	}
	if c.BaseDir != "" && strings.TrimSpace(c.BaseDir) == "" {
		errs = append(errs, errors.New("base directory must not be blank"))
	}
	if len(errs) > 0 {
		return false, errs
	}
	return true, nil
}

// CollectionPatterns returns the globs that cover a collection: everything
// under stepsDir plus the collection config file. Both paths are relative to
// the collection root.
func CollectionPatterns(stepsDir, configFile string) []string {
	var patterns []string
	if stepsDir != "" {
		patterns = append(patterns, path.Join(filepath.ToSlash(stepsDir), "**"))
	}
	if configFile != "" {
		patterns = append(patterns, filepath.ToSlash(configFile))
	}
	return patterns
}

// New resolves BaseDir, validates patterns, and registers every non-ignored
// directory under BaseDir with fsnotify.
func New(cfg Config) (*Watcher, error) {
	if ok, errs := cfg.IsValid(); !ok {
		return nil, fmt.Errorf("watch: %w", errors.Join(errs...))
	}

	baseDir := cfg.BaseDir
	if baseDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("watch: determine working directory: %w", err)
		}
		baseDir = wd
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve base directory: %w", err)
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	stdout := cfg.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		cfg:      cfg,
		fsw:      fsw,
		ignores:  slices.Concat(defaultIgnores, cfg.Ignore),
		stdout:   stdout,
		logger:   logger,
		debounce: debounce,
		baseDir:  absBase,
	}

	if err := w.addDirectories(); err != nil {
		if closeErr := fsw.Close(); closeErr != nil {
			logger.Warn("close watcher after init failure", "err", closeErr)
		}
		return nil, err
	}
	return w, nil
}

// BaseDir returns the absolute directory being watched.
func (w *Watcher) BaseDir() string { return w.baseDir }

// Run blocks until ctx is cancelled, dispatching debounced callbacks. Clean
// cancellation returns nil; fatal watcher errors are returned.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	var (
		mu      sync.Mutex
		pending = make(map[string]struct{})
		timer   *time.Timer
		running atomic.Bool
	)

	// fire may run after cancellation since it is scheduled by AfterFunc.
	// A rerun that outlasts the debounce window is not overlapped; the
	// pending set is retried once it finishes.
	fire := func() {
		if ctx.Err() != nil {
			return
		}
		if !running.CompareAndSwap(false, true) {
			w.logger.Debug("rerun still in progress, deferring")
			mu.Lock()
			if timer != nil {
				timer.Reset(w.debounce)
			}
			mu.Unlock()
			return
		}
		defer running.Store(false)

		mu.Lock()
		if len(pending) == 0 {
			mu.Unlock()
			return
		}
		changed := slices.Sorted(maps.Keys(pending))
		clear(pending)
		mu.Unlock()

		if w.cfg.ClearScreen {
			fmt.Fprint(w.stdout, "\033[2J\033[H")
		}
		w.logger.Info("change detected", "paths", changed)

		if w.cfg.OnChange != nil {
			if err := w.cfg.OnChange(ctx, changed); err != nil {
				w.logger.Error("rerun failed", "err", err)
			}
		}
	}

	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		if closeErr := w.fsw.Close(); closeErr != nil {
			w.logger.Warn("close watcher", "err", closeErr)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: fsnotify event channel closed unexpectedly")
			}

			if evt.Has(fsnotify.Create) {
				w.maybeAddDir(evt.Name)
			}

			rel, err := filepath.Rel(w.baseDir, evt.Name)
			if err != nil {
				rel = evt.Name
			}
			if w.isIgnored(rel) || !w.matchesPatterns(rel) {
				continue
			}

			mu.Lock()
			pending[filepath.ToSlash(rel)] = struct{}{}
			if timer == nil {
				timer = time.AfterFunc(w.debounce, fire)
			} else {
				timer.Reset(w.debounce)
			}
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: fsnotify error channel closed unexpectedly")
			}
			if watcherExhausted(err) {
				return fmt.Errorf("watch: watcher exhausted: %w", err)
			}
			w.logger.Warn("fsnotify error", "err", err)
		}
	}
}

// addDirectories registers every non-ignored directory under baseDir. Pattern
// filtering happens per event, so directories are added regardless of
// Patterns.
func (w *Watcher) addDirectories() error {
	walkErr := filepath.WalkDir(w.baseDir, func(p string, d os.DirEntry, walkDirErr error) error {
		if walkDirErr != nil {
			w.logger.Warn("skipping inaccessible path", "path", p, "err", walkDirErr)
			return nil //nolint:nilerr // unreadable directories are not watched
		}
		if !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(w.baseDir, p)
		if relErr != nil {
			return nil //nolint:nilerr // skip paths that cannot be made relative
		}
		if rel != "." && w.isIgnoredDir(rel) {
			return filepath.SkipDir
		}
		if addErr := w.fsw.Add(p); addErr != nil {
			return fmt.Errorf("watch: add directory %q: %w", p, addErr)
		}
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("watch: walk directory tree: %w", walkErr)
	}
	return nil
}

// maybeAddDir extends the watch to a directory created after startup, such
// as a new subfolder of the steps directory.
func (w *Watcher) maybeAddDir(p string) {
	info, err := os.Stat(p)
	if err != nil || !info.IsDir() {
		return
	}
	rel, err := filepath.Rel(w.baseDir, p)
	if err != nil || w.isIgnoredDir(rel) {
		return
	}
	if addErr := w.fsw.Add(p); addErr != nil {
		w.logger.Warn("add new directory", "path", p, "err", addErr)
	}
}

func (w *Watcher) isIgnoredDir(rel string) bool {
	return w.isIgnored(rel) || w.isIgnored(rel+"/")
}

func (w *Watcher) isIgnored(rel string) bool {
	return matchAny(w.ignores, rel)
}

// matchesPatterns reports whether rel is selected. Without patterns every
// path is.
func (w *Watcher) matchesPatterns(rel string) bool {
	if len(w.cfg.Patterns) == 0 {
		return true
	}
	return matchAny(w.cfg.Patterns, rel)
}

// DefaultIgnores returns a copy of the built-in ignore patterns.
func DefaultIgnores() []string {
	return slices.Clone(defaultIgnores)
}

func matchAny(patterns []string, rel string) bool {
	normalized := filepath.ToSlash(rel)
	for _, pat := range patterns {
		if matched, err := doublestar.Match(pat, normalized); err == nil && matched {
			return true
		}
	}
	return false
}
