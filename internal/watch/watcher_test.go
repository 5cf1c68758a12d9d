// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestConfigIsValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantOK  bool
		wantErr int
	}{
		{name: "zero value", cfg: Config{}, wantOK: true},
		{
			name:   "collection patterns",
			cfg:    Config{Patterns: CollectionPatterns("_scripts", "_collection_config.yaml"), BaseDir: "/srv/fn"},
			wantOK: true,
		},
		{name: "empty pattern", cfg: Config{Patterns: []string{""}}, wantErr: 1},
		{name: "bad ignore syntax", cfg: Config{Ignore: []string{"[oops"}}, wantErr: 1},
		{name: "blank base dir", cfg: Config{BaseDir: "   "}, wantErr: 1},
		{
			name:    "errors accumulate",
			cfg:     Config{Patterns: []string{"[a", " "}, BaseDir: "\t"},
			wantErr: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ok, errs := tt.cfg.IsValid()
			if ok != tt.wantOK {
				t.Fatalf("IsValid() = %v, want %v (errs=%v)", ok, tt.wantOK, errs)
			}
			if len(errs) != tt.wantErr {
				t.Fatalf("len(errs) = %d, want %d: %v", len(errs), tt.wantErr, errs)
			}
		})
	}
}

func TestInvalidPatternErrorUnwrap(t *testing.T) {
	t.Parallel()

	_, err := New(Config{BaseDir: t.TempDir(), Patterns: []string{"[bad"}})
	if !errors.Is(err, ErrInvalidPattern) {
		t.Fatalf("New() error = %v, want ErrInvalidPattern", err)
	}
}

func TestCollectionPatterns(t *testing.T) {
	t.Parallel()

	got := CollectionPatterns("_scripts", "_collection_config.yaml")
	want := []string{"_scripts/**", "_collection_config.yaml"}
	if !slices.Equal(got, want) {
		t.Fatalf("CollectionPatterns() = %v, want %v", got, want)
	}
	if got := CollectionPatterns("", ""); len(got) != 0 {
		t.Fatalf("CollectionPatterns(empty) = %v, want none", got)
	}
}

func TestDefaultIgnores(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rel  string
		want bool
	}{
		{".git/HEAD", true},
		{"_scripts/node_modules/x/index.js", true},
		{"_scripts/.step.js.swp", true},
		{"ns/globals.json", true},
		{"ns/globals.json.tmp", true},
		{"ns/_run_log.csv", true},
		{"ns/.pstand.lock", true},
		{"_scripts/s1.js", false},
		{"_collection_config.yaml", false},
	}
	ignores := DefaultIgnores()
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			t.Parallel()
			if got := matchAny(ignores, tt.rel); got != tt.want {
				t.Errorf("ignored(%q) = %v, want %v", tt.rel, got, tt.want)
			}
		})
	}
}

func TestDefaultIgnoresReturnsCopy(t *testing.T) {
	t.Parallel()

	ignores := DefaultIgnores()
	first := ignores[0]
	ignores[0] = "mutated"
	if got := DefaultIgnores()[0]; got != first {
		t.Fatalf("DefaultIgnores()[0] = %q after caller mutation, want %q", got, first)
	}
}

// startWatcher runs w in the background and returns a stop func that cancels
// it and reports Run's error.
func startWatcher(t *testing.T, w *Watcher) func() error {
	t.Helper()

	ctx, cancel := context.WithCancel(t.Context())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()
	// Give the event loop a moment to start selecting.
	time.Sleep(20 * time.Millisecond)
	return func() error {
		cancel()
		return <-errCh
	}
}

func TestWatcherDebounce(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	steps := filepath.Join(dir, "_scripts")
	if err := os.MkdirAll(steps, 0o755); err != nil {
		t.Fatal(err)
	}

	var (
		mu        sync.Mutex
		calls     int
		collected []string
	)
	done := make(chan struct{}, 1)

	w, err := New(Config{
		BaseDir:  dir,
		Patterns: CollectionPatterns("_scripts", "_collection_config.yaml"),
		Debounce: 100 * time.Millisecond,
		OnChange: func(_ context.Context, changed []string) error {
			mu.Lock()
			defer mu.Unlock()
			calls++
			collected = append(collected, changed...)
			select {
			case done <- struct{}{}:
			default:
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	stop := startWatcher(t, w)

	for _, name := range []string{"_scripts/s1.js", "_scripts/s2.sh", "_collection_config.yaml"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
	time.Sleep(250 * time.Millisecond)

	if err := stop(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	for _, want := range []string{"_scripts/s1.js", "_scripts/s2.sh", "_collection_config.yaml"} {
		if !slices.Contains(collected, want) {
			t.Errorf("missing %q in %v", want, collected)
		}
	}
}

func TestWatcherIgnoresUnmatchedAndRunOutput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, sub := range []string{"_scripts", "ns"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	fired := make(chan []string, 10)
	w, err := New(Config{
		BaseDir:  dir,
		Patterns: []string{"**"},
		Ignore:   []string{"**/*.log"},
		Debounce: 50 * time.Millisecond,
		OnChange: func(_ context.Context, changed []string) error {
			fired <- changed
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	stop := startWatcher(t, w)
	defer func() { _ = stop() }()

	for _, name := range []string{"debug.log", "ns/globals.json", "ns/_run_log.csv"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case changed := <-fired:
		t.Fatalf("callback fired for ignored paths: %v", changed)
	case <-time.After(400 * time.Millisecond):
	}
}

func TestWatcherNewDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "_scripts"), 0o755); err != nil {
		t.Fatal(err)
	}
	fired := make(chan []string, 10)
	w, err := New(Config{
		BaseDir:  dir,
		Patterns: CollectionPatterns("_scripts", ""),
		Debounce: 50 * time.Millisecond,
		OnChange: func(_ context.Context, changed []string) error {
			fired <- changed
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	stop := startWatcher(t, w)
	defer func() { _ = stop() }()

	nested := filepath.Join(dir, "_scripts", "etl")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	// Let the create event register the new directory.
	time.Sleep(150 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(nested, "load.py"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case changed := <-fired:
			if slices.ContainsFunc(changed, func(p string) bool { return strings.HasSuffix(p, "etl/load.py") }) {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for change in new directory")
		}
	}
}

func TestWatcherCallbackErrorKeepsRunning(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var (
		mu    sync.Mutex
		calls int
	)
	fired := make(chan struct{}, 10)
	w, err := New(Config{
		BaseDir:  dir,
		Debounce: 30 * time.Millisecond,
		OnChange: func(context.Context, []string) error {
			mu.Lock()
			calls++
			mu.Unlock()
			fired <- struct{}{}
			return errors.New("step failed")
		},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	stop := startWatcher(t, w)

	for i, name := range []string{"a.sh", "b.sh"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		select {
		case <-fired:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for callback %d", i+1)
		}
	}

	if err := stop(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls < 2 {
		t.Fatalf("calls = %d, want at least 2", calls)
	}
}

func TestWatcherRunTwice(t *testing.T) {
	t.Parallel()

	w, err := New(Config{BaseDir: t.TempDir()})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatalf("first Run() error: %v", err)
	}
	if err := w.Run(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Run() error = %v, want ErrAlreadyRunning", err)
	}
}
