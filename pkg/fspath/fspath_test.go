// SPDX-License-Identifier: MPL-2.0

package fspath_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dunhampa/poststand-core/pkg/fspath"
)

func TestWriteAtomic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "state.json")

	if err := fspath.WriteAtomic(path, []byte("one"), 0o644); err != nil {
		t.Fatalf("WriteAtomic() error = %v", err)
	}
	if err := fspath.WriteAtomic(path, []byte("two"), 0o644); err != nil {
		t.Fatalf("WriteAtomic() second call error = %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(got) != "two" {
		t.Errorf("content = %q, want %q", got, "two")
	}
	if _, err := os.Stat(fspath.TempPath(path)); !os.IsNotExist(err) {
		t.Errorf("temp file should not remain, stat err = %v", err)
	}
}

func TestRecoverTemp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		mainContent  string
		tmpContent   string
		wantPromoted bool
		wantContent  string
	}{
		{name: "no orphan", mainContent: "main", wantContent: "main"},
		{name: "orphan with main present", mainContent: "main", tmpContent: "partial", wantContent: "main"},
		{name: "orphan without main", tmpContent: "complete", wantPromoted: true, wantContent: "complete"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "globals.json")
			if tt.mainContent != "" {
				if err := os.WriteFile(path, []byte(tt.mainContent), 0o644); err != nil {
					t.Fatal(err)
				}
			}
			if tt.tmpContent != "" {
				if err := os.WriteFile(fspath.TempPath(path), []byte(tt.tmpContent), 0o644); err != nil {
					t.Fatal(err)
				}
			}

			promoted, err := fspath.RecoverTemp(path)
			if err != nil {
				t.Fatalf("RecoverTemp() error = %v", err)
			}
			if promoted != tt.wantPromoted {
				t.Errorf("promoted = %v, want %v", promoted, tt.wantPromoted)
			}

			got, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("ReadFile() error = %v", err)
			}
			if string(got) != tt.wantContent {
				t.Errorf("content = %q, want %q", got, tt.wantContent)
			}
			if _, err := os.Stat(fspath.TempPath(path)); !os.IsNotExist(err) {
				t.Error("temp file should be gone after recovery")
			}
		})
	}
}

func TestWriteAtomicFailureKeepsTarget(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "globals.json")
	if err := fspath.WriteAtomic(path, []byte(`{"a":1}`), 0o600); err != nil {
		t.Fatal(err)
	}
	// A directory squatting on the temp path makes the synced write fail.
	if err := os.Mkdir(fspath.TempPath(path), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := fspath.WriteAtomic(path, []byte(`{"a":2}`), 0o600); err == nil {
		t.Fatal("WriteAtomic() error = nil, want failure")
	}
	got, err := os.ReadFile(path)
	if err != nil || string(got) != `{"a":1}` {
		t.Errorf("target = %q, %v; want previous content", got, err)
	}
	if _, err := os.Stat(fspath.TempPath(path)); !os.IsNotExist(err) {
		t.Errorf("temp path still present after failed write: %v", err)
	}
}
