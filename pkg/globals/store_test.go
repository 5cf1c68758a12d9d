// SPDX-License-Identifier: MPL-2.0

package globals

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/dunhampa/poststand-core/pkg/platform"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return s
}

func TestStore_SetGet(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	if _, ok, err := s.Get("missing"); err != nil || ok {
		t.Fatalf("Get(missing) = ok %v, err %v; want false, nil", ok, err)
	}

	if err := s.Set("token", "abc"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := s.Set("token", "def"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	v, ok, err := s.Get("token")
	if err != nil || !ok {
		t.Fatalf("Get(token) = ok %v, err %v", ok, err)
	}
	if v != "def" {
		t.Errorf("Get(token) = %v, want def (last writer wins)", v)
	}
}

func TestStore_FileFormat(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	if err := s.SetMany(map[string]any{"count": 3, "nested": map[string]any{"a": true}}); err != nil {
		t.Fatalf("SetMany() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(s.Dir(), FileName))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("globals.json is not a JSON object: %v", err)
	}
	if decoded["count"] != float64(3) {
		t.Errorf("count = %v, want 3", decoded["count"])
	}

	// Values survive a fresh handle, as a step process would see them.
	reopened, err := Open(s.Dir())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	v, ok, err := reopened.Get("count")
	if err != nil || !ok {
		t.Fatalf("Get(count) = ok %v, err %v", ok, err)
	}
	if n, isNumber := v.(json.Number); !isNumber || n.String() != "3" {
		t.Errorf("Get(count) = %#v, want json.Number(3)", v)
	}
}

func TestStore_ClearAndListAll(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	if err := s.SetMany(map[string]any{"a": "1", "b": "2"}); err != nil {
		t.Fatal(err)
	}

	all, err := s.ListAll()
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("ListAll() returned %d keys, want 2", len(all))
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	all, err = s.ListAll()
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if len(all) != 0 {
		t.Errorf("ListAll() after Clear() = %v, want empty", all)
	}
}

func TestStore_Delete(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	if err := s.Set("a", 1); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("a"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Delete("never-set"); err != nil {
		t.Fatalf("Delete(missing) error = %v", err)
	}
	if _, ok, _ := s.Get("a"); ok {
		t.Error("key a should be gone")
	}
}

func TestStore_EnqueueDrain(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	drained, err := s.DrainQueue()
	if err != nil {
		t.Fatalf("DrainQueue() on empty store error = %v", err)
	}
	if len(drained) != 0 {
		t.Errorf("DrainQueue() on empty store = %v", drained)
	}

	if err := s.Enqueue("b", "c"); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if err := s.Enqueue("b"); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	drained, err = s.DrainQueue()
	if err != nil {
		t.Fatalf("DrainQueue() error = %v", err)
	}
	if want := []string{"b", "c", "b"}; !slices.Equal(drained, want) {
		t.Errorf("DrainQueue() = %v, want %v", drained, want)
	}

	drained, err = s.DrainQueue()
	if err != nil {
		t.Fatalf("second DrainQueue() error = %v", err)
	}
	if len(drained) != 0 {
		t.Errorf("queue should be empty after drain, got %v", drained)
	}
}

func TestStore_DrainMalformedQueue(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	if err := s.Set(QueueKey, []any{"ok", 7}); err != nil {
		t.Fatal(err)
	}

	drained, err := s.DrainQueue()
	if !errors.Is(err, ErrMalformedQueue) {
		t.Fatalf("DrainQueue() error = %v, want ErrMalformedQueue", err)
	}
	if !slices.Equal(drained, []string{"ok"}) {
		t.Errorf("DrainQueue() = %v, want [ok]", drained)
	}

	v, _, _ := s.Get(QueueKey)
	if list, ok := v.([]any); !ok || len(list) != 0 {
		t.Errorf("malformed queue should be cleared, got %#v", v)
	}
}

func TestStore_CorruptFile(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	if err := os.WriteFile(s.Path(), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, _, err := s.Get("a")
	var corrupt *CorruptStoreError
	if !errors.As(err, &corrupt) {
		t.Fatalf("Get() error = %v, want *CorruptStoreError", err)
	}
	if !errors.Is(err, ErrCorruptStore) {
		t.Error("error should wrap ErrCorruptStore")
	}
}

func TestOpenFromEnv(t *testing.T) {
	t.Parallel()

	nsDir := t.TempDir()
	wd := t.TempDir()
	getwd := func() (string, error) { return wd, nil }

	tests := []struct {
		name    string
		env     map[string]string
		wantDir string
		wantErr error
	}{
		{
			name:    "explicit namespace",
			env:     map[string]string{platform.EnvGlobalsDir: nsDir},
			wantDir: nsDir,
		},
		{
			name:    "explicit namespace on ephemeral host",
			env:     map[string]string{platform.EnvGlobalsDir: nsDir, platform.EnvLambdaTaskRoot: "/var/task"},
			wantDir: nsDir,
		},
		{
			name:    "local host falls back to working directory",
			env:     map[string]string{},
			wantDir: wd,
		},
		{
			name:    "ephemeral host without namespace fails",
			env:     map[string]string{platform.EnvLambdaFunctionName: "fn"},
			wantErr: ErrNamespaceNotEstablished,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			getenv := func(k string) string { return tt.env[k] }
			s, err := openFromEnv(getenv, getwd)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("openFromEnv() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("openFromEnv() error = %v", err)
			}
			if s.Dir() != tt.wantDir {
				t.Errorf("Dir() = %q, want %q", s.Dir(), tt.wantDir)
			}
		})
	}
}
