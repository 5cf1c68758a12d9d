// SPDX-License-Identifier: MPL-2.0

package runlog

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/dunhampa/poststand-core/internal/logging"
)

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	return string(data)
}

func TestLog_PersistsEveryTransition(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	l := New(dir, logging.Discard())

	if got := readFile(t, l.Path()); got != Header+"\n" {
		t.Fatalf("fresh ledger = %q", got)
	}

	idx := l.Begin("a.js")
	if got := readFile(t, l.Path()); got != Header+"\na.js,executing,\n" {
		t.Errorf("after Begin = %q", got)
	}

	l.Finish(idx, StatusDone, 1500*time.Millisecond)
	l.Skip("b.js")
	idx = l.Begin("c.sh")
	l.Finish(idx, StatusError, 20*time.Millisecond)

	want := Header + "\na.js,done,1500\nb.js,skipped,\nc.sh,error,20\n"
	if got := readFile(t, filepath.Join(dir, FileName)); got != want {
		t.Errorf("ledger = %q, want %q", got, want)
	}
}

func TestLog_EntriesIsCopy(t *testing.T) {
	t.Parallel()

	l := New(t.TempDir(), logging.Discard())
	l.Begin("a.js")

	entries := l.Entries()
	entries[0].Status = StatusError

	if l.Entries()[0].Status != StatusExecuting {
		t.Error("Entries() should return a copy")
	}
}

func TestLog_WriteFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	// A regular file where the namespace directory should be makes every
	// write fail.
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	l := New(blocker, logging.Discard())
	idx := l.Begin("a.js")
	l.Finish(idx, StatusDone, time.Second)

	if got := l.Entries(); len(got) != 1 || got[0].Status != StatusDone {
		t.Errorf("in-memory ledger should survive write failures, got %v", got)
	}
}

func TestLog_FinishUnknownIndex(t *testing.T) {
	t.Parallel()

	l := New(t.TempDir(), logging.Discard())
	l.Finish(3, StatusDone, time.Second)
	if len(l.Entries()) != 0 {
		t.Error("Finish with an unknown index should not add entries")
	}
}

func TestDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    []Entry
		wantErr bool
	}{
		{
			name:  "header only",
			input: Header + "\n",
		},
		{
			name:  "mixed rows",
			input: Header + "\na.js,done,12\nb.js,executing,\n",
			want:  []Entry{{"a.js", StatusDone, 12}, {"b.js", StatusExecuting, 0}},
		},
		{
			name:  "comma in step name",
			input: Header + "\nodd,name.sh,skipped,\n",
			want:  []Entry{{"odd,name.sh", StatusSkipped, 0}},
		},
		{name: "missing header", input: "a.js,done,1\n", wantErr: true},
		{name: "unknown status", input: Header + "\na.js,running,\n", wantErr: true},
		{name: "bad duration", input: Header + "\na.js,done,soon\n", wantErr: true},
		{name: "too few fields", input: Header + "\na.js\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Decode([]byte(tt.input))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedLog) {
					t.Fatalf("Decode() error = %v, want ErrMalformedLog", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("Decode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatus_IsValid(t *testing.T) {
	t.Parallel()

	for _, s := range []Status{StatusExecuting, StatusDone, StatusError, StatusSkipped} {
		if ok, errs := s.IsValid(); !ok || len(errs) != 0 {
			t.Errorf("Status(%q).IsValid() = %v, %v", s, ok, errs)
		}
	}

	ok, errs := Status("pending").IsValid()
	if ok || len(errs) == 0 || !errors.Is(errs[0], ErrInvalidStatus) {
		t.Errorf("Status(pending).IsValid() = %v, %v", ok, errs)
	}
}
