// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMustSetenvRestores(t *testing.T) {
	const key = "PSTAND_TESTUTIL_PROBE"

	cleanup := MustSetenv(t, key, "first")
	if got := os.Getenv(key); got != "first" {
		t.Fatalf("Getenv = %q, want first", got)
	}
	inner := MustSetenv(t, key, "second")
	inner()
	if got := os.Getenv(key); got != "first" {
		t.Errorf("after inner cleanup Getenv = %q, want first", got)
	}
	cleanup()
	if _, ok := os.LookupEnv(key); ok {
		t.Errorf("%s still set after cleanup", key)
	}
}

func TestMustChdir(t *testing.T) {
	dir := t.TempDir()
	before, _ := os.Getwd()

	restore := MustChdir(t, dir)
	wd, _ := os.Getwd()
	if resolved, _ := filepath.EvalSymlinks(dir); wd != dir && wd != resolved {
		t.Errorf("Getwd = %q, want %q", wd, dir)
	}
	restore()

	if after, _ := os.Getwd(); after != before {
		t.Errorf("Getwd after restore = %q, want %q", after, before)
	}
}

func TestWriteStep(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	path := WriteStep(t, root, "hello", "echo hi")

	if want := filepath.Join(root, StepsDir, "hello"); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm()&0o100 == 0 {
		t.Errorf("mode = %v, want owner-executable", info.Mode())
	}
	content := string(MustReadFile(t, path))
	if !strings.HasPrefix(content, "#!/bin/sh\n") || !strings.HasSuffix(content, "echo hi\n") {
		t.Errorf("content = %q", content)
	}
}
