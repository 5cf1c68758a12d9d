// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"path/filepath"
	"strings"
	"testing"
)

// StepsDir is the steps directory name used by the collection fixtures.
const StepsDir = "_scripts"

// WriteStep writes an executable shell step named name under
// root/_scripts. body is placed after a #!/bin/sh line and `set -e`.
// The returned path is the artifact's absolute path.
func WriteStep(t testing.TB, root, name, body string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("#!/bin/sh\nset -e\n")
	b.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		b.WriteByte('\n')
	}
	path := filepath.Join(root, StepsDir, name)
	MustWriteFile(t, path, []byte(b.String()), 0o755)
	return path
}

// WritePlan writes a YAML collection config at root and returns its path.
func WritePlan(t testing.TB, root, yaml string) string {
	t.Helper()
	path := filepath.Join(root, "_collection_config.yaml")
	MustWriteFile(t, path, []byte(yaml), 0o644)
	return path
}
