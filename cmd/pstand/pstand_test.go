// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rogpeppe/go-internal/testscript"

	"github.com/dunhampa/poststand-core/pkg/platform"
)

func TestMain(m *testing.M) {
	testscript.Main(m, map[string]func(){
		"pstand": Execute,
	})
}

// TestCLI runs the scripts in testdata against the pstand command tree.
// Steps in those scripts call pstand themselves, so the command is on PATH
// for child processes too.
func TestCLI(t *testing.T) {
	testscript.Run(t, testscript.Params{
		Dir: "testdata",
		Setup: func(env *testscript.Env) error {
			env.Setenv(platform.EnvHost, string(platform.HostLocal))
			env.Setenv("XDG_CONFIG_HOME", filepath.Join(env.WorkDir, ".config"))
			env.Setenv("NO_COLOR", "1")
			return os.MkdirAll(filepath.Join(env.WorkDir, ".config"), 0o755)
		},
		ContinueOnError: true,
	})
}
