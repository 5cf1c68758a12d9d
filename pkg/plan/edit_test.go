// SPDX-License-Identifier: MPL-2.0

package plan

import (
	"errors"
	"os"
	"slices"
	"strings"
	"testing"
)

func TestAddStep(t *testing.T) {
	t.Parallel()

	t.Run("appends to both lists and keeps comments", func(t *testing.T) {
		t.Parallel()

		path := writeFile(t, t.TempDir(), DefaultFileName, `# nightly sync
collection_order:
  - a.js
allowed_scripts:
  - a.js
verbose: false
`)
		changed, err := AddStep(path, "b.sh")
		if err != nil {
			t.Fatalf("AddStep() error = %v", err)
		}
		if !slices.Equal(changed, []string{KeyCollectionOrder, KeyAllowedScripts}) {
			t.Errorf("changed = %v", changed)
		}

		data, _ := os.ReadFile(path)
		if !strings.Contains(string(data), "# nightly sync") {
			t.Errorf("comment lost:\n%s", data)
		}
		_, p, err := LoadPlan(path)
		if err != nil {
			t.Fatalf("LoadPlan() error = %v", err)
		}
		if !slices.Equal(p.Order(), ids("a.js", "b.sh")) || !p.IsAllowed("b.sh") {
			t.Errorf("plan after AddStep: order %v allowed %v", p.Order(), p.Allowed())
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		t.Parallel()

		path := writeFile(t, t.TempDir(), DefaultFileName, "collection_order: [a.js]\nallowed_scripts: [a.js]\n")
		changed, err := AddStep(path, "a.js")
		if err != nil {
			t.Fatalf("AddStep() error = %v", err)
		}
		if len(changed) != 0 {
			t.Errorf("changed = %v, want none", changed)
		}
	})

	t.Run("creates missing keys", func(t *testing.T) {
		t.Parallel()

		path := writeFile(t, t.TempDir(), DefaultFileName, "verbose: true\n")
		if _, err := AddStep(path, "first.js"); err != nil {
			t.Fatalf("AddStep() error = %v", err)
		}
		_, p, err := LoadPlan(path)
		if err != nil {
			t.Fatalf("LoadPlan() error = %v", err)
		}
		if !slices.Equal(p.Order(), ids("first.js")) {
			t.Errorf("Order() = %v", p.Order())
		}
	})

	t.Run("rejects non-yaml", func(t *testing.T) {
		t.Parallel()

		path := writeFile(t, t.TempDir(), "_collection_config.toml", "collection_order = [\"a.js\"]\n")
		if _, err := AddStep(path, "b.js"); !errors.Is(err, ErrNotEditable) {
			t.Errorf("AddStep() error = %v, want ErrNotEditable", err)
		}
	})
}
