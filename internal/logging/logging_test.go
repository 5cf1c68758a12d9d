// SPDX-License-Identifier: MPL-2.0

package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("json format carries prefix and fields", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger, err := New(Options{Out: &buf, Format: FormatJSON})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		logger.Info("step finished", "step", "a.js")

		var line map[string]any
		if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
			t.Fatalf("output is not JSON: %q", buf.String())
		}
		prefix, _ := line["prefix"].(string)
		if !strings.HasPrefix(prefix, DefaultPrefix) || line["step"] != "a.js" {
			t.Errorf("line = %v", line)
		}
	})

	t.Run("level filters", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger, err := New(Options{Out: &buf, Level: "WARN", Format: FormatLogfmt})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		logger.Info("hidden")
		logger.Warn("shown")

		if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
			t.Errorf("output = %q", buf.String())
		}
	})

	t.Run("bad level", func(t *testing.T) {
		t.Parallel()

		if _, err := New(Options{Level: "loud"}); err == nil {
			t.Error("expected error for unknown level")
		}
	})

	t.Run("bad format", func(t *testing.T) {
		t.Parallel()

		_, err := New(Options{Format: "xml"})
		if !errors.Is(err, ErrInvalidFormat) {
			t.Errorf("New() error = %v, want ErrInvalidFormat", err)
		}
	})
}
