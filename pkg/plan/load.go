// SPDX-License-Identifier: MPL-2.0

package plan

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/dunhampa/poststand-core/pkg/cueutil"
)

// DefaultFileName is the collection config file created by the CLI.
const DefaultFileName = "_collection_config.yaml"

const schemaPath = "#Collection"

// FileNames lists the accepted collection config names in lookup order.
var FileNames = []string{
	DefaultFileName,
	"_collection_config.yml",
	"_collection_config.toml",
	"_collection_config.cue",
}

var (
	//go:embed collection_schema.cue
	collectionSchema []byte

	// ErrPlanNotFound is returned when no collection config can be located.
	ErrPlanNotFound = errors.New("collection config not found")

	// ErrInvalidPlan wraps every decoding and validation failure of a
	// collection config.
	ErrInvalidPlan = errors.New("invalid collection config")

	// ErrUnsupportedFormat is returned for config files with an unknown extension.
	ErrUnsupportedFormat = errors.New("unsupported collection config format")
)

// FindRoot walks up from start until it finds a directory holding one of
// FileNames, and returns the path of that file.
func FindRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", start, err)
	}

	for {
		for _, name := range FileNames {
			candidate := filepath.Join(dir, name)
			if info, statErr := os.Stat(candidate); statErr == nil && !info.IsDir() {
				return candidate, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w: no %s in %s or any parent directory", ErrPlanNotFound, DefaultFileName, start)
		}
		dir = parent
	}
}

// LoadDir loads the collection config found in dir (no upward search).
func LoadDir(dir string) (*Collection, error) {
	for _, name := range FileNames {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return Load(candidate)
		}
	}
	return nil, fmt.Errorf("%w: no %s in %s", ErrPlanNotFound, DefaultFileName, dir)
}

// Load reads and validates the collection config at path. The format is
// chosen by extension.
func Load(path string) (*Collection, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, abs)
		}
		return nil, fmt.Errorf("reading collection config: %w", err)
	}

	result, err := parse(abs, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPlan, err)
	}

	c := result.Value
	c.Path = abs
	c.allowedSet = hasField(result.Unified, KeyAllowedScripts)
	return c, nil
}

// hasField reports whether name is set in v. Fields only iterates regular
// fields, so a schema-declared optional field that was never written is
// not reported.
func hasField(v cue.Value, name string) bool {
	iter, err := v.Fields()
	if err != nil {
		return false
	}
	for iter.Next() {
		if iter.Selector().Unquoted() == name {
			return true
		}
	}
	return false
}

// LoadPlan loads the collection at path and builds its plan.
func LoadPlan(path string) (*Collection, *Plan, error) {
	c, err := Load(path)
	if err != nil {
		return nil, nil, err
	}
	p, err := c.Plan()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", ErrInvalidPlan, c.Path, err)
	}
	return c, p, nil
}

func parse(path string, data []byte) (*cueutil.ParseResult[Collection], error) {
	name := filepath.Base(path)
	if err := cueutil.CheckFileSize(data, cueutil.DefaultSizeLimit, name); err != nil {
		return nil, err
	}

	var doc map[string]any
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".cue":
		return cueutil.ParseAndDecode[Collection](collectionSchema, data, schemaPath, cueutil.Filename(name))
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	if doc == nil {
		doc = map[string]any{}
	}
	return cueutil.DecodeValue[Collection](collectionSchema, normalize(doc), schemaPath, cueutil.Filename(name))
}

// normalize drops null values, which YAML produces for keys written with no
// value, so they read as absent rather than failing the schema.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if val == nil {
				continue
			}
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, 0, len(t))
		for _, val := range t {
			if val == nil {
				continue
			}
			out = append(out, normalize(val))
		}
		return out
	default:
		return v
	}
}
