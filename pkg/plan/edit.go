// SPDX-License-Identifier: MPL-2.0

package plan

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dunhampa/poststand-core/pkg/fspath"
)

// Keys edited by AddStep.
const (
	KeyCollectionOrder = "collection_order"
	KeyAllowedScripts  = "allowed_scripts"
)

// ErrNotEditable is returned when AddStep is pointed at a non-YAML config.
var ErrNotEditable = errors.New("only YAML collection configs can be edited")

// AddStep appends step to collection_order and allowed_scripts of the YAML
// config at path, skipping lists that already contain it. Comments and key
// order are preserved. It returns the keys that were changed.
func AddStep(path string, step StepID) ([]string, error) {
	if ok, errs := step.IsValid(); !ok {
		return nil, errors.Join(errs...)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotEditable, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading collection config: %w", err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidPlan, filepath.Base(path), err)
	}
	if root.Kind == 0 {
		root = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: %s: top level must be a mapping", ErrInvalidPlan, filepath.Base(path))
	}
	mapping := root.Content[0]

	var changed []string
	for _, key := range []string{KeyCollectionOrder, KeyAllowedScripts} {
		added, err := appendToList(mapping, key, string(step))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidPlan, filepath.Base(path), err)
		}
		if added {
			changed = append(changed, key)
		}
	}
	if len(changed) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&root); err != nil {
		return nil, fmt.Errorf("encoding collection config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding collection config: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if err := fspath.WriteAtomic(path, buf.Bytes(), info.Mode().Perm()); err != nil {
		return nil, err
	}
	return changed, nil
}

// appendToList adds value to the sequence under key, creating the key when
// missing or null.
func appendToList(mapping *yaml.Node, key, value string) (bool, error) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value != key {
			continue
		}
		seq := mapping.Content[i+1]
		if seq.Kind == yaml.ScalarNode && seq.Tag == "!!null" {
			*seq = yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		}
		if seq.Kind != yaml.SequenceNode {
			return false, fmt.Errorf("%s is not a list", key)
		}
		for _, item := range seq.Content {
			if item.Value == value {
				return false, nil
			}
		}
		seq.Content = append(seq.Content, scalar(value))
		return true, nil
	}

	mapping.Content = append(mapping.Content,
		scalar(key),
		&yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Content: []*yaml.Node{scalar(value)}},
	)
	return true, nil
}

func scalar(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}
