// SPDX-License-Identifier: MPL-2.0

package plan

import (
	"path/filepath"

	"golang.org/x/exp/slices"
)

// DefaultStepsDir is the directory, relative to the collection root, that
// holds step artifacts.
const DefaultStepsDir = "_scripts"

type (
	// Collection is a decoded collection config document.
	Collection struct {
		CollectionOrder   []string         `json:"collection_order,omitempty"`
		Scripts           []string         `json:"scripts,omitempty"`
		AllowedScripts    []string         `json:"allowed_scripts,omitempty"`
		Verbose           bool             `json:"verbose,omitempty"`
		UserLocalSecrets  bool             `json:"userLocalSecrets,omitempty"`
		Secrets           []string         `json:"secrets,omitempty"`
		GlobalInputs      *InputPolicyDoc  `json:"globalInputs,omitempty"`
		ReturnableGlobals *OutputPolicyDoc `json:"returnable_globals,omitempty"`

		// Path is the file the collection was loaded from.
		Path string `json:"-"`
		// allowedSet records whether allowed_scripts was present at all, so an
		// explicit empty list is not mistaken for an absent one.
		allowedSet bool
	}

	// InputPolicyDoc is the globalInputs section.
	InputPolicyDoc struct {
		Policy  string         `json:"policy,omitempty"`
		Allowed []InputSpecDoc `json:"allowed,omitempty"`
	}

	// InputSpecDoc declares one accepted input key.
	InputSpecDoc struct {
		Name  string `json:"name"`
		Type  string `json:"type,omitempty"`
		Regex string `json:"regex,omitempty"`
	}

	// OutputPolicyDoc is the returnable_globals section.
	OutputPolicyDoc struct {
		Policy  string   `json:"policy,omitempty"`
		Allowed []string `json:"allowed,omitempty"`
	}
)

// Root returns the collection root directory.
func (c *Collection) Root() string { return filepath.Dir(c.Path) }

// StepOrder returns collection_order, falling back to the deprecated scripts key.
func (c *Collection) StepOrder() []string {
	if c.CollectionOrder != nil {
		return c.CollectionOrder
	}
	return c.Scripts
}

// Plan builds the Execution Plan described by the document.
func (c *Collection) Plan() (*Plan, error) {
	order := toStepIDs(c.StepOrder())
	var allowed []StepID
	if c.allowedSet {
		allowed = toStepIDs(c.AllowedScripts)
		if allowed == nil {
			allowed = []StepID{}
		}
	}
	return New(order, allowed)
}

// DeclaresSecret reports whether name is listed under secrets.
func (c *Collection) DeclaresSecret(name string) bool {
	return slices.Contains(c.Secrets, name)
}

func toStepIDs(names []string) []StepID {
	if names == nil {
		return nil
	}
	out := make([]StepID, len(names))
	for i, n := range names {
		out[i] = StepID(n)
	}
	return out
}
