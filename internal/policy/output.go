// SPDX-License-Identifier: MPL-2.0

package policy

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/dunhampa/poststand-core/pkg/plan"
)

const (
	// RequestNone means the caller asked for nothing.
	RequestNone RequestMode = iota
	// RequestAll asks for every key.
	RequestAll
	// RequestAnySpecified asks for the output allow list, whatever it is.
	RequestAnySpecified
	// RequestKeys asks for an explicit list of keys.
	RequestKeys
)

type (
	// RequestMode is the shape of a return_globals request.
	RequestMode int

	// ReturnRequest is a parsed return_globals value.
	ReturnRequest struct {
		Mode RequestMode
		Keys []string
	}

	// OutputPolicy is the compiled returnable_globals section.
	OutputPolicy struct {
		kind    OutputKind
		allowed []string
	}
)

// String returns a short description of the request.
func (r ReturnRequest) String() string {
	switch r.Mode {
	case RequestAll:
		return "all"
	case RequestAnySpecified:
		return "anyspecified"
	case RequestKeys:
		return "[" + strings.Join(r.Keys, ", ") + "]"
	default:
		return "none"
	}
}

// ParseReturnRequest interprets a decoded return_globals value: "all" or
// "anyspecified" (any case), or a list of key names. nil is a valid empty
// request. ok is false for any other shape, which callers log and ignore.
func ParseReturnRequest(raw any) (req ReturnRequest, ok bool) {
	switch v := raw.(type) {
	case nil:
		return ReturnRequest{Mode: RequestNone}, true
	case string:
		switch strings.ToLower(v) {
		case "all":
			return ReturnRequest{Mode: RequestAll}, true
		case "anyspecified":
			return ReturnRequest{Mode: RequestAnySpecified}, true
		}
	case []string:
		return ReturnRequest{Mode: RequestKeys, Keys: slices.Clone(v)}, true
	case []any:
		keys := make([]string, 0, len(v))
		for _, item := range v {
			s, isString := item.(string)
			if !isString {
				return ReturnRequest{}, false
			}
			keys = append(keys, s)
		}
		return ReturnRequest{Mode: RequestKeys, Keys: keys}, true
	}
	return ReturnRequest{}, false
}

// NoOutputs is the policy used when a collection has no returnable_globals.
func NoOutputs() *OutputPolicy {
	return &OutputPolicy{kind: OutputNone}
}

// CompileOutput builds the output policy from its document. A nil document
// discloses nothing.
func CompileOutput(doc *plan.OutputPolicyDoc) (*OutputPolicy, error) {
	if doc == nil {
		return NoOutputs(), nil
	}

	kind, err := ParseOutputKind(doc.Policy)
	if err != nil {
		return nil, &InvalidPolicyError{Section: SectionOutput, FieldErrors: []error{err}}
	}
	return &OutputPolicy{kind: kind, allowed: slices.Clone(doc.Allowed)}, nil
}

// Kind returns the policy kind.
func (p *OutputPolicy) Kind() OutputKind { return p.kind }

// Allowed returns the output allow list.
func (p *OutputPolicy) Allowed() []string { return slices.Clone(p.allowed) }

// Disclose filters current, a snapshot of the store, according to req.
//
// The returned map is nil when nothing was requested and non-nil (possibly
// empty) otherwise. Warnings name keys that exist but were withheld by the
// specified policy. A request that cannot be honored yields a
// *DisclosureError and no globals.
func (p *OutputPolicy) Disclose(req ReturnRequest, current map[string]any) (map[string]any, []string, error) {
	if req.Mode == RequestAnySpecified {
		req = ReturnRequest{Mode: RequestKeys, Keys: p.Allowed()}
	}

	switch req.Mode {
	case RequestNone:
		return nil, nil, nil
	case RequestAll:
		return p.discloseAll(current)
	default:
		return p.discloseKeys(req.Keys, current)
	}
}

func (p *OutputPolicy) discloseAll(current map[string]any) (map[string]any, []string, error) {
	switch p.kind {
	case OutputAll:
		out := make(map[string]any, len(current))
		for k, v := range current {
			out[k] = v
		}
		return out, nil, nil
	case OutputSpecified:
		return nil, nil, &DisclosureError{Detail: "Configuration policy is 'specified' and does not allow returning all globals. Please request specific global keys or change the policy."}
	default:
		return nil, nil, &DisclosureError{Detail: fmt.Sprintf("Configuration policy is '%s' and does not allow returning all globals.", p.kind)}
	}
}

func (p *OutputPolicy) discloseKeys(keys []string, current map[string]any) (map[string]any, []string, error) {
	if p.kind == OutputNone {
		if len(keys) > 0 {
			return nil, nil, &DisclosureError{Detail: "Configuration policy is 'none'; it does not allow returning any specified globals."}
		}
		return map[string]any{}, nil, nil
	}

	out := make(map[string]any, len(keys))
	var missing, withheld []string
	for _, key := range keys {
		value, exists := current[key]
		switch {
		case !exists:
			missing = append(missing, fmt.Sprintf("Requested global '%s' does not exist.", key))
		case p.kind == OutputAll || slices.Contains(p.allowed, key):
			out[key] = value
		default:
			withheld = append(withheld, fmt.Sprintf("Requested global '%s' exists but is not in the allowed list for 'specified' policy and was not returned.", key))
		}
	}

	if len(missing) > 0 {
		return nil, nil, &DisclosureError{Detail: "Error processing requested globals: " + strings.Join(missing, " ")}
	}
	if len(withheld) > 0 && len(out) == 0 && len(keys) > 0 {
		return nil, nil, &DisclosureError{Detail: "None of the requested and existing globals could be returned due to policy restrictions. Details: " + strings.Join(withheld, " ")}
	}
	return out, withheld, nil
}
