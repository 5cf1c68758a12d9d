// SPDX-License-Identifier: MPL-2.0

package policy

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/dunhampa/poststand-core/pkg/globals"
	"github.com/dunhampa/poststand-core/pkg/plan"
)

// ReturnGlobalsKey is the control key a caller uses to request output. It is
// exempt from input validation and never seeded into the store.
const ReturnGlobalsKey = "return_globals"

type (
	// InputSpec is one compiled entry of the input allow list.
	InputSpec struct {
		Name    string
		Type    ValueType
		Pattern *regexp.Regexp
	}

	// InputPolicy is the compiled globalInputs section.
	InputPolicy struct {
		kind  InputKind
		specs map[string]InputSpec
	}
)

// AllowAllInputs is the policy used when a collection has no globalInputs.
func AllowAllInputs() *InputPolicy {
	return &InputPolicy{kind: InputAllowAll}
}

// CompileInput builds the input policy from its document. A nil document
// allows everything.
func CompileInput(doc *plan.InputPolicyDoc) (*InputPolicy, error) {
	if doc == nil {
		return AllowAllInputs(), nil
	}

	var errs []error
	kind, err := ParseInputKind(doc.Policy)
	if err != nil {
		errs = append(errs, err)
	}

	specs := make(map[string]InputSpec, len(doc.Allowed))
	for _, entry := range doc.Allowed {
		spec := InputSpec{Name: entry.Name}
		if spec.Type, err = ParseValueType(entry.Name, entry.Type); err != nil {
			errs = append(errs, err)
		}
		if entry.Regex != "" {
			if spec.Pattern, err = regexp.Compile(entry.Regex); err != nil {
				errs = append(errs, fmt.Errorf("invalid regex pattern %q for input global %q: %w", entry.Regex, entry.Name, err))
			}
		}
		specs[entry.Name] = spec
	}

	if len(errs) > 0 {
		return nil, &InvalidPolicyError{Section: SectionInput, FieldErrors: errs}
	}
	return &InputPolicy{kind: kind, specs: specs}, nil
}

// Kind returns the policy kind.
func (p *InputPolicy) Kind() InputKind { return p.kind }

// Validate checks payload against the policy and returns the batch to seed:
// payload minus the return_globals control key and the reserved nextScripts
// queue, which only steps may fill. Under the specified policy
// every violation is collected and the batch is rejected as a whole with an
// *InputValidationError.
func (p *InputPolicy) Validate(payload map[string]any) (map[string]any, error) {
	seed := make(map[string]any, len(payload))
	for k, v := range payload {
		if k != ReturnGlobalsKey && k != globals.QueueKey {
			seed[k] = v
		}
	}

	if p.kind != InputSpecified {
		return seed, nil
	}

	keys := make([]string, 0, len(seed))
	for k := range seed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var violations []string
	for _, key := range keys {
		if msg := p.check(key, seed[key]); msg != "" {
			violations = append(violations, msg)
		}
	}

	if len(violations) > 0 {
		return nil, &InputValidationError{Violations: violations}
	}
	return seed, nil
}

func (p *InputPolicy) check(key string, value any) string {
	spec, ok := p.specs[key]
	if !ok {
		return fmt.Sprintf("Input global '%s' is not allowed by the 'specified' policy.", key)
	}

	if !spec.Type.Matches(value) {
		return fmt.Sprintf("Input global '%s' has incorrect type. Expected '%s', got '%s'.", key, spec.Type, TypeOf(value))
	}

	if spec.Pattern != nil {
		if s, isString := value.(string); isString && !spec.Pattern.MatchString(s) {
			return fmt.Sprintf("Input global '%s' (value: %q) does not match regex pattern: %s", key, s, spec.Pattern)
		}
	}
	return ""
}
