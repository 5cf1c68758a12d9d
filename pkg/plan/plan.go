// SPDX-License-Identifier: MPL-2.0

package plan

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/dunhampa/poststand-core/pkg/platform"
)

var (
	// ErrEmptyOrder is returned when a plan names no steps.
	ErrEmptyOrder = errors.New("plan has no steps in collection_order")

	// ErrInvalidStepID is the sentinel error wrapped by InvalidStepIDError.
	ErrInvalidStepID = errors.New("invalid step identifier")
)

type (
	// StepID names a unit of work. It resolves to an executable artifact
	// relative to the steps directory.
	StepID string

	// InvalidStepIDError is returned when a StepID is empty or escapes the
	// steps directory.
	InvalidStepIDError struct {
		Value StepID
	}

	// Plan is an ordered list of steps plus the whitelist of steps allowed to
	// launch. A Plan is immutable; Order returns a copy the caller may splice.
	Plan struct {
		order   []StepID
		allowed map[StepID]struct{}
	}
)

// Error implements the error interface.
func (e *InvalidStepIDError) Error() string {
	return fmt.Sprintf("invalid step identifier %q (must be a relative path inside the steps directory)", e.Value)
}

// Unwrap returns ErrInvalidStepID so callers can use errors.Is for programmatic detection.
func (e *InvalidStepIDError) Unwrap() error { return ErrInvalidStepID }

// IsValid returns whether the StepID names a local path, and a list of
// validation errors if it does not. Windows device names are rejected on
// every OS so collections stay portable.
func (s StepID) IsValid() (bool, []error) {
	if strings.TrimSpace(string(s)) == "" || !filepath.IsLocal(string(s)) {
		return false, []error{&InvalidStepIDError{Value: s}}
	}
	for _, elem := range strings.Split(filepath.ToSlash(string(s)), "/") {
		if platform.IsWindowsReservedName(elem) {
			return false, []error{&InvalidStepIDError{Value: s}}
		}
	}
	return true, nil
}

// String returns the identifier as a string.
func (s StepID) String() string { return string(s) }

// New builds a plan. A nil allowed slice means every step in order is
// allowed; a non-nil empty slice allows nothing.
func New(order, allowed []StepID) (*Plan, error) {
	if len(order) == 0 {
		return nil, ErrEmptyOrder
	}

	var errs []error
	for _, id := range order {
		if ok, idErrs := id.IsValid(); !ok {
			errs = append(errs, idErrs...)
		}
	}
	if allowed == nil {
		allowed = order
	}
	set := make(map[StepID]struct{}, len(allowed))
	for _, id := range allowed {
		if ok, idErrs := id.IsValid(); !ok {
			errs = append(errs, idErrs...)
		}
		set[id] = struct{}{}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return &Plan{order: slices.Clone(order), allowed: set}, nil
}

// Order returns a copy of the step order.
func (p *Plan) Order() []StepID { return slices.Clone(p.order) }

// IsAllowed reports whether id may be launched.
func (p *Plan) IsAllowed(id StepID) bool {
	_, ok := p.allowed[id]
	return ok
}

// AllowedCount returns the size of the whitelist.
func (p *Plan) AllowedCount() int { return len(p.allowed) }

// Allowed returns the whitelist in sorted order.
func (p *Plan) Allowed() []StepID {
	out := make([]StepID, 0, len(p.allowed))
	for id := range p.allowed {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Bypassed returns the steps of the order that will be skipped, in order.
func (p *Plan) Bypassed() []StepID {
	var out []StepID
	for _, id := range p.order {
		if !p.IsAllowed(id) {
			out = append(out, id)
		}
	}
	return out
}

// Unordered returns allowed steps that do not appear in the order. They can
// only run when a step enqueues them.
func (p *Plan) Unordered() []StepID {
	var out []StepID
	for _, id := range p.Allowed() {
		if !slices.Contains(p.order, id) {
			out = append(out, id)
		}
	}
	return out
}
