// SPDX-License-Identifier: MPL-2.0

package policy

import (
	"errors"
	"fmt"
	"strings"
)

// Section names used in error messages.
const (
	SectionInput  = "globalInputs"
	SectionOutput = "returnable_globals"
)

var (
	// ErrInvalidPolicy is the sentinel error wrapped by InvalidPolicyError.
	ErrInvalidPolicy = errors.New("invalid policy configuration")

	// ErrInputRejected is the sentinel error wrapped by InputValidationError.
	ErrInputRejected = errors.New("input validation failed")

	// ErrDisclosureRejected is the sentinel error wrapped by DisclosureError.
	ErrDisclosureRejected = errors.New("failed to return requested globals")
)

type (
	// InvalidPolicyError is returned when a policy section of the collection
	// config cannot be compiled. It collects every problem in the section.
	InvalidPolicyError struct {
		Section     string
		FieldErrors []error
	}

	// InputValidationError rejects a whole input batch. Violations lists
	// every offending key, in key order.
	InputValidationError struct {
		Violations []string
	}

	// DisclosureError rejects an output request.
	DisclosureError struct {
		Detail string
	}
)

// Error implements the error interface.
func (e *InvalidPolicyError) Error() string {
	msgs := make([]string, len(e.FieldErrors))
	for i, err := range e.FieldErrors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("invalid configuration for %s: %s", e.Section, strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidPolicy so callers can use errors.Is for programmatic detection.
func (e *InvalidPolicyError) Unwrap() error { return ErrInvalidPolicy }

// Error implements the error interface.
func (e *InputValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInputRejected, strings.Join(e.Violations, " "))
}

// Unwrap returns ErrInputRejected so callers can use errors.Is for programmatic detection.
func (e *InputValidationError) Unwrap() error { return ErrInputRejected }

// Error implements the error interface.
func (e *DisclosureError) Error() string {
	return fmt.Sprintf("%s: %s", ErrDisclosureRejected, e.Detail)
}

// Unwrap returns ErrDisclosureRejected so callers can use errors.Is for programmatic detection.
func (e *DisclosureError) Unwrap() error { return ErrDisclosureRejected }
