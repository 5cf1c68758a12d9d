// SPDX-License-Identifier: MPL-2.0

package invoke

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dunhampa/poststand-core/internal/app/execute"
	"github.com/dunhampa/poststand-core/internal/orchestrator"
	"github.com/dunhampa/poststand-core/internal/policy"
	"github.com/dunhampa/poststand-core/pkg/plan"
)

const (
	// KindBadRequest means the event could not be decoded.
	KindBadRequest Kind = "bad_request"
	// KindConfig means the collection or its policies are unusable.
	KindConfig Kind = "config"
	// KindInputRejected means the input policy rejected the batch.
	KindInputRejected Kind = "input_rejected"
	// KindStepFailed means a step exited non-zero or could not be launched.
	KindStepFailed Kind = "step_failed"
	// KindDisclosureRejected means the output policy refused the request.
	KindDisclosureRejected Kind = "disclosure_rejected"
	// KindInternal covers workspace and store failures.
	KindInternal Kind = "internal"
)

// ErrInvalidKind is the sentinel error wrapped by InvalidKindError.
var ErrInvalidKind = errors.New("invalid invoke error kind")

type (
	// Kind classifies an invocation failure.
	Kind string

	// InvalidKindError is returned when a Kind is not recognized.
	InvalidKindError struct {
		Value Kind
	}

	// Error is an invocation failure. Details is a string or a list of
	// strings and is meant for the caller.
	Error struct {
		Kind       Kind
		Message    string
		Details    any
		StatusCode int
		Err        error
	}
)

func (e *InvalidKindError) Error() string {
	return fmt.Sprintf("invalid invoke error kind %q", e.Value)
}

// Unwrap returns ErrInvalidKind so callers can use errors.Is for programmatic detection.
func (e *InvalidKindError) Unwrap() error { return ErrInvalidKind }

// IsValid returns whether the Kind is one of the defined kinds.
func (k Kind) IsValid() (bool, []error) {
	switch k {
	case KindBadRequest, KindConfig, KindInputRejected, KindStepFailed, KindDisclosureRejected, KindInternal:
		return true, nil
	default:
		return false, []error{&InvalidKindError{Value: k}}
	}
}

// StatusCode is the adapter status for failures of this kind.
func (k Kind) StatusCode() int {
	switch k {
	case KindBadRequest, KindInputRejected, KindDisclosureRejected:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Body is the JSON object an adapter returns for this failure.
func (e *Error) Body() map[string]any {
	body := map[string]any{"error": e.Message}
	if e.Details != nil {
		body["details"] = e.Details
	}
	return body
}

func newError(kind Kind, message string, details any, err error) *Error {
	return &Error{Kind: kind, Message: message, Details: details, StatusCode: kind.StatusCode(), Err: err}
}

// classify turns a pipeline error into an *Error. Errors that already are
// one pass through.
func classify(err error) *Error {
	var invErr *Error
	if errors.As(err, &invErr) {
		return invErr
	}

	var (
		rejected  *policy.InputValidationError
		disclosed *policy.DisclosureError
		failed    *orchestrator.StepFailedError
	)
	switch {
	case errors.As(err, &rejected):
		return newError(KindInputRejected, "Input validation failed", rejected.Violations, err)
	case errors.As(err, &disclosed):
		return newError(KindDisclosureRejected, "Failed to return requested globals", disclosed.Detail, err)
	case errors.As(err, &failed):
		return newError(KindStepFailed, "Script execution failed", failed.Error(), err)
	case errors.Is(err, policy.ErrInvalidPolicy),
		errors.Is(err, plan.ErrInvalidPlan),
		errors.Is(err, plan.ErrPlanNotFound),
		errors.Is(err, execute.ErrEmptyAllowList):
		return newError(KindConfig, "Missing or invalid config file", err.Error(), err)
	default:
		return newError(KindInternal, "Execution failed", err.Error(), err)
	}
}
