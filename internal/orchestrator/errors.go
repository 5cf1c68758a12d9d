// SPDX-License-Identifier: MPL-2.0

package orchestrator

import (
	"errors"
	"fmt"

	"github.com/dunhampa/poststand-core/internal/runlog"
	"github.com/dunhampa/poststand-core/internal/runtime"
	"github.com/dunhampa/poststand-core/pkg/plan"
)

var (
	// ErrStepFailed is the sentinel error wrapped by StepFailedError.
	ErrStepFailed = errors.New("step failed")
	// ErrNamespaceBusy is returned when another orchestrator holds the
	// namespace lock.
	ErrNamespaceBusy = errors.New("namespace is in use by another run")
	// ErrAlreadyStarted is returned when Run is called twice.
	ErrAlreadyStarted = errors.New("orchestrator already started")
)

// StepFailedError is returned when a step exits non-zero or cannot be
// launched. Entries holds the Run Log as it was when the run stopped.
type StepFailedError struct {
	Step     plan.StepID
	ExitCode runtime.ExitCode
	Entries  []runlog.Entry
	// Err is the launch error, nil when the step ran and exited non-zero.
	Err error
}

func (e *StepFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("step %q failed (%s): %v", e.Step, e.ExitCode.Reason(), e.Err)
	}
	return fmt.Sprintf("step %q failed (%s)", e.Step, e.ExitCode.Reason())
}

// Unwrap returns ErrStepFailed and the launch error, if any.
func (e *StepFailedError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrStepFailed, e.Err}
	}
	return []error{ErrStepFailed}
}
