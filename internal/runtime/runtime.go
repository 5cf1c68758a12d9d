// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"context"
	"io"
	"os"

	"github.com/dunhampa/poststand-core/pkg/plan"
)

type (
	// Handoff is the run state a step process receives. It is projected
	// into the child's environment by Env and never passed on argv.
	Handoff struct {
		// GlobalsDir is the run's Global Store namespace.
		GlobalsDir string
		// FunctionRoot is the collection root.
		FunctionRoot string
		// RunID identifies the run.
		RunID string
		// Step is filled in per launch.
		Step plan.StepID
		// Verbose tells the step whether its output is shown.
		Verbose bool
		// ConfigPath is the application config file, if any.
		ConfigPath string
	}

	// ExecutionContext contains everything needed to launch one step.
	ExecutionContext struct {
		// Context is the Go context for cancellation. Cancelling it kills
		// the step.
		Context context.Context
		// Step is the step to launch.
		Step plan.StepID
		// Handoff is projected into the child environment.
		Handoff Handoff
		// WorkDir is the child's working directory (the collection root).
		WorkDir string
		// Stdout is where to write standard output
		Stdout io.Writer
		// Stderr is where to write standard error
		Stderr io.Writer
		// Stdin is where to read standard input
		Stdin io.Reader
		// ExtraEnv is layered over the inherited environment, below the handoff.
		ExtraEnv map[string]string
	}

	// Result contains the result of a step launch.
	Result struct {
		// ExitCode is the exit code of the step
		ExitCode ExitCode
		// Error is set when the step could not be launched at all; a step
		// that ran and exited non-zero has a nil Error.
		Error error
	}
)

// NewExecutionContext creates an execution context wired to the process's
// standard streams.
func NewExecutionContext(ctx context.Context, step plan.StepID, handoff Handoff) *ExecutionContext {
	return &ExecutionContext{
		Context: ctx,
		Step:    step,
		Handoff: handoff,
		WorkDir: handoff.FunctionRoot,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Stdin:   os.Stdin,
	}
}

// Success returns true if the step executed successfully
func (r *Result) Success() bool {
	return r.ExitCode.IsSuccess() && r.Error == nil
}
