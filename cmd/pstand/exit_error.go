// SPDX-License-Identifier: MPL-2.0

package cmd

import "github.com/dunhampa/poststand-core/internal/runtime"

// ExitError is returned from RunE to set pstand's exit status. A failed
// step's own code passes through unchanged, so a caller sees the status the
// step exited with. Err is nil once the failure has been rendered to stderr.
type ExitError struct {
	Code runtime.ExitCode
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "pstand: " + e.Code.Reason()
}

func (e *ExitError) Unwrap() error { return e.Err }

// Reported reports whether the failure was already shown to the user.
func (e *ExitError) Reported() bool { return e.Err == nil }
