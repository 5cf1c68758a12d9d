// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"errors"
	"fmt"
)

// ExitCode is a step's process exit status. Zero is success.
type ExitCode int

const (
	// ExitFailure is reported when a step could not be run for a reason
	// other than a missing or non-executable artifact.
	ExitFailure ExitCode = 1
	// ExitNotExecutable: the artifact exists but cannot be executed.
	ExitNotExecutable ExitCode = 126
	// ExitNotFound: the artifact or its interpreter is missing.
	ExitNotFound ExitCode = 127
)

// ErrExitCodeRange is returned for OS statuses that do not fit in a byte.
var ErrExitCodeRange = errors.New("exit code out of range")

// exitCodeOf converts an OS exit status into an ExitCode. A process killed by
// a signal reports -1, which is out of range.
func exitCodeOf(status int) (ExitCode, error) {
	if status < 0 || status > 255 {
		return ExitFailure, fmt.Errorf("%w: %d", ErrExitCodeRange, status)
	}
	return ExitCode(status), nil
}

// IsSuccess reports whether the step exited zero.
func (c ExitCode) IsSuccess() bool { return c == 0 }

// Reason describes the code in the words used by run output.
func (c ExitCode) Reason() string {
	switch c {
	case 0:
		return "completed"
	case ExitNotExecutable:
		return "not executable"
	case ExitNotFound:
		return "artifact or interpreter not found"
	default:
		return fmt.Sprintf("exit status %d", int(c))
	}
}
