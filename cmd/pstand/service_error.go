// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/dunhampa/poststand-core/internal/app/execute"
	"github.com/dunhampa/poststand-core/internal/config"
	"github.com/dunhampa/poststand-core/internal/issue"
	"github.com/dunhampa/poststand-core/internal/orchestrator"
	"github.com/dunhampa/poststand-core/internal/policy"
	"github.com/dunhampa/poststand-core/internal/runtime"
	"github.com/dunhampa/poststand-core/pkg/globals"
	"github.com/dunhampa/poststand-core/pkg/plan"
)

// errSecretMissing is reported when `pstand secret get` finds nothing.
var errSecretMissing = errors.New("secret not found")

// ServiceError is an error that carries optional rendering information for
// the CLI layer. Always create via newServiceError.
type ServiceError struct {
	// Err is the underlying error (must not be nil).
	Err error
	// IssueID is the optional issue catalog ID for rendering help text.
	IssueID issue.Id
	// StyledMessage is the optional pre-rendered styled error text.
	StyledMessage string
}

// newServiceError creates a ServiceError with a nil-Err panic guard.
func newServiceError(err error, issueID issue.Id, styledMessage string) *ServiceError {
	if err == nil {
		panic("ServiceError: Err must not be nil")
	}
	return &ServiceError{
		Err:           err,
		IssueID:       issueID,
		StyledMessage: styledMessage,
	}
}

// Error implements the error interface.
func (e *ServiceError) Error() string { return e.Err.Error() }

// Unwrap returns the underlying error for errors.Is/As chains.
func (e *ServiceError) Unwrap() error { return e.Err }

// renderServiceError prints the styled message, then the issue help section
// rendered with glamour style.
func renderServiceError(stderr io.Writer, svcErr *ServiceError, style string) {
	if svcErr == nil {
		return
	}

	if svcErr.StyledMessage != "" {
		fmt.Fprint(stderr, svcErr.StyledMessage)
	}

	if svcErr.IssueID == 0 {
		return
	}

	if catalogEntry := issue.Get(svcErr.IssueID); catalogEntry != nil {
		rendered, renderErr := catalogEntry.Render(style)
		if renderErr != nil {
			slog.Warn("failed to render issue catalog entry", "issueID", svcErr.IssueID, "error", renderErr)
		} else {
			fmt.Fprint(stderr, rendered)
		}
	}
}

// classifyError maps a failure to its issue catalog entry and a styled
// one-line message. Launch causes are checked before the generic step
// failure so a missing artifact gets its own help.
func classifyError(err error, verbose bool) *ServiceError {
	var id issue.Id
	switch {
	case errors.Is(err, runtime.ErrStepNotFound):
		id = issue.StepNotFoundId
	case errors.Is(err, runtime.ErrInterpreterNotFound):
		id = issue.InterpreterNotFoundId
	case errors.Is(err, orchestrator.ErrStepFailed):
		id = issue.StepFailedId
	case errors.Is(err, orchestrator.ErrNamespaceBusy):
		id = issue.NamespaceBusyId
	case errors.Is(err, globals.ErrNamespaceNotEstablished):
		id = issue.NamespaceMissingId
	case errors.Is(err, policy.ErrInputRejected):
		id = issue.InputRejectedId
	case errors.Is(err, policy.ErrDisclosureRejected):
		id = issue.DisclosureRejectedId
	case errors.Is(err, plan.ErrPlanNotFound):
		id = issue.PlanNotFoundId
	case errors.Is(err, plan.ErrInvalidPlan),
		errors.Is(err, policy.ErrInvalidPolicy),
		errors.Is(err, execute.ErrEmptyAllowList):
		id = issue.PlanInvalidId
	case errors.Is(err, errSecretMissing):
		id = issue.SecretMissingId
	case errors.Is(err, config.ErrInvalidConfig), isConfigLoadError(err):
		id = issue.ConfigLoadFailedId
	}
	return newServiceError(err, id, fmt.Sprintf("\n%s %s\n", ErrorStyle.Render("Error:"), formatErrorForDisplay(err, verbose)))
}

func isConfigLoadError(err error) bool {
	var ae *issue.ActionableError
	return errors.As(err, &ae) && (ae.Operation == "load configuration" || ae.Operation == "validate configuration")
}

// exitCodeFor is the process exit code for a failure: a failed step's own
// code, 1 otherwise.
func exitCodeFor(err error) runtime.ExitCode {
	var failed *orchestrator.StepFailedError
	if errors.As(err, &failed) && failed.ExitCode != 0 {
		return failed.ExitCode
	}
	return 1
}

// formatErrorForDisplay uses ActionableError.Format when available.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}
