// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"time"

	"mvdan.cc/sh/v3/shell"

	"github.com/dunhampa/poststand-core/pkg/plan"
	"github.com/dunhampa/poststand-core/pkg/platform"
)

// waitDelay bounds how long Launch waits for a cancelled step's output
// pipes to close once the step itself has been killed.
const waitDelay = 2 * time.Second

var (
	// ErrStepNotFound is the sentinel error wrapped by StepNotFoundError.
	ErrStepNotFound = errors.New("step artifact not found")
	// ErrStepNotExecutable is the sentinel error wrapped by StepNotExecutableError.
	ErrStepNotExecutable = errors.New("step artifact not executable")
	// ErrInterpreterNotFound is the sentinel error wrapped by InterpreterNotFoundError.
	ErrInterpreterNotFound = errors.New("interpreter not found")
	// ErrInvalidInterpreter is returned when an interpreter command line
	// cannot be parsed or is empty.
	ErrInvalidInterpreter = errors.New("invalid interpreter command line")
)

type (
	// StepNotFoundError is returned when no artifact exists for a step.
	StepNotFoundError struct {
		Step plan.StepID
		Path string
	}

	// StepNotExecutableError is returned for an extension-less artifact
	// without an execute bit.
	StepNotExecutableError struct {
		Step plan.StepID
		Path string
	}

	// InterpreterNotFoundError is returned when the interpreter for a step's
	// extension is not on PATH.
	InterpreterNotFoundError struct {
		Interpreter string
		Ext         string
	}

	// StepLauncher runs step artifacts from a steps directory.
	StepLauncher struct {
		// StepsDir holds the step artifacts. A relative path is resolved
		// against the execution context's WorkDir.
		StepsDir string
		// Interpreters maps a file extension (with the dot) to a command
		// line. The artifact path is appended as the last argument.
		Interpreters map[string]string
		// Host decides whether step stdout is gated by the verbose flag.
		Host platform.HostKind
		// Environ returns the parent environment. Defaults to os.Environ.
		Environ func() []string

		lookPath func(string) (string, error)
	}
)

func (e *StepNotFoundError) Error() string {
	return fmt.Sprintf("step %q not found at %s", e.Step, e.Path)
}

func (e *StepNotFoundError) Unwrap() error { return ErrStepNotFound }

func (e *StepNotExecutableError) Error() string {
	return fmt.Sprintf("step %q at %s is not executable and has no known extension", e.Step, e.Path)
}

func (e *StepNotExecutableError) Unwrap() error { return ErrStepNotExecutable }

func (e *InterpreterNotFoundError) Error() string {
	return fmt.Sprintf("interpreter %q for %s steps not found in PATH", e.Interpreter, e.Ext)
}

func (e *InterpreterNotFoundError) Unwrap() error { return ErrInterpreterNotFound }

// DefaultInterpreters returns the built-in extension table.
func DefaultInterpreters() map[string]string {
	return map[string]string{
		".js":  "node",
		".mjs": "node",
		".cjs": "node",
		".sh":  "sh",
		".py":  "python3",
	}
}

// NewStepLauncher creates a launcher with the default interpreters, layered
// with overrides.
func NewStepLauncher(stepsDir string, host platform.HostKind, overrides map[string]string) *StepLauncher {
	interpreters := DefaultInterpreters()
	maps.Copy(interpreters, overrides)
	return &StepLauncher{
		StepsDir:     stepsDir,
		Interpreters: interpreters,
		Host:         host,
	}
}

// Resolve returns the artifact path for step, relative to workDir when
// StepsDir is relative.
func (l *StepLauncher) Resolve(workDir string, step plan.StepID) (string, error) {
	if ok, errs := step.IsValid(); !ok {
		return "", errors.Join(errs...)
	}
	dir := l.StepsDir
	if dir == "" {
		dir = plan.DefaultStepsDir
	}
	if !filepath.IsAbs(dir) && workDir != "" {
		dir = filepath.Join(workDir, dir)
	}
	path := filepath.Join(dir, string(step))

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", &StepNotFoundError{Step: step, Path: path}
	}
	return path, nil
}

// Command returns the argv that launches the artifact at path.
func (l *StepLauncher) Command(step plan.StepID, path string) ([]string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if line, ok := l.Interpreters[ext]; ok {
		fields, err := shell.Fields(line, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrInvalidInterpreter, line, err)
		}
		if len(fields) == 0 {
			return nil, fmt.Errorf("%w: empty command line for %s", ErrInvalidInterpreter, ext)
		}
		interp, err := l.look(fields[0])
		if err != nil {
			return nil, &InterpreterNotFoundError{Interpreter: fields[0], Ext: ext}
		}
		fields[0] = interp
		return append(fields, path), nil
	}

	if goruntime.GOOS != platform.Windows {
		info, err := os.Stat(path)
		if err != nil {
			return nil, &StepNotFoundError{Step: step, Path: path}
		}
		if info.Mode().Perm()&0o111 == 0 {
			return nil, &StepNotExecutableError{Step: step, Path: path}
		}
	}
	return []string{path}, nil
}

// Launch runs the step described by ctx and blocks until it exits.
// Launch failures are reported through Result.Error with exit code 127
// (missing artifact or interpreter) or 126 (not executable).
func (l *StepLauncher) Launch(ctx *ExecutionContext) *Result {
	path, err := l.Resolve(ctx.WorkDir, ctx.Step)
	if err != nil {
		return launchFailure(err)
	}
	argv, err := l.Command(ctx.Step, path)
	if err != nil {
		return launchFailure(err)
	}

	goCtx := ctx.Context
	if goCtx == nil {
		goCtx = context.Background()
	}

	handoff := ctx.Handoff
	handoff.Step = ctx.Step

	cmd := exec.CommandContext(goCtx, argv[0], argv[1:]...)
	cmd.Dir = ctx.WorkDir
	cmd.Env = BuildEnv(l.environ(), ctx.ExtraEnv, handoff)
	cmd.Stdin = ctx.Stdin
	cmd.Stdout = l.stdout(ctx)
	cmd.Stderr = ctx.Stderr
	cmd.WaitDelay = waitDelay

	slog.Debug("launching step", "step", ctx.Step, "argv", argv)

	return extractExitCode(goCtx, cmd.Run())
}

// stdout drops step output in ephemeral hosts unless the run is verbose.
func (l *StepLauncher) stdout(ctx *ExecutionContext) io.Writer {
	if ctx.Stdout == nil || (l.Host.IsEphemeral() && !ctx.Handoff.Verbose) {
		return io.Discard
	}
	return ctx.Stdout
}

func (l *StepLauncher) environ() []string {
	if l.Environ != nil {
		return l.Environ()
	}
	return os.Environ()
}

func (l *StepLauncher) look(name string) (string, error) {
	if l.lookPath != nil {
		return l.lookPath(name)
	}
	return exec.LookPath(name)
}

func launchFailure(err error) *Result {
	var notExec *StepNotExecutableError
	switch {
	case errors.As(err, &notExec):
		return &Result{ExitCode: ExitNotExecutable, Error: err}
	case errors.Is(err, ErrStepNotFound), errors.Is(err, ErrInterpreterNotFound):
		return &Result{ExitCode: ExitNotFound, Error: err}
	default:
		return &Result{ExitCode: ExitFailure, Error: err}
	}
}

func extractExitCode(ctx context.Context, err error) *Result {
	if err == nil {
		return &Result{}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return &Result{ExitCode: ExitFailure, Error: fmt.Errorf("step interrupted: %w", ctxErr)}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code, rangeErr := exitCodeOf(exitErr.ExitCode())
		return &Result{ExitCode: code, Error: rangeErr}
	}

	switch {
	case errors.Is(err, fs.ErrPermission):
		return &Result{ExitCode: ExitNotExecutable, Error: err}
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return &Result{ExitCode: ExitNotFound, Error: err}
	default:
		return &Result{ExitCode: ExitFailure, Error: err}
	}
}
