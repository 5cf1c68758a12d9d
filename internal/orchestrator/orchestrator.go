// SPDX-License-Identifier: MPL-2.0

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"golang.org/x/exp/slices"

	"github.com/dunhampa/poststand-core/internal/logging"
	"github.com/dunhampa/poststand-core/internal/runlog"
	"github.com/dunhampa/poststand-core/internal/runtime"
	"github.com/dunhampa/poststand-core/pkg/globals"
	"github.com/dunhampa/poststand-core/pkg/plan"
)

// State is the orchestrator's lifecycle position.
type State string

const (
	// StateIdle is the state before Run.
	StateIdle State = "idle"
	// StateRunning is the state while steps are executing.
	StateRunning State = "running"
	// StateCompleted means every step ran or was skipped.
	StateCompleted State = "completed"
	// StateFailed means the run stopped on an error.
	StateFailed State = "failed"
)

type (
	// Launcher starts one step and blocks until it exits.
	Launcher interface {
		Launch(ctx *runtime.ExecutionContext) *runtime.Result
	}

	// Options configures an Orchestrator.
	Options struct {
		Plan      *plan.Plan
		Workspace *Workspace
		Launcher  Launcher
		// FunctionRoot is the collection root and the steps' working directory.
		FunctionRoot string
		// Verbose is handed to steps; on ephemeral hosts it also un-gates
		// step stdout.
		Verbose    bool
		ConfigPath string
		// ExtraEnv is added to every step's environment.
		ExtraEnv map[string]string
		Logger   *log.Logger
		Clock    Clock
		Stdout   io.Writer
		Stderr   io.Writer
		Stdin    io.Reader
	}

	// Input is the run entry contract: optional reset, then seeding.
	Input struct {
		InitialGlobals map[string]any
		ClearGlobals   bool
	}

	// Orchestrator runs a plan against one workspace. It is single use.
	Orchestrator struct {
		opts   Options
		logger *log.Logger
		clock  Clock

		state  State
		order  []plan.StepID
		cursor int
		store  *globals.Store
		runLog *runlog.Log
	}
)

// New creates an orchestrator. Plan, Workspace and Launcher are required.
func New(opts Options) (*Orchestrator, error) {
	var errs []error
	if opts.Plan == nil {
		errs = append(errs, errors.New("orchestrator: plan is required"))
	}
	if opts.Workspace == nil {
		errs = append(errs, errors.New("orchestrator: workspace is required"))
	}
	if opts.Launcher == nil {
		errs = append(errs, errors.New("orchestrator: launcher is required"))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	o := &Orchestrator{
		opts:   opts,
		logger: opts.Logger,
		clock:  opts.Clock,
		state:  StateIdle,
	}
	if o.logger == nil {
		o.logger = logging.Discard()
	}
	if o.clock == nil {
		o.clock = SystemClock()
	}
	if o.opts.Stdout == nil {
		o.opts.Stdout = os.Stdout
	}
	if o.opts.Stderr == nil {
		o.opts.Stderr = os.Stderr
	}
	return o, nil
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State { return o.state }

// Entries returns the Run Log so far.
func (o *Orchestrator) Entries() []runlog.Entry {
	if o.runLog == nil {
		return nil
	}
	return o.runLog.Entries()
}

// Store returns the run's Global Store, or nil before Run.
func (o *Orchestrator) Store() *globals.Store { return o.store }

// Run seeds the Global Store and executes the plan. On failure the workspace
// is torn down and the error is returned; a failing step yields a
// *StepFailedError. On success teardown is left to the caller.
func (o *Orchestrator) Run(ctx context.Context, in Input) (err error) {
	if o.state != StateIdle {
		return ErrAlreadyStarted
	}
	o.state = StateRunning
	defer func() {
		if err != nil {
			o.state = StateFailed
			o.opts.Workspace.Teardown()
		}
	}()

	lock, err := acquireNamespaceLock(o.opts.Workspace.Dir)
	if err != nil {
		return err
	}
	defer lock.Release()

	if err := o.seed(in); err != nil {
		return err
	}

	o.runLog = runlog.New(o.opts.Workspace.Dir, o.logger)
	o.order = o.opts.Plan.Order()

	if o.opts.Plan.AllowedCount() == 0 {
		o.logger.Warn("no steps are allowed; nothing will run", "steps", len(o.order))
	}

	for o.cursor = 0; o.cursor < len(o.order); o.cursor++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run interrupted before %s: %w", o.order[o.cursor], err)
		}
		if err := o.step(ctx, o.order[o.cursor]); err != nil {
			return err
		}
	}

	o.state = StateCompleted
	o.logger.Info("all steps executed", "run", o.opts.Workspace.RequestID, "entries", len(o.runLog.Entries()))
	return nil
}

func (o *Orchestrator) seed(in Input) error {
	store, err := globals.Open(o.opts.Workspace.Dir)
	if err != nil {
		return err
	}
	o.store = store

	if in.ClearGlobals {
		if err := store.Clear(); err != nil {
			return fmt.Errorf("clear globals: %w", err)
		}
	}
	if len(in.InitialGlobals) > 0 {
		if err := store.SetMany(in.InitialGlobals); err != nil {
			return fmt.Errorf("seed globals: %w", err)
		}
	}
	return nil
}

func (o *Orchestrator) step(ctx context.Context, id plan.StepID) error {
	if !o.opts.Plan.IsAllowed(id) {
		o.logger.Info("skipping step not in allowed_scripts", "step", id)
		o.runLog.Skip(string(id))
		return nil
	}

	o.logger.Info("executing", "step", id)
	idx := o.runLog.Begin(string(id))
	start := o.clock.Now()

	result := o.opts.Launcher.Launch(o.executionContext(ctx, id))
	elapsed := o.clock.Since(start)

	if !result.Success() {
		o.runLog.Finish(idx, runlog.StatusError, elapsed)
		o.logger.Error("step failed", "step", id, "exit_code", result.ExitCode, "error", result.Error)
		return &StepFailedError{
			Step:     id,
			ExitCode: result.ExitCode,
			Entries:  o.runLog.Entries(),
			Err:      result.Error,
		}
	}
	o.runLog.Finish(idx, runlog.StatusDone, elapsed)

	return o.splice(id)
}

// splice drains the pending-append queue and inserts the allowed entries as
// one block right after the cursor, in enqueue order.
func (o *Orchestrator) splice(after plan.StepID) error {
	queued, err := o.store.DrainQueue()
	if err != nil && !errors.Is(err, globals.ErrMalformedQueue) {
		return fmt.Errorf("drain queue after %s: %w", after, err)
	}
	if err != nil {
		o.logger.Warn("ignoring malformed queue entries", "step", after, "error", err)
	}
	if len(queued) == 0 {
		return nil
	}

	accepted := make([]plan.StepID, 0, len(queued))
	for _, name := range queued {
		id := plan.StepID(name)
		if ok, _ := id.IsValid(); !ok || !o.opts.Plan.IsAllowed(id) {
			o.logger.Warn("dropping queued step not in allowed_scripts", "step", id, "queued_by", after)
			o.runLog.Skip(name)
			continue
		}
		accepted = append(accepted, id)
	}
	if len(accepted) > 0 {
		o.logger.Info("queued steps", "count", len(accepted), "queued_by", after, "steps", accepted)
		o.order = slices.Insert(o.order, o.cursor+1, accepted...)
	}
	return nil
}

func (o *Orchestrator) executionContext(ctx context.Context, id plan.StepID) *runtime.ExecutionContext {
	return &runtime.ExecutionContext{
		Context: ctx,
		Step:    id,
		Handoff: runtime.Handoff{
			GlobalsDir:   o.opts.Workspace.Dir,
			FunctionRoot: o.opts.FunctionRoot,
			RunID:        o.opts.Workspace.RequestID,
			Step:         id,
			Verbose:      o.opts.Verbose,
			ConfigPath:   o.opts.ConfigPath,
		},
		WorkDir:  o.opts.FunctionRoot,
		Stdout:   o.opts.Stdout,
		Stderr:   o.opts.Stderr,
		Stdin:    o.opts.Stdin,
		ExtraEnv: o.opts.ExtraEnv,
	}
}
