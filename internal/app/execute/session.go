// SPDX-License-Identifier: MPL-2.0

package execute

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/dunhampa/poststand-core/internal/config"
	"github.com/dunhampa/poststand-core/internal/logging"
	"github.com/dunhampa/poststand-core/internal/orchestrator"
	"github.com/dunhampa/poststand-core/internal/runlog"
	"github.com/dunhampa/poststand-core/internal/runtime"
	"github.com/dunhampa/poststand-core/pkg/globals"
	"github.com/dunhampa/poststand-core/pkg/plan"
	"github.com/dunhampa/poststand-core/pkg/platform"
)

// ErrEmptyAllowList is returned by RequireRunnable when allowed_scripts is
// present but empty.
var ErrEmptyAllowList = errors.New("allowed_scripts is empty; no step can run")

type (
	// SessionOptions configures NewSession.
	//
	// Required fields: Collection. Plan defaults to the collection's own
	// plan; Config defaults to config.DefaultConfig().
	SessionOptions struct {
		Config     *config.Config
		Collection *plan.Collection
		Plan       *plan.Plan

		Host platform.HostKind
		// RequestID names the run; empty falls back to AWS_REQUEST_ID, then
		// a UUID.
		RequestID string
		// Getenv defaults to os.Getenv.
		Getenv func(string) string
		// Launcher overrides the step launcher built from Config.
		Launcher orchestrator.Launcher
		Clock    orchestrator.Clock
		Logger   *log.Logger
		ExtraEnv map[string]string

		Stdout io.Writer
		Stderr io.Writer
		Stdin  io.Reader
	}

	// Session is one prepared run: workspace established, orchestrator
	// ready. Close releases the workspace.
	Session struct {
		Collection *plan.Collection
		Plan       *plan.Plan
		Workspace  *orchestrator.Workspace

		orch *orchestrator.Orchestrator
	}
)

// ResolveCollectionPath picks the collection config for a run:
//  1. explicit path (the --plan flag)
//  2. plan_file from application config, relative to startDir
//  3. the nearest collection config at or above startDir
func ResolveCollectionPath(explicit string, cfg *config.Config, startDir string) (string, error) {
	if explicit != "" {
		return filepath.Abs(explicit)
	}
	if cfg != nil && cfg.PlanFile != "" {
		p := cfg.PlanFile
		if !filepath.IsAbs(p) {
			p = filepath.Join(startDir, p)
		}
		return filepath.Clean(p), nil
	}
	return plan.FindRoot(startDir)
}

// LoadCollection resolves and loads the collection config and its plan.
func LoadCollection(explicit string, cfg *config.Config, startDir string) (*plan.Collection, *plan.Plan, error) {
	path, err := ResolveCollectionPath(explicit, cfg, startDir)
	if err != nil {
		return nil, nil, err
	}
	return plan.LoadPlan(path)
}

// SingleStepPlan is the plan used to run one step on its own. The step is
// its own allow list.
func SingleStepPlan(step plan.StepID) (*plan.Plan, error) {
	return plan.New([]plan.StepID{step}, nil)
}

// RequireRunnable rejects a plan that could not launch anything. Entry
// points that run on behalf of a caller treat that as a configuration error.
func RequireRunnable(p *plan.Plan) error {
	if p.AllowedCount() == 0 {
		return ErrEmptyAllowList
	}
	return nil
}

// LocalNamespace is the namespace directory on a local host:
// PSTAND_GLOBALS_DIR when set, else the collection root.
func LocalNamespace(getenv func(string) string, root string) string {
	if dir := getenv(platform.EnvGlobalsDir); dir != "" {
		return dir
	}
	return root
}

// NewLauncher builds the step launcher described by cfg.
func NewLauncher(cfg *config.Config, host platform.HostKind) *runtime.StepLauncher {
	return runtime.NewStepLauncher(cfg.StepsDir, host, cfg.Interpreters)
}

// NewSession prepares the workspace and the orchestrator for one run.
func NewSession(opts SessionOptions) (*Session, error) {
	if opts.Collection == nil {
		return nil, errors.New("execute: collection is required")
	}
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Host == "" {
		opts.Host = platform.DetectHost()
	}
	if ok, errs := opts.Host.IsValid(); !ok {
		return nil, errs[0]
	}

	p := opts.Plan
	if p == nil {
		var err error
		if p, err = opts.Collection.Plan(); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", plan.ErrInvalidPlan, opts.Collection.Path, err)
		}
	}

	launcher := opts.Launcher
	if launcher == nil {
		launcher = NewLauncher(opts.Config, opts.Host)
	}

	root := opts.Collection.Root()
	ws, err := orchestrator.PrepareWorkspace(orchestrator.WorkspaceOptions{
		Host:      opts.Host,
		LocalDir:  LocalNamespace(opts.Getenv, root),
		Root:      opts.Config.Workspace.Root,
		RequestID: opts.RequestID,
		Retention: opts.Config.Workspace.Retention,
		Clock:     opts.Clock,
		Logger:    opts.Logger,
		Getenv:    opts.Getenv,
	})
	if err != nil {
		return nil, err
	}

	orch, err := orchestrator.New(orchestrator.Options{
		Plan:         p,
		Workspace:    ws,
		Launcher:     launcher,
		FunctionRoot: root,
		Verbose:      opts.Collection.Verbose,
		ConfigPath:   opts.Config.Path,
		ExtraEnv:     opts.ExtraEnv,
		Logger:       opts.Logger,
		Clock:        opts.Clock,
		Stdout:       opts.Stdout,
		Stderr:       opts.Stderr,
		Stdin:        opts.Stdin,
	})
	if err != nil {
		ws.Teardown()
		return nil, err
	}

	return &Session{Collection: opts.Collection, Plan: p, Workspace: ws, orch: orch}, nil
}

// Run executes the plan. See orchestrator.Orchestrator.Run.
func (s *Session) Run(ctx context.Context, in orchestrator.Input) error {
	return s.orch.Run(ctx, in)
}

// State returns the orchestrator state.
func (s *Session) State() orchestrator.State { return s.orch.State() }

// Entries returns the Run Log of this session.
func (s *Session) Entries() []runlog.Entry { return s.orch.Entries() }

// Store returns the Global Store, or nil before Run.
func (s *Session) Store() *globals.Store { return s.orch.Store() }

// Close tears down an ephemeral workspace. Safe to call more than once.
func (s *Session) Close() { s.Workspace.Teardown() }
