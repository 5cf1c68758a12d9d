// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dunhampa/poststand-core/internal/app/execute"
	"github.com/dunhampa/poststand-core/internal/config"
	"github.com/dunhampa/poststand-core/internal/logging"
	"github.com/dunhampa/poststand-core/internal/orchestrator"
	"github.com/dunhampa/poststand-core/pkg/globals"
	"github.com/dunhampa/poststand-core/pkg/plan"
	"github.com/dunhampa/poststand-core/pkg/platform"
)

type (
	// App wires CLI services and shared dependencies. Every command handler
	// receives an App and reaches configuration, streams, and the host
	// through it.
	App struct {
		Config   config.Provider
		stdout   io.Writer
		stderr   io.Writer
		stdin    io.Reader
		getenv   func(string) string
		getwd    func() (string, error)
		host     platform.HostKind
		launcher orchestrator.Launcher
		// interactive reports whether prompts can be answered.
		interactive func() bool
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config config.Provider
		Stdout io.Writer
		Stderr io.Writer
		Stdin  io.Reader
		Getenv func(string) string
		Getwd  func() (string, error)
		// Host defaults to detection from Getenv.
		Host platform.HostKind
		// Launcher replaces the step launcher built from config.
		Launcher orchestrator.Launcher
		// Interactive defaults to a TTY check on Stdin.
		Interactive func() bool
	}

	// rootFlagValues holds the persistent flags.
	rootFlagValues struct {
		verbose    bool
		configPath string
		logLevel   string
	}

	// runEnv is what every collection-facing command needs before it can
	// act: loaded config, a logger, and the directory to search from.
	runEnv struct {
		cfg      *config.Config
		logger   *log.Logger
		startDir string
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) (*App, error) {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Stdin == nil {
		deps.Stdin = os.Stdin
	}
	if deps.Getenv == nil {
		deps.Getenv = os.Getenv
	}
	if deps.Getwd == nil {
		deps.Getwd = os.Getwd
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	if deps.Host == "" {
		deps.Host = platform.HostFromEnv(deps.Getenv)
	}
	if ok, errs := deps.Host.IsValid(); !ok {
		return nil, errs[0]
	}
	if deps.Interactive == nil {
		stdin := deps.Stdin
		deps.Interactive = func() bool { return isTerminal(stdin) }
	}

	return &App{
		Config:      deps.Config,
		stdout:      deps.Stdout,
		stderr:      deps.Stderr,
		stdin:       deps.Stdin,
		getenv:      deps.Getenv,
		getwd:       deps.Getwd,
		host:        deps.Host,
		launcher:    deps.Launcher,
		interactive: deps.Interactive,
	}, nil
}

// prepare loads configuration and builds the process logger.
func (a *App) prepare(ctx context.Context, flags *rootFlagValues) (*runEnv, error) {
	start, err := a.startDir()
	if err != nil {
		return nil, err
	}

	// A step calling back into the CLI inherits the run's config file.
	cfgPath := flags.configPath
	if cfgPath == "" {
		cfgPath = a.getenv(platform.EnvConfigPath)
	}
	cfg, err := a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: cfgPath, BaseDir: start})
	if err != nil {
		return nil, err
	}

	level := string(cfg.Log.Level)
	switch {
	case flags.logLevel != "":
		level = flags.logLevel
	case flags.verbose:
		level = string(config.LogLevelDebug)
	}
	logger, err := logging.New(logging.Options{Out: a.stderr, Level: level, Format: cfg.Log.Format})
	if err != nil {
		return nil, err
	}
	logging.Install(logger)

	return &runEnv{cfg: cfg, logger: logger, startDir: start}, nil
}

// startDir is PSTAND_FUNCTION_ROOT when a step calls back into the CLI,
// else the working directory.
func (a *App) startDir() (string, error) {
	if root := a.getenv(platform.EnvFunctionRoot); root != "" {
		return root, nil
	}
	return a.getwd()
}

func (a *App) sessionOptions(env *runEnv, c *plan.Collection, p *plan.Plan) execute.SessionOptions {
	return execute.SessionOptions{
		Config:     env.cfg,
		Collection: c,
		Plan:       p,
		Host:       a.host,
		Getenv:     a.getenv,
		Launcher:   a.launcher,
		Logger:     env.logger,
		Stdout:     a.stdout,
		Stderr:     a.stderr,
		Stdin:      a.stdin,
	}
}

// runSession prepares a session, runs it, and tears it down.
func (a *App) runSession(ctx context.Context, opts execute.SessionOptions, in orchestrator.Input) error {
	session, err := execute.NewSession(opts)
	if err != nil {
		return err
	}
	defer session.Close()
	return session.Run(ctx, in)
}

// openStore opens the Global Store in namespaceDir.
func (a *App) openStore(dir string) (*globals.Store, error) {
	ns, err := a.namespaceDir(dir)
	if err != nil {
		return nil, err
	}
	return globals.Open(ns)
}

// namespaceDir resolves the namespace for step-facing commands: an explicit
// directory, then PSTAND_GLOBALS_DIR, then the nearest collection root, then
// the working directory. Ephemeral hosts require the environment variable.
func (a *App) namespaceDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	if envDir := a.getenv(platform.EnvGlobalsDir); envDir != "" {
		return envDir, nil
	}
	if a.host.IsEphemeral() {
		return "", fmt.Errorf("%w: %s is not set", globals.ErrNamespaceNotEstablished, platform.EnvGlobalsDir)
	}
	start, err := a.startDir()
	if err != nil {
		return "", err
	}
	if path, findErr := plan.FindRoot(start); findErr == nil {
		return filepath.Dir(path), nil
	}
	return start, nil
}

// ask prompts on stdout unless skip is set or no one can answer, in which
// case it accepts.
func (a *App) ask(skip bool, question string) (bool, error) {
	if skip || !a.interactive() {
		return true, nil
	}
	return confirm(a.stdout, a.stdin, question)
}

// fail reports err on stderr with its catalog help and converts it into an
// already-reported ExitError.
func (a *App) fail(cmd *cobra.Command, flags *rootFlagValues, err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Reported() {
		return err
	}
	cmd.SilenceUsage = true
	renderServiceError(a.stderr, classifyError(err, flags.verbose), a.glamourStyle())
	return &ExitError{Code: exitCodeFor(err)}
}

// glamourStyle picks the catalog style for stderr.
func (a *App) glamourStyle() string {
	if isTerminal(a.stderr) {
		return "dark"
	}
	return "notty"
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
