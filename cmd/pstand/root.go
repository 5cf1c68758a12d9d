// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// stderrWriter hides the file descriptor of stderr so fang routes every
// failure through errorHandler instead of printing it raw.
type stderrWriter struct{ io.Writer }

// NewRootCommand builds the command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	flags := &rootFlagValues{}

	rootCmd := &cobra.Command{
		Use:   "pstand",
		Short: "Sequential step orchestrator",
		Long: TitleStyle.Render("pstand") + SubtitleStyle.Render(" - Sequential step orchestrator") + `

pstand runs the steps of a collection one after another. Steps share a
JSON key/value store, may enqueue further steps, and are gated by the
collection's allow list and policies.

` + SubtitleStyle.Render("Examples:") + `
  pstand run                   Preview and run the collection
  pstand run --alone           Run without confirmation
  pstand step fetch_data       Run a single step
  pstand invoke --event ev.json
  pstand globals get token     Read a global from inside a step
  pstand validate              Check the collection without running it`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default is $HOME/.config/poststand/config.cue, then ./pstand.cue)")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newRunCommand(app, flags),
		newStepCommand(app, flags),
		newInvokeCommand(app, flags),
		newGlobalsCommand(app, flags),
		newSecretCommand(app, flags),
		newStatusCommand(app, flags),
		newValidateCommand(app, flags),
		newWatchCommand(app, flags),
		newConfigCommand(app, flags),
	)

	rootCmd.SetOut(app.stdout)
	rootCmd.SetErr(stderrWriter{app.stderr})
	rootCmd.SetIn(app.stdin)

	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Run executes the command tree with args and returns the process exit code.
func Run(ctx context.Context, app *App, args []string) int {
	rootCmd := NewRootCommand(app)
	rootCmd.SetArgs(args)

	err := fang.Execute(
		ctx,
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
		fang.WithErrorHandler(errorHandler),
	)
	if err == nil {
		return 0
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return int(exitErr.Code)
	}
	return 1
}

// errorHandler prints errors that commands did not report themselves, such
// as unknown flags or a wrong argument count.
func errorHandler(w io.Writer, _ fang.Styles, err error) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Reported() {
		return
	}
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("Error:"), err)
}

// Execute runs the CLI against the process environment and exits.
// This is called by main.main().
func Execute() {
	app, err := NewApp(Dependencies{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %s\n", ErrorStyle.Render("Error:"), err)
		os.Exit(1)
	}
	os.Exit(Run(context.Background(), app, os.Args[1:]))
}
