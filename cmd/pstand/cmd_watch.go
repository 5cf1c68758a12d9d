// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dunhampa/poststand-core/internal/app/execute"
	"github.com/dunhampa/poststand-core/internal/orchestrator"
	"github.com/dunhampa/poststand-core/internal/watch"
	"github.com/dunhampa/poststand-core/pkg/plan"
)

type watchFlagValues struct {
	debounce    time.Duration
	clearScreen bool
	ignore      []string
	planPath    string
}

func newWatchCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	flags := &watchFlagValues{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rerun the collection when steps or its config change",
		Long: `Run the collection once, then again whenever a file under the steps
directory or the collection config changes. Files written by the run itself
(globals, run log, lock) never trigger a rerun. Stop with Ctrl+C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runWatch(cmd, rootFlags, flags)
		},
	}
	cmd.Flags().DurationVar(&flags.debounce, "debounce", 500*time.Millisecond, "quiet period before a rerun")
	cmd.Flags().BoolVar(&flags.clearScreen, "clear-screen", false, "clear the terminal before each rerun")
	cmd.Flags().StringSliceVar(&flags.ignore, "ignore", nil, "additional glob patterns to ignore")
	cmd.Flags().StringVar(&flags.planPath, "plan", "", "collection config (default: nearest _collection_config.yaml)")
	return cmd
}

func (a *App) runWatch(cmd *cobra.Command, rootFlags *rootFlagValues, flags *watchFlagValues) error {
	env, err := a.prepare(cmd.Context(), rootFlags)
	if err != nil {
		return a.fail(cmd, rootFlags, err)
	}
	path, err := execute.ResolveCollectionPath(flags.planPath, env.cfg, env.startDir)
	if err != nil {
		return a.fail(cmd, rootFlags, err)
	}
	root := filepath.Dir(path)

	// Reload on every pass so edits to the collection config take effect.
	rerun := func(ctx context.Context) {
		c, p, loadErr := plan.LoadPlan(path)
		if loadErr == nil {
			loadErr = a.runSession(ctx, a.sessionOptions(env, c, p), orchestrator.Input{ClearGlobals: true})
		}
		if loadErr != nil {
			renderServiceError(a.stderr, classifyError(loadErr, rootFlags.verbose), a.glamourStyle())
			return
		}
		fmt.Fprintln(a.stdout, SuccessStyle.Render("Execution completed successfully."))
	}

	stepsDir := env.cfg.StepsDir
	if stepsDir == "" {
		stepsDir = plan.DefaultStepsDir
	}
	if filepath.IsAbs(stepsDir) {
		if rel, relErr := filepath.Rel(root, stepsDir); relErr == nil {
			stepsDir = rel
		}
	}

	w, err := watch.New(watch.Config{
		Patterns:    watch.CollectionPatterns(stepsDir, filepath.Base(path)),
		Ignore:      flags.ignore,
		Debounce:    flags.debounce,
		ClearScreen: flags.clearScreen,
		BaseDir:     root,
		OnChange: func(ctx context.Context, changed []string) error {
			fmt.Fprintf(a.stdout, "%s Detected %d change(s). Rerunning '%s'...\n",
				VerboseHighlightStyle.Render("→"), len(changed), filepath.Base(root))
			rerun(ctx)
			fmt.Fprintf(a.stdout, "\n%s Watching for changes...\n\n", VerboseHighlightStyle.Render("→"))
			return nil
		},
		Stdout: a.stdout,
		Logger: env.logger,
	})
	if err != nil {
		return a.fail(cmd, rootFlags, fmt.Errorf("starting watcher: %w", err))
	}

	fmt.Fprintf(a.stdout, "%s Watch mode: initial run of '%s'\n", VerboseHighlightStyle.Render("→"), filepath.Base(root))
	rerun(cmd.Context())
	fmt.Fprintf(a.stdout, "\n%s Watching for changes (Ctrl+C to stop)...\n\n", VerboseHighlightStyle.Render("→"))

	if err := w.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
		return a.fail(cmd, rootFlags, err)
	}
	return nil
}
