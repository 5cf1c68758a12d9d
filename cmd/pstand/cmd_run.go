// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/exp/slices"

	"github.com/dunhampa/poststand-core/internal/app/execute"
	"github.com/dunhampa/poststand-core/internal/orchestrator"
	"github.com/dunhampa/poststand-core/pkg/plan"
)

type (
	runFlagValues struct {
		alone    bool
		noClear  bool
		planPath string
	}

	stepFlagValues struct {
		alone    bool
		add      bool
		planPath string
	}
)

func newRunCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	flags := &runFlagValues{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Preview and run the collection",
		Long: `Print the execution plan, ask for confirmation, then run every allowed
step in collection_order. Globals are cleared before the run unless
--no-clear is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runCollection(cmd, rootFlags, flags)
		},
	}
	cmd.Flags().BoolVar(&flags.alone, "alone", false, "skip the confirmation prompt")
	cmd.Flags().BoolVar(&flags.noClear, "no-clear", false, "keep globals from previous runs")
	cmd.Flags().StringVar(&flags.planPath, "plan", "", "collection config to run (default: nearest _collection_config.yaml)")
	return cmd
}

func newStepCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	flags := &stepFlagValues{}
	cmd := &cobra.Command{
		Use:   "step NAME",
		Short: "Run a single step",
		Long: `Run one step from the steps directory on its own. Globals are kept.

With --add, the step is appended to collection_order and allowed_scripts
in the collection config first. Without it, an interactive session asks.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runStep(cmd, rootFlags, flags, plan.StepID(args[0]))
		},
	}
	cmd.Flags().BoolVar(&flags.alone, "alone", false, "skip all prompts")
	cmd.Flags().BoolVar(&flags.add, "add", false, "add the step to collection_order and allowed_scripts")
	cmd.Flags().StringVar(&flags.planPath, "plan", "", "collection config (default: nearest _collection_config.yaml)")
	return cmd
}

func (a *App) runCollection(cmd *cobra.Command, rootFlags *rootFlagValues, flags *runFlagValues) error {
	env, err := a.prepare(cmd.Context(), rootFlags)
	if err != nil {
		return a.fail(cmd, rootFlags, err)
	}
	c, p, err := execute.LoadCollection(flags.planPath, env.cfg, env.startDir)
	if err != nil {
		return a.fail(cmd, rootFlags, err)
	}

	name := filepath.Base(c.Root())
	renderPlanPreview(a.stdout, name, p)

	proceed, err := a.ask(flags.alone, "Proceed with execution?")
	if err != nil {
		return a.fail(cmd, rootFlags, err)
	}
	if !proceed {
		fmt.Fprintln(a.stdout, "Execution cancelled.")
		return nil
	}

	fmt.Fprintf(a.stdout, "\nExecuting collection for '%s' in %s\n\n", name, c.Root())
	in := orchestrator.Input{ClearGlobals: !flags.noClear}
	if err := a.runSession(cmd.Context(), a.sessionOptions(env, c, p), in); err != nil {
		return a.fail(cmd, rootFlags, err)
	}
	fmt.Fprintln(a.stdout, SuccessStyle.Render("\nExecution completed successfully."))
	return nil
}

func (a *App) runStep(cmd *cobra.Command, rootFlags *rootFlagValues, flags *stepFlagValues, step plan.StepID) error {
	if ok, errs := step.IsValid(); !ok {
		return a.fail(cmd, rootFlags, errors.Join(errs...))
	}
	env, err := a.prepare(cmd.Context(), rootFlags)
	if err != nil {
		return a.fail(cmd, rootFlags, err)
	}
	c, full, err := execute.LoadCollection(flags.planPath, env.cfg, env.startDir)
	if err != nil {
		return a.fail(cmd, rootFlags, err)
	}

	if a.launcher == nil {
		if _, err := execute.NewLauncher(env.cfg, a.host).Resolve(c.Root(), step); err != nil {
			return a.fail(cmd, rootFlags, err)
		}
	}

	if err := a.maybeAddStep(c, full, step, flags); err != nil {
		return a.fail(cmd, rootFlags, err)
	}

	proceed, err := a.ask(flags.alone, fmt.Sprintf("Run the step '%s'?", step))
	if err != nil {
		return a.fail(cmd, rootFlags, err)
	}
	if !proceed {
		fmt.Fprintln(a.stdout, "Execution cancelled.")
		return nil
	}

	single, err := execute.SingleStepPlan(step)
	if err != nil {
		return a.fail(cmd, rootFlags, err)
	}
	if !flags.alone {
		fmt.Fprintln(a.stdout, VerboseStyle.Render(fmt.Sprintf("To skip these prompts next time, run: pstand step %s --alone", step)))
	}
	if err := a.runSession(cmd.Context(), a.sessionOptions(env, c, single), orchestrator.Input{}); err != nil {
		return a.fail(cmd, rootFlags, err)
	}
	fmt.Fprintln(a.stdout, SuccessStyle.Render(fmt.Sprintf("\nStep '%s' completed successfully.", step)))
	return nil
}

// maybeAddStep records step in the collection config when --add is set, or
// when an interactive user agrees to it.
func (a *App) maybeAddStep(c *plan.Collection, full *plan.Plan, step plan.StepID, flags *stepFlagValues) error {
	listed := slices.Contains(full.Order(), step) && full.IsAllowed(step)
	if listed {
		return nil
	}
	if !flags.add {
		if flags.alone || !a.interactive() {
			return nil
		}
		add, err := confirm(a.stdout, a.stdin, fmt.Sprintf("Step '%s' is not in the collection. Add it?", step))
		if err != nil || !add {
			return err
		}
	}

	changed, err := plan.AddStep(c.Path, step)
	if err != nil {
		return err
	}
	for _, key := range changed {
		fmt.Fprintf(a.stdout, "Step '%s' added to '%s' in %s.\n", step, key, filepath.Base(c.Path))
	}
	return nil
}
