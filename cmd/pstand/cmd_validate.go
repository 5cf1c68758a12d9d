// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"mvdan.cc/sh/v3/syntax"

	"github.com/dunhampa/poststand-core/internal/app/execute"
	"github.com/dunhampa/poststand-core/internal/policy"
	"github.com/dunhampa/poststand-core/internal/runtime"
	"github.com/dunhampa/poststand-core/pkg/plan"
)

var (
	validateOKIcon   = SuccessStyle.Render("✓")
	validateFailIcon = ErrorStyle.Render("✗")
	validateInfoIcon = SubtitleStyle.Render("•")
)

// validateReport accumulates check results.
type validateReport struct {
	w        io.Writer
	problems int
}

func (r *validateReport) check(name string, err error) bool {
	if err != nil {
		r.problems++
		fmt.Fprintf(r.w, "%s %s: %v\n", validateFailIcon, name, err)
		return false
	}
	fmt.Fprintf(r.w, "%s %s\n", validateOKIcon, name)
	return true
}

func (r *validateReport) info(msg string) {
	fmt.Fprintf(r.w, "%s %s\n", validateInfoIcon, msg)
}

func newValidateCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	var planPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the collection without running it",
		Long: `Check the configuration, the collection config and its policies, and every
step that would run: the artifact exists, its interpreter is installed, and
shell steps parse.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runValidate(cmd, rootFlags, planPath)
		},
	}
	cmd.Flags().StringVar(&planPath, "plan", "", "collection config (default: nearest _collection_config.yaml)")
	return cmd
}

func (a *App) runValidate(cmd *cobra.Command, rootFlags *rootFlagValues, planPath string) error {
	report := &validateReport{w: a.stdout}

	env, err := a.prepare(cmd.Context(), rootFlags)
	if !report.check("configuration", err) {
		return a.validateResult(cmd, report)
	}

	c, p, err := execute.LoadCollection(planPath, env.cfg, env.startDir)
	name := "collection config"
	if c != nil {
		name += " " + c.Path
	}
	if !report.check(name, err) {
		return a.validateResult(cmd, report)
	}

	report.check(plan.KeyAllowedScripts, execute.RequireRunnable(p))
	_, err = policy.CompileInput(c.GlobalInputs)
	report.check(policy.SectionInput, err)
	_, err = policy.CompileOutput(c.ReturnableGlobals)
	report.check(policy.SectionOutput, err)

	launcher := execute.NewLauncher(env.cfg, a.host)
	for _, step := range p.Bypassed() {
		report.info(fmt.Sprintf("step %s is bypassed (not in %s)", step, plan.KeyAllowedScripts))
	}
	for _, step := range runnableSteps(p) {
		report.check("step "+step.String(), validateStep(launcher, c.Root(), step))
	}

	return a.validateResult(cmd, report)
}

func (a *App) validateResult(cmd *cobra.Command, report *validateReport) error {
	if report.problems == 0 {
		fmt.Fprintln(a.stdout, SuccessStyle.Render("\nCollection is valid."))
		return nil
	}
	cmd.SilenceUsage = true
	fmt.Fprintln(a.stdout, ErrorStyle.Render(fmt.Sprintf("\n%d problem(s) found.", report.problems)))
	return &ExitError{Code: 1}
}

// runnableSteps is every step a run could launch from the plan itself: the
// allowed part of the order, then allowed steps nothing orders.
func runnableSteps(p *plan.Plan) []plan.StepID {
	var steps []plan.StepID
	for _, s := range p.Order() {
		if p.IsAllowed(s) {
			steps = append(steps, s)
		}
	}
	return append(steps, p.Unordered()...)
}

// validateStep checks that the artifact exists and can be launched, and that
// shell steps parse.
func validateStep(launcher *runtime.StepLauncher, root string, step plan.StepID) error {
	path, err := launcher.Resolve(root, step)
	if err != nil {
		return err
	}
	if _, err := launcher.Command(step, path); err != nil {
		return err
	}
	if !strings.EqualFold(filepath.Ext(path), ".sh") {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := syntax.NewParser().Parse(f, filepath.Base(path)); err != nil {
		return fmt.Errorf("shell syntax: %w", err)
	}
	return nil
}
