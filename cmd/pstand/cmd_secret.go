// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dunhampa/poststand-core/internal/app/execute"
	"github.com/dunhampa/poststand-core/internal/secrets"
	"github.com/dunhampa/poststand-core/pkg/plan"
)

func newSecretCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Resolve secrets for steps",
	}

	getCmd := &cobra.Command{
		Use:   "get PATH",
		Short: "Print a secret or a dotted path inside it",
		Long: `Print a secret. PATH is the secret name, optionally followed by a dotted
path into its JSON value (for example db.credentials.user).

Local runs read <collection root>/../.secrets/do_not_git/<name> when the
collection sets userLocalSecrets; otherwise AWS Secrets Manager is used.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runSecretGet(cmd, rootFlags, args[0], asJSON)
		},
	}
	getCmd.Flags().BoolVar(&asJSON, "json", false, "print strings as JSON")

	cmd.AddCommand(getCmd)
	return cmd
}

func (a *App) runSecretGet(cmd *cobra.Command, rootFlags *rootFlagValues, path string, asJSON bool) error {
	env, err := a.prepare(cmd.Context(), rootFlags)
	if err != nil {
		return a.fail(cmd, rootFlags, err)
	}

	// A secret can be read outside any collection when the backend does not
	// need its root.
	c, _, err := execute.LoadCollection("", env.cfg, env.startDir)
	if err != nil && !errors.Is(err, plan.ErrPlanNotFound) {
		return a.fail(cmd, rootFlags, err)
	}

	source, err := secrets.SelectSource(cmd.Context(), env.cfg.Secrets, a.host, c)
	if err != nil {
		return a.fail(cmd, rootFlags, err)
	}
	var declares func(string) bool
	if c != nil {
		declares = c.DeclaresSecret
	}

	value, ok := secrets.NewResolver(source, declares, env.logger).Resolve(cmd.Context(), path)
	if !ok {
		return a.fail(cmd, rootFlags, fmt.Errorf("%w: %s", errSecretMissing, path))
	}
	if s, isString := value.(string); isString && !asJSON {
		fmt.Fprintln(a.stdout, s)
		return nil
	}
	return writeJSON(a.stdout, value)
}
