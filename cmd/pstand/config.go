// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/dunhampa/poststand-core/internal/config"
	"github.com/dunhampa/poststand-core/pkg/fspath"
)

// newConfigCommand creates the `pstand config` command tree.
func newConfigCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage pstand configuration",
		Long: `Manage pstand configuration.

Configuration is read from, in order:
  - the --config flag
  - ~/.config/` + config.AppName + `/` + config.ConfigFileName + `
  - ` + config.LocalConfigFileName + ` in the working directory

Environment variables prefixed with ` + config.EnvPrefix + `_ override file values.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := app.prepare(cmd.Context(), rootFlags)
			if err != nil {
				return app.fail(cmd, rootFlags, err)
			}
			showConfig(app, env.cfg)
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the configuration file in effect",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := app.prepare(cmd.Context(), rootFlags)
			if err != nil {
				return app.fail(cmd, rootFlags, err)
			}
			if env.cfg.Path == "" {
				fmt.Fprintln(app.stdout, SubtitleStyle.Render("(using defaults)"))
				return nil
			}
			fmt.Fprintln(app.stdout, env.cfg.Path)
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Output the effective configuration as CUE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := app.prepare(cmd.Context(), rootFlags)
			if err != nil {
				return app.fail(cmd, rootFlags, err)
			}
			fmt.Fprint(app.stdout, config.GenerateCUE(env.cfg))
			return nil
		},
	})

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create the default user configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := initConfig(force)
			if err != nil {
				return app.fail(cmd, rootFlags, err)
			}
			fmt.Fprintf(app.stdout, "%s Created %s\n", SuccessStyle.Render("✓"), path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cfgCmd.AddCommand(initCmd)

	return cfgCmd
}

func showConfig(app *App, cfg *config.Config) {
	keyStyle := CmdStyle
	valueStyle := SuccessStyle
	value := func(s string) string {
		if s == "" {
			return SubtitleStyle.Render("(unset)")
		}
		return valueStyle.Render(s)
	}

	w := app.stdout
	fmt.Fprintln(w, TitleStyle.Render("Current Configuration"))
	fmt.Fprintln(w)
	if cfg.Path != "" {
		fmt.Fprintf(w, "%s: %s\n", keyStyle.Render("Config file"), cfg.Path)
	} else {
		fmt.Fprintf(w, "%s: %s\n", keyStyle.Render("Config file"), SubtitleStyle.Render("(using defaults)"))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "%s: %s\n", keyStyle.Render("steps_dir"), value(cfg.StepsDir))
	fmt.Fprintf(w, "%s: %s\n", keyStyle.Render("plan_file"), value(cfg.PlanFile))

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s:\n", keyStyle.Render("workspace"))
	fmt.Fprintf(w, "  root: %s\n", value(cfg.Workspace.Root))
	fmt.Fprintf(w, "  retention: %s\n", value(cfg.Workspace.Retention.Round(time.Second).String()))

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s:\n", keyStyle.Render("interpreters"))
	if len(cfg.Interpreters) == 0 {
		fmt.Fprintf(w, "  %s\n", SubtitleStyle.Render("(built-in only)"))
	} else {
		exts := make([]string, 0, len(cfg.Interpreters))
		for ext := range cfg.Interpreters {
			exts = append(exts, ext)
		}
		sort.Strings(exts)
		for _, ext := range exts {
			fmt.Fprintf(w, "  %s: %s\n", ext, valueStyle.Render(cfg.Interpreters[ext]))
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s:\n", keyStyle.Render("secrets"))
	fmt.Fprintf(w, "  backend: %s\n", value(string(cfg.Secrets.Backend)))
	fmt.Fprintf(w, "  local_dir: %s\n", value(cfg.Secrets.LocalDir))
	fmt.Fprintf(w, "  region: %s\n", value(cfg.Secrets.Region))

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s:\n", keyStyle.Render("log"))
	fmt.Fprintf(w, "  level: %s\n", value(string(cfg.Log.Level)))
	fmt.Fprintf(w, "  format: %s\n", value(string(cfg.Log.Format)))
}

// initConfig writes the default configuration to the user config
// directory and returns its path.
func initConfig(force bool) (string, error) {
	dir, err := config.ConfigDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, config.ConfigFileName)
	if _, statErr := os.Stat(path); statErr == nil && !force {
		return "", fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if statErr != nil && !errors.Is(statErr, fs.ErrNotExist) {
		return "", statErr
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}
	if err := fspath.WriteAtomic(path, []byte(config.GenerateCUE(config.DefaultConfig())), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
