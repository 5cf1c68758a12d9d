// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dunhampa/poststand-core/internal/runlog"
)

func newStatusCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the run log of the last run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ns, err := app.namespaceDir(dir)
			if err != nil {
				return app.fail(cmd, rootFlags, err)
			}
			path := filepath.Join(ns, runlog.FileName)
			entries, err := runlog.Read(path)
			if errors.Is(err, fs.ErrNotExist) {
				fmt.Fprintln(app.stdout, SubtitleStyle.Render("No runs recorded in "+ns))
				return nil
			}
			if err != nil {
				return app.fail(cmd, rootFlags, err)
			}

			fmt.Fprintln(app.stdout, TitleStyle.Render("Run log: ")+path)
			renderRunLog(app.stdout, entries)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "namespace directory holding "+runlog.FileName)
	return cmd
}
