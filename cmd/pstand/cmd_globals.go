// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dunhampa/poststand-core/pkg/globals"
)

// errGlobalNotSet is reported by `globals get` for a missing key.
var errGlobalNotSet = errors.New("global is not set")

type globalsFlagValues struct {
	dir string
}

func newGlobalsCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	flags := &globalsFlagValues{}
	cmd := &cobra.Command{
		Use:   "globals",
		Short: "Read and write the global store",
		Long: `Read and write the globals shared by the steps of a run.

Inside a step the store is found through PSTAND_GLOBALS_DIR. Outside a run
the nearest collection root is used.`,
	}
	cmd.PersistentFlags().StringVar(&flags.dir, "dir", "", "namespace directory holding "+globals.FileName)

	var asJSON, asString bool

	getCmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Print a global",
		Long:  "Print a global. Strings are printed bare unless --json is given; other values as JSON.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.globalsDo(cmd, rootFlags, flags, func(s *globals.Store) error {
				v, ok, err := s.Get(args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%w: %q", errGlobalNotSet, args[0])
				}
				if str, isString := v.(string); isString && !asJSON {
					fmt.Fprintln(app.stdout, str)
					return nil
				}
				return writeJSON(app.stdout, v)
			})
		},
	}
	getCmd.Flags().BoolVar(&asJSON, "json", false, "print strings as JSON")

	setCmd := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Store a global",
		Long:  "Store a global. VALUE is parsed as JSON when it is valid JSON, otherwise stored as a string.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.globalsDo(cmd, rootFlags, flags, func(s *globals.Store) error {
				return s.Set(args[0], parseValue(args[1], asString))
			})
		},
	}
	setCmd.Flags().BoolVar(&asString, "string", false, "store VALUE as a string without parsing")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Print every global as a JSON object",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.globalsDo(cmd, rootFlags, flags, func(s *globals.Store) error {
				all, err := s.ListAll()
				if err != nil {
					return err
				}
				return writeJSON(app.stdout, all)
			})
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete KEY",
		Short: "Remove a global",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.globalsDo(cmd, rootFlags, flags, func(s *globals.Store) error {
				return s.Delete(args[0])
			})
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every global",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.globalsDo(cmd, rootFlags, flags, func(s *globals.Store) error {
				return s.Clear()
			})
		},
	}

	queueCmd := &cobra.Command{
		Use:   "queue STEP...",
		Short: "Queue steps to run after the current one",
		Long: `Append steps to the ` + globals.QueueKey + ` queue. The orchestrator runs them,
in order, right after the step that queued them.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.globalsDo(cmd, rootFlags, flags, func(s *globals.Store) error {
				return s.Enqueue(args...)
			})
		},
	}

	cmd.AddCommand(getCmd, setCmd, listCmd, deleteCmd, clearCmd, queueCmd)
	return cmd
}

func (a *App) globalsDo(cmd *cobra.Command, rootFlags *rootFlagValues, flags *globalsFlagValues, fn func(*globals.Store) error) error {
	store, err := a.openStore(flags.dir)
	if err != nil {
		return a.fail(cmd, rootFlags, err)
	}
	if err := fn(store); err != nil {
		return a.fail(cmd, rootFlags, err)
	}
	return nil
}

// parseValue decodes raw as JSON, falling back to the raw string.
func parseValue(raw string, asString bool) any {
	if asString {
		return raw
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return raw
	}
	return v
}
