// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dunhampa/poststand-core/internal/app/execute"
	"github.com/dunhampa/poststand-core/internal/app/invoke"
	"github.com/dunhampa/poststand-core/internal/policy"
)

type invokeFlagValues struct {
	eventPath string
	returnArg string
	requestID string
	clear     bool
	planPath  string
}

func newInvokeCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	flags := &invokeFlagValues{}
	cmd := &cobra.Command{
		Use:   "invoke",
		Short: "Run the collection as an invocation",
		Long: `Run the full invocation pipeline against an event: parse the payload,
validate it against globalInputs, seed the globals, run the collection, and
return the globals that returnable_globals discloses.

The JSON response is written to stdout. On failure the error body is written
instead and the exit status is non-zero.`,
		Example: `  pstand invoke --event event.json
  echo '{"city":"Oslo","return_globals":"all"}' | pstand invoke --event -
  pstand invoke --event event.json --return token,expires`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runInvoke(cmd, rootFlags, flags)
		},
	}
	cmd.Flags().StringVar(&flags.eventPath, "event", "", "event JSON file, or - for stdin (default: empty event)")
	cmd.Flags().StringVar(&flags.returnArg, "return", "", "override return_globals: all, anyspecified, none, or comma-separated keys")
	cmd.Flags().StringVar(&flags.requestID, "request-id", "", "request id naming the run namespace")
	cmd.Flags().BoolVar(&flags.clear, "clear", false, "clear globals before seeding (local hosts)")
	cmd.Flags().StringVar(&flags.planPath, "plan", "", "collection config (default: nearest _collection_config.yaml)")
	return cmd
}

func (a *App) runInvoke(cmd *cobra.Command, rootFlags *rootFlagValues, flags *invokeFlagValues) error {
	override, err := parseReturnFlag(flags.returnArg)
	if err != nil {
		return a.fail(cmd, rootFlags, err)
	}
	event, err := a.readEvent(flags.eventPath)
	if err != nil {
		return a.fail(cmd, rootFlags, err)
	}

	env, err := a.prepare(cmd.Context(), rootFlags)
	if err != nil {
		return a.fail(cmd, rootFlags, err)
	}
	c, _, err := execute.LoadCollection(flags.planPath, env.cfg, env.startDir)
	if err != nil {
		return a.fail(cmd, rootFlags, err)
	}

	svc, err := invoke.New(invoke.Options{
		Config:     env.cfg,
		Collection: c,
		Host:       a.host,
		Getenv:     a.getenv,
		Launcher:   a.launcher,
		Logger:     env.logger,
		Stdout:     a.stderr,
		Stderr:     a.stderr,
	})
	if err != nil {
		return a.failInvoke(cmd, rootFlags, err)
	}

	resp, err := svc.Invoke(cmd.Context(), invoke.Request{
		Event:        event,
		RequestID:    flags.requestID,
		ClearGlobals: flags.clear,
		Return:       override,
	})
	if err != nil {
		return a.failInvoke(cmd, rootFlags, err)
	}
	return writeJSON(a.stdout, resp)
}

// failInvoke writes the error body on stdout, then reports err as usual.
func (a *App) failInvoke(cmd *cobra.Command, rootFlags *rootFlagValues, err error) error {
	var invErr *invoke.Error
	if errors.As(err, &invErr) {
		body := invErr.Body()
		body["statusCode"] = invErr.StatusCode
		if writeErr := writeJSON(a.stdout, body); writeErr != nil {
			return a.fail(cmd, rootFlags, errors.Join(err, writeErr))
		}
	}
	return a.fail(cmd, rootFlags, err)
}

func (a *App) readEvent(path string) ([]byte, error) {
	switch path {
	case "":
		return nil, nil
	case "-":
		data, err := io.ReadAll(a.stdin)
		if err != nil {
			return nil, fmt.Errorf("reading event from stdin: %w", err)
		}
		return data, nil
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading event: %w", err)
		}
		return data, nil
	}
}

// parseReturnFlag turns --return into a request override. Empty means no
// override.
func parseReturnFlag(arg string) (*policy.ReturnRequest, error) {
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(arg) {
	case "":
		return nil, nil
	case "none":
		return &policy.ReturnRequest{Mode: policy.RequestNone}, nil
	}

	var raw any = arg
	if !strings.EqualFold(arg, "all") && !strings.EqualFold(arg, "anyspecified") {
		var keys []string
		for k := range strings.SplitSeq(arg, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
		raw = keys
	}
	req, ok := policy.ParseReturnRequest(raw)
	if !ok || (req.Mode == policy.RequestKeys && len(req.Keys) == 0) {
		return nil, fmt.Errorf("invalid --return value %q: expected all, anyspecified, none, or comma-separated keys", arg)
	}
	return &req, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
