// SPDX-License-Identifier: MPL-2.0

package invoke

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/charmbracelet/log"

	"github.com/dunhampa/poststand-core/internal/app/execute"
	"github.com/dunhampa/poststand-core/internal/config"
	"github.com/dunhampa/poststand-core/internal/logging"
	"github.com/dunhampa/poststand-core/internal/orchestrator"
	"github.com/dunhampa/poststand-core/internal/policy"
	"github.com/dunhampa/poststand-core/pkg/plan"
	"github.com/dunhampa/poststand-core/pkg/platform"
)

// SuccessMessage is the message of every successful Response.
const SuccessMessage = "Scripts completed successfully!"

type (
	// Options configures New. Collection is required.
	Options struct {
		Config     *config.Config
		Collection *plan.Collection
		Host       platform.HostKind
		Getenv     func(string) string
		Launcher   orchestrator.Launcher
		Clock      orchestrator.Clock
		Logger     *log.Logger
		Stdout     io.Writer
		Stderr     io.Writer
	}

	// Request is one invocation.
	Request struct {
		// Event is the raw event; see ParseEvent.
		Event []byte
		// RequestID names the run namespace.
		RequestID string
		// ClearGlobals resets the store before seeding. Only meaningful on
		// local hosts, where the namespace outlives the run.
		ClearGlobals bool
		// Return overrides any return_globals carried by the event.
		Return *policy.ReturnRequest
	}

	// Response is a successful invocation. ReturnedGlobals is nil when the
	// caller asked for nothing, and may be empty when it asked for keys
	// the policy resolved to none.
	Response struct {
		Message         string
		ReturnedGlobals map[string]any
		// Warnings lists requested keys the policy withheld.
		Warnings []string
	}

	// Service runs invocations against one collection. Policies and the
	// plan are compiled once by New, so configuration errors surface before
	// any invocation.
	Service struct {
		opts   Options
		plan   *plan.Plan
		input  *policy.InputPolicy
		output *policy.OutputPolicy
		logger *log.Logger
	}
)

// MarshalJSON emits returned_globals only when globals were requested.
func (r *Response) MarshalJSON() ([]byte, error) {
	body := map[string]any{"message": r.Message}
	if r.ReturnedGlobals != nil {
		body["returned_globals"] = r.ReturnedGlobals
	}
	return json.Marshal(body)
}

// New compiles the collection's plan and policies. Failures are *Error values
// of KindConfig.
func New(opts Options) (*Service, error) {
	if opts.Collection == nil {
		return nil, newError(KindConfig, "Missing or invalid config file", "no collection config", errors.New("invoke: collection is required"))
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	p, err := opts.Collection.Plan()
	if err == nil {
		err = execute.RequireRunnable(p)
	}
	if err != nil {
		return nil, newError(KindConfig, "Missing or invalid config file", err.Error(), err)
	}

	input, inErr := policy.CompileInput(opts.Collection.GlobalInputs)
	if inErr != nil {
		return nil, newError(KindConfig, "Invalid configuration for "+policy.SectionInput, inErr.Error(), inErr)
	}
	output, outErr := policy.CompileOutput(opts.Collection.ReturnableGlobals)
	if outErr != nil {
		return nil, newError(KindConfig, "Invalid configuration for "+policy.SectionOutput, outErr.Error(), outErr)
	}

	return &Service{opts: opts, plan: p, input: input, output: output, logger: opts.Logger}, nil
}

// Invoke runs one invocation. Any failure is an *Error.
func (s *Service) Invoke(ctx context.Context, req Request) (*Response, error) {
	ev, err := ParseEvent(req.Event)
	if err != nil {
		return nil, newError(KindBadRequest,
			"Unable to parse event body. User provided info could be invalid. For instance, a missing comma in json.",
			err.Error(), err)
	}
	if ev.Gateway {
		s.logger.Debug("invocation from gateway")
	}

	ret := s.returnRequest(ev, req.Return)

	seed, err := s.input.Validate(ev.Payload)
	if err != nil {
		return nil, classify(err)
	}

	session, err := execute.NewSession(execute.SessionOptions{
		Config:     s.opts.Config,
		Collection: s.opts.Collection,
		Plan:       s.plan,
		Host:       s.opts.Host,
		RequestID:  req.RequestID,
		Getenv:     s.opts.Getenv,
		Launcher:   s.opts.Launcher,
		Clock:      s.opts.Clock,
		Logger:     s.logger,
		Stdout:     s.opts.Stdout,
		Stderr:     s.opts.Stderr,
	})
	if err != nil {
		return nil, classify(err)
	}
	defer session.Close()

	if err := session.Run(ctx, orchestrator.Input{InitialGlobals: seed, ClearGlobals: req.ClearGlobals}); err != nil {
		return nil, classify(err)
	}

	resp := &Response{Message: SuccessMessage}
	if ret.Mode == policy.RequestNone {
		return resp, nil
	}

	current, err := session.Store().ListAll()
	if err != nil {
		return nil, classify(err)
	}
	disclosed, warnings, err := s.output.Disclose(ret, current)
	if err != nil {
		return nil, classify(err)
	}
	for _, w := range warnings {
		s.logger.Info("withheld requested global", "detail", w)
	}
	resp.ReturnedGlobals = disclosed
	resp.Warnings = warnings
	return resp, nil
}

// returnRequest picks the output request: an explicit override, then
// return_globals in the payload, then in the event context. Malformed
// values are logged and ignored.
func (s *Service) returnRequest(ev *Event, override *policy.ReturnRequest) policy.ReturnRequest {
	if override != nil {
		return *override
	}
	if raw, ok := ev.Payload[policy.ReturnGlobalsKey]; ok {
		req, valid := policy.ParseReturnRequest(raw)
		switch {
		case !valid:
			s.logger.Warn("ignoring malformed return_globals in payload; expected all, anyspecified, or a list of keys")
		case req.Mode != policy.RequestNone:
			s.logger.Debug("return_globals from payload", "request", req)
			return req
		}
	}
	if ev.ContextReturn != nil {
		if req, valid := policy.ParseReturnRequest(ev.ContextReturn); valid {
			s.logger.Debug("return_globals from event context", "request", req)
			return req
		}
		s.logger.Warn("ignoring malformed return_globals in event context; expected all, anyspecified, or a list of keys")
	}
	return policy.ReturnRequest{Mode: policy.RequestNone}
}
