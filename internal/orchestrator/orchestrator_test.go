// SPDX-License-Identifier: MPL-2.0

package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"maps"
	"os"
	"path/filepath"
	goruntime "runtime"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/dunhampa/poststand-core/internal/runlog"
	"github.com/dunhampa/poststand-core/internal/runtime"
	"github.com/dunhampa/poststand-core/internal/testutil"
	"github.com/dunhampa/poststand-core/pkg/globals"
	"github.com/dunhampa/poststand-core/pkg/plan"
	"github.com/dunhampa/poststand-core/pkg/platform"
)

type (
	stepFunc func(t *testing.T, store *globals.Store) runtime.ExitCode

	fakeLauncher struct {
		t        *testing.T
		steps    map[plan.StepID]stepFunc
		launched []plan.StepID
	}
)

func (f *fakeLauncher) Launch(ctx *runtime.ExecutionContext) *runtime.Result {
	f.launched = append(f.launched, ctx.Step)
	if ctx.Handoff.Step != ctx.Step {
		f.t.Errorf("handoff step = %q, want %q", ctx.Handoff.Step, ctx.Step)
	}
	fn, ok := f.steps[ctx.Step]
	if !ok {
		return &runtime.Result{}
	}
	store, err := globals.Open(ctx.Handoff.GlobalsDir)
	if err != nil {
		f.t.Fatalf("step %s: open store: %v", ctx.Step, err)
	}
	return &runtime.Result{ExitCode: fn(f.t, store)}
}

func ids(names ...string) []plan.StepID {
	out := make([]plan.StepID, len(names))
	for i, n := range names {
		out[i] = plan.StepID(n)
	}
	return out
}

func mustPlan(t *testing.T, order, allowed []plan.StepID) *plan.Plan {
	t.Helper()
	p, err := plan.New(order, allowed)
	if err != nil {
		t.Fatalf("plan.New: %v", err)
	}
	return p
}

func localWorkspace(t *testing.T) *Workspace {
	t.Helper()
	ws, err := PrepareWorkspace(WorkspaceOptions{Host: platform.HostLocal, LocalDir: t.TempDir()})
	if err != nil {
		t.Fatalf("PrepareWorkspace: %v", err)
	}
	return ws
}

func newOrchestrator(t *testing.T, p *plan.Plan, ws *Workspace, l Launcher) *Orchestrator {
	t.Helper()
	o, err := New(Options{Plan: p, Workspace: ws, Launcher: l, FunctionRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func steps(entries []runlog.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Step + ":" + string(e.Status)
	}
	return out
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := New(Options{})
	if err == nil {
		t.Fatal("New(Options{}) should fail")
	}
	for _, want := range []string{"plan", "workspace", "launcher"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestRunSkipsStepsOutsideAllowed(t *testing.T) {
	t.Parallel()

	l := &fakeLauncher{t: t}
	ws := localWorkspace(t)
	o := newOrchestrator(t, mustPlan(t, ids("a", "b", "c"), ids("a", "c")), ws, l)

	if err := o.Run(t.Context(), Input{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !slices.Equal(l.launched, ids("a", "c")) {
		t.Errorf("launched = %v, want [a c]", l.launched)
	}
	want := []string{"a:done", "b:skipped", "c:done"}
	if got := steps(o.Entries()); !slices.Equal(got, want) {
		t.Errorf("entries = %v, want %v", got, want)
	}
	if o.State() != StateCompleted {
		t.Errorf("State() = %s, want completed", o.State())
	}

	persisted, err := runlog.Read(filepath.Join(ws.Dir, runlog.FileName))
	if err != nil {
		t.Fatalf("runlog.Read: %v", err)
	}
	if got := steps(persisted); !slices.Equal(got, want) {
		t.Errorf("persisted entries = %v, want %v", got, want)
	}
}

func TestRunOrderingLaw(t *testing.T) {
	t.Parallel()

	var seen []any
	stepsByID := map[plan.StepID]stepFunc{
		"writer": func(t *testing.T, s *globals.Store) runtime.ExitCode {
			if err := s.Set("x", 1); err != nil {
				t.Errorf("Set: %v", err)
			}
			return 0
		},
		"reader": func(t *testing.T, s *globals.Store) runtime.ExitCode {
			v, ok, err := s.Get("x")
			if err != nil {
				t.Errorf("Get: %v", err)
			}
			if !ok {
				v = nil
			}
			seen = append(seen, v)
			return 0
		},
	}

	tests := []struct {
		name  string
		order []plan.StepID
		want  any
	}{
		{"reader after writer", ids("writer", "reader"), "1"},
		{"reader before writer", ids("reader", "writer"), nil},
	}
	for _, tt := range tests {
		seen = nil
		o := newOrchestrator(t, mustPlan(t, tt.order, nil), localWorkspace(t), &fakeLauncher{t: t, steps: stepsByID})
		if err := o.Run(t.Context(), Input{}); err != nil {
			t.Fatalf("%s: Run: %v", tt.name, err)
		}
		if len(seen) != 1 {
			t.Fatalf("%s: reader ran %d times", tt.name, len(seen))
		}
		got := seen[0]
		if n, ok := got.(interface{ String() string }); ok {
			got = n.String()
		}
		if got != tt.want {
			t.Errorf("%s: reader saw %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestRunSplicesQueuedSteps(t *testing.T) {
	t.Parallel()

	l := &fakeLauncher{t: t, steps: map[plan.StepID]stepFunc{
		"s1": func(t *testing.T, s *globals.Store) runtime.ExitCode {
			if err := s.Enqueue("s2", "s5"); err != nil {
				t.Errorf("Enqueue: %v", err)
			}
			return 0
		},
	}}
	p := mustPlan(t, ids("s1", "s3"), ids("s1", "s2", "s3"))
	o := newOrchestrator(t, p, localWorkspace(t), l)

	if err := o.Run(t.Context(), Input{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !slices.Equal(l.launched, ids("s1", "s2", "s3")) {
		t.Errorf("launched = %v, want [s1 s2 s3]", l.launched)
	}
	want := []string{"s1:done", "s5:skipped", "s2:done", "s3:done"}
	if got := steps(o.Entries()); !slices.Equal(got, want) {
		t.Errorf("entries = %v, want %v", got, want)
	}
	if !slices.Equal(p.Order(), ids("s1", "s3")) {
		t.Errorf("plan order mutated: %v", p.Order())
	}

	queue, _, err := o.Store().Get(globals.QueueKey)
	if err != nil {
		t.Fatalf("Get queue: %v", err)
	}
	if q, ok := queue.([]any); !ok || len(q) != 0 {
		t.Errorf("queue after run = %#v, want empty list", queue)
	}
}

func TestRunSpliceIsContiguousAndRecursive(t *testing.T) {
	t.Parallel()

	enqueue := func(next ...string) stepFunc {
		return func(t *testing.T, s *globals.Store) runtime.ExitCode {
			if err := s.Enqueue(next...); err != nil {
				t.Errorf("Enqueue: %v", err)
			}
			return 0
		}
	}
	l := &fakeLauncher{t: t, steps: map[plan.StepID]stepFunc{
		"a": enqueue("x", "y"),
		"x": enqueue("z"),
	}}
	o := newOrchestrator(t, mustPlan(t, ids("a", "b"), ids("a", "b", "x", "y", "z")), localWorkspace(t), l)

	if err := o.Run(t.Context(), Input{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := ids("a", "x", "z", "y", "b"); !slices.Equal(l.launched, want) {
		t.Errorf("launched = %v, want %v", l.launched, want)
	}
}

func TestRunDuplicatesExecuteIndependently(t *testing.T) {
	t.Parallel()

	count := 0
	l := &fakeLauncher{t: t, steps: map[plan.StepID]stepFunc{
		"tick": func(*testing.T, *globals.Store) runtime.ExitCode {
			count++
			return 0
		},
	}}
	o := newOrchestrator(t, mustPlan(t, ids("tick", "other", "tick"), nil), localWorkspace(t), l)

	if err := o.Run(t.Context(), Input{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if count != 2 {
		t.Errorf("tick ran %d times, want 2", count)
	}
}

func TestRunStepFailure(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	clock := testutil.NewFakeClock(time.Time{})
	ws, err := PrepareWorkspace(WorkspaceOptions{Host: platform.HostEphemeral, Root: root, RequestID: "req", Clock: clock})
	if err != nil {
		t.Fatalf("PrepareWorkspace: %v", err)
	}

	l := &fakeLauncher{t: t, steps: map[plan.StepID]stepFunc{
		"s1": func(t *testing.T, s *globals.Store) runtime.ExitCode {
			if err := s.Set("kept", true); err != nil {
				t.Errorf("Set: %v", err)
			}
			return 0
		},
		"s2": func(*testing.T, *globals.Store) runtime.ExitCode { return 3 },
	}}
	o := newOrchestrator(t, mustPlan(t, ids("s1", "s2", "s3"), nil), ws, l)

	err = o.Run(t.Context(), Input{})

	var failed *StepFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("Run() error = %v, want *StepFailedError", err)
	}
	if !errors.Is(err, ErrStepFailed) {
		t.Error("error does not match ErrStepFailed")
	}
	if failed.Step != "s2" || failed.ExitCode != 3 {
		t.Errorf("failure = {%s, %d}, want {s2, 3}", failed.Step, failed.ExitCode)
	}
	if want := []string{"s1:done", "s2:error"}; !slices.Equal(steps(failed.Entries), want) {
		t.Errorf("failure entries = %v, want %v", steps(failed.Entries), want)
	}
	if slices.Contains(l.launched, "s3") {
		t.Error("s3 launched after failure")
	}
	if o.State() != StateFailed {
		t.Errorf("State() = %s, want failed", o.State())
	}
	if _, err := os.Stat(ws.Dir); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("ephemeral namespace not torn down: %v", err)
	}
}

func TestRunLaunchFailureCarriesCause(t *testing.T) {
	t.Parallel()

	launchErr := &runtime.StepNotFoundError{Step: "gone", Path: "/x/_scripts/gone"}
	l := launcherFunc(func(*runtime.ExecutionContext) *runtime.Result {
		return &runtime.Result{ExitCode: runtime.ExitNotFound, Error: launchErr}
	})
	o := newOrchestrator(t, mustPlan(t, ids("gone"), nil), localWorkspace(t), l)

	err := o.Run(t.Context(), Input{})
	if !errors.Is(err, runtime.ErrStepNotFound) || !errors.Is(err, ErrStepFailed) {
		t.Fatalf("Run() error = %v, want step failure wrapping ErrStepNotFound", err)
	}
}

type launcherFunc func(*runtime.ExecutionContext) *runtime.Result

func (f launcherFunc) Launch(ctx *runtime.ExecutionContext) *runtime.Result { return f(ctx) }

func TestRunEmptyAllowedIsNoop(t *testing.T) {
	t.Parallel()

	l := &fakeLauncher{t: t}
	o := newOrchestrator(t, mustPlan(t, ids("a", "b"), []plan.StepID{}), localWorkspace(t), l)

	if err := o.Run(t.Context(), Input{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(l.launched) != 0 {
		t.Errorf("launched = %v, want none", l.launched)
	}
	if want := []string{"a:skipped", "b:skipped"}; !slices.Equal(steps(o.Entries()), want) {
		t.Errorf("entries = %v, want %v", steps(o.Entries()), want)
	}
}

func TestRunSeeding(t *testing.T) {
	t.Parallel()

	ws := localWorkspace(t)
	pre, err := globals.Open(ws.Dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := pre.Set("stale", "value"); err != nil {
		t.Fatal(err)
	}

	o := newOrchestrator(t, mustPlan(t, ids("a"), nil), ws, &fakeLauncher{t: t})
	if err := o.Run(t.Context(), Input{ClearGlobals: true, InitialGlobals: map[string]any{"name": "bob"}}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	all, err := o.Store().ListAll()
	if err != nil {
		t.Fatal(err)
	}
	if want := map[string]any{"name": "bob"}; !maps.Equal(all, want) {
		t.Errorf("store = %v, want %v", all, want)
	}
}

func TestRunIdempotentWithClear(t *testing.T) {
	t.Parallel()

	ws := localWorkspace(t)
	run := func() ([]string, map[string]any) {
		l := &fakeLauncher{t: t, steps: map[plan.StepID]stepFunc{
			"a": func(t *testing.T, s *globals.Store) runtime.ExitCode {
				if err := s.Enqueue("b"); err != nil {
					t.Error(err)
				}
				return 0
			},
			"b": func(t *testing.T, s *globals.Store) runtime.ExitCode {
				if err := s.Set("done", "yes"); err != nil {
					t.Error(err)
				}
				return 0
			},
		}}
		o := newOrchestrator(t, mustPlan(t, ids("a", "c"), ids("a", "b", "c")), ws, l)
		if err := o.Run(t.Context(), Input{ClearGlobals: true, InitialGlobals: map[string]any{"seed": "s"}}); err != nil {
			t.Fatalf("Run: %v", err)
		}
		all, err := o.Store().ListAll()
		if err != nil {
			t.Fatal(err)
		}
		delete(all, globals.QueueKey)
		return steps(o.Entries()), all
	}

	firstSteps, firstStore := run()
	secondSteps, secondStore := run()

	if !slices.Equal(firstSteps, secondSteps) {
		t.Errorf("run log differs: %v vs %v", firstSteps, secondSteps)
	}
	if !maps.Equal(firstStore, secondStore) {
		t.Errorf("store differs: %v vs %v", firstStore, secondStore)
	}
}

func TestRunRecordsDurations(t *testing.T) {
	t.Parallel()

	clock := testutil.NewFakeClock(time.Time{})
	l := launcherFunc(func(*runtime.ExecutionContext) *runtime.Result {
		clock.Advance(1500 * time.Millisecond)
		return &runtime.Result{}
	})
	o, err := New(Options{Plan: mustPlan(t, ids("slow"), nil), Workspace: localWorkspace(t), Launcher: l, Clock: clock})
	if err != nil {
		t.Fatal(err)
	}
	if err := o.Run(t.Context(), Input{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := o.Entries()[0].DurationMs; got != 1500 {
		t.Errorf("DurationMs = %d, want 1500", got)
	}
}

func TestRunIsSingleUse(t *testing.T) {
	t.Parallel()

	o := newOrchestrator(t, mustPlan(t, ids("a"), nil), localWorkspace(t), &fakeLauncher{t: t})
	if err := o.Run(t.Context(), Input{}); err != nil {
		t.Fatal(err)
	}
	if err := o.Run(t.Context(), Input{}); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Run() error = %v, want ErrAlreadyStarted", err)
	}
}

func TestRunCancelledBeforeStep(t *testing.T) {
	t.Parallel()

	l := &fakeLauncher{t: t}
	o := newOrchestrator(t, mustPlan(t, ids("a"), nil), localWorkspace(t), l)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if err := o.Run(ctx, Input{}); err == nil {
		t.Fatal("Run() with cancelled context should fail")
	}
	if len(l.launched) != 0 {
		t.Errorf("launched = %v, want none", l.launched)
	}
}

func TestRunWithShellSteps(t *testing.T) {
	t.Parallel()
	if goruntime.GOOS == platform.Windows {
		t.Skip("shell step fixtures require a POSIX shell")
	}

	root := t.TempDir()
	testutil.WriteStep(t, root, "first", `echo first-ran > "$PSTAND_GLOBALS_DIR/marker"`)
	testutil.WriteStep(t, root, "second", `cat "$PSTAND_GLOBALS_DIR/marker"`)
	testutil.WriteStep(t, root, "broken", "exit 7")

	var stdout bytes.Buffer
	ws := localWorkspace(t)
	o, err := New(Options{
		Plan:         mustPlan(t, ids("first", "second", "broken"), nil),
		Workspace:    ws,
		Launcher:     runtime.NewStepLauncher("", platform.HostLocal, nil),
		FunctionRoot: root,
		Stdout:       &stdout,
		Stderr:       &bytes.Buffer{},
	})
	if err != nil {
		t.Fatal(err)
	}

	err = o.Run(t.Context(), Input{})

	var failed *StepFailedError
	if !errors.As(err, &failed) || failed.Step != "broken" || failed.ExitCode != 7 {
		t.Fatalf("Run() error = %v, want broken to fail with 7", err)
	}
	if !strings.Contains(stdout.String(), "first-ran") {
		t.Errorf("second step did not observe first step's write; stdout = %q", stdout.String())
	}
}
