package history

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kingrea/chainexec/plan"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func scriptedRunner() plan.Runner {
	return plan.RunnerFunc(func(_ context.Context, command string, _ plan.Options, done func(plan.Result)) {
		if strings.HasPrefix(command, "fail") {
			done(plan.Result{
				Err:    &plan.ExecError{Command: command, ExitCode: 2, Err: fmt.Errorf("exit status 2")},
				Stderr: "bad things\n",
			})
			return
		}
		done(plan.Result{Stdout: command + "\n"})
	})
}

func fixedClock() func() time.Time {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Millisecond)
	}
}

func TestAttachRecordsCompleteRun(t *testing.T) {
	store := openStore(t)
	p := plan.New(
		plan.WithName("nightly"),
		plan.WithRunner(scriptedRunner()),
		plan.WithClock(fixedClock()),
		plan.WithRunIDs(func() string { return "run-a" }),
	)
	detach := store.Attach(p, "nightly-id")
	defer detach()

	for _, cmd := range []string{"one", "two"} {
		if err := p.Add(cmd); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	p.Execute()
	p.Wait()
	if err := store.Err(); err != nil {
		t.Fatalf("recording error: %v", err)
	}

	runs, err := store.Recent(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	run := runs[0]
	if run.ID != "run-a" || run.PlanID != "nightly-id" || run.PlanName != "nightly" {
		t.Fatalf("unexpected run %+v", run)
	}
	if run.Status != StatusComplete || run.Steps != 2 {
		t.Fatalf("unexpected status/steps %+v", run)
	}
	if run.Duration() <= 0 {
		t.Fatalf("expected positive duration, got %s", run.Duration())
	}

	steps, err := store.Steps("run-a")
	if err != nil {
		t.Fatalf("steps: %v", err)
	}
	if len(steps) != 2 || steps[0].Command != "one" || steps[1].Stdout != "two\n" {
		t.Fatalf("unexpected steps %+v", steps)
	}
	if steps[0].FinishedAt.IsZero() || steps[0].Failed() {
		t.Fatalf("step 0 should be finished cleanly: %+v", steps[0])
	}
}

func TestAttachRecordsHaltedRun(t *testing.T) {
	store := openStore(t)
	next := 0
	p := plan.New(
		plan.WithContinueOnError(false),
		plan.WithRunner(scriptedRunner()),
		plan.WithClock(fixedClock()),
		plan.WithRunIDs(func() string { next++; return fmt.Sprintf("run-%d", next) }),
	)
	store.Attach(p, "deploy")

	_ = p.Add("ok")
	_ = p.Add("fail now")
	_ = p.Add("never")
	p.Execute()
	p.Wait()

	_ = p.Add("again")
	p.Execute()
	p.Wait()

	runs, err := store.Recent(0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "run-2" || runs[1].ID != "run-1" {
		t.Fatalf("runs not ordered newest first: %s, %s", runs[0].ID, runs[1].ID)
	}
	halted := runs[1]
	if halted.Status != StatusIncomplete || halted.Steps != 2 {
		t.Fatalf("unexpected halted run %+v", halted)
	}
	steps, err := store.Steps("run-1")
	if err != nil {
		t.Fatalf("steps: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("never-run step should not be recorded: %+v", steps)
	}
	failed := steps[1]
	if !failed.Failed() || failed.ExitCode != 2 || failed.Stderr != "bad things\n" {
		t.Fatalf("unexpected failed step %+v", failed)
	}
}

func TestDetachStopsRecording(t *testing.T) {
	store := openStore(t)
	p := plan.New(plan.WithRunner(scriptedRunner()))
	detach := store.Attach(p, "x")
	detach()
	_ = p.Add("one")
	p.Execute()
	p.Wait()
	runs, err := store.Recent(5)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected no runs after detach, got %d", len(runs))
	}
}
