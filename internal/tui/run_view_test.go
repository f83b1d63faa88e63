package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/chainexec/plan"
)

func drive(t *testing.T, m *Model, cmd tea.Cmd) *Model {
	t.Helper()
	for cmd != nil {
		msg := cmd()
		if msg == nil {
			break
		}
		if _, quit := msg.(tea.QuitMsg); quit {
			break
		}
		next, nextCmd := m.Update(msg)
		var ok bool
		m, ok = next.(*Model)
		if !ok {
			t.Fatalf("unexpected model type: %T", next)
		}
		cmd = nextCmd
	}
	return m
}

func TestModelFollowsCompletedRound(t *testing.T) {
	events := make(chan plan.Event, 16)
	for _, e := range []plan.Event{
		{Type: plan.EventStepStart, RunID: "r", Step: 0, Command: "echo a"},
		{Type: plan.EventStepEnd, RunID: "r", Step: 0, Stdout: "a\n"},
		{Type: plan.EventStepStart, RunID: "other", Step: 1},
		{Type: plan.EventStepStart, RunID: "r", Step: 1, Command: "echo b"},
		{Type: plan.EventStepEnd, RunID: "r", Step: 1, Stdout: "b\n"},
		{Type: plan.EventComplete, RunID: "r", Step: -1, Stdout: "b\n"},
		{Type: plan.EventFinish, RunID: "r", Step: -1},
	} {
		events <- e
	}
	m := NewModel("demo", []string{"first", "second"}, events)
	m = drive(t, m, m.waitForEvent())
	if !m.Finished() || !m.Completed() || m.Aborted() {
		t.Fatalf("unexpected state finished=%t completed=%t aborted=%t", m.Finished(), m.Completed(), m.Aborted())
	}
	for i, row := range m.rows {
		if row.status != statusDone {
			t.Fatalf("row %d status = %d, want done", i, row.status)
		}
	}
	if view := m.View(); !strings.Contains(view, "complete") || !strings.Contains(view, "second") {
		t.Fatalf("unexpected view:\n%s", view)
	}
}

func TestModelMarksFailureAndSkippedSteps(t *testing.T) {
	events := make(chan plan.Event, 16)
	events <- plan.Event{Type: plan.EventStepStart, RunID: "r", Step: 0}
	events <- plan.Event{Type: plan.EventStepEnd, RunID: "r", Step: 0, Err: errors.New("exit status 1"), Stderr: "nope\nmore"}
	events <- plan.Event{Type: plan.EventExecError, RunID: "r", Step: 0, Err: errors.New("exit status 1")}
	events <- plan.Event{Type: plan.EventFinish, RunID: "r", Step: -1}
	m := NewModel("demo", []string{"build", "test"}, events)
	m = drive(t, m, m.waitForEvent())
	if m.Completed() || !m.Finished() {
		t.Fatalf("round should finish without completing")
	}
	if m.rows[0].status != statusFailed || m.rows[0].detail != "nope" {
		t.Fatalf("unexpected failed row %+v", m.rows[0])
	}
	if m.rows[1].status != statusSkipped {
		t.Fatalf("unexpected skipped row %+v", m.rows[1])
	}
	if view := m.View(); !strings.Contains(view, "exit status 1") {
		t.Fatalf("view should show last error:\n%s", view)
	}
}

func TestModelQuitBeforeFinishIsAborted(t *testing.T) {
	m := NewModel("demo", []string{"a"}, make(chan plan.Event))
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if !next.(*Model).Aborted() {
		t.Fatalf("expected aborted model")
	}
}

func TestModelStreamClosedQuits(t *testing.T) {
	events := make(chan plan.Event)
	close(events)
	m := NewModel("demo", nil, events)
	m = drive(t, m, m.waitForEvent())
	if !m.Finished() {
		t.Fatalf("closed stream should finish the view")
	}
}

func TestTruncateUsesCellWidth(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("truncate kept %q", got)
	}
	got := truncate(strings.Repeat("界", 10), 7)
	if got != "界界界…" {
		t.Fatalf("wide runes should count as two cells, got %q", got)
	}
}
