package plan

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeRunner answers commands from a table. Unknown commands succeed with the
// text after "echo " as stdout.
type fakeRunner struct {
	mu      sync.Mutex
	results map[string]Result
	calls   []string
	options []Options
	hold    map[string]chan struct{}
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{results: map[string]Result{}, hold: map[string]chan struct{}{}}
}

func (f *fakeRunner) fail(command, stderr string) error {
	err := &ExecError{Command: command, ExitCode: 1}
	f.results[command] = Result{Err: err, Stderr: stderr}
	return err
}

func (f *fakeRunner) Run(_ context.Context, command string, opts Options, done func(Result)) {
	f.mu.Lock()
	f.calls = append(f.calls, command)
	f.options = append(f.options, opts)
	res, ok := f.results[command]
	gate := f.hold[command]
	f.mu.Unlock()
	if !ok {
		res = Result{Stdout: strings.TrimPrefix(command, "echo ") + "\n"}
	}
	go func() {
		if gate != nil {
			<-gate
		}
		done(res)
	}()
}

func (f *fakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type recordingSink struct {
	mu  sync.Mutex
	out []string
	err []string
}

func (s *recordingSink) WriteOut(text string) {
	s.mu.Lock()
	s.out = append(s.out, text)
	s.mu.Unlock()
}

func (s *recordingSink) WriteErr(text string) {
	s.mu.Lock()
	s.err = append(s.err, text)
	s.mu.Unlock()
}

func (s *recordingSink) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.out), len(s.err)
}

// eventLog records every event a plan publishes, in order.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func watchEvents(p *Plan) *eventLog {
	log := &eventLog{}
	for _, kind := range []EventType{EventExecError, EventComplete, EventFinish, EventStepStart, EventStepEnd} {
		p.On(kind, func(e Event) {
			log.mu.Lock()
			log.events = append(log.events, e)
			log.mu.Unlock()
		})
	}
	return log
}

func (l *eventLog) ofType(kind EventType) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, e := range l.events {
		if e.Type == kind {
			out = append(out, e)
		}
	}
	return out
}

// lifecycle returns the sequence of execerror/complete/finish events.
func (l *eventLog) lifecycle() []EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []EventType
	for _, e := range l.events {
		switch e.Type {
		case EventExecError, EventComplete, EventFinish:
			out = append(out, e.Type)
		}
	}
	return out
}

func executeAndWait(t *testing.T, p *Plan) {
	t.Helper()
	p.Execute()
	waitRounds(t, p)
}

func waitRounds(t *testing.T, p *Plan) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		p.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("plan did not finish in time")
	}
}

func mustAdd(t *testing.T, p *Plan, args ...any) {
	t.Helper()
	if err := p.Add(args...); err != nil {
		t.Fatalf("add %v: %v", args, err)
	}
}

func sameTypes(got, want []EventType) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

var errBoom = errors.New("boom")
