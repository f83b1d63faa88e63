package plan

import "context"

// Result is the outcome of one command invocation.
type Result struct {
	Err    error
	Stdout string
	Stderr string
}

// Runner executes commands on behalf of a plan. Run must call done exactly
// once; it may do so on another goroutine.
type Runner interface {
	Run(ctx context.Context, command string, opts Options, done func(Result))
}

// RunnerFunc adapts a function into a Runner.
type RunnerFunc func(ctx context.Context, command string, opts Options, done func(Result))

// Run executes f.
func (f RunnerFunc) Run(ctx context.Context, command string, opts Options, done func(Result)) {
	f(ctx, command, opts, done)
}

// Sink receives step output forwarded by the engine.
type Sink interface {
	WriteOut(text string)
	WriteErr(text string)
}

// Logger records engine diagnostics. It matches logging.Logger's signature.
type Logger interface {
	Printf(format string, args ...any)
}

type discardSink struct{}

func (discardSink) WriteOut(string) {}
func (discardSink) WriteErr(string) {}

type unsetRunner struct{}

func (unsetRunner) Run(_ context.Context, command string, _ Options, done func(Result)) {
	done(Result{Err: &ExecError{Command: command, Err: errNoRunner}})
}
