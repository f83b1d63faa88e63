package process

import (
	"context"
	"fmt"
	"strings"

	"github.com/kingrea/chainexec/plan"
)

// Direct execs the first whitespace-separated word of the command with the
// remaining words as arguments. No shell is involved, so quoting, pipes and
// globbing are not interpreted.
type Direct struct {
	shell *Shell
}

// NewDirect constructs a direct runner sharing the Shell runner's timeout and
// environment handling.
func NewDirect(opts ...ShellOption) *Direct {
	return &Direct{shell: NewShell(opts...)}
}

// Run satisfies plan.Runner.
func (d *Direct) Run(ctx context.Context, command string, opts plan.Options, done func(plan.Result)) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		done(plan.Result{Err: &plan.ExecError{Command: command, Err: fmt.Errorf("empty command")}})
		return
	}
	go func() {
		done(d.shell.execute(ctx, command, opts, fields[0], fields[1:]...))
	}()
}
