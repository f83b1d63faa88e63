package plan

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument is returned by Add and AddStep when a step cannot be
// resolved into a valid command. The plan is left untouched.
var ErrInvalidArgument = errors.New("plan: invalid argument")

var errNoRunner = errors.New("plan: no runner configured")

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// ExecError describes a failed command invocation reported by a Runner.
type ExecError struct {
	Command  string
	ExitCode int
	Err      error
}

func (e *ExecError) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.ExitCode > 0:
		return fmt.Sprintf("command %q exited with status %d", e.Command, e.ExitCode)
	case e.Err != nil:
		return fmt.Sprintf("command %q failed: %v", e.Command, e.Err)
	default:
		return fmt.Sprintf("command %q failed", e.Command)
	}
}

// Unwrap exposes the underlying cause.
func (e *ExecError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
