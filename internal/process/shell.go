package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kingrea/chainexec/plan"
)

// DefaultShell is used when neither the runner nor the step names one.
const DefaultShell = "/bin/sh"

// waitDelay bounds how long a killed command's children may hold its pipes open.
const waitDelay = 2 * time.Second

// Shell runs each command through `<shell> -c`. Output streams are captured
// separately; the completion callback fires on the runner's own goroutine.
type Shell struct {
	shell   string
	timeout time.Duration
	env     []string
}

// ShellOption customizes a Shell runner.
type ShellOption func(*Shell)

// WithShell overrides the interpreter binary.
func WithShell(path string) ShellOption {
	return func(s *Shell) {
		if path = strings.TrimSpace(path); path != "" {
			s.shell = path
		}
	}
}

// WithTimeout bounds every command unless a step sets its own timeout.
func WithTimeout(d time.Duration) ShellOption {
	return func(s *Shell) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithBaseEnv replaces the inherited environment (os.Environ by default).
func WithBaseEnv(env []string) ShellOption {
	return func(s *Shell) {
		s.env = append([]string(nil), env...)
	}
}

// NewShell constructs a shell runner.
func NewShell(opts ...ShellOption) *Shell {
	s := &Shell{shell: DefaultShell}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Run satisfies plan.Runner.
func (s *Shell) Run(ctx context.Context, command string, opts plan.Options, done func(plan.Result)) {
	shell := s.shell
	if override, ok := opts.String("shell"); ok && strings.TrimSpace(override) != "" {
		shell = override
	}
	go func() {
		done(s.execute(ctx, command, opts, shell, "-c", command))
	}()
}

func (s *Shell) execute(ctx context.Context, command string, opts plan.Options, name string, args ...string) plan.Result {
	timeout, err := optionDuration(opts, "timeout")
	if err != nil {
		return plan.Result{Err: &plan.ExecError{Command: command, Err: err}}
	}
	if timeout <= 0 {
		timeout = s.timeout
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = waitDelay
	if dir := workingDir(opts); dir != "" {
		cmd.Dir = dir
	}
	cmd.Env = mergeEnv(s.baseEnv(), opts.StringMap("env"))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()
	result := plan.Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if runErr != nil {
		result.Err = wrapExecError(command, runErr, ctx.Err())
	}
	return result
}

func (s *Shell) baseEnv() []string {
	if s.env != nil {
		return s.env
	}
	return os.Environ()
}

func wrapExecError(command string, runErr, ctxErr error) error {
	execErr := &plan.ExecError{Command: command, Err: runErr}
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		execErr.ExitCode = exitErr.ExitCode()
	}
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		execErr.Err = fmt.Errorf("timed out: %w", ctxErr)
		execErr.ExitCode = 0
	}
	return execErr
}

func workingDir(opts plan.Options) string {
	for _, key := range []string{"cwd", "dir"} {
		if dir, ok := opts.String(key); ok && strings.TrimSpace(dir) != "" {
			return dir
		}
	}
	return ""
}

// mergeEnv overlays extra onto base; later keys win. The result is sorted by
// key for the overlaid entries so command environments are reproducible.
func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(extra))
	for _, kv := range base {
		key := kv
		if idx := strings.IndexByte(kv, '='); idx >= 0 {
			key = kv[:idx]
		}
		if _, overridden := extra[key]; overridden {
			continue
		}
		out = append(out, kv)
	}
	keys := make([]string, 0, len(extra))
	for key := range extra {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		out = append(out, key+"="+extra[key])
	}
	return out
}

// optionDuration accepts a duration string ("90s"), a time.Duration, or a
// number of seconds.
func optionDuration(opts plan.Options, key string) (time.Duration, error) {
	raw, ok := opts[key]
	if !ok || raw == nil {
		return 0, nil
	}
	switch v := raw.(type) {
	case time.Duration:
		return v, nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return 0, nil
		}
		if d, err := time.ParseDuration(v); err == nil {
			return d, nil
		}
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("option %s: invalid duration %q", key, v)
		}
		return time.Duration(secs * float64(time.Second)), nil
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	}
	return 0, fmt.Errorf("option %s: unsupported type %T", key, raw)
}
