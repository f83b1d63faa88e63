package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/chainexec/internal/config"
	"github.com/kingrea/chainexec/internal/console"
	"github.com/kingrea/chainexec/internal/history"
	"github.com/kingrea/chainexec/internal/logging"
	"github.com/kingrea/chainexec/internal/planfile"
	"github.com/kingrea/chainexec/internal/process"
	"github.com/kingrea/chainexec/plan"
)

var announceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)

// sessionOptions are the run-time switches shared by run and watch.
type sessionOptions struct {
	overrides plan.Config
	history   bool
	quiet     bool
}

// session owns the project-wide resources (logger, history store) and the
// plan built from the most recently loaded definition.
type session struct {
	cfg    *config.Config
	opts   sessionOptions
	logger *logging.Logger
	store  *history.Store

	def        planfile.Definition
	plan       *plan.Plan
	transcript *console.Transcript
	detach     func()
}

func newSession(cfg *config.Config, opts sessionOptions) (*session, error) {
	logger, err := logging.New(cfg.ProjectDir)
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, opts: opts, logger: logger}
	if opts.history && cfg.HistoryEnabled() {
		s.store, err = history.Open(cfg.HistoryPath())
		if err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

// load builds a new plan from def: runner, name, config and steps all come
// from def, so a reloaded plan file takes full effect. The previous plan is
// kept when def cannot be built.
func (s *session) load(def planfile.Definition, announce bool) error {
	runnerCfg, kind, err := runnerConfig(s.cfg, def.Runner)
	if err != nil {
		return err
	}
	runner, err := process.DefaultRegistry().Resolve(kind, runnerCfg)
	if err != nil {
		return err
	}
	transcript, err := console.NewTranscript(filepath.Join(s.cfg.TranscriptsDir(), def.ID+".log"))
	if err != nil {
		return err
	}
	var sink plan.Sink = transcript
	if !s.opts.quiet {
		sink = console.Tee(console.NewStd(), transcript)
	}
	logger := s.logger.With(def.ID)
	p := plan.New(
		plan.WithName(def.Name),
		plan.WithConfig(s.cfg.PlanDefaults().Merge(def.Config).Merge(s.opts.overrides)),
		plan.WithRunner(runner),
		plan.WithSink(sink),
		plan.WithLogger(logger),
	)
	hooks := planfile.Hooks{
		BeforeStep: func(step planfile.StepSpec, index int, _ string) {
			logger.Printf("before step %s (%d)", step.ID, index+1)
			if announce && step.Announce {
				fmt.Println(announceStyle.Render(fmt.Sprintf("==> %s", step.Label())))
			}
		},
		OnStepError: func(step planfile.StepSpec, _ int, err error, _ string) {
			logger.Printf("step %s failed: %v", step.ID, err)
		},
	}
	if err := def.Apply(p, hooks); err != nil {
		return err
	}

	if s.detach != nil {
		s.detach()
		s.detach = nil
	}
	s.def, s.plan, s.transcript = def, p, transcript
	if s.store != nil {
		s.detach = s.store.Attach(p, def.ID)
	}
	logger.Printf("loaded: runner=%s steps=%d", kind, len(def.Steps))
	return nil
}

// labels returns display names for the steps of the loaded definition.
func (s *session) labels() []string {
	out := make([]string, len(s.def.Steps))
	for i, step := range s.def.Steps {
		out[i] = step.Label()
	}
	return out
}

// runRound executes the pending steps and blocks until finish. It reports
// whether the round published complete.
func (s *session) runRound() bool {
	completed := false
	sub := s.plan.OnComplete(func(string) { completed = true })
	defer sub.Close()
	s.plan.Execute()
	s.plan.Wait()
	return completed
}

func (s *session) historyErr() error {
	if s.store == nil {
		return nil
	}
	return s.store.Err()
}

// Close releases the history store and the logger.
func (s *session) Close() {
	if s.detach != nil {
		s.detach()
	}
	if s.store != nil {
		_ = s.store.Close()
	}
	_ = s.logger.Close()
}

// runnerConfig merges the project's runner settings with a plan file's
// overrides.
func runnerConfig(cfg *config.Config, spec planfile.RunnerSpec) (process.Config, string, error) {
	kind := cfg.RunnerKind()
	if spec.Kind != "" {
		kind = spec.Kind
	}
	out := process.Config{Shell: cfg.Shell(), Timeout: cfg.Timeout()}
	if spec.Shell != "" {
		out.Shell = spec.Shell
	}
	if spec.Timeout != "" {
		d, err := time.ParseDuration(spec.Timeout)
		if err != nil {
			return process.Config{}, "", fmt.Errorf("runner.timeout: %w", err)
		}
		out.Timeout = d
	}
	return out, kind, nil
}

// overrideFlag collects repeatable -set key=bool plan switches. Each value is
// validated as it is parsed, so a typo fails flag parsing with usage.
type overrideFlag struct {
	cfg  plan.Config
	seen []string
}

func (f *overrideFlag) String() string {
	if f == nil {
		return ""
	}
	return strings.Join(f.seen, ", ")
}

func (f *overrideFlag) Set(value string) error {
	key, raw, ok := strings.Cut(value, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return fmt.Errorf("expected key=true|false, got %q", value)
	}
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%s: expected true or false, got %q", key, raw)
	}
	one := plan.ConfigFromMap(map[string]any{key: b})
	if one == (plan.Config{}) {
		return fmt.Errorf("unknown key %q (use auto_print_out, auto_print_err or continue_on_error)", key)
	}
	f.cfg = f.cfg.Merge(one)
	f.seen = append(f.seen, key+"="+strconv.FormatBool(b))
	return nil
}

// Config returns the accumulated overrides.
func (f *overrideFlag) Config() plan.Config { return f.cfg }
