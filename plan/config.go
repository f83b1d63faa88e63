package plan

import (
	"strings"
	"time"
)

// Config holds the three plan-wide switches. Nil fields keep their default
// (true). The fields are independent and never derived from each other.
type Config struct {
	AutoPrintOut    *bool `json:"auto_print_out,omitempty" yaml:"auto_print_out,omitempty" toml:"auto_print_out,omitempty"`
	AutoPrintErr    *bool `json:"auto_print_err,omitempty" yaml:"auto_print_err,omitempty" toml:"auto_print_err,omitempty"`
	ContinueOnError *bool `json:"continue_on_error,omitempty" yaml:"continue_on_error,omitempty" toml:"continue_on_error,omitempty"`
}

// Bool returns a pointer to b, for filling Config literals.
func Bool(b bool) *bool { return &b }

// ConfigFromMap reads autoPrintOut, autoPrintErr and continueOnError (or their
// snake_case spellings). Unknown keys and non-bool values are ignored.
func ConfigFromMap(values map[string]any) Config {
	var cfg Config
	for key, value := range values {
		b, ok := value.(bool)
		if !ok {
			continue
		}
		switch normalizeKey(key) {
		case "autoprintout":
			cfg.AutoPrintOut = Bool(b)
		case "autoprinterr":
			cfg.AutoPrintErr = Bool(b)
		case "continueonerror":
			cfg.ContinueOnError = Bool(b)
		}
	}
	return cfg
}

// Merge returns c with every field set in override replacing its own.
func (c Config) Merge(override Config) Config {
	if override.AutoPrintOut != nil {
		c.AutoPrintOut = Bool(*override.AutoPrintOut)
	}
	if override.AutoPrintErr != nil {
		c.AutoPrintErr = Bool(*override.AutoPrintErr)
	}
	if override.ContinueOnError != nil {
		c.ContinueOnError = Bool(*override.ContinueOnError)
	}
	return c
}

func normalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	return strings.NewReplacer("_", "", "-", "").Replace(key)
}

// settings is the resolved configuration a plan runs with.
type settings struct {
	autoPrintOut    bool
	autoPrintErr    bool
	continueOnError bool
}

func defaultSettings() settings {
	return settings{autoPrintOut: true, autoPrintErr: true, continueOnError: true}
}

func (s settings) apply(cfg Config) settings {
	if cfg.AutoPrintOut != nil {
		s.autoPrintOut = *cfg.AutoPrintOut
	}
	if cfg.AutoPrintErr != nil {
		s.autoPrintErr = *cfg.AutoPrintErr
	}
	if cfg.ContinueOnError != nil {
		s.continueOnError = *cfg.ContinueOnError
	}
	return s
}

// Option customizes a Plan at construction time.
type Option func(*Plan)

// WithConfig applies every field set in cfg.
func WithConfig(cfg Config) Option {
	return func(p *Plan) {
		p.settings = p.settings.apply(cfg)
	}
}

// WithAutoPrintOut controls whether successful step output reaches the sink.
func WithAutoPrintOut(enabled bool) Option {
	return func(p *Plan) {
		p.settings.autoPrintOut = enabled
	}
}

// WithAutoPrintErr controls whether failed step stderr reaches the sink.
func WithAutoPrintErr(enabled bool) Option {
	return func(p *Plan) {
		p.settings.autoPrintErr = enabled
	}
}

// WithContinueOnError sets the default used when no handler decides.
func WithContinueOnError(enabled bool) Option {
	return func(p *Plan) {
		p.settings.continueOnError = enabled
	}
}

// WithRunner sets the process runner.
func WithRunner(runner Runner) Option {
	return func(p *Plan) {
		if runner != nil {
			p.runner = runner
		}
	}
}

// WithSink sets the console sink for forwarded output.
func WithSink(sink Sink) Option {
	return func(p *Plan) {
		if sink != nil {
			p.sink = sink
		}
	}
}

// WithLogger injects a logger for engine diagnostics.
func WithLogger(logger Logger) Option {
	return func(p *Plan) {
		p.logger = logger
	}
}

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(p *Plan) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithName labels the plan in log lines.
func WithName(name string) Option {
	return func(p *Plan) {
		p.name = strings.TrimSpace(name)
	}
}

// WithRunIDs overrides run ID generation (primarily for tests).
func WithRunIDs(next func() string) Option {
	return func(p *Plan) {
		if next != nil {
			p.newRunID = next
		}
	}
}
