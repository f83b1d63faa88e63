package plan

import (
	"fmt"
	"strings"
)

// Options carries runner-specific settings for one command (opaque to the
// engine). The shell runner understands cwd, env, shell and timeout.
type Options map[string]any

// Clone returns a shallow copy of the options map.
func (o Options) Clone() Options {
	if len(o) == 0 {
		return nil
	}
	clone := make(Options, len(o))
	for key, value := range o {
		clone[key] = value
	}
	return clone
}

// String returns the value stored under key when it is a string.
func (o Options) String(key string) (string, bool) {
	value, ok := o[key]
	if !ok {
		return "", false
	}
	s, ok := value.(string)
	return s, ok
}

// StringMap returns a string-keyed map stored under key, formatting values
// with %v. Used for env-style options decoded from YAML or TOML.
func (o Options) StringMap(key string) map[string]string {
	switch raw := o[key].(type) {
	case map[string]string:
		out := make(map[string]string, len(raw))
		for k, v := range raw {
			out[k] = v
		}
		return out
	case map[string]any:
		out := make(map[string]string, len(raw))
		for k, v := range raw {
			out[k] = fmt.Sprint(v)
		}
		return out
	case Options:
		out := make(map[string]string, len(raw))
		for k, v := range raw {
			out[k] = fmt.Sprint(v)
		}
		return out
	}
	return nil
}

// Decision is an error handler's verdict on a failed command.
type Decision int

const (
	// DecisionDefault defers to the plan's ContinueOnError setting and lets
	// the execerror event fire.
	DecisionDefault Decision = iota
	// DecisionContinue runs the next step regardless of plan configuration.
	DecisionContinue
	// DecisionHalt stops the chain regardless of plan configuration.
	DecisionHalt
)

func (d Decision) String() string {
	switch d {
	case DecisionContinue:
		return "continue"
	case DecisionHalt:
		return "halt"
	default:
		return "default"
	}
}

// ParseDecision maps continue/halt/default (and true/false) to a Decision.
func ParseDecision(value string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "default":
		return DecisionDefault, nil
	case "continue", "true":
		return DecisionContinue, nil
	case "halt", "stop", "false":
		return DecisionHalt, nil
	}
	return DecisionDefault, fmt.Errorf("unknown error decision %q", value)
}

// Overrides reports whether the decision replaces the plan default.
func (d Decision) Overrides() bool {
	return d == DecisionContinue || d == DecisionHalt
}

// PreLogic runs just before a step's command, receiving the previous step's
// stdout (empty for the first step).
type PreLogic func(priorStdout string)

// ErrorHandler decides what happens after a step's own command fails.
type ErrorHandler func(err error, stderr string) Decision

// StepDef is the named-field form of a step accepted by AddStep.
type StepDef struct {
	PreLogic PreLogic
	Command  string
	Options  Options
	OnError  ErrorHandler
}

// Step is one scheduled command. Steps are immutable once added to a plan.
type Step struct {
	preLogic     PreLogic
	command      string
	options      Options
	errorHandler ErrorHandler
}

func newStep(def StepDef) (Step, error) {
	if strings.TrimSpace(def.Command) == "" {
		return Step{}, invalidArgument("command must be a non-empty string")
	}
	return Step{
		preLogic:     def.PreLogic,
		command:      def.Command,
		options:      def.Options.Clone(),
		errorHandler: def.OnError,
	}, nil
}

// Command returns the command string.
func (s Step) Command() string { return s.command }

// Options returns a copy of the step's runner options (nil when none were given).
func (s Step) Options() Options { return s.options.Clone() }

// HasPreLogic reports whether the step carries a pre-logic hook.
func (s Step) HasPreLogic() bool { return s.preLogic != nil }

// HasErrorHandler reports whether the step carries its own error handler.
func (s Step) HasErrorHandler() bool { return s.errorHandler != nil }

func (s Step) runPreLogic(priorStdout string) {
	if s.preLogic != nil {
		s.preLogic(priorStdout)
	}
}

func (s Step) decide(err error, stderr string) Decision {
	if s.errorHandler == nil {
		return DecisionDefault
	}
	return s.errorHandler(err, stderr)
}
