// Package planfile loads plan definitions from YAML, JSON or TOML files and
// registers their steps on a plan.Plan.
package planfile

import (
	"fmt"
	"strings"

	"github.com/kingrea/chainexec/plan"
)

// Definition declares an ordered list of shell steps plus the plan-level
// configuration used to run them.
type Definition struct {
	ID          string      `json:"id" yaml:"id" toml:"id"`
	Name        string      `json:"name" yaml:"name" toml:"name"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	Config      plan.Config `json:"config,omitempty" yaml:"config,omitempty" toml:"config,omitempty"`
	Runner      RunnerSpec  `json:"runner,omitempty" yaml:"runner,omitempty" toml:"runner,omitempty"`
	Steps       []StepSpec  `json:"steps" yaml:"steps" toml:"steps"`
}

// RunnerSpec overrides the project's runner settings for one plan.
type RunnerSpec struct {
	Kind    string `json:"kind,omitempty" yaml:"kind,omitempty" toml:"kind,omitempty"`
	Shell   string `json:"shell,omitempty" yaml:"shell,omitempty" toml:"shell,omitempty"`
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty" toml:"timeout,omitempty"`
}

// StepSpec is one step of a plan file.
type StepSpec struct {
	ID       string         `json:"id,omitempty" yaml:"id,omitempty" toml:"id,omitempty"`
	Name     string         `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
	Command  string         `json:"command" yaml:"command" toml:"command"`
	Options  map[string]any `json:"options,omitempty" yaml:"options,omitempty" toml:"options,omitempty"`
	OnError  string         `json:"on_error,omitempty" yaml:"on_error,omitempty" toml:"on_error,omitempty"`
	Announce bool           `json:"announce,omitempty" yaml:"announce,omitempty" toml:"announce,omitempty"`
}

// Label returns the step's display name.
func (s StepSpec) Label() string {
	if s.Name != "" {
		return s.Name
	}
	if s.ID != "" {
		return s.ID
	}
	return s.Command
}

// Clone returns a deep copy of the step.
func (s StepSpec) Clone() StepSpec {
	s.Options = map[string]any(plan.Options(s.Options).Clone())
	return s
}

// Validate checks a single step.
func (s StepSpec) Validate() error {
	if strings.TrimSpace(s.Command) == "" {
		return fmt.Errorf("command is required")
	}
	if _, err := plan.ParseDecision(s.OnError); err != nil {
		return fmt.Errorf("on_error: %w", err)
	}
	return nil
}

// Decision returns the step's error policy override.
func (s StepSpec) Decision() plan.Decision {
	d, _ := plan.ParseDecision(s.OnError)
	return d
}

// Clone returns a deep copy of the definition.
func (def Definition) Clone() Definition {
	clone := def
	clone.Config = plan.Config{}.Merge(def.Config)
	clone.Steps = nil
	if len(def.Steps) > 0 {
		clone.Steps = make([]StepSpec, len(def.Steps))
		for i, step := range def.Steps {
			clone.Steps[i] = step.Clone()
		}
	}
	return clone
}

// Validate ensures the definition is self-consistent.
func (def Definition) Validate() error {
	if def.ID == "" {
		return fmt.Errorf("planfile: id is required")
	}
	if len(def.Steps) == 0 {
		return fmt.Errorf("planfile %s: at least one step is required", def.ID)
	}
	seen := map[string]struct{}{}
	for idx, step := range def.Steps {
		if err := step.Validate(); err != nil {
			return fmt.Errorf("planfile %s step[%d]: %w", def.ID, idx, err)
		}
		if step.ID == "" {
			continue
		}
		if _, exists := seen[step.ID]; exists {
			return fmt.Errorf("planfile %s: duplicate step id %s", def.ID, step.ID)
		}
		seen[step.ID] = struct{}{}
	}
	switch def.Runner.Kind {
	case "", "shell", "direct":
	default:
		return fmt.Errorf("planfile %s: runner.kind must be 'shell' or 'direct'", def.ID)
	}
	return nil
}

// Normalized clones the definition, trims fields, fills missing step IDs and
// validates the result.
func (def Definition) Normalized() (Definition, error) {
	clone := def.Clone()
	clone.ID = strings.TrimSpace(clone.ID)
	clone.Name = strings.TrimSpace(clone.Name)
	if clone.Name == "" {
		clone.Name = clone.ID
	}
	clone.Runner.Kind = strings.ToLower(strings.TrimSpace(clone.Runner.Kind))
	clone.Runner.Shell = strings.TrimSpace(clone.Runner.Shell)
	clone.Runner.Timeout = strings.TrimSpace(clone.Runner.Timeout)
	for i := range clone.Steps {
		step := &clone.Steps[i]
		step.ID = strings.TrimSpace(step.ID)
		step.Name = strings.TrimSpace(step.Name)
		step.Command = strings.TrimSpace(step.Command)
		step.OnError = strings.ToLower(strings.TrimSpace(step.OnError))
		if step.ID == "" {
			step.ID = fmt.Sprintf("step-%d", i+1)
		}
	}
	if err := clone.Validate(); err != nil {
		return Definition{}, err
	}
	return clone, nil
}

// StepIDs returns the step identifiers in declaration order.
func (def Definition) StepIDs() []string {
	ids := make([]string, 0, len(def.Steps))
	for _, step := range def.Steps {
		ids = append(ids, step.ID)
	}
	return ids
}

// Hooks observe steps registered by Apply.
type Hooks struct {
	// BeforeStep runs as the step's pre-logic with the previous step's stdout.
	BeforeStep func(step StepSpec, index int, priorStdout string)
	// OnStepError runs inside the step's error handler before the decision is
	// returned.
	OnStepError func(step StepSpec, index int, err error, stderr string)
}

// Apply registers every step on p in order. No step is added when any step is
// rejected.
func (def Definition) Apply(p *plan.Plan, hooks Hooks) error {
	defs := make([]plan.StepDef, 0, len(def.Steps))
	for idx, spec := range def.Steps {
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("planfile %s step[%d]: %w", def.ID, idx, err)
		}
		defs = append(defs, stepDef(spec.Clone(), idx, hooks))
	}
	for idx, sd := range defs {
		if err := p.AddStep(sd); err != nil {
			return fmt.Errorf("planfile %s step[%d]: %w", def.ID, idx, err)
		}
	}
	return nil
}

func stepDef(spec StepSpec, idx int, hooks Hooks) plan.StepDef {
	sd := plan.StepDef{
		Command: spec.Command,
		Options: plan.Options(spec.Options),
	}
	if hooks.BeforeStep != nil {
		before := hooks.BeforeStep
		sd.PreLogic = func(prior string) { before(spec, idx, prior) }
	}
	decision := spec.Decision()
	if hooks.OnStepError != nil {
		onErr := hooks.OnStepError
		sd.OnError = func(err error, stderr string) plan.Decision {
			onErr(spec, idx, err, stderr)
			return decision
		}
	} else if decision.Overrides() {
		sd.OnError = func(error, string) plan.Decision { return decision }
	}
	return sd
}
