package planfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/kingrea/chainexec/plan"
)

const yamlPlan = `
id: build
name: Build and test
config:
  continue_on_error: false
steps:
  - command: echo one
    announce: true
  - id: test
    command: "false"
    on_error: continue
    options:
      cwd: /tmp
      timeout: 5
      env:
        MODE: ci
  - command: echo three
`

func TestParseYAMLNormalizes(t *testing.T) {
	def, err := Parse([]byte(yamlPlan), FormatYAML)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if def.Name != "Build and test" || len(def.Steps) != 3 {
		t.Fatalf("unexpected definition %+v", def)
	}
	if ids := strings.Join(def.StepIDs(), ","); ids != "step-1,test,step-3" {
		t.Fatalf("step ids = %s", ids)
	}
	if def.Config.ContinueOnError == nil || *def.Config.ContinueOnError {
		t.Fatalf("config block not decoded: %+v", def.Config)
	}
	if def.Steps[1].Decision() != plan.DecisionContinue {
		t.Fatalf("on_error not decoded")
	}
	env := plan.Options(def.Steps[1].Options).StringMap("env")
	if env["MODE"] != "ci" {
		t.Fatalf("nested env option not decoded: %v", def.Steps[1].Options)
	}
	if !def.Steps[0].Announce {
		t.Fatalf("announce flag not decoded")
	}
}

func TestParseJSONAndTOML(t *testing.T) {
	jsonPlan := `{"id":"j","steps":[{"command":"echo hi","on_error":"halt"}]}`
	def, err := Parse([]byte(jsonPlan), FormatJSON)
	if err != nil {
		t.Fatalf("parse json: %v", err)
	}
	if def.Name != "j" || def.Steps[0].Decision() != plan.DecisionHalt {
		t.Fatalf("unexpected json definition %+v", def)
	}

	tomlPlan := `
id = "t"

[config]
auto_print_out = false

[runner]
kind = "Direct"

[[steps]]
command = "echo a"

[[steps]]
name = "second"
command = "echo b"
[steps.options]
timeout = "2s"
`
	def, err = Parse([]byte(tomlPlan), FormatTOML)
	if err != nil {
		t.Fatalf("parse toml: %v", err)
	}
	if len(def.Steps) != 2 || def.Steps[1].Label() != "second" {
		t.Fatalf("unexpected toml steps %+v", def.Steps)
	}
	if def.Runner.Kind != "direct" {
		t.Fatalf("runner kind not normalized: %q", def.Runner.Kind)
	}
	if def.Config.AutoPrintOut == nil || *def.Config.AutoPrintOut {
		t.Fatalf("toml config not decoded")
	}
	if got, _ := plan.Options(def.Steps[1].Options).String("timeout"); got != "2s" {
		t.Fatalf("toml options not decoded: %v", def.Steps[1].Options)
	}
}

func TestParseValidation(t *testing.T) {
	cases := map[string]string{
		"empty":     "   ",
		"no id":     "steps:\n  - command: ls",
		"no steps":  "id: x",
		"blank cmd": "id: x\nsteps:\n  - command: '  '",
		"on_error":  "id: x\nsteps:\n  - command: ls\n    on_error: retry",
		"dup ids":   "id: x\nsteps:\n  - id: a\n    command: ls\n  - id: a\n    command: ls",
		"runner":    "id: x\nrunner:\n  kind: ssh\nsteps:\n  - command: ls",
	}
	for name, body := range cases {
		if _, err := Parse([]byte(body), FormatYAML); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := Parse([]byte("id: x"), Format("xml")); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}

func TestCloneIsDeep(t *testing.T) {
	def, err := Parse([]byte(yamlPlan), FormatYAML)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	clone := def.Clone()
	clone.Steps[1].Options["cwd"] = "/elsewhere"
	clone.Steps[0].Command = "changed"
	if def.Steps[1].Options["cwd"] != "/tmp" || def.Steps[0].Command != "echo one" {
		t.Fatalf("clone shares state with original")
	}
}

func TestLoadFileDefaultsIDAndResolve(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deploy.toml")
	if err := os.WriteFile(path, []byte("[[steps]]\ncommand = \"echo hi\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	def, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if def.ID != "deploy" {
		t.Fatalf("id = %q, want file name", def.ID)
	}
	resolved, err := Resolve(dir, "deploy")
	if err != nil || resolved != path {
		t.Fatalf("resolve = %q, %v", resolved, err)
	}
	if _, err := Resolve(dir, "missing"); err == nil {
		t.Fatalf("expected missing plan error")
	}
	if _, err := LoadFile(filepath.Join(dir, "plan.txt")); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
}

type echoRunner struct {
	mu       sync.Mutex
	commands []string
}

func (r *echoRunner) Run(_ context.Context, command string, _ plan.Options, done func(plan.Result)) {
	r.mu.Lock()
	r.commands = append(r.commands, command)
	r.mu.Unlock()
	if command == "false" {
		done(plan.Result{Err: errors.New("exit status 1"), Stderr: "failed\n"})
		return
	}
	done(plan.Result{Stdout: strings.TrimPrefix(command, "echo ") + "\n"})
}

func TestApplyRegistersStepsWithHooks(t *testing.T) {
	def, err := Parse([]byte(yamlPlan), FormatYAML)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	runner := &echoRunner{}
	p := plan.New(plan.WithConfig(def.Config), plan.WithRunner(runner))

	var (
		mu      sync.Mutex
		before  []string
		failed  []string
		execErr bool
		done    bool
	)
	hooks := Hooks{
		BeforeStep: func(step StepSpec, index int, prior string) {
			mu.Lock()
			defer mu.Unlock()
			before = append(before, step.ID+"<"+strings.TrimSpace(prior))
		},
		OnStepError: func(step StepSpec, index int, err error, stderr string) {
			mu.Lock()
			defer mu.Unlock()
			failed = append(failed, step.ID)
		},
	}
	if err := def.Apply(p, hooks); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if p.Len() != 3 {
		t.Fatalf("len = %d, want 3", p.Len())
	}
	p.OnExecError(func(error, string) { execErr = true })
	p.OnComplete(func(string) { done = true })
	p.Execute()
	p.Wait()

	mu.Lock()
	defer mu.Unlock()
	if strings.Join(before, ",") != "step-1<,test<one,step-3<" {
		t.Fatalf("unexpected pre-logic calls %v", before)
	}
	if strings.Join(failed, ",") != "test" {
		t.Fatalf("unexpected error hook calls %v", failed)
	}
	if execErr {
		t.Fatalf("on_error: continue should suppress execerror")
	}
	if !done {
		t.Fatalf("expected complete despite continue_on_error=false")
	}
}

func TestApplyDefaultDecisionLeavesHandlerUnset(t *testing.T) {
	def, err := Parse([]byte("id: x\nsteps:\n  - command: ls\n  - command: pwd\n    on_error: halt"), FormatYAML)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	p := plan.New()
	if err := def.Apply(p, Hooks{}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	steps := p.Steps()
	if steps[0].HasErrorHandler() || steps[0].HasPreLogic() {
		t.Fatalf("default step should carry no callbacks")
	}
	if !steps[1].HasErrorHandler() {
		t.Fatalf("halt step should carry an error handler")
	}
}
