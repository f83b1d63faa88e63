// Package config handles project configuration and the .chainexec directory
// structure created in every project that runs plans.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/chainexec/plan"
)

const (
	// ProjectDirName is the directory created in each project.
	ProjectDirName = ".chainexec"

	// ShellEnv overrides runner.shell when set.
	ShellEnv = "CHAINEXEC_SHELL"

	defaultRunnerKind = "shell"
	defaultShell      = "/bin/sh"
	defaultHistory    = "history.db"
	defaultPlansDir   = "plans"
)

const defaultProjectConfigYAML = `# chainexec project configuration
version: 1

# Defaults applied to every plan. A plan file's config block overrides them.
defaults:
  auto_print_out: true
  auto_print_err: true
  continue_on_error: true

# How step commands are executed. kind is "shell" or "direct".
runner:
  kind: shell
  shell: /bin/sh
  timeout: 0s

# Run history database, relative to .chainexec/.
history:
  enabled: true
  path: history.db

plans:
  dir: plans
`

// RunnerConfig selects and tunes the command runner.
type RunnerConfig struct {
	Kind    string `yaml:"kind"`
	Shell   string `yaml:"shell"`
	Timeout string `yaml:"timeout,omitempty"`
}

// HistoryConfig controls the run history store.
type HistoryConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Path    string `yaml:"path"`
}

// PlansConfig locates plan files.
type PlansConfig struct {
	Dir string `yaml:"dir"`
}

// ProjectConfig models .chainexec/config.yaml.
type ProjectConfig struct {
	Version  int           `yaml:"version"`
	Defaults plan.Config   `yaml:"defaults"`
	Runner   RunnerConfig  `yaml:"runner"`
	History  HistoryConfig `yaml:"history"`
	Plans    PlansConfig   `yaml:"plans"`

	timeout time.Duration
}

// Config holds the runtime configuration for one project.
type Config struct {
	// ProjectDir is the directory chainexec was run from.
	ProjectDir string

	// StateDir is ProjectDir/.chainexec
	StateDir string

	Project ProjectConfig
}

// InitDir creates the .chainexec directory structure and a default config
// file when none exists.
//
// .chainexec/
// ├── config.yaml
// ├── logs/
// ├── transcripts/
// └── plans/
func InitDir(projectDir string) error {
	root := filepath.Join(projectDir, ProjectDirName)
	for _, dir := range []string{
		filepath.Join(root, "logs"),
		filepath.Join(root, "transcripts"),
		filepath.Join(root, defaultPlansDir),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	return ensureProjectConfig(filepath.Join(root, "config.yaml"))
}

// New loads configuration for projectDir. A missing config file yields defaults.
func New(projectDir string) (*Config, error) {
	if strings.TrimSpace(projectDir) == "" {
		projectDir = "."
	}
	abs, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("config: resolve project dir: %w", err)
	}
	cfg := &Config{
		ProjectDir: abs,
		StateDir:   filepath.Join(abs, ProjectDirName),
		Project:    defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	if shell := strings.TrimSpace(os.Getenv(ShellEnv)); shell != "" {
		cfg.Project.Runner.Shell = shell
	}
	return cfg, nil
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.StateDir, "config.yaml")
}

// LogsDir returns the path to the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.StateDir, "logs")
}

// TranscriptsDir returns where per-run output transcripts are written.
func (c *Config) TranscriptsDir() string {
	return filepath.Join(c.StateDir, "transcripts")
}

// PlansDir returns the directory searched for plan files given by bare name.
func (c *Config) PlansDir() string {
	return c.Project.Plans.Dir
}

// HistoryPath returns the history database location.
func (c *Config) HistoryPath() string {
	return c.Project.History.Path
}

// HistoryEnabled reports whether runs are recorded.
func (c *Config) HistoryEnabled() bool {
	return c.Project.History.Enabled == nil || *c.Project.History.Enabled
}

// PlanDefaults returns the plan configuration defaults.
func (c *Config) PlanDefaults() plan.Config {
	return c.Project.Defaults
}

// RunnerKind returns the configured runner kind.
func (c *Config) RunnerKind() string {
	return c.Project.Runner.Kind
}

// Shell returns the interpreter used by the shell runner.
func (c *Config) Shell() string {
	return c.Project.Runner.Shell
}

// Timeout returns the per-command timeout, zero for none.
func (c *Config) Timeout() time.Duration {
	return c.Project.timeout
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.Project.normalize(c.StateDir)
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize(c.StateDir)
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	pc := ProjectConfig{}
	pc.applyDefaults()
	return pc
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	pc.Defaults = plan.Config{
		AutoPrintOut:    plan.Bool(true),
		AutoPrintErr:    plan.Bool(true),
		ContinueOnError: plan.Bool(true),
	}.Merge(pc.Defaults)
	if strings.TrimSpace(pc.Runner.Kind) == "" {
		pc.Runner.Kind = defaultRunnerKind
	}
	if strings.TrimSpace(pc.Runner.Shell) == "" {
		pc.Runner.Shell = defaultShell
	}
	if pc.History.Enabled == nil {
		pc.History.Enabled = plan.Bool(true)
	}
	if strings.TrimSpace(pc.History.Path) == "" {
		pc.History.Path = defaultHistory
	}
	if strings.TrimSpace(pc.Plans.Dir) == "" {
		pc.Plans.Dir = defaultPlansDir
	}
}

func (pc *ProjectConfig) normalize(base string) {
	pc.Runner.Kind = strings.ToLower(strings.TrimSpace(pc.Runner.Kind))
	pc.Runner.Shell = strings.TrimSpace(pc.Runner.Shell)
	pc.Runner.Timeout = strings.TrimSpace(pc.Runner.Timeout)
	pc.History.Path = resolvePath(base, pc.History.Path)
	pc.Plans.Dir = resolvePath(base, pc.Plans.Dir)
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	switch pc.Runner.Kind {
	case "shell", "direct":
	default:
		return fmt.Errorf("runner.kind must be 'shell' or 'direct'")
	}
	pc.timeout = 0
	if pc.Runner.Timeout != "" {
		d, err := time.ParseDuration(pc.Runner.Timeout)
		if err != nil {
			return fmt.Errorf("runner.timeout: %w", err)
		}
		if d < 0 {
			return fmt.Errorf("runner.timeout must not be negative")
		}
		pc.timeout = d
	}
	return nil
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0o644)
}
