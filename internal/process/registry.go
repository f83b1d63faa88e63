package process

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kingrea/chainexec/plan"
)

// Config carries runner settings resolved from project config or a plan file.
type Config struct {
	Shell   string
	Timeout time.Duration
	Env     []string
}

func (c Config) options() []ShellOption {
	opts := []ShellOption{WithShell(c.Shell), WithTimeout(c.Timeout)}
	if c.Env != nil {
		opts = append(opts, WithBaseEnv(c.Env))
	}
	return opts
}

// Factory constructs a runner with the provided configuration.
type Factory func(Config) (plan.Runner, error)

// Registry maintains known runner factories keyed by kind.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// DefaultRegistry returns a registry with the "shell" and "direct" runners.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister("shell", func(cfg Config) (plan.Runner, error) {
		return NewShell(cfg.options()...), nil
	})
	r.MustRegister("direct", func(cfg Config) (plan.Runner, error) {
		return NewDirect(cfg.options()...), nil
	})
	return r
}

// Register installs a runner factory. Returns an error if the kind already exists.
func (r *Registry) Register(kind string, factory Factory) error {
	kind = normalizeKind(kind)
	if kind == "" {
		return fmt.Errorf("process: kind is required")
	}
	if factory == nil {
		return fmt.Errorf("process: factory is required for %s", kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("process: %s already registered", kind)
	}
	r.factories[kind] = factory
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(kind string, factory Factory) {
	if err := r.Register(kind, factory); err != nil {
		panic(err)
	}
}

// Resolve constructs a runner by kind. An empty kind selects "shell".
func (r *Registry) Resolve(kind string, cfg Config) (plan.Runner, error) {
	kind = normalizeKind(kind)
	if kind == "" {
		kind = "shell"
	}
	r.mu.RLock()
	factory, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("process: unknown runner %s", kind)
	}
	runner, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("process: build %s runner: %w", kind, err)
	}
	return runner, nil
}

// Kinds returns the sorted registered runner kinds.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for kind := range r.factories {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

func normalizeKind(kind string) string {
	return strings.ToLower(strings.TrimSpace(kind))
}
