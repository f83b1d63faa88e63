package plan

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Plan holds configuration and the pending batch of steps. Steps may be added
// at any time, including while an earlier batch is still executing.
type Plan struct {
	name     string
	settings settings
	store    store
	events   *Channel
	runner   Runner
	sink     Sink
	logger   Logger
	clock    func() time.Time
	newRunID func() string
	rounds   sync.WaitGroup
}

// New constructs a plan. Without WithRunner every command fails with an
// ExecError; without WithSink forwarded output is discarded.
func New(opts ...Option) *Plan {
	p := &Plan{
		settings: defaultSettings(),
		events:   NewChannel(),
		runner:   unsetRunner{},
		sink:     discardSink{},
		clock:    time.Now,
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Name returns the label given with WithName.
func (p *Plan) Name() string { return p.name }

// AutoPrintOut reports whether successful step output is forwarded to the sink.
func (p *Plan) AutoPrintOut() bool { return p.settings.autoPrintOut }

// AutoPrintErr reports whether failed step stderr is forwarded to the sink.
func (p *Plan) AutoPrintErr() bool { return p.settings.autoPrintErr }

// ContinueOnError reports the default applied when no handler decides.
func (p *Plan) ContinueOnError() bool { return p.settings.continueOnError }

// Add appends a step given as (preLogic?, command, options?, errorHandler?).
// It fails with ErrInvalidArgument, leaving the plan untouched, when no
// non-empty string command can be resolved.
func (p *Plan) Add(args ...any) error {
	def, err := resolveArgs(args)
	if err != nil {
		p.logf("plan %s: rejected add(%s): %v", p.label(), describeArgs(args), err)
		return err
	}
	return p.AddStep(def)
}

// AddStep appends a step described with named fields.
func (p *Plan) AddStep(def StepDef) error {
	step, err := newStep(def)
	if err != nil {
		return err
	}
	p.store.append(step)
	return nil
}

// Len returns the number of steps waiting for the next Execute.
func (p *Plan) Len() int { return p.store.len() }

// Steps returns a copy of the pending batch.
func (p *Plan) Steps() []Step { return p.store.snapshot() }

// Events exposes the plan's notification channel.
func (p *Plan) Events() *Channel { return p.events }

// On registers a listener for one event type.
func (p *Plan) On(kind EventType, fn Listener) Subscription {
	return p.events.Subscribe(kind, fn)
}

// OnExecError registers fn for unhandled step failures.
func (p *Plan) OnExecError(fn func(err error, stderr string)) Subscription {
	return p.events.Subscribe(EventExecError, func(e Event) { fn(e.Err, e.Stderr) })
}

// OnComplete registers fn for fully successful rounds.
func (p *Plan) OnComplete(fn func(finalStdout string)) Subscription {
	return p.events.Subscribe(EventComplete, func(e Event) { fn(e.Stdout) })
}

// OnFinish registers fn for the end of every round.
func (p *Plan) OnFinish(fn func()) Subscription {
	return p.events.Subscribe(EventFinish, func(Event) { fn() })
}

// Execute drains the pending steps and runs them in the background. An empty
// plan returns immediately and publishes nothing. Calling Execute again while
// an earlier round is running starts an independent round.
func (p *Plan) Execute() {
	p.ExecuteContext(context.Background())
}

// ExecuteContext is Execute with a context handed to the runner for every
// command of the round.
func (p *Plan) ExecuteContext(ctx context.Context) {
	steps := p.store.drain()
	if len(steps) == 0 {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	r := &round{
		plan:    p,
		ctx:     ctx,
		id:      p.newRunID(),
		total:   len(steps),
		started: p.clock(),
	}
	head := buildChain(steps)
	p.rounds.Add(1)
	p.logf("plan %s run %s: executing %d step(s)", p.label(), r.id, r.total)
	go r.resume(head, nil)
}

// Wait blocks until every round started so far has published finish.
func (p *Plan) Wait() {
	p.rounds.Wait()
}

func (p *Plan) label() string {
	if p.name == "" {
		return "(unnamed)"
	}
	return p.name
}

func (p *Plan) logf(format string, args ...any) {
	if p.logger == nil {
		return
	}
	p.logger.Printf(format, args...)
}
