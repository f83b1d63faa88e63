package plan

import (
	"context"
	"sync"
	"time"
)

// round is one execution of a drained batch.
type round struct {
	plan    *Plan
	ctx     context.Context
	id      string
	total   int
	started time.Time
}

// resume is the body of every continuation. out is nil for the head link,
// which starts the first step with no prior outcome.
func (r *round) resume(l *link, out *Result) {
	priorStdout := ""
	if !l.head() {
		res := *out
		prev := l.index - 1
		r.publish(Event{Type: EventStepEnd, Step: prev, Command: l.judged.command, Err: res.Err, Stdout: res.Stdout, Stderr: res.Stderr})
		if res.Err != nil {
			r.plan.logf("plan %s run %s: step %d/%d failed: %v", r.plan.label(), r.id, prev+1, r.total, res.Err)
			if !r.shouldContinue(l.judged, prev, res) {
				r.finish(false)
				return
			}
		} else {
			r.forwardOutput(res)
		}
		priorStdout = res.Stdout
		if l.terminal() {
			completed := res.Err == nil
			if completed {
				r.publish(Event{Type: EventComplete, Step: -1, Stdout: res.Stdout})
			}
			r.finish(completed)
			return
		}
	}
	step := l.run
	step.runPreLogic(priorStdout)
	r.plan.logf("plan %s run %s: step %d/%d start: %s", r.plan.label(), r.id, l.index+1, r.total, step.command)
	r.publish(Event{Type: EventStepStart, Step: l.index, Command: step.command})
	next := l.next
	r.plan.runner.Run(r.ctx, step.command, step.options.Clone(), onceResult(func(res Result) {
		r.resume(next, &res)
	}))
}

// shouldContinue applies the error policy to a failed step. The step's output
// is forwarded under autoPrintErr before the handler runs. A handler that
// returns an explicit decision owns the outcome and suppresses execerror.
func (r *round) shouldContinue(step *Step, index int, res Result) bool {
	if r.plan.settings.autoPrintErr {
		if res.Stdout != "" {
			r.plan.sink.WriteOut(res.Stdout)
		}
		if res.Stderr != "" {
			r.plan.sink.WriteErr(res.Stderr)
		}
	}
	decision := step.decide(res.Err, res.Stderr)
	if decision.Overrides() {
		r.plan.logf("plan %s run %s: step %d handler decided %s", r.plan.label(), r.id, index+1, decision)
		return decision == DecisionContinue
	}
	r.publish(Event{Type: EventExecError, Step: index, Command: step.command, Err: res.Err, Stderr: res.Stderr})
	return r.plan.settings.continueOnError
}

func (r *round) forwardOutput(res Result) {
	if !r.plan.settings.autoPrintOut {
		return
	}
	if res.Stdout != "" {
		r.plan.sink.WriteOut(res.Stdout)
	}
	if res.Stderr != "" {
		r.plan.sink.WriteErr(res.Stderr)
	}
}

func (r *round) finish(completed bool) {
	elapsed := r.plan.clock().Sub(r.started)
	r.plan.logf("plan %s run %s: finished (complete=%t) in %s", r.plan.label(), r.id, completed, elapsed.Round(time.Millisecond))
	r.publish(Event{Type: EventFinish, Step: -1})
	r.plan.rounds.Done()
}

func (r *round) publish(event Event) {
	event.RunID = r.id
	event.Time = r.plan.clock()
	r.plan.events.Publish(event)
}

// onceResult drops any completion delivered after the first.
func onceResult(fn func(Result)) func(Result) {
	var once sync.Once
	return func(res Result) {
		once.Do(func() { fn(res) })
	}
}
