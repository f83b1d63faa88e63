package plan

// link is one continuation in an execution chain. It receives the outcome of
// judged (nil for the head) and, when the policy allows, runs run (nil for the
// terminal link) with next as the runner's completion callback.
type link struct {
	index  int
	judged *Step
	run    *Step
	next   *link
}

func (l *link) head() bool     { return l.judged == nil }
func (l *link) terminal() bool { return l.run == nil }

// buildChain links steps into len(steps)+1 continuations and returns the
// head. Links are built from the terminal backwards so each one can point at
// its already-built successor.
func buildChain(steps []Step) *link {
	if len(steps) == 0 {
		return nil
	}
	last := len(steps) - 1
	next := &link{index: len(steps), judged: &steps[last]}
	for i := last; i >= 0; i-- {
		current := &link{index: i, run: &steps[i], next: next}
		if i > 0 {
			current.judged = &steps[i-1]
		}
		next = current
	}
	return next
}
