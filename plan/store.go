package plan

import "sync"

// store is the append-only pending batch of a plan.
type store struct {
	mu    sync.Mutex
	steps []Step
}

func (s *store) append(step Step) {
	s.mu.Lock()
	s.steps = append(s.steps, step)
	s.mu.Unlock()
}

// drain hands the current batch to the caller and resets the store. The
// returned slice is never touched by the store again.
func (s *store) drain() []Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	drained := s.steps
	s.steps = nil
	return drained
}

func (s *store) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps)
}

func (s *store) snapshot() []Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.steps) == 0 {
		return nil
	}
	out := make([]Step, len(s.steps))
	copy(out, s.steps)
	return out
}
