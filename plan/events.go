package plan

import (
	"strings"
	"sync"
	"time"
)

const defaultStreamCapacity = 64

// EventType names a lifecycle notification.
type EventType string

const (
	// EventExecError fires when a step failed and no handler made an explicit decision.
	EventExecError EventType = "execerror"
	// EventComplete fires when every step ran and the last one succeeded.
	EventComplete EventType = "complete"
	// EventFinish is the final notification of every round.
	EventFinish EventType = "finish"
	// EventStepStart fires right before a step's command is handed to the runner.
	EventStepStart EventType = "stepstart"
	// EventStepEnd fires when a step's outcome arrives, before policy is applied.
	EventStepEnd EventType = "stepend"
)

// Event carries the payload of one notification. Fields that do not apply to
// the event type are left zero; Step is -1 for round-level events.
type Event struct {
	Type    EventType
	RunID   string
	Step    int
	Command string
	Err     error
	Stdout  string
	Stderr  string
	Time    time.Time
}

// Listener receives events synchronously on the publishing goroutine.
type Listener func(Event)

// Subscription represents an active listener or stream.
type Subscription struct {
	// Events is set for stream subscriptions only.
	Events <-chan Event
	cancel func()
}

// Close terminates the subscription. Streams are closed after cancellation.
func (s Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Channel is a small publish/subscribe hub keyed by event type. Listeners run
// in registration order; streams buffer events for consumers on other
// goroutines.
type Channel struct {
	mu        sync.RWMutex
	seq       uint64
	listeners map[EventType][]*listenerEntry
	streams   map[*stream]struct{}
}

type listenerEntry struct {
	id uint64
	fn Listener
}

// NewChannel returns an empty notification channel.
func NewChannel() *Channel {
	return &Channel{
		listeners: map[EventType][]*listenerEntry{},
		streams:   map[*stream]struct{}{},
	}
}

// Subscribe registers fn for events of the given type.
func (c *Channel) Subscribe(kind EventType, fn Listener) Subscription {
	if fn == nil {
		return Subscription{}
	}
	kind = normalizeType(kind)
	c.mu.Lock()
	c.seq++
	entry := &listenerEntry{id: c.seq, fn: fn}
	c.listeners[kind] = append(c.listeners[kind], entry)
	c.mu.Unlock()
	return Subscription{cancel: func() { c.removeListener(kind, entry.id) }}
}

// Stream delivers events of the listed types (all types when none are listed)
// on a buffered channel of the given capacity. When the buffer is full an
// incoming progress event is dropped, while an incoming finish, complete or
// execerror evicts the oldest queued progress event. Only when every queued
// event is itself critical is the oldest of those evicted.
func (c *Channel) Stream(capacity int, kinds ...EventType) Subscription {
	st := newStream(capacity, kinds)
	c.mu.Lock()
	c.streams[st] = struct{}{}
	c.mu.Unlock()
	return Subscription{
		Events: st.ch,
		cancel: func() { c.removeStream(st) },
	}
}

// Publish delivers event to listeners registered for its type and to every
// matching stream.
func (c *Channel) Publish(event Event) {
	kind := normalizeType(event.Type)
	c.mu.RLock()
	entries := append([]*listenerEntry(nil), c.listeners[kind]...)
	streams := make([]*stream, 0, len(c.streams))
	for st := range c.streams {
		streams = append(streams, st)
	}
	c.mu.RUnlock()
	for _, entry := range entries {
		entry.fn(event)
	}
	for _, st := range streams {
		if st.accepts(kind) {
			st.deliver(event)
		}
	}
}

func (c *Channel) removeListener(kind EventType, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := c.listeners[kind]
	for i, entry := range entries {
		if entry.id == id {
			c.listeners[kind] = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	if len(c.listeners[kind]) == 0 {
		delete(c.listeners, kind)
	}
}

func (c *Channel) removeStream(st *stream) {
	c.mu.Lock()
	delete(c.streams, st)
	c.mu.Unlock()
	st.close()
}

func normalizeType(kind EventType) EventType {
	return EventType(strings.TrimSpace(strings.ToLower(string(kind))))
}

type stream struct {
	ch     chan Event
	kinds  map[EventType]struct{}
	mu     sync.Mutex
	closed bool
}

func newStream(capacity int, kinds []EventType) *stream {
	if capacity <= 0 {
		capacity = defaultStreamCapacity
	}
	st := &stream{ch: make(chan Event, capacity)}
	if len(kinds) > 0 {
		st.kinds = make(map[EventType]struct{}, len(kinds))
		for _, kind := range kinds {
			st.kinds[normalizeType(kind)] = struct{}{}
		}
	}
	return st
}

func (s *stream) accepts(kind EventType) bool {
	if len(s.kinds) == 0 {
		return true
	}
	_, ok := s.kinds[kind]
	return ok
}

// deliver holds the stream lock for the whole exchange so concurrent
// publishers cannot interleave the eviction. Only the consumer reads from ch,
// so evicting one event always frees a slot.
func (s *stream) deliver(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- event:
		return
	default:
	}
	if !isCriticalEvent(event.Type) {
		return
	}
	s.evict()
	s.ch <- event
}

// evict removes the oldest queued progress event, or the oldest event when
// every queued event is critical. Order of the remaining events is kept.
func (s *stream) evict() {
	queued := make([]Event, 0, cap(s.ch))
	for drained := false; !drained; {
		select {
		case e := <-s.ch:
			queued = append(queued, e)
		default:
			drained = true
		}
	}
	if len(queued) == 0 {
		return
	}
	victim := 0
	for i, e := range queued {
		if !isCriticalEvent(e.Type) {
			victim = i
			break
		}
	}
	for i, e := range queued {
		if i != victim {
			s.ch <- e
		}
	}
}

func (s *stream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

func isCriticalEvent(kind EventType) bool {
	switch normalizeType(kind) {
	case EventFinish, EventComplete, EventExecError:
		return true
	}
	return false
}
