package dnf

import (
	"fmt"
	"strings"
)

// DelayAssignment chooses which configured delay a new crossing receives.
type DelayAssignment int

const (
	// DelaySequential gives the k-th crossing of the run delays[k].
	DelaySequential DelayAssignment = iota
	// DelayPerBatch gives the k-th crossing of one step's batch delays[k].
	DelayPerBatch
)

func (a DelayAssignment) String() string {
	if a == DelayPerBatch {
		return "per_batch"
	}
	return "sequential"
}

// ParseDelayAssignment maps a configuration name to a DelayAssignment.
func ParseDelayAssignment(s string) (DelayAssignment, error) {
	switch strings.ToLower(s) {
	case "", "sequential":
		return DelaySequential, nil
	case "per_batch":
		return DelayPerBatch, nil
	}
	return DelaySequential, fmt.Errorf("unknown delay assignment %q", s)
}

// FeedbackConfig configures the delayed perturbation injected into a field.
type FeedbackConfig struct {
	// Delays in timesteps, consumed positionally. Indices past the end reuse
	// the last value; an empty list means no delay.
	Delays     []int
	Amplitude  float64
	Width      float64
	Assignment DelayAssignment
}

// PendingEvent is a crossing waiting for its delay to elapse.
type PendingEvent struct {
	Position float64
	Index    int
	Delay    int
}

// Due reports whether the event may fire at time index i.
func (e PendingEvent) Due(i int) bool { return i >= e.Index+e.Delay }

// Firing records a delivered perturbation.
type Firing struct {
	Position      float64
	CrossingIndex int
	FiringIndex   int
	Delay         int
}

// DelayQueue holds pending events in insertion order.
type DelayQueue struct {
	cfg      FeedbackConfig
	pending  []PendingEvent
	received int
}

// NewDelayQueue validates cfg and returns an empty queue.
func NewDelayQueue(cfg FeedbackConfig) (*DelayQueue, error) {
	for k, d := range cfg.Delays {
		if d < 0 {
			return nil, fmt.Errorf("delay %d is negative: %d", k, d)
		}
	}
	if cfg.Width <= 0 {
		return nil, fmt.Errorf("feedback width must be positive, got %v", cfg.Width)
	}
	cfg.Delays = append([]int(nil), cfg.Delays...)
	return &DelayQueue{cfg: cfg}, nil
}

func (q *DelayQueue) delayAt(k int) int {
	n := len(q.cfg.Delays)
	switch {
	case n == 0:
		return 0
	case k >= n:
		return q.cfg.Delays[n-1]
	}
	return q.cfg.Delays[k]
}

// Enqueue appends one pending event per crossing, in crossing order.
func (q *DelayQueue) Enqueue(crossings []Crossing) {
	for k, c := range crossings {
		slot := k
		if q.cfg.Assignment == DelaySequential {
			slot = q.received
		}
		q.pending = append(q.pending, PendingEvent{Position: c.Position, Index: c.Index, Delay: q.delayAt(slot)})
		q.received++
	}
}

// Pop removes and returns the first event, in insertion order, that is due at
// time index i. At most one event is removed per call.
func (q *DelayQueue) Pop(i int) (PendingEvent, bool) {
	for k, e := range q.pending {
		if e.Due(i) {
			q.pending = append(q.pending[:k], q.pending[k+1:]...)
			return e, true
		}
	}
	return PendingEvent{}, false
}

// Pending returns a copy of the queued events.
func (q *DelayQueue) Pending() []PendingEvent {
	return append([]PendingEvent(nil), q.pending...)
}

// Config returns the queue's configuration.
func (q *DelayQueue) Config() FeedbackConfig { return q.cfg }

// EnableFeedback makes the field a delayed-feedback receiver.
func (f *Field) EnableFeedback(cfg FeedbackConfig) (*DelayQueue, error) {
	q, err := NewDelayQueue(cfg)
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", f.Name, err)
	}
	f.queue = q
	return q, nil
}

// DelayQueue returns the field's delay queue, or nil.
func (f *Field) DelayQueue() *DelayQueue { return f.queue }

// Deliver queues this step's crossings and fires at most one due event by
// injecting the configured bump at the crossing position.
func (f *Field) Deliver(i int, crossings []Crossing) (Firing, bool) {
	if f.queue == nil {
		return Firing{}, false
	}
	f.queue.Enqueue(crossings)
	e, ok := f.queue.Pop(i)
	if !ok {
		return Firing{}, false
	}
	f.Inject(e.Position, f.queue.cfg.Amplitude, f.queue.cfg.Width)
	return Firing{Position: e.Position, CrossingIndex: e.Index, FiringIndex: i, Delay: e.Delay}, true
}
