package dnf

import (
	"context"
	"errors"
	"fmt"
)

// ErrRoleCapability is returned when a role is assigned to a field that was
// not built for it.
var ErrRoleCapability = errors.New("field lacks role capability")

// Simulator owns a registry of fields and steps them through their shared
// time grid. Each timestep runs in two phases:
//
//   - Phase A: every field except the feedback receiver steps, in
//     registration order.
//   - Phase B: the monitor field is checked for new crossings; the feedback
//     receiver queues them, fires at most one due event, then steps.
//
// Connections read the activations published at the start of the timestep,
// so Phase A results do not depend on registration order.
type Simulator struct {
	fields []*Field
	byName map[string]FieldID

	monitor  FieldID
	feedback FieldID

	published [][]float64
	next      int

	crossings []Crossing
	firings   []Firing
	onFiring  []func(Firing)
}

// NewSimulator returns an empty simulator with no roles assigned.
func NewSimulator() *Simulator {
	return &Simulator{
		byName:   make(map[string]FieldID),
		monitor:  NoField,
		feedback: NoField,
	}
}

// Add registers a field and returns its id. Names must be unique.
func (s *Simulator) Add(f *Field) (FieldID, error) {
	if s.next > 0 {
		return NoField, errors.New("cannot add fields after the run has started")
	}
	if _, dup := s.byName[f.Name]; dup {
		return NoField, fmt.Errorf("duplicate field name %q", f.Name)
	}
	id := FieldID(len(s.fields))
	s.fields = append(s.fields, f)
	s.byName[f.Name] = id
	s.published = append(s.published, make([]float64, f.Space.Len()))
	return id, nil
}

func (s *Simulator) valid(id FieldID) bool {
	return id >= 0 && int(id) < len(s.fields)
}

// Field returns the field registered under id, or nil.
func (s *Simulator) Field(id FieldID) *Field {
	if !s.valid(id) {
		return nil
	}
	return s.fields[id]
}

// Lookup returns the id of the named field.
func (s *Simulator) Lookup(name string) (FieldID, bool) {
	id, ok := s.byName[name]
	return id, ok
}

// Fields returns the registered fields in registration order.
func (s *Simulator) Fields() []*Field {
	return append([]*Field(nil), s.fields...)
}

// Connect adds a connection from source into target. Cycles are allowed.
func (s *Simulator) Connect(target, source FieldID, weight float64, threshold *float64) error {
	if s.next > 0 {
		return errors.New("cannot add connections after the run has started")
	}
	if !s.valid(target) || !s.valid(source) {
		return fmt.Errorf("connect %d <- %d: %w", target, source, ErrUnknownField)
	}
	var th *float64
	if threshold != nil {
		v := *threshold
		th = &v
	}
	s.fields[target].AddConnection(Connection{Source: source, Weight: weight, Threshold: th})
	return nil
}

// SetMonitor assigns the monitor role. The field must have a Monitor.
func (s *Simulator) SetMonitor(id FieldID) error {
	if !s.valid(id) {
		return fmt.Errorf("monitor %d: %w", id, ErrUnknownField)
	}
	if s.fields[id].Monitor() == nil {
		return fmt.Errorf("monitor %q: %w", s.fields[id].Name, ErrRoleCapability)
	}
	s.monitor = id
	return nil
}

// SetFeedback assigns the delayed-feedback receiver role. The field must
// have a DelayQueue.
func (s *Simulator) SetFeedback(id FieldID) error {
	if !s.valid(id) {
		return fmt.Errorf("feedback %d: %w", id, ErrUnknownField)
	}
	if s.fields[id].DelayQueue() == nil {
		return fmt.Errorf("feedback %q: %w", s.fields[id].Name, ErrRoleCapability)
	}
	s.feedback = id
	return nil
}

// MonitorField returns the monitor role's field id, or NoField.
func (s *Simulator) MonitorField() FieldID { return s.monitor }

// FeedbackField returns the feedback role's field id, or NoField.
func (s *Simulator) FeedbackField() FieldID { return s.feedback }

// OnFiring registers a callback invoked for every delivered feedback event.
func (s *Simulator) OnFiring(fn func(Firing)) {
	s.onFiring = append(s.onFiring, fn)
}

// Activation serves the activation published at the start of the current
// timestep.
func (s *Simulator) Activation(id FieldID) ([]float64, bool) {
	if !s.valid(id) {
		return nil, false
	}
	return s.published[id], true
}

// Len returns the number of timesteps in the shared time grid.
func (s *Simulator) Len() int {
	if len(s.fields) == 0 {
		return 0
	}
	return s.fields[0].Time.Len()
}

// Next returns the index of the next timestep to run.
func (s *Simulator) Next() int { return s.next }

// Step runs one timestep.
func (s *Simulator) Step() error {
	if len(s.fields) == 0 {
		return errors.New("no fields registered")
	}
	i := s.next
	if i >= s.Len() {
		return fmt.Errorf("%w: time grid exhausted at %d", ErrStepOrder, i)
	}
	for id, f := range s.fields {
		copy(s.published[id], f.activation)
	}

	for id, f := range s.fields {
		if FieldID(id) == s.feedback {
			continue
		}
		if err := f.Step(i, s); err != nil {
			return fmt.Errorf("step %d phase A: %w", i, err)
		}
	}

	var crossings []Crossing
	if s.monitor != NoField {
		m := s.fields[s.monitor]
		crossings = m.CheckCrossings(i)
		for _, c := range crossings {
			Opsf("crossing: field=%q x=%g step=%d", m.Name, c.Position, c.Index)
		}
		s.crossings = append(s.crossings, crossings...)
	}
	if s.feedback != NoField {
		fb := s.fields[s.feedback]
		if ev, ok := fb.Deliver(i, crossings); ok {
			Opsf("firing: field=%q x=%g crossed=%d fired=%d delay=%d",
				fb.Name, ev.Position, ev.CrossingIndex, ev.FiringIndex, ev.Delay)
			s.firings = append(s.firings, ev)
			for _, fn := range s.onFiring {
				fn(ev)
			}
		}
		if err := fb.Step(i, s); err != nil {
			return fmt.Errorf("step %d phase B: %w", i, err)
		}
	}

	s.next++
	return nil
}

// Run steps every remaining timestep. There is no early termination.
func (s *Simulator) Run() error {
	return s.RunContext(context.Background())
}

// RunContext is Run with cancellation checked between timesteps. A
// cancelled run keeps every step taken so far and can be resumed.
func (s *Simulator) RunContext(ctx context.Context) error {
	n := s.Len()
	Opsf("run: fields=%d steps=%d monitor=%d feedback=%d", len(s.fields), n, s.monitor, s.feedback)
	for s.next < n {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run stopped at step %d: %w", s.next, err)
		}
		if err := s.Step(); err != nil {
			return err
		}
	}
	Opsf("run complete: crossings=%d firings=%d", len(s.crossings), len(s.firings))
	return nil
}

// Crossings returns every crossing detected so far, in detection order.
func (s *Simulator) Crossings() []Crossing {
	return append([]Crossing(nil), s.crossings...)
}

// Firings returns every delivered feedback event, in firing order.
func (s *Simulator) Firings() []Firing {
	return append([]Firing(nil), s.firings...)
}
