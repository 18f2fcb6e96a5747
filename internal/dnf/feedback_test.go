package dnf

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelayQueueFiresExactlyAtDueIndex(t *testing.T) {
	t.Parallel()

	q, err := NewDelayQueue(FeedbackConfig{Delays: []int{14}, Amplitude: 3, Width: 1.5})
	require.NoError(t, err)
	q.Enqueue([]Crossing{{Position: 0, Index: 5}})

	for i := 5; i < 19; i++ {
		_, ok := q.Pop(i)
		require.False(t, ok, "fired early at %d", i)
	}
	ev, ok := q.Pop(19)
	require.True(t, ok)
	assert.Equal(t, PendingEvent{Position: 0, Index: 5, Delay: 14}, ev)
	assert.Empty(t, q.Pending())
}

func TestDelayQueueInsertionOrderAmongDueEvents(t *testing.T) {
	t.Parallel()

	q, err := NewDelayQueue(FeedbackConfig{Delays: []int{5, 1}, Amplitude: 3, Width: 1.5})
	require.NoError(t, err)
	q.Enqueue([]Crossing{{Position: 10, Index: 2}, {Position: -10, Index: 2}})

	// both due at 10; the second became due earlier but was inserted later
	first, ok := q.Pop(10)
	require.True(t, ok)
	assert.Equal(t, 10.0, first.Position)

	second, ok := q.Pop(10)
	require.True(t, ok)
	assert.Equal(t, -10.0, second.Position)

	_, ok = q.Pop(10)
	assert.False(t, ok)
}

func TestDelayQueueSkipsNotYetDueHead(t *testing.T) {
	t.Parallel()

	q, err := NewDelayQueue(FeedbackConfig{Delays: []int{10, 1}, Amplitude: 3, Width: 1.5})
	require.NoError(t, err)
	q.Enqueue([]Crossing{{Position: 1, Index: 0}, {Position: 2, Index: 0}})

	ev, ok := q.Pop(1)
	require.True(t, ok)
	assert.Equal(t, 2.0, ev.Position)
	assert.Equal(t, []PendingEvent{{Position: 1, Index: 0, Delay: 10}}, q.Pending())
}

func TestDelayAssignment(t *testing.T) {
	t.Parallel()

	batches := [][]Crossing{
		{{Position: 0, Index: 3}, {Position: 30, Index: 3}},
		{{Position: -40, Index: 8}},
		{{Position: 5, Index: 9}, {Position: 6, Index: 9}},
	}
	tests := []struct {
		name       string
		assignment DelayAssignment
		delays     []int
		want       []int
	}{
		{"sequential", DelaySequential, []int{14, 12, 10}, []int{14, 12, 10, 10, 10}},
		{"per batch", DelayPerBatch, []int{14, 12, 10}, []int{14, 12, 14, 14, 12}},
		{"empty list means immediate", DelaySequential, nil, []int{0, 0, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := NewDelayQueue(FeedbackConfig{Delays: tt.delays, Amplitude: 1, Width: 1, Assignment: tt.assignment})
			require.NoError(t, err)
			for _, b := range batches {
				q.Enqueue(b)
			}
			var got []int
			for _, e := range q.Pending() {
				got = append(got, e.Delay)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("delays mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNewDelayQueueValidation(t *testing.T) {
	t.Parallel()

	_, err := NewDelayQueue(FeedbackConfig{Delays: []int{1, -2}, Width: 1})
	assert.Error(t, err)
	_, err = NewDelayQueue(FeedbackConfig{Delays: []int{1}, Width: 0})
	assert.Error(t, err)

	delays := []int{4}
	q, err := NewDelayQueue(FeedbackConfig{Delays: delays, Width: 1})
	require.NoError(t, err)
	delays[0] = 99
	assert.Equal(t, []int{4}, q.Config().Delays, "delays are copied")
}

func TestParseDelayAssignment(t *testing.T) {
	t.Parallel()

	for s, want := range map[string]DelayAssignment{
		"":           DelaySequential,
		"sequential": DelaySequential,
		"per_batch":  DelayPerBatch,
	} {
		got, err := ParseDelayAssignment(s)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		if s != "" {
			assert.Equal(t, s, got.String())
		}
	}
	_, err := ParseDelayAssignment("by_position")
	assert.Error(t, err)
}

func TestDeliverFiresAtMostOnePerStep(t *testing.T) {
	t.Parallel()

	f := newTestField(t, FieldConfig{Name: "robot", Threshold: 100})
	assert.Nil(t, f.DelayQueue())
	_, ok := f.Deliver(0, []Crossing{{Position: 0, Index: 0}})
	assert.False(t, ok, "field without a queue never fires")

	_, err := f.EnableFeedback(FeedbackConfig{Delays: []int{0}, Amplitude: 3, Width: 1.5})
	require.NoError(t, err)

	ev, ok := f.Deliver(2, []Crossing{{Position: -3, Index: 2}, {Position: 3, Index: 2}})
	require.True(t, ok)
	assert.Equal(t, Firing{Position: -3, CrossingIndex: 2, FiringIndex: 2, Delay: 0}, ev)
	u := f.Activation()
	assert.InDelta(t, 3.0, u[f.Space.Nearest(-3)], 1e-9)
	assert.Less(t, u[f.Space.Nearest(3)], 0.01, "second event waits")

	ev, ok = f.Deliver(3, nil)
	require.True(t, ok)
	assert.Equal(t, Firing{Position: 3, CrossingIndex: 2, FiringIndex: 3, Delay: 0}, ev)

	_, ok = f.Deliver(4, nil)
	assert.False(t, ok)
}

func TestEnableFeedbackRejectsBadConfig(t *testing.T) {
	t.Parallel()

	f := newTestField(t, FieldConfig{Name: "robot"})
	_, err := f.EnableFeedback(FeedbackConfig{Delays: []int{-1}, Width: 1})
	assert.Error(t, err)
	assert.Nil(t, f.DelayQueue())
}
