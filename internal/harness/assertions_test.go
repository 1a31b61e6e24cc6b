package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cutline/internal/playback"
	"github.com/roach88/cutline/internal/timeline"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Seq: 1, Type: "clip.delete", Origin: "external", Data: map[string]any{"id": "c-2"}},
		{Seq: 2, Type: "timeline.changed", Origin: "internal", Data: map[string]any{
			"op": "clip.delete", "version": float64(3), "total_duration": 4.5,
		}},
		{Seq: 4, Type: "clip.removed", Origin: "internal", Data: map[string]any{
			"index": float64(1), "clip": map[string]any{"id": "c-2", "kind": "image"},
		}},
		{Seq: 5, Type: "timeline.changed", Origin: "internal", Data: map[string]any{"op": "clip.add"}},
	}
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()

	tests := []struct {
		name string
		a    Assertion
		pass bool
	}{
		{"type only", Assertion{Event: "clip.removed"}, true},
		{"int matches float", Assertion{Event: "timeline.changed", Data: map[string]any{"version": 3}}, true},
		{"float value", Assertion{Event: "timeline.changed", Data: map[string]any{"total_duration": 4.5}}, true},
		{"nested subset", Assertion{Event: "clip.removed", Data: map[string]any{"clip": map[string]any{"id": "c-2"}}}, true},
		{"later occurrence", Assertion{Event: "timeline.changed", Data: map[string]any{"op": "clip.add"}}, true},
		{"wrong value", Assertion{Event: "clip.removed", Data: map[string]any{"index": 0}}, false},
		{"missing key", Assertion{Event: "clip.delete", Data: map[string]any{"index": 1}}, false},
		{"absent type", Assertion{Event: "operation.failed"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertTraceContains(trace, tt.a)
			if tt.pass {
				assert.NoError(t, err)
				return
			}
			var ae *AssertionError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, AssertTraceContains, ae.Type)
		})
	}
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceOrder(trace, Assertion{
		Events: []string{"clip.delete", "timeline.changed", "clip.removed"},
	}))
	assert.NoError(t, assertTraceOrder(trace, Assertion{
		Events: []string{"timeline.changed", "clip.removed", "timeline.changed"},
	}))

	err := assertTraceOrder(trace, Assertion{Events: []string{"clip.removed", "clip.delete"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing clip.delete")

	err = assertTraceOrder(trace, Assertion{Events: []string{"clip.removed", "clip.removed"}})
	require.Error(t, err)
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceCount(trace, Assertion{Event: "timeline.changed", Count: 2}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Event: "operation.failed", Count: 0}))

	err := assertTraceCount(trace, Assertion{Event: "timeline.changed", Count: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 occurrences")
}

func TestAssertFinalTimeline(t *testing.T) {
	tl, err := timeline.New([]timeline.Clip{
		{ID: "a", Kind: timeline.KindImage, Source: timeline.Source{Ref: "a.png"}, Duration: 2},
		{ID: "b", Kind: timeline.KindImage, Source: timeline.Source{Ref: "b.png"}, Duration: 0.5},
	})
	require.NoError(t, err)
	result := &Result{Timeline: tl}

	assert.NoError(t, assertFinalTimeline(result, Assertion{Expect: map[string]any{
		"version": 0, "clips": 2, "total_duration": 2.5, "ids": []any{"a", "b"},
	}}))

	err = assertFinalTimeline(result, Assertion{Expect: map[string]any{"ids": []any{"b", "a"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `field "ids"`)

	err = assertFinalTimeline(result, Assertion{Expect: map[string]any{"clip_count": 2}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `field "clip_count" to exist`)
}

func TestAssertFinalState(t *testing.T) {
	result := &Result{State: playback.PlaybackState{
		State:       playback.Paused,
		CurrentTime: 1.2500000001,
		Volume:      0.5,
		Speed:       1,
		Index:       1,
		ClipID:      "c-2",
	}}

	assert.NoError(t, assertFinalState(result, Assertion{Expect: map[string]any{
		"state": "paused", "current_time": 1.25, "index": 1, "clip_id": "c-2", "volume": 0.5, "playing": false,
	}}))

	err := assertFinalState(result, Assertion{Expect: map[string]any{"state": "playing"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Assertion failed: final_state")
}

func TestEvaluateAssertions(t *testing.T) {
	result := &Result{Trace: sampleTrace()}
	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceCount, Event: "clip.removed", Count: 1},
		{Type: AssertTraceCount, Event: "clip.removed", Count: 2},
		{Type: "bogus"},
	})
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "trace_count")
	assert.Contains(t, errs[1], `unknown assertion type "bogus"`)
}

func TestAssertionError_ListsTrace(t *testing.T) {
	err := &AssertionError{
		Type:     AssertTraceCount,
		Expected: "1",
		Actual:   "0",
		Trace:    []TraceEvent{{Type: "clip.add", Origin: "external", Summary: "{}"}},
	}
	assert.Contains(t, err.Error(), "[1] external clip.add {}")
}
