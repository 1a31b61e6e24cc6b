package harness

import (
	"github.com/roach88/cutline/internal/playback"
	"github.com/roach88/cutline/internal/timeline"
)

// TraceEvent is one dispatched event as seen by the harness.
type TraceEvent struct {
	Seq    int64  `json:"seq"`
	Type   string `json:"type"`
	Origin string `json:"origin"` // "external" or "internal"

	// Data is the payload round-tripped through JSON, so maps hold
	// float64 numbers and nested maps regardless of the Go payload type.
	Data any `json:"data,omitempty"`

	// Summary is the one-line rendering used in golden traces.
	Summary string `json:"summary,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`

	// Timeline and State are read after the last step.
	Timeline *timeline.Timeline     `json:"timeline"`
	State    playback.PlaybackState `json:"state"`
}

// NewResult creates a passing result with an empty trace.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
