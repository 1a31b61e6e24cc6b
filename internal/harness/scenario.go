package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cutline/internal/event"
	"github.com/roach88/cutline/internal/playback"
	"github.com/roach88/cutline/internal/project"
)

// Scenario is a scripted session: a starting timeline, a list of steps, and
// assertions on the resulting trace, timeline and playback state.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Project is a project file whose clips seed the timeline. Relative
	// paths are resolved against the scenario file.
	Project string `yaml:"project,omitempty"`

	// Clips seeds the timeline inline. Used when Project is empty.
	Clips []project.ClipSpec `yaml:"clips,omitempty"`

	Playback PlaybackSetup `yaml:"playback,omitempty"`

	// HighRate keeps cursor and render-frame events in the trace.
	HighRate bool `yaml:"high_rate,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// PlaybackSetup configures the scheduler for a scenario.
type PlaybackSetup struct {
	EndPolicy    string        `yaml:"end_policy,omitempty"`
	TickInterval time.Duration `yaml:"tick_interval,omitempty"`
}

// Step either submits one intent or advances the clock. Exactly one of
// Intent and Advance is set.
type Step struct {
	Intent string         `yaml:"intent,omitempty"`
	Data   map[string]any `yaml:"data,omitempty"`

	// Advance moves the manual clock forward one tick at a time, running
	// everything each tick triggers.
	Advance time.Duration `yaml:"advance,omitempty"`

	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause states how an intent step must end.
type ExpectClause struct {
	// Case is "ok" or the code of the operation.failed the intent causes.
	Case string `yaml:"case"`
}

// CaseOK is the expect case of an intent that was not rejected.
const CaseOK = "ok"

// Assertion validates the trace or the final state.
type Assertion struct {
	Type string `yaml:"type"`

	// Event is the event type (trace_contains, trace_count).
	Event string `yaml:"event,omitempty"`

	// Data is matched as a subset of the event payload (trace_contains).
	Data map[string]any `yaml:"data,omitempty"`

	// Events must appear in this order, not necessarily adjacent
	// (trace_order).
	Events []string `yaml:"events,omitempty"`

	// Count is the exact number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Expect is matched as a subset of the final timeline or playback
	// state (final_timeline, final_state).
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion types.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalTimeline = "final_timeline"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if s.Project != "" && !filepath.IsAbs(s.Project) {
		s.Project = filepath.Join(filepath.Dir(path), s.Project)
	}

	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Project != "" && len(s.Clips) > 0 {
		return fmt.Errorf("project and clips are mutually exclusive")
	}
	if s.Project != "" {
		if _, err := os.Stat(s.Project); err != nil {
			return fmt.Errorf("project file not found: %s", s.Project)
		}
	}
	if s.Playback.EndPolicy != "" {
		if _, err := playback.ParseEndPolicy(s.Playback.EndPolicy); err != nil {
			return fmt.Errorf("playback: %w", err)
		}
	}
	if s.Playback.TickInterval < 0 {
		return fmt.Errorf("playback: tick_interval must be positive")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step) error {
	switch {
	case st.Intent == "" && st.Advance == 0:
		return fmt.Errorf("steps[%d]: one of intent or advance is required", index)
	case st.Intent != "" && st.Advance != 0:
		return fmt.Errorf("steps[%d]: intent and advance are mutually exclusive", index)
	case st.Advance < 0:
		return fmt.Errorf("steps[%d]: advance must be positive", index)
	}
	if st.Intent != "" && !event.IsIntent(st.Intent) {
		return fmt.Errorf("steps[%d]: unknown intent %q", index, st.Intent)
	}
	if st.Expect != nil {
		if st.Intent == "" {
			return fmt.Errorf("steps[%d]: expect applies to intent steps only", index)
		}
		if st.Expect.Case == "" {
			return fmt.Errorf("steps[%d].expect: case is required", index)
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalTimeline, AssertFinalState:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
