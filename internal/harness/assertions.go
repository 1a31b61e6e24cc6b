package harness

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
)

// floatTolerance absorbs accumulated tick drift in numeric comparisons.
const floatTolerance = 1e-6

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s %s\n", i+1, ev.Origin, ev.Type, ev.Summary)
		}
	}
	return buf.String()
}

func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if ev.Type == a.Event && matchSubset(ev.Data, a.Data) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("event %s with data %v", a.Event, a.Data),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that a.Events occur as a subsequence of the
// trace. Repeated names must occur that many times.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	next := 0
	for _, ev := range trace {
		if next < len(a.Events) && ev.Type == a.Events[next] {
			next++
		}
	}
	if next == len(a.Events) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceOrder,
		Expected: fmt.Sprintf("events in order: %v", a.Events),
		Actual:   fmt.Sprintf("matched %d of %d, missing %s after %v", next, len(a.Events), a.Events[next], a.Events[:next]),
		Trace:    trace,
	}
}

func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Type == a.Event {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, a.Event),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalTimeline matches a.Expect against the final snapshot. Keys:
// version, clips (count), total_duration, ids.
func assertFinalTimeline(result *Result, a Assertion) error {
	actual := map[string]any{}
	if tl := result.Timeline; tl != nil {
		ids := make([]any, 0, tl.Len())
		for _, c := range tl.Clips() {
			ids = append(ids, c.ID)
		}
		actual["version"] = float64(tl.Version())
		actual["clips"] = float64(tl.Len())
		actual["total_duration"] = tl.TotalDuration()
		actual["ids"] = ids
	}
	return compareFields(AssertFinalTimeline, actual, a.Expect)
}

// assertFinalState matches a.Expect against the final playback state,
// keyed by its JSON field names.
func assertFinalState(result *Result, a Assertion) error {
	actual, _ := normalize(result.State).(map[string]any)
	return compareFields(AssertFinalState, actual, a.Expect)
}

func compareFields(typ string, actual, expect map[string]any) error {
	keys := make([]string, 0, len(expect))
	for k := range expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		got, ok := actual[key]
		if !ok {
			return &AssertionError{
				Type:     typ,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("fields present: %v", sortedKeys(actual)),
			}
		}
		if !valuesEqual(got, expect[key]) {
			return &AssertionError{
				Type:     typ,
				Expected: fmt.Sprintf("field %q = %v", key, expect[key]),
				Actual:   fmt.Sprintf("field %q = %v", key, got),
			}
		}
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// matchSubset reports whether every key of expected is present in actual
// with an equal value. Nested maps match as subsets too.
func matchSubset(actual any, expected map[string]any) bool {
	if len(expected) == 0 {
		return true
	}
	m, ok := actual.(map[string]any)
	if !ok {
		return false
	}
	for key, want := range expected {
		got, exists := m[key]
		if !exists || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

// valuesEqual compares a normalized actual value with a YAML-decoded
// expected one. Numbers compare by value across int and float types.
func valuesEqual(actual, expected any) bool {
	if af, ok := toFloat(actual); ok {
		ef, ok := toFloat(expected)
		return ok && math.Abs(af-ef) <= floatTolerance
	}

	switch exp := expected.(type) {
	case map[string]any:
		return matchSubset(actual, exp)
	case []any:
		got, ok := actual.([]any)
		if !ok || len(got) != len(exp) {
			return false
		}
		for i := range exp {
			if !valuesEqual(got[i], exp[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(actual, expected)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// EvaluateAssertions evaluates every assertion and returns the messages of
// those that failed.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertFinalTimeline:
			err = assertFinalTimeline(result, a)
		case AssertFinalState:
			err = assertFinalState(result, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}
