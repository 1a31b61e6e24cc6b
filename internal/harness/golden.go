package harness

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/cutline/internal/event"
	"github.com/roach88/cutline/internal/playback"
	"github.com/roach88/cutline/internal/session"
)

// FormatTrace renders a trace as golden text: a header naming the scenario,
// then one line per event of the form "origin type summary". Sequence
// numbers are left out because filtered high-rate events still consume them.
func FormatTrace(name string, trace []TraceEvent) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", name)
	for _, ev := range trace {
		b.WriteString(ev.Origin)
		b.WriteByte(' ')
		b.WriteString(ev.Type)
		if ev.Summary != "" {
			b.WriteByte(' ')
			b.WriteString(ev.Summary)
		}
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// RunWithGolden runs a scenario, fails the test on any scenario error, and
// compares the trace against testdata/golden/{name}.golden.
//
// To regenerate golden files:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, s *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(s)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, s.Name, result)
	return result, nil
}

// AssertGolden compares an existing result's trace against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, FormatTrace(name, result.Trace))
}

// summarize renders the fields of an event that matter when reading a trace.
func summarize(ev event.Event) string {
	switch d := ev.Data.(type) {
	case nil:
		return ""
	case json.RawMessage:
		return string(d)
	case session.TimelineChange:
		return fmt.Sprintf("op=%s version=%d clips=%d total=%s",
			d.Op, d.Version, d.Timeline.Len(), num(d.TotalDuration))
	case session.ClipRemoval:
		return fmt.Sprintf("index=%d id=%s", d.Index, d.Clip.ID)
	case playback.StateChange:
		return fmt.Sprintf("%s at=%s index=%d clip=%s", d.State, num(d.CurrentTime), d.Index, d.ClipID)
	case playback.Cursor:
		return fmt.Sprintf("at=%s index=%d", num(d.GlobalSecond), d.Index)
	case playback.Frame:
		return fmt.Sprintf("clip=%s local=%s", d.ClipID, num(d.LocalTime))
	case playback.VolumeChange:
		return fmt.Sprintf("volume=%s requested=%s", num(d.Volume), num(d.Requested))
	case playback.SpeedChange:
		return fmt.Sprintf("speed=%s requested=%s", num(d.Speed), num(d.Requested))
	case playback.ResourceFailure:
		return fmt.Sprintf("clip=%s index=%d ref=%s", d.ClipID, d.Index, d.Ref)
	case event.Failure:
		return fmt.Sprintf("%s on %s", d.Code, d.Intent)
	default:
		raw, err := json.Marshal(d)
		if err != nil {
			return fmt.Sprint(d)
		}
		return string(raw)
	}
}

// num formats seconds with the fewest digits that round-trip, rounded to
// the microsecond so float drift from tick accumulation does not leak into
// golden files.
func num(f float64) string {
	r, _ := strconv.ParseFloat(strconv.FormatFloat(f, 'f', 6, 64), 64)
	return strconv.FormatFloat(r, 'f', -1, 64)
}
