package harness

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/cutline/internal/edit"
	"github.com/roach88/cutline/internal/event"
	"github.com/roach88/cutline/internal/playback"
	"github.com/roach88/cutline/internal/project"
	"github.com/roach88/cutline/internal/session"
	"github.com/roach88/cutline/internal/sim"
	"github.com/roach88/cutline/internal/testutil"
	"github.com/roach88/cutline/internal/timeline"
)

// IDPrefix prefixes every clip ID minted during a scenario: c-1, c-2, ...
const IDPrefix = "c"

// Harness drives one session on a manual clock.
type Harness struct {
	router *event.Router
	clock  *testutil.ManualClock
	sess   *session.Session
	logger *slog.Logger
	events []event.Event
}

// Option configures Run.
type Option func(*runConfig)

type runConfig struct {
	logger *slog.Logger
}

// WithLogger sets the logger handed to the router and session. Default:
// logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) { c.logger = l }
}

// Run executes a scenario against a fresh session and evaluates its
// assertions.
//
// Everything runs on the calling goroutine: intents are dispatched with
// Router.Drain, and clock advances fire scheduler ticks one interval at a
// time. Clip IDs come from a sequence generator, so traces are identical
// across runs.
//
// The returned error reports a scenario that could not be run at all;
// failed expectations are recorded in the Result.
func Run(s *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&cfg)
	}

	ids := edit.NewSequenceGenerator(IDPrefix)
	tl, file, err := seedTimeline(s, ids)
	if err != nil {
		return nil, err
	}

	h := &Harness{
		router: event.NewRouter(event.WithLogger(cfg.logger)),
		clock:  testutil.NewManualClock(),
		logger: cfg.logger,
	}
	h.router.Subscribe(event.Wildcard, func(ev event.Event) error {
		h.events = append(h.events, ev)
		return nil
	})

	popts, err := playbackOptions(s.Playback, file, h.clock)
	if err != nil {
		return nil, err
	}
	h.sess = session.New(h.router, sim.NewOpener(h.clock),
		session.WithLogger(cfg.logger),
		session.WithIDGenerator(ids),
		session.WithTimeline(tl),
		session.WithPlaybackOptions(popts...),
	)

	result := NewResult()
	for i, step := range s.Steps {
		if err := h.execute(i, step, result); err != nil {
			return nil, err
		}
	}

	result.Trace = buildTrace(h.events, s.HighRate)
	result.Timeline = h.sess.Timeline()
	result.State = h.sess.Scheduler().State()
	h.sess.Close()
	h.router.Drain()

	for _, msg := range EvaluateAssertions(result, s.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func seedTimeline(s *Scenario, ids edit.IDGenerator) (*timeline.Timeline, *project.File, error) {
	file := &project.File{Name: s.Name, Clips: s.Clips}
	if s.Project != "" {
		loaded, err := project.Load(s.Project)
		if err != nil {
			return nil, nil, fmt.Errorf("load project: %w", err)
		}
		file = loaded
	}
	if len(file.Clips) == 0 {
		return timeline.Empty(), file, nil
	}
	tl, err := file.Timeline(ids)
	if err != nil {
		return nil, nil, fmt.Errorf("seed timeline: %w", err)
	}
	return tl, file, nil
}

func playbackOptions(ps PlaybackSetup, file *project.File, c *testutil.ManualClock) ([]playback.Option, error) {
	opts := []playback.Option{playback.WithClock(c)}
	if ps.TickInterval > 0 {
		opts = append(opts, playback.WithTickInterval(ps.TickInterval))
	}

	policy := ps.EndPolicy
	if policy == "" {
		policy = file.EndPolicy
	}
	if policy != "" {
		p, err := playback.ParseEndPolicy(policy)
		if err != nil {
			return nil, err
		}
		opts = append(opts, playback.WithEndPolicy(p))
	}
	if file.DistancePerTime > 0 {
		opts = append(opts, playback.WithDistancePerTime(file.DistancePerTime))
	}
	return opts, nil
}

func (h *Harness) execute(index int, step Step, result *Result) error {
	if step.Advance > 0 {
		h.advance(step.Advance)
		return nil
	}

	var data any
	if step.Data != nil {
		raw, err := json.Marshal(step.Data)
		if err != nil {
			return fmt.Errorf("steps[%d]: encode data: %w", index, err)
		}
		data = json.RawMessage(raw)
	}

	before := len(h.events)
	if err := h.router.Enqueue(event.NewIntent(step.Intent, data)); err != nil {
		return fmt.Errorf("steps[%d]: %w", index, err)
	}
	h.router.Drain()

	actual := outcome(h.events[before:], step.Intent)
	h.logger.Debug("step completed", "step", index, "intent", step.Intent, "case", actual)

	if step.Expect != nil && step.Expect.Case != actual {
		result.AddError(fmt.Sprintf("steps[%d] %s: expected case %s, got %s",
			index, step.Intent, step.Expect.Case, actual))
	}
	return nil
}

// advance moves the clock by d in tick-sized increments, draining after
// each so posted callbacks run before the next tick is due.
func (h *Harness) advance(d time.Duration) {
	tick := h.sess.Scheduler().TickInterval()
	for d > 0 {
		step := tick
		if d < step {
			step = d
		}
		h.clock.Advance(step)
		h.router.Drain()
		d -= step
	}
}

// outcome finds the intent among events and reports CaseOK or the code of
// the operation.failed it caused.
func outcome(events []event.Event, intent string) string {
	var seq int64
	for _, ev := range events {
		if ev.Origin == event.External && ev.Type == intent {
			seq = ev.Seq
			break
		}
	}
	for _, ev := range events {
		if ev.Type != event.OperationFailed {
			continue
		}
		if f, ok := ev.Data.(event.Failure); ok && f.IntentSeq == seq {
			return f.Code
		}
	}
	return CaseOK
}

func buildTrace(events []event.Event, highRate bool) []TraceEvent {
	trace := make([]TraceEvent, 0, len(events))
	for _, ev := range events {
		if !highRate && isHighRate(ev.Type) {
			continue
		}
		trace = append(trace, TraceEvent{
			Seq:     ev.Seq,
			Type:    ev.Type,
			Origin:  ev.Origin.String(),
			Data:    normalize(ev.Data),
			Summary: summarize(ev),
		})
	}
	return trace
}

func isHighRate(typ string) bool {
	return typ == event.PlaybackCursorUpdated || typ == event.PlaybackRenderFrame
}

// normalize round-trips v through JSON.
func normalize(v any) any {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return string(raw)
	}
	return out
}
