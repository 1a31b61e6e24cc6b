package render

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/roach88/cutline/internal/event"
	"github.com/roach88/cutline/internal/playback"
	"github.com/roach88/cutline/internal/session"
)

// Terminal renders playback as it happens.
//
// On a terminal it draws a progress bar over the timeline's duration. On any
// other writer it prints one line per state change, clip change and failure,
// which keeps piped output readable and testable.
type Terminal struct {
	w     io.Writer
	fancy bool

	mu    sync.Mutex
	bar   *progressbar.ProgressBar
	total float64
	index int
	state playback.State
	subs  []*event.Subscription
}

// TerminalOption configures a Terminal.
type TerminalOption func(*Terminal)

// WithProgressBar forces the progress bar on or off.
func WithProgressBar(on bool) TerminalOption {
	return func(t *Terminal) { t.fancy = on }
}

// NewTerminal creates a renderer writing to w. The progress bar is used when
// w is a terminal.
func NewTerminal(w io.Writer, opts ...TerminalOption) *Terminal {
	t := &Terminal{w: w, fancy: IsTerminal(w), index: -1}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Attach subscribes to the events the renderer draws. The latest timeline is
// replayed so the bar starts with the right length.
func (t *Terminal) Attach(r *event.Router) {
	t.subs = append(t.subs,
		r.Subscribe(event.TimelineChanged, t.onTimeline, event.WithReplay()),
		r.Subscribe(event.PlaybackStateChanged, t.onState),
		r.Subscribe(event.PlaybackCursorUpdated, t.onCursor),
		r.Subscribe(event.PlaybackResourceFailed, t.onFailure),
		r.Subscribe(event.OperationFailed, t.onOperationFailed),
	)
}

// Detach unsubscribes and finishes the bar.
func (t *Terminal) Detach() {
	for _, s := range t.subs {
		s.Dispose()
	}
	t.subs = nil

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bar != nil {
		_ = t.bar.Finish()
		fmt.Fprintln(t.w)
	}
}

func (t *Terminal) onTimeline(ev event.Event) error {
	change, ok := ev.Data.(session.TimelineChange)
	if !ok {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total = change.TotalDuration
	if t.bar != nil {
		t.bar.ChangeMax64(millis(t.total))
	}
	if !t.fancy {
		fmt.Fprintf(t.w, "timeline v%d: %d clips, %.3fs\n", change.Version, change.Timeline.Len(), change.TotalDuration)
	}
	return nil
}

func (t *Terminal) onState(ev event.Event) error {
	sc, ok := ev.Data.(playback.StateChange)
	if !ok {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = sc.State
	if t.fancy {
		t.ensureBar()
		t.bar.Describe(sc.State.String())
		return nil
	}
	fmt.Fprintf(t.w, "%-8s at %.3fs clip %d %s\n", sc.State, sc.CurrentTime, sc.Index, sc.ClipID)
	return nil
}

func (t *Terminal) onCursor(ev event.Event) error {
	c, ok := ev.Data.(playback.Cursor)
	if !ok {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fancy {
		t.ensureBar()
		return t.bar.Set64(millis(c.GlobalSecond))
	}
	if c.Index != t.index && t.state == playback.Playing {
		fmt.Fprintf(t.w, "  -> clip %d %s at %.3fs\n", c.Index, c.ClipID, c.GlobalSecond)
	}
	t.index = c.Index
	return nil
}

func (t *Terminal) onFailure(ev event.Event) error {
	f, ok := ev.Data.(playback.ResourceFailure)
	if !ok {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clearBar()
	fmt.Fprintf(t.w, "  !! skipped clip %d %s (%s): %s\n", f.Index, f.ClipID, f.Ref, f.Reason)
	return nil
}

func (t *Terminal) onOperationFailed(ev event.Event) error {
	f, ok := ev.Data.(event.Failure)
	if !ok {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clearBar()
	fmt.Fprintf(t.w, "  !! %s rejected: %s\n", f.Intent, f.Message)
	return nil
}

func (t *Terminal) ensureBar() {
	if t.bar != nil {
		return
	}
	t.bar = progressbar.NewOptions64(
		millis(t.total),
		progressbar.OptionSetWriter(t.w),
		progressbar.OptionSetWidth(Width(t.w)/2),
		progressbar.OptionSetTheme(progressbar.ThemeASCII),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionShowDescriptionAtLineEnd(),
		progressbar.OptionThrottle(50*time.Millisecond),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func (t *Terminal) clearBar() {
	if t.bar != nil {
		_ = t.bar.Clear()
	}
}

func millis(sec float64) int64 {
	return int64(sec * 1000)
}
