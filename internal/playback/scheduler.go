// Package playback implements the scheduler that plays a timeline as one
// continuous stream.
//
// The scheduler owns at most one live Resource and at most one tick chain.
// It never blocks: commands return immediately and their effects are
// observed through events emitted on the Bus.
//
// CONCURRENCY:
//
// Every method, and every timer or resource callback, runs on the bus's
// dispatch goroutine. Timer and resource callbacks are re-posted through
// Bus.Post, then checked against a token before acting:
//   - chain: bumped whenever a tick chain starts or is cancelled; a tick
//     carrying an older chain value does nothing
//   - resource token: bumped on every Open; callbacks from a resource that
//     has since been closed do nothing
//
// So starting a new chain mechanically cancels the old one, and a torn-down
// resource can never emit.
package playback

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/roach88/cutline/internal/clock"
	"github.com/roach88/cutline/internal/event"
	"github.com/roach88/cutline/internal/timeline"
)

// Defaults for Scheduler options.
const (
	DefaultTickInterval    = time.Second / 30
	DefaultDistancePerTime = 100.0
	DefaultTolerance       = 0.005
)

// Bus is the dispatch surface the scheduler needs. Implemented by
// *event.Router.
type Bus interface {
	Emit(ev event.Event) error
	Post(fn func()) error
}

// TimelineSource returns the latest snapshot. The scheduler calls it at the
// start of every operation and never caches the result.
type TimelineSource interface {
	Timeline() *timeline.Timeline
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the wall clock. Default: clock.Real{}.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithTickInterval sets the delay between cursor updates.
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tickInterval = d
		}
	}
}

// WithDistancePerTime sets pixels of cursor travel per second of playback.
func WithDistancePerTime(px float64) Option {
	return func(s *Scheduler) { s.distancePerTime = px }
}

// WithTolerance sets how close to a clip's end counts as reaching it.
func WithTolerance(sec float64) Option {
	return func(s *Scheduler) {
		if sec >= 0 {
			s.tolerance = sec
		}
	}
}

// WithEndPolicy sets what happens after the last clip.
func WithEndPolicy(p EndPolicy) Option {
	return func(s *Scheduler) { s.endPolicy = p }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// active is the one live resource and the clip it was opened for.
type active struct {
	token uint64
	clip  timeline.Clip
	res   Resource
	ready bool
}

// Scheduler is the playback state machine.
//
// Not safe for concurrent use: call it only from the bus dispatch goroutine.
type Scheduler struct {
	bus    Bus
	source TimelineSource
	opener Opener
	clock  clock.Clock
	logger *slog.Logger

	tickInterval    time.Duration
	distancePerTime float64
	tolerance       float64
	endPolicy       EndPolicy

	state PlaybackState
	// want is true from a play command until pause, stop or the end. It
	// covers the gap between Open and Ready, when State has not yet changed.
	want     bool
	active   *active
	tokens   uint64
	chain    uint64
	running  bool
	timer    clock.Timer
	lastTick time.Time
	failures int
}

// New creates a stopped scheduler.
func New(bus Bus, source TimelineSource, opener Opener, opts ...Option) *Scheduler {
	s := &Scheduler{
		bus:             bus,
		source:          source,
		opener:          opener,
		clock:           clock.Real{},
		logger:          slog.Default(),
		tickInterval:    DefaultTickInterval,
		distancePerTime: DefaultDistancePerTime,
		tolerance:       DefaultTolerance,
		endPolicy:       EndStop,
		state:           InitialState(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns a copy of the current playback state.
func (s *Scheduler) State() PlaybackState {
	return s.state
}

// ActiveClip returns the ID of the clip holding the live resource.
func (s *Scheduler) ActiveClip() (string, bool) {
	if s.active == nil {
		return "", false
	}
	return s.active.clip.ID, true
}

// TickInterval returns the configured tick interval.
func (s *Scheduler) TickInterval() time.Duration {
	return s.tickInterval
}

// Play starts or resumes playback from CurrentTime. From Stopped at the very
// end of the timeline it restarts at zero.
func (s *Scheduler) Play() error {
	s.accumulate()
	switch s.state.State {
	case Paused:
		return s.resume()
	case Stopped:
		if !s.want && s.state.CurrentTime >= s.source.Timeline().TotalDuration() {
			return s.PlayFrom(0)
		}
	}
	return s.PlayFrom(s.state.CurrentTime)
}

// PlayFrom tears down any active resource and chain, then plays from t.
// An unresolvable t is rejected and nothing changes.
func (s *Scheduler) PlayFrom(t float64) error {
	tl := s.source.Timeline()
	pos, ok := tl.Resolve(t)
	if !ok {
		return &Error{
			Code:    ErrCodeNotResolvable,
			Op:      "play",
			Message: fmt.Sprintf("time %v is not within [0, %v)", t, tl.TotalDuration()),
		}
	}

	s.teardown()
	s.failures = 0
	s.want = true
	s.openAt(pos.Index, t)
	return nil
}

// Pause freezes CurrentTime at the elapsed position and cancels the tick
// chain. The resource is paused, not closed.
func (s *Scheduler) Pause() error {
	if s.state.State != Playing && !s.want {
		return nil
	}
	s.accumulate()
	s.cancelChain()
	s.want = false

	if a := s.active; a != nil && a.ready {
		if err := a.res.Pause(); err != nil {
			s.logger.Warn("resource pause failed", "error", err, "clip", a.clip.ID)
		}
	}
	s.reposition(s.source.Timeline())
	s.setState(Paused)
	return nil
}

func (s *Scheduler) resume() error {
	tl := s.source.Timeline()
	pos, ok := tl.Resolve(s.state.CurrentTime)
	if !ok {
		return &Error{
			Code:    ErrCodeNotResolvable,
			Op:      "play",
			Message: fmt.Sprintf("paused at %v, outside [0, %v)", s.state.CurrentTime, tl.TotalDuration()),
		}
	}
	c, _ := tl.Clip(pos.Index)

	a := s.active
	if a == nil || !a.ready || a.clip.ID != c.ID || c.ThumbnailOnly {
		return s.PlayFrom(s.state.CurrentTime)
	}

	a.clip = c
	s.want = true
	if err := a.res.Seek(c.Source.In + pos.Local); err != nil {
		s.failed(a.clip, pos.Index, err)
		return nil
	}
	if err := a.res.Play(); err != nil {
		s.failed(a.clip, pos.Index, err)
		return nil
	}
	s.state.Index, s.state.Local, s.state.ClipID = pos.Index, pos.Local, c.ID
	s.setState(Playing)
	s.startChain()
	s.emitFrame()
	return nil
}

// Stop releases the active resource entirely. CurrentTime is kept.
func (s *Scheduler) Stop() error {
	s.accumulate()
	s.teardown()
	s.want = false
	s.reposition(s.source.Timeline())
	s.setState(Stopped)
	return nil
}

// SeekTo clamps t into [0, TotalDuration]. While playing it replays from
// the new time; otherwise it only moves CurrentTime.
func (s *Scheduler) SeekTo(t float64) error {
	tl := s.source.Timeline()
	t = tl.Clamp(t)

	if s.state.State == Playing || s.want {
		s.teardown()
		s.failures = 0
		pos, ok := tl.ResolveClamped(t)
		if !ok {
			s.finish(0)
			return nil
		}
		s.openAt(pos.Index, t)
		return nil
	}

	s.state.CurrentTime = t
	s.reposition(tl)
	s.emitCursor()
	return nil
}

// SetVolume clamps v to [0, 1], applies it, and confirms the applied value.
func (s *Scheduler) SetVolume(v float64) {
	applied := ClampVolume(v)
	s.state.Volume = applied
	if a := s.active; a != nil {
		a.res.SetVolume(applied)
	}
	requested := v
	if math.IsNaN(requested) {
		requested = applied
	}
	s.emit(event.PlaybackVolumeChanged, VolumeChange{Volume: applied, Requested: requested})
}

// SetSpeed applies one of Speeds (anything else becomes 1) and confirms the
// applied value. Time already elapsed is credited at the old speed.
func (s *Scheduler) SetSpeed(sp float64) {
	applied := ClampSpeed(sp)
	s.accumulate()
	s.state.Speed = applied
	if a := s.active; a != nil {
		a.res.SetSpeed(applied)
	}
	requested := sp
	if math.IsNaN(requested) {
		requested = applied
	}
	s.emit(event.PlaybackSpeedChanged, SpeedChange{Speed: applied, Requested: requested})
}

// Resync re-reads the snapshot after an edit.
//
// If the active clip survived, CurrentTime is re-anchored to its new start
// plus the same local offset; when the clip no longer reaches that offset,
// global time is kept and the clip covering it takes over. If it was removed, playback restarts at the
// clamped CurrentTime (or, when not playing, the stale resource is released).
func (s *Scheduler) Resync() {
	tl := s.source.Timeline()
	s.accumulate()

	if a := s.active; a != nil {
		if idx := tl.IndexOf(a.clip.ID); idx >= 0 {
			c, _ := tl.Clip(idx)
			local := s.state.CurrentTime - a.clip.Start()
			if local < 0 {
				local = 0
			}
			if local >= c.Duration-s.tolerance {
				s.shrunkPast(tl, idx, c.Start()+local)
				return
			}
			a.clip = c
			s.state.CurrentTime = c.Start() + local
			s.state.Index, s.state.Local, s.state.ClipID = idx, local, c.ID
			s.emitCursor()
			return
		}

		t := tl.Clamp(s.state.CurrentTime)
		if s.want {
			s.teardown()
			s.logger.Debug("active clip removed, replaying", "clip", a.clip.ID, "at", t)
			if pos, ok := tl.Resolve(t); ok {
				s.openAt(pos.Index, t)
			} else {
				s.reachedEnd(tl)
			}
			return
		}
		s.closeActive()
	}

	s.state.CurrentTime = tl.Clamp(s.state.CurrentTime)
	s.reposition(tl)
	s.emitCursor()
}

// shrunkPast handles an edit (split, shrinking resize) that left the
// playhead at or beyond the end of the active clip. Global time t is kept:
// playback carries on in whatever clip now covers t.
func (s *Scheduler) shrunkPast(tl *timeline.Timeline, idx int, t float64) {
	s.teardown()
	if s.want {
		s.logger.Debug("active clip shrank past the playhead, advancing", "index", idx, "at", t)
		s.openAt(idx+1, t)
		return
	}
	s.state.CurrentTime = tl.Clamp(t)
	s.reposition(tl)
	s.emitCursor()
}

// openAt acquires a resource for the first playable clip at or after index
// and seeks it to at. CurrentTime never moves backwards here.
func (s *Scheduler) openAt(index int, at float64) {
	tl := s.source.Timeline()
	idx := nextPlayable(tl, index)
	if idx < 0 {
		s.reachedEnd(tl)
		return
	}
	c, _ := tl.Clip(idx)
	if at < c.Start() {
		at = c.Start()
	}
	local := at - c.Start()

	s.state.CurrentTime = at
	s.state.Index, s.state.Local, s.state.ClipID = idx, local, c.ID

	s.tokens++
	token := s.tokens
	res, err := s.opener.Open(c, s.callbacks(token))
	if err != nil {
		s.failed(c, idx, err)
		return
	}
	s.active = &active{token: token, clip: c, res: res}
	res.SetVolume(s.state.Volume)
	res.SetSpeed(s.state.Speed)
	if err := res.Seek(c.Source.In + local); err != nil {
		s.failed(c, idx, err)
		return
	}
	s.logger.Debug("resource opened", "clip", c.ID, "index", idx, "at", at)
}

func (s *Scheduler) callbacks(token uint64) Callbacks {
	return Callbacks{
		Ready:  func() { s.post(func() { s.onReady(token) }) },
		Ended:  func() { s.post(func() { s.onEnded(token) }) },
		Failed: func(err error) { s.post(func() { s.onFailed(token, err) }) },
	}
}

func (s *Scheduler) post(fn func()) {
	if err := s.bus.Post(fn); err != nil {
		s.logger.Debug("callback dropped", "error", err)
	}
}

func (s *Scheduler) current(token uint64) *active {
	if a := s.active; a != nil && a.token == token {
		return a
	}
	return nil
}

func (s *Scheduler) onReady(token uint64) {
	a := s.current(token)
	if a == nil || a.ready {
		return
	}
	a.ready = true
	if !s.want {
		// Paused while loading: keep the resource for a cheap resume.
		if err := a.res.Pause(); err != nil {
			s.logger.Warn("resource pause failed", "error", err, "clip", a.clip.ID)
		}
		return
	}
	if err := a.res.Play(); err != nil {
		s.failed(a.clip, s.state.Index, err)
		return
	}
	s.setState(Playing)
	s.startChain()
	s.emitFrame()
}

func (s *Scheduler) onEnded(token uint64) {
	a := s.current(token)
	if a == nil || !a.ready || s.state.State != Playing {
		return
	}
	s.logger.Debug("resource reported end", "clip", a.clip.ID)
	s.accumulate()
	s.boundary()
}

func (s *Scheduler) onFailed(token uint64, err error) {
	a := s.current(token)
	if a == nil {
		return
	}
	s.failed(a.clip, s.state.Index, err)
}

// failed treats a resource error like a clip boundary: the clip is skipped.
// A run of failures as long as the playable clip count stops playback.
func (s *Scheduler) failed(c timeline.Clip, index int, cause error) {
	rerr := &ResourceError{ClipID: c.ID, Index: index, Ref: c.Source.Ref, Err: cause}
	s.logger.Warn("resource failed, skipping clip", "error", rerr, "clip", c.ID, "index", index)

	s.teardown()
	s.emit(event.PlaybackResourceFailed, ResourceFailure{
		ClipID: c.ID,
		Index:  index,
		Ref:    c.Source.Ref,
		Reason: cause.Error(),
	})

	tl := s.source.Timeline()
	s.failures++
	if s.failures >= playableCount(tl) {
		s.logger.Warn("no playable clip could be opened, stopping", "failures", s.failures)
		s.finish(s.state.CurrentTime)
		return
	}

	if i := tl.IndexOf(c.ID); i >= 0 {
		c, _ = tl.Clip(i)
		index = i
	}
	at := s.state.CurrentTime
	if end := c.End(); end > at {
		at = end
	}
	s.openAt(index+1, at)
}

// boundary advances from the active clip to the next one, carrying
// CurrentTime forward.
func (s *Scheduler) boundary() {
	a := s.active
	tl := s.source.Timeline()
	s.failures = 0

	idx := tl.IndexOf(a.clip.ID)
	if idx < 0 {
		s.teardown()
		t := tl.Clamp(s.state.CurrentTime)
		if pos, ok := tl.Resolve(t); ok {
			s.openAt(pos.Index, t)
		} else {
			s.reachedEnd(tl)
		}
		return
	}

	c, _ := tl.Clip(idx)
	at := s.state.CurrentTime
	if c.End() > at {
		at = c.End()
	}
	s.teardown()
	s.state.CurrentTime = at
	s.openAt(idx+1, at)
}

func (s *Scheduler) reachedEnd(tl *timeline.Timeline) {
	if s.endPolicy == EndLoop {
		if n := playableCount(tl); n > 0 && s.failures < n {
			s.logger.Debug("end of timeline, looping")
			s.teardown()
			s.state.CurrentTime = 0
			s.openAt(0, 0)
			return
		}
	}
	s.finish(tl.TotalDuration())
}

// finish stops with the cursor parked at t.
func (s *Scheduler) finish(t float64) {
	s.teardown()
	s.want = false
	tl := s.source.Timeline()
	s.state.CurrentTime = tl.Clamp(t)
	s.reposition(tl)
	s.setState(Stopped)
	s.emitCursor()
}

func (s *Scheduler) tick(chain uint64) {
	if chain != s.chain || !s.running || s.active == nil {
		return
	}
	s.accumulate()

	tl := s.source.Timeline()
	idx := tl.IndexOf(s.active.clip.ID)
	if idx < 0 {
		s.Resync()
		return
	}
	c, _ := tl.Clip(idx)
	local := s.state.CurrentTime - c.Start()
	if local >= c.Duration-s.tolerance {
		s.boundary()
		return
	}

	s.state.Index, s.state.Local, s.state.ClipID = idx, local, c.ID
	s.emitFrame()
	s.schedule(chain)
}

// startChain cancels any previous chain before scheduling the first tick of
// a new one.
func (s *Scheduler) startChain() {
	s.cancelChain()
	s.running = true
	s.lastTick = s.clock.Now()
	s.schedule(s.chain)
}

func (s *Scheduler) schedule(chain uint64) {
	s.timer = s.clock.AfterFunc(s.tickInterval, func() {
		s.post(func() { s.tick(chain) })
	})
}

func (s *Scheduler) cancelChain() {
	s.chain++
	s.running = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// accumulate credits wall time since the last tick, scaled by speed.
func (s *Scheduler) accumulate() {
	if !s.running {
		return
	}
	now := s.clock.Now()
	if dt := now.Sub(s.lastTick).Seconds(); dt > 0 {
		s.state.CurrentTime += dt * s.state.Speed
	}
	s.lastTick = now
}

func (s *Scheduler) teardown() {
	s.cancelChain()
	s.closeActive()
}

func (s *Scheduler) closeActive() {
	a := s.active
	if a == nil {
		return
	}
	s.active = nil
	if err := a.res.Close(); err != nil {
		s.logger.Warn("resource close failed", "error", err, "clip", a.clip.ID)
	}
}

func (s *Scheduler) reposition(tl *timeline.Timeline) {
	pos, ok := tl.ResolveClamped(s.state.CurrentTime)
	if !ok {
		s.state.Index, s.state.Local, s.state.ClipID = -1, 0, ""
		return
	}
	c, _ := tl.Clip(pos.Index)
	s.state.Index, s.state.Local, s.state.ClipID = pos.Index, pos.Local, c.ID
}

func (s *Scheduler) setState(st State) {
	if s.state.State == st {
		return
	}
	s.state.State = st
	s.state.Playing = st == Playing
	s.emit(event.PlaybackStateChanged, StateChange{
		State:       st,
		CurrentTime: s.state.CurrentTime,
		Index:       s.state.Index,
		ClipID:      s.state.ClipID,
	})
}

func (s *Scheduler) emitCursor() {
	s.emit(event.PlaybackCursorUpdated, Cursor{
		Pixel:        s.state.CurrentTime * s.distancePerTime,
		GlobalSecond: s.state.CurrentTime,
		Index:        s.state.Index,
		ClipID:       s.state.ClipID,
	})
}

// emitFrame emits the cursor and, for video, the live frame.
func (s *Scheduler) emitFrame() {
	s.emitCursor()
	a := s.active
	if a == nil || !a.ready {
		return
	}
	switch a.clip.Kind {
	case timeline.KindVideo:
		w, h := a.res.Size()
		s.emit(event.PlaybackRenderFrame, Frame{
			Handle:    a.res.Handle(),
			Width:     w,
			Height:    h,
			LocalTime: a.clip.Source.In + s.state.Local,
			Index:     s.state.Index,
			ClipID:    a.clip.ID,
		})
	case timeline.KindImage:
		// Stills are drawn from the cursor alone.
	}
}

func (s *Scheduler) emit(typ string, data any) {
	if err := s.bus.Emit(event.NewResult(typ, data)); err != nil {
		s.logger.Error("emit failed", "error", err, "type", typ)
	}
}

func nextPlayable(tl *timeline.Timeline, from int) int {
	if from < 0 {
		from = 0
	}
	for i := from; i < tl.Len(); i++ {
		if c, _ := tl.Clip(i); c.Playable() {
			return i
		}
	}
	return -1
}

func playableCount(tl *timeline.Timeline) int {
	n := 0
	for _, c := range tl.Clips() {
		if c.Playable() {
			n++
		}
	}
	return n
}
