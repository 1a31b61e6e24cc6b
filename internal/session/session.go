// Package session wires the router, the timeline, the editor and the
// playback scheduler into one explicit context object.
//
// A Session is constructed once at startup and passed by reference. It owns
// the current timeline snapshot, turns edit intents into new snapshots, and
// routes playback intents to the scheduler. Every rejected intent produces an
// operation.failed event and leaves the snapshot untouched.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/roach88/cutline/internal/edit"
	"github.com/roach88/cutline/internal/event"
	"github.com/roach88/cutline/internal/playback"
	"github.com/roach88/cutline/internal/timeline"
)

// Failure codes that do not come from the timeline or playback packages.
const (
	CodeInvalidPayload = "INVALID_PAYLOAD"
	CodeInternal       = "INTERNAL"
)

// Option configures a Session.
type Option func(*config)

type config struct {
	ids      edit.IDGenerator
	logger   *slog.Logger
	initial  *timeline.Timeline
	schedule []playback.Option
}

// WithIDGenerator sets the clip ID generator. Default: UUIDv7.
func WithIDGenerator(g edit.IDGenerator) Option {
	return func(c *config) { c.ids = g }
}

// WithLogger sets the logger for the session and its scheduler.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithTimeline sets the initial snapshot. Default: empty.
func WithTimeline(tl *timeline.Timeline) Option {
	return func(c *config) { c.initial = tl }
}

// WithPlaybackOptions passes options through to the scheduler.
func WithPlaybackOptions(opts ...playback.Option) Option {
	return func(c *config) { c.schedule = append(c.schedule, opts...) }
}

// View is a consistent read of session state.
type View struct {
	Timeline *timeline.Timeline     `json:"timeline"`
	Playback playback.PlaybackState `json:"playback"`
}

// Session is the application context object.
//
// Thread-safety model:
//   - Timeline: safe from any goroutine
//   - View: safe from any goroutine while the router's Run loop is active
//   - everything else happens on the router's dispatch goroutine
type Session struct {
	router *event.Router
	editor *edit.Editor
	sched  *playback.Scheduler
	logger *slog.Logger

	mu sync.RWMutex
	tl *timeline.Timeline

	subs []*event.Subscription
}

// New creates a session on router, opening media through opener, and
// subscribes its intent handlers.
func New(router *event.Router, opener playback.Opener, opts ...Option) *Session {
	cfg := config{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.initial == nil {
		cfg.initial = timeline.Empty()
	}

	s := &Session{
		router: router,
		editor: edit.New(cfg.ids),
		logger: cfg.logger,
		tl:     cfg.initial,
	}
	schedOpts := append([]playback.Option{playback.WithLogger(cfg.logger)}, cfg.schedule...)
	s.sched = playback.New(router, s, opener, schedOpts...)

	editIntents := []string{
		event.ClipAdd, event.ClipInsert, event.ClipDelete, event.ClipDuplicate,
		event.ClipSplit, event.ClipResize, event.ClipReorder, event.ClipMove,
		event.TimelineReplace,
	}
	for _, typ := range editIntents {
		s.subs = append(s.subs, router.Subscribe(typ, s.onEdit))
	}
	playbackIntents := []string{
		event.PlaybackPlay, event.PlaybackPause, event.PlaybackSeek, event.PlaybackStop,
		event.PlaybackSetVolume, event.PlaybackSetSpeed,
	}
	for _, typ := range playbackIntents {
		s.subs = append(s.subs, router.Subscribe(typ, s.onPlayback))
	}
	s.subs = append(s.subs, router.Subscribe(event.TimelineChanged, func(event.Event) error {
		s.sched.Resync()
		return nil
	}))
	return s
}

// Timeline returns the current snapshot. Implements playback.TimelineSource.
func (s *Session) Timeline() *timeline.Timeline {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tl
}

// Router returns the session's router.
func (s *Session) Router() *event.Router { return s.router }

// Scheduler returns the playback scheduler. Dispatch goroutine only.
func (s *Session) Scheduler() *playback.Scheduler { return s.sched }

// View reads the timeline and playback state on the dispatch goroutine.
func (s *Session) View(ctx context.Context) (View, error) {
	ch := make(chan View, 1)
	if err := s.router.Post(func() {
		ch <- View{Timeline: s.Timeline(), Playback: s.sched.State()}
	}); err != nil {
		return View{}, err
	}
	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

// Publish emits timeline.changed for the current snapshot, so late
// subscribers and replay-on-subscribe consumers see the starting state.
func (s *Session) Publish() {
	s.emitChange("publish", s.Timeline())
}

// Close unsubscribes the session's handlers and stops playback.
func (s *Session) Close() {
	for _, sub := range s.subs {
		sub.Dispose()
	}
	s.subs = nil
	_ = s.sched.Stop()
}

func (s *Session) onEdit(ev event.Event) error {
	cur := s.Timeline()
	next, removed, err := s.applyEdit(cur, ev)
	if err != nil {
		s.fail(ev, err)
		return nil
	}

	s.mu.Lock()
	s.tl = next
	s.mu.Unlock()

	s.logger.Debug("timeline changed",
		"op", ev.Type,
		"version", next.Version(),
		"clips", next.Len(),
		"total", next.TotalDuration(),
	)
	s.emitChange(ev.Type, next)
	if removed != nil {
		s.emit(event.ClipRemoved, *removed)
	}
	return nil
}

func (s *Session) applyEdit(tl *timeline.Timeline, ev event.Event) (*timeline.Timeline, *ClipRemoval, error) {
	switch ev.Type {
	case event.ClipAdd:
		p, err := payload[AddClip](ev)
		if err != nil {
			return nil, nil, err
		}
		next, err := s.editor.Add(tl, p.Clip)
		return next, nil, err

	case event.ClipInsert:
		p, err := payload[InsertClip](ev)
		if err != nil {
			return nil, nil, err
		}
		if p.Index == nil {
			return nil, nil, &PayloadError{Type: ev.Type, Err: errNoPosition}
		}
		next, err := s.editor.Insert(tl, *p.Index, p.Clip)
		return next, nil, err

	case event.ClipDelete:
		p, err := payload[TargetClip](ev)
		if err != nil {
			return nil, nil, err
		}
		target, err := targetOf(ev, p.ClipRef)
		if err != nil {
			return nil, nil, err
		}
		idx := tl.IndexOf(target.ID)
		if target.ID == "" {
			idx = target.Index
		}
		next, removed, err := s.editor.Delete(tl, target)
		if err != nil {
			return nil, nil, err
		}
		return next, &ClipRemoval{Index: idx, Clip: removed}, nil

	case event.ClipDuplicate:
		p, err := payload[TargetClip](ev)
		if err != nil {
			return nil, nil, err
		}
		target, err := targetOf(ev, p.ClipRef)
		if err != nil {
			return nil, nil, err
		}
		next, err := s.editor.Duplicate(tl, target)
		return next, nil, err

	case event.ClipSplit:
		p, err := payload[SplitClip](ev)
		if err != nil {
			return nil, nil, err
		}
		target, err := targetOf(ev, p.ClipRef)
		if err != nil {
			return nil, nil, err
		}
		next, err := s.editor.Split(tl, target, p.Offset)
		return next, nil, err

	case event.ClipResize:
		p, err := payload[ResizeClip](ev)
		if err != nil {
			return nil, nil, err
		}
		target, err := targetOf(ev, p.ClipRef)
		if err != nil {
			return nil, nil, err
		}
		next, err := s.editor.Resize(tl, target, p.Duration)
		return next, nil, err

	case event.ClipReorder:
		p, err := payload[ReorderClips](ev)
		if err != nil {
			return nil, nil, err
		}
		next, err := s.editor.Reorder(tl, p.IDs)
		return next, nil, err

	case event.ClipMove:
		p, err := payload[MoveClip](ev)
		if err != nil {
			return nil, nil, err
		}
		target, err := targetOf(ev, p.ClipRef)
		if err != nil {
			return nil, nil, err
		}
		if p.To == nil {
			return nil, nil, &PayloadError{Type: ev.Type, Err: errNoDestination}
		}
		next, err := s.editor.Move(tl, target, *p.To)
		return next, nil, err

	case event.TimelineReplace:
		p, err := payload[ReplaceTimeline](ev)
		if err != nil {
			return nil, nil, err
		}
		next, err := s.editor.Replace(p.Clips)
		if err != nil {
			return nil, nil, err
		}
		// Keep versions increasing across imports so consumers can order
		// every snapshot of the session.
		next, err = tl.Next(next.Clips())
		return next, nil, err
	}
	return nil, nil, &PayloadError{Type: ev.Type, Err: errors.New("not an edit intent")}
}

func targetOf(ev event.Event, ref ClipRef) (edit.Target, error) {
	t, err := ref.Target()
	if err != nil {
		return edit.Target{}, &PayloadError{Type: ev.Type, Err: err}
	}
	return t, nil
}

func (s *Session) onPlayback(ev event.Event) error {
	var err error
	switch ev.Type {
	case event.PlaybackPlay:
		var p Play
		if p, err = payload[Play](ev); err == nil {
			if p.At != nil {
				err = s.sched.PlayFrom(*p.At)
			} else {
				err = s.sched.Play()
			}
		}
	case event.PlaybackPause:
		err = s.sched.Pause()
	case event.PlaybackStop:
		err = s.sched.Stop()
	case event.PlaybackSeek:
		var p Seek
		if p, err = payload[Seek](ev); err == nil {
			err = s.sched.SeekTo(p.To)
		}
	case event.PlaybackSetVolume:
		var p SetVolume
		if p, err = payload[SetVolume](ev); err == nil {
			s.sched.SetVolume(p.Volume)
		}
	case event.PlaybackSetSpeed:
		var p SetSpeed
		if p, err = payload[SetSpeed](ev); err == nil {
			s.sched.SetSpeed(p.Speed)
		}
	}
	if err != nil {
		s.fail(ev, err)
	}
	return nil
}

// fail reports a rejected intent as operation.failed.
func (s *Session) fail(ev event.Event, err error) {
	f := event.Failure{
		Code:      CodeInternal,
		Message:   err.Error(),
		Intent:    ev.Type,
		IntentSeq: ev.Seq,
	}

	var te *timeline.Error
	var pe *playback.Error
	var de *PayloadError
	switch {
	case errors.As(err, &te):
		f.Code = string(te.Code)
		f.Index = te.Index
		f.ClipID = te.ClipID
	case errors.As(err, &pe):
		f.Code = string(pe.Code)
	case errors.As(err, &de):
		f.Code = CodeInvalidPayload
	}

	s.logger.Warn("intent rejected",
		"intent", ev.Type,
		"seq", ev.Seq,
		"code", f.Code,
		"error", err,
	)
	s.emit(event.OperationFailed, f)
}

func (s *Session) emitChange(op string, tl *timeline.Timeline) {
	s.emit(event.TimelineChanged, TimelineChange{
		Op:            op,
		Version:       tl.Version(),
		TotalDuration: tl.TotalDuration(),
		Timeline:      tl,
	})
}

func (s *Session) emit(typ string, data any) {
	if err := s.router.Emit(event.NewResult(typ, data)); err != nil {
		s.logger.Error("emit failed", "error", err, "type", typ)
	}
}
