package session

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cutline/internal/edit"
	"github.com/roach88/cutline/internal/event"
	"github.com/roach88/cutline/internal/playback"
	"github.com/roach88/cutline/internal/sim"
	"github.com/roach88/cutline/internal/testutil"
	"github.com/roach88/cutline/internal/timeline"
)

type harness struct {
	t      *testing.T
	router *event.Router
	clock  *testutil.ManualClock
	sess   *Session
	events []event.Event
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{
		t:      t,
		router: event.NewRouter(event.WithLogger(quiet)),
		clock:  testutil.NewManualClock(),
	}
	h.router.Subscribe(event.Wildcard, func(ev event.Event) error {
		h.events = append(h.events, ev)
		return nil
	})
	opts = append([]Option{
		WithLogger(quiet),
		WithIDGenerator(edit.NewSequenceGenerator("c")),
		WithPlaybackOptions(playback.WithClock(h.clock)),
	}, opts...)
	h.sess = New(h.router, sim.NewOpener(h.clock), opts...)
	return h
}

func (h *harness) send(typ string, data any) {
	h.t.Helper()
	require.NoError(h.t, h.router.Enqueue(event.NewIntent(typ, data)))
	h.router.Drain()
}

func (h *harness) ofType(typ string) []event.Event {
	var out []event.Event
	for _, ev := range h.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (h *harness) reset() { h.events = nil }

func (h *harness) addImages(n int) {
	for i := 0; i < n; i++ {
		h.send(event.ClipAdd, AddClip{Clip: timeline.NewImageClip("still.png", 5)})
	}
}

func TestSession_AddEmitsTimelineChanged(t *testing.T) {
	h := newHarness(t)
	h.addImages(2)

	changes := h.ofType(event.TimelineChanged)
	require.Len(t, changes, 2)

	last := changes[1].Data.(TimelineChange)
	assert.Equal(t, event.ClipAdd, last.Op)
	assert.Equal(t, uint64(2), last.Version)
	assert.InDelta(t, 10.0, last.TotalDuration, 1e-9)
	assert.Equal(t, 2, h.sess.Timeline().Len())

	c, ok := h.sess.Timeline().Clip(1)
	require.True(t, ok)
	assert.Equal(t, "c-2", c.ID)
	assert.InDelta(t, 5.0, c.Start(), 1e-9)
}

func TestSession_RejectedEditLeavesSnapshot(t *testing.T) {
	h := newHarness(t)
	h.addImages(1)
	before := h.sess.Timeline()
	h.reset()

	h.send(event.ClipResize, ResizeClip{ClipRef: AtIndex(0), Duration: -1})

	assert.Empty(t, h.ofType(event.TimelineChanged))
	fails := h.ofType(event.OperationFailed)
	require.Len(t, fails, 1)
	f := fails[0].Data.(event.Failure)
	assert.Equal(t, string(timeline.ErrCodeInvalidDuration), f.Code)
	assert.Equal(t, event.ClipResize, f.Intent)
	assert.NotZero(t, f.IntentSeq)
	assert.Same(t, before, h.sess.Timeline())
}

func TestSession_StaleTarget(t *testing.T) {
	h := newHarness(t)
	h.addImages(2)
	h.send(event.ClipDelete, TargetClip{ClipRef: ByID("c-1")})
	h.reset()

	h.send(event.ClipSplit, SplitClip{ClipRef: ByID("c-1"), Offset: 1})

	fails := h.ofType(event.OperationFailed)
	require.Len(t, fails, 1)
	f := fails[0].Data.(event.Failure)
	assert.Equal(t, string(timeline.ErrCodeStaleClip), f.Code)
	assert.Equal(t, "c-1", f.ClipID)
}

func TestSession_DeleteEmitsClipRemoved(t *testing.T) {
	h := newHarness(t)
	h.addImages(3)
	h.reset()

	h.send(event.ClipDelete, TargetClip{ClipRef: ByID("c-2")})

	types := make([]string, 0, len(h.events))
	for _, ev := range h.events {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []string{event.ClipDelete, event.TimelineChanged, event.PlaybackCursorUpdated, event.ClipRemoved}, types)

	removed := h.ofType(event.ClipRemoved)[0].Data.(ClipRemoval)
	assert.Equal(t, 1, removed.Index)
	assert.Equal(t, "c-2", removed.Clip.ID)
}

func TestSession_ReplaceKeepsVersionsIncreasing(t *testing.T) {
	h := newHarness(t)
	h.addImages(2)

	h.send(event.TimelineReplace, ReplaceTimeline{Clips: []timeline.Clip{
		timeline.NewVideoClip("a.mp4", 20, 8),
	}})

	tl := h.sess.Timeline()
	assert.Equal(t, uint64(3), tl.Version())
	assert.Equal(t, 1, tl.Len())
	assert.InDelta(t, 8.0, tl.TotalDuration(), 1e-9)
}

func TestSession_PlayAndSeekThroughIntents(t *testing.T) {
	h := newHarness(t)
	h.addImages(3)

	at := 6.0
	h.send(event.PlaybackPlay, Play{At: &at})

	st := h.sess.Scheduler().State()
	assert.Equal(t, playback.Playing, st.State)
	assert.Equal(t, 1, st.Index)
	assert.Equal(t, "c-2", st.ClipID)

	h.send(event.PlaybackSeek, Seek{To: 12})
	st = h.sess.Scheduler().State()
	assert.Equal(t, 2, st.Index)
	assert.InDelta(t, 12.0, st.CurrentTime, 1e-9)

	h.send(event.PlaybackPause, nil)
	assert.Equal(t, playback.Paused, h.sess.Scheduler().State().State)

	h.send(event.PlaybackStop, nil)
	assert.Equal(t, playback.Stopped, h.sess.Scheduler().State().State)
}

func TestSession_PlayEmptyTimelineFails(t *testing.T) {
	h := newHarness(t)

	h.send(event.PlaybackPlay, Play{})

	fails := h.ofType(event.OperationFailed)
	require.Len(t, fails, 1)
	assert.Equal(t, string(playback.ErrCodeNotResolvable), fails[0].Data.(event.Failure).Code)
	assert.Equal(t, playback.Stopped, h.sess.Scheduler().State().State)
}

func TestSession_DeleteActiveClipWhilePlaying(t *testing.T) {
	h := newHarness(t)
	h.addImages(3)

	at := 6.0
	h.send(event.PlaybackPlay, Play{At: &at})
	id, ok := h.sess.Scheduler().ActiveClip()
	require.True(t, ok)
	require.Equal(t, "c-2", id)

	h.send(event.ClipDelete, TargetClip{ClipRef: ByID("c-2")})

	st := h.sess.Scheduler().State()
	assert.Equal(t, playback.Playing, st.State)
	id, ok = h.sess.Scheduler().ActiveClip()
	require.True(t, ok)
	assert.Equal(t, "c-3", id)
	assert.Equal(t, 1, st.Index)
}

func TestSession_VolumeAndSpeed(t *testing.T) {
	h := newHarness(t)

	h.send(event.PlaybackSetVolume, SetVolume{Volume: 1.5})
	h.send(event.PlaybackSetSpeed, SetSpeed{Speed: 3})

	vol := h.ofType(event.PlaybackVolumeChanged)
	require.Len(t, vol, 1)
	assert.Equal(t, playback.VolumeChange{Volume: 1, Requested: 1.5}, vol[0].Data)

	speed := h.ofType(event.PlaybackSpeedChanged)
	require.Len(t, speed, 1)
	assert.Equal(t, playback.SpeedChange{Speed: 1, Requested: 3}, speed[0].Data)
}

func TestSession_WrongPayloadType(t *testing.T) {
	h := newHarness(t)

	h.send(event.ClipAdd, Seek{To: 1})

	fails := h.ofType(event.OperationFailed)
	require.Len(t, fails, 1)
	assert.Equal(t, CodeInvalidPayload, fails[0].Data.(event.Failure).Code)
}

func TestSession_MissingTargetRejected(t *testing.T) {
	tests := []struct {
		name string
		typ  string
		raw  string
	}{
		{"delete empty object", event.ClipDelete, `{}`},
		{"delete no data", event.ClipDelete, ``},
		{"duplicate null", event.ClipDuplicate, `null`},
		{"split without target", event.ClipSplit, `{"offset":1}`},
		{"resize without target", event.ClipResize, `{"duration":2}`},
		{"move without target", event.ClipMove, `{"to":1}`},
		{"move without destination", event.ClipMove, `{"id":"c-3"}`},
		{"insert without index", event.ClipInsert, `{"clip":{"kind":"image","source":{"ref":"x.png"},"duration":1}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.addImages(3)
			before := h.sess.Timeline()
			h.reset()

			ev, err := DecodeIntent(tt.typ, []byte(tt.raw))
			require.NoError(t, err)
			require.NoError(t, h.router.Enqueue(ev))
			h.router.Drain()

			fails := h.ofType(event.OperationFailed)
			require.Len(t, fails, 1)
			assert.Equal(t, CodeInvalidPayload, fails[0].Data.(event.Failure).Code)
			assert.Empty(t, h.ofType(event.TimelineChanged))
			assert.Empty(t, h.ofType(event.ClipRemoved))
			assert.Same(t, before, h.sess.Timeline())
			assert.Equal(t, 3, h.sess.Timeline().Len())
		})
	}
}

func TestSession_NilTargetPayloadRejected(t *testing.T) {
	h := newHarness(t)
	h.addImages(2)
	h.reset()

	h.send(event.ClipDuplicate, nil)

	require.Len(t, h.ofType(event.OperationFailed), 1)
	assert.Equal(t, 2, h.sess.Timeline().Len())
}

func TestSession_IndexZeroTarget(t *testing.T) {
	h := newHarness(t)
	h.addImages(2)
	h.reset()

	ev, err := DecodeIntent(event.ClipDelete, []byte(`{"index":0}`))
	require.NoError(t, err)
	require.NoError(t, h.router.Enqueue(ev))
	h.router.Drain()

	assert.Empty(t, h.ofType(event.OperationFailed))
	removed := h.ofType(event.ClipRemoved)
	require.Len(t, removed, 1)
	r := removed[0].Data.(ClipRemoval)
	assert.Equal(t, 0, r.Index)
	assert.Equal(t, "c-1", r.Clip.ID)
	c, _ := h.sess.Timeline().Clip(0)
	assert.Equal(t, "c-2", c.ID)
}

func TestClipRef_Target(t *testing.T) {
	tg, err := AtIndex(2).Target()
	require.NoError(t, err)
	assert.Equal(t, edit.At(2), tg)

	tg, err = ClipRef{Index: new(int), ID: "c-4"}.Target()
	require.NoError(t, err)
	assert.Equal(t, edit.ByID("c-4"), tg, "id wins")

	_, err = ClipRef{}.Target()
	assert.ErrorContains(t, err, "index or id is required")
}

func TestDecodeIntent(t *testing.T) {
	h := newHarness(t)

	ev, err := DecodeIntent(event.ClipAdd, json.RawMessage(`{"clip":{"kind":"image","source":{"ref":"a.png"},"duration":4}}`))
	require.NoError(t, err)
	assert.Equal(t, event.External, ev.Origin)
	require.NoError(t, h.router.Enqueue(ev))
	h.router.Drain()
	assert.InDelta(t, 4.0, h.sess.Timeline().TotalDuration(), 1e-9)

	ev, err = DecodeIntent(event.ClipDelete, []byte(`{"index":0}`))
	require.NoError(t, err)
	assert.Equal(t, TargetClip{ClipRef: AtIndex(0)}, ev.Data)

	ev, err = DecodeIntent(event.PlaybackPause, nil)
	require.NoError(t, err)
	assert.Equal(t, event.PlaybackPause, ev.Type)
}

func TestDecodeIntent_Errors(t *testing.T) {
	_, err := DecodeIntent("clip.explode", nil)
	assert.ErrorContains(t, err, "unknown intent")

	// The Router itself still carries unknown types to wildcard subscribers.
	h := newHarness(t)
	require.NoError(t, h.router.Emit(event.Event{Type: "clip.explode", Origin: event.Internal}))
	require.Len(t, h.ofType("clip.explode"), 1)
	assert.Empty(t, h.ofType(event.OperationFailed))

	_, err = DecodeIntent(event.PlaybackSeek, []byte(`{"to":"soon"}`))
	var pe *PayloadError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, event.PlaybackSeek, pe.Type)
}

func TestSession_View(t *testing.T) {
	h := newHarness(t)
	h.addImages(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- h.router.Run(ctx) }()

	v, err := h.sess.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v.Timeline.Len())
	assert.Equal(t, playback.Stopped, v.Playback.State)

	h.router.Stop()
	require.NoError(t, <-done)
}

func TestSession_PublishAndClose(t *testing.T) {
	h := newHarness(t)
	h.addImages(1)
	h.reset()

	h.sess.Publish()
	changes := h.ofType(event.TimelineChanged)
	require.Len(t, changes, 1)
	assert.Equal(t, "publish", changes[0].Data.(TimelineChange).Op)

	h.sess.Close()
	h.reset()
	h.send(event.ClipAdd, AddClip{Clip: timeline.NewImageClip("b.png", 1)})
	assert.Empty(t, h.ofType(event.TimelineChanged))
	assert.Equal(t, 1, h.sess.Timeline().Len())
}
