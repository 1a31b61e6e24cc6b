package event

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	events []Event
}

func (r *recorder) handle(ev Event) error {
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) types() []string {
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func quietRouter(opts ...Option) (*Router, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewRouter(append([]Option{WithLogger(logger)}, opts...)...), &buf
}

func TestRouter_DeliversByTypeAndWildcard(t *testing.T) {
	r, _ := quietRouter()
	var typed, wild recorder
	r.Subscribe(TimelineChanged, typed.handle)
	r.Subscribe(Wildcard, wild.handle)

	require.NoError(t, r.Emit(NewResult(TimelineChanged, nil)))
	require.NoError(t, r.Emit(NewResult(PlaybackCursorUpdated, nil)))
	require.NoError(t, r.Emit(NewResult("something.unknown", nil)))

	assert.Equal(t, []string{TimelineChanged}, typed.types())
	assert.Equal(t, []string{TimelineChanged, PlaybackCursorUpdated, "something.unknown"}, wild.types())
}

func TestRouter_SubscriptionOrder(t *testing.T) {
	r, _ := quietRouter()
	var order []string
	r.Subscribe("x", func(Event) error { order = append(order, "first"); return nil })
	r.Subscribe(Wildcard, func(Event) error { order = append(order, "wild"); return nil })
	r.Subscribe("x", func(Event) error { order = append(order, "third"); return nil })

	require.NoError(t, r.Emit(NewResult("x", nil)))
	assert.Equal(t, []string{"first", "wild", "third"}, order)
}

func TestRouter_StampsSeq(t *testing.T) {
	r, _ := quietRouter()
	var rec recorder
	r.Subscribe(Wildcard, rec.handle)

	for i := 0; i < 3; i++ {
		require.NoError(t, r.Emit(NewResult("x", nil)))
	}
	require.Len(t, rec.events, 3)
	assert.Equal(t, int64(1), rec.events[0].Seq)
	assert.Equal(t, int64(2), rec.events[1].Seq)
	assert.Equal(t, int64(3), rec.events[2].Seq)
}

func TestRouter_MarksIntentsProcessed(t *testing.T) {
	r, _ := quietRouter()
	var rec recorder
	r.Subscribe(ClipAdd, rec.handle)

	require.NoError(t, r.Emit(NewIntent(ClipAdd, "payload")))
	require.Len(t, rec.events, 1)
	assert.True(t, rec.events[0].Processed)
	assert.Equal(t, External, rec.events[0].Origin)
}

func TestRouter_DropsProcessedIntents(t *testing.T) {
	r, _ := quietRouter()
	var rec recorder
	r.Subscribe(ClipAdd, func(ev Event) error {
		rec.events = append(rec.events, ev)
		// Re-emitting the delivered value must not loop.
		return r.Emit(ev)
	})

	require.NoError(t, r.Emit(NewIntent(ClipAdd, nil)))
	assert.Len(t, rec.events, 1)
}

func TestRouter_InternalEventsAreNotProcessedFlagged(t *testing.T) {
	r, _ := quietRouter()
	var rec recorder
	r.Subscribe(TimelineChanged, rec.handle)

	require.NoError(t, r.Emit(NewResult(TimelineChanged, nil)))
	require.Len(t, rec.events, 1)
	assert.False(t, rec.events[0].Processed)
}

func TestRouter_ZeroOriginTreatedAsInternal(t *testing.T) {
	r, _ := quietRouter()
	var rec recorder
	r.Subscribe("x", rec.handle)

	require.NoError(t, r.Emit(Event{Type: "x"}))
	require.Len(t, rec.events, 1)
	assert.Equal(t, Internal, rec.events[0].Origin)
}

func TestRouter_CascadeDepthGuard(t *testing.T) {
	r, logs := quietRouter(WithMaxDepth(8))
	calls := 0
	var refused error
	r.Subscribe("echo", func(ev Event) error {
		calls++
		if err := r.Emit(NewResult("echo", nil)); err != nil {
			refused = err
		}
		return nil
	})

	require.NoError(t, r.Emit(NewResult("echo", nil)))
	assert.Equal(t, 8, calls)
	require.Error(t, refused)
	assert.True(t, IsCascadeDepthError(refused))

	var ce *CascadeDepthError
	require.ErrorAs(t, refused, &ce)
	assert.Equal(t, 8, ce.Limit)
	assert.Contains(t, logs.String(), "event refused")

	// Depth unwinds fully.
	calls = 0
	require.NoError(t, r.Emit(NewResult("echo", nil)))
	assert.Equal(t, 8, calls)
}

func TestRouter_FailureIsolation(t *testing.T) {
	r, logs := quietRouter()
	var after recorder
	r.Subscribe("x", func(Event) error { return errors.New("boom") })
	r.Subscribe("x", func(Event) error { panic("kaboom") })
	r.Subscribe("x", after.handle)

	require.NoError(t, r.Emit(NewResult("x", nil)))

	assert.Len(t, after.events, 1, "later subscribers still receive the event")
	assert.Contains(t, logs.String(), "boom")
	assert.Contains(t, logs.String(), "kaboom")
	assert.Contains(t, logs.String(), "panic=true")
}

func TestRouter_HandlerErrorUnwraps(t *testing.T) {
	sentinel := errors.New("sentinel")
	err := &HandlerError{Type: "x", SubscriptionID: 3, Err: sentinel}
	assert.ErrorIs(t, err, sentinel)
	assert.Contains(t, err.Error(), "subscriber 3")
}

func TestRouter_Dispose(t *testing.T) {
	r, _ := quietRouter()
	var rec recorder
	sub := r.Subscribe("x", rec.handle)

	require.NoError(t, r.Emit(NewResult("x", nil)))
	sub.Dispose()
	sub.Dispose()
	require.NoError(t, r.Emit(NewResult("x", nil)))

	assert.Len(t, rec.events, 1)
	assert.Equal(t, 0, r.SubscriberCount())
}

func TestRouter_DisposeDuringDispatch(t *testing.T) {
	r, _ := quietRouter()
	var second recorder
	var secondSub *Subscription
	r.Subscribe("x", func(Event) error {
		secondSub.Dispose()
		return nil
	})
	secondSub = r.Subscribe("x", second.handle)

	require.NoError(t, r.Emit(NewResult("x", nil)))
	assert.Empty(t, second.events)
}

func TestRouter_Replay(t *testing.T) {
	r, _ := quietRouter()
	require.NoError(t, r.Emit(NewResult(PlaybackStateChanged, "first")))
	require.NoError(t, r.Emit(NewResult(TimelineChanged, "tl")))
	require.NoError(t, r.Emit(NewResult(PlaybackStateChanged, "second")))
	require.NoError(t, r.Emit(NewIntent(ClipAdd, "intent")))

	var typed, wild, plain recorder
	r.Subscribe(PlaybackStateChanged, typed.handle, WithReplay())
	r.Subscribe(Wildcard, wild.handle, WithReplay())
	r.Subscribe(PlaybackStateChanged, plain.handle)

	require.Len(t, typed.events, 1)
	assert.Equal(t, "second", typed.events[0].Data)

	// Intents are never replayed; results come back in Seq order.
	assert.Equal(t, []string{TimelineChanged, PlaybackStateChanged}, wild.types())
	assert.Empty(t, plain.events)
}

func TestRouter_EnqueueRejectsInternal(t *testing.T) {
	r, _ := quietRouter()
	assert.ErrorIs(t, r.Enqueue(NewResult(TimelineChanged, nil)), ErrInternalIntent)
	assert.NoError(t, r.Enqueue(Event{Type: ClipAdd}), "zero origin is an intent")
	assert.Equal(t, 1, r.Pending())
}

func TestRouter_DrainRunsIntentsAndPostsInOrder(t *testing.T) {
	r, _ := quietRouter()
	var order []string
	r.Subscribe(ClipAdd, func(Event) error {
		order = append(order, "intent")
		require.NoError(t, r.Post(func() { order = append(order, "posted-by-handler") }))
		return nil
	})

	require.NoError(t, r.Post(func() { order = append(order, "post-1") }))
	require.NoError(t, r.Enqueue(NewIntent(ClipAdd, nil)))
	require.NoError(t, r.Post(func() { order = append(order, "post-2") }))

	n := r.Drain()
	assert.Equal(t, 4, n)
	assert.Equal(t, []string{"post-1", "intent", "post-2", "posted-by-handler"}, order)
	assert.Equal(t, 0, r.Pending())
}

func TestRouter_PostedPanicIsContained(t *testing.T) {
	r, logs := quietRouter()
	ran := false
	require.NoError(t, r.Post(func() { panic("bad timer") }))
	require.NoError(t, r.Post(func() { ran = true }))

	r.Drain()
	assert.True(t, ran)
	assert.Contains(t, logs.String(), "bad timer")
}

func TestRouter_RunAndStop(t *testing.T) {
	r, _ := quietRouter()
	got := make(chan Event, 1)
	r.Subscribe(PlaybackPlay, func(ev Event) error {
		got <- ev
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	require.NoError(t, r.Enqueue(NewIntent(PlaybackPlay, nil)))
	select {
	case ev := <-got:
		assert.Equal(t, PlaybackPlay, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("intent not dispatched")
	}

	r.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
	assert.ErrorIs(t, r.Post(func() {}), ErrStopped)
	assert.ErrorIs(t, r.Enqueue(NewIntent(PlaybackPlay, nil)), ErrStopped)
}

func TestRouter_RunContextCancel(t *testing.T) {
	r, _ := quietRouter()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

type fixedIDs struct{ n int }

func (f *fixedIDs) Generate() string {
	f.n++
	return "ev-" + string(rune('0'+f.n))
}

func TestRouter_IDGenerator(t *testing.T) {
	r, _ := quietRouter(WithIDGenerator(&fixedIDs{}))
	var rec recorder
	r.Subscribe(Wildcard, rec.handle)

	require.NoError(t, r.Emit(NewResult("x", nil)))
	require.NoError(t, r.Emit(Event{Type: "y", ID: "keep"}))

	assert.Equal(t, "ev-1", rec.events[0].ID)
	assert.Equal(t, "keep", rec.events[1].ID)
}
