package store

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cutline/internal/event"
	"github.com/roach88/cutline/internal/timeline"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func twoClips(t *testing.T) *timeline.Timeline {
	t.Helper()
	a := timeline.NewVideoClip("a.mp4", 30, 10)
	a.ID = "a"
	b := timeline.NewImageClip("b.png", 5)
	b.ID = "b"
	tl, err := timeline.New([]timeline.Clip{a, b})
	require.NoError(t, err)
	return tl
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "iteration %d", i)
		require.NoError(t, s.Close())
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	want := map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1",
		"busy_timeout": "5000",
		"user_version": "2",
	}
	for name, value := range want {
		got, err := s.pragma(name)
		require.NoError(t, err)
		assert.Equal(t, value, got, name)
	}
}

func TestOpen_MigratesOldDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.db.Exec("PRAGMA user_version = 1")
	require.NoError(t, err)
	_, err = s.db.Exec("DROP INDEX idx_snapshots_seq")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	version, err := s.pragma("user_version")
	require.NoError(t, err)
	assert.Equal(t, "2", version)

	var n int
	require.NoError(t, s.db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = 'idx_snapshots_seq'`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{}
	assert.NoError(t, s.Close())
}

func TestWriteSnapshot_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	tl := twoClips(t)

	inserted, err := s.WriteSnapshot(ctx, tl, 7)
	require.NoError(t, err)
	assert.True(t, inserted)

	got, err := s.LatestSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, tl.Fingerprint(), got.Fingerprint())
	assert.Equal(t, tl.Version(), got.Version())
	assert.InDelta(t, 15.0, got.TotalDuration(), 1e-9)

	c, ok := got.Clip(1)
	require.True(t, ok)
	assert.InDelta(t, 10.0, c.Start(), 1e-9)
	assert.Equal(t, "b", c.ID)
}

func TestWriteSnapshot_SkipsUnchangedFingerprint(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	tl := twoClips(t)

	_, err := s.WriteSnapshot(ctx, tl, 1)
	require.NoError(t, err)

	// Same clips, newer version: still the same content.
	same, err := tl.Next(tl.Clips())
	require.NoError(t, err)
	inserted, err := s.WriteSnapshot(ctx, same, 2)
	require.NoError(t, err)
	assert.False(t, inserted)

	clips := tl.Clips()
	clips[1].Duration = 8
	changed, err := tl.Next(clips)
	require.NoError(t, err)
	inserted, err = s.WriteSnapshot(ctx, changed, 3)
	require.NoError(t, err)
	assert.True(t, inserted)

	history, err := s.Snapshots(ctx)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, int64(1), history[0].Seq)
	assert.Equal(t, int64(3), history[1].Seq)
	assert.Equal(t, uint64(1), history[1].Version)
	assert.Equal(t, 2, history[1].ClipCount)
	assert.InDelta(t, 18.0, history[1].TotalDuration, 1e-9)
}

func TestLatestSnapshot_Empty(t *testing.T) {
	s := createTestStore(t)

	tl, err := s.LatestSnapshot(context.Background())
	require.NoError(t, err)
	assert.Nil(t, tl)

	history, err := s.Snapshots(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, history)
	assert.Empty(t, history)
}

func TestAppendEvent_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ev := event.Event{Type: event.PlaybackSeek, Data: map[string]float64{"to": 4}, Origin: event.External, Seq: 3, ID: "e-3"}
	require.NoError(t, s.AppendEvent(ctx, ev))
	require.NoError(t, s.AppendEvent(ctx, ev))

	recs, err := s.ReadEvents(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "external", recs[0].Origin)
	assert.Equal(t, "e-3", recs[0].ID)

	var data map[string]float64
	require.NoError(t, recs[0].Decode(&data))
	assert.Equal(t, 4.0, data["to"])
}

func TestAppendEvent_RequiresSeq(t *testing.T) {
	s := createTestStore(t)
	err := s.AppendEvent(context.Background(), event.Event{Type: event.PlaybackPause})
	assert.ErrorContains(t, err, "no seq")
}

func TestReadEvents_Filter(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	types := []string{event.ClipAdd, event.TimelineChanged, event.PlaybackPlay, event.PlaybackStateChanged, event.TimelineChanged}
	for i, typ := range types {
		require.NoError(t, s.AppendEvent(ctx, event.Event{Type: typ, Origin: event.Internal, Seq: int64(i + 1)}))
	}

	recs, err := s.ReadEvents(ctx, Filter{Types: []string{event.TimelineChanged}})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(2), recs[0].Seq)
	assert.Equal(t, int64(5), recs[1].Seq)

	recs, err = s.ReadEvents(ctx, Filter{AfterSeq: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(3), recs[0].Seq)
	assert.Equal(t, int64(4), recs[1].Seq)

	last, err := s.MaxSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), last)
}

func TestMaxSeq_Empty(t *testing.T) {
	s := createTestStore(t)
	last, err := s.MaxSeq(context.Background())
	require.NoError(t, err)
	assert.Zero(t, last)
}

type fixedSource struct{ tl *timeline.Timeline }

func (f *fixedSource) Timeline() *timeline.Timeline { return f.tl }

func TestJournal(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	src := &fixedSource{tl: twoClips(t)}
	r := event.NewRouter(event.WithLogger(quiet))
	j := NewJournal(ctx, s, src, WithJournalLogger(quiet))
	j.Attach(r)

	require.NoError(t, r.Emit(event.NewResult(event.TimelineChanged, map[string]string{"op": "publish"})))
	require.NoError(t, r.Emit(event.NewResult(event.PlaybackCursorUpdated, map[string]float64{"pixel": 0})))
	require.NoError(t, r.Emit(event.NewResult(event.PlaybackStateChanged, map[string]string{"state": "playing"})))
	// Unchanged timeline: journaled, no new snapshot.
	require.NoError(t, r.Emit(event.NewResult(event.TimelineChanged, map[string]string{"op": "publish"})))

	recs, err := s.ReadEvents(ctx, Filter{})
	require.NoError(t, err)
	got := make([]string, len(recs))
	for i, rec := range recs {
		got[i] = rec.Type
	}
	assert.Equal(t, []string{event.TimelineChanged, event.PlaybackStateChanged, event.TimelineChanged}, got)

	history, err := s.Snapshots(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, int64(1), history[0].Seq)

	j.Detach()
	require.NoError(t, r.Emit(event.NewResult(event.PlaybackStateChanged, nil)))
	recs, err = s.ReadEvents(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}

func TestJournal_HighRate(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	r := event.NewRouter(event.WithLogger(quiet))
	NewJournal(ctx, s, &fixedSource{tl: timeline.Empty()}, WithHighRate(), WithJournalLogger(quiet)).Attach(r)

	require.NoError(t, r.Emit(event.NewResult(event.PlaybackCursorUpdated, nil)))
	require.NoError(t, r.Emit(event.NewResult(event.PlaybackRenderFrame, nil)))

	recs, err := s.ReadEvents(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}
