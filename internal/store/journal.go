package store

import (
	"context"
	"log/slog"

	"github.com/roach88/cutline/internal/event"
	"github.com/roach88/cutline/internal/timeline"
)

// TimelineSource yields the session's current snapshot.
type TimelineSource interface {
	Timeline() *timeline.Timeline
}

// highRate lists the event types a journal skips unless WithHighRate is set.
var highRate = map[string]bool{
	event.PlaybackCursorUpdated: true,
	event.PlaybackRenderFrame:   true,
}

// JournalOption configures a Journal.
type JournalOption func(*Journal)

// WithHighRate also journals cursor and render-frame events.
func WithHighRate() JournalOption {
	return func(j *Journal) { j.all = true }
}

// WithJournalLogger sets the journal's logger.
func WithJournalLogger(l *slog.Logger) JournalOption {
	return func(j *Journal) { j.logger = l }
}

// Journal persists a session as it runs: every dispatched event, and a
// snapshot each time the timeline changes.
//
// It is a wildcard subscriber, so it runs on the dispatch goroutine. Write
// failures are logged and returned to the router, which logs them again
// against the subscription; they never interrupt dispatch.
type Journal struct {
	ctx    context.Context
	store  *Store
	source TimelineSource
	all    bool
	logger *slog.Logger
	sub    *event.Subscription
}

// NewJournal creates a journal writing to s. Snapshots are read from source.
func NewJournal(ctx context.Context, s *Store, source TimelineSource, opts ...JournalOption) *Journal {
	j := &Journal{
		ctx:    ctx,
		store:  s,
		source: source,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Attach subscribes the journal to every event on r.
func (j *Journal) Attach(r *event.Router) {
	j.sub = r.Subscribe(event.Wildcard, j.Handle)
}

// Detach unsubscribes the journal.
func (j *Journal) Detach() {
	if j.sub != nil {
		j.sub.Dispose()
		j.sub = nil
	}
}

// Handle journals one event.
func (j *Journal) Handle(ev event.Event) error {
	if highRate[ev.Type] && !j.all {
		return nil
	}
	if err := j.store.AppendEvent(j.ctx, ev); err != nil {
		j.logger.Warn("journal append failed", "error", err, "type", ev.Type, "seq", ev.Seq)
		return err
	}
	if ev.Type != event.TimelineChanged {
		return nil
	}

	tl := j.source.Timeline()
	inserted, err := j.store.WriteSnapshot(j.ctx, tl, ev.Seq)
	if err != nil {
		j.logger.Warn("journal snapshot failed", "error", err, "version", tl.Version())
		return err
	}
	if inserted {
		j.logger.Debug("snapshot stored", "version", tl.Version(), "seq", ev.Seq)
	}
	return nil
}
