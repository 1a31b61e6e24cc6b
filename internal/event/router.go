package event

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
)

// Handler consumes one event. A returned error is logged by the router and
// does not affect delivery to other subscribers.
type Handler func(Event) error

// IDGenerator mints event IDs. Implemented by edit.UUIDv7Generator and the
// sequence generators used in tests.
type IDGenerator interface {
	Generate() string
}

// Subscription is a registered handler. Dispose removes it.
type Subscription struct {
	id       int
	typ      string
	handler  Handler
	router   *Router
	disposed atomic.Bool
}

// ID returns the subscription's registration number. Lower IDs are called
// first.
func (s *Subscription) ID() int { return s.id }

// Type returns the subscribed event type, or Wildcard.
func (s *Subscription) Type() string { return s.typ }

// Dispose unsubscribes. Safe to call more than once and from inside a
// handler; an event already being dispatched is not delivered to a disposed
// subscription.
func (s *Subscription) Dispose() {
	if s.disposed.Swap(true) {
		return
	}
	s.router.remove(s)
}

// SubscribeOption configures a subscription.
type SubscribeOption func(*subscribeOptions)

type subscribeOptions struct {
	replay bool
}

// WithReplay delivers the most recent Internal event of the subscribed type
// (every retained type, in Seq order, for Wildcard) at subscribe time.
func WithReplay() SubscribeOption {
	return func(o *subscribeOptions) { o.replay = true }
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router's logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMaxDepth bounds nested emission. Default: DefaultMaxDepth.
func WithMaxDepth(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.maxDepth = n
		}
	}
}

// WithSeqClock sets the logical clock, e.g. one resumed from a journal.
func WithSeqClock(c *SeqClock) Option {
	return func(r *Router) {
		if c != nil {
			r.seq = c
		}
	}
}

// WithIDGenerator stamps every dispatched event that has no ID.
func WithIDGenerator(g IDGenerator) Option {
	return func(r *Router) { r.ids = g }
}

// Router dispatches events to subscribers.
//
// Thread-safety model:
//   - Subscribe, Dispose, Enqueue, Post, Stop: safe from any goroutine
//   - Emit, Drain, Run: must be called from the single dispatch goroutine
//     (the one running Run, or the test goroutine when Run is not used)
type Router struct {
	mu     sync.RWMutex
	subs   []*Subscription
	nextID int
	last   map[string]Event

	seq      *SeqClock
	ids      IDGenerator
	queue    *workQueue
	maxDepth int
	depth    int // dispatch goroutine only
	logger   *slog.Logger
}

// NewRouter creates a router with an open intent queue.
func NewRouter(opts ...Option) *Router {
	r := &Router{
		last:     make(map[string]Event),
		seq:      NewSeqClock(),
		queue:    newWorkQueue(),
		maxDepth: DefaultMaxDepth,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Seq returns the router's logical clock.
func (r *Router) Seq() *SeqClock { return r.seq }

// Subscribe registers h for events of typ, or for every event when typ is
// Wildcard.
func (r *Router) Subscribe(typ string, h Handler, opts ...SubscribeOption) *Subscription {
	var o subscribeOptions
	for _, opt := range opts {
		opt(&o)
	}

	r.mu.Lock()
	r.nextID++
	sub := &Subscription{id: r.nextID, typ: typ, handler: h, router: r}
	r.subs = append(r.subs, sub)

	var replay []Event
	if o.replay {
		if typ == Wildcard {
			for _, ev := range r.last {
				replay = append(replay, ev)
			}
			sort.Slice(replay, func(i, j int) bool { return replay[i].Seq < replay[j].Seq })
		} else if ev, ok := r.last[typ]; ok {
			replay = append(replay, ev)
		}
	}
	r.mu.Unlock()

	for _, ev := range replay {
		r.deliver(sub, ev)
	}
	return sub
}

// SubscriberCount returns the number of live subscriptions.
func (r *Router) SubscriberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

func (r *Router) remove(s *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, sub := range r.subs {
		if sub == s {
			r.subs = append(r.subs[:i:i], r.subs[i+1:]...)
			return
		}
	}
}

// Emit delivers ev synchronously to every matching subscriber.
//
// External events already marked processed are dropped. External events are
// marked processed before delivery. Internal events are retained for
// WithReplay. The only error returned is a *CascadeDepthError.
func (r *Router) Emit(ev Event) error {
	if ev.Origin == 0 {
		ev.Origin = Internal
	}
	if ev.Origin == External && ev.Processed {
		r.logger.Debug("dropping processed intent", "type", ev.Type, "seq", ev.Seq)
		return nil
	}
	if r.depth >= r.maxDepth {
		err := &CascadeDepthError{Type: ev.Type, Depth: r.depth, Limit: r.maxDepth}
		r.logger.Error("event refused", "error", err, "type", ev.Type)
		return err
	}

	if ev.Origin == External {
		ev.Processed = true
	}
	ev.Seq = r.seq.Next()
	if ev.ID == "" && r.ids != nil {
		ev.ID = r.ids.Generate()
	}

	r.mu.Lock()
	if ev.Origin == Internal {
		r.last[ev.Type] = ev
	}
	targets := make([]*Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		if sub.typ == ev.Type || sub.typ == Wildcard {
			targets = append(targets, sub)
		}
	}
	r.mu.Unlock()

	r.depth++
	defer func() { r.depth-- }()

	for _, sub := range targets {
		if sub.disposed.Load() {
			continue
		}
		r.deliver(sub, ev)
	}
	return nil
}

// deliver calls one handler, containing its error or panic.
func (r *Router) deliver(sub *Subscription, ev Event) {
	defer func() {
		if p := recover(); p != nil {
			r.logHandlerError(ev, &HandlerError{
				Type:           ev.Type,
				SubscriptionID: sub.id,
				Panic:          true,
				Err:            fmt.Errorf("%v", p),
			})
		}
	}()
	if err := sub.handler(ev); err != nil {
		r.logHandlerError(ev, &HandlerError{Type: ev.Type, SubscriptionID: sub.id, Err: err})
	}
}

func (r *Router) logHandlerError(ev Event, err *HandlerError) {
	r.logger.Error("subscriber failed",
		"error", err,
		"type", ev.Type,
		"seq", ev.Seq,
		"subscription", err.SubscriptionID,
		"panic", err.Panic,
	)
}

// Enqueue submits an External intent for dispatch by the Run loop.
// Thread-safe: may be called from any goroutine.
func (r *Router) Enqueue(ev Event) error {
	if ev.Origin == 0 {
		ev.Origin = External
	}
	if ev.Origin != External {
		return ErrInternalIntent
	}
	if !r.queue.Enqueue(item{event: ev}) {
		return ErrStopped
	}
	return nil
}

// Post schedules fn to run on the dispatch goroutine after everything
// already queued. Timer and resource callbacks use it to re-enter the loop.
// Thread-safe: may be called from any goroutine.
func (r *Router) Post(fn func()) error {
	if !r.queue.Enqueue(item{fn: fn}) {
		return ErrStopped
	}
	return nil
}

// Pending returns the number of queued intents and callbacks.
func (r *Router) Pending() int {
	return r.queue.Len()
}

// Drain processes queued work on the calling goroutine until the queue is
// empty, including work queued while draining. It returns the number of
// items processed. Must not be used while Run is active.
func (r *Router) Drain() int {
	n := 0
	for {
		it, ok := r.queue.TryDequeue()
		if !ok {
			return n
		}
		r.process(it)
		n++
	}
}

// Run starts the single-writer dispatch loop.
// Blocks until ctx is cancelled or Stop is called and the queue is drained.
//
// Failures inside handlers and posted callbacks are logged and the loop
// continues.
func (r *Router) Run(ctx context.Context) error {
	r.logger.Info("router starting")

	for {
		if it, ok := r.queue.TryDequeue(); ok {
			r.process(it)
			continue
		}

		select {
		case <-ctx.Done():
			r.logger.Info("router stopping: context cancelled")
			r.queue.Close()
			return ctx.Err()

		case <-r.queue.Wait():
			// The signal channel is closed by Stop, so this fires
			// immediately once stopped.
			if r.queue.Closed() && r.queue.Len() == 0 {
				r.logger.Info("router stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue. Run returns once pending work is done.
func (r *Router) Stop() {
	r.queue.Close()
}

func (r *Router) process(it item) {
	if it.fn != nil {
		r.runPosted(it.fn)
		return
	}
	// Errors are logged by Emit.
	_ = r.Emit(it.event)
}

func (r *Router) runPosted(fn func()) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("posted callback panicked", "panic", fmt.Sprint(p))
		}
	}()
	fn()
}
