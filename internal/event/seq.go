package event

import "sync/atomic"

// SeqClock is the monotonic logical clock that orders dispatched events.
// Wall-clock time is never used for ordering.
//
// Thread-safety: SeqClock is safe for concurrent use.
type SeqClock struct {
	seq atomic.Int64
}

// NewSeqClock creates a clock whose first Next returns 1.
func NewSeqClock() *SeqClock {
	return &SeqClock{}
}

// NewSeqClockAt creates a clock resuming after start, as when a journal is
// reopened.
func NewSeqClockAt(start int64) *SeqClock {
	c := &SeqClock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number.
func (c *SeqClock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number.
func (c *SeqClock) Current() int64 {
	return c.seq.Load()
}
