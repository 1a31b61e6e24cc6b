// Package clock abstracts wall-clock time for the playback scheduler so tests
// can drive ticks deterministically.
package clock

import "time"

// Timer is a pending callback registered with AfterFunc.
type Timer interface {
	// Stop prevents the callback from firing. It reports whether the call
	// stopped the timer; false means it already fired or was stopped.
	Stop() bool
}

// Clock provides the current time and one-shot timers.
//
// AfterFunc callbacks may run on any goroutine. Callers that need
// single-goroutine execution re-post the work onto their own loop.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Real is the system clock.
type Real struct{}

// Now returns time.Now.
func (Real) Now() time.Time { return time.Now() }

// AfterFunc wraps time.AfterFunc.
func (Real) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
