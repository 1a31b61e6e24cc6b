package event

import (
	"errors"
	"fmt"
)

// DefaultMaxDepth bounds how deeply emission may nest inside handlers.
const DefaultMaxDepth = 64

// CascadeDepthError is returned when a handler emits while dispatch is
// already MaxDepth levels deep. The event is not delivered.
type CascadeDepthError struct {
	Type  string
	Depth int
	Limit int
}

// Error implements the error interface.
func (e *CascadeDepthError) Error() string {
	return fmt.Sprintf("event %s refused at dispatch depth %d (limit %d)", e.Type, e.Depth, e.Limit)
}

// IsCascadeDepthError reports whether err is a CascadeDepthError.
func IsCascadeDepthError(err error) bool {
	var ce *CascadeDepthError
	return errors.As(err, &ce)
}

// HandlerError wraps an error or recovered panic from one subscriber.
// It is logged at the dispatch site and never stops delivery to others.
type HandlerError struct {
	Type           string
	SubscriptionID int
	Panic          bool
	Err            error
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	if e.Panic {
		return fmt.Sprintf("subscriber %d panicked handling %s: %v", e.SubscriptionID, e.Type, e.Err)
	}
	return fmt.Sprintf("subscriber %d failed handling %s: %v", e.SubscriptionID, e.Type, e.Err)
}

// Unwrap returns the underlying error.
func (e *HandlerError) Unwrap() error {
	return e.Err
}

// ErrStopped is returned by Enqueue and Post after Stop.
var ErrStopped = errors.New("event router stopped")

// ErrInternalIntent is returned when an Internal event is offered to the
// intent queue.
var ErrInternalIntent = errors.New("internal events cannot be enqueued as intents")
