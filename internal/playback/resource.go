package playback

import (
	"errors"
	"fmt"

	"github.com/roach88/cutline/internal/timeline"
)

// Resource is a live decode/display handle for one clip.
//
// Positions passed to Seek are seconds into the underlying source, i.e.
// Source.In plus the clip-local time.
type Resource interface {
	Seek(sourceTime float64) error
	Play() error
	Pause() error
	Close() error
	SetVolume(v float64)
	SetSpeed(s float64)
	// Handle is the opaque value handed to renderers.
	Handle() any
	// Size returns the raw frame dimensions; zero for images.
	Size() (width, height int)
}

// Callbacks report asynchronous resource progress. They may be invoked from
// any goroutine, including synchronously inside Open.
type Callbacks struct {
	Ready  func()
	Ended  func()
	Failed func(error)
}

// Opener acquires resources. Implemented by sim.Opener and real decoders.
type Opener interface {
	Open(c timeline.Clip, cb Callbacks) (Resource, error)
}

// ResourceError reports a clip that failed to load or decode. The scheduler
// recovers by skipping forward.
type ResourceError struct {
	ClipID string
	Index  int
	Ref    string
	Err    error
}

// Error implements the error interface.
func (e *ResourceError) Error() string {
	return fmt.Sprintf("clip %s (index %d, %s): %v", e.ClipID, e.Index, e.Ref, e.Err)
}

// Unwrap returns the underlying error.
func (e *ResourceError) Unwrap() error {
	return e.Err
}

// ErrorCode categorizes rejected playback commands.
type ErrorCode string

const (
	// ErrCodeNotResolvable indicates a start time outside [0, TotalDuration)
	// or an empty timeline.
	ErrCodeNotResolvable ErrorCode = "NOT_RESOLVABLE"
)

// Error is returned when a playback command is rejected. State is unchanged.
type Error struct {
	Code    ErrorCode
	Op      string
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Op, e.Message)
}

// IsNotResolvable reports whether err is an ErrCodeNotResolvable rejection.
func IsNotResolvable(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code == ErrCodeNotResolvable
	}
	return false
}
