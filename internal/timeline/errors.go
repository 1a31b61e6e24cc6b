package timeline

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes rejected timeline changes.
type ErrorCode string

const (
	// ErrCodeInvalidIndex indicates an index outside [0, Len()).
	ErrCodeInvalidIndex ErrorCode = "INVALID_INDEX"

	// ErrCodeInvalidDuration indicates a duration that is not strictly positive.
	ErrCodeInvalidDuration ErrorCode = "INVALID_DURATION"

	// ErrCodeMissingSource indicates a clip with neither video nor image source.
	ErrCodeMissingSource ErrorCode = "MISSING_SOURCE"

	// ErrCodeInvalidKind indicates a clip kind outside the closed set.
	ErrCodeInvalidKind ErrorCode = "INVALID_KIND"

	// ErrCodeVideoGrowth indicates a video clip resized past its decodable length.
	ErrCodeVideoGrowth ErrorCode = "VIDEO_GROWTH"

	// ErrCodeInvalidOffset indicates a split offset outside (0, Duration).
	ErrCodeInvalidOffset ErrorCode = "INVALID_OFFSET"

	// ErrCodeInvalidOrder indicates a reorder that does not name every clip exactly once.
	ErrCodeInvalidOrder ErrorCode = "INVALID_ORDER"

	// ErrCodeDuplicateID indicates two clips sharing an ID.
	ErrCodeDuplicateID ErrorCode = "DUPLICATE_ID"

	// ErrCodeStaleClip indicates the targeted clip no longer exists in the
	// latest snapshot, usually because of a concurrent delete.
	ErrCodeStaleClip ErrorCode = "STALE_CLIP"
)

// Error is returned when a change to the timeline is rejected.
// The snapshot the change was attempted on is never modified.
type Error struct {
	Code    ErrorCode
	Op      string
	Index   int
	ClipID  string
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" && e.ClipID != "" {
		return fmt.Sprintf("%s: %s: %s (clip=%s)", e.Code, e.Op, e.Message, e.ClipID)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s (index=%d)", e.Code, e.Op, e.Message, e.Index)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsStateError reports whether err targets a clip that no longer exists.
// Callers should re-resolve their target against the latest snapshot.
func IsStateError(err error) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Code == ErrCodeStaleClip
	}
	return false
}

// IsValidationError reports whether err is a rejected input rather than a
// stale target.
func IsValidationError(err error) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Code != ErrCodeStaleClip
	}
	return false
}

// CodeOf extracts the error code, or "" for foreign errors.
func CodeOf(err error) ErrorCode {
	var te *Error
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

func newError(code ErrorCode, index int, format string, args ...any) *Error {
	return &Error{Code: code, Index: index, Message: fmt.Sprintf(format, args...)}
}

// ValidateClip checks the per-clip invariants: a known kind, a source
// reference and a strictly positive duration. Video clips must also fit
// inside the source's decodable length when one is known.
func ValidateClip(c Clip) error {
	if !c.Kind.Valid() {
		return newError(ErrCodeInvalidKind, -1, "clip kind %d is neither video nor image", int(c.Kind))
	}
	if c.Source.Ref == "" {
		return newError(ErrCodeMissingSource, -1, "%s clip has no source reference", c.Kind)
	}
	if !(c.Duration > 0) {
		return newError(ErrCodeInvalidDuration, -1, "duration must be > 0, got %v", c.Duration)
	}
	if c.Kind == KindVideo && c.Source.Length > 0 && ExceedsSource(c, c.Duration) {
		return newError(ErrCodeVideoGrowth, -1,
			"duration %v exceeds the %v seconds available in the source", c.Duration, c.Source.Available())
	}
	return nil
}

// growthEpsilon absorbs float noise from repeated split/resize arithmetic.
const growthEpsilon = 1e-9

// ExceedsSource reports whether a video clip cannot be given duration d.
// Video content cannot be fabricated: d may equal but not exceed what the
// source still holds from the clip's in-point.
func ExceedsSource(c Clip, d float64) bool {
	if c.Kind != KindVideo {
		return false
	}
	return d > c.Source.Available()+growthEpsilon
}
