package session

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/cutline/internal/edit"
	"github.com/roach88/cutline/internal/event"
	"github.com/roach88/cutline/internal/timeline"
)

// ClipRef names the clip an edit intent applies to: {"index": 2} or
// {"id": "..."}. Unlike edit.Target an absent index is not index 0, so a
// payload without either is rejected instead of editing the first clip.
type ClipRef struct {
	Index *int   `json:"index,omitempty"`
	ID    string `json:"id,omitempty"`
}

// AtIndex refers to a clip by position.
func AtIndex(i int) ClipRef { return ClipRef{Index: &i} }

// ByID refers to a clip by identity.
func ByID(id string) ClipRef { return ClipRef{ID: id} }

// Target resolves the reference. The ID wins when both are set.
func (r ClipRef) Target() (edit.Target, error) {
	switch {
	case r.ID != "":
		return edit.ByID(r.ID), nil
	case r.Index != nil:
		return edit.At(*r.Index), nil
	}
	return edit.Target{}, errNoTarget
}

var (
	errNoTarget      = errors.New("index or id is required")
	errNoDestination = errors.New("to is required")
	errNoPosition    = errors.New("index is required")
)

// Intent payloads. Clip references are flattened, so a delete reads
// {"index": 2} or {"id": "..."}.
type (
	AddClip struct {
		Clip timeline.Clip `json:"clip"`
	}
	InsertClip struct {
		Index *int          `json:"index"`
		Clip  timeline.Clip `json:"clip"`
	}
	TargetClip struct {
		ClipRef
	}
	SplitClip struct {
		ClipRef
		Offset float64 `json:"offset"`
	}
	ResizeClip struct {
		ClipRef
		Duration float64 `json:"duration"`
	}
	ReorderClips struct {
		IDs []string `json:"ids"`
	}
	MoveClip struct {
		ClipRef
		To *int `json:"to"`
	}
	ReplaceTimeline struct {
		Clips []timeline.Clip `json:"clips"`
	}
	Play struct {
		At *float64 `json:"at,omitempty"`
	}
	Seek struct {
		To float64 `json:"to"`
	}
	SetVolume struct {
		Volume float64 `json:"volume"`
	}
	SetSpeed struct {
		Speed float64 `json:"speed"`
	}
)

// Result payloads.
type (
	// TimelineChange is the payload of timeline.changed.
	TimelineChange struct {
		Op            string             `json:"op"`
		Version       uint64             `json:"version"`
		TotalDuration float64            `json:"total_duration"`
		Timeline      *timeline.Timeline `json:"timeline"`
	}
	// ClipRemoval is the payload of clip.removed.
	ClipRemoval struct {
		Index int           `json:"index"`
		Clip  timeline.Clip `json:"clip"`
	}
)

// PayloadError reports an intent whose data does not fit its type.
type PayloadError struct {
	Type string
	Err  error
}

// Error implements the error interface.
func (e *PayloadError) Error() string {
	return fmt.Sprintf("payload for %s: %v", e.Type, e.Err)
}

// Unwrap returns the underlying error.
func (e *PayloadError) Unwrap() error { return e.Err }

var decoders = map[string]func([]byte) (any, error){
	event.ClipAdd:           decodeAs[AddClip],
	event.ClipInsert:        decodeAs[InsertClip],
	event.ClipDelete:        decodeAs[TargetClip],
	event.ClipDuplicate:     decodeAs[TargetClip],
	event.ClipSplit:         decodeAs[SplitClip],
	event.ClipResize:        decodeAs[ResizeClip],
	event.ClipReorder:       decodeAs[ReorderClips],
	event.ClipMove:          decodeAs[MoveClip],
	event.TimelineReplace:   decodeAs[ReplaceTimeline],
	event.PlaybackPlay:      decodeAs[Play],
	event.PlaybackPause:     decodeAs[struct{}],
	event.PlaybackSeek:      decodeAs[Seek],
	event.PlaybackStop:      decodeAs[struct{}],
	event.PlaybackSetVolume: decodeAs[SetVolume],
	event.PlaybackSetSpeed:  decodeAs[SetSpeed],
}

func decodeAs[T any](raw []byte) (any, error) {
	var v T
	if len(raw) == 0 || string(raw) == "null" {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// DecodeIntent builds an External event from a type name and JSON data, as
// received over HTTP or from the edit command. Only the intent vocabulary is
// accepted here; other event types can still be emitted on the Router
// directly and reach wildcard subscribers.
func DecodeIntent(typ string, raw []byte) (event.Event, error) {
	decode, ok := decoders[typ]
	if !ok {
		return event.Event{}, fmt.Errorf("unknown intent %q", typ)
	}
	data, err := decode(raw)
	if err != nil {
		return event.Event{}, &PayloadError{Type: typ, Err: err}
	}
	return event.NewIntent(typ, data), nil
}

// payload extracts a T from ev.Data, accepting T, *T, raw JSON or nothing.
func payload[T any](ev event.Event) (T, error) {
	var zero T
	switch d := ev.Data.(type) {
	case T:
		return d, nil
	case *T:
		if d != nil {
			return *d, nil
		}
		return zero, nil
	case nil:
		return zero, nil // required fields are checked by the caller
	case json.RawMessage:
		v, err := decodeAs[T](d)
		if err != nil {
			return zero, &PayloadError{Type: ev.Type, Err: err}
		}
		return v.(T), nil
	case []byte:
		v, err := decodeAs[T](d)
		if err != nil {
			return zero, &PayloadError{Type: ev.Type, Err: err}
		}
		return v.(T), nil
	default:
		return zero, &PayloadError{Type: ev.Type, Err: fmt.Errorf("unexpected data type %T", ev.Data)}
	}
}
