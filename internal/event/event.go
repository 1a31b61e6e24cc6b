package event

import "fmt"

// Origin distinguishes fresh intents from the results of processing them.
type Origin int

const (
	// External marks an intent entering the system from outside.
	External Origin = iota + 1
	// Internal marks a result produced while handling another event.
	Internal
)

// String returns the lowercase origin name.
func (o Origin) String() string {
	switch o {
	case External:
		return "external"
	case Internal:
		return "internal"
	default:
		return fmt.Sprintf("origin(%d)", int(o))
	}
}

// Wildcard subscribes to every event type.
const Wildcard = "*"

// Intent types (External origin).
const (
	ClipAdd         = "clip.add"
	ClipInsert      = "clip.insert"
	ClipDelete      = "clip.delete"
	ClipDuplicate   = "clip.duplicate"
	ClipSplit       = "clip.split"
	ClipResize      = "clip.resize"
	ClipReorder     = "clip.reorder"
	ClipMove        = "clip.move"
	TimelineReplace = "timeline.replace"

	PlaybackPlay      = "playback.play"
	PlaybackPause     = "playback.pause"
	PlaybackSeek      = "playback.seek"
	PlaybackStop      = "playback.stop"
	PlaybackSetVolume = "playback.setVolume"
	PlaybackSetSpeed  = "playback.setSpeed"
)

// Result types (Internal origin).
const (
	TimelineChanged        = "timeline.changed"
	ClipRemoved            = "clip.removed"
	PlaybackStateChanged   = "playback.stateChanged"
	PlaybackCursorUpdated  = "playback.cursorUpdated"
	PlaybackRenderFrame    = "playback.renderFrame"
	PlaybackVolumeChanged  = "playback.volumeChanged"
	PlaybackSpeedChanged   = "playback.speedChanged"
	PlaybackResourceFailed = "playback.resourceFailed"
	OperationFailed        = "operation.failed"
)

// Event is the unit of dispatch.
//
// Processed is set only by the Router. Subscribers receive events by value,
// so a handler cannot change what later subscribers see.
type Event struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Origin    Origin `json:"origin"`
	Processed bool   `json:"processed"`
	Seq       int64  `json:"seq"`
	ID        string `json:"id,omitempty"`
}

// NewIntent creates an External event.
func NewIntent(typ string, data any) Event {
	return Event{Type: typ, Data: data, Origin: External}
}

// NewResult creates an Internal event.
func NewResult(typ string, data any) Event {
	return Event{Type: typ, Data: data, Origin: Internal}
}

// IsIntent reports whether typ names one of the known intents.
func IsIntent(typ string) bool {
	_, ok := intents[typ]
	return ok
}

var intents = map[string]struct{}{
	ClipAdd: {}, ClipInsert: {}, ClipDelete: {}, ClipDuplicate: {}, ClipSplit: {},
	ClipResize: {}, ClipReorder: {}, ClipMove: {}, TimelineReplace: {},
	PlaybackPlay: {}, PlaybackPause: {}, PlaybackSeek: {}, PlaybackStop: {},
	PlaybackSetVolume: {}, PlaybackSetSpeed: {},
}

// Failure is the payload of operation.failed.
type Failure struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Intent    string `json:"intent"`
	IntentSeq int64  `json:"intent_seq,omitempty"`
	Index     int    `json:"index,omitempty"`
	ClipID    string `json:"clip_id,omitempty"`
}
