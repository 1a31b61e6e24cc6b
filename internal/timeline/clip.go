package timeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Kind is the closed set of media a clip can be backed by.
type Kind int

const (
	// KindVideo is a clip backed by decodable video content.
	KindVideo Kind = iota + 1
	// KindImage is a clip backed by a still image shown for Duration seconds.
	KindImage
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindImage:
		return "image"
	default:
		return "unknown"
	}
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	return k == KindVideo || k == KindImage
}

// ParseKind converts a wire name into a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "video":
		return KindVideo, nil
	case "image":
		return KindImage, nil
	default:
		return 0, fmt.Errorf("unknown clip kind %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid clip kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Source locates the media bytes behind a clip.
//
// In is the offset into the source where the clip's local time zero sits.
// Split clips share a Ref and differ by In. Length is the full decodable
// length of the source in seconds; it bounds how far a video clip may grow.
// Image sources leave Length at zero.
type Source struct {
	Ref    string  `json:"ref"`
	In     float64 `json:"in,omitempty"`
	Length float64 `json:"length,omitempty"`
}

// Available returns how many seconds of source content exist from In onward.
func (s Source) Available() float64 {
	return s.Length - s.In
}

// Clip is one playable unit of the timeline.
//
// Start and End are derived by the owning Timeline and cannot be set from
// outside this package; a Clip built by hand reports zero for both until it
// is placed into a Timeline.
type Clip struct {
	ID            string
	Kind          Kind
	Source        Source
	Duration      float64
	Label         string
	Thumbnail     string
	ThumbnailOnly bool

	start float64
	end   float64
}

// NewVideoClip builds a video clip playing the first duration seconds of a
// source that is length seconds long.
func NewVideoClip(ref string, length, duration float64) Clip {
	return Clip{
		Kind:     KindVideo,
		Source:   Source{Ref: ref, Length: length},
		Duration: duration,
	}
}

// NewImageClip builds an image clip shown for duration seconds.
func NewImageClip(ref string, duration float64) Clip {
	return Clip{
		Kind:     KindImage,
		Source:   Source{Ref: ref},
		Duration: duration,
	}
}

// Start is the global time at which the clip begins.
func (c Clip) Start() float64 { return c.start }

// End is the global time at which the clip ends.
func (c Clip) End() float64 { return c.end }

// Playable reports whether playback should visit this clip.
func (c Clip) Playable() bool { return !c.ThumbnailOnly }

// NormalizedLabel returns the label in Unicode NFC with surrounding space
// trimmed, so visually identical labels compare equal.
func NormalizedLabel(label string) string {
	return norm.NFC.String(strings.TrimSpace(label))
}

type clipJSON struct {
	ID            string  `json:"id"`
	Kind          Kind    `json:"kind"`
	Source        Source  `json:"source"`
	Duration      float64 `json:"duration"`
	Start         float64 `json:"start_time"`
	End           float64 `json:"end_time"`
	Label         string  `json:"label,omitempty"`
	Thumbnail     string  `json:"thumbnail,omitempty"`
	ThumbnailOnly bool    `json:"thumbnail_only,omitempty"`
}

// MarshalJSON includes the derived start and end times.
func (c Clip) MarshalJSON() ([]byte, error) {
	return json.Marshal(clipJSON{
		ID:            c.ID,
		Kind:          c.Kind,
		Source:        c.Source,
		Duration:      c.Duration,
		Start:         c.start,
		End:           c.end,
		Label:         c.Label,
		Thumbnail:     c.Thumbnail,
		ThumbnailOnly: c.ThumbnailOnly,
	})
}

// UnmarshalJSON ignores start_time and end_time: they are recomputed when the
// clip is placed into a Timeline.
func (c *Clip) UnmarshalJSON(data []byte) error {
	var raw clipJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Clip{
		ID:            raw.ID,
		Kind:          raw.Kind,
		Source:        raw.Source,
		Duration:      raw.Duration,
		Label:         raw.Label,
		Thumbnail:     raw.Thumbnail,
		ThumbnailOnly: raw.ThumbnailOnly,
	}
	return nil
}
