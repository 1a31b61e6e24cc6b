// Package timeline holds the ordered clip sequence and its derived timing.
//
// A Timeline is an immutable snapshot. Every structural change produces a
// fresh Timeline whose clip offsets have been recomputed in one linear pass,
// so a caller never observes a partially updated sequence.
//
// INVARIANTS (checked by tests for every snapshot):
//   - clip[i].Start() == sum of clip[0..i-1].Duration
//   - clip[i].End() == clip[i].Start() + clip[i].Duration
//   - clip[i].End() == clip[i+1].Start()
//   - TotalDuration() == sum of every Duration
//   - no Duration <= 0, no duplicate IDs
package timeline

import (
	"encoding/json"
	"math"
	"strconv"
)

// Timeline is an ordered, contiguous sequence of clips.
type Timeline struct {
	clips   []Clip
	total   float64
	version uint64
}

// Position locates a global time inside the timeline.
type Position struct {
	Index int
	Local float64
}

// Empty returns a timeline with no clips at version 0.
func Empty() *Timeline {
	return &Timeline{}
}

// New validates clips and builds a recomputed snapshot at version 0.
// The input slice is copied; later mutation by the caller has no effect.
func New(clips []Clip) (*Timeline, error) {
	return build(clips, 0)
}

// Next builds the snapshot that succeeds t, with the version incremented.
// Edit operations use it so consumers can order snapshots.
func (t *Timeline) Next(clips []Clip) (*Timeline, error) {
	return build(clips, t.Version()+1)
}

func build(clips []Clip, version uint64) (*Timeline, error) {
	out := make([]Clip, len(clips))
	seen := make(map[string]int, len(clips))
	for i, c := range clips {
		c.Label = NormalizedLabel(c.Label)
		if c.Kind == KindVideo && c.Source.Length == 0 {
			// The importer measured the clip itself; treat that as the whole source.
			c.Source.Length = c.Source.In + c.Duration
		}
		if err := ValidateClip(c); err != nil {
			te := err.(*Error)
			te.Index = i
			te.ClipID = c.ID
			return nil, te
		}
		if c.ID != "" {
			if prev, dup := seen[c.ID]; dup {
				return nil, &Error{
					Code:    ErrCodeDuplicateID,
					Index:   i,
					ClipID:  c.ID,
					Message: "clip id already used at index " + strconv.Itoa(prev),
				}
			}
			seen[c.ID] = i
		}
		out[i] = c
	}
	tl := &Timeline{clips: out, version: version}
	tl.recompute()
	return tl, nil
}

// recompute reassigns every clip's start and end from its position and
// duration. It is a single pass and idempotent.
func (t *Timeline) recompute() {
	acc := 0.0
	for i := range t.clips {
		t.clips[i].start = acc
		acc += t.clips[i].Duration
		t.clips[i].end = acc
	}
	t.total = acc
}

// Len returns the number of clips.
func (t *Timeline) Len() int {
	if t == nil {
		return 0
	}
	return len(t.clips)
}

// TotalDuration is the sum of every clip's duration.
func (t *Timeline) TotalDuration() float64 {
	if t == nil {
		return 0
	}
	return t.total
}

// Version increases by one with every edit. Imports restart at zero.
func (t *Timeline) Version() uint64 {
	if t == nil {
		return 0
	}
	return t.version
}

// Clip returns the clip at index i.
func (t *Timeline) Clip(i int) (Clip, bool) {
	if t == nil || i < 0 || i >= len(t.clips) {
		return Clip{}, false
	}
	return t.clips[i], true
}

// Clips returns a copy of the ordered clip list.
func (t *Timeline) Clips() []Clip {
	if t == nil {
		return nil
	}
	out := make([]Clip, len(t.clips))
	copy(out, t.clips)
	return out
}

// Durations returns the clip durations in order.
func (t *Timeline) Durations() []float64 {
	out := make([]float64, t.Len())
	for i := range out {
		out[i] = t.clips[i].Duration
	}
	return out
}

// IndexOf returns the index of the clip with the given ID, or -1.
func (t *Timeline) IndexOf(id string) int {
	if t == nil || id == "" {
		return -1
	}
	for i := range t.clips {
		if t.clips[i].ID == id {
			return i
		}
	}
	return -1
}

// AccumulatedTime is the sum of the durations of every clip before index.
// It is 0 for index <= 0 and TotalDuration for index >= Len.
func (t *Timeline) AccumulatedTime(index int) float64 {
	if t == nil || index <= 0 {
		return 0
	}
	if index >= len(t.clips) {
		return t.total
	}
	return t.clips[index].start
}

// Resolve finds the clip covering global time g, such that
// Start <= g < End. It reports false for g < 0, g >= TotalDuration, NaN,
// or an empty timeline.
func (t *Timeline) Resolve(g float64) (Position, bool) {
	if t == nil || len(t.clips) == 0 || math.IsNaN(g) || g < 0 || g >= t.total {
		return Position{}, false
	}
	// Binary search over start offsets; clips are contiguous and sorted.
	lo, hi := 0, len(t.clips)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if t.clips[mid].start <= g {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return Position{Index: lo, Local: g - t.clips[lo].start}, true
}

// ResolveClamped behaves like Resolve after clamping g into
// [0, TotalDuration]. A time at the very end resolves to the final clip at
// its terminal local position. It reports false only for an empty timeline.
func (t *Timeline) ResolveClamped(g float64) (Position, bool) {
	if t == nil || len(t.clips) == 0 {
		return Position{}, false
	}
	if math.IsNaN(g) || g < 0 {
		g = 0
	}
	if g >= t.total {
		last := len(t.clips) - 1
		return Position{Index: last, Local: t.clips[last].Duration}, true
	}
	return t.Resolve(g)
}

// Clamp bounds g to [0, TotalDuration].
func (t *Timeline) Clamp(g float64) float64 {
	if math.IsNaN(g) || g < 0 {
		return 0
	}
	if total := t.TotalDuration(); g > total {
		return total
	}
	return g
}

// MarshalJSON renders the serializable shape consumed by persistence:
// the ordered clip list, total duration and version.
func (t *Timeline) MarshalJSON() ([]byte, error) {
	clips := t.Clips()
	if clips == nil {
		clips = []Clip{}
	}
	return json.Marshal(struct {
		Version       uint64  `json:"version"`
		TotalDuration float64 `json:"total_duration"`
		Clips         []Clip  `json:"clips"`
	}{t.Version(), t.TotalDuration(), clips})
}

// UnmarshalJSON restores a snapshot, validating and recomputing it.
func (t *Timeline) UnmarshalJSON(data []byte) error {
	var raw struct {
		Version uint64 `json:"version"`
		Clips   []Clip `json:"clips"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	tl, err := build(raw.Clips, raw.Version)
	if err != nil {
		return err
	}
	*t = *tl
	return nil
}
