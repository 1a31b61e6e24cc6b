// Package edit implements the structural edit operations on a timeline.
//
// Every operation validates its inputs against the snapshot it is given and
// returns either a new, fully recomputed snapshot or a *timeline.Error. The
// input snapshot is never modified, so a rejected edit leaves the caller's
// view exactly as it was.
//
// Targets name a clip by ID, by index, or both. When an ID is present it
// wins: indices drift under concurrent edits and IDs do not. An ID that is no
// longer in the snapshot is a state error (ErrCodeStaleClip); an index out of
// range is a validation error.
package edit

import (
	"fmt"

	"github.com/roach88/cutline/internal/timeline"
)

// EditError is the error returned by every rejected operation.
type EditError = timeline.Error

// CopySuffix is appended to the label of a duplicated clip.
const CopySuffix = " copy"

// Target identifies the clip an operation applies to.
type Target struct {
	Index int    `json:"index"`
	ID    string `json:"id,omitempty"`
}

// At targets a clip by position.
func At(index int) Target { return Target{Index: index} }

// ByID targets a clip by identity.
func ByID(id string) Target { return Target{ID: id} }

// Editor applies edit operations. It holds no timeline state of its own;
// the zero value is not usable because new clips need IDs.
type Editor struct {
	ids IDGenerator
}

// New creates an Editor minting clip IDs from ids.
func New(ids IDGenerator) *Editor {
	if ids == nil {
		ids = UUIDv7Generator{}
	}
	return &Editor{ids: ids}
}

// resolve maps a target to an index in tl.
func resolve(tl *timeline.Timeline, op string, target Target) (int, error) {
	if target.ID != "" {
		idx := tl.IndexOf(target.ID)
		if idx < 0 {
			return -1, &EditError{
				Code:    timeline.ErrCodeStaleClip,
				Op:      op,
				Index:   target.Index,
				ClipID:  target.ID,
				Message: "clip no longer exists in the latest snapshot",
			}
		}
		return idx, nil
	}
	if target.Index < 0 || target.Index >= tl.Len() {
		return -1, &EditError{
			Code:    timeline.ErrCodeInvalidIndex,
			Op:      op,
			Index:   target.Index,
			Message: fmt.Sprintf("index %d out of range [0, %d)", target.Index, tl.Len()),
		}
	}
	return target.Index, nil
}

// tag stamps op onto a validation error produced by the timeline package.
func tag(err error, op string) error {
	if te, ok := err.(*EditError); ok {
		te.Op = op
	}
	return err
}

// prepare validates a clip that is about to enter the timeline and gives it
// an identity when it has none.
func (e *Editor) prepare(op string, c timeline.Clip, index int) (timeline.Clip, error) {
	if err := timeline.ValidateClip(c); err != nil {
		te := err.(*EditError)
		te.Op = op
		te.Index = index
		return timeline.Clip{}, te
	}
	if c.ID == "" {
		c.ID = e.ids.Generate()
	}
	return c, nil
}

// Add appends a clip. The clip is rejected when its duration is not
// strictly positive or it carries no source.
func (e *Editor) Add(tl *timeline.Timeline, c timeline.Clip) (*timeline.Timeline, error) {
	return e.Insert(tl, tl.Len(), c)
}

// Insert places a clip so that it ends up at index. index == Len appends.
func (e *Editor) Insert(tl *timeline.Timeline, index int, c timeline.Clip) (*timeline.Timeline, error) {
	const op = "insert"
	if index < 0 || index > tl.Len() {
		return nil, &EditError{
			Code:    timeline.ErrCodeInvalidIndex,
			Op:      op,
			Index:   index,
			Message: fmt.Sprintf("insert position %d out of range [0, %d]", index, tl.Len()),
		}
	}
	c, err := e.prepare(op, c, index)
	if err != nil {
		return nil, err
	}

	clips := tl.Clips()
	out := make([]timeline.Clip, 0, len(clips)+1)
	out = append(out, clips[:index]...)
	out = append(out, c)
	out = append(out, clips[index:]...)

	next, err := tl.Next(out)
	return next, tag(err, op)
}

// Delete removes the targeted clip and returns it, so the caller can release
// anything the clip owned.
func (e *Editor) Delete(tl *timeline.Timeline, target Target) (*timeline.Timeline, timeline.Clip, error) {
	const op = "delete"
	idx, err := resolve(tl, op, target)
	if err != nil {
		return nil, timeline.Clip{}, err
	}

	clips := tl.Clips()
	removed := clips[idx]
	out := append(clips[:idx:idx], clips[idx+1:]...)

	next, err := tl.Next(out)
	if err != nil {
		return nil, timeline.Clip{}, tag(err, op)
	}
	return next, removed, nil
}

// Duplicate inserts a copy of the targeted clip immediately after it. The
// copy gets a fresh ID and a suffixed label.
func (e *Editor) Duplicate(tl *timeline.Timeline, target Target) (*timeline.Timeline, error) {
	const op = "duplicate"
	idx, err := resolve(tl, op, target)
	if err != nil {
		return nil, err
	}

	orig, _ := tl.Clip(idx)
	dup := orig
	dup.ID = e.ids.Generate()
	dup.Label = orig.Label + CopySuffix

	clips := tl.Clips()
	out := make([]timeline.Clip, 0, len(clips)+1)
	out = append(out, clips[:idx+1]...)
	out = append(out, dup)
	out = append(out, clips[idx+1:]...)

	next, err := tl.Next(out)
	return next, tag(err, op)
}

// Resize changes the targeted clip's duration and shifts every later clip.
//
// Video content cannot be fabricated: a video clip may be trimmed, or grown
// back up to exactly what its source holds from the clip's in-point, but no
// further. Image clips grow freely.
func (e *Editor) Resize(tl *timeline.Timeline, target Target, duration float64) (*timeline.Timeline, error) {
	const op = "resize"
	idx, err := resolve(tl, op, target)
	if err != nil {
		return nil, err
	}
	if !(duration > 0) {
		return nil, &EditError{
			Code:    timeline.ErrCodeInvalidDuration,
			Op:      op,
			Index:   idx,
			ClipID:  target.ID,
			Message: fmt.Sprintf("duration must be > 0, got %v", duration),
		}
	}

	clips := tl.Clips()
	c := clips[idx]
	if timeline.ExceedsSource(c, duration) {
		return nil, &EditError{
			Code:   timeline.ErrCodeVideoGrowth,
			Op:     op,
			Index:  idx,
			ClipID: c.ID,
			Message: fmt.Sprintf("duration %v exceeds the %v seconds available in %s",
				duration, c.Source.Available(), c.Source.Ref),
		}
	}
	clips[idx].Duration = duration

	next, err := tl.Next(clips)
	return next, tag(err, op)
}

// Split replaces the targeted clip with two clips of durations offset and
// Duration-offset. Both reference the same source; the second starts offset
// seconds further into it. offset must lie strictly inside the clip.
func (e *Editor) Split(tl *timeline.Timeline, target Target, offset float64) (*timeline.Timeline, error) {
	const op = "split"
	idx, err := resolve(tl, op, target)
	if err != nil {
		return nil, err
	}

	clips := tl.Clips()
	orig := clips[idx]
	if !(offset > 0 && offset < orig.Duration) {
		return nil, &EditError{
			Code:    timeline.ErrCodeInvalidOffset,
			Op:      op,
			Index:   idx,
			ClipID:  orig.ID,
			Message: fmt.Sprintf("offset %v must lie strictly inside (0, %v)", offset, orig.Duration),
		}
	}

	head := orig
	head.Duration = offset

	tail := orig
	tail.ID = e.ids.Generate()
	tail.Duration = orig.Duration - offset
	if orig.Kind == timeline.KindVideo {
		tail.Source.In = orig.Source.In + offset
	}
	// A cover frame stays a single cover frame.
	tail.ThumbnailOnly = false

	out := make([]timeline.Clip, 0, len(clips)+1)
	out = append(out, clips[:idx]...)
	out = append(out, head, tail)
	out = append(out, clips[idx+1:]...)

	next, err := tl.Next(out)
	return next, tag(err, op)
}

// Reorder replaces the sequence with the clips named by ids, in that order.
// ids must name every current clip exactly once.
func (e *Editor) Reorder(tl *timeline.Timeline, ids []string) (*timeline.Timeline, error) {
	const op = "reorder"
	reject := func(format string, args ...any) error {
		return &EditError{
			Code:    timeline.ErrCodeInvalidOrder,
			Op:      op,
			Index:   -1,
			Message: fmt.Sprintf(format, args...),
		}
	}

	if len(ids) != tl.Len() {
		return nil, reject("order names %d clips, timeline has %d", len(ids), tl.Len())
	}

	clips := tl.Clips()
	byID := make(map[string]timeline.Clip, len(clips))
	for _, c := range clips {
		byID[c.ID] = c
	}

	out := make([]timeline.Clip, 0, len(ids))
	used := make(map[string]bool, len(ids))
	for _, id := range ids {
		c, ok := byID[id]
		if !ok {
			return nil, reject("clip %q is not in the timeline", id)
		}
		if used[id] {
			return nil, reject("clip %q appears more than once", id)
		}
		used[id] = true
		out = append(out, c)
	}

	next, err := tl.Next(out)
	return next, tag(err, op)
}

// Move relocates the targeted clip so that it ends up at index to.
func (e *Editor) Move(tl *timeline.Timeline, target Target, to int) (*timeline.Timeline, error) {
	const op = "move"
	from, err := resolve(tl, op, target)
	if err != nil {
		return nil, err
	}
	if to < 0 || to >= tl.Len() {
		return nil, &EditError{
			Code:    timeline.ErrCodeInvalidIndex,
			Op:      op,
			Index:   to,
			Message: fmt.Sprintf("destination %d out of range [0, %d)", to, tl.Len()),
		}
	}

	clips := tl.Clips()
	ids := make([]string, 0, len(clips))
	for i, c := range clips {
		if i != from {
			ids = append(ids, c.ID)
		}
	}
	moved := clips[from].ID
	ids = append(ids[:to], append([]string{moved}, ids[to:]...)...)

	next, err := e.Reorder(tl, ids)
	return next, tag(err, op)
}

// Replace swaps the whole sequence, as an import does. Clips without an ID
// are given one. The result restarts at version zero.
func (e *Editor) Replace(clips []timeline.Clip) (*timeline.Timeline, error) {
	const op = "replace"
	out := make([]timeline.Clip, len(clips))
	for i, c := range clips {
		prepared, err := e.prepare(op, c, i)
		if err != nil {
			return nil, err
		}
		out[i] = prepared
	}
	tl, err := timeline.New(out)
	return tl, tag(err, op)
}
