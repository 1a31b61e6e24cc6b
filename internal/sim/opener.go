// Package sim provides a simulated media backend for the playback scheduler.
//
// It decodes nothing. Resources become ready immediately, keep time with the
// injected clock, and report a natural end when a video source runs out.
// Reference prefixes select failure modes:
//
//	fail:<ref>    Open returns an error
//	broken:<ref>  the resource becomes ready, then fails
package sim

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/roach88/cutline/internal/clock"
	"github.com/roach88/cutline/internal/playback"
	"github.com/roach88/cutline/internal/timeline"
)

// Reference prefixes understood by Opener.
const (
	PrefixFail   = "fail:"
	PrefixBroken = "broken:"
)

// ErrDecode is the cause reported for simulated failures.
var ErrDecode = errors.New("simulated decode failure")

// Opener opens simulated resources.
type Opener struct {
	Clock clock.Clock
	// CheckFiles requires plain paths and file:// URLs to exist.
	CheckFiles bool
	Width      int
	Height     int
}

var _ playback.Opener = (*Opener)(nil)

// NewOpener creates an opener reporting 1920x1080 video frames.
func NewOpener(c clock.Clock) *Opener {
	if c == nil {
		c = clock.Real{}
	}
	return &Opener{Clock: c, Width: 1920, Height: 1080}
}

// Open implements playback.Opener.
func (o *Opener) Open(c timeline.Clip, cb playback.Callbacks) (playback.Resource, error) {
	ref := c.Source.Ref
	if strings.HasPrefix(ref, PrefixFail) {
		return nil, fmt.Errorf("open %s: %w", ref, ErrDecode)
	}
	if o.CheckFiles {
		if err := checkFile(ref); err != nil {
			return nil, err
		}
	}

	r := &Resource{
		clock:  o.Clock,
		clip:   c,
		cb:     cb,
		speed:  1,
		volume: 1,
	}
	if c.Kind == timeline.KindVideo {
		r.width, r.height = o.Width, o.Height
	}

	cb.Ready()
	if strings.HasPrefix(ref, PrefixBroken) {
		cb.Failed(fmt.Errorf("decode %s: %w", ref, ErrDecode))
	}
	return r, nil
}

// checkFile verifies local references. Other schemes are accepted as is.
func checkFile(ref string) error {
	path := ref
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" {
		if u.Scheme != "file" {
			return nil
		}
		path = u.Path
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("open %s: %w", ref, err)
	}
	return nil
}

// Resource is a simulated decode handle.
//
// Thread-safety: methods are safe for concurrent use; the end-of-source
// timer fires on the clock's goroutine.
type Resource struct {
	mu     sync.Mutex
	clock  clock.Clock
	clip   timeline.Clip
	cb     playback.Callbacks
	width  int
	height int

	pos     float64 // seconds into the source
	since   time.Time
	playing bool
	speed   float64
	volume  float64
	closed  bool
	timer   clock.Timer
}

// Position returns the current source position.
func (r *Resource) Position() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.positionLocked()
}

func (r *Resource) positionLocked() float64 {
	if !r.playing {
		return r.pos
	}
	return r.pos + r.clock.Now().Sub(r.since).Seconds()*r.speed
}

// Seek moves to a source position.
func (r *Resource) Seek(sourceTime float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.New("seek on closed resource")
	}
	r.pos = sourceTime
	r.since = r.clock.Now()
	r.armLocked()
	return nil
}

// Play starts the source clock.
func (r *Resource) Play() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.New("play on closed resource")
	}
	if !r.playing {
		r.playing = true
		r.since = r.clock.Now()
	}
	r.armLocked()
	return nil
}

// Pause freezes the source clock.
func (r *Resource) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pos = r.positionLocked()
	r.playing = false
	r.disarmLocked()
	return nil
}

// Close releases the resource. Later calls are no-ops.
func (r *Resource) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.playing = false
	r.disarmLocked()
	return nil
}

// SetVolume records the volume.
func (r *Resource) SetVolume(v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.volume = v
}

// Volume returns the last applied volume.
func (r *Resource) Volume() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.volume
}

// SetSpeed changes the rate, keeping the current position.
func (r *Resource) SetSpeed(s float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pos = r.positionLocked()
	r.since = r.clock.Now()
	r.speed = s
	r.armLocked()
}

// Handle returns the source reference.
func (r *Resource) Handle() any { return r.clip.Source.Ref }

// Size returns the frame size; zero for images.
func (r *Resource) Size() (int, int) { return r.width, r.height }

// armLocked schedules the natural end of a playing video source.
func (r *Resource) armLocked() {
	r.disarmLocked()
	if !r.playing || r.closed || r.clip.Kind != timeline.KindVideo || r.speed <= 0 {
		return
	}
	remaining := r.clip.Source.Length - r.positionLocked()
	if remaining < 0 {
		remaining = 0
	}
	d := time.Duration(remaining / r.speed * float64(time.Second))
	ended := r.cb.Ended
	r.timer = r.clock.AfterFunc(d, func() {
		r.mu.Lock()
		live := !r.closed && r.playing
		r.mu.Unlock()
		if live && ended != nil {
			ended()
		}
	})
}

func (r *Resource) disarmLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
