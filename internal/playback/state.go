package playback

import (
	"fmt"
	"math"
	"strings"
)

// State is the scheduler's transport state.
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// EndPolicy decides what happens when playback runs past the last clip.
type EndPolicy string

const (
	// EndStop parks the cursor at the total duration and stops.
	EndStop EndPolicy = "stop"
	// EndLoop restarts from time zero.
	EndLoop EndPolicy = "loop"
)

// ParseEndPolicy parses "stop" or "loop". The empty string is EndStop.
func ParseEndPolicy(s string) (EndPolicy, error) {
	switch EndPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", EndStop:
		return EndStop, nil
	case EndLoop:
		return EndLoop, nil
	default:
		return "", fmt.Errorf("unknown end policy %q (want stop or loop)", s)
	}
}

// Speeds is the closed set of playback rates.
var Speeds = []float64{0.5, 1, 1.5, 2}

// ClampSpeed returns s if it is one of Speeds and 1 otherwise.
func ClampSpeed(s float64) float64 {
	for _, allowed := range Speeds {
		if s == allowed {
			return s
		}
	}
	return 1
}

// ClampVolume limits v to [0, 1]. NaN is treated as full volume.
func ClampVolume(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 1
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// PlaybackState is the scheduler-owned view of playback.
//
// Index and Local are the position of CurrentTime on the current snapshot;
// Index is -1 when the timeline is empty.
type PlaybackState struct {
	State       State   `json:"state"`
	Playing     bool    `json:"playing"`
	CurrentTime float64 `json:"current_time"`
	Volume      float64 `json:"volume"`
	Speed       float64 `json:"speed"`
	Index       int     `json:"index"`
	Local       float64 `json:"local"`
	ClipID      string  `json:"clip_id,omitempty"`
}

// InitialState is the state of a new scheduler.
func InitialState() PlaybackState {
	return PlaybackState{State: Stopped, Volume: 1, Speed: 1, Index: -1}
}
