package playback

// StateChange is the payload of playback.stateChanged.
type StateChange struct {
	State       State   `json:"state"`
	CurrentTime float64 `json:"current_time"`
	Index       int     `json:"index"`
	ClipID      string  `json:"clip_id,omitempty"`
}

// Cursor is the payload of playback.cursorUpdated.
type Cursor struct {
	Pixel        float64 `json:"pixel"`
	GlobalSecond float64 `json:"global_second"`
	Index        int     `json:"index"`
	ClipID       string  `json:"clip_id,omitempty"`
}

// Frame is the payload of playback.renderFrame.
type Frame struct {
	Handle    any     `json:"handle,omitempty"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	LocalTime float64 `json:"local_time"`
	Index     int     `json:"index"`
	ClipID    string  `json:"clip_id"`
}

// VolumeChange is the payload of playback.volumeChanged.
type VolumeChange struct {
	Volume    float64 `json:"volume"`
	Requested float64 `json:"requested"`
}

// SpeedChange is the payload of playback.speedChanged.
type SpeedChange struct {
	Speed     float64 `json:"speed"`
	Requested float64 `json:"requested"`
}

// ResourceFailure is the payload of playback.resourceFailed.
type ResourceFailure struct {
	ClipID string `json:"clip_id"`
	Index  int    `json:"index"`
	Ref    string `json:"ref"`
	Reason string `json:"reason"`
}
