package api

import (
	"encoding/json"

	"github.com/roach88/cutline/internal/playback"
	"github.com/roach88/cutline/internal/store"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

// IntentRequest is the body of POST /intents.
type IntentRequest struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type IntentResponse struct {
	Accepted bool   `json:"accepted"`
	Type     string `json:"type"`
}

type PlaybackResponse struct {
	playback.PlaybackState
	TimelineVersion uint64  `json:"timeline_version"`
	TotalDuration   float64 `json:"total_duration"`
}

type EventResponse struct {
	Seq    int64           `json:"seq"`
	ID     string          `json:"id,omitempty"`
	Type   string          `json:"type"`
	Origin string          `json:"origin"`
	Data   json.RawMessage `json:"data"`
}

type EventsResponse struct {
	Events []EventResponse `json:"events"`
}

func RecordToResponse(rec store.Record) EventResponse {
	return EventResponse{
		Seq:    rec.Seq,
		ID:     rec.ID,
		Type:   rec.Type,
		Origin: rec.Origin,
		Data:   json.RawMessage(rec.Data),
	}
}
