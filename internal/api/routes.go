package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/cutline/internal/event"
	"github.com/roach88/cutline/internal/export"
	"github.com/roach88/cutline/internal/session"
	"github.com/roach88/cutline/internal/store"
)

// viewTimeout bounds how long a read waits for the dispatch loop.
const viewTimeout = 2 * time.Second

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))
	r.Get("/timeline", timelineHandler(cfg))
	r.Get("/playback", playbackHandler(cfg))
	r.Post("/intents", intentHandler(cfg))
	r.Get("/export.edl", edlHandler(cfg))
	if cfg.Store != nil {
		r.Get("/events", eventsHandler(cfg))
	}

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: Version,
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
		})
	}
}

func timelineHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, cfg.Session.Timeline())
	}
}

func playbackHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), viewTimeout)
		defer cancel()

		view, err := cfg.Session.View(ctx)
		if err != nil {
			if errors.Is(err, event.ErrStopped) {
				WriteError(w, http.StatusServiceUnavailable, "session stopped", "UNAVAILABLE")
				return
			}
			WriteError(w, http.StatusGatewayTimeout, "session did not respond", "TIMEOUT")
			return
		}
		WriteJSON(w, http.StatusOK, PlaybackResponse{
			PlaybackState:   view.Playback,
			TimelineVersion: view.Timeline.Version(),
			TotalDuration:   view.Timeline.TotalDuration(),
		})
	}
}

// intentHandler accepts the intent vocabulary only. Result and custom event
// types are emitted in-process on the Router, never posted by clients.
func intentHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req IntentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.Type == "" {
			WriteError(w, http.StatusBadRequest, "type is required", "BAD_REQUEST")
			return
		}

		ev, err := session.DecodeIntent(req.Type, req.Data)
		if err != nil {
			var pe *session.PayloadError
			if errors.As(err, &pe) {
				WriteError(w, http.StatusBadRequest, err.Error(), session.CodeInvalidPayload)
				return
			}
			WriteError(w, http.StatusBadRequest, err.Error(), "UNKNOWN_INTENT")
			return
		}

		if err := cfg.Session.Router().Enqueue(ev); err != nil {
			WriteError(w, http.StatusServiceUnavailable, "session stopped", "UNAVAILABLE")
			return
		}
		WriteJSON(w, http.StatusAccepted, IntentResponse{Accepted: true, Type: ev.Type})
	}
}

func edlHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts := export.EDLOptions{Title: cfg.Title, FrameRate: cfg.FrameRate}
		if title := r.URL.Query().Get("title"); title != "" {
			opts.Title = title
		}
		if fps := r.URL.Query().Get("fps"); fps != "" {
			rate, err := strconv.ParseFloat(fps, 64)
			if err != nil || rate <= 0 {
				WriteError(w, http.StatusBadRequest, "fps must be a positive number", "BAD_REQUEST")
				return
			}
			opts.FrameRate = rate
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_ = export.WriteEDL(w, cfg.Session.Timeline(), opts)
	}
}

func eventsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var f store.Filter
		if after := q.Get("after"); after != "" {
			seq, err := strconv.ParseInt(after, 10, 64)
			if err != nil {
				WriteError(w, http.StatusBadRequest, "after must be an integer", "BAD_REQUEST")
				return
			}
			f.AfterSeq = seq
		}
		if limit := q.Get("limit"); limit != "" {
			n, err := strconv.Atoi(limit)
			if err != nil || n < 0 {
				WriteError(w, http.StatusBadRequest, "limit must be a non-negative integer", "BAD_REQUEST")
				return
			}
			f.Limit = n
		}
		if types := q.Get("type"); types != "" {
			f.Types = strings.Split(types, ",")
		}

		recs, err := cfg.Store.ReadEvents(r.Context(), f)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to read events", "INTERNAL_ERROR")
			return
		}
		resp := EventsResponse{Events: make([]EventResponse, len(recs))}
		for i, rec := range recs {
			resp.Events[i] = RecordToResponse(rec)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}
