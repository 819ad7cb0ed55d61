package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/watch-progress/internal/platform/api"
	"github.com/example/watch-progress/internal/platform/httpserver"
	"github.com/example/watch-progress/services/progress/internal/session"
)

type createSessionRequest struct {
	UserID        string  `json:"user_id"`
	VideoID       string  `json:"video_id"`
	VideoDuration float64 `json:"video_duration"`
}

type sessionResponse struct {
	SessionID      string           `json:"session_id"`
	ResumePosition float64          `json:"resume_position"`
	Session        session.Snapshot `json:"session"`
}

type sessionEventRequest struct {
	Type     string  `json:"type"`
	Time     float64 `json:"time"`
	Duration float64 `json:"duration"`
}

// CreateSession opens a tracking session. The stored record is loaded before
// the response is written, so resume_position is where playback should start.
func CreateSession(reg *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		var req createSessionRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		userID, ok := requireID(w, rid, "user_id", req.UserID)
		if !ok {
			return
		}
		videoID, ok := requireID(w, rid, "video_id", req.VideoID)
		if !ok {
			return
		}
		if !nonNegative(w, rid, "video_duration", req.VideoDuration) {
			return
		}

		id, ctrl := reg.Open(r.Context(), userID, videoID, req.VideoDuration)
		snap := ctrl.Snapshot()
		w.Header().Set("Location", "/v1/sessions/"+id)
		api.WriteJSON(w, http.StatusCreated, sessionResponse{
			SessionID:      id,
			ResumePosition: snap.LastPosition,
			Session:        snap,
		})
	}
}

func GetSession(reg *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		id := chi.URLParam(r, "session_id")
		ctrl, err := reg.Get(id)
		if err != nil {
			api.NotFound(w, "SESSION_NOT_FOUND", "Session not found", rid)
			return
		}
		snap := ctrl.Snapshot()
		api.WriteJSON(w, http.StatusOK, sessionResponse{SessionID: id, ResumePosition: snap.LastPosition, Session: snap})
	}
}

// PostSessionEvent feeds one playback event to the session and returns the
// resulting state.
func PostSessionEvent(reg *session.Registry, log *zap.Logger) http.HandlerFunc {
	log = orNop(log)
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		id := chi.URLParam(r, "session_id")
		ctrl, err := reg.Get(id)
		if err != nil {
			api.NotFound(w, "SESSION_NOT_FOUND", "Session not found", rid)
			return
		}

		var req sessionEventRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		typ, err := session.ParseEventType(req.Type)
		if err != nil {
			api.BadRequest(w, "INVALID_EVENT", err.Error(), rid, map[string]any{"field": "type"})
			return
		}
		if !nonNegative(w, rid, "time", req.Time) || !nonNegative(w, rid, "duration", req.Duration) {
			return
		}

		if err := ctrl.HandleEvent(r.Context(), session.Event{Type: typ, Time: req.Time, Duration: req.Duration}); err != nil {
			log.Warn("session event", zap.String("session_id", id), zap.Error(err))
			api.BadRequest(w, "INVALID_EVENT", err.Error(), rid, nil)
			return
		}
		snap := ctrl.Snapshot()
		api.WriteJSON(w, http.StatusOK, sessionResponse{SessionID: id, ResumePosition: snap.LastPosition, Session: snap})
	}
}

// EndSession commits any open interval, tears the session down and returns
// its final state.
func EndSession(reg *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		id := chi.URLParam(r, "session_id")
		snap, err := reg.End(r.Context(), id)
		if errors.Is(err, session.ErrSessionNotFound) {
			api.NotFound(w, "SESSION_NOT_FOUND", "Session not found", rid)
			return
		}
		api.WriteJSON(w, http.StatusOK, sessionResponse{SessionID: id, ResumePosition: snap.LastPosition, Session: snap})
	}
}
