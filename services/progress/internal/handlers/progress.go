package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/watch-progress/internal/platform/api"
	"github.com/example/watch-progress/internal/platform/httpserver"
	"github.com/example/watch-progress/services/progress/internal/interval"
	"github.com/example/watch-progress/services/progress/internal/segments"
	"github.com/example/watch-progress/services/progress/internal/store"
)

const maxBatchVideoIDs = 100

type putProgressRequest struct {
	WatchedIntervals []interval.Interval `json:"watched_intervals"`
	LastPosition     float64             `json:"last_position"`
	VideoDuration    float64             `json:"video_duration"`
}

type listProgressResponse struct {
	Items []store.VideoProgress `json:"items"`
	Limit int                   `json:"limit"`
}

type progressMapResponse struct {
	Progress map[string]float64 `json:"progress"`
}

func GetProgress(s store.ProgressStore, log *zap.Logger) http.HandlerFunc {
	log = orNop(log)
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		userID, videoID, ok := pathKey(w, r, rid)
		if !ok {
			return
		}

		rec, found, err := s.Get(r.Context(), userID, videoID)
		if err != nil {
			log.Error("get progress", zap.String("user_id", userID), zap.String("video_id", videoID), zap.Error(err))
			api.Internal(w, rid)
			return
		}
		if !found {
			api.NotFound(w, "PROGRESS_NOT_FOUND", "No progress recorded", rid)
			return
		}
		api.WriteJSON(w, http.StatusOK, rec)
	}
}

// PutProgress overwrites the record with the given intervals, merged into a
// canonical set first.
func PutProgress(s store.ProgressStore, log *zap.Logger) http.HandlerFunc {
	log = orNop(log)
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		userID, videoID, ok := pathKey(w, r, rid)
		if !ok {
			return
		}

		var req putProgressRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		for i, iv := range req.WatchedIntervals {
			if !iv.Valid() {
				api.BadRequest(w, "INVALID_INTERVAL", "start must be >= 0 and before end", rid, map[string]any{"index": i})
				return
			}
		}
		if !nonNegative(w, rid, "last_position", req.LastPosition) || !nonNegative(w, rid, "video_duration", req.VideoDuration) {
			return
		}

		rec, err := s.Save(r.Context(), userID, videoID, interval.Normalize(req.WatchedIntervals), req.LastPosition, req.VideoDuration)
		if err != nil {
			log.Error("save progress", zap.String("user_id", userID), zap.String("video_id", videoID), zap.Error(err))
			api.Internal(w, rid)
			return
		}
		api.WriteJSON(w, http.StatusOK, rec)
	}
}

// ListProgress returns the user's most recent records. With one or more
// video_id query params it returns a video id to percentage map instead;
// videos without a record map to 0.
func ListProgress(s store.ProgressStore, log *zap.Logger) http.HandlerFunc {
	log = orNop(log)
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		userID, ok := requireID(w, rid, "user_id", chi.URLParam(r, "user_id"))
		if !ok {
			return
		}

		if ids := r.URL.Query()["video_id"]; len(ids) > 0 {
			progressMap(w, r, s, log, rid, userID, ids)
			return
		}

		limit := 25
		if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				api.BadRequest(w, "INVALID_ARGUMENT", "limit must be a positive integer", rid, map[string]any{"field": "limit"})
				return
			}
			if n > 100 {
				n = 100
			}
			limit = n
		}

		items, err := s.List(r.Context(), userID, limit)
		if err != nil {
			log.Error("list progress", zap.String("user_id", userID), zap.Error(err))
			api.Internal(w, rid)
			return
		}
		if items == nil {
			items = []store.VideoProgress{}
		}
		api.WriteJSON(w, http.StatusOK, listProgressResponse{Items: items, Limit: limit})
	}
}

func progressMap(w http.ResponseWriter, r *http.Request, s store.ProgressStore, log *zap.Logger, rid, userID string, ids []string) {
	if len(ids) > maxBatchVideoIDs {
		api.BadRequest(w, "INVALID_ARGUMENT", "too many video_id values", rid, map[string]any{"max": maxBatchVideoIDs})
		return
	}
	for _, id := range ids {
		if !validID(strings.TrimSpace(id)) {
			api.BadRequest(w, "INVALID_ARGUMENT", "video_id is required", rid, map[string]any{"field": "video_id"})
			return
		}
	}

	var mu sync.Mutex
	out := make(map[string]float64, len(ids))
	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(8)
	for _, id := range ids {
		videoID := strings.TrimSpace(id)
		g.Go(func() error {
			rec, found, err := s.Get(ctx, userID, videoID)
			if err != nil {
				return err
			}
			mu.Lock()
			if found {
				out[videoID] = rec.TotalProgress
			} else {
				out[videoID] = 0
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Error("batch progress", zap.String("user_id", userID), zap.Error(err))
		api.Internal(w, rid)
		return
	}
	api.WriteJSON(w, http.StatusOK, progressMapResponse{Progress: out})
}

type postSegmentRequest struct {
	Start         float64 `json:"start"`
	End           float64 `json:"end"`
	LastPosition  float64 `json:"last_position"`
	VideoDuration float64 `json:"video_duration"`
}

// PostSegment merges one watched span into the record. When async writes are
// enabled the span is queued and the handler answers 202 with X-Event-ID;
// otherwise it is applied inline and the new record is returned.
func PostSegment(applier *segments.Applier, publisher *segments.Publisher, log *zap.Logger) http.HandlerFunc {
	log = orNop(log)
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		userID, videoID, ok := pathKey(w, r, rid)
		if !ok {
			return
		}

		var req postSegmentRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		if !nonNegative(w, rid, "last_position", req.LastPosition) || !nonNegative(w, rid, "video_duration", req.VideoDuration) {
			return
		}
		seg := segments.Segment{
			UserID:        userID,
			VideoID:       videoID,
			Start:         req.Start,
			End:           req.End,
			LastPosition:  req.LastPosition,
			VideoDuration: req.VideoDuration,
		}
		if err := seg.Validate(); err != nil {
			api.BadRequest(w, "INVALID_INTERVAL", "start must be >= 0 and before end", rid, nil)
			return
		}

		if publisher.Enabled() {
			eventID, err := publisher.Publish(seg)
			if err != nil {
				log.Warn("publish segment", zap.String("user_id", userID), zap.Error(err))
				api.Unavailable(w, "EVENT_PUBLISH_FAILED", "failed to publish event", rid)
				return
			}
			w.Header().Set("X-Event-ID", eventID)
			w.WriteHeader(http.StatusAccepted)
			return
		}

		rec, err := applier.Apply(r.Context(), seg)
		if err != nil {
			if errors.Is(err, segments.ErrInvalidSegment) {
				api.BadRequest(w, "INVALID_INTERVAL", err.Error(), rid, nil)
				return
			}
			log.Error("apply segment", zap.String("user_id", userID), zap.String("video_id", videoID), zap.Error(err))
			api.Internal(w, rid)
			return
		}
		api.WriteJSON(w, http.StatusOK, rec)
	}
}
