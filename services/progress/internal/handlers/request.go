package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/watch-progress/internal/platform/api"
)

const (
	maxRequestBodyBytes = 1 << 20 // 1 MiB
	maxIDLen            = 256
)

// decodeJSON reads up to maxRequestBodyBytes from r.Body and decodes JSON into dst.
// On failure it writes a 400 response and returns false.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request, rid string, dst *T) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err := dec.Decode(dst); err != nil {
		api.BadRequest(w, "INVALID_JSON", "Invalid JSON", rid, nil)
		return false
	}
	return true
}

// validID reports whether id can key a progress record.
func validID(id string) bool {
	if id == "" || len(id) > maxIDLen {
		return false
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// requireID trims v and writes a 400 naming field when it is not a valid id.
func requireID(w http.ResponseWriter, rid, field, v string) (string, bool) {
	v = strings.TrimSpace(v)
	if !validID(v) {
		api.BadRequest(w, "INVALID_ARGUMENT", field+" is required", rid, map[string]any{"field": field})
		return "", false
	}
	return v, true
}

// pathKey reads and validates the user_id and video_id URL params.
func pathKey(w http.ResponseWriter, r *http.Request, rid string) (userID, videoID string, ok bool) {
	if userID, ok = requireID(w, rid, "user_id", chi.URLParam(r, "user_id")); !ok {
		return "", "", false
	}
	if videoID, ok = requireID(w, rid, "video_id", chi.URLParam(r, "video_id")); !ok {
		return "", "", false
	}
	return userID, videoID, true
}

func nonNegative(w http.ResponseWriter, rid, field string, v float64) bool {
	if v < 0 {
		api.BadRequest(w, "INVALID_ARGUMENT", field+" must not be negative", rid, map[string]any{"field": field})
		return false
	}
	return true
}

func orNop(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}
