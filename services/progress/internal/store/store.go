package store

import (
	"context"
	"time"

	"github.com/example/watch-progress/services/progress/internal/interval"
)

// VideoProgress is the durable progress record for one (user, video) pair.
// TotalProgress is derived from WatchedIntervals and VideoDuration at save time.
type VideoProgress struct {
	UserID           string              `json:"user_id"`
	VideoID          string              `json:"video_id"`
	WatchedIntervals []interval.Interval `json:"watched_intervals"`
	LastPosition     float64             `json:"last_position"`
	TotalProgress    float64             `json:"total_progress"`
	VideoDuration    float64             `json:"video_duration"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

// ProgressStore persists progress records keyed by (userID, videoID).
// Implementations must be safe for concurrent use.
type ProgressStore interface {
	// Save computes the derived percentage and overwrites any existing record
	// for the key in full. It returns the record as written.
	Save(ctx context.Context, userID, videoID string, intervals []interval.Interval, lastPosition, videoDuration float64) (VideoProgress, error)
	// Get returns the last saved record; ok is false when none exists.
	Get(ctx context.Context, userID, videoID string) (rec VideoProgress, ok bool, err error)
	// List returns up to limit records of userID, most recently updated first.
	List(ctx context.Context, userID string, limit int) ([]VideoProgress, error)
}

// Pinger is implemented by backends that can report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewRecord builds the record Save writes.
func NewRecord(userID, videoID string, intervals []interval.Interval, lastPosition, videoDuration float64) VideoProgress {
	set := make([]interval.Interval, len(intervals))
	copy(set, intervals)
	return VideoProgress{
		UserID:           userID,
		VideoID:          videoID,
		WatchedIntervals: set,
		LastPosition:     lastPosition,
		TotalProgress:    interval.Progress(set, videoDuration),
		VideoDuration:    videoDuration,
		UpdatedAt:        time.Now().UTC(),
	}
}

const (
	defaultListLimit = 25
	maxListLimit     = 100
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
