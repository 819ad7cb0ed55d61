// Package segments applies closed watched intervals reported by clients that
// track playback locally, either directly or through JetStream.
package segments

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/example/watch-progress/services/progress/internal/interval"
	"github.com/example/watch-progress/services/progress/internal/store"
)

// Subject is the JetStream subject segment events are published on.
const Subject = "progress.segments"

var ErrInvalidSegment = errors.New("invalid segment")

// Segment is one closed watched interval for (UserID, VideoID).
type Segment struct {
	EventID       string  `json:"event_id,omitempty"`
	UserID        string  `json:"user_id"`
	VideoID       string  `json:"video_id"`
	Start         float64 `json:"start"`
	End           float64 `json:"end"`
	LastPosition  float64 `json:"last_position,omitempty"`
	VideoDuration float64 `json:"video_duration,omitempty"`
	CreatedAt     string  `json:"created_at,omitempty"`
}

func (s Segment) Interval() interval.Interval {
	return interval.Interval{Start: s.Start, End: s.End}
}

// Validate reports whether s names a key and carries a non-empty interval.
func (s Segment) Validate() error {
	if strings.TrimSpace(s.UserID) == "" || strings.TrimSpace(s.VideoID) == "" {
		return errors.Join(ErrInvalidSegment, errors.New("user_id and video_id are required"))
	}
	if !s.Interval().Valid() {
		return errors.Join(ErrInvalidSegment, errors.New("start must be >= 0 and before end"))
	}
	return nil
}

const lockStripes = 64

// Applier merges segments into stored records. Writes for the same key are
// serialized so concurrent segments are not lost between load and save.
type Applier struct {
	store store.ProgressStore
	locks [lockStripes]sync.Mutex
}

func NewApplier(s store.ProgressStore) *Applier {
	return &Applier{store: s}
}

// Apply loads the stored record, merges seg into it and saves the result.
// A zero LastPosition falls back to the segment end; a zero VideoDuration
// keeps the stored one.
func (a *Applier) Apply(ctx context.Context, seg Segment) (store.VideoProgress, error) {
	if err := seg.Validate(); err != nil {
		return store.VideoProgress{}, err
	}

	mu := &a.locks[stripe(seg.UserID, seg.VideoID)]
	mu.Lock()
	defer mu.Unlock()

	rec, _, err := a.store.Get(ctx, seg.UserID, seg.VideoID)
	if err != nil {
		return store.VideoProgress{}, err
	}

	merged := interval.Merge(rec.WatchedIntervals, seg.Interval())
	pos := seg.LastPosition
	if pos <= 0 {
		pos = seg.End
	}
	dur := seg.VideoDuration
	if dur <= 0 {
		dur = rec.VideoDuration
	}
	return a.store.Save(ctx, seg.UserID, seg.VideoID, merged, pos, dur)
}

func stripe(userID, videoID string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	_, _ = h.Write([]byte{0x1f})
	_, _ = h.Write([]byte(videoID))
	return h.Sum32() % lockStripes
}
