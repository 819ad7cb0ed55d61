package store

import (
	"context"
	"sort"
	"sync"

	"github.com/example/watch-progress/services/progress/internal/interval"
)

// InMemoryProgressStore is a development-only in-memory implementation.
// WARNING: state is lost on restart and is not shared across instances.
type InMemoryProgressStore struct {
	mu      sync.RWMutex
	records map[string]VideoProgress // user_id+video_id -> record
}

func NewInMemoryProgressStore() *InMemoryProgressStore {
	return &InMemoryProgressStore{records: make(map[string]VideoProgress)}
}

func (s *InMemoryProgressStore) Save(_ context.Context, userID, videoID string, intervals []interval.Interval, lastPosition, videoDuration float64) (VideoProgress, error) {
	rec := NewRecord(userID, videoID, intervals, lastPosition, videoDuration)
	s.mu.Lock()
	s.records[recordKey(userID, videoID)] = rec
	s.mu.Unlock()
	return cloneRecord(rec), nil
}

func (s *InMemoryProgressStore) Get(_ context.Context, userID, videoID string) (VideoProgress, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[recordKey(userID, videoID)]
	if !ok {
		return VideoProgress{}, false, nil
	}
	return cloneRecord(rec), true, nil
}

func (s *InMemoryProgressStore) List(_ context.Context, userID string, limit int) ([]VideoProgress, error) {
	limit = clampLimit(limit)

	s.mu.RLock()
	var out []VideoProgress
	for _, rec := range s.records {
		if rec.UserID == userID {
			out = append(out, cloneRecord(rec))
		}
	}
	s.mu.RUnlock()

	sortByRecency(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// recordKey joins the two ids with a unit separator, which ids never contain.
func recordKey(userID, videoID string) string {
	return userID + "\x1f" + videoID
}

func cloneRecord(rec VideoProgress) VideoProgress {
	set := make([]interval.Interval, len(rec.WatchedIntervals))
	copy(set, rec.WatchedIntervals)
	rec.WatchedIntervals = set
	return rec
}

func sortByRecency(recs []VideoProgress) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].UpdatedAt.Equal(recs[j].UpdatedAt) {
			return recs[i].UpdatedAt.After(recs[j].UpdatedAt)
		}
		return recs[i].VideoID > recs[j].VideoID
	})
}
