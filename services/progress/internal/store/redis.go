package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/example/watch-progress/services/progress/internal/interval"
)

// RedisProgressStore keeps each record as a JSON string and indexes a user's
// records in a sorted set scored by update time.
type RedisProgressStore struct {
	client *redis.Client
	prefix string
}

// NewRedisProgressStore parses url (redis://...) and falls back to treating it
// as a plain host:port address.
func NewRedisProgressStore(url string) *RedisProgressStore {
	opts, err := redis.ParseURL(url)
	if err != nil {
		opts = &redis.Options{Addr: url}
	}
	return &RedisProgressStore{client: redis.NewClient(opts), prefix: "progress:"}
}

func (s *RedisProgressStore) Close() error {
	return s.client.Close()
}

func (s *RedisProgressStore) recordKey(userID, videoID string) string {
	return s.prefix + "rec:" + recordKey(userID, videoID)
}

func (s *RedisProgressStore) userIndexKey(userID string) string {
	return s.prefix + "user:" + userID
}

func (s *RedisProgressStore) Save(ctx context.Context, userID, videoID string, intervals []interval.Interval, lastPosition, videoDuration float64) (VideoProgress, error) {
	rec := NewRecord(userID, videoID, intervals, lastPosition, videoDuration)
	b, err := json.Marshal(rec)
	if err != nil {
		return VideoProgress{}, err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.recordKey(userID, videoID), b, 0)
	pipe.ZAdd(ctx, s.userIndexKey(userID), redis.Z{
		Score:  float64(rec.UpdatedAt.UnixMilli()),
		Member: videoID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return VideoProgress{}, err
	}
	return rec, nil
}

func (s *RedisProgressStore) Get(ctx context.Context, userID, videoID string) (VideoProgress, bool, error) {
	val, err := s.client.Get(ctx, s.recordKey(userID, videoID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return VideoProgress{}, false, nil
		}
		return VideoProgress{}, false, err
	}
	var rec VideoProgress
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return VideoProgress{}, false, err
	}
	return rec, true, nil
}

func (s *RedisProgressStore) List(ctx context.Context, userID string, limit int) ([]VideoProgress, error) {
	limit = clampLimit(limit)
	videoIDs, err := s.client.ZRevRange(ctx, s.userIndexKey(userID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	if len(videoIDs) == 0 {
		return nil, nil
	}

	keys := make([]string, len(videoIDs))
	for i, id := range videoIDs {
		keys[i] = s.recordKey(userID, id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]VideoProgress, 0, len(vals))
	for _, v := range vals {
		// Index entries can outlive a record deleted out of band.
		str, ok := v.(string)
		if !ok {
			continue
		}
		var rec VideoProgress
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisProgressStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
