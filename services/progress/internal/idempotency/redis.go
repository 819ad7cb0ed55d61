package idempotency

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "progress:segment:"

// redisStore marks event ids with SET EX. The stored value is the unix
// millisecond time the event was applied.
type redisStore struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	prefix string
}

func newRedisStore(url string, ttl time.Duration) *redisStore {
	return &redisStore{rdb: dialRedis(url), ttl: ttl, prefix: redisKeyPrefix}
}

func dialRedis(url string) *redis.Client {
	url = strings.TrimSpace(url)
	if opts, err := redis.ParseURL(url); err == nil {
		return redis.NewClient(opts)
	}
	// Bare host:port is accepted too.
	return redis.NewClient(&redis.Options{Addr: url})
}

func (s *redisStore) key(eventID string) string {
	return s.prefix + eventID
}

func (s *redisStore) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.key(eventID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *redisStore) Mark(ctx context.Context, eventID string) error {
	return s.rdb.Set(ctx, s.key(eventID), time.Now().UnixMilli(), s.ttl).Err()
}
