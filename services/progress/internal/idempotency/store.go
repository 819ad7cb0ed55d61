// Package idempotency deduplicates segment events by event id.
//
// Primary backend: Redis SET with TTL (env REDIS_URL).
// Fallback: Postgres processed_segments table (env DATABASE_URL).
// If neither is available, an in-memory store is used (development only).
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultTTL is how long a processed event id is remembered.
const DefaultTTL = 24 * time.Hour

// Store remembers processed event ids. Callers check Seen before applying an
// event and Mark it only once the apply succeeded, so an event that was never
// applied is never reported as a duplicate.
type Store interface {
	// Seen reports whether eventID was marked within the ttl.
	Seen(ctx context.Context, eventID string) (bool, error)
	// Mark records eventID as processed for the ttl.
	Mark(ctx context.Context, eventID string) error
}

// Options selects the backend. Pool is reused for the Postgres backend when
// DatabaseURL is set.
type Options struct {
	RedisURL    string
	DatabaseURL string
	Pool        *pgxpool.Pool
	TTL         time.Duration
	Production  bool
}

// NewStore creates the best available idempotency store:
// Redis > Postgres > in-memory (dev fallback).
// When Production is true, in-memory fallback is not allowed and the function
// returns nil with an error.
func NewStore(opts Options) (Store, error) {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if opts.RedisURL != "" {
		return newRedisStore(opts.RedisURL, ttl), nil
	}
	if opts.DatabaseURL != "" {
		return newPostgresStore(opts.DatabaseURL, opts.Pool, ttl), nil
	}
	if opts.Production {
		return nil, errors.New("production requires REDIS_URL or DATABASE_URL for idempotency; in-memory store is not allowed")
	}
	return newMemoryStore(ttl), nil
}
