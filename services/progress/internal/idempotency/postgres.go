package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const processedSegmentsSchema = `
CREATE TABLE IF NOT EXISTS processed_segments (
	event_id   TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

type postgresStore struct {
	dsn string
	ttl time.Duration

	mu sync.Mutex
	// pool is lazily initialised on first use unless one was shared.
	pool   *pgxpool.Pool
	schema bool
}

func newPostgresStore(dsn string, pool *pgxpool.Pool, ttl time.Duration) *postgresStore {
	return &postgresStore{dsn: dsn, pool: pool, ttl: ttl}
}

func (s *postgresStore) ensurePool(ctx context.Context) (*pgxpool.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool == nil {
		pool, err := pgxpool.New(ctx, s.dsn)
		if err != nil {
			return nil, err
		}
		s.pool = pool
	}
	if !s.schema {
		if _, err := s.pool.Exec(ctx, processedSegmentsSchema); err != nil {
			return nil, err
		}
		s.schema = true
	}
	return s.pool, nil
}

const (
	seenQuery = `SELECT EXISTS (
	               SELECT 1 FROM processed_segments
	               WHERE event_id = $1 AND created_at >= now() - make_interval(secs => $2))`
	markQuery = `INSERT INTO processed_segments (event_id, created_at)
	             VALUES ($1, now())
	             ON CONFLICT (event_id) DO UPDATE SET created_at = now()`
)

// Seen treats rows older than the ttl as expired.
func (s *postgresStore) Seen(ctx context.Context, eventID string) (bool, error) {
	pool, err := s.ensurePool(ctx)
	if err != nil {
		return false, err
	}
	var seen bool
	if err := pool.QueryRow(ctx, seenQuery, eventID, s.ttl.Seconds()).Scan(&seen); err != nil {
		return false, err
	}
	return seen, nil
}

// Mark upserts the row, which also reclaims an expired one.
func (s *postgresStore) Mark(ctx context.Context, eventID string) error {
	pool, err := s.ensurePool(ctx)
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx, markQuery, eventID)
	return err
}
