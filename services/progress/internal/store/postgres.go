package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/watch-progress/services/progress/internal/interval"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS video_progress (
  user_id           TEXT NOT NULL,
  video_id          TEXT NOT NULL,
  watched_intervals JSONB NOT NULL DEFAULT '[]'::jsonb,
  last_position     DOUBLE PRECISION NOT NULL DEFAULT 0,
  video_duration    DOUBLE PRECISION NOT NULL DEFAULT 0,
  total_progress    DOUBLE PRECISION NOT NULL DEFAULT 0,
  updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (user_id, video_id)
);
CREATE INDEX IF NOT EXISTS video_progress_user_updated_idx ON video_progress (user_id, updated_at DESC)`

const postgresColumns = `user_id, video_id, watched_intervals, last_position, video_duration, total_progress, updated_at`

const (
	postgresUpsert = `INSERT INTO video_progress (user_id, video_id, watched_intervals, last_position, video_duration, total_progress, updated_at)
VALUES ($1, $2, $3::jsonb, $4, $5, $6, $7)
ON CONFLICT (user_id, video_id)
DO UPDATE SET
  watched_intervals = EXCLUDED.watched_intervals,
  last_position     = EXCLUDED.last_position,
  video_duration    = EXCLUDED.video_duration,
  total_progress    = EXCLUDED.total_progress,
  updated_at        = EXCLUDED.updated_at`

	postgresGet = `SELECT ` + postgresColumns + `
FROM video_progress WHERE user_id=$1 AND video_id=$2`

	postgresList = `SELECT ` + postgresColumns + `
FROM video_progress WHERE user_id=$1
ORDER BY updated_at DESC, video_id DESC LIMIT $2`
)

// PostgresProgressStore is the production Postgres-backed implementation.
// Writes are blind overwrites: the last save for a key wins.
type PostgresProgressStore struct {
	db *pgxpool.Pool
}

func NewPostgresProgressStore(db *pgxpool.Pool) *PostgresProgressStore {
	return &PostgresProgressStore{db: db}
}

// EnsureSchema creates the video_progress table when missing.
func (s *PostgresProgressStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresProgressStore) Save(ctx context.Context, userID, videoID string, intervals []interval.Interval, lastPosition, videoDuration float64) (VideoProgress, error) {
	rec := NewRecord(userID, videoID, intervals, lastPosition, videoDuration)
	ivs, err := json.Marshal(rec.WatchedIntervals)
	if err != nil {
		return VideoProgress{}, err
	}

	_, err = s.db.Exec(ctx, postgresUpsert,
		userID, videoID, string(ivs), rec.LastPosition, rec.VideoDuration, rec.TotalProgress, rec.UpdatedAt,
	)
	if err != nil {
		return VideoProgress{}, err
	}
	return rec, nil
}

func (s *PostgresProgressStore) Get(ctx context.Context, userID, videoID string) (VideoProgress, bool, error) {
	rec, err := scanPostgresRecord(s.db.QueryRow(ctx, postgresGet, userID, videoID))
	if errors.Is(err, pgx.ErrNoRows) {
		return VideoProgress{}, false, nil
	}
	if err != nil {
		return VideoProgress{}, false, err
	}
	return rec, true, nil
}

func (s *PostgresProgressStore) List(ctx context.Context, userID string, limit int) ([]VideoProgress, error) {
	rows, err := s.db.Query(ctx, postgresList, userID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VideoProgress
	for rows.Next() {
		rec, err := scanPostgresRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresProgressStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func scanPostgresRecord(row pgx.Row) (VideoProgress, error) {
	var (
		rec VideoProgress
		ivs []byte
	)
	if err := row.Scan(&rec.UserID, &rec.VideoID, &ivs, &rec.LastPosition, &rec.VideoDuration, &rec.TotalProgress, &rec.UpdatedAt); err != nil {
		return VideoProgress{}, err
	}
	if err := json.Unmarshal(ivs, &rec.WatchedIntervals); err != nil {
		return VideoProgress{}, fmt.Errorf("decode intervals: %w", err)
	}
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, nil
}
