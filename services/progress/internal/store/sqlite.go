package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/example/watch-progress/services/progress/internal/interval"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS video_progress (
	user_id TEXT NOT NULL,
	video_id TEXT NOT NULL,
	watched_intervals TEXT NOT NULL,
	last_position REAL NOT NULL,
	video_duration REAL NOT NULL,
	total_progress REAL NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (user_id, video_id)
);
CREATE INDEX IF NOT EXISTS idx_video_progress_user_updated ON video_progress(user_id, updated_at DESC);
`

// SQLiteProgressStore persists records in a local SQLite file.
type SQLiteProgressStore struct {
	db *sql.DB
}

// OpenSQLiteProgressStore opens the database at path and applies the schema.
func OpenSQLiteProgressStore(path string) (*SQLiteProgressStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: apply schema: %w", err)
	}
	return &SQLiteProgressStore{db: db}, nil
}

func (s *SQLiteProgressStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteProgressStore) Save(ctx context.Context, userID, videoID string, intervals []interval.Interval, lastPosition, videoDuration float64) (VideoProgress, error) {
	rec := NewRecord(userID, videoID, intervals, lastPosition, videoDuration)
	ivs, err := json.Marshal(rec.WatchedIntervals)
	if err != nil {
		return VideoProgress{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO video_progress (user_id, video_id, watched_intervals, last_position, video_duration, total_progress, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, video_id) DO UPDATE SET
			watched_intervals=excluded.watched_intervals,
			last_position=excluded.last_position,
			video_duration=excluded.video_duration,
			total_progress=excluded.total_progress,
			updated_at=excluded.updated_at
	`, userID, videoID, string(ivs), rec.LastPosition, rec.VideoDuration, rec.TotalProgress, rec.UpdatedAt.UnixMilli())
	if err != nil {
		return VideoProgress{}, err
	}
	return rec, nil
}

func (s *SQLiteProgressStore) Get(ctx context.Context, userID, videoID string) (VideoProgress, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, video_id, watched_intervals, last_position, video_duration, total_progress, updated_at
		FROM video_progress WHERE user_id = ? AND video_id = ?`, userID, videoID)
	rec, err := scanSQLiteRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return VideoProgress{}, false, nil
	}
	if err != nil {
		return VideoProgress{}, false, err
	}
	return rec, true, nil
}

func (s *SQLiteProgressStore) List(ctx context.Context, userID string, limit int) ([]VideoProgress, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, video_id, watched_intervals, last_position, video_duration, total_progress, updated_at
		FROM video_progress WHERE user_id = ?
		ORDER BY updated_at DESC, video_id DESC LIMIT ?`, userID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VideoProgress
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteProgressStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRecord(row rowScanner) (VideoProgress, error) {
	var (
		rec       VideoProgress
		ivs       string
		updatedMs int64
	)
	if err := row.Scan(&rec.UserID, &rec.VideoID, &ivs, &rec.LastPosition, &rec.VideoDuration, &rec.TotalProgress, &updatedMs); err != nil {
		return VideoProgress{}, err
	}
	if err := json.Unmarshal([]byte(ivs), &rec.WatchedIntervals); err != nil {
		return VideoProgress{}, fmt.Errorf("storage: decode intervals: %w", err)
	}
	rec.UpdatedAt = time.UnixMilli(updatedMs).UTC()
	return rec, nil
}
