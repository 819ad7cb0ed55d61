package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/example/watch-progress/services/progress/internal/interval"
)

var bucketProgress = []byte("progress")

// BoltProgressStore keeps progress records as JSON values in a single BoltDB
// bucket keyed by user_id+video_id, so a user's records share a key prefix.
type BoltProgressStore struct {
	db *bolt.DB
}

// OpenBoltProgressStore opens (creating if needed) the database file at path.
func OpenBoltProgressStore(path string) (*BoltProgressStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketProgress)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltProgressStore{db: db}, nil
}

func (s *BoltProgressStore) Close() error {
	return s.db.Close()
}

func (s *BoltProgressStore) Save(_ context.Context, userID, videoID string, intervals []interval.Interval, lastPosition, videoDuration float64) (VideoProgress, error) {
	rec := NewRecord(userID, videoID, intervals, lastPosition, videoDuration)
	data, err := json.Marshal(rec)
	if err != nil {
		return VideoProgress{}, err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProgress).Put([]byte(recordKey(userID, videoID)), data)
	})
	if err != nil {
		return VideoProgress{}, err
	}
	return rec, nil
}

func (s *BoltProgressStore) Get(_ context.Context, userID, videoID string) (VideoProgress, bool, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketProgress).Get([]byte(recordKey(userID, videoID))); v != nil {
			// Values are only valid for the life of the transaction.
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if err != nil || data == nil {
		return VideoProgress{}, false, err
	}
	var rec VideoProgress
	if err := json.Unmarshal(data, &rec); err != nil {
		return VideoProgress{}, false, err
	}
	return rec, true, nil
}

func (s *BoltProgressStore) List(_ context.Context, userID string, limit int) ([]VideoProgress, error) {
	limit = clampLimit(limit)
	prefix := []byte(recordKey(userID, ""))

	var out []VideoProgress
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketProgress).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var rec VideoProgress
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortByRecency(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *BoltProgressStore) Ping(_ context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketProgress) == nil {
			return fmt.Errorf("bolt: bucket %q missing", bucketProgress)
		}
		return nil
	})
}
