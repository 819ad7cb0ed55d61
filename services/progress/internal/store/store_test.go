package store

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/watch-progress/services/progress/internal/interval"
)

// TestProgressStoreInterface ensures every backend satisfies the interface.
func TestProgressStoreInterface(t *testing.T) {
	var _ ProgressStore = (*InMemoryProgressStore)(nil)
	var _ ProgressStore = (*BoltProgressStore)(nil)
	var _ ProgressStore = (*SQLiteProgressStore)(nil)
	var _ ProgressStore = (*PostgresProgressStore)(nil)
	var _ ProgressStore = (*RedisProgressStore)(nil)

	var _ Pinger = (*BoltProgressStore)(nil)
	var _ Pinger = (*SQLiteProgressStore)(nil)
	var _ Pinger = (*PostgresProgressStore)(nil)
	var _ Pinger = (*RedisProgressStore)(nil)
}

// backends returns the stores that run without external services.
func backends(t *testing.T) map[string]ProgressStore {
	t.Helper()
	dir := t.TempDir()

	bs, err := OpenBoltProgressStore(filepath.Join(dir, "progress.db"))
	if err != nil {
		t.Fatalf("open bolt: %v", err)
	}
	t.Cleanup(func() { _ = bs.Close() })

	ss, err := OpenSQLiteProgressStore(filepath.Join(dir, "progress.sqlite"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = ss.Close() })

	return map[string]ProgressStore{
		"memory": NewInMemoryProgressStore(),
		"bolt":   bs,
		"sqlite": ss,
	}
}

func TestStore_GetAbsent(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.Get(context.Background(), "user-1", "video-1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ok {
				t.Fatal("expected no record")
			}
		})
	}
}

func TestStore_SaveDerivesProgress(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			set := []interval.Interval{{Start: 0, End: 30}, {Start: 100, End: 130}}

			rec, err := s.Save(ctx, "user-1", "video-1", set, 130, 600)
			if err != nil {
				t.Fatalf("save: %v", err)
			}
			if rec.TotalProgress != 10 {
				t.Fatalf("expected total_progress 10, got %v", rec.TotalProgress)
			}

			got, ok, err := s.Get(ctx, "user-1", "video-1")
			if err != nil || !ok {
				t.Fatalf("get: ok=%v err=%v", ok, err)
			}
			if !reflect.DeepEqual(got.WatchedIntervals, set) {
				t.Fatalf("expected intervals %v, got %v", set, got.WatchedIntervals)
			}
			if got.LastPosition != 130 || got.VideoDuration != 600 || got.TotalProgress != 10 {
				t.Fatalf("unexpected record: %+v", got)
			}
			if got.UserID != "user-1" || got.VideoID != "video-1" {
				t.Fatalf("unexpected key: %q/%q", got.UserID, got.VideoID)
			}
		})
	}
}

func TestStore_SaveOverwritesWholesale(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, _ = s.Save(ctx, "user-1", "video-1", []interval.Interval{{Start: 0, End: 50}}, 50, 100)
			_, err := s.Save(ctx, "user-1", "video-1", []interval.Interval{{Start: 10, End: 20}}, 20, 100)
			if err != nil {
				t.Fatalf("save: %v", err)
			}
			got, _, _ := s.Get(ctx, "user-1", "video-1")
			if len(got.WatchedIntervals) != 1 || got.WatchedIntervals[0] != (interval.Interval{Start: 10, End: 20}) {
				t.Fatalf("expected blind overwrite, got %v", got.WatchedIntervals)
			}
			if got.TotalProgress != 10 {
				t.Fatalf("expected 10, got %v", got.TotalProgress)
			}
		})
	}
}

func TestStore_KeysAreIndependent(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, _ = s.Save(ctx, "user-1", "video-1", []interval.Interval{{Start: 0, End: 10}}, 10, 100)
			_, _ = s.Save(ctx, "user-2", "video-1", []interval.Interval{{Start: 0, End: 50}}, 50, 100)

			a, _, _ := s.Get(ctx, "user-1", "video-1")
			b, _, _ := s.Get(ctx, "user-2", "video-1")
			if a.TotalProgress != 10 || b.TotalProgress != 50 {
				t.Fatalf("expected independent records, got %v and %v", a.TotalProgress, b.TotalProgress)
			}
		})
	}
}

func TestStore_ListByRecency(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, vid := range []string{"video-a", "video-b", "video-c"} {
				if _, err := s.Save(ctx, "user-1", vid, nil, 0, 100); err != nil {
					t.Fatalf("save %s: %v", vid, err)
				}
				// Keep update times distinct at millisecond precision.
				time.Sleep(3 * time.Millisecond)
			}
			_, _ = s.Save(ctx, "user-2", "video-x", nil, 0, 100)

			recs, err := s.List(ctx, "user-1", 2)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(recs) != 2 {
				t.Fatalf("expected 2 records, got %d", len(recs))
			}
			if recs[0].VideoID != "video-c" || recs[1].VideoID != "video-b" {
				t.Fatalf("unexpected order: %s, %s", recs[0].VideoID, recs[1].VideoID)
			}

			all, _ := s.List(ctx, "user-1", 0)
			if len(all) != 3 {
				t.Fatalf("expected 3 records for user-1, got %d", len(all))
			}
		})
	}
}

func TestInMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewInMemoryProgressStore()
	ctx := context.Background()
	set := []interval.Interval{{Start: 0, End: 10}}
	_, _ = s.Save(ctx, "u", "v", set, 0, 100)
	set[0].End = 99

	got, _, _ := s.Get(ctx, "u", "v")
	got.WatchedIntervals[0].End = 77

	again, _, _ := s.Get(ctx, "u", "v")
	if again.WatchedIntervals[0].End != 10 {
		t.Fatalf("stored record was aliased: %v", again.WatchedIntervals)
	}
}

func TestResolveBackend(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want string
	}{
		{"default memory", Options{}, BackendMemory},
		{"redis wins", Options{RedisURL: "redis://x", DatabaseURL: "postgres://x"}, BackendRedis},
		{"postgres over sqlite", Options{DatabaseURL: "postgres://x", SQLitePath: "a.db"}, BackendPostgres},
		{"sqlite over bolt", Options{SQLitePath: "a.db", BoltPath: "b.db"}, BackendSQLite},
		{"bolt", Options{BoltPath: "b.db"}, BackendBolt},
		{"explicit", Options{Backend: "Bolt", RedisURL: "redis://x"}, BackendBolt},
		{"explicit auto", Options{Backend: "auto", BoltPath: "b.db"}, BackendBolt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveBackend(tt.opts); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestOpen_RejectsMemoryInProd(t *testing.T) {
	s, _, err := Open(context.Background(), Options{Production: true}, zap.NewNop())
	if err == nil {
		t.Fatalf("expected error in production with no backend, got store %T", s)
	}
}

func TestOpen_Bolt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "progress.db")
	s, closeFn, err := Open(context.Background(), Options{BoltPath: path}, zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer closeFn()
	if _, ok := s.(*BoltProgressStore); !ok {
		t.Fatalf("expected BoltProgressStore, got %T", s)
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, closeFn, err := Open(context.Background(), Options{Backend: "cassandra"}, zap.NewNop())
	closeFn()
	if err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
