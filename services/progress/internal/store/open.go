package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/example/watch-progress/internal/platform/db"
)

// Backend names accepted by Open.
const (
	BackendAuto     = "auto"
	BackendMemory   = "memory"
	BackendBolt     = "bolt"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Options selects and configures the backend.
type Options struct {
	Backend     string
	RedisURL    string
	DatabaseURL string
	SQLitePath  string
	BoltPath    string
	// Production forbids the in-memory backend.
	Production bool
}

// ResolveBackend picks the concrete backend for opts. With auto it prefers
// Redis > Postgres > SQLite > Bolt > memory, depending on what is configured.
func ResolveBackend(opts Options) string {
	b := strings.ToLower(strings.TrimSpace(opts.Backend))
	if b != "" && b != BackendAuto {
		return b
	}
	switch {
	case opts.RedisURL != "":
		return BackendRedis
	case opts.DatabaseURL != "":
		return BackendPostgres
	case opts.SQLitePath != "":
		return BackendSQLite
	case opts.BoltPath != "":
		return BackendBolt
	default:
		return BackendMemory
	}
}

// Open creates the configured ProgressStore. The returned close func releases
// the backend's resources and is never nil.
func Open(ctx context.Context, opts Options, log *zap.Logger) (ProgressStore, func(), error) {
	noop := func() {}
	backend := ResolveBackend(opts)

	switch backend {
	case BackendMemory:
		if opts.Production {
			return nil, noop, errors.New("production requires a persistent progress store; in-memory store is not allowed")
		}
		log.Warn("using in-memory progress store (development only)")
		return NewInMemoryProgressStore(), noop, nil

	case BackendBolt:
		if opts.BoltPath == "" {
			return nil, noop, errors.New("BOLT_PATH is required for the bolt backend")
		}
		s, err := OpenBoltProgressStore(opts.BoltPath)
		if err != nil {
			return nil, noop, err
		}
		log.Info("progress store: bolt", zap.String("path", opts.BoltPath))
		return s, func() { _ = s.Close() }, nil

	case BackendSQLite:
		if opts.SQLitePath == "" {
			return nil, noop, errors.New("SQLITE_PATH is required for the sqlite backend")
		}
		s, err := OpenSQLiteProgressStore(opts.SQLitePath)
		if err != nil {
			return nil, noop, err
		}
		log.Info("progress store: sqlite", zap.String("path", opts.SQLitePath))
		return s, func() { _ = s.Close() }, nil

	case BackendPostgres:
		pool, err := db.Open(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, noop, fmt.Errorf("postgres: %w", err)
		}
		s := NewPostgresProgressStore(pool)
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, noop, err
		}
		log.Info("progress store: postgres")
		return s, pool.Close, nil

	case BackendRedis:
		if opts.RedisURL == "" {
			return nil, noop, errors.New("REDIS_URL is required for the redis backend")
		}
		s := NewRedisProgressStore(opts.RedisURL)
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, noop, fmt.Errorf("redis: %w", err)
		}
		log.Info("progress store: redis")
		return s, func() { _ = s.Close() }, nil
	}

	return nil, noop, fmt.Errorf("unknown store backend %q", backend)
}
