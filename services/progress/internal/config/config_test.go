package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CONFIG_FILE", "SERVICE_NAME", "STORE_BACKEND", "REDIS_URL", "DATABASE_URL",
		"PROGRESS_SAVE_INTERVAL", "SESSION_IDLE_TTL", "PROGRESS_ASYNC_WRITES",
		"NATS_ENABLED", "WORKER_BATCH_SIZE", "WORKER_BATCH_INTERVAL", "IDEMPOTENCY_TTL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.App.ServiceName != "progress" {
		t.Fatalf("expected default service name, got %q", cfg.App.ServiceName)
	}
	if cfg.Store.Backend != "auto" {
		t.Fatalf("expected auto backend, got %q", cfg.Store.Backend)
	}
	if cfg.Session.SaveInterval != 5*time.Second {
		t.Fatalf("expected 5s save interval, got %s", cfg.Session.SaveInterval)
	}
	if cfg.Session.IdleTTL != 30*time.Minute {
		t.Fatalf("expected 30m idle ttl, got %s", cfg.Session.IdleTTL)
	}
	if !cfg.AsyncWrites || !cfg.NATS.Enabled {
		t.Fatal("expected async writes and nats enabled by default")
	}
	if cfg.Worker.BatchSize != 100 || cfg.Worker.BatchInterval != 2*time.Second {
		t.Fatalf("unexpected worker defaults: %+v", cfg.Worker)
	}
	if cfg.IdempotencyTTL != 24*time.Hour {
		t.Fatalf("expected 24h, got %s", cfg.IdempotencyTTL)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_BACKEND", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/progress.db")
	t.Setenv("PROGRESS_SAVE_INTERVAL", "750ms")
	t.Setenv("PROGRESS_ASYNC_WRITES", "false")
	t.Setenv("WORKER_BATCH_SIZE", "10")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Store.Backend != "sqlite" || cfg.Store.SQLitePath != "/tmp/progress.db" {
		t.Fatalf("unexpected store config: %+v", cfg.Store)
	}
	if cfg.Session.SaveInterval != 750*time.Millisecond {
		t.Fatalf("expected 750ms, got %s", cfg.Session.SaveInterval)
	}
	if cfg.AsyncWrites {
		t.Fatal("expected async writes disabled")
	}
	if cfg.Worker.BatchSize != 10 {
		t.Fatalf("expected 10, got %d", cfg.Worker.BatchSize)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("PROGRESS_SAVE_INTERVAL", "soon")
	t.Setenv("WORKER_BATCH_SIZE", "-4")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Session.SaveInterval != 5*time.Second {
		t.Fatalf("expected fallback to 5s, got %s", cfg.Session.SaveInterval)
	}
	if cfg.Worker.BatchSize != 100 {
		t.Fatalf("expected fallback to 100, got %d", cfg.Worker.BatchSize)
	}
}

func TestLoad_ZeroIdleTTLDisablesReaping(t *testing.T) {
	clearEnv(t)
	t.Setenv("SESSION_IDLE_TTL", "0s")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Session.IdleTTL != 0 {
		t.Fatalf("expected 0, got %s", cfg.Session.IdleTTL)
	}
}
