package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_RequiresServiceName(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("SERVICE_NAME", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without SERVICE_NAME")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("SERVICE_NAME", "progress")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" || cfg.GRPC.Addr != ":9090" {
		t.Fatalf("unexpected addrs: %s %s", cfg.HTTP.Addr, cfg.GRPC.Addr)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("expected info, got %s", cfg.LogLevel)
	}
	if cfg.IsProduction() {
		t.Fatal("expected development by default")
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "progress.yaml")
	body := "service_name: from-file\nhttp_addr: \":7000\"\napp_env: production\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SERVICE_NAME", "from-env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ServiceName != "from-env" {
		t.Fatalf("expected env to win, got %s", cfg.ServiceName)
	}
	if cfg.HTTP.Addr != ":7000" {
		t.Fatalf("expected file value, got %s", cfg.HTTP.Addr)
	}
	if !cfg.IsProduction() {
		t.Fatal("expected production from file")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("SERVICE_NAME", "progress")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
