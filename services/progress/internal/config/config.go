// Package config reads the progress service settings.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	platformcfg "github.com/example/watch-progress/internal/platform/config"
)

type StoreConfig struct {
	Backend     string
	RedisURL    string
	DatabaseURL string
	SQLitePath  string
	BoltPath    string
}

type SessionConfig struct {
	SaveInterval time.Duration
	WriteTimeout time.Duration
	// IdleTTL of zero disables reaping.
	IdleTTL      time.Duration
	ReapInterval time.Duration
}

type NATSConfig struct {
	Enabled bool
	URL     string
}

type WorkerConfig struct {
	BatchSize     int
	BatchInterval time.Duration
	MaxDeliver    int
}

type Config struct {
	App            platformcfg.AppConfig
	Store          StoreConfig
	Session        SessionConfig
	NATS           NATSConfig
	Worker         WorkerConfig
	AsyncWrites    bool
	IdempotencyTTL time.Duration
}

func Load() (Config, error) {
	v, err := platformcfg.NewViper()
	if err != nil {
		return Config{}, err
	}
	return FromViper(v)
}

func FromViper(v *viper.Viper) (Config, error) {
	v.SetDefault("service_name", "progress")
	app, err := platformcfg.FromViper(v)
	if err != nil {
		return Config{}, err
	}

	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	cfg := Config{
		App: app,
		Store: StoreConfig{
			Backend:     strings.ToLower(strings.TrimSpace(v.GetString("store_backend"))),
			RedisURL:    strings.TrimSpace(v.GetString("redis_url")),
			DatabaseURL: strings.TrimSpace(v.GetString("database_url")),
			SQLitePath:  strings.TrimSpace(v.GetString("sqlite_path")),
			BoltPath:    strings.TrimSpace(v.GetString("bolt_path")),
		},
		Session: SessionConfig{
			SaveInterval: positiveDuration(v, "progress_save_interval"),
			WriteTimeout: positiveDuration(v, "progress_write_timeout"),
			IdleTTL:      v.GetDuration("session_idle_ttl"),
			ReapInterval: positiveDuration(v, "session_reap_interval"),
		},
		NATS: NATSConfig{
			Enabled: v.GetBool("nats_enabled"),
			URL:     strings.TrimSpace(v.GetString("nats_url")),
		},
		Worker: WorkerConfig{
			BatchSize:     positiveInt(v, "worker_batch_size"),
			BatchInterval: positiveDuration(v, "worker_batch_interval"),
			MaxDeliver:    positiveInt(v, "worker_max_deliver"),
		},
		AsyncWrites:    v.GetBool("progress_async_writes"),
		IdempotencyTTL: positiveDuration(v, "idempotency_ttl"),
	}
	return cfg, nil
}

var defaults = map[string]any{
	"store_backend":          "auto",
	"progress_save_interval": 5 * time.Second,
	"progress_write_timeout": 10 * time.Second,
	"session_idle_ttl":       30 * time.Minute,
	"session_reap_interval":  time.Minute,
	"progress_async_writes":  true,
	"nats_enabled":           true,
	"worker_batch_size":      100,
	"worker_batch_interval":  2 * time.Second,
	"worker_max_deliver":     5,
	"idempotency_ttl":        24 * time.Hour,
}

// positiveDuration falls back to the default when the configured value is
// malformed or not positive.
func positiveDuration(v *viper.Viper, key string) time.Duration {
	if d := v.GetDuration(key); d > 0 {
		return d
	}
	d, _ := defaults[key].(time.Duration)
	return d
}

func positiveInt(v *viper.Viper, key string) int {
	if n := v.GetInt(key); n > 0 {
		return n
	}
	n, _ := defaults[key].(int)
	return n
}
