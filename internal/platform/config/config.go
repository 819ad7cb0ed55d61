// Package config loads the settings shared by every service from the
// environment, optionally layered over a config file named by CONFIG_FILE.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Addr string
}

type GRPCConfig struct {
	Addr string
}

type AppConfig struct {
	ServiceName string
	Env         string
	LogLevel    string
	HTTP        HTTPConfig
	GRPC        GRPCConfig
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c AppConfig) IsProduction() bool {
	switch strings.ToLower(c.Env) {
	case "prod", "production":
		return true
	}
	return false
}

// NewViper returns a viper instance that resolves keys from the environment
// (service_name reads SERVICE_NAME) and from CONFIG_FILE when it is set.
// Environment variables win over file values.
func NewViper() (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}
	return v, nil
}

func Load() (AppConfig, error) {
	v, err := NewViper()
	if err != nil {
		return AppConfig{}, err
	}
	return FromViper(v)
}

// FromViper reads the shared settings from v.
func FromViper(v *viper.Viper) (AppConfig, error) {
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("grpc_addr", ":9090")

	cfg := AppConfig{
		ServiceName: strings.TrimSpace(v.GetString("service_name")),
		Env:         strings.TrimSpace(v.GetString("app_env")),
		LogLevel:    strings.TrimSpace(v.GetString("log_level")),
		HTTP:        HTTPConfig{Addr: strings.TrimSpace(v.GetString("http_addr"))},
		GRPC:        GRPCConfig{Addr: strings.TrimSpace(v.GetString("grpc_addr"))},
	}
	if cfg.ServiceName == "" {
		return AppConfig{}, errors.New("SERVICE_NAME is required")
	}
	return cfg, nil
}
