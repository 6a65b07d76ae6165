// Package config loads the service configuration from a YAML file and
// environment variables, with sensible defaults for local development.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the top-level configuration for the loyalty engine.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Redis      RedisConfig      `koanf:"redis"`
	Missions   MissionsConfig   `koanf:"missions"`
	Dispatcher DispatcherConfig `koanf:"dispatcher"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port          int    `koanf:"port"`
	Host          string `koanf:"host"`
	MaxBodySizeMB int    `koanf:"max_body_size_mb"`
	Mode          string `koanf:"mode"` // "debug" or "release"
}

// DatabaseConfig holds the database connection settings.
type DatabaseConfig struct {
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

// RedisConfig holds the optional history-cache connection settings.
// An empty Addr disables the cache; history reads then go to Postgres.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// MissionsConfig holds settings for mission catalog loading.
type MissionsConfig struct {
	Source string `koanf:"source"` // "filesystem" or "database"
	Dir    string `koanf:"dir"`    // mission YAML directory for filesystem source
}

// DispatcherConfig tunes the event dispatch pipeline.
type DispatcherConfig struct {
	FlushInterval string `koanf:"flush_interval"` // parsed as time.Duration in main
	MaxBatchSize  int    `koanf:"max_batch_size"`
	WorkerCount   int    `koanf:"worker_count"`
	QueueCapacity int    `koanf:"queue_capacity"`
	HistoryLimit  int    `koanf:"history_limit"`
}

// Load loads the configuration from the given file path and environment
// variables. LOYALTY_SERVER__PORT=9090 overrides server.port.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":               8080,
		"server.host":               "0.0.0.0",
		"server.max_body_size_mb":   1,
		"server.mode":               "release",
		"database.dsn":              "postgres://localhost:5432/loyalty?sslmode=disable",
		"database.max_open_conns":   25,
		"database.max_idle_conns":   25,
		"database.auto_migrate":     true,
		"redis.addr":                "",
		"redis.password":            "",
		"redis.db":                  0,
		"missions.source":           "filesystem",
		"missions.dir":              "./config/missions",
		"dispatcher.flush_interval": "100ms",
		"dispatcher.max_batch_size": 256,
		"dispatcher.worker_count":   8,
		"dispatcher.queue_capacity": 1024,
		"dispatcher.history_limit":  1000,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("LOYALTY_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "LOYALTY_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
