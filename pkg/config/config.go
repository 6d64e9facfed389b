// Package config loads layered YAML + environment configuration for the
// kvs server and CLI.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the top-level configuration for a kvs-server process.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Storage StorageConfig `koanf:"storage"`
	Logging LoggingConfig `koanf:"logging"`
	Metrics MetricsConfig `koanf:"metrics"`
}

// ServerConfig holds TCP listener configuration.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// Addr returns "host:port" for net.Listen / net.Dial.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig holds the engine's on-disk configuration.
type StorageConfig struct {
	DataDir                 string `koanf:"data.dir"`
	CompactionThresholdBytes int64 `koanf:"compaction.threshold.bytes"`
	Engine                  string `koanf:"engine"`
}

// LoggingConfig holds structured-logging configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Host    string `koanf:"host"`
	Port    int    `koanf:"port"`
	Path    string `koanf:"path"`
}

// Load loads configuration from an optional YAML file and from KVS_*
// environment variables, applies defaults, then validates the result.
// configPath may be empty, in which case only env vars and defaults apply.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("KVS_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "KVS_")), "_", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Unmarshal walks koanf's nested map, so struct tags that themselves
	// contain the "." delimiter never match; read those keys by full path.
	if k.Exists("storage.data.dir") {
		cfg.Storage.DataDir = k.String("storage.data.dir")
	}
	if k.Exists("storage.compaction.threshold.bytes") {
		cfg.Storage.CompactionThresholdBytes = k.Int64("storage.compaction.threshold.bytes")
	}

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 4000
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "./kvs-data"
	}
	if cfg.Storage.CompactionThresholdBytes == 0 {
		cfg.Storage.CompactionThresholdBytes = 1024 * 1024
	}
	if cfg.Storage.Engine == "" {
		cfg.Storage.Engine = "kvs"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Metrics.Host == "" {
		cfg.Metrics.Host = "127.0.0.1"
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9100
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", cfg.Server.Port)
	}
	if cfg.Storage.CompactionThresholdBytes <= 0 {
		return fmt.Errorf("storage.compaction.threshold.bytes must be positive")
	}
	return nil
}
