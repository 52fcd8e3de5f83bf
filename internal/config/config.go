// Package config loads runtime configuration with layered sources:
// built-in defaults, an optional YAML file, then environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order
// of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/fieldrouter/config.yaml",
	"/etc/fieldrouter/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Config holds runtime configuration for the router.
type Config struct {
	Environment string         `koanf:"environment" validate:"required"`
	Server      ServerConfig   `koanf:"server"`
	NATS        NATSConfig     `koanf:"nats" validate:"required"`
	Redis       RedisConfig    `koanf:"redis"`
	Portal      PortalConfig   `koanf:"portal" validate:"required"`
	Cache       CacheConfig    `koanf:"cache"`
	Dedup       DedupConfig    `koanf:"dedup"`
	Pipeline    PipelineConfig `koanf:"pipeline"`
	Dispatch    DispatchConfig `koanf:"dispatch"`
	Logging     LoggingConfig  `koanf:"logging"`
}

// ServerConfig configures the HTTP front door.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	MaxBodySize     int64         `koanf:"max_body_size"`
}

// NATSConfig configures the inbound stream and the outbound broker.
type NATSConfig struct {
	URL             string `koanf:"url" validate:"required"`
	Stream          string `koanf:"stream" validate:"required"`
	Subject         string `koanf:"subject" validate:"required"`
	Durable         string `koanf:"durable" validate:"required"`
	DeadLetterTopic string `koanf:"dead_letter_topic" validate:"required"`
	MaxDeliver      int    `koanf:"max_deliver"`
	Workers         int    `koanf:"workers" validate:"gte=0"`
}

// RedisConfig configures the shared cache. An empty Addr selects the
// in-process cache, for tests and single-node deployments.
type RedisConfig struct {
	Addr     string        `koanf:"addr"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	Timeout  time.Duration `koanf:"timeout"`
}

// PortalConfig points at the reference-data API.
type PortalConfig struct {
	BaseURL string        `koanf:"base_url" validate:"required,url"`
	Token   string        `koanf:"token"`
	Timeout time.Duration `koanf:"timeout"`
}

// CacheConfig tunes reference-data caching.
type CacheConfig struct {
	TTL time.Duration `koanf:"ttl"`
}

// DedupConfig tunes the idempotency ledger.
type DedupConfig struct {
	TTL     time.Duration `koanf:"ttl"`
	MaxWait time.Duration `koanf:"max_wait"`
}

// PipelineConfig tunes envelope processing.
type PipelineConfig struct {
	// MaxMessageAge discards envelopes older than this; zero disables.
	MaxMessageAge  time.Duration `koanf:"max_message_age"`
	ProcessTimeout time.Duration `koanf:"process_timeout"`
}

// DispatchConfig tunes outbound publishing.
type DispatchConfig struct {
	MaxAttempts uint64 `koanf:"max_attempts"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `koanf:"level" validate:"oneof=trace debug info warn error"`
}

func defaultConfig() *Config {
	return &Config{
		Environment: "dev",
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    90 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodySize:     10 * 1024 * 1024,
		},
		NATS: NATSConfig{
			URL:             "nats://127.0.0.1:4222",
			Stream:          "raw-observations",
			Subject:         "raw.observations",
			Durable:         "fieldrouter",
			DeadLetterTopic: "observations-dead-letter",
			MaxDeliver:      10,
			Workers:         4,
		},
		Redis: RedisConfig{
			Addr:    "",
			DB:      0,
			Timeout: 2 * time.Second,
		},
		Portal: PortalConfig{
			BaseURL: "http://localhost:8000/api",
			Timeout: 10 * time.Second,
		},
		Cache: CacheConfig{
			TTL: 5 * time.Minute,
		},
		Dedup: DedupConfig{
			TTL:     24 * time.Hour,
			MaxWait: 10 * time.Second,
		},
		Pipeline: PipelineConfig{
			MaxMessageAge:  24 * time.Hour,
			ProcessTimeout: 60 * time.Second,
		},
		Dispatch: DispatchConfig{
			MaxAttempts: 5,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration with precedence ENV > file > defaults and
// validates the result.
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration against the struct tags.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	return validate.Struct(c)
}

// findConfigFile searches for a config file, env override first.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unknown variables map to nothing, so unrelated environment noise cannot
// clobber configuration keys.
//
// Examples:
//   - NATS_URL -> nats.url
//   - PORTAL_BASE_URL -> portal.base_url
//   - DISPATCH_MAX_ATTEMPTS -> dispatch.max_attempts
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		"environment": "environment",

		"http_host":             "server.host",
		"http_port":             "server.port",
		"http_read_timeout":     "server.read_timeout",
		"http_write_timeout":    "server.write_timeout",
		"http_shutdown_timeout": "server.shutdown_timeout",
		"http_max_body_size":    "server.max_body_size",

		"nats_url":               "nats.url",
		"nats_stream":            "nats.stream",
		"nats_subject":           "nats.subject",
		"nats_durable":           "nats.durable",
		"nats_dead_letter_topic": "nats.dead_letter_topic",
		"nats_max_deliver":       "nats.max_deliver",
		"nats_workers":           "nats.workers",

		"redis_addr":     "redis.addr",
		"redis_password": "redis.password",
		"redis_db":       "redis.db",
		"redis_timeout":  "redis.timeout",

		"portal_base_url": "portal.base_url",
		"portal_token":    "portal.token",
		"portal_timeout":  "portal.timeout",

		"cache_ttl": "cache.ttl",

		"dedup_ttl":      "dedup.ttl",
		"dedup_max_wait": "dedup.max_wait",

		"max_message_age": "pipeline.max_message_age",
		"process_timeout": "pipeline.process_timeout",

		"dispatch_max_attempts": "dispatch.max_attempts",

		"log_level": "logging.level",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
