// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New() returns a Config populated with defaults.
// - Load(ctx) layers a YAML file and environment variables on top of New().
// - Validation errors wrap ErrInvalidConfig; source errors wrap ErrLoadConfig.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// EventQueueSize bounds the in-memory outcome queue.
	EventQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of outcome workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the outcome deduplication window.
	DedupeSize int `koanf:"dedupe_size"`

	// Store selects the stat store backend: memory, redis or postgres.
	Store string `koanf:"store"`

	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
	// RedisGeoKey names the GEO set holding venue positions.
	RedisGeoKey string `koanf:"redis_geo_key"`

	// PostgresDSN is a pgx connection string.
	PostgresDSN string `koanf:"pg_dsn"`

	// KafkaBrokers is a comma separated broker list. Empty disables the consumer.
	KafkaBrokers string `koanf:"kafka_brokers"`
	KafkaTopic   string `koanf:"kafka_topic"`
	KafkaGroup   string `koanf:"kafka_group"`

	// VenuePageSize is the page size used when streaming venues into a ranker.
	VenuePageSize int `koanf:"venue_page_size"`

	// StoreTimeoutMS bounds the save phase of a recorded outcome.
	StoreTimeoutMS int `koanf:"store_timeout_ms"`

	// NearbyLimit caps GET /venues/nearby?limit.
	NearbyLimit int `koanf:"nearby_limit"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:       "info",
		Addr:           ":9080",
		EventQueueSize: 100_000,
		WorkerCount:    runtime.NumCPU() * 4,
		DedupeSize:     500_000,
		Store:          StoreMemory,
		RedisAddr:      "localhost:6379",
		RedisGeoKey:    "venues:geo",
		KafkaTopic:     "reservation-outcomes",
		KafkaGroup:     "venuestats",
		VenuePageSize:  1000,
		StoreTimeoutMS: 5000,
		NearbyLimit:    100,
	}
}

// StoreTimeout returns StoreTimeoutMS as a duration.
func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutMS) * time.Millisecond
}

// Brokers splits KafkaBrokers into a list, dropping empty entries.
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if c.EventQueueSize <= 0 {
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	}
	if c.VenuePageSize <= 0 {
		return fmt.Errorf("%w: venue_page_size must be positive", ErrInvalidConfig)
	}
	if c.StoreTimeoutMS <= 0 {
		return fmt.Errorf("%w: store_timeout_ms must be positive", ErrInvalidConfig)
	}
	switch c.Store {
	case StoreMemory:
	case StoreRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: redis_addr is required for the redis store", ErrInvalidConfig)
		}
	case StorePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: pg_dsn is required for the postgres store", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store %q", ErrInvalidConfig, c.Store)
	}
	if len(c.Brokers()) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("%w: kafka_topic is required when kafka_brokers is set", ErrInvalidConfig)
	}
	return nil
}
