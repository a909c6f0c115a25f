package repository

import "time"

// MemoryOption applies a configuration option to the MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}

// WithVenues seeds the venue source.
func WithVenues(rows ...VenueRow) MemoryOption {
	return func(s *MemoryStore) {
		for _, r := range rows {
			s.putVenueLocked(r)
		}
	}
}

// RedisOption applies a configuration option to the RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix namespaces every key the store writes.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithGeoKey sets the GEO set holding venue positions.
func WithGeoKey(key string) RedisOption {
	return func(s *RedisStore) {
		if key != "" {
			s.geoKey = key
		}
	}
}

// PostgresOption applies a configuration option to the PostgresStore.
type PostgresOption func(*postgresConfig)

type postgresConfig struct {
	maxConns        int32
	minConns        int32
	maxConnLifetime time.Duration
	maxConnIdleTime time.Duration
	pingTimeout     time.Duration
}

// WithPoolSize bounds the connection pool.
func WithPoolSize(minConns, maxConns int32) PostgresOption {
	return func(c *postgresConfig) {
		if maxConns > 0 {
			c.maxConns = maxConns
		}
		if minConns >= 0 && minConns <= c.maxConns {
			c.minConns = minConns
		}
	}
}

// WithConnLifetime sets how long pooled connections live and may idle.
func WithConnLifetime(lifetime, idle time.Duration) PostgresOption {
	return func(c *postgresConfig) {
		if lifetime > 0 {
			c.maxConnLifetime = lifetime
		}
		if idle > 0 {
			c.maxConnIdleTime = idle
		}
	}
}

// WithPingTimeout bounds the connectivity check done at construction.
func WithPingTimeout(d time.Duration) PostgresOption {
	return func(c *postgresConfig) {
		if d > 0 {
			c.pingTimeout = d
		}
	}
}
