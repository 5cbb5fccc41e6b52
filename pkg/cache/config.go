package cache

import (
	"fmt"
	"time"
)

// RedisConfig describes the shared Redis the result cache and job queue use.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
	// Prefix namespaces every key, e.g. "brentshift" gives "brentshift:result:...".
	Prefix string
}

func (c RedisConfig) withDefaults() RedisConfig {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6379
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	if c.Prefix == "" {
		c.Prefix = "brentshift"
	}
	return c
}

// Addr returns host:port.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MemoryOption configures MemoryCache.
type MemoryOption func(*memoryConfig)

type memoryConfig struct {
	maxSize         int
	defaultTTL      time.Duration
	cleanupInterval time.Duration
}

// WithMemoryMaxSize bounds the number of entries; the least recently used
// one is evicted first.
func WithMemoryMaxSize(size int) MemoryOption {
	return func(c *memoryConfig) { c.maxSize = size }
}

// WithMemoryDefaultTTL sets the lifetime of entries stored without expiration.
func WithMemoryDefaultTTL(ttl time.Duration) MemoryOption {
	return func(c *memoryConfig) { c.defaultTTL = ttl }
}

// WithMemoryCleanup sets how often expired entries are swept; 0 disables
// the sweeper.
func WithMemoryCleanup(interval time.Duration) MemoryOption {
	return func(c *memoryConfig) { c.cleanupInterval = interval }
}
