package stagecache

import (
	"log/slog"
	"time"

	"github.com/poiesic/recollect/storage"
)

// Option configures a Cache.
type Option func(*Cache)

// WithSharedStore adds a shared tier visible to other instances.
func WithSharedStore(store storage.KeyValueStore) Option {
	return func(c *Cache) {
		c.shared = store
	}
}

// WithDefaultTTL sets the TTL used when Put is given zero.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.defaultTTL = ttl
		}
	}
}

// WithMaxBytes bounds the local tier.
func WithMaxBytes(n int64) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxBytes = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}
