package cache

import "time"

// Config holds configuration for the catalog response cache.
type Config struct {
	// Enabled controls whether caching is active. When false the catalog
	// endpoints are served uncached.
	Enabled bool `mapstructure:"enabled"`

	// TTL is how long a cached catalog response stays valid.
	TTL time.Duration `mapstructure:"ttl"`

	// MaxSize is the maximum number of cached responses.
	MaxSize int `mapstructure:"max_size"`
}

// DefaultConfig returns a Config with caching enabled.
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		TTL:     5 * time.Minute,
		MaxSize: 256,
	}
}

// New returns the cache described by cfg, or nil when caching is disabled.
// Middleware over a nil cache passes requests through.
func New(cfg Config) *LRUCache {
	if !cfg.Enabled {
		return nil
	}
	return NewLRUCache(cfg.MaxSize, cfg.TTL)
}
