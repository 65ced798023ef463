// SPDX-License-Identifier: MIT

package cache

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultMaxEntries      = 4096
	defaultCleanupInterval = 5 * time.Minute
)

// ForKind builds the cache selected by configuration. kind is one of
// "memory", "redis" or "none"; redisAddr is only consulted for redis.
func ForKind(kind, redisAddr string, logger zerolog.Logger) (Cache, error) {
	switch kind {
	case "", "memory":
		return NewMemoryCache(defaultMaxEntries, defaultCleanupInterval), nil
	case "redis":
		c, err := NewRedisCache(RedisConfig{Addr: redisAddr}, logger)
		if err != nil {
			return nil, fmt.Errorf("embed cache: %w", err)
		}
		return c, nil
	case "none":
		return NewNoOpCache(), nil
	default:
		return nil, fmt.Errorf("unknown cache kind %q", kind)
	}
}
