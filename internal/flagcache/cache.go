package flagcache

import (
	"context"
	"time"

	"github.com/launchdarkly/go-client-sdk/config"
	"github.com/launchdarkly/go-client-sdk/internal/flagstore"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

// DefaultRedisPrefix is the key prefix used by RedisCache if none is configured.
const DefaultRedisPrefix = "launchdarkly-client"

// Cache stores flag snapshots keyed by context.
type Cache interface {
	// Load returns the cached flags for a context, or false if there are none.
	Load(ctx context.Context, contextKey string) ([]flagstore.FlagRecord, bool, error)

	// Save replaces the cached flags for a context and marks it as recently used.
	Save(ctx context.Context, contextKey string, flags map[string]flagstore.FlagValue) error

	// RemoveOlderThan discards every context that was last saved before the cutoff. It returns the
	// number of contexts removed.
	RemoveOlderThan(ctx context.Context, cutoff time.Time) (int, error)

	Close() error
}

// NewCache creates the Cache described by the configuration. It returns nil if caching is disabled.
func NewCache(c config.CacheConfig, loggers ldlog.Loggers) (Cache, error) {
	if c.Disabled {
		return nil, nil
	}
	maxContexts := c.MaxCachedContexts.GetOrElse(config.DefaultMaxCachedContexts)
	if c.RedisURL.IsDefined() {
		prefix := c.RedisPrefix
		if prefix == "" {
			prefix = DefaultRedisPrefix
		}
		rc, err := NewRedisCache(c.RedisURL.String(), prefix, maxContexts, c.TTL.GetOrElse(config.DefaultCacheTTL), loggers)
		if err != nil {
			return nil, err
		}
		return rc, nil
	}
	return NewInMemoryCache(maxContexts), nil
}
