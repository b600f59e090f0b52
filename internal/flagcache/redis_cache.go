package flagcache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/launchdarkly/go-client-sdk/internal/flagstore"

	"github.com/go-redis/redis/v8"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/launchdarkly/go-sdk-common/v3/ldtime"
)

func redisFlagsKey(prefix, contextKey string) string {
	return fmt.Sprintf("%s:flags:%s", prefix, contextKey)
}

func redisContextsKey(prefix string) string {
	return fmt.Sprintf("%s:contexts", prefix)
}

// RedisCache is a Cache that keeps flag snapshots in Redis, so they survive a restart of the
// process.
//
// Each context's flags are stored as a JSON string with an expiry of ttl. A sorted set, scored by
// the time of the last save, tracks which contexts are cached so that the oldest can be removed.
type RedisCache struct {
	client      redis.UniversalClient
	prefix      string
	maxContexts int
	ttl         time.Duration
	loggers     ldlog.Loggers
}

// NewRedisCache connects to Redis and creates a RedisCache.
func NewRedisCache(url, prefix string, maxContexts int, ttl time.Duration, loggers ldlog.Loggers) (*RedisCache, error) {
	parsed, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	opts := redis.UniversalOptions{
		DB:        parsed.DB,
		Addrs:     []string{parsed.Addr},
		Username:  parsed.Username,
		Password:  parsed.Password,
		TLSConfig: parsed.TLSConfig,
	}
	if maxContexts < 1 {
		maxContexts = 1
	}
	loggers.SetPrefix("[RedisFlagCache]")
	loggers.Infof("Using Redis flag cache at %s with prefix %q", parsed.Addr, prefix)
	return &RedisCache{
		client:      redis.NewUniversalClient(&opts),
		prefix:      prefix,
		maxContexts: maxContexts,
		ttl:         ttl,
		loggers:     loggers,
	}, nil
}

func (c *RedisCache) Load(ctx context.Context, contextKey string) ([]flagstore.FlagRecord, bool, error) { //nolint:golint
	data, err := c.client.Get(ctx, redisFlagsKey(c.prefix, contextKey)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	records, err := flagstore.ParseFlags(data)
	if err != nil {
		return nil, false, err
	}
	return records, true, nil
}

func (c *RedisCache) Save(ctx context.Context, contextKey string, flags map[string]flagstore.FlagValue) error { //nolint:golint
	data := flagstore.SerializeFlags(flags)
	savedAt := float64(ldtime.UnixMillisNow())
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, redisFlagsKey(c.prefix, contextKey), data, c.ttl)
		pipe.ZAdd(ctx, redisContextsKey(c.prefix), &redis.Z{Score: savedAt, Member: contextKey})
		return nil
	})
	if err != nil {
		return err
	}
	return c.trim(ctx)
}

func (c *RedisCache) RemoveOlderThan(ctx context.Context, cutoff time.Time) (int, error) { //nolint:golint
	maxScore := "(" + strconv.FormatUint(uint64(ldtime.UnixMillisFromTime(cutoff)), 10)
	keys, err := c.client.ZRangeByScore(ctx, redisContextsKey(c.prefix), &redis.ZRangeBy{Min: "-inf", Max: maxScore}).Result()
	if err != nil {
		return 0, err
	}
	return len(keys), c.remove(ctx, keys)
}

func (c *RedisCache) Close() error { //nolint:golint
	return c.client.Close()
}

func (c *RedisCache) trim(ctx context.Context) error {
	count, err := c.client.ZCard(ctx, redisContextsKey(c.prefix)).Result()
	if err != nil {
		return err
	}
	excess := count - int64(c.maxContexts)
	if excess <= 0 {
		return nil
	}
	keys, err := c.client.ZRange(ctx, redisContextsKey(c.prefix), 0, excess-1).Result()
	if err != nil {
		return err
	}
	c.loggers.Debugf("Removing %d cached context(s) beyond the limit of %d", len(keys), c.maxContexts)
	return c.remove(ctx, keys)
}

func (c *RedisCache) remove(ctx context.Context, contextKeys []string) error {
	if len(contextKeys) == 0 {
		return nil
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		members := make([]interface{}, 0, len(contextKeys))
		for _, k := range contextKeys {
			pipe.Del(ctx, redisFlagsKey(c.prefix, k))
			members = append(members, k)
		}
		pipe.ZRem(ctx, redisContextsKey(c.prefix), members...)
		return nil
	})
	return err
}
