package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/cvd-expert-server/internal/domain"
)

const cacheKeyPrefix = "cvd:history:"

// ReadCache caches history query results. Implementations must tolerate
// concurrent use. Set must discard records read under a generation that an
// Invalidate has since retired.
type ReadCache interface {
	Get(ctx context.Context, key string) ([]Record, bool)
	Generation() uint64
	Set(ctx context.Context, key string, gen uint64, records []Record)
	Invalidate(ctx context.Context)
}

type cachedRecords struct {
	Records   []Record  `json:"records"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Cache is a two-tier history read cache: an in-process LRU in front of an
// optional Redis instance. Redis failures degrade to a miss.
type Cache struct {
	memory *lru.Cache
	redis  *redis.Client
	ttl    time.Duration
	logger *logrus.Logger

	// mu orders memory writes against invalidation.
	mu  sync.Mutex
	gen atomic.Uint64

	statsMu sync.Mutex
	stats   CacheStats
}

// CacheStats counts cache traffic per tier.
type CacheStats struct {
	MemoryHits    int64 `json:"memory_hits"`
	RedisHits     int64 `json:"redis_hits"`
	Misses        int64 `json:"misses"`
	Invalidations int64 `json:"invalidations"`
	StaleDrops    int64 `json:"stale_drops"`
}

// NewCache creates the cache. An empty RedisURL disables the second tier.
func NewCache(cfg domain.CacheConfig, logger *logrus.Logger) (*Cache, error) {
	size := cfg.MemorySize
	if size <= 0 {
		size = 128
	}
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	memory, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}

	c := &Cache{memory: memory, ttl: ttl, logger: logger}
	if cfg.RedisURL == "" {
		return c, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.PoolTimeout > 0 {
		opts.PoolTimeout = cfg.PoolTimeout
	}
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	c.redis = redis.NewClient(opts)
	return c, nil
}

// Key builds the cache key of a query.
func Key(limit int, filter Filter) string {
	return fmt.Sprintf("%s%d:%s", cacheKeyPrefix, limit, filter.Key())
}

// Get looks in memory first, then Redis. A Redis hit is promoted to memory.
func (c *Cache) Get(ctx context.Context, key string) ([]Record, bool) {
	if v, ok := c.memory.Get(key); ok {
		entry := v.(cachedRecords)
		if time.Now().Before(entry.ExpiresAt) {
			c.count(func(s *CacheStats) { s.MemoryHits++ })
			return entry.Records, true
		}
		c.memory.Remove(key)
	}

	if c.redis != nil {
		val, err := c.redis.Get(ctx, key).Result()
		switch {
		case err == redis.Nil:
		case err != nil:
			c.logger.WithError(err).Debug("History cache read failed")
		default:
			var entry cachedRecords
			if err := json.Unmarshal([]byte(val), &entry); err != nil {
				c.redis.Del(ctx, key)
				break
			}
			c.memory.Add(key, entry)
			c.count(func(s *CacheStats) { s.RedisHits++ })
			return entry.Records, true
		}
	}

	c.count(func(s *CacheStats) { s.Misses++ })
	return nil, false
}

// Generation identifies the current invalidation epoch. Read it before
// querying a backend and pass it to Set.
func (c *Cache) Generation() uint64 {
	return c.gen.Load()
}

// Set stores records in both tiers unless the cache was invalidated after
// gen was read.
func (c *Cache) Set(ctx context.Context, key string, gen uint64, records []Record) {
	entry := cachedRecords{Records: records, ExpiresAt: time.Now().Add(c.ttl)}

	c.mu.Lock()
	if c.gen.Load() != gen {
		c.mu.Unlock()
		c.count(func(s *CacheStats) { s.StaleDrops++ })
		return
	}
	c.memory.Add(key, entry)
	c.mu.Unlock()

	if c.redis == nil {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Debug("History cache write failed")
		return
	}
	// An invalidation scan may have run before the write above landed.
	if c.gen.Load() != gen {
		c.redis.Del(ctx, key)
	}
}

// Invalidate drops every cached query and retires the current generation.
func (c *Cache) Invalidate(ctx context.Context) {
	c.mu.Lock()
	c.gen.Add(1)
	c.memory.Purge()
	c.mu.Unlock()
	c.count(func(s *CacheStats) { s.Invalidations++ })

	if c.redis == nil {
		return
	}
	var keys []string
	iter := c.redis.Scan(ctx, 0, cacheKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.WithError(err).Warn("History cache invalidation scan failed")
		return
	}
	if len(keys) > 0 {
		if err := c.redis.Del(ctx, keys...).Err(); err != nil {
			c.logger.WithError(err).Warn("History cache invalidation failed")
		}
	}
}

// Ping checks the Redis tier; the memory tier is always healthy.
func (c *Cache) Ping(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Ping(ctx).Err()
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() CacheStats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// Close releases the Redis client.
func (c *Cache) Close() error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Close()
}

func (c *Cache) count(f func(*CacheStats)) {
	c.statsMu.Lock()
	f(&c.stats)
	c.statsMu.Unlock()
}
