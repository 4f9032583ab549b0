package metric

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mbrdecode/mbr-decode/internal/config"
	"github.com/mbrdecode/mbr-decode/internal/pkg/errors"
)

// CacheMetrics is the interface for recording cache metrics, labelled
// by cache tier (memory, redis). It keeps the cache decoupled from the
// metrics package.
type CacheMetrics interface {
	RecordCacheHit(tier string)
	RecordCacheMiss(tier string)
	UpdateCacheSize(tier string, size int)
}

// Cache tier labels.
const (
	memoryTier = "memory"
	redisTier  = "redis"
)

// ScoreCache stores metric scores keyed by hash.ScoreKey.
type ScoreCache interface {
	Get(ctx context.Context, key string) (float64, bool)
	Set(ctx context.Context, key string, score float64)
	Close() error
}

// NewCache creates a score cache from configuration. A "none" type
// returns nil, which disables caching.
func NewCache(cfg config.CacheConfig) (ScoreCache, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryCache(cfg.Size), nil
	case "redis":
		return NewRedisCache(cfg.RedisURL, time.Duration(cfg.TTL)*time.Second)
	case "none", "":
		return nil, nil
	default:
		return nil, errors.ValidationError("unknown cache type: " + cfg.Type)
	}
}

// MemoryCache is an in-process LRU score cache.
type MemoryCache struct {
	mu      sync.RWMutex
	cache   map[string]float64
	maxSize int
	order   []string // LRU order
	metrics CacheMetrics
}

// NewMemoryCache creates a new in-memory cache.
func NewMemoryCache(maxSize int) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 10000
	}

	return &MemoryCache{
		cache:   make(map[string]float64),
		maxSize: maxSize,
		order:   make([]string, 0, maxSize),
	}
}

// SetMetrics sets the metrics recorder for this cache.
// This allows metrics to be injected after creation.
func (c *MemoryCache) SetMetrics(metrics CacheMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = metrics
}

// Get retrieves a score from cache.
func (c *MemoryCache) Get(ctx context.Context, key string) (float64, bool) {
	c.mu.RLock()
	score, ok := c.cache[key]
	c.mu.RUnlock()

	if ok {
		if c.metrics != nil {
			c.metrics.RecordCacheHit(memoryTier)
		}

		// Move to end of LRU (most recently used)
		c.mu.Lock()
		c.moveToEnd(key)
		c.mu.Unlock()

		return score, true
	}

	if c.metrics != nil {
		c.metrics.RecordCacheMiss(memoryTier)
	}

	return 0, false
}

// Set stores a score in cache.
func (c *MemoryCache) Set(ctx context.Context, key string, score float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Check if already exists
	if _, exists := c.cache[key]; exists {
		c.cache[key] = score
		c.moveToEnd(key)
		return
	}

	// Evict if at capacity
	for len(c.cache) >= c.maxSize && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.cache, oldest)
	}

	// Add new entry
	c.cache[key] = score
	c.order = append(c.order, key)

	if c.metrics != nil {
		c.metrics.UpdateCacheSize(memoryTier, len(c.cache))
	}
}

// moveToEnd moves a key to the end of the LRU order (must hold lock).
func (c *MemoryCache) moveToEnd(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			c.order = append(c.order, key)
			return
		}
	}
}

// Size returns the current cache size.
func (c *MemoryCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// Clear clears the cache.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]float64)
	c.order = make([]string, 0, c.maxSize)

	if c.metrics != nil {
		c.metrics.UpdateCacheSize(memoryTier, 0)
	}
}

// Close releases resources. In-memory caches have none.
func (c *MemoryCache) Close() error {
	return nil
}

// Stats returns cache statistics.
func (c *MemoryCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return CacheStats{
		Size:    len(c.cache),
		MaxSize: c.maxSize,
	}
}

// CacheStats holds cache statistics.
type CacheStats struct {
	Size    int `json:"size"`
	MaxSize int `json:"max_size"`
}

// RedisCache stores scores in Redis, shared across processes.
type RedisCache struct {
	client  *redis.Client
	ttl     time.Duration
	metrics CacheMetrics
	mu      sync.RWMutex
}

const redisKeyPrefix = "mbr:score:"

// NewRedisCache creates a Redis-backed score cache.
func NewRedisCache(url string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(errors.CodeValidation, "invalid redis URL", err)
	}

	return &RedisCache{
		client: redis.NewClient(opts),
		ttl:    ttl,
	}, nil
}

// SetMetrics sets the metrics recorder for this cache.
func (c *RedisCache) SetMetrics(metrics CacheMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = metrics
}

// Get retrieves a score from Redis. Transport errors count as misses.
func (c *RedisCache) Get(ctx context.Context, key string) (float64, bool) {
	score, err := c.client.Get(ctx, redisKeyPrefix+key).Float64()

	c.mu.RLock()
	metrics := c.metrics
	c.mu.RUnlock()

	if err != nil {
		if metrics != nil {
			metrics.RecordCacheMiss(redisTier)
		}
		return 0, false
	}

	if metrics != nil {
		metrics.RecordCacheHit(redisTier)
	}
	return score, true
}

// Set stores a score in Redis. Errors are dropped; the cache is an
// optimization, not a source of truth.
func (c *RedisCache) Set(ctx context.Context, key string, score float64) {
	_ = c.client.Set(ctx, redisKeyPrefix+key, score, c.ttl).Err()
}

// Close releases the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
