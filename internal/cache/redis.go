package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	goredis "github.com/redis/go-redis/v9"
)

// RedisConfig holds configuration for the Redis cache backend.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	Namespace string        `yaml:"namespace"`
	TTL       time.Duration `yaml:"ttl"`
	PoolSize  int           `yaml:"pool_size"`
}

// RedisCache stores vectors in Redis so a fleet of replicas shares one
// embedding cache.
type RedisCache struct {
	client    *goredis.Client
	namespace string
	ttl       time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "embedgate"
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis cache: ping %s: %w", cfg.Addr, err)
	}

	return &RedisCache{
		client:    client,
		namespace: cfg.Namespace,
		ttl:       cfg.TTL,
	}, nil
}

// Get returns the cached vector or nil when absent.
func (c *RedisCache) Get(ctx context.Context, key string) ([]float32, error) {
	raw, err := c.client.Get(ctx, c.namespaced(key)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			c.misses.Add(1)
			return nil, nil
		}
		return nil, fmt.Errorf("redis cache: get: %w", err)
	}

	var vector []float32
	if err := json.Unmarshal(raw, &vector); err != nil {
		// Corrupt entry: drop it and report a miss.
		_ = c.client.Del(ctx, c.namespaced(key)).Err()
		c.misses.Add(1)
		return nil, nil
	}
	c.hits.Add(1)
	return vector, nil
}

// Set stores the vector with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, key string, vector []float32) error {
	raw, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("redis cache: marshal: %w", err)
	}
	if err := c.client.Set(ctx, c.namespaced(key), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis cache: set: %w", err)
	}
	return nil
}

// Stats returns hit and miss counts.
func (c *RedisCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) namespaced(key string) string {
	return c.namespace + ":" + key
}
