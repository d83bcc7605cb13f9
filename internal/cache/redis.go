package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opensource-web3/kestrel/internal/domain"
)

// RedisCache implements Cache using Redis.
// Used as the Pro tier cache and as L2 in two-phase caching.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Get retrieves a value from Redis.
func (c *RedisCache) Get(ctx context.Context, chainID string, key string) ([]byte, error) {
	if chainID == "" {
		return nil, fmt.Errorf("chainID is required")
	}

	fullKey := c.makeKey(chainID, key)
	val, err := c.client.Get(ctx, fullKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set stores a value in Redis with TTL.
func (c *RedisCache) Set(ctx context.Context, chainID string, key string, value []byte, ttl time.Duration) error {
	if chainID == "" {
		return fmt.Errorf("chainID is required")
	}

	fullKey := c.makeKey(chainID, key)
	return c.client.Set(ctx, fullKey, value, ttl).Err()
}

// Delete removes a value from Redis.
func (c *RedisCache) Delete(ctx context.Context, chainID string, key string) error {
	if chainID == "" {
		return fmt.Errorf("chainID is required")
	}

	fullKey := c.makeKey(chainID, key)
	return c.client.Del(ctx, fullKey).Err()
}

// GetAssessment retrieves a cached verdict for a transaction id.
func (c *RedisCache) GetAssessment(ctx context.Context, chainID string, txID string) (*domain.Assessment, error) {
	data, err := c.Get(ctx, chainID, "verdict:"+txID)
	if err != nil || data == nil {
		return nil, err
	}

	var a domain.Assessment
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// SetAssessment caches a verdict for a transaction id.
func (c *RedisCache) SetAssessment(ctx context.Context, chainID string, txID string, a *domain.Assessment, ttl time.Duration) error {
	bytes, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return c.Set(ctx, chainID, "verdict:"+txID, bytes, ttl)
}

// IncrementCounter atomically increments a counter using Redis INCR with EXPIRE.
func (c *RedisCache) IncrementCounter(ctx context.Context, chainID string, key string, window time.Duration) (int64, error) {
	if chainID == "" {
		return 0, fmt.Errorf("chainID is required")
	}

	fullKey := c.makeKey(chainID, "counter:"+key)

	// Use Lua script for atomic increment with TTL
	script := redis.NewScript(`
		local current = redis.call('INCR', KEYS[1])
		if current == 1 then
			redis.call('PEXPIRE', KEYS[1], ARGV[1])
		end
		return current
	`)

	result, err := script.Run(ctx, c.client, []string{fullKey}, window.Milliseconds()).Int64()
	if err != nil {
		return 0, err
	}

	return result, nil
}

// GetCounter reads a counter without incrementing it.
func (c *RedisCache) GetCounter(ctx context.Context, chainID string, key string) (int64, error) {
	if chainID == "" {
		return 0, fmt.Errorf("chainID is required")
	}

	fullKey := c.makeKey(chainID, "counter:"+key)
	val, err := c.client.Get(ctx, fullKey).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) makeKey(chainID, key string) string {
	return "kestrel:" + chainID + ":" + key
}
