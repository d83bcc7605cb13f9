package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
// All methods require chainID so cached verdicts stay isolated per chain.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, chainID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, chainID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, chainID string, key string) error

	// GetAssessment retrieves a cached verdict for a transaction id.
	// Identical resubmissions within the TTL are served from cache.
	GetAssessment(ctx context.Context, chainID string, txID string) (*Assessment, error)

	// SetAssessment caches a verdict for a transaction id.
	SetAssessment(ctx context.Context, chainID string, txID string, a *Assessment, ttl time.Duration) error

	// IncrementCounter atomically increments a windowed counter and returns
	// the new value. Used for the attacks-detected and scored-transaction
	// tallies behind the stats endpoint.
	IncrementCounter(ctx context.Context, chainID string, key string, window time.Duration) (int64, error)

	// GetCounter reads a windowed counter without incrementing it.
	// Returns 0 for a missing or expired counter.
	GetCounter(ctx context.Context, chainID string, key string) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// Counter keys tracked per chain for the stats endpoint.
const (
	CounterScored  = "scored"
	CounterAttacks = "attacks"
)

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (Community tier)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
