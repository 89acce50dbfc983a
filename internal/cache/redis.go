package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"solana-phoenix-scanner/internal/observability"
)

// opTimeout bounds every Redis round trip so a slow cache never stalls a request.
const opTimeout = 500 * time.Millisecond

// Redis is a Cache backed by a Redis server.
type Redis struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{client: client, logger: logger}
}

var _ Cache = (*Redis)(nil)

// Get returns the value for key. Errors other than a miss are logged and treated as a miss.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	val, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("redis get failed", zap.String("key", key), zap.Error(err))
		}
		observability.RecordCacheLookup(false)
		return nil, false
	}
	observability.RecordCacheLookup(true)
	return val, true
}

// Set stores val with ttl. Failures are logged and dropped.
func (r *Redis) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := r.client.Set(ctx, key, val, ttl).Err(); err != nil {
		r.logger.Warn("redis set failed", zap.String("key", key), zap.Error(err))
	}
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}

// RedisConfig addresses a Redis server.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// New returns a Redis cache when cfg.Addr is set, otherwise an in-memory cache.
// The Redis server is pinged once so misconfiguration surfaces at startup.
func New(ctx context.Context, cfg RedisConfig, logger *zap.Logger) (Cache, error) {
	if cfg.Addr == "" {
		return NewMemory(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return NewRedis(client, logger), nil
}
