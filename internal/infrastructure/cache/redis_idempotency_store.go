package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/medledger/billing/internal/domain/shared"
	"github.com/medledger/billing/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultIdempotencyKeyPrefix namespaces ledger keys in a shared Redis
const DefaultIdempotencyKeyPrefix = "billing:idempotency:"

// pendingMarker is the value of a reserved key whose command has not finished
const pendingMarker = "\x00pending"

// RedisIdempotencyStore shares idempotency keys across ledger instances
type RedisIdempotencyStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// DialRedisIdempotencyStore connects to the Redis named by cfg and pings it
func DialRedisIdempotencyStore(ctx context.Context, cfg config.RedisConfig) (*RedisIdempotencyStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.Addr(), err)
	}
	return NewRedisIdempotencyStoreWithClient(client, ""), nil
}

// OpenIdempotencyStore returns the Redis store when redis.enabled is set and
// an in-memory one otherwise. When Redis is enabled but unreachable the
// in-memory store is used unless requireRedis is set. Keys held in memory are
// not shared between replicas, so a retried payment that lands on another
// instance is not deduplicated.
func OpenIdempotencyStore(ctx context.Context, cfg config.RedisConfig, requireRedis bool, log *zap.Logger) (shared.IdempotencyStore, error) {
	if !cfg.Enabled {
		log.Info("Redis disabled, idempotency keys kept in memory")
		return NewInMemoryIdempotencyStore(), nil
	}
	store, err := DialRedisIdempotencyStore(ctx, cfg)
	switch {
	case err == nil:
		log.Info("Idempotency keys kept in Redis", zap.String("addr", cfg.Addr()))
		return store, nil
	case requireRedis:
		return nil, fmt.Errorf("idempotency store: %w", err)
	default:
		log.Warn("Redis unreachable, idempotency keys kept in memory", zap.Error(err))
		return NewInMemoryIdempotencyStore(), nil
	}
}

// NewRedisIdempotencyStoreWithClient wraps an existing client
func NewRedisIdempotencyStoreWithClient(client redis.UniversalClient, keyPrefix string) *RedisIdempotencyStore {
	if keyPrefix == "" {
		keyPrefix = DefaultIdempotencyKeyPrefix
	}
	return &RedisIdempotencyStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Reserve claims key with SET NX so only one instance runs the command
func (s *RedisIdempotencyStore) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.keyPrefix+key, pendingMarker, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	return ok, nil
}

// Complete overwrites the pending marker with the result
func (s *RedisIdempotencyStore) Complete(ctx context.Context, key, result string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.keyPrefix+key, result, ttl).Err(); err != nil {
		return fmt.Errorf("failed to complete idempotency key: %w", err)
	}
	return nil
}

// Lookup returns the stored result; a pending key is found with an empty result
func (s *RedisIdempotencyStore) Lookup(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, s.keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to look up idempotency key: %w", err)
	}
	if val == pendingMarker {
		return "", true, nil
	}
	return val, true, nil
}

// Release deletes key so the command can be retried
func (s *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable; used by the readiness check
func (s *RedisIdempotencyStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (s *RedisIdempotencyStore) Close() error {
	return s.client.Close()
}

var _ shared.IdempotencyStore = (*RedisIdempotencyStore)(nil)
