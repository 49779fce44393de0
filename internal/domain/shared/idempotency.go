package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers keys that were already processed.
// It backs request-level deduplication (Idempotency-Key) and event handlers.
type IdempotencyStore interface {
	// Reserve atomically claims key for ttl.
	// Returns true if the key was newly claimed, false if it already exists.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Complete stores the result reference for a claimed key
	Complete(ctx context.Context, key string, result string, ttl time.Duration) error

	// Lookup returns the stored result for key. found is false for unknown keys;
	// a claimed but not yet completed key returns found=true and an empty result.
	Lookup(ctx context.Context, key string) (result string, found bool, err error)

	// Release drops a claim so that a failed command can be retried
	Release(ctx context.Context, key string) error

	// Close closes the store and releases resources
	Close() error
}

// IdempotencyConfig holds configuration for idempotency handling
type IdempotencyConfig struct {
	// TTL is how long a processed key is remembered. Default: 24 hours
	TTL time.Duration

	// Enabled determines whether idempotency checking is enabled
	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
