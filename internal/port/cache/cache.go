// Package cache defines the port interface for key-value caching.
// The idempotency middleware stores replayable responses through it.
package cache

import (
	"context"
	"time"
)

// Cache is the port interface for key-value caching.
// Get reports a miss as ok=false with a nil error.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
