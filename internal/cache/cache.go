// Package cache stores rendered responses keyed by string.
package cache

import (
	"context"
	"time"
)

// Cache is a byte cache with prefix invalidation.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) error
	Close() error
}
