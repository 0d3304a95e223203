// Package storage persists small client-side values (the session blob, the
// refresh token, the forgot-password ticket) with optional expiry.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get for missing or expired keys.
var ErrNotFound = errors.New("storage: key not found")

// Store is a key/value store with per-key TTL. A ttl <= 0 never expires.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}
