// Package cache abstracts the key-value backend shared by the reference
// cache and the deduplication ledger. Any store with TTL support satisfies
// the contract.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache: key not found")

// Backend is a minimal TTL key-value store.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetEx(ctx context.Context, key string, ttl time.Duration, value []byte) error
	Close() error
}
