package ports

import (
	"context"
	"time"
)

// Cache is a small key-value store for bookkeeping such as reconciler cursors.
// It never holds vote state; that is always read from the ledger.
type Cache interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
