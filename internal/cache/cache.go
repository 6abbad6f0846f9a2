// Package cache holds the storage contract shared by the intent cache
// backends.
package cache

import (
	"context"
	"time"
)

// Interface is satisfied by redisstore.Client. Get reports a miss with
// ok=false and a nil error.
type Interface interface {
	Get(ctx context.Context, key string) (val []byte, ok bool, err error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}
