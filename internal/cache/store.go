package cache

import (
	"context"
	"time"
)

// Store is the shared counter surface behind the rate limiting middleware.
// Implementations keep fixed-window counts visible to every replica.
type Store interface {
	// IncrementWithTTL adds one to the counter for key, starting the window
	// on first increment, and returns the new count with the remaining TTL.
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}
