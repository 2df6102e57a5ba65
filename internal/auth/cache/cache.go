// Package cache is the key/value store behind session-list caching and the
// brute-force counters. Values are opaque bytes; callers own the encoding.
package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrMiss is returned by Get when the key is absent or expired.
	ErrMiss = errors.New("cache: miss")

	// ErrConflict is returned by Update when the key kept changing under it.
	ErrConflict = errors.New("cache: update conflict")
)

// UpdateFunc computes the next value of a key from its current one. found
// is false when the key is absent. Returning write=false leaves the key as
// it is. It may run more than once per Update and must not have side
// effects beyond the returned value.
type UpdateFunc func(current []byte, found bool) (next []byte, write bool, err error)

// Cache is implemented by the memory and redis drivers.
type Cache interface {
	// Get returns the value for key, or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A ttl of zero means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes the keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// Update atomically replaces the value of key with the result of fn,
	// setting ttl on write. No other Set, Delete or Update of key lands
	// between the read fn sees and the write.
	Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) error

	Ping(ctx context.Context) error
	Close() error
}

// UserSessionsKey is the cache entry holding a user's active session list.
// Every session mutation deletes it.
func UserSessionsKey(userID string) string {
	return "get_user_sessions:" + userID
}
