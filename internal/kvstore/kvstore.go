// Package kvstore provides the durable key-value store capability the
// rest of the service is written against: a networked Redis
// implementation for production and an in-process memory map for
// constrained and test environments. Call sites never branch on which
// implementation is active.
package kvstore

import (
	"context"
	"errors"
	"time"
)

// ErrSkipWrite may be returned by an UpdateFunc to abort the write
// while still reporting success to the caller. Used for
// write-avoidance when the computed value did not change.
var ErrSkipWrite = errors.New("kvstore: skip write")

// UpdateFunc computes the new value for a key from its current value.
// ok is false when the key does not exist.
type UpdateFunc func(old string, ok bool) (string, error)

// Store is the key-value contract shared by the Redis and memory
// implementations. Single-key operations are atomic; Update provides a
// per-key atomic read-modify-write so monotonic aggregates cannot
// regress under concurrent writers.
type Store interface {
	// Get returns the value for key. ok is false when absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set writes value under key with no expiry.
	Set(ctx context.Context, key, value string) error

	// SetTTL writes value under key, expiring after ttl.
	SetTTL(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Update atomically applies fn to the current value of key and
	// writes the result. fn may run more than once if the key is
	// modified concurrently; it must be side-effect free.
	Update(ctx context.Context, key string, fn UpdateFunc) error

	// Close releases underlying resources.
	Close() error
}
