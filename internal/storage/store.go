// Package storage is a narrow KV + append-log contract consumed by
// collaborators that want a cache or a short-lived shared buffer without
// owning a file format of their own. Grounded on beads'
// internal/daemon/wisp_store.go and redis_wisp_store.go: same
// in-process/Redis split, same namespace+TTL construction, generalized
// from a types.Issue-shaped ephemeral store to a generic byte-slice KV
// since nothing in this domain needs wisp-specific filtering.
package storage

import "context"

// Store is a namespaced key/value cache with TTL expiry and a companion
// append-only log per key, for collaborators that want "remember this for
// a while" or "keep appending observations" without a bespoke file format.
type Store interface {
	// Get returns the value for key. found is false if the key is absent
	// or has expired.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Set stores value under key with the given TTL (ttl <= 0: MemoryStore
	// keeps the entry with no expiry, RedisStore applies its DefaultTTL).
	Set(ctx context.Context, key string, value []byte, ttl int64) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Append adds entry to the log named key, trimming to the store's
	// configured max log length.
	Append(ctx context.Context, key string, entry []byte) error

	// Log returns every entry appended under key, oldest first.
	Log(ctx context.Context, key string) ([][]byte, error)

	// Close releases any underlying connection.
	Close() error
}
