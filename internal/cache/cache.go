// Package cache provides the TTL key/value cache used by every feature
// store. Two interchangeable implementations exist: an in-memory map
// for process-lifetime caching and a SQLite-backed one that survives
// restarts. Callers are agnostic to which is injected.
package cache

import (
	"encoding/json"
	"fmt"
	"time"
)

// Client is the cache contract. A Get miss covers absent keys, expired
// entries (deleted on read), and undecodable payloads.
type Client interface {
	Get(key string) ([]byte, bool)
	Set(key, typeName string, payload []byte, ttl time.Duration) error
	Remove(key string) error
	Clear() error
}

// Get reads and decodes a typed value. A payload that fails to decode
// is treated as a miss and the bad entry is deleted, so a schema change
// never surfaces as an error.
func Get[T any](c Client, key string) (T, bool) {
	var zero T

	payload, ok := c.Get(key)
	if !ok {
		return zero, false
	}

	var value T
	if err := json.Unmarshal(payload, &value); err != nil {
		_ = c.Remove(key)
		return zero, false
	}

	return value, true
}

// Set serializes and stores a typed value with the given TTL,
// overwriting any existing entry for the key.
func Set[T any](c Client, key string, value T, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to serialize cache value for %s: %w", key, err)
	}
	return c.Set(key, fmt.Sprintf("%T", value), payload, ttl)
}
