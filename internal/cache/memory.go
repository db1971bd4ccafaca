package cache

import (
	"sync"
	"time"

	"github.com/ohartl/knowbase/internal/models"
)

// Memory is an in-memory Client. Entries live for the process lifetime
// or until their TTL elapses; expiry is lazy, enforced on read.
type Memory struct {
	mu      sync.Mutex
	entries map[string]models.CacheEntry

	// now is the clock, replaceable in tests.
	now func() time.Time
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]models.CacheEntry),
		now:     time.Now,
	}
}

// Get returns the payload for key, or a miss if the key is absent or
// past its expiry. An expired entry is deleted on the way out.
func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, false
	}

	if entry.Expired(m.now().UnixMilli()) {
		delete(m.entries, key)
		return nil, false
	}

	return entry.Payload, true
}

// Set overwrites any existing entry for key and stamps a fresh expiry.
func (m *Memory) Set(key, typeName string, payload []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UnixMilli()
	created := now
	if existing, ok := m.entries[key]; ok {
		created = existing.CreatedAt
	}

	m.entries[key] = models.CacheEntry{
		Key:       key,
		TypeName:  typeName,
		Payload:   payload,
		ExpiresAt: now + ttl.Milliseconds(),
		CreatedAt: created,
		UpdatedAt: now,
	}
	return nil
}

// Remove deletes the entry for key, if any.
func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Clear removes all entries.
func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]models.CacheEntry)
	return nil
}

// Len returns the number of live (possibly expired, not yet read)
// entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
