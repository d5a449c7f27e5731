// Package cache provides the TTL key/value store used to memoize trust and
// path computations. Absence of a cache changes latency, never correctness.
package cache

import (
	"strings"
	"sync"
	"time"
)

// Cache is a TTL key/value store.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
	// InvalidatePrefix drops every entry whose key starts with prefix.
	InvalidatePrefix(prefix string)
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is an in-process Cache with expiry checked on read and a
// best-effort purge on write.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]entry), now: time.Now}
}

func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || m.now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

func (m *Memory) Set(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	m.mu.Lock()
	m.entries[key] = entry{value: value, expiresAt: m.now().Add(ttl)}
	// Opportunistic purge keeps the map from growing unbounded.
	if len(m.entries)%256 == 0 {
		now := m.now()
		for k, e := range m.entries {
			if now.After(e.expiresAt) {
				delete(m.entries, k)
			}
		}
	}
	m.mu.Unlock()
}

func (m *Memory) InvalidatePrefix(prefix string) {
	m.mu.Lock()
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			delete(m.entries, k)
		}
	}
	m.mu.Unlock()
}

// Len returns the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Nop is a Cache that stores nothing. It stands in when caching is
// disabled and proves the engines do not depend on cache state.
type Nop struct{}

func (Nop) Get(string) ([]byte, bool)             { return nil, false }
func (Nop) Set(string, []byte, time.Duration)     {}
func (Nop) InvalidatePrefix(string)               {}
