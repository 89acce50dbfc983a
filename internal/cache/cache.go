// Package cache holds recently fetched snapshots so repeated reads of the same
// token within a short window do not hit the market data provider again.
package cache

import (
	"context"
	"sync"
	"time"

	"solana-phoenix-scanner/internal/observability"
)

// DefaultTTL is used when Set is called with a non-positive ttl.
const DefaultTTL = 2 * time.Minute

// Cache is a byte-oriented key/value cache with per-entry expiry.
// Misses and backend failures both report ok=false.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration)
}

// Key builds the snapshot cache key for a token.
func Key(chain, address string) string {
	return "snapshot:" + chain + ":" + address
}

type entry struct {
	val       []byte
	expiresAt time.Time
}

// Memory is an in-process Cache.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]entry), now: time.Now}
}

var _ Cache = (*Memory)(nil)

// Get returns a copy of the cached value.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		observability.RecordCacheLookup(false)
		return nil, false
	}
	if !m.now().Before(e.expiresAt) {
		m.mu.Lock()
		if cur, ok := m.entries[key]; ok && !m.now().Before(cur.expiresAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		observability.RecordCacheLookup(false)
		return nil, false
	}

	observability.RecordCacheLookup(true)
	out := make([]byte, len(e.val))
	copy(out, e.val)
	return out, true
}

// Set stores a copy of val.
func (m *Memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	stored := make([]byte, len(val))
	copy(stored, val)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry{val: stored, expiresAt: m.now().Add(ttl)}
}

// Len reports the number of entries, including expired ones not yet evicted.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
