// Package cache memoizes expensive recomputation keyed by a hash of the
// inputs that produced it. A Memo is owned by its caller; there is no
// process-wide instance.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
)

// Memo stores computed values by key. Failed computations are not stored.
type Memo[V any] struct {
	mu      sync.Mutex
	entries map[string]V
	limit   int
	order   []string
}

// New returns a Memo that keeps at most limit entries, evicting the oldest.
// A limit of 0 means unbounded.
func New[V any](limit int) *Memo[V] {
	return &Memo[V]{entries: map[string]V{}, limit: limit}
}

// Get returns the cached value for key or computes and stores it. Concurrent
// callers with the same key may compute twice; the last result wins.
func (m *Memo[V]) Get(key string, compute func() (V, error)) (V, error) {
	m.mu.Lock()
	if value, ok := m.entries[key]; ok {
		m.mu.Unlock()
		return value, nil
	}
	m.mu.Unlock()

	value, err := compute()
	if err != nil {
		var zero V
		return zero, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[key]; !exists {
		m.order = append(m.order, key)
	}
	m.entries[key] = value
	if m.limit > 0 && len(m.order) > m.limit {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.entries, oldest)
	}
	return value, nil
}

// Len reports the number of cached entries.
func (m *Memo[V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Reset drops every entry.
func (m *Memo[V]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = map[string]V{}
	m.order = nil
}

// Key hashes the printed form of parts into a stable cache key.
func Key(parts ...any) string {
	h := sha256.New()
	for _, part := range parts {
		fmt.Fprintf(h, "%v\x00", part)
	}
	return hex.EncodeToString(h.Sum(nil))
}
