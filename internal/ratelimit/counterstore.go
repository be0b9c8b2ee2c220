// Package ratelimit provides shared counters for webhook burst limiting and
// invalid-signature lockout. The CounterStore interface has an in-process
// implementation for single-instance deployments and a Redis implementation
// for multi-instance ones; configuration picks the backend, never globals.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// CounterStore is a set of expiring shared counters. Implementations must
// make Incr and IncrWithLimit atomic: a get-check-set sequence would race
// under concurrent requests.
type CounterStore interface {
	// Incr adds one to the counter at key, creating it with ttl, and
	// returns the new value.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// IncrWithLimit adds one only when the result would stay within limit.
	// Returns whether the increment was allowed and the current value.
	IncrWithLimit(ctx context.Context, key string, limit int64, ttl time.Duration) (bool, int64, error)

	// Get returns the current value, zero when absent or expired.
	Get(ctx context.Context, key string) (int64, error)
}

// MemoryStore is the in-process CounterStore. Counters expire lazily.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*memCounter
}

type memCounter struct {
	value     int64
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-process counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[string]*memCounter)}
}

// live returns the counter at key, dropping it from the map when expired so
// minute buckets and per-IP lockout keys don't accumulate across days of
// uptime. Callers must hold mu.
func (m *MemoryStore) live(key string, now time.Time) *memCounter {
	c, ok := m.counters[key]
	if !ok {
		return nil
	}
	if now.After(c.expiresAt) {
		delete(m.counters, key)
		return nil
	}
	return c
}

func (m *MemoryStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	c := m.live(key, now)
	if c == nil {
		c = &memCounter{expiresAt: now.Add(ttl)}
		m.counters[key] = c
	}
	c.value++
	return c.value, nil
}

func (m *MemoryStore) IncrWithLimit(_ context.Context, key string, limit int64, ttl time.Duration) (bool, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	c := m.live(key, now)
	if c == nil {
		c = &memCounter{expiresAt: now.Add(ttl)}
		m.counters[key] = c
	}
	if c.value+1 > limit {
		return false, c.value, nil
	}
	c.value++
	return true, c.value, nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.live(key, time.Now())
	if c == nil {
		return 0, nil
	}
	return c.value, nil
}
