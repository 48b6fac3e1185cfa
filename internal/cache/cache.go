// Package cache provides dependency plan caches: an in-process memory tier
// for single-node runs and a Redis tier for sharing plans across workers.
// Plans are pure derivations of the market data function configuration, so
// both tiers must be flushed when that configuration changes.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/quantfabric/calcgrid/internal/marketdata"
)

// Stats reports cache performance counters.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
	Errors int64 `json:"errors"`
}

// HitRate returns the fraction of lookups served from cache.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type memoryEntry struct {
	plan      *marketdata.Plan
	expiresAt time.Time
}

// Memory is an in-process plan cache with optional TTL expiry.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	stats   Stats
}

var _ marketdata.PlanCache = (*Memory)(nil)

// NewMemory creates a memory plan cache. A zero ttl disables expiry.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{entries: make(map[string]memoryEntry), ttl: ttl}
}

// Get implements marketdata.PlanCache.
func (m *Memory) Get(_ context.Context, key string) (*marketdata.Plan, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if ok && !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		delete(m.entries, key)
		ok = false
	}
	if !ok {
		m.stats.Misses++
		return nil, false
	}
	m.stats.Hits++
	return e.plan, true
}

// Put implements marketdata.PlanCache.
func (m *Memory) Put(_ context.Context, key string, plan *marketdata.Plan) error {
	var expires time.Time
	if m.ttl > 0 {
		expires = time.Now().Add(m.ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{plan: plan, expiresAt: expires}
	m.stats.Sets++
	return nil
}

// Flush drops every cached plan. Call after changing the market data
// function configuration.
func (m *Memory) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]memoryEntry)
}

// Size returns the number of cached plans.
func (m *Memory) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Stats returns a copy of the performance counters.
func (m *Memory) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}
