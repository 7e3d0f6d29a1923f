// Package cache holds the active-chart caches used by the chart services.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/iota-uz/orgchart/modules/org/domain/chart"
)

type entry struct {
	c         *chart.Chart
	expiresAt time.Time
}

// MemoryChartCache keeps active charts in process. A zero TTL disables
// expiry.
type MemoryChartCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]entry
}

func NewMemoryChartCache(ttl time.Duration) *MemoryChartCache {
	return &MemoryChartCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry),
	}
}

func (m *MemoryChartCache) Get(_ context.Context, department string) (*chart.Chart, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[department]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		m.mu.Lock()
		if cur, still := m.entries[department]; still && cur.expiresAt.Equal(e.expiresAt) {
			delete(m.entries, department)
		}
		m.mu.Unlock()
		return nil, false, nil
	}
	return clone(e.c), true, nil
}

func (m *MemoryChartCache) Set(_ context.Context, c *chart.Chart) error {
	e := entry{c: clone(c)}
	if m.ttl > 0 {
		e.expiresAt = m.now().Add(m.ttl)
	}
	m.mu.Lock()
	m.entries[c.Department] = e
	m.mu.Unlock()
	return nil
}

func (m *MemoryChartCache) Invalidate(_ context.Context, departments ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range departments {
		delete(m.entries, d)
	}
	return nil
}

func (m *MemoryChartCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func clone(c *chart.Chart) *chart.Chart {
	out := *c
	out.Data = c.Data.Clone()
	if c.ParentID != nil {
		id := *c.ParentID
		out.ParentID = &id
	}
	if c.ApprovedBy != nil {
		id := *c.ApprovedBy
		out.ApprovedBy = &id
	}
	if c.ApprovedAt != nil {
		at := *c.ApprovedAt
		out.ApprovedAt = &at
	}
	if c.Provenance != nil {
		p := *c.Provenance
		out.Provenance = &p
	}
	return &out
}
