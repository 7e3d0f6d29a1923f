package persistence

import (
	"context"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/iota-uz/orgchart/modules/org/domain/changerequest"
	"github.com/iota-uz/orgchart/modules/org/domain/chart"
	"github.com/iota-uz/orgchart/modules/org/domain/interchange"
	"github.com/iota-uz/orgchart/modules/org/domain/staffing"
)

type SafeMap[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

func NewSafeMap[K comparable, V any]() *SafeMap[K, V] {
	return &SafeMap[K, V]{
		m: make(map[K]V),
	}
}

func (s *SafeMap[K, V]) Set(key K, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
}

func (s *SafeMap[K, V]) Get(key K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, found := s.m[key]
	return val, found
}

func (s *SafeMap[K, V]) Delete(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
}

func (s *SafeMap[K, V]) Values() []V {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Collect(maps.Values(s.m))
}

func (s *SafeMap[K, V]) snapshot() map[K]V {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.m)
}

func (s *SafeMap[K, V]) restore(m map[K]V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m = m
}

// stored pairs a value with its insertion sequence so listings are stable
// when timestamps tie.
type stored[T any] struct {
	seq int64
	v   T
}

// MemoryStore keeps every org table in process. Transactions are
// serialized store-wide and rolled back by restoring the tables as they were
// when the transaction began; reads outside a transaction may observe
// uncommitted writes. Values are copied on the way in and out, so callers
// never share memory with the store.
type MemoryStore struct {
	txMu sync.Mutex
	seq  atomic.Int64

	positions   *SafeMap[string, stored[staffing.Position]]
	employees   *SafeMap[uuid.UUID, stored[staffing.Employee]]
	assignments *SafeMap[uuid.UUID, stored[staffing.Assignment]]
	charts      *SafeMap[uuid.UUID, stored[chart.Chart]]
	snapshots   *SafeMap[uuid.UUID, stored[chart.Snapshot]]
	requests    *SafeMap[uuid.UUID, stored[changerequest.ChangeRequest]]
	importLogs  *SafeMap[uuid.UUID, stored[interchange.ImportLog]]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		positions:   NewSafeMap[string, stored[staffing.Position]](),
		employees:   NewSafeMap[uuid.UUID, stored[staffing.Employee]](),
		assignments: NewSafeMap[uuid.UUID, stored[staffing.Assignment]](),
		charts:      NewSafeMap[uuid.UUID, stored[chart.Chart]](),
		snapshots:   NewSafeMap[uuid.UUID, stored[chart.Snapshot]](),
		requests:    NewSafeMap[uuid.UUID, stored[changerequest.ChangeRequest]](),
		importLogs:  NewSafeMap[uuid.UUID, stored[interchange.ImportLog]](),
	}
}

func (s *MemoryStore) next() int64 { return s.seq.Add(1) }

type memTxKey struct{}

// InTx runs fn with the store locked. Nested calls join the outer
// transaction. Any error restores every table.
func (s *MemoryStore) InTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if owner, _ := ctx.Value(memTxKey{}).(*MemoryStore); owner == s {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	positions := s.positions.snapshot()
	employees := s.employees.snapshot()
	assignments := s.assignments.snapshot()
	charts := s.charts.snapshot()
	snapshots := s.snapshots.snapshot()
	requests := s.requests.snapshot()
	importLogs := s.importLogs.snapshot()

	if err := fn(context.WithValue(ctx, memTxKey{}, s)); err != nil {
		s.positions.restore(positions)
		s.employees.restore(employees)
		s.assignments.restore(assignments)
		s.charts.restore(charts)
		s.snapshots.restore(snapshots)
		s.requests.restore(requests)
		s.importLogs.restore(importLogs)
		return err
	}
	return nil
}

func sortedValues[K comparable, T any](m *SafeMap[K, stored[T]], keep func(T) bool) []stored[T] {
	all := m.Values()
	out := make([]stored[T], 0, len(all))
	for _, v := range all {
		if keep == nil || keep(v.v) {
			out = append(out, v)
		}
	}
	slices.SortFunc(out, func(a, b stored[T]) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		default:
			return 0
		}
	})
	return out
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyPosition(p staffing.Position) *staffing.Position {
	p.ReportsTo = copyPtr(p.ReportsTo)
	p.KPIs = slices.Clone(p.KPIs)
	p.RequiredProcesses = slices.Clone(p.RequiredProcesses)
	p.Canvas = copyPtr(p.Canvas)
	return &p
}

func copyAssignment(a staffing.Assignment) *staffing.Assignment {
	a.EndDate = copyPtr(a.EndDate)
	return &a
}

func copyChart(c chart.Chart) *chart.Chart {
	c.Data = c.Data.Clone()
	c.ParentID = copyPtr(c.ParentID)
	c.ApprovedBy = copyPtr(c.ApprovedBy)
	c.ApprovedAt = copyPtr(c.ApprovedAt)
	if c.Provenance != nil {
		p := *c.Provenance
		p.ImportLogID = copyPtr(p.ImportLogID)
		c.Provenance = &p
	}
	return &c
}

func copySnapshot(s chart.Snapshot) *chart.Snapshot {
	s.Data = s.Data.Clone()
	s.Patch = slices.Clone(s.Patch)
	return &s
}

func copyRequest(cr changerequest.ChangeRequest) *changerequest.ChangeRequest {
	cr.ApproverID = copyPtr(cr.ApproverID)
	cr.ResolvedAt = copyPtr(cr.ResolvedAt)
	return &cr
}

func copyImportLog(l interchange.ImportLog) *interchange.ImportLog {
	l.ChartID = copyPtr(l.ChartID)
	l.Errors = slices.Clone(l.Errors)
	return &l
}
