package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/orgchart/modules/org/domain/chart"
	"github.com/iota-uz/orgchart/modules/org/infrastructure/cache"
	"github.com/iota-uz/orgchart/modules/org/infrastructure/persistence"
	"github.com/iota-uz/orgchart/modules/org/infrastructure/spreadsheet"
)

// tickingClock starts at a fixed instant and advances one minute per call,
// so every write gets a distinct, ordered timestamp.
func tickingClock(start time.Time) Clock {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(time.Minute)
		return cur
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
	fail   error
}

func (n *recordingNotifier) Notify(_ context.Context, e Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return n.fail
}

func (n *recordingNotifier) topics() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Topic())
	}
	return out
}

type fixture struct {
	store     *persistence.MemoryStore
	cache     *cache.MemoryChartCache
	notifier  *recordingNotifier
	staffing  *StaffingService
	charts    *ChartService
	approvals *ApprovalService
	imports   *ImportService
	exports   *ExportService
	actor     uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := persistence.NewMemoryStore()
	clock := tickingClock(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	notifier := &recordingNotifier{}
	activeCache := cache.NewMemoryChartCache(time.Hour)

	staffingSvc := NewStaffingService(
		persistence.NewMemoryPositionRepository(store),
		persistence.NewMemoryEmployeeRepository(store),
		persistence.NewMemoryAssignmentRepository(store),
		store,
		notifier,
	)
	staffingSvc.Clock = clock

	chartSvc := NewChartService(
		persistence.NewMemoryChartRepository(store),
		persistence.NewMemorySnapshotRepository(store),
		store,
		activeCache,
		"",
	)
	chartSvc.Clock = clock

	approvalSvc := NewApprovalService(persistence.NewMemoryChangeRequestRepository(store), chartSvc, store, notifier)
	approvalSvc.Clock = clock

	importSvc := NewImportService(
		chartSvc,
		persistence.NewMemoryImportLogRepository(store),
		spreadsheet.NewReader(),
		DefaultImportPolicy(1<<20, []string{".xlsx", ".csv", ".json"}),
	)
	importSvc.Clock = clock

	exportSvc := NewExportService(chartSvc, staffingSvc)
	exportSvc.Clock = clock

	return &fixture{
		store:     store,
		cache:     activeCache,
		notifier:  notifier,
		staffing:  staffingSvc,
		charts:    chartSvc,
		approvals: approvalSvc,
		imports:   importSvc,
		exports:   exportSvc,
		actor:     uuid.New(),
	}
}

func strPtr(s string) *string { return &s }

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func dayPtr(s string) *time.Time {
	t := day(s)
	return &t
}

func financeData() chart.Data {
	return chart.Data{
		Positions: []chart.PositionNode{
			{ID: "CEO", Title: "Director General", Department: "Finance", Level: 1, CurrentEmployee: strPtr("Ana Ruiz")},
			{ID: "CFO", Title: "Director Financiero", Department: "Finance", Level: 2, ReportsTo: strPtr("CEO")},
		},
		Connections: []chart.Connection{{From: "CEO", To: "CFO"}},
	}
}

// activeChart creates and activates a chart for department.
func (f *fixture) activeChart(t *testing.T, name, department string) *chart.Chart {
	t.Helper()
	ctx := context.Background()
	c, err := f.charts.CreateChart(ctx, CreateChartInput{
		Name:       name,
		Department: department,
		Data:       financeData(),
		Actor:      f.actor,
	})
	require.NoError(t, err)
	c, err = f.charts.ActivateChart(ctx, c.ID)
	require.NoError(t, err)
	return c
}

// requireCode asserts err is a ServiceError carrying code and wrapping target
// when target is not nil.
func requireCode(t *testing.T, err error, code string, target error) {
	t.Helper()
	require.Error(t, err)
	var se *ServiceError
	require.True(t, errors.As(err, &se), "expected *ServiceError, got %T: %v", err, err)
	require.Equal(t, code, se.Code, se.Error())
	if target != nil {
		require.ErrorIs(t, err, target)
	}
}
