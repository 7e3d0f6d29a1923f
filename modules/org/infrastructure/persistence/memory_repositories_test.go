package persistence_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/orgchart/modules/org/domain/changerequest"
	"github.com/iota-uz/orgchart/modules/org/domain/chart"
	"github.com/iota-uz/orgchart/modules/org/domain/staffing"
	"github.com/iota-uz/orgchart/modules/org/infrastructure/persistence"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr[T any](v T) *T { return &v }

func seedStaffing(t *testing.T, s *persistence.MemoryStore) (staffing.AssignmentRepository, uuid.UUID, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	positions := persistence.NewMemoryPositionRepository(s)
	employees := persistence.NewMemoryEmployeeRepository(s)

	require.NoError(t, positions.Create(ctx, &staffing.Position{ID: "DIR001", Title: "Director", Department: "Ops", Level: 1}))
	require.NoError(t, positions.Create(ctx, &staffing.Position{ID: "GER001", Title: "Gerente", Department: "Ops", Level: 2, ReportsTo: ptr("DIR001")}))
	a := &staffing.Employee{ID: uuid.New(), EmployeeNumber: "E-1", FirstName: "Ana", IsActive: true}
	b := &staffing.Employee{ID: uuid.New(), EmployeeNumber: "E-2", FirstName: "Luis", IsActive: true}
	require.NoError(t, employees.Create(ctx, a))
	require.NoError(t, employees.Create(ctx, b))
	return persistence.NewMemoryAssignmentRepository(s), a.ID, b.ID
}

func TestMemoryPositionRepository_Constraints(t *testing.T) {
	s := persistence.NewMemoryStore()
	ctx := context.Background()
	repo := persistence.NewMemoryPositionRepository(s)

	require.NoError(t, repo.Create(ctx, &staffing.Position{ID: "DIR001", Department: "Ops"}))
	err := repo.Create(ctx, &staffing.Position{ID: "DIR001", Department: "Ops"})
	require.ErrorIs(t, err, staffing.ErrPositionExists)

	err = repo.Create(ctx, &staffing.Position{ID: "X", ReportsTo: ptr("MISSING")})
	require.ErrorIs(t, err, staffing.ErrPositionNotFound)

	_, err = repo.Get(ctx, "nope")
	require.ErrorIs(t, err, staffing.ErrPositionNotFound)

	got, err := repo.Get(ctx, "DIR001")
	require.NoError(t, err)
	got.Title = "changed"
	again, err := repo.Get(ctx, "DIR001")
	require.NoError(t, err)
	require.Empty(t, again.Title)
}

func TestMemoryEmployeeRepository_UniqueNumber(t *testing.T) {
	s := persistence.NewMemoryStore()
	ctx := context.Background()
	repo := persistence.NewMemoryEmployeeRepository(s)

	require.NoError(t, repo.Create(ctx, &staffing.Employee{ID: uuid.New(), EmployeeNumber: "E-1", IsActive: true}))
	err := repo.Create(ctx, &staffing.Employee{ID: uuid.New(), EmployeeNumber: "E-1"})
	require.ErrorIs(t, err, staffing.ErrEmployeeNumberTaken)

	list, err := repo.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NoError(t, repo.SetActive(ctx, list[0].ID, false))
	list, err = repo.List(ctx, true)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestMemoryAssignmentRepository_Overlap(t *testing.T) {
	s := persistence.NewMemoryStore()
	ctx := context.Background()
	repo, ana, luis := seedStaffing(t, s)

	first, err := staffing.NewAssignment("DIR001", ana, day("2024-01-01"), nil, staffing.KindPermanent, "")
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, first))

	second, err := staffing.NewAssignment("DIR001", luis, day("2024-06-01"), nil, staffing.KindPermanent, "")
	require.NoError(t, err)
	require.ErrorIs(t, repo.Create(ctx, second), staffing.ErrPositionAlreadyOccupied)

	third, err := staffing.NewAssignment("GER001", ana, day("2024-03-01"), nil, staffing.KindPermanent, "")
	require.NoError(t, err)
	require.ErrorIs(t, repo.Create(ctx, third), staffing.ErrEmployeeAlreadyPlaced)

	dup, err := staffing.NewAssignment("DIR001", ana, day("2024-01-01"), ptr(day("2024-01-31")), staffing.KindPermanent, "")
	require.NoError(t, err)
	require.ErrorIs(t, repo.Create(ctx, dup), staffing.ErrDuplicateAssignment)

	require.NoError(t, repo.End(ctx, first.ID, day("2024-05-31"), "moved"))
	require.NoError(t, repo.Create(ctx, second))

	covering, err := repo.ListCovering(ctx, day("2024-05-31"))
	require.NoError(t, err)
	require.Len(t, covering, 1)
	require.Equal(t, first.ID, covering[0].ID)

	ending, err := repo.ListEndingBetween(ctx, day("2024-05-01"), day("2024-06-30"))
	require.NoError(t, err)
	require.Len(t, ending, 1)

	history, err := repo.ListByPosition(ctx, "DIR001")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, first.ID, history[0].ID)
}

func TestMemoryPositionRepository_DeleteRestricted(t *testing.T) {
	s := persistence.NewMemoryStore()
	ctx := context.Background()
	repo, ana, _ := seedStaffing(t, s)
	positions := persistence.NewMemoryPositionRepository(s)

	require.ErrorIs(t, positions.Delete(ctx, "DIR001"), staffing.ErrPositionHasChildren)

	a, err := staffing.NewAssignment("GER001", ana, day("2021-01-01"), ptr(day("2021-12-31")), staffing.KindPermanent, "")
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, a))
	require.ErrorIs(t, positions.Delete(ctx, "GER001"), staffing.ErrPositionHasHistory)

	_, err = positions.Get(ctx, "GER001")
	require.NoError(t, err)
}

func TestMemoryAssignmentRepository_EndBeforeStart(t *testing.T) {
	s := persistence.NewMemoryStore()
	ctx := context.Background()
	repo, ana, _ := seedStaffing(t, s)

	a, err := staffing.NewAssignment("DIR001", ana, day("2024-01-10"), nil, "", "")
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, a))
	require.ErrorIs(t, repo.End(ctx, a.ID, day("2024-01-09"), ""), staffing.ErrEndBeforeStart)
}

func newChart(t *testing.T, dept string) *chart.Chart {
	t.Helper()
	c, err := chart.New("Chart "+dept, dept, "", chart.Data{}, uuid.New(), time.Now().UTC())
	require.NoError(t, err)
	return c
}

func TestMemoryChartRepository_SingleActivePerDepartment(t *testing.T) {
	s := persistence.NewMemoryStore()
	ctx := context.Background()
	repo := persistence.NewMemoryChartRepository(s)

	first := newChart(t, "Ops")
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, first.Activate(time.Now()))
	require.NoError(t, repo.Update(ctx, first))

	second := newChart(t, "Ops")
	require.NoError(t, repo.Create(ctx, second))
	require.NoError(t, second.Activate(time.Now()))
	require.ErrorIs(t, repo.Update(ctx, second), chart.ErrActiveChartExists)

	other := newChart(t, "Finance")
	require.NoError(t, repo.Create(ctx, other))
	require.NoError(t, other.Activate(time.Now()))
	require.NoError(t, repo.Update(ctx, other))

	active, err := repo.GetActive(ctx, "Ops")
	require.NoError(t, err)
	require.Equal(t, first.ID, active.ID)

	none, err := repo.GetActive(ctx, "HR")
	require.NoError(t, err)
	require.Nil(t, none)

	list, err := repo.List(ctx, chart.FindParams{Status: chart.StatusActive})
	require.NoError(t, err)
	require.Len(t, list, 2)
}

func TestMemoryChangeRequestRepository_OnePendingPerChart(t *testing.T) {
	s := persistence.NewMemoryStore()
	ctx := context.Background()
	charts := persistence.NewMemoryChartRepository(s)
	repo := persistence.NewMemoryChangeRequestRepository(s)

	c := newChart(t, "Ops")
	require.NoError(t, charts.Create(ctx, c))

	first := changerequest.New(c.ID, uuid.New(), "please", time.Now())
	require.NoError(t, repo.Create(ctx, first))
	err := repo.Create(ctx, changerequest.New(c.ID, uuid.New(), "again", time.Now()))
	require.ErrorIs(t, err, changerequest.ErrAlreadyPending)

	pending, err := repo.GetPendingByChart(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, first.ID, pending.ID)

	require.NoError(t, first.Cancel(uuid.New(), "", time.Now()))
	require.NoError(t, repo.Update(ctx, first))
	pending, err = repo.GetPendingByChart(ctx, c.ID)
	require.NoError(t, err)
	require.Nil(t, pending)

	second := changerequest.New(c.ID, uuid.New(), "again", time.Now())
	require.NoError(t, repo.Create(ctx, second))

	all, err := repo.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, second.ID, all[0].ID)
}

func TestMemoryStore_InTxRollsBack(t *testing.T) {
	s := persistence.NewMemoryStore()
	ctx := context.Background()
	repo := persistence.NewMemoryPositionRepository(s)
	boom := errors.New("boom")

	err := s.InTx(ctx, func(txCtx context.Context) error {
		require.NoError(t, repo.Create(txCtx, &staffing.Position{ID: "DIR001"}))
		return s.InTx(txCtx, func(inner context.Context) error {
			require.NoError(t, repo.Create(inner, &staffing.Position{ID: "GER001"}))
			return boom
		})
	})
	require.ErrorIs(t, err, boom)

	list, err := repo.List(ctx, "")
	require.NoError(t, err)
	require.Empty(t, list)

	require.NoError(t, s.InTx(ctx, func(txCtx context.Context) error {
		return repo.Create(txCtx, &staffing.Position{ID: "DIR001"})
	}))
	_, err = repo.Get(ctx, "DIR001")
	require.NoError(t, err)
}
