package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/orgchart/modules/org/domain/events"
	"github.com/iota-uz/orgchart/modules/org/domain/hierarchy"
	"github.com/iota-uz/orgchart/modules/org/domain/staffing"
)

func (f *fixture) position(t *testing.T, id, parent string) *staffing.Position {
	t.Helper()
	in := CreatePositionInput{ID: id, Title: "Puesto " + id, Department: "Finance"}
	if parent != "" {
		in.ReportsTo = strPtr(parent)
	}
	p, err := f.staffing.CreatePosition(context.Background(), in)
	require.NoError(t, err)
	return p
}

func (f *fixture) employee(t *testing.T, number, first, last string) *staffing.Employee {
	t.Helper()
	e, err := f.staffing.CreateEmployee(context.Background(), CreateEmployeeInput{
		EmployeeNumber: number,
		FirstName:      first,
		LastName:       last,
		HireDate:       day("2020-01-15"),
	})
	require.NoError(t, err)
	return e
}

func TestStaffingService_CreatePosition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ceo := f.position(t, "CEO", "")
	require.Equal(t, 1, ceo.Level)
	cfo := f.position(t, "CFO", "CEO")
	require.Equal(t, 2, cfo.Level)

	_, err := f.staffing.CreatePosition(ctx, CreatePositionInput{ID: "CEO", Title: "Again", Department: "Finance"})
	requireCode(t, err, CodePositionConflict, staffing.ErrPositionExists)

	_, err = f.staffing.CreatePosition(ctx, CreatePositionInput{ID: "X", Title: "Orphan", Department: "Finance", ReportsTo: strPtr("MISSING")})
	requireCode(t, err, CodeParentNotFound, hierarchy.ErrParentNotFound)

	_, err = f.staffing.CreatePosition(ctx, CreatePositionInput{ID: "SELF", Title: "Self", Department: "Finance", ReportsTo: strPtr("SELF")})
	requireCode(t, err, CodeCycleDetected, hierarchy.ErrCycleDetected)

	_, err = f.staffing.CreatePosition(ctx, CreatePositionInput{ID: "", Title: "No id", Department: "Finance"})
	requireCode(t, err, CodeInvalidBody, nil)
}

func TestStaffingService_HierarchyQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.position(t, "CEO", "")
	f.position(t, "CFO", "CEO")
	f.position(t, "CTO", "CEO")
	f.position(t, "ACC", "CFO")

	children, err := f.staffing.Children(ctx, "CEO")
	require.NoError(t, err)
	ids := make([]string, 0, len(children))
	for _, c := range children {
		ids = append(ids, c.ID)
	}
	require.ElementsMatch(t, []string{"CFO", "CTO"}, ids)

	ancestors, err := f.staffing.Ancestors(ctx, "ACC")
	require.NoError(t, err)
	require.Len(t, ancestors, 2)
	require.Equal(t, "CFO", ancestors[0].ID)
	require.Equal(t, "CEO", ancestors[1].ID)

	_, err = f.staffing.Ancestors(ctx, "NOPE")
	requireCode(t, err, CodeNotFound, staffing.ErrPositionNotFound)
}

func TestStaffingService_UpdateReportsTo_RejectsCycles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.position(t, "CEO", "")
	f.position(t, "CFO", "CEO")
	f.position(t, "ACC", "CFO")

	_, err := f.staffing.UpdateReportsTo(ctx, "CEO", strPtr("ACC"))
	requireCode(t, err, CodeCycleDetected, hierarchy.ErrCycleDetected)

	_, err = f.staffing.UpdateReportsTo(ctx, "ACC", strPtr("GHOST"))
	requireCode(t, err, CodeParentNotFound, hierarchy.ErrParentNotFound)

	moved, err := f.staffing.UpdateReportsTo(ctx, "ACC", strPtr("CEO"))
	require.NoError(t, err)
	require.Equal(t, "CEO", *moved.ReportsTo)

	root, err := f.staffing.UpdateReportsTo(ctx, "CFO", nil)
	require.NoError(t, err)
	require.Nil(t, root.ReportsTo)

	ancestors, err := f.staffing.Ancestors(ctx, "CEO")
	require.NoError(t, err)
	require.Empty(t, ancestors)
}

func TestStaffingService_CurrentOccupantAndVacancy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.position(t, "CEO", "")
	f.position(t, "CFO", "CEO")
	e1 := f.employee(t, "E1", "Ana", "Ruiz")

	_, err := f.staffing.CreateAssignment(ctx, CreateAssignmentInput{PositionID: "CEO", EmployeeID: e1.ID, StartDate: day("2024-01-01")})
	require.NoError(t, err)

	vacant, err := f.staffing.IsVacant(ctx, "CFO", day("2024-06-01"))
	require.NoError(t, err)
	require.True(t, vacant)

	occ, err := f.staffing.CurrentOccupant(ctx, "CEO", day("2024-06-01"))
	require.NoError(t, err)
	require.NotNil(t, occ)
	require.Equal(t, e1.ID, occ.Employee.ID)

	before, err := f.staffing.CurrentOccupant(ctx, "CEO", day("2023-12-31"))
	require.NoError(t, err)
	require.Nil(t, before)

	_, err = f.staffing.CurrentOccupant(ctx, "NOPE", day("2024-06-01"))
	requireCode(t, err, CodeNotFound, staffing.ErrPositionNotFound)

	names, err := f.staffing.OccupantNames(ctx, day("2024-06-01"))
	require.NoError(t, err)
	require.Equal(t, map[string]string{"CEO": e1.FullName()}, names)
}

func TestStaffingService_CreateAssignment_Exclusivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.position(t, "CEO", "")
	f.position(t, "CFO", "CEO")
	e1 := f.employee(t, "E1", "Ana", "Ruiz")
	e2 := f.employee(t, "E2", "Luis", "Soto")

	first, err := f.staffing.CreateAssignment(ctx, CreateAssignmentInput{PositionID: "CEO", EmployeeID: e1.ID, StartDate: day("2024-01-01")})
	require.NoError(t, err)
	require.Equal(t, staffing.KindPermanent, first.Kind)

	_, err = f.staffing.CreateAssignment(ctx, CreateAssignmentInput{PositionID: "CFO", EmployeeID: e1.ID, StartDate: day("2024-02-01")})
	requireCode(t, err, CodeEmployeePlaced, staffing.ErrEmployeeAlreadyPlaced)

	_, err = f.staffing.CreateAssignment(ctx, CreateAssignmentInput{PositionID: "CEO", EmployeeID: e2.ID, StartDate: day("2024-03-01")})
	requireCode(t, err, CodePositionOccupied, staffing.ErrPositionAlreadyOccupied)

	history, err := f.staffing.EmployeeHistory(ctx, e1.ID)
	require.NoError(t, err)
	require.Len(t, history, 1, "rejected assignments must not be written")

	// an earlier closed interval does not overlap the open one
	prior, err := f.staffing.CreateAssignment(ctx, CreateAssignmentInput{
		PositionID: "CEO",
		EmployeeID: e2.ID,
		StartDate:  day("2023-01-01"),
		EndDate:    dayPtr("2023-12-31"),
		Kind:       "interim",
	})
	require.NoError(t, err)
	require.Equal(t, staffing.KindInterim, prior.Kind)

	byPosition, err := f.staffing.OccupancyHistory(ctx, "CEO")
	require.NoError(t, err)
	require.Len(t, byPosition, 2)
	require.Equal(t, prior.ID, byPosition[0].ID)
	require.Equal(t, first.ID, byPosition[1].ID)

	_, err = f.staffing.CreateAssignment(ctx, CreateAssignmentInput{PositionID: "CFO", EmployeeID: e2.ID, StartDate: day("2024-05-01"), EndDate: dayPtr("2024-04-01")})
	requireCode(t, err, CodeInvalidDateRange, staffing.ErrInvalidDateRange)

	_, err = f.staffing.CreateAssignment(ctx, CreateAssignmentInput{PositionID: "CFO", EmployeeID: e2.ID, StartDate: day("2024-05-01"), Kind: "forever"})
	requireCode(t, err, CodeInvalidBody, nil)

	_, err = f.staffing.CreateAssignment(ctx, CreateAssignmentInput{PositionID: "GHOST", EmployeeID: e2.ID, StartDate: day("2024-05-01")})
	requireCode(t, err, CodeNotFound, staffing.ErrPositionNotFound)
}

func TestStaffingService_CreateAssignment_InactiveEmployee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.position(t, "CEO", "")
	e := f.employee(t, "E9", "Eva", "Mora")
	require.NoError(t, f.staffing.DeactivateEmployee(ctx, e.ID))

	_, err := f.staffing.CreateAssignment(ctx, CreateAssignmentInput{PositionID: "CEO", EmployeeID: e.ID, StartDate: day("2024-01-01")})
	requireCode(t, err, CodeInvalidBody, nil)

	active, err := f.staffing.ListEmployees(ctx, true)
	require.NoError(t, err)
	require.Empty(t, active)

	all, err := f.staffing.ListEmployees(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestStaffingService_CreateEmployee_UniqueNumber(t *testing.T) {
	f := newFixture(t)
	f.employee(t, "E1", "Ana", "Ruiz")

	_, err := f.staffing.CreateEmployee(context.Background(), CreateEmployeeInput{
		EmployeeNumber: " E1 ",
		FirstName:      "Otra",
		LastName:       "Ana",
		HireDate:       day("2021-01-01"),
	})
	requireCode(t, err, CodeEmployeeNumber, staffing.ErrEmployeeNumberTaken)

	_, err = f.staffing.CreateEmployee(context.Background(), CreateEmployeeInput{EmployeeNumber: "E2", FirstName: "Sin"})
	requireCode(t, err, CodeInvalidBody, nil)
}

func TestStaffingService_EndAssignment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.position(t, "CEO", "")
	e := f.employee(t, "E1", "Ana", "Ruiz")
	a, err := f.staffing.CreateAssignment(ctx, CreateAssignmentInput{PositionID: "CEO", EmployeeID: e.ID, StartDate: day("2024-01-01"), Notes: "inicio"})
	require.NoError(t, err)

	_, err = f.staffing.EndAssignment(ctx, a.ID, day("2023-12-01"), "")
	requireCode(t, err, CodeEndBeforeStart, staffing.ErrEndBeforeStart)
	require.Empty(t, f.notifier.topics())

	ended, err := f.staffing.EndAssignment(ctx, a.ID, day("2024-06-30"), "renuncia")
	require.NoError(t, err)
	require.Equal(t, day("2024-06-30"), *ended.EndDate)
	require.Equal(t, "inicio\nrenuncia", ended.Notes)

	_, err = f.staffing.EndAssignment(ctx, a.ID, day("2024-07-30"), "")
	requireCode(t, err, CodeAssignmentEnded, staffing.ErrAlreadyEnded)

	_, err = f.staffing.EndAssignment(ctx, a.ID, time.Time{}, "")
	requireCode(t, err, CodeInvalidBody, nil)

	require.Equal(t, []string{events.TopicAssignmentEndedV1}, f.notifier.topics())
	evt, ok := f.notifier.events[0].(*events.AssignmentEndedV1)
	require.True(t, ok)
	require.Equal(t, a.ID, evt.AssignmentID)
	require.Equal(t, "CEO", evt.PositionID)

	vacant, err := f.staffing.IsVacant(ctx, "CEO", day("2024-07-01"))
	require.NoError(t, err)
	require.True(t, vacant)

	// the position is free again after the end date
	e2 := f.employee(t, "E2", "Luis", "Soto")
	_, err = f.staffing.CreateAssignment(ctx, CreateAssignmentInput{PositionID: "CEO", EmployeeID: e2.ID, StartDate: day("2024-07-01")})
	require.NoError(t, err)
}

func TestStaffingService_ExpiringAssignments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.position(t, "CEO", "")
	f.position(t, "CFO", "CEO")
	f.position(t, "CTO", "CEO")
	e1 := f.employee(t, "E1", "Ana", "Ruiz")
	e2 := f.employee(t, "E2", "Luis", "Soto")
	e3 := f.employee(t, "E3", "Eva", "Mora")

	soon, err := f.staffing.CreateAssignment(ctx, CreateAssignmentInput{PositionID: "CFO", EmployeeID: e1.ID, StartDate: day("2024-01-01"), EndDate: dayPtr("2024-03-10"), Kind: "temporary"})
	require.NoError(t, err)
	later, err := f.staffing.CreateAssignment(ctx, CreateAssignmentInput{PositionID: "CTO", EmployeeID: e2.ID, StartDate: day("2024-01-01"), EndDate: dayPtr("2024-03-25")})
	require.NoError(t, err)
	_, err = f.staffing.CreateAssignment(ctx, CreateAssignmentInput{PositionID: "CEO", EmployeeID: e3.ID, StartDate: day("2024-01-01")})
	require.NoError(t, err)

	got, err := f.staffing.ListExpiringAssignments(ctx, day("2024-03-01"), 30)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, soon.ID, got[0].Assignment.ID)
	require.Equal(t, 9, got[0].DaysUntilEnd)
	require.Equal(t, later.ID, got[1].Assignment.ID)
	require.Equal(t, 24, got[1].DaysUntilEnd)

	got, err = f.staffing.ListExpiringAssignments(ctx, day("2024-03-01"), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)

	_, err = f.staffing.ListExpiringAssignments(ctx, day("2024-03-01"), -1)
	requireCode(t, err, CodeInvalidBody, nil)

	days, err := f.staffing.DaysUntilEnd(ctx, soon.ID, day("2024-03-01"))
	require.NoError(t, err)
	require.Equal(t, 9, *days)

	_, err = f.staffing.DaysUntilEnd(ctx, uuid.New(), day("2024-03-01"))
	requireCode(t, err, CodeNotFound, staffing.ErrAssignmentNotFound)
}

func TestStaffingService_DeletePosition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.position(t, "CEO", "")
	f.position(t, "CFO", "CEO")
	e := f.employee(t, "E1", "Ana", "Ruiz")

	err := f.staffing.DeletePosition(ctx, "CEO")
	requireCode(t, err, CodeHasChildren, staffing.ErrPositionHasChildren)

	// the clock starts on 2024-01-01, so this assignment is current
	_, err = f.staffing.CreateAssignment(ctx, CreateAssignmentInput{PositionID: "CFO", EmployeeID: e.ID, StartDate: day("2023-06-01")})
	require.NoError(t, err)
	err = f.staffing.DeletePosition(ctx, "CFO")
	requireCode(t, err, CodePositionOccupied, staffing.ErrPositionOccupied)

	f.position(t, "TMP", "CEO")
	require.NoError(t, f.staffing.DeletePosition(ctx, "TMP"))
	_, err = f.staffing.GetPosition(ctx, "TMP")
	requireCode(t, err, CodeNotFound, staffing.ErrPositionNotFound)
}

func TestStaffingService_DeletePosition_KeepsAssignmentHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.position(t, "CEO", "")
	f.position(t, "OLD", "CEO")
	f.position(t, "FUT", "CEO")
	e := f.employee(t, "E1", "Ana", "Ruiz")

	ended, err := f.staffing.CreateAssignment(ctx, CreateAssignmentInput{PositionID: "OLD", EmployeeID: e.ID, StartDate: day("2022-01-01")})
	require.NoError(t, err)
	_, err = f.staffing.EndAssignment(ctx, ended.ID, day("2022-12-31"), "")
	require.NoError(t, err)

	err = f.staffing.DeletePosition(ctx, "OLD")
	requireCode(t, err, CodeHasHistory, staffing.ErrPositionHasHistory)
	history, err := f.staffing.OccupancyHistory(ctx, "OLD")
	require.NoError(t, err)
	require.Len(t, history, 1)

	_, err = f.staffing.CreateAssignment(ctx, CreateAssignmentInput{PositionID: "FUT", EmployeeID: e.ID, StartDate: day("2030-01-01")})
	require.NoError(t, err)
	err = f.staffing.DeletePosition(ctx, "FUT")
	requireCode(t, err, CodeHasHistory, staffing.ErrPositionHasHistory)

	_, err = f.staffing.GetPosition(ctx, "FUT")
	require.NoError(t, err)
}
