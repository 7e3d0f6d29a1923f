package staffing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

func TestNewAssignment_ValidatesRangeAndKind(t *testing.T) {
	_, err := NewAssignment("CEO", uuid.New(), day(2024, 2, 1), ptr(day(2024, 1, 1)), KindTemporary, "")
	require.ErrorIs(t, err, ErrInvalidDateRange)

	_, err = NewAssignment("CEO", uuid.New(), day(2024, 1, 1), nil, "contractor", "")
	require.ErrorIs(t, err, ErrInvalidKind)

	a, err := NewAssignment("CEO", uuid.New(), time.Date(2024, 1, 1, 15, 30, 0, 0, time.UTC), nil, "", "")
	require.NoError(t, err)
	require.Equal(t, KindPermanent, a.Kind)
	require.Equal(t, day(2024, 1, 1), a.StartDate)
	require.True(t, a.IsOpen())

	same, err := NewAssignment("CEO", uuid.New(), day(2024, 1, 1), ptr(day(2024, 1, 1)), KindInterim, "")
	require.NoError(t, err)
	require.True(t, same.Covers(day(2024, 1, 1)))
}

func TestAssignment_CoversIsInclusive(t *testing.T) {
	a := &Assignment{StartDate: day(2024, 1, 1), EndDate: ptr(day(2024, 3, 31))}
	require.False(t, a.Covers(day(2023, 12, 31)))
	require.True(t, a.Covers(day(2024, 1, 1)))
	require.True(t, a.Covers(time.Date(2024, 3, 31, 23, 0, 0, 0, time.UTC)))
	require.False(t, a.Covers(day(2024, 4, 1)))

	open := &Assignment{StartDate: day(2024, 1, 1)}
	require.True(t, open.Covers(day(2030, 1, 1)))
}

func TestAssignment_Overlaps(t *testing.T) {
	closed := &Assignment{StartDate: day(2024, 1, 1), EndDate: ptr(day(2024, 3, 31))}
	require.True(t, closed.Overlaps(day(2024, 3, 31), nil))
	require.False(t, closed.Overlaps(day(2024, 4, 1), nil))
	require.False(t, closed.Overlaps(day(2023, 1, 1), ptr(day(2023, 12, 31))))
	require.True(t, closed.Overlaps(day(2023, 1, 1), nil))

	open := &Assignment{StartDate: day(2024, 6, 1)}
	require.True(t, open.Overlaps(day(2025, 1, 1), nil))
	require.False(t, open.Overlaps(day(2024, 1, 1), ptr(day(2024, 5, 31))))
}

func TestAssignment_End(t *testing.T) {
	a := &Assignment{StartDate: day(2024, 1, 1), Notes: "hired"}
	require.ErrorIs(t, a.End(day(2023, 12, 31), ""), ErrEndBeforeStart)
	require.True(t, a.IsOpen())

	require.NoError(t, a.End(day(2024, 6, 30), "resigned"))
	require.Equal(t, day(2024, 6, 30), *a.EndDate)
	require.Equal(t, "hired\nresigned", a.Notes)

	require.ErrorIs(t, a.End(day(2024, 7, 1), ""), ErrAlreadyEnded)
}

func TestAssignment_DaysUntilEnd(t *testing.T) {
	open := &Assignment{StartDate: day(2024, 1, 1)}
	require.Nil(t, open.DaysUntilEnd(day(2024, 1, 1)))

	a := &Assignment{StartDate: day(2024, 1, 1), EndDate: ptr(day(2024, 1, 31))}
	require.Equal(t, 30, *a.DaysUntilEnd(day(2024, 1, 1)))
	require.Equal(t, 0, *a.DaysUntilEnd(day(2024, 1, 31)))
	require.Equal(t, -1, *a.DaysUntilEnd(day(2024, 2, 1)))
}

func TestSelectCovering(t *testing.T) {
	e1 := &Assignment{PositionID: "CEO", StartDate: day(2023, 1, 1), EndDate: ptr(day(2023, 12, 31))}
	e2 := &Assignment{PositionID: "CEO", StartDate: day(2024, 1, 1)}

	got, err := SelectCovering([]*Assignment{e1, e2}, day(2024, 6, 1))
	require.NoError(t, err)
	require.Same(t, e2, got)

	got, err = SelectCovering([]*Assignment{e1, e2}, day(2022, 6, 1))
	require.NoError(t, err)
	require.Nil(t, got)

	broken := &Assignment{PositionID: "CEO", StartDate: day(2024, 3, 1)}
	_, err = SelectCovering([]*Assignment{e1, e2, broken}, day(2024, 6, 1))
	require.ErrorIs(t, err, ErrMultipleOccupants)
}

func TestPosition_Normalize(t *testing.T) {
	p := &Position{ID: " CFO ", Title: " Chief ", ReportsTo: ptr("  "), KPIs: []string{"", " ebitda "}}
	p.Normalize()
	require.Equal(t, "CFO", p.ID)
	require.Nil(t, p.ReportsTo)
	require.Equal(t, []string{"ebitda"}, p.KPIs)
	require.NotNil(t, p.RequiredProcesses)
	require.Equal(t, "", p.ParentID())
}

func TestEmployee_FullName(t *testing.T) {
	require.Equal(t, "Ana Pérez", (&Employee{FirstName: "Ana", LastName: "Pérez"}).FullName())
	require.Equal(t, "Ana", (&Employee{FirstName: "Ana"}).FullName())
}
