package interchange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/orgchart/modules/org/domain/chart"
)

func TestRowError(t *testing.T) {
	require.Equal(t, "row 3 (line 4): missing nombre_puesto", RowError{Row: 3, Line: 4, Message: "missing nombre_puesto"}.Error())
	require.Equal(t, "row 2: bad", RowError{Row: 2, Message: "bad"}.Error())
}

func TestImportReport_Fail(t *testing.T) {
	var r ImportReport
	require.False(t, r.HasErrors())
	r.Fail(RowError{Row: 1, Message: "x"})
	r.Fail(RowError{Row: 2, Message: "y"})
	require.Equal(t, 2, r.Failed)
	require.True(t, r.HasErrors())
}

func TestImportReport_NoteDoesNotFailRow(t *testing.T) {
	var r ImportReport
	r.Note(RowError{Message: "connection A -> B dropped: B was not imported"})
	r.Fail(RowError{Row: 4, Message: "missing title"})
	r.Note(RowError{Row: 2, Field: ColLevel, Message: "bad level"})
	r.Sort()

	require.Equal(t, 1, r.Failed)
	require.True(t, r.HasErrors())
	require.Len(t, r.Errors, 3)
	require.Equal(t, []int{2, 4, 0}, []int{r.Errors[0].Row, r.Errors[1].Row, r.Errors[2].Row})
	require.Equal(t, "connection A -> B dropped: B was not imported", r.Errors[2].Error())

	var notesOnly ImportReport
	notesOnly.Note(RowError{Row: 1, Message: "x"})
	require.False(t, notesOnly.HasErrors())
}

func TestTabularRow_Trim(t *testing.T) {
	row := TabularRow{ID: " A1 ", Title: "\tBoss", ParentID: "  "}
	row.Trim()
	require.Equal(t, "A1", row.ID)
	require.Equal(t, "Boss", row.Title)
	require.Empty(t, row.ParentID)
}

func TestExportRow_ValuesMatchHeaders(t *testing.T) {
	require.Len(t, ExportRow{}.Values(), len(ExportHeaders))
	require.Equal(t, []string{ColID, ColTitle, ColDepartment, ColParentID, ColLevel, ColResponsibilities, ColCurrentEmployee}, AllColumns())
}

func TestFlatten_KeepsVacantPositions(t *testing.T) {
	boss := "Ana"
	parent := "CEO"
	d := chart.Data{Positions: []chart.PositionNode{
		{ID: "CEO", Title: "Chief", Department: "HQ", Level: 1, CurrentEmployee: &boss},
		{ID: "CFO", Title: "Finance", Department: "HQ", Level: 2, ReportsTo: &parent},
	}}
	rows := Flatten(d, time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC))
	require.Len(t, rows, 2)
	require.Equal(t, "Ana", rows[0].CurrentEmployee)
	require.Equal(t, StatusFilled, rows[0].Status)
	require.Equal(t, VacantLabel, rows[1].CurrentEmployee)
	require.Equal(t, StatusVacant, rows[1].Status)
	require.Equal(t, "Chief", rows[1].ParentTitle)
	require.Equal(t, "2024-03-01 10:30", rows[1].UpdatedAt)
}

func TestIsVacantLabel(t *testing.T) {
	require.True(t, IsVacantLabel(VacantLabel))
	require.True(t, IsVacantLabel(""))
	require.False(t, IsVacantLabel("Juan Perez"))
}

func TestTemplateRows(t *testing.T) {
	rows := TemplateRows()
	require.Len(t, rows, 5)
	levels := map[int]bool{}
	for _, r := range rows {
		levels[*r.Level] = true
		require.Len(t, r.Cells(), len(AllColumns()))
	}
	require.Equal(t, map[int]bool{1: true, 2: true, 3: true, 4: true}, levels)
	require.Equal(t, 3, rows[2].Row)
	require.Equal(t, 4, rows[2].Line)
}
