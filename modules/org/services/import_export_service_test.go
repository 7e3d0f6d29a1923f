package services

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/orgchart/modules/org/domain/chart"
	"github.com/iota-uz/orgchart/modules/org/domain/interchange"
	"github.com/iota-uz/orgchart/modules/org/infrastructure/spreadsheet"
)

// recordingLogs remembers every import log written through it.
type recordingLogs struct {
	interchange.ImportLogRepository
	mu      sync.Mutex
	created []*interchange.ImportLog
}

func (r *recordingLogs) Create(ctx context.Context, l *interchange.ImportLog) error {
	if err := r.ImportLogRepository.Create(ctx, l); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, l)
	return nil
}

func (f *fixture) recordLogs() *recordingLogs {
	logs := &recordingLogs{ImportLogRepository: f.imports.Logs}
	f.imports.Logs = logs
	return logs
}

func (f *fixture) meta(name string) ImportMeta {
	return ImportMeta{ChartName: "Importado", Department: "Finance", Actor: f.actor, FileName: name}
}

func positionIDs(d chart.Data) []string {
	out := make([]string, 0, len(d.Positions))
	for _, p := range d.Positions {
		out = append(out, p.ID)
	}
	sort.Strings(out)
	return out
}

func levelsOf(d chart.Data) map[string]int {
	out := make(map[string]int, len(d.Positions))
	for _, p := range d.Positions {
		out[p.ID] = p.Level
	}
	return out
}

func TestImportService_ImportTabular_SkipsRowMissingTitle(t *testing.T) {
	f := newFixture(t)
	logs := f.recordLogs()
	rows := []interchange.TabularRow{
		{ID: "CEO", Title: "Director General", Department: "Finance"},
		{ID: "CFO", Title: "Director Financiero", Department: "Finance", ParentID: "CEO", CurrentEmployee: "Ana Ruiz"},
		{ID: "GAP", Title: "", Department: "Finance", ParentID: "CEO"},
		{ID: "CTO", Title: "Director Tecnologia", Department: "Finance", ParentID: "CEO", CurrentEmployee: interchange.VacantLabel},
		{ID: "DEV", Title: "Desarrollador", Department: "Finance", ParentID: "CTO"},
	}

	c, report, err := f.imports.ImportTabular(context.Background(), rows, f.meta("plantilla.xlsx"))
	require.NoError(t, err)
	require.Equal(t, []string{"CEO", "CFO", "CTO", "DEV"}, positionIDs(c.Data))
	require.Equal(t, chart.StatusDraft, c.Status)

	require.Equal(t, 5, report.Processed)
	require.Equal(t, 4, report.Succeeded)
	require.Equal(t, 1, report.Failed)
	require.Len(t, report.Errors, 1)
	require.Equal(t, 3, report.Errors[0].Row)
	require.Equal(t, 4, report.Errors[0].Line)
	require.Equal(t, interchange.ColTitle, report.Errors[0].Field)

	require.Equal(t, map[string]int{"CEO": 1, "CFO": 2, "CTO": 2, "DEV": 3}, levelsOf(c.Data))
	cfo, _ := c.Data.Find("CFO")
	require.False(t, cfo.IsVacant())
	cto, _ := c.Data.Find("CTO")
	require.True(t, cto.IsVacant())

	require.NotNil(t, c.Provenance)
	require.Equal(t, SourceTabular, c.Provenance.Source)
	require.Equal(t, 1, c.Provenance.Failed)

	require.Len(t, logs.created, 1)
	require.Equal(t, c.ID, *logs.created[0].ChartID)
	stored, err := f.imports.GetImportLog(context.Background(), *c.Provenance.ImportLogID)
	require.NoError(t, err)
	require.Len(t, stored.Errors, 1)
}

func TestImportService_ImportTabular_NotesUnreadableLevel(t *testing.T) {
	f := newFixture(t)
	rows := []interchange.TabularRow{
		{Row: 1, Line: 2, ID: "CEO", Title: "Director General", Department: "Finance"},
		{Row: 2, Line: 3, ID: "CFO", Title: "Director Financiero", Department: "Finance", ParentID: "CEO", RawLevel: "dos"},
	}

	c, report, err := f.imports.ImportTabular(context.Background(), rows, f.meta("plantilla.csv"))
	require.NoError(t, err)
	require.Equal(t, []string{"CEO", "CFO"}, positionIDs(c.Data))
	require.Equal(t, 2, report.Succeeded)
	require.Zero(t, report.Failed)
	require.False(t, report.HasErrors())
	require.Len(t, report.Errors, 1)
	require.Equal(t, 2, report.Errors[0].Row)
	require.Equal(t, interchange.ColLevel, report.Errors[0].Field)
	require.Contains(t, report.Errors[0].Message, `"dos"`)
	require.Equal(t, map[string]int{"CEO": 1, "CFO": 2}, levelsOf(c.Data))
}

func TestImportService_ImportTabular_ReportsHierarchyProblems(t *testing.T) {
	f := newFixture(t)
	rows := []interchange.TabularRow{
		{ID: "A", Title: "Raiz", Department: "Finance"},
		{ID: "B", Title: "Hijo", Department: "Finance", ParentID: "A"},
		{ID: "B", Title: "Duplicado", Department: "Finance", ParentID: "A"},
		{ID: "C", Title: "Huerfano", Department: "Finance", ParentID: "ZZZ"},
		{ID: "D", Title: "Ciclo 1", Department: "Finance", ParentID: "E"},
		{ID: "E", Title: "Ciclo 2", Department: "Finance", ParentID: "D"},
		{ID: "F", Title: "Propio", Department: "Finance", ParentID: "F"},
	}

	c, report, err := f.imports.ImportTabular(context.Background(), rows, f.meta("org.csv"))
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, positionIDs(c.Data))
	require.Equal(t, "Hijo", c.Data.Positions[1].Title)

	failed := map[int]string{}
	for _, e := range report.Errors {
		failed[e.Row] = e.Field
	}
	require.Equal(t, map[int]string{
		3: interchange.ColID,
		4: interchange.ColParentID,
		5: interchange.ColParentID,
		6: interchange.ColParentID,
		7: interchange.ColParentID,
	}, failed)
	require.Equal(t, 5, report.Failed)
	require.NoError(t, c.Data.Validate())
}

func TestImportService_ImportTabular_NothingImportable(t *testing.T) {
	f := newFixture(t)
	logs := f.recordLogs()
	rows := []interchange.TabularRow{
		{ID: "", Title: "Sin id", Department: "Finance"},
		{ID: "X", Title: "Sin depto"},
	}

	c, report, err := f.imports.ImportTabular(context.Background(), rows, f.meta("vacio.csv"))
	requireCode(t, err, CodeImportRejected, nil)
	require.Nil(t, c)
	require.Equal(t, 2, report.Failed)

	require.Len(t, logs.created, 1)
	require.Nil(t, logs.created[0].ChartID)
	require.Equal(t, 2, logs.created[0].Failed)

	charts, err := f.charts.ListCharts(context.Background(), chart.FindParams{})
	require.NoError(t, err)
	require.Empty(t, charts)
}

func TestImportService_DryRunStoresNothing(t *testing.T) {
	f := newFixture(t)
	logs := f.recordLogs()
	meta := f.meta("plantilla.csv")
	meta.DryRun = true

	c, report, err := f.imports.ImportTabular(context.Background(), interchange.TemplateRows(), meta)
	require.NoError(t, err)
	require.Equal(t, len(interchange.TemplateRows()), report.Succeeded)
	require.Len(t, c.Data.Positions, report.Succeeded)
	require.Empty(t, logs.created)

	charts, err := f.charts.ListCharts(context.Background(), chart.FindParams{})
	require.NoError(t, err)
	require.Empty(t, charts)
}

func TestImportService_ImportHierarchicalJSON(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	payload := []byte(`{
		"positions": [
			{"id": "CEO", "title": "Director General", "department": "Finance", "x": 5, "y": 6},
			{"id": "CFO", "title": "Director Financiero", "department": "Finance", "reports_to": "CEO", "current_employee": "Ana Ruiz"},
			{"id": "BAD", "title": "Sin depto"},
			"not an object",
			{"id": "AUD", "title": "Auditor", "department": "Finance", "reports_to": "CEO"}
		],
		"connections": [
			{"from": "CFO", "to": "AUD"},
			{"from": "CEO", "to": "BAD"}
		]
	}`)

	c, report, err := f.imports.ImportHierarchicalJSON(ctx, payload, f.meta("org.json"))
	require.NoError(t, err)
	require.Equal(t, []string{"AUD", "CEO", "CFO"}, positionIDs(c.Data))
	require.Equal(t, 2, report.Failed)
	require.Len(t, report.Errors, 3)
	require.Equal(t, 3, report.Errors[0].Row)
	require.Equal(t, 4, report.Errors[1].Row)
	require.Equal(t, "connections", report.Errors[2].Field)
	require.Contains(t, report.Errors[2].Message, "CEO -> BAD")

	ceo, _ := c.Data.Find("CEO")
	require.InDelta(t, 5.0, ceo.X, 0.001)
	require.InDelta(t, 6.0, ceo.Y, 0.001)
	require.ElementsMatch(t, []chart.Connection{
		{From: "CEO", To: "CFO"},
		{From: "CEO", To: "AUD"},
		{From: "CFO", To: "AUD"},
	}, c.Data.Connections)
	require.Equal(t, SourceJSON, c.Provenance.Source)

	_, _, err = f.imports.ImportHierarchicalJSON(ctx, []byte(`{"nodes": []}`), f.meta("org.json"))
	requireCode(t, err, CodeInvalidBody, nil)

	_, _, err = f.imports.ImportHierarchicalJSON(ctx, []byte(`{`), f.meta("org.json"))
	requireCode(t, err, CodeInvalidBody, nil)
}

func TestImportService_ValidateFile(t *testing.T) {
	f := newFixture(t)
	csv := []byte("id_puesto,nombre_puesto,departamento\nCEO,Director,Finance\n")

	require.Empty(t, f.imports.ValidateFile("org.csv", csv))

	codes := func(issues []FileIssue) []string {
		out := make([]string, 0, len(issues))
		for _, i := range issues {
			out = append(out, i.Code)
		}
		return out
	}
	require.Equal(t, []string{IssueExtension}, codes(f.imports.ValidateFile("org.exe", csv)))
	require.Contains(t, codes(f.imports.ValidateFile("org.csv", nil)), IssueEmpty)
	require.Contains(t, codes(f.imports.ValidateFile("org.xlsx", csv)), IssueContent)

	f.imports.Policy.MaxBytes = 10
	require.Contains(t, codes(f.imports.ValidateFile("org.csv", csv)), IssueTooLarge)

	_, _, err := f.imports.ImportFile(context.Background(), csv, f.meta("org.exe"))
	requireCode(t, err, CodeImportRejected, nil)
}

func TestLoadImportPolicy_OverlaysFile(t *testing.T) {
	base := DefaultImportPolicy(1024, []string{".xlsx", ".csv"})
	same, err := LoadImportPolicy("", base)
	require.NoError(t, err)
	require.Equal(t, base.Extensions, same.Extensions)

	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_bytes: 2048\nextensions: [CSV, json]\nmime_types:\n  csv: [text/csv]\n"), 0o600))

	p, err := LoadImportPolicy(path, base)
	require.NoError(t, err)
	require.Equal(t, int64(2048), p.MaxBytes)
	require.Equal(t, []string{".csv", ".json"}, p.Extensions)
	require.Equal(t, []string{"text/csv"}, p.MIMETypes[".csv"])
	require.NotEmpty(t, p.MIMETypes[".xlsx"])

	_, err = LoadImportPolicy(filepath.Join(t.TempDir(), "missing.yaml"), base)
	require.Error(t, err)
}

func TestImportService_ExportedCSVReimportsSameChart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	original, _, err := f.imports.ImportTabular(ctx, interchange.TemplateRows(), f.meta("plantilla.xlsx"))
	require.NoError(t, err)

	rows, err := f.exports.Rows(ctx, original.ID, ExportOptions{})
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, spreadsheet.WriteCSV(&buf, rows))

	again, report, err := f.imports.ImportFile(ctx, buf.Bytes(), f.meta("export.csv"))
	require.NoError(t, err)
	require.Empty(t, report.Errors)
	require.Equal(t, positionIDs(original.Data), positionIDs(again.Data))
	require.Equal(t, levelsOf(original.Data), levelsOf(again.Data))

	parents := func(d chart.Data) map[string]string {
		out := map[string]string{}
		for _, p := range d.Positions {
			out[p.ID] = p.ParentID()
		}
		return out
	}
	require.Equal(t, parents(original.Data), parents(again.Data))
	require.True(t, chart.DiffVersions(original.Data, again.Data).IsEmpty())
}

func TestExportService_LiveOccupants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, err := f.charts.CreateChart(ctx, CreateChartInput{
		Name:       "Finance v1",
		Department: "Finance",
		Actor:      f.actor,
		Data: chart.Data{
			Positions: []chart.PositionNode{
				{ID: "CEO", Title: "Director General", Department: "Finance", Level: 1, CurrentEmployee: strPtr("Nombre viejo")},
				{ID: "CFO", Title: "Director Financiero", Department: "Finance", Level: 2, ReportsTo: strPtr("CEO")},
				{ID: "EXT", Title: "Asesor", Department: "Finance", Level: 2, ReportsTo: strPtr("CEO"), CurrentEmployee: strPtr("Consultor")},
			},
		},
	})
	require.NoError(t, err)

	f.position(t, "CEO", "")
	f.position(t, "CFO", "CEO")
	e := f.employee(t, "E1", "Ana", "Ruiz")
	_, err = f.staffing.CreateAssignment(ctx, CreateAssignmentInput{PositionID: "CFO", EmployeeID: e.ID, StartDate: day("2024-01-01")})
	require.NoError(t, err)

	static, err := f.exports.Rows(ctx, c.ID, ExportOptions{})
	require.NoError(t, err)
	require.Equal(t, "Nombre viejo", static[0].CurrentEmployee)
	require.Equal(t, interchange.VacantLabel, static[1].CurrentEmployee)
	require.Equal(t, interchange.StatusVacant, static[1].Status)
	require.Equal(t, "Director General", static[1].ParentTitle)

	live, err := f.exports.Rows(ctx, c.ID, ExportOptions{LiveOccupants: true, AsOf: day("2024-06-01")})
	require.NoError(t, err)
	byID := map[string]interchange.ExportRow{}
	for _, r := range live {
		byID[r.ID] = r
	}
	require.Equal(t, interchange.VacantLabel, byID["CEO"].CurrentEmployee)
	require.Equal(t, e.FullName(), byID["CFO"].CurrentEmployee)
	require.Equal(t, interchange.StatusFilled, byID["CFO"].Status)
	require.Equal(t, "Consultor", byID["EXT"].CurrentEmployee)

	stored, err := f.charts.GetChart(ctx, c.ID)
	require.NoError(t, err)
	ceo, _ := stored.Data.Find("CEO")
	require.Equal(t, "Nombre viejo", *ceo.CurrentEmployee)
}

func TestExportService_RenderAndStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.activeChart(t, "Finance v1", "Finance")

	content, contentType, err := f.exports.Render(ctx, c.ID, ExportOptions{}, spreadsheet.CSVRenderer{})
	require.NoError(t, err)
	require.Equal(t, spreadsheet.ContentTypeCSV, contentType)
	rows, err := spreadsheet.NewReader().ReadRows("export.csv", bytes.NewReader(content))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	doc, err := f.exports.Document(ctx, c.ID, ExportOptions{})
	require.NoError(t, err)
	require.Equal(t, c.Version, doc.Version)
	require.Equal(t, 2, doc.Stats.Total)

	stats, err := f.exports.Stats(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Occupied)
	require.Equal(t, 1, stats.Vacant)
	require.Equal(t, 2, stats.Levels)
}
