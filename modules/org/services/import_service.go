package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/iota-uz/orgchart/modules/org/domain/chart"
	"github.com/iota-uz/orgchart/modules/org/domain/hierarchy"
	"github.com/iota-uz/orgchart/modules/org/domain/interchange"
)

// TabularReader parses a spreadsheet upload into rows. Header problems fail
// the whole file; cell problems are left to row validation.
type TabularReader interface {
	ReadRows(name string, r io.Reader) ([]interchange.TabularRow, error)
}

type ImportService struct {
	Charts *ChartService
	Logs   interchange.ImportLogRepository
	Reader TabularReader
	Policy ImportPolicy
	Clock  Clock
}

func NewImportService(charts *ChartService, logs interchange.ImportLogRepository, reader TabularReader, policy ImportPolicy) *ImportService {
	return &ImportService{Charts: charts, Logs: logs, Reader: reader, Policy: policy}
}

type ImportMeta struct {
	ChartName   string    `json:"chart_name" validate:"required,max=200"`
	Department  string    `json:"department" validate:"required,max=100"`
	Description string    `json:"description"`
	Actor       uuid.UUID `json:"-" validate:"required"`
	FileName    string    `json:"file_name"`
	// DryRun builds the chart and report without storing anything.
	DryRun bool `json:"dry_run"`
}

const (
	SourceTabular = "tabular"
	SourceJSON    = "json"
)

// ValidateFile applies the upload policy; nil means the file may be
// imported.
func (s *ImportService) ValidateFile(name string, content []byte) []FileIssue {
	return s.Policy.Check(name, content)
}

func rejectedFile(issues []FileIssue) error {
	msgs := make([]string, 0, len(issues))
	for _, i := range issues {
		msgs = append(msgs, i.Message)
	}
	return newServiceError(http.StatusUnprocessableEntity, CodeImportRejected, strings.Join(msgs, "; "), nil)
}

// ImportFile validates an upload and dispatches it on its extension.
func (s *ImportService) ImportFile(ctx context.Context, content []byte, meta ImportMeta) (*chart.Chart, interchange.ImportReport, error) {
	if issues := s.ValidateFile(meta.FileName, content); len(issues) > 0 {
		return nil, interchange.ImportReport{}, mapServiceError(ctx, "ImportFile", rejectedFile(issues))
	}
	if strings.EqualFold(filepath.Ext(meta.FileName), ".json") {
		return s.ImportHierarchicalJSON(ctx, content, meta)
	}
	if s.Reader == nil {
		return nil, interchange.ImportReport{}, mapServiceError(ctx, "ImportFile", errors.New("no spreadsheet reader configured"))
	}
	rows, err := s.Reader.ReadRows(meta.FileName, bytes.NewReader(content))
	if err != nil {
		return nil, interchange.ImportReport{}, mapServiceError(ctx, "ImportFile",
			newServiceError(http.StatusUnprocessableEntity, CodeImportRejected, err.Error(), err))
	}
	return s.ImportTabular(ctx, rows, meta)
}

// ImportTabular builds a draft chart from spreadsheet rows. Bad rows are
// reported and skipped; they never abort the import.
func (s *ImportService) ImportTabular(ctx context.Context, rows []interchange.TabularRow, meta ImportMeta) (*chart.Chart, interchange.ImportReport, error) {
	in := make([]importRow, 0, len(rows))
	for i, r := range rows {
		if r.Row == 0 {
			r.Row = i + 1
		}
		if r.Line == 0 {
			r.Line = r.Row + 1
		}
		in = append(in, importRow{TabularRow: r})
	}
	return s.importRows(ctx, SourceTabular, in, nil, meta)
}

type jsonPosition struct {
	ID               string   `json:"id" validate:"required,max=64"`
	Title            string   `json:"title" validate:"required,max=255"`
	Department       string   `json:"department" validate:"required,max=255"`
	ReportsTo        *string  `json:"reports_to"`
	Level            *int     `json:"level"`
	Responsibilities string   `json:"responsibilities"`
	CurrentEmployee  *string  `json:"current_employee"`
	X                *float64 `json:"x"`
	Y                *float64 `json:"y"`
}

// ImportHierarchicalJSON builds a draft chart from a chart-shaped payload.
// The payload must carry a positions array; elements missing id, title or
// department are reported per element.
func (s *ImportService) ImportHierarchicalJSON(ctx context.Context, payload []byte, meta ImportMeta) (*chart.Chart, interchange.ImportReport, error) {
	var env struct {
		Positions   *[]json.RawMessage `json:"positions"`
		Connections []chart.Connection `json:"connections"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, interchange.ImportReport{}, mapServiceError(ctx, "ImportHierarchicalJSON", invalidInput("payload is not valid json: %v", err))
	}
	if env.Positions == nil {
		return nil, interchange.ImportReport{}, mapServiceError(ctx, "ImportHierarchicalJSON", invalidInput("payload has no positions array"))
	}
	in := make([]importRow, 0, len(*env.Positions))
	for i, raw := range *env.Positions {
		row := importRow{TabularRow: interchange.TabularRow{Row: i + 1}}
		var p jsonPosition
		if err := json.Unmarshal(raw, &p); err != nil {
			row.decodeErr = fmt.Sprintf("element is not a position object: %v", err)
			in = append(in, row)
			continue
		}
		row.ID = p.ID
		row.Title = p.Title
		row.Department = p.Department
		row.Level = p.Level
		row.Responsibilities = p.Responsibilities
		if p.ReportsTo != nil {
			row.ParentID = *p.ReportsTo
		}
		if p.CurrentEmployee != nil {
			row.CurrentEmployee = *p.CurrentEmployee
		}
		if p.X != nil && p.Y != nil {
			row.point = &hierarchy.Point{X: *p.X, Y: *p.Y}
		}
		in = append(in, row)
	}
	return s.importRows(ctx, SourceJSON, in, env.Connections, meta)
}

const connectionsField = "connections"

type importRow struct {
	interchange.TabularRow
	point     *hierarchy.Point
	decodeErr string
}

func (s *ImportService) importRows(ctx context.Context, source string, rows []importRow, extra []chart.Connection, meta ImportMeta) (_ *chart.Chart, report interchange.ImportReport, err error) {
	op := "Import" + strings.ToUpper(source[:1]) + source[1:]
	ctx, end := startSpan(ctx, op,
		attribute.String("import.source", source),
		attribute.Int("import.rows", len(rows)),
	)
	defer func() { end(err) }()

	meta.ChartName = strings.TrimSpace(meta.ChartName)
	meta.Department = strings.TrimSpace(meta.Department)
	if err := validateInput(meta); err != nil {
		return nil, report, mapServiceError(ctx, op, err)
	}

	data, report := buildChartData(rows, extra)
	recordImport(source, report.Succeeded, report.Failed)
	logWithFields(ctx, logrus.InfoLevel, "org import parsed", logrus.Fields{
		"source":    source,
		"file":      meta.FileName,
		"processed": report.Processed,
		"succeeded": report.Succeeded,
		"failed":    report.Failed,
	})

	logID := uuid.New()
	prov := &chart.Provenance{
		Source:      source,
		FileName:    meta.FileName,
		Processed:   report.Processed,
		Succeeded:   report.Succeeded,
		Failed:      report.Failed,
		ImportLogID: &logID,
	}
	importLog := &interchange.ImportLog{
		ID:         logID,
		ImportedBy: meta.Actor,
		Source:     source,
		FileName:   meta.FileName,
		Processed:  report.Processed,
		Succeeded:  report.Succeeded,
		Failed:     report.Failed,
		Errors:     report.Errors,
		CreatedAt:  s.Clock.now(),
	}
	input := CreateChartInput{
		Name:        meta.ChartName,
		Department:  meta.Department,
		Description: meta.Description,
		Data:        data,
		Actor:       meta.Actor,
		Provenance:  prov,
	}

	if meta.DryRun {
		c, err := chart.New(input.Name, input.Department, input.Description, data, meta.Actor, s.Clock.now())
		if err != nil {
			return nil, report, mapServiceError(ctx, op, err)
		}
		c.Provenance = prov
		return c, report, nil
	}

	if report.Succeeded == 0 {
		if err := s.Charts.Tx.InTx(ctx, func(txCtx context.Context) error {
			return s.Logs.Create(txCtx, importLog)
		}); err != nil {
			return nil, report, mapServiceError(ctx, op, err)
		}
		return nil, report, mapServiceError(ctx, op,
			newServiceError(http.StatusUnprocessableEntity, CodeImportRejected, "no row could be imported", nil))
	}

	c, err := inTx(ctx, s.Charts.Tx, func(txCtx context.Context) (*chart.Chart, error) {
		c, err := s.Charts.createChart(txCtx, input)
		if err != nil {
			return nil, err
		}
		importLog.ChartID = &c.ID
		if err := s.Logs.Create(txCtx, importLog); err != nil {
			return nil, err
		}
		return c, nil
	})
	if err != nil {
		return nil, report, mapServiceError(ctx, op, err)
	}
	logWithFields(ctx, logrus.InfoLevel, "org import stored", logrus.Fields{"chart_id": c.ID, "import_log_id": logID})
	return c, report, nil
}

// buildChartData turns import rows into chart data. Rows missing required
// fields, duplicates and rows whose reporting line never reaches a root are
// reported and left out; everything else gets its level from the hierarchy
// and a canvas position.
func buildChartData(rows []importRow, extra []chart.Connection) (chart.Data, interchange.ImportReport) {
	report := interchange.ImportReport{Processed: len(rows), Errors: []interchange.RowError{}}
	fail := func(r importRow, field, msg string) {
		report.Fail(interchange.RowError{Row: r.Row, Line: r.Line, Field: field, Message: msg})
	}

	accepted := make([]importRow, 0, len(rows))
	firstRow := map[string]int{}
	for _, r := range rows {
		if r.decodeErr != "" {
			fail(r, "", r.decodeErr)
			continue
		}
		r.Trim()
		if err := validateInput(r.TabularRow); err != nil {
			fail(r, firstInvalidField(err), err.Error())
			continue
		}
		if prev, dup := firstRow[r.ID]; dup {
			fail(r, interchange.ColID, fmt.Sprintf("duplicate %s %s (first seen in row %d)", interchange.ColID, r.ID, prev))
			continue
		}
		if r.ParentID == r.ID {
			fail(r, interchange.ColParentID, fmt.Sprintf("%s %s reports to itself", interchange.ColID, r.ID))
			continue
		}
		firstRow[r.ID] = r.Row
		accepted = append(accepted, r)
	}

	nodes := make([]hierarchy.Node, 0, len(accepted))
	var roots []string
	for _, r := range accepted {
		nodes = append(nodes, hierarchy.Node{ID: r.ID, ParentID: r.ParentID})
		if r.ParentID == "" {
			roots = append(roots, r.ID)
		}
	}
	// ids are unique at this point
	idx, _ := hierarchy.NewIndex(nodes)
	levels := idx.ComputeLevels(roots)

	kept := make([]importRow, 0, len(accepted))
	for _, r := range accepted {
		switch levels.Orphans[r.ID] {
		case hierarchy.OrphanDanglingParent:
			fail(r, interchange.ColParentID, fmt.Sprintf("%s %s does not match any imported position", interchange.ColParentID, r.ParentID))
		case hierarchy.OrphanUnreachable:
			fail(r, interchange.ColParentID, fmt.Sprintf("reporting line of %s does not reach a top-level position", r.ID))
		default:
			kept = append(kept, r)
		}
	}

	titles := make(map[string]string, len(kept))
	for _, r := range kept {
		titles[r.ID] = r.Title
	}
	points := hierarchy.CalculateLayoutCoordinates(levels, func(a, b string) bool {
		if titles[a] != titles[b] {
			return titles[a] < titles[b]
		}
		return a < b
	})

	data := chart.Data{
		Positions:   make([]chart.PositionNode, 0, len(kept)),
		Connections: make([]chart.Connection, 0, len(kept)),
	}
	seen := map[chart.Connection]struct{}{}
	for _, r := range kept {
		node := chart.PositionNode{
			ID:               r.ID,
			Title:            r.Title,
			Department:       r.Department,
			Level:            levels.Levels[r.ID],
			Responsibilities: r.Responsibilities,
		}
		if r.ParentID != "" {
			parent := r.ParentID
			node.ReportsTo = &parent
			conn := chart.Connection{From: parent, To: r.ID}
			data.Connections = append(data.Connections, conn)
			seen[conn] = struct{}{}
		}
		if !interchange.IsVacantLabel(r.CurrentEmployee) {
			name := r.CurrentEmployee
			node.CurrentEmployee = &name
		}
		if r.RawLevel != "" {
			report.Note(interchange.RowError{Row: r.Row, Line: r.Line, Field: interchange.ColLevel,
				Message: fmt.Sprintf("%s %q is not a whole number; level taken from the reporting line", interchange.ColLevel, r.RawLevel)})
		}
		pt := points[r.ID]
		if r.point != nil {
			pt = *r.point
		}
		node.X, node.Y = pt.X, pt.Y
		data.Positions = append(data.Positions, node)
	}
	dropConnection := func(c chart.Connection, why string) {
		report.Note(interchange.RowError{Field: connectionsField, Message: fmt.Sprintf("connection %s -> %s dropped: %s", c.From, c.To, why)})
	}
	for _, c := range extra {
		if _, dup := seen[c]; dup {
			continue
		}
		if c.From == c.To {
			dropConnection(c, "position connects to itself")
			continue
		}
		if _, ok := titles[c.From]; !ok {
			dropConnection(c, c.From+" was not imported")
			continue
		}
		if _, ok := titles[c.To]; !ok {
			dropConnection(c, c.To+" was not imported")
			continue
		}
		data.Connections = append(data.Connections, c)
		seen[c] = struct{}{}
	}
	report.Sort()
	report.Succeeded = len(data.Positions)
	return data, report
}

func firstInvalidField(err error) string {
	var verr *inputError
	if !errors.As(err, &verr) {
		return ""
	}
	for _, col := range interchange.AllColumns() {
		if strings.Contains(verr.msg, col) {
			return col
		}
	}
	return ""
}

// GenerateTemplate returns the example rows for a blank import sheet.
func (s *ImportService) GenerateTemplate() []interchange.TabularRow {
	return interchange.TemplateRows()
}

func (s *ImportService) GetImportLog(ctx context.Context, id uuid.UUID) (*interchange.ImportLog, error) {
	l, err := s.Logs.Get(ctx, id)
	if err != nil {
		return nil, mapServiceError(ctx, "GetImportLog", err)
	}
	return l, nil
}
