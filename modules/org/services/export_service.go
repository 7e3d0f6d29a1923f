package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/iota-uz/orgchart/modules/org/domain/chart"
	"github.com/iota-uz/orgchart/modules/org/domain/interchange"
)

// DocumentRenderer turns a chart document into an artifact (workbook, PDF,
// slides). It must not modify the document.
type DocumentRenderer interface {
	Render(ctx context.Context, doc interchange.Document) (content []byte, contentType string, err error)
}

type ExportService struct {
	Charts   *ChartService
	Staffing *StaffingService
	Clock    Clock
}

func NewExportService(charts *ChartService, staffing *StaffingService) *ExportService {
	return &ExportService{Charts: charts, Staffing: staffing}
}

type ExportOptions struct {
	// LiveOccupants replaces current_employee with the occupant recorded in
	// the assignment store on AsOf, for positions the store knows.
	LiveOccupants bool
	AsOf          time.Time
}

func (s *ExportService) load(ctx context.Context, chartID uuid.UUID, opts ExportOptions) (*chart.Chart, error) {
	c, err := s.Charts.Charts.Get(ctx, chartID)
	if err != nil {
		return nil, err
	}
	if !opts.LiveOccupants {
		return c, nil
	}
	if s.Staffing == nil {
		return nil, errors.New("live occupants requested without a staffing service")
	}
	positions, err := s.Staffing.Positions.List(ctx, "")
	if err != nil {
		return nil, err
	}
	known := make(map[string]struct{}, len(positions))
	for _, p := range positions {
		known[p.ID] = struct{}{}
	}
	names, err := s.Staffing.OccupantNames(ctx, opts.AsOf)
	if err != nil {
		return nil, err
	}
	out := *c
	out.Data = c.Data.Clone()
	for i := range out.Data.Positions {
		p := &out.Data.Positions[i]
		if _, ok := known[p.ID]; !ok {
			continue
		}
		if name, ok := names[p.ID]; ok {
			p.CurrentEmployee = &name
		} else {
			p.CurrentEmployee = nil
		}
	}
	return &out, nil
}

// Rows flattens a chart into one row per position. Vacant positions are
// always present.
func (s *ExportService) Rows(ctx context.Context, chartID uuid.UUID, opts ExportOptions) (_ []interchange.ExportRow, err error) {
	ctx, end := startSpan(ctx, "ExportRows", attribute.String("chart.id", chartID.String()))
	defer func() { end(err) }()

	c, err := s.load(ctx, chartID, opts)
	if err != nil {
		return nil, mapServiceError(ctx, "ExportRows", err)
	}
	return interchange.Flatten(c.Data, c.UpdatedAt), nil
}

// Document builds the payload handed to document renderers.
func (s *ExportService) Document(ctx context.Context, chartID uuid.UUID, opts ExportOptions) (_ interchange.Document, err error) {
	ctx, end := startSpan(ctx, "ExportDocument", attribute.String("chart.id", chartID.String()))
	defer func() { end(err) }()

	c, err := s.load(ctx, chartID, opts)
	if err != nil {
		return interchange.Document{}, mapServiceError(ctx, "ExportDocument", err)
	}
	return interchange.NewDocument(c, s.Clock.now()), nil
}

func (s *ExportService) Render(ctx context.Context, chartID uuid.UUID, opts ExportOptions, r DocumentRenderer) ([]byte, string, error) {
	doc, err := s.Document(ctx, chartID, opts)
	if err != nil {
		return nil, "", err
	}
	content, contentType, err := r.Render(ctx, doc)
	if err != nil {
		return nil, "", mapServiceError(ctx, "RenderDocument", err)
	}
	return content, contentType, nil
}

func (s *ExportService) Stats(ctx context.Context, chartID uuid.UUID) (chart.Stats, error) {
	c, err := s.Charts.Charts.Get(ctx, chartID)
	if err != nil {
		return chart.Stats{}, mapServiceError(ctx, "ChartStats", err)
	}
	return chart.ComputeStats(c.Data), nil
}
