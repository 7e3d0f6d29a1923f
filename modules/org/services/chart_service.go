package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/wI2L/jsondiff"
	"go.opentelemetry.io/otel/attribute"

	"github.com/iota-uz/orgchart/modules/org/domain/chart"
	"github.com/iota-uz/orgchart/modules/org/domain/hierarchy"
)

// ChartService is the chart version store. Publishing is reachable only
// through ApprovalService.
type ChartService struct {
	Charts    chart.Repository
	Snapshots chart.SnapshotRepository
	Tx        Transactor
	Cache     ActiveChartCache
	Bump      chart.BumpPolicy
	Clock     Clock

	cacheGen atomic.Uint64
}

func NewChartService(charts chart.Repository, snapshots chart.SnapshotRepository, tx Transactor, cache ActiveChartCache, bump chart.BumpPolicy) *ChartService {
	if bump == "" {
		bump = chart.BumpMajor
	}
	return &ChartService{
		Charts:    charts,
		Snapshots: snapshots,
		Tx:        tx,
		Cache:     cache,
		Bump:      bump,
	}
}

type CreateChartInput struct {
	Name        string            `json:"name" validate:"required,max=200"`
	Department  string            `json:"department" validate:"required,max=100"`
	Description string            `json:"description"`
	Data        chart.Data        `json:"chart_data"`
	Actor       uuid.UUID         `json:"-" validate:"required"`
	Provenance  *chart.Provenance `json:"-"`
}

// CreateChart stores a new draft chart.
func (s *ChartService) CreateChart(ctx context.Context, in CreateChartInput) (_ *chart.Chart, err error) {
	ctx, end := startSpan(ctx, "CreateChart", attribute.String("chart.department", in.Department))
	defer func() { end(err) }()

	out, err := inTx(ctx, s.Tx, func(txCtx context.Context) (*chart.Chart, error) {
		return s.createChart(txCtx, in)
	})
	if err != nil {
		return nil, mapServiceError(ctx, "CreateChart", err)
	}
	logWithFields(ctx, logrus.InfoLevel, "org chart created", logrus.Fields{"chart_id": out.ID, "department": out.Department})
	return out, nil
}

func (s *ChartService) createChart(txCtx context.Context, in CreateChartInput) (*chart.Chart, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	c, err := chart.New(in.Name, in.Department, in.Description, in.Data, in.Actor, s.Clock.now())
	if err != nil {
		return nil, err
	}
	c.Provenance = in.Provenance
	if err := s.Charts.Create(txCtx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *ChartService) GetChart(ctx context.Context, id uuid.UUID) (*chart.Chart, error) {
	c, err := s.Charts.Get(ctx, id)
	if err != nil {
		return nil, mapServiceError(ctx, "GetChart", err)
	}
	return c, nil
}

func (s *ChartService) ListCharts(ctx context.Context, params chart.FindParams) ([]*chart.Chart, error) {
	out, err := s.Charts.List(ctx, params)
	if err != nil {
		return nil, mapServiceError(ctx, "ListCharts", err)
	}
	return out, nil
}

// GetActive returns the department's active chart, or nil when it has none.
func (s *ChartService) GetActive(ctx context.Context, department string) (*chart.Chart, error) {
	department = strings.TrimSpace(department)
	if c := cachedActive(ctx, s.Cache, department); c != nil {
		return c, nil
	}
	gen := s.cacheGen.Load()
	c, err := s.Charts.GetActive(ctx, department)
	if err != nil {
		return nil, mapServiceError(ctx, "GetActive", err)
	}
	s.fillActive(ctx, gen, c)
	return c, nil
}

// ActivateChart makes a draft the department's active chart. It fails when
// the department already has one.
func (s *ChartService) ActivateChart(ctx context.Context, chartID uuid.UUID) (_ *chart.Chart, err error) {
	ctx, end := startSpan(ctx, "ActivateChart", attribute.String("chart.id", chartID.String()))
	defer func() { end(err) }()

	out, err := inTx(ctx, s.Tx, func(txCtx context.Context) (*chart.Chart, error) {
		c, err := s.Charts.LockForUpdate(txCtx, chartID)
		if err != nil {
			return nil, err
		}
		if c.Status != chart.StatusDraft {
			return nil, fmt.Errorf("%w: %s chart cannot be activated directly", chart.ErrInvalidTransition, c.Status)
		}
		active, err := s.Charts.LockActive(txCtx, c.Department)
		if err != nil {
			return nil, err
		}
		if active != nil {
			return nil, fmt.Errorf("%w: %s", chart.ErrActiveChartExists, active.ID)
		}
		if err := c.Activate(s.Clock.now()); err != nil {
			return nil, err
		}
		if err := s.Charts.Update(txCtx, c); err != nil {
			return nil, err
		}
		return c, nil
	})
	if err != nil {
		return nil, mapServiceError(ctx, "ActivateChart", err)
	}
	recordTransition(string(chart.StatusActive))
	s.invalidateActive(ctx, "activate", out.Department)
	logWithFields(ctx, logrus.InfoLevel, "org chart activated", logrus.Fields{"chart_id": out.ID, "department": out.Department, "version": out.Version})
	return out, nil
}

// ActivateVersion rolls a department back to an archived version, archiving
// the chart that is active now in the same transaction.
func (s *ChartService) ActivateVersion(ctx context.Context, chartID uuid.UUID) (_ *PublishResult, err error) {
	ctx, end := startSpan(ctx, "ActivateVersion", attribute.String("chart.id", chartID.String()))
	defer func() { end(err) }()

	out, err := inTx(ctx, s.Tx, func(txCtx context.Context) (*PublishResult, error) {
		c, err := s.Charts.LockForUpdate(txCtx, chartID)
		if err != nil {
			return nil, err
		}
		if c.Status != chart.StatusArchived {
			return nil, fmt.Errorf("%w: only archived versions can be re-activated, chart is %s", chart.ErrInvalidTransition, c.Status)
		}
		now := s.Clock.now()
		res := &PublishResult{Chart: c}
		active, err := s.Charts.LockActive(txCtx, c.Department)
		if err != nil {
			return nil, err
		}
		if active != nil {
			if err := active.Archive(now); err != nil {
				return nil, err
			}
			if err := s.Charts.Update(txCtx, active); err != nil {
				return nil, err
			}
			res.Archived = append(res.Archived, active)
		}
		if err := c.Activate(now); err != nil {
			return nil, err
		}
		if err := s.Charts.Update(txCtx, c); err != nil {
			return nil, err
		}
		return res, nil
	})
	if err != nil {
		return nil, mapServiceError(ctx, "ActivateVersion", err)
	}
	recordTransition(string(chart.StatusActive))
	s.invalidateActive(ctx, "rollback", out.Chart.Department)
	logWithFields(ctx, logrus.InfoLevel, "org chart version re-activated", logrus.Fields{
		"chart_id":   out.Chart.ID,
		"department": out.Chart.Department,
		"version":    out.Chart.Version,
		"archived":   out.ArchivedIDs(),
	})
	return out, nil
}

// CreateSandbox clones a non-sandbox chart into an editable sandbox and
// records its initial snapshot.
func (s *ChartService) CreateSandbox(ctx context.Context, baseID, actor uuid.UUID, nameSuffix string) (_ *chart.Chart, err error) {
	ctx, end := startSpan(ctx, "CreateSandbox", attribute.String("chart.id", baseID.String()))
	defer func() { end(err) }()

	if actor == uuid.Nil {
		return nil, mapServiceError(ctx, "CreateSandbox", invalidInput("actor is required"))
	}
	out, err := inTx(ctx, s.Tx, func(txCtx context.Context) (*chart.Chart, error) {
		base, err := s.Charts.LockForUpdate(txCtx, baseID)
		if err != nil {
			return nil, err
		}
		now := s.Clock.now()
		sb, err := base.NewSandbox(actor, strings.TrimSpace(nameSuffix), now)
		if err != nil {
			return nil, err
		}
		if err := s.Charts.Create(txCtx, sb); err != nil {
			return nil, err
		}
		snap := chart.NewSnapshot(sb.ID, chart.TagSandboxInitial, fmt.Sprintf("cloned from %s %s", base.Name, base.Version), sb.Data, actor, now)
		if err := s.Snapshots.Create(txCtx, snap); err != nil {
			return nil, err
		}
		return sb, nil
	})
	if err != nil {
		return nil, mapServiceError(ctx, "CreateSandbox", err)
	}
	recordTransition(string(chart.StatusSandbox))
	logWithFields(ctx, logrus.InfoLevel, "org sandbox created", logrus.Fields{"chart_id": out.ID, "parent_chart_id": baseID})
	return out, nil
}

// SaveSandboxEdit replaces a sandbox's data. The previous data and the new
// data are both snapshotted, the second one with the patch between them.
func (s *ChartService) SaveSandboxEdit(ctx context.Context, sandboxID uuid.UUID, data chart.Data, notes string, actor uuid.UUID) (*chart.Chart, error) {
	return s.editSandbox(ctx, "SaveSandboxEdit", sandboxID, notes, actor, func(chart.Data) (chart.Data, error) {
		return data, nil
	})
}

// ApplySandboxPatch applies an RFC 6902 patch to the sandbox data.
func (s *ChartService) ApplySandboxPatch(ctx context.Context, sandboxID uuid.UUID, patch []byte, notes string, actor uuid.UUID) (*chart.Chart, error) {
	decoded, err := jsonpatch.DecodePatch(patch)
	if err != nil {
		return nil, mapServiceError(ctx, "ApplySandboxPatch", fmt.Errorf("%w: %v", chart.ErrInvalidData, err))
	}
	return s.editSandbox(ctx, "ApplySandboxPatch", sandboxID, notes, actor, func(cur chart.Data) (chart.Data, error) {
		doc, err := json.Marshal(cur)
		if err != nil {
			return chart.Data{}, err
		}
		patched, err := decoded.Apply(doc)
		if err != nil {
			return chart.Data{}, fmt.Errorf("%w: %v", chart.ErrInvalidData, err)
		}
		return chart.ParseData(patched)
	})
}

// AddPosition adds a box to a sandbox, connecting it to its parent.
func (s *ChartService) AddPosition(ctx context.Context, sandboxID uuid.UUID, node chart.PositionNode, actor uuid.UUID) (*chart.Chart, error) {
	node.ID = strings.TrimSpace(node.ID)
	if node.ID == "" {
		return nil, mapServiceError(ctx, "AddPosition", invalidInput("position id is required"))
	}
	return s.editSandbox(ctx, "AddPosition", sandboxID, "added "+node.ID, actor, func(cur chart.Data) (chart.Data, error) {
		if node.Level == 0 {
			node.Level = 1
			if parent, ok := cur.Find(node.ParentID()); ok {
				node.Level = parent.Level + 1
			}
		}
		return cur.WithPosition(node)
	})
}

// RemovePosition drops a box and every connection touching it.
func (s *ChartService) RemovePosition(ctx context.Context, sandboxID uuid.UUID, positionID string, actor uuid.UUID) (*chart.Chart, error) {
	return s.editSandbox(ctx, "RemovePosition", sandboxID, "removed "+positionID, actor, func(cur chart.Data) (chart.Data, error) {
		return cur.WithoutPosition(positionID)
	})
}

// UpdatePlacements moves boxes without touching anything else.
func (s *ChartService) UpdatePlacements(ctx context.Context, sandboxID uuid.UUID, points map[string]hierarchy.Point, actor uuid.UUID) (*chart.Chart, error) {
	return s.editSandbox(ctx, "UpdatePlacements", sandboxID, "placements", actor, func(cur chart.Data) (chart.Data, error) {
		return cur.WithPlacements(points)
	})
}

// ApplyLayout recomputes levels and canvas coordinates from the reporting
// lines.
func (s *ChartService) ApplyLayout(ctx context.Context, sandboxID uuid.UUID, actor uuid.UUID) (*chart.Chart, error) {
	return s.editSandbox(ctx, "ApplyLayout", sandboxID, "auto layout", actor, func(cur chart.Data) (chart.Data, error) {
		return LayoutData(cur)
	})
}

// RestoreSnapshot writes a snapshot's data back into its sandbox.
func (s *ChartService) RestoreSnapshot(ctx context.Context, sandboxID, snapshotID, actor uuid.UUID) (*chart.Chart, error) {
	snap, err := s.Snapshots.Get(ctx, snapshotID)
	if err != nil {
		return nil, mapServiceError(ctx, "RestoreSnapshot", err)
	}
	if snap.ChartID != sandboxID {
		return nil, mapServiceError(ctx, "RestoreSnapshot", fmt.Errorf("%w: %s", chart.ErrSnapshotChartMatch, snapshotID))
	}
	return s.editSandbox(ctx, "RestoreSnapshot", sandboxID, "restored "+snap.Tag, actor, func(chart.Data) (chart.Data, error) {
		return snap.Data.Clone(), nil
	})
}

func (s *ChartService) editSandbox(
	ctx context.Context,
	op string,
	sandboxID uuid.UUID,
	notes string,
	actor uuid.UUID,
	edit func(cur chart.Data) (chart.Data, error),
) (_ *chart.Chart, err error) {
	ctx, end := startSpan(ctx, op, attribute.String("chart.id", sandboxID.String()))
	defer func() { end(err) }()

	if actor == uuid.Nil {
		return nil, mapServiceError(ctx, op, invalidInput("actor is required"))
	}
	out, err := inTx(ctx, s.Tx, func(txCtx context.Context) (*chart.Chart, error) {
		sb, err := s.Charts.LockForUpdate(txCtx, sandboxID)
		if err != nil {
			return nil, err
		}
		if !sb.IsSandbox {
			return nil, chart.ErrNotSandbox
		}
		if sb.Status != chart.StatusSandbox {
			return nil, fmt.Errorf("%w: %s", chart.ErrNotEditable, sb.Status)
		}
		next, err := edit(sb.Data.Clone())
		if err != nil {
			return nil, err
		}
		return sb, s.saveEdit(txCtx, sb, next, notes, actor)
	})
	if err != nil {
		return nil, mapServiceError(ctx, op, err)
	}
	logWithFields(ctx, logrus.InfoLevel, "org sandbox saved", logrus.Fields{"chart_id": out.ID, "op": op})
	return out, nil
}

func (s *ChartService) saveEdit(txCtx context.Context, sb *chart.Chart, next chart.Data, notes string, actor uuid.UUID) error {
	now := s.Clock.now()
	prev := sb.Data.Clone()
	if err := sb.ReplaceData(next, now); err != nil {
		return err
	}
	patch, err := jsondiff.Compare(prev, sb.Data)
	if err != nil {
		return err
	}
	rawPatch, err := json.Marshal(patch)
	if err != nil {
		return err
	}
	before := chart.NewSnapshot(sb.ID, chart.AutoTag(now), "before: "+notes, prev, actor, now)
	if err := s.Snapshots.Create(txCtx, before); err != nil {
		return err
	}
	after := chart.NewSnapshot(sb.ID, chart.SaveTag(now), notes, sb.Data, actor, now)
	after.Patch = rawPatch
	if err := s.Snapshots.Create(txCtx, after); err != nil {
		return err
	}
	return s.Charts.Update(txCtx, sb)
}

// PublishResult is a newly active chart and the charts archived to make
// room for it.
type PublishResult struct {
	Chart    *chart.Chart   `json:"chart"`
	Archived []*chart.Chart `json:"archived"`
}

func (r *PublishResult) ArchivedIDs() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(r.Archived))
	for _, c := range r.Archived {
		out = append(out, c.ID)
	}
	return out
}

// publishAndArchive turns an approved sandbox into its department's active
// chart. It must run inside the caller's transaction: the parent and any
// other active chart of the department are archived together with the
// publish, so the department never has zero or two active charts.
func (s *ChartService) publishAndArchive(txCtx context.Context, sb *chart.Chart, approver uuid.UUID, justification string) (*PublishResult, error) {
	if !sb.IsSandbox {
		return nil, chart.ErrNotSandbox
	}
	now := s.Clock.now()
	res := &PublishResult{Chart: sb}
	archive := func(c *chart.Chart) error {
		if c.Status != chart.StatusActive {
			return nil
		}
		if err := c.Archive(now); err != nil {
			return err
		}
		if err := s.Charts.Update(txCtx, c); err != nil {
			return err
		}
		res.Archived = append(res.Archived, c)
		return nil
	}

	var parentVersion *string
	if sb.ParentID != nil {
		parent, err := s.Charts.LockForUpdate(txCtx, *sb.ParentID)
		if err != nil {
			return nil, err
		}
		v := parent.Version
		parentVersion = &v
		if err := archive(parent); err != nil {
			return nil, err
		}
	}
	active, err := s.Charts.LockActive(txCtx, sb.Department)
	if err != nil {
		return nil, err
	}
	if active != nil && active.ID != sb.ID {
		if err := archive(active); err != nil {
			return nil, err
		}
	}

	lineage, err := s.Charts.ListByRoot(txCtx, sb.RootID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		lineage = append(lineage, active)
	}
	version, err := chart.NextVersion(parentVersion, highestVersion(lineage), s.Bump)
	if err != nil {
		return nil, err
	}
	if err := sb.Publish(approver, justification, version, now); err != nil {
		return nil, err
	}
	if err := s.Charts.Update(txCtx, sb); err != nil {
		return nil, err
	}
	return res, nil
}

// highestVersion is the greatest published label among charts, or nil.
func highestVersion(charts []*chart.Chart) *string {
	var best *chart.Version
	for _, c := range charts {
		if c.IsSandbox {
			continue
		}
		v, err := chart.ParseVersion(c.Version)
		if err != nil {
			continue
		}
		if best == nil || v.Compare(*best) > 0 {
			best = &v
		}
	}
	if best == nil {
		return nil
	}
	label := best.String()
	return &label
}

// GetVersionHistory returns every chart of the lineage, newest first.
func (s *ChartService) GetVersionHistory(ctx context.Context, chartID uuid.UUID) ([]*chart.Chart, error) {
	c, err := s.Charts.Get(ctx, chartID)
	if err != nil {
		return nil, mapServiceError(ctx, "GetVersionHistory", err)
	}
	out, err := s.Charts.ListByRoot(ctx, c.RootID)
	if err != nil {
		return nil, mapServiceError(ctx, "GetVersionHistory", err)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// DiffVersions compares the data of two stored charts.
func (s *ChartService) DiffVersions(ctx context.Context, fromID, toID uuid.UUID) (chart.Diff, error) {
	a, err := s.Charts.Get(ctx, fromID)
	if err != nil {
		return chart.Diff{}, mapServiceError(ctx, "DiffVersions", err)
	}
	b, err := s.Charts.Get(ctx, toID)
	if err != nil {
		return chart.Diff{}, mapServiceError(ctx, "DiffVersions", err)
	}
	return chart.DiffVersions(a.Data, b.Data), nil
}

// DiffAgainstParent compares a sandbox with the chart it was cloned from.
func (s *ChartService) DiffAgainstParent(ctx context.Context, sandboxID uuid.UUID) (chart.Diff, error) {
	sb, err := s.Charts.Get(ctx, sandboxID)
	if err != nil {
		return chart.Diff{}, mapServiceError(ctx, "DiffAgainstParent", err)
	}
	if sb.ParentID == nil {
		return chart.DiffVersions(chart.Data{}, sb.Data), nil
	}
	return s.DiffVersions(ctx, *sb.ParentID, sb.ID)
}

func (s *ChartService) ListSnapshots(ctx context.Context, chartID uuid.UUID) ([]*chart.Snapshot, error) {
	if _, err := s.Charts.Get(ctx, chartID); err != nil {
		return nil, mapServiceError(ctx, "ListSnapshots", err)
	}
	out, err := s.Snapshots.ListByChart(ctx, chartID)
	if err != nil {
		return nil, mapServiceError(ctx, "ListSnapshots", err)
	}
	return out, nil
}

// LayoutData assigns levels from the reporting lines and places every box
// on the canvas. Orphaned boxes keep their coordinates.
func LayoutData(d chart.Data) (chart.Data, error) {
	idx, err := d.Index()
	if err != nil {
		return chart.Data{}, fmt.Errorf("%w: %v", chart.ErrInvalidData, err)
	}
	levels := idx.ComputeLevels(nil)
	titles := make(map[string]string, len(d.Positions))
	for _, p := range d.Positions {
		titles[p.ID] = p.Title
	}
	points := hierarchy.CalculateLayoutCoordinates(levels, func(a, b string) bool {
		if titles[a] != titles[b] {
			return titles[a] < titles[b]
		}
		return a < b
	})
	out := d.Clone()
	for i := range out.Positions {
		id := out.Positions[i].ID
		if lvl, ok := levels.Levels[id]; ok {
			out.Positions[i].Level = lvl
		}
		if pt, ok := points[id]; ok {
			out.Positions[i].X = pt.X
			out.Positions[i].Y = pt.Y
		}
	}
	return out, nil
}
