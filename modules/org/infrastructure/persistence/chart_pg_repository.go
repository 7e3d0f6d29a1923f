package persistence

import (
	"context"
	"encoding/json"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iota-uz/orgchart/modules/org/domain/chart"
	"github.com/iota-uz/orgchart/pkg/composables"
)

type PgChartRepository struct{}

func NewPgChartRepository() chart.Repository {
	return &PgChartRepository{}
}

const chartColumns = `id, name, department, description, chart_data, status, version, is_sandbox, parent_chart_id, root_chart_id,
	import_provenance, created_by, approved_by, approved_at, change_justification, created_at, updated_at`

func scanChart(row scanner) (*chart.Chart, error) {
	var (
		c                    chart.Chart
		id, parent, root     pgtype.UUID
		createdBy, approver  pgtype.UUID
		data, provenance     []byte
		status               string
		approvedAt           pgtype.Timestamptz
		createdAt, updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&id, &c.Name, &c.Department, &c.Description, &data, &status, &c.Version, &c.IsSandbox, &parent, &root,
		&provenance, &createdBy, &approver, &approvedAt, &c.Justification, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &c.Data); err != nil {
		return nil, gerrors.Wrap(err, "decode chart data")
	}
	if len(provenance) > 0 {
		c.Provenance = &chart.Provenance{}
		if err := json.Unmarshal(provenance, c.Provenance); err != nil {
			return nil, gerrors.Wrap(err, "decode import provenance")
		}
	}
	c.ID = asUUID(id)
	c.Status = chart.Status(status)
	c.ParentID = asUUIDPtr(parent)
	c.RootID = asUUID(root)
	c.CreatedBy = asUUID(createdBy)
	c.ApprovedBy = asUUIDPtr(approver)
	c.ApprovedAt = asTimePtr(approvedAt)
	c.CreatedAt = asTime(createdAt)
	c.UpdatedAt = asTime(updatedAt)
	return &c, nil
}

func chartPayloads(c *chart.Chart) ([]byte, []byte, error) {
	data, err := json.Marshal(c.Data)
	if err != nil {
		return nil, nil, gerrors.Wrap(err, "encode chart data")
	}
	if c.Provenance == nil {
		return data, nil, nil
	}
	provenance, err := json.Marshal(c.Provenance)
	if err != nil {
		return nil, nil, gerrors.Wrap(err, "encode import provenance")
	}
	return data, provenance, nil
}

func (r *PgChartRepository) Create(ctx context.Context, c *chart.Chart) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	data, provenance, err := chartPayloads(c)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
INSERT INTO org_charts (`+chartColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
`, pgUUID(c.ID), c.Name, c.Department, c.Description, data, string(c.Status), c.Version, c.IsSandbox, pgNullUUID(c.ParentID), pgUUID(c.RootID),
		provenance, pgUUID(c.CreatedBy), pgNullUUID(c.ApprovedBy), pgTimestamptz(c.ApprovedAt), c.Justification, c.CreatedAt, c.UpdatedAt)
	return err
}

func (r *PgChartRepository) get(ctx context.Context, id uuid.UUID, lock bool) (*chart.Chart, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + chartColumns + ` FROM org_charts WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	c, err := scanChart(tx.QueryRow(ctx, query, pgUUID(id)))
	if err != nil {
		return nil, notFound(err, chart.ErrChartNotFound, id)
	}
	return c, nil
}

func (r *PgChartRepository) Get(ctx context.Context, id uuid.UUID) (*chart.Chart, error) {
	return r.get(ctx, id, false)
}

func (r *PgChartRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*chart.Chart, error) {
	return r.get(ctx, id, true)
}

// active reads at most two rows so that a broken single-active rule surfaces
// as an integrity error instead of an arbitrary pick.
func (r *PgChartRepository) active(ctx context.Context, department string, lock bool) (*chart.Chart, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + chartColumns + ` FROM org_charts WHERE department = $1 AND status = 'active' LIMIT 2`
	if lock {
		query += ` FOR UPDATE`
	}
	rows, err := tx.Query(ctx, query, department)
	if err != nil {
		return nil, err
	}
	found, err := collectCharts(rows)
	if err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return found[0], nil
	default:
		return nil, gerrors.Wrap(chart.ErrMultipleActive, department)
	}
}

func (r *PgChartRepository) GetActive(ctx context.Context, department string) (*chart.Chart, error) {
	return r.active(ctx, department, false)
}

func (r *PgChartRepository) LockActive(ctx context.Context, department string) (*chart.Chart, error) {
	return r.active(ctx, department, true)
}

func (r *PgChartRepository) Update(ctx context.Context, c *chart.Chart) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	data, provenance, err := chartPayloads(c)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
UPDATE org_charts SET
	name = $2,
	description = $3,
	chart_data = $4,
	status = $5,
	version = $6,
	import_provenance = $7,
	approved_by = $8,
	approved_at = $9,
	change_justification = $10,
	updated_at = $11
WHERE id = $1
`, pgUUID(c.ID), c.Name, c.Description, data, string(c.Status), c.Version, provenance,
		pgNullUUID(c.ApprovedBy), pgTimestamptz(c.ApprovedAt), c.Justification, c.UpdatedAt)
	if err != nil {
		return err
	}
	return expectOne(tag.RowsAffected(), chart.ErrChartNotFound, c.ID)
}

func collectCharts(rows pgx.Rows) ([]*chart.Chart, error) {
	defer rows.Close()
	out := make([]*chart.Chart, 0, 8)
	for rows.Next() {
		c, err := scanChart(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *PgChartRepository) List(ctx context.Context, params chart.FindParams) ([]*chart.Chart, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	var limit pgtype.Int4
	if params.Limit > 0 {
		limit = pgtype.Int4{Int32: int32(params.Limit), Valid: true}
	}
	rows, err := tx.Query(ctx, `
SELECT `+chartColumns+`
FROM org_charts
WHERE ($1 = '' OR department = $1)
	AND ($2 = '' OR status = $2)
ORDER BY created_at DESC, id DESC
LIMIT $3
`, params.Department, string(params.Status), limit)
	if err != nil {
		return nil, err
	}
	return collectCharts(rows)
}

func (r *PgChartRepository) ListByRoot(ctx context.Context, rootID uuid.UUID) ([]*chart.Chart, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
SELECT `+chartColumns+`
FROM org_charts
WHERE root_chart_id = $1
ORDER BY created_at DESC, id DESC
`, pgUUID(rootID))
	if err != nil {
		return nil, err
	}
	return collectCharts(rows)
}

type PgSnapshotRepository struct{}

func NewPgSnapshotRepository() chart.SnapshotRepository {
	return &PgSnapshotRepository{}
}

const snapshotColumns = `id, chart_id, version_tag, notes, data, patch, created_by, created_at`

func scanSnapshot(row scanner) (*chart.Snapshot, error) {
	var (
		s                 chart.Snapshot
		id, chartID, user pgtype.UUID
		data, patch       []byte
		createdAt         pgtype.Timestamptz
	)
	if err := row.Scan(&id, &chartID, &s.Tag, &s.Notes, &data, &patch, &user, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &s.Data); err != nil {
		return nil, gerrors.Wrap(err, "decode snapshot data")
	}
	if len(patch) > 0 {
		s.Patch = json.RawMessage(patch)
	}
	s.ID = asUUID(id)
	s.ChartID = asUUID(chartID)
	s.CreatedBy = asUUID(user)
	s.CreatedAt = asTime(createdAt)
	return &s, nil
}

func (r *PgSnapshotRepository) Create(ctx context.Context, s *chart.Snapshot) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	data, err := json.Marshal(s.Data)
	if err != nil {
		return gerrors.Wrap(err, "encode snapshot data")
	}
	var patch []byte
	if len(s.Patch) > 0 {
		patch = s.Patch
	}
	_, err = tx.Exec(ctx, `
INSERT INTO org_chart_snapshots (`+snapshotColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`, pgUUID(s.ID), pgUUID(s.ChartID), s.Tag, s.Notes, data, patch, pgUUID(s.CreatedBy), s.CreatedAt)
	return err
}

func (r *PgSnapshotRepository) Get(ctx context.Context, id uuid.UUID) (*chart.Snapshot, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	s, err := scanSnapshot(tx.QueryRow(ctx, `SELECT `+snapshotColumns+` FROM org_chart_snapshots WHERE id = $1`, pgUUID(id)))
	if err != nil {
		return nil, notFound(err, chart.ErrSnapshotNotFound, id)
	}
	return s, nil
}

func (r *PgSnapshotRepository) ListByChart(ctx context.Context, chartID uuid.UUID) ([]*chart.Snapshot, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
SELECT `+snapshotColumns+`
FROM org_chart_snapshots
WHERE chart_id = $1
ORDER BY created_at DESC, id DESC
`, pgUUID(chartID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*chart.Snapshot, 0, 8)
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
