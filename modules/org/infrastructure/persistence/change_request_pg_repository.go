package persistence

import (
	"context"
	"encoding/json"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iota-uz/orgchart/modules/org/domain/changerequest"
	"github.com/iota-uz/orgchart/modules/org/domain/interchange"
	"github.com/iota-uz/orgchart/pkg/composables"
)

type PgChangeRequestRepository struct{}

func NewPgChangeRequestRepository() changerequest.Repository {
	return &PgChangeRequestRepository{}
}

const changeRequestColumns = `id, chart_id, requester_id, approver_id, status, request_notes, resolution_notes, created_at, resolved_at`

func scanChangeRequest(row scanner) (*changerequest.ChangeRequest, error) {
	var (
		cr                  changerequest.ChangeRequest
		id, chartID         pgtype.UUID
		requester, approver pgtype.UUID
		status              string
		createdAt, resolved pgtype.Timestamptz
	)
	if err := row.Scan(&id, &chartID, &requester, &approver, &status, &cr.RequestNotes, &cr.ResolutionNotes, &createdAt, &resolved); err != nil {
		return nil, err
	}
	cr.ID = asUUID(id)
	cr.ChartID = asUUID(chartID)
	cr.RequesterID = asUUID(requester)
	cr.ApproverID = asUUIDPtr(approver)
	cr.Status = changerequest.Status(status)
	cr.CreatedAt = asTime(createdAt)
	cr.ResolvedAt = asTimePtr(resolved)
	return &cr, nil
}

func (r *PgChangeRequestRepository) Create(ctx context.Context, cr *changerequest.ChangeRequest) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
INSERT INTO org_change_requests (`+changeRequestColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`, pgUUID(cr.ID), pgUUID(cr.ChartID), pgUUID(cr.RequesterID), pgNullUUID(cr.ApproverID), string(cr.Status),
		cr.RequestNotes, cr.ResolutionNotes, cr.CreatedAt, pgTimestamptz(cr.ResolvedAt))
	return err
}

func (r *PgChangeRequestRepository) get(ctx context.Context, id uuid.UUID, lock bool) (*changerequest.ChangeRequest, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + changeRequestColumns + ` FROM org_change_requests WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	cr, err := scanChangeRequest(tx.QueryRow(ctx, query, pgUUID(id)))
	if err != nil {
		return nil, notFound(err, changerequest.ErrNotFound, id)
	}
	return cr, nil
}

func (r *PgChangeRequestRepository) Get(ctx context.Context, id uuid.UUID) (*changerequest.ChangeRequest, error) {
	return r.get(ctx, id, false)
}

func (r *PgChangeRequestRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*changerequest.ChangeRequest, error) {
	return r.get(ctx, id, true)
}

func (r *PgChangeRequestRepository) GetPendingByChart(ctx context.Context, chartID uuid.UUID) (*changerequest.ChangeRequest, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
SELECT `+changeRequestColumns+`
FROM org_change_requests
WHERE chart_id = $1 AND status = 'pending'
`, pgUUID(chartID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var found *changerequest.ChangeRequest
	for rows.Next() {
		if found, err = scanChangeRequest(rows); err != nil {
			return nil, err
		}
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return found, nil
}

func (r *PgChangeRequestRepository) Update(ctx context.Context, cr *changerequest.ChangeRequest) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
UPDATE org_change_requests SET
	approver_id = $2,
	status = $3,
	resolution_notes = $4,
	resolved_at = $5
WHERE id = $1
`, pgUUID(cr.ID), pgNullUUID(cr.ApproverID), string(cr.Status), cr.ResolutionNotes, pgTimestamptz(cr.ResolvedAt))
	if err != nil {
		return err
	}
	return expectOne(tag.RowsAffected(), changerequest.ErrNotFound, cr.ID)
}

func (r *PgChangeRequestRepository) List(ctx context.Context, status changerequest.Status, limit int) ([]*changerequest.ChangeRequest, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	var lim pgtype.Int4
	if limit > 0 {
		lim = pgtype.Int4{Int32: int32(limit), Valid: true}
	}
	rows, err := tx.Query(ctx, `
SELECT `+changeRequestColumns+`
FROM org_change_requests
WHERE ($1 = '' OR status = $1)
ORDER BY created_at DESC, id DESC
LIMIT $2
`, string(status), lim)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*changerequest.ChangeRequest, 0, 16)
	for rows.Next() {
		cr, err := scanChangeRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cr)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

type PgImportLogRepository struct{}

func NewPgImportLogRepository() interchange.ImportLogRepository {
	return &PgImportLogRepository{}
}

const importLogColumns = `id, chart_id, imported_by, source, file_name, records_processed, records_success, records_errors, error_log, created_at`

func scanImportLog(row scanner) (*interchange.ImportLog, error) {
	var (
		l               interchange.ImportLog
		id, chartID, by pgtype.UUID
		errorLog        []byte
		createdAt       pgtype.Timestamptz
	)
	if err := row.Scan(&id, &chartID, &by, &l.Source, &l.FileName, &l.Processed, &l.Succeeded, &l.Failed, &errorLog, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(errorLog, &l.Errors); err != nil {
		return nil, gerrors.Wrap(err, "decode import error log")
	}
	l.ID = asUUID(id)
	l.ChartID = asUUIDPtr(chartID)
	l.ImportedBy = asUUID(by)
	l.CreatedAt = asTime(createdAt)
	return &l, nil
}

func (r *PgImportLogRepository) Create(ctx context.Context, l *interchange.ImportLog) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	errs := l.Errors
	if errs == nil {
		errs = []interchange.RowError{}
	}
	errorLog, err := json.Marshal(errs)
	if err != nil {
		return gerrors.Wrap(err, "encode import error log")
	}
	_, err = tx.Exec(ctx, `
INSERT INTO org_import_logs (`+importLogColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`, pgUUID(l.ID), pgNullUUID(l.ChartID), pgUUID(l.ImportedBy), l.Source, l.FileName, l.Processed, l.Succeeded, l.Failed, errorLog, l.CreatedAt)
	return err
}

func (r *PgImportLogRepository) Get(ctx context.Context, id uuid.UUID) (*interchange.ImportLog, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	l, err := scanImportLog(tx.QueryRow(ctx, `SELECT `+importLogColumns+` FROM org_import_logs WHERE id = $1`, pgUUID(id)))
	if err != nil {
		return nil, notFound(err, interchange.ErrImportLogNotFound, id)
	}
	return l, nil
}

func (r *PgImportLogRepository) ListByChart(ctx context.Context, chartID uuid.UUID) ([]*interchange.ImportLog, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
SELECT `+importLogColumns+`
FROM org_import_logs
WHERE chart_id = $1
ORDER BY created_at DESC
`, pgUUID(chartID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*interchange.ImportLog, 0, 4)
	for rows.Next() {
		l, err := scanImportLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
