package persistence

import (
	"context"
	"encoding/json"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iota-uz/orgchart/modules/org/domain/staffing"
	"github.com/iota-uz/orgchart/pkg/composables"
)

// hierarchyLockKey is the advisory lock taken while reporting lines change.
const hierarchyLockKey int64 = 0x6f7267_6869_6572

type PgPositionRepository struct{}

func NewPgPositionRepository() staffing.PositionRepository {
	return &PgPositionRepository{}
}

const positionColumns = `id, title, department, level, reports_to, responsibilities, kpis, required_processes, canvas_x, canvas_y, created_at, updated_at`

func scanPosition(row scanner) (*staffing.Position, error) {
	var (
		p                 staffing.Position
		reportsTo         pgtype.Text
		kpis, processes   []byte
		canvasX, canvasY  pgtype.Float8
		createdAt, update pgtype.Timestamptz
	)
	if err := row.Scan(&p.ID, &p.Title, &p.Department, &p.Level, &reportsTo, &p.Responsibilities, &kpis, &processes, &canvasX, &canvasY, &createdAt, &update); err != nil {
		return nil, err
	}
	p.ReportsTo = asTextPtr(reportsTo)
	if err := json.Unmarshal(kpis, &p.KPIs); err != nil {
		return nil, gerrors.Wrap(err, "decode kpis")
	}
	if err := json.Unmarshal(processes, &p.RequiredProcesses); err != nil {
		return nil, gerrors.Wrap(err, "decode required processes")
	}
	if canvasX.Valid && canvasY.Valid {
		p.Canvas = &staffing.Coordinates{X: canvasX.Float64, Y: canvasY.Float64}
	}
	p.CreatedAt = asTime(createdAt)
	p.UpdatedAt = asTime(update)
	return &p, nil
}

func (r *PgPositionRepository) Create(ctx context.Context, p *staffing.Position) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	kpis, err := json.Marshal(nonNil(p.KPIs))
	if err != nil {
		return err
	}
	processes, err := json.Marshal(nonNil(p.RequiredProcesses))
	if err != nil {
		return err
	}
	var canvasX, canvasY pgtype.Float8
	if p.Canvas != nil {
		canvasX = pgtype.Float8{Float64: p.Canvas.X, Valid: true}
		canvasY = pgtype.Float8{Float64: p.Canvas.Y, Valid: true}
	}
	_, err = tx.Exec(ctx, `
INSERT INTO org_positions (id, title, department, level, reports_to, responsibilities, kpis, required_processes, canvas_x, canvas_y, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`, p.ID, p.Title, p.Department, p.Level, pgText(p.ReportsTo), p.Responsibilities, kpis, processes, canvasX, canvasY, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *PgPositionRepository) get(ctx context.Context, id string, lock bool) (*staffing.Position, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + positionColumns + ` FROM org_positions WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	p, err := scanPosition(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, staffing.ErrPositionNotFound, id)
	}
	return p, nil
}

func (r *PgPositionRepository) Get(ctx context.Context, id string) (*staffing.Position, error) {
	return r.get(ctx, id, false)
}

func (r *PgPositionRepository) LockForUpdate(ctx context.Context, id string) (*staffing.Position, error) {
	return r.get(ctx, id, true)
}

func (r *PgPositionRepository) List(ctx context.Context, department string) ([]*staffing.Position, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
SELECT `+positionColumns+`
FROM org_positions
WHERE ($1 = '' OR department = $1)
ORDER BY level ASC, id ASC
`, department)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*staffing.Position, 0, 32)
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *PgPositionRepository) UpdateReportsTo(ctx context.Context, id string, parentID *string) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `UPDATE org_positions SET reports_to = $2, updated_at = now() WHERE id = $1`, id, pgText(parentID))
	if err != nil {
		return err
	}
	return expectOne(tag.RowsAffected(), staffing.ErrPositionNotFound, id)
}

func (r *PgPositionRepository) Delete(ctx context.Context, id string) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM org_positions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectOne(tag.RowsAffected(), staffing.ErrPositionNotFound, id)
}

func (r *PgPositionRepository) LockHierarchy(ctx context.Context) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, hierarchyLockKey)
	return err
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

type PgEmployeeRepository struct{}

func NewPgEmployeeRepository() staffing.EmployeeRepository {
	return &PgEmployeeRepository{}
}

const employeeColumns = `id, employee_number, first_name, last_name, email, phone, hire_date, is_active, created_at`

func scanEmployee(row scanner) (*staffing.Employee, error) {
	var (
		e         staffing.Employee
		id        pgtype.UUID
		hireDate  pgtype.Date
		createdAt pgtype.Timestamptz
	)
	if err := row.Scan(&id, &e.EmployeeNumber, &e.FirstName, &e.LastName, &e.Email, &e.Phone, &hireDate, &e.IsActive, &createdAt); err != nil {
		return nil, err
	}
	e.ID = asUUID(id)
	e.HireDate = asDate(hireDate)
	e.CreatedAt = asTime(createdAt)
	return &e, nil
}

func (r *PgEmployeeRepository) Create(ctx context.Context, e *staffing.Employee) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
INSERT INTO org_employees (`+employeeColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`, pgUUID(e.ID), e.EmployeeNumber, e.FirstName, e.LastName, e.Email, e.Phone, pgDate(e.HireDate), e.IsActive, e.CreatedAt)
	return err
}

func (r *PgEmployeeRepository) get(ctx context.Context, id uuid.UUID, lock bool) (*staffing.Employee, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + employeeColumns + ` FROM org_employees WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	e, err := scanEmployee(tx.QueryRow(ctx, query, pgUUID(id)))
	if err != nil {
		return nil, notFound(err, staffing.ErrEmployeeNotFound, id)
	}
	return e, nil
}

func (r *PgEmployeeRepository) Get(ctx context.Context, id uuid.UUID) (*staffing.Employee, error) {
	return r.get(ctx, id, false)
}

func (r *PgEmployeeRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*staffing.Employee, error) {
	return r.get(ctx, id, true)
}

func (r *PgEmployeeRepository) GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*staffing.Employee, error) {
	out := make(map[uuid.UUID]*staffing.Employee, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `SELECT `+employeeColumns+` FROM org_employees WHERE id = ANY($1)`, pgUUIDArray(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out[e.ID] = e
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *PgEmployeeRepository) List(ctx context.Context, activeOnly bool) ([]*staffing.Employee, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
SELECT `+employeeColumns+`
FROM org_employees
WHERE (NOT $1 OR is_active)
ORDER BY last_name ASC, first_name ASC, employee_number ASC
`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*staffing.Employee, 0, 32)
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *PgEmployeeRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `UPDATE org_employees SET is_active = $2 WHERE id = $1`, pgUUID(id), active)
	if err != nil {
		return err
	}
	return expectOne(tag.RowsAffected(), staffing.ErrEmployeeNotFound, id)
}

type PgAssignmentRepository struct{}

func NewPgAssignmentRepository() staffing.AssignmentRepository {
	return &PgAssignmentRepository{}
}

const assignmentColumns = `id, position_id, employee_id, start_date, end_date, kind, notes, created_at`

func scanAssignment(row scanner) (*staffing.Assignment, error) {
	var (
		a          staffing.Assignment
		id, emp    pgtype.UUID
		start, end pgtype.Date
		kind       string
		createdAt  pgtype.Timestamptz
	)
	if err := row.Scan(&id, &a.PositionID, &emp, &start, &end, &kind, &a.Notes, &createdAt); err != nil {
		return nil, err
	}
	a.ID = asUUID(id)
	a.EmployeeID = asUUID(emp)
	a.StartDate = asDate(start)
	a.EndDate = asDatePtr(end)
	a.Kind = staffing.AssignmentKind(kind)
	a.CreatedAt = asTime(createdAt)
	return &a, nil
}

func collectAssignments(rows pgx.Rows) ([]*staffing.Assignment, error) {
	defer rows.Close()
	out := make([]*staffing.Assignment, 0, 16)
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *PgAssignmentRepository) Create(ctx context.Context, a *staffing.Assignment) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
INSERT INTO org_assignments (`+assignmentColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`, pgUUID(a.ID), a.PositionID, pgUUID(a.EmployeeID), pgDate(a.StartDate), pgNullDate(a.EndDate), string(a.Kind), a.Notes, a.CreatedAt)
	return err
}

func (r *PgAssignmentRepository) get(ctx context.Context, id uuid.UUID, lock bool) (*staffing.Assignment, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + assignmentColumns + ` FROM org_assignments WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	a, err := scanAssignment(tx.QueryRow(ctx, query, pgUUID(id)))
	if err != nil {
		return nil, notFound(err, staffing.ErrAssignmentNotFound, id)
	}
	return a, nil
}

func (r *PgAssignmentRepository) Get(ctx context.Context, id uuid.UUID) (*staffing.Assignment, error) {
	return r.get(ctx, id, false)
}

func (r *PgAssignmentRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*staffing.Assignment, error) {
	return r.get(ctx, id, true)
}

func (r *PgAssignmentRepository) query(ctx context.Context, where string, args ...any) ([]*staffing.Assignment, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `SELECT `+assignmentColumns+` FROM org_assignments WHERE `+where+` ORDER BY start_date ASC, created_at ASC`, args...)
	if err != nil {
		return nil, err
	}
	return collectAssignments(rows)
}

func (r *PgAssignmentRepository) ListByPosition(ctx context.Context, positionID string) ([]*staffing.Assignment, error) {
	return r.query(ctx, `position_id = $1`, positionID)
}

func (r *PgAssignmentRepository) ListByEmployee(ctx context.Context, employeeID uuid.UUID) ([]*staffing.Assignment, error) {
	return r.query(ctx, `employee_id = $1`, pgUUID(employeeID))
}

func (r *PgAssignmentRepository) ListCovering(ctx context.Context, day time.Time) ([]*staffing.Assignment, error) {
	return r.query(ctx, `start_date <= $1 AND (end_date IS NULL OR end_date >= $1)`, pgDate(staffing.DateOnly(day)))
}

func (r *PgAssignmentRepository) ListEndingBetween(ctx context.Context, from, to time.Time) ([]*staffing.Assignment, error) {
	return r.query(ctx, `end_date BETWEEN $1 AND $2`, pgDate(staffing.DateOnly(from)), pgDate(staffing.DateOnly(to)))
}

func (r *PgAssignmentRepository) End(ctx context.Context, id uuid.UUID, endDate time.Time, notes string) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `UPDATE org_assignments SET end_date = $2, notes = $3 WHERE id = $1`, pgUUID(id), pgDate(staffing.DateOnly(endDate)), notes)
	if err != nil {
		return err
	}
	return expectOne(tag.RowsAffected(), staffing.ErrAssignmentNotFound, id)
}
