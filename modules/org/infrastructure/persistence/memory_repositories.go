package persistence

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/orgchart/modules/org/domain/changerequest"
	"github.com/iota-uz/orgchart/modules/org/domain/chart"
	"github.com/iota-uz/orgchart/modules/org/domain/interchange"
	"github.com/iota-uz/orgchart/modules/org/domain/staffing"
)

// The in-memory repositories enforce the same uniqueness rules as the
// Postgres schema so that services see identical failures.

type MemoryPositionRepository struct{ s *MemoryStore }

func NewMemoryPositionRepository(s *MemoryStore) staffing.PositionRepository {
	return &MemoryPositionRepository{s: s}
}

func (r *MemoryPositionRepository) Create(_ context.Context, p *staffing.Position) error {
	if _, exists := r.s.positions.Get(p.ID); exists {
		return fmt.Errorf("%w: %s", staffing.ErrPositionExists, p.ID)
	}
	if parent := p.ParentID(); parent != "" {
		if _, ok := r.s.positions.Get(parent); !ok {
			return fmt.Errorf("%w: %s", staffing.ErrPositionNotFound, parent)
		}
	}
	r.s.positions.Set(p.ID, stored[staffing.Position]{seq: r.s.next(), v: *copyPosition(*p)})
	return nil
}

func (r *MemoryPositionRepository) Get(_ context.Context, id string) (*staffing.Position, error) {
	row, ok := r.s.positions.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", staffing.ErrPositionNotFound, id)
	}
	return copyPosition(row.v), nil
}

func (r *MemoryPositionRepository) LockForUpdate(ctx context.Context, id string) (*staffing.Position, error) {
	return r.Get(ctx, id)
}

func (r *MemoryPositionRepository) List(_ context.Context, department string) ([]*staffing.Position, error) {
	rows := sortedValues(r.s.positions, func(p staffing.Position) bool {
		return department == "" || p.Department == department
	})
	out := make([]*staffing.Position, 0, len(rows))
	for _, row := range rows {
		out = append(out, copyPosition(row.v))
	}
	return out, nil
}

func (r *MemoryPositionRepository) UpdateReportsTo(_ context.Context, id string, parentID *string) error {
	row, ok := r.s.positions.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", staffing.ErrPositionNotFound, id)
	}
	row.v.ReportsTo = copyPtr(parentID)
	row.v.UpdatedAt = time.Now().UTC()
	r.s.positions.Set(id, row)
	return nil
}

// Delete mirrors the RESTRICT foreign keys on reports_to and
// org_assignments.position_id.
func (r *MemoryPositionRepository) Delete(_ context.Context, id string) error {
	if _, ok := r.s.positions.Get(id); !ok {
		return fmt.Errorf("%w: %s", staffing.ErrPositionNotFound, id)
	}
	for _, row := range r.s.positions.Values() {
		if row.v.ParentID() == id {
			return fmt.Errorf("%w: %s", staffing.ErrPositionHasChildren, id)
		}
	}
	for _, row := range r.s.assignments.Values() {
		if row.v.PositionID == id {
			return fmt.Errorf("%w: %s", staffing.ErrPositionHasHistory, id)
		}
	}
	r.s.positions.Delete(id)
	return nil
}

func (r *MemoryPositionRepository) LockHierarchy(context.Context) error { return nil }

type MemoryEmployeeRepository struct{ s *MemoryStore }

func NewMemoryEmployeeRepository(s *MemoryStore) staffing.EmployeeRepository {
	return &MemoryEmployeeRepository{s: s}
}

func (r *MemoryEmployeeRepository) Create(_ context.Context, e *staffing.Employee) error {
	for _, row := range r.s.employees.Values() {
		if row.v.EmployeeNumber == e.EmployeeNumber {
			return fmt.Errorf("%w: %s", staffing.ErrEmployeeNumberTaken, e.EmployeeNumber)
		}
	}
	r.s.employees.Set(e.ID, stored[staffing.Employee]{seq: r.s.next(), v: *e})
	return nil
}

func (r *MemoryEmployeeRepository) Get(_ context.Context, id uuid.UUID) (*staffing.Employee, error) {
	row, ok := r.s.employees.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", staffing.ErrEmployeeNotFound, id)
	}
	e := row.v
	return &e, nil
}

func (r *MemoryEmployeeRepository) GetMany(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*staffing.Employee, error) {
	out := make(map[uuid.UUID]*staffing.Employee, len(ids))
	for _, id := range ids {
		if row, ok := r.s.employees.Get(id); ok {
			e := row.v
			out[id] = &e
		}
	}
	return out, nil
}

func (r *MemoryEmployeeRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*staffing.Employee, error) {
	return r.Get(ctx, id)
}

func (r *MemoryEmployeeRepository) List(_ context.Context, activeOnly bool) ([]*staffing.Employee, error) {
	rows := sortedValues(r.s.employees, func(e staffing.Employee) bool { return !activeOnly || e.IsActive })
	out := make([]*staffing.Employee, 0, len(rows))
	for _, row := range rows {
		e := row.v
		out = append(out, &e)
	}
	return out, nil
}

func (r *MemoryEmployeeRepository) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	row, ok := r.s.employees.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", staffing.ErrEmployeeNotFound, id)
	}
	row.v.IsActive = active
	r.s.employees.Set(id, row)
	return nil
}

type MemoryAssignmentRepository struct{ s *MemoryStore }

func NewMemoryAssignmentRepository(s *MemoryStore) staffing.AssignmentRepository {
	return &MemoryAssignmentRepository{s: s}
}

// Create mirrors the schema: unique (position, employee, start), at most one
// open row per position and per employee, and no overlapping windows.
func (r *MemoryAssignmentRepository) Create(_ context.Context, a *staffing.Assignment) error {
	if _, ok := r.s.positions.Get(a.PositionID); !ok {
		return fmt.Errorf("%w: %s", staffing.ErrPositionNotFound, a.PositionID)
	}
	if _, ok := r.s.employees.Get(a.EmployeeID); !ok {
		return fmt.Errorf("%w: %s", staffing.ErrEmployeeNotFound, a.EmployeeID)
	}
	if a.EndDate != nil && a.EndDate.Before(a.StartDate) {
		return staffing.ErrInvalidDateRange
	}
	for _, row := range r.s.assignments.Values() {
		other := row.v
		if other.PositionID == a.PositionID && other.EmployeeID == a.EmployeeID && other.StartDate.Equal(a.StartDate) {
			return staffing.ErrDuplicateAssignment
		}
		if !other.Overlaps(a.StartDate, a.EndDate) {
			continue
		}
		if other.EmployeeID == a.EmployeeID {
			return fmt.Errorf("%w: %s", staffing.ErrEmployeeAlreadyPlaced, other.ID)
		}
		if other.PositionID == a.PositionID {
			return fmt.Errorf("%w: %s", staffing.ErrPositionAlreadyOccupied, other.ID)
		}
	}
	r.s.assignments.Set(a.ID, stored[staffing.Assignment]{seq: r.s.next(), v: *copyAssignment(*a)})
	return nil
}

func (r *MemoryAssignmentRepository) Get(_ context.Context, id uuid.UUID) (*staffing.Assignment, error) {
	row, ok := r.s.assignments.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", staffing.ErrAssignmentNotFound, id)
	}
	return copyAssignment(row.v), nil
}

func (r *MemoryAssignmentRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*staffing.Assignment, error) {
	return r.Get(ctx, id)
}

func (r *MemoryAssignmentRepository) list(keep func(staffing.Assignment) bool) []*staffing.Assignment {
	rows := sortedValues(r.s.assignments, keep)
	out := make([]*staffing.Assignment, 0, len(rows))
	for _, row := range rows {
		out = append(out, copyAssignment(row.v))
	}
	slices.SortStableFunc(out, func(a, b *staffing.Assignment) int { return a.StartDate.Compare(b.StartDate) })
	return out
}

func (r *MemoryAssignmentRepository) ListByPosition(_ context.Context, positionID string) ([]*staffing.Assignment, error) {
	return r.list(func(a staffing.Assignment) bool { return a.PositionID == positionID }), nil
}

func (r *MemoryAssignmentRepository) ListByEmployee(_ context.Context, employeeID uuid.UUID) ([]*staffing.Assignment, error) {
	return r.list(func(a staffing.Assignment) bool { return a.EmployeeID == employeeID }), nil
}

func (r *MemoryAssignmentRepository) ListCovering(_ context.Context, day time.Time) ([]*staffing.Assignment, error) {
	return r.list(func(a staffing.Assignment) bool { return a.Covers(day) }), nil
}

func (r *MemoryAssignmentRepository) ListEndingBetween(_ context.Context, from, to time.Time) ([]*staffing.Assignment, error) {
	from, to = staffing.DateOnly(from), staffing.DateOnly(to)
	return r.list(func(a staffing.Assignment) bool {
		return a.EndDate != nil && !a.EndDate.Before(from) && !a.EndDate.After(to)
	}), nil
}

func (r *MemoryAssignmentRepository) End(_ context.Context, id uuid.UUID, endDate time.Time, notes string) error {
	row, ok := r.s.assignments.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", staffing.ErrAssignmentNotFound, id)
	}
	end := staffing.DateOnly(endDate)
	if end.Before(row.v.StartDate) {
		return staffing.ErrEndBeforeStart
	}
	row.v.EndDate = &end
	row.v.Notes = notes
	r.s.assignments.Set(id, row)
	return nil
}

type MemoryChartRepository struct{ s *MemoryStore }

func NewMemoryChartRepository(s *MemoryStore) chart.Repository {
	return &MemoryChartRepository{s: s}
}

func (r *MemoryChartRepository) checkActive(c *chart.Chart) error {
	if c.Status != chart.StatusActive {
		return nil
	}
	for _, row := range r.s.charts.Values() {
		if row.v.ID != c.ID && row.v.Department == c.Department && row.v.Status == chart.StatusActive {
			return fmt.Errorf("%w: %s", chart.ErrActiveChartExists, row.v.ID)
		}
	}
	return nil
}

func (r *MemoryChartRepository) Create(_ context.Context, c *chart.Chart) error {
	if _, exists := r.s.charts.Get(c.ID); exists {
		return fmt.Errorf("chart %s already exists", c.ID)
	}
	if err := r.checkActive(c); err != nil {
		return err
	}
	r.s.charts.Set(c.ID, stored[chart.Chart]{seq: r.s.next(), v: *copyChart(*c)})
	return nil
}

func (r *MemoryChartRepository) Get(_ context.Context, id uuid.UUID) (*chart.Chart, error) {
	row, ok := r.s.charts.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", chart.ErrChartNotFound, id)
	}
	return copyChart(row.v), nil
}

func (r *MemoryChartRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*chart.Chart, error) {
	return r.Get(ctx, id)
}

func (r *MemoryChartRepository) GetActive(_ context.Context, department string) (*chart.Chart, error) {
	var found *chart.Chart
	for _, row := range r.s.charts.Values() {
		if row.v.Department != department || row.v.Status != chart.StatusActive {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("%w: %s", chart.ErrMultipleActive, department)
		}
		found = copyChart(row.v)
	}
	return found, nil
}

func (r *MemoryChartRepository) LockActive(ctx context.Context, department string) (*chart.Chart, error) {
	return r.GetActive(ctx, department)
}

func (r *MemoryChartRepository) Update(_ context.Context, c *chart.Chart) error {
	row, ok := r.s.charts.Get(c.ID)
	if !ok {
		return fmt.Errorf("%w: %s", chart.ErrChartNotFound, c.ID)
	}
	if err := r.checkActive(c); err != nil {
		return err
	}
	row.v = *copyChart(*c)
	r.s.charts.Set(c.ID, row)
	return nil
}

func newestFirst(rows []stored[chart.Chart]) []*chart.Chart {
	slices.SortStableFunc(rows, func(a, b stored[chart.Chart]) int {
		if c := b.v.CreatedAt.Compare(a.v.CreatedAt); c != 0 {
			return c
		}
		return int(b.seq - a.seq)
	})
	out := make([]*chart.Chart, 0, len(rows))
	for _, row := range rows {
		out = append(out, copyChart(row.v))
	}
	return out
}

func (r *MemoryChartRepository) List(_ context.Context, params chart.FindParams) ([]*chart.Chart, error) {
	rows := sortedValues(r.s.charts, func(c chart.Chart) bool {
		if params.Department != "" && c.Department != params.Department {
			return false
		}
		return params.Status == "" || c.Status == params.Status
	})
	out := newestFirst(rows)
	if params.Limit > 0 && len(out) > params.Limit {
		out = out[:params.Limit]
	}
	return out, nil
}

func (r *MemoryChartRepository) ListByRoot(_ context.Context, rootID uuid.UUID) ([]*chart.Chart, error) {
	return newestFirst(sortedValues(r.s.charts, func(c chart.Chart) bool { return c.RootID == rootID })), nil
}

type MemorySnapshotRepository struct{ s *MemoryStore }

func NewMemorySnapshotRepository(s *MemoryStore) chart.SnapshotRepository {
	return &MemorySnapshotRepository{s: s}
}

func (r *MemorySnapshotRepository) Create(_ context.Context, snap *chart.Snapshot) error {
	if _, ok := r.s.charts.Get(snap.ChartID); !ok {
		return fmt.Errorf("%w: %s", chart.ErrChartNotFound, snap.ChartID)
	}
	r.s.snapshots.Set(snap.ID, stored[chart.Snapshot]{seq: r.s.next(), v: *copySnapshot(*snap)})
	return nil
}

func (r *MemorySnapshotRepository) Get(_ context.Context, id uuid.UUID) (*chart.Snapshot, error) {
	row, ok := r.s.snapshots.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", chart.ErrSnapshotNotFound, id)
	}
	return copySnapshot(row.v), nil
}

func (r *MemorySnapshotRepository) ListByChart(_ context.Context, chartID uuid.UUID) ([]*chart.Snapshot, error) {
	rows := sortedValues(r.s.snapshots, func(s chart.Snapshot) bool { return s.ChartID == chartID })
	out := make([]*chart.Snapshot, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		out = append(out, copySnapshot(rows[i].v))
	}
	return out, nil
}

type MemoryChangeRequestRepository struct{ s *MemoryStore }

func NewMemoryChangeRequestRepository(s *MemoryStore) changerequest.Repository {
	return &MemoryChangeRequestRepository{s: s}
}

func (r *MemoryChangeRequestRepository) checkPending(cr *changerequest.ChangeRequest) error {
	if cr.Status != changerequest.StatusPending {
		return nil
	}
	for _, row := range r.s.requests.Values() {
		if row.v.ID != cr.ID && row.v.ChartID == cr.ChartID && row.v.Status == changerequest.StatusPending {
			return fmt.Errorf("%w: %s", changerequest.ErrAlreadyPending, row.v.ID)
		}
	}
	return nil
}

func (r *MemoryChangeRequestRepository) Create(_ context.Context, cr *changerequest.ChangeRequest) error {
	if _, ok := r.s.charts.Get(cr.ChartID); !ok {
		return fmt.Errorf("%w: %s", chart.ErrChartNotFound, cr.ChartID)
	}
	if err := r.checkPending(cr); err != nil {
		return err
	}
	r.s.requests.Set(cr.ID, stored[changerequest.ChangeRequest]{seq: r.s.next(), v: *copyRequest(*cr)})
	return nil
}

func (r *MemoryChangeRequestRepository) Get(_ context.Context, id uuid.UUID) (*changerequest.ChangeRequest, error) {
	row, ok := r.s.requests.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", changerequest.ErrNotFound, id)
	}
	return copyRequest(row.v), nil
}

func (r *MemoryChangeRequestRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*changerequest.ChangeRequest, error) {
	return r.Get(ctx, id)
}

func (r *MemoryChangeRequestRepository) GetPendingByChart(_ context.Context, chartID uuid.UUID) (*changerequest.ChangeRequest, error) {
	for _, row := range r.s.requests.Values() {
		if row.v.ChartID == chartID && row.v.Status == changerequest.StatusPending {
			return copyRequest(row.v), nil
		}
	}
	return nil, nil
}

func (r *MemoryChangeRequestRepository) Update(_ context.Context, cr *changerequest.ChangeRequest) error {
	row, ok := r.s.requests.Get(cr.ID)
	if !ok {
		return fmt.Errorf("%w: %s", changerequest.ErrNotFound, cr.ID)
	}
	if err := r.checkPending(cr); err != nil {
		return err
	}
	row.v = *copyRequest(*cr)
	r.s.requests.Set(cr.ID, row)
	return nil
}

func (r *MemoryChangeRequestRepository) List(_ context.Context, status changerequest.Status, limit int) ([]*changerequest.ChangeRequest, error) {
	rows := sortedValues(r.s.requests, func(cr changerequest.ChangeRequest) bool {
		return status == "" || cr.Status == status
	})
	out := make([]*changerequest.ChangeRequest, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		out = append(out, copyRequest(rows[i].v))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

type MemoryImportLogRepository struct{ s *MemoryStore }

func NewMemoryImportLogRepository(s *MemoryStore) interchange.ImportLogRepository {
	return &MemoryImportLogRepository{s: s}
}

func (r *MemoryImportLogRepository) Create(_ context.Context, l *interchange.ImportLog) error {
	r.s.importLogs.Set(l.ID, stored[interchange.ImportLog]{seq: r.s.next(), v: *copyImportLog(*l)})
	return nil
}

func (r *MemoryImportLogRepository) Get(_ context.Context, id uuid.UUID) (*interchange.ImportLog, error) {
	row, ok := r.s.importLogs.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", interchange.ErrImportLogNotFound, id)
	}
	return copyImportLog(row.v), nil
}

func (r *MemoryImportLogRepository) ListByChart(_ context.Context, chartID uuid.UUID) ([]*interchange.ImportLog, error) {
	rows := sortedValues(r.s.importLogs, func(l interchange.ImportLog) bool {
		return l.ChartID != nil && *l.ChartID == chartID
	})
	out := make([]*interchange.ImportLog, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		out = append(out, copyImportLog(rows[i].v))
	}
	return out, nil
}
