package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/iota-uz/orgchart/modules/org/domain/events"
	"github.com/iota-uz/orgchart/modules/org/domain/hierarchy"
	"github.com/iota-uz/orgchart/modules/org/domain/staffing"
	"github.com/iota-uz/orgchart/pkg/composables"
)

// StaffingService owns positions, employees and the temporal assignment
// store.
type StaffingService struct {
	Positions   staffing.PositionRepository
	Employees   staffing.EmployeeRepository
	Assignments staffing.AssignmentRepository
	Tx          Transactor
	Notifier    Notifier
	Clock       Clock
}

func NewStaffingService(
	positions staffing.PositionRepository,
	employees staffing.EmployeeRepository,
	assignments staffing.AssignmentRepository,
	tx Transactor,
	notifier Notifier,
) *StaffingService {
	return &StaffingService{
		Positions:   positions,
		Employees:   employees,
		Assignments: assignments,
		Tx:          tx,
		Notifier:    notifier,
	}
}

type CreatePositionInput struct {
	ID                string                `json:"id" validate:"required,max=64"`
	Title             string                `json:"title" validate:"required,max=255"`
	Department        string                `json:"department" validate:"required,max=255"`
	Level             int                   `json:"level" validate:"gte=0"`
	ReportsTo         *string               `json:"reports_to"`
	Responsibilities  string                `json:"responsibilities"`
	KPIs              []string              `json:"kpis"`
	RequiredProcesses []string              `json:"required_processes"`
	Canvas            *staffing.Coordinates `json:"canvas"`
}

// CreatePosition stores a new position. A zero level is derived from the
// parent, and parentless positions start at level 1.
func (s *StaffingService) CreatePosition(ctx context.Context, in CreatePositionInput) (_ *staffing.Position, err error) {
	ctx, end := startSpan(ctx, "CreatePosition", attribute.String("position.id", in.ID))
	defer func() { end(err) }()

	if err := validateInput(in); err != nil {
		return nil, mapServiceError(ctx, "CreatePosition", err)
	}
	now := s.Clock.now()
	p := &staffing.Position{
		ID:                in.ID,
		Title:             in.Title,
		Department:        in.Department,
		Level:             in.Level,
		ReportsTo:         in.ReportsTo,
		Responsibilities:  in.Responsibilities,
		KPIs:              in.KPIs,
		RequiredProcesses: in.RequiredProcesses,
		Canvas:            in.Canvas,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	p.Normalize()

	out, err := inTx(ctx, s.Tx, func(txCtx context.Context) (*staffing.Position, error) {
		if parentID := p.ParentID(); parentID != "" {
			if err := s.Positions.LockHierarchy(txCtx); err != nil {
				return nil, err
			}
			if parentID == p.ID {
				return nil, fmt.Errorf("%w: %s cannot report to itself", hierarchy.ErrCycleDetected, p.ID)
			}
			parent, err := s.Positions.LockForUpdate(txCtx, parentID)
			if err != nil {
				return nil, parentError(err, parentID)
			}
			if p.Level == 0 {
				p.Level = parent.Level + 1
			}
		} else if p.Level == 0 {
			p.Level = 1
		}
		if err := s.Positions.Create(txCtx, p); err != nil {
			return nil, err
		}
		return p, nil
	})
	if err != nil {
		return nil, mapServiceError(ctx, "CreatePosition", err)
	}
	logWithFields(ctx, logrus.InfoLevel, "org position created", logrus.Fields{"position_id": out.ID, "department": out.Department})
	return out, nil
}

func parentError(err error, parentID string) error {
	if isNotFound(err, staffing.ErrPositionNotFound) {
		return fmt.Errorf("%w: %s", hierarchy.ErrParentNotFound, parentID)
	}
	return err
}

// UpdateReportsTo re-parents a position. A nil parent makes it a root.
func (s *StaffingService) UpdateReportsTo(ctx context.Context, positionID string, newParent *string) (_ *staffing.Position, err error) {
	ctx, end := startSpan(ctx, "UpdateReportsTo", attribute.String("position.id", positionID))
	defer func() { end(err) }()

	parentID := ""
	if newParent != nil {
		parentID = strings.TrimSpace(*newParent)
	}
	out, err := inTx(ctx, s.Tx, func(txCtx context.Context) (*staffing.Position, error) {
		if err := s.Positions.LockHierarchy(txCtx); err != nil {
			return nil, err
		}
		p, err := s.Positions.LockForUpdate(txCtx, positionID)
		if err != nil {
			return nil, err
		}
		idx, _, err := s.hierarchyIndex(txCtx)
		if err != nil {
			return nil, err
		}
		if err := idx.ValidateNoCycle(p.ID, parentID); err != nil {
			return nil, err
		}
		var ptr *string
		if parentID != "" {
			ptr = &parentID
		}
		if err := s.Positions.UpdateReportsTo(txCtx, p.ID, ptr); err != nil {
			return nil, err
		}
		p.ReportsTo = ptr
		p.UpdatedAt = s.Clock.now()
		return p, nil
	})
	if err != nil {
		return nil, mapServiceError(ctx, "UpdateReportsTo", err)
	}
	logWithFields(ctx, logrus.InfoLevel, "org position reparented", logrus.Fields{"position_id": positionID, "reports_to": parentID})
	return out, nil
}

// DeletePosition removes a position that has no direct reports and was never
// referenced by an assignment, past or future.
func (s *StaffingService) DeletePosition(ctx context.Context, positionID string) (err error) {
	ctx, end := startSpan(ctx, "DeletePosition", attribute.String("position.id", positionID))
	defer func() { end(err) }()

	today := s.Clock.today()
	err = s.Tx.InTx(ctx, func(txCtx context.Context) error {
		if err := s.Positions.LockHierarchy(txCtx); err != nil {
			return err
		}
		if _, err := s.Positions.LockForUpdate(txCtx, positionID); err != nil {
			return err
		}
		idx, _, err := s.hierarchyIndex(txCtx)
		if err != nil {
			return err
		}
		if children := idx.Children(positionID); len(children) > 0 {
			return fmt.Errorf("%w: %s", staffing.ErrPositionHasChildren, strings.Join(children, ", "))
		}
		assignments, err := s.Assignments.ListByPosition(txCtx, positionID)
		if err != nil {
			return err
		}
		current, err := staffing.SelectCovering(assignments, today)
		if err != nil {
			return err
		}
		if current != nil {
			return fmt.Errorf("%w: %s", staffing.ErrPositionOccupied, positionID)
		}
		if len(assignments) > 0 {
			return fmt.Errorf("%w: %s has %d assignment(s)", staffing.ErrPositionHasHistory, positionID, len(assignments))
		}
		return s.Positions.Delete(txCtx, positionID)
	})
	if err != nil {
		return mapServiceError(ctx, "DeletePosition", err)
	}
	logWithFields(ctx, logrus.InfoLevel, "org position deleted", logrus.Fields{"position_id": positionID})
	return nil
}

func (s *StaffingService) GetPosition(ctx context.Context, positionID string) (*staffing.Position, error) {
	p, err := s.Positions.Get(ctx, positionID)
	if err != nil {
		return nil, mapServiceError(ctx, "GetPosition", err)
	}
	return p, nil
}

func (s *StaffingService) ListPositions(ctx context.Context, department string) ([]*staffing.Position, error) {
	out, err := s.Positions.List(ctx, strings.TrimSpace(department))
	if err != nil {
		return nil, mapServiceError(ctx, "ListPositions", err)
	}
	return out, nil
}

func (s *StaffingService) hierarchyIndex(ctx context.Context) (*hierarchy.Index, map[string]*staffing.Position, error) {
	all, err := s.Positions.List(ctx, "")
	if err != nil {
		return nil, nil, err
	}
	nodes := make([]hierarchy.Node, 0, len(all))
	byID := make(map[string]*staffing.Position, len(all))
	for _, p := range all {
		nodes = append(nodes, hierarchy.Node{ID: p.ID, ParentID: p.ParentID()})
		byID[p.ID] = p
	}
	idx, err := hierarchy.NewIndex(nodes)
	if err != nil {
		return nil, nil, err
	}
	return idx, byID, nil
}

// Children returns the direct reports of a position.
func (s *StaffingService) Children(ctx context.Context, positionID string) ([]*staffing.Position, error) {
	idx, byID, err := s.hierarchyIndex(ctx)
	if err != nil {
		return nil, mapServiceError(ctx, "Children", err)
	}
	if !idx.Has(positionID) {
		return nil, mapServiceError(ctx, "Children", fmt.Errorf("%w: %s", staffing.ErrPositionNotFound, positionID))
	}
	out := make([]*staffing.Position, 0)
	for _, id := range idx.Children(positionID) {
		out = append(out, byID[id])
	}
	return out, nil
}

// Ancestors returns the reporting chain above a position, nearest first.
func (s *StaffingService) Ancestors(ctx context.Context, positionID string) ([]*staffing.Position, error) {
	idx, byID, err := s.hierarchyIndex(ctx)
	if err != nil {
		return nil, mapServiceError(ctx, "Ancestors", err)
	}
	if !idx.Has(positionID) {
		return nil, mapServiceError(ctx, "Ancestors", fmt.Errorf("%w: %s", staffing.ErrPositionNotFound, positionID))
	}
	ids, err := idx.Ancestors(positionID)
	if err != nil {
		return nil, mapServiceError(ctx, "Ancestors", err)
	}
	out := make([]*staffing.Position, 0, len(ids))
	for _, id := range ids {
		out = append(out, byID[id])
	}
	return out, nil
}

type CreateEmployeeInput struct {
	EmployeeNumber string    `json:"employee_number" validate:"required,max=50"`
	FirstName      string    `json:"first_name" validate:"required,max=100"`
	LastName       string    `json:"last_name" validate:"required,max=100"`
	Email          string    `json:"email" validate:"omitempty,email"`
	Phone          string    `json:"phone" validate:"omitempty,max=20"`
	HireDate       time.Time `json:"hire_date" validate:"required"`
}

func (s *StaffingService) CreateEmployee(ctx context.Context, in CreateEmployeeInput) (_ *staffing.Employee, err error) {
	ctx, end := startSpan(ctx, "CreateEmployee")
	defer func() { end(err) }()

	in.EmployeeNumber = strings.TrimSpace(in.EmployeeNumber)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	if err := validateInput(in); err != nil {
		return nil, mapServiceError(ctx, "CreateEmployee", err)
	}
	e := &staffing.Employee{
		ID:             uuid.New(),
		EmployeeNumber: in.EmployeeNumber,
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		Email:          strings.TrimSpace(in.Email),
		Phone:          strings.TrimSpace(in.Phone),
		HireDate:       staffing.DateOnly(in.HireDate),
		IsActive:       true,
		CreatedAt:      s.Clock.now(),
	}
	err = s.Tx.InTx(ctx, func(txCtx context.Context) error {
		return s.Employees.Create(txCtx, e)
	})
	if err != nil {
		return nil, mapServiceError(ctx, "CreateEmployee", err)
	}
	return e, nil
}

// DeactivateEmployee marks an employee inactive. Open assignments are left
// alone; ending them is an explicit operation.
func (s *StaffingService) DeactivateEmployee(ctx context.Context, employeeID uuid.UUID) (err error) {
	ctx, end := startSpan(ctx, "DeactivateEmployee", attribute.String("employee.id", employeeID.String()))
	defer func() { end(err) }()

	err = s.Tx.InTx(ctx, func(txCtx context.Context) error {
		if _, err := s.Employees.LockForUpdate(txCtx, employeeID); err != nil {
			return err
		}
		return s.Employees.SetActive(txCtx, employeeID, false)
	})
	return mapServiceError(ctx, "DeactivateEmployee", err)
}

func (s *StaffingService) ListEmployees(ctx context.Context, activeOnly bool) ([]*staffing.Employee, error) {
	out, err := s.Employees.List(ctx, activeOnly)
	if err != nil {
		return nil, mapServiceError(ctx, "ListEmployees", err)
	}
	return out, nil
}

type CreateAssignmentInput struct {
	PositionID string     `json:"position_id" validate:"required"`
	EmployeeID uuid.UUID  `json:"employee_id" validate:"required"`
	StartDate  time.Time  `json:"start_date" validate:"required"`
	EndDate    *time.Time `json:"end_date"`
	Kind       string     `json:"kind" validate:"omitempty,oneof=permanent temporary interim"`
	Notes      string     `json:"notes"`
}

// CreateAssignment places an employee in a position. The position and the
// employee are row-locked for the check, and storage constraints back it.
func (s *StaffingService) CreateAssignment(ctx context.Context, in CreateAssignmentInput) (_ *staffing.Assignment, err error) {
	ctx, end := startSpan(ctx, "CreateAssignment",
		attribute.String("position.id", in.PositionID),
		attribute.String("employee.id", in.EmployeeID.String()),
	)
	defer func() { end(err) }()

	if err := validateInput(in); err != nil {
		return nil, mapServiceError(ctx, "CreateAssignment", err)
	}
	kind, err := staffing.ParseAssignmentKind(in.Kind)
	if err != nil {
		return nil, mapServiceError(ctx, "CreateAssignment", err)
	}
	a, err := staffing.NewAssignment(strings.TrimSpace(in.PositionID), in.EmployeeID, in.StartDate, in.EndDate, kind, in.Notes)
	if err != nil {
		return nil, mapServiceError(ctx, "CreateAssignment", err)
	}
	a.CreatedAt = s.Clock.now()

	out, err := inTx(ctx, s.Tx, func(txCtx context.Context) (*staffing.Assignment, error) {
		if _, err := s.Positions.LockForUpdate(txCtx, a.PositionID); err != nil {
			return nil, err
		}
		emp, err := s.Employees.LockForUpdate(txCtx, a.EmployeeID)
		if err != nil {
			return nil, err
		}
		if !emp.IsActive {
			return nil, invalidInput("employee %s is inactive", emp.EmployeeNumber)
		}
		held, err := s.Assignments.ListByEmployee(txCtx, a.EmployeeID)
		if err != nil {
			return nil, err
		}
		for _, other := range held {
			if other.Overlaps(a.StartDate, a.EndDate) {
				return nil, fmt.Errorf("%w: assignment %s at %s", staffing.ErrEmployeeAlreadyPlaced, other.ID, other.PositionID)
			}
		}
		occupying, err := s.Assignments.ListByPosition(txCtx, a.PositionID)
		if err != nil {
			return nil, err
		}
		for _, other := range occupying {
			if other.Overlaps(a.StartDate, a.EndDate) {
				return nil, fmt.Errorf("%w: assignment %s", staffing.ErrPositionAlreadyOccupied, other.ID)
			}
		}
		if err := s.Assignments.Create(txCtx, a); err != nil {
			return nil, err
		}
		return a, nil
	})
	if err != nil {
		return nil, mapServiceError(ctx, "CreateAssignment", err)
	}
	logWithFields(ctx, logrus.InfoLevel, "org assignment created", logrus.Fields{
		"assignment_id": out.ID,
		"position_id":   out.PositionID,
		"employee_id":   out.EmployeeID,
		"start_date":    out.StartDate.Format(time.DateOnly),
	})
	return out, nil
}

// EndAssignment closes an open assignment. The notification hook runs after
// commit and cannot undo it.
func (s *StaffingService) EndAssignment(ctx context.Context, assignmentID uuid.UUID, endDate time.Time, notes string) (_ *staffing.Assignment, err error) {
	ctx, end := startSpan(ctx, "EndAssignment", attribute.String("assignment.id", assignmentID.String()))
	defer func() { end(err) }()

	if endDate.IsZero() {
		return nil, mapServiceError(ctx, "EndAssignment", invalidInput("end_date is required"))
	}
	out, err := inTx(ctx, s.Tx, func(txCtx context.Context) (*staffing.Assignment, error) {
		a, err := s.Assignments.LockForUpdate(txCtx, assignmentID)
		if err != nil {
			return nil, err
		}
		if err := a.End(endDate, notes); err != nil {
			return nil, err
		}
		if err := s.Assignments.End(txCtx, a.ID, *a.EndDate, a.Notes); err != nil {
			return nil, err
		}
		return a, nil
	})
	if err != nil {
		return nil, mapServiceError(ctx, "EndAssignment", err)
	}
	logWithFields(ctx, logrus.InfoLevel, "org assignment ended", logrus.Fields{
		"assignment_id": out.ID,
		"end_date":      out.EndDate.Format(time.DateOnly),
	})
	reqID, _ := composables.UseRequestID(ctx)
	notify(ctx, s.Notifier, &events.AssignmentEndedV1{
		EventID:      uuid.New(),
		RequestID:    reqID,
		OccurredAt:   s.Clock.now(),
		AssignmentID: out.ID,
		PositionID:   out.PositionID,
		EmployeeID:   out.EmployeeID,
		EndDate:      *out.EndDate,
		Notes:        notes,
	})
	return out, nil
}

// Occupant is the assignment covering a day together with its employee.
type Occupant struct {
	Assignment *staffing.Assignment `json:"assignment"`
	Employee   *staffing.Employee   `json:"employee"`
}

// CurrentOccupant returns who holds the position on asOf, or nil when it is
// vacant. A zero asOf means today. More than one covering assignment is an
// integrity error and is never resolved by picking one.
func (s *StaffingService) CurrentOccupant(ctx context.Context, positionID string, asOf time.Time) (*Occupant, error) {
	if asOf.IsZero() {
		asOf = s.Clock.today()
	}
	if _, err := s.Positions.Get(ctx, positionID); err != nil {
		return nil, mapServiceError(ctx, "CurrentOccupant", err)
	}
	assignments, err := s.Assignments.ListByPosition(ctx, positionID)
	if err != nil {
		return nil, mapServiceError(ctx, "CurrentOccupant", err)
	}
	current, err := staffing.SelectCovering(assignments, asOf)
	if err != nil {
		return nil, mapServiceError(ctx, "CurrentOccupant", err)
	}
	if current == nil {
		return nil, nil
	}
	emp, err := s.Employees.Get(ctx, current.EmployeeID)
	if err != nil {
		return nil, mapServiceError(ctx, "CurrentOccupant", err)
	}
	return &Occupant{Assignment: current, Employee: emp}, nil
}

func (s *StaffingService) IsVacant(ctx context.Context, positionID string, asOf time.Time) (bool, error) {
	occ, err := s.CurrentOccupant(ctx, positionID, asOf)
	if err != nil {
		return false, err
	}
	return occ == nil, nil
}

// OccupantNames maps every position occupied on asOf to its employee's full
// name. Positions with inconsistent assignments are reported as an error.
func (s *StaffingService) OccupantNames(ctx context.Context, asOf time.Time) (map[string]string, error) {
	if asOf.IsZero() {
		asOf = s.Clock.today()
	}
	covering, err := s.Assignments.ListCovering(ctx, asOf)
	if err != nil {
		return nil, mapServiceError(ctx, "OccupantNames", err)
	}
	byPosition := make(map[string]uuid.UUID, len(covering))
	ids := make([]uuid.UUID, 0, len(covering))
	for _, a := range covering {
		if _, dup := byPosition[a.PositionID]; dup {
			return nil, mapServiceError(ctx, "OccupantNames", fmt.Errorf("%w: position %s", staffing.ErrMultipleOccupants, a.PositionID))
		}
		byPosition[a.PositionID] = a.EmployeeID
		ids = append(ids, a.EmployeeID)
	}
	employees, err := s.Employees.GetMany(ctx, ids)
	if err != nil {
		return nil, mapServiceError(ctx, "OccupantNames", err)
	}
	out := make(map[string]string, len(byPosition))
	for positionID, empID := range byPosition {
		if e, ok := employees[empID]; ok {
			out[positionID] = e.FullName()
		}
	}
	return out, nil
}

// OccupancyHistory returns every assignment of a position by start date.
func (s *StaffingService) OccupancyHistory(ctx context.Context, positionID string) ([]*staffing.Assignment, error) {
	if _, err := s.Positions.Get(ctx, positionID); err != nil {
		return nil, mapServiceError(ctx, "OccupancyHistory", err)
	}
	out, err := s.Assignments.ListByPosition(ctx, positionID)
	if err != nil {
		return nil, mapServiceError(ctx, "OccupancyHistory", err)
	}
	sortByStart(out)
	return out, nil
}

// EmployeeHistory returns every assignment an employee held by start date.
func (s *StaffingService) EmployeeHistory(ctx context.Context, employeeID uuid.UUID) ([]*staffing.Assignment, error) {
	if _, err := s.Employees.Get(ctx, employeeID); err != nil {
		return nil, mapServiceError(ctx, "EmployeeHistory", err)
	}
	out, err := s.Assignments.ListByEmployee(ctx, employeeID)
	if err != nil {
		return nil, mapServiceError(ctx, "EmployeeHistory", err)
	}
	sortByStart(out)
	return out, nil
}

func sortByStart(as []*staffing.Assignment) {
	sort.SliceStable(as, func(i, j int) bool {
		if !as[i].StartDate.Equal(as[j].StartDate) {
			return as[i].StartDate.Before(as[j].StartDate)
		}
		return as[i].CreatedAt.Before(as[j].CreatedAt)
	})
}

// DaysUntilEnd is nil for open assignments.
func (s *StaffingService) DaysUntilEnd(ctx context.Context, assignmentID uuid.UUID, asOf time.Time) (*int, error) {
	if asOf.IsZero() {
		asOf = s.Clock.today()
	}
	a, err := s.Assignments.Get(ctx, assignmentID)
	if err != nil {
		return nil, mapServiceError(ctx, "DaysUntilEnd", err)
	}
	return a.DaysUntilEnd(asOf), nil
}

type ExpiringAssignment struct {
	Assignment   *staffing.Assignment `json:"assignment"`
	DaysUntilEnd int                  `json:"days_until_end"`
}

// ListExpiringAssignments returns assignments ending within the next
// withinDays days of asOf, soonest first.
func (s *StaffingService) ListExpiringAssignments(ctx context.Context, asOf time.Time, withinDays int) ([]ExpiringAssignment, error) {
	if withinDays < 0 {
		return nil, mapServiceError(ctx, "ListExpiringAssignments", invalidInput("within_days must not be negative"))
	}
	if asOf.IsZero() {
		asOf = s.Clock.today()
	}
	from := staffing.DateOnly(asOf)
	to := from.AddDate(0, 0, withinDays)
	rows, err := s.Assignments.ListEndingBetween(ctx, from, to)
	if err != nil {
		return nil, mapServiceError(ctx, "ListExpiringAssignments", err)
	}
	out := make([]ExpiringAssignment, 0, len(rows))
	for _, a := range rows {
		days := a.DaysUntilEnd(from)
		if days == nil {
			continue
		}
		out = append(out, ExpiringAssignment{Assignment: a, DaysUntilEnd: *days})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DaysUntilEnd < out[j].DaysUntilEnd })
	return out, nil
}
