package staffing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type PositionRepository interface {
	Create(ctx context.Context, p *Position) error
	Get(ctx context.Context, id string) (*Position, error)
	// LockForUpdate row-locks the position for the rest of the transaction.
	LockForUpdate(ctx context.Context, id string) (*Position, error)
	List(ctx context.Context, department string) ([]*Position, error)
	UpdateReportsTo(ctx context.Context, id string, parentID *string) error
	Delete(ctx context.Context, id string) error
	// LockHierarchy serializes reporting-line changes.
	LockHierarchy(ctx context.Context) error
}

type EmployeeRepository interface {
	Create(ctx context.Context, e *Employee) error
	Get(ctx context.Context, id uuid.UUID) (*Employee, error)
	GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Employee, error)
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Employee, error)
	List(ctx context.Context, activeOnly bool) ([]*Employee, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

type AssignmentRepository interface {
	Create(ctx context.Context, a *Assignment) error
	Get(ctx context.Context, id uuid.UUID) (*Assignment, error)
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Assignment, error)
	ListByPosition(ctx context.Context, positionID string) ([]*Assignment, error)
	ListByEmployee(ctx context.Context, employeeID uuid.UUID) ([]*Assignment, error)
	// ListCovering returns every assignment in effect on day.
	ListCovering(ctx context.Context, day time.Time) ([]*Assignment, error)
	// ListEndingBetween returns assignments whose end date falls in [from, to].
	ListEndingBetween(ctx context.Context, from, to time.Time) ([]*Assignment, error)
	End(ctx context.Context, id uuid.UUID, endDate time.Time, notes string) error
}
