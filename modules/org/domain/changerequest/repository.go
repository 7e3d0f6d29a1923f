package changerequest

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, cr *ChangeRequest) error
	Get(ctx context.Context, id uuid.UUID) (*ChangeRequest, error)
	LockForUpdate(ctx context.Context, id uuid.UUID) (*ChangeRequest, error)
	// GetPendingByChart returns the chart's pending request, or nil.
	GetPendingByChart(ctx context.Context, chartID uuid.UUID) (*ChangeRequest, error)
	Update(ctx context.Context, cr *ChangeRequest) error
	// List returns requests newest first, optionally filtered by status.
	List(ctx context.Context, status Status, limit int) ([]*ChangeRequest, error)
}
