package chart

import (
	"context"

	"github.com/google/uuid"
)

type FindParams struct {
	Department string
	Status     Status
	Limit      int
}

type Repository interface {
	Create(ctx context.Context, c *Chart) error
	Get(ctx context.Context, id uuid.UUID) (*Chart, error)
	// LockForUpdate row-locks the chart for the rest of the transaction.
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Chart, error)
	// LockActive locks and returns the department's active chart, or nil.
	LockActive(ctx context.Context, department string) (*Chart, error)
	GetActive(ctx context.Context, department string) (*Chart, error)
	Update(ctx context.Context, c *Chart) error
	List(ctx context.Context, params FindParams) ([]*Chart, error)
	// ListByRoot returns every chart of a lineage, newest first.
	ListByRoot(ctx context.Context, rootID uuid.UUID) ([]*Chart, error)
}

type SnapshotRepository interface {
	Create(ctx context.Context, s *Snapshot) error
	Get(ctx context.Context, id uuid.UUID) (*Snapshot, error)
	// ListByChart returns snapshots newest first.
	ListByChart(ctx context.Context, chartID uuid.UUID) ([]*Snapshot, error)
}
