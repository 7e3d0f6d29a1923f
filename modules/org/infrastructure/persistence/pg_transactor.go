package persistence

import (
	"context"

	"github.com/iota-uz/orgchart/pkg/composables"
)

// PgTransactor runs units of work in SERIALIZABLE transactions on the pool
// bound to the context, retrying serialization failures.
type PgTransactor struct {
	Retries int
}

func NewPgTransactor(retries int) *PgTransactor {
	if retries < 0 {
		retries = 0
	}
	return &PgTransactor{Retries: retries}
}

func (t *PgTransactor) InTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return composables.InSerializableTx(ctx, t.Retries, fn)
}
