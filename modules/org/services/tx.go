package services

import (
	"context"
	"time"
)

// Transactor runs fn inside one storage transaction. Implementations join a
// transaction already bound to ctx and may retry fn on serialization
// failures, so fn must not have side effects outside the transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

func inTx[T any](ctx context.Context, tr Transactor, fn func(txCtx context.Context) (T, error)) (T, error) {
	var out T
	err := tr.InTx(ctx, func(txCtx context.Context) error {
		v, err := fn(txCtx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// Clock returns the current time. Services take one so tests can pin dates.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

func (c Clock) now() time.Time {
	if c == nil {
		return systemClock()
	}
	return c().UTC()
}

func (c Clock) today() time.Time {
	t := c.now()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
