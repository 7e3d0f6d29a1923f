package composables

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/orgchart/pkg/constants"
)

var (
	ErrNoTx   = errors.New("no transaction found in context")
	ErrNoPool = errors.New("no database pool found in context")
)

// Tx is the query surface shared by pgx.Tx and *pgxpool.Pool.
type Tx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, constants.TxKey, tx)
}

// UseTx returns the transaction bound to ctx, falling back to the pool for
// reads that do not need one.
func UseTx(ctx context.Context) (Tx, error) {
	tx, ok := ctx.Value(constants.TxKey).(pgx.Tx)
	if !ok || tx == nil {
		return UsePool(ctx)
	}
	return tx, nil
}

func WithPool(ctx context.Context, pool *pgxpool.Pool) context.Context {
	return context.WithValue(ctx, constants.PoolKey, pool)
}

func UsePool(ctx context.Context) (*pgxpool.Pool, error) {
	pool, ok := ctx.Value(constants.PoolKey).(*pgxpool.Pool)
	if !ok || pool == nil {
		return nil, ErrNoPool
	}
	return pool, nil
}

// InTx runs fn in a new transaction unless ctx already carries one, in which
// case fn joins it.
func InTx(ctx context.Context, fn func(context.Context) error) error {
	return InTxWithOptions(ctx, pgx.TxOptions{}, fn)
}

// InSerializableTx runs fn under SERIALIZABLE isolation, retrying up to
// retries extra times on serialization failures and deadlocks.
func InSerializableTx(ctx context.Context, retries int, fn func(context.Context) error) error {
	opts := pgx.TxOptions{IsoLevel: pgx.Serializable}
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		err = InTxWithOptions(ctx, opts, fn)
		if !IsRetryable(err) {
			return err
		}
	}
	return err
}

func InTxWithOptions(ctx context.Context, opts pgx.TxOptions, fn func(context.Context) error) error {
	if existing, ok := ctx.Value(constants.TxKey).(pgx.Tx); ok && existing != nil {
		return fn(ctx)
	}

	pool, err := UsePool(ctx)
	if err != nil {
		return err
	}

	tx, err := pool.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	if err := fn(WithTx(ctx, tx)); err != nil {
		if rErr := tx.Rollback(ctx); rErr != nil {
			return errors.Join(err, rErr)
		}
		return err
	}
	return tx.Commit(ctx)
}

// IsRetryable reports whether err is a serialization failure or deadlock.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
