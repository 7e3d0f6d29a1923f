package composables

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestUseLogger_FallsBackToSilentEntry(t *testing.T) {
	logger := UseLogger(context.Background())
	require.NotNil(t, logger)
	require.Equal(t, logrus.PanicLevel, logger.Logger.GetLevel())

	entry := logrus.NewEntry(logrus.New()).WithField("request-id", "r1")
	ctx := WithLogger(context.Background(), entry)
	require.Same(t, entry, UseLogger(ctx))
}

func TestUseActor(t *testing.T) {
	_, err := UseActor(context.Background())
	require.ErrorIs(t, err, ErrNoActor)

	id := uuid.New()
	got, err := UseActor(WithActor(context.Background(), id))
	require.NoError(t, err)
	require.Equal(t, id, got)
}

func TestUsePool_MissingPool(t *testing.T) {
	_, err := UseTx(context.Background())
	require.ErrorIs(t, err, ErrNoPool)
}

func TestIsRetryable(t *testing.T) {
	require.True(t, IsRetryable(&pgconn.PgError{Code: "40001"}))
	require.True(t, IsRetryable(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "40P01"})))
	require.False(t, IsRetryable(&pgconn.PgError{Code: "23505"}))
	require.False(t, IsRetryable(errors.New("boom")))
	require.False(t, IsRetryable(nil))
}
