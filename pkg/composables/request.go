package composables

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/orgchart/pkg/constants"
)

var (
	ErrNoLogger = errors.New("logger not found")
	ErrNoActor  = errors.New("actor not found")
)

func WithLogger(ctx context.Context, logger *logrus.Entry) context.Context {
	return context.WithValue(ctx, constants.LoggerKey, logger)
}

// UseLogger returns the request logger, or a discarding entry when none is set.
func UseLogger(ctx context.Context) *logrus.Entry {
	if logger, ok := ctx.Value(constants.LoggerKey).(*logrus.Entry); ok && logger != nil {
		return logger
	}
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, constants.RequestIDKey, requestID)
}

func UseRequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(constants.RequestIDKey).(string)
	return id, ok && id != ""
}

// WithActor binds the acting user to ctx. Mutating services still take the
// actor explicitly; this is only used by transport layers.
func WithActor(ctx context.Context, actorID uuid.UUID) context.Context {
	return context.WithValue(ctx, constants.ActorKey, actorID)
}

func UseActor(ctx context.Context) (uuid.UUID, error) {
	id, ok := ctx.Value(constants.ActorKey).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, ErrNoActor
	}
	return id, nil
}
