package services

import (
	"context"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iota-uz/orgchart/pkg/constants"
)

var tracer = otel.Tracer("orgchart-services")

func loggerFromContext(ctx context.Context) *logrus.Entry {
	if ctx == nil {
		return nil
	}
	v := ctx.Value(constants.LoggerKey)
	switch typed := v.(type) {
	case *logrus.Entry:
		return typed
	case *logrus.Logger:
		return logrus.NewEntry(typed)
	default:
		return nil
	}
}

func logWithFields(ctx context.Context, level logrus.Level, msg string, fields logrus.Fields) {
	logger := loggerFromContext(ctx)
	if logger == nil {
		return
	}
	logger.WithFields(fields).Log(level, msg)
}

// startSpan opens a span for a service operation. The returned func ends it
// and records err when non-nil.
func startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(err error)) {
	ctx, span := tracer.Start(ctx, "org."+op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
