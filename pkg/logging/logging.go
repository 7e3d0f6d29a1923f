package logging

import (
	"context"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func ConsoleLogger(level logrus.Level) *logrus.Logger {
	return newLogger(os.Stdout, level)
}

// JSONLogger is used by long-running processes whose output is shipped to a
// log collector.
func JSONLogger(w io.Writer, level logrus.Level) *logrus.Logger {
	logger := newLogger(w, level)
	logger.SetFormatter(&logrus.JSONFormatter{})
	return logger
}

func newLogger(w io.Writer, level logrus.Level) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger
}

// SetupTracing installs a global OTLP/HTTP tracer provider and returns its
// shutdown function.
func SetupTracing(ctx context.Context, serviceName, endpoint string) (func(), error) {
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return func() { _ = tp.Shutdown(context.Background()) }, nil
}
