package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/iota-uz/orgchart/pkg/composables"
	"github.com/iota-uz/orgchart/pkg/constants"
	"github.com/iota-uz/orgchart/pkg/httpapi"
)

var tracer = otel.Tracer("orgchart-middleware")

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusRecorder) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func requestID(r *http.Request, header string) string {
	if v := r.Header.Get(header); v != "" {
		return v
	}
	return uuid.New().String()
}

// WithLogger opens a request span, binds a request-scoped logger and request
// id to the context, and logs completion with status and duration.
func WithLogger(logger *logrus.Logger, requestIDHeader string) mux.MiddlewareFunc {
	if requestIDHeader == "" {
		requestIDHeader = constants.RequestIDHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := requestID(r, requestIDHeader)

			propagator := propagation.TraceContext{}
			ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := tracer.Start(ctx, "http.request",
				trace.WithAttributes(
					attribute.String("http.method", r.Method),
					attribute.String("http.route", r.URL.Path),
					attribute.String("http.request_id", reqID),
				),
			)
			defer span.End()

			fields := logrus.Fields{
				"request-id": reqID,
				"path":       r.URL.Path,
				"method":     r.Method,
			}
			if sc := span.SpanContext(); sc.HasTraceID() {
				fields["trace-id"] = sc.TraceID().String()
			}
			entry := logger.WithFields(fields)

			ctx = composables.WithLogger(ctx, entry)
			ctx = composables.WithRequestID(ctx, reqID)
			w.Header().Set(requestIDHeader, reqID)

			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r.WithContext(ctx))

			status := rec.Status()
			span.SetAttributes(attribute.Int("http.status_code", status))
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(status))
			}
			entry.WithFields(logrus.Fields{
				"status":   status,
				"duration": time.Since(start).String(),
			}).Info("request completed")
		})
	}
}

// TracedMiddleware opens a span covering everything registered after it.
func TracedMiddleware(name string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracer.Start(r.Context(), "middleware."+name)
			defer span.End()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Recover turns handler panics into JSON 500 responses and logs the stack.
func Recover() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					composables.UseLogger(r.Context()).WithFields(logrus.Fields{
						"panic": rec,
						"stack": string(debug.Stack()),
					}).Error("handler panicked")
					meta := map[string]string{"path": r.URL.Path}
					if id, ok := composables.UseRequestID(r.Context()); ok {
						meta["request_id"] = id
					}
					_ = httpapi.WriteError(w, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "internal server error", meta)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// ProvideActor reads the acting user id header into the context. A malformed
// id is rejected; a missing one is left for handlers that require it.
func ProvideActor() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(constants.ActorIDHeader)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			id, err := uuid.Parse(raw)
			if err != nil {
				http.Error(w, "invalid "+constants.ActorIDHeader, http.StatusBadRequest)
				return
			}
			next.ServeHTTP(w, r.WithContext(composables.WithActor(r.Context(), id)))
		})
	}
}
