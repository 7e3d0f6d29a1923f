package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"

	"github.com/iota-uz/orgchart/pkg/composables"
	"github.com/iota-uz/orgchart/pkg/configuration"
	"github.com/iota-uz/orgchart/pkg/httpapi"
	"github.com/iota-uz/orgchart/pkg/middleware"
	"github.com/iota-uz/orgchart/pkg/server"
)

type DefaultOptions struct {
	Logger        *logrus.Logger
	Configuration *configuration.Configuration
	Pool          *pgxpool.Pool
	Controllers   []server.Controller
}

// Middlewares is the request pipeline shared by every controller.
func Middlewares(options *DefaultOptions) []mux.MiddlewareFunc {
	conf := options.Configuration

	// WithLogger creates the root span for each request
	middlewares := []mux.MiddlewareFunc{
		middleware.WithLogger(options.Logger, conf.RequestIDHeader),
		middleware.Recover(),

		middleware.TracedMiddleware("database"),
		middleware.ProvidePool(options.Pool),

		middleware.TracedMiddleware("cors"),
		middleware.Cors(conf.AllowedOrigins()...),
	}

	if conf.RateLimit.Enabled {
		var store limiter.Store
		switch conf.RateLimit.Storage {
		case "redis":
			var err error
			store, err = middleware.NewRedisStore(conf.RateLimit.RedisURL)
			if err != nil {
				options.Logger.WithError(err).Warn("Failed to create Redis store for rate limiting, falling back to memory")
				store = middleware.NewMemoryStore()
			}
		default:
			store = middleware.NewMemoryStore()
		}

		middlewares = append(middlewares,
			middleware.TracedMiddleware("rateLimit"),
			middleware.RateLimit(middleware.RateLimitConfig{
				RequestsPerPeriod: conf.RateLimit.GlobalRPS,
				Store:             store,
			}),
		)
	}
	return middlewares
}

func Default(options *DefaultOptions) *server.HTTPServer {
	s := server.NewHTTPServer(
		options.Controllers,
		Middlewares(options),
		http.HandlerFunc(NotFound),
		http.HandlerFunc(MethodNotAllowed),
	)
	s.Logger = options.Logger
	return s
}

func NotFound(w http.ResponseWriter, r *http.Request) {
	writeRouteError(w, r, http.StatusNotFound, "NOT_FOUND", "not found")
}

func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeRouteError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
}

func writeRouteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	meta := map[string]string{"path": r.URL.Path, "method": r.Method}
	if id, ok := composables.UseRequestID(r.Context()); ok {
		meta["request_id"] = id
	}
	_ = httpapi.WriteError(w, status, code, message, meta)
}
