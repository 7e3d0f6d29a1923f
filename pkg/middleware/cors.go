package middleware

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/iota-uz/orgchart/pkg/constants"
)

// Cors allows the given origins to call the API with credentials. No origins
// means the middleware is a pass-through.
func Cors(allowOrigins ...string) mux.MiddlewareFunc {
	if len(allowOrigins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   allowOrigins,
		AllowCredentials: true,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedHeaders: []string{"Content-Type", constants.ActorIDHeader, constants.RequestIDHeader},
		ExposedHeaders: []string{constants.RequestIDHeader, "Content-Disposition"},
	})
	return c.Handler
}
