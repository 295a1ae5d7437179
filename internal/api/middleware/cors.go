package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS allows the console front end to call the API. Credentials are only
// allowed for an explicit origin list.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := len(allowedOrigins) == 0
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
	}
	opts := cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: !allowAll,
		MaxAge:           3600,
	}
	if allowAll {
		opts.AllowedOrigins = []string{"*"}
	}
	return cors.Handler(opts)
}
