// Package middleware provides HTTP middleware components for the plugtrack API.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig provides CORS settings to the middleware.
// The concrete type lives in internal/api/config.go.
type CORSConfig interface {
	GetAllowedOrigins() []string
	GetAllowedMethods() []string
	GetAllowedHeaders() []string
	GetMaxAge() int
}

// CORS creates a middleware that handles Cross-Origin Resource Sharing (CORS).
func CORS(config CORSConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			setCORSOriginHeader(w, r, config.GetAllowedOrigins())

			if methods := config.GetAllowedMethods(); len(methods) > 0 {
				w.Header().Set("Access-Control-Allow-Methods", strings.Join(methods, ", "))
			}

			if headers := config.GetAllowedHeaders(); len(headers) > 0 {
				w.Header().Set("Access-Control-Allow-Headers", strings.Join(headers, ", "))
			}

			if maxAge := config.GetMaxAge(); maxAge > 0 {
				w.Header().Set("Access-Control-Max-Age", strconv.Itoa(maxAge))
			}

			// Handle preflight requests
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// setCORSOriginHeader sets the Access-Control-Allow-Origin header based on allowed origins.
func setCORSOriginHeader(w http.ResponseWriter, r *http.Request, allowedOrigins []string) {
	if len(allowedOrigins) == 0 {
		return
	}

	if len(allowedOrigins) == 1 && allowedOrigins[0] == "*" {
		w.Header().Set("Access-Control-Allow-Origin", "*")

		return
	}

	origin := r.Header.Get("Origin")
	for _, allowedOrigin := range allowedOrigins {
		if origin == allowedOrigin {
			w.Header().Set("Access-Control-Allow-Origin", origin)

			break
		}
	}
}
