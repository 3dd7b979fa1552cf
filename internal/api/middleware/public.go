// Package middleware provides HTTP middleware components for the plugtrack API.
package middleware

// publicEndpoints defines endpoints that bypass rate limiting.
// These are health probe endpoints hit on a fixed schedule by orchestrators
// and monitors; throttling them would flap readiness.
var publicEndpoints = map[string]bool{} //nolint: gochecknoglobals

// RegisterPublicEndpoint registers an endpoint that bypasses rate limiting.
// This should only be called during route setup for health check endpoints.
//
// Never register business logic endpoints as public.
//
// Example:
//
//	middleware.RegisterPublicEndpoint("/ping")
//	middleware.RegisterPublicEndpoint("/ready")
func RegisterPublicEndpoint(endpoint string) {
	publicEndpoints[endpoint] = true
}

// isPublicEndpoint reports whether a request path bypasses rate limiting.
func isPublicEndpoint(path string) bool {
	return publicEndpoints[path]
}
